// Package config provides configuration management for the application.
// It supports YAML configuration files with environment variable overrides.
package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/openjdk/jmerge/consts"
	"github.com/openjdk/jmerge/pkg/logger"
	"github.com/openjdk/jmerge/pkg/telemetry"
)

// Default configuration values
const (
	defaultWorkspace     = "./workspace"
	defaultMaxWorkers    = 4
	defaultQueueSize     = 100
	defaultItemTimeout   = 600 // seconds
	defaultPollSpec      = "@every 1m"
	defaultRetentionDays = 30
	defaultMaxRetries    = 3
	defaultRetryDelay    = 5 // seconds
)

// ReviewMerge policies for merge-style pull requests
const (
	ReviewMergeNever    = "never"
	ReviewMergeAlways   = "always"
	ReviewMergeByConfig = "byConfig"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Database  DatabaseConfig   `yaml:"database"`
	Forges    []ForgeConfig    `yaml:"forges"`
	Tracker   TrackerConfig    `yaml:"tracker"`
	Engine    EngineConfig     `yaml:"engine"`
	Scheduler SchedulerConfig  `yaml:"scheduler"`
	Bots      []BotConfig      `yaml:"bots"`
	Logging   logger.Config    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// ServerConfig holds HTTP status server configuration
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	Debug       bool     `yaml:"debug"`
	CORSOrigins []string `yaml:"cors_origins"` // Allowed CORS origins whitelist
}

// DatabaseConfig holds database configuration
// Note: Database path is hardcoded in the database package to prevent data loss from configuration errors
type DatabaseConfig struct {
	// Reserved for future database configuration options
}

// ForgeConfig holds individual forge connection settings
type ForgeConfig struct {
	Type               string `yaml:"type"`                 // github, gitlab, gitea
	URL                string `yaml:"url"`                  // for self-hosted instances
	Token              string `yaml:"token"`                // access token
	BotUser            string `yaml:"bot_user"`             // forge username the bot posts as
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"` // skip SSL certificate verification
}

// TrackerConfig holds issue tracker connection settings
type TrackerConfig struct {
	Type  string `yaml:"type"`  // jira
	URL   string `yaml:"url"`   // tracker base URL
	User  string `yaml:"user"`  // tracker account
	Token string `yaml:"token"` // API token
}

// EngineConfig holds worker pool configuration
type EngineConfig struct {
	MaxWorkers  int    `yaml:"max_workers"`  // Maximum concurrent per-PR workers
	QueueSize   int    `yaml:"queue_size"`   // Size of the work item channel buffer
	ItemTimeout int    `yaml:"item_timeout"` // Hard per-item timeout in seconds
	MaxRetries  int    `yaml:"max_retries"`  // Maximum retry attempts for forge mutations
	RetryDelay  int    `yaml:"retry_delay"`  // Base delay between retries in seconds
	Workspace   string `yaml:"workspace"`    // Local VCS scratch area root
}

// SchedulerConfig holds poll scheduling configuration
type SchedulerConfig struct {
	PollSpec      string `yaml:"poll_spec"`      // cron spec for the open-PR sweep
	RetentionDays int    `yaml:"retention_days"` // retention for fingerprints and command ledger rows
}

// ApprovalConfig holds maintainer-approval flow configuration
type ApprovalConfig struct {
	Prefix            string `yaml:"prefix"`             // tracker label prefix, e.g. "jdk17u-fix-"
	RequestSuffix     string `yaml:"request_suffix"`     // label suffix while approval is pending
	ApprovedSuffix    string `yaml:"approved_suffix"`    // label suffix once approved
	RejectedSuffix    string `yaml:"rejected_suffix"`    // label suffix once rejected
	DocumentationURL  string `yaml:"documentation_url"`  // linked from the approval reply
	GeneratedApproval bool   `yaml:"generated_approval"` // bot generates the request comment on the issue
	Label             string `yaml:"label"`              // forge label applied while approval is pending
}

// ReadyComment requires a comment matching Pattern from User before a PR
// may leave the NotReady state.
type ReadyComment struct {
	User    string `yaml:"user"`
	Pattern string `yaml:"pattern"`
}

// BotConfig holds the per-repository bot configuration
type BotConfig struct {
	Name  string `yaml:"name"`  // bot instance name
	Forge string `yaml:"forge"` // forge type the repository lives on
	Repo  string `yaml:"repo"`  // "owner/repo"

	CensusRepo string `yaml:"census_repo"` // repository holding census.xml
	CensusRef  string `yaml:"census_ref"`  // ref within the census repository
	CensusLink string `yaml:"census_link"` // URL template for census profiles

	IssueProject string `yaml:"issue_project"` // JBS project key, e.g. "JDK"
	IssuePRMap   bool   `yaml:"issue_pr_map"`  // maintain issue->PR links in the store

	EnableCSR      bool `yaml:"enable_csr"`
	EnableJEP      bool `yaml:"enable_jep"`
	EnableMerge    bool `yaml:"enable_merge"`
	EnableBackport bool `yaml:"enable_backport"`

	UseStaleReviews    bool `yaml:"use_stale_reviews"`
	AcceptSimpleMerges bool `yaml:"accept_simple_merges"`

	AllowedTargetBranches string            `yaml:"allowed_target_branches"` // regex over base refs
	ReadyLabels           []string          `yaml:"ready_labels"`
	ReadyComments         []ReadyComment    `yaml:"ready_comments"`
	BlockingCheckLabels   map[string]string `yaml:"blocking_check_labels"` // label -> reason shown in check summary

	ConfOverrideRepo string `yaml:"conf_override_repo"`
	ConfOverrideName string `yaml:"conf_override_name"`
	ConfOverrideRef  string `yaml:"conf_override_ref"`

	ReviewMerge     string   `yaml:"review_merge"` // never, always, byConfig
	MLBridgeBotName string   `yaml:"mlbridge_bot_name"`
	Integrators     []string `yaml:"integrators"`

	Approval               *ApprovalConfig   `yaml:"approval"`
	VersionMismatchWarning bool              `yaml:"version_mismatch_warning"`
	SeedStorage            string            `yaml:"seed_storage"` // per-bot scratch root overriding engine.workspace
	Forks                  map[string]string `yaml:"forks"`        // repo -> fork carrying pre-integration branches

	CheckSummaryCap int `yaml:"check_summary_cap"` // byte cap for check summaries
}

// Default returns a default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:  "0.0.0.0",
			Port:  8080,
			Debug: false,
			CORSOrigins: []string{
				"http://localhost:8080",
			},
		},
		Database: DatabaseConfig{},
		Forges:   []ForgeConfig{},
		Engine: EngineConfig{
			MaxWorkers:  defaultMaxWorkers,
			QueueSize:   defaultQueueSize,
			ItemTimeout: defaultItemTimeout,
			MaxRetries:  defaultMaxRetries,
			RetryDelay:  defaultRetryDelay,
			Workspace:   defaultWorkspace,
		},
		Scheduler: SchedulerConfig{
			PollSpec:      defaultPollSpec,
			RetentionDays: defaultRetentionDays,
		},
		Logging: logger.Config{
			Level:      "info",
			Format:     "text",
			File:       "",
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 5,
			Compress:   false,
		},
		Telemetry: telemetry.Config{
			Enabled:     false,
			ServiceName: consts.ServiceName,
			OTLP: telemetry.OTLPConfig{
				Enabled:  false,
				Endpoint: "localhost:4317",
				Insecure: true,
			},
			Prometheus: telemetry.PrometheusConfig{
				Enabled: false,
				Port:    9090,
			},
		},
	}
}

// Load loads configuration from a YAML file with environment variable expansion
func Load(path string) (*Config, error) {
	cfg := Default()

	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables in the configuration
	expanded := expandEnvVars(string(data))

	// Parse YAML
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	applyBotDefaults(cfg)

	return cfg, nil
}

// applyBotDefaults fills per-bot fields that have non-zero defaults
func applyBotDefaults(cfg *Config) {
	for i := range cfg.Bots {
		b := &cfg.Bots[i]
		if b.ReviewMerge == "" {
			b.ReviewMerge = ReviewMergeNever
		}
		if b.CheckSummaryCap <= 0 {
			b.CheckSummaryCap = consts.DefaultCheckSummaryCap
		}
		if b.Name == "" {
			b.Name = b.Repo
		}
	}
}

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable values.
// Only matches ${VAR_NAME} format (not $VAR_NAME) so tokens containing '$' survive.
func expandEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(content, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := match[2 : len(match)-1]

		// Support default values: ${VAR_NAME:-default}
		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]

		if value := os.Getenv(varName); value != "" {
			return value
		}

		// Return default value if provided
		if len(parts) > 1 {
			return parts[1]
		}

		return ""
	})
}

// Address returns the server address string
func (c *ServerConfig) Address() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// GetForge returns forge configuration by type
func (c *Config) GetForge(forgeType string) *ForgeConfig {
	for i := range c.Forges {
		if c.Forges[i].Type == forgeType {
			return &c.Forges[i]
		}
	}
	return nil
}

// GetBot returns bot configuration by name
func (c *Config) GetBot(name string) *BotConfig {
	for i := range c.Bots {
		if c.Bots[i].Name == name {
			return &c.Bots[i]
		}
	}
	return nil
}

// IsIntegrator reports whether the given forge user is a configured integrator
func (b *BotConfig) IsIntegrator(user string) bool {
	for _, u := range b.Integrators {
		if u == user {
			return true
		}
	}
	return false
}

// TargetBranchAllowed reports whether the PR base ref matches the configured
// allowed-target-branches pattern. An empty pattern allows everything.
func (b *BotConfig) TargetBranchAllowed(ref string) bool {
	if b.AllowedTargetBranches == "" {
		return true
	}
	re, err := regexp.Compile("^(" + b.AllowedTargetBranches + ")$")
	if err != nil {
		// An invalid pattern is reported by validation; fail open here
		return true
	}
	return re.MatchString(ref)
}
