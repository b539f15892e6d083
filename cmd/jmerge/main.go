// Package main is the entry point for the jmerge application.
// jmerge is a pull request review bot for OpenJDK-style projects: it
// tracks open pull requests on a forge, evaluates review state and
// jcheck rules, bridges issue tracker metadata, and serializes all
// work per pull request.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openjdk/jmerge/consts"
	"github.com/openjdk/jmerge/internal/bot"
	"github.com/openjdk/jmerge/internal/census"
	"github.com/openjdk/jmerge/internal/check"
	"github.com/openjdk/jmerge/internal/config"
	"github.com/openjdk/jmerge/internal/database"
	"github.com/openjdk/jmerge/internal/engine"
	"github.com/openjdk/jmerge/internal/forge"
	"github.com/openjdk/jmerge/internal/issues"
	"github.com/openjdk/jmerge/internal/issues/jira"
	"github.com/openjdk/jmerge/internal/scheduler"
	"github.com/openjdk/jmerge/internal/server"
	"github.com/openjdk/jmerge/internal/store"
	"github.com/openjdk/jmerge/internal/vcs"
	"github.com/openjdk/jmerge/pkg/errors"
	"github.com/openjdk/jmerge/pkg/logger"
	"github.com/openjdk/jmerge/pkg/telemetry"

	// Import forge adapter implementations to register them
	// All adapters are registered through the forges package
	_ "github.com/openjdk/jmerge/internal/forge/forges"
)

// Build information - set via ldflags during build
// These variables are linked to consts package for global access
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// init synchronizes build info to consts package for global access
func init() {
	consts.Version = Version
	consts.BuildTime = BuildTime
	consts.GitCommit = GitCommit
}

// defaultConfigPath is where the serve and check commands look for the
// configuration file unless --config overrides it.
const defaultConfigPath = "config/config.yaml"

// configPath holds the path to the configuration file
var configPath string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "jmerge",
	Short: "jmerge - Pull Request Review Bot",
	Long: `jmerge is a pull request review bot. It polls configured repositories,
evaluates each open pull request against jcheck rules and census roles,
maintains the review progress body and labels, handles pull request
commands, and keeps issue tracker links in sync.`,
}

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the jmerge server",
	Long: `Start the review bots, the poll scheduler, and the HTTP status server.

On first run, use 'jmerge check' to interactively set up your environment:
  jmerge check

This will guide you through:
  - Creating the configuration file from the embedded template
  - Validating configuration and host environment

After initial setup, simply run:
  jmerge serve`,
	Run: runServe,
}

// checkCmd represents the interactive environment check
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Interactively check and initialize the environment",
	Run: func(cmd *cobra.Command, args []string) {
		checker := check.NewChecker()
		if err := checker.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Environment check failed: %v\n", err)
			os.Exit(1)
		}
	},
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("jmerge %s\n", Version)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
	},
}

func init() {
	// Disable auto-generated completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "configuration file path")

	// Add commands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)

	// Serve command flags
	serveCmd.Flags().String("host", "", "server host (overrides config)")
	serveCmd.Flags().Int("port", 0, "server port (overrides config)")
	serveCmd.Flags().Bool("debug", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runServe starts the jmerge server
func runServe(cmd *cobra.Command, args []string) {
	// Run non-interactive basic check against the default layout. A
	// custom --config path is validated by config.Load below instead.
	if configPath == defaultConfigPath {
		checker := check.NewChecker()
		result := checker.RunNonInteractive()

		if !result.Success {
			check.PrintCheckResult(result)
			os.Exit(1)
		}

		// Print warnings if any (but don't block startup)
		for _, warn := range result.Warnings {
			fmt.Fprintf(os.Stderr, "[WARNING] %s\n", warn)
		}
		if len(result.Warnings) > 0 {
			fmt.Fprintln(os.Stderr)
		}
	}

	// Record server start time
	consts.SetStartedAt(time.Now())

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration validation failed: %v\n", err)
		os.Exit(errors.ExitCodeConfigValidation)
	}

	// Override config with command line flags
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Server.Debug = true
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "text"
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting jmerge",
		zap.String("version", Version),
		zap.Int("bots", len(cfg.Bots)),
	)

	// Initialize telemetry (OpenTelemetry traces and metrics)
	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		// Graceful shutdown with timeout
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			logger.Error("Failed to shutdown telemetry", zap.Error(err))
		}
	}()

	// Initialize database
	if err := database.Init(); err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer database.Close()

	// Create store instance for dependency injection
	dataStore := store.NewStore(database.Get())

	// Build one bot per configured repository
	bots, err := buildBots(cfg, dataStore)
	if err != nil {
		logger.Fatal("Failed to build bots", zap.Error(err))
	}

	// Create and start the work engine
	eng := engine.New(cfg.Engine, bots, dataStore)
	eng.Start(context.Background())
	defer eng.Stop()

	// Start the poll scheduler
	sched := scheduler.New(cfg.Scheduler, eng, dataStore)
	if err := sched.Start(context.Background()); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	// Create and configure server
	srv := server.New(cfg, eng, dataStore)
	srv.SetupRoutes()

	// Start server
	if err := srv.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	logger.Info("jmerge server is running",
		zap.String("address", cfg.Server.Address()),
	)

	// Log access URLs for user convenience
	port := cfg.Server.Port
	logger.Info(fmt.Sprintf("  Local:   http://localhost:%d/api/v1/bots", port))
	if lanIP := getLocalIP(); lanIP != "" {
		logger.Info(fmt.Sprintf("  Network: http://%s:%d/api/v1/bots", lanIP, port))
	}

	// Wait for shutdown
	srv.WaitForShutdown()

	logger.Info("jmerge stopped")
}

// buildBots wires a Bot for every configured repository: its forge
// adapter, issue tracker, census store, and mergeability prober.
func buildBots(cfg *config.Config, dataStore store.Store) ([]*bot.Bot, error) {
	tracker, err := buildTracker(cfg)
	if err != nil {
		return nil, err
	}

	// All bots share one scratch area root; the scratch serializes
	// checkouts per repository internally.
	scratch := vcs.NewScratch(cfg.Engine.Workspace)

	bots := make([]*bot.Bot, 0, len(cfg.Bots))
	for i := range cfg.Bots {
		bc := &cfg.Bots[i]

		fc := cfg.GetForge(bc.Forge)
		if fc == nil {
			return nil, fmt.Errorf("bot %q references unconfigured forge %q", bc.Name, bc.Forge)
		}
		f, err := forge.Create(fc.Type, &forge.Options{
			Token:              fc.Token,
			BaseURL:            fc.URL,
			BotUser:            fc.BotUser,
			InsecureSkipVerify: fc.InsecureSkipVerify,
		})
		if err != nil {
			return nil, fmt.Errorf("bot %q: %w", bc.Name, err)
		}

		censusStore, err := buildCensusStore(bc, f)
		if err != nil {
			return nil, fmt.Errorf("bot %q: %w", bc.Name, err)
		}

		// A bot may root its clones in a dedicated seed directory
		// instead of the shared engine workspace.
		area := scratch
		if bc.SeedStorage != "" {
			area = vcs.NewScratch(bc.SeedStorage)
		}

		prober := bot.NewGitProber(&bot.Scratch{
			Area:  area,
			Forge: f,
			Opts: &vcs.FetchOptions{
				Token:              fc.Token,
				InsecureSkipVerify: fc.InsecureSkipVerify,
			},
		})

		b, err := bot.New(&bot.Options{
			Config:      bc,
			Forge:       f,
			Tracker:     tracker,
			CensusStore: censusStore,
			Store:       dataStore,
			Prober:      prober,
			BotUser:     fc.BotUser,
			TrackerURL:  cfg.Tracker.URL,
			MaxRetries:  cfg.Engine.MaxRetries,
			RetryDelay:  time.Duration(cfg.Engine.RetryDelay) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("bot %q: %w", bc.Name, err)
		}
		bots = append(bots, b)
	}
	return bots, nil
}

// buildTracker creates the issue tracker client, or nil when no tracker
// is configured. Bots without a tracker skip issue bridging.
func buildTracker(cfg *config.Config) (issues.Tracker, error) {
	switch cfg.Tracker.Type {
	case "":
		return nil, nil
	case "jira":
		return jira.New(jira.Config{
			BaseURL: cfg.Tracker.URL,
			User:    cfg.Tracker.User,
			Token:   cfg.Tracker.Token,
		})
	default:
		return nil, fmt.Errorf("unsupported tracker type %q", cfg.Tracker.Type)
	}
}

// buildCensusStore resolves the census source for a bot: a census
// repository on the bot's forge when configured, otherwise an empty
// static census (no one holds a role until a census is supplied).
func buildCensusStore(bc *config.BotConfig, f forge.Forge) (census.Store, error) {
	if bc.CensusRepo == "" {
		return census.NewStaticStore(census.NewBuilder(bc.IssueProject).Build()), nil
	}
	repo, err := forge.ParseRepo(bc.CensusRepo)
	if err != nil {
		return nil, fmt.Errorf("census repository: %w", err)
	}
	return census.NewForgeStore(f, repo, bc.CensusRef, bc.IssueProject), nil
}

// getLocalIP returns the first non-loopback IPv4 address
func getLocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}
	return ""
}
