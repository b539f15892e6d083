package check

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/fatih/color"

	"github.com/openjdk/jmerge/internal/config"
)

// ValidationResult represents the result of a single validation step
type ValidationResult struct {
	Path     string
	Valid    bool
	Error    error
	Warnings []string
	// BotCount is the number of configured bots, for the summary line
	BotCount int
}

// validateConfig validates the configuration file and records the result
func (c *Checker) validateConfig() {
	_, result := c.validateConfigYaml()
	c.report.AddValidationResult(result)
	printValidationStatus(result)
}

// validateConfigYaml loads and validates the configuration file
func (c *Checker) validateConfigYaml() (*config.Config, ValidationResult) {
	result := ValidationResult{Path: c.ConfigPath()}

	cfg, err := config.Load(c.ConfigPath())
	if err != nil {
		result.Error = err
		return nil, result
	}
	if err := cfg.Validate(); err != nil {
		result.Error = err
		return cfg, result
	}

	result.Valid = true
	result.BotCount = len(cfg.Bots)
	result.Warnings = credentialWarnings(cfg)
	return cfg, result
}

// credentialWarnings flags empty credentials. Tokens are routinely
// injected via ${ENV} expansion, so these never block startup.
func credentialWarnings(cfg *config.Config) []string {
	var warnings []string
	for _, f := range cfg.Forges {
		if f.Token == "" {
			warnings = append(warnings,
				fmt.Sprintf("Forge %q has no token configured", f.Type))
		}
	}
	if cfg.Tracker.Type != "" && cfg.Tracker.Token == "" {
		warnings = append(warnings, "Issue tracker has no token configured")
	}
	return warnings
}

// checkEnvironment runs the host environment checks and records them
func (c *Checker) checkEnvironment() {
	cfg, _ := c.validateConfigYaml()
	for _, result := range c.environmentResults(cfg) {
		c.report.AddValidationResult(result)
		printValidationStatus(result)
	}
}

// environmentResults probes the host: git availability and workspace
// writability. cfg may be nil when the configuration did not load.
func (c *Checker) environmentResults(cfg *config.Config) []ValidationResult {
	results := []ValidationResult{checkGitBinary()}
	if cfg != nil {
		results = append(results, checkWorkspace(cfg.Engine.Workspace))
	}
	return results
}

// checkGitBinary verifies that git is installed and on the PATH
func checkGitBinary() ValidationResult {
	result := ValidationResult{Path: "git"}

	gitPath, err := exec.LookPath("git")
	if err != nil {
		result.Error = fmt.Errorf("git not found in PATH (required for mergeability probing)")
		return result
	}

	result.Valid = true
	result.Path = gitPath
	return result
}

// checkWorkspace verifies the scratch area root is writable
func checkWorkspace(workspace string) ValidationResult {
	result := ValidationResult{Path: workspace}

	if workspace == "" {
		result.Error = fmt.Errorf("engine workspace is not configured")
		return result
	}
	if err := os.MkdirAll(workspace, 0755); err != nil {
		result.Error = fmt.Errorf("cannot create workspace: %w", err)
		return result
	}

	probe := filepath.Join(workspace, ".jmerge-write-check")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		result.Error = fmt.Errorf("workspace is not writable: %w", err)
		return result
	}
	_ = os.Remove(probe)

	result.Valid = true
	return result
}

// printValidationStatus prints a single validation result
func printValidationStatus(result ValidationResult) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	if result.Valid {
		if result.BotCount > 0 {
			green.Printf("  ✓ %s (%d bot(s))\n", result.Path, result.BotCount)
		} else {
			green.Printf("  ✓ %s\n", result.Path)
		}
	} else {
		red.Printf("  ✗ %s: %v\n", result.Path, result.Error)
	}

	for _, warning := range result.Warnings {
		yellow.Printf("    └─ %s\n", warning)
	}
}
