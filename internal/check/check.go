// Package check provides interactive environment checking and
// initialization. It helps users set up a local jmerge configuration
// before starting the server.
package check

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
)

// CheckResult represents the result of a non-interactive environment check
type CheckResult struct {
	// Success indicates whether all required checks passed
	Success bool
	// Errors contains critical errors that prevent server startup
	Errors []string
	// Warnings contains non-critical issues that don't block startup
	Warnings []string
	// Suggestions contains helpful tips for fixing issues
	Suggestions []string
}

// Checker handles environment checking and initialization
type Checker struct {
	// configDir is the base directory for configuration files
	configDir string
	// report collects check results for final output
	report *Report
	// theme for consistent styling
	theme *huh.Theme
}

// NewChecker creates a new environment checker
func NewChecker() *Checker {
	return &Checker{
		configDir: "config",
		report:    NewReport(),
		theme:     huh.ThemeCharm(),
	}
}

// ConfigPath returns the path to the configuration file
func (c *Checker) ConfigPath() string {
	return filepath.Join(c.configDir, "config.yaml")
}

// Run executes the full interactive environment check
func (c *Checker) Run() error {
	c.printHeader()

	fmt.Println()
	printSection("Checking configuration files")
	if err := c.checkFiles(); err != nil {
		return fmt.Errorf("file check failed: %w", err)
	}

	fmt.Println()
	printSection("Validating configuration")
	c.validateConfig()

	fmt.Println()
	printSection("Checking environment")
	c.checkEnvironment()

	fmt.Println()
	c.report.Print()

	return nil
}

// printHeader prints the welcome header
func (c *Checker) printHeader() {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		MarginBottom(1)

	fmt.Println(titleStyle.Render("🔍 jmerge Environment Check"))
}

// printSection prints a section header
func printSection(title string) {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("15"))
	fmt.Println(style.Render(title + "..."))
}

// confirmCreate asks user to confirm file creation
func confirmCreate(path string) (bool, error) {
	var confirm bool
	err := huh.NewConfirm().
		Title(fmt.Sprintf("Create %s from template?", path)).
		Affirmative("Yes").
		Negative("No").
		Value(&confirm).
		Run()
	if err != nil {
		return false, err
	}
	return confirm, nil
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ensureDir creates the parent directory if it doesn't exist
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// RunNonInteractive performs a non-interactive environment check.
// Unlike Run(), this method does not prompt for user input and does not
// create files. It returns a CheckResult with errors, warnings, and
// suggestions.
func (c *Checker) RunNonInteractive() *CheckResult {
	result := &CheckResult{
		Success:     true,
		Errors:      make([]string, 0),
		Warnings:    make([]string, 0),
		Suggestions: make([]string, 0),
	}

	if !fileExists(c.ConfigPath()) {
		result.Success = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("Configuration not found: %s", c.ConfigPath()))
		result.Suggestions = append(result.Suggestions,
			"Run 'jmerge check' to interactively create the configuration file")
		return result
	}

	cfg, vr := c.validateConfigYaml()
	if !vr.Valid {
		result.Success = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("Invalid %s: %v", c.ConfigPath(), vr.Error))
		return result
	}
	result.Warnings = append(result.Warnings, vr.Warnings...)

	for _, ev := range c.environmentResults(cfg) {
		if !ev.Valid {
			result.Success = false
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", ev.Path, ev.Error))
		}
		result.Warnings = append(result.Warnings, ev.Warnings...)
	}

	return result
}

// PrintCheckResult prints the check result in a formatted way
func PrintCheckResult(result *CheckResult) {
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	if len(result.Errors) > 0 {
		fmt.Println()
		red.Println("[ERROR] Environment check failed")
		fmt.Println()
		for _, err := range result.Errors {
			red.Printf("  ✗ %s\n", err)
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Println()
		yellow.Println("[WARNING] Configuration warnings:")
		fmt.Println()
		for _, warn := range result.Warnings {
			yellow.Printf("  ⚠ %s\n", warn)
		}
	}

	if len(result.Suggestions) > 0 {
		cyan.Println("\nTo fix these issues:")
		for _, suggestion := range result.Suggestions {
			fmt.Printf("  → %s\n", suggestion)
		}
	}

	fmt.Println()
}
