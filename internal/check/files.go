package check

import (
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/openjdk/jmerge/internal/configfiles"
)

// FileCheckResult represents the result of a file check
type FileCheckResult struct {
	Path        string
	Exists      bool
	Created     bool
	Description string
	Error       error
}

// checkFiles checks the configuration file, offering to create it from
// the embedded template when missing.
func (c *Checker) checkFiles() error {
	result := c.checkConfigFile()
	c.report.AddFileResult(result)
	return result.Error
}

func (c *Checker) checkConfigFile() FileCheckResult {
	result := FileCheckResult{
		Path:        c.ConfigPath(),
		Description: "jmerge configuration file (server, forges, tracker, bots)",
	}

	if fileExists(result.Path) {
		result.Exists = true
		printFileStatus(result.Path, true, false)
		return result
	}

	result.Exists = false
	printFileStatus(result.Path, false, false)

	confirm, err := confirmCreate(result.Path)
	if err != nil {
		result.Error = fmt.Errorf("failed to get user confirmation: %w", err)
		return result
	}
	if !confirm {
		return result
	}

	content, err := configfiles.GetConfigExample()
	if err != nil {
		result.Error = fmt.Errorf("failed to get template: %w", err)
		return result
	}
	if err := ensureDir(result.Path); err != nil {
		result.Error = err
		return result
	}
	if err := os.WriteFile(result.Path, content, 0644); err != nil {
		result.Error = fmt.Errorf("failed to create file %s: %w", result.Path, err)
		return result
	}

	result.Created = true
	printFileCreated(result.Path)

	return result
}

// printFileStatus prints the status of a file check
func printFileStatus(path string, exists bool, created bool) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	if exists {
		green.Printf("  ✓ %s\n", path)
	} else if created {
		green.Printf("  ✓ %s (created)\n", path)
	} else {
		yellow.Printf("  ⚠ %s does not exist\n", path)
	}
}

// printFileCreated prints a message when a file is created
func printFileCreated(path string) {
	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created %s\n", path)
}
