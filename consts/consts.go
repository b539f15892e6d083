// Package consts defines cross-module constants used throughout the application.
package consts

import (
	"sync"
	"time"
)

// ServiceName is the application service name
const ServiceName = "jmerge"

// Project information constants
const (
	// ProjectName is the display name of the project
	ProjectName = "Jmerge"

	// ProjectURL is the repository URL
	ProjectURL = "https://github.com/openjdk/jmerge"
)

// Label vocabulary written by the bot. These names are shared between the
// state projector, the reconciler and the forge adapters.
const (
	LabelRFR           = "rfr"
	LabelReady         = "ready"
	LabelMergeConflict = "merge-conflict"
	LabelClean         = "clean"
	LabelBackport      = "backport"
	LabelJEP           = "jep"
	LabelSponsor       = "sponsor"
	LabelIntegrated    = "integrated"
	LabelBlock         = "block"
)

// CheckName is the name of the single status check the bot maintains.
const CheckName = "jcheck"

// DefaultCheckSummaryCap is the default byte cap for the status-check
// summary. Forges differ; 65000 is the smallest commonly supported.
const DefaultCheckSummaryCap = 65000

// BodyAutoMarker separates user-authored prose from bot-maintained body
// sections. Everything below the marker is rewritten on each run.
const BodyAutoMarker = "<!-- Anything below this marker will be automatically updated -->"

// Build information - set via ldflags during build or programmatically
var (
	// Version is the application version
	Version = "dev"

	// BuildTime is the build timestamp
	BuildTime = "unknown"

	// GitCommit is the git commit hash
	GitCommit = "unknown"
)

// Server runtime information
var (
	startedAt   time.Time
	startedOnce sync.Once
)

// SetStartedAt records the server start time (can only be called once)
func SetStartedAt(t time.Time) {
	startedOnce.Do(func() {
		startedAt = t
	})
}

// GetStartedAt returns the server start time
func GetStartedAt() time.Time {
	return startedAt
}

// GetUptime returns the duration since server started
func GetUptime() time.Duration {
	if startedAt.IsZero() {
		return 0
	}
	return time.Since(startedAt)
}
