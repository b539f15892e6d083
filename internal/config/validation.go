// Package config provides configuration management for the application.
// This file contains configuration validation performed at startup.
package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/openjdk/jmerge/pkg/errors"
)

// Validate checks the configuration for fatal problems. It returns an
// AppError describing the first problem found, or nil.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("server port %d out of range", c.Server.Port))
	}

	if c.Engine.MaxWorkers <= 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "engine.max_workers must be positive")
	}
	if c.Engine.ItemTimeout <= 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "engine.item_timeout must be positive")
	}

	if len(c.Bots) == 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "no bots configured")
	}

	seen := make(map[string]bool)
	for i := range c.Bots {
		if err := c.validateBot(&c.Bots[i], seen); err != nil {
			return err
		}
	}

	return nil
}

// validateBot checks a single bot section
func (c *Config) validateBot(b *BotConfig, seen map[string]bool) error {
	if b.Repo == "" {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("bot %q has no repository", b.Name))
	}
	if !strings.Contains(b.Repo, "/") {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("bot %q repository %q is not owner/name", b.Name, b.Repo))
	}
	if seen[b.Name] {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("duplicate bot name %q", b.Name))
	}
	seen[b.Name] = true

	if c.GetForge(b.Forge) == nil {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("bot %q references unconfigured forge %q", b.Name, b.Forge))
	}

	switch b.ReviewMerge {
	case ReviewMergeNever, ReviewMergeAlways, ReviewMergeByConfig:
	default:
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("bot %q has invalid review_merge %q", b.Name, b.ReviewMerge))
	}

	if b.AllowedTargetBranches != "" {
		if _, err := regexp.Compile(b.AllowedTargetBranches); err != nil {
			return errors.Wrap(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("bot %q allowed_target_branches pattern", b.Name), err)
		}
	}

	if b.IssueProject != "" && c.Tracker.URL == "" {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("bot %q sets issue_project but no tracker is configured", b.Name))
	}

	if b.Approval != nil {
		if b.Approval.Prefix == "" {
			return errors.New(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("bot %q approval section needs a prefix", b.Name))
		}
		if b.Approval.Label == "" {
			return errors.New(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("bot %q approval section needs a label", b.Name))
		}
	}

	for repo, fork := range b.Forks {
		if !strings.Contains(repo, "/") || !strings.Contains(fork, "/") {
			return errors.New(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("bot %q forks entry %q -> %q is not owner/name", b.Name, repo, fork))
		}
	}

	if b.CheckSummaryCap != 0 && b.CheckSummaryCap < 16 {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("bot %q check_summary_cap %d is too small (minimum 16)", b.Name, b.CheckSummaryCap))
	}

	for _, rc := range b.ReadyComments {
		if _, err := regexp.Compile(rc.Pattern); err != nil {
			return errors.Wrap(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("bot %q ready_comments pattern for user %q", b.Name, rc.User), err)
		}
	}

	return nil
}
