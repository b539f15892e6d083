package bot

import (
	"context"
	"fmt"

	"github.com/openjdk/jmerge/internal/forge"
	"github.com/openjdk/jmerge/internal/jcheck"
	"github.com/openjdk/jmerge/pkg/errors"
)

// ConfSource describes where an effective jcheck configuration came from.
type ConfSource struct {
	// Override is true when the configuration was loaded from the
	// configured override repository instead of the target branch.
	Override bool
	Repo     string
	Ref      string
	Path     string
}

func (s ConfSource) String() string {
	if s.Override {
		return fmt.Sprintf("%s:%s:%s", s.Repo, s.Ref, s.Path)
	}
	return fmt.Sprintf("%s@%s", s.Path, s.Ref)
}

// Resolution is the outcome of locating the jcheck configuration for a
// pull request.
type Resolution struct {
	Conf   *jcheck.Conf
	Source ConfSource
	// Missing is set when no configuration exists at the source.
	Missing bool
	// Invalid carries the parse diagnostic when the blob exists but
	// cannot be parsed.
	Invalid string
}

// Ok reports whether a usable configuration was resolved.
func (r *Resolution) Ok() bool {
	return r.Conf != nil
}

// resolveConf locates the effective jcheck configuration for a PR.
// When an override repository is configured it is authoritative: a
// failure to fetch it is fatal for the PR and never falls back to the
// target branch configuration.
func (b *Bot) resolveConf(ctx context.Context, pr *forge.PullRequest) (*Resolution, error) {
	source := ConfSource{Path: jcheck.ConfPath, Ref: pr.TargetRef}
	repo := pr.Repo
	if b.cfg.ConfOverrideRepo != "" {
		source = ConfSource{
			Override: true,
			Repo:     b.cfg.ConfOverrideRepo,
			Ref:      b.cfg.ConfOverrideRef,
			Path:     b.cfg.ConfOverrideName,
		}
		if source.Path == "" {
			source.Path = jcheck.ConfPath
		}
		if source.Ref == "" {
			source.Ref = "master"
		}
		var err error
		repo, err = forge.ParseRepo(b.cfg.ConfOverrideRepo)
		if err != nil {
			return &Resolution{Source: source, Invalid: err.Error()}, nil
		}
	}

	data, err := b.forge.FileContents(ctx, repo, source.Path, source.Ref)
	if err != nil {
		if forge.IsNotFound(err) {
			return &Resolution{Source: source, Missing: true}, nil
		}
		// Transient fetch failure: the caller retries the work item.
		return nil, errors.Wrap(errors.ErrCodeConfigNotFound, "fetching jcheck configuration", err)
	}
	if len(data) == 0 {
		return &Resolution{Source: source, Missing: true}, nil
	}

	conf, err := jcheck.ParseConf(data)
	if err != nil {
		return &Resolution{Source: source, Invalid: err.Error()}, nil
	}
	return &Resolution{Conf: conf, Source: source}, nil
}

// sourceConf loads the configuration as modified by the PR itself, for
// the advisory second jcheck pass. Returns nil when the PR head has no
// parseable configuration.
func (b *Bot) sourceConf(ctx context.Context, pr *forge.PullRequest) (*jcheck.Conf, error) {
	data, err := b.forge.FileContents(ctx, pr.Repo, jcheck.ConfPath, pr.HeadHash)
	if err != nil {
		if forge.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	return jcheck.ParseConf(data)
}
