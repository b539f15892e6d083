package bot

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openjdk/jmerge/consts"
	"github.com/openjdk/jmerge/internal/forge"
	"github.com/openjdk/jmerge/pkg/errors"
	"github.com/openjdk/jmerge/pkg/telemetry"
)

// reconcile diffs the desired state against the observed forge state
// and applies the minimal set of mutations. Running it twice with no
// external change produces no mutations on the second run.
func (b *Bot) reconcile(ctx context.Context, pr *forge.PullRequest, desired *DesiredState, comments []*forge.Comment) error {
	if desired.Title != "" && desired.Title != pr.Title {
		if err := b.mutate(ctx, "setTitle", func() error {
			return b.forge.SetTitle(ctx, pr.Repo, pr.Number, desired.Title)
		}); err != nil {
			return err
		}
	}

	if err := b.reconcileLabels(ctx, pr, desired.Labels); err != nil {
		return err
	}
	if err := b.reconcileBody(ctx, pr, desired.Body); err != nil {
		return err
	}
	if err := b.reconcileCheck(ctx, pr, desired.Check); err != nil {
		return err
	}
	return b.reconcileComments(ctx, pr, desired.Comments, comments)
}

func (b *Bot) reconcileLabels(ctx context.Context, pr *forge.PullRequest, labels map[string]bool) error {
	for label, want := range labels {
		has := pr.HasLabel(label)
		switch {
		case want && !has:
			if err := b.mutate(ctx, "addLabel", func() error {
				return b.forge.AddLabel(ctx, pr.Repo, pr.Number, label)
			}); err != nil {
				return err
			}
		case !want && has:
			if err := b.mutate(ctx, "removeLabel", func() error {
				return b.forge.RemoveLabel(ctx, pr.Repo, pr.Number, label)
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Bot) reconcileBody(ctx context.Context, pr *forge.PullRequest, body string) error {
	if body == "" || normalizeBody(pr.Body) == normalizeBody(body) {
		return nil
	}
	return b.mutate(ctx, "setBody", func() error {
		return b.forge.SetBody(ctx, pr.Repo, pr.Number, body)
	})
}

// normalizeBody flattens line-ending and trailing-space differences so
// a forge that rewrites whitespace does not cause endless updates.
func normalizeBody(body string) string {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

func (b *Bot) reconcileCheck(ctx context.Context, pr *forge.PullRequest, desired forge.Check) error {
	if desired.Status == "" {
		return nil
	}
	checks, err := b.forge.ListChecks(ctx, pr.Repo, pr.HeadHash)
	if err != nil {
		return err
	}
	var existing *forge.Check
	for _, c := range checks {
		if c.Name == consts.CheckName {
			existing = c
			break
		}
	}

	if existing == nil {
		return b.mutate(ctx, "createCheck", func() error {
			_, err := b.forge.CreateCheck(ctx, pr.Repo, pr.HeadHash, &desired)
			return err
		})
	}
	if existing.Status == desired.Status &&
		existing.Summary == desired.Summary &&
		(existing.Metadata == desired.Metadata || existing.Metadata == "") {
		return nil
	}
	desired.ID = existing.ID
	return b.mutate(ctx, "updateCheck", func() error {
		return b.forge.UpdateCheck(ctx, pr.Repo, pr.HeadHash, &desired)
	})
}

func (b *Bot) reconcileComments(ctx context.Context, pr *forge.PullRequest, outbound []OutboundComment, comments []*forge.Comment) error {
	idx := buildMarkerIndex(comments, b.botUser)
	for _, oc := range outbound {
		existing := idx[oc.Marker]
		body := oc.Body + "\n" + oc.Marker

		if existing == nil {
			if err := b.mutate(ctx, "addComment", func() error {
				_, err := b.forge.AddComment(ctx, pr.Repo, pr.Number, body)
				return err
			}); err != nil {
				return err
			}
			continue
		}
		if oc.OneShot || normalizeBody(existing.Body) == normalizeBody(body) {
			continue
		}
		if err := b.mutate(ctx, "updateComment", func() error {
			return b.forge.UpdateComment(ctx, pr.Repo, pr.Number, existing.ID, body)
		}); err != nil {
			return err
		}
	}
	return nil
}

// mutate applies a forge mutation with bounded retries and exponential
// backoff on transient failures.
func (b *Bot) mutate(ctx context.Context, kind string, fn func() error) error {
	delay := b.retryDelay
	var err error
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		err = fn()
		telemetry.GetMetrics().RecordForgeMutation(ctx, kind, err == nil)
		if err == nil {
			return nil
		}
		b.log.Warn("Forge mutation failed",
			zap.String("kind", kind),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return errors.Wrap(errors.ErrCodeForgeMutation, "mutation "+kind+" failed", err)
}
