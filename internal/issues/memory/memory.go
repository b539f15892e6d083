// Package memory provides an in-memory issue tracker for tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/openjdk/jmerge/internal/issues"
	"github.com/openjdk/jmerge/pkg/errors"
)

// Tracker is an in-memory issues.Tracker.
type Tracker struct {
	mu       sync.Mutex
	byKey    map[string]*issues.Issue
	comments map[string][]string
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		byKey:    make(map[string]*issues.Issue),
		comments: make(map[string][]string),
	}
}

// AddIssue seeds an issue. Open defaults to true unless a resolution
// is set.
func (t *Tracker) AddIssue(issue *issues.Issue) *issues.Issue {
	t.mu.Lock()
	defer t.mu.Unlock()

	if issue.Properties == nil {
		issue.Properties = make(map[string]string)
	}
	if issue.Resolution == "" && issue.Status == "" {
		issue.Open = true
		issue.Status = "Open"
	}
	t.byKey[issue.Key] = issue
	return issue
}

// Comments returns the comments added to the issue.
func (t *Tracker) Comments(key string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.comments[key]))
	copy(out, t.comments[key])
	return out
}

func (t *Tracker) get(key string) (*issues.Issue, error) {
	issue, ok := t.byKey[key]
	if !ok {
		return nil, errors.New(errors.ErrCodeIssueNotFound, fmt.Sprintf("issue %s not found", key))
	}
	return issue, nil
}

func (t *Tracker) GetIssue(ctx context.Context, key string) (*issues.Issue, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	issue, err := t.get(key)
	if err != nil {
		return nil, err
	}
	copied := *issue
	copied.FixVersions = append([]string(nil), issue.FixVersions...)
	copied.Labels = append([]string(nil), issue.Labels...)
	copied.Links = append([]issues.Link(nil), issue.Links...)
	return &copied, nil
}

func (t *Tracker) SetTitle(ctx context.Context, key, title string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	issue, err := t.get(key)
	if err != nil {
		return err
	}
	issue.Title = title
	return nil
}

func (t *Tracker) SetState(ctx context.Context, key, status string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	issue, err := t.get(key)
	if err != nil {
		return err
	}
	issue.Status = status
	issue.Open = status != "Closed" && status != "Resolved"
	return nil
}

func (t *Tracker) SetProperty(ctx context.Context, key, name, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	issue, err := t.get(key)
	if err != nil {
		return err
	}
	if name == "fixVersions" {
		issue.FixVersions = append(issue.FixVersions, value)
		return nil
	}
	issue.Properties[name] = value
	return nil
}

func (t *Tracker) AddLabel(ctx context.Context, key, label string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	issue, err := t.get(key)
	if err != nil {
		return err
	}
	for _, l := range issue.Labels {
		if l == label {
			return nil
		}
	}
	issue.Labels = append(issue.Labels, label)
	return nil
}

func (t *Tracker) RemoveLabel(ctx context.Context, key, label string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	issue, err := t.get(key)
	if err != nil {
		return err
	}
	for i, l := range issue.Labels {
		if l == label {
			issue.Labels = append(issue.Labels[:i], issue.Labels[i+1:]...)
			return nil
		}
	}
	return nil
}

func (t *Tracker) AddComment(ctx context.Context, key, body string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.get(key); err != nil {
		return err
	}
	t.comments[key] = append(t.comments[key], body)
	return nil
}

func (t *Tracker) AddLink(ctx context.Context, key string, link issues.Link) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	issue, err := t.get(key)
	if err != nil {
		return err
	}
	issue.Links = append(issue.Links, link)
	return nil
}

var _ issues.Tracker = (*Tracker)(nil)
