// Package jira implements the issue-tracker interface against Jira.
package jira

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	v3 "github.com/ctreminiom/go-atlassian/v2/jira/v3"
	"github.com/ctreminiom/go-atlassian/v2/pkg/infra/models"

	"github.com/openjdk/jmerge/internal/issues"
	"github.com/openjdk/jmerge/pkg/errors"
)

// Config holds the Jira connection settings.
type Config struct {
	// BaseURL is the Jira instance URL.
	BaseURL string
	// User is the account email for basic auth.
	User string
	// Token is the API token for basic auth.
	Token string
}

// Tracker wraps the go-atlassian v3 client behind the issues.Tracker
// contract.
type Tracker struct {
	client *v3.Client
}

// issueFields are the Jira fields fetched for every issue lookup.
var issueFields = []string{
	"summary",
	"issuetype",
	"status",
	"priority",
	"resolution",
	"fixVersions",
	"labels",
	"issuelinks",
}

// New creates a Jira tracker from the given configuration.
func New(cfg Config) (*Tracker, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "jira base URL is required")
	}

	client, err := v3.New(&http.Client{Timeout: 30 * time.Second}, strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeTrackerQuery, "failed to create jira client", err)
	}
	client.Auth.SetBasicAuth(cfg.User, cfg.Token)
	client.Auth.SetUserAgent("jmerge/1.0")

	return &Tracker{client: client}, nil
}

// CheckAuth verifies the client can authenticate.
func (t *Tracker) CheckAuth(ctx context.Context) error {
	_, resp, err := t.client.MySelf.Details(ctx, nil)
	if err != nil {
		if resp != nil {
			return errors.Wrap(errors.ErrCodeTrackerQuery,
				fmt.Sprintf("jira auth check failed with status %d", resp.StatusCode), err)
		}
		return errors.Wrap(errors.ErrCodeTrackerQuery, "jira auth check failed", err)
	}
	return nil
}

// GetIssue fetches an issue by full key.
func (t *Tracker) GetIssue(ctx context.Context, key string) (*issues.Issue, error) {
	issue, resp, err := t.client.Issue.Get(ctx, key, issueFields, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, errors.Wrap(errors.ErrCodeIssueNotFound, fmt.Sprintf("issue %s not found", key), err)
		}
		return nil, errors.Wrap(errors.ErrCodeTrackerQuery, fmt.Sprintf("failed to get issue %s", key), err)
	}
	return convertIssue(issue), nil
}

func convertIssue(issue *models.IssueScheme) *issues.Issue {
	out := &issues.Issue{
		Key:        issue.Key,
		Open:       true,
		Properties: make(map[string]string),
	}
	f := issue.Fields
	if f == nil {
		return out
	}

	out.Title = f.Summary
	out.Labels = f.Labels
	if f.IssueType != nil {
		out.Type = f.IssueType.Name
	}
	if f.Status != nil {
		out.Status = f.Status.Name
		if f.Status.StatusCategory != nil {
			out.Open = f.Status.StatusCategory.Key != "done"
		}
	}
	if f.Priority != nil {
		out.Priority = f.Priority.Name
	}
	if f.Resolution != nil {
		out.Resolution = f.Resolution.Name
		out.Open = false
	}
	for _, v := range f.FixVersions {
		if v != nil {
			out.FixVersions = append(out.FixVersions, v.Name)
		}
	}
	for _, link := range f.IssueLinks {
		if link == nil || link.Type == nil {
			continue
		}
		if link.OutwardIssue != nil {
			out.Links = append(out.Links, issues.Link{
				Type: link.Type.Outward,
				Key:  link.OutwardIssue.Key,
			})
		}
		if link.InwardIssue != nil {
			out.Links = append(out.Links, issues.Link{
				Type: link.Type.Inward,
				Key:  link.InwardIssue.Key,
			})
		}
	}
	return out
}

// SetTitle updates the issue summary.
func (t *Tracker) SetTitle(ctx context.Context, key, title string) error {
	payload := &models.IssueScheme{
		Fields: &models.IssueFieldsScheme{Summary: title},
	}
	_, err := t.client.Issue.Update(ctx, key, true, payload, nil, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeTrackerQuery, fmt.Sprintf("failed to set title on %s", key), err)
	}
	return nil
}

// SetState transitions the issue to the named workflow status by
// resolving the matching transition id.
func (t *Tracker) SetState(ctx context.Context, key, status string) error {
	transitions, _, err := t.client.Issue.Transitions(ctx, key)
	if err != nil {
		return errors.Wrap(errors.ErrCodeTrackerQuery, fmt.Sprintf("failed to list transitions on %s", key), err)
	}
	for _, tr := range transitions.Transitions {
		if strings.EqualFold(tr.Name, status) || (tr.To != nil && strings.EqualFold(tr.To.Name, status)) {
			if _, err := t.client.Issue.Move(ctx, key, tr.ID, nil); err != nil {
				return errors.Wrap(errors.ErrCodeTrackerQuery, fmt.Sprintf("failed to transition %s to %s", key, status), err)
			}
			return nil
		}
	}
	return errors.New(errors.ErrCodeTrackerQuery, fmt.Sprintf("no transition to %s available on %s", status, key))
}

// SetProperty sets a named field. Multi-valued fields like fixVersions
// are applied as array add operations.
func (t *Tracker) SetProperty(ctx context.Context, key, name, value string) error {
	operations := &models.UpdateOperations{}
	if err := operations.AddArrayOperation(name, map[string]string{value: "add"}); err != nil {
		return errors.Wrap(errors.ErrCodeTrackerQuery, fmt.Sprintf("invalid property update on %s", key), err)
	}
	_, err := t.client.Issue.Update(ctx, key, true, nil, nil, operations)
	if err != nil {
		return errors.Wrap(errors.ErrCodeTrackerQuery, fmt.Sprintf("failed to set %s on %s", name, key), err)
	}
	return nil
}

// AddLabel adds a label to the issue.
func (t *Tracker) AddLabel(ctx context.Context, key, label string) error {
	return t.labelOperation(ctx, key, label, "add")
}

// RemoveLabel removes a label from the issue.
func (t *Tracker) RemoveLabel(ctx context.Context, key, label string) error {
	return t.labelOperation(ctx, key, label, "remove")
}

func (t *Tracker) labelOperation(ctx context.Context, key, label, op string) error {
	operations := &models.UpdateOperations{}
	if err := operations.AddArrayOperation("labels", map[string]string{label: op}); err != nil {
		return errors.Wrap(errors.ErrCodeTrackerQuery, fmt.Sprintf("invalid label update on %s", key), err)
	}
	_, err := t.client.Issue.Update(ctx, key, true, nil, nil, operations)
	if err != nil {
		return errors.Wrap(errors.ErrCodeTrackerQuery, fmt.Sprintf("failed to %s label on %s", op, key), err)
	}
	return nil
}

// AddComment posts a plain-text comment as a single ADF paragraph.
func (t *Tracker) AddComment(ctx context.Context, key, body string) error {
	payload := &models.CommentPayloadScheme{
		Body: &models.CommentNodeScheme{
			Version: 1,
			Type:    "doc",
			Content: []*models.CommentNodeScheme{
				{
					Type: "paragraph",
					Content: []*models.CommentNodeScheme{
						{Type: "text", Text: body},
					},
				},
			},
		},
	}
	_, _, err := t.client.Issue.Comment.Add(ctx, key, payload, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeTrackerQuery, fmt.Sprintf("failed to comment on %s", key), err)
	}
	return nil
}

// AddLink creates a typed link from the issue to another issue.
func (t *Tracker) AddLink(ctx context.Context, key string, link issues.Link) error {
	payload := &models.LinkPayloadSchemeV3{
		Type:         &models.LinkTypeScheme{Name: link.Type},
		InwardIssue:  &models.LinkedIssueScheme{Key: key},
		OutwardIssue: &models.LinkedIssueScheme{Key: link.Key},
	}
	_, err := t.client.Issue.Link.Create(ctx, payload)
	if err != nil {
		return errors.Wrap(errors.ErrCodeTrackerQuery, fmt.Sprintf("failed to link %s to %s", key, link.Key), err)
	}
	return nil
}

var _ issues.Tracker = (*Tracker)(nil)
