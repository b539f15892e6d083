// Package issues defines the interface to the issue tracker. The bot
// reads issues to validate PR titles and link metadata, and writes
// labels, comments and links for approval-request workflows.
package issues

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Issue is a tracker issue snapshot.
type Issue struct {
	// Key is the full tracker key, e.g. JDK-8123456.
	Key string
	// Title is the issue summary without any key prefix.
	Title string
	// Open reports whether the issue is unresolved.
	Open bool
	// Type is the issue type name: Bug, Enhancement, CSR, JEP, Backport.
	Type string
	// Status is the workflow status name, e.g. Open, Approved, Closed.
	Status     string
	Priority   string
	Resolution string
	// FixVersions holds the version names the fix is targeted to.
	FixVersions []string
	Labels      []string
	Links       []Link
	// Properties carries tracker fields not modeled explicitly, such
	// as the JEP number.
	Properties map[string]string
}

// Link is a typed relation to another issue.
type Link struct {
	// Type is the relation name, e.g. "csr for", "blocks".
	Type string
	// Key is the linked issue's key.
	Key string
}

// HasLabel reports whether the label is present on the issue.
func (i *Issue) HasLabel(label string) bool {
	for _, l := range i.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// LinkedKey returns the key of the first link with the given type name
// (case-insensitive), or "" when there is none.
func (i *Issue) LinkedKey(linkType string) string {
	for _, l := range i.Links {
		if strings.EqualFold(l.Type, linkType) {
			return l.Key
		}
	}
	return ""
}

// ID returns the numeric part of the issue key.
func (i *Issue) ID() string {
	if idx := strings.LastIndex(i.Key, "-"); idx >= 0 {
		return i.Key[idx+1:]
	}
	return i.Key
}

// Tracker is the contract the issue-tracker adapter implements.
type Tracker interface {
	// GetIssue fetches an issue by full key.
	GetIssue(ctx context.Context, key string) (*Issue, error)

	SetTitle(ctx context.Context, key, title string) error
	// SetState transitions the issue to the named workflow status.
	SetState(ctx context.Context, key, status string) error
	// SetProperty sets a named tracker field to a value.
	SetProperty(ctx context.Context, key, name, value string) error
	AddLabel(ctx context.Context, key, label string) error
	RemoveLabel(ctx context.Context, key, label string) error
	AddComment(ctx context.Context, key, body string) error
	AddLink(ctx context.Context, key string, link Link) error
}

// issueIDRe matches a bare numeric id or a project-qualified key.
var issueIDRe = regexp.MustCompile(`^(?:([A-Za-z][A-Za-z0-9]*)-)?([0-9]+)$`)

// ParseID splits an issue reference into project prefix (may be empty)
// and numeric id. Accepts "8123456" and "JDK-8123456".
func ParseID(ref string) (project, id string, ok bool) {
	m := issueIDRe.FindStringSubmatch(strings.TrimSpace(ref))
	if m == nil {
		return "", "", false
	}
	return strings.ToUpper(m[1]), m[2], true
}

// Key composes a full tracker key from a project and a numeric id.
func Key(project, id string) string {
	if project == "" {
		return id
	}
	return fmt.Sprintf("%s-%s", strings.ToUpper(project), id)
}
