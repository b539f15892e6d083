// Package forge defines the interface to pull-request hosting services.
// GitHub, GitLab and Gitea adapters implement this interface; the bot
// only ever talks to a forge through it.
package forge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repo identifies a hosted repository.
type Repo struct {
	Owner string
	Name  string
}

// ParseRepo parses an "owner/name" path.
func ParseRepo(path string) (Repo, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Repo{}, fmt.Errorf("invalid repository path %q, want owner/name", path)
	}
	return Repo{Owner: parts[0], Name: parts[1]}, nil
}

// FullName returns the owner/name form.
func (r Repo) FullName() string {
	return r.Owner + "/" + r.Name
}

func (r Repo) String() string {
	return r.FullName()
}

// PullRequest is a read-only snapshot of a pull request as observed on
// the forge. The bot never owns it; all writes go through the mutators
// on the Forge interface.
type PullRequest struct {
	Repo      Repo
	Number    int
	Title     string
	Body      string
	HeadHash  string
	SourceRef string
	TargetRef string
	Draft     bool
	Open      bool
	Author    string
	Labels    []string
	URL       string
	// SourceRepo is the fork the head branch lives in, empty when the
	// head branch is in the target repository itself.
	SourceRepo string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	// LastForcePush is zero when the forge does not report it; the bot
	// then falls back to comparing the stored head hash.
	LastForcePush time.Time
}

// HasLabel reports whether the label is currently present on the PR.
func (pr *PullRequest) HasLabel(label string) bool {
	for _, l := range pr.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Verdict is the outcome a reviewer attached to a review.
type Verdict int

const (
	VerdictComment Verdict = iota
	VerdictApproved
	VerdictDisapproved
)

func (v Verdict) String() string {
	switch v {
	case VerdictApproved:
		return "approved"
	case VerdictDisapproved:
		return "disapproved"
	default:
		return "comment"
	}
}

// Review is a single review submitted on a pull request. Hash is the
// head commit the review was submitted against; TargetRef is the base
// ref at submission time when the forge reports it.
type Review struct {
	ID        int64
	User      string
	Verdict   Verdict
	Hash      string
	TargetRef string
	Body      string
	CreatedAt time.Time
}

// Comment is a top-level discussion comment on a pull request.
type Comment struct {
	ID        int64
	Author    string
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CheckStatus is the lifecycle state of a status check.
type CheckStatus string

const (
	CheckInProgress CheckStatus = "IN_PROGRESS"
	CheckSuccess    CheckStatus = "SUCCESS"
	CheckFailure    CheckStatus = "FAILURE"
	CheckCancelled  CheckStatus = "CANCELLED"
)

// Check is a status check attached to a commit. Metadata is an opaque
// string the bot uses as a result fingerprint; forges that cannot store
// it round-trip an empty string and the bot falls back to its own
// persisted fingerprints.
type Check struct {
	ID          int64
	Name        string
	Status      CheckStatus
	Title       string
	Summary     string
	Metadata    string
	StartedAt   time.Time
	CompletedAt time.Time
}

// Forge is the contract every hosting-service adapter implements.
// Read operations return snapshots; mutators are expected to be safe to
// retry since the reconciler re-issues them on transient failures.
type Forge interface {
	// Name returns the adapter name (github, gitlab, gitea).
	Name() string

	// BaseURL returns the web base URL of the forge instance.
	BaseURL() string

	// CloneURL returns an anonymous HTTPS clone URL for the repository.
	CloneURL(repo Repo) string

	// AuthenticatedCloneURL returns a clone URL with the adapter's
	// credentials embedded, for fetch operations on private repos.
	AuthenticatedCloneURL(repo Repo) string

	// CurrentUser returns the login the adapter's token authenticates
	// as. The bot uses it to recognize its own comments.
	CurrentUser(ctx context.Context) (string, error)

	ListOpenPullRequests(ctx context.Context, repo Repo) ([]*PullRequest, error)
	GetPullRequest(ctx context.Context, repo Repo, number int) (*PullRequest, error)

	SetTitle(ctx context.Context, repo Repo, number int, title string) error
	SetBody(ctx context.Context, repo Repo, number int, body string) error
	AddLabel(ctx context.Context, repo Repo, number int, label string) error
	RemoveLabel(ctx context.Context, repo Repo, number int, label string) error

	ListComments(ctx context.Context, repo Repo, number int) ([]*Comment, error)
	AddComment(ctx context.Context, repo Repo, number int, body string) (*Comment, error)
	UpdateComment(ctx context.Context, repo Repo, number int, commentID int64, body string) error

	ListReviews(ctx context.Context, repo Repo, number int) ([]*Review, error)

	// ListChecks returns the checks attached to the given commit.
	ListChecks(ctx context.Context, repo Repo, headHash string) ([]*Check, error)
	CreateCheck(ctx context.Context, repo Repo, headHash string, check *Check) (*Check, error)
	UpdateCheck(ctx context.Context, repo Repo, headHash string, check *Check) error

	// FileContents fetches a single file at the given ref. Used for
	// .jcheck/conf resolution without a local checkout.
	FileContents(ctx context.Context, repo Repo, path, ref string) ([]byte, error)

	ListBranches(ctx context.Context, repo Repo) ([]string, error)
}

// Options holds the settings a factory needs to construct an adapter.
type Options struct {
	Token              string
	BaseURL            string
	BotUser            string
	InsecureSkipVerify bool
}

// Factory creates a forge adapter.
type Factory func(opts *Options) (Forge, error)

// Registry holds registered adapter factories, keyed by forge type.
var Registry = make(map[string]Factory)

// Register registers an adapter factory under the given type name.
func Register(name string, factory Factory) {
	Registry[name] = factory
}

// Create instantiates an adapter by type name.
func Create(name string, opts *Options) (Forge, error) {
	factory, ok := Registry[name]
	if !ok {
		return nil, &Error{Forge: name, Message: "forge type not registered"}
	}
	return factory(opts)
}

// Error is an adapter-level error carrying the forge type.
type Error struct {
	Forge   string
	Message string
	Err     error
	// NotFound marks 404-style failures so callers can distinguish a
	// missing file or resource from a transient fault.
	NotFound bool
}

// IsNotFound reports whether the error chain contains a not-found
// adapter error.
func IsNotFound(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.NotFound
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "[" + e.Forge + "] " + e.Message + ": " + e.Err.Error()
	}
	return "[" + e.Forge + "] " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}
