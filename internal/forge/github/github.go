// Package github implements the forge interface for GitHub, using the
// check-runs API for status checks.
package github

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/openjdk/jmerge/internal/forge"
	"github.com/openjdk/jmerge/pkg/logger"
)

const (
	defaultPerPage   = 100
	defaultGitHubURL = "https://github.com"

	// GitHub recommends x-access-token as the username when embedding
	// a PAT in a clone URL.
	tokenAuthUser = "x-access-token"
)

func init() {
	forge.Register("github", New)
}

// GitHub implements forge.Forge against the GitHub REST API.
type GitHub struct {
	client  *github.Client
	token   string
	baseURL string
}

// New creates a GitHub adapter from the given options.
func New(opts *forge.Options) (forge.Forge, error) {
	var httpClient *http.Client
	if opts.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
		httpClient = oauth2.NewClient(context.Background(), ts)
		if opts.InsecureSkipVerify {
			if transport, ok := httpClient.Transport.(*oauth2.Transport); ok {
				transport.Base = insecureTransport()
			}
		}
	} else {
		transport := &http.Transport{}
		if opts.InsecureSkipVerify {
			transport = insecureTransport()
		}
		httpClient = &http.Client{Transport: transport}
	}

	client := github.NewClient(httpClient)
	if opts.BaseURL != "" && opts.BaseURL != defaultGitHubURL {
		var err error
		client, err = client.WithEnterpriseURLs(opts.BaseURL, opts.BaseURL)
		if err != nil {
			return nil, &forge.Error{Forge: "github", Message: "failed to create enterprise client", Err: err}
		}
	}

	return &GitHub{
		client:  client,
		token:   opts.Token,
		baseURL: opts.BaseURL,
	}, nil
}

func insecureTransport() *http.Transport {
	return &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
}

// Name returns the adapter name.
func (g *GitHub) Name() string {
	return "github"
}

// BaseURL returns the web base URL.
func (g *GitHub) BaseURL() string {
	if g.baseURL == "" {
		return defaultGitHubURL
	}
	return g.baseURL
}

func (g *GitHub) host() string {
	host := strings.TrimPrefix(g.BaseURL(), "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimSuffix(host, "/")
}

// CloneURL returns an anonymous HTTPS clone URL.
func (g *GitHub) CloneURL(repo forge.Repo) string {
	return fmt.Sprintf("https://%s/%s.git", g.host(), repo.FullName())
}

// AuthenticatedCloneURL embeds the token when one is configured.
func (g *GitHub) AuthenticatedCloneURL(repo forge.Repo) string {
	if g.token == "" {
		return g.CloneURL(repo)
	}
	return fmt.Sprintf("https://%s:%s@%s/%s.git", tokenAuthUser, g.token, g.host(), repo.FullName())
}

// CurrentUser returns the login the token authenticates as.
func (g *GitHub) CurrentUser(ctx context.Context) (string, error) {
	user, _, err := g.client.Users.Get(ctx, "")
	if err != nil {
		return "", &forge.Error{Forge: "github", Message: "failed to get authenticated user", Err: err}
	}
	return user.GetLogin(), nil
}

func (g *GitHub) convertPR(repo forge.Repo, pr *github.PullRequest) *forge.PullRequest {
	out := &forge.PullRequest{
		Repo:      repo,
		Number:    pr.GetNumber(),
		Title:     pr.GetTitle(),
		Body:      pr.GetBody(),
		HeadHash:  pr.GetHead().GetSHA(),
		SourceRef: pr.GetHead().GetRef(),
		TargetRef: pr.GetBase().GetRef(),
		Draft:     pr.GetDraft(),
		Open:      pr.GetState() == "open",
		Author:    pr.GetUser().GetLogin(),
		URL:       pr.GetHTMLURL(),
		CreatedAt: pr.GetCreatedAt().Time,
		UpdatedAt: pr.GetUpdatedAt().Time,
	}
	for _, l := range pr.Labels {
		out.Labels = append(out.Labels, l.GetName())
	}
	if head := pr.GetHead().GetRepo(); head != nil && head.GetFullName() != repo.FullName() {
		out.SourceRepo = head.GetFullName()
	}
	return out
}

// ListOpenPullRequests lists open PRs, following pagination.
func (g *GitHub) ListOpenPullRequests(ctx context.Context, repo forge.Repo) ([]*forge.PullRequest, error) {
	var result []*forge.PullRequest
	opts := &github.PullRequestListOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: defaultPerPage},
	}
	for {
		prs, resp, err := g.client.PullRequests.List(ctx, repo.Owner, repo.Name, opts)
		if err != nil {
			return nil, &forge.Error{Forge: "github", Message: "failed to list pull requests", Err: err}
		}
		for _, pr := range prs {
			result = append(result, g.convertPR(repo, pr))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return result, nil
}

// GetPullRequest retrieves a single PR.
func (g *GitHub) GetPullRequest(ctx context.Context, repo forge.Repo, number int) (*forge.PullRequest, error) {
	pr, _, err := g.client.PullRequests.Get(ctx, repo.Owner, repo.Name, number)
	if err != nil {
		return nil, &forge.Error{Forge: "github", Message: "failed to get pull request", Err: err}
	}
	return g.convertPR(repo, pr), nil
}

// SetTitle updates the PR title.
func (g *GitHub) SetTitle(ctx context.Context, repo forge.Repo, number int, title string) error {
	_, _, err := g.client.PullRequests.Edit(ctx, repo.Owner, repo.Name, number, &github.PullRequest{Title: &title})
	if err != nil {
		return &forge.Error{Forge: "github", Message: "failed to set title", Err: err}
	}
	return nil
}

// SetBody updates the PR body.
func (g *GitHub) SetBody(ctx context.Context, repo forge.Repo, number int, body string) error {
	_, _, err := g.client.PullRequests.Edit(ctx, repo.Owner, repo.Name, number, &github.PullRequest{Body: &body})
	if err != nil {
		return &forge.Error{Forge: "github", Message: "failed to set body", Err: err}
	}
	return nil
}

// AddLabel adds a label to the PR.
func (g *GitHub) AddLabel(ctx context.Context, repo forge.Repo, number int, label string) error {
	_, _, err := g.client.Issues.AddLabelsToIssue(ctx, repo.Owner, repo.Name, number, []string{label})
	if err != nil {
		return &forge.Error{Forge: "github", Message: "failed to add label", Err: err}
	}
	return nil
}

// RemoveLabel removes a label from the PR. A missing label is not an
// error since the reconciler may race with manual label edits.
func (g *GitHub) RemoveLabel(ctx context.Context, repo forge.Repo, number int, label string) error {
	resp, err := g.client.Issues.RemoveLabelForIssue(ctx, repo.Owner, repo.Name, number, label)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil
		}
		return &forge.Error{Forge: "github", Message: "failed to remove label", Err: err}
	}
	return nil
}

// ListComments lists top-level PR comments, following pagination.
func (g *GitHub) ListComments(ctx context.Context, repo forge.Repo, number int) ([]*forge.Comment, error) {
	var result []*forge.Comment
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: defaultPerPage},
	}
	for {
		comments, resp, err := g.client.Issues.ListComments(ctx, repo.Owner, repo.Name, number, opts)
		if err != nil {
			return nil, &forge.Error{Forge: "github", Message: "failed to list comments", Err: err}
		}
		for _, c := range comments {
			result = append(result, &forge.Comment{
				ID:        c.GetID(),
				Author:    c.GetUser().GetLogin(),
				Body:      c.GetBody(),
				CreatedAt: c.GetCreatedAt().Time,
				UpdatedAt: c.GetUpdatedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return result, nil
}

// AddComment posts a new PR comment.
func (g *GitHub) AddComment(ctx context.Context, repo forge.Repo, number int, body string) (*forge.Comment, error) {
	created, _, err := g.client.Issues.CreateComment(ctx, repo.Owner, repo.Name, number, &github.IssueComment{Body: &body})
	if err != nil {
		return nil, &forge.Error{Forge: "github", Message: "failed to add comment", Err: err}
	}
	return &forge.Comment{
		ID:        created.GetID(),
		Author:    created.GetUser().GetLogin(),
		Body:      created.GetBody(),
		CreatedAt: created.GetCreatedAt().Time,
		UpdatedAt: created.GetUpdatedAt().Time,
	}, nil
}

// UpdateComment rewrites an existing comment.
func (g *GitHub) UpdateComment(ctx context.Context, repo forge.Repo, number int, commentID int64, body string) error {
	_, _, err := g.client.Issues.EditComment(ctx, repo.Owner, repo.Name, commentID, &github.IssueComment{Body: &body})
	if err != nil {
		return &forge.Error{Forge: "github", Message: "failed to update comment", Err: err}
	}
	return nil
}

// ListReviews lists submitted reviews, following pagination.
func (g *GitHub) ListReviews(ctx context.Context, repo forge.Repo, number int) ([]*forge.Review, error) {
	var result []*forge.Review
	opts := &github.ListOptions{PerPage: defaultPerPage}
	for {
		reviews, resp, err := g.client.PullRequests.ListReviews(ctx, repo.Owner, repo.Name, number, opts)
		if err != nil {
			return nil, &forge.Error{Forge: "github", Message: "failed to list reviews", Err: err}
		}
		for _, r := range reviews {
			result = append(result, &forge.Review{
				ID:        r.GetID(),
				User:      r.GetUser().GetLogin(),
				Verdict:   convertReviewState(r.GetState()),
				Hash:      r.GetCommitID(),
				Body:      r.GetBody(),
				CreatedAt: r.GetSubmittedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return result, nil
}

func convertReviewState(state string) forge.Verdict {
	switch strings.ToUpper(state) {
	case "APPROVED":
		return forge.VerdictApproved
	case "CHANGES_REQUESTED":
		return forge.VerdictDisapproved
	default:
		return forge.VerdictComment
	}
}

// ListChecks lists the check runs attached to the commit. The opaque
// metadata fingerprint round-trips through the check run's external id.
func (g *GitHub) ListChecks(ctx context.Context, repo forge.Repo, headHash string) ([]*forge.Check, error) {
	results, _, err := g.client.Checks.ListCheckRunsForRef(ctx, repo.Owner, repo.Name, headHash, &github.ListCheckRunsOptions{
		ListOptions: github.ListOptions{PerPage: defaultPerPage},
	})
	if err != nil {
		return nil, &forge.Error{Forge: "github", Message: "failed to list check runs", Err: err}
	}

	var checks []*forge.Check
	for _, run := range results.CheckRuns {
		check := &forge.Check{
			ID:       run.GetID(),
			Name:     run.GetName(),
			Status:   convertCheckRun(run.GetStatus(), run.GetConclusion()),
			Metadata: run.GetExternalID(),
		}
		if output := run.GetOutput(); output != nil {
			check.Title = output.GetTitle()
			check.Summary = output.GetSummary()
		}
		if t := run.GetStartedAt(); !t.IsZero() {
			check.StartedAt = t.Time
		}
		if t := run.GetCompletedAt(); !t.IsZero() {
			check.CompletedAt = t.Time
		}
		checks = append(checks, check)
	}
	return checks, nil
}

// CreateCheck creates a new check run on the commit.
func (g *GitHub) CreateCheck(ctx context.Context, repo forge.Repo, headHash string, check *forge.Check) (*forge.Check, error) {
	opts := github.CreateCheckRunOptions{
		Name:       check.Name,
		HeadSHA:    headHash,
		ExternalID: &check.Metadata,
		Output: &github.CheckRunOutput{
			Title:   &check.Title,
			Summary: &check.Summary,
		},
	}
	status, conclusion := checkRunFields(check.Status)
	opts.Status = &status
	if conclusion != "" {
		opts.Conclusion = &conclusion
		opts.CompletedAt = &github.Timestamp{Time: check.CompletedAt}
	}

	created, _, err := g.client.Checks.CreateCheckRun(ctx, repo.Owner, repo.Name, opts)
	if err != nil {
		return nil, &forge.Error{Forge: "github", Message: "failed to create check run", Err: err}
	}

	out := *check
	out.ID = created.GetID()
	logger.Debug("Created check run",
		zap.String("repo", repo.FullName()),
		zap.String("head", headHash),
		zap.String("name", check.Name),
		zap.String("status", string(check.Status)),
	)
	return &out, nil
}

// UpdateCheck updates an existing check run identified by check.ID.
func (g *GitHub) UpdateCheck(ctx context.Context, repo forge.Repo, headHash string, check *forge.Check) error {
	opts := github.UpdateCheckRunOptions{
		Name:       check.Name,
		ExternalID: &check.Metadata,
		Output: &github.CheckRunOutput{
			Title:   &check.Title,
			Summary: &check.Summary,
		},
	}
	status, conclusion := checkRunFields(check.Status)
	opts.Status = &status
	if conclusion != "" {
		opts.Conclusion = &conclusion
		opts.CompletedAt = &github.Timestamp{Time: check.CompletedAt}
	}

	_, _, err := g.client.Checks.UpdateCheckRun(ctx, repo.Owner, repo.Name, check.ID, opts)
	if err != nil {
		return &forge.Error{Forge: "github", Message: "failed to update check run", Err: err}
	}
	return nil
}

// checkRunFields maps a check status onto GitHub's status/conclusion
// pair. Completed states carry a conclusion, in-progress does not.
func checkRunFields(status forge.CheckStatus) (string, string) {
	switch status {
	case forge.CheckSuccess:
		return "completed", "success"
	case forge.CheckFailure:
		return "completed", "failure"
	case forge.CheckCancelled:
		return "completed", "cancelled"
	default:
		return "in_progress", ""
	}
}

func convertCheckRun(status, conclusion string) forge.CheckStatus {
	if status != "completed" {
		return forge.CheckInProgress
	}
	switch conclusion {
	case "success":
		return forge.CheckSuccess
	case "cancelled":
		return forge.CheckCancelled
	default:
		return forge.CheckFailure
	}
}

// FileContents fetches a single file at the given ref.
func (g *GitHub) FileContents(ctx context.Context, repo forge.Repo, path, ref string) ([]byte, error) {
	content, _, resp, err := g.client.Repositories.GetContents(ctx, repo.Owner, repo.Name, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, &forge.Error{Forge: "github", Message: fmt.Sprintf("file %s not found at %s", path, ref), Err: err, NotFound: true}
		}
		return nil, &forge.Error{Forge: "github", Message: "failed to fetch file contents", Err: err}
	}
	if content == nil {
		return nil, &forge.Error{Forge: "github", Message: fmt.Sprintf("%s at %s is not a file", path, ref)}
	}
	decoded, err := content.GetContent()
	if err != nil {
		return nil, &forge.Error{Forge: "github", Message: "failed to decode file contents", Err: err}
	}
	return []byte(decoded), nil
}

// ListBranches lists all branches, following pagination.
func (g *GitHub) ListBranches(ctx context.Context, repo forge.Repo) ([]string, error) {
	var branches []string
	opts := &github.BranchListOptions{
		ListOptions: github.ListOptions{PerPage: defaultPerPage},
	}
	for {
		page, resp, err := g.client.Repositories.ListBranches(ctx, repo.Owner, repo.Name, opts)
		if err != nil {
			return nil, &forge.Error{Forge: "github", Message: "failed to list branches", Err: err}
		}
		for _, b := range page {
			branches = append(branches, b.GetName())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return branches, nil
}
