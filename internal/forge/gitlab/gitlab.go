// Package gitlab implements the forge interface for GitLab. Merge
// requests map onto pull requests, notes onto comments, approvals onto
// reviews, and commit statuses onto status checks. Commit statuses
// cannot carry the opaque check metadata, so the fingerprint cache
// relies on the bot's own persisted fingerprints for GitLab repos.
package gitlab

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/openjdk/jmerge/internal/forge"
)

const (
	defaultPerPage   = 100
	defaultGitLabURL = "https://gitlab.com"
)

func init() {
	forge.Register("gitlab", New)
}

// GitLab implements forge.Forge against the GitLab REST API.
type GitLab struct {
	client  *gitlab.Client
	token   string
	baseURL string
}

// New creates a GitLab adapter from the given options.
func New(opts *forge.Options) (forge.Forge, error) {
	clientOpts := []gitlab.ClientOptionFunc{}
	if opts.BaseURL != "" && opts.BaseURL != defaultGitLabURL {
		clientOpts = append(clientOpts, gitlab.WithBaseURL(opts.BaseURL))
	}
	if opts.InsecureSkipVerify {
		httpClient := &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}
		clientOpts = append(clientOpts, gitlab.WithHTTPClient(httpClient))
	}

	client, err := gitlab.NewClient(opts.Token, clientOpts...)
	if err != nil {
		return nil, &forge.Error{Forge: "gitlab", Message: "failed to create client", Err: err}
	}

	return &GitLab{
		client:  client,
		token:   opts.Token,
		baseURL: opts.BaseURL,
	}, nil
}

// Name returns the adapter name.
func (g *GitLab) Name() string {
	return "gitlab"
}

// BaseURL returns the web base URL.
func (g *GitLab) BaseURL() string {
	if g.baseURL == "" {
		return defaultGitLabURL
	}
	return g.baseURL
}

func (g *GitLab) host() string {
	host := strings.TrimPrefix(g.BaseURL(), "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimSuffix(host, "/")
}

// CloneURL returns an anonymous HTTPS clone URL.
func (g *GitLab) CloneURL(repo forge.Repo) string {
	return fmt.Sprintf("https://%s/%s.git", g.host(), repo.FullName())
}

// AuthenticatedCloneURL embeds the token when one is configured.
func (g *GitLab) AuthenticatedCloneURL(repo forge.Repo) string {
	if g.token == "" {
		return g.CloneURL(repo)
	}
	return fmt.Sprintf("https://oauth2:%s@%s/%s.git", g.token, g.host(), repo.FullName())
}

// CurrentUser returns the username the token authenticates as.
func (g *GitLab) CurrentUser(ctx context.Context) (string, error) {
	user, _, err := g.client.Users.CurrentUser()
	if err != nil {
		return "", &forge.Error{Forge: "gitlab", Message: "failed to get current user", Err: err}
	}
	return user.Username, nil
}

func pid(repo forge.Repo) string {
	return repo.FullName()
}

func (g *GitLab) convertMR(repo forge.Repo, mr *gitlab.BasicMergeRequest) *forge.PullRequest {
	pr := &forge.PullRequest{
		Repo:      repo,
		Number:    int(mr.IID),
		Title:     mr.Title,
		Body:      mr.Description,
		HeadHash:  mr.SHA,
		SourceRef: mr.SourceBranch,
		TargetRef: mr.TargetBranch,
		Draft:     mr.Draft,
		Open:      mr.State == "opened",
		URL:       mr.WebURL,
		Author:    mr.Author.Username,
	}
	pr.Labels = append(pr.Labels, mr.Labels...)
	if mr.CreatedAt != nil {
		pr.CreatedAt = *mr.CreatedAt
	}
	if mr.UpdatedAt != nil {
		pr.UpdatedAt = *mr.UpdatedAt
	}
	return pr
}

// ListOpenPullRequests lists opened merge requests, following pagination.
func (g *GitLab) ListOpenPullRequests(ctx context.Context, repo forge.Repo) ([]*forge.PullRequest, error) {
	state := "opened"
	var result []*forge.PullRequest
	opts := &gitlab.ListProjectMergeRequestsOptions{
		State:       &state,
		ListOptions: gitlab.ListOptions{PerPage: defaultPerPage},
	}
	for {
		mrs, resp, err := g.client.MergeRequests.ListProjectMergeRequests(pid(repo), opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, &forge.Error{Forge: "gitlab", Message: "failed to list merge requests", Err: err}
		}
		for _, mr := range mrs {
			result = append(result, g.convertMR(repo, mr))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return result, nil
}

// GetPullRequest retrieves a single merge request.
func (g *GitLab) GetPullRequest(ctx context.Context, repo forge.Repo, number int) (*forge.PullRequest, error) {
	mr, _, err := g.client.MergeRequests.GetMergeRequest(pid(repo), int64(number), nil, gitlab.WithContext(ctx))
	if err != nil {
		return nil, &forge.Error{Forge: "gitlab", Message: "failed to get merge request", Err: err}
	}

	pr := &forge.PullRequest{
		Repo:      repo,
		Number:    int(mr.IID),
		Title:     mr.Title,
		Body:      mr.Description,
		HeadHash:  mr.SHA,
		SourceRef: mr.SourceBranch,
		TargetRef: mr.TargetBranch,
		Draft:     mr.Draft,
		Open:      mr.State == "opened",
		URL:       mr.WebURL,
		Author:    mr.Author.Username,
	}
	pr.Labels = append(pr.Labels, mr.Labels...)
	if mr.CreatedAt != nil {
		pr.CreatedAt = *mr.CreatedAt
	}
	if mr.UpdatedAt != nil {
		pr.UpdatedAt = *mr.UpdatedAt
	}
	return pr, nil
}

// SetTitle updates the merge request title.
func (g *GitLab) SetTitle(ctx context.Context, repo forge.Repo, number int, title string) error {
	_, _, err := g.client.MergeRequests.UpdateMergeRequest(pid(repo), int64(number), &gitlab.UpdateMergeRequestOptions{
		Title: &title,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return &forge.Error{Forge: "gitlab", Message: "failed to set title", Err: err}
	}
	return nil
}

// SetBody updates the merge request description.
func (g *GitLab) SetBody(ctx context.Context, repo forge.Repo, number int, body string) error {
	_, _, err := g.client.MergeRequests.UpdateMergeRequest(pid(repo), int64(number), &gitlab.UpdateMergeRequestOptions{
		Description: &body,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return &forge.Error{Forge: "gitlab", Message: "failed to set description", Err: err}
	}
	return nil
}

// AddLabel adds a label to the merge request.
func (g *GitLab) AddLabel(ctx context.Context, repo forge.Repo, number int, label string) error {
	labels := gitlab.LabelOptions{label}
	_, _, err := g.client.MergeRequests.UpdateMergeRequest(pid(repo), int64(number), &gitlab.UpdateMergeRequestOptions{
		AddLabels: &labels,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return &forge.Error{Forge: "gitlab", Message: "failed to add label", Err: err}
	}
	return nil
}

// RemoveLabel removes a label from the merge request.
func (g *GitLab) RemoveLabel(ctx context.Context, repo forge.Repo, number int, label string) error {
	labels := gitlab.LabelOptions{label}
	_, _, err := g.client.MergeRequests.UpdateMergeRequest(pid(repo), int64(number), &gitlab.UpdateMergeRequestOptions{
		RemoveLabels: &labels,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return &forge.Error{Forge: "gitlab", Message: "failed to remove label", Err: err}
	}
	return nil
}

// ListComments lists the merge request notes, skipping system notes.
func (g *GitLab) ListComments(ctx context.Context, repo forge.Repo, number int) ([]*forge.Comment, error) {
	var result []*forge.Comment
	opts := &gitlab.ListMergeRequestNotesOptions{
		ListOptions: gitlab.ListOptions{PerPage: defaultPerPage},
	}
	for {
		notes, resp, err := g.client.Notes.ListMergeRequestNotes(pid(repo), int64(number), opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, &forge.Error{Forge: "gitlab", Message: "failed to list notes", Err: err}
		}
		for _, note := range notes {
			if note.System {
				continue
			}
			c := &forge.Comment{
				ID:     int64(note.ID),
				Author: note.Author.Username,
				Body:   note.Body,
			}
			if note.CreatedAt != nil {
				c.CreatedAt = *note.CreatedAt
			}
			if note.UpdatedAt != nil {
				c.UpdatedAt = *note.UpdatedAt
			}
			result = append(result, c)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return result, nil
}

// AddComment posts a new note on the merge request.
func (g *GitLab) AddComment(ctx context.Context, repo forge.Repo, number int, body string) (*forge.Comment, error) {
	note, _, err := g.client.Notes.CreateMergeRequestNote(pid(repo), int64(number), &gitlab.CreateMergeRequestNoteOptions{
		Body: &body,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, &forge.Error{Forge: "gitlab", Message: "failed to add note", Err: err}
	}
	c := &forge.Comment{
		ID:     int64(note.ID),
		Author: note.Author.Username,
		Body:   note.Body,
	}
	if note.CreatedAt != nil {
		c.CreatedAt = *note.CreatedAt
	}
	return c, nil
}

// UpdateComment rewrites an existing note.
func (g *GitLab) UpdateComment(ctx context.Context, repo forge.Repo, number int, commentID int64, body string) error {
	_, _, err := g.client.Notes.UpdateMergeRequestNote(pid(repo), int64(number), commentID, &gitlab.UpdateMergeRequestNoteOptions{
		Body: &body,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return &forge.Error{Forge: "gitlab", Message: "failed to update note", Err: err}
	}
	return nil
}

// ListReviews maps merge request approvals onto approved verdicts.
// GitLab resets approvals on push when configured to, so the verdict
// hash is the current head and staleness is tracked by the bot.
func (g *GitLab) ListReviews(ctx context.Context, repo forge.Repo, number int) ([]*forge.Review, error) {
	mr, _, err := g.client.MergeRequests.GetMergeRequest(pid(repo), int64(number), nil, gitlab.WithContext(ctx))
	if err != nil {
		return nil, &forge.Error{Forge: "gitlab", Message: "failed to get merge request", Err: err}
	}

	approvals, _, err := g.client.MergeRequestApprovals.GetConfiguration(pid(repo), int64(number), gitlab.WithContext(ctx))
	if err != nil {
		return nil, &forge.Error{Forge: "gitlab", Message: "failed to get approvals", Err: err}
	}

	var result []*forge.Review
	for i, by := range approvals.ApprovedBy {
		result = append(result, &forge.Review{
			ID:        int64(i + 1),
			User:      by.User.Username,
			Verdict:   forge.VerdictApproved,
			Hash:      mr.SHA,
			TargetRef: mr.TargetBranch,
		})
	}
	return result, nil
}

// ListChecks lists the commit statuses on the given commit.
func (g *GitLab) ListChecks(ctx context.Context, repo forge.Repo, headHash string) ([]*forge.Check, error) {
	statuses, _, err := g.client.Commits.GetCommitStatuses(pid(repo), headHash, &gitlab.GetCommitStatusesOptions{
		ListOptions: gitlab.ListOptions{PerPage: defaultPerPage},
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, &forge.Error{Forge: "gitlab", Message: "failed to list commit statuses", Err: err}
	}

	var checks []*forge.Check
	for _, s := range statuses {
		checks = append(checks, &forge.Check{
			ID:      s.ID,
			Name:    s.Name,
			Status:  convertCommitStatus(s.Status),
			Title:   s.Name,
			Summary: s.Description,
		})
	}
	return checks, nil
}

// CreateCheck sets a commit status. The check title and summary are
// folded into the status description; metadata is not representable.
func (g *GitLab) CreateCheck(ctx context.Context, repo forge.Repo, headHash string, check *forge.Check) (*forge.Check, error) {
	state := commitStatusState(check.Status)
	description := statusDescription(check)
	status, _, err := g.client.Commits.SetCommitStatus(pid(repo), headHash, &gitlab.SetCommitStatusOptions{
		State:       state,
		Name:        &check.Name,
		Description: &description,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, &forge.Error{Forge: "gitlab", Message: "failed to set commit status", Err: err}
	}
	out := *check
	out.ID = status.ID
	return &out, nil
}

// UpdateCheck re-sets the commit status; GitLab has no in-place update.
func (g *GitLab) UpdateCheck(ctx context.Context, repo forge.Repo, headHash string, check *forge.Check) error {
	_, err := g.CreateCheck(ctx, repo, headHash, check)
	return err
}

// statusDescription folds the title and summary into GitLab's single
// description field, truncated to the API limit.
func statusDescription(check *forge.Check) string {
	description := check.Title
	if check.Summary != "" {
		description = check.Title + ": " + check.Summary
	}
	const maxLen = 255
	if len(description) > maxLen {
		description = description[:maxLen-1] + "…"
	}
	return description
}

func commitStatusState(status forge.CheckStatus) gitlab.BuildStateValue {
	switch status {
	case forge.CheckSuccess:
		return gitlab.Success
	case forge.CheckFailure:
		return gitlab.Failed
	case forge.CheckCancelled:
		return gitlab.Canceled
	default:
		return gitlab.Running
	}
}

func convertCommitStatus(status string) forge.CheckStatus {
	switch status {
	case "success":
		return forge.CheckSuccess
	case "failed":
		return forge.CheckFailure
	case "canceled":
		return forge.CheckCancelled
	default:
		return forge.CheckInProgress
	}
}

// FileContents fetches a raw file at the given ref.
func (g *GitLab) FileContents(ctx context.Context, repo forge.Repo, path, ref string) ([]byte, error) {
	data, resp, err := g.client.RepositoryFiles.GetRawFile(pid(repo), path, &gitlab.GetRawFileOptions{
		Ref: &ref,
	}, gitlab.WithContext(ctx))
	if err != nil {
		notFound := resp != nil && resp.StatusCode == http.StatusNotFound
		return nil, &forge.Error{Forge: "gitlab", Message: fmt.Sprintf("failed to fetch %s at %s", path, ref), Err: err, NotFound: notFound}
	}
	return data, nil
}

// ListBranches lists all branches, following pagination.
func (g *GitLab) ListBranches(ctx context.Context, repo forge.Repo) ([]string, error) {
	var branches []string
	opts := &gitlab.ListBranchesOptions{
		ListOptions: gitlab.ListOptions{PerPage: defaultPerPage},
	}
	for {
		page, resp, err := g.client.Branches.ListBranches(pid(repo), opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, &forge.Error{Forge: "gitlab", Message: "failed to list branches", Err: err}
		}
		for _, b := range page {
			branches = append(branches, b.Name)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return branches, nil
}
