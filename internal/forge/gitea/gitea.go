// Package gitea implements the forge interface for Gitea. Commit
// statuses stand in for status checks; like GitLab, they cannot carry
// the opaque check metadata, so fingerprint caching for Gitea repos
// relies on the bot's persisted fingerprints.
package gitea

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"

	"code.gitea.io/sdk/gitea"

	"github.com/openjdk/jmerge/internal/forge"
)

const (
	defaultPerPage  = 50
	defaultGiteaURL = "https://gitea.com"
)

func init() {
	forge.Register("gitea", New)
}

// Gitea implements forge.Forge against the Gitea API.
type Gitea struct {
	client  *gitea.Client
	token   string
	baseURL string

	// labelIDs caches repo label name to id lookups; Gitea attaches
	// labels by id rather than name.
	labelIDs map[string]int64
}

// New creates a Gitea adapter from the given options.
func New(opts *forge.Options) (forge.Forge, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultGiteaURL
	}

	clientOpts := []gitea.ClientOption{
		gitea.SetToken(opts.Token),
	}
	if opts.InsecureSkipVerify {
		httpClient := &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}
		clientOpts = append(clientOpts, gitea.SetHTTPClient(httpClient))
	}

	client, err := gitea.NewClient(baseURL, clientOpts...)
	if err != nil {
		return nil, &forge.Error{Forge: "gitea", Message: "failed to create client", Err: err}
	}

	return &Gitea{
		client:   client,
		token:    opts.Token,
		baseURL:  baseURL,
		labelIDs: make(map[string]int64),
	}, nil
}

// Name returns the adapter name.
func (g *Gitea) Name() string {
	return "gitea"
}

// BaseURL returns the web base URL.
func (g *Gitea) BaseURL() string {
	return g.baseURL
}

func (g *Gitea) host() string {
	host := strings.TrimPrefix(g.baseURL, "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimSuffix(host, "/")
}

// CloneURL returns an anonymous HTTPS clone URL.
func (g *Gitea) CloneURL(repo forge.Repo) string {
	return fmt.Sprintf("https://%s/%s.git", g.host(), repo.FullName())
}

// AuthenticatedCloneURL embeds the token when one is configured.
func (g *Gitea) AuthenticatedCloneURL(repo forge.Repo) string {
	if g.token == "" {
		return g.CloneURL(repo)
	}
	return fmt.Sprintf("https://oauth2:%s@%s/%s.git", g.token, g.host(), repo.FullName())
}

// CurrentUser returns the username the token authenticates as.
func (g *Gitea) CurrentUser(ctx context.Context) (string, error) {
	user, _, err := g.client.GetMyUserInfo()
	if err != nil {
		return "", &forge.Error{Forge: "gitea", Message: "failed to get current user", Err: err}
	}
	return user.UserName, nil
}

func (g *Gitea) convertPR(repo forge.Repo, pr *gitea.PullRequest) *forge.PullRequest {
	out := &forge.PullRequest{
		Repo:   repo,
		Number: int(pr.Index),
		Title:  pr.Title,
		Body:   pr.Body,
		Open:   pr.State == gitea.StateOpen,
		URL:    pr.HTMLURL,
	}
	if pr.Head != nil {
		out.HeadHash = pr.Head.Sha
		out.SourceRef = pr.Head.Name
		if pr.Head.Repository != nil && pr.Head.Repository.FullName != repo.FullName() {
			out.SourceRepo = pr.Head.Repository.FullName
		}
	}
	if pr.Base != nil {
		out.TargetRef = pr.Base.Name
	}
	if pr.Poster != nil {
		out.Author = pr.Poster.UserName
	}
	for _, l := range pr.Labels {
		out.Labels = append(out.Labels, l.Name)
	}
	if pr.Created != nil {
		out.CreatedAt = *pr.Created
	}
	if pr.Updated != nil {
		out.UpdatedAt = *pr.Updated
	}
	// Gitea marks drafts with a title prefix rather than a flag.
	out.Draft = strings.HasPrefix(pr.Title, "WIP:") || strings.HasPrefix(pr.Title, "Draft:")
	return out
}

// ListOpenPullRequests lists open PRs, following pagination.
func (g *Gitea) ListOpenPullRequests(ctx context.Context, repo forge.Repo) ([]*forge.PullRequest, error) {
	var result []*forge.PullRequest
	page := 1
	for {
		prs, _, err := g.client.ListRepoPullRequests(repo.Owner, repo.Name, gitea.ListPullRequestsOptions{
			State:       gitea.StateOpen,
			ListOptions: gitea.ListOptions{Page: page, PageSize: defaultPerPage},
		})
		if err != nil {
			return nil, &forge.Error{Forge: "gitea", Message: "failed to list pull requests", Err: err}
		}
		for _, pr := range prs {
			result = append(result, g.convertPR(repo, pr))
		}
		if len(prs) < defaultPerPage {
			break
		}
		page++
	}
	return result, nil
}

// GetPullRequest retrieves a single PR.
func (g *Gitea) GetPullRequest(ctx context.Context, repo forge.Repo, number int) (*forge.PullRequest, error) {
	pr, _, err := g.client.GetPullRequest(repo.Owner, repo.Name, int64(number))
	if err != nil {
		return nil, &forge.Error{Forge: "gitea", Message: "failed to get pull request", Err: err}
	}
	return g.convertPR(repo, pr), nil
}

// SetTitle updates the PR title.
func (g *Gitea) SetTitle(ctx context.Context, repo forge.Repo, number int, title string) error {
	_, _, err := g.client.EditPullRequest(repo.Owner, repo.Name, int64(number), gitea.EditPullRequestOption{
		Title: title,
	})
	if err != nil {
		return &forge.Error{Forge: "gitea", Message: "failed to set title", Err: err}
	}
	return nil
}

// SetBody updates the PR body.
func (g *Gitea) SetBody(ctx context.Context, repo forge.Repo, number int, body string) error {
	_, _, err := g.client.EditPullRequest(repo.Owner, repo.Name, int64(number), gitea.EditPullRequestOption{
		Body: &body,
	})
	if err != nil {
		return &forge.Error{Forge: "gitea", Message: "failed to set body", Err: err}
	}
	return nil
}

// labelID resolves a label name to its repository label id, creating
// the label when it does not exist yet.
func (g *Gitea) labelID(repo forge.Repo, name string) (int64, error) {
	if id, ok := g.labelIDs[name]; ok {
		return id, nil
	}

	labels, _, err := g.client.ListRepoLabels(repo.Owner, repo.Name, gitea.ListLabelsOptions{
		ListOptions: gitea.ListOptions{PageSize: defaultPerPage},
	})
	if err != nil {
		return 0, err
	}
	for _, l := range labels {
		g.labelIDs[l.Name] = l.ID
	}
	if id, ok := g.labelIDs[name]; ok {
		return id, nil
	}

	created, _, err := g.client.CreateLabel(repo.Owner, repo.Name, gitea.CreateLabelOption{
		Name:  name,
		Color: "#ededed",
	})
	if err != nil {
		return 0, err
	}
	g.labelIDs[name] = created.ID
	return created.ID, nil
}

// AddLabel adds a label to the PR, creating it in the repo if needed.
func (g *Gitea) AddLabel(ctx context.Context, repo forge.Repo, number int, label string) error {
	id, err := g.labelID(repo, label)
	if err != nil {
		return &forge.Error{Forge: "gitea", Message: "failed to resolve label", Err: err}
	}
	_, _, err = g.client.AddIssueLabels(repo.Owner, repo.Name, int64(number), gitea.IssueLabelsOption{
		Labels: []int64{id},
	})
	if err != nil {
		return &forge.Error{Forge: "gitea", Message: "failed to add label", Err: err}
	}
	return nil
}

// RemoveLabel removes a label from the PR.
func (g *Gitea) RemoveLabel(ctx context.Context, repo forge.Repo, number int, label string) error {
	id, err := g.labelID(repo, label)
	if err != nil {
		return &forge.Error{Forge: "gitea", Message: "failed to resolve label", Err: err}
	}
	if _, err := g.client.DeleteIssueLabel(repo.Owner, repo.Name, int64(number), id); err != nil {
		return &forge.Error{Forge: "gitea", Message: "failed to remove label", Err: err}
	}
	return nil
}

// ListComments lists PR comments, following pagination.
func (g *Gitea) ListComments(ctx context.Context, repo forge.Repo, number int) ([]*forge.Comment, error) {
	var result []*forge.Comment
	page := 1
	for {
		comments, _, err := g.client.ListIssueComments(repo.Owner, repo.Name, int64(number), gitea.ListIssueCommentOptions{
			ListOptions: gitea.ListOptions{Page: page, PageSize: defaultPerPage},
		})
		if err != nil {
			return nil, &forge.Error{Forge: "gitea", Message: "failed to list comments", Err: err}
		}
		for _, c := range comments {
			comment := &forge.Comment{
				ID:        c.ID,
				Body:      c.Body,
				CreatedAt: c.Created,
				UpdatedAt: c.Updated,
			}
			if c.Poster != nil {
				comment.Author = c.Poster.UserName
			}
			result = append(result, comment)
		}
		if len(comments) < defaultPerPage {
			break
		}
		page++
	}
	return result, nil
}

// AddComment posts a new PR comment.
func (g *Gitea) AddComment(ctx context.Context, repo forge.Repo, number int, body string) (*forge.Comment, error) {
	created, _, err := g.client.CreateIssueComment(repo.Owner, repo.Name, int64(number), gitea.CreateIssueCommentOption{
		Body: body,
	})
	if err != nil {
		return nil, &forge.Error{Forge: "gitea", Message: "failed to add comment", Err: err}
	}
	comment := &forge.Comment{
		ID:        created.ID,
		Body:      created.Body,
		CreatedAt: created.Created,
		UpdatedAt: created.Updated,
	}
	if created.Poster != nil {
		comment.Author = created.Poster.UserName
	}
	return comment, nil
}

// UpdateComment rewrites an existing comment.
func (g *Gitea) UpdateComment(ctx context.Context, repo forge.Repo, number int, commentID int64, body string) error {
	_, _, err := g.client.EditIssueComment(repo.Owner, repo.Name, commentID, gitea.EditIssueCommentOption{
		Body: body,
	})
	if err != nil {
		return &forge.Error{Forge: "gitea", Message: "failed to update comment", Err: err}
	}
	return nil
}

// ListReviews lists submitted PR reviews.
func (g *Gitea) ListReviews(ctx context.Context, repo forge.Repo, number int) ([]*forge.Review, error) {
	var result []*forge.Review
	page := 1
	for {
		reviews, _, err := g.client.ListPullReviews(repo.Owner, repo.Name, int64(number), gitea.ListPullReviewsOptions{
			ListOptions: gitea.ListOptions{Page: page, PageSize: defaultPerPage},
		})
		if err != nil {
			return nil, &forge.Error{Forge: "gitea", Message: "failed to list reviews", Err: err}
		}
		for _, r := range reviews {
			review := &forge.Review{
				ID:        r.ID,
				Verdict:   convertReviewState(r.State),
				Hash:      r.CommitID,
				Body:      r.Body,
				CreatedAt: r.Submitted,
			}
			if r.Reviewer != nil {
				review.User = r.Reviewer.UserName
			}
			result = append(result, review)
		}
		if len(reviews) < defaultPerPage {
			break
		}
		page++
	}
	return result, nil
}

func convertReviewState(state gitea.ReviewStateType) forge.Verdict {
	switch state {
	case gitea.ReviewStateApproved:
		return forge.VerdictApproved
	case gitea.ReviewStateRequestChanges:
		return forge.VerdictDisapproved
	default:
		return forge.VerdictComment
	}
}

// ListChecks lists the commit statuses on the given commit.
func (g *Gitea) ListChecks(ctx context.Context, repo forge.Repo, headHash string) ([]*forge.Check, error) {
	statuses, _, err := g.client.ListStatuses(repo.Owner, repo.Name, headHash, gitea.ListStatusesOption{
		ListOptions: gitea.ListOptions{PageSize: defaultPerPage},
	})
	if err != nil {
		return nil, &forge.Error{Forge: "gitea", Message: "failed to list statuses", Err: err}
	}

	var checks []*forge.Check
	for _, s := range statuses {
		checks = append(checks, &forge.Check{
			ID:      s.ID,
			Name:    s.Context,
			Status:  convertStatusState(s.State),
			Title:   s.Context,
			Summary: s.Description,
		})
	}
	return checks, nil
}

// CreateCheck sets a commit status for the check.
func (g *Gitea) CreateCheck(ctx context.Context, repo forge.Repo, headHash string, check *forge.Check) (*forge.Check, error) {
	description := check.Title
	const maxLen = 255
	if len(description) > maxLen {
		description = description[:maxLen-1] + "…"
	}

	status, _, err := g.client.CreateStatus(repo.Owner, repo.Name, headHash, gitea.CreateStatusOption{
		State:       statusState(check.Status),
		Context:     check.Name,
		Description: description,
	})
	if err != nil {
		return nil, &forge.Error{Forge: "gitea", Message: "failed to create status", Err: err}
	}
	out := *check
	out.ID = status.ID
	return &out, nil
}

// UpdateCheck re-sets the commit status; Gitea has no in-place update.
func (g *Gitea) UpdateCheck(ctx context.Context, repo forge.Repo, headHash string, check *forge.Check) error {
	_, err := g.CreateCheck(ctx, repo, headHash, check)
	return err
}

func statusState(status forge.CheckStatus) gitea.StatusState {
	switch status {
	case forge.CheckSuccess:
		return gitea.StatusSuccess
	case forge.CheckFailure:
		return gitea.StatusFailure
	case forge.CheckCancelled:
		return gitea.StatusError
	default:
		return gitea.StatusPending
	}
}

func convertStatusState(state gitea.StatusState) forge.CheckStatus {
	switch state {
	case gitea.StatusSuccess:
		return forge.CheckSuccess
	case gitea.StatusFailure:
		return forge.CheckFailure
	case gitea.StatusError:
		return forge.CheckCancelled
	default:
		return forge.CheckInProgress
	}
}

// FileContents fetches a raw file at the given ref.
func (g *Gitea) FileContents(ctx context.Context, repo forge.Repo, path, ref string) ([]byte, error) {
	data, resp, err := g.client.GetFile(repo.Owner, repo.Name, ref, path)
	if err != nil {
		notFound := resp != nil && resp.StatusCode == http.StatusNotFound
		return nil, &forge.Error{Forge: "gitea", Message: fmt.Sprintf("failed to fetch %s at %s", path, ref), Err: err, NotFound: notFound}
	}
	return data, nil
}

// ListBranches lists all branches, following pagination.
func (g *Gitea) ListBranches(ctx context.Context, repo forge.Repo) ([]string, error) {
	var branches []string
	page := 1
	for {
		list, _, err := g.client.ListRepoBranches(repo.Owner, repo.Name, gitea.ListRepoBranchesOptions{
			ListOptions: gitea.ListOptions{Page: page, PageSize: defaultPerPage},
		})
		if err != nil {
			return nil, &forge.Error{Forge: "gitea", Message: "failed to list branches", Err: err}
		}
		for _, b := range list {
			branches = append(branches, b.Name)
		}
		if len(list) < defaultPerPage {
			break
		}
		page++
	}
	return branches, nil
}
