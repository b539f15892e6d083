// Package memory provides an in-memory forge implementation for tests.
// It records every mutation so tests can assert that the reconciler is
// idempotent and emits minimal deltas.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openjdk/jmerge/internal/forge"
)

func init() {
	forge.Register("memory", func(opts *forge.Options) (forge.Forge, error) {
		return NewForge(forge.Repo{Owner: "test", Name: "repo"}, opts.BotUser), nil
	})
}

type prState struct {
	pr       forge.PullRequest
	comments []*forge.Comment
	reviews  []*forge.Review
}

// Forge is an in-memory forge holding a single repository.
type Forge struct {
	mu sync.Mutex

	repo     forge.Repo
	botUser  string
	prs      map[int]*prState
	checks   map[string][]*forge.Check // head hash -> checks
	files    map[string][]byte         // ref + "\x00" + path -> contents
	branches []string

	nextID    int64
	mutations []string
	now       time.Time
}

// NewForge creates an empty in-memory forge for the given repository.
func NewForge(repo forge.Repo, botUser string) *Forge {
	if botUser == "" {
		botUser = "jmerge-bot"
	}
	return &Forge{
		repo:     repo,
		botUser:  botUser,
		prs:      make(map[int]*prState),
		checks:   make(map[string][]*forge.Check),
		files:    make(map[string][]byte),
		branches: []string{"master"},
		nextID:   1000,
		now:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *Forge) id() int64 {
	f.nextID++
	return f.nextID
}

// tick advances the fake clock so ordered events get distinct times.
func (f *Forge) tick() time.Time {
	f.now = f.now.Add(time.Second)
	return f.now
}

func (f *Forge) recordMutation(kind string) {
	f.mutations = append(f.mutations, kind)
}

// Mutations returns the mutation kinds applied since the last reset.
func (f *Forge) Mutations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.mutations))
	copy(out, f.mutations)
	return out
}

// MutationCount returns the number of mutations since the last reset.
func (f *Forge) MutationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.mutations)
}

// ResetMutations clears the mutation log.
func (f *Forge) ResetMutations() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations = nil
}

// AddPullRequest seeds a pull request. Missing fields get defaults.
func (f *Forge) AddPullRequest(pr *forge.PullRequest) *forge.PullRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	if pr.Repo == (forge.Repo{}) {
		pr.Repo = f.repo
	}
	if pr.TargetRef == "" {
		pr.TargetRef = "master"
	}
	pr.Open = true
	if pr.CreatedAt.IsZero() {
		pr.CreatedAt = f.tick()
	}
	f.prs[pr.Number] = &prState{pr: *pr}
	return pr
}

// AddReview seeds a review on the PR.
func (f *Forge) AddReview(number int, review *forge.Review) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state := f.prs[number]
	if review.ID == 0 {
		review.ID = f.id()
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = f.tick()
	}
	if review.Hash == "" {
		review.Hash = state.pr.HeadHash
	}
	if review.TargetRef == "" {
		review.TargetRef = state.pr.TargetRef
	}
	state.reviews = append(state.reviews, review)
}

// AddUserComment seeds a comment authored by a forge user, bypassing
// the mutation log. Used to simulate incoming commands.
func (f *Forge) AddUserComment(number int, author, body string) *forge.Comment {
	f.mu.Lock()
	defer f.mu.Unlock()

	comment := &forge.Comment{
		ID:        f.id(),
		Author:    author,
		Body:      body,
		CreatedAt: f.tick(),
	}
	state := f.prs[number]
	state.comments = append(state.comments, comment)
	return comment
}

// SetHead moves the PR head, simulating a push.
// SetOpen flips a pull request between open and closed.
func (f *Forge) SetOpen(number int, open bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prs[number].pr.Open = open
}

func (f *Forge) SetHead(number int, headHash string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prs[number].pr.HeadHash = headHash
}

// SetFile seeds file contents at a ref.
func (f *Forge) SetFile(ref, path string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[ref+"\x00"+path] = data
}

// SetBranches replaces the branch list.
func (f *Forge) SetBranches(branches ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.branches = branches
}

// PR returns a copy of the current PR state.
func (f *Forge) PR(number int) forge.PullRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prs[number].pr
}

// Comments returns the comments currently on the PR.
func (f *Forge) Comments(number int) []*forge.Comment {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := f.prs[number]
	out := make([]*forge.Comment, len(state.comments))
	copy(out, state.comments)
	return out
}

// Checks returns the checks attached to the commit.
func (f *Forge) Checks(headHash string) []*forge.Check {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*forge.Check, len(f.checks[headHash]))
	copy(out, f.checks[headHash])
	return out
}

// forge.Forge implementation

func (f *Forge) Name() string { return "memory" }

func (f *Forge) BaseURL() string { return "https://forge.test" }

func (f *Forge) CloneURL(repo forge.Repo) string {
	return "https://forge.test/" + repo.FullName() + ".git"
}

func (f *Forge) AuthenticatedCloneURL(repo forge.Repo) string {
	return f.CloneURL(repo)
}

func (f *Forge) CurrentUser(ctx context.Context) (string, error) {
	return f.botUser, nil
}

func (f *Forge) ListOpenPullRequests(ctx context.Context, repo forge.Repo) ([]*forge.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []*forge.PullRequest
	for _, state := range f.prs {
		if state.pr.Open {
			pr := state.pr
			result = append(result, &pr)
		}
	}
	return result, nil
}

func (f *Forge) GetPullRequest(ctx context.Context, repo forge.Repo, number int) (*forge.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, ok := f.prs[number]
	if !ok {
		return nil, &forge.Error{Forge: "memory", Message: fmt.Sprintf("pull request %d not found", number)}
	}
	pr := state.pr
	return &pr, nil
}

func (f *Forge) SetTitle(ctx context.Context, repo forge.Repo, number int, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, ok := f.prs[number]
	if !ok {
		return &forge.Error{Forge: "memory", Message: fmt.Sprintf("pull request %d not found", number)}
	}
	f.recordMutation("setTitle")
	state.pr.Title = title
	return nil
}

func (f *Forge) SetBody(ctx context.Context, repo forge.Repo, number int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, ok := f.prs[number]
	if !ok {
		return &forge.Error{Forge: "memory", Message: fmt.Sprintf("pull request %d not found", number)}
	}
	f.recordMutation("setBody")
	state.pr.Body = body
	return nil
}

func (f *Forge) AddLabel(ctx context.Context, repo forge.Repo, number int, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, ok := f.prs[number]
	if !ok {
		return &forge.Error{Forge: "memory", Message: fmt.Sprintf("pull request %d not found", number)}
	}
	for _, l := range state.pr.Labels {
		if l == label {
			return nil
		}
	}
	f.recordMutation("addLabel")
	state.pr.Labels = append(state.pr.Labels, label)
	return nil
}

func (f *Forge) RemoveLabel(ctx context.Context, repo forge.Repo, number int, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, ok := f.prs[number]
	if !ok {
		return &forge.Error{Forge: "memory", Message: fmt.Sprintf("pull request %d not found", number)}
	}
	for i, l := range state.pr.Labels {
		if l == label {
			f.recordMutation("removeLabel")
			state.pr.Labels = append(state.pr.Labels[:i], state.pr.Labels[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *Forge) ListComments(ctx context.Context, repo forge.Repo, number int) ([]*forge.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, ok := f.prs[number]
	if !ok {
		return nil, &forge.Error{Forge: "memory", Message: fmt.Sprintf("pull request %d not found", number)}
	}
	out := make([]*forge.Comment, len(state.comments))
	for i, c := range state.comments {
		copied := *c
		out[i] = &copied
	}
	return out, nil
}

func (f *Forge) AddComment(ctx context.Context, repo forge.Repo, number int, body string) (*forge.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, ok := f.prs[number]
	if !ok {
		return nil, &forge.Error{Forge: "memory", Message: fmt.Sprintf("pull request %d not found", number)}
	}
	f.recordMutation("addComment")
	comment := &forge.Comment{
		ID:        f.id(),
		Author:    f.botUser,
		Body:      body,
		CreatedAt: f.tick(),
	}
	state.comments = append(state.comments, comment)
	copied := *comment
	return &copied, nil
}

func (f *Forge) UpdateComment(ctx context.Context, repo forge.Repo, number int, commentID int64, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, ok := f.prs[number]
	if !ok {
		return &forge.Error{Forge: "memory", Message: fmt.Sprintf("pull request %d not found", number)}
	}
	for _, c := range state.comments {
		if c.ID == commentID {
			f.recordMutation("updateComment")
			c.Body = body
			c.UpdatedAt = f.tick()
			return nil
		}
	}
	return &forge.Error{Forge: "memory", Message: fmt.Sprintf("comment %d not found", commentID)}
}

func (f *Forge) ListReviews(ctx context.Context, repo forge.Repo, number int) ([]*forge.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, ok := f.prs[number]
	if !ok {
		return nil, &forge.Error{Forge: "memory", Message: fmt.Sprintf("pull request %d not found", number)}
	}
	out := make([]*forge.Review, len(state.reviews))
	for i, r := range state.reviews {
		copied := *r
		out[i] = &copied
	}
	return out, nil
}

func (f *Forge) ListChecks(ctx context.Context, repo forge.Repo, headHash string) ([]*forge.Check, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*forge.Check, len(f.checks[headHash]))
	for i, c := range f.checks[headHash] {
		copied := *c
		out[i] = &copied
	}
	return out, nil
}

func (f *Forge) CreateCheck(ctx context.Context, repo forge.Repo, headHash string, check *forge.Check) (*forge.Check, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.recordMutation("createCheck")
	created := *check
	created.ID = f.id()
	created.StartedAt = f.tick()
	f.checks[headHash] = append(f.checks[headHash], &created)
	out := created
	return &out, nil
}

func (f *Forge) UpdateCheck(ctx context.Context, repo forge.Repo, headHash string, check *forge.Check) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, c := range f.checks[headHash] {
		if c.ID == check.ID {
			f.recordMutation("updateCheck")
			updated := *check
			updated.StartedAt = c.StartedAt
			f.checks[headHash][i] = &updated
			return nil
		}
	}
	return &forge.Error{Forge: "memory", Message: fmt.Sprintf("check %d not found", check.ID)}
}

func (f *Forge) FileContents(ctx context.Context, repo forge.Repo, path, ref string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.files[ref+"\x00"+path]
	if !ok {
		return nil, &forge.Error{Forge: "memory", Message: fmt.Sprintf("file %s not found at %s", path, ref), NotFound: true}
	}
	return data, nil
}

func (f *Forge) ListBranches(ctx context.Context, repo forge.Repo) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.branches))
	copy(out, f.branches)
	return out, nil
}

var _ forge.Forge = (*Forge)(nil)
