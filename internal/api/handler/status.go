package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/openjdk/jmerge/internal/engine"
	"github.com/openjdk/jmerge/internal/store"
	"github.com/openjdk/jmerge/pkg/errors"
)

// Status serves the read-only inspection endpoints: configured bots,
// queue state and the persisted per-PR memory.
type Status struct {
	engine *engine.Engine
	store  store.Store
}

func NewStatus(eng *engine.Engine, st store.Store) *Status {
	return &Status{engine: eng, store: st}
}

// BotInfo describes one configured bot.
type BotInfo struct {
	Name string `json:"name"`
	Repo string `json:"repo"`
}

// ListBots returns the configured bots.
// GET /api/v1/bots
func (h *Status) ListBots(c *gin.Context) {
	bots := h.engine.Bots()
	out := make([]BotInfo, 0, len(bots))
	for _, b := range bots {
		out = append(out, BotInfo{Name: b.Name(), Repo: b.Repo().FullName()})
	}
	respondOK(c, out)
}

// QueueStats returns a snapshot of the work queue.
// GET /api/v1/queue
func (h *Status) QueueStats(c *gin.Context) {
	respondOK(c, h.engine.Stats())
}

// ListRepositories returns the watched repositories with poll times.
// GET /api/v1/repositories
func (h *Status) ListRepositories(c *gin.Context) {
	repos, err := h.store.Repository().List()
	if err != nil {
		respondError(c, errors.Wrap(errors.ErrCodeDBQuery, "failed to list repositories", err))
		return
	}
	respondOK(c, repos)
}

// ListPRStates returns the tracked open PRs of one repository.
// GET /api/v1/repositories/:owner/:name/prs
func (h *Status) ListPRStates(c *gin.Context) {
	states, err := h.store.PRState().ListOpen(repoParam(c))
	if err != nil {
		respondError(c, errors.Wrap(errors.ErrCodeDBQuery, "failed to list pull request state", err))
		return
	}
	respondOK(c, states)
}

// GetPRState returns the persisted state of one PR together with its
// command ledger and issue links.
// GET /api/v1/repositories/:owner/:name/prs/:number
func (h *Status) GetPRState(c *gin.Context) {
	number, err := numberParam(c)
	if err != nil {
		respondError(c, err)
		return
	}
	repo := repoParam(c)

	state, err := h.store.PRState().Get(repo, number)
	if err != nil {
		respondError(c, errors.Wrap(errors.ErrCodeDBQuery, "failed to load pull request state", err))
		return
	}
	if state == nil {
		respondError(c, errors.ErrNotFound("pull request state"))
		return
	}

	commands, err := h.store.Command().ListForPR(repo, number)
	if err != nil {
		respondError(c, errors.Wrap(errors.ErrCodeDBQuery, "failed to load command ledger", err))
		return
	}
	links, err := h.store.IssueLink().ListForPR(repo, number)
	if err != nil {
		respondError(c, errors.Wrap(errors.ErrCodeDBQuery, "failed to load issue links", err))
		return
	}

	respondOK(c, gin.H{
		"state":    state,
		"commands": commands,
		"issues":   links,
	})
}

// ListIssuePRs returns the PRs recorded as solving an issue.
// GET /api/v1/issues/:key/prs
func (h *Status) ListIssuePRs(c *gin.Context) {
	links, err := h.store.IssueLink().PRsForIssue(c.Param("key"))
	if err != nil {
		respondError(c, errors.Wrap(errors.ErrCodeDBQuery, "failed to load issue links", err))
		return
	}
	respondOK(c, links)
}
