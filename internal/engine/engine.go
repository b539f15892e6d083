// Package engine schedules pull request reconciliations. Every unit of
// work is one run of a bot against one pull request; the engine keeps
// runs for the same PR serialized and runs distinct PRs on a worker
// pool. Work arrives from periodic forge polls, from due rechecks, and
// from issue tracker updates fanned out to the PRs that solve them.
package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openjdk/jmerge/internal/bot"
	"github.com/openjdk/jmerge/internal/config"
	"github.com/openjdk/jmerge/internal/store"
	"github.com/openjdk/jmerge/pkg/logger"
)

type Engine struct {
	cfg   config.EngineConfig
	store store.Store

	bots       []*bot.Bot
	botsByRepo map[string]*bot.Bot

	queue       *WorkQueue
	dispatcher  *Dispatcher
	itemTimeout time.Duration
	log         *zap.SugaredLogger

	mu      sync.Mutex
	started bool
}

func New(cfg config.EngineConfig, bots []*bot.Bot, st store.Store) *Engine {
	timeout := time.Duration(cfg.ItemTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	e := &Engine{
		cfg:         cfg,
		store:       st,
		bots:        bots,
		botsByRepo:  make(map[string]*bot.Bot, len(bots)),
		queue:       NewWorkQueue(),
		itemTimeout: timeout,
		log:         logger.Sugar().Named("engine"),
	}
	for _, b := range bots {
		e.botsByRepo[b.Repo().FullName()] = b
	}
	e.dispatcher = NewDispatcher(e.queue, DispatcherConfig{
		MaxWorkers: cfg.MaxWorkers,
		QueueSize:  cfg.QueueSize,
	}, e.process)
	return e
}

func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true
	e.dispatcher.Start(ctx)
	e.log.Infow("engine started", "bots", len(e.bots))
}

func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	e.mu.Unlock()

	e.dispatcher.Stop()
	e.log.Info("engine stopped")
}

// Bots returns the configured bots in registration order.
func (e *Engine) Bots() []*bot.Bot {
	return e.bots
}

// BotFor looks up the bot watching a repository by its full name.
func (e *Engine) BotFor(repoFullName string) (*bot.Bot, bool) {
	b, ok := e.botsByRepo[repoFullName]
	return b, ok
}

// Submit queues a reconciliation for one pull request. Returns false
// when the item was coalesced with already-pending work for the PR.
func (e *Engine) Submit(b *bot.Bot, number int, reason string) bool {
	return e.queue.Enqueue(&Item{Bot: b, Number: number, Reason: reason})
}

// SubmitIssue fans an issue tracker update out to every pull request
// recorded as solving the issue.
func (e *Engine) SubmitIssue(issueKey string) int {
	links, err := e.store.IssueLink().PRsForIssue(issueKey)
	if err != nil {
		e.log.Errorw("issue fan-out failed", "issue", issueKey, "error", err)
		return 0
	}

	submitted := 0
	for _, link := range links {
		b, ok := e.botsByRepo[link.RepoFullName]
		if !ok {
			continue
		}
		if e.Submit(b, link.PRNumber, "issue") {
			submitted++
		}
	}
	return submitted
}

// PollSweep lists the open pull requests of every watched repository
// and queues a reconciliation for each. Cached, unchanged PRs are
// cheap: the bot detects the unchanged fingerprint and returns without
// touching the forge. Closed PRs with leftover state are queued once
// more so they get marked closed.
func (e *Engine) PollSweep(ctx context.Context) {
	now := time.Now()
	for _, b := range e.bots {
		prs, err := b.ListOpen(ctx)
		if err != nil {
			e.log.Errorw("poll failed", "repo", b.Repo().FullName(), "error", err)
			continue
		}
		open := make(map[int]bool, len(prs))
		for _, pr := range prs {
			open[pr.Number] = true
			e.Submit(b, pr.Number, "poll")
		}
		e.sweepClosed(b, open)

		if err := e.store.Repository().TouchPoll(b.Repo().FullName(), now); err != nil {
			e.log.Warnw("failed to record poll time", "repo", b.Repo().FullName(), "error", err)
		}
	}
	e.dispatcher.TriggerDispatch()
}

// sweepClosed queues a final run for tracked PRs that no longer show up
// as open, so their state rows get marked closed and eventually swept.
func (e *Engine) sweepClosed(b *bot.Bot, open map[int]bool) {
	repo := b.Repo().FullName()
	states, err := e.store.PRState().ListOpen(repo)
	if err != nil {
		e.log.Warnw("failed to list tracked PRs", "repo", repo, "error", err)
		return
	}
	for _, st := range states {
		if !open[st.PRNumber] {
			e.Submit(b, st.PRNumber, "poll")
		}
	}
}

func (e *Engine) process(ctx context.Context, item *Item) {
	runCtx, cancel := context.WithTimeout(ctx, e.itemTimeout)
	defer cancel()

	log := e.log.With("pr", item.Key(), "reason", item.Reason)
	start := time.Now()
	if err := item.Bot.ProcessNumber(runCtx, item.Number); err != nil {
		log.Errorw("reconciliation failed", "error", err, "duration", time.Since(start))
		return
	}
	log.Debugw("reconciliation finished", "duration", time.Since(start))
}

// Stats reports queue state for the status API.
func (e *Engine) Stats() QueueStats {
	return e.queue.Stats()
}
