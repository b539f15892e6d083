package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/openjdk/jmerge/internal/bot"
	"github.com/openjdk/jmerge/pkg/logger"
)

// Item is one unit of work: a single reconciliation of one pull request.
// Items carry only the PR number; the worker fetches fresh forge state
// when the item runs, so a stale snapshot can never be acted on.
type Item struct {
	Bot        *bot.Bot
	Number     int
	Reason     string // "poll", "recheck", "issue", "manual"
	EnqueuedAt time.Time
}

// Key identifies the pull request the item belongs to. All work for the
// same key is serialized.
func (it *Item) Key() string {
	return fmt.Sprintf("%s#%d", it.Bot.Repo().FullName(), it.Number)
}

// prSlot tracks the state of one pull request in the queue. At most one
// item is pending per PR: enqueueing while an item is already pending
// coalesces with it, since a reconciliation always reads current state.
type prSlot struct {
	pending *Item
	running bool
}

// WorkQueue serializes reconciliations per pull request while letting
// different pull requests proceed concurrently.
type WorkQueue struct {
	mu    sync.Mutex
	slots map[string]*prSlot

	// itemReady signals the dispatcher that an item may be available.
	itemReady chan struct{}
}

// QueueStats is a point-in-time snapshot of queue state.
type QueueStats struct {
	PendingItems int `json:"pending_items"`
	RunningItems int `json:"running_items"`
	TrackedPRs   int `json:"tracked_prs"`
}

func NewWorkQueue() *WorkQueue {
	return &WorkQueue{
		slots:     make(map[string]*prSlot),
		itemReady: make(chan struct{}, 100),
	}
}

// Enqueue adds an item for its pull request. Returns false when work
// for the PR is already pending and the item was coalesced with it.
func (q *WorkQueue) Enqueue(item *Item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := item.Key()
	slot, ok := q.slots[key]
	if !ok {
		slot = &prSlot{}
		q.slots[key] = slot
	}
	if slot.pending != nil {
		logger.Sugar().Named("engine").Debugw("work item coalesced",
			"pr", key, "reason", item.Reason)
		return false
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now()
	}
	slot.pending = item
	q.signalReady()
	return true
}

// Dequeue returns the next runnable item, or nil when every pending
// item belongs to a pull request that is already being processed.
func (q *WorkQueue) Dequeue() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, slot := range q.slots {
		if slot.pending != nil && !slot.running {
			item := slot.pending
			slot.pending = nil
			slot.running = true
			return item
		}
	}
	return nil
}

// MarkComplete records that the item for key finished. If new work
// arrived for the PR while it ran, the dispatcher is signalled again.
func (q *WorkQueue) MarkComplete(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	slot, ok := q.slots[key]
	if !ok {
		return
	}
	slot.running = false
	if slot.pending != nil {
		q.signalReady()
		return
	}
	delete(q.slots, key)
}

// HasPending reports whether work for the pull request is queued or running.
func (q *WorkQueue) HasPending(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.slots[key]
	return ok
}

func (q *WorkQueue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.slots) == 0
}

func (q *WorkQueue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	var stats QueueStats
	stats.TrackedPRs = len(q.slots)
	for _, slot := range q.slots {
		if slot.pending != nil {
			stats.PendingItems++
		}
		if slot.running {
			stats.RunningItems++
		}
	}
	return stats
}

// ItemReady exposes the readiness signal for the dispatcher loop.
func (q *WorkQueue) ItemReady() <-chan struct{} {
	return q.itemReady
}

func (q *WorkQueue) signalReady() {
	select {
	case q.itemReady <- struct{}{}:
	default:
		// a wakeup is already pending
	}
}
