package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherProcessesAllItems(t *testing.T) {
	b := newTestBot(t, "openjdk/jdk")
	q := NewWorkQueue()

	var mu sync.Mutex
	processed := map[int]int{}
	d := NewDispatcher(q, DispatcherConfig{MaxWorkers: 3}, func(ctx context.Context, item *Item) {
		mu.Lock()
		processed[item.Number]++
		mu.Unlock()
	})

	d.Start(context.Background())
	defer d.Stop()

	for n := 1; n <= 10; n++ {
		require.True(t, q.Enqueue(queueItem(b, n)))
	}
	d.TriggerDispatch()

	require.Eventually(t, q.IsEmpty, 5*time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, processed, 10)
	for n, count := range processed {
		assert.Equal(t, 1, count, "PR %d processed more than once", n)
	}
}

func TestDispatcherNeverRunsSamePRConcurrently(t *testing.T) {
	b := newTestBot(t, "openjdk/jdk")
	q := NewWorkQueue()

	var inFlight int32
	var violations int32
	d := NewDispatcher(q, DispatcherConfig{MaxWorkers: 4}, func(ctx context.Context, item *Item) {
		if atomic.AddInt32(&inFlight, 1) > 1 {
			atomic.AddInt32(&violations, 1)
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
	})

	d.Start(context.Background())
	defer d.Stop()

	// hammer a single PR: every enqueue either coalesces or runs alone
	for i := 0; i < 20; i++ {
		q.Enqueue(queueItem(b, 1))
		time.Sleep(2 * time.Millisecond)
	}

	require.Eventually(t, q.IsEmpty, 5*time.Second, 10*time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&violations))
}

func TestDispatcherRunsDistinctPRsConcurrently(t *testing.T) {
	b := newTestBot(t, "openjdk/jdk")
	q := NewWorkQueue()

	var peak, current int32
	release := make(chan struct{})
	d := NewDispatcher(q, DispatcherConfig{MaxWorkers: 4}, func(ctx context.Context, item *Item) {
		c := atomic.AddInt32(&current, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if c <= p || atomic.CompareAndSwapInt32(&peak, p, c) {
				break
			}
		}
		<-release
		atomic.AddInt32(&current, -1)
	})

	d.Start(context.Background())

	for n := 1; n <= 4; n++ {
		q.Enqueue(queueItem(b, n))
	}
	d.TriggerDispatch()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&current) == 4
	}, 5*time.Second, 10*time.Millisecond)
	close(release)

	require.Eventually(t, q.IsEmpty, 5*time.Second, 10*time.Millisecond)
	d.Stop()
	assert.Equal(t, int32(4), atomic.LoadInt32(&peak))
}

func TestDispatcherStopWaitsForWorkers(t *testing.T) {
	b := newTestBot(t, "openjdk/jdk")
	q := NewWorkQueue()

	var done int32
	d := NewDispatcher(q, DispatcherConfig{MaxWorkers: 1}, func(ctx context.Context, item *Item) {
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&done, 1)
	})

	d.Start(context.Background())
	q.Enqueue(queueItem(b, 1))
	d.TriggerDispatch()

	require.Eventually(t, func() bool {
		return q.Stats().RunningItems == 1
	}, 5*time.Second, time.Millisecond)

	d.Stop()
	assert.Equal(t, int32(1), atomic.LoadInt32(&done), "in-flight item must finish before Stop returns")
}
