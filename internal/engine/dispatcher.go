package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openjdk/jmerge/pkg/logger"
)

// Dispatcher moves items from the work queue to a fixed pool of
// workers. Per-PR serialization is enforced by the queue itself; the
// dispatcher only controls overall concurrency.
type Dispatcher struct {
	queue       *WorkQueue
	items       chan *Item
	maxWorkers  int
	processFunc func(context.Context, *Item)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *zap.SugaredLogger

	mu      sync.Mutex
	started bool
}

type DispatcherConfig struct {
	MaxWorkers int
	QueueSize  int
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		MaxWorkers: 4,
		QueueSize:  100,
	}
}

func NewDispatcher(queue *WorkQueue, cfg DispatcherConfig, processFunc func(context.Context, *Item)) *Dispatcher {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	return &Dispatcher{
		queue:       queue,
		items:       make(chan *Item, cfg.QueueSize),
		maxWorkers:  cfg.MaxWorkers,
		processFunc: processFunc,
		log:         logger.Sugar().Named("dispatcher"),
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true
	d.ctx, d.cancel = context.WithCancel(ctx)

	for i := 0; i < d.maxWorkers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.wg.Add(1)
	go d.dispatchLoop()

	d.log.Infow("dispatcher started", "workers", d.maxWorkers)
}

// Stop cancels the dispatch loop and waits for in-flight items.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.started = false
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
	d.log.Info("dispatcher stopped")
}

// TriggerDispatch nudges the loop, used after bulk enqueues.
func (d *Dispatcher) TriggerDispatch() {
	d.queue.signalReady()
}

func (d *Dispatcher) dispatchLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-d.queue.ItemReady():
			d.tryDispatch()
		case <-ticker.C:
			// fallback sweep for items freed by MarkComplete
			d.tryDispatch()
		}
	}
}

func (d *Dispatcher) tryDispatch() {
	for {
		item := d.queue.Dequeue()
		if item == nil {
			return
		}
		select {
		case d.items <- item:
		case <-d.ctx.Done():
			d.queue.MarkComplete(item.Key())
			return
		}
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case item := <-d.items:
			d.processFunc(d.ctx, item)
			d.queue.MarkComplete(item.Key())
			// the completed PR may have coalesced work waiting
			d.queue.signalReady()
		}
	}
}
