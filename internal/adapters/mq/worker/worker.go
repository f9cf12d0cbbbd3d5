// Package worker applies committed vote events to the leaderboard projection.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/versus/internal/adapters/mq/queue"
	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/pkg/logger"
	"github.com/okian/versus/pkg/metrics"
)

// Default worker configuration constants.
const (
	metricsUpdateInterval = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// ErrMalformedEvent is returned for events whose items do not belong to the event's list.
var ErrMalformedEvent = errors.New("malformed vote event")

// Event abstracts what workers read off the queue.
type Event = queue.Event

// Projector receives the post-vote state of items. Upsert reports false when
// the update was older than what the projector already holds.
type Projector interface {
	Upsert(ctx context.Context, it model.Item) bool
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Worker processes events until its queue closes.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)

	// Shutdown stops the worker without waiting for the queue to drain.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue     Queue
	projector Projector
	name      string
	busy      *atomic.Int64

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, p Projector, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		projector: p,
		name:      "worker",
		busy:      new(atomic.Int64),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named("worker")
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			w.busy.Add(1)
			if err := w.process(ctx, event); err != nil {
				w.logger.Error(ctx, "error processing vote event",
					logger.String("vote_id", event.VoteID),
					logger.Error(err))
			}
			w.busy.Add(-1)
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stop()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run has returned.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) stop() {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
}

func (w *InMemoryWorker) process(ctx context.Context, e Event) error { //nolint:gocritic // hugeParam: Event is passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if e.Winner.ListID != e.ListID || e.Loser.ListID != e.ListID || e.Winner.ID == "" || e.Loser.ID == "" {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "malformed_event")
		return fmt.Errorf("%w: %s", ErrMalformedEvent, e.VoteID)
	}

	for _, it := range []model.Item{e.Winner, e.Loser} {
		if !w.projector.Upsert(ctx, it) {
			w.logger.Debug(ctx, "stale board update ignored",
				logger.String("vote_id", e.VoteID),
				logger.String("item_id", it.ID),
				logger.Int("matches", it.Matches))
		}
	}
	return nil
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	busy    *atomic.Int64

	shutdown chan struct{}
	once     sync.Once

	logger logger.Logger
}

// NewPool creates a worker pool. A count below one uses runtime.NumCPU().
func NewPool(workerCount int, q Queue, p Projector) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	pool := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    q,
		busy:     new(atomic.Int64),
		shutdown: make(chan struct{}),
		logger:   logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(q, p,
			WithLogger(pool.logger),
			WithName("worker-"+strconv.Itoa(i)),
			withBusy(pool.busy))
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerIdleCount(workerCount)
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.reportMetrics(ctx)
}

func (p *Pool) reportMetrics(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			active := int(p.busy.Load())
			metrics.UpdateWorkerActiveCount(active)
			metrics.UpdateWorkerIdleCount(len(p.workers) - active)
		}
	}
}

// Shutdown closes the queue and waits for workers to drain what is buffered.
// Workers still running when ctx (or the pool's own timeout) expires are
// stopped without draining.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	p.once.Do(func() { close(p.shutdown) })

	drainCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-drainCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
			w.stop()
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerIdleCount(0)
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", drainCtx.Err())
	}
	return nil
}
