// Package service wires the store, the board projection, the vote event
// pipeline and the session registry behind the HTTP API.
package service

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	eventqueue "github.com/okian/versus/internal/adapters/mq/queue"
	workerpool "github.com/okian/versus/internal/adapters/mq/worker"
	"github.com/okian/versus/internal/adapters/repository"
	"github.com/okian/versus/internal/domain/dedupe"
	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/pairing"
	"github.com/okian/versus/internal/domain/rating"
	"github.com/okian/versus/internal/domain/similarity"
	"github.com/okian/versus/internal/session"
	"github.com/okian/versus/pkg/logger"
	"github.com/okian/versus/pkg/metrics"
)

// Service defaults.
const (
	defaultQueueSize   = 10_000
	defaultDedupeSize  = 100_000
	defaultMaxSessions = 10_000
	defaultIdleTTL     = 30 * time.Minute

	tracerName = "github.com/okian/versus/internal/app"
)

// Service implements the API dependencies for the ranking engine.
type Service struct {
	mu sync.RWMutex

	// Core components
	raw      repository.Store
	store    repository.Store
	board    *repository.Board
	deduper  dedupe.Deduper
	queue    *eventqueue.InMemoryQueue
	pool     *workerpool.Pool
	cron     *cron.Cron
	backend  *backend
	sessions *xsync.MapOf[string, *session.Controller]

	// Shared by every session
	selector *pairing.Selector
	matcher  *similarity.Matcher
	rating   *rating.Model
	clock    session.Clock
	loc      *time.Location
	cooldown time.Duration
	cacheTTL time.Duration
	tracer   trace.Tracer

	// Configuration
	workerCount   int
	queueSize     int
	dedupeSize    int
	maxSessions   int
	idleTTL       time.Duration
	reconcileSpec string
	sweepSpec     string

	// State
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: runtime.NumCPU(),
		queueSize:   defaultQueueSize,
		dedupeSize:  defaultDedupeSize,
		maxSessions: defaultMaxSessions,
		idleTTL:     defaultIdleTTL,
		clock:       session.SystemClock,
		loc:         time.Local,
		cooldown:    session.DefaultCooldown,
		cacheTTL:    session.DefaultCacheTTL,
		sessions:    xsync.NewMapOf[string, *session.Controller](),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rating == nil {
		s.rating = rating.New()
	}
	if s.selector == nil {
		s.selector = pairing.NewSelector()
	}
	if s.matcher == nil {
		s.matcher = similarity.NewMatcher()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	return s
}

// Start initializes and starts the service components. The board is built
// from the store before Start returns.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting versus service...")

	if s.raw == nil {
		s.raw = repository.NewMemStore(repository.WithRatingModel(s.rating), repository.WithLocation(s.loc))
		s.logger.Info(ctx, "using in-memory store")
	}
	s.store = newBreakerStore(s.raw, s.logger)
	s.board = repository.NewBoard()
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
		eventqueue.WithOnDrop(s.eventDropped),
	)
	s.backend = &backend{store: s.store, publish: s.publish}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.board)
	s.pool.Start(runCtx)

	if err := s.reconcile(ctx); err != nil {
		s.logger.Warn(ctx, "initial board build failed", logger.Error(err))
	}

	s.cron = cron.New(cron.WithLocation(s.loc))
	jobs := []struct {
		spec string
		run  func()
	}{
		{s.reconcileSpec, func() {
			if err := s.reconcile(runCtx); err != nil {
				s.logger.Warn(runCtx, "board reconcile failed", logger.Error(err))
			}
		}},
		{s.sweepSpec, func() {
			s.sweep(runCtx)
			reportSystem()
		}},
	}
	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(job.spec, job.run); err != nil {
			cancel()
			_ = s.pool.Shutdown(ctx)
			return fmt.Errorf("schedule %q: %w", job.spec, err)
		}
	}
	s.cron.Start()

	s.cancel = cancel
	s.started = true
	s.logger.Info(ctx, "versus service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("maxSessions", s.maxSessions),
	)
	return nil
}

// Stop drains the vote pipeline, drops every session and closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping versus service...")

	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}

	var firstErr error
	if err := s.pool.Shutdown(ctx); err != nil {
		firstErr = err
	}
	s.cancel()

	s.sessions.Clear()
	metrics.UpdateSessionsActive(0)

	if err := s.raw.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close store: %w", err)
	}

	s.started = false
	s.logger.Info(ctx, "versus service stopped")
	return firstErr
}

// publish hands a committed vote to the board workers. A refused event is
// repaired by the next reconcile.
func (s *Service) publish(ctx context.Context, e model.VoteEvent) {
	s.queue.Enqueue(ctx, e)
}

func (s *Service) eventDropped(ctx context.Context, e model.VoteEvent, reason string) {
	s.logger.Warn(ctx, "vote event dropped",
		logger.String("vote", e.VoteID),
		logger.Int64("list", int64(e.ListID)),
		logger.String("reason", reason))
}

// running returns the backend, or ErrNotStarted.
func (s *Service) running() (*backend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.backend, nil
}

// Store returns the guarded store. It is nil before Start.
func (s *Service) Store() repository.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"maxSessions": s.maxSessions,
		"sessions":    s.sessions.Size(),
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		lists := make(map[string]int)
		for _, id := range s.board.Lists() {
			lists[strconv.FormatInt(int64(id), 10)] = s.board.Count(ctx, id)
		}
		stats["queueLength"] = queueLen
		stats["boardItems"] = lists
		stats["dedupeEntries"] = s.deduper.Size()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateSessionsActive(s.sessions.Size())
	}
	return stats
}

func reportSystem() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	metrics.UpdateSystemMemoryUsage(ms.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
