package service

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/okian/versus/internal/adapters/repository"
	"github.com/okian/versus/internal/config"
	"github.com/okian/versus/internal/domain/pairing"
	"github.com/okian/versus/internal/domain/rating"
	"github.com/okian/versus/internal/domain/similarity"
	"github.com/okian/versus/internal/session"
	"github.com/okian/versus/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of board workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the vote event queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many vote request ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore sets the storage collaborator. The service owns it and closes
// it on Stop. An in-memory store is used otherwise.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.raw = st
		}
	}
}

// WithClock sets the time source handed to sessions and the idle sweep.
func WithClock(c session.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLocation sets the time zone of weekly windows and cron schedules.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithCooldown sets the per-session vote cooldown.
func WithCooldown(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.cooldown = d
		}
	}
}

// WithCacheTTL sets the per-session leaderboard cache lifetime.
func WithCacheTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.cacheTTL = d
		}
	}
}

// WithRatingModel sets the model used by the in-memory store and previews.
func WithRatingModel(m *rating.Model) Option {
	return func(s *Service) {
		if m != nil {
			s.rating = m
		}
	}
}

// WithSelector shares a pair selector across all sessions.
func WithSelector(sel *pairing.Selector) Option {
	return func(s *Service) {
		if sel != nil {
			s.selector = sel
		}
	}
}

// WithMatcher sets the near-duplicate matcher for submissions.
func WithMatcher(m *similarity.Matcher) Option {
	return func(s *Service) {
		if m != nil {
			s.matcher = m
		}
	}
}

// WithSessionLimits caps the registry and sets the idle eviction age.
func WithSessionLimits(maxSessions int, idle time.Duration) Option {
	return func(s *Service) {
		if maxSessions > 0 {
			s.maxSessions = maxSessions
		}
		if idle > 0 {
			s.idleTTL = idle
		}
	}
}

// WithSchedules sets the cron specs of the board reconcile and the idle
// session sweep. An empty spec disables the job.
func WithSchedules(reconcile, sweep string) Option {
	return func(s *Service) {
		s.reconcileSpec = reconcile
		s.sweepSpec = sweep
	}
}

// WithTracer sets the tracer for service and session spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// ConfigOptions translates cfg into service options. The store is not
// included; open it with OpenStore and pass it with WithStore.
func ConfigOptions(cfg *config.Config) ([]Option, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return []Option{
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.EventQueueSize),
		WithDedupeSize(cfg.DedupeSize),
		WithLocation(loc),
		WithCooldown(cfg.VoteCooldown()),
		WithCacheTTL(cfg.LeaderboardCacheTTL()),
		WithSelector(pairing.NewSelector(pairing.WithMatchGap(cfg.MatchGapCap))),
		WithMatcher(similarity.NewMatcher(similarity.WithThreshold(cfg.SimilarityThreshold))),
		WithSessionLimits(cfg.MaxSessions, cfg.SessionIdleTTL()),
		WithSchedules(cfg.ReconcileSchedule, cfg.SessionSweepSchedule),
	}, nil
}
