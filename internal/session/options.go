package session

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/okian/versus/internal/domain/pairing"
	"github.com/okian/versus/internal/domain/rating"
	"github.com/okian/versus/internal/domain/similarity"
	"github.com/okian/versus/pkg/logger"
)

// Option applies a configuration option to the Controller.
type Option func(*Controller)

// WithID sets the session id. A random uuid is used otherwise.
func WithID(id string) Option {
	return func(c *Controller) {
		if id != "" {
			c.id = id
		}
	}
}

// WithClock sets the time source for cooldowns, windows and the cache.
func WithClock(clock Clock) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLocation sets the time zone the weekly submission window is computed in.
func WithLocation(loc *time.Location) Option {
	return func(c *Controller) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithCooldown sets the minimum spacing between two accepted votes.
func WithCooldown(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.cooldown = d
		}
	}
}

// WithCacheTTL sets the leaderboard cache lifetime.
func WithCacheTTL(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.cacheTTL = d
		}
	}
}

// WithSelector shares a pair selector between controllers.
func WithSelector(s *pairing.Selector) Option {
	return func(c *Controller) {
		if s != nil {
			c.selector = s
		}
	}
}

// WithMatcher sets the near-duplicate matcher used on submissions.
func WithMatcher(m *similarity.Matcher) Option {
	return func(c *Controller) {
		if m != nil {
			c.matcher = m
		}
	}
}

// WithRatingModel sets the model used for previews. It must match the
// model the backend applies.
func WithRatingModel(m *rating.Model) Option {
	return func(c *Controller) {
		if m != nil {
			c.rating = m
		}
	}
}

// WithTracer sets the tracer for vote and submit spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}
