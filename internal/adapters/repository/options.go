package repository

import (
	"math/rand/v2"
	"time"

	"github.com/okian/versus/internal/domain/rating"
)

// Option applies a configuration option to the MemStore.
type Option func(*MemStore)

// WithClock sets the time source used when a ballot or submission has no timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *MemStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the zone of the weekly submission window. By default
// the zone of the submission time is used.
func WithLocation(loc *time.Location) Option {
	return func(s *MemStore) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithRatingModel sets the rating model applied by ApplyVote.
func WithRatingModel(m *rating.Model) Option {
	return func(s *MemStore) {
		if m != nil {
			s.rating = m
		}
	}
}

// BoardOption applies a configuration option to the Board.
type BoardOption func(*Board)

// WithBoardRand sets the source of treap priorities.
func WithBoardRand(r *rand.Rand) BoardOption {
	return func(b *Board) {
		if r != nil {
			b.rng = r
		}
	}
}
