package pairing

import "math/rand/v2"

// Option applies a configuration option to the Selector.
type Option func(*Selector)

// WithRand sets the random source. Tests pass a seeded generator.
func WithRand(r *rand.Rand) Option {
	return func(s *Selector) {
		s.rng = r
	}
}

// WithMatchGap sets the maximum rating difference for a regular partner.
func WithMatchGap(gap float64) Option {
	return func(s *Selector) {
		if gap > 0 {
			s.matchGap = gap
		}
	}
}

// WithSlice sets the bounds of the least-played anchor slice.
func WithSlice(minSize, maxSize int) Option {
	return func(s *Selector) {
		if minSize > 0 && maxSize >= minSize {
			s.minSlice = minSize
			s.maxSlice = maxSize
		}
	}
}
