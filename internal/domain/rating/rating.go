// Package rating computes Elo-style rating updates for a single pairwise vote.
//
// The functions here are pure and are the only place the update formula lives:
// the vote transaction in the stores and the preview endpoint both call Apply.
package rating

import (
	"fmt"
	"math"

	"github.com/okian/versus/internal/domain/model"
)

// Default rating model constants.
const (
	DefaultBaseK    = 24.0
	DefaultGapCap   = 400.0
	DefaultMaxDelta = 25.0

	eloScale        = 400.0
	experienceScale = 20.0
	yearScale       = 50.0
)

// Option applies a configuration option to the Model.
type Option func(*Model)

// WithBaseK sets the undampened K-factor.
func WithBaseK(k float64) Option {
	return func(m *Model) {
		if k > 0 {
			m.baseK = k
		}
	}
}

// WithGapCap sets the rating gap beyond which K is scaled down.
func WithGapCap(gap float64) Option {
	return func(m *Model) {
		if gap > 0 {
			m.gapCap = gap
		}
	}
}

// WithMaxDelta sets the per-vote clamp applied to both deltas.
func WithMaxDelta(d float64) Option {
	return func(m *Model) {
		if d > 0 {
			m.maxDelta = d
		}
	}
}

// Contender is the numeric state of one side of a vote.
type Contender struct {
	Rating  float64
	Matches int
	Year    *int
}

// FromItem extracts the rating-relevant state of an item.
func FromItem(it model.Item) Contender {
	return Contender{Rating: it.Rating, Matches: it.Matches, Year: it.Year}
}

// Outcome is the result of applying one vote.
type Outcome struct {
	// Expected is the winner's expected score before the vote.
	Expected     float64
	EffectiveK   float64
	WinnerDelta  float64
	LoserDelta   float64
	WinnerRating float64
	LoserRating  float64
}

// Model holds the tunable constants of the update rule.
type Model struct {
	baseK    float64
	gapCap   float64
	maxDelta float64
}

// New creates a rating model with configuration options.
func New(opts ...Option) *Model {
	m := &Model{
		baseK:    DefaultBaseK,
		gapCap:   DefaultGapCap,
		maxDelta: DefaultMaxDelta,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var defaultModel = New()

// Apply runs the default model. See Model.Apply.
func Apply(winner, loser Contender) Outcome { return defaultModel.Apply(winner, loser) }

// Preview runs the default model. See Model.Preview.
func Preview(a, b Contender) (ifA, ifB Outcome) { return defaultModel.Preview(a, b) }

// Expected returns the probability that a side rated ra beats a side rated rb.
func Expected(ra, rb float64) float64 {
	return 1 / (1 + math.Pow(10, (rb-ra)/eloScale))
}

// EffectiveK returns the K-factor after gap, experience and temporal dampening.
func (m *Model) EffectiveK(a, b Contender) float64 {
	mustBeFinite(a.Rating)
	mustBeFinite(b.Rating)

	k := m.baseK
	if gap := math.Abs(a.Rating - b.Rating); gap > m.gapCap {
		k *= m.gapCap / gap
	}

	avgMatches := float64(a.Matches+b.Matches) / 2
	k *= 1 / (1 + avgMatches/experienceScale)

	if a.Year != nil && b.Year != nil {
		yearGap := math.Abs(float64(*a.Year - *b.Year))
		k *= 1 / (1 + yearGap/yearScale)
	}
	return k
}

// Apply computes new ratings when winner beats loser.
func (m *Model) Apply(winner, loser Contender) Outcome {
	e := Expected(winner.Rating, loser.Rating)
	k := m.EffectiveK(winner, loser)

	wd := m.clamp(k * (1 - e))
	ld := m.clamp(k * (0 - (1 - e)))

	return Outcome{
		Expected:     e,
		EffectiveK:   k,
		WinnerDelta:  wd,
		LoserDelta:   ld,
		WinnerRating: winner.Rating + wd,
		LoserRating:  loser.Rating + ld,
	}
}

// Preview returns both hypothetical outcomes for a pair: a winning and b winning.
func (m *Model) Preview(a, b Contender) (ifA, ifB Outcome) {
	return m.Apply(a, b), m.Apply(b, a)
}

func (m *Model) clamp(d float64) float64 {
	return math.Max(-m.maxDelta, math.Min(m.maxDelta, d))
}

// mustBeFinite panics on NaN or infinite ratings; those are caller bugs.
func mustBeFinite(r float64) {
	if math.IsNaN(r) || math.IsInf(r, 0) {
		panic(fmt.Sprintf("rating: non-finite rating %v", r))
	}
}
