// Package pairing chooses the next pair of items to show a voter.
//
// Selection favours under-played items and rating-close partners. It is
// randomized on purpose, so callers and tests should rely on its invariants
// (distinct members, bounded rating gap, no immediate rematch) rather than
// on particular sequences.
package pairing

import (
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/okian/versus/internal/domain/model"
)

// Default selection constants.
const (
	DefaultMatchGap    = 250.0
	DefaultMinSlice    = 6
	DefaultMaxSlice    = 20
	minEligibleForPair = 2
)

// Result describes how a pair was chosen.
type Result struct {
	Pair model.Pair
	// Fallback is set when no partner was within the match gap.
	Fallback bool
}

// Selector picks pairs from a candidate set. It is safe for concurrent use.
type Selector struct {
	mu       sync.Mutex
	rng      *rand.Rand
	matchGap float64
	minSlice int
	maxSlice int
}

// NewSelector creates a selector with configuration options.
func NewSelector(opts ...Option) *Selector {
	s := &Selector{
		matchGap: DefaultMatchGap,
		minSlice: DefaultMinSlice,
		maxSlice: DefaultMaxSlice,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		seed := uint64(time.Now().UnixNano())
		s.rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return s
}

// Select returns the next pair, or ok=false when fewer than two approved
// items are available. last is the previously shown pair; it is never
// returned again verbatim (in either order) when another pair exists.
func (s *Selector) Select(items []model.Item, last [2]string) (Result, bool) {
	eligible := make([]model.Item, 0, len(items))
	for _, it := range items {
		mustBeFinite(it)
		if it.Approved {
			eligible = append(eligible, it)
		}
	}
	if len(eligible) < minEligibleForPair {
		return Result{}, false
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Matches < eligible[j].Matches
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	anchorIdx := s.rng.IntN(s.sliceSize(len(eligible)))
	anchor := eligible[anchorIdx]

	pool := make([]model.Item, 0, len(eligible))
	for i, it := range eligible {
		if i == anchorIdx || isRematch(anchor.ID, it.ID, last) {
			continue
		}
		if math.Abs(it.Rating-anchor.Rating) <= s.matchGap {
			pool = append(pool, it)
		}
	}
	if len(pool) > 0 {
		return Result{Pair: model.Pair{A: anchor, B: pool[s.rng.IntN(len(pool))]}}, true
	}

	// Nothing close enough: any other item, still avoiding the rematch
	// when there is an alternative.
	others := make([]model.Item, 0, len(eligible)-1)
	var rematch []model.Item
	for i, it := range eligible {
		if i == anchorIdx {
			continue
		}
		if isRematch(anchor.ID, it.ID, last) {
			rematch = append(rematch, it)
			continue
		}
		others = append(others, it)
	}
	if len(others) == 0 {
		others = rematch
	}
	return Result{Pair: model.Pair{A: anchor, B: others[s.rng.IntN(len(others))]}, Fallback: true}, true
}

// sliceSize is the size of the least-played slice the anchor is drawn from.
func (s *Selector) sliceSize(n int) int {
	size := max(s.minSlice, min(s.maxSlice, n))
	return min(size, n)
}

func isRematch(a, b string, last [2]string) bool {
	if last[0] == "" || last[1] == "" {
		return false
	}
	return (a == last[0] && b == last[1]) || (a == last[1] && b == last[0])
}

func mustBeFinite(it model.Item) {
	if math.IsNaN(it.Rating) || math.IsInf(it.Rating, 0) {
		panic("pairing: item " + it.ID + " has a non-finite rating")
	}
}
