// Package similarity detects near-duplicate item names.
package similarity

import (
	"strings"
	"unicode"

	"github.com/okian/versus/internal/domain/model"
)

// DefaultThreshold is the highest normalized distance still considered a duplicate.
const DefaultThreshold = 0.25

// Match is the closest existing item and its normalized distance.
type Match struct {
	Item  model.Item
	Score float64
}

// Matcher compares candidate names against existing items.
type Matcher struct {
	threshold float64
}

// Option applies a configuration option to the Matcher.
type Option func(*Matcher)

// WithThreshold sets the duplicate threshold. Values outside [0,1] are ignored.
func WithThreshold(t float64) Option {
	return func(m *Matcher) {
		if t >= 0 && t <= 1 {
			m.threshold = t
		}
	}
}

// NewMatcher creates a matcher with configuration options.
func NewMatcher(opts ...Option) *Matcher {
	m := &Matcher{threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Threshold returns the configured duplicate threshold.
func (m *Matcher) Threshold() float64 { return m.threshold }

// FindSimilar returns the existing item whose name is closest to candidate,
// if its score is within the threshold.
func (m *Matcher) FindSimilar(candidate string, existing []model.Item) (Match, bool) {
	norm := []rune(Normalize(candidate))

	best := Match{Score: 2}
	found := false
	for _, it := range existing {
		other := []rune(Normalize(it.Name))
		score := float64(Distance(norm, other)) / float64(max(len(norm), len(other), 1))
		if score < best.Score {
			best = Match{Item: it, Score: score}
			found = true
		}
	}
	if !found || best.Score > m.threshold {
		return Match{}, false
	}
	return best, true
}

// Normalize lowercases s, turns every run of non-alphanumeric runes into a
// single space and trims the result. Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
			continue
		}
		pendingSpace = true
	}
	return b.String()
}

// Distance is the optimal-string-alignment Damerau-Levenshtein distance:
// insertions, deletions, substitutions and adjacent transpositions cost 1.
func Distance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	// Three rolling rows: i-2, i-1, i.
	prev2 := make([]int, len(b)+1)
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
			if i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] {
				cur[j] = min(cur[j], prev2[j-2]+1)
			}
		}
		prev2, prev, cur = prev, cur, prev2
	}
	return prev[len(b)]
}
