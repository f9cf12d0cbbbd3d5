package simulate

import (
	"hash/fnv"
	"math"
	"sort"
)

// Oracle is the hidden ground truth voters consult.
type Oracle struct {
	seed uint64
}

// Strength returns the hidden quality of an item. Higher is better; the
// value depends only on the item id and the run seed.
func (o Oracle) Strength(itemID string) uint64 {
	h := fnv.New64a()
	var b [8]byte
	for i := range b {
		b[i] = byte(o.seed >> (8 * i))
	}
	_, _ = h.Write(b[:])
	_, _ = h.Write([]byte(itemID))
	return h.Sum64()
}

// Better reports which of a and b the oracle prefers.
func (o Oracle) Better(a, b string) string {
	if o.Strength(a) >= o.Strength(b) {
		return a
	}
	return b
}

// Spearman returns the rank correlation between the observed order and the
// oracle's order of the same items. It is 1 for a perfect recovery and
// 0 when fewer than two items are given.
func (o Oracle) Spearman(observed []string) float64 {
	n := len(observed)
	if n < 2 {
		return 0
	}
	truth := make([]string, n)
	copy(truth, observed)
	sort.SliceStable(truth, func(i, j int) bool {
		return o.Strength(truth[i]) > o.Strength(truth[j])
	})
	pos := make(map[string]int, n)
	for i, id := range truth {
		pos[id] = i
	}
	var d2 float64
	for i, id := range observed {
		d := float64(i - pos[id])
		d2 += d * d
	}
	nf := float64(n)
	return 1 - 6*d2/(nf*(nf*nf-1))
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
