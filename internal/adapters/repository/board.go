package repository

import (
	"context"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/types"
	"github.com/okian/versus/pkg/metrics"
)

// Board is the in-memory leaderboard projection fed by vote events.
//
// Each list is a treap ordered by rating DESC, then item id ASC, with subtree
// sizes so Rank is O(log n). Upserts carry the item's match count as a
// version: an event older than what the board already holds is ignored, so
// out-of-order workers cannot move an item backwards.
type Board struct {
	mu    sync.RWMutex
	lists map[model.ListID]*treap
	rng   *rand.Rand
}

type treap struct {
	root *node
	byID map[string]record
}

// record is the stored state of one item.
type record struct {
	version int
	item    model.Item
}

type node struct {
	id     string
	rating float64
	prio   uint64
	left   *node
	right  *node
	size   int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less reports whether (aRating, aID) ranks before (bRating, bID).
func less(aRating float64, aID string, bRating float64, bID string) bool {
	if aRating != bRating {
		return aRating > bRating
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, r float64, prio uint64) *node {
	if n == nil {
		return &node{id: id, rating: r, prio: prio, size: 1}
	}
	if less(r, id, n.rating, n.id) {
		n.left = insert(n.left, id, r, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, r, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func remove(n *node, id string, r float64) *node {
	if n == nil {
		return nil
	}
	switch {
	case n.id == id && n.rating == r:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = remove(n.right, id, r)
		} else {
			n = rotateLeft(n)
			n.left = remove(n.left, id, r)
		}
	case less(r, id, n.rating, n.id):
		n.left = remove(n.left, id, r)
	default:
		n.right = remove(n.right, id, r)
	}
	fix(n)
	return n
}

// position returns the 1-based position of (r, id), or 0 if absent.
func position(n *node, r float64, id string) int {
	before := 0
	for n != nil {
		if n.id == id && n.rating == r {
			return before + nsize(n.left) + 1
		}
		if less(r, id, n.rating, n.id) {
			n = n.left
		} else {
			before += nsize(n.left) + 1
			n = n.right
		}
	}
	return 0
}

func collectTopN(n *node, limit int, byID map[string]record, out *[]types.Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, byID, out)
	if len(*out) < limit {
		*out = append(*out, entryOf(len(*out)+1, byID[n.id].item))
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, byID, out)
	}
}

func entryOf(rank int, it model.Item) types.Entry {
	return types.Entry{
		Rank:       rank,
		ItemID:     it.ID,
		Name:       it.Name,
		Category:   it.Category,
		Rating:     it.Rating,
		Wins:       it.Wins,
		Losses:     it.Losses,
		Matches:    it.Matches,
		LastPlayed: it.LastPlayed,
	}
}

// NewBoard creates an empty projection.
func NewBoard(opts ...BoardOption) *Board {
	b := &Board{lists: make(map[model.ListID]*treap)}
	for _, opt := range opts {
		opt(b)
	}
	if b.rng == nil {
		seed := uint64(time.Now().UnixNano())
		b.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
	return b
}

// Upsert applies the latest known state of an item. It returns false when
// the update was stale and ignored. Unapproved items are removed.
func (b *Board) Upsert(_ context.Context, it model.Item) bool {
	b.mu.Lock()
	t := b.list(it.ListID)
	old, exists := t.byID[it.ID]
	if exists && it.Matches < old.version {
		b.mu.Unlock()
		metrics.RecordBoardUpdate(false)
		return false
	}
	if exists {
		t.root = remove(t.root, it.ID, old.item.Rating)
		delete(t.byID, it.ID)
	}
	if it.Approved {
		t.byID[it.ID] = record{version: it.Matches, item: cloneItem(it)}
		t.root = insert(t.root, it.ID, it.Rating, b.rng.Uint64())
	}
	count := len(t.byID)
	b.mu.Unlock()

	metrics.RecordBoardUpdate(true)
	metrics.UpdateBoardItems(listLabel(it.ListID), count)
	return true
}

// Replace rebuilds a list from a full item set, typically read from the store.
func (b *Board) Replace(_ context.Context, list model.ListID, items []model.Item) {
	t := &treap{byID: make(map[string]record, len(items))}

	b.mu.Lock()
	for _, it := range items {
		if !it.Approved || it.ListID != list {
			continue
		}
		if old, dup := t.byID[it.ID]; dup {
			t.root = remove(t.root, it.ID, old.item.Rating)
		}
		t.byID[it.ID] = record{version: it.Matches, item: cloneItem(it)}
		t.root = insert(t.root, it.ID, it.Rating, b.rng.Uint64())
	}
	b.lists[list] = t
	count := len(t.byID)
	b.mu.Unlock()

	metrics.RecordBoardReconcile()
	metrics.UpdateBoardItems(listLabel(list), count)
}

// TopN returns the top n entries of a list, best first.
func (b *Board) TopN(_ context.Context, list model.ListID, n int) ([]types.Entry, error) {
	start := time.Now()
	defer func() { metrics.RecordBoardQueryLatency(float64(time.Since(start).Microseconds()) / 1000) }()

	if n < 1 {
		metrics.RecordErrorByComponent("board", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.lists[list]
	if !ok {
		return []types.Entry{}, nil
	}
	out := make([]types.Entry, 0, min(n, len(t.byID)))
	collectTopN(t.root, n, t.byID, &out)
	return out, nil
}

// Rank returns the entry of one item with its 1-based position.
func (b *Board) Rank(_ context.Context, list model.ListID, itemID string) (types.Entry, error) {
	start := time.Now()
	defer func() { metrics.RecordBoardQueryLatency(float64(time.Since(start).Microseconds()) / 1000) }()

	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.lists[list]
	if !ok {
		return types.Entry{}, ErrNotFound
	}
	rec, ok := t.byID[itemID]
	if !ok {
		metrics.RecordErrorByComponent("board", "not_found")
		return types.Entry{}, ErrNotFound
	}
	return entryOf(position(t.root, rec.item.Rating, itemID), rec.item), nil
}

// Count returns the number of items tracked for a list.
func (b *Board) Count(_ context.Context, list model.ListID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if t, ok := b.lists[list]; ok {
		return len(t.byID)
	}
	return 0
}

// Lists returns the ids of lists the board holds.
func (b *Board) Lists() []model.ListID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]model.ListID, 0, len(b.lists))
	for id := range b.lists {
		out = append(out, id)
	}
	return out
}

// list returns the treap for id, creating it. Caller holds b.mu.
func (b *Board) list(id model.ListID) *treap {
	t, ok := b.lists[id]
	if !ok {
		t = &treap{byID: make(map[string]record)}
		b.lists[id] = t
	}
	return t
}

func listLabel(id model.ListID) string { return strconv.FormatInt(int64(id), 10) }
