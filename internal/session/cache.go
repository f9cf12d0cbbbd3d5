package session

import (
	"context"
	"sync"
	"time"

	"github.com/okian/versus/internal/domain/model"
)

// DefaultCacheTTL is how long a fetched leaderboard is served from memory.
const DefaultCacheTTL = 30 * time.Second

// FetchFunc loads a ranked list of at most limit items.
type FetchFunc func(ctx context.Context, limit int) ([]model.Item, error)

// RankCache memoizes one list's leaderboard. A fetch with a larger limit
// serves every smaller limit until it expires.
type RankCache struct {
	clock Clock
	ttl   time.Duration

	mu      sync.Mutex
	items   []model.Item
	limit   int
	fetched time.Time
	valid   bool
}

// NewRankCache creates an empty cache. A ttl <= 0 uses DefaultCacheTTL.
func NewRankCache(clock Clock, ttl time.Duration) *RankCache {
	if clock == nil {
		clock = SystemClock
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RankCache{clock: clock, ttl: ttl}
}

// Get returns up to limit items, calling fetch only when the cached copy is
// missing, stale, or too short. Fetch errors are not cached.
func (c *RankCache) Get(ctx context.Context, limit int, fetch FetchFunc) ([]model.Item, error) {
	now := c.clock.Now()

	c.mu.Lock()
	if c.valid && now.Sub(c.fetched) < c.ttl && (limit <= c.limit || len(c.items) < c.limit) {
		out := head(c.items, limit)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	items, err := fetch(ctx, limit)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.items = items
	c.limit = limit
	c.fetched = now
	c.valid = true
	c.mu.Unlock()
	return head(items, limit), nil
}

// Invalidate drops the cached copy.
func (c *RankCache) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.items = nil
	c.mu.Unlock()
}

func head(items []model.Item, limit int) []model.Item {
	limit = max(limit, 0)
	if limit > len(items) {
		limit = len(items)
	}
	return append([]model.Item(nil), items[:limit]...)
}
