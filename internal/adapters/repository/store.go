// Package repository defines the storage collaborator of the ranking engine
// and its in-memory implementations.
package repository

import (
	"context"

	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/quota"
)

// Limits applied by LoadItems and RankedList when the caller passes none.
const (
	DefaultLoadLimit        = 200
	DefaultLeaderboardLimit = 25
)

// Catalog reads and writes items.
type Catalog interface {
	// LoadItems returns approved items of a list, highest rated first.
	LoadItems(ctx context.Context, list model.ListID) ([]model.Item, error)
	// LoadAllItems returns approved and pending items of a list.
	LoadAllItems(ctx context.Context, list model.ListID) ([]model.Item, error)
	// InsertItem stores a pending submission. It fails with model.ErrDuplicateItem
	// when the normalized name already exists in the list and with
	// model.ErrQuotaExceeded when the submitter has no credit left this week.
	InsertItem(ctx context.Context, sub model.Submission) (model.Item, error)
	// SeedItem stores an approved operator item. Seeding a name that already
	// exists returns the existing item.
	SeedItem(ctx context.Context, item model.Item) (model.Item, error)
	// Approve marks a pending item as approved.
	Approve(ctx context.Context, list model.ListID, itemID string) (model.Item, error)
	// RankedList returns approved items ordered by rating desc. limit <= 0 uses
	// DefaultLeaderboardLimit.
	RankedList(ctx context.Context, list model.ListID, limit int) ([]model.Item, error)
	// Lists returns the ids of every list that has at least one item.
	Lists(ctx context.Context) ([]model.ListID, error)
}

// VoteLedger applies votes. ApplyVote must be atomic: it reads both current
// ratings, computes the update with the rating model, persists both items and
// appends the vote as a single unit, so two concurrent votes on overlapping
// items never lose an update.
type VoteLedger interface {
	ApplyVote(ctx context.Context, b model.Ballot) (model.VoteResult, error)
}

// Counter answers the weekly submission window queries.
type Counter interface {
	// CountVotes counts votes by the voter (user id, else name) in the window.
	CountVotes(ctx context.Context, voter model.Voter, list model.ListID, w quota.Window) (int, error)
	// CountSubmissions counts items submitted by the voter (name, else user id)
	// in the window.
	CountSubmissions(ctx context.Context, voter model.Voter, list model.ListID, w quota.Window) (int, error)
}

// Store is the full storage collaborator.
type Store interface {
	Catalog
	VoteLedger
	Counter
	Close() error
}
