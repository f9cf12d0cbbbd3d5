// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Rating and category defaults for new items.
const (
	InitialRating   = 1000.0
	DefaultCategory = "General"
)

// ListID identifies a ranking list (one per comparison game).
type ListID int64

// Item is a ranked thing: a fact, an event, a crowd submission.
// Matches always equals Wins + Losses.
type Item struct {
	ID         string
	ListID     ListID
	Name       string
	Category   string
	Rating     float64
	Wins       int
	Losses     int
	Matches    int
	LastPlayed *time.Time
	Approved   bool
	// SubmitterID and SubmitterName are empty for operator-seeded items.
	SubmitterID   string
	SubmitterName string
	CreatedAt     time.Time
	// Year is optional ordinal metadata used by the rating model's temporal dampening.
	Year *int
}

// NewItem returns an item with a fresh id and the initial rating.
func NewItem(list ListID, name, category string, now time.Time) Item {
	if category == "" {
		category = DefaultCategory
	}
	return Item{
		ID:        uuid.NewString(),
		ListID:    list,
		Name:      name,
		Category:  category,
		Rating:    InitialRating,
		CreatedAt: now,
	}
}

// SubmittedBy reports whether v submitted the item.
func (it Item) SubmittedBy(v Voter) bool {
	if v.UserID != "" && it.SubmitterID == v.UserID {
		return true
	}
	return v.Name != "" && it.SubmitterName == v.Name
}

// Pair is the two items shown to a voter.
type Pair struct {
	A Item
	B Item
}

// IDs returns the pair's item ids in presentation order.
func (p Pair) IDs() [2]string { return [2]string{p.A.ID, p.B.ID} }

// Has reports whether id is one of the pair's members.
func (p Pair) Has(id string) bool { return p.A.ID == id || p.B.ID == id }

// Other returns the member that is not id.
func (p Pair) Other(id string) Item {
	if p.A.ID == id {
		return p.B
	}
	return p.A
}

// Submission is a voter's proposal for a new item.
type Submission struct {
	ListID    ListID
	Name      string
	Category  string
	Submitter Voter
	At        time.Time
}
