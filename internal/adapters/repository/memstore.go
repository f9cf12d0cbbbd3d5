package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/quota"
	"github.com/okian/versus/internal/domain/rating"
)

// MemStore is an in-memory Store. A single mutex guards all state, which
// makes ApplyVote trivially atomic.
type MemStore struct {
	mu     sync.Mutex
	items  map[string]*model.Item
	lists  map[model.ListID][]string          // item ids in insertion order
	names  map[model.ListID]map[string]string // NameKey -> item id
	votes  []model.Vote
	closed bool

	rating *rating.Model
	now    func() time.Time
	loc    *time.Location
}

// NewMemStore creates an empty in-memory store.
func NewMemStore(opts ...Option) *MemStore {
	s := &MemStore{
		items:  make(map[string]*model.Item),
		lists:  make(map[model.ListID][]string),
		names:  make(map[model.ListID]map[string]string),
		rating: rating.New(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadItems implements Catalog.
func (s *MemStore) LoadItems(_ context.Context, list model.ListID) ([]model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.ranked(list, DefaultLoadLimit), nil
}

// LoadAllItems implements Catalog.
func (s *MemStore) LoadAllItems(_ context.Context, list model.ListID) ([]model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	ids := s.lists[list]
	out := make([]model.Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneItem(*s.items[id]))
	}
	return out, nil
}

// InsertItem implements Catalog.
func (s *MemStore) InsertItem(_ context.Context, sub model.Submission) (model.Item, error) {
	name := strings.TrimSpace(sub.Name)
	key := NameKey(name)
	if key == "" {
		return model.Item{}, ErrInvalidName
	}
	if sub.Submitter.Anonymous() {
		return model.Item{}, model.ErrAnonymousVoter
	}
	at := sub.At
	if at.IsZero() {
		at = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.Item{}, ErrClosed
	}
	if id, ok := s.names[sub.ListID][key]; ok {
		return model.Item{}, fmt.Errorf("%w: %q matches %s", model.ErrDuplicateItem, name, id)
	}

	w := SubmissionWindow(at, s.loc)
	st := quota.Evaluate(s.countVotes(sub.Submitter, sub.ListID, w), s.countSubmissions(sub.Submitter, sub.ListID, w))
	if !st.CanSubmit {
		return model.Item{}, fmt.Errorf("%w: %d of %d used", model.ErrQuotaExceeded, st.Submissions, st.MaxAllowed)
	}

	it := model.NewItem(sub.ListID, name, strings.TrimSpace(sub.Category), at)
	it.SubmitterID = sub.Submitter.UserID
	it.SubmitterName = sub.Submitter.Name
	s.put(&it, key)
	return cloneItem(it), nil
}

// SeedItem implements Catalog.
func (s *MemStore) SeedItem(_ context.Context, item model.Item) (model.Item, error) {
	item.Name = strings.TrimSpace(item.Name)
	key := NameKey(item.Name)
	if key == "" {
		return model.Item{}, ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.Item{}, ErrClosed
	}
	if id, ok := s.names[item.ListID][key]; ok {
		return cloneItem(*s.items[id]), nil
	}

	seeded := model.NewItem(item.ListID, item.Name, item.Category, s.now())
	if item.ID != "" {
		seeded.ID = item.ID
	}
	if item.Rating != 0 {
		seeded.Rating = item.Rating
	}
	seeded.Year = item.Year
	seeded.Approved = true
	s.put(&seeded, key)
	return cloneItem(seeded), nil
}

// Approve implements Catalog.
func (s *MemStore) Approve(_ context.Context, list model.ListID, itemID string) (model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.Item{}, ErrClosed
	}
	it, ok := s.items[itemID]
	if !ok || it.ListID != list {
		return model.Item{}, fmt.Errorf("%w: %s", ErrNotFound, itemID)
	}
	it.Approved = true
	return cloneItem(*it), nil
}

// RankedList implements Catalog.
func (s *MemStore) RankedList(_ context.Context, list model.ListID, limit int) ([]model.Item, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.ranked(list, limit), nil
}

// Lists implements Catalog.
func (s *MemStore) Lists(_ context.Context) ([]model.ListID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ListID, 0, len(s.lists))
	for id := range s.lists {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// ApplyVote implements VoteLedger.
func (s *MemStore) ApplyVote(_ context.Context, b model.Ballot) (model.VoteResult, error) {
	if err := ValidateBallot(b); err != nil {
		return model.VoteResult{}, err
	}
	at := b.At
	if at.IsZero() {
		at = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.VoteResult{}, ErrClosed
	}

	w, ok := s.items[b.WinnerID]
	if !ok {
		return model.VoteResult{}, fmt.Errorf("%w: %s", ErrNotFound, b.WinnerID)
	}
	l, ok := s.items[b.LoserID]
	if !ok {
		return model.VoteResult{}, fmt.Errorf("%w: %s", ErrNotFound, b.LoserID)
	}
	for _, it := range []*model.Item{w, l} {
		if err := CheckVotable(*it, b.ListID); err != nil {
			return model.VoteResult{}, err
		}
	}

	out := Settle(s.rating, w, l, at)
	v := model.Vote{
		ID:        uuid.NewString(),
		WinnerID:  w.ID,
		LoserID:   l.ID,
		VoterID:   b.Voter.UserID,
		VoterName: b.Voter.Name,
		ListID:    b.ListID,
		CreatedAt: at,
	}
	s.votes = append(s.votes, v)
	return NewVoteResult(v.ID, cloneItem(*w), cloneItem(*l), out), nil
}

// CountVotes implements Counter.
func (s *MemStore) CountVotes(_ context.Context, voter model.Voter, list model.ListID, w quota.Window) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countVotes(voter, list, w), nil
}

// CountSubmissions implements Counter.
func (s *MemStore) CountSubmissions(_ context.Context, voter model.Voter, list model.ListID, w quota.Window) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countSubmissions(voter, list, w), nil
}

// Votes returns a copy of the append-only vote log.
func (s *MemStore) Votes() []model.Vote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Vote(nil), s.votes...)
}

// Close implements Store.
func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemStore) put(it *model.Item, key string) {
	s.items[it.ID] = it
	s.lists[it.ListID] = append(s.lists[it.ListID], it.ID)
	if s.names[it.ListID] == nil {
		s.names[it.ListID] = make(map[string]string)
	}
	s.names[it.ListID][key] = it.ID
}

// ranked returns approved items, rating desc then id asc. Caller holds s.mu.
func (s *MemStore) ranked(list model.ListID, limit int) []model.Item {
	out := make([]model.Item, 0, len(s.lists[list]))
	for _, id := range s.lists[list] {
		if it := s.items[id]; it.Approved {
			out = append(out, cloneItem(*it))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Caller holds s.mu.
func (s *MemStore) countVotes(voter model.Voter, list model.ListID, w quota.Window) int {
	userID, name := VoterKey(voter)
	n := 0
	for _, v := range s.votes {
		if v.ListID != list || !w.Contains(v.CreatedAt) {
			continue
		}
		if (userID != "" && v.VoterID == userID) || (userID == "" && name != "" && v.VoterName == name) {
			n++
		}
	}
	return n
}

// Caller holds s.mu.
func (s *MemStore) countSubmissions(voter model.Voter, list model.ListID, w quota.Window) int {
	n := 0
	for _, id := range s.lists[list] {
		it := s.items[id]
		if !w.Contains(it.CreatedAt) || (it.SubmitterID == "" && it.SubmitterName == "") {
			continue
		}
		if (voter.Name != "" && it.SubmitterName == voter.Name) ||
			(voter.Name == "" && voter.UserID != "" && it.SubmitterID == voter.UserID) {
			n++
		}
	}
	return n
}

var _ Store = (*MemStore)(nil)
