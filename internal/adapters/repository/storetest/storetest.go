// Package storetest holds the behaviour every repository.Store must share.
// Store implementations call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/versus/internal/adapters/repository"
	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/quota"
)

// Factory returns a fresh, empty store. It is called once per subtest.
type Factory func(t *testing.T) repository.Store

// Now is the fixed moment the suite stamps on ballots and submissions: a Wednesday.
var Now = time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)

// Pacific is the zone RunZoned expects its stores to be configured with.
var Pacific = time.FixedZone("PST", -8*60*60)

var (
	ada   = model.Voter{UserID: "u-ada", Name: "Ada"}
	grace = model.Voter{UserID: "u-grace", Name: "Grace"}
)

// Run executes the shared suite.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	tests := map[string]func(*testing.T, repository.Store){
		"SeedAndLoad":            testSeedAndLoad,
		"SeedIsIdempotent":       testSeedIdempotent,
		"InsertIsPending":        testInsertPending,
		"InsertRejectsDuplicate": testInsertDuplicate,
		"InsertEnforcesQuota":    testInsertQuota,
		"InsertRejectsBadInput":  testInsertBadInput,
		"ApproveMakesVotable":    testApprove,
		"ApplyVoteFirstVote":     testApplyVoteFirst,
		"ApplyVoteRejects":       testApplyVoteRejects,
		"CountsFollowWindow":     testCounts,
		"RankedListOrdering":     testRankedList,
		"ConcurrentVotes":        testConcurrentVotes,
	}
	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			fn(t, s)
		})
	}
}

// RunZoned checks that the weekly submission window follows the store's
// configured zone and not the zone of the submission time. newStore must
// return a store set to Pacific.
func RunZoned(t *testing.T, newStore Factory) {
	t.Helper()
	s := newStore(t)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	// Saturday evening in Pacific is already Sunday in UTC.
	saturday := time.Date(2025, 2, 22, 20, 0, 0, 0, Pacific).UTC()
	sunday := time.Date(2025, 2, 23, 1, 0, 0, 0, Pacific).UTC()

	_, err := s.InsertItem(ctx, model.Submission{ListID: 1, Name: "Petra", Submitter: ada, At: saturday})
	require.NoError(t, err)

	_, err = s.InsertItem(ctx, model.Submission{ListID: 1, Name: "Machu Picchu", Submitter: ada, At: sunday})
	assert.NoError(t, err, "a new Pacific week restores the credit")

	_, err = s.InsertItem(ctx, model.Submission{ListID: 1, Name: "Angkor Wat", Submitter: ada, At: sunday.Add(time.Hour)})
	assert.True(t, errors.Is(err, model.ErrQuotaExceeded), "got %v", err)

	w := repository.SubmissionWindow(sunday, Pacific)
	n, err := s.CountSubmissions(ctx, ada, 1, w)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func seed(t *testing.T, s repository.Store, list model.ListID, names ...string) []model.Item {
	t.Helper()
	out := make([]model.Item, 0, len(names))
	for _, n := range names {
		it, err := s.SeedItem(context.Background(), model.Item{ListID: list, Name: n, Category: "Landmarks"})
		require.NoError(t, err)
		out = append(out, it)
	}
	return out
}

func testSeedAndLoad(t *testing.T, s repository.Store) {
	ctx := context.Background()
	year := 1889
	it, err := s.SeedItem(ctx, model.Item{ListID: 2, Name: "Eiffel Tower built", Year: &year})
	require.NoError(t, err)

	assert.NotEmpty(t, it.ID)
	assert.True(t, it.Approved)
	assert.Equal(t, model.InitialRating, it.Rating)
	assert.Equal(t, model.DefaultCategory, it.Category)
	require.NotNil(t, it.Year)
	assert.Equal(t, 1889, *it.Year)

	items, err := s.LoadItems(ctx, 2)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, it.ID, items[0].ID)

	empty, err := s.LoadItems(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, empty)

	lists, err := s.Lists(ctx)
	require.NoError(t, err)
	assert.Contains(t, lists, model.ListID(2))
}

func testSeedIdempotent(t *testing.T, s repository.Store) {
	ctx := context.Background()
	first := seed(t, s, 1, "Great Wall")[0]
	again, err := s.SeedItem(ctx, model.Item{ListID: 1, Name: "great   WALL!"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	all, err := s.LoadAllItems(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testInsertPending(t *testing.T, s repository.Store) {
	ctx := context.Background()
	seed(t, s, 1, "Colosseum")

	it, err := s.InsertItem(ctx, model.Submission{ListID: 1, Name: "  Machu Picchu ", Category: "Ruins", Submitter: ada, At: Now})
	require.NoError(t, err)
	assert.False(t, it.Approved)
	assert.Equal(t, "Machu Picchu", it.Name)
	assert.Equal(t, "Ada", it.SubmitterName)
	assert.Equal(t, "u-ada", it.SubmitterID)

	approved, err := s.LoadItems(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, approved, 1, "pending items are not votable")

	all, err := s.LoadAllItems(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, all, 2, "pending items count for duplicate checks")
}

func testInsertDuplicate(t *testing.T, s repository.Store) {
	ctx := context.Background()
	seed(t, s, 1, "Eiffel Tower")

	_, err := s.InsertItem(ctx, model.Submission{ListID: 1, Name: "eiffel-tower", Submitter: ada, At: Now})
	assert.True(t, errors.Is(err, model.ErrDuplicateItem), "got %v", err)

	_, err = s.InsertItem(ctx, model.Submission{ListID: 2, Name: "Eiffel Tower", Submitter: ada, At: Now})
	assert.NoError(t, err, "names are unique per list only")
}

func testInsertQuota(t *testing.T, s repository.Store) {
	ctx := context.Background()
	_, err := s.InsertItem(ctx, model.Submission{ListID: 1, Name: "First", Submitter: ada, At: Now})
	require.NoError(t, err)

	_, err = s.InsertItem(ctx, model.Submission{ListID: 1, Name: "Second", Submitter: ada, At: Now})
	assert.True(t, errors.Is(err, model.ErrQuotaExceeded), "got %v", err)

	_, err = s.InsertItem(ctx, model.Submission{ListID: 1, Name: "Third", Submitter: grace, At: Now})
	assert.NoError(t, err, "quota is per voter")

	nextWeek := Now.AddDate(0, 0, 7)
	_, err = s.InsertItem(ctx, model.Submission{ListID: 1, Name: "Fourth", Submitter: ada, At: nextWeek})
	assert.NoError(t, err, "quota resets every week")
}

func testInsertBadInput(t *testing.T, s repository.Store) {
	ctx := context.Background()
	_, err := s.InsertItem(ctx, model.Submission{ListID: 1, Name: "!!!", Submitter: ada, At: Now})
	assert.True(t, errors.Is(err, model.ErrInvalidName), "got %v", err)

	_, err = s.InsertItem(ctx, model.Submission{ListID: 1, Name: "Valid", At: Now})
	assert.True(t, errors.Is(err, model.ErrAnonymousVoter), "got %v", err)
}

func testApprove(t *testing.T, s repository.Store) {
	ctx := context.Background()
	it, err := s.InsertItem(ctx, model.Submission{ListID: 1, Name: "Petra", Submitter: ada, At: Now})
	require.NoError(t, err)

	got, err := s.Approve(ctx, 1, it.ID)
	require.NoError(t, err)
	assert.True(t, got.Approved)

	items, err := s.LoadItems(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, err = s.Approve(ctx, 2, it.ID)
	assert.True(t, errors.Is(err, model.ErrItemNotFound), "approve checks the list")
}

func testApplyVoteFirst(t *testing.T, s repository.Store) {
	ctx := context.Background()
	items := seed(t, s, 1, "A", "B")

	res, err := s.ApplyVote(ctx, model.Ballot{WinnerID: items[0].ID, LoserID: items[1].ID, Voter: ada, ListID: 1, At: Now})
	require.NoError(t, err)

	assert.NotEmpty(t, res.VoteID)
	assert.InDelta(t, 1012, res.WinnerRating, 1e-9)
	assert.InDelta(t, 988, res.LoserRating, 1e-9)
	assert.Equal(t, 1, res.Winner.Wins)
	assert.Equal(t, 1, res.Winner.Matches)
	assert.Equal(t, 1, res.Loser.Losses)
	assert.Equal(t, 1, res.Loser.Matches)
	require.NotNil(t, res.Winner.LastPlayed)
	assert.True(t, res.Winner.LastPlayed.Equal(Now))

	stored, err := s.LoadItems(ctx, 1)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, items[0].ID, stored[0].ID, "winner ranks first")
	for _, it := range stored {
		assert.Equal(t, it.Wins+it.Losses, it.Matches)
	}
}

func testApplyVoteRejects(t *testing.T, s repository.Store) {
	ctx := context.Background()
	items := seed(t, s, 1, "A", "B")
	other := seed(t, s, 2, "C")[0]
	pending, err := s.InsertItem(ctx, model.Submission{ListID: 1, Name: "P", Submitter: grace, At: Now})
	require.NoError(t, err)

	cases := []struct {
		name string
		b    model.Ballot
		want error
	}{
		{"self", model.Ballot{WinnerID: items[0].ID, LoserID: items[0].ID, Voter: ada, ListID: 1}, model.ErrSelfPair},
		{"anonymous", model.Ballot{WinnerID: items[0].ID, LoserID: items[1].ID, ListID: 1}, model.ErrAnonymousVoter},
		{"unknown", model.Ballot{WinnerID: items[0].ID, LoserID: "nope", Voter: ada, ListID: 1}, model.ErrItemNotFound},
		{"cross-list", model.Ballot{WinnerID: items[0].ID, LoserID: other.ID, Voter: ada, ListID: 1}, model.ErrItemNotFound},
		{"pending", model.Ballot{WinnerID: items[0].ID, LoserID: pending.ID, Voter: ada, ListID: 1}, model.ErrNotApproved},
	}
	for _, c := range cases {
		_, err := s.ApplyVote(ctx, c.b)
		assert.True(t, errors.Is(err, c.want), "%s: got %v", c.name, err)
	}

	stored, err := s.LoadItems(ctx, 1)
	require.NoError(t, err)
	for _, it := range stored {
		assert.Zero(t, it.Matches, "rejected votes leave items untouched")
	}
}

func testCounts(t *testing.T, s repository.Store) {
	ctx := context.Background()
	items := seed(t, s, 1, "A", "B")
	w := quota.WeekWindow(Now)

	for i := 0; i < 3; i++ {
		_, err := s.ApplyVote(ctx, model.Ballot{WinnerID: items[0].ID, LoserID: items[1].ID, Voter: ada, ListID: 1, At: Now})
		require.NoError(t, err)
	}
	_, err := s.ApplyVote(ctx, model.Ballot{WinnerID: items[1].ID, LoserID: items[0].ID, Voter: ada, ListID: 1, At: w.Start.Add(-time.Second)})
	require.NoError(t, err)
	_, err = s.ApplyVote(ctx, model.Ballot{WinnerID: items[1].ID, LoserID: items[0].ID, Voter: model.Voter{Name: "Guest"}, ListID: 1, At: Now})
	require.NoError(t, err)

	n, err := s.CountVotes(ctx, ada, 1, w)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.CountVotes(ctx, model.Voter{Name: "Guest"}, 1, w)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "name-only voters are counted by name")

	n, err = s.CountVotes(ctx, ada, 2, w)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.InsertItem(ctx, model.Submission{ListID: 1, Name: "Mine", Submitter: ada, At: Now})
	require.NoError(t, err)
	n, err = s.CountSubmissions(ctx, ada, 1, w)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.CountSubmissions(ctx, grace, 1, w)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testRankedList(t *testing.T, s repository.Store) {
	ctx := context.Background()
	items := seed(t, s, 1, "A", "B", "C")
	_, err := s.ApplyVote(ctx, model.Ballot{WinnerID: items[2].ID, LoserID: items[0].ID, Voter: ada, ListID: 1, At: Now})
	require.NoError(t, err)

	ranked, err := s.RankedList(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, items[2].ID, ranked[0].ID)
	assert.GreaterOrEqual(t, ranked[0].Rating, ranked[1].Rating)

	all, err := s.RankedList(ctx, 1, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, items[0].ID, all[2].ID)
}

func testConcurrentVotes(t *testing.T, s repository.Store) {
	ctx := context.Background()
	items := seed(t, s, 1, "A", "B", "C")

	const voters = 8
	const perVoter = 10
	var wg sync.WaitGroup
	errs := make(chan error, voters*perVoter)
	for v := 0; v < voters; v++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			voter := model.Voter{UserID: fmt.Sprintf("u-%d", v)}
			for i := 0; i < perVoter; i++ {
				w, l := items[(v+i)%3], items[(v+i+1)%3]
				if _, err := s.ApplyVote(ctx, model.Ballot{WinnerID: w.ID, LoserID: l.ID, Voter: voter, ListID: 1, At: Now}); err != nil {
					errs <- err
				}
			}
		}(v)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := s.LoadItems(ctx, 1)
	require.NoError(t, err)
	total := 0
	for _, it := range stored {
		assert.Equal(t, it.Wins+it.Losses, it.Matches)
		total += it.Matches
	}
	assert.Equal(t, 2*voters*perVoter, total, "no vote may be lost under contention")
}
