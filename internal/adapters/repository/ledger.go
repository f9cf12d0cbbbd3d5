package repository

import (
	"fmt"
	"time"

	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/quota"
	"github.com/okian/versus/internal/domain/rating"
	"github.com/okian/versus/internal/domain/similarity"
)

// SubmissionWindow is the quota week containing at, in loc when set.
func SubmissionWindow(at time.Time, loc *time.Location) quota.Window {
	if loc != nil {
		at = at.In(loc)
	}
	return quota.WeekWindow(at)
}

// NameKey is the uniqueness key of an item name inside a list.
func NameKey(name string) string { return similarity.Normalize(name) }

// ValidateBallot checks the parts of a ballot that do not need stored state.
func ValidateBallot(b model.Ballot) error {
	if b.WinnerID == "" || b.LoserID == "" {
		return fmt.Errorf("%w: empty item id", ErrNotFound)
	}
	if b.WinnerID == b.LoserID {
		return model.ErrSelfPair
	}
	if b.Voter.Anonymous() {
		return model.ErrAnonymousVoter
	}
	return nil
}

// CheckVotable reports whether it can take part in a vote on list.
func CheckVotable(it model.Item, list model.ListID) error {
	if it.ListID != list {
		return fmt.Errorf("%w: %s in list %d", ErrNotFound, it.ID, list)
	}
	if !it.Approved {
		return fmt.Errorf("%w: %s", model.ErrNotApproved, it.ID)
	}
	return nil
}

// Settle applies the rating model to both items in place: ratings, counters
// and last-played. Callers hold whatever lock or transaction makes the
// read-modify-write atomic.
func Settle(m *rating.Model, winner, loser *model.Item, at time.Time) rating.Outcome {
	out := m.Apply(rating.FromItem(*winner), rating.FromItem(*loser))

	played := at
	winner.Rating = out.WinnerRating
	winner.Wins++
	winner.Matches++
	winner.LastPlayed = &played

	loser.Rating = out.LoserRating
	loser.Losses++
	loser.Matches++
	loser.LastPlayed = &played
	return out
}

// NewVoteResult assembles the ledger's answer from settled items.
func NewVoteResult(voteID string, winner, loser model.Item, out rating.Outcome) model.VoteResult {
	return model.VoteResult{
		VoteID:        voteID,
		WinnerRating:  out.WinnerRating,
		LoserRating:   out.LoserRating,
		Winner:        winner,
		Loser:         loser,
		WinnerDelta:   out.WinnerDelta,
		LoserDelta:    out.LoserDelta,
		EffectiveK:    out.EffectiveK,
		WinnerExpects: out.Expected,
	}
}

// VoterKey is the identity votes are counted by: user id, else display name.
func VoterKey(v model.Voter) (userID, name string) {
	if v.UserID != "" {
		return v.UserID, ""
	}
	return "", v.Name
}

// cloneItem copies an item so callers never alias stored state.
func cloneItem(it model.Item) model.Item {
	if it.LastPlayed != nil {
		lp := *it.LastPlayed
		it.LastPlayed = &lp
	}
	if it.Year != nil {
		y := *it.Year
		it.Year = &y
	}
	return it
}
