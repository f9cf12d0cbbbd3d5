package session

import (
	"context"

	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/quota"
)

// Backend is everything a Controller needs from the outside world.
type Backend interface {
	// LoadItems returns the approved items of a list.
	LoadItems(ctx context.Context, list model.ListID) ([]model.Item, error)
	// LoadAllItems returns approved and pending items, for similarity checks.
	LoadAllItems(ctx context.Context, list model.ListID) ([]model.Item, error)
	// SubmitVote runs the atomic vote transaction.
	SubmitVote(ctx context.Context, b model.Ballot) (model.VoteResult, error)
	// SubmitItem stores a pending submission.
	SubmitItem(ctx context.Context, sub model.Submission) (model.Item, error)
	FetchVoteCount(ctx context.Context, voter model.Voter, list model.ListID, w quota.Window) (int, error)
	FetchSubmissionCount(ctx context.Context, voter model.Voter, list model.ListID, w quota.Window) (int, error)
	FetchRankedList(ctx context.Context, list model.ListID, limit int) ([]model.Item, error)
}
