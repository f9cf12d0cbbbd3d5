package service

import (
	"context"

	"github.com/okian/versus/internal/adapters/repository"
	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/quota"
)

// backend serves session controllers from the store and publishes every
// committed vote to the board pipeline.
type backend struct {
	store   repository.Store
	publish func(ctx context.Context, e model.VoteEvent)
}

func (b *backend) LoadItems(ctx context.Context, list model.ListID) ([]model.Item, error) {
	return b.store.LoadItems(ctx, list)
}

func (b *backend) LoadAllItems(ctx context.Context, list model.ListID) ([]model.Item, error) {
	return b.store.LoadAllItems(ctx, list)
}

func (b *backend) SubmitVote(ctx context.Context, ballot model.Ballot) (model.VoteResult, error) {
	res, err := b.store.ApplyVote(ctx, ballot)
	if err != nil {
		return model.VoteResult{}, err
	}
	b.publish(ctx, model.VoteEvent{
		VoteID: res.VoteID,
		ListID: ballot.ListID,
		Winner: res.Winner,
		Loser:  res.Loser,
		At:     ballot.At,
	})
	return res, nil
}

func (b *backend) SubmitItem(ctx context.Context, sub model.Submission) (model.Item, error) {
	return b.store.InsertItem(ctx, sub)
}

func (b *backend) FetchVoteCount(ctx context.Context, v model.Voter, list model.ListID, w quota.Window) (int, error) {
	return b.store.CountVotes(ctx, v, list, w)
}

func (b *backend) FetchSubmissionCount(ctx context.Context, v model.Voter, list model.ListID, w quota.Window) (int, error) {
	return b.store.CountSubmissions(ctx, v, list, w)
}

func (b *backend) FetchRankedList(ctx context.Context, list model.ListID, limit int) ([]model.Item, error) {
	return b.store.RankedList(ctx, list, limit)
}
