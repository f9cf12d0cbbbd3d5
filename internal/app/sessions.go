package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/types"
	"github.com/okian/versus/internal/session"
	"github.com/okian/versus/pkg/logger"
	"github.com/okian/versus/pkg/metrics"
)

// VoteReply is the answer to a vote request.
type VoteReply struct {
	VoteID string
	// Replayed is set when the request id was already committed; Outcome is
	// then empty and no second vote was cast.
	Replayed bool
	Outcome  session.VoteOutcome
	Snapshot session.Snapshot
}

// CreateSession starts a session for voter on list and registers it.
func (s *Service) CreateSession(ctx context.Context, list model.ListID, voter model.Voter) (session.Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "service.CreateSession", trace.WithAttributes(
		attribute.Int64("list.id", int64(list)),
	))
	defer span.End()

	b, err := s.running()
	if err != nil {
		return session.Snapshot{}, err
	}
	if voter.Anonymous() {
		return session.Snapshot{}, model.ErrAnonymousVoter
	}
	if s.sessions.Size() >= s.maxSessions {
		s.sweep(ctx)
		if s.sessions.Size() >= s.maxSessions {
			metrics.RecordErrorByComponent("sessions", "capacity")
			return session.Snapshot{}, ErrTooManySessions
		}
	}

	c := session.New(list, voter, b,
		session.WithClock(s.clock),
		session.WithLocation(s.loc),
		session.WithCooldown(s.cooldown),
		session.WithCacheTTL(s.cacheTTL),
		session.WithSelector(s.selector),
		session.WithMatcher(s.matcher),
		session.WithRatingModel(s.rating),
		session.WithTracer(s.tracer),
		session.WithLogger(s.logger.Named("session")),
	)
	if err := c.Start(ctx); err != nil {
		return session.Snapshot{}, err
	}
	s.sessions.Store(c.ID(), c)
	metrics.UpdateSessionsActive(s.sessions.Size())
	span.SetAttributes(attribute.String("session.id", c.ID()))
	return c.Snapshot(), nil
}

// Snapshot returns the current state of a session.
func (s *Service) Snapshot(_ context.Context, id string, voter model.Voter) (session.Snapshot, error) {
	c, err := s.controller(id, voter)
	if err != nil {
		return session.Snapshot{}, err
	}
	return c.Snapshot(), nil
}

// Vote casts a vote in a session. A non-empty requestID makes the call
// idempotent: replaying a committed request returns the original vote id,
// and a request that failed may be retried with the same id.
func (s *Service) Vote(ctx context.Context, id string, voter model.Voter, winnerID, requestID string) (VoteReply, error) {
	c, err := s.controller(id, voter)
	if err != nil {
		return VoteReply{}, err
	}

	key := ""
	if requestID != "" {
		key = id + ":" + requestID
		if s.deduper.SeenAndRecord(ctx, key) {
			voteID, ok := s.deduper.Outcome(ctx, key)
			if !ok {
				return VoteReply{}, fmt.Errorf("%w: %s", ErrRequestInFlight, requestID)
			}
			metrics.RecordVoteReplayed()
			return VoteReply{VoteID: voteID, Replayed: true, Snapshot: c.Snapshot()}, nil
		}
	}

	out, err := c.Vote(ctx, winnerID)
	if err != nil {
		if key != "" {
			s.deduper.Unrecord(ctx, key)
		}
		return VoteReply{}, err
	}
	if key != "" {
		s.deduper.Complete(ctx, key, out.Result.VoteID)
	}
	return VoteReply{VoteID: out.Result.VoteID, Outcome: out, Snapshot: c.Snapshot()}, nil
}

// Preview returns both hypothetical outcomes of the session's current pair.
func (s *Service) Preview(_ context.Context, id string, voter model.Voter) (session.Preview, error) {
	c, err := s.controller(id, voter)
	if err != nil {
		return session.Preview{}, err
	}
	return c.Preview()
}

// Submit proposes a new item through a session.
func (s *Service) Submit(ctx context.Context, id string, voter model.Voter, name, category string) (model.Item, session.Snapshot, error) {
	c, err := s.controller(id, voter)
	if err != nil {
		return model.Item{}, session.Snapshot{}, err
	}
	it, err := c.Submit(ctx, name, category)
	if err != nil {
		return model.Item{}, c.Snapshot(), err
	}
	return it, c.Snapshot(), nil
}

// SessionLeaderboard reads the session's list through its cache.
func (s *Service) SessionLeaderboard(ctx context.Context, id string, voter model.Voter, limit int) ([]types.Entry, error) {
	c, err := s.controller(id, voter)
	if err != nil {
		return nil, err
	}
	items, err := c.Leaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]types.Entry, len(items))
	for i, it := range items {
		out[i] = types.Entry{
			Rank:       i + 1,
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
	return out, nil
}

// ActiveSessions returns the number of registered sessions.
func (s *Service) ActiveSessions() int { return s.sessions.Size() }

// controller finds a session owned by voter. A session of another voter is
// reported as missing.
func (s *Service) controller(id string, voter model.Voter) (*session.Controller, error) {
	if _, err := s.running(); err != nil {
		return nil, err
	}
	c, ok := s.sessions.Load(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	owner := c.Voter()
	if owner.UserID != voter.UserID || owner.Name != voter.Name {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return c, nil
}

// sweep evicts sessions idle for longer than the idle ttl.
func (s *Service) sweep(ctx context.Context) int {
	cutoff := s.clock.Now().Add(-s.idleTTL)
	evicted := 0
	s.sessions.Range(func(id string, c *session.Controller) bool {
		if c.LastActive().Before(cutoff) {
			s.sessions.Delete(id)
			evicted++
		}
		return true
	})
	if evicted > 0 {
		s.logger.Info(ctx, "evicted idle sessions", logger.Int("count", evicted))
		metrics.RecordSessionsEvicted(evicted)
	}
	metrics.UpdateSessionsActive(s.sessions.Size())
	return evicted
}
