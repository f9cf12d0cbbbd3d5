package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/okian/versus/internal/adapters/repository"
	"github.com/okian/versus/internal/adapters/repository/sqlstore"
	"github.com/okian/versus/internal/config"
	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/quota"
	"github.com/okian/versus/internal/domain/rating"
	"github.com/okian/versus/pkg/logger"
	"github.com/okian/versus/pkg/metrics"
)

// Breaker defaults.
const (
	breakerMaxRequests = 3
	breakerInterval    = time.Minute
	breakerTimeout     = 10 * time.Second
	breakerTripAfter   = 5
)

// OpenStore opens the store selected by cfg. SQL stores are migrated
// before they are returned.
func OpenStore(ctx context.Context, cfg *config.Config, rm *rating.Model) (repository.Store, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return repository.NewMemStore(repository.WithRatingModel(rm), repository.WithLocation(loc)), nil
	case config.DriverSQLite, config.DriverPostgres:
		st, err := sqlstore.Open(ctx, cfg.StoreDriver, cfg.StoreDSN,
			sqlstore.WithRatingModel(rm),
			sqlstore.WithLocation(loc))
		if err != nil {
			return nil, err
		}
		if _, err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.StoreDriver)
	}
}

// breakerStore guards a store with a circuit breaker. Only infrastructure
// errors count as failures; domain rejections pass through as successes.
type breakerStore struct {
	repository.Store
	cb *gobreaker.CircuitBreaker
}

func newBreakerStore(st repository.Store, log logger.Logger) *breakerStore {
	return &breakerStore{
		Store: st,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "store",
			MaxRequests: breakerMaxRequests,
			Interval:    breakerInterval,
			Timeout:     breakerTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= breakerTripAfter
			},
			IsSuccessful: isHealthy,
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn(context.Background(), "circuit breaker state changed",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()))
				metrics.RecordErrorByComponent(name, "breaker_"+to.String())
			},
		}),
	}
}

func isHealthy(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		errors.Is(err, model.ErrDuplicateItem),
		errors.Is(err, model.ErrQuotaExceeded),
		errors.Is(err, model.ErrItemNotFound),
		errors.Is(err, model.ErrSelfPair),
		errors.Is(err, model.ErrAnonymousVoter),
		errors.Is(err, model.ErrNotApproved),
		errors.Is(err, model.ErrInvalidName):
		return true
	}
	return false
}

func call[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	v, err := cb.Execute(func() (any, error) { return fn() })
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		return zero, err
	}
	return v.(T), nil
}

func (s *breakerStore) LoadItems(ctx context.Context, list model.ListID) ([]model.Item, error) {
	return call(s.cb, func() ([]model.Item, error) { return s.Store.LoadItems(ctx, list) })
}

func (s *breakerStore) LoadAllItems(ctx context.Context, list model.ListID) ([]model.Item, error) {
	return call(s.cb, func() ([]model.Item, error) { return s.Store.LoadAllItems(ctx, list) })
}

func (s *breakerStore) InsertItem(ctx context.Context, sub model.Submission) (model.Item, error) {
	return call(s.cb, func() (model.Item, error) { return s.Store.InsertItem(ctx, sub) })
}

func (s *breakerStore) SeedItem(ctx context.Context, it model.Item) (model.Item, error) {
	return call(s.cb, func() (model.Item, error) { return s.Store.SeedItem(ctx, it) })
}

func (s *breakerStore) Approve(ctx context.Context, list model.ListID, itemID string) (model.Item, error) {
	return call(s.cb, func() (model.Item, error) { return s.Store.Approve(ctx, list, itemID) })
}

func (s *breakerStore) RankedList(ctx context.Context, list model.ListID, limit int) ([]model.Item, error) {
	return call(s.cb, func() ([]model.Item, error) { return s.Store.RankedList(ctx, list, limit) })
}

func (s *breakerStore) Lists(ctx context.Context) ([]model.ListID, error) {
	return call(s.cb, func() ([]model.ListID, error) { return s.Store.Lists(ctx) })
}

func (s *breakerStore) ApplyVote(ctx context.Context, b model.Ballot) (model.VoteResult, error) {
	return call(s.cb, func() (model.VoteResult, error) { return s.Store.ApplyVote(ctx, b) })
}

func (s *breakerStore) CountVotes(ctx context.Context, v model.Voter, list model.ListID, w quota.Window) (int, error) {
	return call(s.cb, func() (int, error) { return s.Store.CountVotes(ctx, v, list, w) })
}

func (s *breakerStore) CountSubmissions(ctx context.Context, v model.Voter, list model.ListID, w quota.Window) (int, error) {
	return call(s.cb, func() (int, error) { return s.Store.CountSubmissions(ctx, v, list, w) })
}
