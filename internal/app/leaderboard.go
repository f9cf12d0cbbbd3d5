package service

import (
	"context"
	"fmt"

	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/types"
	"github.com/okian/versus/pkg/logger"
)

// reconcileLimit bounds how many items of one list the board is rebuilt from.
const reconcileLimit = 100_000

// TopN returns the top n entries of a list from the board projection.
func (s *Service) TopN(ctx context.Context, list model.ListID, n int) ([]types.Entry, error) {
	if _, err := s.running(); err != nil {
		return nil, err
	}
	return s.board.TopN(ctx, list, n)
}

// Rank returns one item's board position.
func (s *Service) Rank(ctx context.Context, list model.ListID, itemID string) (types.Entry, error) {
	if _, err := s.running(); err != nil {
		return types.Entry{}, err
	}
	return s.board.Rank(ctx, list, itemID)
}

// Reconcile rebuilds the board from the store now.
func (s *Service) Reconcile(ctx context.Context) error {
	if _, err := s.running(); err != nil {
		return err
	}
	return s.reconcile(ctx)
}

func (s *Service) reconcile(ctx context.Context) error {
	lists, err := s.store.Lists(ctx)
	if err != nil {
		return fmt.Errorf("list ids: %w", err)
	}
	for _, list := range lists {
		items, err := s.store.RankedList(ctx, list, reconcileLimit)
		if err != nil {
			return fmt.Errorf("ranked list %d: %w", list, err)
		}
		s.board.Replace(ctx, list, items)
		s.logger.Debug(ctx, "board reconciled",
			logger.Int64("list", int64(list)),
			logger.Int("items", len(items)))
	}
	return nil
}
