package repository

import (
	"errors"

	"github.com/okian/versus/internal/domain/model"
)

// Sentinel kinds for store and leaderboard errors.
var (
	ErrNotFound     = model.ErrItemNotFound
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
	ErrClosed       = errors.New("store closed")
	ErrInvalidName  = model.ErrInvalidName
)
