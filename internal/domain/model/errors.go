package model

import "errors"

// Sentinel kinds shared by the storage collaborator and the session controller.
var (
	ErrItemNotFound   = errors.New("item not found")
	ErrDuplicateItem  = errors.New("duplicate item")
	ErrQuotaExceeded  = errors.New("submission quota exceeded")
	ErrSelfPair       = errors.New("winner and loser must differ")
	ErrAnonymousVoter = errors.New("voter identity required")
	ErrNotApproved    = errors.New("item not approved")
	ErrInvalidName    = errors.New("item name must contain letters or digits")
)
