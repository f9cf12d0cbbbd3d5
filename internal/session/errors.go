package session

import (
	"errors"

	"github.com/okian/versus/internal/domain/model"
)

// Kind classifies every error a Controller returns.
type Kind string

// Error kinds. The first four come from the backend; the rest are decided
// locally without a round trip.
const (
	KindNone         Kind = ""
	KindTransient    Kind = "transient"
	KindDuplicate    Kind = "duplicate_submission"
	KindQuota        Kind = "quota_exceeded"
	KindInsufficient Kind = "insufficient_items"
	KindCooldown     Kind = "cooldown"
	KindBusy         Kind = "busy"
	KindInvalid      Kind = "invalid_choice"
)

// Sentinel errors for controller-local rejections.
var (
	ErrBusy              = errors.New("another action is in flight")
	ErrCooldown          = errors.New("vote cooldown active")
	ErrInvalidChoice     = errors.New("invalid choice")
	ErrInsufficientItems = errors.New("not enough items to compare")
	ErrTransient         = errors.New("backend unavailable")
)

// KindOf classifies err. Errors the controller does not recognize are
// transient: the voter may retry.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrBusy):
		return KindBusy
	case errors.Is(err, ErrCooldown):
		return KindCooldown
	case errors.Is(err, ErrInsufficientItems):
		return KindInsufficient
	case errors.Is(err, model.ErrDuplicateItem):
		return KindDuplicate
	case errors.Is(err, model.ErrQuotaExceeded):
		return KindQuota
	case errors.Is(err, ErrInvalidChoice),
		errors.Is(err, model.ErrInvalidName),
		errors.Is(err, model.ErrSelfPair),
		errors.Is(err, model.ErrAnonymousVoter),
		errors.Is(err, model.ErrNotApproved),
		errors.Is(err, model.ErrItemNotFound):
		return KindInvalid
	default:
		return KindTransient
	}
}

// Status lines shown to the voter.
const (
	statusChoose       = "Tap the one you prefer."
	statusSaving       = "Saving vote…"
	statusInsufficient = "Not enough items to compare yet."
	statusLoadFailed   = "Could not load items. Please try again."
	statusVoteFailed   = "Vote failed. Please try again."
	statusCooldown     = "Slow down a little before the next vote."
	statusBusy         = "Still working on your last action."
	statusInvalid      = "That choice is not part of the current pair."
	statusSubmitFailed = "Submission failed. Please try again."
	statusBadName      = "Please enter a name with letters or digits."
)
