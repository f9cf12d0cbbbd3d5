package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted       = errors.New("service not started")
	ErrSessionNotFound  = errors.New("session not found")
	ErrTooManySessions  = errors.New("too many active sessions")
	ErrRequestInFlight  = errors.New("vote request already in flight")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrUnknownDriver    = errors.New("unknown store driver")
)
