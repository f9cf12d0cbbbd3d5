package auth

import "errors"

// Sentinel kinds for authentication errors.
var (
	ErrMissingToken     = errors.New("missing bearer token")
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token expired")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrAnonymous        = errors.New("no voter identity")
)
