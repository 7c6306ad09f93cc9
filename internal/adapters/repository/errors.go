package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("identity not found")
	ErrUnknownScheme = errors.New("unknown identity scheme")
	ErrUnavailable   = errors.New("store unavailable")
)
