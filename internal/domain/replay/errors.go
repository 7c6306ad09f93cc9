package replay

import "errors"

// Sentinel kinds for replay and validation outcomes.
var (
	ErrDuplicate  = errors.New("duplicate submission")
	ErrStale      = errors.New("stale submission")
	ErrValidation = errors.New("submission out of policy")
)
