package signature

import "errors"

// Sentinel kinds for authentication errors.
var (
	ErrBadSignature  = errors.New("bad signature")
	ErrBadToken      = errors.New("bad token")
	ErrUnknownDevice = errors.New("device not registered")
	ErrBadSecret     = errors.New("secret does not match format policy")
)
