// Package replay decides whether a submission is fresh, a duplicate, or
// stale before any mutation is applied.
//
// Two freshness-marker disciplines exist. The name scheme uses a strict
// timestamp: anything at or below the stored marker is rejected. The device
// scheme uses sequence numbers backed by an append-only event log, so
// out-of-order-but-new sequences are still accepted; only an exact
// (identity, sequence) repeat is a duplicate. Exactly one discipline is
// active per scheme.
package replay

// Decision is the outcome of a freshness check.
type Decision int

const (
	// Accept means the submission is new and may be merged.
	Accept Decision = iota
	// Duplicate means the submission was already applied; callers must
	// treat this as a benign no-op, not an error.
	Duplicate
	// Stale means the submission is older than accepted state and must
	// be rejected without mutating anything.
	Stale
)

// String returns the decision name for logs.
func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case Duplicate:
		return "duplicate"
	case Stale:
		return "stale"
	}
	return "unknown"
}

// CheckMarker applies the strict-timestamp discipline: a marker equal to
// the stored one is a duplicate (safe client retry), a lower one is stale.
func CheckMarker(stored, incoming int64) Decision {
	switch {
	case incoming > stored:
		return Accept
	case incoming == stored:
		return Duplicate
	default:
		return Stale
	}
}

// Err converts a non-accept decision into its sentinel error.
// Accept maps to nil.
func (d Decision) Err() error {
	switch d {
	case Duplicate:
		return ErrDuplicate
	case Stale:
		return ErrStale
	}
	return nil
}
