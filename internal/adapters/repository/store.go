// Package repository defines the score store contract and its backends.
//
// The store is the sole mutual-exclusion mechanism in the system: every
// merge is a single atomic conditional upsert guarded by the identity
// uniqueness constraint, never a read-then-write pair.
package repository

import (
	"context"

	"github.com/pokearena/scoresync/internal/domain/model"
)

// Store provides durable keyed access to per-identity aggregates.
type Store interface {
	// Apply atomically replay-checks and merges one submission into the
	// aggregate for its identity, creating the row when absent.
	// Returns the resulting aggregate on success. A duplicate submission
	// returns the current aggregate together with replay.ErrDuplicate; a
	// stale one returns replay.ErrStale and changes nothing.
	Apply(ctx context.Context, sub model.Submission) (model.Aggregate, error)

	// Get returns the aggregate for one identity key.
	// Returns ErrNotFound for unknown identities.
	Get(ctx context.Context, scheme model.Scheme, key string) (model.Aggregate, error)

	// List returns all aggregates for one scheme, unordered.
	List(ctx context.Context, scheme model.Scheme) ([]model.Aggregate, error)

	// Reset clears all aggregate rows for one scheme. For the device
	// scheme the event log goes with them; registrations survive.
	Reset(ctx context.Context, scheme model.Scheme) error

	// Count returns the number of identities tracked for one scheme.
	Count(ctx context.Context, scheme model.Scheme) int

	// DeviceSecret returns the registered secret for a device uid.
	// Returns ErrNotFound for unregistered devices.
	DeviceSecret(ctx context.Context, uid string) (string, error)

	// RegisterDevice stores a secret for a first-seen uid and returns the
	// authoritative secret: when two registrations race, both callers get
	// the winner's secret back.
	RegisterDevice(ctx context.Context, uid, secret string) (string, error)

	// Close releases backend resources.
	Close() error
}
