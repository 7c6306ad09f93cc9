// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
)

// Mode selects how a submission's counters are merged into the aggregate.
type Mode string

const (
	// ModeSet overwrites all counters unconditionally.
	ModeSet Mode = "set"
	// ModeDelta adds the submitted counters to the stored ones.
	ModeDelta Mode = "delta"
)

// Valid reports whether the mode is one of the two supported values.
func (m Mode) Valid() bool { return m == ModeSet || m == ModeDelta }

// Scheme identifies which identity table a submission targets.
type Scheme string

const (
	// SchemeName keys aggregates by player display name (case-insensitive).
	SchemeName Scheme = "name"
	// SchemeDevice keys aggregates by an opaque device/account uid.
	SchemeDevice Scheme = "device"
)

// Valid reports whether the scheme is one of the two supported values.
func (s Scheme) Valid() bool { return s == SchemeName || s == SchemeDevice }

// Counters holds the four numeric score fields tracked per identity.
type Counters struct {
	Rounds   int64 `json:"rounds"`
	KOs      int64 `json:"kos"`
	Trainers int64 `json:"trainers"`
	Extra    int64 `json:"extra"`
}

// Add returns the element-wise sum of c and o.
func (c Counters) Add(o Counters) Counters {
	return Counters{
		Rounds:   c.Rounds + o.Rounds,
		KOs:      c.KOs + o.KOs,
		Trainers: c.Trainers + o.Trainers,
		Extra:    c.Extra + o.Extra,
	}
}

// Negative reports whether any counter is below zero.
func (c Counters) Negative() bool {
	return c.Rounds < 0 || c.KOs < 0 || c.Trainers < 0 || c.Extra < 0
}

// Submission is one inbound, untrusted score update. All wire encodings
// (JSON, form, file upload) decode into this shape before verification.
type Submission struct {
	Scheme Scheme
	UID    string // device scheme identity key; empty for name scheme
	Player string // display name; identity key for the name scheme
	Mode   Mode
	Counters
	Marker int64  // sequence number or unix-milli timestamp, per discipline
	Team   string // optional roster description, latest-writer-wins
	Secret string // self-registration secret candidate, device scheme only
	Tag    string // hex HMAC tag over the canonical string
}

// Identity returns the stable key the submission is aggregated under.
// Name-scheme keys are case-folded so "Lan" and "lan" collide.
func (s Submission) Identity() string {
	if s.Scheme == SchemeDevice {
		return s.UID
	}
	return strings.ToLower(s.Player)
}

// Aggregate is the current stored total for one identity.
type Aggregate struct {
	Scheme Scheme `json:"scheme"`
	Key    string `json:"key"`
	Player string `json:"player"`
	Counters
	Team      string    `json:"team,omitempty"`
	Rank      int       `json:"rank,omitempty"` // explicit rank column, name scheme only
	Marker    int64     `json:"marker"`
	UpdatedAt time.Time `json:"updated_at"`
}
