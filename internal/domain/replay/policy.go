package replay

import (
	"fmt"
	"strings"

	"github.com/pokearena/scoresync/internal/domain/model"
)

// Default policy bounds.
const (
	defaultMaxKOsPerRound = 3
	maxPlayerNameLen      = 64
)

// Policy holds the sanity bounds applied to authenticated submissions.
// These are policy checks, not correctness checks, and they run strictly
// after signature verification so unauthenticated callers never see
// field-level feedback.
type Policy struct {
	// TrainersFlag constrains trainers to {0,1} when true. When false,
	// trainers is an unbounded accumulating count.
	TrainersFlag bool

	// MaxKOsPerRound bounds kos relative to rounds in set mode.
	MaxKOsPerRound int64
}

// DefaultPolicy returns the bounds used when config supplies none:
// trainers as a flag, kos capped at three per round.
func DefaultPolicy() Policy {
	return Policy{TrainersFlag: true, MaxKOsPerRound: defaultMaxKOsPerRound}
}

// Validate checks an authenticated submission against the policy bounds.
// All violations are reported as ErrValidation with a reason.
func (p Policy) Validate(s model.Submission) error {
	if !s.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", ErrValidation, string(s.Mode))
	}
	if strings.TrimSpace(s.Player) == "" {
		return fmt.Errorf("%w: missing player name", ErrValidation)
	}
	if len(s.Player) > maxPlayerNameLen {
		return fmt.Errorf("%w: player name too long", ErrValidation)
	}
	if s.Counters.Negative() {
		return fmt.Errorf("%w: negative counter", ErrValidation)
	}
	if p.TrainersFlag && s.Trainers > 1 {
		return fmt.Errorf("%w: trainers must be 0 or 1", ErrValidation)
	}
	// The kos/rounds ratio only holds for absolute values. A delta like
	// {kos:1, rounds:0} is legitimate, so the bound applies in set mode.
	if s.Mode == model.ModeSet && p.MaxKOsPerRound > 0 && s.KOs > p.MaxKOsPerRound*s.Rounds {
		return fmt.Errorf("%w: kos exceeds %d per round", ErrValidation, p.MaxKOsPerRound)
	}
	if s.Marker < 0 {
		return fmt.Errorf("%w: negative marker", ErrValidation)
	}
	return nil
}
