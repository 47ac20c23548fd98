// Package passback owns the per-(subject, area) anti-passback state
// machine: a subject may not enter an area twice without an intervening
// exit, and may not exit without being inside.
package passback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/gatehouse/store"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/types"
)

// ErrViolation is returned by Record* when the state precondition no
// longer holds at commit time (for example, two concurrent enters for the
// same pair — exactly one wins). Callers must distinguish this policy
// denial from storage failures, which come back as ordinary errors.
var ErrViolation = errors.New("anti-passback violation")

// enterFrom are the sides a transition to INSIDE is valid from; a pair
// never seen before reads as UNKNOWN and is allowed in.
var (
	enterFrom = []types.Side{types.SideOutside, types.SideUnknown}
	leaveFrom = []types.Side{types.SideInside}
)

// Tracker serializes anti-passback transitions per (subject, area) pair
// on top of a compare-and-set state store. It holds no state of its own,
// so a single instance is shared by every pipeline invocation.
type Tracker struct {
	states store.PassbackStateStore
}

func NewTracker(states store.PassbackStateStore) *Tracker {
	return &Tracker{states: states}
}

// CanEnter reports whether the subject is currently OUTSIDE or UNKNOWN.
// This is advisory: the authoritative check happens again inside
// RecordEnter's compare-and-set.
func (t *Tracker) CanEnter(ctx context.Context, subjectID, areaID string) (bool, error) {
	st, err := t.states.Get(ctx, subjectID, areaID)
	if err != nil {
		return false, fmt.Errorf("passback state read: %w", err)
	}
	return st.Side == types.SideOutside || st.Side == types.SideUnknown, nil
}

// CanLeave reports whether the subject is currently INSIDE.
func (t *Tracker) CanLeave(ctx context.Context, subjectID, areaID string) (bool, error) {
	st, err := t.states.Get(ctx, subjectID, areaID)
	if err != nil {
		return false, fmt.Errorf("passback state read: %w", err)
	}
	return st.Side == types.SideInside, nil
}

// RecordEnter commits the OUTSIDE/UNKNOWN -> INSIDE transition as one
// atomic check-and-set. Losing the race returns ErrViolation.
func (t *Tracker) RecordEnter(ctx context.Context, subjectID, areaID string, at time.Time) error {
	return t.record(ctx, subjectID, areaID, enterFrom, types.SideInside, at)
}

// RecordLeave commits the INSIDE -> OUTSIDE transition.
func (t *Tracker) RecordLeave(ctx context.Context, subjectID, areaID string, at time.Time) error {
	return t.record(ctx, subjectID, areaID, leaveFrom, types.SideOutside, at)
}

func (t *Tracker) record(ctx context.Context, subjectID, areaID string, from []types.Side, to types.Side, at time.Time) error {
	swapped, err := t.states.CompareAndSwap(ctx, subjectID, areaID, from, to, at)
	if err != nil {
		return fmt.Errorf("passback state commit: %w", err)
	}
	if !swapped {
		return ErrViolation
	}
	return nil
}

// Reset forces the pair back to UNKNOWN, bypassing the state machine.
// The caller is responsible for logging this as a privileged action.
func (t *Tracker) Reset(ctx context.Context, subjectID, areaID string) error {
	if err := t.states.Reset(ctx, subjectID, areaID); err != nil {
		return fmt.Errorf("passback reset: %w", err)
	}
	return nil
}
