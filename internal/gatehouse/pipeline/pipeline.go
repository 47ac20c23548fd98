// Package pipeline composes the ordered chain of checks that turns an
// access event into a grant or a typed denial.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/gatehouse/authmode"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/passback"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/protocol"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/store"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/types"
	"github.com/gatehouse-io/gatehouse/internal/ids"
	"github.com/gatehouse-io/gatehouse/internal/obs"
)

// Dependencies wires a Pipeline. Stages run in the order given; the
// terminal executor is fixed.
type Dependencies struct {
	Logger    *log.Logger
	Stages    []Stage
	Tracker   *passback.Tracker
	Devices   store.DeviceStore
	Adapters  *protocol.Registry
	Decisions store.DecisionStore

	// UnlockOnGrant sends the door-release command to the reporting
	// device after a granted decision. Disabled in deployments where
	// the controller releases the door locally on a granted response.
	UnlockOnGrant bool

	// DeviceTimeout bounds the terminal device acknowledgement.
	DeviceTimeout time.Duration
}

type Pipeline struct {
	logger        *log.Logger
	stages        []Stage
	tracker       *passback.Tracker
	devices       store.DeviceStore
	adapters      *protocol.Registry
	decisions     store.DecisionStore
	unlockOnGrant bool
	deviceTimeout time.Duration
}

func New(d Dependencies) *Pipeline {
	timeout := d.DeviceTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Pipeline{
		logger:        d.Logger,
		stages:        d.Stages,
		tracker:       d.Tracker,
		devices:       d.Devices,
		adapters:      d.Adapters,
		decisions:     d.Decisions,
		unlockOnGrant: d.UnlockOnGrant,
		deviceTimeout: timeout,
	}
}

// DefaultStages is the standard chain: anti-passback precondition, area
// constraints, authentication dispatch. The order matters; each stage
// documents why it sits where it does.
func DefaultStages(tracker *passback.Tracker, constraints []Constraint, registry *authmode.Registry) []Stage {
	return []Stage{
		NewPassbackStage(tracker),
		NewAreaConstraintStage(constraints),
		NewAuthStage(registry),
	}
}

// Evaluate runs the event through every stage in order and, when all of
// them pass, commits the anti-passback transition and grants. The
// returned error is reserved for internal failures; every business
// outcome, grant or deny, is a decision value.
func (p *Pipeline) Evaluate(ctx context.Context, ev types.AccessEvent) (types.AccessDecision, error) {
	start := time.Now()
	id := ids.New()
	st := &State{}

	for _, stage := range p.stages {
		out, err := stage.Evaluate(ctx, ev, st)
		if err != nil {
			return types.AccessDecision{}, fmt.Errorf("stage %s: %w", stage.Name(), err)
		}
		if out.isContinue() {
			continue
		}
		if out.override != nil {
			p.finish(ctx, *out.override, start)
			return *out.override, nil
		}
		decision := types.Deny(id, ev, out.reason, time.Now().UTC())
		p.finish(ctx, decision, start)
		return decision, nil
	}

	decision, err := p.commit(ctx, id, ev, st)
	if err != nil {
		return types.AccessDecision{}, err
	}
	p.finish(ctx, decision, start)
	return decision, nil
}

// commit is the terminal executor: the anti-passback state transition
// happens here, after every stage has passed, so a denied event never
// mutates state. A lost commit race is still a policy denial.
func (p *Pipeline) commit(ctx context.Context, id string, ev types.AccessEvent, st *State) (types.AccessDecision, error) {
	at := ev.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var err error
	if ev.Direction == types.DirectionExit {
		err = p.tracker.RecordLeave(ctx, ev.SubjectID, ev.AreaID, at)
	} else {
		err = p.tracker.RecordEnter(ctx, ev.SubjectID, ev.AreaID, at)
	}
	if errors.Is(err, passback.ErrViolation) {
		return types.Deny(id, ev, types.ReasonAntiPassback, time.Now().UTC()), nil
	}
	if err != nil {
		return types.AccessDecision{}, fmt.Errorf("terminal commit: %w", err)
	}

	if p.unlockOnGrant {
		if ok, reason := p.release(ctx, ev, st); !ok {
			// The subject was admitted by policy but the door cannot be
			// released: surface a distinct denial, never a silent grant.
			// The committed transition is rolled back so the subject can
			// retry once the controller is reachable.
			p.rollback(ev)
			return types.Deny(id, ev, reason, time.Now().UTC()), nil
		}
	}

	return types.Grant(id, ev, time.Now().UTC()), nil
}

// release sends the unlock command to the reporting device, bounded by
// the device timeout.
func (p *Pipeline) release(ctx context.Context, ev types.AccessEvent, st *State) (bool, types.DenialReason) {
	device, found, err := p.devices.Get(ctx, ev.DeviceID)
	if err != nil || !found {
		p.logger.Printf("release: device %s lookup failed: found=%v err=%v", ev.DeviceID, found, err)
		return false, types.ReasonDeviceComms
	}

	adapter, ok := p.adapters.ForProtocol(device.Protocol)
	if !ok {
		p.logger.Printf("release: device %s has unknown protocol %q", ev.DeviceID, device.Protocol)
		return false, types.ReasonDeviceComms
	}

	cmdCtx, cancel := context.WithTimeout(ctx, p.deviceTimeout)
	defer cancel()

	res := adapter.SendCommand(cmdCtx, device, protocol.Command{
		Type:      protocol.CommandUnlock,
		SubjectID: ev.SubjectID,
		PassID:    st.PassID,
		IssuedAt:  time.Now().UTC(),
	})
	if !res.OK {
		p.logger.Printf("release: device %s unlock failed: %s", ev.DeviceID, res.Message)
		return false, types.ReasonDeviceComms
	}
	return true, types.ReasonNone
}

// rollback reverses a committed transition after a failed door release.
// Best-effort: a failure here leaves the pair one transition ahead,
// which the next opposite-direction event or an admin reset clears.
func (p *Pipeline) rollback(ev types.AccessEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var err error
	if ev.Direction == types.DirectionExit {
		err = p.tracker.RecordEnter(ctx, ev.SubjectID, ev.AreaID, time.Now().UTC())
	} else {
		err = p.tracker.RecordLeave(ctx, ev.SubjectID, ev.AreaID, time.Now().UTC())
	}
	if err != nil {
		p.logger.Printf("rollback %s/%s after failed release: %v", ev.SubjectID, ev.AreaID, err)
	}
}

// finish records the decision to the audit log and metrics. Audit
// writes are best-effort — a failed write must not change the decision
// the device receives.
func (p *Pipeline) finish(ctx context.Context, d types.AccessDecision, start time.Time) {
	obs.ObserveDecision(d.Granted, string(d.Reason), time.Since(start))

	rec := store.DecisionRecord{
		DecisionID: d.ID,
		SubjectID:  d.Event.SubjectID,
		DeviceID:   d.Event.DeviceID,
		AreaID:     d.Event.AreaID,
		Direction:  d.Event.Direction,
		Method:     d.Event.Method,
		Granted:    d.Granted,
		Reason:     string(d.Reason),
		DecidedAt:  d.DecidedAt,
	}
	if !d.Event.OccurredAt.IsZero() {
		t := d.Event.OccurredAt
		rec.OccurredAt = &t
	}
	if err := p.decisions.RecordDecision(ctx, rec); err != nil {
		p.logger.Printf("decision audit write failed for %s: %v", d.ID, err)
	}
}
