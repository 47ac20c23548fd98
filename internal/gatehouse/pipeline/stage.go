package pipeline

import (
	"context"
	"sort"

	"github.com/gatehouse-io/gatehouse/internal/gatehouse/authmode"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/passback"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/types"
)

// Outcome is what a stage hands back: continue to the next stage, deny
// with a reason, or override the run with a complete decision.
type Outcome struct {
	deny     bool
	reason   types.DenialReason
	override *types.AccessDecision
}

func Continue() Outcome                       { return Outcome{} }
func Deny(reason types.DenialReason) Outcome  { return Outcome{deny: true, reason: reason} }
func Override(d types.AccessDecision) Outcome { return Outcome{override: &d} }

func (o Outcome) isContinue() bool { return !o.deny && o.override == nil }

// State is the passthrough stages may enrich for later stages and the
// terminal executor.
type State struct {
	// PassID is the template/pass identifier produced by a successful
	// backend verification; included in the device unlock command.
	PassID string
}

// Stage is one link in the decision chain. Stages run strictly in
// configured order; the first non-Continue outcome short-circuits.
// Errors abort the run as internal failures — a stage never signals a
// business denial through its error.
type Stage interface {
	Name() string
	Evaluate(ctx context.Context, ev types.AccessEvent, st *State) (Outcome, error)
}

// ── Anti-passback stage ──────────────────────────────────────────────────────

// passbackStage checks the directional precondition but does NOT commit
// the transition — that happens in the terminal executor, after every
// later stage has passed. Committing here would let a failed swipe burn
// a legitimate subject's slot.
type passbackStage struct {
	tracker *passback.Tracker
}

func NewPassbackStage(tracker *passback.Tracker) Stage {
	return &passbackStage{tracker: tracker}
}

func (s *passbackStage) Name() string { return "anti_passback" }

func (s *passbackStage) Evaluate(ctx context.Context, ev types.AccessEvent, _ *State) (Outcome, error) {
	var ok bool
	var err error
	switch ev.Direction {
	case types.DirectionExit:
		ok, err = s.tracker.CanLeave(ctx, ev.SubjectID, ev.AreaID)
	default:
		ok, err = s.tracker.CanEnter(ctx, ev.SubjectID, ev.AreaID)
	}
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Deny(types.ReasonAntiPassback), nil
	}
	return Continue(), nil
}

// ── Area-constraint stage ────────────────────────────────────────────────────

type areaConstraintStage struct {
	byArea map[string][]Constraint
}

// NewAreaConstraintStage indexes constraints by area and orders each
// area's constraints by priority, higher first.
func NewAreaConstraintStage(constraints []Constraint) Stage {
	byArea := make(map[string][]Constraint)
	for _, c := range constraints {
		byArea[c.AreaID()] = append(byArea[c.AreaID()], c)
	}
	for _, cs := range byArea {
		sort.SliceStable(cs, func(i, j int) bool { return cs[i].Priority() > cs[j].Priority() })
	}
	return &areaConstraintStage{byArea: byArea}
}

func (s *areaConstraintStage) Name() string { return "area_constraint" }

func (s *areaConstraintStage) Evaluate(ctx context.Context, ev types.AccessEvent, _ *State) (Outcome, error) {
	// No configured constraint for the area: pass. Most areas have none.
	for _, c := range s.byArea[ev.AreaID] {
		ok, _, err := c.Check(ctx, ev)
		if err != nil {
			return Outcome{}, err
		}
		if !ok {
			return Deny(types.ReasonAreaConstraint), nil
		}
	}
	return Continue(), nil
}

// ── Authentication-dispatch stage ────────────────────────────────────────────

type authStage struct {
	registry *authmode.Registry
}

func NewAuthStage(registry *authmode.Registry) Stage {
	return &authStage{registry: registry}
}

func (s *authStage) Name() string { return "auth_dispatch" }

func (s *authStage) Evaluate(ctx context.Context, ev types.AccessEvent, st *State) (Outcome, error) {
	// Recurring subjects may be verified on the device; the backend then
	// only records the outcome. Temporary subjects always verify here,
	// even when the device claims an edge match.
	if ev.EdgeVerified && authmode.SelectMode(ev.Category) == authmode.ModeEdge {
		return Continue(), nil
	}

	strategy, ok := s.registry.Lookup(ev.Method)
	if !ok {
		return Deny(types.ReasonUnsupportedMethod), nil
	}

	res, err := strategy.Authenticate(ctx, authmode.Request{
		SubjectID:  ev.SubjectID,
		AreaID:     ev.AreaID,
		DeviceID:   ev.DeviceID,
		Method:     ev.Method,
		Credential: ev.Credential,
		Category:   ev.Category,
	})
	if err != nil {
		return Outcome{}, err
	}
	if !res.OK {
		return Deny(types.ReasonVerificationFailed), nil
	}
	st.PassID = res.PassID
	return Continue(), nil
}
