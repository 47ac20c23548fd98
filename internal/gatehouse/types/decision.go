package types

import "time"

// DenialReason is a stable code carried on every denied decision, used
// for device display and audit correlation. Denials are business
// outcomes, not errors; only internal failures surface as Go errors.
type DenialReason string

const (
	ReasonNone               DenialReason = ""
	ReasonAntiPassback       DenialReason = "anti_passback_violation"
	ReasonAreaConstraint     DenialReason = "area_constraint_violation"
	ReasonUnsupportedMethod  DenialReason = "unsupported_method"
	ReasonVerificationFailed DenialReason = "verification_failed"
	ReasonDeviceComms        DenialReason = "device_comms_failure"
	ReasonUnknownDevice      DenialReason = "unknown_device"
)

// AccessDecision is the terminal artifact of a pipeline run.
type AccessDecision struct {
	ID        string
	Granted   bool
	Reason    DenialReason
	Event     AccessEvent
	DecidedAt time.Time
}

// Grant builds a granted decision for ev.
func Grant(id string, ev AccessEvent, at time.Time) AccessDecision {
	return AccessDecision{ID: id, Granted: true, Event: ev, DecidedAt: at}
}

// Deny builds a denied decision for ev with the given reason.
func Deny(id string, ev AccessEvent, reason DenialReason, at time.Time) AccessDecision {
	return AccessDecision{ID: id, Granted: false, Reason: reason, Event: ev, DecidedAt: at}
}

// VerificationResult is produced by an authentication strategy or by the
// verification-mode selector. Not persisted here.
type VerificationResult struct {
	OK     bool
	PassID string // generated template/pass identifier, when applicable
	Reason string // human-readable failure reason
}
