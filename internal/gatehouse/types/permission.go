package types

import "time"

// ChangeType of a permission mutation raised elsewhere in the system.
type ChangeType string

const (
	ChangeAdded   ChangeType = "ADDED"
	ChangeRemoved ChangeType = "REMOVED"
)

// PermissionChange is consumed exactly once by the propagator. The event
// source does not retry; retry is the propagator's responsibility.
// OccurredAt is authoritative for ordering — two changes for the same
// (subject, area) must be reconciled by occurrence time, not by arrival
// order.
type PermissionChange struct {
	SubjectID  string     `json:"subject_id"`
	AreaID     string     `json:"area_id"`
	Change     ChangeType `json:"change"`
	OccurredAt time.Time  `json:"occurred_at"`
}
