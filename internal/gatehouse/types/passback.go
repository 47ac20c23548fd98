package types

import "time"

// Side is which side of an area boundary a subject is currently on.
type Side string

const (
	SideOutside Side = "OUTSIDE"
	SideInside  Side = "INSIDE"
	SideUnknown Side = "UNKNOWN"
)

// PassbackState is the per-(subject, area) anti-passback record. Pairs
// with no stored row are treated as UNKNOWN; rows are created lazily on
// the first transition and deleted only by administrative reset.
type PassbackState struct {
	SubjectID    string
	AreaID       string
	Side         Side
	TransitionAt time.Time
}
