package types

import "time"

// Direction of a physical access event relative to the area.
type Direction string

const (
	DirectionEnter Direction = "ENTER"
	DirectionExit  Direction = "EXIT"
)

// SubjectCategory determines where authentication happens. Temporary
// credentials (short-lived visitor passes) change too often for edge
// caches to be trusted, so they always verify centrally.
type SubjectCategory string

const (
	SubjectTemporary SubjectCategory = "temporary"
	SubjectRecurring SubjectCategory = "recurring"
)

// GeoPoint is an optional device-reported location attached to an event.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// AccessEvent is a single badge/face/card presentation at a door.
// It is built once by the inbound handler and consumed once by the
// pipeline; nothing mutates it after construction.
type AccessEvent struct {
	SubjectID  string
	DeviceID   string
	AreaID     string
	Direction  Direction
	Method     MethodCode
	Category   SubjectCategory
	Credential string // raw credential payload for backend verification

	// EdgeVerified means the device already matched a locally cached
	// template and reports only the resolved subject.
	EdgeVerified bool

	Location   *GeoPoint
	OccurredAt time.Time
}

// AccessRequest is the JSON body the door controller posts for a decision.
type AccessRequest struct {
	SubjectID    string    `json:"subject_id"`
	DeviceID     string    `json:"device_id"`
	Direction    string    `json:"direction"`
	Method       int       `json:"method"`
	Category     string    `json:"category,omitempty"`
	Credential   string    `json:"credential,omitempty"`
	EdgeVerified bool      `json:"edge_verified,omitempty"`
	Location     *GeoPoint `json:"location,omitempty"`
	RequestedAt  string    `json:"requested_at,omitempty"` // optional device timestamp
}

// AccessResponse mirrors the decision back to the device.
type AccessResponse struct {
	OK         bool   `json:"ok"`
	Known      bool   `json:"known"`
	Granted    bool   `json:"granted"`
	Reason     string `json:"reason,omitempty"`
	DecisionID string `json:"decision_id,omitempty"`
	DeviceID   string `json:"device_id"`
	ServerTime string `json:"server_time"`
}
