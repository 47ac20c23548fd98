package store

import (
	"context"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/gatehouse/types"
)

// DecisionRecord captures a single access decision for the audit log.
type DecisionRecord struct {
	DecisionID string
	SubjectID  string
	DeviceID   string
	AreaID     string
	Direction  types.Direction
	Method     types.MethodCode
	Granted    bool
	Reason     string
	OccurredAt *time.Time // optional device-reported timestamp
	DecidedAt  time.Time
}

// DecisionStore persists access decisions as an append-only audit log.
type DecisionStore interface {
	RecordDecision(ctx context.Context, rec DecisionRecord) error
}
