package store

import (
	"context"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/gatehouse/types"
)

// PassbackStateStore persists the per-(subject, area) anti-passback side.
//
// CompareAndSwap is the only mutation used by the decision path and must
// be atomic per key: the swap succeeds only if the stored side is one of
// `from` at commit time. Pairs with no stored row behave as UNKNOWN, so a
// swap whose `from` set contains UNKNOWN also succeeds on a missing row
// (creating it). The returned bool reports whether the swap happened;
// losing a race is not an error.
type PassbackStateStore interface {
	Get(ctx context.Context, subjectID, areaID string) (types.PassbackState, error)
	CompareAndSwap(ctx context.Context, subjectID, areaID string, from []types.Side, to types.Side, at time.Time) (bool, error)

	// Reset forces the pair back to UNKNOWN, bypassing the state machine.
	// Administrative use only; callers are responsible for privileged-action
	// auditing.
	Reset(ctx context.Context, subjectID, areaID string) error
}
