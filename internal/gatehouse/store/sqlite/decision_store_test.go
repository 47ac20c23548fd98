package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/gatehouse/store"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/store/sqlite"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/types"
)

func TestDecisionStore_RecordAndCount(t *testing.T) {
	conn := openTestDB(t)
	ds := sqlite.NewDecisionStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	occurred := time.Now().UTC().Add(-2 * time.Second)
	rec := store.DecisionRecord{
		DecisionID: "01TESTDECISION",
		SubjectID:  "U1",
		DeviceID:   "door-001",
		AreaID:     "A1",
		Direction:  types.DirectionEnter,
		Method:     types.MethodFace,
		Granted:    false,
		Reason:     string(types.ReasonAntiPassback),
		OccurredAt: &occurred,
		DecidedAt:  time.Now().UTC(),
	}
	if err := ds.RecordDecision(ctx, rec); err != nil {
		t.Fatalf("RecordDecision: %v", err)
	}

	var n int
	var reason string
	var method int
	err := conn.QueryRowContext(ctx, `
SELECT COUNT(*), MAX(reason), MAX(method_code) FROM access_decisions;`).Scan(&n, &reason, &method)
	if err != nil {
		t.Fatalf("count query: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
	if reason != string(types.ReasonAntiPassback) {
		t.Errorf("reason = %q", reason)
	}
	if method != int(types.MethodFace) {
		t.Errorf("method_code = %d", method)
	}
}

func TestDecisionStore_NilOccurredAtStoredAsNull(t *testing.T) {
	conn := openTestDB(t)
	ds := sqlite.NewDecisionStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	rec := store.DecisionRecord{
		DecisionID: "01TESTDECISION2",
		SubjectID:  "U2",
		DeviceID:   "door-001",
		AreaID:     "A1",
		Direction:  types.DirectionExit,
		Method:     types.MethodCard,
		Granted:    true,
	}
	if err := ds.RecordDecision(ctx, rec); err != nil {
		t.Fatalf("RecordDecision: %v", err)
	}

	var occurredNull int
	err := conn.QueryRowContext(ctx, `
SELECT COUNT(*) FROM access_decisions WHERE occurred_at_ms IS NULL;`).Scan(&occurredNull)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if occurredNull != 1 {
		t.Errorf("expected occurred_at_ms NULL, count=%d", occurredNull)
	}
}
