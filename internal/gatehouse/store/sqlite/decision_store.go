package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/gatehouse-io/gatehouse/internal/db"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/store"
)

type DecisionStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewDecisionStore(db *sql.DB, writer *dbpkg.Worker) *DecisionStore {
	return &DecisionStore{db: db, writer: writer}
}

func (s *DecisionStore) RecordDecision(ctx context.Context, rec store.DecisionRecord) error {
	if rec.DecidedAt.IsZero() {
		rec.DecidedAt = time.Now().UTC()
	}
	decidedMs := rec.DecidedAt.UTC().UnixMilli()

	var occurredMs any
	if rec.OccurredAt != nil {
		occurredMs = rec.OccurredAt.UTC().UnixMilli()
	}

	var granted int
	if rec.Granted {
		granted = 1
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO access_decisions(
  decision_id, subject_id, device_id, area_id, direction,
  method_code, granted, reason, occurred_at_ms, decided_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			rec.DecisionID, rec.SubjectID, rec.DeviceID, rec.AreaID, string(rec.Direction),
			int(rec.Method), granted, rec.Reason, occurredMs, decidedMs,
		); err != nil {
			return fmt.Errorf("RecordDecision insert: %w", err)
		}
		return nil
	})
}
