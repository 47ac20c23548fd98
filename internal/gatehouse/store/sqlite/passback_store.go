package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/gatehouse-io/gatehouse/internal/db"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/types"
)

// PassbackStateStore persists per-(subject, area) sides in sqlite. All
// mutations run through the single-writer Worker, so a compare-and-set is
// one transaction that no concurrent commit can interleave with.
type PassbackStateStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewPassbackStateStore(db *sql.DB, writer *dbpkg.Worker) *PassbackStateStore {
	return &PassbackStateStore{db: db, writer: writer}
}

func (s *PassbackStateStore) Get(ctx context.Context, subjectID, areaID string) (types.PassbackState, error) {
	st := types.PassbackState{
		SubjectID: subjectID,
		AreaID:    areaID,
		Side:      types.SideUnknown,
	}

	var side string
	var transitionMs int64
	err := s.db.QueryRowContext(ctx, `
SELECT side, transition_at_ms
FROM passback_state
WHERE subject_id = ? AND area_id = ?;
`, subjectID, areaID).Scan(&side, &transitionMs)

	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("passback get: %w", err)
	}

	st.Side = types.Side(side)
	st.TransitionAt = time.UnixMilli(transitionMs).UTC()
	return st, nil
}

func (s *PassbackStateStore) CompareAndSwap(ctx context.Context, subjectID, areaID string, from []types.Side, to types.Side, at time.Time) (bool, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	atMs := at.UTC().UnixMilli()

	fromUnknown := false
	placeholders := make([]string, 0, len(from))
	args := make([]any, 0, len(from)+4)
	args = append(args, string(to), atMs, subjectID, areaID)
	for _, f := range from {
		if f == types.SideUnknown {
			fromUnknown = true
		}
		placeholders = append(placeholders, "?")
		args = append(args, string(f))
	}

	swapped := false
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		// A missing row reads as UNKNOWN, so when UNKNOWN is an accepted
		// source side the row is created first with that side. INSERT OR
		// IGNORE keeps an existing row (and its real side) intact.
		if fromUnknown {
			if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO passback_state(subject_id, area_id, side, transition_at_ms)
VALUES (?, ?, 'UNKNOWN', ?);
`, subjectID, areaID, atMs); err != nil {
				return fmt.Errorf("passback cas insert: %w", err)
			}
		}

		res, err := tx.ExecContext(ctx, fmt.Sprintf(`
UPDATE passback_state
SET side = ?, transition_at_ms = ?
WHERE subject_id = ? AND area_id = ? AND side IN (%s);
`, strings.Join(placeholders, ",")), args...)
		if err != nil {
			return fmt.Errorf("passback cas update: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("passback cas rows: %w", err)
		}
		swapped = n == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return swapped, nil
}

func (s *PassbackStateStore) Reset(ctx context.Context, subjectID, areaID string) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
DELETE FROM passback_state
WHERE subject_id = ? AND area_id = ?;
`, subjectID, areaID); err != nil {
			return fmt.Errorf("passback reset: %w", err)
		}
		return nil
	})
}
