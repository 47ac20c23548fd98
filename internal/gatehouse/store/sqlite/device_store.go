package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/gatehouse-io/gatehouse/internal/db"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/store"
)

type DeviceStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewDeviceStore(db *sql.DB, writer *dbpkg.Worker) *DeviceStore {
	return &DeviceStore{db: db, writer: writer}
}

func (s *DeviceStore) Get(ctx context.Context, deviceID string) (store.DeviceRecord, bool, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return store.DeviceRecord{}, false, nil
	}

	var rec store.DeviceRecord
	var areaID sql.NullString
	var enabled int
	var lastSeenMs sql.NullInt64

	err := s.db.QueryRowContext(ctx, `
SELECT device_id, area_id, protocol, address, enabled, last_seen_ms
FROM devices
WHERE device_id = ?;
`, deviceID).Scan(&rec.DeviceID, &areaID, &rec.Protocol, &rec.Address, &enabled, &lastSeenMs)

	if errors.Is(err, sql.ErrNoRows) {
		return store.DeviceRecord{}, false, nil
	}
	if err != nil {
		return store.DeviceRecord{}, false, fmt.Errorf("device get: %w", err)
	}

	rec.AreaID = areaID.String
	rec.Enabled = enabled == 1
	if lastSeenMs.Valid {
		rec.LastSeen = time.UnixMilli(lastSeenMs.Int64).UTC()
	}
	return rec, true, nil
}

func (s *DeviceStore) ListByArea(ctx context.Context, areaID string) ([]store.DeviceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT device_id, area_id, protocol, address, enabled, last_seen_ms
FROM devices
WHERE area_id = ? AND enabled = 1
ORDER BY device_id;
`, areaID)
	if err != nil {
		return nil, fmt.Errorf("device list by area: %w", err)
	}
	defer rows.Close()

	var out []store.DeviceRecord
	for rows.Next() {
		var rec store.DeviceRecord
		var area sql.NullString
		var enabled int
		var lastSeenMs sql.NullInt64
		if err := rows.Scan(&rec.DeviceID, &area, &rec.Protocol, &rec.Address, &enabled, &lastSeenMs); err != nil {
			return nil, fmt.Errorf("device list scan: %w", err)
		}
		rec.AreaID = area.String
		rec.Enabled = enabled == 1
		if lastSeenMs.Valid {
			rec.LastSeen = time.UnixMilli(lastSeenMs.Int64).UTC()
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkSeen ensures a devices row exists (even for unknown devices, so
// later commissioning keeps the observed history) and updates last_seen.
func (s *DeviceStore) MarkSeen(ctx context.Context, deviceID string, t time.Time) error {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil
	}
	if t.IsZero() {
		t = time.Now().UTC()
	}
	ms := t.UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureDevice(ctx, tx, deviceID, ms); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE devices
SET last_seen_ms  = ?,
    updated_at_ms = ?
WHERE device_id = ?;
`, ms, ms, deviceID); err != nil {
			return fmt.Errorf("MarkSeen update device: %w", err)
		}
		return nil
	})
}
