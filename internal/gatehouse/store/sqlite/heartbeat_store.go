package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/gatehouse-io/gatehouse/internal/db"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/store"
)

type HeartbeatStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewHeartbeatStore(db *sql.DB, writer *dbpkg.Worker) *HeartbeatStore {
	return &HeartbeatStore{db: db, writer: writer}
}

// UpsertHeartbeat keeps one snapshot row per device and refreshes the
// device's last_seen so the propagator can spot stale controllers.
func (s *HeartbeatStore) UpsertHeartbeat(ctx context.Context, deviceID string, rec store.HeartbeatRecord) error {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil
	}

	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	recvMs := rec.ReceivedAt.UTC().UnixMilli()

	var rssi any
	if rec.Request.RSSIDbm != nil {
		rssi = *rec.Request.RSSIDbm
	}

	var doorClosed any
	if rec.Request.DoorClosed != nil {
		if *rec.Request.DoorClosed {
			doorClosed = 1
		} else {
			doorClosed = 0
		}
	}

	var uptime any
	if rec.Request.UptimeSeconds != 0 {
		uptime = int64(rec.Request.UptimeSeconds)
	}

	fw := strings.TrimSpace(rec.Request.FirmwareVersion)
	ip := strings.TrimSpace(rec.Request.IP)

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureDevice(ctx, tx, deviceID, recvMs); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO heartbeats(
  device_id, received_at_ms, firmware_version, uptime_s, door_closed, rssi_dbm, ip
) VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(device_id) DO UPDATE SET
  received_at_ms   = excluded.received_at_ms,
  firmware_version = excluded.firmware_version,
  uptime_s         = excluded.uptime_s,
  door_closed      = excluded.door_closed,
  rssi_dbm         = excluded.rssi_dbm,
  ip               = excluded.ip;
`, deviceID, recvMs, fw, uptime, doorClosed, rssi, ip); err != nil {
			return fmt.Errorf("UpsertHeartbeat insert: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE devices
SET last_seen_ms  = ?,
    updated_at_ms = ?
WHERE device_id = ?;
`, recvMs, recvMs, deviceID); err != nil {
			return fmt.Errorf("UpsertHeartbeat update device: %w", err)
		}
		return nil
	})
}

// PruneOlderThan deletes heartbeat snapshots last refreshed before the
// cutoff.  Returns the number of rows deleted.
func (s *HeartbeatStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM heartbeats
WHERE received_at_ms < ?;
`, cutoffMs)
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}
