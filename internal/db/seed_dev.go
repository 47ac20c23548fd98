package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/gatehouse/store"
)

type SeedDevOptions struct {
	// Devices to pre-create as enabled, usually parsed from
	// GATEHOUSE_DEVICES.
	Devices []store.DeviceRecord
}

// SeedDev creates a starter area and door controller so a fresh dev
// database can serve decisions immediately, then upserts the configured
// devices on top.
func SeedDev(ctx context.Context, conn *sql.DB, opt SeedDevOptions) error {
	now := time.Now().UTC().UnixMilli()

	if _, err := conn.ExecContext(ctx, `
INSERT OR IGNORE INTO areas(area_id, name, created_at_ms, updated_at_ms)
VALUES ('area_lobby', 'Lobby', ?, ?);`, now, now); err != nil {
		return fmt.Errorf("seed areas: %w", err)
	}

	if _, err := conn.ExecContext(ctx, `
INSERT INTO devices(
  device_id, area_id, display_name, protocol, address,
  enabled, created_at_ms, updated_at_ms
) VALUES ('door-001', 'area_lobby', 'Lobby Entrance', 'http', 'http://127.0.0.1:9000', 1, ?, ?)
ON CONFLICT(device_id) DO UPDATE SET
  area_id = excluded.area_id,
  display_name = excluded.display_name,
  enabled = 1,
  updated_at_ms = excluded.updated_at_ms;
`, now, now); err != nil {
		return fmt.Errorf("seed device door-001: %w", err)
	}

	return UpsertDevices(ctx, conn, opt.Devices)
}

// UpsertDevices registers the configured door controllers as enabled,
// creating their areas as needed. Safe to run on every start.
func UpsertDevices(ctx context.Context, conn *sql.DB, devices []store.DeviceRecord) error {
	now := time.Now().UTC().UnixMilli()

	for _, d := range devices {
		if d.DeviceID == "" {
			continue
		}
		if _, err := conn.ExecContext(ctx, `
INSERT OR IGNORE INTO areas(area_id, name, created_at_ms, updated_at_ms)
VALUES (?, '', ?, ?);`, d.AreaID, now, now); err != nil {
			return fmt.Errorf("upsert area %s: %w", d.AreaID, err)
		}
		if _, err := conn.ExecContext(ctx, `
INSERT INTO devices(
  device_id, area_id, protocol, address, enabled, created_at_ms, updated_at_ms
) VALUES (?, ?, ?, ?, 1, ?, ?)
ON CONFLICT(device_id) DO UPDATE SET
  area_id = excluded.area_id,
  protocol = excluded.protocol,
  address = excluded.address,
  enabled = 1,
  updated_at_ms = excluded.updated_at_ms;
`, d.DeviceID, d.AreaID, d.Protocol, d.Address, now, now); err != nil {
			return fmt.Errorf("upsert device %s: %w", d.DeviceID, err)
		}
	}
	return nil
}
