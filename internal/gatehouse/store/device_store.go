package store

import (
	"context"
	"time"
)

// DeviceRecord describes a door controller: where it is, how to talk to
// it, and whether it may participate in access decisions.
type DeviceRecord struct {
	DeviceID string
	AreaID   string
	Protocol string // protocol-adapter type, e.g. "http" or "tcp"
	Address  string // network address, meaning depends on the protocol
	Enabled  bool
	LastSeen time.Time
}

type DeviceStore interface {
	Get(ctx context.Context, deviceID string) (DeviceRecord, bool, error)
	ListByArea(ctx context.Context, areaID string) ([]DeviceRecord, error)
	MarkSeen(ctx context.Context, deviceID string, t time.Time) error
}
