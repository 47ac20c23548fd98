package service

import (
	"context"
	"strings"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/gatehouse/store"
)

// DeviceRegistry resolves reporting devices against the device store. A
// device must be registered and enabled before its events participate in
// decisions; everything else is treated as unknown.
type DeviceRegistry struct {
	store store.DeviceStore
}

func NewDeviceRegistry(st store.DeviceStore) *DeviceRegistry {
	return &DeviceRegistry{store: st}
}

// Resolve looks the device up by id. found=false covers both unregistered
// and disabled devices; callers never learn which.
func (r *DeviceRegistry) Resolve(ctx context.Context, deviceID string) (store.DeviceRecord, bool, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return store.DeviceRecord{}, false, nil
	}
	return r.store.Get(ctx, deviceID)
}

// NoteSeen stamps the device's liveness marker. Best-effort.
func (r *DeviceRegistry) NoteSeen(ctx context.Context, deviceID string) error {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil
	}
	return r.store.MarkSeen(ctx, deviceID, time.Now().UTC())
}
