package service

import (
	"context"
	"strings"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/gatehouse/store"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/types"
)

// HeartbeatService records device liveness reports. Unknown devices are
// accepted and stored — a device may heartbeat before an operator
// registers it — but the response tells them they are not yet known.
type HeartbeatService struct {
	heartbeats store.HeartbeatStore
	registry   *DeviceRegistry
}

func NewHeartbeatService(hs store.HeartbeatStore, reg *DeviceRegistry) *HeartbeatService {
	return &HeartbeatService{heartbeats: hs, registry: reg}
}

func (s *HeartbeatService) Record(ctx context.Context, req types.HeartbeatRequest) (types.HeartbeatResponse, error) {
	deviceID := strings.TrimSpace(req.DeviceID)
	if deviceID == "" {
		return types.HeartbeatResponse{}, ErrInvalidDeviceID
	}

	_, known, err := s.registry.Resolve(ctx, deviceID)
	if err != nil {
		return types.HeartbeatResponse{}, err
	}
	if known {
		_ = s.registry.NoteSeen(ctx, deviceID)
	}

	rec := store.HeartbeatRecord{
		ReceivedAt: time.Now().UTC(),
		Request:    req,
	}
	if err := s.heartbeats.UpsertHeartbeat(ctx, deviceID, rec); err != nil {
		return types.HeartbeatResponse{}, err
	}

	return types.HeartbeatResponse{
		OK:         true,
		Known:      known,
		DeviceID:   deviceID,
		ServerTime: time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}
