package memory

import (
	"context"
	"sync"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/gatehouse/store"
)

type DeviceStore struct {
	mu      sync.RWMutex
	devices map[string]store.DeviceRecord
}

func NewDeviceStore(devices []store.DeviceRecord) *DeviceStore {
	m := make(map[string]store.DeviceRecord, len(devices))
	for _, d := range devices {
		if d.DeviceID != "" {
			m[d.DeviceID] = d
		}
	}
	return &DeviceStore{devices: m}
}

func (s *DeviceStore) Get(_ context.Context, deviceID string) (store.DeviceRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[deviceID]
	return d, ok, nil
}

func (s *DeviceStore) ListByArea(_ context.Context, areaID string) ([]store.DeviceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.DeviceRecord
	for _, d := range s.devices {
		if d.AreaID == areaID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *DeviceStore) MarkSeen(_ context.Context, deviceID string, t time.Time) error {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if d, ok := s.devices[deviceID]; ok {
		d.LastSeen = t
		s.devices[deviceID] = d
	}
	return nil
}
