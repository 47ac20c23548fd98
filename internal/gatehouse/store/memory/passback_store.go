package memory

import (
	"context"
	"sync"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/gatehouse/store"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/types"
)

type pairKey struct {
	subjectID string
	areaID    string
}

// PassbackStateStore is the in-memory twin of the sqlite store. A single
// mutex covers the map; the compare step and the write happen under the
// same critical section, which is what gives CompareAndSwap its per-key
// atomicity.
type PassbackStateStore struct {
	mu    sync.Mutex
	sides map[pairKey]types.PassbackState
}

func NewPassbackStateStore() *PassbackStateStore {
	return &PassbackStateStore{sides: make(map[pairKey]types.PassbackState)}
}

func (s *PassbackStateStore) Get(_ context.Context, subjectID, areaID string) (types.PassbackState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.sides[pairKey{subjectID, areaID}]; ok {
		return st, nil
	}
	// Missing pairs read as UNKNOWN; the row is created lazily on the
	// first successful transition.
	return types.PassbackState{
		SubjectID: subjectID,
		AreaID:    areaID,
		Side:      types.SideUnknown,
	}, nil
}

func (s *PassbackStateStore) CompareAndSwap(_ context.Context, subjectID, areaID string, from []types.Side, to types.Side, at time.Time) (bool, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{subjectID, areaID}
	current := types.SideUnknown
	if st, ok := s.sides[key]; ok {
		current = st.Side
	}

	ok := false
	for _, f := range from {
		if current == f {
			ok = true
			break
		}
	}
	if !ok {
		return false, nil
	}

	s.sides[key] = types.PassbackState{
		SubjectID:    subjectID,
		AreaID:       areaID,
		Side:         to,
		TransitionAt: at,
	}
	return true, nil
}

func (s *PassbackStateStore) Reset(_ context.Context, subjectID, areaID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sides, pairKey{subjectID, areaID})
	return nil
}

var _ store.PassbackStateStore = (*PassbackStateStore)(nil)
