package memory

import (
	"context"
	"sync"

	"github.com/gatehouse-io/gatehouse/internal/gatehouse/store"
)

// DecisionStore is an in-memory append-only log of access decisions.
// It is intended for use in tests and dev environments.
type DecisionStore struct {
	mu        sync.Mutex
	decisions []store.DecisionRecord
}

func NewDecisionStore() *DecisionStore {
	return &DecisionStore{}
}

func (s *DecisionStore) RecordDecision(_ context.Context, rec store.DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, rec)
	return nil
}

// Decisions returns a copy of all recorded decisions.  Test-only helper.
func (s *DecisionStore) Decisions() []store.DecisionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.DecisionRecord, len(s.decisions))
	copy(out, s.decisions)
	return out
}
