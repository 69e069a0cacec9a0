package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/chemgate/chemgate/types"
)

// MemoryStore is an in-memory implementation of Storage.
type MemoryStore struct {
	runs map[uint64]types.WorkflowRun
	mu   sync.RWMutex
}

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[uint64]types.WorkflowRun)}
}

// SaveRun saves a run to memory.
func (s *MemoryStore) SaveRun(ctx context.Context, run types.WorkflowRun) error {
	_, err := withContext(ctx, func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.runs[run.ID] = run
		return struct{}{}, nil
	})
	return err
}

// GetRun retrieves a run from memory.
func (s *MemoryStore) GetRun(ctx context.Context, id uint64) (types.WorkflowRun, error) {
	return withContext(ctx, func() (types.WorkflowRun, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		run, ok := s.runs[id]
		if !ok {
			return types.WorkflowRun{}, fmt.Errorf("%w: id=%d", ErrRunNotFound, id)
		}
		return run, nil
	})
}

// ClearTerminal removes completed, failed and aborted runs.
func (s *MemoryStore) ClearTerminal(ctx context.Context) error {
	_, err := withContext(ctx, func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		for id, run := range s.runs {
			if run.Terminal() {
				delete(s.runs, id)
			}
		}
		return struct{}{}, nil
	})
	return err
}
