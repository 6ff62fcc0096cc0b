// Package memory keeps run history in process memory.
package memory

import (
	"context"
	"sync"

	"fermentlab/internal/persistence/core"
)

// Store implements core.Store with a map guarded by a mutex.
type Store struct {
	mu   sync.RWMutex
	runs map[string]core.Run
}

// NewStore returns an empty store.
func NewStore() *Store { return &Store{runs: make(map[string]core.Run)} }

func (s *Store) SaveRun(_ context.Context, run core.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run.Clone()
	return nil
}

func (s *Store) GetRun(_ context.Context, id string) (core.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return core.Run{}, core.ErrNotFound{ID: id}
	}
	return run.Clone(), nil
}

func (s *Store) ListRuns(_ context.Context, experiment string) ([]core.Run, error) {
	s.mu.RLock()
	out := make([]core.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if experiment == "" || run.Experiment == experiment {
			out = append(out, run.Clone())
		}
	}
	s.mu.RUnlock()
	core.SortRuns(out)
	return out, nil
}

func (s *Store) DeleteRun(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.runs[id]
	delete(s.runs, id)
	return ok, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) Driver() core.Driver { return core.DriverMemory }
