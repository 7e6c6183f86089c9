package memory

import (
	"context"
	"slices"
	"sync"

	"insights/internal/datasets"
)

// Store keeps datasets in process memory. Only the current dataset of each
// session is kept; saving a new one drops the one it replaces.
type Store struct {
	mu      sync.RWMutex
	current map[string]string // session id -> dataset id
	items   map[string]datasets.Dataset
}

func New() *Store {
	return &Store{
		current: make(map[string]string),
		items:   make(map[string]datasets.Dataset),
	}
}

// Save stores a copy of ds and makes it the session's current dataset.
func (s *Store) Save(_ context.Context, ds datasets.Dataset) error {
	ds.Transactions = slices.Clone(ds.Transactions)
	ds.RowErrors = slices.Clone(ds.RowErrors)

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.current[ds.SessionID]; ok && prev != ds.ID {
		delete(s.items, prev)
	}
	s.items[ds.ID] = ds
	s.current[ds.SessionID] = ds.ID
	return nil
}

// Delete forgets every dataset of the session.
func (s *Store) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.current, sessionID)
	for id, ds := range s.items {
		if ds.SessionID == sessionID {
			delete(s.items, id)
		}
	}
	return nil
}

func (s *Store) Current(_ context.Context, sessionID string) (datasets.Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.current[sessionID]
	if !ok {
		return datasets.Ref{}, datasets.ErrNotFound
	}
	return s.items[id].Ref(), nil
}

func (s *Store) Get(_ context.Context, id string) (datasets.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, ok := s.items[id]
	if !ok {
		return datasets.Dataset{}, datasets.ErrNotFound
	}
	ds.Transactions = slices.Clone(ds.Transactions)
	ds.RowErrors = slices.Clone(ds.RowErrors)
	return ds, nil
}
