package repository

import (
	"context"
	"sync"

	"paywallet/internal/ledger/domain"
)

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]*domain.Snapshot
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]*domain.Snapshot)}
}

func (s *MemoryStore) Load(ctx context.Context, userID string) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m[userID].Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	s.mu.Lock()
	s.m[snap.UserID] = snap.Clone()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	delete(s.m, userID)
	s.mu.Unlock()
	return nil
}
