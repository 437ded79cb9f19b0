package repository

import (
	"context"
	"sync"

	"paywallet/internal/otp/domain"
)

// MemoryStore is an in-memory Store. Codes live only as long as the process.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]domain.Challenge
}

// NewMemoryStore returns an empty in-memory challenge store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]domain.Challenge)}
}

// Put stores a copy of c, replacing any challenge with the same key.
func (s *MemoryStore) Put(ctx context.Context, c *domain.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[domain.Key(c.SubjectUserID, c.Purpose)] = *c
	return nil
}

// Get returns a copy of the challenge for the key, or nil if none.
func (s *MemoryStore) Get(ctx context.Context, subjectUserID string, purpose domain.Purpose) (*domain.Challenge, error) {
	s.mu.RLock()
	c, ok := s.m[domain.Key(subjectUserID, purpose)]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// Delete removes the challenge for the key.
func (s *MemoryStore) Delete(ctx context.Context, subjectUserID string, purpose domain.Purpose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, domain.Key(subjectUserID, purpose))
	return nil
}

// Len returns the number of stored challenges.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
