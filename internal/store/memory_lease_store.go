package store

import (
	"context"
	"sync"
	"time"
)

// MemoryLeaseStore implements LeaseStore within a single process
type MemoryLeaseStore struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

type lease struct {
	token     string
	expiresAt time.Time
}

// NewMemoryLeaseStore creates a new in-process lease store
func NewMemoryLeaseStore() *MemoryLeaseStore {
	return &MemoryLeaseStore{
		leases: make(map[string]lease),
		now:    time.Now,
	}
}

// Acquire takes the lease when free or expired
func (s *MemoryLeaseStore) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if held, ok := s.leases[key]; ok && now.Before(held.expiresAt) {
		return false, nil
	}

	s.leases[key] = lease{token: token, expiresAt: now.Add(ttl)}
	return true, nil
}

// Release frees the lease if token still holds it
func (s *MemoryLeaseStore) Release(ctx context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if held, ok := s.leases[key]; ok && held.token == token {
		delete(s.leases, key)
	}
	return nil
}

// Ping always succeeds
func (s *MemoryLeaseStore) Ping(ctx context.Context) error {
	return nil
}

// Close drops all leases
func (s *MemoryLeaseStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leases = make(map[string]lease)
	return nil
}
