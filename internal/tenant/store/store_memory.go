package store

import (
	"context"
	"sync"

	"veriflow/internal/tenant"
	"veriflow/pkg/platform/sentinel"
)

// MemoryStore is the in-memory tenant store used in tests and when no
// postgres URL is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	tenants map[string]tenant.Tenant
}

func NewMemory() *MemoryStore {
	return &MemoryStore{tenants: make(map[string]tenant.Tenant)}
}

func (s *MemoryStore) Save(_ context.Context, t tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.PublicKey] = t
	return nil
}

func (s *MemoryStore) FindByPublicKey(_ context.Context, publicKey string) (tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[publicKey]
	if !ok {
		return tenant.Tenant{}, sentinel.ErrNotFound
	}
	return t, nil
}
