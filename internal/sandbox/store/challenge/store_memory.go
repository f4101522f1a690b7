package challenge

import (
	"context"
	"sync"
	"time"

	"veriflow/pkg/platform/sentinel"
	"veriflow/pkg/requestcontext"
)

// MemoryStore keeps challenges in process memory. Expiry is enforced on
// read against the request clock.
type MemoryStore struct {
	mu         sync.Mutex
	challenges map[string]Challenge
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{challenges: make(map[string]Challenge)}
}

func (s *MemoryStore) Save(_ context.Context, ch Challenge, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[ch.Token] = ch
	return nil
}

func (s *MemoryStore) Find(ctx context.Context, token string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.challenges[token]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if requestcontext.Now(ctx).After(ch.ExpiresAt) {
		delete(s.challenges, token)
		return nil, sentinel.ErrExpired
	}
	return &ch, nil
}

func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, token)
	return nil
}
