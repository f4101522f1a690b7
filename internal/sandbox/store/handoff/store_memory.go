package handoff

import (
	"context"
	"sync"

	"veriflow/pkg/platform/sentinel"
)

// MemoryStore keeps hand-off sessions in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

func (s *MemoryStore) Get(_ context.Context, userID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &session, nil
}

func (s *MemoryStore) Set(_ context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.UserID] = session
	return nil
}
