// Package session holds the in-memory registry of live flow sessions for
// the flow service. Flow state is deliberately not persisted: a session
// that outlives its process is re-entered through the auth token override,
// not resumed from storage.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"veriflow/internal/flow"
	"veriflow/pkg/platform/sentinel"
	"veriflow/pkg/requestcontext"
)

const defaultIdleTTL = 30 * time.Minute

// Session is one live flow with its registry bookkeeping.
type Session struct {
	ID        string
	Machine   *flow.Machine
	CreatedAt time.Time
	lastSeen  time.Time
}

// Registry is a concurrency-safe in-memory session table with idle
// eviction.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	idleTTL time.Duration
	logger  *slog.Logger

	stop chan struct{}
	done chan struct{}
}

// Option configures a Registry.
type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithIdleTTL sets how long an untouched session survives before the
// janitor evicts it.
func WithIdleTTL(ttl time.Duration) Option {
	return func(r *Registry) { r.idleTTL = ttl }
}

// New builds a registry and starts its eviction janitor.
func New(opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		idleTTL:  defaultIdleTTL,
		logger:   slog.Default(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.janitor()
	return r
}

// Create registers a new session around the given machine and returns it.
func (r *Registry) Create(ctx context.Context, machine *flow.Machine) *Session {
	now := requestcontext.Now(ctx)
	s := &Session{
		ID:        uuid.NewString(),
		Machine:   machine,
		CreatedAt: now,
		lastSeen:  now,
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

// Get returns the session and refreshes its idle deadline.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	s.lastSeen = requestcontext.Now(ctx)
	return s, nil
}

// Delete removes the session and closes its machine.
func (r *Registry) Delete(ctx context.Context, id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		s.Machine.Close(ctx)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close stops the janitor and closes every remaining session.
func (r *Registry) Close(ctx context.Context) {
	close(r.stop)
	<-r.done

	r.mu.Lock()
	remaining := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		remaining = append(remaining, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range remaining {
		s.Machine.Close(ctx)
	}
}

func (r *Registry) janitor() {
	defer close(r.done)
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.sweep(time.Now())
		}
	}
}

// sweep evicts sessions idle past the TTL.
func (r *Registry) sweep(now time.Time) {
	r.mu.Lock()
	var evicted []*Session
	for id, s := range r.sessions {
		if now.Sub(s.lastSeen) > r.idleTTL {
			delete(r.sessions, id)
			evicted = append(evicted, s)
		}
	}
	r.mu.Unlock()

	ctx := context.Background()
	for _, s := range evicted {
		r.logger.InfoContext(ctx, "evicted idle flow session", "session_id", s.ID)
		s.Machine.Close(ctx)
	}
}
