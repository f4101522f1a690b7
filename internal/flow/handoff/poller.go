// Package handoff polls hand-off status while a secondary device completes
// a capture step (document scan or liveness via QR/link). The primary
// device's flow sits in a waiting sub-state until the poller reports a
// terminal status or the user cancels.
package handoff

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"veriflow/internal/identityapi"
)

// TabHandle abstracts the secondary browser tab/window the plugin opened.
// The host supplies it; the poller closes it on any terminal outcome.
type TabHandle interface {
	Close() error
}

// Events are the poller's outputs. A terminal status fires exactly one of
// Succeeded/Failed/Canceled and then the poller stops. PollingErrored is
// infrastructure trouble ("we lost the ability to check"), intentionally
// distinct from Failed ("the verification failed"); polling continues
// afterwards.
type Events struct {
	Succeeded      func()
	Failed         func()
	Canceled       func()
	PollingErrored func(err error)
}

// Poller repeatedly requests hand-off status until a terminal state. It
// issues at most one outstanding request at a time: the next poll is
// scheduled only after the previous response resolves, so terminal states
// can never arrive out of order.
type Poller struct {
	client    identityapi.Client
	authToken string
	interval  time.Duration
	events    Events
	tab       TabHandle
	logger    *slog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
	tabOnce sync.Once
}

// Option configures a Poller.
type Option func(*Poller)

// WithLogger injects a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		p.logger = logger
	}
}

// WithInterval overrides the poll cadence.
func WithInterval(interval time.Duration) Option {
	return func(p *Poller) {
		p.interval = interval
	}
}

// New builds a poller. tab may be nil when the hand-off was initiated via a
// QR code rather than an opened tab.
func New(client identityapi.Client, authToken string, tab TabHandle, events Events, opts ...Option) *Poller {
	p := &Poller{
		client:    client,
		authToken: authToken,
		interval:  1500 * time.Millisecond,
		events:    events,
		tab:       tab,
		logger:    slog.Default(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins polling in a background goroutine. There is no give-up
// timeout: the loop is bounded only by a terminal server response, Stop, or
// the parent context. A poller is single-shot: Start after Stop, or a
// second Start, is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	go func() {
		defer close(p.done)
		for {
			resp, err := p.client.HandoffStatus(ctx, p.authToken)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				p.logger.WarnContext(ctx, "hand-off status poll failed", "error", err)
				if p.events.PollingErrored != nil {
					p.events.PollingErrored(err)
				}
			} else if p.deliver(resp.Status) {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(p.interval):
			}
		}
	}()
}

// deliver maps a terminal status onto its event and reports whether the
// loop should end.
func (p *Poller) deliver(status identityapi.HandoffStatus) bool {
	switch status {
	case identityapi.HandoffCompleted:
		p.closeTab()
		if p.events.Succeeded != nil {
			p.events.Succeeded()
		}
		return true
	case identityapi.HandoffFailed:
		p.closeTab()
		if p.events.Failed != nil {
			p.events.Failed()
		}
		return true
	case identityapi.HandoffCanceled:
		p.closeTab()
		if p.events.Canceled != nil {
			p.events.Canceled()
		}
		return true
	case identityapi.HandoffPending:
		return false
	}
	return false
}

// Stop synchronously halts polling and closes the secondary tab handle if
// still open. No poll requests are issued after Stop returns, even if Stop
// lands before Start. Safe to call multiple times and after a terminal
// status.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopped = true
	started := p.started
	cancel := p.cancel
	p.mu.Unlock()

	if started {
		cancel()
		<-p.done
	}
	p.closeTab()
}

func (p *Poller) closeTab() {
	p.tabOnce.Do(func() {
		if p.tab == nil {
			return
		}
		if err := p.tab.Close(); err != nil {
			p.logger.Warn("failed to close hand-off tab", "error", err)
		}
	})
}
