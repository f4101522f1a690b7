// Package onboarding implements the onboarding sub-machine: it works
// through the server-declared requirement queue for an authenticated
// session, drives the device hand-off for document and liveness capture,
// and finishes with the validation call that mints the tenant-facing
// validation token.
package onboarding

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"veriflow/internal/audit"
	"veriflow/internal/flow/handoff"
	"veriflow/internal/flow/metrics"
	"veriflow/internal/identityapi"
	"veriflow/internal/tenant"
	dErrors "veriflow/pkg/domain-errors"
)

// State is the onboarding sub-machine's position.
type State int

const (
	StateInit State = iota
	StateRequirements
	StateHandoffWait
	StateValidate
	StateComplete
	StateConfigInvalid
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRequirements:
		return "requirements"
	case StateHandoffWait:
		return "handoffWait"
	case StateValidate:
		return "validate"
	case StateComplete:
		return "complete"
	case StateConfigInvalid:
		return "configInvalid"
	}
	return "unknown"
}

// Reporter receives the sub-machine's completion report.
type Reporter interface {
	OnboardingCompleted(ctx context.Context, validationToken string)
}

// Params are the inputs for one onboarding run. AuthToken is the session
// token produced by the identify stage (or injected for resumed sessions).
type Params struct {
	TenantPublicKey string
	AuthToken       string
}

// Machine is the onboarding sub-machine. Requirements are consumed
// strictly in server order: only the head of the queue may be completed,
// and requirements already met at fetch time never enter the queue.
type Machine struct {
	mu        sync.Mutex
	state     State
	config    *identityapi.OnboardingConfig
	queue     []identityapi.Requirement
	poller    *handoff.Poller
	pollError error
	pending   bool
	gen       uint64

	client identityapi.Client
	params Params
	report Reporter

	logger       *slog.Logger
	metrics      *metrics.Metrics
	auditor      audit.Publisher
	pollInterval time.Duration
}

// Option configures a Machine.
type Option func(*Machine)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) { m.logger = logger }
}

func WithMetrics(metrics *metrics.Metrics) Option {
	return func(m *Machine) { m.metrics = metrics }
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(m *Machine) { m.auditor = publisher }
}

// WithPollInterval sets the hand-off status poll cadence.
func WithPollInterval(interval time.Duration) Option {
	return func(m *Machine) { m.pollInterval = interval }
}

// New builds an onboarding machine in its initial state. Start must be
// called before any other event.
func New(client identityapi.Client, params Params, report Reporter, opts ...Option) *Machine {
	m := &Machine{
		client: client,
		params: params,
		report: report,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Pending reports whether an upstream request is outstanding.
func (m *Machine) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// Config returns the tenant configuration snapshot fetched at Start, or
// nil before Start resolves.
func (m *Machine) Config() *identityapi.OnboardingConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config == nil {
		return nil
	}
	copied := *m.config
	return &copied
}

// Queue returns a copy of the outstanding requirement queue in order.
func (m *Machine) Queue() []identityapi.Requirement {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]identityapi.Requirement, len(m.queue))
	copy(out, m.queue)
	return out
}

// Head returns the requirement currently due, or nil when the queue is
// exhausted.
func (m *Machine) Head() *identityapi.Requirement {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.headLocked()
}

func (m *Machine) headLocked() *identityapi.Requirement {
	if len(m.queue) == 0 {
		return nil
	}
	head := m.queue[0]
	return &head
}

// Start fetches the tenant configuration and the requirement queue. A
// configuration that fails validation parks the machine in the terminal
// configInvalid state; the session cannot proceed and the error carries
// the reason for display.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateInit {
		m.mu.Unlock()
		return dErrors.Newf(dErrors.CodeInvariantViolation, "start requested in state %s", m.state)
	}
	if m.pending {
		m.mu.Unlock()
		return dErrors.New(dErrors.CodeConflict, "a request is already in flight")
	}
	m.pending = true
	gen := m.gen
	m.mu.Unlock()

	cfg, err := m.client.OnboardingConfig(ctx, m.params.TenantPublicKey)
	if err != nil {
		m.settle(gen)
		return err
	}
	if err := tenant.ValidateConfig(*cfg); err != nil {
		m.mu.Lock()
		if m.fresh(gen) {
			m.pending = false
			m.config = cfg
			m.state = StateConfigInvalid
		}
		m.mu.Unlock()
		m.logger.ErrorContext(ctx, "tenant configuration rejected",
			"tenant", m.params.TenantPublicKey,
			"error", err,
		)
		return err
	}

	reqs, err := m.client.Requirements(ctx, m.params.AuthToken)
	if err != nil {
		m.settle(gen)
		return err
	}

	// Requirements already met at fetch time never enter the queue; a
	// requirement completed locally is popped, not re-fetched.
	queue := make([]identityapi.Requirement, 0, len(reqs.Requirements))
	for _, r := range reqs.Requirements {
		if !r.IsMet {
			queue = append(queue, r)
		}
	}

	m.mu.Lock()
	if !m.fresh(gen) {
		m.mu.Unlock()
		return nil
	}
	m.pending = false
	m.config = cfg
	m.queue = queue
	if len(queue) == 0 {
		m.state = StateValidate
	} else {
		m.state = StateRequirements
	}
	m.mu.Unlock()
	return nil
}

// CompleteRequirement submits data for the requirement at the head of the
// queue. Completing any other kind is refused; server order is the only
// order. When the submission empties the queue the machine advances to
// validation.
func (m *Machine) CompleteRequirement(ctx context.Context, kind identityapi.RequirementKind, data map[string]any) error {
	m.mu.Lock()
	if m.state != StateRequirements {
		m.mu.Unlock()
		return dErrors.Newf(dErrors.CodeInvariantViolation, "requirement completed in state %s", m.state)
	}
	head := m.headLocked()
	if head == nil || head.Kind != kind {
		m.mu.Unlock()
		return dErrors.Newf(dErrors.CodeConflict, "requirement %s is not next in the queue", kind)
	}
	if m.pending {
		m.mu.Unlock()
		return dErrors.New(dErrors.CodeConflict, "a request is already in flight")
	}
	m.pending = true
	gen := m.gen
	m.mu.Unlock()

	err := m.client.SubmitRequirement(ctx, m.params.AuthToken, kind, identityapi.SubmitRequirementRequest{Data: data})
	if err != nil {
		m.settle(gen)
		return err
	}

	m.mu.Lock()
	if !m.fresh(gen) {
		m.mu.Unlock()
		return nil
	}
	m.pending = false
	m.popLocked(kind)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RequirementsMet.WithLabelValues(string(kind)).Inc()
	}
	audit.Log(ctx, m.logger, m.auditor, audit.KindRequirementCompleted, "kind", string(kind))
	return nil
}

// popLocked removes the head requirement and re-evaluates the state.
// Caller holds the lock.
func (m *Machine) popLocked(kind identityapi.RequirementKind) {
	if len(m.queue) > 0 && m.queue[0].Kind == kind {
		m.queue = m.queue[1:]
	}
	if len(m.queue) == 0 {
		m.state = StateValidate
	} else {
		m.state = StateRequirements
	}
}

// StartHandoff opens the device hand-off for a capture requirement at the
// head of the queue (id_doc or liveness) and starts polling its status.
// The tab handle is closed when a terminal status arrives or the hand-off
// is canceled.
func (m *Machine) StartHandoff(ctx context.Context, tab handoff.TabHandle) error {
	m.mu.Lock()
	if m.state != StateRequirements {
		m.mu.Unlock()
		return dErrors.Newf(dErrors.CodeInvariantViolation, "hand-off started in state %s", m.state)
	}
	head := m.headLocked()
	if head == nil || (head.Kind != identityapi.RequirementIDDoc && head.Kind != identityapi.RequirementLiveness) {
		m.mu.Unlock()
		return dErrors.New(dErrors.CodeConflict, "the next requirement is not a capture step")
	}
	kind := head.Kind

	opts := []handoff.Option{handoff.WithLogger(m.logger)}
	if m.pollInterval > 0 {
		opts = append(opts, handoff.WithInterval(m.pollInterval))
	}
	poller := handoff.New(m.client, m.params.AuthToken, tab, handoff.Events{
		Succeeded:      func() { m.handoffSucceeded(ctx, kind) },
		Failed:         func() { m.handoffSettled(ctx, audit.KindHandoffFailed, "failed") },
		Canceled:       func() { m.handoffSettled(ctx, audit.KindHandoffCanceled, "canceled") },
		PollingErrored: func(err error) { m.notePollError(err) },
	}, opts...)
	m.poller = poller
	m.state = StateHandoffWait
	m.mu.Unlock()

	audit.Log(ctx, m.logger, m.auditor, audit.KindHandoffStarted, "kind", string(kind))
	poller.Start(ctx)
	return nil
}

// CancelHandoff stops the status poller, closes the tab, and returns the
// machine to the requirement queue. Safe to call when no hand-off is
// active.
func (m *Machine) CancelHandoff(ctx context.Context) {
	m.mu.Lock()
	poller := m.poller
	m.poller = nil
	m.pollError = nil
	if m.state == StateHandoffWait {
		m.state = StateRequirements
	}
	m.mu.Unlock()

	if poller == nil {
		return
	}
	poller.Stop()
	audit.Log(ctx, m.logger, m.auditor, audit.KindHandoffCanceled)
}

// notePollError records the most recent hand-off poll failure for display.
// Polling itself keeps going.
func (m *Machine) notePollError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollError = err
}

// PollError returns the most recent hand-off poll failure, or nil.
func (m *Machine) PollError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pollError
}

func (m *Machine) handoffSucceeded(ctx context.Context, kind identityapi.RequirementKind) {
	m.mu.Lock()
	if m.state != StateHandoffWait {
		m.mu.Unlock()
		return
	}
	m.poller = nil
	m.pollError = nil
	m.popLocked(kind)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RequirementsMet.WithLabelValues(string(kind)).Inc()
		m.metrics.HandoffOutcomes.WithLabelValues("succeeded").Inc()
	}
	audit.Log(ctx, m.logger, m.auditor, audit.KindHandoffSucceeded, "kind", string(kind))
}

// handoffSettled handles the failed and canceled terminal statuses: the
// requirement stays at the head of the queue so the user can retry the
// capture.
func (m *Machine) handoffSettled(ctx context.Context, kind audit.Kind, outcome string) {
	m.mu.Lock()
	if m.state == StateHandoffWait {
		m.poller = nil
		m.pollError = nil
		m.state = StateRequirements
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.HandoffOutcomes.WithLabelValues(outcome).Inc()
	}
	audit.Log(ctx, m.logger, m.auditor, kind)
}

// Validate runs the final processing call. Failure is retryable: the
// machine stays in the validate state with all submitted data intact and
// the caller may invoke Validate again. Success is terminal and reports
// the validation token upward.
func (m *Machine) Validate(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateValidate {
		m.mu.Unlock()
		return dErrors.Newf(dErrors.CodeInvariantViolation, "validate requested in state %s", m.state)
	}
	if m.pending {
		m.mu.Unlock()
		return dErrors.New(dErrors.CodeConflict, "a request is already in flight")
	}
	m.pending = true
	gen := m.gen
	m.mu.Unlock()

	start := time.Now()
	resp, err := m.client.Process(ctx, m.params.AuthToken)
	if m.metrics != nil {
		m.metrics.ObserveValidate(start)
	}
	if err != nil {
		m.settle(gen)
		audit.Log(ctx, m.logger, m.auditor, audit.KindValidationFailed)
		return err
	}

	m.mu.Lock()
	if !m.fresh(gen) {
		m.mu.Unlock()
		return nil
	}
	m.pending = false
	m.state = StateComplete
	m.mu.Unlock()

	m.report.OnboardingCompleted(ctx, resp.ValidationToken)
	return nil
}

// Stop releases any background work. Called when the owning flow is reset
// or torn down.
func (m *Machine) Stop() {
	m.mu.Lock()
	m.gen++
	poller := m.poller
	m.poller = nil
	m.mu.Unlock()

	if poller != nil {
		poller.Stop()
	}
}

func (m *Machine) fresh(gen uint64) bool {
	return gen == m.gen
}

func (m *Machine) settle(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fresh(gen) {
		m.pending = false
	}
}
