// Package flow implements the top-level flow machine. It routes a session
// through the identify and onboarding stages, merges the values the
// sub-machines report upward into the shared flow context, and fires the
// embedder-facing callbacks exactly once.
package flow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"veriflow/internal/audit"
	"veriflow/internal/flow/identify"
	"veriflow/internal/flow/metrics"
	"veriflow/internal/flow/onboarding"
	"veriflow/internal/identityapi"
	dErrors "veriflow/pkg/domain-errors"
)

// State is the top-level routing state.
type State int

const (
	StateInit State = iota
	StateIdentify
	StateOnboarding
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateIdentify:
		return "identify"
	case StateOnboarding:
		return "onboarding"
	case StateComplete:
		return "complete"
	}
	return "unknown"
}

// Result is the terminal payload handed to OnDone.
type Result struct {
	AuthToken       string
	ValidationToken string
	UserFound       *bool
}

// Params configure one flow session.
type Params struct {
	TenantPublicKey string
	SandboxSuffix   string
	BootstrapEmail  string
	BootstrapPhone  string
	RequirePhone    bool

	// AuthTokenOverride resumes an already-authenticated session; the
	// identify stage is skipped entirely.
	AuthTokenOverride string

	// OnDone fires once when the flow completes, with the final result.
	OnDone func(Result)
	// OnComplete fires once alongside OnDone; embedders use it for UI
	// teardown without caring about the result.
	OnComplete func()
	// OnClose fires once when the flow is closed before completing.
	OnClose func()
}

// sharedContext holds the values that outlive stage transitions. Only
// reporter events write it.
type sharedContext struct {
	authToken       string
	validationToken string
	userFound       *bool
}

// Machine is the top-level flow machine.
type Machine struct {
	mu     sync.Mutex
	state  State
	shared sharedContext
	done   bool
	closed bool

	identify   *identify.Machine
	onboarding *onboarding.Machine

	client identityapi.Client
	params Params

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

// WithHandoffPollInterval sets the hand-off status poll cadence used by
// the onboarding stage.
func WithHandoffPollInterval(interval time.Duration) Option {
	return func(m *Machine) { m.pollInterval = interval }
}

// New builds a flow machine in the init state.
func New(client identityapi.Client, params Params, opts ...Option) *Machine {
	m := &Machine{
		client: client,
		params: params,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current routing state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Identify returns the identify sub-machine, or nil outside that stage.
func (m *Machine) Identify() *identify.Machine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identify
}

// Onboarding returns the onboarding sub-machine, or nil outside that
// stage.
func (m *Machine) Onboarding() *onboarding.Machine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.onboarding
}

// Start routes the session into its first stage. With an auth token
// override the identify stage is skipped and onboarding starts against
// the injected token.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateInit {
		m.mu.Unlock()
		return dErrors.Newf(dErrors.CodeInvariantViolation, "start requested in state %s", m.state)
	}

	if m.metrics != nil {
		m.metrics.FlowsStarted.Inc()
	}

	if m.params.AuthTokenOverride != "" {
		m.shared.authToken = m.params.AuthTokenOverride
		ob := m.newOnboardingLocked(m.params.AuthTokenOverride)
		m.onboarding = ob
		m.state = StateOnboarding
		m.mu.Unlock()

		audit.Log(ctx, m.logger, m.auditor, audit.KindFlowStarted, "stage", "onboarding")
		return ob.Start(ctx)
	}

	m.identify = identify.New(m.client, identify.Params{
		TenantPublicKey: m.params.TenantPublicKey,
		SandboxSuffix:   m.params.SandboxSuffix,
		BootstrapEmail:  m.params.BootstrapEmail,
		BootstrapPhone:  m.params.BootstrapPhone,
		RequirePhone:    m.params.RequirePhone,
	}, m, m.identifyOpts()...)
	m.state = StateIdentify
	m.mu.Unlock()

	audit.Log(ctx, m.logger, m.auditor, audit.KindFlowStarted, "stage", "identify")
	return nil
}

// IdentifyCompleted merges the identify stage's report into the shared
// context and advances to onboarding. Implements identify.Reporter.
func (m *Machine) IdentifyCompleted(ctx context.Context, authToken string, userFound bool) {
	m.mu.Lock()
	if m.state != StateIdentify {
		m.mu.Unlock()
		return
	}
	m.shared.authToken = authToken
	m.shared.userFound = &userFound
	ob := m.newOnboardingLocked(authToken)
	m.onboarding = ob
	m.state = StateOnboarding
	m.mu.Unlock()

	audit.Log(ctx, m.logger, m.auditor, audit.KindIdentifyCompleted)
	if err := ob.Start(ctx); err != nil {
		m.logger.ErrorContext(ctx, "onboarding start failed", "error", err)
	}
}

// OnboardingCompleted merges the validation token, marks the flow
// complete, and fires the terminal callbacks. Implements
// onboarding.Reporter. The token may be empty when the tenant has
// validation disabled; completion still fires.
func (m *Machine) OnboardingCompleted(ctx context.Context, validationToken string) {
	m.mu.Lock()
	if m.state != StateOnboarding || m.done {
		m.mu.Unlock()
		return
	}
	m.shared.validationToken = validationToken
	m.state = StateComplete
	m.done = true
	result := Result{
		AuthToken:       m.shared.authToken,
		ValidationToken: validationToken,
		UserFound:       m.shared.userFound,
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.FlowsCompleted.Inc()
	}
	audit.Log(ctx, m.logger, m.auditor, audit.KindFlowCompleted)

	if m.params.OnDone != nil {
		m.params.OnDone(result)
	}
	if m.params.OnComplete != nil {
		m.params.OnComplete()
	}
}

// Reset abandons the session and returns the machine to init with a fresh
// shared context. Background work from the abandoned run is stopped and
// its late responses are dropped.
func (m *Machine) Reset(ctx context.Context) {
	m.mu.Lock()
	id := m.identify
	ob := m.onboarding
	m.identify = nil
	m.onboarding = nil
	m.shared = sharedContext{}
	m.state = StateInit
	m.done = false
	m.closed = false
	m.mu.Unlock()

	if id != nil {
		id.Reset()
	}
	if ob != nil {
		ob.Stop()
	}

	if m.metrics != nil {
		m.metrics.FlowsReset.Inc()
	}
	audit.Log(ctx, m.logger, m.auditor, audit.KindFlowReset)
}

// Close tears the session down before completion. OnClose fires once; a
// completed flow ignores Close.
func (m *Machine) Close(ctx context.Context) {
	m.mu.Lock()
	if m.done || m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	ob := m.onboarding
	m.mu.Unlock()

	if ob != nil {
		ob.Stop()
	}
	if m.params.OnClose != nil {
		m.params.OnClose()
	}
}

// Result returns the terminal result. Valid only once the flow completes.
func (m *Machine) Result() Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Result{
		AuthToken:       m.shared.authToken,
		ValidationToken: m.shared.validationToken,
		UserFound:       m.shared.userFound,
	}
}

func (m *Machine) newOnboardingLocked(authToken string) *onboarding.Machine {
	opts := []onboarding.Option{
		onboarding.WithLogger(m.logger),
		onboarding.WithAuditPublisher(m.auditor),
	}
	if m.metrics != nil {
		opts = append(opts, onboarding.WithMetrics(m.metrics))
	}
	if m.pollInterval > 0 {
		opts = append(opts, onboarding.WithPollInterval(m.pollInterval))
	}
	return onboarding.New(m.client, onboarding.Params{
		TenantPublicKey: m.params.TenantPublicKey,
		AuthToken:       authToken,
	}, m, opts...)
}

func (m *Machine) identifyOpts() []identify.Option {
	opts := []identify.Option{
		identify.WithLogger(m.logger),
		identify.WithAuditPublisher(m.auditor),
	}
	if m.metrics != nil {
		opts = append(opts, identify.WithMetrics(m.metrics))
	}
	return opts
}
