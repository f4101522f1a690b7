// Package identify implements the identify sub-machine: it turns a
// user-supplied identifier into an authenticated session by way of a
// possession challenge (SMS or email one-time code, or a biometric
// assertion).
//
// The machine owns only its local state; shared flow context fields
// (authToken, userFound) are reported upward through the Reporter and
// merged by the top-level machine, never written here.
package identify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"veriflow/internal/audit"
	"veriflow/internal/device"
	"veriflow/internal/flow/metrics"
	"veriflow/internal/identityapi"
	dErrors "veriflow/pkg/domain-errors"
	"veriflow/pkg/requestcontext"
	"veriflow/pkg/sandboxid"
)

// Step is the identify sub-machine's position.
type Step int

const (
	StepEmailIdentification Step = iota
	StepPhoneIdentification
	StepChallengeSelection
	StepSMSChallenge
	StepEmailChallenge
	StepBiometricChallenge
	StepSucceeded
)

func (s Step) String() string {
	switch s {
	case StepEmailIdentification:
		return "emailIdentification"
	case StepPhoneIdentification:
		return "phoneIdentification"
	case StepChallengeSelection:
		return "challengeSelection"
	case StepSMSChallenge:
		return "smsChallenge"
	case StepEmailChallenge:
		return "emailChallenge"
	case StepBiometricChallenge:
		return "biometricChallenge"
	case StepSucceeded:
		return "challengeSucceeded"
	}
	return "unknown"
}

// Challenge is the issued-challenge value object. It is replaced wholesale
// on resend and cleared on success, never mutated in place.
type Challenge struct {
	Token                  string
	Kind                   identityapi.ChallengeKind
	RetryDisabledUntil     time.Time
	MaskedTarget           string
	BiometricChallengeJSON json.RawMessage
}

// Reporter receives the sub-machine's completion report. The top-level
// machine implements it and merges the values into the shared context.
type Reporter interface {
	IdentifyCompleted(ctx context.Context, authToken string, userFound bool)
}

// Params are the bootstrap inputs for one identify run.
type Params struct {
	TenantPublicKey        string
	SandboxSuffix          string
	BootstrapEmail         string
	BootstrapPhone         string
	RequirePhone           bool
	PreferredChallengeKind identityapi.ChallengeKind
}

// Machine is the identify sub-machine. All methods are safe for concurrent
// use; each event-handling turn runs under the machine lock, and at most
// one upstream request is outstanding at a time.
type Machine struct {
	mu        sync.Mutex
	step      Step
	collected map[sandboxid.FieldKey]string
	challenge *Challenge
	userFound *bool
	pending   bool
	gen       uint64

	client identityapi.Client
	params Params
	report Reporter

	logger  *slog.Logger
	metrics *metrics.Metrics
	auditor audit.Publisher
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

// New builds an identify machine positioned at its initial step.
func New(client identityapi.Client, params Params, report Reporter, opts ...Option) *Machine {
	m := &Machine{
		client:    client,
		params:    params,
		report:    report,
		collected: make(map[sandboxid.FieldKey]string),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.position()
	return m
}

// position seeds collected fields from bootstrap data and picks the
// initial step: email collection when no identifier is known, phone
// collection when email is known but a required phone is not.
func (m *Machine) position() {
	if m.params.BootstrapEmail != "" {
		m.collected[sandboxid.FieldEmail] = m.params.BootstrapEmail
	}
	if m.params.BootstrapPhone != "" {
		m.collected[sandboxid.FieldPhoneNumber] = m.params.BootstrapPhone
	}

	_, hasEmail := m.collected[sandboxid.FieldEmail]
	_, hasPhone := m.collected[sandboxid.FieldPhoneNumber]
	if hasEmail && m.params.RequirePhone && !hasPhone {
		m.step = StepPhoneIdentification
		return
	}
	m.step = StepEmailIdentification
}

// Step returns the current step.
func (m *Machine) Step() Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step
}

// Pending reports whether an upstream request is outstanding. The UI uses
// this to disable submit/resend controls.
func (m *Machine) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// Challenge returns a copy of the current challenge, or nil when none is
// issued.
func (m *Machine) Challenge() *Challenge {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.challenge == nil {
		return nil
	}
	copied := *m.challenge
	return &copied
}

// UserFound returns the tri-state resolution: nil until identify resolves.
func (m *Machine) UserFound() *bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.userFound == nil {
		return nil
	}
	found := *m.userFound
	return &found
}

// DisplayIdentifier returns the collected value for the given field with
// the sandbox suffix stripped, ready for display.
func (m *Machine) DisplayIdentifier(field sandboxid.FieldKey) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sandboxid.Remove(m.collected[field], m.params.SandboxSuffix)
}

// CanEditIdentifier reports whether the identifier may be edited at the
// current step.
func (m *Machine) CanEditIdentifier() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sandboxid.CanEditIdentifier(m.editStep(), m.collected)
}

func (m *Machine) editStep() sandboxid.Step {
	switch m.step {
	case StepEmailIdentification:
		return sandboxid.StepEmailIdentification
	case StepPhoneIdentification:
		return sandboxid.StepPhoneIdentification
	case StepEmailChallenge:
		return sandboxid.StepEmailChallenge
	default:
		return sandboxid.StepSMSChallenge
	}
}

// AvailableChallengeKinds computes which challenge paths may be offered:
// always the issued challenge's own kind; biometric additionally when the
// server included a biometric challenge blob AND the device reports
// WebAuthn support. With neither, SMS stands alone and no selector shows.
func (m *Machine) AvailableChallengeKinds(ctx context.Context) []identityapi.ChallengeKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.challenge == nil {
		return nil
	}

	kinds := []identityapi.ChallengeKind{m.challenge.Kind}
	if m.challenge.Kind == identityapi.ChallengeKindBiometric {
		return kinds
	}
	if len(m.challenge.BiometricChallengeJSON) > 0 {
		caps := device.Parse(requestcontext.UserAgent(ctx))
		if caps.WebAuthn {
			kinds = append(kinds, identityapi.ChallengeKindBiometric)
		}
	}
	return kinds
}

// SubmitIdentifier handles the identifier form submission at the email or
// phone collection step. The machine calls the identify endpoint; the
// response decides between the found-account challenge path and the
// new-signup path (which still verifies identifier ownership with a
// challenge before onboarding takes over registration).
func (m *Machine) SubmitIdentifier(ctx context.Context, value string) error {
	m.mu.Lock()
	var (
		field        sandboxid.FieldKey
		identifyType identityapi.IdentifyType
	)
	switch m.step {
	case StepEmailIdentification:
		field, identifyType = sandboxid.FieldEmail, identityapi.IdentifyTypeEmail
	case StepPhoneIdentification:
		field, identifyType = sandboxid.FieldPhoneNumber, identityapi.IdentifyTypePhoneNumber
	default:
		m.mu.Unlock()
		return dErrors.Newf(dErrors.CodeInvariantViolation, "identifier submitted at step %s", m.step)
	}
	if m.pending {
		return m.unlockBusy()
	}
	m.pending = true
	gen := m.gen
	m.collected[field] = value
	m.mu.Unlock()

	// Suffix handling: stored and displayed stripped, re-appended only on
	// the wire.
	wireValue := sandboxid.Append(value, m.params.SandboxSuffix)
	req := identityapi.IdentifyRequest{
		IdentifyType:           identifyType,
		PreferredChallengeKind: m.params.PreferredChallengeKind,
		TenantPublicKey:        m.params.TenantPublicKey,
	}
	if identifyType == identityapi.IdentifyTypeEmail {
		req.Identifier.Email = wireValue
	} else {
		req.Identifier.PhoneNumber = wireValue
	}

	start := time.Now()
	resp, err := m.client.Identify(ctx, req)
	if m.metrics != nil {
		m.metrics.ObserveIdentify(start)
	}
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
	found := resp.UserFound
	m.userFound = &found

	if resp.ChallengeData != nil {
		m.acceptChallenge(ctx, resp.ChallengeData)
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if found {
		// A found account without challenge data means the server chose to
		// skip the challenge (sandbox-only behavior); nothing to verify.
		return dErrors.New(dErrors.CodeInternal, "identify response lacks challenge data for found user")
	}

	// New-signup path: issue a challenge ourselves to prove identifier
	// ownership before onboarding registers the account.
	return m.issue(ctx, identifyType, wireValue, m.preferredKindFor(identifyType))
}

// Resend re-invokes the challenge endpoint and replaces the challenge value
// object wholesale; the old token is discarded. Refused while a previous
// issue request is outstanding or while the retry window is still closed.
func (m *Machine) Resend(ctx context.Context) error {
	m.mu.Lock()
	if !m.inChallengeStep() {
		m.mu.Unlock()
		return dErrors.Newf(dErrors.CodeInvariantViolation, "resend requested at step %s", m.step)
	}
	if m.pending {
		return m.unlockBusy()
	}
	if ch := m.challenge; ch != nil {
		if now := requestcontext.Now(ctx); now.Before(ch.RetryDisabledUntil) {
			m.mu.Unlock()
			return dErrors.New(dErrors.CodeConflict, "resend not allowed until the retry window opens")
		}
	}
	kind := m.challenge.Kind
	identifyType, wireValue := m.wireIdentifierLocked()
	m.pending = true
	gen := m.gen
	m.mu.Unlock()

	return m.issueWithPendingHeld(ctx, gen, identifyType, wireValue, kind)
}

// SubmitCode verifies the one-time code. On success the server's auth token
// is reported upward and the challenge is cleared. A wrong or expired code
// keeps the machine in the challenge state so the user can retry inline.
func (m *Machine) SubmitCode(ctx context.Context, code string) error {
	m.mu.Lock()
	if !m.inChallengeStep() || m.challenge == nil {
		m.mu.Unlock()
		return dErrors.Newf(dErrors.CodeInvariantViolation, "code submitted at step %s", m.step)
	}
	if m.pending {
		return m.unlockBusy()
	}
	m.pending = true
	gen := m.gen
	token := m.challenge.Token
	m.mu.Unlock()

	resp, err := m.client.VerifyChallenge(ctx, identityapi.VerifyChallengeRequest{
		ChallengeToken: token,
		Code:           code,
	})
	if err != nil {
		m.settle(gen)
		if m.metrics != nil && dErrors.HasCode(err, dErrors.CodeChallengeFailed) {
			m.metrics.ChallengeFailures.Inc()
		}
		return err
	}

	m.mu.Lock()
	if !m.fresh(gen) {
		m.mu.Unlock()
		return nil
	}
	m.pending = false
	m.challenge = nil
	m.step = StepSucceeded
	found := m.userFound != nil && *m.userFound
	m.mu.Unlock()

	audit.Log(ctx, m.logger, m.auditor, audit.KindChallengeVerified)
	m.report.IdentifyCompleted(ctx, resp.AuthToken, found)
	return nil
}

// ChooseChallenge picks the challenge path at the selection step, or
// switches between paths within the challenge states. The kind must be one
// of the currently offered kinds.
func (m *Machine) ChooseChallenge(ctx context.Context, kind identityapi.ChallengeKind) error {
	offered := m.AvailableChallengeKinds(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.step != StepChallengeSelection && !m.inChallengeStep() {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "challenge chosen at step %s", m.step)
	}
	if m.pending {
		return dErrors.New(dErrors.CodeConflict, "a request is already in flight")
	}
	for _, k := range offered {
		if k == kind {
			m.step = stepForKind(kind)
			return nil
		}
	}
	return dErrors.Newf(dErrors.CodeInvalidInput, "challenge kind %s is not offered", kind)
}

func stepForKind(kind identityapi.ChallengeKind) Step {
	switch kind {
	case identityapi.ChallengeKindEmail:
		return StepEmailChallenge
	case identityapi.ChallengeKindBiometric:
		return StepBiometricChallenge
	default:
		return StepSMSChallenge
	}
}

// Reset returns the machine to its initial position and invalidates any
// in-flight responses.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.pending = false
	m.challenge = nil
	m.userFound = nil
	m.collected = make(map[sandboxid.FieldKey]string)
	m.position()
}

// issue starts a challenge-issue request after acquiring the pending flag.
func (m *Machine) issue(ctx context.Context, identifyType identityapi.IdentifyType, wireValue string, kind identityapi.ChallengeKind) error {
	m.mu.Lock()
	if m.pending {
		return m.unlockBusy()
	}
	m.pending = true
	gen := m.gen
	m.mu.Unlock()
	return m.issueWithPendingHeld(ctx, gen, identifyType, wireValue, kind)
}

// issueWithPendingHeld performs the issue call. The caller has already set
// the pending flag and sampled gen under the same lock hold, so a Reset
// interleaved before the request leaves cannot pass the freshness check.
func (m *Machine) issueWithPendingHeld(ctx context.Context, gen uint64, identifyType identityapi.IdentifyType, wireValue string, kind identityapi.ChallengeKind) error {
	req := identityapi.IssueChallengeRequest{
		IdentifyType:    identifyType,
		ChallengeKind:   kind,
		TenantPublicKey: m.params.TenantPublicKey,
	}
	if identifyType == identityapi.IdentifyTypeEmail {
		req.Identifier.Email = wireValue
	} else {
		req.Identifier.PhoneNumber = wireValue
	}

	data, err := m.client.IssueChallenge(ctx, req)
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
	m.acceptChallenge(ctx, data)
	m.mu.Unlock()
	return nil
}

// acceptChallenge installs a freshly issued challenge and advances the
// step. Caller holds the lock. The retry deadline is derived exactly once
// here, at response receipt, so later reads never drift.
func (m *Machine) acceptChallenge(ctx context.Context, data *identityapi.ChallengeData) {
	masked := data.MaskedTarget
	if masked == "" && data.PhoneNumberLastTwo != "" {
		masked = "••" + data.PhoneNumberLastTwo
	}
	m.challenge = &Challenge{
		Token:                  data.ChallengeToken,
		Kind:                   data.ChallengeKind,
		RetryDisabledUntil:     requestcontext.Now(ctx).Add(time.Duration(data.TimeBeforeRetryS) * time.Second),
		MaskedTarget:           masked,
		BiometricChallengeJSON: data.BiometricChallengeJSON,
	}

	// With a biometric alternative on a capable device the user picks the
	// path; otherwise the issued kind is the sole path and no selector
	// shows.
	offersBiometric := data.ChallengeKind != identityapi.ChallengeKindBiometric &&
		len(data.BiometricChallengeJSON) > 0 &&
		device.Parse(requestcontext.UserAgent(ctx)).WebAuthn
	if offersBiometric {
		m.step = StepChallengeSelection
	} else {
		m.step = stepForKind(data.ChallengeKind)
	}

	if m.metrics != nil {
		m.metrics.ChallengesIssued.WithLabelValues(string(data.ChallengeKind)).Inc()
	}
	audit.Log(ctx, m.logger, m.auditor, audit.KindChallengeIssued,
		"kind", string(data.ChallengeKind),
	)
}

func (m *Machine) preferredKindFor(identifyType identityapi.IdentifyType) identityapi.ChallengeKind {
	if m.params.PreferredChallengeKind != "" {
		return m.params.PreferredChallengeKind
	}
	if identifyType == identityapi.IdentifyTypeEmail {
		return identityapi.ChallengeKindEmail
	}
	return identityapi.ChallengeKindSMS
}

// wireIdentifierLocked rebuilds the wire-form identifier (suffix
// re-appended) from collected fields. Caller holds the lock.
func (m *Machine) wireIdentifierLocked() (identityapi.IdentifyType, string) {
	if phone, ok := m.collected[sandboxid.FieldPhoneNumber]; ok && m.challenge != nil && m.challenge.Kind == identityapi.ChallengeKindSMS {
		return identityapi.IdentifyTypePhoneNumber, sandboxid.Append(phone, m.params.SandboxSuffix)
	}
	if email, ok := m.collected[sandboxid.FieldEmail]; ok {
		return identityapi.IdentifyTypeEmail, sandboxid.Append(email, m.params.SandboxSuffix)
	}
	phone := m.collected[sandboxid.FieldPhoneNumber]
	return identityapi.IdentifyTypePhoneNumber, sandboxid.Append(phone, m.params.SandboxSuffix)
}

func (m *Machine) inChallengeStep() bool {
	switch m.step {
	case StepSMSChallenge, StepEmailChallenge, StepBiometricChallenge:
		return true
	}
	return false
}

// fresh reports whether a response generation still matches the machine's.
// Caller holds the lock. A stale response is dropped without effect.
func (m *Machine) fresh(gen uint64) bool {
	return gen == m.gen
}

// settle clears the pending flag after a failed request, unless the
// machine has moved on.
func (m *Machine) settle(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fresh(gen) {
		m.pending = false
	}
}

func (m *Machine) unlockBusy() error {
	m.mu.Unlock()
	return dErrors.New(dErrors.CodeConflict, "a request is already in flight")
}
