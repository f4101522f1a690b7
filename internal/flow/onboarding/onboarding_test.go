package onboarding

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"veriflow/internal/identityapi"
	"veriflow/internal/identityapi/mocks"
	dErrors "veriflow/pkg/domain-errors"
)

type recordingReporter struct {
	mu              sync.Mutex
	calls           int
	validationToken string
}

func (r *recordingReporter) OnboardingCompleted(_ context.Context, validationToken string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.validationToken = validationToken
}

type fakeTab struct {
	mu     sync.Mutex
	closed int
}

func (t *fakeTab) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed++
	return nil
}

func (t *fakeTab) closeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type OnboardingSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	client   *mocks.MockClient
	reporter *recordingReporter
	ctx      context.Context
}

func TestOnboardingSuite(t *testing.T) {
	suite.Run(t, new(OnboardingSuite))
}

func (s *OnboardingSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.client = mocks.NewMockClient(s.ctrl)
	s.reporter = &recordingReporter{}
	s.ctx = context.Background()
}

func (s *OnboardingSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *OnboardingSuite) machine(opts ...Option) *Machine {
	return New(s.client, Params{TenantPublicKey: "pk_test_1", AuthToken: "auth-1"}, s.reporter, opts...)
}

func (s *OnboardingSuite) validConfig() *identityapi.OnboardingConfig {
	return &identityapi.OnboardingConfig{
		TenantPublicKey:    "pk_test_1",
		TenantName:         "Acme",
		SupportedCountries: []string{"US", "GB"},
		CollectKYCData:     true,
	}
}

func (s *OnboardingSuite) expectStart(reqs ...identityapi.Requirement) {
	gomock.InOrder(
		s.client.EXPECT().
			OnboardingConfig(gomock.Any(), "pk_test_1").
			Return(s.validConfig(), nil),
		s.client.EXPECT().
			Requirements(gomock.Any(), "auth-1").
			Return(&identityapi.RequirementsResponse{Requirements: reqs}, nil),
	)
}

func (s *OnboardingSuite) TestStart() {
	s.Run("met requirements never enter the queue", func() {
		s.expectStart(
			identityapi.Requirement{Kind: identityapi.RequirementKYCData, IsMet: true},
			identityapi.Requirement{Kind: identityapi.RequirementIDDoc},
		)

		m := s.machine()
		s.Require().NoError(m.Start(s.ctx))
		s.Equal(StateRequirements, m.State())
		s.Require().Len(m.Queue(), 1)
		s.Equal(identityapi.RequirementIDDoc, m.Head().Kind)
	})

	s.Run("empty queue goes straight to validation", func() {
		s.expectStart(
			identityapi.Requirement{Kind: identityapi.RequirementKYCData, IsMet: true},
		)

		m := s.machine()
		s.Require().NoError(m.Start(s.ctx))
		s.Equal(StateValidate, m.State())
	})

	s.Run("invalid configuration is terminal", func() {
		cfg := s.validConfig()
		cfg.SupportedCountries = nil
		s.client.EXPECT().
			OnboardingConfig(gomock.Any(), "pk_test_1").
			Return(cfg, nil)

		m := s.machine()
		err := m.Start(s.ctx)
		s.True(dErrors.HasCode(err, dErrors.CodeConfigInvalid))
		s.Equal(StateConfigInvalid, m.State())

		s.True(dErrors.HasCode(m.Start(s.ctx), dErrors.CodeInvariantViolation))
	})
}

func (s *OnboardingSuite) TestQueueExhaustion() {
	kinds := []identityapi.RequirementKind{
		identityapi.RequirementKYCData,
		identityapi.RequirementInvestorProfile,
	}
	s.expectStart(
		identityapi.Requirement{Kind: kinds[0]},
		identityapi.Requirement{Kind: kinds[1]},
	)

	var submitted []identityapi.RequirementKind
	s.client.EXPECT().
		SubmitRequirement(gomock.Any(), "auth-1", gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, kind identityapi.RequirementKind, _ identityapi.SubmitRequirementRequest) error {
			submitted = append(submitted, kind)
			return nil
		}).
		Times(len(kinds))

	m := s.machine()
	s.Require().NoError(m.Start(s.ctx))

	// Out-of-order completion is refused before touching the server.
	err := m.CompleteRequirement(s.ctx, kinds[1], nil)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	for _, kind := range kinds {
		s.Require().NoError(m.CompleteRequirement(s.ctx, kind, map[string]any{"ok": true}))
	}

	s.Equal(kinds, submitted)
	s.Equal(StateValidate, m.State())
	s.Empty(m.Queue())

	// The queue never revisits a completed requirement.
	err = m.CompleteRequirement(s.ctx, kinds[0], nil)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func (s *OnboardingSuite) TestSubmitFailureKeepsHead() {
	s.expectStart(identityapi.Requirement{Kind: identityapi.RequirementKYCData})
	s.client.EXPECT().
		SubmitRequirement(gomock.Any(), "auth-1", identityapi.RequirementKYCData, gomock.Any()).
		Return(dErrors.New(dErrors.CodeBusinessRule, "date of birth is in the future"))

	m := s.machine()
	s.Require().NoError(m.Start(s.ctx))

	err := m.CompleteRequirement(s.ctx, identityapi.RequirementKYCData, map[string]any{"dob": "2999-01-01"})
	s.True(dErrors.HasCode(err, dErrors.CodeBusinessRule))
	s.Equal(StateRequirements, m.State())
	s.Equal(identityapi.RequirementKYCData, m.Head().Kind)
	s.False(m.Pending())
}

func (s *OnboardingSuite) TestHandoffSuccessPopsRequirement() {
	s.expectStart(
		identityapi.Requirement{Kind: identityapi.RequirementIDDoc},
		identityapi.Requirement{Kind: identityapi.RequirementLiveness},
	)

	statuses := make(chan identityapi.HandoffStatus, 2)
	statuses <- identityapi.HandoffPending
	statuses <- identityapi.HandoffCompleted
	s.client.EXPECT().
		HandoffStatus(gomock.Any(), "auth-1").
		DoAndReturn(func(context.Context, string) (*identityapi.HandoffStatusResponse, error) {
			return &identityapi.HandoffStatusResponse{Status: <-statuses}, nil
		}).
		Times(2)

	m := s.machine(WithPollInterval(time.Millisecond))
	s.Require().NoError(m.Start(s.ctx))

	tab := &fakeTab{}
	s.Require().NoError(m.StartHandoff(s.ctx, tab))
	s.Equal(StateHandoffWait, m.State())

	s.Eventually(func() bool { return m.State() == StateRequirements }, time.Second, 5*time.Millisecond)
	s.Equal(identityapi.RequirementLiveness, m.Head().Kind)
	s.Equal(1, tab.closeCount())
}

func (s *OnboardingSuite) TestHandoffFailureKeepsRequirement() {
	s.expectStart(identityapi.Requirement{Kind: identityapi.RequirementLiveness})
	s.client.EXPECT().
		HandoffStatus(gomock.Any(), "auth-1").
		Return(&identityapi.HandoffStatusResponse{Status: identityapi.HandoffFailed}, nil)

	m := s.machine(WithPollInterval(time.Millisecond))
	s.Require().NoError(m.Start(s.ctx))

	tab := &fakeTab{}
	s.Require().NoError(m.StartHandoff(s.ctx, tab))

	s.Eventually(func() bool { return m.State() == StateRequirements }, time.Second, 5*time.Millisecond)
	s.Equal(identityapi.RequirementLiveness, m.Head().Kind)
	s.Equal(1, tab.closeCount())
}

func (s *OnboardingSuite) TestHandoffRefusedForDataRequirement() {
	s.expectStart(identityapi.Requirement{Kind: identityapi.RequirementKYCData})

	m := s.machine()
	s.Require().NoError(m.Start(s.ctx))

	err := m.StartHandoff(s.ctx, &fakeTab{})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal(StateRequirements, m.State())
}

func (s *OnboardingSuite) TestCancelHandoff() {
	s.expectStart(identityapi.Requirement{Kind: identityapi.RequirementIDDoc})
	s.client.EXPECT().
		HandoffStatus(gomock.Any(), "auth-1").
		Return(&identityapi.HandoffStatusResponse{Status: identityapi.HandoffPending}, nil).
		AnyTimes()

	m := s.machine(WithPollInterval(time.Millisecond))
	s.Require().NoError(m.Start(s.ctx))

	tab := &fakeTab{}
	s.Require().NoError(m.StartHandoff(s.ctx, tab))
	m.CancelHandoff(s.ctx)

	s.Equal(StateRequirements, m.State())
	s.Equal(identityapi.RequirementIDDoc, m.Head().Kind)
	s.Equal(1, tab.closeCount())

	// Safe to call again with nothing active.
	m.CancelHandoff(s.ctx)
	s.Equal(1, tab.closeCount())
}

func (s *OnboardingSuite) TestValidate() {
	s.Run("failure is retryable", func() {
		s.expectStart()
		gomock.InOrder(
			s.client.EXPECT().
				Process(gomock.Any(), "auth-1").
				Return(nil, dErrors.New(dErrors.CodeTransport, "connection reset")),
			s.client.EXPECT().
				Process(gomock.Any(), "auth-1").
				Return(&identityapi.ProcessResponse{ValidationToken: "vt-1"}, nil),
		)

		m := s.machine()
		s.Require().NoError(m.Start(s.ctx))
		s.Equal(StateValidate, m.State())

		s.Error(m.Validate(s.ctx))
		s.Equal(StateValidate, m.State())

		s.Require().NoError(m.Validate(s.ctx))
		s.Equal(StateComplete, m.State())
		s.Equal(1, s.reporter.calls)
		s.Equal("vt-1", s.reporter.validationToken)
	})

	s.Run("refused outside the validate state", func() {
		m := s.machine()
		s.True(dErrors.HasCode(m.Validate(s.ctx), dErrors.CodeInvariantViolation))
	})
}
