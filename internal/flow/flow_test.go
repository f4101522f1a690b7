package flow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"veriflow/internal/identityapi"
	"veriflow/internal/identityapi/mocks"
	dErrors "veriflow/pkg/domain-errors"
	"veriflow/pkg/requestcontext"
)

type FlowSuite struct {
	suite.Suite
	ctrl   *gomock.Controller
	client *mocks.MockClient
	ctx    context.Context
	now    time.Time
}

func TestFlowSuite(t *testing.T) {
	suite.Run(t, new(FlowSuite))
}

func (s *FlowSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.client = mocks.NewMockClient(s.ctrl)
	s.now = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *FlowSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *FlowSuite) validConfig() *identityapi.OnboardingConfig {
	return &identityapi.OnboardingConfig{
		TenantPublicKey:    "pk_test_1",
		TenantName:         "Acme",
		SupportedCountries: []string{"US"},
		CollectKYCData:     true,
	}
}

// Walks a returning user end to end: email in, SMS challenge out, code
// verified, one KYC requirement, validation, done.
func (s *FlowSuite) TestEndToEnd() {
	gomock.InOrder(
		s.client.EXPECT().
			Identify(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req identityapi.IdentifyRequest) (*identityapi.IdentifyResponse, error) {
				s.Equal("jane@acme.com", req.Identifier.Email)
				return &identityapi.IdentifyResponse{
					UserFound: true,
					ChallengeData: &identityapi.ChallengeData{
						ChallengeToken:     "chal-1",
						ChallengeKind:      identityapi.ChallengeKindSMS,
						PhoneNumberLastTwo: "42",
						TimeBeforeRetryS:   30,
					},
				}, nil
			}),
		s.client.EXPECT().
			VerifyChallenge(gomock.Any(), identityapi.VerifyChallengeRequest{ChallengeToken: "chal-1", Code: "123456"}).
			Return(&identityapi.VerifyChallengeResponse{AuthToken: "auth-1"}, nil),
		s.client.EXPECT().
			OnboardingConfig(gomock.Any(), "pk_test_1").
			Return(s.validConfig(), nil),
		s.client.EXPECT().
			Requirements(gomock.Any(), "auth-1").
			Return(&identityapi.RequirementsResponse{Requirements: []identityapi.Requirement{
				{Kind: identityapi.RequirementKYCData},
			}}, nil),
		s.client.EXPECT().
			SubmitRequirement(gomock.Any(), "auth-1", identityapi.RequirementKYCData, gomock.Any()).
			Return(nil),
		s.client.EXPECT().
			Process(gomock.Any(), "auth-1").
			Return(&identityapi.ProcessResponse{ValidationToken: "vt-1"}, nil),
	)

	var (
		doneCalls     int
		completeCalls int
		result        Result
	)
	m := New(s.client, Params{
		TenantPublicKey: "pk_test_1",
		OnDone: func(r Result) {
			doneCalls++
			result = r
		},
		OnComplete: func() { completeCalls++ },
	})

	s.Require().NoError(m.Start(s.ctx))
	s.Equal(StateIdentify, m.State())

	id := m.Identify()
	s.Require().NotNil(id)
	s.Require().NoError(id.SubmitIdentifier(s.ctx, "jane@acme.com"))

	snap := m.Snapshot(s.ctx)
	s.Require().NotNil(snap.Identify)
	s.Require().NotNil(snap.Identify.Challenge)
	s.Equal(30, snap.Identify.Challenge.SecondsUntilRetry)

	s.Require().NoError(id.SubmitCode(s.ctx, "123456"))
	s.Equal(StateOnboarding, m.State())

	ob := m.Onboarding()
	s.Require().NotNil(ob)
	s.Require().NoError(ob.CompleteRequirement(s.ctx, identityapi.RequirementKYCData, map[string]any{
		"firstName": "Jane",
	}))
	s.Require().NoError(ob.Validate(s.ctx))

	s.Equal(StateComplete, m.State())
	s.Equal(1, doneCalls)
	s.Equal(1, completeCalls)
	s.Equal("auth-1", result.AuthToken)
	s.Equal("vt-1", result.ValidationToken)
	s.Require().NotNil(result.UserFound)
	s.True(*result.UserFound)

	final := m.Snapshot(s.ctx)
	s.Equal("complete", final.State)
	s.Require().NotNil(final.Result)
	s.Equal("vt-1", final.Result.ValidationToken)
}

func (s *FlowSuite) TestAuthTokenOverrideSkipsIdentify() {
	gomock.InOrder(
		s.client.EXPECT().
			OnboardingConfig(gomock.Any(), "pk_test_1").
			Return(s.validConfig(), nil),
		s.client.EXPECT().
			Requirements(gomock.Any(), "auth-resumed").
			Return(&identityapi.RequirementsResponse{}, nil),
	)

	m := New(s.client, Params{TenantPublicKey: "pk_test_1", AuthTokenOverride: "auth-resumed"})
	s.Require().NoError(m.Start(s.ctx))

	s.Equal(StateOnboarding, m.State())
	s.Nil(m.Identify())
}

func (s *FlowSuite) TestCompletionCallbacksFireOnce() {
	var doneCalls int
	m := New(s.client, Params{OnDone: func(Result) { doneCalls++ }})
	m.state = StateOnboarding

	m.OnboardingCompleted(s.ctx, "vt-1")
	m.OnboardingCompleted(s.ctx, "vt-2")

	s.Equal(1, doneCalls)
	s.Equal("vt-1", m.Result().ValidationToken)
}

func (s *FlowSuite) TestReset() {
	s.client.EXPECT().
		Identify(gomock.Any(), gomock.Any()).
		Return(&identityapi.IdentifyResponse{
			UserFound: true,
			ChallengeData: &identityapi.ChallengeData{
				ChallengeToken:   "chal-1",
				ChallengeKind:    identityapi.ChallengeKindSMS,
				TimeBeforeRetryS: 30,
			},
		}, nil)

	m := New(s.client, Params{TenantPublicKey: "pk_test_1"})
	s.Require().NoError(m.Start(s.ctx))
	s.Require().NoError(m.Identify().SubmitIdentifier(s.ctx, "jane@acme.com"))

	m.Reset(s.ctx)

	s.Equal(StateInit, m.State())
	s.Nil(m.Identify())
	s.Equal(Result{}, m.Result())

	// A reset machine starts over cleanly.
	s.Require().NoError(m.Start(s.ctx))
	s.Equal(StateIdentify, m.State())
}

func (s *FlowSuite) TestCloseBeforeCompletion() {
	var closeCalls int
	m := New(s.client, Params{OnClose: func() { closeCalls++ }})
	s.Require().NoError(m.Start(s.ctx))

	m.Close(s.ctx)
	m.Close(s.ctx)
	s.Equal(1, closeCalls)
}

func (s *FlowSuite) TestResetReopensClosedFlow() {
	var closeCalls int
	m := New(s.client, Params{OnClose: func() { closeCalls++ }})
	s.Require().NoError(m.Start(s.ctx))

	m.Close(s.ctx)
	s.Equal(1, closeCalls)

	// Reset starts a fresh run, so a later Close must fire OnClose again.
	m.Reset(s.ctx)
	s.Require().NoError(m.Start(s.ctx))
	m.Close(s.ctx)
	s.Equal(2, closeCalls)
}

func (s *FlowSuite) TestStartTwiceRefused() {
	m := New(s.client, Params{})
	s.Require().NoError(m.Start(s.ctx))
	s.True(dErrors.HasCode(m.Start(s.ctx), dErrors.CodeInvariantViolation))
}
