package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"veriflow/internal/identityapi"
	"veriflow/internal/sandbox/store/challenge"
	"veriflow/internal/sandbox/store/handoff"
	"veriflow/internal/sandbox/tokens"
	"veriflow/internal/tenant"
	tenantstore "veriflow/internal/tenant/store"
	dErrors "veriflow/pkg/domain-errors"
	"veriflow/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	service *Service
	signer  *tokens.Signer
	ctx     context.Context
	now     time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	tenants := tenantstore.NewMemory()
	s.Require().NoError(tenants.Save(context.Background(), tenant.Tenant{
		PublicKey: "pk_test_1",
		Name:      "Acme",
		Config: identityapi.OnboardingConfig{
			TenantPublicKey:    "pk_test_1",
			TenantName:         "Acme",
			SupportedCountries: []string{"US"},
			CollectKYCData:     true,
		},
		RequirementTemplate: []identityapi.Requirement{
			{Kind: identityapi.RequirementKYCData},
			{Kind: identityapi.RequirementIDDoc},
		},
	}))

	s.Require().NoError(tenants.Save(context.Background(), tenant.Tenant{
		PublicKey: "pk_test_kyb",
		Name:      "Bizco",
		Config: identityapi.OnboardingConfig{
			TenantPublicKey:    "pk_test_kyb",
			TenantName:         "Bizco",
			SupportedCountries: []string{"US"},
			CollectKYBData:     true,
		},
		RequirementTemplate: []identityapi.Requirement{
			{Kind: identityapi.RequirementKYBData},
		},
	}))

	s.signer = tokens.NewSigner("test-signing-key", "sandboxd")
	s.service = NewService(tenants, challenge.NewMemoryStore(), handoff.NewMemoryStore(), s.signer)
	s.now = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *ServiceSuite) identifyEmail(email string) *identityapi.IdentifyResponse {
	resp, err := s.service.Identify(s.ctx, identityapi.IdentifyRequest{
		IdentifyType:    identityapi.IdentifyTypeEmail,
		Identifier:      identityapi.Identifier{Email: email},
		TenantPublicKey: "pk_test_1",
	})
	s.Require().NoError(err)
	return resp
}

func (s *ServiceSuite) authenticate(email string) *tokens.Claims {
	return s.authenticateFor(email, "pk_test_1")
}

func (s *ServiceSuite) authenticateFor(email, tenantPublicKey string) *tokens.Claims {
	resp, err := s.service.Identify(s.ctx, identityapi.IdentifyRequest{
		IdentifyType:    identityapi.IdentifyTypeEmail,
		Identifier:      identityapi.Identifier{Email: email},
		TenantPublicKey: tenantPublicKey,
	})
	s.Require().NoError(err)
	s.Require().NotNil(resp.ChallengeData)

	verified, err := s.service.VerifyChallenge(s.ctx, identityapi.VerifyChallengeRequest{
		ChallengeToken: resp.ChallengeData.ChallengeToken,
		Code:           FixedCode,
	})
	s.Require().NoError(err)

	claims, err := s.signer.ValidateAuthToken(verified.AuthToken)
	s.Require().NoError(err)
	return claims
}

func (s *ServiceSuite) TestIdentify() {
	s.Run("known user gets a challenge", func() {
		resp := s.identifyEmail("jane@acme.com")
		s.True(resp.UserFound)
		s.Require().NotNil(resp.ChallengeData)
		s.Equal(identityapi.ChallengeKindEmail, resp.ChallengeData.ChallengeKind)
		s.Equal("j••@acme.com", resp.ChallengeData.MaskedTarget)
		s.Equal(30, resp.ChallengeData.TimeBeforeRetryS)
	})

	s.Run("new directive means user not found", func() {
		resp := s.identifyEmail("jane@acme.com#new1")
		s.False(resp.UserFound)
		s.Nil(resp.ChallengeData)
	})

	s.Run("phone identify masks the last two digits", func() {
		resp, err := s.service.Identify(s.ctx, identityapi.IdentifyRequest{
			IdentifyType:    identityapi.IdentifyTypePhoneNumber,
			Identifier:      identityapi.Identifier{PhoneNumber: "+15550001242"},
			TenantPublicKey: "pk_test_1",
		})
		s.Require().NoError(err)
		s.Require().NotNil(resp.ChallengeData)
		s.Equal(identityapi.ChallengeKindSMS, resp.ChallengeData.ChallengeKind)
		s.Equal("42", resp.ChallengeData.PhoneNumberLastTwo)
	})

	s.Run("missing identifier is rejected", func() {
		_, err := s.service.Identify(s.ctx, identityapi.IdentifyRequest{
			IdentifyType:    identityapi.IdentifyTypeEmail,
			TenantPublicKey: "pk_test_1",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *ServiceSuite) TestVerifyChallenge() {
	s.Run("fixed code succeeds and consumes the token", func() {
		resp := s.identifyEmail("jane@acme.com")
		token := resp.ChallengeData.ChallengeToken

		verified, err := s.service.VerifyChallenge(s.ctx, identityapi.VerifyChallengeRequest{
			ChallengeToken: token,
			Code:           FixedCode,
		})
		s.Require().NoError(err)
		s.NotEmpty(verified.AuthToken)

		_, err = s.service.VerifyChallenge(s.ctx, identityapi.VerifyChallengeRequest{
			ChallengeToken: token,
			Code:           FixedCode,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeChallengeFailed))
	})

	s.Run("wrong code fails", func() {
		resp := s.identifyEmail("jane@acme.com")
		_, err := s.service.VerifyChallenge(s.ctx, identityapi.VerifyChallengeRequest{
			ChallengeToken: resp.ChallengeData.ChallengeToken,
			Code:           "000000",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeChallengeFailed))
	})

	s.Run("fail directive rejects even the fixed code", func() {
		resp := s.identifyEmail("jane@acme.com#fail1")
		_, err := s.service.VerifyChallenge(s.ctx, identityapi.VerifyChallengeRequest{
			ChallengeToken: resp.ChallengeData.ChallengeToken,
			Code:           FixedCode,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeChallengeFailed))
	})

	s.Run("expired challenge fails", func() {
		resp := s.identifyEmail("jane@acme.com")
		later := requestcontext.WithTime(context.Background(), s.now.Add(11*time.Minute))
		_, err := s.service.VerifyChallenge(later, identityapi.VerifyChallengeRequest{
			ChallengeToken: resp.ChallengeData.ChallengeToken,
			Code:           FixedCode,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeChallengeFailed))
	})
}

func (s *ServiceSuite) TestOnboardingConfig() {
	cfg, err := s.service.OnboardingConfig(s.ctx, "pk_test_1")
	s.Require().NoError(err)
	s.Equal("Acme", cfg.TenantName)

	_, err = s.service.OnboardingConfig(s.ctx, "pk_unknown")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestRequirementsLifecycle() {
	claims := s.authenticate("jane@acme.com")

	reqs, err := s.service.Requirements(s.ctx, claims)
	s.Require().NoError(err)
	s.Require().Len(reqs.Requirements, 2)
	s.False(reqs.Requirements[0].IsMet)

	_, err = s.service.Process(s.ctx, claims)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	s.Require().NoError(s.service.SubmitRequirement(s.ctx, claims, identityapi.RequirementKYCData,
		identityapi.SubmitRequirementRequest{Data: map[string]any{"firstName": "Jane"}}))

	reqs, err = s.service.Requirements(s.ctx, claims)
	s.Require().NoError(err)
	s.True(reqs.Requirements[0].IsMet)
	s.False(reqs.Requirements[1].IsMet)

	// The capture requirement is met by completing the hand-off.
	s.Require().NoError(s.service.SetHandoffStatus(s.ctx, claims, identityapi.HandoffCompleted))

	processed, err := s.service.Process(s.ctx, claims)
	s.Require().NoError(err)
	s.NotEmpty(processed.ValidationToken)
}

func (s *ServiceSuite) TestSubmitRequirement() {
	claims := s.authenticate("jane@acme.com")

	s.Run("unknown kind rejected", func() {
		err := s.service.SubmitRequirement(s.ctx, claims, identityapi.RequirementInvestorProfile,
			identityapi.SubmitRequirementRequest{})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("unowned business rejected", func() {
		kybClaims := s.authenticateFor("owner@bizco.com", "pk_test_kyb")
		err := s.service.SubmitRequirement(s.ctx, kybClaims, identityapi.RequirementKYBData,
			identityapi.SubmitRequirementRequest{Data: map[string]any{"businessOwned": false}})
		s.True(dErrors.HasCode(err, dErrors.CodeBusinessRule))

		s.NoError(s.service.SubmitRequirement(s.ctx, kybClaims, identityapi.RequirementKYBData,
			identityapi.SubmitRequirementRequest{Data: map[string]any{"businessOwned": true}}))
	})
}

func (s *ServiceSuite) TestHandoffStatus() {
	claims := s.authenticate("jane@acme.com")

	status, err := s.service.HandoffStatus(s.ctx, claims)
	s.Require().NoError(err)
	s.Equal(identityapi.HandoffPending, status.Status)

	s.Require().NoError(s.service.SetHandoffStatus(s.ctx, claims, identityapi.HandoffCompleted))

	status, err = s.service.HandoffStatus(s.ctx, claims)
	s.Require().NoError(err)
	s.Equal(identityapi.HandoffCompleted, status.Status)

	s.True(dErrors.HasCode(
		s.service.SetHandoffStatus(s.ctx, claims, identityapi.HandoffStatus("bogus")),
		dErrors.CodeInvalidInput,
	))
}

func (s *ServiceSuite) TestDeterministicUserIDs() {
	a := s.authenticate("jane@acme.com")
	b := s.authenticate("jane@acme.com")
	c := s.authenticate("other@acme.com")

	s.Equal(a.UserID, b.UserID)
	s.NotEqual(a.UserID, c.UserID)
}
