// Package sandbox implements the sandbox identity API: a deterministic
// upstream for the flow service to run against. Identifier directives
// (the "#..." suffix) steer outcomes: "#new..." means the user is
// unknown, "#fail..." makes challenge verification fail.
package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"veriflow/internal/identityapi"
	"veriflow/internal/sandbox/store/challenge"
	"veriflow/internal/sandbox/store/handoff"
	"veriflow/internal/sandbox/tokens"
	tenantstore "veriflow/internal/tenant/store"
	dErrors "veriflow/pkg/domain-errors"
	"veriflow/pkg/requestcontext"
)

// FixedCode is the one-time code every sandbox challenge accepts. It is
// still bcrypt-hashed at rest so the storage path matches production.
const FixedCode = "123456"

const (
	defaultChallengeTTL    = 10 * time.Minute
	defaultTimeBeforeRetry = 30 * time.Second
	authTokenTTL           = time.Hour
	validationTokenTTL     = 15 * time.Minute
)

// userNamespace makes user IDs deterministic per identifier so repeated
// sandbox runs see the same user.
var userNamespace = uuid.MustParse("6f1cf9f2-56a1-4ba2-9a2f-ef1d2f1d5c3e")

// Service is the sandbox API's business layer.
type Service struct {
	tenants    tenantstore.Store
	challenges challenge.Store
	handoffs   handoff.Store
	signer     *tokens.Signer

	challengeTTL    time.Duration
	timeBeforeRetry time.Duration

	mu       sync.Mutex
	progress map[string]map[identityapi.RequirementKind]bool

	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithChallengeTTL sets how long an issued challenge stays verifiable.
func WithChallengeTTL(ttl time.Duration) Option {
	return func(s *Service) { s.challengeTTL = ttl }
}

// WithTimeBeforeRetry sets the resend lockout advertised with each
// challenge.
func WithTimeBeforeRetry(d time.Duration) Option {
	return func(s *Service) { s.timeBeforeRetry = d }
}

// NewService builds the sandbox service.
func NewService(tenants tenantstore.Store, challenges challenge.Store, handoffs handoff.Store, signer *tokens.Signer, opts ...Option) *Service {
	s := &Service{
		tenants:         tenants,
		challenges:      challenges,
		handoffs:        handoffs,
		signer:          signer,
		challengeTTL:    defaultChallengeTTL,
		timeBeforeRetry: defaultTimeBeforeRetry,
		progress:        make(map[string]map[identityapi.RequirementKind]bool),
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// splitDirective separates an identifier from its sandbox directive.
// "jane@acme.com#fail123" becomes ("jane@acme.com", "fail123").
func splitDirective(identifier string) (base, directive string) {
	base, directive, _ = strings.Cut(identifier, "#")
	return base, directive
}

// userIDFor derives the stable sandbox user ID for an identifier.
func userIDFor(base, tenantPublicKey string) string {
	return uuid.NewSHA1(userNamespace, []byte(tenantPublicKey+":"+base)).String()
}

// Identify resolves an identifier. Known users get a challenge issued in
// the same turn; unknown users get only the userFound verdict and the
// client issues the signup challenge itself.
func (s *Service) Identify(ctx context.Context, req identityapi.IdentifyRequest) (*identityapi.IdentifyResponse, error) {
	identifier, identifyType := primaryIdentifier(req.Identifier, req.IdentifyType)
	if identifier == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "identifier is required")
	}

	_, directive := splitDirective(identifier)
	if strings.HasPrefix(directive, "new") {
		return &identityapi.IdentifyResponse{UserFound: false}, nil
	}

	kind := req.PreferredChallengeKind
	if kind == "" {
		kind = defaultKindFor(identifyType)
	}
	data, err := s.issueChallenge(ctx, identifier, identifyType, kind, req.TenantPublicKey)
	if err != nil {
		return nil, err
	}
	return &identityapi.IdentifyResponse{UserFound: true, ChallengeData: data}, nil
}

// IssueChallenge issues (or reissues) a challenge for an identifier.
func (s *Service) IssueChallenge(ctx context.Context, req identityapi.IssueChallengeRequest) (*identityapi.ChallengeData, error) {
	identifier, identifyType := primaryIdentifier(req.Identifier, req.IdentifyType)
	if identifier == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "identifier is required")
	}
	kind := req.ChallengeKind
	if kind == "" {
		kind = defaultKindFor(identifyType)
	}
	return s.issueChallenge(ctx, identifier, identifyType, kind, req.TenantPublicKey)
}

func (s *Service) issueChallenge(ctx context.Context, identifier string, identifyType identityapi.IdentifyType, kind identityapi.ChallengeKind, tenantPublicKey string) (*identityapi.ChallengeData, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(FixedCode), bcrypt.DefaultCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "hash challenge code")
	}

	base, _ := splitDirective(identifier)
	ch := challenge.Challenge{
		Token:           uuid.NewString(),
		CodeHash:        hash,
		Kind:            kind,
		IdentifyType:    identifyType,
		Identifier:      identifier,
		TenantPublicKey: tenantPublicKey,
		UserID:          userIDFor(base, tenantPublicKey),
		ExpiresAt:       requestcontext.Now(ctx).Add(s.challengeTTL),
	}
	if err := s.challenges.Save(ctx, ch, s.challengeTTL); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "challenge issued",
		"kind", string(kind),
		"token", ch.Token,
	)

	data := &identityapi.ChallengeData{
		ChallengeToken:   ch.Token,
		ChallengeKind:    kind,
		TimeBeforeRetryS: int(s.timeBeforeRetry / time.Second),
	}
	switch identifyType {
	case identityapi.IdentifyTypePhoneNumber:
		data.PhoneNumberLastTwo = lastTwoDigits(base)
		data.MaskedTarget = "••" + data.PhoneNumberLastTwo
	default:
		data.MaskedTarget = maskEmail(base)
	}
	return data, nil
}

// VerifyChallenge checks a submitted code against the stored hash. The
// "#fail" directive rejects every code; expired and consumed tokens are
// rejected with distinct reasons.
func (s *Service) VerifyChallenge(ctx context.Context, req identityapi.VerifyChallengeRequest) (*identityapi.VerifyChallengeResponse, error) {
	ch, err := s.challenges.Find(ctx, req.ChallengeToken)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			return nil, err
		}
		// Not found and expired both surface to the client as challenge
		// failures; the wrapped sentinel keeps them distinguishable for the
		// wire payload.
		return nil, dErrors.Wrap(err, dErrors.CodeChallengeFailed, "challenge is unknown or expired")
	}

	_, directive := splitDirective(ch.Identifier)
	if strings.HasPrefix(directive, "fail") {
		return nil, dErrors.New(dErrors.CodeChallengeFailed, "challenge verification failed")
	}
	if bcrypt.CompareHashAndPassword(ch.CodeHash, []byte(req.Code)) != nil {
		return nil, dErrors.New(dErrors.CodeChallengeFailed, "incorrect code")
	}

	if err := s.challenges.Delete(ctx, ch.Token); err != nil {
		return nil, err
	}
	if err := s.handoffs.Set(ctx, handoff.Session{UserID: ch.UserID, Status: identityapi.HandoffPending}); err != nil {
		return nil, err
	}

	authToken, err := s.signer.MintAuthToken(ch.UserID, ch.TenantPublicKey, authTokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "mint auth token")
	}
	return &identityapi.VerifyChallengeResponse{AuthToken: authToken}, nil
}

// OnboardingConfig returns the tenant's config snapshot.
func (s *Service) OnboardingConfig(ctx context.Context, tenantPublicKey string) (*identityapi.OnboardingConfig, error) {
	t, err := s.tenants.FindByPublicKey(ctx, tenantPublicKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "tenant not found")
	}
	cfg := t.Config
	return &cfg, nil
}

// Requirements returns the tenant's requirement template with the user's
// progress folded in.
func (s *Service) Requirements(ctx context.Context, claims *tokens.Claims) (*identityapi.RequirementsResponse, error) {
	t, err := s.tenants.FindByPublicKey(ctx, claims.TenantPublicKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "tenant not found")
	}

	met := s.metRequirements(claims.UserID)
	out := make([]identityapi.Requirement, len(t.RequirementTemplate))
	for i, r := range t.RequirementTemplate {
		r.IsMet = r.IsMet || met[r.Kind]
		out[i] = r
	}
	return &identityapi.RequirementsResponse{Requirements: out}, nil
}

// SubmitRequirement records one requirement as met. The kyb_data business
// ownership check is the sandbox's sole business rule.
func (s *Service) SubmitRequirement(ctx context.Context, claims *tokens.Claims, kind identityapi.RequirementKind, req identityapi.SubmitRequirementRequest) error {
	t, err := s.tenants.FindByPublicKey(ctx, claims.TenantPublicKey)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "tenant not found")
	}

	inTemplate := false
	for _, r := range t.RequirementTemplate {
		if r.Kind == kind {
			inTemplate = true
			break
		}
	}
	if !inTemplate {
		return dErrors.Newf(dErrors.CodeInvalidInput, "requirement %s is not part of this tenant's onboarding", kind)
	}

	if kind == identityapi.RequirementKYBData {
		if owned, ok := req.Data["businessOwned"].(bool); ok && !owned {
			return dErrors.New(dErrors.CodeBusinessRule, "the submitted business is not owned by this user")
		}
	}

	s.mu.Lock()
	if s.progress[claims.UserID] == nil {
		s.progress[claims.UserID] = make(map[identityapi.RequirementKind]bool)
	}
	s.progress[claims.UserID][kind] = true
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "requirement met",
		"user_id", claims.UserID,
		"kind", string(kind),
	)
	return nil
}

// Process validates that every requirement is met and mints the
// validation token.
func (s *Service) Process(ctx context.Context, claims *tokens.Claims) (*identityapi.ProcessResponse, error) {
	t, err := s.tenants.FindByPublicKey(ctx, claims.TenantPublicKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "tenant not found")
	}

	met := s.metRequirements(claims.UserID)
	for _, r := range t.RequirementTemplate {
		if !r.IsMet && !met[r.Kind] {
			return nil, dErrors.Newf(dErrors.CodeValidation, "requirement %s is not met", r.Kind)
		}
	}

	token, err := s.signer.MintValidationToken(claims.UserID, claims.TenantPublicKey, validationTokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "mint validation token")
	}
	return &identityapi.ProcessResponse{ValidationToken: token}, nil
}

// HandoffStatus returns the user's hand-off status, seeding a pending
// session on first read.
func (s *Service) HandoffStatus(ctx context.Context, claims *tokens.Claims) (*identityapi.HandoffStatusResponse, error) {
	session, err := s.handoffs.Get(ctx, claims.UserID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			return nil, err
		}
		session = &handoff.Session{UserID: claims.UserID, Status: identityapi.HandoffPending}
		if err := s.handoffs.Set(ctx, *session); err != nil {
			return nil, err
		}
	}
	return &identityapi.HandoffStatusResponse{Status: session.Status}, nil
}

// SetHandoffStatus is the sandbox control used to drive a hand-off to a
// terminal status from the outside (tests, demo tooling).
func (s *Service) SetHandoffStatus(ctx context.Context, claims *tokens.Claims, status identityapi.HandoffStatus) error {
	switch status {
	case identityapi.HandoffPending, identityapi.HandoffCompleted, identityapi.HandoffFailed, identityapi.HandoffCanceled:
	default:
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown hand-off status %q", status)
	}
	if status == identityapi.HandoffCompleted {
		// A completed capture also satisfies the capture requirements.
		s.mu.Lock()
		if s.progress[claims.UserID] == nil {
			s.progress[claims.UserID] = make(map[identityapi.RequirementKind]bool)
		}
		s.progress[claims.UserID][identityapi.RequirementIDDoc] = true
		s.progress[claims.UserID][identityapi.RequirementLiveness] = true
		s.mu.Unlock()
	}
	return s.handoffs.Set(ctx, handoff.Session{UserID: claims.UserID, Status: status})
}

func (s *Service) metRequirements(userID string) map[identityapi.RequirementKind]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[identityapi.RequirementKind]bool, len(s.progress[userID]))
	for k, v := range s.progress[userID] {
		out[k] = v
	}
	return out
}

func primaryIdentifier(id identityapi.Identifier, identifyType identityapi.IdentifyType) (string, identityapi.IdentifyType) {
	if identifyType == identityapi.IdentifyTypePhoneNumber || (identifyType == "" && id.PhoneNumber != "") {
		return id.PhoneNumber, identityapi.IdentifyTypePhoneNumber
	}
	return id.Email, identityapi.IdentifyTypeEmail
}

func defaultKindFor(identifyType identityapi.IdentifyType) identityapi.ChallengeKind {
	if identifyType == identityapi.IdentifyTypePhoneNumber {
		return identityapi.ChallengeKindSMS
	}
	return identityapi.ChallengeKindEmail
}

func lastTwoDigits(s string) string {
	digits := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) < 2 {
		return "00"
	}
	return string(digits[len(digits)-2:])
}

func maskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return email
	}
	return fmt.Sprintf("%c••@%s", []rune(local)[0], domain)
}
