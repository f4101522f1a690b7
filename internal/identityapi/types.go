// Package identityapi defines the REST contract with the upstream identify
// and onboarding API, and a typed client for it. The flow machines consume
// the Client interface; cmd/sandboxd serves the same shapes.
package identityapi

import "encoding/json"

// ChallengeKind is the possession/knowledge challenge variant offered to a
// user during identify.
type ChallengeKind string

const (
	ChallengeKindSMS       ChallengeKind = "sms"
	ChallengeKindEmail     ChallengeKind = "email"
	ChallengeKindBiometric ChallengeKind = "biometric"
)

// IdentifyType says which attribute the identifier carries.
type IdentifyType string

const (
	IdentifyTypeEmail       IdentifyType = "email"
	IdentifyTypePhoneNumber IdentifyType = "phone_number"
)

// Identifier carries the user-supplied attribute being identified. Exactly
// one field is set, matching IdentifyType.
type Identifier struct {
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// IdentifyRequest is the body of POST /identify.
type IdentifyRequest struct {
	Identifier             Identifier    `json:"identifier"`
	IdentifyType           IdentifyType  `json:"identifyType"`
	PreferredChallengeKind ChallengeKind `json:"preferredChallengeKind,omitempty"`
	TenantPublicKey        string        `json:"tenantPublicKey"`
}

// ChallengeData describes a challenge the server has issued. The biometric
// blob is opaque to this layer; its mere presence gates the biometric path.
type ChallengeData struct {
	ChallengeToken         string          `json:"challengeToken"`
	ChallengeKind          ChallengeKind   `json:"challengeKind"`
	PhoneNumberLastTwo     string          `json:"phoneNumberLastTwo,omitempty"`
	PhoneCountry           string          `json:"phoneCountry,omitempty"`
	MaskedTarget           string          `json:"maskedTarget,omitempty"`
	BiometricChallengeJSON json.RawMessage `json:"biometricChallengeJson,omitempty"`
	TimeBeforeRetryS       int             `json:"timeBeforeRetryS"`
}

// IdentifyResponse is the body returned by POST /identify.
type IdentifyResponse struct {
	UserFound     bool           `json:"userFound"`
	ChallengeData *ChallengeData `json:"challengeData,omitempty"`
}

// IssueChallengeRequest is the body of POST /challenge, used for the initial
// issue on the new-signup path and for resends. A resend discards the
// previous token server-side.
type IssueChallengeRequest struct {
	Identifier      Identifier    `json:"identifier"`
	IdentifyType    IdentifyType  `json:"identifyType"`
	ChallengeKind   ChallengeKind `json:"challengeKind"`
	TenantPublicKey string        `json:"tenantPublicKey"`
}

// VerifyChallengeRequest is the body of POST /challenge/verify.
type VerifyChallengeRequest struct {
	ChallengeToken string `json:"challengeToken"`
	Code           string `json:"code"`
}

// VerifyChallengeResponse carries the bearer credential on success.
type VerifyChallengeResponse struct {
	AuthToken string `json:"authToken"`
}

// RequirementKind is a server-declared unit of data or verification that
// must be satisfied before onboarding completes.
type RequirementKind string

const (
	RequirementKYCData         RequirementKind = "kyc_data"
	RequirementKYBData         RequirementKind = "kyb_data"
	RequirementIDDoc           RequirementKind = "id_doc"
	RequirementLiveness        RequirementKind = "liveness"
	RequirementInvestorProfile RequirementKind = "investor_profile"
)

// Requirement is one pending unit in the server-declared sequence. The
// payload is kind-specific and read-only to the client.
type Requirement struct {
	Kind    RequirementKind `json:"kind"`
	IsMet   bool            `json:"isMet"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// IDDocPayload is the payload carried by an id_doc requirement.
type IDDocPayload struct {
	// SupportedDocuments maps ISO country code to accepted document types.
	SupportedDocuments map[string][]string `json:"supportedDocuments"`
}

// OnboardingConfig is the immutable tenant snapshot fetched once at flow
// start. Validation lives in internal/tenant.
type OnboardingConfig struct {
	TenantPublicKey        string   `json:"tenantPublicKey"`
	TenantName             string   `json:"tenantName"`
	SupportedCountries     []string `json:"supportedCountries"`
	CollectKYCData         bool     `json:"collectKycData"`
	CollectKYBData         bool     `json:"collectKybData"`
	CollectInvestorProfile bool     `json:"collectInvestorProfile"`
	IsLive                 bool     `json:"isLive"`
}

// RequirementsResponse is the body of GET /onboarding/requirements.
type RequirementsResponse struct {
	Requirements []Requirement `json:"requirements"`
}

// SubmitRequirementRequest is the body of POST /onboarding/requirements/{kind}.
type SubmitRequirementRequest struct {
	Data map[string]any `json:"data,omitempty"`
}

// ProcessResponse is the body of POST /onboarding/process on success.
type ProcessResponse struct {
	ValidationToken string `json:"validationToken"`
}

// HandoffStatus is the state of a device hand-off session as reported by
// the status endpoint.
type HandoffStatus string

const (
	HandoffPending   HandoffStatus = "pending"
	HandoffCompleted HandoffStatus = "completed"
	HandoffFailed    HandoffStatus = "failed"
	HandoffCanceled  HandoffStatus = "canceled"
)

// Terminal reports whether the status ends the hand-off session.
func (s HandoffStatus) Terminal() bool {
	switch s {
	case HandoffCompleted, HandoffFailed, HandoffCanceled:
		return true
	}
	return false
}

// HandoffStatusResponse is the body of GET /handoff/status.
type HandoffStatusResponse struct {
	Status HandoffStatus `json:"status"`
}

// ErrorResponse is the error payload shape shared by all endpoints.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes the upstream uses for failures the flow must tell apart.
const (
	ErrCodeChallengeFailed  = "challenge_failed"
	ErrCodeChallengeExpired = "challenge_expired"
	ErrCodeBusinessNotOwned = "business_not_owned"
	ErrCodeTenantNotFound   = "tenant_not_found"
)
