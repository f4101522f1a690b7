package identityapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	dErrors "veriflow/pkg/domain-errors"
)

// Client is the upstream surface the flow machines depend on. Machines
// accept this interface; HTTPClient below is the production implementation.
type Client interface {
	Identify(ctx context.Context, req IdentifyRequest) (*IdentifyResponse, error)
	IssueChallenge(ctx context.Context, req IssueChallengeRequest) (*ChallengeData, error)
	VerifyChallenge(ctx context.Context, req VerifyChallengeRequest) (*VerifyChallengeResponse, error)
	OnboardingConfig(ctx context.Context, tenantPublicKey string) (*OnboardingConfig, error)
	Requirements(ctx context.Context, authToken string) (*RequirementsResponse, error)
	SubmitRequirement(ctx context.Context, authToken string, kind RequirementKind, req SubmitRequirementRequest) error
	Process(ctx context.Context, authToken string) (*ProcessResponse, error)
	HandoffStatus(ctx context.Context, authToken string) (*HandoffStatusResponse, error)
}

// HTTPClient talks to the upstream identify/onboarding API over REST.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
	tracer  trace.Tracer
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithLogger injects a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *HTTPClient) {
		c.logger = logger
	}
}

// WithHTTPClient overrides the underlying http.Client (tests, timeouts).
func WithHTTPClient(h *http.Client) Option {
	return func(c *HTTPClient) {
		c.http = h
	}
}

// NewHTTPClient builds a client for the given upstream base URL.
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  slog.Default(),
		tracer:  otel.Tracer("veriflow/identityapi"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) Identify(ctx context.Context, req IdentifyRequest) (*IdentifyResponse, error) {
	var resp IdentifyResponse
	if err := c.do(ctx, http.MethodPost, "/identify", "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) IssueChallenge(ctx context.Context, req IssueChallengeRequest) (*ChallengeData, error) {
	var resp ChallengeData
	if err := c.do(ctx, http.MethodPost, "/challenge", "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) VerifyChallenge(ctx context.Context, req VerifyChallengeRequest) (*VerifyChallengeResponse, error) {
	var resp VerifyChallengeResponse
	if err := c.do(ctx, http.MethodPost, "/challenge/verify", "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) OnboardingConfig(ctx context.Context, tenantPublicKey string) (*OnboardingConfig, error) {
	var resp OnboardingConfig
	path := "/onboarding/config?publicKey=" + url.QueryEscape(tenantPublicKey)
	if err := c.do(ctx, http.MethodGet, path, "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Requirements(ctx context.Context, authToken string) (*RequirementsResponse, error) {
	var resp RequirementsResponse
	if err := c.do(ctx, http.MethodGet, "/onboarding/requirements", authToken, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) SubmitRequirement(ctx context.Context, authToken string, kind RequirementKind, req SubmitRequirementRequest) error {
	path := "/onboarding/requirements/" + url.PathEscape(string(kind))
	return c.do(ctx, http.MethodPost, path, authToken, req, nil)
}

func (c *HTTPClient) Process(ctx context.Context, authToken string) (*ProcessResponse, error) {
	var resp ProcessResponse
	if err := c.do(ctx, http.MethodPost, "/onboarding/process", authToken, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) HandoffStatus(ctx context.Context, authToken string) (*HandoffStatusResponse, error) {
	var resp HandoffStatusResponse
	if err := c.do(ctx, http.MethodGet, "/handoff/status", authToken, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do performs one request/response cycle. Transport failures come back as
// CodeTransport so callers can distinguish "the network broke" from a
// well-formed business rejection.
func (c *HTTPClient) do(ctx context.Context, method, path, authToken string, body, out any) error {
	ctx, span := c.tracer.Start(ctx, "identityapi"+path,
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", path),
		),
	)
	defer span.End()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "encode request body")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, "transport failure")
		c.logger.ErrorContext(ctx, "upstream request failed",
			"method", method,
			"path", path,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeTransport, "upstream request failed")
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= 400 {
		return c.mapError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		span.SetStatus(codes.Error, "decode failure")
		return dErrors.Wrap(err, dErrors.CodeInternal, "decode response body")
	}
	return nil
}

// mapError translates an upstream error payload into a coded domain error.
func (c *HTTPClient) mapError(resp *http.Response) error {
	var payload ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &payload)

	message := payload.Message
	if message == "" {
		message = fmt.Sprintf("upstream returned %d", resp.StatusCode)
	}

	switch payload.Code {
	case ErrCodeChallengeFailed, ErrCodeChallengeExpired:
		return dErrors.New(dErrors.CodeChallengeFailed, message)
	case ErrCodeBusinessNotOwned:
		return dErrors.New(dErrors.CodeBusinessRule, message)
	case ErrCodeTenantNotFound:
		return dErrors.New(dErrors.CodeConfigInvalid, message)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return dErrors.New(dErrors.CodeUnauthorized, message)
	case resp.StatusCode == http.StatusNotFound:
		return dErrors.New(dErrors.CodeNotFound, message)
	case resp.StatusCode >= 500:
		return dErrors.New(dErrors.CodeInternal, message)
	default:
		return dErrors.New(dErrors.CodeBadRequest, message)
	}
}
