// Package handler is the HTTP surface of the sandbox identity API. Routes
// mirror the upstream contract the flow client speaks.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"veriflow/internal/identityapi"
	"veriflow/internal/sandbox"
	"veriflow/internal/sandbox/tokens"
	dErrors "veriflow/pkg/domain-errors"
	"veriflow/pkg/platform/middleware/requesttime"
	"veriflow/pkg/platform/sentinel"
)

type claimsKey struct{}

// Handler handles the sandbox API endpoints.
type Handler struct {
	logger  *slog.Logger
	service *sandbox.Service
	signer  *tokens.Signer
}

// New creates a sandbox API Handler.
func New(service *sandbox.Service, signer *tokens.Signer, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
		signer:  signer,
	}
}

// Register registers the sandbox routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	api := chi.NewRouter()
	api.Use(requesttime.Middleware)

	api.Post("/identify", h.handleIdentify)
	api.Post("/challenge", h.handleIssueChallenge)
	api.Post("/challenge/verify", h.handleVerifyChallenge)
	api.Get("/onboarding/config", h.handleOnboardingConfig)

	api.Group(func(authed chi.Router) {
		authed.Use(h.requireAuth)
		authed.Get("/onboarding/requirements", h.handleRequirements)
		authed.Post("/onboarding/requirements/{kind}", h.handleSubmitRequirement)
		authed.Post("/onboarding/process", h.handleProcess)
		authed.Get("/handoff/status", h.handleHandoffStatus)
		authed.Post("/handoff/status", h.handleSetHandoffStatus)
	})

	r.Mount("/", api)
}

// requireAuth validates the bearer token and stashes its claims.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			h.writeError(w, r, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
			return
		}
		claims, err := h.signer.ValidateAuthToken(token)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFrom(ctx context.Context) *tokens.Claims {
	claims, _ := ctx.Value(claimsKey{}).(*tokens.Claims)
	return claims
}

func (h *Handler) handleIdentify(w http.ResponseWriter, r *http.Request) {
	var req identityapi.IdentifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	resp, err := h.service.Identify(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleIssueChallenge(w http.ResponseWriter, r *http.Request) {
	var req identityapi.IssueChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	resp, err := h.service.IssueChallenge(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleVerifyChallenge(w http.ResponseWriter, r *http.Request) {
	var req identityapi.VerifyChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	resp, err := h.service.VerifyChallenge(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleOnboardingConfig(w http.ResponseWriter, r *http.Request) {
	publicKey := r.URL.Query().Get("publicKey")
	if publicKey == "" {
		h.writeError(w, r, dErrors.New(dErrors.CodeInvalidInput, "publicKey is required"))
		return
	}
	cfg, err := h.service.OnboardingConfig(r.Context(), publicKey)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) handleRequirements(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Requirements(r.Context(), claimsFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSubmitRequirement(w http.ResponseWriter, r *http.Request) {
	kind := identityapi.RequirementKind(chi.URLParam(r, "kind"))

	var req identityapi.SubmitRequirementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := h.service.SubmitRequirement(r.Context(), claimsFrom(r.Context()), kind, req); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleProcess(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Process(r.Context(), claimsFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleHandoffStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.HandoffStatus(r.Context(), claimsFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type setHandoffStatusRequest struct {
	Status identityapi.HandoffStatus `json:"status"`
}

func (h *Handler) handleSetHandoffStatus(w http.ResponseWriter, r *http.Request) {
	var req setHandoffStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := h.service.SetHandoffStatus(r.Context(), claimsFrom(r.Context()), req.Status); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError translates a domain error into the wire error payload the
// flow client understands.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	payload := identityapi.ErrorResponse{Message: err.Error()}

	switch {
	case dErrors.HasCode(err, dErrors.CodeChallengeFailed) && errors.Is(err, sentinel.ErrExpired):
		status = http.StatusUnprocessableEntity
		payload.Code = identityapi.ErrCodeChallengeExpired
	case dErrors.HasCode(err, dErrors.CodeChallengeFailed):
		status = http.StatusUnprocessableEntity
		payload.Code = identityapi.ErrCodeChallengeFailed
	case dErrors.HasCode(err, dErrors.CodeBusinessRule):
		status = http.StatusUnprocessableEntity
		payload.Code = identityapi.ErrCodeBusinessNotOwned
	case dErrors.HasCode(err, dErrors.CodeNotFound):
		status = http.StatusNotFound
		payload.Code = identityapi.ErrCodeTenantNotFound
	case dErrors.HasCode(err, dErrors.CodeUnauthorized):
		status = http.StatusUnauthorized
	case dErrors.HasCode(err, dErrors.CodeValidation):
		status = http.StatusUnprocessableEntity
	case dErrors.HasCode(err, dErrors.CodeInvalidInput), dErrors.HasCode(err, dErrors.CodeBadRequest):
		status = http.StatusBadRequest
	default:
		h.logger.ErrorContext(r.Context(), "sandbox request failed", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
