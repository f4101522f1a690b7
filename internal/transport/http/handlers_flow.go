// Package httptransport is the thin HTTP layer of the flow service. It
// translates requests into flow machine events and renders snapshots; no
// business logic lives here.
package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"

	"veriflow/internal/flow"
	"veriflow/internal/identityapi"
	"veriflow/internal/session"
	dErrors "veriflow/pkg/domain-errors"
	"veriflow/pkg/platform/middleware/requesttime"
	"veriflow/pkg/requestcontext"
)

// FlowHandler exposes flow sessions over HTTP.
type FlowHandler struct {
	logger   *slog.Logger
	registry *session.Registry
	client   identityapi.Client
	flowOpts []flow.Option
}

// NewFlowHandler builds the handler. The flow options are applied to every
// machine it creates.
func NewFlowHandler(client identityapi.Client, registry *session.Registry, logger *slog.Logger, flowOpts ...flow.Option) *FlowHandler {
	return &FlowHandler{
		logger:   logger,
		registry: registry,
		client:   client,
		flowOpts: flowOpts,
	}
}

// Register registers the flow routes with the chi router.
func (h *FlowHandler) Register(r chi.Router) {
	flowRouter := chi.NewRouter()
	flowRouter.Use(requesttime.Middleware)
	flowRouter.Use(userAgentMiddleware)
	flowRouter.Use(timeoutMiddleware(30 * time.Second))
	flowRouter.Post("/", h.handleCreate)
	flowRouter.Get("/{sessionID}", h.handleGet)
	flowRouter.Post("/{sessionID}/events", h.handleEvent)
	flowRouter.Delete("/{sessionID}", h.handleDelete)

	r.Mount("/v1/flows", flowRouter)
}

type createFlowRequest struct {
	TenantPublicKey   string `json:"tenantPublicKey"`
	SandboxSuffix     string `json:"sandboxSuffix,omitempty"`
	BootstrapEmail    string `json:"bootstrapEmail,omitempty"`
	BootstrapPhone    string `json:"bootstrapPhone,omitempty"`
	RequirePhone      bool   `json:"requirePhone,omitempty"`
	AuthTokenOverride string `json:"authTokenOverride,omitempty"`
}

type flowResponse struct {
	SessionID string        `json:"sessionId"`
	Snapshot  flow.Snapshot `json:"snapshot"`
}

func (h *FlowHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := validateCreateFlow(req); err != nil {
		writeError(w, err)
		return
	}

	machine := flow.New(h.client, flow.Params{
		TenantPublicKey:   req.TenantPublicKey,
		SandboxSuffix:     req.SandboxSuffix,
		BootstrapEmail:    req.BootstrapEmail,
		BootstrapPhone:    req.BootstrapPhone,
		RequirePhone:      req.RequirePhone,
		AuthTokenOverride: req.AuthTokenOverride,
	}, h.flowOpts...)

	sess := h.registry.Create(ctx, machine)
	ctx = requestcontext.WithSessionID(ctx, sess.ID)

	if err := machine.Start(ctx); err != nil {
		h.registry.Delete(ctx, sess.ID)
		h.logger.ErrorContext(ctx, "flow start failed", "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, flowResponse{
		SessionID: sess.ID,
		Snapshot:  machine.Snapshot(ctx),
	})
}

func (h *FlowHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := h.registry.Get(ctx, chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, sentinelToDomain(err))
		return
	}
	writeJSON(w, http.StatusOK, flowResponse{
		SessionID: sess.ID,
		Snapshot:  sess.Machine.Snapshot(ctx),
	})
}

type eventRequest struct {
	Type string `json:"type"`

	Value         string                    `json:"value,omitempty"`
	Code          string                    `json:"code,omitempty"`
	ChallengeKind identityapi.ChallengeKind `json:"challengeKind,omitempty"`

	RequirementKind identityapi.RequirementKind `json:"requirementKind,omitempty"`
	Data            map[string]any              `json:"data,omitempty"`
}

func (h *FlowHandler) handleEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := h.registry.Get(ctx, chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, sentinelToDomain(err))
		return
	}
	ctx = requestcontext.WithSessionID(ctx, sess.ID)

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.dispatch(ctx, sess.Machine, req); err != nil {
		h.logger.WarnContext(ctx, "flow event rejected",
			"session_id", sess.ID,
			"event", req.Type,
			"error", err.Error(),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, flowResponse{
		SessionID: sess.ID,
		Snapshot:  sess.Machine.Snapshot(ctx),
	})
}

// dispatch routes one event to the machine that owns it. Stage mismatches
// surface as conflicts, not internals: the client raced a transition.
func (h *FlowHandler) dispatch(ctx context.Context, m *flow.Machine, req eventRequest) error {
	switch req.Type {
	case "submitIdentifier":
		id := m.Identify()
		if id == nil {
			return dErrors.New(dErrors.CodeConflict, "no identify stage active")
		}
		return id.SubmitIdentifier(ctx, req.Value)
	case "submitCode":
		id := m.Identify()
		if id == nil {
			return dErrors.New(dErrors.CodeConflict, "no identify stage active")
		}
		return id.SubmitCode(ctx, req.Code)
	case "resendChallenge":
		id := m.Identify()
		if id == nil {
			return dErrors.New(dErrors.CodeConflict, "no identify stage active")
		}
		return id.Resend(ctx)
	case "chooseChallenge":
		id := m.Identify()
		if id == nil {
			return dErrors.New(dErrors.CodeConflict, "no identify stage active")
		}
		return id.ChooseChallenge(ctx, req.ChallengeKind)
	case "completeRequirement":
		ob := m.Onboarding()
		if ob == nil {
			return dErrors.New(dErrors.CodeConflict, "no onboarding stage active")
		}
		return ob.CompleteRequirement(ctx, req.RequirementKind, req.Data)
	case "startHandoff":
		ob := m.Onboarding()
		if ob == nil {
			return dErrors.New(dErrors.CodeConflict, "no onboarding stage active")
		}
		// The poller outlives this request; detach it from the request
		// deadline while keeping the context values.
		return ob.StartHandoff(context.WithoutCancel(ctx), noopTab{})
	case "cancelHandoff":
		ob := m.Onboarding()
		if ob == nil {
			return dErrors.New(dErrors.CodeConflict, "no onboarding stage active")
		}
		ob.CancelHandoff(ctx)
		return nil
	case "validate":
		ob := m.Onboarding()
		if ob == nil {
			return dErrors.New(dErrors.CodeConflict, "no onboarding stage active")
		}
		return ob.Validate(ctx)
	case "reset":
		m.Reset(ctx)
		return nil
	}
	return dErrors.Newf(dErrors.CodeInvalidInput, "unknown event type %q", req.Type)
}

func (h *FlowHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.registry.Delete(ctx, chi.URLParam(r, "sessionID"))
	w.WriteHeader(http.StatusNoContent)
}

func validateCreateFlow(req createFlowRequest) error {
	if !govalidator.StringLength(req.TenantPublicKey, "1", "100") {
		return dErrors.New(dErrors.CodeInvalidInput, "tenantPublicKey is required")
	}
	if req.BootstrapEmail != "" && !govalidator.IsEmail(req.BootstrapEmail) {
		return dErrors.New(dErrors.CodeInvalidInput, "bootstrapEmail is not a valid email address")
	}
	if len(req.SandboxSuffix) > 64 {
		return dErrors.New(dErrors.CodeInvalidInput, "sandboxSuffix too long")
	}
	return nil
}

// noopTab stands in for the capture tab when the embedder manages the
// window itself; closing it is a no-op on the server side.
type noopTab struct{}

func (noopTab) Close() error { return nil }
