// Package audit records flow lifecycle events: who started a flow, which
// challenges were issued, which requirements were satisfied, how the flow
// ended. Events are append-only and PII-light (identifiers are never
// recorded raw, only masked targets and kinds).
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"veriflow/pkg/requestcontext"
)

// Kind names a flow lifecycle event.
type Kind string

const (
	KindFlowStarted          Kind = "flow_started"
	KindIdentifyCompleted    Kind = "identify_completed"
	KindChallengeIssued      Kind = "challenge_issued"
	KindChallengeVerified    Kind = "challenge_verified"
	KindRequirementCompleted Kind = "requirement_completed"
	KindHandoffStarted       Kind = "handoff_started"
	KindHandoffSucceeded     Kind = "handoff_succeeded"
	KindHandoffFailed        Kind = "handoff_failed"
	KindHandoffCanceled      Kind = "handoff_canceled"
	KindValidationFailed     Kind = "validation_failed"
	KindFlowCompleted        Kind = "flow_completed"
	KindFlowReset            Kind = "flow_reset"
)

// Event is one audit record.
type Event struct {
	ID        string            `json:"id"`
	SessionID string            `json:"sessionId"`
	Kind      Kind              `json:"kind"`
	Timestamp time.Time         `json:"timestamp"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// Publisher accepts audit events. Implementations: MemoryStore for tests
// and single-process runs, KafkaPublisher for the event pipeline.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Store additionally supports reads; the memory and postgres stores
// implement it.
type Store interface {
	Publisher
	ListBySession(ctx context.Context, sessionID string) ([]Event, error)
}

// Log emits an audit event and mirrors it to the structured log. Audit is
// best-effort from the machines' perspective: a failing publisher must not
// fail a flow transition, so errors are logged and swallowed here.
func Log(ctx context.Context, logger *slog.Logger, publisher Publisher, kind Kind, attrs ...string) {
	event := Event{
		ID:        uuid.NewString(),
		SessionID: requestcontext.SessionID(ctx),
		Kind:      kind,
		Timestamp: requestcontext.Now(ctx),
	}
	if len(attrs) > 1 {
		event.Attrs = make(map[string]string, len(attrs)/2)
		for i := 0; i+1 < len(attrs); i += 2 {
			event.Attrs[attrs[i]] = attrs[i+1]
		}
	}

	if logger != nil {
		logArgs := make([]any, 0, len(attrs)+4)
		logArgs = append(logArgs, "audit_kind", string(kind), "session_id", event.SessionID)
		for i := 0; i+1 < len(attrs); i += 2 {
			logArgs = append(logArgs, attrs[i], attrs[i+1])
		}
		logger.InfoContext(ctx, "audit event", logArgs...)
	}

	if publisher == nil {
		return
	}
	if err := publisher.Emit(ctx, event); err != nil && logger != nil {
		logger.ErrorContext(ctx, "audit emit failed", "audit_kind", string(kind), "error", err)
	}
}
