// Package handoff stores device hand-off sessions for the sandbox API.
// Each authenticated user has at most one active hand-off; sandbox
// controls advance its status through the dev endpoint.
package handoff

import (
	"context"

	"veriflow/internal/identityapi"
)

// Session is one hand-off session.
type Session struct {
	UserID string                    `json:"userId"`
	Status identityapi.HandoffStatus `json:"status"`
}

// Store persists hand-off sessions keyed by user.
type Store interface {
	// Get returns the user's session, or sentinel.ErrNotFound.
	Get(ctx context.Context, userID string) (*Session, error)
	// Set creates or replaces the user's session.
	Set(ctx context.Context, session Session) error
}
