// Package challenge stores issued one-time challenges for the sandbox API.
package challenge

import (
	"context"
	"time"

	"veriflow/internal/identityapi"
)

// Challenge is one issued challenge. The code is stored as a bcrypt hash;
// the plaintext leaves the process only through the delivery channel.
type Challenge struct {
	Token           string                    `json:"token"`
	CodeHash        []byte                    `json:"codeHash"`
	Kind            identityapi.ChallengeKind `json:"kind"`
	IdentifyType    identityapi.IdentifyType  `json:"identifyType"`
	Identifier      string                    `json:"identifier"`
	TenantPublicKey string                    `json:"tenantPublicKey"`
	UserID          string                    `json:"userId"`
	ExpiresAt       time.Time                 `json:"expiresAt"`
}

// Store persists challenges until they are consumed or expire.
type Store interface {
	// Save stores the challenge under its token for the given TTL.
	Save(ctx context.Context, ch Challenge, ttl time.Duration) error
	// Find returns the challenge, sentinel.ErrNotFound when absent, or
	// sentinel.ErrExpired when past its deadline.
	Find(ctx context.Context, token string) (*Challenge, error)
	// Delete removes a consumed challenge. Unknown tokens are a no-op.
	Delete(ctx context.Context, token string) error
}
