package store

import (
	"context"

	"veriflow/internal/tenant"
)

// Store persists tenants keyed by public key. Memory and postgres
// implementations exist; sandboxd picks one at startup.
type Store interface {
	Save(ctx context.Context, t tenant.Tenant) error
	FindByPublicKey(ctx context.Context, publicKey string) (tenant.Tenant, error)
}
