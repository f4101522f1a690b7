package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"veriflow/internal/identityapi"
	"veriflow/internal/tenant"
	"veriflow/pkg/platform/sentinel"
)

// PostgresStore persists tenants in postgres. The config and requirement
// template are stored as JSONB since they are read as a unit.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tenants table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tenants (
			public_key TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			config JSONB NOT NULL,
			requirement_template JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("create tenants table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, t tenant.Tenant) error {
	config, err := json.Marshal(t.Config)
	if err != nil {
		return fmt.Errorf("encode tenant config: %w", err)
	}
	template, err := json.Marshal(t.RequirementTemplate)
	if err != nil {
		return fmt.Errorf("encode requirement template: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO tenants (public_key, name, config, requirement_template)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (public_key) DO UPDATE
		SET name = EXCLUDED.name,
		    config = EXCLUDED.config,
		    requirement_template = EXCLUDED.requirement_template,
		    updated_at = now()`,
		t.PublicKey, t.Name, config, template)
	if err != nil {
		return fmt.Errorf("save tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByPublicKey(ctx context.Context, publicKey string) (tenant.Tenant, error) {
	var (
		t        tenant.Tenant
		config   []byte
		template []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT public_key, name, config, requirement_template
		FROM tenants WHERE public_key = $1`,
		publicKey).Scan(&t.PublicKey, &t.Name, &config, &template)
	if errors.Is(err, pgx.ErrNoRows) {
		return tenant.Tenant{}, sentinel.ErrNotFound
	}
	if err != nil {
		return tenant.Tenant{}, fmt.Errorf("find tenant: %w", err)
	}

	if err := json.Unmarshal(config, &t.Config); err != nil {
		return tenant.Tenant{}, fmt.Errorf("decode tenant config: %w", err)
	}
	t.RequirementTemplate = []identityapi.Requirement{}
	if err := json.Unmarshal(template, &t.RequirementTemplate); err != nil {
		return tenant.Tenant{}, fmt.Errorf("decode requirement template: %w", err)
	}
	return t, nil
}
