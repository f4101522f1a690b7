package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresStore persists audit events in PostgreSQL. Attrs are stored as
// JSONB; events are append-only and never updated.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an existing database handle (lib/pq driver).
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres opens a connection with the lib/pq driver and returns a
// store over it.
func OpenPostgres(url string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Migrate creates the audit_events table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_events (
			id UUID PRIMARY KEY,
			session_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			attrs JSONB NOT NULL DEFAULT '{}'
		);
		CREATE INDEX IF NOT EXISTS audit_events_session_idx
			ON audit_events (session_id, occurred_at)`)
	if err != nil {
		return fmt.Errorf("create audit_events table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Emit(ctx context.Context, event Event) error {
	attrs, err := json.Marshal(event.Attrs)
	if err != nil {
		return fmt.Errorf("encode attrs: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, session_id, kind, occurred_at, attrs)
		VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.SessionID, string(event.Kind), event.Timestamp, attrs)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBySession(ctx context.Context, sessionID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, kind, occurred_at, attrs
		FROM audit_events
		WHERE session_id = $1
		ORDER BY occurred_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e     Event
			kind  string
			attrs []byte
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &kind, &e.Timestamp, &attrs); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Kind = Kind(kind)
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &e.Attrs); err != nil {
				return nil, fmt.Errorf("decode attrs: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
