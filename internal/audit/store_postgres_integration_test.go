//go:build integration

package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"veriflow/internal/audit"
	"veriflow/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *audit.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	store, err := audit.OpenPostgres(s.postgres.URL)
	s.Require().NoError(err)
	s.store = store
	s.Require().NoError(s.store.Migrate(context.Background()))
}

func (s *PostgresStoreSuite) TearDownSuite() {
	if s.store != nil {
		s.NoError(s.store.Close())
	}
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "audit_events"))
}

func (s *PostgresStoreSuite) TestEmitAndList() {
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	events := []audit.Event{
		{ID: "evt-1", SessionID: "sess-1", Kind: audit.KindFlowStarted, Timestamp: base},
		{ID: "evt-2", SessionID: "sess-1", Kind: audit.KindChallengeIssued, Timestamp: base.Add(time.Second), Attrs: map[string]string{"kind": "sms"}},
		{ID: "evt-3", SessionID: "sess-2", Kind: audit.KindFlowStarted, Timestamp: base.Add(2 * time.Second)},
	}
	for _, e := range events {
		s.Require().NoError(s.store.Emit(ctx, e))
	}

	got, err := s.store.ListBySession(ctx, "sess-1")
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(audit.KindFlowStarted, got[0].Kind)
	s.Equal(audit.KindChallengeIssued, got[1].Kind)
	s.Equal("sms", got[1].Attrs["kind"])
	s.True(got[0].Timestamp.Equal(base))
}

func (s *PostgresStoreSuite) TestListUnknownSession() {
	got, err := s.store.ListBySession(context.Background(), "sess-missing")
	s.Require().NoError(err)
	s.Empty(got)
}
