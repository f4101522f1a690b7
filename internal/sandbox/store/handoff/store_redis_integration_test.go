//go:build integration

package handoff_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"veriflow/internal/identityapi"
	"veriflow/internal/sandbox/store/handoff"
	"veriflow/pkg/platform/sentinel"
	"veriflow/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *handoff.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = handoff.NewRedisStore(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestSetAndGet() {
	ctx := context.Background()
	s.Require().NoError(s.store.Set(ctx, handoff.Session{UserID: "user-1", Status: identityapi.HandoffPending}))

	got, err := s.store.Get(ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(identityapi.HandoffPending, got.Status)
}

func (s *RedisStoreSuite) TestSetOverwrites() {
	ctx := context.Background()
	s.Require().NoError(s.store.Set(ctx, handoff.Session{UserID: "user-1", Status: identityapi.HandoffPending}))
	s.Require().NoError(s.store.Set(ctx, handoff.Session{UserID: "user-1", Status: identityapi.HandoffCompleted}))

	got, err := s.store.Get(ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(identityapi.HandoffCompleted, got.Status)
}

func (s *RedisStoreSuite) TestGetUnknown() {
	_, err := s.store.Get(context.Background(), "user-missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
