//go:build integration

package challenge_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"veriflow/internal/identityapi"
	"veriflow/internal/sandbox/store/challenge"
	"veriflow/pkg/platform/sentinel"
	"veriflow/pkg/requestcontext"
	"veriflow/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *challenge.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = challenge.NewRedisStore(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) testChallenge(token string) challenge.Challenge {
	return challenge.Challenge{
		Token:           token,
		CodeHash:        []byte("$2a$10$fakehashfortests"),
		Kind:            identityapi.ChallengeKindSMS,
		IdentifyType:    identityapi.IdentifyTypeEmail,
		Identifier:      "jane@acme.com",
		TenantPublicKey: "pk_itest_1",
		UserID:          "user-1",
		ExpiresAt:       time.Now().Add(10 * time.Minute),
	}
}

func (s *RedisStoreSuite) TestSaveAndFind() {
	ctx := context.Background()
	ch := s.testChallenge("chal-1")
	s.Require().NoError(s.store.Save(ctx, ch, 10*time.Minute))

	got, err := s.store.Find(ctx, "chal-1")
	s.Require().NoError(err)
	s.Equal(ch.Identifier, got.Identifier)
	s.Equal(ch.CodeHash, got.CodeHash)
	s.Equal(identityapi.ChallengeKindSMS, got.Kind)
	s.WithinDuration(ch.ExpiresAt, got.ExpiresAt, time.Second)
}

func (s *RedisStoreSuite) TestFindUnknown() {
	_, err := s.store.Find(context.Background(), "chal-missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestFindExpired() {
	ctx := context.Background()
	ch := s.testChallenge("chal-1")
	s.Require().NoError(s.store.Save(ctx, ch, 10*time.Minute))

	later := requestcontext.WithTime(ctx, ch.ExpiresAt.Add(time.Minute))
	_, err := s.store.Find(later, "chal-1")
	s.ErrorIs(err, sentinel.ErrExpired)
}

func (s *RedisStoreSuite) TestDeleteConsumes() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, s.testChallenge("chal-1"), 10*time.Minute))
	s.Require().NoError(s.store.Delete(ctx, "chal-1"))

	_, err := s.store.Find(ctx, "chal-1")
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.NoError(s.store.Delete(ctx, "chal-1"), "deleting an unknown token is a no-op")
}
