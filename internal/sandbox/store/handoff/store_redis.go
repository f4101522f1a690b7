package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"veriflow/internal/platform/redis"
	dErrors "veriflow/pkg/domain-errors"
	"veriflow/pkg/platform/sentinel"
)

const (
	keyPrefix  = "sandbox:handoff:"
	sessionTTL = 24 * time.Hour
)

// RedisStore keeps hand-off sessions in Redis so restarts do not lose an
// in-progress capture.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, userID string) (*Session, error) {
	raw, err := s.client.Get(ctx, keyPrefix+userID).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load hand-off session")
	}

	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode hand-off session")
	}
	return &session, nil
}

func (s *RedisStore) Set(ctx context.Context, session Session) error {
	encoded, err := json.Marshal(session)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode hand-off session")
	}
	if err := s.client.Set(ctx, keyPrefix+session.UserID, encoded, sessionTTL).Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "save hand-off session")
	}
	return nil
}
