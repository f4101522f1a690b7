package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"veriflow/internal/platform/redis"
	dErrors "veriflow/pkg/domain-errors"
	"veriflow/pkg/platform/sentinel"
	"veriflow/pkg/requestcontext"
)

const keyPrefix = "sandbox:challenge:"

// RedisStore keeps challenges in Redis with the TTL enforced server-side.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Save(ctx context.Context, ch Challenge, ttl time.Duration) error {
	encoded, err := json.Marshal(ch)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode challenge")
	}
	if err := s.client.Set(ctx, keyPrefix+ch.Token, encoded, ttl).Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "save challenge")
	}
	return nil
}

func (s *RedisStore) Find(ctx context.Context, token string) (*Challenge, error) {
	raw, err := s.client.Get(ctx, keyPrefix+token).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load challenge")
	}

	var ch Challenge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode challenge")
	}
	// Redis evicts on its own clock; the request clock can be ahead of it
	// in tests, so the deadline is checked here too.
	if requestcontext.Now(ctx).After(ch.ExpiresAt) {
		return nil, sentinel.ErrExpired
	}
	return &ch, nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, keyPrefix+token).Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "delete challenge")
	}
	return nil
}
