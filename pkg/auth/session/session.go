package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	pkgredis "github.com/novavida/novavida-backend/pkg/redis"
)

// AccessSessionChecker reports whether the session behind a token jti is still live.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

// NewAccessID produces the jti recorded both in the token and in the session store.
func NewAccessID() string {
	return uuid.NewString()
}

// RedisStore tracks live access sessions keyed by jti so tokens can be revoked
// before they expire.
type RedisStore struct {
	client *pkgredis.Client
	ttl    time.Duration
}

func NewRedisStore(client *pkgredis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) StoreSession(ctx context.Context, accessID string) error {
	return s.client.Set(ctx, s.client.AccessSessionKey(accessID), "1", s.ttl)
}

func (s *RedisStore) HasSession(ctx context.Context, accessID string) (bool, error) {
	value, err := s.client.Get(ctx, s.client.AccessSessionKey(accessID))
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return value != "", nil
}

func (s *RedisStore) RevokeSession(ctx context.Context, accessID string) error {
	return s.client.Del(ctx, s.client.AccessSessionKey(accessID))
}
