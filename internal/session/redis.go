package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the sessions of one user in a hash keyed by session id
// with the expiry as unix seconds. Every new session pushes the TTL of the
// hash out to its own lifetime.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "workos-auth"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(collection string, userID uuid.UUID) string {
	return fmt.Sprintf("%s:sessions:%s:%s", s.prefix, collection, userID)
}

func (s *RedisStore) Create(ctx context.Context, collection string, userID uuid.UUID, maxAge time.Duration) (uuid.UUID, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	id := uuid.New()
	key := s.key(collection, userID)
	expiresAt := time.Now().Add(maxAge).Unix()

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, id.String(), expiresAt)
	pipe.Expire(ctx, key, maxAge)
	if _, err := pipe.Exec(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("store session: %w", err)
	}
	return id, nil
}

func (s *RedisStore) Exists(ctx context.Context, collection string, userID, sessionID uuid.UUID) (bool, error) {
	v, err := s.rdb.HGet(ctx, s.key(collection, userID), sessionID.String()).Result()
	switch {
	case err == nil: // OK
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, fmt.Errorf("get session: %w", err)
	}
	exp, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return false, fmt.Errorf("parse session expiry %q: %w", v, err)
	}
	return time.Now().Unix() < exp, nil
}

func (s *RedisStore) DeleteAllForUser(ctx context.Context, collection string, userID uuid.UUID) error {
	if err := s.rdb.Del(ctx, s.key(collection, userID)).Err(); err != nil {
		return fmt.Errorf("delete sessions for user: %w", err)
	}
	return nil
}
