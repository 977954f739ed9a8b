package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists session principals by session ID.
type Store interface {
	Save(ctx context.Context, sessionID string, principal Principal, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (*Principal, error)
	Delete(ctx context.Context, sessionID string) error
}

const keyPrefix = "identity:session:"

// RedisStore implements Store backed by Redis.
type RedisStore struct {
	client redis.UniversalClient
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore constructs a Redis-backed session store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Save stores the encoded principal with TTL.
func (s *RedisStore) Save(ctx context.Context, sessionID string, principal Principal, ttl time.Duration) error {
	payload, err := json.Marshal(principal)
	if err != nil {
		return fmt.Errorf("marshal principal: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+sessionID, payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// Get loads and decodes the principal. A missing or expired session
// yields (nil, nil).
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Principal, error) {
	bytes, err := s.client.Get(ctx, keyPrefix+sessionID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	var principal Principal
	if err := json.Unmarshal(bytes, &principal); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &principal, nil
}

// Delete removes the persisted session.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, keyPrefix+sessionID).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
