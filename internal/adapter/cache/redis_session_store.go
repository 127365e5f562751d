// Package cache provides Redis-backed storage for sessions and OAuth login
// state. Session payloads are sealed with AES-256-GCM before they touch
// Redis, so a leaked dump never exposes bearer tokens.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lurkd/lurkd/internal/domain"
)

const (
	sessionPrefix = "session:"
	statePrefix   = "oauth:state:"
)

// RedisSessionStore persists sealed sessions with TTL.
type RedisSessionStore struct {
	client redis.UniversalClient
	key    []byte
	ttl    time.Duration
}

// NewRedisSessionStore constructs a session store sealing payloads under key.
func NewRedisSessionStore(client redis.UniversalClient, key []byte, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, key: key, ttl: ttl}
}

// Save seals and persists the session under its id.
func (s *RedisSessionStore) Save(ctx context.Context, sess *domain.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	sealed, err := seal(s.key, payload)
	if err != nil {
		return fmt.Errorf("seal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionPrefix+sess.ID, sealed, s.ttl).Err(); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// Get loads and unseals a session by id. A missing key returns (nil, nil).
func (s *RedisSessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	sealed, err := s.client.Get(ctx, sessionPrefix+id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	payload, err := open(s.key, sealed)
	if err != nil {
		// Tampered or re-keyed payloads are treated as absent, not fatal.
		return nil, nil
	}
	var sess domain.Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

// Delete removes a session; deleting an absent session is not an error.
func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, sessionPrefix+id).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// RedisStateStore holds short-lived OAuth login state tokens.
type RedisStateStore struct {
	client redis.UniversalClient
}

// NewRedisStateStore constructs a Redis-backed login state store.
func NewRedisStateStore(client redis.UniversalClient) *RedisStateStore {
	return &RedisStateStore{client: client}
}

// SaveState records the state token for the duration of the login handshake.
func (s *RedisStateStore) SaveState(ctx context.Context, state string, ttl time.Duration) error {
	if err := s.client.Set(ctx, statePrefix+state, "1", ttl).Err(); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// TakeState consumes the state token, reporting whether it was present.
// Consumption is atomic so a state value can only be redeemed once.
func (s *RedisStateStore) TakeState(ctx context.Context, state string) (bool, error) {
	n, err := s.client.Del(ctx, statePrefix+state).Result()
	if err != nil && err != redis.Nil {
		return false, fmt.Errorf("consume state: %w", err)
	}
	return n > 0, nil
}
