package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionStore verifies bearer tokens against sessions kept in Redis. The
// auth provider writes a session entry when it issues a token; this service
// only reads them.
type SessionStore struct {
	redis     redis.Cmdable
	keyPrefix string
	ttl       time.Duration
}

// NewSessionStore creates a Redis-backed session store
func NewSessionStore(client redis.Cmdable, keyPrefix string, ttl time.Duration) *SessionStore {
	if keyPrefix == "" {
		keyPrefix = "session:"
	}
	return &SessionStore{
		redis:     client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

// Verify resolves a token to the user ID it was issued for.
func (s *SessionStore) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}

	userID, err := s.redis.Get(ctx, s.keyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("failed to look up session: %w", err)
	}

	return userID, nil
}

// Put registers a session for a token. Used by tests and local tooling; the
// production writer is the auth provider.
func (s *SessionStore) Put(ctx context.Context, token, userID string) error {
	if err := s.redis.Set(ctx, s.keyPrefix+token, userID, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Revoke removes a session, invalidating its token immediately.
func (s *SessionStore) Revoke(ctx context.Context, token string) error {
	if err := s.redis.Del(ctx, s.keyPrefix+token).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}
