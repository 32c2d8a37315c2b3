package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seahkrah/SmartAttend-sub012/internal/domain"
)

// Session the verified identity assertion the auth service places in redis
// at login. This service only reads it; issuing sessions is out of scope
// except for the dev/test seed helper.
type Session struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// SessionStore token -> session lookup over KV. Tokens are opaque; the
// caller never learns why a lookup failed beyond "unauthenticated".
type SessionStore struct {
	kv        KV
	keyPrefix string
	ttl       time.Duration
}

func NewSessionStore(kv KV, keyPrefix string, ttl time.Duration) *SessionStore {
	return &SessionStore{kv: kv, keyPrefix: keyPrefix, ttl: ttl}
}

// Lookup resolves a bearer token to its session and slides the TTL.
func (s *SessionStore) Lookup(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, domain.ErrUnauthenticated
	}
	raw, err := s.kv.Get(ctx, s.keyPrefix+token)
	if err != nil {
		if err == ErrMiss {
			return nil, domain.ErrUnauthenticated
		}
		return nil, fmt.Errorf("session lookup: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("corrupt session payload: %w", err)
	}
	// Sliding expiration; best-effort, a failed EXPIRE never fails the request.
	_ = s.kv.Expire(ctx, s.keyPrefix+token, s.ttl)
	return &sess, nil
}

// Seed writes a session and returns its token. Dev bootstrap and tests
// only; production tokens come from the auth service.
func (s *SessionStore) Seed(ctx context.Context, sess Session) (string, error) {
	token := uuid.NewString()
	raw, err := json.Marshal(sess)
	if err != nil {
		return "", err
	}
	if err := s.kv.Set(ctx, s.keyPrefix+token, string(raw), s.ttl); err != nil {
		return "", fmt.Errorf("session seed: %w", err)
	}
	return token, nil
}

// Revoke deletes a session token.
func (s *SessionStore) Revoke(ctx context.Context, token string) error {
	return s.kv.Del(ctx, s.keyPrefix+token)
}
