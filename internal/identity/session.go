package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session id is unknown or expired.
var ErrSessionNotFound = errors.New("session not found")

// SessionCookie is the cookie name carrying the web session id.
const SessionCookie = "chronicle_session"

// SessionStore keeps server-side web sessions in Redis. The cookie holds
// only an opaque id; Redis maps it to the account and expires it. A
// per-account index set lets RevokeAll destroy every session at once.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore creates a SessionStore with the given session lifetime.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &SessionStore{client: client, ttl: ttl}
}

func sessionKey(sid string) string      { return "session:" + sid }
func accountSetKey(id uuid.UUID) string { return "account_sessions:" + id.String() }

// Create starts a session for the account and returns the opaque id for
// the cookie.
func (s *SessionStore) Create(ctx context.Context, accountID uuid.UUID) (string, error) {
	sid, err := NewOpaqueToken()
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(sid), accountID.String(), s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	if err := s.client.SAdd(ctx, accountSetKey(accountID), sid).Err(); err != nil {
		return "", fmt.Errorf("index session: %w", err)
	}
	// Keep the index from outliving its sessions forever.
	s.client.Expire(ctx, accountSetKey(accountID), s.ttl)
	return sid, nil
}

// Get resolves a session id to its account.
func (s *SessionStore) Get(ctx context.Context, sid string) (uuid.UUID, error) {
	val, err := s.client.Get(ctx, sessionKey(sid)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, ErrSessionNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("load session: %w", err)
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, fmt.Errorf("corrupt session value: %w", err)
	}
	return id, nil
}

// Destroy ends a single session (logout).
func (s *SessionStore) Destroy(ctx context.Context, sid string) error {
	accountID, err := s.Get(ctx, sid)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}
	if err := s.client.Del(ctx, sessionKey(sid)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return s.client.SRem(ctx, accountSetKey(accountID), sid).Err()
}

// DestroyAll ends every session for the account (global logout).
func (s *SessionStore) DestroyAll(ctx context.Context, accountID uuid.UUID) error {
	sids, err := s.client.SMembers(ctx, accountSetKey(accountID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("list sessions: %w", err)
	}
	for _, sid := range sids {
		if err := s.client.Del(ctx, sessionKey(sid)).Err(); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
	}
	return s.client.Del(ctx, accountSetKey(accountID)).Err()
}
