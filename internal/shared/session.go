package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionRecord is the identity snapshot written at login. Role changes
// take effect at the next login, not mid-session.
type SessionRecord struct {
	UserGUID string    `json:"user_guid"`
	Email    string    `json:"email"`
	Roles    []string  `json:"roles"`
	TokenID  string    `json:"token_id"`
	IssuedAt time.Time `json:"issued_at"`
}

// SessionStore keeps bearer-token sessions in Redis so a token can be
// revoked before its expiry.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

// Save persists the record for the lifetime of the token.
func (s *SessionStore) Save(ctx context.Context, rec SessionRecord) error {
	if rec.UserGUID == "" || rec.TokenID == "" {
		return errors.New("session requires user guid and token id")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(rec.UserGUID, rec.TokenID), data, s.ttl).Err()
}

// Get loads the record, ErrNotFound when absent or expired.
func (s *SessionStore) Get(ctx context.Context, userGUID, tokenID string) (*SessionRecord, error) {
	data, err := s.client.Get(ctx, s.key(userGUID, tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var rec SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Delete revokes the session.
func (s *SessionStore) Delete(ctx context.Context, userGUID, tokenID string) error {
	return s.client.Del(ctx, s.key(userGUID, tokenID)).Err()
}

// TTL exposes the configured session lifetime.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

func (s *SessionStore) key(userGUID, tokenID string) string {
	return "auth:session:" + userGUID + ":" + tokenID
}
