package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/miq-labs/miq-be/internal/shared"
)

// SessionStore persists server side session records keyed by user and token ID.
type SessionStore interface {
	Save(ctx context.Context, record shared.SessionRecord) error
	Get(ctx context.Context, userGUID, tokenID string) (*shared.SessionRecord, error)
	Delete(ctx context.Context, userGUID, tokenID string) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Observer reports login outcomes to the metrics layer.
type Observer interface {
	ObserveLogin(outcome string)
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	tokens   *TokenManager
	sessions SessionStore
	audit    AuditPort
	observer Observer
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenManager, sessions SessionStore, audit AuditPort, observer Observer) *Service {
	return &Service{repo: repo, tokens: tokens, sessions: sessions, audit: audit, observer: observer}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates the credentials, mints an access token and registers
// the session record that lets the token be revoked before it expires.
// Roles are snapshotted into the session at this point.
func (s *Service) Login(ctx context.Context, email, password string) (*Token, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		s.observe("denied")
		return nil, err
	}
	signed, claims, err := s.tokens.Mint(user)
	if err != nil {
		s.observe("error")
		return nil, fmt.Errorf("mint token: %w", err)
	}
	record := shared.SessionRecord{
		UserGUID: user.GUID,
		Email:    user.Email,
		Roles:    user.Roles,
		TokenID:  claims.ID,
		IssuedAt: claims.IssuedAt.Time,
	}
	if err := s.sessions.Save(ctx, record); err != nil {
		s.observe("error")
		return nil, fmt.Errorf("register session: %w", err)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{Actor: user.GUID, Action: "user.login", Entity: "user", EntityID: user.GUID})
	}
	s.observe("granted")
	return &Token{AccessToken: signed, TokenType: "bearer", ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Identify resolves a bearer token into the identity it was minted for.
// Tokens that fail verification or whose session record is gone resolve to
// ErrNotAuthenticated; session store failures are returned as-is so the
// caller can decide how to degrade.
func (s *Service) Identify(ctx context.Context, raw string) (*shared.Identity, error) {
	claims, err := s.tokens.Verify(raw)
	if err != nil {
		return nil, shared.ErrNotAuthenticated
	}
	record, err := s.sessions.Get(ctx, claims.Subject, claims.ID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrNotAuthenticated
		}
		return nil, err
	}
	return &shared.Identity{
		GUID:    record.UserGUID,
		Email:   record.Email,
		Roles:   record.Roles,
		TokenID: record.TokenID,
	}, nil
}

// Logout revokes the session behind the presented identity.
func (s *Service) Logout(ctx context.Context, id *shared.Identity) error {
	if id == nil || id.GUID == "" || id.TokenID == "" {
		return shared.ErrNotAuthenticated
	}
	if err := s.sessions.Delete(ctx, id.GUID, id.TokenID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{Actor: id.GUID, Action: "user.logout", Entity: "user", EntityID: id.GUID})
	}
	return nil
}

func (s *Service) observe(outcome string) {
	if s.observer != nil {
		s.observer.ObserveLogin(outcome)
	}
}
