package roles

import (
	"context"

	"github.com/miq-labs/miq-be/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetByName(ctx context.Context, name string) (*Role, error)
	Assign(ctx context.Context, userGUID, role string) error
	Revoke(ctx context.Context, userGUID, role string) error
}

// PermissionSource resolves permissions for role names.
type PermissionSource interface {
	Permissions(roles []string) []string
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CacheBumper invalidates cached user listings after assignment changes.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// Service handles role management logic.
type Service struct {
	repo  RepositoryPort
	perms PermissionSource
	audit AuditPort
	cache CacheBumper
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, perms PermissionSource, audit AuditPort, cache CacheBumper) *Service {
	return &Service{repo: repo, perms: perms, audit: audit, cache: cache}
}

// List returns all roles decorated with their granted permissions.
func (s *Service) List(ctx context.Context) ([]Role, error) {
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	for i := range roles {
		roles[i].Permissions = s.perms.Permissions([]string{roles[i].Name})
	}
	return roles, nil
}

// Assign grants a role to a user and invalidates cached listings.
func (s *Service) Assign(ctx context.Context, actor, userGUID, role string) error {
	if err := s.repo.Assign(ctx, userGUID, role); err != nil {
		return err
	}
	s.record(ctx, actor, "role.assigned", userGUID, role)
	s.bump(ctx)
	return nil
}

// Revoke removes a role from a user and invalidates cached listings.
func (s *Service) Revoke(ctx context.Context, actor, userGUID, role string) error {
	if err := s.repo.Revoke(ctx, userGUID, role); err != nil {
		return err
	}
	s.record(ctx, actor, "role.revoked", userGUID, role)
	s.bump(ctx)
	return nil
}

func (s *Service) record(ctx context.Context, actor, action, userGUID, role string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "user",
		EntityID: userGUID,
		Meta:     map[string]any{"role": role},
	})
}

func (s *Service) bump(ctx context.Context) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Bump(ctx)
}
