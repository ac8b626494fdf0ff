package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/miq-labs/miq-be/internal/shared"
)

// emailCaser folds emails case-insensitively, beyond plain ASCII.
var emailCaser = cases.Lower(language.Und)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, params shared.ListParams) ([]User, int, error)
	GetByGUID(ctx context.Context, guid string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, user *User) error
	Delete(ctx context.Context, guid string) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles user business logic.
type Service struct {
	repo  RepositoryPort
	cache *Cache
	audit AuditPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, cache *Cache, audit AuditPort) *Service {
	return &Service{repo: repo, cache: cache, audit: audit}
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return emailCaser.String(strings.TrimSpace(email))
}

// List returns one page of users, served from the versioned cache.
func (s *Service) List(ctx context.Context, params shared.ListParams) ([]User, shared.Pagination, error) {
	params = params.Normalize()

	type payload struct {
		Users []User            `json:"users"`
		Meta  shared.Pagination `json:"meta"`
	}

	key, err := s.cache.BuildKey(ctx, keyList(params.Offset, params.Limit))
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("build cache key: %w", err)
	}
	var out payload
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
		users, total, err := s.repo.List(ctx, params)
		if err != nil {
			return nil, err
		}
		return payload{Users: users, Meta: shared.NewPagination(params, total)}, nil
	})
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return out.Users, out.Meta, nil
}

// Get fetches one user by GUID.
func (s *Service) Get(ctx context.Context, guid string) (*User, error) {
	return s.repo.GetByGUID(ctx, guid)
}

// Create registers a new account. The email is stored lower-cased so
// lookups stay case-insensitive.
func (s *Service) Create(ctx context.Context, input CreateUserInput) (*User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &User{
		GUID:         uuid.New().String(),
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Email:        NormalizeEmail(input.Email),
		PasswordHash: string(hashed),
		Address:      input.Address,
		PosteCode:    input.PosteCode,
		City:         input.City,
		County:       input.County,
		Country:      input.Country,
		Age:          input.Age,
		DateOfBirth:  input.DateOfBirth,
		Roles:        []string{},
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	s.record(ctx, user.GUID, "user.created", user.GUID)
	s.bump(ctx)
	return user, nil
}

// Update applies the PATCH fields under a row lock and returns the
// fresh row.
func (s *Service) Update(ctx context.Context, actor, guid string, input UpdateUserInput) (*User, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		user, err := tx.GetForUpdate(ctx, guid)
		if err != nil {
			return err
		}
		applyUpdate(user, input)
		return tx.Save(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	user, err := s.repo.GetByGUID(ctx, guid)
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor, "user.updated", guid)
	s.bump(ctx)
	return user, nil
}

// Delete removes the account.
func (s *Service) Delete(ctx context.Context, actor, guid string) error {
	if err := s.repo.Delete(ctx, guid); err != nil {
		return err
	}
	s.record(ctx, actor, "user.deleted", guid)
	s.bump(ctx)
	return nil
}

func applyUpdate(user *User, input UpdateUserInput) {
	if input.FirstName != nil {
		user.FirstName = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil {
		user.LastName = strings.TrimSpace(*input.LastName)
	}
	if input.Address != nil {
		user.Address = input.Address
	}
	if input.PosteCode != nil {
		user.PosteCode = input.PosteCode
	}
	if input.City != nil {
		user.City = input.City
	}
	if input.County != nil {
		user.County = input.County
	}
	if input.Country != nil {
		user.Country = input.Country
	}
	if input.Age != nil {
		user.Age = input.Age
	}
	if input.DateOfBirth != nil {
		user.DateOfBirth = input.DateOfBirth
	}
}

func (s *Service) record(ctx context.Context, actor, action, entityID string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Actor: actor, Action: action, Entity: "user", EntityID: entityID})
}

func (s *Service) bump(ctx context.Context) {
	_ = s.cache.Bump(ctx)
}
