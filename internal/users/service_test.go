package users

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/miq-labs/miq-be/internal/shared"
)

type mockRepository struct {
	users     map[string]*User
	listCalls int
	createErr error
	listErr   error
}

func newMockRepository() *mockRepository {
	return &mockRepository{users: make(map[string]*User)}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &mockTx{repo: m})
}

func (m *mockRepository) List(ctx context.Context, params shared.ListParams) ([]User, int, error) {
	m.listCalls++
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var out []User
	for _, u := range m.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	total := len(out)
	if params.Offset >= len(out) {
		return nil, total, nil
	}
	out = out[params.Offset:]
	if len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, total, nil
}

func (m *mockRepository) GetByGUID(ctx context.Context, guid string) (*User, error) {
	u, ok := m.users[guid]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *mockRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *mockRepository) Create(ctx context.Context, user *User) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, u := range m.users {
		if u.Email == user.Email {
			return shared.ErrDuplicate
		}
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	copied := *user
	m.users[user.GUID] = &copied
	return nil
}

func (m *mockRepository) Delete(ctx context.Context, guid string) error {
	if _, ok := m.users[guid]; !ok {
		return shared.ErrNotFound
	}
	delete(m.users, guid)
	return nil
}

type mockTx struct {
	repo *mockRepository
}

func (t *mockTx) GetForUpdate(ctx context.Context, guid string) (*User, error) {
	return t.repo.GetByGUID(ctx, guid)
}

func (t *mockTx) Save(ctx context.Context, user *User) error {
	if _, ok := t.repo.users[user.GUID]; !ok {
		return shared.ErrNotFound
	}
	user.UpdatedAt = time.Now()
	copied := *user
	t.repo.users[user.GUID] = &copied
	return nil
}

func newTestService(repo RepositoryPort) *Service {
	return NewService(repo, NewCache(nil, 0, nil), nil)
}

func TestCreateUserHashesPasswordAndNormalizesEmail(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)

	user, err := svc.Create(context.Background(), CreateUserInput{
		FirstName: "  Jane ",
		LastName:  "Doe",
		Email:     "Jane.Doe@MIQ.dev",
		Password:  "Str0ng!pass",
	})
	require.NoError(t, err)

	assert.NoError(t, uuid.Validate(user.GUID))
	assert.Equal(t, "Jane", user.FirstName)
	assert.Equal(t, "jane.doe@miq.dev", user.Email)
	assert.NotEqual(t, "Str0ng!pass", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("Str0ng!pass")))
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)

	input := CreateUserInput{FirstName: "Jane", LastName: "Doe", Email: "jane@miq.dev", Password: "Str0ng!pass"}
	_, err := svc.Create(context.Background(), input)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), input)
	assert.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestUpdateUserAppliesOnlyProvidedFields(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)

	user, err := svc.Create(context.Background(), CreateUserInput{
		FirstName: "Jane", LastName: "Doe", Email: "jane@miq.dev", Password: "Str0ng!pass",
	})
	require.NoError(t, err)

	first := "Janet"
	city := "Lyon"
	updated, err := svc.Update(context.Background(), user.GUID, user.GUID, UpdateUserInput{
		FirstName: &first,
		City:      &city,
	})
	require.NoError(t, err)

	assert.Equal(t, "Janet", updated.FirstName)
	require.NotNil(t, updated.City)
	assert.Equal(t, "Lyon", *updated.City)
	assert.Equal(t, "Doe", updated.LastName)
	assert.Equal(t, "jane@miq.dev", updated.Email)
}

func TestUpdateUserNotFound(t *testing.T) {
	svc := newTestService(newMockRepository())

	first := "Janet"
	_, err := svc.Update(context.Background(), "actor", uuid.New().String(), UpdateUserInput{FirstName: &first})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteUser(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)

	user, err := svc.Create(context.Background(), CreateUserInput{
		FirstName: "Jane", LastName: "Doe", Email: "jane@miq.dev", Password: "Str0ng!pass",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), user.GUID, user.GUID))
	assert.ErrorIs(t, svc.Delete(context.Background(), user.GUID, user.GUID), shared.ErrNotFound)
}

func TestListServesFromCacheUntilBump(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := newMockRepository()
	cache := NewCache(client, time.Minute, nil)
	svc := NewService(repo, cache, nil)

	_, err := svc.Create(context.Background(), CreateUserInput{
		FirstName: "Jane", LastName: "Doe", Email: "jane@miq.dev", Password: "Str0ng!pass",
	})
	require.NoError(t, err)
	callsAfterCreate := repo.listCalls

	users, meta, err := svc.List(context.Background(), shared.ListParams{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, meta.Total)
	assert.Equal(t, callsAfterCreate+1, repo.listCalls)

	// Second read is a cache hit.
	_, _, err = svc.List(context.Background(), shared.ListParams{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, callsAfterCreate+1, repo.listCalls)

	// Writes bump the version and the next read reloads.
	_, err = svc.Create(context.Background(), CreateUserInput{
		FirstName: "John", LastName: "Doe", Email: "john@miq.dev", Password: "Str0ng!pass",
	})
	require.NoError(t, err)

	users, meta, err = svc.List(context.Background(), shared.ListParams{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, 2, meta.Total)
	assert.Equal(t, callsAfterCreate+2, repo.listCalls)
}

func TestNormalizeEmail(t *testing.T) {
	cases := map[string]string{
		" Jane@MIQ.dev ":    "jane@miq.dev",
		"UPPER@EXAMPLE.COM": "upper@example.com",
		"already@lower.dev": "already@lower.dev",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeEmail(in))
	}
}
