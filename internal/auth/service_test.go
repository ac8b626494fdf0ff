package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/miq-labs/miq-be/internal/shared"
)

type mockRepository struct {
	user *User
	err  error
}

func (m *mockRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.user == nil || m.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return m.user, nil
}

func testUser(t *testing.T, password string) *User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &User{
		GUID:         "0c9c3f51-2f7e-4f0e-9e0c-0db6f7f3a1d2",
		Email:        "jane@miq.dev",
		PasswordHash: string(hashed),
		Roles:        []string{"admin"},
	}
}

func newTestService(t *testing.T, repo Repository) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionStore(client, time.Hour)
	tokens := NewTokenManager("test-secret", "miq-test", time.Hour)
	return NewService(repo, tokens, sessions, nil, nil)
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	user := testUser(t, "correct horse")
	svc := newTestService(t, &mockRepository{user: user})

	token, err := svc.Login(context.Background(), user.Email, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "bearer", token.TokenType)
	assert.True(t, token.ExpiresAt.After(time.Now()))

	id, err := svc.Identify(context.Background(), token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.GUID, id.GUID)
	assert.Equal(t, user.Email, id.Email)
	assert.Equal(t, []string{"admin"}, id.Roles)
	assert.NotEmpty(t, id.TokenID)
}

func TestLoginWrongPassword(t *testing.T) {
	user := testUser(t, "correct horse")
	svc := newTestService(t, &mockRepository{user: user})

	_, err := svc.Login(context.Background(), user.Email, "battery staple")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginUnknownEmail(t *testing.T) {
	svc := newTestService(t, &mockRepository{})

	_, err := svc.Login(context.Background(), "ghost@miq.dev", "whatever")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLogoutRevokesSession(t *testing.T) {
	user := testUser(t, "correct horse")
	svc := newTestService(t, &mockRepository{user: user})

	token, err := svc.Login(context.Background(), user.Email, "correct horse")
	require.NoError(t, err)

	id, err := svc.Identify(context.Background(), token.AccessToken)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), id))

	_, err = svc.Identify(context.Background(), token.AccessToken)
	assert.ErrorIs(t, err, shared.ErrNotAuthenticated)
}

func TestIdentifyRejectsGarbage(t *testing.T) {
	svc := newTestService(t, &mockRepository{})

	_, err := svc.Identify(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, shared.ErrNotAuthenticated)
}

func TestIdentifyUsesRoleSnapshotFromLogin(t *testing.T) {
	user := testUser(t, "correct horse")
	repo := &mockRepository{user: user}
	svc := newTestService(t, repo)

	token, err := svc.Login(context.Background(), user.Email, "correct horse")
	require.NoError(t, err)

	// Role changes land at the next login, existing sessions keep the snapshot.
	repo.user.Roles = []string{"viewer"}

	id, err := svc.Identify(context.Background(), token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, id.Roles)
}
