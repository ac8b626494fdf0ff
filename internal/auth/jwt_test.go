package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManagerRoundtrip(t *testing.T) {
	tm := NewTokenManager("super-secret", "miq", time.Hour)
	user := &User{GUID: "0c9c3f51-2f7e-4f0e-9e0c-0db6f7f3a1d2", Email: "jane@miq.dev", Roles: []string{"admin"}}

	signed, claims, err := tm.Mint(user)
	require.NoError(t, err)
	require.NotEmpty(t, signed)
	require.NotEmpty(t, claims.ID)

	parsed, err := tm.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, user.GUID, parsed.Subject)
	assert.Equal(t, user.Email, parsed.Email)
	assert.Equal(t, claims.ID, parsed.ID)
}

func TestTokenManagerRejectsWrongSecret(t *testing.T) {
	minted := NewTokenManager("secret-a", "miq", time.Hour)
	verifier := NewTokenManager("secret-b", "miq", time.Hour)

	signed, _, err := minted.Mint(&User{GUID: "guid-1", Email: "a@miq.dev"})
	require.NoError(t, err)

	_, err = verifier.Verify(signed)
	assert.Error(t, err)
}

func TestTokenManagerRejectsExpired(t *testing.T) {
	tm := NewTokenManager("secret", "miq", -time.Minute)

	signed, _, err := tm.Mint(&User{GUID: "guid-1", Email: "a@miq.dev"})
	require.NoError(t, err)

	_, err = tm.Verify(signed)
	assert.Error(t, err)
}

func TestTokenManagerRejectsForeignIssuer(t *testing.T) {
	minted := NewTokenManager("secret", "other-app", time.Hour)
	verifier := NewTokenManager("secret", "miq", time.Hour)

	signed, _, err := minted.Mint(&User{GUID: "guid-1", Email: "a@miq.dev"})
	require.NoError(t, err)

	_, err = verifier.Verify(signed)
	assert.Error(t, err)
}

func TestTokenManagerRejectsGarbage(t *testing.T) {
	tm := NewTokenManager("secret", "miq", time.Hour)

	_, err := tm.Verify("not-a-token")
	assert.Error(t, err)
}
