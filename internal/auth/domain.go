package auth

import "time"

// User represents an account as loaded for authentication, roles included.
type User struct {
	GUID         string
	Email        string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
}

// Token is the credential returned to a client after a successful login.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}
