package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a uniqueness conflict.
	ErrDuplicate = errors.New("duplicate resource")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotAuthenticated occurs when a request carries no valid identity.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrPermissionDenied occurs when the identity lacks the required permission.
	ErrPermissionDenied = errors.New("insufficient permission")
	// ErrRateLimited occurs when a client exhausts its request window.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrConfiguration indicates an invalid startup configuration.
	ErrConfiguration = errors.New("configuration error")
)
