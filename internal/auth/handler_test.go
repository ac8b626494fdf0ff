package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/miq-labs/miq-be/internal/auth"
	"github.com/miq-labs/miq-be/internal/platform/httpx"
	"github.com/miq-labs/miq-be/internal/rbac"
	"github.com/miq-labs/miq-be/internal/shared"
	_ "github.com/miq-labs/miq-be/testing"
)

type stubRepo struct {
	user *auth.User
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func stubUser(t *testing.T, password string) *auth.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &auth.User{
		GUID:         "0c9c3f51-2f7e-4f0e-9e0c-0db6f7f3a1d2",
		Email:        "user@test.local",
		PasswordHash: string(hashed),
		Roles:        []string{"viewer"},
	}
}

func newAuthRouter(t *testing.T, repo auth.Repository) *chi.Mux {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionStore(client, time.Hour)
	tokens := auth.NewTokenManager("handler-secret", "miq-test", time.Hour)
	service := auth.NewService(repo, tokens, sessions, nil, nil)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	guard := rbac.NewMiddleware(rbac.NewGuard(shared.RolePermissions()), logger, nil)
	handler := auth.NewHandler(logger, service, guard)

	r := chi.NewRouter()
	// Mirrors the app identity middleware: bearer tokens resolve to an
	// identity, everything else stays anonymous.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			header := req.Header.Get("Authorization")
			if strings.HasPrefix(header, "Bearer ") {
				if id, err := service.Identify(req.Context(), strings.TrimPrefix(header, "Bearer ")); err == nil {
					req = req.WithContext(shared.ContextWithIdentity(req.Context(), id))
				}
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/users", handler.MountRoutes)
	return r
}

func postJSON(t *testing.T, router http.Handler, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	return res
}

func TestTokenEndpointIssuesToken(t *testing.T) {
	router := newAuthRouter(t, &stubRepo{user: stubUser(t, "correctpass")})

	res := postJSON(t, router, "/users/token", `{"email":"user@test.local","password":"correctpass"}`, "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var token auth.Token
	if err := json.Unmarshal(res.Body.Bytes(), &token); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if token.AccessToken == "" {
		t.Fatalf("expected access token in response")
	}
	if token.TokenType != "bearer" {
		t.Fatalf("expected token_type bearer, got %q", token.TokenType)
	}
	if !token.ExpiresAt.After(time.Now()) {
		t.Fatalf("expected future expiry, got %v", token.ExpiresAt)
	}
}

func TestTokenEndpointWrongPassword(t *testing.T) {
	router := newAuthRouter(t, &stubRepo{user: stubUser(t, "correctpass")})

	res := postJSON(t, router, "/users/token", `{"email":"user@test.local","password":"wrongpass"}`, "")
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
	if res.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("expected WWW-Authenticate header")
	}
	var problem httpx.ProblemDetail
	if err := json.Unmarshal(res.Body.Bytes(), &problem); err != nil {
		t.Fatalf("decode problem: %v", err)
	}
	if problem.Code != httpx.CodeNotAuthenticated {
		t.Fatalf("expected code %s, got %s", httpx.CodeNotAuthenticated, problem.Code)
	}
}

func TestTokenEndpointValidatesPayload(t *testing.T) {
	router := newAuthRouter(t, &stubRepo{})

	res := postJSON(t, router, "/users/token", `{"email":"not-an-email"}`, "")
	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", res.Code)
	}
	var problem httpx.ProblemDetail
	if err := json.Unmarshal(res.Body.Bytes(), &problem); err != nil {
		t.Fatalf("decode problem: %v", err)
	}
	if len(problem.Fields) == 0 {
		t.Fatalf("expected field errors, got none")
	}
}

func TestLogoutRequiresAuthentication(t *testing.T) {
	router := newAuthRouter(t, &stubRepo{})

	res := postJSON(t, router, "/users/logout", ``, "")
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	router := newAuthRouter(t, &stubRepo{user: stubUser(t, "correctpass")})

	res := postJSON(t, router, "/users/token", `{"email":"user@test.local","password":"correctpass"}`, "")
	if res.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", res.Code)
	}
	var token auth.Token
	if err := json.Unmarshal(res.Body.Bytes(), &token); err != nil {
		t.Fatalf("decode token: %v", err)
	}

	res = postJSON(t, router, "/users/logout", ``, token.AccessToken)
	if res.Code != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", res.Code)
	}

	// The revoked token no longer authenticates.
	res = postJSON(t, router, "/users/logout", ``, token.AccessToken)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after revocation, got %d", res.Code)
	}
}
