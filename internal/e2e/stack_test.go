package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/miq-labs/miq-be/internal/app"
	"github.com/miq-labs/miq-be/internal/auth"
	"github.com/miq-labs/miq-be/internal/observability"
	"github.com/miq-labs/miq-be/internal/platform/httpx"
	"github.com/miq-labs/miq-be/internal/ratelimit"
	"github.com/miq-labs/miq-be/internal/rbac"
	"github.com/miq-labs/miq-be/internal/shared"
	"github.com/miq-labs/miq-be/internal/users"
)

const (
	adminGUID    = "8b0e4c0f-54a4-4d0a-9c52-1f3f6f1f0a42"
	viewerGUID   = "c3d0c5ba-2c5e-49d9-9d3c-7a8e2b9d4e77"
	adminEmail   = "root@miq.local"
	viewerEmail  = "reader@miq.local"
	testPassword = "s3cret-pass"
)

// fakeClock drives the limiter window without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type stubAuthRepo struct {
	accounts map[string]*auth.User
}

func (s *stubAuthRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	account, ok := s.accounts[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return account, nil
}

type stubUserRepo struct {
	rows []users.User
}

func (s *stubUserRepo) List(_ context.Context, _ shared.ListParams) ([]users.User, int, error) {
	return append([]users.User(nil), s.rows...), len(s.rows), nil
}

func (s *stubUserRepo) GetByGUID(_ context.Context, guid string) (*users.User, error) {
	for i := range s.rows {
		if s.rows[i].GUID == guid {
			row := s.rows[i]
			return &row, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubUserRepo) GetByEmail(_ context.Context, email string) (*users.User, error) {
	for i := range s.rows {
		if s.rows[i].Email == email {
			row := s.rows[i]
			return &row, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubUserRepo) Create(_ context.Context, user *users.User) error {
	s.rows = append(s.rows, *user)
	return nil
}

func (s *stubUserRepo) Delete(_ context.Context, guid string) error {
	for i := range s.rows {
		if s.rows[i].GUID == guid {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			return nil
		}
	}
	return shared.ErrNotFound
}

func (s *stubUserRepo) WithTx(ctx context.Context, fn func(context.Context, users.TxRepository) error) error {
	return fn(ctx, stubUserTx{repo: s})
}

type stubUserTx struct {
	repo *stubUserRepo
}

func (t stubUserTx) GetForUpdate(ctx context.Context, guid string) (*users.User, error) {
	return t.repo.GetByGUID(ctx, guid)
}

func (t stubUserTx) Save(_ context.Context, user *users.User) error {
	for i := range t.repo.rows {
		if t.repo.rows[i].GUID == user.GUID {
			t.repo.rows[i] = *user
			return nil
		}
	}
	return shared.ErrNotFound
}

// stack assembles the real router with in-memory stand-ins for
// PostgreSQL, so scenarios exercise the same middleware chain, guard
// wiring and limiter the binary runs.
type stack struct {
	handler  http.Handler
	clock    *fakeClock
	tokens   *auth.TokenManager
	sessions *shared.SessionStore
	repo     *stubUserRepo
}

func newStack(t *testing.T, requests int, window time.Duration) *stack {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetrics()

	guard := rbac.NewGuard(shared.RolePermissions())
	guardMW := rbac.NewMiddleware(guard, logger, metrics)

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	accounts := &stubAuthRepo{accounts: map[string]*auth.User{
		adminEmail:  {GUID: adminGUID, Email: adminEmail, PasswordHash: string(hash), Roles: []string{shared.RoleAdmin}},
		viewerEmail: {GUID: viewerGUID, Email: viewerEmail, PasswordHash: string(hash), Roles: []string{shared.RoleViewer}},
	}}

	tokens := auth.NewTokenManager("e2e-secret", "miq-be", time.Hour)
	sessions := shared.NewSessionStore(client, time.Hour)
	authService := auth.NewService(accounts, tokens, sessions, nil, metrics)
	authHandler := auth.NewHandler(logger, authService, guardMW)

	repo := &stubUserRepo{rows: []users.User{
		{GUID: adminGUID, FirstName: "Ada", LastName: "Root", Email: adminEmail, Roles: []string{shared.RoleAdmin}},
		{GUID: viewerGUID, FirstName: "Vik", LastName: "Reader", Email: viewerEmail, Roles: []string{shared.RoleViewer}},
	}}
	usersCache := users.NewCache(client, time.Minute, metrics)
	usersService := users.NewService(repo, usersCache, nil)
	usersHandler := users.NewHandler(logger, usersService, guardMW)

	clock := newFakeClock()
	limiter := &ratelimit.Middleware{
		Store:    ratelimit.NewMemoryStore(ratelimit.WithClock(clock.Now)),
		Requests: requests,
		Window:   window,
		FailOpen: true,
		Logger:   logger,
		Observer: metrics,
	}

	handler := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       &app.Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second},
		AuthHandler:  authHandler,
		UsersHandler: usersHandler,
		Redis:        client,
		Identity:     authService,
		Limiter:      limiter,
		Metrics:      metrics,
	})

	if err := guard.Validate(guardMW.Mounted()); err != nil {
		t.Fatalf("policy validation: %v", err)
	}

	return &stack{handler: handler, clock: clock, tokens: tokens, sessions: sessions, repo: repo}
}

func (s *stack) do(method, target, token string, body []byte) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *stack) login(t *testing.T, email, password string) string {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		t.Fatalf("marshal credentials: %v", err)
	}
	rec := s.do(http.MethodPost, "/users/token", "", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", rec.Code, rec.Body.String())
	}
	var token struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &token); err != nil {
		t.Fatalf("decode token response: %v", err)
	}
	if token.TokenType != "bearer" || token.AccessToken == "" {
		t.Fatalf("unexpected token payload: %s", rec.Body.String())
	}
	return token.AccessToken
}

// mint issues a token directly so window arithmetic in throttling
// scenarios stays untouched by setup requests.
func (s *stack) mint(t *testing.T, guid, email string, roles []string) string {
	t.Helper()
	signed, claims, err := s.tokens.Mint(&auth.User{GUID: guid, Email: email, Roles: roles})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	record := shared.SessionRecord{
		UserGUID: guid,
		Email:    email,
		Roles:    roles,
		TokenID:  claims.ID,
		IssuedAt: claims.IssuedAt.Time,
	}
	if err := s.sessions.Save(context.Background(), record); err != nil {
		t.Fatalf("save session: %v", err)
	}
	return signed
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) httpx.ProblemDetail {
	t.Helper()
	var problem httpx.ProblemDetail
	if err := json.Unmarshal(rec.Body.Bytes(), &problem); err != nil {
		t.Fatalf("decode problem document: %v", err)
	}
	return problem
}
