package rbac

import (
	"errors"
	"net/http"
	"sync"

	"log/slog"

	"github.com/miq-labs/miq-be/internal/platform/httpx"
	"github.com/miq-labs/miq-be/internal/shared"
)

// Observer receives the outcome of every authorization decision.
// Outcomes: allowed, unauthenticated, forbidden.
type Observer interface {
	ObserveAuthz(outcome string)
}

// Middleware wires authorization for HTTP handlers. RequirePermission
// records every permission it mounts; Mounted feeds the startup policy
// validation.
type Middleware struct {
	guard    *Guard
	logger   *slog.Logger
	observer Observer

	mu      sync.Mutex
	mounted []string
}

// NewMiddleware constructs the middleware.
func NewMiddleware(guard *Guard, logger *slog.Logger, observer Observer) *Middleware {
	return &Middleware{guard: guard, logger: logger, observer: observer}
}

// RequirePermission admits the request only when the identity holds the
// permission. A denied request never reaches next.
func (m *Middleware) RequirePermission(permission string) func(http.Handler) http.Handler {
	m.record(permission)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := shared.IdentityFromContext(r.Context())
			err := m.guard.Authorize(id, permission)
			if err == nil {
				m.observe("allowed")
				next.ServeHTTP(w, r)
				return
			}

			outcome := "forbidden"
			if errors.Is(err, shared.ErrNotAuthenticated) {
				outcome = "unauthenticated"
			}
			m.observe(outcome)
			if m.logger != nil {
				m.logger.Info("authorization denied",
					slog.String("permission", permission),
					slog.String("path", r.URL.Path),
					slog.String("reason", outcome))
			}
			httpx.RespondError(w, err)
		})
	}
}

// RequireAuthenticated admits any authenticated identity without a
// permission check. Logout and other self-service endpoints use it.
func (m *Middleware) RequireAuthenticated() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := shared.IdentityFromContext(r.Context()); id == nil || id.GUID == "" {
				m.observe("unauthenticated")
				httpx.RespondError(w, shared.ErrNotAuthenticated)
				return
			}
			m.observe("allowed")
			next.ServeHTTP(w, r)
		})
	}
}

// Mounted returns the permissions recorded by RequirePermission.
func (m *Middleware) Mounted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.mounted))
	copy(out, m.mounted)
	return out
}

func (m *Middleware) record(permission string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mounted = append(m.mounted, permission)
}

func (m *Middleware) observe(outcome string) {
	if m.observer != nil {
		m.observer.ObserveAuthz(outcome)
	}
}
