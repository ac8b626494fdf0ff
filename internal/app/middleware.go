package app

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/miq-labs/miq-be/internal/observability"
	"github.com/miq-labs/miq-be/internal/ratelimit"
	"github.com/miq-labs/miq-be/internal/shared"
)

// IdentityResolver turns a bearer token into the caller identity.
// Implemented by auth.Service.
type IdentityResolver interface {
	Identify(ctx context.Context, token string) (*shared.Identity, error)
}

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger   *slog.Logger
	Config   *Config
	Identity IdentityResolver
	Limiter  *ratelimit.Middleware
	Metrics  *observability.Metrics
}

// MiddlewareStack installs the application middleware chain. Order
// matters: identity resolution runs before the rate limiter so limits
// key on the user, and the limiter runs before any authorization check
// so throttled requests are rejected without touching authz.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		FeaturePolicy:         "none",
		ContentSecurityPolicy: "default-src 'self'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	identityMiddleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			identity, err := cfg.Identity.Identify(r.Context(), token)
			if err != nil {
				// A bad token downgrades the caller to anonymous;
				// protected routes still answer 401 through the guard.
				cfg.Logger.Debug("bearer token rejected", slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}
			ctx := shared.ContextWithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
	}
	if cfg.Config != nil && cfg.Config.PerimeterRPM > 0 {
		middlewares = append(middlewares, httprate.Limit(cfg.Config.PerimeterRPM, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
	}
	if cfg.Identity != nil {
		middlewares = append(middlewares, identityMiddleware)
	}
	if cfg.Limiter != nil {
		middlewares = append(middlewares, cfg.Limiter.Handler)
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, func(next http.Handler) http.Handler {
			return cfg.Metrics.Middleware(next)
		})
	}
	return middlewares
}

func bearerToken(r *http.Request) string {
	raw := r.Header.Get("Authorization")
	if raw == "" {
		return ""
	}
	token, ok := strings.CutPrefix(raw, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}
