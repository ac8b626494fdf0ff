package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/miq-labs/miq-be/internal/platform/httpx"
	"github.com/miq-labs/miq-be/internal/shared"
)

// Observer receives the outcome of every limiter decision. Outcomes:
// allowed, limited, error_allowed, error_limited.
type Observer interface {
	ObserveRateLimit(outcome string)
}

// Middleware enforces the fixed-window limit ahead of handlers.
// Requests are keyed by authenticated identity, falling back to the
// client IP. FailOpen declares the policy applied when the store cannot
// decide.
type Middleware struct {
	Store    Store
	Requests int
	Window   time.Duration
	FailOpen bool
	Logger   *slog.Logger
	Observer Observer
}

// Handler applies the limit to next. A denied request never reaches it.
func (m Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, err := ClientKey(r)
		if err != nil {
			key = "ip:unknown"
		}

		decision, err := m.Store.Take(r.Context(), key, m.Requests, m.Window)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Error("rate limit store unavailable",
					slog.String("key", key),
					slog.Bool("fail_open", m.FailOpen),
					slog.Any("error", err))
			}
			if m.FailOpen {
				m.observe("error_allowed")
				next.ServeHTTP(w, r)
				return
			}
			m.observe("error_limited")
			m.reject(w, int(m.Window.Seconds()))
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.Itoa(decision.SecondsUntilReset()))

		if !decision.Allowed {
			if m.Logger != nil {
				m.Logger.Info("rate limit exceeded",
					slog.String("key", key),
					slog.String("path", r.URL.Path))
			}
			m.observe("limited")
			retry := decision.SecondsUntilReset()
			if retry < 1 {
				retry = 1
			}
			m.reject(w, retry)
			return
		}

		m.observe("allowed")
		next.ServeHTTP(w, r)
	})
}

func (m Middleware) reject(w http.ResponseWriter, retryAfter int) {
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	httpx.JSON(w, http.StatusTooManyRequests, httpx.ProblemDetail{
		Title:      "Too Many Requests",
		Status:     http.StatusTooManyRequests,
		Code:       httpx.CodeRateLimitExceeded,
		Detail:     fmt.Sprintf("%s, retry in %ds", shared.ErrRateLimited.Error(), retryAfter),
		RetryAfter: retryAfter,
	})
}

func (m Middleware) observe(outcome string) {
	if m.Observer != nil {
		m.Observer.ObserveRateLimit(outcome)
	}
}

// ClientKey labels the caller for counting: the authenticated identity
// when present, else the remote IP.
func ClientKey(r *http.Request) (string, error) {
	if id := shared.IdentityFromContext(r.Context()); id != nil && id.GUID != "" {
		return "user:" + id.GUID, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
