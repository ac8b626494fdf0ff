package audithttp

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/miq-labs/miq-be/internal/platform/httpx"
	"github.com/miq-labs/miq-be/internal/ratelimit"
	"github.com/miq-labs/miq-be/internal/shared"
)

const rateLimit = 30
const rateWindow = time.Minute

// MountRoutes registers the audit listing and CSV export. Both sit
// behind their own per-caller limiter, which runs before the permission
// check so throttled requests are rejected without touching authz.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(ratelimit.ClientKey),
		httprate.WithLimitHandler(limitHandler),
	)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Use(h.guard.RequirePermission(shared.PermAuditView))
		gr.Get("/", h.handleList)
		gr.Get("/export", h.handleExport)
	})
}

func limitHandler(w http.ResponseWriter, r *http.Request) {
	retry := int(rateWindow / time.Second)
	if v, err := strconv.Atoi(w.Header().Get("Retry-After")); err == nil && v >= 1 {
		retry = v
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	httpx.JSON(w, http.StatusTooManyRequests, httpx.ProblemDetail{
		Title:      "Too Many Requests",
		Status:     http.StatusTooManyRequests,
		Code:       httpx.CodeRateLimitExceeded,
		Detail:     fmt.Sprintf("%s, retry in %ds", shared.ErrRateLimited.Error(), retry),
		RetryAfter: retry,
	})
}
