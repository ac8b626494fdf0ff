package audithttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/miq-labs/miq-be/internal/audit"
	"github.com/miq-labs/miq-be/internal/platform/httpx"
	"github.com/miq-labs/miq-be/internal/rbac"
	"github.com/miq-labs/miq-be/internal/shared"
)

const (
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRangeDays = 90
)

// Service defines the business contract for audit reads.
type Service interface {
	List(ctx context.Context, f audit.Filters, params shared.ListParams) (*audit.Result, error)
	Export(ctx context.Context, f audit.Filters) ([]audit.Entry, error)
}

// Handler serves the audit log endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
	guard   *rbac.Middleware
	now     func() time.Time
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service Service, guard *rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard, now: time.Now}
}

type listResponse struct {
	Entries []audit.Entry     `json:"entries"`
	Meta    shared.Pagination `json:"meta"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filters, fields := h.parseFilters(r)
	if fields != nil {
		httpx.ValidationProblem(w, fields)
		return
	}
	params := shared.ListParams{
		Offset: queryInt(r, "offset"),
		Limit:  queryInt(r, "limit"),
	}
	result, err := h.service.List(r.Context(), filters, params)
	if err != nil {
		h.logger.Error("list audit entries failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Entries: result.Entries, Meta: result.Meta})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, fields := h.parseFilters(r)
	if fields != nil {
		httpx.ValidationProblem(w, fields)
		return
	}
	entries, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("export audit entries failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-log.csv"`)
	if err := audit.WriteCSV(w, entries); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

// parseFilters reads the date window and filter params. The window
// defaults to the last 7 days and may span at most 90. A non-nil field
// map signals a validation failure.
func (h *Handler) parseFilters(r *http.Request) (audit.Filters, map[string]string) {
	q := r.URL.Query()
	now := h.now().UTC()

	toStr := strings.TrimSpace(q.Get("to"))
	if toStr == "" {
		toStr = now.Format("2006-01-02")
	}
	to, err := time.Parse("2006-01-02", toStr)
	if err != nil {
		return audit.Filters{}, map[string]string{"to": "must be a date in YYYY-MM-DD form"}
	}
	fromStr := strings.TrimSpace(q.Get("from"))
	if fromStr == "" {
		fromStr = to.Add(-defaultDateRange).Format("2006-01-02")
	}
	from, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		return audit.Filters{}, map[string]string{"from": "must be a date in YYYY-MM-DD form"}
	}
	if from.After(to) {
		return audit.Filters{}, map[string]string{"range": "from must not be after to"}
	}
	if to.Sub(from) > maxDateRangeDays*24*time.Hour {
		return audit.Filters{}, map[string]string{"range": "must span at most 90 days"}
	}

	return audit.Filters{
		From: from,
		// the repository compares with occurred_at < To, so push the
		// boundary past the requested end date to keep it inclusive
		To:     to.Add(24 * time.Hour),
		Actor:  strings.TrimSpace(q.Get("actor")),
		Entity: strings.TrimSpace(q.Get("entity")),
		Action: strings.TrimSpace(q.Get("action")),
	}, nil
}

func queryInt(r *http.Request, name string) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}
