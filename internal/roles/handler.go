package roles

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/miq-labs/miq-be/internal/platform/httpx"
	"github.com/miq-labs/miq-be/internal/rbac"
	"github.com/miq-labs/miq-be/internal/shared"
)

// Handler manages role management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     *rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard *rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers the role listing.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.RequirePermission(shared.PermRolesView)).Get("/", h.listRoles)
}

// MountUserRoutes registers the assignment endpoints under the users tree.
func (h *Handler) MountUserRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(shared.PermRolesManage))
		r.Post("/{guid}/roles", h.assignRole)
		r.Delete("/{guid}/roles/{role}", h.revokeRole)
	})
}

type listRolesResponse struct {
	Roles []Role `json:"roles"`
}

type assignRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list roles failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if roles == nil {
		roles = []Role{}
	}
	httpx.JSON(w, http.StatusOK, listRolesResponse{Roles: roles})
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	guid, ok := pathGUID(w, r)
	if !ok {
		return
	}
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", httpx.CodeValidationError, "invalid JSON payload")
		return
	}
	if errs := httpx.ValidationFields(h.validator.Struct(req)); errs != nil {
		httpx.ValidationProblem(w, errs)
		return
	}
	if err := h.service.Assign(r.Context(), actorGUID(r), guid, req.Role); err != nil {
		if !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrDuplicate) {
			h.logger.Error("assign role failed", slog.String("guid", guid), slog.String("role", req.Role), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	guid, ok := pathGUID(w, r)
	if !ok {
		return
	}
	role := chi.URLParam(r, "role")
	if err := h.service.Revoke(r.Context(), actorGUID(r), guid, role); err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("revoke role failed", slog.String("guid", guid), slog.String("role", role), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathGUID(w http.ResponseWriter, r *http.Request) (string, bool) {
	guid := chi.URLParam(r, "guid")
	if err := uuid.Validate(guid); err != nil {
		httpx.ValidationProblem(w, map[string]string{"guid": "must be a valid UUID"})
		return "", false
	}
	return guid, true
}

func actorGUID(r *http.Request) string {
	if id := shared.IdentityFromContext(r.Context()); id != nil {
		return id.GUID
	}
	return ""
}
