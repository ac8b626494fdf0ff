package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/miq-labs/miq-be/internal/platform/httpx"
	"github.com/miq-labs/miq-be/internal/rbac"
	"github.com/miq-labs/miq-be/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     *rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard *rbac.Middleware) *Handler {
	v := validator.New()
	registerStrongPassword(v)
	return &Handler{logger: logger, service: service, guard: guard, validator: v}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/create", h.createUser)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(shared.PermUsersView))
		r.Get("/", h.listUsers)
		r.Get("/{guid}", h.getUser)
	})
	r.With(h.guard.RequirePermission(shared.PermUsersEdit)).Patch("/{guid}", h.updateUser)
	r.With(h.guard.RequirePermission(shared.PermUsersDelete)).Delete("/{guid}", h.deleteUser)
}

type createUserRequest struct {
	FirstName   string           `json:"first_name" validate:"required"`
	LastName    string           `json:"last_name" validate:"required"`
	Email       string           `json:"email" validate:"required,email"`
	Password    string           `json:"password" validate:"required,strongpw"`
	Address     *string          `json:"address"`
	PosteCode   *string          `json:"poste_code"`
	City        *string          `json:"city"`
	County      *string          `json:"county"`
	Country     *string          `json:"country"`
	Age         *int             `json:"age" validate:"omitempty,gte=0,lte=150"`
	DateOfBirth *shared.DateOnly `json:"date_of_birth"`
}

type updateUserRequest struct {
	FirstName   *string          `json:"first_name" validate:"omitempty,min=1"`
	LastName    *string          `json:"last_name" validate:"omitempty,min=1"`
	Address     *string          `json:"address"`
	PosteCode   *string          `json:"poste_code"`
	City        *string          `json:"city"`
	County      *string          `json:"county"`
	Country     *string          `json:"country"`
	Age         *int             `json:"age" validate:"omitempty,gte=0,lte=150"`
	DateOfBirth *shared.DateOnly `json:"date_of_birth"`
}

type listUsersResponse struct {
	Users []User            `json:"users"`
	Meta  shared.Pagination `json:"meta"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	params := shared.ListParams{
		Offset: queryInt(r, "offset"),
		Limit:  queryInt(r, "limit"),
	}
	users, meta, err := h.service.List(r.Context(), params)
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if users == nil {
		users = []User{}
	}
	httpx.JSON(w, http.StatusOK, listUsersResponse{Users: users, Meta: meta})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	guid, ok := pathGUID(w, r)
	if !ok {
		return
	}
	user, err := h.service.Get(r.Context(), guid)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("get user failed", slog.String("guid", guid), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", httpx.CodeValidationError, "invalid JSON payload")
		return
	}
	if errs := httpx.ValidationFields(h.validator.Struct(req)); errs != nil {
		httpx.ValidationProblem(w, errs)
		return
	}
	user, err := h.service.Create(r.Context(), CreateUserInput{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		Password:    req.Password,
		Address:     req.Address,
		PosteCode:   req.PosteCode,
		City:        req.City,
		County:      req.County,
		Country:     req.Country,
		Age:         req.Age,
		DateOfBirth: req.DateOfBirth.Time(),
	})
	if err != nil {
		if !errors.Is(err, shared.ErrDuplicate) {
			h.logger.Error("create user failed", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	guid, ok := pathGUID(w, r)
	if !ok {
		return
	}
	var req updateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", httpx.CodeValidationError, "invalid JSON payload")
		return
	}
	if errs := httpx.ValidationFields(h.validator.Struct(req)); errs != nil {
		httpx.ValidationProblem(w, errs)
		return
	}
	actor := actorGUID(r)
	user, err := h.service.Update(r.Context(), actor, guid, UpdateUserInput{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Address:     req.Address,
		PosteCode:   req.PosteCode,
		City:        req.City,
		County:      req.County,
		Country:     req.Country,
		Age:         req.Age,
		DateOfBirth: req.DateOfBirth.Time(),
	})
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("update user failed", slog.String("guid", guid), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	guid, ok := pathGUID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actorGUID(r), guid); err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("delete user failed", slog.String("guid", guid), slog.Any("error", err))
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

func queryInt(r *http.Request, name string) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

func registerStrongPassword(v *validator.Validate) {
	_ = v.RegisterValidation("strongpw", func(fl validator.FieldLevel) bool {
		return isStrongPassword(fl.Field().String())
	})
}

// isStrongPassword requires at least 8 characters spanning lower, upper,
// digit and special classes.
func isStrongPassword(pw string) bool {
	if len(pw) < 8 {
		return false
	}
	var lower, upper, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	return lower && upper && digit && special
}
