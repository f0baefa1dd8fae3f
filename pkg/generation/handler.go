package generation

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/duskforge/genforge/internal/audit"
	"github.com/duskforge/genforge/internal/auth"
	"github.com/duskforge/genforge/internal/httpserver"
	"github.com/duskforge/genforge/internal/workspace"
	"github.com/duskforge/genforge/pkg/provider"
)

// Handler provides HTTP handlers for the generation API.
type Handler struct {
	logger *slog.Logger
	audit  *audit.Writer
	svc    *AdminService
}

// NewHandler creates a generation Handler.
func NewHandler(logger *slog.Logger, auditWriter *audit.Writer, svc *AdminService) *Handler {
	return &Handler{logger: logger, audit: auditWriter, svc: svc}
}

// Routes returns a chi.Router with generation routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/cancel", h.handleCancel)
	r.Post("/{id}/retry", h.handleRetry)
	r.Delete("/{id}", h.handleDelete)
	return r
}

// identity extracts the authenticated caller and their user ID, which
// creation and retry both require (API keys not bound to a user cannot
// create generations).
func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (auth.Identity, uuid.UUID, bool) {
	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing authentication")
		return auth.Identity{}, uuid.UUID{}, false
	}
	if id.UserID == nil {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "this operation requires a user-bound API key")
		return auth.Identity{}, uuid.UUID{}, false
	}
	return *id, *id.UserID, true
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	id, userID, ok := h.identity(w, r)
	if !ok {
		return
	}

	gen, err := h.svc.Create(r.Context(), id.WorkspaceID, userID, req)
	if err != nil {
		h.respondCreateError(w, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "create", "generation", strconv.FormatInt(gen.ID, 10), nil)
	}

	httpserver.Respond(w, http.StatusCreated, gen.ToResponse())
}

func (h *Handler) respondCreateError(w http.ResponseWriter, err error) {
	var quotaErr *QuotaError
	var validationErr *ValidationError
	var invalidOpErr *provider.InvalidOperationError

	switch {
	case errors.As(err, &quotaErr):
		httpserver.RespondError(w, http.StatusTooManyRequests, "quota_exceeded", quotaErr.Message)
	case errors.As(err, &validationErr):
		httpserver.RespondError(w, http.StatusBadRequest, "invalid_request", validationErr.Message)
	case errors.As(err, &invalidOpErr):
		httpserver.RespondError(w, http.StatusBadRequest, "invalid_operation", invalidOpErr.Error())
	default:
		h.logger.Error("creating generation", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create generation")
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	gen, err := h.svc.store.Get(r.Context(), id)
	if errors.Is(err, pgx.ErrNoRows) {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "generation not found")
		return
	}
	if err != nil {
		h.logger.Error("fetching generation", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to fetch generation")
		return
	}

	httpserver.Respond(w, http.StatusOK, gen.ToResponse())
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	wsID := workspace.FromContext(r.Context())
	if wsID == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing authentication")
		return
	}

	limit := parseIntOrDefault(r.URL.Query().Get("limit"), 50)
	offset := parseIntOrDefault(r.URL.Query().Get("offset"), 0)

	items, err := h.svc.store.ListByWorkspace(r.Context(), ListParams{
		WorkspaceID: *wsID,
		Status:      r.URL.Query().Get("status"),
		Operation:   r.URL.Query().Get("operation_type"),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		h.logger.Error("listing generations", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list generations")
		return
	}

	responses := make([]Response, 0, len(items))
	for _, g := range items {
		responses = append(responses, g.ToResponse())
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"items": responses, "count": len(responses), "limit": limit, "offset": offset,
	})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	gen, err := h.svc.Cancel(r.Context(), id)
	if errors.Is(err, pgx.ErrNoRows) {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "generation not found")
		return
	}
	if err != nil {
		h.logger.Error("cancelling generation", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to cancel generation")
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "cancel", "generation", strconv.FormatInt(id, 10), nil)
	}

	httpserver.Respond(w, http.StatusOK, gen.ToResponse())
}

func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	identity, userID, ok := h.identity(w, r)
	if !ok {
		return
	}

	gen, err := h.svc.Retry(r.Context(), identity.WorkspaceID, userID, id)
	if err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			httpserver.RespondError(w, http.StatusBadRequest, "invalid_request", validationErr.Message)
			return
		}
		h.logger.Error("retrying generation", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to retry generation")
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "retry", "generation", strconv.FormatInt(gen.ID, 10), nil)
	}

	httpserver.Respond(w, http.StatusCreated, gen.ToResponse())
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	gen, err := h.svc.store.Get(r.Context(), id)
	if errors.Is(err, pgx.ErrNoRows) {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "generation not found")
		return
	}
	if err != nil {
		h.logger.Error("fetching generation for delete", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to fetch generation")
		return
	}
	if !gen.Status.IsTerminal() {
		httpserver.RespondError(w, http.StatusConflict, "not_terminal", "only a terminal generation can be deleted")
		return
	}

	if err := h.svc.store.delete(r.Context(), id); err != nil {
		h.logger.Error("deleting generation", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to delete generation")
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "delete", "generation", strconv.FormatInt(id, 10), nil)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid generation ID")
		return 0, false
	}
	return id, true
}

func parseIntOrDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
