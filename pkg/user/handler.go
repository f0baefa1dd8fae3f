package user

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/duskforge/genforge/internal/audit"
	"github.com/duskforge/genforge/internal/auth"
	"github.com/duskforge/genforge/internal/db"
	"github.com/duskforge/genforge/internal/httpserver"
)

// Handler provides HTTP handlers for the users API.
type Handler struct {
	logger  *slog.Logger
	audit   *audit.Writer
	service *Service
}

// NewHandler creates a user Handler backed by the given database handle.
func NewHandler(logger *slog.Logger, auditWriter *audit.Writer, dbtx db.DBTX) *Handler {
	return &Handler{
		logger:  logger,
		audit:   auditWriter,
		service: NewService(dbtx, logger),
	}
}

// Routes returns a chi.Router with all user routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Put("/", h.handleUpdate)
		r.Delete("/", h.handleDeactivate)
	})
	return r
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing authentication")
		return
	}

	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	resp, err := h.service.Create(r.Context(), id.WorkspaceID, req)
	if err != nil {
		h.logger.Error("creating user", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create user")
		return
	}

	if h.audit != nil {
		detail, _ := json.Marshal(map[string]string{"email": resp.Email})
		h.audit.LogFromRequest(r, "create", "user", resp.ID.String(), detail)
	}

	httpserver.Respond(w, http.StatusCreated, resp)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing authentication")
		return
	}

	items, err := h.service.List(r.Context(), id.WorkspaceID)
	if err != nil {
		h.logger.Error("listing users", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list users")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"users": items,
		"count": len(items),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing authentication")
		return
	}

	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid user ID")
		return
	}

	resp, err := h.service.Get(r.Context(), id.WorkspaceID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		h.logger.Error("getting user", "error", err, "id", userID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get user")
		return
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing authentication")
		return
	}

	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid user ID")
		return
	}

	var req UpdateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	resp, err := h.service.Update(r.Context(), id.WorkspaceID, userID, req)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		h.logger.Error("updating user", "error", err, "id", userID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to update user")
		return
	}

	if h.audit != nil {
		detail, _ := json.Marshal(map[string]string{"email": resp.Email})
		h.audit.LogFromRequest(r, "update", "user", resp.ID.String(), detail)
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing authentication")
		return
	}

	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid user ID")
		return
	}

	if err := h.service.Deactivate(r.Context(), id.WorkspaceID, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		h.logger.Error("deactivating user", "error", err, "id", userID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to deactivate user")
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "deactivate", "user", userID.String(), nil)
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}
