package account

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duskforge/genforge/internal/audit"
	"github.com/duskforge/genforge/internal/httpserver"
	"github.com/duskforge/genforge/internal/workspace"
)

// CreateRequest is the JSON body for POST /provider-accounts.
type CreateRequest struct {
	ProviderID    string         `json:"provider_id" validate:"required"`
	Label         string         `json:"label"`
	Credentials   map[string]any `json:"credentials" validate:"required"`
	Credits       map[string]int `json:"credits"`
	MaxConcurrent int            `json:"max_concurrent"`
}

// Handler provides HTTP handlers for the provider-account administration API.
type Handler struct {
	logger *slog.Logger
	audit  *audit.Writer
	pool   *pgxpool.Pool
}

// NewHandler creates a provider-account Handler.
func NewHandler(logger *slog.Logger, auditWriter *audit.Writer, pool *pgxpool.Pool) *Handler {
	return &Handler{logger: logger, audit: auditWriter, pool: pool}
}

// Routes returns a chi.Router with provider-account routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	workspaceID := workspace.FromContext(r.Context())
	if workspaceID == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing authentication")
		return
	}

	store := NewStore(h.pool)
	items, err := store.ListByWorkspace(r.Context(), *workspaceID)
	if err != nil {
		h.logger.Error("listing provider accounts", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list provider accounts")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"accounts": items, "count": len(items)})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	workspaceID := workspace.FromContext(r.Context())
	if workspaceID == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing authentication")
		return
	}

	store := NewStore(h.pool)
	acc, err := store.Create(r.Context(), CreateParams{
		WorkspaceID:   *workspaceID,
		ProviderID:    req.ProviderID,
		Label:         req.Label,
		Credentials:   req.Credentials,
		Credits:       req.Credits,
		MaxConcurrent: req.MaxConcurrent,
	})
	if err != nil {
		h.logger.Error("creating provider account", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create provider account")
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "create", "provider_account", acc.ID.String(), nil)
	}

	httpserver.Respond(w, http.StatusCreated, acc)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid provider account ID")
		return
	}

	store := NewStore(h.pool)
	acc, err := store.Get(r.Context(), id)
	if err != nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "provider account not found")
		return
	}

	httpserver.Respond(w, http.StatusOK, acc)
}
