package audit

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duskforge/genforge/internal/db"
	"github.com/duskforge/genforge/internal/httpserver"
	"github.com/duskforge/genforge/internal/workspace"
)

// Handler provides HTTP handlers for the audit log API.
type Handler struct {
	logger *slog.Logger
	pool   *pgxpool.Pool
}

// NewHandler creates an audit log Handler.
func NewHandler(logger *slog.Logger, pool *pgxpool.Pool) *Handler {
	return &Handler{logger: logger, pool: pool}
}

// Routes returns a chi.Router with audit log routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	workspaceID := workspace.FromContext(r.Context())
	if workspaceID == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing authentication")
		return
	}

	q := db.New(h.pool)
	entries, err := q.ListAuditLog(r.Context(), db.ListAuditLogParams{
		WorkspaceID: *workspaceID,
		Limit:       int32(params.PageSize),
		Offset:      int32(params.Offset),
	})
	if err != nil {
		h.logger.Error("listing audit log", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list audit log")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}
