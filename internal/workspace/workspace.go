// Package workspace propagates the authenticated caller's workspace ID
// through the request context, decoupling downstream handlers and stores
// from the authentication mechanism that resolved it.
package workspace

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/duskforge/genforge/internal/auth"
)

type ctxKey string

const workspaceKey ctxKey = "workspace_id"

// NewContext stores a workspace ID in the context.
func NewContext(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, workspaceKey, id)
}

// FromContext returns the workspace ID stored in the context, or nil if
// none is set.
func FromContext(ctx context.Context) *uuid.UUID {
	v, ok := ctx.Value(workspaceKey).(uuid.UUID)
	if !ok {
		return nil
	}
	return &v
}

// Middleware copies the workspace ID off the authenticated Identity (set by
// auth.Authenticator.Middleware, which must run earlier in the chain) into
// the workspace context key.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := auth.FromContext(r.Context())
		if id == nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := NewContext(r.Context(), id.WorkspaceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
