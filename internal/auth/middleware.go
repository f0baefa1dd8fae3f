package auth

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

// Middleware authenticates the caller via the X-API-Key header and stores
// the resulting Identity in the request context. In DevMode, a missing key
// falls back to the X-Workspace-ID header with an admin role, for local
// development against a seeded workspace without issuing real keys.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey := r.Header.Get("X-API-Key")

		if rawKey != "" {
			identity, err := a.authenticateKey(r.Context(), rawKey)
			if err != nil {
				respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid API key")
				return
			}
			ctx := NewContext(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if a.DevMode {
			if ws := r.Header.Get("X-Workspace-ID"); ws != "" {
				workspaceID, err := uuid.Parse(ws)
				if err == nil {
					identity := &Identity{
						WorkspaceID: workspaceID,
						Role:        RoleAdmin,
						Method:      MethodDev,
					}
					if u := r.Header.Get("X-User-ID"); u != "" {
						if userID, err := uuid.Parse(u); err == nil {
							identity.UserID = &userID
						}
					}
					ctx := NewContext(r.Context(), identity)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}
		}

		respondErr(w, http.StatusUnauthorized, "unauthorized", "no valid authentication provided")
	})
}

func respondErr(w http.ResponseWriter, status int, errStr, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errStr,
		"message": message,
	})
}
