// Package auth authenticates API requests with a workspace-scoped API key
// and stores the resulting Identity on the request context.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// Roles supported by the RBAC system.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// ValidRoles lists all known roles in descending privilege order.
var ValidRoles = []string{RoleAdmin, RoleMember}

// Method describes how the caller was authenticated.
const (
	MethodAPIKey = "apikey"
	MethodDev    = "dev"
)

// Identity represents the authenticated caller for the current request.
type Identity struct {
	WorkspaceID uuid.UUID
	Role        string
	UserID      *uuid.UUID
	APIKeyID    *uuid.UUID
	KeyPrefix   string
	Method      string
}

type ctxKey string

const identityKey ctxKey = "auth_identity"

// NewContext stores the identity in the context.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the identity from the context. Returns nil if no
// identity is set.
func FromContext(ctx context.Context) *Identity {
	v, _ := ctx.Value(identityKey).(*Identity)
	return v
}

// IsValidRole reports whether role is a recognised RBAC role.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// HashAPIKey returns the SHA-256 hex digest of a raw API key.
func HashAPIKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
