package apikey

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// CreateRequest is the JSON body for POST /api/v1/api-keys. The key is always
// bound to the creating caller's user (the generations it authorizes are
// attributed to that user), so only a human-facing description and role
// are supplied.
type CreateRequest struct {
	Description string `json:"description" validate:"required"`
	Role        string `json:"role" validate:"required,oneof=admin member"`
}

// Response is the JSON response for a single API key (without the raw key).
type Response struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	KeyPrefix   string     `json:"key_prefix"`
	Description string     `json:"description"`
	Role        string     `json:"role"`
	Scopes      []string   `json:"scopes"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// CreateResponse includes the raw key, shown exactly once at creation.
type CreateResponse struct {
	Response
	RawKey string `json:"raw_key"`
}

// Row represents a row returned from the api_keys table.
type Row struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	UserID      uuid.UUID
	KeyHash     string
	KeyPrefix   string
	Description string
	Role        string
	Scopes      []string
	LastUsedAt  pgtype.Timestamptz
	ExpiresAt   pgtype.Timestamptz
	CreatedAt   time.Time
}

// ToResponse converts a Row to a Response DTO.
func (r *Row) ToResponse() Response {
	resp := Response{
		ID:          r.ID,
		UserID:      r.UserID,
		KeyPrefix:   r.KeyPrefix,
		Description: r.Description,
		Role:        r.Role,
		Scopes:      ensureSlice(r.Scopes),
		CreatedAt:   r.CreatedAt,
	}
	if r.LastUsedAt.Valid {
		t := r.LastUsedAt.Time
		resp.LastUsedAt = &t
	}
	if r.ExpiresAt.Valid {
		t := r.ExpiresAt.Time
		resp.ExpiresAt = &t
	}
	return resp
}

// ensureSlice returns s if non-nil, otherwise an empty slice.
func ensureSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
