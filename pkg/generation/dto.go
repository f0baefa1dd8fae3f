package generation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CreateRequest is the JSON body for POST /api/v1/generations. Only the
// structured params shape (generation_config/scene_context/player_context/
// social_context) is accepted; legacy flat payloads are rejected with 422
// by the required validate tags on the structured sections.
type CreateRequest struct {
	Operation       string         `json:"operation" validate:"required,oneof=text_to_video image_to_video text_to_image image_to_image video_extend video_transition fusion"`
	ProviderID      string         `json:"provider_id" validate:"required"`
	GenerationConfig map[string]any `json:"generation_config" validate:"required"`
	SceneContext    map[string]any `json:"scene_context" validate:"required"`
	PlayerContext   map[string]any `json:"player_context"`
	SocialContext   map[string]any `json:"social_context" validate:"required"`
	PromptVersionID *string        `json:"prompt_version_id" validate:"omitempty,uuid"`
	ForceNew        bool           `json:"force_new"`
	ScheduledAt     *time.Time     `json:"scheduled_at"`
}

// Response is the JSON response for a single generation.
type Response struct {
	ID                 int64           `json:"id"`
	Operation          string          `json:"operation"`
	ProviderID         string          `json:"provider_id"`
	Status             Status          `json:"status"`
	BillingState       BillingState    `json:"billing_state"`
	ActualCredits      int             `json:"actual_credits"`
	CreditType         *string         `json:"credit_type,omitempty"`
	RetryCount         int             `json:"retry_count"`
	MaxRetries         int             `json:"max_retries"`
	ParentGenerationID *int64          `json:"parent_generation_id,omitempty"`
	PromptVersionID    *uuid.UUID      `json:"prompt_version_id,omitempty"`
	AssetID            *uuid.UUID      `json:"asset_id,omitempty"`
	CanonicalParams    json.RawMessage `json:"canonical_params"`
	ErrorMessage       *string         `json:"error_message,omitempty"`
	BillingError       *string         `json:"billing_error,omitempty"`
	ScheduledAt        *time.Time      `json:"scheduled_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	StartedAt          *time.Time      `json:"started_at,omitempty"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// ToResponse converts a Generation to its JSON DTO.
func (g Generation) ToResponse() Response {
	return Response{
		ID:                 g.ID,
		Operation:          g.Operation,
		ProviderID:         g.ProviderID,
		Status:             g.Status,
		BillingState:       g.BillingState,
		ActualCredits:      g.ActualCredits,
		CreditType:         g.CreditType,
		RetryCount:         g.RetryCount,
		MaxRetries:         g.MaxRetries,
		ParentGenerationID: g.ParentGenerationID,
		PromptVersionID:    g.PromptVersionID,
		AssetID:            g.AssetID,
		CanonicalParams:    g.CanonicalParams,
		ErrorMessage:       g.ErrorMessage,
		BillingError:       g.BillingError,
		ScheduledAt:        g.ScheduledAt,
		CreatedAt:          g.CreatedAt,
		StartedAt:          g.StartedAt,
		CompletedAt:        g.CompletedAt,
		UpdatedAt:          g.UpdatedAt,
	}
}

// ListFilters holds the optional filter parameters for listing generations.
type ListFilters struct {
	Status    string
	Operation string
}
