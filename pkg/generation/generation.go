// Package generation implements the Creation Service (C4): request
// validation, content-rating enforcement, canonicalization, dedup/cache
// lookups, persistence, and enqueueing — the single entry point callers use
// to create a Generation.
package generation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is a Generation's lifecycle state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// BillingState tracks whether a Generation's provider usage has been charged.
type BillingState string

const (
	BillingUncharged BillingState = "UNCHARGED"
	BillingCharged   BillingState = "CHARGED"
	BillingSkipped   BillingState = "SKIPPED"
	BillingFailed    BillingState = "FAILED"
)

// Input is one reference a generation consumes, derived from scene_context.
type Input struct {
	Type string `json:"type"`
	Ref  string `json:"ref"`
}

// Generation is the domain view of a generations row.
type Generation struct {
	ID                  int64
	WorkspaceID         uuid.UUID
	UserID              uuid.UUID
	Operation           string
	ProviderID          string
	AccountID           *uuid.UUID
	RawParams           json.RawMessage
	CanonicalParams     json.RawMessage
	Inputs              []Input
	ReproducibleHash    string
	Status              Status
	BillingState        BillingState
	ActualCredits       int
	CreditType          *string
	RetryCount          int
	MaxRetries          int
	ParentGenerationID  *int64
	PromptVersionID     *uuid.UUID
	AssetID             *uuid.UUID
	ErrorMessage        *string
	BillingError        *string
	ScheduledAt         *time.Time
	CreatedAt           time.Time
	StartedAt           *time.Time
	CompletedAt         *time.Time
	ChargedAt           *time.Time
	UpdatedAt           time.Time
}

// IsTerminal reports whether status is one of the terminal states.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ratingLadder is the content-rating order, least to most restrictive.
var ratingLadder = []string{"sfw", "romantic", "mature_implied", "restricted"}

func ratingIndex(rating string) (int, bool) {
	for i, r := range ratingLadder {
		if r == rating {
			return i, true
		}
	}
	return 0, false
}

// ValidationError is a malformed or unsupported create-request — the
// generic "InvalidOperation" taxonomy member for C4 request validation
// failures that are not specifically about provider/operation support
// (see provider.InvalidOperationError for that narrower case).
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// QuotaError is returned when the calling user is at their global
// concurrent-job limit.
type QuotaError struct {
	Message string
}

func (e *QuotaError) Error() string { return e.Message }
