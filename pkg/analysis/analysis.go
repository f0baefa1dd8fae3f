// Package analysis tracks Analysis jobs: a narrower-scoped sibling of
// Generation that the Status Poller (C6) also advances to a terminal
// state. The analysis itself (plaintext prompt analysis) is an external
// collaborator per spec — this package only owns the lifecycle row, not
// the analysis computation.
package analysis

import (
	"time"

	"github.com/google/uuid"
)

// Status is an Analysis row's lifecycle state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// IsTerminal reports whether status is one of the terminal states.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Analysis is the domain view of an analyses row.
type Analysis struct {
	ID            uuid.UUID
	WorkspaceID   uuid.UUID
	GenerationID  *int64
	Status        Status
	StartedAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
