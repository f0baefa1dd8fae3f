// Package asset implements the Asset Ingestor (C7): downloading completed
// media to content-addressed local storage, and the cross-provider
// upload_asset reuse path.
package asset

import (
	"time"

	"github.com/google/uuid"
)

// IngestStatus tracks where a downloaded asset stands.
type IngestStatus string

const (
	IngestPending IngestStatus = "PENDING"
	IngestStored  IngestStatus = "STORED"
	IngestFailed  IngestStatus = "FAILED"
)

// UploadAttempt records one cross-provider upload_asset call, appended to
// Asset.UploadHistory best-effort.
type UploadAttempt struct {
	ProviderID string    `json:"provider_id"`
	Success    bool      `json:"success"`
	Ref        string    `json:"ref,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Asset is the domain view of a produced artifact.
type Asset struct {
	ID              uuid.UUID
	WorkspaceID     uuid.UUID
	MediaType       string
	RemoteURL       string
	StoredKey       *string
	SHA256          *string
	FileSize        *int64
	IngestStatus    IngestStatus
	ProviderUploads map[string]string
	UploadHistory   []UploadAttempt
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
