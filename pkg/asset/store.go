package asset

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/duskforge/genforge/internal/db"
)

const rowColumns = `id, workspace_id, media_type, remote_url, stored_key, sha256,
	file_size, ingest_status, provider_uploads, upload_history, created_at, updated_at`

// Store provides database operations for assets.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a Store bound to the given database handle.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

func scanAsset(row pgx.Row) (Asset, error) {
	var a Asset
	var providerUploads, uploadHistory []byte

	err := row.Scan(
		&a.ID, &a.WorkspaceID, &a.MediaType, &a.RemoteURL, &a.StoredKey, &a.SHA256,
		&a.FileSize, &a.IngestStatus, &providerUploads, &uploadHistory, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return Asset{}, err
	}

	if len(providerUploads) > 0 {
		_ = json.Unmarshal(providerUploads, &a.ProviderUploads)
	}
	if len(uploadHistory) > 0 {
		_ = json.Unmarshal(uploadHistory, &a.UploadHistory)
	}
	return a, nil
}

// Create inserts a new asset row, PENDING, for a remote URL awaiting
// download.
func (s *Store) Create(ctx context.Context, workspaceID uuid.UUID, mediaType, remoteURL string) (Asset, error) {
	const query = `
		INSERT INTO assets (workspace_id, media_type, remote_url, ingest_status)
		VALUES ($1, $2, $3, 'PENDING')
		RETURNING ` + rowColumns
	row := s.dbtx.QueryRow(ctx, query, workspaceID, mediaType, remoteURL)
	return scanAsset(row)
}

// Get fetches a single asset by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Asset, error) {
	query := `SELECT ` + rowColumns + ` FROM assets WHERE id = $1`
	return scanAsset(s.dbtx.QueryRow(ctx, query, id))
}

// MarkStored records a successful content-addressed write.
func (s *Store) MarkStored(ctx context.Context, id uuid.UUID, storedKey, sha256 string, fileSize int64) error {
	const query = `
		UPDATE assets
		SET ingest_status = 'STORED', stored_key = $2, sha256 = $3, file_size = $4, updated_at = now()
		WHERE id = $1`
	_, err := s.dbtx.Exec(ctx, query, id, storedKey, sha256, fileSize)
	return err
}

// MarkFailed records a download/storage failure, leaving remote_url intact
// so a future retry can re-attempt.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID) error {
	const query = `UPDATE assets SET ingest_status = 'FAILED', updated_at = now() WHERE id = $1`
	_, err := s.dbtx.Exec(ctx, query, id)
	return err
}

// RecordProviderUpload caches a cross-provider upload_asset reference and
// appends to upload_history (best-effort; callers must never fail the
// ingest because this write failed).
func (s *Store) RecordProviderUpload(ctx context.Context, id uuid.UUID, providerID string, attempt UploadAttempt) error {
	asset, err := s.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("loading asset for upload history: %w", err)
	}

	if asset.ProviderUploads == nil {
		asset.ProviderUploads = map[string]string{}
	}
	if attempt.Success {
		asset.ProviderUploads[providerID] = attempt.Ref
	}
	asset.UploadHistory = append(asset.UploadHistory, attempt)

	providerUploads, err := json.Marshal(asset.ProviderUploads)
	if err != nil {
		return fmt.Errorf("marshaling provider uploads: %w", err)
	}
	uploadHistory, err := json.Marshal(asset.UploadHistory)
	if err != nil {
		return fmt.Errorf("marshaling upload history: %w", err)
	}

	const query = `
		UPDATE assets SET provider_uploads = $2, upload_history = $3, updated_at = now()
		WHERE id = $1`
	_, err = s.dbtx.Exec(ctx, query, id, providerUploads, uploadHistory)
	return err
}
