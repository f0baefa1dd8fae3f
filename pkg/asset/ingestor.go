package asset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/duskforge/genforge/pkg/provider"
)

const (
	downloadAttempts = 3
	downloadBackoff  = 2 * time.Second
	downloadTimeout  = 60 * time.Second
)

// Ingestor implements the Asset Ingestor (C7): download-with-retry,
// free-disk check, content-addressed storage, and the cross-provider
// upload_asset reuse path.
type Ingestor struct {
	store         *Store
	httpClient    *http.Client
	storagePath   string
	minFreeDiskGB int
	logger        *slog.Logger
}

// NewIngestor creates an Ingestor rooted at storagePath, refusing to write
// if free disk space drops below minFreeDiskGB.
func NewIngestor(store *Store, storagePath string, minFreeDiskGB int, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		store:         store,
		httpClient:    &http.Client{Timeout: downloadTimeout},
		storagePath:   storagePath,
		minFreeDiskGB: minFreeDiskGB,
		logger:        logger,
	}
}

// Ingest resolves a submission's media URL, downloads it with
// exponential-backoff retry, verifies free disk space, computes SHA-256,
// and stores the result at a content-addressed path.
func (ing *Ingestor) Ingest(ctx context.Context, workspaceID uuid.UUID, mediaType, remoteURL string) (Asset, error) {
	a, err := ing.store.Create(ctx, workspaceID, mediaType, remoteURL)
	if err != nil {
		return Asset{}, fmt.Errorf("creating asset record: %w", err)
	}

	tmpFile, size, err := ing.downloadWithRetry(ctx, remoteURL)
	if err != nil {
		_ = ing.store.MarkFailed(ctx, a.ID)
		return Asset{}, fmt.Errorf("downloading asset: %w", err)
	}
	defer os.Remove(tmpFile)

	if err := ing.checkFreeSpace(); err != nil {
		_ = ing.store.MarkFailed(ctx, a.ID)
		return Asset{}, err
	}

	sum, err := sha256File(tmpFile)
	if err != nil {
		_ = ing.store.MarkFailed(ctx, a.ID)
		return Asset{}, fmt.Errorf("hashing asset: %w", err)
	}

	storedKey, err := ing.place(tmpFile, sum)
	if err != nil {
		_ = ing.store.MarkFailed(ctx, a.ID)
		return Asset{}, fmt.Errorf("storing asset: %w", err)
	}

	if err := ing.store.MarkStored(ctx, a.ID, storedKey, sum, size); err != nil {
		return Asset{}, fmt.Errorf("recording stored asset: %w", err)
	}

	return ing.store.Get(ctx, a.ID)
}

// downloadWithRetry pulls remoteURL to a temp file, retrying up to
// downloadAttempts times with exponential backoff.
func (ing *Ingestor) downloadWithRetry(ctx context.Context, remoteURL string) (string, int64, error) {
	var lastErr error
	backoff := downloadBackoff

	for attempt := 1; attempt <= downloadAttempts; attempt++ {
		path, size, err := ing.download(ctx, remoteURL)
		if err == nil {
			return path, size, nil
		}
		lastErr = err
		ing.logger.Warn("asset download attempt failed", "attempt", attempt, "url", remoteURL, "error", err)

		if attempt < downloadAttempts {
			select {
			case <-ctx.Done():
				return "", 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return "", 0, fmt.Errorf("download failed after %d attempts: %w", downloadAttempts, lastErr)
}

func (ing *Ingestor) download(ctx context.Context, remoteURL string) (string, int64, error) {
	reqCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("building request: %w", err)
	}

	resp, err := ing.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("requesting asset: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("asset host returned HTTP %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "genforge-asset-*")
	if err != nil {
		return "", 0, fmt.Errorf("creating temp file: %w", err)
	}
	defer tmp.Close()

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("writing temp file: %w", err)
	}
	return tmp.Name(), n, nil
}

// checkFreeSpace aborts with a clear error if the storage volume has less
// than minFreeDiskGB available.
func (ing *Ingestor) checkFreeSpace() error {
	if ing.minFreeDiskGB <= 0 {
		return nil
	}
	if err := os.MkdirAll(ing.storagePath, 0o755); err != nil {
		return fmt.Errorf("preparing storage path: %w", err)
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(ing.storagePath, &stat); err != nil {
		return fmt.Errorf("statting storage volume: %w", err)
	}

	freeBytes := stat.Bavail * uint64(stat.Bsize)
	minBytes := uint64(ing.minFreeDiskGB) * 1 << 30
	if freeBytes < minBytes {
		return fmt.Errorf("insufficient free disk space: %d bytes available, %d required", freeBytes, minBytes)
	}
	return nil
}

// place moves a downloaded temp file to its content-addressed location,
// sharded by the first two hex characters of its hash. An existing file at
// the destination is treated as success (idempotent writers).
func (ing *Ingestor) place(tmpFile, sum string) (string, error) {
	shard := sum[:2]
	storedKey := filepath.Join(shard, sum)
	dest := filepath.Join(ing.storagePath, storedKey)

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("creating shard directory: %w", err)
	}

	if _, err := os.Stat(dest); err == nil {
		return storedKey, nil
	}

	data, err := os.ReadFile(tmpFile)
	if err != nil {
		return "", fmt.Errorf("reading temp file: %w", err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("writing content-addressed file: %w", err)
	}
	return storedKey, nil
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// UploadForReuse invokes the target provider's upload_asset for
// cross-provider reuse, caching the returned reference and appending to
// upload_history. Failures are recorded but never propagated — the caller
// must not fail the ingest because of a metadata write or upload error.
func (ing *Ingestor) UploadForReuse(ctx context.Context, assetID uuid.UUID, targetProviderID string, adapter provider.Adapter, account provider.Account, localPath string) {
	attempt := UploadAttempt{ProviderID: targetProviderID, At: time.Now()}

	ref, err := adapter.UploadAsset(ctx, account, localPath)
	if err != nil {
		attempt.Success = false
		attempt.Error = err.Error()
	} else {
		attempt.Success = true
		attempt.Ref = ref
	}

	if err := ing.store.RecordProviderUpload(ctx, assetID, targetProviderID, attempt); err != nil {
		ing.logger.Warn("recording upload_asset history failed", "asset_id", assetID, "provider_id", targetProviderID, "error", err)
	}
}

// LocalPath returns the absolute filesystem path for a stored_key.
func (ing *Ingestor) LocalPath(storedKey string) string {
	return filepath.Join(ing.storagePath, storedKey)
}
