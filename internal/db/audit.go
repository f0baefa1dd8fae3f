package db

import (
	"context"
	"encoding/json"
	"net/netip"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// CreateAuditLogEntryParams holds parameters for inserting one audit row.
type CreateAuditLogEntryParams struct {
	WorkspaceID uuid.UUID
	UserID      pgtype.UUID
	APIKeyID    pgtype.UUID
	Action      string
	Resource    string
	ResourceID  string
	Detail      json.RawMessage
	IPAddress   *netip.Addr
	UserAgent   *string
}

// CreateAuditLogEntry inserts one audit log row and returns its id and timestamp.
func (q *Queries) CreateAuditLogEntry(ctx context.Context, p CreateAuditLogEntryParams) (uuid.UUID, time.Time, error) {
	const query = `
		INSERT INTO audit_log (workspace_id, user_id, api_key_id, action, resource, resource_id, detail, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	var id uuid.UUID
	var createdAt time.Time
	err := q.db.QueryRow(ctx, query,
		p.WorkspaceID, p.UserID, p.APIKeyID, p.Action, p.Resource, p.ResourceID, p.Detail, p.IPAddress, p.UserAgent,
	).Scan(&id, &createdAt)
	return id, createdAt, err
}

// AuditLogEntry is one row returned by ListAuditLog.
type AuditLogEntry struct {
	ID         uuid.UUID
	UserID     pgtype.UUID
	APIKeyID   pgtype.UUID
	Action     string
	Resource   string
	ResourceID string
	Detail     json.RawMessage
	IPAddress  *netip.Addr
	UserAgent  *string
	CreatedAt  time.Time
}

// ListAuditLogParams holds parameters for listing a workspace's audit log.
type ListAuditLogParams struct {
	WorkspaceID uuid.UUID
	Limit       int32
	Offset      int32
}

// ListAuditLog returns a workspace's audit log entries, most recent first.
func (q *Queries) ListAuditLog(ctx context.Context, p ListAuditLogParams) ([]AuditLogEntry, error) {
	const query = `
		SELECT id, user_id, api_key_id, action, resource, resource_id, detail, ip_address, user_agent, created_at
		FROM audit_log
		WHERE workspace_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := q.db.Query(ctx, query, p.WorkspaceID, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AuditLogEntry
	for rows.Next() {
		var e AuditLogEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.APIKeyID, &e.Action, &e.Resource, &e.ResourceID,
			&e.Detail, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
