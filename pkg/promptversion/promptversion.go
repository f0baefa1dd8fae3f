// Package promptversion implements PromptVersion find-or-create by
// normalized-text SHA-256: identical prompt text within a workspace always
// resolves to the same PromptVersion row, so prompt analysis is computed
// once per unique prompt rather than per generation.
package promptversion

import (
	"time"

	"github.com/google/uuid"
)

// PromptVersion is the domain view of a prompt_versions row.
type PromptVersion struct {
	ID            uuid.UUID
	WorkspaceID   uuid.UUID
	TextSHA256    string
	PromptText    string
	Language      string
	TokenEstimate int
	CreatedAt     time.Time
}
