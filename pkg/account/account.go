// Package account implements the Account Pool (C2): selecting a
// ProviderAccount with spare capacity for a (provider_id, workspace_id) pair,
// reserving it atomically, tracking cooldowns, and the only mutation path
// for credit balances.
package account

import (
	"time"

	"github.com/google/uuid"
)

// Account is the domain view of a provider_accounts row.
type Account struct {
	ID                    uuid.UUID
	WorkspaceID           uuid.UUID
	ProviderID            string
	Label                 string
	Credentials           map[string]any
	Credits               map[string]int
	CurrentProcessingJobs int
	MaxConcurrent         int
	CooldownUntil         *time.Time
	LastUsedAt            *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// TotalCredits sums all credit-type balances, used as the primary
// candidate-ordering key.
func (a Account) TotalCredits() int {
	total := 0
	for _, v := range a.Credits {
		total += v
	}
	return total
}

// creditPreferenceOrder is the preference order PreferredCreditType applies;
// the Billing Finalizer's own credit-type selection uses the same order.
var creditPreferenceOrder = []string{"web", "openapi"}

// PreferredCreditType returns the first credit type in preference order
// with a positive balance, or "" if none has one.
func (a Account) PreferredCreditType() string {
	for _, ct := range creditPreferenceOrder {
		if a.Credits[ct] > 0 {
			return ct
		}
	}
	for ct, bal := range a.Credits {
		if bal > 0 {
			return ct
		}
	}
	return ""
}
