// Package billing implements the Billing Finalizer (C8): idempotent
// credit deduction on a Generation's terminal transition.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/duskforge/genforge/pkg/account"
	"github.com/duskforge/genforge/pkg/generation"
	"github.com/duskforge/genforge/pkg/provider"
	"github.com/duskforge/genforge/pkg/slack"
)

// Finalizer finalizes billing for a terminal Generation, grounded
// verbatim on the original finalize_billing state machine.
type Finalizer struct {
	store      *generation.Store
	accountSvc *account.Service
	logger     *slog.Logger
	notifier   *slack.Notifier
}

// NewFinalizer creates a Finalizer. notifier may be nil or disabled; a
// failed charge always posts an alert so a human notices the workspace
// went unbilled, but a disabled notifier only logs.
func NewFinalizer(store *generation.Store, accountSvc *account.Service, logger *slog.Logger, notifier *slack.Notifier) *Finalizer {
	return &Finalizer{store: store, accountSvc: accountSvc, logger: logger, notifier: notifier}
}

// updateBilling applies upd and, if it leaves the generation in
// BillingFailed, posts an operational alert.
func (f *Finalizer) updateBilling(ctx context.Context, gen generation.Generation, upd generation.BillingUpdate) error {
	err := f.store.UpdateBilling(ctx, gen.ID, upd)
	if upd.BillingState == generation.BillingFailed && f.notifier != nil {
		detail := ""
		if upd.BillingError != nil {
			detail = *upd.BillingError
		}
		if postErr := f.notifier.PostAlert(ctx, slack.AlertInfo{
			Kind:        "billing_failed",
			Severity:    "critical",
			Title:       fmt.Sprintf("billing failed for generation %d", gen.ID),
			Description: detail,
			WorkspaceID: gen.WorkspaceID.String(),
			ProviderID:  gen.ProviderID,
		}); postErr != nil {
			f.logger.Warn("posting billing-failed alert", "generation_id", gen.ID, "error", postErr)
		}
	}
	return err
}

// Finalize runs the idempotent billing contract of spec.md §4.8. accountID
// is the account the submission ran against, if known; adapter and
// actualDuration are used only on the COMPLETED path to compute cost.
func (f *Finalizer) Finalize(ctx context.Context, gen generation.Generation, accountID *uuid.UUID, adapter provider.Adapter, actualDuration time.Duration) error {
	if gen.BillingState == generation.BillingCharged || gen.BillingState == generation.BillingSkipped {
		return nil
	}
	if !gen.Status.IsTerminal() {
		return nil
	}

	if gen.Status != generation.StatusCompleted {
		return f.updateBilling(ctx, gen, generation.BillingUpdate{
			BillingState: generation.BillingSkipped,
			AccountID:    accountID,
		})
	}

	if accountID == nil {
		msg := "no account found for billing"
		return f.updateBilling(ctx, gen, generation.BillingUpdate{
			BillingState: generation.BillingFailed,
			BillingError: &msg,
		})
	}

	if adapter == nil {
		msg := "provider adapter not found for billing"
		return f.updateBilling(ctx, gen, generation.BillingUpdate{
			BillingState: generation.BillingFailed,
			AccountID:    accountID,
			BillingError: &msg,
		})
	}

	var canonicalParams map[string]any
	_ = json.Unmarshal(gen.CanonicalParams, &canonicalParams)
	actualCredits := adapter.ComputeActualCredits(provider.Operation(gen.Operation), canonicalParams, actualDuration)

	if actualCredits <= 0 {
		return f.updateBilling(ctx, gen, generation.BillingUpdate{
			BillingState: generation.BillingSkipped,
			AccountID:    accountID,
		})
	}

	creditType := ""
	if gen.CreditType != nil {
		creditType = *gen.CreditType
	}
	if creditType == "" {
		acct, err := f.accountSvc.GetCredits(ctx, *accountID)
		if err != nil {
			msg := "failed to load account credits: " + err.Error()
			return f.updateBilling(ctx, gen, generation.BillingUpdate{
				BillingState: generation.BillingFailed, ActualCredits: actualCredits,
				AccountID: accountID, BillingError: &msg,
			})
		}
		creditType = preferredCreditType(acct)
		if creditType == "" {
			msg := "no credits available for billing"
			return f.updateBilling(ctx, gen, generation.BillingUpdate{
				BillingState: generation.BillingFailed, ActualCredits: actualCredits,
				AccountID: accountID, BillingError: &msg,
			})
		}
	}

	ok, err := f.accountSvc.DeductCredit(ctx, *accountID, creditType, actualCredits)
	if err != nil || !ok {
		msg := "credit deduction failed"
		if err != nil {
			msg = err.Error()
		}
		return f.updateBilling(ctx, gen, generation.BillingUpdate{
			BillingState: generation.BillingFailed, ActualCredits: actualCredits,
			AccountID: accountID, CreditType: &creditType, BillingError: &msg,
		})
	}

	now := time.Now()
	return f.updateBilling(ctx, gen, generation.BillingUpdate{
		BillingState: generation.BillingCharged, ActualCredits: actualCredits,
		AccountID: accountID, CreditType: &creditType, ChargedAt: &now,
	})
}

// preferredCreditType picks web > openapi > any available balance.
func preferredCreditType(credits map[string]int) string {
	if credits["web"] > 0 {
		return "web"
	}
	if credits["openapi"] > 0 {
		return "openapi"
	}
	for ct, bal := range credits {
		if bal > 0 {
			return ct
		}
	}
	return ""
}
