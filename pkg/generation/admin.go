package generation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/duskforge/genforge/internal/eventbus"
	"github.com/duskforge/genforge/pkg/account"
	"github.com/duskforge/genforge/pkg/provider"
)

// AdminService extends Service with the administrative operations exposed
// over HTTP: cancel and the API-level retry (distinct from the Retry
// Controller's same-row auto-retry in pkg/retry).
type AdminService struct {
	*Service
	submissions *SubmissionStore
	accounts    *account.Store
	accountSvc  *account.Service
}

// NewAdminService wraps a Service with account/submission access for
// cancellation and retry.
func NewAdminService(svc *Service, submissions *SubmissionStore, accounts *account.Store, accountSvc *account.Service) *AdminService {
	return &AdminService{Service: svc, submissions: submissions, accounts: accounts, accountSvc: accountSvc}
}

// Cancel implements synchronous cancellation per spec.md §5: if PROCESSING
// with an outstanding submission, the adapter cancel is invoked best-effort;
// regardless of the adapter's response, local state becomes CANCELLED,
// billing is finalized SKIPPED, and the account counter is decremented. A
// later poll that finds the provider job COMPLETED is ignored because
// terminal states are absorbing (MarkTerminal's guarded WHERE clause).
func (s *AdminService) Cancel(ctx context.Context, id int64) (Generation, error) {
	gen, err := s.store.Get(ctx, id)
	if err != nil {
		return Generation{}, fmt.Errorf("loading generation: %w", err)
	}
	if gen.Status.IsTerminal() {
		return gen, nil
	}

	if gen.Status == StatusProcessing && gen.AccountID != nil {
		s.bestEffortAdapterCancel(ctx, gen)
	}

	if _, err := s.store.MarkTerminal(ctx, id, StatusCancelled, nil); err != nil {
		return Generation{}, fmt.Errorf("marking generation cancelled: %w", err)
	}

	if err := s.store.UpdateBilling(ctx, id, BillingUpdate{BillingState: BillingSkipped}); err != nil {
		s.logger.Warn("skipping billing on cancel failed", "generation_id", id, "error", err)
	}

	if gen.AccountID != nil {
		if err := s.accountSvc.ReleaseAccount(ctx, *gen.AccountID); err != nil {
			s.logger.Warn("releasing account on cancel failed", "generation_id", id, "error", err)
		}
	}

	if err := s.bus.Publish(ctx, eventbus.TopicGenerationTerminal, eventbus.EventJobCancelled, map[string]any{
		"generation_id": id, "status": string(StatusCancelled),
	}); err != nil {
		s.logger.Warn("publishing JOB_CANCELLED failed", "generation_id", id, "error", err)
	}

	return s.store.Get(ctx, id)
}

func (s *AdminService) bestEffortAdapterCancel(ctx context.Context, gen Generation) {
	sub, err := s.submissions.Latest(ctx, gen.ID)
	if err != nil {
		return
	}
	adapter, ok := provider.Global().Get(gen.ProviderID)
	if !ok {
		return
	}
	acct, err := s.accounts.Get(ctx, *gen.AccountID)
	if err != nil {
		return
	}
	providerAccount := provider.Account{ID: acct.ID.String(), WorkspaceID: acct.WorkspaceID.String(), Credentials: acct.Credentials}
	adapter.Cancel(ctx, providerAccount, sub.ProviderJobID)
}

// Retry implements the API-level retry path of spec.md §4.9: creates a new
// Generation linked via parent_generation_id, copying raw_params, and
// inheriting retry_count+1. Only a FAILED generation may be retried this
// way; the Retry Controller's auto-retry path reuses the same row instead
// (see pkg/retry).
func (s *AdminService) Retry(ctx context.Context, workspaceID, userID uuid.UUID, id int64) (Generation, error) {
	parent, err := s.store.Get(ctx, id)
	if err != nil {
		return Generation{}, fmt.Errorf("loading generation: %w", err)
	}
	if parent.Status != StatusFailed {
		return Generation{}, &ValidationError{Message: "only a FAILED generation can be retried"}
	}

	var rawParams, canonicalParams map[string]any
	_ = json.Unmarshal(parent.RawParams, &rawParams)
	_ = json.Unmarshal(parent.CanonicalParams, &canonicalParams)

	parentID := parent.ID
	child, err := s.store.Create(ctx, CreateParams{
		WorkspaceID:        workspaceID,
		UserID:             userID,
		Operation:          parent.Operation,
		ProviderID:         parent.ProviderID,
		RawParams:          rawParams,
		CanonicalParams:    canonicalParams,
		Inputs:             parent.Inputs,
		ReproducibleHash:   parent.ReproducibleHash,
		MaxRetries:         parent.MaxRetries,
		ParentGenerationID: &parentID,
	})
	if err != nil {
		return Generation{}, fmt.Errorf("creating retry generation: %w", err)
	}

	if err := s.store.setRetryCount(ctx, child.ID, parent.RetryCount+1); err != nil {
		s.logger.Warn("setting retry_count on retry generation failed", "generation_id", child.ID, "error", err)
	}

	if err := s.bus.Publish(ctx, eventbus.QueueGeneration, eventbus.TaskProcessGeneration, map[string]any{"generation_id": child.ID}); err != nil {
		s.logger.Error("enqueueing retried generation failed", "generation_id", child.ID, "error", err)
	}

	return s.store.Get(ctx, child.ID)
}
