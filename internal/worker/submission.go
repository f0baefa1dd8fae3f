package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/duskforge/genforge/internal/eventbus"
	"github.com/duskforge/genforge/pkg/account"
	"github.com/duskforge/genforge/pkg/generation"
	"github.com/duskforge/genforge/pkg/provider"
)

const maxAccountAttempts = 10

// processGenerationPayload is the JSON body carried on
// eventbus.TaskProcessGeneration tasks.
type processGenerationPayload struct {
	GenerationID int64 `json:"generation_id"`
}

// handleGenerationTask implements process_generation(generation_id), the
// Submission Pipeline (C5).
func (f *Fleet) handleGenerationTask(ctx context.Context, evt eventbus.Event) error {
	if evt.Type != eventbus.TaskProcessGeneration {
		return nil
	}

	var payload processGenerationPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		f.logger.Error("decoding process_generation payload, dropping", "error", err)
		return nil
	}

	return f.processGeneration(ctx, payload.GenerationID)
}

func (f *Fleet) processGeneration(ctx context.Context, id int64) error {
	gen, err := f.genStore.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("loading generation %d: %w", id, err)
	}

	// Step 1: idempotent exit if another worker already advanced it.
	if gen.Status != generation.StatusPending {
		return nil
	}

	// Step 2: a cron will re-dispatch once scheduled_at has passed.
	if gen.ScheduledAt != nil && gen.ScheduledAt.After(time.Now()) {
		return nil
	}

	adapter, ok := provider.Global().Get(gen.ProviderID)
	if !ok {
		return f.failGeneration(ctx, gen, nil, fmt.Sprintf("provider %q is not registered or disabled", gen.ProviderID))
	}

	// Step 3: reserve an account, retrying candidates up to maxAccountAttempts.
	acc, err := f.reserveAccountWithRetries(ctx, gen)
	if err != nil {
		// No account available or all in cooldown: leave PENDING, the
		// requeue sweeper will re-dispatch once capacity frees up.
		return fmt.Errorf("reserving account for generation %d: %w", id, err)
	}

	// Step 4: claim the row for this worker.
	started, err := f.genStore.MarkStarted(ctx, id, acc.ID)
	if err != nil {
		_ = f.accountSvc.ReleaseAccount(ctx, acc.ID)
		return fmt.Errorf("marking generation %d started: %w", id, err)
	}
	if !started {
		// Lost the race to another worker; release the reservation we just took.
		_ = f.accountSvc.ReleaseAccount(ctx, acc.ID)
		return nil
	}
	accountID := acc.ID
	gen.AccountID = &accountID
	gen.Status = generation.StatusProcessing

	f.publishEvent(ctx, eventbus.EventJobStarted, gen, nil)

	var canonicalParams map[string]any
	if err := json.Unmarshal(gen.CanonicalParams, &canonicalParams); err != nil {
		return f.failGeneration(ctx, gen, &accountID, "decoding canonical_params: "+err.Error())
	}

	// Step 5: map parameters and submit to the provider.
	payload, err := adapter.MapParameters(provider.Operation(gen.Operation), canonicalParams)
	if err != nil {
		return f.failGeneration(ctx, gen, &accountID, err.Error())
	}

	submission, err := adapter.Execute(ctx, toProviderAccount(acc), provider.Operation(gen.Operation), payload)
	if err != nil {
		// Step 6: provider errors fail the generation; failGeneration
		// releases the reserved account. Auth/quota/rate-limit kinds also
		// get a cooldown applied before release.
		var provErr *provider.ProviderError
		if errors.As(err, &provErr) {
			f.accountSvc.RecordProviderFailure(ctx, accountID, provErr.Kind)
		}
		return f.failGeneration(ctx, gen, &accountID, err.Error())
	}

	if _, err := f.subStore.Create(ctx, generation.CreateSubmissionParams{
		GenerationID:        id,
		AccountID:           accountID,
		ProviderJobID:       submission.ProviderJobID,
		Status:              string(submission.InitialStatus),
		Response:            submission.Metadata,
		EstimatedCompletion: submission.EstimatedCompletion,
	}); err != nil {
		// The submission already ran provider-side; we cannot safely retry
		// from scratch. The generation stays PROCESSING with the account
		// reserved; the next poll cycle finds no submission row for it,
		// marks it FAILED and releases the account.
		return fmt.Errorf("recording provider submission for generation %d: %w", id, err)
	}

	// Step 7: leave PROCESSING for the status poller to advance.
	return nil
}

// reserveAccountWithRetries attempts account selection up to
// maxAccountAttempts times. The account service's own candidate loop
// already retries reservation-race losers internally, so a failure here
// is a genuine NoAccountAvailable/AccountCooldown condition; the retry
// loop exists to ride out a handful of transient lookup errors before
// giving up and letting the requeue sweeper recover the row later.
func (f *Fleet) reserveAccountWithRetries(ctx context.Context, gen generation.Generation) (account.Account, error) {
	var lastErr error
	for attempt := 0; attempt < maxAccountAttempts; attempt++ {
		acc, err := f.accountSvc.SelectAndReserveAccount(ctx, gen.WorkspaceID, gen.ProviderID)
		if err == nil {
			return acc, nil
		}
		lastErr = err

		var cooldown *provider.AccountCooldownError
		var noAccount *provider.NoAccountAvailableError
		if errors.As(err, &cooldown) || errors.As(err, &noAccount) {
			return account.Account{}, lastErr
		}
	}
	return account.Account{}, lastErr
}

// failGeneration implements step 6: transition to FAILED, release any
// reserved account, finalize billing as SKIPPED, and hand off to the retry
// controller. It releases the reservation for every branch of
// processGeneration that fails the generation after claiming it; the
// branches that fail to claim the row release directly, and a failure to
// record the submission leaves the release to the status poller.
func (f *Fleet) failGeneration(ctx context.Context, gen generation.Generation, accountID *uuid.UUID, message string) error {
	ok, err := f.genStore.MarkTerminal(ctx, gen.ID, generation.StatusFailed, &message)
	if err != nil {
		return fmt.Errorf("marking generation %d failed: %w", gen.ID, err)
	}
	if !ok {
		return nil // already terminal; absorb
	}
	gen.Status = generation.StatusFailed
	gen.ErrorMessage = &message
	gen.AccountID = accountID

	if accountID != nil {
		if err := f.accountSvc.ReleaseAccount(ctx, *accountID); err != nil {
			f.logger.Warn("releasing account after generation failure", "generation_id", gen.ID, "error", err)
		}
	}

	if err := f.finalizer.Finalize(ctx, gen, accountID, nil, 0); err != nil {
		f.logger.Error("finalizing billing for failed generation", "generation_id", gen.ID, "error", err)
	}

	f.publishEvent(ctx, eventbus.EventJobFailed, gen, &message)

	if err := f.retryCtl.MaybeRetry(ctx, gen); err != nil {
		f.logger.Error("auto-retry controller failed", "generation_id", gen.ID, "error", err)
	}
	return nil
}

func (f *Fleet) publishEvent(ctx context.Context, eventType string, gen generation.Generation, errMsg *string) {
	payload := map[string]any{
		"generation_id": gen.ID,
		"user_id":       gen.UserID,
		"status":        gen.Status,
	}
	if errMsg != nil {
		payload["error"] = *errMsg
	}
	topic := eventbus.TopicGenerationCreated
	if gen.Status.IsTerminal() {
		topic = eventbus.TopicGenerationTerminal
	}
	if err := f.bus.Publish(ctx, topic, eventType, payload); err != nil {
		f.logger.Warn("publishing event", "type", eventType, "generation_id", gen.ID, "error", err)
	}
}
