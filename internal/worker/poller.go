package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/duskforge/genforge/internal/eventbus"
	"github.com/duskforge/genforge/pkg/account"
	"github.com/duskforge/genforge/pkg/analysis"
	"github.com/duskforge/genforge/pkg/generation"
	"github.com/duskforge/genforge/pkg/provider"
	"github.com/duskforge/genforge/pkg/slack"
)

// pollJobStatuses implements the Status Poller (C6): advance every
// PROCESSING generation toward a terminal state.
func (f *Fleet) pollJobStatuses(ctx context.Context) error {
	processing, err := f.genStore.ListProcessing(ctx)
	if err != nil {
		return fmt.Errorf("listing processing generations: %w", err)
	}

	timeouts := 0
	for _, gen := range processing {
		timedOut, err := f.pollOne(ctx, gen)
		if err != nil {
			f.logger.Error("polling generation", "generation_id", gen.ID, "error", err)
		}
		if timedOut {
			timeouts++
		}
	}
	if timeouts >= pollTimeoutStormThreshold {
		f.notifyTimeoutStorm(ctx, timeouts)
	}
	return nil
}

// pollOne advances a single generation and reports whether it terminated
// due to a processing timeout, for storm detection.
func (f *Fleet) pollOne(ctx context.Context, gen generation.Generation) (timedOut bool, err error) {
	sub, err := f.subStore.Latest(ctx, gen.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, f.terminalizeGeneration(ctx, gen, generation.StatusFailed, "no submission found for processing generation")
	}
	if err != nil {
		return false, fmt.Errorf("loading latest submission: %w", err)
	}

	if gen.StartedAt != nil && time.Since(*gen.StartedAt) > f.cfg.ProcessingTimeout {
		return true, f.terminalizeGeneration(ctx, gen, generation.StatusFailed, "provider reported terminal status: timeout waiting for completion")
	}

	adapter, ok := provider.Global().Get(gen.ProviderID)
	if !ok {
		return false, f.terminalizeGeneration(ctx, gen, generation.StatusFailed, fmt.Sprintf("provider %q is not registered or disabled", gen.ProviderID))
	}

	var acc account.Account
	if gen.AccountID != nil {
		acc, err = f.accountSvc.Get(ctx, *gen.AccountID)
		if err != nil {
			return false, fmt.Errorf("loading account %s: %w", *gen.AccountID, err)
		}
	}

	result, err := adapter.CheckStatus(ctx, toProviderAccount(acc), sub.ProviderJobID)
	if err != nil {
		var provErr *provider.ProviderError
		if errors.As(err, &provErr) && provErr.Kind == provider.ProviderJobNotFound {
			return false, f.terminalizeGeneration(ctx, gen, generation.StatusFailed, "provider reported terminal status: job not found")
		}
		// Transient lookup error: leave PROCESSING, try again next cycle.
		return false, fmt.Errorf("checking provider status: %w", err)
	}

	switch result.Status {
	case provider.StatusCompleted:
		return false, f.completeGeneration(ctx, gen, adapter, acc, result)
	case provider.StatusFailed:
		return false, f.terminalizeGeneration(ctx, gen, generation.StatusFailed, "provider reported terminal status: failed: "+result.ErrorMessage)
	case provider.StatusFiltered:
		return false, f.terminalizeGeneration(ctx, gen, generation.StatusFailed, "provider reported terminal status: filtered: "+result.ErrorMessage)
	case provider.StatusCancelled:
		return false, f.terminalizeGeneration(ctx, gen, generation.StatusCancelled, "provider reported terminal status: cancelled")
	default:
		// PROCESSING or unknown: leave the generation alone.
		return false, nil
	}
}

// notifyTimeoutStorm posts an alert when a single poll cycle times out an
// unusual number of generations at once, a signal a provider is down
// rather than a handful of individually slow jobs.
func (f *Fleet) notifyTimeoutStorm(ctx context.Context, count int) {
	if f.notifier == nil {
		return
	}
	if err := f.notifier.PostAlert(ctx, slack.AlertInfo{
		Kind:        "poll_timeout_storm",
		Severity:    "critical",
		Title:       fmt.Sprintf("%d generations timed out in one poll cycle", count),
		Description: "a provider may be unresponsive; check account cooldowns and provider status pages",
	}); err != nil {
		f.logger.Warn("posting poll-timeout-storm alert", "count", count, "error", err)
	}
}

// completeGeneration runs the Asset Ingestor (C7) and finalizes billing
// for a generation the provider reports COMPLETED.
func (f *Fleet) completeGeneration(ctx context.Context, gen generation.Generation, adapter provider.Adapter, acc account.Account, result provider.StatusResult) error {
	if len(result.URLs) == 0 {
		return f.terminalizeGeneration(ctx, gen, generation.StatusFailed, "provider reported COMPLETED with no output URL")
	}

	a, err := f.ingestor.Ingest(ctx, gen.WorkspaceID, mediaTypeForOperation(gen.Operation), result.URLs[0])
	if err != nil {
		return f.terminalizeGeneration(ctx, gen, generation.StatusFailed, "ingesting completed asset: "+err.Error())
	}

	if err := f.genStore.SetAssetID(ctx, gen.ID, a.ID); err != nil {
		return fmt.Errorf("recording asset for generation %d: %w", gen.ID, err)
	}

	ok, err := f.genStore.MarkTerminal(ctx, gen.ID, generation.StatusCompleted, nil)
	if err != nil {
		return fmt.Errorf("marking generation %d completed: %w", gen.ID, err)
	}
	if !ok {
		return nil // already terminal; absorbing
	}
	gen.Status = generation.StatusCompleted
	gen.AssetID = &a.ID

	actualDuration := time.Duration(result.Duration * float64(time.Second))
	if err := f.finalizer.Finalize(ctx, gen, gen.AccountID, adapter, actualDuration); err != nil {
		f.logger.Error("finalizing billing for completed generation", "generation_id", gen.ID, "error", err)
	}

	if gen.AccountID != nil {
		if err := f.accountSvc.ReleaseAccount(ctx, *gen.AccountID); err != nil {
			f.logger.Warn("releasing account after completion", "generation_id", gen.ID, "error", err)
		}
	}

	f.publishEvent(ctx, eventbus.EventJobCompleted, gen, nil)
	return nil
}

// terminalizeGeneration implements the FAILED/FILTERED/CANCELLED branch of
// C6 step 5: set the error, transition, finalize billing SKIPPED, release
// the account, and hand off to the retry controller.
func (f *Fleet) terminalizeGeneration(ctx context.Context, gen generation.Generation, to generation.Status, message string) error {
	ok, err := f.genStore.MarkTerminal(ctx, gen.ID, to, &message)
	if err != nil {
		return fmt.Errorf("marking generation %d %s: %w", gen.ID, to, err)
	}
	if !ok {
		return nil
	}
	gen.Status = to
	gen.ErrorMessage = &message

	if err := f.finalizer.Finalize(ctx, gen, gen.AccountID, nil, 0); err != nil {
		f.logger.Error("finalizing billing", "generation_id", gen.ID, "error", err)
	}

	if gen.AccountID != nil {
		if err := f.accountSvc.ReleaseAccount(ctx, *gen.AccountID); err != nil {
			f.logger.Warn("releasing account", "generation_id", gen.ID, "error", err)
		}
	}

	eventType := eventbus.EventJobFailed
	if to == generation.StatusCancelled {
		eventType = eventbus.EventJobCancelled
	}
	f.publishEvent(ctx, eventType, gen, &message)

	if err := f.retryCtl.MaybeRetry(ctx, gen); err != nil {
		f.logger.Error("auto-retry controller failed", "generation_id", gen.ID, "error", err)
	}
	return nil
}

// requeuePendingGenerations implements requeue_pending_generations: a
// recovery mechanism for workers that missed the initial enqueue.
func (f *Fleet) requeuePendingGenerations(ctx context.Context) error {
	olderThan := time.Now().Add(-f.cfg.RequeueStaleness)
	stale, err := f.genStore.ListStalePending(ctx, olderThan, f.cfg.RequeueBatchCap)
	if err != nil {
		return fmt.Errorf("listing stale pending generations: %w", err)
	}

	for _, gen := range stale {
		if err := f.bus.Publish(ctx, eventbus.QueueGeneration, eventbus.TaskProcessGeneration, map[string]any{"generation_id": gen.ID}); err != nil {
			f.logger.Error("requeueing stale generation", "generation_id", gen.ID, "error", err)
			continue
		}
		f.logger.Info("requeued stale pending generation", "generation_id", gen.ID)
	}
	return nil
}

// requeuePendingAnalyses moves stale PENDING analyses straight to
// PROCESSING; nothing is published for them, and pollAnalysisTimeouts
// fails any that are still PROCESSING after AnalysisTimeout.
func (f *Fleet) requeuePendingAnalyses(ctx context.Context) error {
	olderThan := time.Now().Add(-f.cfg.RequeueStaleness)
	stale, err := f.analysisStore.ListStalePending(ctx, olderThan, f.cfg.RequeueBatchCap)
	if err != nil {
		return fmt.Errorf("listing stale pending analyses: %w", err)
	}

	for _, a := range stale {
		if started, err := f.analysisStore.MarkStarted(ctx, a.ID); err != nil {
			f.logger.Error("starting stale analysis", "analysis_id", a.ID, "error", err)
		} else if started {
			f.logger.Info("requeued stale pending analysis", "analysis_id", a.ID)
		}
	}
	return nil
}

// pollAnalysisTimeouts implements the Analysis-side analogue of C6's
// timeout branch, with the spec's shorter default timeout. Analysis
// computation itself is an external collaborator; this only keeps the
// lifecycle row from hanging forever when nothing completes it.
func (f *Fleet) pollAnalysisTimeouts(ctx context.Context) error {
	processing, err := f.analysisStore.ListProcessing(ctx)
	if err != nil {
		return fmt.Errorf("listing processing analyses: %w", err)
	}

	for _, a := range processing {
		if a.StartedAt == nil || time.Since(*a.StartedAt) <= f.cfg.AnalysisTimeout {
			continue
		}
		if _, err := f.analysisStore.MarkTerminal(ctx, a.ID, analysis.StatusFailed); err != nil {
			f.logger.Error("timing out stale analysis", "analysis_id", a.ID, "error", err)
		}
	}
	return nil
}

// reconcileAccountCounters implements reconcile_account_counters, run
// periodically to clamp current_processing_jobs to the actual in-flight
// count after any worker crash leaves it drifted.
func (f *Fleet) reconcileAccountCounters(ctx context.Context) error {
	return f.accountSvc.ReconcileCounters(ctx)
}

func mediaTypeForOperation(operation string) string {
	if strings.Contains(operation, "video") {
		return "video"
	}
	return "image"
}
