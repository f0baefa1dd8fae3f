// Package retry implements the Retry Controller (C9): classifying a
// failed generation's error message and, when eligible, re-enqueueing the
// same row for another attempt.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/duskforge/genforge/internal/eventbus"
	"github.com/duskforge/genforge/pkg/generation"
)

// nonRetryablePatterns are checked first; any match short-circuits to
// false regardless of the retryable lists below.
var nonRetryablePatterns = []string{
	"content filtered (prompt)",
	"content filtered (text)",
	"prompt was rejected",
	"text input was rejected",
}

// contentFilterKeywords are retryable: output-side filtering varies
// between attempts even with identical inputs.
var contentFilterKeywords = []string{
	"content filter",
	"content policy",
	"inappropriate content",
	"safety filter",
	"moderation",
	"nsfw",
	"adult content",
	"explicit content",
	"terminal status: filtered",
	"terminal status: failed",
	"provider reported terminal status",
	"safety or policy reasons",
	"content moderation failed",
	"content filtered (output)",
	"content filtered (image)",
}

// temporaryErrorKeywords are retryable transient provider/network issues.
var temporaryErrorKeywords = []string{
	"timeout",
	"rate limit",
	"temporarily unavailable",
	"try again",
	"service unavailable",
	"server error",
}

// ShouldAutoRetry reports whether a FAILED generation is eligible for
// automatic same-row retry, per the keyword classification ported
// verbatim from the original implementation's should_auto_retry.
func ShouldAutoRetry(gen generation.Generation, maxRetries int, autoRetryEnabled bool) bool {
	if !autoRetryEnabled {
		return false
	}
	if gen.Status != generation.StatusFailed {
		return false
	}
	if gen.ErrorMessage == nil || strings.TrimSpace(*gen.ErrorMessage) == "" {
		return false
	}
	if gen.RetryCount >= maxRetries {
		return false
	}

	errMsg := strings.ToLower(*gen.ErrorMessage)

	for _, pattern := range nonRetryablePatterns {
		if strings.Contains(errMsg, pattern) {
			return false
		}
	}

	for _, kw := range contentFilterKeywords {
		if strings.Contains(errMsg, kw) {
			return true
		}
	}
	for _, kw := range temporaryErrorKeywords {
		if strings.Contains(errMsg, kw) {
			return true
		}
	}

	return false
}

// Controller wires ShouldAutoRetry to the same-row reuse path: on a
// FAILED transition, reset the row to PENDING and re-enqueue it.
type Controller struct {
	store            *generation.Store
	bus              *eventbus.Bus
	logger           *slog.Logger
	maxRetries       int
	autoRetryEnabled bool
}

// NewController creates a retry Controller.
func NewController(store *generation.Store, bus *eventbus.Bus, logger *slog.Logger, maxRetries int, autoRetryEnabled bool) *Controller {
	return &Controller{store: store, bus: bus, logger: logger, maxRetries: maxRetries, autoRetryEnabled: autoRetryEnabled}
}

// MaybeRetry is invoked after a generation transitions to FAILED. If
// eligible, it resets the row to PENDING (incrementing retry_count,
// preserving error_message) and re-enqueues process_generation.
func (c *Controller) MaybeRetry(ctx context.Context, gen generation.Generation) error {
	if !ShouldAutoRetry(gen, c.maxRetries, c.autoRetryEnabled) {
		return nil
	}

	ok, err := c.store.ResetForRetry(ctx, gen.ID)
	if err != nil {
		return fmt.Errorf("resetting generation %d for retry: %w", gen.ID, err)
	}
	if !ok {
		// Lost a race (already retried or moved on); not an error.
		return nil
	}

	c.logger.Info("auto-retrying generation", "generation_id", gen.ID, "retry_count", gen.RetryCount+1)

	if err := c.bus.Publish(ctx, eventbus.QueueGeneration, eventbus.TaskProcessGeneration, map[string]any{"generation_id": gen.ID}); err != nil {
		return fmt.Errorf("enqueueing retried generation %d: %w", gen.ID, err)
	}
	return nil
}
