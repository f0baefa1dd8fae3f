package account

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/duskforge/genforge/internal/db"
	"github.com/duskforge/genforge/pkg/provider"
	"github.com/duskforge/genforge/pkg/slack"
)

// backoffBase is the cooldown applied after a provider auth, quota or
// rate-limit failure; backoffMax is its upper bound.
const (
	backoffBase = 30 * time.Second
	backoffMax  = 30 * time.Minute
)

// Service implements the Account Pool (C2): candidate selection, atomic
// reservation, cooldown tracking, and the sole mutation path for credits.
type Service struct {
	store      *Store
	logger     *slog.Logger
	reservedCt *prometheus.CounterVec // outcome: reserved|no_account|cooldown
	notifier   *slack.Notifier
}

// NewService creates a Service backed by the given database handle.
// notifier may be nil or disabled; with a nil notifier pool exhaustion is
// not reported, and a disabled one only logs it.
func NewService(dbtx db.DBTX, logger *slog.Logger, reservedCt *prometheus.CounterVec, notifier *slack.Notifier) *Service {
	return &Service{store: NewStore(dbtx), logger: logger, reservedCt: reservedCt, notifier: notifier}
}

func (s *Service) observe(outcome string) {
	if s.reservedCt != nil {
		s.reservedCt.WithLabelValues(outcome).Inc()
	}
}

// SelectAndReserveAccount chooses a ProviderAccount for (providerID,
// workspaceID) with available quota and reserves it atomically, retrying
// the next candidate on reservation-race contention.
func (s *Service) SelectAndReserveAccount(ctx context.Context, workspaceID uuid.UUID, providerID string) (Account, error) {
	ids, err := s.store.candidateIDs(ctx, workspaceID, providerID)
	if err != nil {
		return Account{}, fmt.Errorf("listing account candidates: %w", err)
	}

	if len(ids) == 0 {
		if earliest, cdErr := s.store.earliestCooldown(ctx, workspaceID, providerID); cdErr == nil && earliest != nil {
			s.observe("cooldown")
			return Account{}, &provider.AccountCooldownError{ProviderID: providerID, EarliestExpiry: earliest.Format(time.RFC3339)}
		}
		s.observe("no_account")
		s.notifyExhausted(ctx, workspaceID, providerID)
		return Account{}, &provider.NoAccountAvailableError{ProviderID: providerID}
	}

	for _, id := range ids {
		ok, err := s.store.reserve(ctx, id)
		if err != nil {
			return Account{}, fmt.Errorf("reserving account %s: %w", id, err)
		}
		if !ok {
			continue // lost the race to another reservation; try next candidate
		}

		acc, err := s.store.Get(ctx, id)
		if err != nil {
			return Account{}, fmt.Errorf("fetching reserved account: %w", err)
		}
		s.observe("reserved")
		return acc, nil
	}

	s.observe("no_account")
	s.notifyExhausted(ctx, workspaceID, providerID)
	return Account{}, &provider.NoAccountAvailableError{ProviderID: providerID}
}

// notifyExhausted posts a pool-exhaustion alert. Failures to post are
// logged, never returned, since this runs on the hot reservation path.
func (s *Service) notifyExhausted(ctx context.Context, workspaceID uuid.UUID, providerID string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PostAlert(ctx, slack.AlertInfo{
		Kind:        "account_exhausted",
		Severity:    "warning",
		Title:       fmt.Sprintf("no %s accounts available", providerID),
		WorkspaceID: workspaceID.String(),
		ProviderID:  providerID,
	}); err != nil {
		s.logger.Warn("posting account-exhausted alert", "provider_id", providerID, "error", err)
	}
}

// ReleaseAccount decrements the account's in-flight counter. Invoked from
// terminal transitions and the reconciliation job.
func (s *Service) ReleaseAccount(ctx context.Context, accountID uuid.UUID) error {
	if err := s.store.Release(ctx, accountID); err != nil {
		return fmt.Errorf("releasing account %s: %w", accountID, err)
	}
	return nil
}

// RecordProviderFailure puts the account in cooldown for backoffBase when
// the adapter reports an authentication, quota or rate-limit failure;
// other kinds are ignored. The cooldown is the same on every failure and
// does not grow with repeated failures. It does not release the account's
// reservation — callers release separately once the generation that held
// it has finished transitioning.
func (s *Service) RecordProviderFailure(ctx context.Context, accountID uuid.UUID, kind provider.ProviderErrorKind) {
	switch kind {
	case provider.ProviderAuthentication, provider.ProviderQuotaExceeded, provider.ProviderRateLimit:
		until := time.Now().Add(backoffBase)
		if until.Sub(time.Now()) > backoffMax {
			until = time.Now().Add(backoffMax)
		}
		if err := s.store.SetCooldown(ctx, accountID, until); err != nil {
			s.logger.Warn("setting account cooldown", "account_id", accountID, "error", err)
		}
	}
}

// Get fetches a single account by ID, used by the status poller to
// resolve the credentials a reserved generation's adapter calls need.
func (s *Service) Get(ctx context.Context, accountID uuid.UUID) (Account, error) {
	return s.store.Get(ctx, accountID)
}

// GetCredits returns an account's stored credit balances.
func (s *Service) GetCredits(ctx context.Context, accountID uuid.UUID) (map[string]int, error) {
	return s.store.GetCredits(ctx, accountID)
}

// RefreshCredits overwrites an account's stored credit balances after an
// adapter-side refresh.
func (s *Service) RefreshCredits(ctx context.Context, accountID uuid.UUID, credits map[string]int) error {
	return s.store.RefreshCredits(ctx, accountID, credits)
}

// DeductCredit is the only mutation path for credit balances, used by the
// Billing Finalizer.
func (s *Service) DeductCredit(ctx context.Context, accountID uuid.UUID, creditType string, amount int) (bool, error) {
	return s.store.DeductCredit(ctx, accountID, creditType, amount)
}

// ReconcileCounters recomputes current_processing_jobs from the actual
// count of in-flight generations, run periodically (default every 5 min).
func (s *Service) ReconcileCounters(ctx context.Context) error {
	updated, err := s.store.ReconcileCounters(ctx)
	if err != nil {
		return err
	}
	orphaned, err := s.store.ClampOrphanedCounters(ctx)
	if err != nil {
		return err
	}
	if updated+orphaned > 0 {
		s.logger.Info("reconciled account counters", "updated", updated, "clamped_orphans", orphaned)
	}
	return nil
}
