// Package worker implements the background worker fleet: the Submission
// Pipeline (C5) consuming the durable process_generation queue, and the
// single-process periodic scheduler that runs the Status Poller (C6), the
// requeue sweeper, the account-counter reconciler, and the analogous
// analysis-timeout path.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/duskforge/genforge/internal/eventbus"
	"github.com/duskforge/genforge/internal/telemetry"
	"github.com/duskforge/genforge/pkg/account"
	"github.com/duskforge/genforge/pkg/analysis"
	"github.com/duskforge/genforge/pkg/asset"
	"github.com/duskforge/genforge/pkg/billing"
	"github.com/duskforge/genforge/pkg/generation"
	"github.com/duskforge/genforge/pkg/retry"
	"github.com/duskforge/genforge/pkg/slack"
)

// pollTimeoutStormThreshold is the number of processing-timeout
// terminations in a single poll cycle that constitutes a "storm" worth
// paging a human about, rather than the ordinary trickle of slow jobs.
const pollTimeoutStormThreshold = 5

// Config holds the worker fleet's timing knobs, parsed from
// internal/config.Config's string duration fields at startup.
type Config struct {
	Concurrency       int
	PollInterval      time.Duration
	ProcessingTimeout time.Duration
	AnalysisTimeout   time.Duration
	RequeueInterval   time.Duration
	RequeueStaleness  time.Duration
	RequeueBatchCap   int
	ReconcileInterval time.Duration
}

// Fleet wires every background component of the generation pipeline:
// N submission-pipeline consumers plus the single-process cron scheduler.
type Fleet struct {
	cfg    Config
	logger *slog.Logger

	bus           *eventbus.Bus
	genStore      *generation.Store
	subStore      *generation.SubmissionStore
	analysisStore *analysis.Store
	accountSvc    *account.Service
	finalizer     *billing.Finalizer
	retryCtl      *retry.Controller
	ingestor      *asset.Ingestor
	notifier      *slack.Notifier
}

// New creates a worker Fleet. notifier may be nil or disabled.
func New(
	cfg Config,
	logger *slog.Logger,
	bus *eventbus.Bus,
	genStore *generation.Store,
	subStore *generation.SubmissionStore,
	analysisStore *analysis.Store,
	accountSvc *account.Service,
	finalizer *billing.Finalizer,
	retryCtl *retry.Controller,
	ingestor *asset.Ingestor,
	notifier *slack.Notifier,
) *Fleet {
	return &Fleet{
		cfg:           cfg,
		logger:        logger,
		bus:           bus,
		genStore:      genStore,
		subStore:      subStore,
		analysisStore: analysisStore,
		accountSvc:    accountSvc,
		finalizer:     finalizer,
		retryCtl:      retryCtl,
		ingestor:      ingestor,
		notifier:      notifier,
	}
}

// Run starts the submission-pipeline consumer pool and the cron scheduler,
// blocking until ctx is cancelled.
func (f *Fleet) Run(ctx context.Context) error {
	f.logger.Info("worker fleet starting",
		"concurrency", f.cfg.Concurrency,
		"poll_interval", f.cfg.PollInterval,
		"processing_timeout", f.cfg.ProcessingTimeout,
	)

	var wg sync.WaitGroup

	for i := 0; i < f.cfg.Concurrency; i++ {
		wg.Add(1)
		consumer := fmt.Sprintf("genforge-worker-%d", i)
		go func() {
			defer wg.Done()
			if err := f.bus.Subscribe(ctx, eventbus.QueueGeneration, consumer, f.handleGenerationTask); err != nil {
				f.logger.Error("submission pipeline consumer exited", "consumer", consumer, "error", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		f.runCron(ctx, "poll_job_statuses", f.cfg.PollInterval, f.pollJobStatuses)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		f.runCron(ctx, "requeue_pending_generations", f.cfg.RequeueInterval, f.requeuePendingGenerations)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		f.runCron(ctx, "requeue_pending_analyses", f.cfg.RequeueInterval, f.requeuePendingAnalyses)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		f.runCron(ctx, "reconcile_account_counters", f.cfg.ReconcileInterval, f.reconcileAccountCounters)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		f.runCron(ctx, "poll_analysis_timeouts", f.cfg.PollInterval, f.pollAnalysisTimeouts)
	}()

	wg.Wait()
	f.logger.Info("worker fleet stopped")
	return nil
}

// runCron ticks the given task at interval until ctx is cancelled,
// observing its wall time under the named cron label.
func (f *Fleet) runCron(ctx context.Context, name string, interval time.Duration, task func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			if err := task(ctx); err != nil {
				f.logger.Error("cron task failed", "cron", name, "error", err)
			}
			telemetry.PollCycleDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		}
	}
}
