// Package app wires the genforge binary together: configuration, database
// and Redis connections, migrations, and the two runtime modes (api, worker)
// built from every domain package under pkg/.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/duskforge/genforge/internal/audit"
	"github.com/duskforge/genforge/internal/auth"
	"github.com/duskforge/genforge/internal/config"
	"github.com/duskforge/genforge/internal/db"
	"github.com/duskforge/genforge/internal/eventbus"
	"github.com/duskforge/genforge/internal/httpserver"
	"github.com/duskforge/genforge/internal/platform"
	"github.com/duskforge/genforge/internal/telemetry"
	"github.com/duskforge/genforge/internal/worker"
	"github.com/duskforge/genforge/pkg/account"
	"github.com/duskforge/genforge/pkg/analysis"
	"github.com/duskforge/genforge/pkg/apikey"
	"github.com/duskforge/genforge/pkg/asset"
	"github.com/duskforge/genforge/pkg/billing"
	"github.com/duskforge/genforge/pkg/cache"
	"github.com/duskforge/genforge/pkg/generation"
	"github.com/duskforge/genforge/pkg/promptversion"
	_ "github.com/duskforge/genforge/pkg/provider/pixverse"
	_ "github.com/duskforge/genforge/pkg/provider/remaker"
	_ "github.com/duskforge/genforge/pkg/provider/sora"
	"github.com/duskforge/genforge/pkg/retry"
	"github.com/duskforge/genforge/pkg/slack"
	"github.com/duskforge/genforge/pkg/user"
)

// Run is the main application entry point. It reads config, connects to
// infrastructure, runs migrations, and starts the requested mode (api or
// worker). The provider adapter registry (pkg/provider/{pixverse,sora,
// remaker}) self-registers via blank imports above, matching the
// plugin-manifest discovery spec.md §4.1 describes.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting genforge", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, "genforge", "dev")
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("shutting down tracer", "error", err)
		}
	}()

	pool, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry()
	bus := eventbus.New(rdb, logger)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, pool, rdb, metricsReg, bus)
	case "worker":
		return runWorker(ctx, cfg, logger, pool, rdb, metricsReg, bus)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// domain holds every domain service shared between the api and worker
// wiring paths, keeping Run's two modes built from a single construction.
type domain struct {
	genStore      *generation.Store
	subStore      *generation.SubmissionStore
	analysisStore *analysis.Store
	promptStore   *promptversion.Store
	accountStore  *account.Store
	assetStore    *asset.Store
	apikeyDB      db.DBTX

	cache      *cache.Cache
	accountSvc *account.Service
	genSvc     *generation.Service
	adminSvc   *generation.AdminService
	ingestor   *asset.Ingestor
	finalizer  *billing.Finalizer
	retryCtl   *retry.Controller
	notifier   *slack.Notifier
}

func buildDomain(cfg *config.Config, logger *slog.Logger, pool *pgxpool.Pool, rdb *redis.Client, bus *eventbus.Bus) *domain {
	d := &domain{
		genStore:      generation.NewStore(pool),
		subStore:      generation.NewSubmissionStore(pool),
		analysisStore: analysis.NewStore(pool),
		promptStore:   promptversion.NewStore(pool),
		accountStore:  account.NewStore(pool),
		assetStore:    asset.NewStore(pool),
		apikeyDB:      pool,
	}

	d.notifier = slack.NewNotifier(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)
	if d.notifier.IsEnabled() {
		logger.Info("slack notifier enabled", "channel", cfg.SlackAlertChannel)
	} else {
		logger.Info("slack notifier disabled (SLACK_BOT_TOKEN not set)")
	}

	d.cache = cache.New(rdb, logger)
	d.accountSvc = account.NewService(pool, logger, telemetry.AccountReservationsTotal, d.notifier)
	d.genSvc = generation.NewService(d.genStore, d.promptStore, d.cache, bus, logger, telemetry.GenerationsCreatedTotal, cfg.UserConcurrencyLimit)
	d.adminSvc = generation.NewAdminService(d.genSvc, d.subStore, d.accountStore, d.accountSvc)
	d.ingestor = asset.NewIngestor(d.assetStore, cfg.StoragePath, cfg.MinFreeDiskGB, logger)
	d.finalizer = billing.NewFinalizer(d.genStore, d.accountSvc, logger, d.notifier)
	d.retryCtl = retry.NewController(d.genStore, bus, logger, cfg.MaxRetryAttempts, cfg.AutoRetryEnabled)

	return d
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, pool *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry, bus *eventbus.Bus) error {
	d := buildDomain(cfg, logger, pool, rdb, bus)

	authStore := auth.NewPgStorage(pool)
	authenticator := auth.NewAuthenticator(authStore, cfg.DevMode)
	if cfg.DevMode {
		logger.Info("auth: dev mode enabled (X-Workspace-ID header accepted without an API key)")
	}

	auditWriter := audit.NewWriter(pool, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	srv := httpserver.NewServer(cfg, logger, pool, rdb, metricsReg, authenticator)

	generationHandler := generation.NewHandler(logger, auditWriter, d.adminSvc)
	srv.APIRouter.Mount("/generations", generationHandler.Routes())

	accountHandler := account.NewHandler(logger, auditWriter, pool)
	srv.APIRouter.Mount("/provider-accounts", accountHandler.Routes())

	apikeyHandler := apikey.NewHandler(logger, auditWriter, d.apikeyDB)
	srv.APIRouter.Mount("/api-keys", apikeyHandler.Routes())

	userHandler := user.NewHandler(logger, auditWriter, d.apikeyDB)
	srv.APIRouter.Mount("/users", userHandler.Routes())

	auditHandler := audit.NewHandler(logger, pool)
	srv.APIRouter.Mount("/audit-log", auditHandler.Routes())

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, pool *pgxpool.Pool, rdb *redis.Client, _ *prometheus.Registry, bus *eventbus.Bus) error {
	d := buildDomain(cfg, logger, pool, rdb, bus)

	workerCfg, err := parseWorkerConfig(cfg)
	if err != nil {
		return fmt.Errorf("parsing worker timing config: %w", err)
	}

	fleet := worker.New(
		workerCfg,
		logger,
		bus,
		d.genStore,
		d.subStore,
		d.analysisStore,
		d.accountSvc,
		d.finalizer,
		d.retryCtl,
		d.ingestor,
		d.notifier,
	)

	return fleet.Run(ctx)
}

func parseWorkerConfig(cfg *config.Config) (worker.Config, error) {
	durations := map[string]string{
		"poll interval":      cfg.PollInterval,
		"processing timeout": cfg.ProcessingTimeout,
		"analysis timeout":   cfg.AnalysisTimeout,
		"requeue interval":   cfg.RequeueInterval,
		"requeue staleness":  cfg.RequeueStaleness,
		"reconcile interval": cfg.ReconcileInterval,
	}
	parsed := make(map[string]time.Duration, len(durations))
	for name, raw := range durations {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return worker.Config{}, fmt.Errorf("%s %q: %w", name, raw, err)
		}
		parsed[name] = d
	}

	return worker.Config{
		Concurrency:       cfg.WorkerConcurrency,
		PollInterval:      parsed["poll interval"],
		ProcessingTimeout: parsed["processing timeout"],
		AnalysisTimeout:   parsed["analysis timeout"],
		RequeueInterval:   parsed["requeue interval"],
		RequeueStaleness:  parsed["requeue staleness"],
		RequeueBatchCap:   cfg.RequeueBatchCap,
		ReconcileInterval: parsed["reconcile interval"],
	}, nil
}
