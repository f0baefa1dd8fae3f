package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/duskforge/genforge/internal/eventbus"
	"github.com/duskforge/genforge/pkg/cache"
	"github.com/duskforge/genforge/pkg/promptversion"
	"github.com/duskforge/genforge/pkg/provider"
)

// Service implements the Creation Service (C4): the fourteen-step contract
// of spec.md §4.4, orchestrating validation, content-rating enforcement,
// canonicalization, dedup/cache lookups, persistence, and enqueueing.
type Service struct {
	store     *Store
	prompts   *promptversion.Store
	cache     *cache.Cache
	bus       *eventbus.Bus
	logger    *slog.Logger
	createdCt *prometheus.CounterVec // labels: operation, provider_id

	userConcurrencyLimit int
}

// NewService creates a Service. userConcurrencyLimit is the global
// per-user concurrent-job cap enforced by step 1 (GENFORGE_USER_CONCURRENCY_LIMIT).
func NewService(
	store *Store,
	prompts *promptversion.Store,
	c *cache.Cache,
	bus *eventbus.Bus,
	logger *slog.Logger,
	createdCt *prometheus.CounterVec,
	userConcurrencyLimit int,
) *Service {
	if userConcurrencyLimit <= 0 {
		userConcurrencyLimit = 20
	}
	return &Service{
		store: store, prompts: prompts, cache: c, bus: bus, logger: logger,
		createdCt: createdCt, userConcurrencyLimit: userConcurrencyLimit,
	}
}

// Create runs the full creation-service contract and returns the resulting
// Generation — either freshly persisted, or an existing one reused by the
// dedup or cache lookup.
func (s *Service) Create(ctx context.Context, workspaceID, userID uuid.UUID, req CreateRequest) (Generation, error) {
	// Step 1: quota check.
	active, err := s.store.CountActiveForUser(ctx, userID)
	if err != nil {
		return Generation{}, fmt.Errorf("checking user quota: %w", err)
	}
	if active >= s.userConcurrencyLimit {
		return Generation{}, &QuotaError{Message: fmt.Sprintf("user has %d active generations, limit is %d", active, s.userConcurrencyLimit)}
	}

	// Step 2: provider support.
	adapter, ok := provider.Global().Get(req.ProviderID)
	if !ok {
		return Generation{}, &provider.InvalidOperationError{ProviderID: req.ProviderID, Operation: req.Operation}
	}
	if !provider.Global().Supports(req.ProviderID, provider.Operation(req.Operation)) {
		return Generation{}, &provider.InvalidOperationError{ProviderID: req.ProviderID, Operation: req.Operation}
	}

	// Step 3: structured-params validation.
	if err := validateStructuredParams(req.Operation, req.GenerationConfig, req.SceneContext); err != nil {
		return Generation{}, err
	}

	// Step 4: content-rating enforcement.
	clamp, err := applyContentRatingClamp(req.SocialContext, req.GenerationConfig, req.PlayerContext)
	if err != nil {
		return Generation{}, err
	}
	if clamp.Clamped {
		s.logger.Info("content rating clamped",
			"requested", clamp.OriginalRating, "effective_max", clamp.EffectiveMax)
	}

	// Step 5: canonicalization.
	canonicalParams := canonicalizeParams(req)

	// Step 6: input extraction.
	inputs := extractInputs(req.Operation, req.SceneContext)

	// Step 7: reproducible hash.
	hash, err := reproducibleHash(canonicalParams, inputs)
	if err != nil {
		return Generation{}, fmt.Errorf("computing reproducible hash: %w", err)
	}

	// Step 8: dedup lookup.
	if !req.ForceNew {
		if existing, found, err := s.lookupDedup(ctx, hash); err != nil {
			s.logger.Warn("dedup lookup failed, proceeding to create", "error", err)
		} else if found {
			return existing, nil
		}
	}

	// Step 9: strategy-aware cache lookup.
	keyParams := s.cacheKeyParams(req, userID)
	cacheKey := cache.CacheKey(keyParams)
	if !req.ForceNew {
		if existing, found, err := s.lookupCache(ctx, keyParams); err != nil {
			s.logger.Warn("cache lookup failed, proceeding to create", "error", err)
		} else if found {
			return existing, nil
		}

		// Stampede lock: only one creator fills a given cache key at a time.
		// A loser re-reads once in case the winner already filled the entry,
		// then proceeds — the unique index on reproducible_hash is the real
		// guard against duplicate rows.
		if cacheKey != "" {
			if won, err := s.cache.AcquireLock(ctx, cacheKey); err != nil {
				s.logger.Warn("acquiring stampede lock failed, proceeding", "error", err)
			} else if !won {
				if existing, found, err := s.lookupCache(ctx, keyParams); err == nil && found {
					return existing, nil
				}
			} else {
				defer func() {
					if err := s.cache.ReleaseLock(ctx, cacheKey); err != nil {
						s.logger.Warn("releasing stampede lock failed", "error", err)
					}
				}()
			}
		}
	}

	// Step 10: prompt resolution (best-effort).
	var promptVersionID *uuid.UUID
	if req.PromptVersionID != nil {
		if id, err := uuid.Parse(*req.PromptVersionID); err == nil {
			promptVersionID = &id
		}
	} else if prompt, _ := req.GenerationConfig["prompt"].(string); strings.TrimSpace(prompt) != "" {
		if pv, _, err := s.prompts.FindOrCreate(ctx, workspaceID, prompt); err != nil {
			s.logger.Warn("prompt version find-or-create failed", "error", err)
		} else {
			promptVersionID = &pv.ID
		}
	}

	// Step 11: persist as PENDING.
	gen, err := s.store.Create(ctx, CreateParams{
		WorkspaceID:      workspaceID,
		UserID:           userID,
		Operation:        req.Operation,
		ProviderID:       req.ProviderID,
		RawParams:        rawParamsOf(req),
		CanonicalParams:  canonicalParams,
		Inputs:           inputs,
		ReproducibleHash: hash,
		ScheduledAt:      req.ScheduledAt,
		PromptVersionID:  promptVersionID,
	})
	if err != nil {
		if isUniqueViolation(err) {
			// Lost a race against a concurrent identical request; the unique
			// partial index on reproducible_hash caught it. Return the winner.
			if existing, getErr := s.store.GetByHash(ctx, hash); getErr == nil {
				return existing, nil
			}
		}
		return Generation{}, fmt.Errorf("persisting generation: %w", err)
	}

	s.createdCt.WithLabelValues(req.Operation, req.ProviderID).Inc()

	// Step 12: book-keeping (best-effort).
	idStr := strconv.FormatInt(gen.ID, 10)
	if err := s.cache.StoreDedup(ctx, hash, idStr); err != nil {
		s.logger.Warn("storing dedup entry failed", "error", err)
	}
	if err := s.cache.StoreCache(ctx, keyParams, idStr); err != nil {
		s.logger.Warn("storing cache entry failed", "error", err)
	}

	// Step 13: enqueue process_generation.
	if err := s.bus.Publish(ctx, eventbus.QueueGeneration, eventbus.TaskProcessGeneration, map[string]any{"generation_id": gen.ID}); err != nil {
		s.logger.Error("enqueueing process_generation failed, requeue sweeper will recover it", "generation_id", gen.ID, "error", err)
	}

	// Step 14: publish JOB_CREATED.
	if err := s.bus.Publish(ctx, eventbus.TopicGenerationCreated, eventbus.EventJobCreated, map[string]any{
		"generation_id": gen.ID, "user_id": userID, "status": string(gen.Status),
	}); err != nil {
		s.logger.Warn("publishing JOB_CREATED failed", "generation_id", gen.ID, "error", err)
	}

	_ = adapter // adapter existence already validated above; MapParameters runs in the submission pipeline.
	return gen, nil
}

func (s *Service) lookupDedup(ctx context.Context, hash string) (Generation, bool, error) {
	idStr, err := s.cache.LookupDedup(ctx, hash)
	if err != nil {
		return Generation{}, false, err
	}
	if idStr == "" {
		return Generation{}, false, nil
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return Generation{}, false, nil
	}
	gen, err := s.store.Get(ctx, id)
	if err == pgx.ErrNoRows {
		return Generation{}, false, nil
	}
	if err != nil {
		return Generation{}, false, err
	}
	if gen.Status == StatusFailed {
		_ = s.cache.InvalidateDedup(ctx, hash)
		return Generation{}, false, nil
	}
	return gen, true, nil
}

func (s *Service) lookupCache(ctx context.Context, p cache.KeyParams) (Generation, bool, error) {
	idStr, err := s.cache.LookupCache(ctx, p)
	if err != nil {
		return Generation{}, false, err
	}
	if idStr == "" {
		return Generation{}, false, nil
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return Generation{}, false, nil
	}
	gen, err := s.store.Get(ctx, id)
	if err == pgx.ErrNoRows {
		return Generation{}, false, nil
	}
	if err != nil {
		return Generation{}, false, err
	}
	if gen.Status == StatusFailed {
		_ = s.cache.InvalidateCache(ctx, p)
		return Generation{}, false, nil
	}
	return gen, true, nil
}

// cacheKeyParams builds the strategy-aware cache key inputs, grounded on
// cache_service.py's compute_cache_key signature: strategy/purpose come
// from generation_config, scene ids from scene_context.from_scene/to_scene,
// playthrough id from player_context, player id is the creating user.
func (s *Service) cacheKeyParams(req CreateRequest, userID uuid.UUID) cache.KeyParams {
	strategy, _ := req.GenerationConfig["strategy"].(string)
	if strategy == "" {
		strategy = string(cache.StrategyOnce)
	}
	purpose, _ := req.GenerationConfig["purpose"].(string)
	if purpose == "" {
		purpose = "unknown"
	}

	fromSceneID, toSceneID := "none", "none"
	if from, ok := req.SceneContext["from_scene"].(map[string]any); ok {
		if id, ok := from["id"].(string); ok && id != "" {
			fromSceneID = id
		}
	}
	if to, ok := req.SceneContext["to_scene"].(map[string]any); ok {
		if id, ok := to["id"].(string); ok && id != "" {
			toSceneID = id
		}
	}

	playthroughID, _ := req.PlayerContext["playthrough_id"].(string)

	return cache.KeyParams{
		Operation:     req.Operation,
		Purpose:       purpose,
		FromSceneID:   fromSceneID,
		ToSceneID:     toSceneID,
		Strategy:      cache.Strategy(strategy),
		PlaythroughID: playthroughID,
		UserID:        userID.String(),
	}
}

func rawParamsOf(req CreateRequest) map[string]any {
	return map[string]any{
		"operation":         req.Operation,
		"provider_id":       req.ProviderID,
		"generation_config": req.GenerationConfig,
		"scene_context":     req.SceneContext,
		"player_context":    req.PlayerContext,
		"social_context":    req.SocialContext,
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
