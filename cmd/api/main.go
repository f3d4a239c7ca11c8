package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/helpbyexperts/ava/backend/internal/config"
	"github.com/helpbyexperts/ava/backend/internal/handler"
	"github.com/helpbyexperts/ava/backend/internal/logging"
	"github.com/helpbyexperts/ava/backend/internal/middleware"
	"github.com/helpbyexperts/ava/backend/internal/model/script"
	"github.com/helpbyexperts/ava/backend/internal/observability"
	"github.com/helpbyexperts/ava/backend/internal/service/ai"
	"github.com/helpbyexperts/ava/backend/internal/service/archive"
	"github.com/helpbyexperts/ava/backend/internal/service/category"
	chatservice "github.com/helpbyexperts/ava/backend/internal/service/chat"
	"github.com/helpbyexperts/ava/backend/internal/service/notify"
	"github.com/helpbyexperts/ava/backend/internal/service/payment"
	"github.com/helpbyexperts/ava/backend/internal/service/triage"
	"github.com/helpbyexperts/ava/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.NewFromConfig(cfg.Log.Format, cfg.Log.Level)
	zlog.Logger = logger.Zerolog()
	zerolog.SetGlobalLevel(logging.ParseLevel(cfg.Log.Level))
	if envErr != nil {
		logger.Debug().Err(envErr).Msg("no .env file, using process environment only")
	}

	observability.InitMetrics()

	triageScript := script.Seed()
	if cfg.Triage.ScriptPath != "" {
		triageScript, err = script.LoadFile(cfg.Triage.ScriptPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.Triage.ScriptPath).Msg("failed to load triage script")
		}
	}

	records, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open transcript store")
	}

	archiver, err := archive.New(records, archive.Options{
		Workers:   cfg.Store.ArchiveWorkers,
		QueueSize: cfg.Store.ArchiveQueue,
		Timeout:   cfg.Store.ArchiveTimeout,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start archiver")
	}

	hub := notify.NewHub(0, logger)

	deps := triage.Deps{
		Sessions: chatservice.NewService(),
		Notifier: hub,
		Archiver: archiver,
		Restorer: records,
		Logger:   logger,
	}

	generation := newGenerationService(ctx, cfg.AI, logger)
	var classifierGen category.Generator
	if generation != nil {
		deps.Generator = generation
		classifierGen = generation
	}

	classifier, err := category.NewService(classifierGen, category.Config{
		Enabled:    cfg.AI.CategoryLLMEnabled,
		Categories: triageScript.Categories,
		Fallback:   triageScript.FallbackCategory,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize category classifier")
	}
	deps.Classifier = classifier
	logger.Info().Bool("llm", classifier.Enabled()).Msg("category classifier ready")

	manager, err := triage.NewManager(deps, triage.Options{
		Script:      triageScript,
		TypingDelay: cfg.Triage.TypingDelay,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize triage manager")
	}

	payments := payment.NewStripeProvider(cfg.Payment, logger)
	if !payments.Configured() {
		logger.Warn().Msg("STRIPE_SECRET_KEY not set, payment endpoints will refuse requests")
	}

	if cfg.Server.AgentToken == "" {
		logger.Warn().Msg("AGENT_TOKEN not set, expert API is disabled")
	}

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	go pruneLimiter(ctx, limiter)

	router := handler.NewRouter(handler.Deps{
		Triage:   manager,
		Hub:      hub,
		Payments: payments,
		Server:   cfg.Server,
		Payment:  cfg.Payment,
		Scripts:  script.NewMemoryStore(triageScript, script.Seed()),
		Limiter:  limiter,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info().Str("addr", cfg.Server.Addr).Bool("ai_online", manager.Online()).Msg("Ava backend listening")
	if err := runServer(ctx, srv); err != nil {
		logger.Error().Err(err).Msg("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hub.Close()
	if err := archiver.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("archiver did not drain")
	}
	if err := records.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to close transcript store")
	}
	logger.Info().Msg("shutdown complete")
}

// newGenerationService builds the configured backend and warms it up. A nil
// result means the assistant runs offline.
func newGenerationService(ctx context.Context, cfg config.AIConfig, logger *logging.Logger) *ai.Service {
	if !cfg.Enabled() {
		logger.Warn().Str("provider", cfg.Provider).Msg("AI credentials not configured, running offline")
		return nil
	}

	var backend ai.Backend
	switch cfg.Provider {
	case config.ProviderArk:
		backend = ai.NewArkBackend(cfg.NewArkChatModel)
	default:
		gemini, err := ai.NewGeminiBackend(ctx, cfg.GoogleAPIKey)
		if err != nil {
			logger.Error().Err(err).Msg("failed to create gemini client, running offline")
			return nil
		}
		backend = gemini
	}

	svc, err := ai.NewService(backend, cfg.Candidates(), cfg.Timeout, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize generation service, running offline")
		return nil
	}
	if _, err := svc.Warmup(ctx); err != nil {
		return nil
	}
	logger.Info().Str("provider", backend.Name()).Str("model", svc.ActiveModel()).Msg("AI online")
	return svc
}

func pruneLimiter(ctx context.Context, limiter *middleware.RateLimiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Prune()
		}
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
