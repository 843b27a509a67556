package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"server/internal/credentials"
	"server/internal/genai"
	"server/internal/http/handlers"
	httpapi "server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/planchange"
	"server/internal/quota"
	"server/internal/ratelimit"
	"server/internal/storage"
	"server/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if len(cfg.GeminiAPIKeys) == 0 {
		// Operator misconfiguration; refusing to start beats serving a
		// generation endpoint that can never succeed.
		logger.Fatal().Msg("no gemini credentials configured, set GEMINI_API_KEY_1..N")
	}

	if err := infra.RunMigrations(cfg.DatabaseURL, "migrations"); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	runner := infra.NewSQLRunner(dbpool, logger)
	usageRepo := store.NewUsageRepo(runner)
	subsRepo := store.NewSubscriptionRepo(runner)
	changeRepo := store.NewPlanChangeRepo(runner)

	cache, err := storage.NewFileStore(cfg.CredentialCache)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open credential cache")
	}
	pool := credentials.NewPool(credentials.Options{
		Keys:           cfg.GeminiAPIKeys,
		MaxUsagePerKey: cfg.MaxUsagePerKey,
		Cache:          cache,
		Logger:         logger,
	})

	ledger := quota.NewLedger(usageRepo, subsRepo, logger)
	tracker := quota.NewTracker(ledger, cfg.TrackerQueueSize, logger)
	defer tracker.Close()

	limiter := ratelimit.NewLimiter()
	defer limiter.Close()

	machine := planchange.NewMachine(changeRepo, subsRepo, cfg.CheckoutBaseURL, logger)

	client := genai.NewClient(genai.Options{BaseURL: cfg.GeminiBaseURL, Logger: logger})
	generator := genai.NewGenerator(client, pool, cfg.GeminiModel, genai.Policy{
		MaxAttempts:   cfg.GenerateMaxRetries,
		BaseDelay:     cfg.GenerateBaseDelay,
		FallbackModel: cfg.GeminiFallback,
	}, logger)

	app := handlers.NewApp(logger)
	app.Subs = subsRepo
	app.Ledger = ledger
	app.Machine = machine
	app.Generator = generator
	app.Pool = pool
	app.WebhookSecret = cfg.WebhookSecret

	router := httpapi.NewRouter(httpapi.Deps{
		App:     app,
		Limiter: limiter,
		Ledger:  ledger,
		Tracker: tracker,
		Config:  cfg,
		Logger:  logger,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
