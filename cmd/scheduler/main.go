package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"server/internal/infra"
	"server/internal/planchange"
	"server/internal/store"
)

// The scheduler applies scheduled plan downgrades once their effective date
// arrives. It runs as its own process so a stuck API deployment cannot stall
// plan transitions.
func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	runner := infra.NewSQLRunner(dbpool, logger)
	machine := planchange.NewMachine(
		store.NewPlanChangeRepo(runner),
		store.NewSubscriptionRepo(runner),
		cfg.CheckoutBaseURL,
		logger,
	)

	apply := func() {
		runCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		applied, err := machine.ApplyDue(runCtx, time.Now().UTC())
		if err != nil {
			logger.Error().Err(err).Msg("scheduler: apply pass failed")
			return
		}
		if applied > 0 {
			logger.Info().Int("applied", applied).Msg("scheduler: applied scheduled plan changes")
		}
	}

	c := cron.New()
	if _, err := c.AddFunc("@hourly", apply); err != nil {
		logger.Fatal().Err(err).Msg("failed to schedule apply job")
	}
	c.Start()
	logger.Info().Msg("scheduler started")

	// One pass at startup covers changes that came due while it was down.
	apply()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	<-c.Stop().Done()
	logger.Info().Msg("scheduler stopped")
}
