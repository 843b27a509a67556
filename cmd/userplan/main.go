package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/store"
)

// userplan sets a user's active subscription plan directly, bypassing the
// plan-change state machine. Meant for support operators fixing accounts.
func main() {
	var (
		idFlag   string
		planFlag string
	)

	flag.StringVar(&idFlag, "id", "", "user ID to update")
	flag.StringVar(&planFlag, "plan", "", "plan to assign (free, pro, premium)")
	flag.Parse()

	userID := strings.TrimSpace(idFlag)
	if userID == "" {
		exitWithError(errors.New("-id is required"))
	}
	plan, err := domain.ParsePlan(strings.TrimSpace(strings.ToLower(planFlag)))
	if err != nil {
		exitWithError(err)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "userplan").Logger()
	runner := infra.NewSQLRunner(pool, logger)
	subs := store.NewSubscriptionRepo(runner)

	current, err := subs.Get(ctx, userID)
	if err != nil {
		exitWithError(fmt.Errorf("failed to load subscription: %w", err))
	}

	if err := subs.SetPlan(ctx, userID, plan); err != nil {
		exitWithError(fmt.Errorf("failed to set plan: %w", err))
	}

	limits := plan.Limits()
	fmt.Printf("user %s: %s -> %s (tokens %d/month, quizzes %d/month)\n",
		userID, current.Plan, plan, limits.TokensPerMonth, limits.QuizzesPerMonth)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
