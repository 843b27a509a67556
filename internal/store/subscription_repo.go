package store

import (
	"context"
	"fmt"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

// SubscriptionRepo persists the active plan and its materialized limits.
type SubscriptionRepo struct {
	sql infra.SQLExecutor
}

func NewSubscriptionRepo(sql infra.SQLExecutor) *SubscriptionRepo {
	return &SubscriptionRepo{sql: sql}
}

// Get returns the user's subscription. Users without a record default to the
// free tier, matching the ledger's bootstrap policy.
func (r *SubscriptionRepo) Get(ctx context.Context, userID string) (domain.Subscription, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectSubscription, userID)
	var sub domain.Subscription
	if err := row.Scan(&sub.UserID, &sub.Plan, &sub.TokensLimit, &sub.QuizzesLimit, &sub.UpdatedAt); err != nil {
		if infra.IsNoRows(err) {
			return domain.NewSubscription(userID, domain.PlanFree), nil
		}
		return domain.Subscription{}, fmt.Errorf("select subscription: %w", err)
	}
	return sub, nil
}

// SetPlan switches the user to the plan with fresh catalog limits.
func (r *SubscriptionRepo) SetPlan(ctx context.Context, userID string, plan domain.Plan) error {
	sub := domain.NewSubscription(userID, plan)
	_, err := r.sql.Exec(ctx, sqlinline.QUpsertSubscription,
		sub.UserID, string(sub.Plan), sub.TokensLimit, sub.QuizzesLimit)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}
