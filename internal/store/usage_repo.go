package store

import (
	"context"
	"fmt"
	"time"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

// UsageRepo persists per-user, per-period usage records. Counter updates go
// through single-statement increments so concurrent requests from the same
// user cannot lose updates.
type UsageRepo struct {
	sql infra.SQLExecutor
}

func NewUsageRepo(sql infra.SQLExecutor) *UsageRepo {
	return &UsageRepo{sql: sql}
}

// Get fetches the record for the given billing period. Returns
// domain.ErrNotFound when no record exists yet.
func (r *UsageRepo) Get(ctx context.Context, userID string, year int, month time.Month) (*domain.UsageRecord, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectUsageRecord, userID, year, int(month))
	var rec domain.UsageRecord
	var monthNum int
	if err := row.Scan(&rec.UserID, &rec.Year, &monthNum, &rec.Plan, &rec.TokensUsed, &rec.TokensLimit, &rec.QuizzesUsed, &rec.QuizzesLimit, &rec.UpdatedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select usage record: %w", err)
	}
	rec.Month = time.Month(monthNum)
	return &rec, nil
}

// Init lazily creates the record for a new billing period, seeded from the
// subscription's current limits. No-op when the record already exists.
func (r *UsageRepo) Init(ctx context.Context, sub domain.Subscription, year int, month time.Month) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertUsageRecord,
		sub.UserID, year, int(month), string(sub.Plan), sub.TokensLimit, sub.QuizzesLimit)
	if err != nil {
		return fmt.Errorf("init usage record: %w", err)
	}
	return nil
}

// Increment atomically adds amount to the resource counter for the period.
func (r *UsageRepo) Increment(ctx context.Context, userID string, year int, month time.Month, res domain.Resource, amount int64) error {
	query := sqlinline.QIncrementTokensUsed
	if res == domain.ResourceQuiz {
		query = sqlinline.QIncrementQuizzesUsed
	}
	tag, err := r.sql.Exec(ctx, query, userID, year, int(month), amount)
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
