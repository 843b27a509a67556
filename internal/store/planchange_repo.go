package store

import (
	"context"
	"fmt"
	"time"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

// PlanChangeRepo persists pending plan changes. At most one record exists per
// user; the primary key enforces it.
type PlanChangeRepo struct {
	sql infra.SQLExecutor
}

func NewPlanChangeRepo(sql infra.SQLExecutor) *PlanChangeRepo {
	return &PlanChangeRepo{sql: sql}
}

// Get returns the user's pending change, or domain.ErrNotFound.
func (r *PlanChangeRepo) Get(ctx context.Context, userID string) (*domain.PendingPlanChange, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectPendingPlanChange, userID)
	change, err := scanPlanChange(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select pending plan change: %w", err)
	}
	return change, nil
}

// Create inserts the pending change. The insert conflicts when a change is
// already pending, which surfaces as an error from the store.
func (r *PlanChangeRepo) Create(ctx context.Context, change *domain.PendingPlanChange) error {
	row := r.sql.QueryRow(ctx, sqlinline.QInsertPendingPlanChange,
		change.UserID,
		string(change.CurrentPlan),
		string(change.RequestedPlan),
		string(change.ChangeType),
		string(change.Status),
		change.EffectiveDate,
		change.CheckoutSession,
	)
	if err := row.Scan(&change.RequestedAt); err != nil {
		return fmt.Errorf("insert pending plan change: %w", err)
	}
	return nil
}

// Delete removes the pending change. Deleting an absent record is a no-op.
func (r *PlanChangeRepo) Delete(ctx context.Context, userID string) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QDeletePendingPlanChange, userID); err != nil {
		return fmt.Errorf("delete pending plan change: %w", err)
	}
	return nil
}

// ListDue returns scheduled changes whose effective date has arrived.
func (r *PlanChangeRepo) ListDue(ctx context.Context, now time.Time) ([]domain.PendingPlanChange, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectDuePlanChanges, now)
	if err != nil {
		return nil, fmt.Errorf("select due plan changes: %w", err)
	}
	defer rows.Close()

	var due []domain.PendingPlanChange
	for rows.Next() {
		change, err := scanPlanChange(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due plan change: %w", err)
		}
		due = append(due, *change)
	}
	return due, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlanChange(row scanner) (*domain.PendingPlanChange, error) {
	var change domain.PendingPlanChange
	err := row.Scan(
		&change.UserID,
		&change.CurrentPlan,
		&change.RequestedPlan,
		&change.ChangeType,
		&change.Status,
		&change.RequestedAt,
		&change.EffectiveDate,
		&change.CheckoutSession,
	)
	if err != nil {
		return nil, err
	}
	return &change, nil
}
