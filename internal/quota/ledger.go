// Package quota implements the per-user, per-billing-period usage ledger.
// The ledger is the one globally consistent component of the control plane:
// it delegates increments to the store's atomic counter primitive instead of
// read-modify-write in the application layer.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"server/internal/domain"
	"server/internal/infra"
)

// UsageStore is the slice of the usage repository the ledger needs.
type UsageStore interface {
	Get(ctx context.Context, userID string, year int, month time.Month) (*domain.UsageRecord, error)
	Init(ctx context.Context, sub domain.Subscription, year int, month time.Month) error
	Increment(ctx context.Context, userID string, year int, month time.Month, res domain.Resource, amount int64) error
}

// SubscriptionStore resolves a user's active plan and limits.
type SubscriptionStore interface {
	Get(ctx context.Context, userID string) (domain.Subscription, error)
}

// Decision is the outcome of a permission check.
type Decision struct {
	Allowed        bool
	RemainingUsage int64
	WarnLevel      domain.WarnLevel
}

// Ledger checks and records metered usage against plan limits.
type Ledger struct {
	usage  UsageStore
	subs   SubscriptionStore
	logger infra.Logger
	now    func() time.Time
}

func NewLedger(usage UsageStore, subs SubscriptionStore, logger infra.Logger) *Ledger {
	return &Ledger{usage: usage, subs: subs, logger: logger, now: time.Now}
}

// CheckUsagePermission reports whether the user may consume amount of the
// resource in the current billing period. Store failures deny the request:
// the ledger fails closed rather than allowing unmetered usage.
func (l *Ledger) CheckUsagePermission(ctx context.Context, userID string, res domain.Resource, amount int64) (Decision, error) {
	rec, err := l.currentRecord(ctx, userID)
	if err != nil {
		l.logger.Error().Err(err).Str("user_id", userID).Msg("quota: permission check failed, denying")
		return Decision{Allowed: false, WarnLevel: domain.WarnNone}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	used := rec.Used(res)
	limit := rec.Limit(res)
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:        used+amount <= limit,
		RemainingUsage: remaining,
		WarnLevel:      domain.WarnLevelFor(used, limit),
	}, nil
}

// TrackUsage atomically adds amount to the user's counter for the current
// period. It runs after the user-facing response; failures are logged by the
// caller and never surfaced to the user.
func (l *Ledger) TrackUsage(ctx context.Context, userID string, res domain.Resource, amount int64) error {
	year, month := domain.Period(l.now())
	err := l.usage.Increment(ctx, userID, year, month, res, amount)
	if errors.Is(err, domain.ErrNotFound) {
		// First tracked event of a fresh period: bootstrap, then retry once.
		if _, err := l.currentRecord(ctx, userID); err != nil {
			return err
		}
		err = l.usage.Increment(ctx, userID, year, month, res, amount)
	}
	return err
}

// Snapshot returns the caller's ledger entry for the current period,
// bootstrapping it when absent.
func (l *Ledger) Snapshot(ctx context.Context, userID string) (*domain.UsageRecord, error) {
	return l.currentRecord(ctx, userID)
}

// currentRecord fetches the record for the current period, creating it
// lazily on first access after rollover, seeded from the user's current plan.
func (l *Ledger) currentRecord(ctx context.Context, userID string) (*domain.UsageRecord, error) {
	year, month := domain.Period(l.now())

	rec, err := l.usage.Get(ctx, userID, year, month)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	sub, err := l.subs.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := l.usage.Init(ctx, sub, year, month); err != nil {
		return nil, err
	}
	return l.usage.Get(ctx, userID, year, month)
}
