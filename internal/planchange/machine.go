// Package planchange implements the subscription plan-change state machine.
// Upgrades take effect immediately but wait on payment confirmation;
// downgrades are deferred to the start of the next billing period.
package planchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/metrics"
)

// ChangeStore persists pending plan changes.
type ChangeStore interface {
	Get(ctx context.Context, userID string) (*domain.PendingPlanChange, error)
	Create(ctx context.Context, change *domain.PendingPlanChange) error
	Delete(ctx context.Context, userID string) error
	ListDue(ctx context.Context, now time.Time) ([]domain.PendingPlanChange, error)
}

// SubscriptionStore reads and updates the active plan.
type SubscriptionStore interface {
	Get(ctx context.Context, userID string) (domain.Subscription, error)
	SetPlan(ctx context.Context, userID string, plan domain.Plan) error
}

// Outcome summarizes an accepted plan-change request.
type Outcome struct {
	IsImmediate   bool
	Status        domain.ChangeStatus
	EffectiveDate time.Time
	CheckoutURL   string
}

// Machine advances users between subscription plans.
type Machine struct {
	changes         ChangeStore
	subs            SubscriptionStore
	checkoutBaseURL string
	logger          infra.Logger
	now             func() time.Time
}

func NewMachine(changes ChangeStore, subs SubscriptionStore, checkoutBaseURL string, logger infra.Logger) *Machine {
	return &Machine{
		changes:         changes,
		subs:            subs,
		checkoutBaseURL: strings.TrimRight(checkoutBaseURL, "/"),
		logger:          logger,
		now:             time.Now,
	}
}

// Request records a plan transition. A second request while one is pending
// is rejected with domain.ErrPlanChangePending; callers must cancel first.
func (m *Machine) Request(ctx context.Context, userID string, currentPlan, requestedPlan domain.Plan) (Outcome, error) {
	if requestedPlan == currentPlan {
		return Outcome{}, domain.ErrSamePlan
	}

	if _, err := m.changes.Get(ctx, userID); err == nil {
		return Outcome{}, domain.ErrPlanChangePending
	} else if !errors.Is(err, domain.ErrNotFound) {
		return Outcome{}, err
	}

	now := m.now()
	change := &domain.PendingPlanChange{
		UserID:        userID,
		CurrentPlan:   currentPlan,
		RequestedPlan: requestedPlan,
	}

	switch {
	case requestedPlan.Rank() > currentPlan.Rank():
		// Upgrades apply now but limits only change once payment confirms.
		change.ChangeType = domain.ChangeUpgrade
		change.Status = domain.ChangePendingPayment
		change.EffectiveDate = now
		change.CheckoutSession = uuid.NewString()
	case requestedPlan.Rank() < currentPlan.Rank():
		change.ChangeType = domain.ChangeDowngrade
		change.Status = domain.ChangeScheduled
		change.EffectiveDate = domain.NextPeriodStart(now)
	default:
		// Same price rank: treated like a deferred downgrade.
		change.ChangeType = domain.ChangeSwitch
		change.Status = domain.ChangeScheduled
		change.EffectiveDate = domain.NextPeriodStart(now)
	}

	if err := m.changes.Create(ctx, change); err != nil {
		return Outcome{}, fmt.Errorf("record plan change: %w", err)
	}
	metrics.PlanChanges.WithLabelValues(string(change.ChangeType), "requested").Inc()

	out := Outcome{
		IsImmediate:   change.ChangeType == domain.ChangeUpgrade,
		Status:        change.Status,
		EffectiveDate: change.EffectiveDate,
	}
	if change.CheckoutSession != "" {
		out.CheckoutURL = m.checkoutBaseURL + "?session=" + change.CheckoutSession
	}
	return out, nil
}

// Cancel removes the pending change without touching current limits. The
// record is re-read immediately before deletion so a cancellation racing a
// webhook completion cannot resurrect a finished change.
func (m *Machine) Cancel(ctx context.Context, userID string) error {
	change, err := m.changes.Get(ctx, userID)
	if err != nil {
		return err
	}
	if change.Terminal() {
		return nil
	}
	if err := m.changes.Delete(ctx, userID); err != nil {
		return err
	}
	metrics.PlanChanges.WithLabelValues(string(change.ChangeType), "cancelled").Inc()
	m.logger.Info().Str("user_id", userID).Str("requested_plan", string(change.RequestedPlan)).Msg("planchange: cancelled")
	return nil
}

// Pending returns the user's pending change, or nil when none exists.
func (m *Machine) Pending(ctx context.Context, userID string) (*domain.PendingPlanChange, error) {
	change, err := m.changes.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return change, err
}

// Complete applies the requested plan after a confirmed payment and removes
// the pending record. Completing after a cancellation is a no-op: the record
// is already gone. Only changes awaiting payment are eligible; a scheduled
// change waits for its effective date regardless of stray webhooks.
func (m *Machine) Complete(ctx context.Context, userID string) error {
	change, err := m.changes.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if change.Status != domain.ChangePendingPayment {
		m.logger.Warn().
			Str("user_id", userID).
			Str("status", string(change.Status)).
			Msg("planchange: payment confirmation for a change not awaiting payment, ignored")
		return nil
	}

	if err := m.subs.SetPlan(ctx, userID, change.RequestedPlan); err != nil {
		return fmt.Errorf("apply plan %s: %w", change.RequestedPlan, err)
	}
	if err := m.changes.Delete(ctx, userID); err != nil {
		return err
	}
	metrics.PlanChanges.WithLabelValues(string(change.ChangeType), "completed").Inc()
	m.logger.Info().Str("user_id", userID).Str("plan", string(change.RequestedPlan)).Msg("planchange: completed")
	return nil
}

// ApplyDue applies scheduled changes whose effective date has arrived. It is
// driven by the scheduler process and returns the number applied.
func (m *Machine) ApplyDue(ctx context.Context, now time.Time) (int, error) {
	due, err := m.changes.ListDue(ctx, now)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, change := range due {
		if err := m.subs.SetPlan(ctx, change.UserID, change.RequestedPlan); err != nil {
			m.logger.Error().Err(err).Str("user_id", change.UserID).Msg("planchange: failed to apply scheduled change")
			continue
		}
		if err := m.changes.Delete(ctx, change.UserID); err != nil {
			m.logger.Error().Err(err).Str("user_id", change.UserID).Msg("planchange: failed to clear applied change")
			continue
		}
		metrics.PlanChanges.WithLabelValues(string(change.ChangeType), "applied").Inc()
		applied++
	}
	return applied, nil
}
