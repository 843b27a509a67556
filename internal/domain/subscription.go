package domain

import "time"

// Subscription is a user's active plan with its materialized limits.
type Subscription struct {
	UserID       string
	Plan         Plan
	TokensLimit  int64
	QuizzesLimit int64
	UpdatedAt    time.Time
}

// NewSubscription builds a subscription for the plan with catalog limits.
func NewSubscription(userID string, plan Plan) Subscription {
	limits := plan.Limits()
	return Subscription{
		UserID:       userID,
		Plan:         plan,
		TokensLimit:  limits.TokensPerMonth,
		QuizzesLimit: limits.QuizzesPerMonth,
	}
}

// ChangeType classifies a plan transition.
type ChangeType string

const (
	ChangeUpgrade   ChangeType = "upgrade"
	ChangeDowngrade ChangeType = "downgrade"
	ChangeSwitch    ChangeType = "switch"
)

// ChangeStatus tracks the lifecycle of a pending plan change.
type ChangeStatus string

const (
	ChangePendingPayment ChangeStatus = "pending_payment"
	ChangeScheduled      ChangeStatus = "scheduled"
	ChangeCancelled      ChangeStatus = "cancelled"
	ChangeCompleted      ChangeStatus = "completed"
)

// PendingPlanChange records an in-flight plan transition. At most one exists
// per user; the record is removed on cancellation or completion.
type PendingPlanChange struct {
	UserID          string
	CurrentPlan     Plan
	RequestedPlan   Plan
	ChangeType      ChangeType
	Status          ChangeStatus
	RequestedAt     time.Time
	EffectiveDate   time.Time
	CheckoutSession string
}

// Terminal reports whether the change can no longer be cancelled.
func (c PendingPlanChange) Terminal() bool {
	return c.Status == ChangeCancelled || c.Status == ChangeCompleted
}
