package domain

import "time"

// Resource identifies a metered resource.
type Resource string

const (
	ResourceToken Resource = "token"
	ResourceQuiz  Resource = "quiz"
)

// WarnLevel classifies how close a user is to a limit. Levels only move
// upward as usage grows within a period.
type WarnLevel string

const (
	WarnNone        WarnLevel = "none"
	WarnApproaching WarnLevel = "approaching"
	WarnExceeded    WarnLevel = "exceeded"
)

// approachingRatio is the used/limit ratio at which callers should start
// warning users ahead of a hard denial.
const approachingRatio = 0.8

// WarnLevelFor derives the warning level from consumed vs. allowed usage.
func WarnLevelFor(used, limit int64) WarnLevel {
	if limit <= 0 {
		return WarnExceeded
	}
	ratio := float64(used) / float64(limit)
	switch {
	case ratio >= 1.0:
		return WarnExceeded
	case ratio >= approachingRatio:
		return WarnApproaching
	default:
		return WarnNone
	}
}

// UsageRecord is the per-user, per-billing-period ledger entry. Counters are
// monotonically non-decreasing within a period and records are never deleted.
type UsageRecord struct {
	UserID       string
	Year         int
	Month        time.Month
	Plan         Plan
	TokensUsed   int64
	TokensLimit  int64
	QuizzesUsed  int64
	QuizzesLimit int64
	UpdatedAt    time.Time
}

// Used returns the consumed amount for the given resource.
func (r UsageRecord) Used(res Resource) int64 {
	if res == ResourceQuiz {
		return r.QuizzesUsed
	}
	return r.TokensUsed
}

// Limit returns the allowance for the given resource.
func (r UsageRecord) Limit(res Resource) int64 {
	if res == ResourceQuiz {
		return r.QuizzesLimit
	}
	return r.TokensLimit
}

// Period returns the billing period of t in UTC.
func Period(t time.Time) (int, time.Month) {
	t = t.UTC()
	return t.Year(), t.Month()
}

// NextPeriodStart returns the first instant of the billing period after t.
func NextPeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
