package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrNoCredentials     = errors.New("no credentials configured")
	ErrUnsupportedPlan   = errors.New("unsupported plan")
	ErrSamePlan          = errors.New("requested plan equals current plan")
	ErrPlanChangePending = errors.New("a plan change is already pending")
	ErrStoreUnavailable  = errors.New("store unavailable")
)
