package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"server/internal/domain"
	"server/internal/metrics"
	"server/internal/quota"
	"server/internal/ratelimit"
)

// AdmissionConfig describes one metered surface.
type AdmissionConfig struct {
	// Resource is the metered resource charged by this endpoint.
	Resource domain.Resource
	// Amount is the fixed charge per request. When Estimator is set it
	// takes precedence.
	Amount int64
	// Estimator derives the charge from the request, e.g. from the number
	// of requested questions.
	Estimator func(r *http.Request) int64
	// RateLimit is the fixed-window policy for this surface.
	RateLimit ratelimit.Config
	// UpgradeURL is included in quota rejections so clients can route the
	// user to the pricing page.
	UpgradeURL string
}

type admissionKey string

const remainingUsageKey admissionKey = "remaining_usage"

// RemainingUsageFromContext returns the remaining allowance computed during
// admission, or -1 when the request was not metered.
func RemainingUsageFromContext(ctx context.Context) int64 {
	if v, ok := ctx.Value(remainingUsageKey).(int64); ok {
		return v
	}
	return -1
}

type admissionWriter struct {
	http.ResponseWriter
	status int
}

func (w *admissionWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Admission gates a handler behind the rate limiter and the usage ledger,
// and records usage after a successful response. Admission failures return
// before the handler runs; that ordering is the cost-control mechanism.
func Admission(limiter *ratelimit.Limiter, ledger *quota.Ledger, tracker *quota.Tracker, cfg AdmissionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := UserIDFromContext(r.Context())
			if userID == "" && cfg.Resource != "" {
				metrics.AdmissionDecisions.WithLabelValues("unauthorized").Inc()
				writeAdmissionError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "authentication required", nil)
				return
			}

			res := limiter.Check(CallerIdentity(r), cfg.RateLimit)
			setRateLimitHeaders(w, cfg.RateLimit, res)
			if !res.Allowed {
				metrics.AdmissionDecisions.WithLabelValues("rate_limited").Inc()
				retry := int64(time.Until(res.ResetAt).Seconds()) + 1
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
				writeAdmissionError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "too many requests", nil)
				return
			}

			amount := cfg.Amount
			if cfg.Estimator != nil {
				amount = cfg.Estimator(r)
			}

			ctx := r.Context()
			if cfg.Resource != "" {
				decision, err := ledger.CheckUsagePermission(ctx, userID, cfg.Resource, amount)
				if err != nil {
					// Ledger unreachable: deny rather than allow unmetered usage.
					metrics.AdmissionDecisions.WithLabelValues("store_error").Inc()
					writeAdmissionError(w, http.StatusServiceUnavailable, "USAGE_CHECK_UNAVAILABLE", "usage check unavailable", nil)
					return
				}
				if !decision.Allowed {
					metrics.AdmissionDecisions.WithLabelValues("quota_exceeded").Inc()
					writeAdmissionError(w, http.StatusForbidden, "USAGE_LIMIT_EXCEEDED", "usage limit exceeded", map[string]any{
						"remainingUsage": decision.RemainingUsage,
						"warningLevel":   decision.WarnLevel,
						"upgradeUrl":     cfg.UpgradeURL,
					})
					return
				}
				ctx = context.WithValue(ctx, remainingUsageKey, decision.RemainingUsage)
			}

			metrics.AdmissionDecisions.WithLabelValues("allowed").Inc()
			aw := &admissionWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(aw, r.WithContext(ctx))

			// Metering is fire-and-forget: the response is already written
			// and must not wait on or fail with the tracker.
			if cfg.Resource != "" && aw.status < 300 {
				tracker.Enqueue(userID, cfg.Resource, amount)
			}
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, cfg ratelimit.Config, res ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.MaxRequests))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}

func writeAdmissionError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	body := map[string]any{"error": message, "code": code}
	if details != nil {
		body["details"] = details
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
