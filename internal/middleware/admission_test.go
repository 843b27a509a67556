package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/quota"
	"server/internal/ratelimit"
)

type memUsageStore struct {
	records map[string]*domain.UsageRecord
}

func usageKey(userID string, year int, month time.Month) string {
	return userID + "/" + time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}

func (m *memUsageStore) Get(_ context.Context, userID string, year int, month time.Month) (*domain.UsageRecord, error) {
	rec, ok := m.records[usageKey(userID, year, month)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rec, nil
}

func (m *memUsageStore) Init(_ context.Context, sub domain.Subscription, year int, month time.Month) error {
	k := usageKey(sub.UserID, year, month)
	if _, ok := m.records[k]; !ok {
		m.records[k] = &domain.UsageRecord{
			UserID: sub.UserID, Year: year, Month: month,
			Plan: sub.Plan, TokensLimit: sub.TokensLimit, QuizzesLimit: sub.QuizzesLimit,
		}
	}
	return nil
}

func (m *memUsageStore) Increment(_ context.Context, userID string, year int, month time.Month, res domain.Resource, amount int64) error {
	rec, ok := m.records[usageKey(userID, year, month)]
	if !ok {
		return domain.ErrNotFound
	}
	if res == domain.ResourceQuiz {
		rec.QuizzesUsed += amount
	} else {
		rec.TokensUsed += amount
	}
	return nil
}

type memSubStore struct{ plan domain.Plan }

func (m *memSubStore) Get(_ context.Context, userID string) (domain.Subscription, error) {
	plan := m.plan
	if plan == "" {
		plan = domain.PlanFree
	}
	return domain.NewSubscription(userID, plan), nil
}

type brokenUsageStore struct{ memUsageStore }

func (b *brokenUsageStore) Get(context.Context, string, int, time.Month) (*domain.UsageRecord, error) {
	return nil, io.ErrUnexpectedEOF
}

func newAdmissionHarness(t *testing.T, usage quota.UsageStore, cfg AdmissionConfig) (http.Handler, *ratelimit.Limiter, *quota.Tracker) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	ledger := quota.NewLedger(usage, &memSubStore{}, logger)
	tracker := quota.NewTracker(ledger, 16, logger)
	limiter := ratelimit.NewLimiter()
	t.Cleanup(limiter.Close)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return Admission(limiter, ledger, tracker, cfg)(inner), limiter, tracker
}

func authedRequest(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/quizzes/generate", nil)
	req.RemoteAddr = "203.0.113.7:1234"
	if userID != "" {
		req = req.WithContext(ContextWithUserID(req.Context(), userID))
	}
	return req
}

func TestAdmissionRequiresAuthForMeteredRoutes(t *testing.T) {
	handler, _, tracker := newAdmissionHarness(t, &memUsageStore{records: map[string]*domain.UsageRecord{}}, AdmissionConfig{
		Resource:  domain.ResourceQuiz,
		Amount:    1,
		RateLimit: ratelimit.Config{MaxRequests: 10, Window: time.Minute, Prefix: "gen"},
	})
	defer tracker.Close()

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest(""))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestAdmissionRateLimitHeadersAndDenial(t *testing.T) {
	handler, _, tracker := newAdmissionHarness(t, &memUsageStore{records: map[string]*domain.UsageRecord{}}, AdmissionConfig{
		Resource:  domain.ResourceQuiz,
		Amount:    1,
		RateLimit: ratelimit.Config{MaxRequests: 2, Window: time.Minute, Prefix: "gen"},
	})
	defer tracker.Close()

	var rr *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		rr = httptest.NewRecorder()
		handler.ServeHTTP(rr, authedRequest("user-1"))
	}
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("denied response is missing Retry-After")
	}
	if got := rr.Header().Get("X-RateLimit-Limit"); got != "2" {
		t.Fatalf("X-RateLimit-Limit = %q, want 2", got)
	}
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("X-RateLimit-Remaining = %q, want 0", got)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["code"] != "RATE_LIMIT_EXCEEDED" {
		t.Fatalf("code = %v, want RATE_LIMIT_EXCEEDED", body["code"])
	}
}

func TestAdmissionDeniesOverQuota(t *testing.T) {
	year, month := domain.Period(time.Now())
	usage := &memUsageStore{records: map[string]*domain.UsageRecord{
		usageKey("user-1", year, month): {
			UserID: "user-1", Year: year, Month: month,
			Plan: domain.PlanFree, QuizzesUsed: 20, QuizzesLimit: 20, TokensLimit: 250_000,
		},
	}}
	handler, _, tracker := newAdmissionHarness(t, usage, AdmissionConfig{
		Resource:   domain.ResourceQuiz,
		Amount:     1,
		RateLimit:  ratelimit.Config{MaxRequests: 10, Window: time.Minute, Prefix: "gen"},
		UpgradeURL: "https://example.com/pricing",
	})
	defer tracker.Close()

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest("user-1"))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}

	var body struct {
		Code    string `json:"code"`
		Details struct {
			RemainingUsage int64  `json:"remainingUsage"`
			WarningLevel   string `json:"warningLevel"`
			UpgradeURL     string `json:"upgradeUrl"`
		} `json:"details"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Code != "USAGE_LIMIT_EXCEEDED" {
		t.Fatalf("code = %q, want USAGE_LIMIT_EXCEEDED", body.Code)
	}
	if body.Details.RemainingUsage != 0 {
		t.Fatalf("remainingUsage = %d, want 0", body.Details.RemainingUsage)
	}
	if body.Details.UpgradeURL != "https://example.com/pricing" {
		t.Fatalf("upgradeUrl = %q", body.Details.UpgradeURL)
	}
}

func TestAdmissionFailsClosedOnStoreError(t *testing.T) {
	handler, _, tracker := newAdmissionHarness(t, &brokenUsageStore{}, AdmissionConfig{
		Resource:  domain.ResourceQuiz,
		Amount:    1,
		RateLimit: ratelimit.Config{MaxRequests: 10, Window: time.Minute, Prefix: "gen"},
	})
	defer tracker.Close()

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest("user-1"))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}

func TestAdmissionTracksUsageAfterSuccess(t *testing.T) {
	year, month := domain.Period(time.Now())
	usage := &memUsageStore{records: map[string]*domain.UsageRecord{
		usageKey("user-1", year, month): {
			UserID: "user-1", Year: year, Month: month,
			Plan: domain.PlanFree, QuizzesLimit: 20, TokensLimit: 250_000,
		},
	}}
	handler, _, tracker := newAdmissionHarness(t, usage, AdmissionConfig{
		Resource:  domain.ResourceQuiz,
		Amount:    1,
		RateLimit: ratelimit.Config{MaxRequests: 10, Window: time.Minute, Prefix: "gen"},
	})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest("user-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	tracker.Close()

	if got := usage.records[usageKey("user-1", year, month)].QuizzesUsed; got != 1 {
		t.Fatalf("QuizzesUsed after success = %d, want 1", got)
	}
}

func TestAdmissionSkipsTrackingOnHandlerError(t *testing.T) {
	year, month := domain.Period(time.Now())
	usage := &memUsageStore{records: map[string]*domain.UsageRecord{
		usageKey("user-1", year, month): {
			UserID: "user-1", Year: year, Month: month,
			Plan: domain.PlanFree, QuizzesLimit: 20, TokensLimit: 250_000,
		},
	}}
	logger := zerolog.New(io.Discard)
	ledger := quota.NewLedger(usage, &memSubStore{}, logger)
	tracker := quota.NewTracker(ledger, 16, logger)
	limiter := ratelimit.NewLimiter()
	t.Cleanup(limiter.Close)

	failing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	handler := Admission(limiter, ledger, tracker, AdmissionConfig{
		Resource:  domain.ResourceQuiz,
		Amount:    1,
		RateLimit: ratelimit.Config{MaxRequests: 10, Window: time.Minute, Prefix: "gen"},
	})(failing)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest("user-1"))
	tracker.Close()

	if got := usage.records[usageKey("user-1", year, month)].QuizzesUsed; got != 0 {
		t.Fatalf("QuizzesUsed after failed response = %d, want 0", got)
	}
}

func TestAdmissionEstimatorDrivesCharge(t *testing.T) {
	year, month := domain.Period(time.Now())
	usage := &memUsageStore{records: map[string]*domain.UsageRecord{
		usageKey("user-1", year, month): {
			UserID: "user-1", Year: year, Month: month,
			Plan: domain.PlanFree, QuizzesLimit: 20, TokensLimit: 250_000,
		},
	}}
	handler, _, tracker := newAdmissionHarness(t, usage, AdmissionConfig{
		Resource:  domain.ResourceToken,
		Estimator: func(*http.Request) int64 { return 1200 },
		RateLimit: ratelimit.Config{MaxRequests: 10, Window: time.Minute, Prefix: "gen"},
	})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest("user-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	tracker.Close()

	if got := usage.records[usageKey("user-1", year, month)].TokensUsed; got != 1200 {
		t.Fatalf("TokensUsed = %d, want 1200", got)
	}
}
