package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"server/internal/domain"
	"server/internal/genai"
	"server/internal/http/handlers"
	"server/internal/infra"
	"server/internal/middleware"
	"server/internal/quota"
	"server/internal/ratelimit"
)

type Deps struct {
	App     *handlers.App
	Limiter *ratelimit.Limiter
	Ledger  *quota.Ledger
	Tracker *quota.Tracker
	Config  *infra.Config
	Logger  infra.Logger
}

func NewRouter(d Deps) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Logger(d.Logger),
		middleware.CORS(d.Config.AllowedOrigins),
	)

	r.Get("/v1/healthz", d.App.Health)
	r.Method(stdhttp.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/v1/webhooks/payment", d.App.PaymentWebhook)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(d.Config.JWTSecret))

		r.Get("/v1/usage", d.App.UsageSnapshot)

		r.Route("/v1/subscription/change-plan", func(r chi.Router) {
			r.Post("/", d.App.PlanChangeRequest)
			r.Delete("/", d.App.PlanChangeCancel)
			r.Get("/", d.App.PlanChangeStatus)
		})

		r.With(middleware.Admission(d.Limiter, d.Ledger, d.Tracker, middleware.AdmissionConfig{
			Resource:  domain.ResourceToken,
			Estimator: estimateQuizTokens,
			RateLimit: ratelimit.Config{
				MaxRequests: d.Config.RateLimitPerMin,
				Window:      d.Config.RateLimitWindow,
				Prefix:      "quiz-generate",
			},
			UpgradeURL: d.Config.UpgradeURL,
		})).Post("/v1/quizzes/generate", d.App.QuizzesGenerate)

		r.With(middleware.RequireAdmin).Get("/v1/admin/credentials/status", d.App.CredentialStatus)
	})

	return r
}

// estimateQuizTokens peeks at the request body for the requested question
// count and restores it for the handler. Decode errors fall through to the
// default estimate; the handler rejects malformed payloads itself.
func estimateQuizTokens(r *stdhttp.Request) int64 {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return genai.EstimateTokens(0)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	var req struct {
		QuestionCount int `json:"question_count"`
	}
	_ = json.Unmarshal(body, &req)
	return genai.EstimateTokens(req.QuestionCount)
}
