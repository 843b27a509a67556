package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"server/internal/credentials"
	"server/internal/domain"
	"server/internal/genai"
	"server/internal/infra"
	"server/internal/middleware"
	"server/internal/planchange"
	"server/internal/quota"
)

// QuizGenerator is the slice of the generation service the handlers need.
type QuizGenerator interface {
	Invoke(ctx context.Context, req genai.QuizRequest) (*genai.Quiz, error)
}

type SubscriptionStore interface {
	Get(ctx context.Context, userID string) (domain.Subscription, error)
}

type App struct {
	Logger        infra.Logger
	Validate      *validator.Validate
	Subs          SubscriptionStore
	Ledger        *quota.Ledger
	Machine       *planchange.Machine
	Generator     QuizGenerator
	Pool          *credentials.Pool
	WebhookSecret string
}

func NewApp(logger infra.Logger) *App {
	return &App{Logger: logger, Validate: validator.New()}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{"error": message, "code": code})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
