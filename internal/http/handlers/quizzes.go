package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"server/internal/domain"
	"server/internal/genai"
	"server/internal/middleware"
)

type quizGenerateRequest struct {
	Topic         string `json:"topic" validate:"required,max=200"`
	Difficulty    string `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	QuestionCount int    `json:"question_count" validate:"omitempty,min=1,max=50"`
	Locale        string `json:"locale" validate:"omitempty,bcp47_language_tag"`
}

type quizGenerateResponse struct {
	Quiz           *genai.Quiz `json:"quiz"`
	RemainingUsage int64       `json:"remaining_usage"`
}

func (a *App) QuizzesGenerate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "AUTH_REQUIRED", "missing user context")
		return
	}
	var req quizGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.Validate.Struct(req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid generation parameters")
		return
	}
	if req.Difficulty == "" {
		req.Difficulty = "medium"
	}
	if req.QuestionCount == 0 {
		req.QuestionCount = 5
	}

	quiz, err := a.Generator.Invoke(r.Context(), genai.QuizRequest{
		Topic:         req.Topic,
		Difficulty:    req.Difficulty,
		QuestionCount: req.QuestionCount,
		Locale:        req.Locale,
		RequestID:     middleware.RequestIDFromContext(r.Context()),
	})
	if err != nil {
		a.generationError(w, r, userID, err)
		return
	}

	a.json(w, http.StatusOK, quizGenerateResponse{
		Quiz:           quiz,
		RemainingUsage: middleware.RemainingUsageFromContext(r.Context()),
	})
}

// generationError translates generation failures into responses without
// leaking provider internals; the category message is the whole story the
// client gets.
func (a *App) generationError(w http.ResponseWriter, r *http.Request, userID string, err error) {
	if errors.Is(err, domain.ErrNoCredentials) {
		a.Logger.Error().Str("user_id", userID).Msg("generation refused, no credentials configured")
		a.error(w, http.StatusServiceUnavailable, "no_credentials", "generation temporarily unavailable")
		return
	}

	var genErr *genai.GenerationError
	if errors.As(err, &genErr) {
		a.Logger.Warn().
			Str("user_id", userID).
			Str("kind", string(genErr.Kind)).
			Str("category", string(genErr.Category)).
			Int("attempts", genErr.Attempts).
			Msg("quiz generation failed")
		switch genErr.Category {
		case genai.CategoryTimeout:
			a.error(w, http.StatusGatewayTimeout, "generation_timeout", genErr.Category.Message())
		case genai.CategoryQuota:
			a.error(w, http.StatusServiceUnavailable, "generation_capacity", genErr.Category.Message())
		default:
			a.error(w, http.StatusBadGateway, "generation_failed", genErr.Category.Message())
		}
		return
	}

	if ctxErr := r.Context().Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		// Client went away; nothing useful to write.
		return
	}
	a.Logger.Error().Err(err).Str("user_id", userID).Msg("quiz generation failed")
	a.error(w, http.StatusBadGateway, "generation_failed", "quiz generation failed")
}
