package handlers

import (
	"crypto/hmac"
	"encoding/json"
	"net/http"
)

type paymentWebhookRequest struct {
	Event     string `json:"event" validate:"required"`
	UserID    string `json:"user_id" validate:"required"`
	SessionID string `json:"session_id"`
}

// PaymentWebhook confirms checkout payments from the billing provider and
// finalizes the matching pending upgrade. Unknown events are acknowledged so
// the provider stops retrying them.
func (a *App) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	secret := r.Header.Get("X-Webhook-Secret")
	if a.WebhookSecret == "" || !hmac.Equal([]byte(secret), []byte(a.WebhookSecret)) {
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid webhook secret")
		return
	}

	var req paymentWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.Validate.Struct(req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "event and user_id required")
		return
	}

	if req.Event != "payment.succeeded" {
		a.Logger.Info().Str("event", req.Event).Msg("webhook event ignored")
		a.json(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if err := a.Machine.Complete(r.Context(), req.UserID); err != nil {
		a.Logger.Error().Err(err).Str("user_id", req.UserID).Msg("plan change completion failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to apply plan change")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
