package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"server/internal/domain"
)

type planChangeRequest struct {
	RequestedPlan string `json:"requestedPlan" validate:"required,oneof=free pro premium"`
	CurrentPlan   string `json:"currentPlan" validate:"required,oneof=free pro premium"`
}

type planChangeResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	IsImmediate   bool   `json:"isImmediate"`
	EffectiveDate string `json:"effectiveDate"`
	CheckoutURL   string `json:"checkoutUrl,omitempty"`
}

type pendingChangeDTO struct {
	CurrentPlan   string `json:"currentPlan"`
	RequestedPlan string `json:"requestedPlan"`
	ChangeType    string `json:"changeType"`
	Status        string `json:"status"`
	RequestedAt   string `json:"requestedAt"`
	EffectiveDate string `json:"effectiveDate"`
}

func (a *App) PlanChangeRequest(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "AUTH_REQUIRED", "missing user context")
		return
	}
	var req planChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.Validate.Struct(req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "requestedPlan and currentPlan are required and must be one of free, pro, premium")
		return
	}
	requested, err := domain.ParsePlan(req.RequestedPlan)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "unsupported plan")
		return
	}

	// The stored subscription is authoritative; the currentPlan field in the
	// body is only validated for shape.
	sub, err := a.Subs.Get(r.Context(), userID)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("load subscription failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load subscription")
		return
	}

	out, err := a.Machine.Request(r.Context(), userID, sub.Plan, requested)
	switch {
	case errors.Is(err, domain.ErrSamePlan):
		a.error(w, http.StatusBadRequest, "SAME_PLAN", "already on the requested plan")
		return
	case errors.Is(err, domain.ErrPlanChangePending):
		a.error(w, http.StatusConflict, "PLAN_CHANGE_PENDING", "a plan change is already pending, cancel it first")
		return
	case err != nil:
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("plan change request failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to record plan change")
		return
	}

	message := "plan change scheduled for the next billing period"
	if out.IsImmediate {
		message = "complete checkout to activate the new plan"
	}
	a.json(w, http.StatusOK, planChangeResponse{
		Success:       true,
		Message:       message,
		IsImmediate:   out.IsImmediate,
		EffectiveDate: out.EffectiveDate.UTC().Format(time.RFC3339),
		CheckoutURL:   out.CheckoutURL,
	})
}

func (a *App) PlanChangeCancel(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "AUTH_REQUIRED", "missing user context")
		return
	}
	err := a.Machine.Cancel(r.Context(), userID)
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusBadRequest, "NO_PENDING_CHANGE", "no pending plan change to cancel")
		return
	}
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("plan change cancel failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to cancel plan change")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "message": "plan change cancelled"})
}

func (a *App) PlanChangeStatus(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "AUTH_REQUIRED", "missing user context")
		return
	}
	change, err := a.Machine.Pending(r.Context(), userID)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("plan change lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load plan change")
		return
	}
	if change == nil {
		a.json(w, http.StatusOK, map[string]any{"hasPending": false, "change": nil})
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"hasPending": true,
		"change": pendingChangeDTO{
			CurrentPlan:   string(change.CurrentPlan),
			RequestedPlan: string(change.RequestedPlan),
			ChangeType:    string(change.ChangeType),
			Status:        string(change.Status),
			RequestedAt:   change.RequestedAt.UTC().Format(time.RFC3339),
			EffectiveDate: change.EffectiveDate.UTC().Format(time.RFC3339),
		},
	})
}
