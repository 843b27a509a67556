package handlers

import (
	"fmt"
	"net/http"

	"server/internal/domain"
)

type resourceUsageDTO struct {
	Used         int64  `json:"used"`
	Limit        int64  `json:"limit"`
	Remaining    int64  `json:"remaining"`
	WarningLevel string `json:"warning_level"`
}

type usageResponse struct {
	Plan    string           `json:"plan"`
	Period  string           `json:"period"`
	Tokens  resourceUsageDTO `json:"tokens"`
	Quizzes resourceUsageDTO `json:"quizzes"`
}

func (a *App) UsageSnapshot(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "AUTH_REQUIRED", "missing user context")
		return
	}
	rec, err := a.Ledger.Snapshot(r.Context(), userID)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("usage snapshot failed")
		a.error(w, http.StatusServiceUnavailable, "usage_unavailable", "usage temporarily unavailable")
		return
	}
	a.json(w, http.StatusOK, usageResponse{
		Plan:    string(rec.Plan),
		Period:  fmt.Sprintf("%04d-%02d", rec.Year, rec.Month),
		Tokens:  resourceUsage(rec, domain.ResourceToken),
		Quizzes: resourceUsage(rec, domain.ResourceQuiz),
	})
}

func resourceUsage(rec *domain.UsageRecord, res domain.Resource) resourceUsageDTO {
	used := rec.Used(res)
	limit := rec.Limit(res)
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return resourceUsageDTO{
		Used:         used,
		Limit:        limit,
		Remaining:    remaining,
		WarningLevel: string(domain.WarnLevelFor(used, limit)),
	}
}
