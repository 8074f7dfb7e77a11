package handlers

import (
	"net/http"
	"time"

	"vesture/internal/domain"
)

type subscriptionDTO struct {
	PlanID           int64     `json:"plan_id"`
	PlanName         string    `json:"plan_name,omitempty"`
	Status           string    `json:"status"`
	CurrentPeriodEnd time.Time `json:"current_period_end"`
	Active           bool      `json:"active"`
}

func (a *App) subscriptionDTO(r *http.Request, sub *domain.Subscription) subscriptionDTO {
	dto := subscriptionDTO{
		PlanID:           sub.PlanID,
		Status:           string(sub.Status),
		CurrentPeriodEnd: sub.CurrentPeriodEnd,
		Active:           sub.ValidAt(time.Now()),
	}
	if plan, err := a.Plans.GetByID(r.Context(), sub.PlanID); err == nil {
		dto.PlanName = plan.DisplayName()
	}
	return dto
}

func (a *App) CurrentSubscription(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	sub, err := a.Subs.GetActive(r.Context(), userID)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.subscriptionDTO(r, sub))
}

func (a *App) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	sub, err := a.Subs.Cancel(r.Context(), userID)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.subscriptionDTO(r, sub))
}
