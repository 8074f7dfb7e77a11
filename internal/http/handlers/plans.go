package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"vesture/internal/domain"
)

type planDTO struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	DisplayName     string `json:"display_name"`
	PriceCents      int64  `json:"price_cents"`
	TokenAllocation int    `json:"token_allocation"`
	ValidityDays    int    `json:"validity_days"`
	DurationDays    int    `json:"duration_days"`
	TokenLimit      int    `json:"token_limit"`
}

func toPlanDTO(p domain.Plan) planDTO {
	return planDTO{
		ID:              p.ID,
		Name:            p.Name,
		DisplayName:     p.DisplayName(),
		PriceCents:      p.PriceCents,
		TokenAllocation: p.Limits.TokenAllocation,
		ValidityDays:    p.ValidityDays(),
		DurationDays:    p.DurationDays(),
		TokenLimit:      p.Limits.TokenLimit,
	}
}

func (a *App) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := a.Plans.List(r.Context())
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	items := make([]planDTO, 0, len(plans))
	for _, p := range plans {
		items = append(items, toPlanDTO(p))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) GetPlan(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid plan id")
		return
	}
	plan, err := a.Plans.GetByID(r.Context(), id)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toPlanDTO(*plan))
}
