package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

type consumeRequest struct {
	Amount int    `json:"amount"`
	Source string `json:"source"`
}

func (a *App) TokenBalance(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	usage, err := a.Ledger.BalanceWithPlanLimit(r.Context(), userID)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, usage)
}

func (a *App) ConsumeTokens(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req consumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	source := req.Source
	if source == "" {
		source = "api_consume"
	}
	user, err := a.Ledger.ConsumeTokens(r.Context(), userID, req.Amount, source)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"user_id":           user.ID,
		"token_balance":     user.TokenBalance,
		"token_valid_until": user.TokenValidUntil,
		"consumed":          req.Amount,
	})
}

type historyItem struct {
	ID                    int64     `json:"id"`
	Change                int       `json:"change"`
	Source                string    `json:"source"`
	ValidityExtensionDays int       `json:"validity_extension_days"`
	CreatedAt             time.Time `json:"created_at"`
}

func (a *App) TokenHistory(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := a.Ledger.History(r.Context(), userID, limit)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	items := make([]historyItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, historyItem{
			ID:                    e.ID,
			Change:                e.Change,
			Source:                e.Source,
			ValidityExtensionDays: e.ValidityExtensionDays,
			CreatedAt:             e.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}
