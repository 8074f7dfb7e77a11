// Package handlers implements the HTTP API surface. Handlers stay thin: they
// decode, call a service, map domain errors to status codes and encode.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"vesture/internal/domain"
	"vesture/internal/middleware"
	"vesture/internal/payment"
	"vesture/internal/storage"
	"vesture/internal/subscription"
	"vesture/internal/token"
)

// App bundles the services and repositories handlers need.
type App struct {
	Logger zerolog.Logger

	Users   domain.UserRepository
	Plans   domain.PlanRepository
	Txns    domain.TransactionRepository
	Models  domain.ModelRepository
	Tasks   domain.TaskRepository
	Batches domain.BatchRepository

	Ledger     *token.Ledger
	Subs       *subscription.Manager
	PayPal     *payment.PayPalClient
	Reconciler *payment.Reconciler
	Store      *storage.FileStore

	JWTSecret string
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, errorBody{Error: kind, Message: message})
}

// domainError maps sentinel domain errors onto HTTP responses. Unknown errors
// become a logged 500.
func (a *App) domainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		a.error(w, http.StatusBadRequest, "invalid_amount", err.Error())
	case errors.Is(err, domain.ErrInsufficientBalance):
		a.error(w, http.StatusPaymentRequired, "insufficient_balance", err.Error())
	case errors.Is(err, domain.ErrTokensExpired):
		a.error(w, http.StatusPaymentRequired, "tokens_expired", "token validity window has expired")
	case errors.Is(err, domain.ErrNoAllocation):
		a.error(w, http.StatusUnprocessableEntity, "no_allocation", err.Error())
	case errors.Is(err, domain.ErrUserNotFound):
		a.error(w, http.StatusNotFound, "not_found", "user not found")
	case errors.Is(err, domain.ErrPlanNotFound):
		a.error(w, http.StatusNotFound, "not_found", "plan not found")
	case errors.Is(err, domain.ErrSubscriptionNotFound):
		a.error(w, http.StatusNotFound, "not_found", "no active subscription")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", "not allowed")
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
