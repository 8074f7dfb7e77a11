package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"vesture/internal/domain"
	"vesture/internal/middleware"
)

const authTokenTTL = 24 * time.Hour

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string  `json:"token"`
	User  userDTO `json:"user"`
}

type userDTO struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	TokenBalance       int        `json:"token_balance"`
	TokenValidUntil    *time.Time `json:"token_valid_until,omitempty"`
	SubscriptionActive bool       `json:"subscription_active"`
	PlanID             *int64     `json:"plan_id,omitempty"`
}

func (a *App) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(req.Email); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "valid email required")
		return
	}
	if len(req.Password) < 8 {
		a.error(w, http.StatusBadRequest, "bad_request", "password must be at least 8 characters")
		return
	}

	if _, err := a.Users.GetByEmail(r.Context(), req.Email); err == nil {
		a.error(w, http.StatusConflict, "conflict", "email already registered")
		return
	} else if !errors.Is(err, domain.ErrNotFound) {
		a.domainError(w, r, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	user, err := a.Users.Create(r.Context(), &domain.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: string(hash),
	})
	if err != nil {
		a.domainError(w, r, err)
		return
	}

	a.respondWithToken(w, r, user, http.StatusCreated)
}

func (a *App) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	user, err := a.Users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
			return
		}
		a.domainError(w, r, err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		return
	}

	a.respondWithToken(w, r, user, http.StatusOK)
}

func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	user, err := a.Users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.userDTO(r, user))
}

func (a *App) respondWithToken(w http.ResponseWriter, r *http.Request, user *domain.User, code int) {
	jwt, err := middleware.SignJWT(a.JWTSecret, user.ID, user.Email, authTokenTTL)
	if err != nil {
		a.Logger.Error().Err(err).Msg("sign jwt failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to sign token")
		return
	}
	a.json(w, code, authResponse{Token: jwt, User: a.userDTO(r, user)})
}

func (a *App) userDTO(r *http.Request, user *domain.User) userDTO {
	dto := userDTO{
		ID:              user.ID,
		Email:           user.Email,
		TokenBalance:    user.TokenBalance,
		TokenValidUntil: user.TokenValidUntil,
	}
	if sub, err := a.Subs.GetActive(r.Context(), user.ID); err == nil {
		dto.SubscriptionActive = true
		dto.PlanID = &sub.PlanID
	}
	return dto
}
