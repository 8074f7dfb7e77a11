package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrPlanNotFound         = errors.New("plan not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInvalidAmount        = errors.New("invalid token amount")
	ErrInsufficientBalance  = errors.New("insufficient token balance")
	ErrTokensExpired        = errors.New("tokens expired")
	ErrNoAllocation         = errors.New("plan has no token allocation")
	ErrDuplicateOperation   = errors.New("duplicate operation")
)
