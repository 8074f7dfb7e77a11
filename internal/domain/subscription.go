package domain

import "time"

// SubscriptionStatus enumerates subscription lifecycle states.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// Subscription records the single logical subscription a user holds. The
// table enforces one row per user; renewals and plan changes overwrite it.
type Subscription struct {
	ID               int64
	UserID           string
	PlanID           int64
	Status           SubscriptionStatus
	CurrentPeriodEnd time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ValidAt reports whether the subscription grants access at the given time.
func (s Subscription) ValidAt(at time.Time) bool {
	return s.Status == SubscriptionStatusActive && s.CurrentPeriodEnd.After(at)
}
