// Package subscription manages the single logical subscription each user
// holds: creation on first purchase, overwrite on renewal or plan change, and
// validity checks against the current period end.
package subscription

import (
	"context"
	"errors"
	"time"

	"vesture/internal/domain"
)

// Manager owns subscription lifecycle transitions.
type Manager struct {
	subs  domain.SubscriptionRepository
	plans domain.PlanRepository
}

// NewManager constructs a Manager.
func NewManager(subs domain.SubscriptionRepository, plans domain.PlanRepository) *Manager {
	return &Manager{subs: subs, plans: plans}
}

// CreateOrRenew upserts the user's subscription against the given plan. The
// new period always starts from now; a renewal before expiry forfeits the
// remaining time rather than stacking periods.
func (m *Manager) CreateOrRenew(ctx context.Context, userID string, planID int64) (*domain.Subscription, error) {
	plan, err := m.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	sub := &domain.Subscription{
		UserID:           userID,
		PlanID:           plan.ID,
		Status:           domain.SubscriptionStatusActive,
		CurrentPeriodEnd: time.Now().AddDate(0, 0, plan.DurationDays()),
	}
	return m.subs.Upsert(ctx, sub)
}

// ChangePlan switches the user to a different plan. Without an existing
// subscription it behaves like CreateOrRenew.
func (m *Manager) ChangePlan(ctx context.Context, userID string, newPlanID int64) (*domain.Subscription, error) {
	return m.CreateOrRenew(ctx, userID, newPlanID)
}

// GetActive returns the user's subscription when it is currently valid.
func (m *Manager) GetActive(ctx context.Context, userID string) (*domain.Subscription, error) {
	sub, err := m.subs.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !sub.ValidAt(time.Now()) {
		return nil, domain.ErrSubscriptionNotFound
	}
	return sub, nil
}

// IsValid reports whether the user holds an active, unexpired subscription
// at the given instant.
func (m *Manager) IsValid(ctx context.Context, userID string, at time.Time) (bool, error) {
	sub, err := m.subs.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			return false, nil
		}
		return false, err
	}
	return sub.ValidAt(at), nil
}

// Cancel marks the subscription canceled with immediate expiry.
func (m *Manager) Cancel(ctx context.Context, userID string) (*domain.Subscription, error) {
	return m.subs.UpdateStatus(ctx, userID, domain.SubscriptionStatusCanceled, time.Now())
}

// Extend pushes the period end out by extraDays, counted from the current
// period end or from now when the subscription has already lapsed.
func (m *Manager) Extend(ctx context.Context, userID string, extraDays int) (*domain.Subscription, error) {
	sub, err := m.subs.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	base := sub.CurrentPeriodEnd
	if base.Before(now) {
		base = now
	}
	return m.subs.UpdateStatus(ctx, userID, domain.SubscriptionStatusActive, base.AddDate(0, 0, extraDays))
}
