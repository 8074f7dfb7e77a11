package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vesture/internal/domain"
)

const subscriptionColumns = `id, user_id, plan_id, status, current_period_end, created_at, updated_at`

// SubscriptionRepositoryPG implements domain.SubscriptionRepository backed by PostgreSQL.
type SubscriptionRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepository creates a new subscription repo.
func NewSubscriptionRepository(pool *pgxpool.Pool) *SubscriptionRepositoryPG {
	return &SubscriptionRepositoryPG{pool: pool}
}

// GetByUserID fetches the user's subscription row.
func (r *SubscriptionRepositoryPG) GetByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1`, userID)
	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

// Upsert overwrites the single subscription row keyed by user id.
func (r *SubscriptionRepositoryPG) Upsert(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	row := r.pool.QueryRow(ctx, `
INSERT INTO subscriptions (user_id, plan_id, status, current_period_end)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO UPDATE
SET plan_id = EXCLUDED.plan_id,
    status = EXCLUDED.status,
    current_period_end = EXCLUDED.current_period_end,
    updated_at = now()
RETURNING `+subscriptionColumns+`;
`, sub.UserID, sub.PlanID, sub.Status, sub.CurrentPeriodEnd)
	return scanSubscription(row)
}

// UpdateStatus changes the status and period end of an existing row.
func (r *SubscriptionRepositoryPG) UpdateStatus(ctx context.Context, userID string, status domain.SubscriptionStatus, periodEnd time.Time) (*domain.Subscription, error) {
	row := r.pool.QueryRow(ctx, `
UPDATE subscriptions
SET status = $2, current_period_end = $3, updated_at = now()
WHERE user_id = $1
RETURNING `+subscriptionColumns+`;
`, userID, status, periodEnd)
	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var s domain.Subscription
	if err := row.Scan(&s.ID, &s.UserID, &s.PlanID, &s.Status, &s.CurrentPeriodEnd, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}
