package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vesture/internal/domain"
)

// PlanRepositoryPG implements domain.PlanRepository backed by PostgreSQL.
type PlanRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewPlanRepository creates a new plan repo.
func NewPlanRepository(pool *pgxpool.Pool) *PlanRepositoryPG {
	return &PlanRepositoryPG{pool: pool}
}

// GetByID fetches a plan by id.
func (r *PlanRepositoryPG) GetByID(ctx context.Context, id int64) (*domain.Plan, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, price_cents, limits FROM plans WHERE id = $1`, id)
	plan, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrPlanNotFound
		}
		return nil, err
	}
	return plan, nil
}

// List returns all plans ordered by price.
func (r *PlanRepositoryPG) List(ctx context.Context) ([]domain.Plan, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, price_cents, limits FROM plans ORDER BY price_cents`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *plan)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanPlan(row pgx.Row) (*domain.Plan, error) {
	var p domain.Plan
	var limits []byte
	if err := row.Scan(&p.ID, &p.Name, &p.PriceCents, &limits); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	p.Limits = domain.DecodePlanLimits(limits)
	return &p, nil
}
