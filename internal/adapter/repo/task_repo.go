package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vesture/internal/domain"
)

// TaskRepositoryPG implements domain.TaskRepository backed by PostgreSQL.
type TaskRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewTaskRepository creates a new task repo.
func NewTaskRepository(pool *pgxpool.Pool) *TaskRepositoryPG {
	return &TaskRepositoryPG{pool: pool}
}

// Create inserts a task row.
func (r *TaskRepositoryPG) Create(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	row := r.pool.QueryRow(ctx, `
INSERT INTO tasks (user_id, model_id, name)
VALUES ($1, $2, $3)
RETURNING id, user_id, model_id, name, created_at;
`, task.UserID, task.ModelID, task.Name)
	return scanTask(row)
}

// GetByID fetches a task by id.
func (r *TaskRepositoryPG) GetByID(ctx context.Context, id int64) (*domain.Task, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, user_id, model_id, name, created_at FROM tasks WHERE id = $1`, id)
	return scanTask(row)
}

// ListByUser returns the user's tasks, newest first.
func (r *TaskRepositoryPG) ListByUser(ctx context.Context, userID string) ([]domain.Task, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, user_id, model_id, name, created_at
FROM tasks
WHERE user_id = $1
ORDER BY created_at DESC;
`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.Task
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(&t.ID, &t.UserID, &t.ModelID, &t.Name, &t.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var t domain.Task
	if err := row.Scan(&t.ID, &t.UserID, &t.ModelID, &t.Name, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}
