package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vesture/internal/domain"
)

// ModelRepositoryPG implements domain.ModelRepository backed by PostgreSQL.
type ModelRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewModelRepository creates a new model repo.
func NewModelRepository(pool *pgxpool.Pool) *ModelRepositoryPG {
	return &ModelRepositoryPG{pool: pool}
}

// GetByID fetches a model along with its pose images.
func (r *ModelRepositoryPG) GetByID(ctx context.Context, id int64) (*domain.TryOnModel, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, description FROM models WHERE id = $1`, id)
	var m domain.TryOnModel
	if err := row.Scan(&m.ID, &m.Name, &m.Description); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	images, err := r.imagesFor(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	m.Images = images
	return &m, nil
}

// List returns all models with their pose images.
func (r *ModelRepositoryPG) List(ctx context.Context) ([]domain.TryOnModel, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description FROM models ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.TryOnModel
	for rows.Next() {
		var m domain.TryOnModel
		if err := rows.Scan(&m.ID, &m.Name, &m.Description); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range items {
		images, err := r.imagesFor(ctx, items[i].ID)
		if err != nil {
			return nil, err
		}
		items[i].Images = images
	}
	return items, nil
}

func (r *ModelRepositoryPG) imagesFor(ctx context.Context, modelID int64) ([]domain.ModelImage, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, model_id, pose_label, image_url
FROM model_images
WHERE model_id = $1
ORDER BY id;
`, modelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []domain.ModelImage
	for rows.Next() {
		var img domain.ModelImage
		if err := rows.Scan(&img.ID, &img.ModelID, &img.PoseLabel, &img.ImageURL); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}
