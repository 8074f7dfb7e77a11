package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vesture/internal/domain"
)

const batchColumns = `id, task_id, status, tokens_used, error, created_at, updated_at`

// BatchRepositoryPG implements domain.BatchRepository backed by PostgreSQL.
type BatchRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewBatchRepository creates a new batch repo.
func NewBatchRepository(pool *pgxpool.Pool) *BatchRepositoryPG {
	return &BatchRepositoryPG{pool: pool}
}

// CreateWithGarments inserts the batch and its garment rows in one transaction.
func (r *BatchRepositoryPG) CreateWithGarments(ctx context.Context, batch *domain.Batch) (*domain.Batch, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
INSERT INTO batches (task_id, status, tokens_used)
VALUES ($1, $2, $3)
RETURNING `+batchColumns+`;
`, batch.TaskID, domain.BatchStatusQueued, batch.TokensUsed)
	created, err := scanBatch(row)
	if err != nil {
		return nil, err
	}

	for i := range batch.Garments {
		g := &batch.Garments[i]
		if err := tx.QueryRow(ctx, `
INSERT INTO garment_images (batch_id, image_url)
VALUES ($1, $2)
RETURNING id;
`, created.ID, g.ImageURL).Scan(&g.ID); err != nil {
			return nil, err
		}
		g.BatchID = created.ID
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	created.Garments = batch.Garments
	return created, nil
}

// GetByID fetches a batch along with its garments.
func (r *BatchRepositoryPG) GetByID(ctx context.Context, id int64) (*domain.Batch, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = $1`, id)
	batch, err := scanBatch(row)
	if err != nil {
		return nil, err
	}
	garments, err := r.garmentsFor(ctx, batch.ID)
	if err != nil {
		return nil, err
	}
	batch.Garments = garments
	return batch, nil
}

// ListByTask returns batches for a task, newest first.
func (r *BatchRepositoryPG) ListByTask(ctx context.Context, taskID int64) ([]domain.Batch, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+batchColumns+`
FROM batches
WHERE task_id = $1
ORDER BY created_at DESC;
`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.Batch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *batch)
	}
	return items, rows.Err()
}

// ClaimQueued claims the oldest queued batch and flips it to processing.
// SKIP LOCKED keeps concurrent workers from fighting over the same row.
func (r *BatchRepositoryPG) ClaimQueued(ctx context.Context) (*domain.Batch, error) {
	row := r.pool.QueryRow(ctx, `
UPDATE batches
SET status = $1, updated_at = now()
WHERE id = (
    SELECT id FROM batches
    WHERE status = $2
    ORDER BY created_at
    FOR UPDATE SKIP LOCKED
    LIMIT 1
)
RETURNING `+batchColumns+`;
`, domain.BatchStatusProcessing, domain.BatchStatusQueued)
	batch, err := scanBatch(row)
	if err != nil {
		return nil, err
	}
	garments, err := r.garmentsFor(ctx, batch.ID)
	if err != nil {
		return nil, err
	}
	batch.Garments = garments
	return batch, nil
}

// MarkDone finalizes a batch successfully.
func (r *BatchRepositoryPG) MarkDone(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
UPDATE batches SET status = $2, updated_at = now() WHERE id = $1;
`, id, domain.BatchStatusDone)
	return err
}

// MarkFailed finalizes a batch with an error message.
func (r *BatchRepositoryPG) MarkFailed(ctx context.Context, id int64, reason string) error {
	_, err := r.pool.Exec(ctx, `
UPDATE batches SET status = $2, error = $3, updated_at = now() WHERE id = $1;
`, id, domain.BatchStatusFailed, reason)
	return err
}

// SaveGenerated persists try-on outputs.
func (r *BatchRepositoryPG) SaveGenerated(ctx context.Context, images []domain.GeneratedImage) error {
	for _, img := range images {
		_, err := r.pool.Exec(ctx, `
INSERT INTO generated_images (garment_image_id, model_image_url, pose_label, output_url)
VALUES ($1, $2, $3, $4);
`, img.GarmentID, img.ModelImageURL, img.PoseLabel, img.OutputURL)
		if err != nil {
			return err
		}
	}
	return nil
}

// ListGenerated returns all outputs attached to a batch's garments.
func (r *BatchRepositoryPG) ListGenerated(ctx context.Context, batchID int64) ([]domain.GeneratedImage, error) {
	rows, err := r.pool.Query(ctx, `
SELECT g.id, g.garment_image_id, g.model_image_url, g.pose_label, g.output_url, g.created_at
FROM generated_images g
JOIN garment_images gi ON gi.id = g.garment_image_id
WHERE gi.batch_id = $1
ORDER BY g.id;
`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.GeneratedImage
	for rows.Next() {
		var img domain.GeneratedImage
		if err := rows.Scan(&img.ID, &img.GarmentID, &img.ModelImageURL, &img.PoseLabel, &img.OutputURL, &img.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, img)
	}
	return items, rows.Err()
}

func (r *BatchRepositoryPG) garmentsFor(ctx context.Context, batchID int64) ([]domain.GarmentImage, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, batch_id, image_url
FROM garment_images
WHERE batch_id = $1
ORDER BY id;
`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var garments []domain.GarmentImage
	for rows.Next() {
		var g domain.GarmentImage
		if err := rows.Scan(&g.ID, &g.BatchID, &g.ImageURL); err != nil {
			return nil, err
		}
		garments = append(garments, g)
	}
	return garments, rows.Err()
}

func scanBatch(row pgx.Row) (*domain.Batch, error) {
	var b domain.Batch
	if err := row.Scan(&b.ID, &b.TaskID, &b.Status, &b.TokensUsed, &b.Error, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}
