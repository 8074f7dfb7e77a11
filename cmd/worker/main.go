package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"vesture/internal/adapter/repo"
	"vesture/internal/db"
	"vesture/internal/domain"
	"vesture/internal/infra"
	"vesture/internal/token"
	"vesture/internal/tryon"
)

const batchPollInterval = 2 * time.Second

type worker struct {
	logger  zerolog.Logger
	tasks   domain.TaskRepository
	models  domain.ModelRepository
	batches domain.BatchRepository
	ledger  *token.Ledger
	tryon   *tryon.Client
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	if err := db.Ensure(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("worker: ensure schema failed")
	}

	users := repo.NewUserRepository(pool)
	plans := repo.NewPlanRepository(pool)
	subs := repo.NewSubscriptionRepository(pool)

	w := &worker{
		logger:  logger,
		tasks:   repo.NewTaskRepository(pool),
		models:  repo.NewModelRepository(pool),
		batches: repo.NewBatchRepository(pool),
		ledger:  token.NewLedger(users, plans, subs),
		tryon: tryon.NewClient(tryon.Options{
			BaseURL: cfg.TryOnBaseURL,
			APIKey:  cfg.TryOnAPIKey,
			Model:   cfg.TryOnModel,
		}),
	}

	logger.Info().Msg("worker started")
	w.run(ctx)
	logger.Info().Msg("worker stopped")
}

func (w *worker) run(ctx context.Context) {
	ticker := time.NewTicker(batchPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		batch, err := w.batches.ClaimQueued(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			w.logger.Error().Err(err).Msg("claim batch failed")
			continue
		}
		w.process(ctx, batch)
	}
}

// process renders every garment against every pose of the task's model. Any
// generation failure fails the whole batch and refunds the tokens charged at
// creation.
func (w *worker) process(ctx context.Context, batch *domain.Batch) {
	log := w.logger.With().Int64("batch_id", batch.ID).Logger()

	task, err := w.tasks.GetByID(ctx, batch.TaskID)
	if err != nil {
		w.fail(ctx, batch, "", fmt.Sprintf("load task: %v", err))
		return
	}
	model, err := w.models.GetByID(ctx, task.ModelID)
	if err != nil {
		w.fail(ctx, batch, task.UserID, fmt.Sprintf("load model: %v", err))
		return
	}

	var outputs []domain.GeneratedImage
	for _, garment := range batch.Garments {
		for _, pose := range model.Images {
			outputURL, err := w.tryon.Generate(ctx, tryon.Request{
				ModelImageURL: pose.ImageURL,
				ClothingURL:   garment.ImageURL,
			})
			if err != nil {
				log.Error().Err(err).
					Int64("garment_id", garment.ID).
					Str("pose", pose.PoseLabel).
					Msg("generation failed")
				w.fail(ctx, batch, task.UserID, fmt.Sprintf("generate garment %d pose %s: %v", garment.ID, pose.PoseLabel, err))
				return
			}
			outputs = append(outputs, domain.GeneratedImage{
				GarmentID:     garment.ID,
				ModelImageURL: pose.ImageURL,
				PoseLabel:     pose.PoseLabel,
				OutputURL:     outputURL,
			})
		}
	}

	if err := w.batches.SaveGenerated(ctx, outputs); err != nil {
		w.fail(ctx, batch, task.UserID, fmt.Sprintf("persist outputs: %v", err))
		return
	}
	if err := w.batches.MarkDone(ctx, batch.ID); err != nil {
		log.Error().Err(err).Msg("mark done failed")
		return
	}
	log.Info().Int("outputs", len(outputs)).Msg("batch completed")
}

// fail finalizes the batch and returns its charged tokens. The refund carries
// no validity extension so it cannot stretch the user's window.
func (w *worker) fail(ctx context.Context, batch *domain.Batch, userID, reason string) {
	if err := w.batches.MarkFailed(ctx, batch.ID, reason); err != nil {
		w.logger.Error().Err(err).Int64("batch_id", batch.ID).Msg("mark failed")
	}
	if userID == "" || batch.TokensUsed <= 0 {
		return
	}
	source := fmt.Sprintf("refund_batch_%d", batch.ID)
	if _, err := w.ledger.AddTokens(ctx, userID, batch.TokensUsed, source, 0); err != nil {
		w.logger.Error().Err(err).
			Int64("batch_id", batch.ID).
			Str("user_id", userID).
			Int("amount", batch.TokensUsed).
			Msg("refund failed")
	}
}
