package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"vesture/internal/domain"
	"vesture/pkg/zip"
)

type createBatchRequest struct {
	TaskID      int64    `json:"task_id"`
	GarmentURLs []string `json:"garment_urls"`
}

type batchDTO struct {
	ID         int64     `json:"id"`
	TaskID     int64     `json:"task_id"`
	Status     string    `json:"status"`
	TokensUsed int       `json:"tokens_used"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func toBatchDTO(b domain.Batch) batchDTO {
	return batchDTO{
		ID:         b.ID,
		TaskID:     b.TaskID,
		Status:     string(b.Status),
		TokensUsed: b.TokensUsed,
		Error:      b.Error,
		CreatedAt:  b.CreatedAt,
	}
}

// CreateBatch queues a try-on run. One token is charged per garment and pose
// pair; the charge happens up front through the ledger's conditional debit,
// and the worker refunds it if the batch later fails.
func (a *App) CreateBatch(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req createBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	garments := make([]domain.GarmentImage, 0, len(req.GarmentURLs))
	for _, raw := range req.GarmentURLs {
		if url := strings.TrimSpace(raw); url != "" {
			garments = append(garments, domain.GarmentImage{ImageURL: url})
		}
	}
	if len(garments) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "at least one garment url required")
		return
	}

	task, err := a.taskForUser(r, req.TaskID)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	model, err := a.Models.GetByID(r.Context(), task.ModelID)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	if len(model.Images) == 0 {
		a.error(w, http.StatusUnprocessableEntity, "no_model_images", "model has no pose images")
		return
	}

	required := len(garments) * len(model.Images)
	avail, err := a.Ledger.CheckAvailability(r.Context(), userID, required)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	if !avail.CanProceed {
		if !avail.HasSufficient {
			a.error(w, http.StatusPaymentRequired, "insufficient_balance",
				fmt.Sprintf("batch needs %d tokens, balance is %d", required, avail.Balance))
		} else {
			a.error(w, http.StatusPaymentRequired, "tokens_expired", "token validity window has expired")
		}
		return
	}

	// The availability check is advisory; the debit re-checks both
	// conditions atomically.
	if _, err := a.Ledger.ConsumeTokens(r.Context(), userID, required, fmt.Sprintf("tryon_task_%d", task.ID)); err != nil {
		a.domainError(w, r, err)
		return
	}

	batch, err := a.Batches.CreateWithGarments(r.Context(), &domain.Batch{
		TaskID:     task.ID,
		Status:     domain.BatchStatusQueued,
		TokensUsed: required,
		Garments:   garments,
	})
	if err != nil {
		// Tokens are already gone; give them back rather than leaving the
		// user charged for a batch that never existed.
		if _, refundErr := a.Ledger.AddTokens(r.Context(), userID, required, "refund_batch_create", 0); refundErr != nil {
			a.Logger.Error().Err(refundErr).Str("user_id", userID).Int("amount", required).Msg("refund after failed batch insert")
		}
		a.domainError(w, r, err)
		return
	}

	a.json(w, http.StatusCreated, toBatchDTO(*batch))
}

func (a *App) batchForUser(r *http.Request, batchID int64) (*domain.Batch, error) {
	batch, err := a.Batches.GetByID(r.Context(), batchID)
	if err != nil {
		return nil, err
	}
	if _, err := a.taskForUser(r, batch.TaskID); err != nil {
		return nil, err
	}
	return batch, nil
}

func (a *App) GetBatch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid batch id")
		return
	}
	batch, err := a.batchForUser(r, id)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	generated, err := a.Batches.ListGenerated(r.Context(), batch.ID)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	outputs := make([]map[string]any, 0, len(generated))
	for _, img := range generated {
		outputs = append(outputs, map[string]any{
			"id":         img.ID,
			"garment_id": img.GarmentID,
			"pose_label": img.PoseLabel,
			"output_url": img.OutputURL,
		})
	}
	a.json(w, http.StatusOK, map[string]any{
		"batch":   toBatchDTO(*batch),
		"outputs": outputs,
	})
}

// DownloadBatch streams a zip of every generated output in the batch. Outputs
// are fetched from their stored URLs; unreachable files are skipped.
func (a *App) DownloadBatch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid batch id")
		return
	}
	batch, err := a.batchForUser(r, id)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	if batch.Status != domain.BatchStatusDone {
		a.error(w, http.StatusConflict, "not_ready", "batch has not finished")
		return
	}
	generated, err := a.Batches.ListGenerated(r.Context(), batch.ID)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	if len(generated) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "batch has no outputs")
		return
	}

	assets := make([]zip.Asset, 0, len(generated))
	for _, img := range generated {
		data, err := a.fetchOutput(r, img.OutputURL)
		if err != nil {
			a.Logger.Warn().Err(err).Str("url", img.OutputURL).Msg("skipping unreachable output")
			continue
		}
		assets = append(assets, zip.Asset{
			Filename: fmt.Sprintf("garment-%d-%s.png", img.GarmentID, img.PoseLabel),
			Data:     data,
		})
	}
	if len(assets) == 0 {
		a.error(w, http.StatusBadGateway, "gateway_error", "no outputs could be fetched")
		return
	}

	archive, err := zip.ArchiveAssets(assets)
	if err != nil {
		a.Logger.Error().Err(err).Int64("batch_id", batch.ID).Msg("archive outputs")
		a.error(w, http.StatusInternalServerError, "internal_error", "failed to build archive")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="batch-%d.zip"`, batch.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

// fetchOutput reads a generated image, from local storage when the URL maps
// into the file store and over HTTP otherwise.
func (a *App) fetchOutput(r *http.Request, url string) ([]byte, error) {
	if a.Store != nil {
		if data, err := a.Store.ReadURL(r.Context(), url); err == nil {
			return data, nil
		}
	}
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch output: http %d", resp.StatusCode)
	}
	return readAllLimited(resp.Body)
}

const maxOutputBytes = 32 << 20

func readAllLimited(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxOutputBytes))
}
