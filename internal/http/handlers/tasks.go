package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"vesture/internal/domain"
)

type createTaskRequest struct {
	ModelID int64  `json:"model_id"`
	Name    string `json:"name"`
}

type taskDTO struct {
	ID        int64     `json:"id"`
	ModelID   int64     `json:"model_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func toTaskDTO(t domain.Task) taskDTO {
	return taskDTO{ID: t.ID, ModelID: t.ModelID, Name: t.Name, CreatedAt: t.CreatedAt}
}

func (a *App) CreateTask(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "task name required")
		return
	}
	if _, err := a.Models.GetByID(r.Context(), req.ModelID); err != nil {
		a.domainError(w, r, err)
		return
	}
	task, err := a.Tasks.Create(r.Context(), &domain.Task{
		UserID:  userID,
		ModelID: req.ModelID,
		Name:    strings.TrimSpace(req.Name),
	})
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, toTaskDTO(*task))
}

func (a *App) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	tasks, err := a.Tasks.ListByUser(r.Context(), userID)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	items := make([]taskDTO, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, toTaskDTO(t))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// taskForUser loads a task and enforces ownership.
func (a *App) taskForUser(r *http.Request, taskID int64) (*domain.Task, error) {
	userID := a.currentUserID(r)
	task, err := a.Tasks.GetByID(r.Context(), taskID)
	if err != nil {
		return nil, err
	}
	if task.UserID != userID {
		return nil, domain.ErrUnauthorized
	}
	return task, nil
}

func (a *App) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid task id")
		return
	}
	task, err := a.taskForUser(r, id)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	batches, err := a.Batches.ListByTask(r.Context(), task.ID)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	items := make([]batchDTO, 0, len(batches))
	for _, b := range batches {
		items = append(items, toBatchDTO(b))
	}
	a.json(w, http.StatusOK, map[string]any{
		"task":    toTaskDTO(*task),
		"batches": items,
	})
}

type modelDTO struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	ImageURLs   []string `json:"image_urls"`
}

func (a *App) ListModels(w http.ResponseWriter, r *http.Request) {
	models, err := a.Models.List(r.Context())
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	items := make([]modelDTO, 0, len(models))
	for _, m := range models {
		urls := make([]string, 0, len(m.Images))
		for _, img := range m.Images {
			urls = append(urls, img.ImageURL)
		}
		items = append(items, modelDTO{ID: m.ID, Name: m.Name, Description: m.Description, ImageURLs: urls})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}
