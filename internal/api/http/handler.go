package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/veranemoloko/model-downloader/internal/domain"
	errpkg "github.com/veranemoloko/model-downloader/internal/errors"
	"github.com/veranemoloko/model-downloader/internal/metrics"
	"github.com/veranemoloko/model-downloader/internal/progress"
)

// streamPollInterval is how often an open progress stream rechecks the task
// status to notice failed downloads.
var streamPollInterval = time.Second

// TaskServiceI defines the interface for task-related business logic.
type TaskServiceI interface {
	CreateTask(ctx context.Context, req *domain.CreateTaskRequest) (*domain.Task, error)
	GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	Observe(ctx context.Context, id uuid.UUID, observer progress.Observer) error
}

// TaskHandler handles HTTP requests for download tasks.
type TaskHandler struct {
	taskService TaskServiceI
	validator   *validator.Validate
	logger      *slog.Logger
}

// NewTaskHandler creates a new TaskHandler with the provided service and logger.
func NewTaskHandler(taskService TaskServiceI, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
		validator:   validator.New(),
		logger:      logger,
	}
}

// CreateTask handles the HTTP POST /tasks request to create a new download task.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("validation failed", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.taskService.CreateTask(ctx, &req)
	if err != nil {
		if errors.Is(err, errpkg.ErrTooManyAssets) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to create task", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("task created", "task_id", task.ID, "model", task.Model)

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"task_id": task.ID,
	})
}

// GetTask handles the HTTP GET /tasks/{taskID} request to fetch a task by ID.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	taskID, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task ID")
		return
	}

	task, err := h.taskService.GetTask(ctx, taskID)
	if err != nil {
		h.logger.Error("failed to get task", "task_id", taskID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if task == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	response := domain.TaskResponse{
		ID:        task.ID,
		Model:     task.Model,
		Status:    task.Status,
		Assets:    task.Assets,
		CreatedAt: task.CreatedAt,
		UpdatedAt: task.UpdatedAt,
	}

	writeJSON(w, http.StatusOK, response)
}

// StreamProgress handles GET /tasks/{taskID}/progress: it registers the client
// as a progress observer and streams normalized updates as server-sent events
// until the download reaches 100% or the client disconnects.
func (h *TaskHandler) StreamProgress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	taskID, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task ID")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	observer := newSSEObserver(ctx)
	if err := h.taskService.Observe(ctx, taskID, observer); err != nil {
		switch {
		case errors.Is(err, errpkg.ErrTaskNotFound):
			writeError(w, http.StatusNotFound, "task not found")
		case errors.Is(err, errpkg.ErrTaskNotActive):
			writeError(w, http.StatusConflict, "task failed, no progress to stream")
		default:
			h.logger.Error("failed to observe task", "task_id", taskID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	metrics.ProgressObservers.Inc()
	defer metrics.ProgressObservers.Dec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case u := <-observer.updates:
			if _, err := fmt.Fprintf(w, "data: {\"progress\":%d,\"max\":%d}\n\n", u.progress, u.max); err != nil {
				return
			}
			flusher.Flush()
			metrics.ProgressUpdatesSent.Inc()

			if u.progress == u.max {
				return
			}
		case <-ticker.C:
			// A failed task never reaches 100%; end the stream instead of
			// leaving the client hanging.
			task, err := h.taskService.GetTask(ctx, taskID)
			if err != nil || task == nil {
				return
			}
			if task.Status == domain.TaskStatusFailed {
				if _, err := fmt.Fprint(w, "event: failed\ndata: {\"status\":\"failed\"}\n\n"); err != nil {
					return
				}
				flusher.Flush()
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
