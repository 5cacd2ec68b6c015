package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/veranemoloko/model-downloader/internal/config"
	"github.com/veranemoloko/model-downloader/internal/domain"
	errpkg "github.com/veranemoloko/model-downloader/internal/errors"
	"github.com/veranemoloko/model-downloader/internal/metrics"
	"github.com/veranemoloko/model-downloader/internal/progress"
	"github.com/veranemoloko/model-downloader/internal/repository"
	"github.com/veranemoloko/model-downloader/internal/storage"
	"github.com/veranemoloko/model-downloader/internal/worker"
)

// TaskService orchestrates model downloads: it persists tasks, runs the asset
// downloads, and bridges observers to the progress aggregation core.
type TaskService struct {
	repo     repository.TaskRepo
	files    *storage.FileStorage
	worker   *worker.DownloadWorker
	progress *progress.Manager
	cfg      *config.Config
	logger   *slog.Logger

	mu     sync.Mutex
	active map[uuid.UUID]*activeTask
	wg     sync.WaitGroup
}

func NewTaskService(
	repo repository.TaskRepo,
	files *storage.FileStorage,
	wrk *worker.DownloadWorker,
	pm *progress.Manager,
	cfg *config.Config,
	logger *slog.Logger,
) *TaskService {
	return &TaskService{
		repo:     repo,
		files:    files,
		worker:   wrk,
		progress: pm,
		cfg:      cfg,
		logger:   logger,
		active:   make(map[uuid.UUID]*activeTask),
	}
}

// CreateTask persists a new task and starts downloading its assets in the
// background.
func (s *TaskService) CreateTask(ctx context.Context, req *domain.CreateTaskRequest) (*domain.Task, error) {
	if len(req.Assets) > s.cfg.MaxAssetsPerTask {
		return nil, fmt.Errorf("%w: %d assets, limit %d",
			errpkg.ErrTooManyAssets, len(req.Assets), s.cfg.MaxAssetsPerTask)
	}

	now := time.Now().UTC()
	task := &domain.Task{
		ID:        uuid.New(),
		Model:     req.Model,
		Status:    domain.TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, a := range req.Assets {
		task.Assets = append(task.Assets, domain.Asset{
			Name:   a.Name,
			URL:    a.URL,
			Status: domain.AssetStatusPending,
		})
	}

	if err := s.repo.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	metrics.TasksCreated.Inc()
	s.logger.Info("task created",
		"task_id", task.ID,
		"model", task.Model,
		"assets", len(task.Assets),
	)

	s.startTask(task)
	return task, nil
}

// GetTask retrieves a task by ID. Returns (nil, nil) when the task is unknown.
func (s *TaskService) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return s.repo.GetTask(ctx, id)
}

// Observe registers an observer for a task's download progress. The observer
// receives normalized, throttled updates until the download finishes or ctx is
// cancelled. Observing a task whose download already finished yields the zero
// and 100% updates immediately.
func (s *TaskService) Observe(ctx context.Context, id uuid.UUID, observer progress.Observer) error {
	s.mu.Lock()
	at := s.active[id]
	s.mu.Unlock()

	if at != nil {
		at.mu.Lock()
		components := at.attachComponentsLocked()
		s.progress.AddObserver(ctx, observer, components)
		at.mu.Unlock()

		context.AfterFunc(ctx, func() { at.detachComponents(components) })
		return nil
	}

	task, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}
	if task == nil {
		return errpkg.ErrTaskNotFound
	}
	if task.Status == domain.TaskStatusFailed {
		return errpkg.ErrTaskNotActive
	}

	s.progress.AddObserver(ctx, observer, nil)
	return nil
}

// RecoverPendingTasks restarts tasks that were pending or in progress when the
// process last stopped. Partially downloaded assets resume from the bytes
// already on disk.
func (s *TaskService) RecoverPendingTasks(ctx context.Context) error {
	pending, err := s.repo.GetTasksByStatus(ctx, domain.TaskStatusPending)
	if err != nil {
		return fmt.Errorf("get pending tasks: %w", err)
	}

	inProgress, err := s.repo.GetTasksByStatus(ctx, domain.TaskStatusInProgress)
	if err != nil {
		return fmt.Errorf("get in-progress tasks: %w", err)
	}

	tasks := append(pending, inProgress...)

	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}

		for i := range task.Assets {
			if task.Assets[i].Status == domain.AssetStatusInProgress {
				task.Assets[i].Status = domain.AssetStatusPending
				task.Assets[i].Error = ""
			}
		}

		if err := s.repo.UpdateTask(ctx, task); err != nil {
			s.logger.Error("failed to recover task", "task_id", task.ID, "error", err)
			continue
		}

		s.logger.Info("resuming task", "task_id", task.ID, "model", task.Model)
		s.startTask(task)
	}

	return nil
}

// Shutdown waits for running downloads to finish or ctx to expire.
func (s *TaskService) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *TaskService) startTask(task *domain.Task) {
	at := newActiveTask(len(task.Assets))

	s.mu.Lock()
	s.active[task.ID] = at
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runTask(task, at)
}

func (s *TaskService) runTask(task *domain.Task, at *activeTask) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DownloadTimeout)
	defer cancel()

	s.updateTask(task, at, func() {
		task.Status = domain.TaskStatusInProgress
	})

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.MaxConcurrentDownloads)
	for i := range task.Assets {
		i := i
		g.Go(func() error {
			s.downloadAsset(ctx, task, at, i)
			return nil
		})
	}
	_ = g.Wait()

	status := domain.TaskStatusCompleted
	if task.Failed() {
		status = domain.TaskStatusFailed
		metrics.TasksFailed.Inc()
	} else {
		metrics.TasksCompleted.Inc()
	}
	s.updateTask(task, at, func() {
		task.Status = status
	})

	s.mu.Lock()
	delete(s.active, task.ID)
	s.mu.Unlock()

	s.logger.Info("task finished", "task_id", task.ID, "status", status)
}

func (s *TaskService) downloadAsset(ctx context.Context, task *domain.Task, at *activeTask, i int) {
	s.updateTask(task, at, func() {
		task.Assets[i].Status = domain.AssetStatusInProgress
	})

	name := task.Assets[i].Name
	url := task.Assets[i].URL
	filename := assetFilename(task.ID, name)

	start := time.Now()
	n, err := s.worker.DownloadAsset(ctx, url, filename, at.feeds[i])
	duration := time.Since(start)

	metrics.DownloadsTotal.Inc()

	if err != nil {
		metrics.DownloadsFailed.Inc()
		s.logger.Error("asset download failed",
			"task_id", task.ID,
			"asset", name,
			"error", err,
		)
		s.updateTask(task, at, func() {
			task.Assets[i].Status = domain.AssetStatusFailed
			task.Assets[i].Error = err.Error()
			task.Assets[i].BytesRead = n
		})
		return
	}

	metrics.DownloadsSuccess.Inc()
	metrics.DownloadDuration.Observe(duration.Seconds())
	metrics.DownloadBytes.Add(float64(n))
	s.logger.Info("asset downloaded",
		"task_id", task.ID,
		"asset", name,
		"bytes", n,
	)

	s.updateTask(task, at, func() {
		a := &task.Assets[i]
		a.Status = domain.AssetStatusCompleted
		a.BytesRead = n
		a.FilePath = s.files.Path(filename)
		if f := at.feeds[i]; f.total != nil {
			a.TotalBytes = *f.total
		}
	})
}

// updateTask mutates and persists the task under the active-task lock so the
// document is never marshalled mid-change.
func (s *TaskService) updateTask(task *domain.Task, at *activeTask, mutate func()) {
	at.mu.Lock()
	defer at.mu.Unlock()

	mutate()
	task.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdateTask(context.Background(), task); err != nil {
		s.logger.Error("failed to persist task", "task_id", task.ID, "error", err)
	}
}

func assetFilename(id uuid.UUID, name string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	return fmt.Sprintf("%s_%s", id, safe)
}
