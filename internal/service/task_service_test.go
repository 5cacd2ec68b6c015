package service

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veranemoloko/model-downloader/internal/config"
	"github.com/veranemoloko/model-downloader/internal/domain"
	errpkg "github.com/veranemoloko/model-downloader/internal/errors"
	"github.com/veranemoloko/model-downloader/internal/progress"
	"github.com/veranemoloko/model-downloader/internal/repository"
	"github.com/veranemoloko/model-downloader/internal/storage"
	"github.com/veranemoloko/model-downloader/internal/worker"
)

type progressRecorder struct {
	mu      sync.Mutex
	updates [][2]int64
}

func (r *progressRecorder) OnDownloadProgressUpdate(progress, max int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, [2]int64{progress, max})
}

func (r *progressRecorder) Updates() [][2]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][2]int64(nil), r.updates...)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		MaxConcurrentDownloads: 3,
		MaxAssetsPerTask:       10,
		DownloadTimeout:        time.Minute,
		DownloadDir:            t.TempDir(),
		ProgressMax:            progress.DefaultMax,
		ProgressMinInterval:    progress.DefaultMinInterval,
	}
}

func newTestService(t *testing.T, cfg *config.Config) *TaskService {
	t.Helper()

	repo, err := repository.NewBboltTaskRepo(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	logger := newTestLogger()
	files := storage.NewFileStorage(cfg.DownloadDir)
	wrk := worker.NewDownloadWorker(files, cfg.DownloadTimeout, logger)
	pm := progress.NewManager(progress.Options{
		Max:         cfg.ProgressMax,
		MinInterval: cfg.ProgressMinInterval,
	})

	return NewTaskService(repo, files, wrk, pm, cfg, logger)
}

func newAssetServer(t *testing.T, files map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func waitForStatus(t *testing.T, svc *TaskService, id uuid.UUID, want domain.TaskStatus) *domain.Task {
	t.Helper()
	var got *domain.Task
	require.Eventually(t, func() bool {
		task, err := svc.GetTask(context.Background(), id)
		if err != nil || task == nil {
			return false
		}
		got = task
		return task.Status == want
	}, 5*time.Second, 20*time.Millisecond)
	return got
}

func TestTaskService_CreateTask_DownloadsAllAssets(t *testing.T) {
	server := newAssetServer(t, map[string]string{
		"/weights":   strings.Repeat("w", 500),
		"/tokenizer": strings.Repeat("t", 100),
	})

	cfg := testConfig(t)
	svc := newTestService(t, cfg)

	task, err := svc.CreateTask(context.Background(), &domain.CreateTaskRequest{
		Model: "test-model",
		Assets: []domain.AssetRequest{
			{Name: "weights", URL: server.URL + "/weights"},
			{Name: "tokenizer", URL: server.URL + "/tokenizer"},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, task)

	final := waitForStatus(t, svc, task.ID, domain.TaskStatusCompleted)

	require.Len(t, final.Assets, 2)
	for _, a := range final.Assets {
		assert.Equal(t, domain.AssetStatusCompleted, a.Status)
		assert.NotEmpty(t, a.FilePath)
		assert.Positive(t, a.BytesRead)
		assert.Equal(t, a.BytesRead, a.TotalBytes)
	}

	require.NoError(t, svc.Shutdown(context.Background()))
}

func TestTaskService_FailedAssetFailsTask(t *testing.T) {
	server := newAssetServer(t, map[string]string{
		"/weights": strings.Repeat("w", 100),
	})

	cfg := testConfig(t)
	svc := newTestService(t, cfg)

	task, err := svc.CreateTask(context.Background(), &domain.CreateTaskRequest{
		Model: "test-model",
		Assets: []domain.AssetRequest{
			{Name: "weights", URL: server.URL + "/weights"},
			{Name: "missing", URL: server.URL + "/missing"},
		},
	})
	require.NoError(t, err)

	final := waitForStatus(t, svc, task.ID, domain.TaskStatusFailed)

	var failed, completed int
	for _, a := range final.Assets {
		switch a.Status {
		case domain.AssetStatusCompleted:
			completed++
		case domain.AssetStatusFailed:
			failed++
			assert.NotEmpty(t, a.Error)
		}
	}
	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, failed)

	require.NoError(t, svc.Shutdown(context.Background()))
}

func TestTaskService_Observe_StreamsMonotonicProgress(t *testing.T) {
	server := newAssetServer(t, map[string]string{
		"/weights": strings.Repeat("w", 200_000),
	})

	cfg := testConfig(t)
	svc := newTestService(t, cfg)

	task, err := svc.CreateTask(context.Background(), &domain.CreateTaskRequest{
		Model:  "test-model",
		Assets: []domain.AssetRequest{{Name: "weights", URL: server.URL + "/weights"}},
	})
	require.NoError(t, err)

	recorder := &progressRecorder{}
	require.NoError(t, svc.Observe(context.Background(), task.ID, recorder))

	waitForStatus(t, svc, task.ID, domain.TaskStatusCompleted)

	require.Eventually(t, func() bool {
		updates := recorder.Updates()
		return len(updates) > 0 && updates[len(updates)-1][0] == int64(progress.DefaultMax)
	}, 5*time.Second, 20*time.Millisecond)

	updates := recorder.Updates()
	assert.Equal(t, [2]int64{0, progress.DefaultMax}, updates[0], "first update is always zero")
	for i := 1; i < len(updates); i++ {
		assert.GreaterOrEqual(t, updates[i][0], updates[i-1][0], "progress must never go backwards")
		assert.Equal(t, int64(progress.DefaultMax), updates[i][1])
	}

	require.NoError(t, svc.Shutdown(context.Background()))
}

func TestTaskService_Observe_FinishedTask(t *testing.T) {
	server := newAssetServer(t, map[string]string{
		"/weights": "data",
	})

	cfg := testConfig(t)
	svc := newTestService(t, cfg)

	task, err := svc.CreateTask(context.Background(), &domain.CreateTaskRequest{
		Model:  "test-model",
		Assets: []domain.AssetRequest{{Name: "weights", URL: server.URL + "/weights"}},
	})
	require.NoError(t, err)
	waitForStatus(t, svc, task.ID, domain.TaskStatusCompleted)

	// Observing after the download finished still delivers zero and 100%.
	recorder := &progressRecorder{}
	require.NoError(t, svc.Observe(context.Background(), task.ID, recorder))

	assert.Equal(t, [][2]int64{
		{0, progress.DefaultMax},
		{progress.DefaultMax, progress.DefaultMax},
	}, recorder.Updates())

	require.NoError(t, svc.Shutdown(context.Background()))
}

func TestTaskService_CreateTask_RejectsTooManyAssets(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxAssetsPerTask = 1
	svc := newTestService(t, cfg)

	_, err := svc.CreateTask(context.Background(), &domain.CreateTaskRequest{
		Model: "test-model",
		Assets: []domain.AssetRequest{
			{Name: "weights", URL: "http://example.com/weights"},
			{Name: "tokenizer", URL: "http://example.com/tokenizer"},
		},
	})
	assert.ErrorIs(t, err, errpkg.ErrTooManyAssets)
}

func TestTaskService_Observe_DetachesComponentsOnDisconnect(t *testing.T) {
	server := newAssetServer(t, map[string]string{
		"/weights": strings.Repeat("w", 200_000),
	})

	cfg := testConfig(t)

	repo, err := repository.NewBboltTaskRepo(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	logger := newTestLogger()
	files := storage.NewFileStorage(cfg.DownloadDir)
	wrk := worker.NewDownloadWorker(files, cfg.DownloadTimeout, logger)
	pm := progress.NewManager(progress.Options{})
	svc := NewTaskService(repo, files, wrk, pm, cfg, logger)

	task, err := svc.CreateTask(context.Background(), &domain.CreateTaskRequest{
		Model:  "test-model",
		Assets: []domain.AssetRequest{{Name: "weights", URL: server.URL + "/weights"}},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	recorder := &progressRecorder{}
	require.NoError(t, svc.Observe(ctx, task.ID, recorder))
	require.Equal(t, 1, pm.NumReporters())

	cancel()
	require.Eventually(t, func() bool { return pm.NumReporters() == 0 },
		5*time.Second, 5*time.Millisecond)

	// Teardown is complete; whatever the recorder saw so far is final.
	seen := recorder.Updates()

	waitForStatus(t, svc, task.ID, domain.TaskStatusCompleted)
	assert.Equal(t, seen, recorder.Updates(), "no updates after disconnect")

	require.NoError(t, svc.Shutdown(context.Background()))
}

func TestTaskService_Observe_FailedTask(t *testing.T) {
	server := newAssetServer(t, map[string]string{})

	cfg := testConfig(t)
	svc := newTestService(t, cfg)

	task, err := svc.CreateTask(context.Background(), &domain.CreateTaskRequest{
		Model:  "test-model",
		Assets: []domain.AssetRequest{{Name: "missing", URL: server.URL + "/missing"}},
	})
	require.NoError(t, err)
	waitForStatus(t, svc, task.ID, domain.TaskStatusFailed)

	err = svc.Observe(context.Background(), task.ID, &progressRecorder{})
	assert.ErrorIs(t, err, errpkg.ErrTaskNotActive)

	require.NoError(t, svc.Shutdown(context.Background()))
}

func TestTaskService_Observe_UnknownTask(t *testing.T) {
	svc := newTestService(t, testConfig(t))

	err := svc.Observe(context.Background(), uuid.New(), &progressRecorder{})
	assert.ErrorIs(t, err, errpkg.ErrTaskNotFound)
}

func TestTaskService_RecoverPendingTasks(t *testing.T) {
	server := newAssetServer(t, map[string]string{
		"/weights": strings.Repeat("w", 100),
	})

	cfg := testConfig(t)

	repo, err := repository.NewBboltTaskRepo(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	// A task left behind by a previous run, mid-download.
	task := &domain.Task{
		ID:     uuid.New(),
		Model:  "test-model",
		Status: domain.TaskStatusInProgress,
		Assets: []domain.Asset{
			{Name: "weights", URL: server.URL + "/weights", Status: domain.AssetStatusInProgress},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.CreateTask(context.Background(), task))

	logger := newTestLogger()
	files := storage.NewFileStorage(cfg.DownloadDir)
	wrk := worker.NewDownloadWorker(files, cfg.DownloadTimeout, logger)
	pm := progress.NewManager(progress.Options{})
	svc := NewTaskService(repo, files, wrk, pm, cfg, logger)

	require.NoError(t, svc.RecoverPendingTasks(context.Background()))

	final := waitForStatus(t, svc, task.ID, domain.TaskStatusCompleted)
	assert.Equal(t, domain.AssetStatusCompleted, final.Assets[0].Status)

	require.NoError(t, svc.Shutdown(context.Background()))
}
