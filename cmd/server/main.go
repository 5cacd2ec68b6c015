package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	h "github.com/veranemoloko/model-downloader/internal/api/http"
	cfgpkg "github.com/veranemoloko/model-downloader/internal/config"
	"github.com/veranemoloko/model-downloader/internal/progress"
	"github.com/veranemoloko/model-downloader/internal/repository"
	"github.com/veranemoloko/model-downloader/internal/service"
	"github.com/veranemoloko/model-downloader/internal/storage"
	"github.com/veranemoloko/model-downloader/internal/worker"
)

func main() {

	cfg, err := cfgpkg.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	cfgpkg.SetupLogger(cfg)
	slog.Info("configuration loaded successfully")

	repo, err := repository.NewBboltTaskRepo(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open task database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	logger := slog.Default()
	files := storage.NewFileStorage(cfg.DownloadDir)
	downloadWorker := worker.NewDownloadWorker(files, cfg.DownloadTimeout, logger)
	progressManager := progress.NewManager(progress.Options{
		Max:         cfg.ProgressMax,
		MinInterval: cfg.ProgressMinInterval,
	})

	taskService := service.NewTaskService(repo, files, downloadWorker, progressManager, cfg, logger)

	if err := taskService.RecoverPendingTasks(context.Background()); err != nil {
		slog.Error("failed to recover pending tasks", "error", err)
	}

	router := h.NewRouter(taskService, logger)
	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:     router,
		ReadTimeout: cfg.HTTPTimeout,
		IdleTimeout: cfg.HTTPTimeout,
		// No WriteTimeout: progress streams stay open for the whole download.
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}

	if err := taskService.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed waiting for in-flight downloads", "error", err)
	} else {
		slog.Info("server stopped gracefully")
	}
}
