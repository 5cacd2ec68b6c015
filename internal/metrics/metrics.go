package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "model_downloader_tasks_created_total",
		Help: "Total number of download tasks created",
	})

	TasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "model_downloader_tasks_completed_total",
		Help: "Total number of download tasks completed",
	})

	TasksFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "model_downloader_tasks_failed_total",
		Help: "Total number of download tasks failed",
	})

	DownloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "model_downloader_downloads_total",
		Help: "Total number of asset download attempts",
	})

	DownloadsSuccess = promauto.NewCounter(prometheus.CounterOpts{
		Name: "model_downloader_downloads_success_total",
		Help: "Total number of successful asset downloads",
	})

	DownloadsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "model_downloader_downloads_failed_total",
		Help: "Total number of failed asset downloads",
	})

	DownloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "model_downloader_download_duration_seconds",
		Help:    "Asset download duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	DownloadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "model_downloader_download_bytes_total",
		Help: "Total bytes downloaded",
	})

	ProgressObservers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "model_downloader_progress_observers",
		Help: "Number of currently connected progress observers",
	})

	ProgressUpdatesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "model_downloader_progress_updates_sent_total",
		Help: "Total number of progress updates sent to observers",
	})
)
