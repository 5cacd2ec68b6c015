package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration settings.
type Config struct {
	Environment string `envconfig:"ENV" default:"development"`

	HTTPPort    int           `envconfig:"HTTP_PORT" default:"8080"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"15s"`

	MaxConcurrentDownloads int           `envconfig:"MAX_CONCURRENT_DOWNLOADS" default:"5"`
	MaxAssetsPerTask       int           `envconfig:"MAX_ASSETS_PER_TASK" default:"10"`
	DownloadTimeout        time.Duration `envconfig:"DOWNLOAD_TIMEOUT" default:"30m"`

	DownloadDir string `envconfig:"DOWNLOAD_DIR" default:"./storage"`
	DBPath      string `envconfig:"DB_PATH" default:"./tasks.db"`

	// ProgressMax is the normalization ceiling for progress updates; observers
	// always receive progress in [0, ProgressMax]. ProgressMinInterval is the
	// minimum spacing between two sub-100% updates to one observer.
	ProgressMax         int64         `envconfig:"PROGRESS_MAX" default:"65536"`
	ProgressMinInterval time.Duration `envconfig:"PROGRESS_MIN_INTERVAL" default:"50ms"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

// Validate checks the configuration for invalid or missing values.
// Returns an error describing the first invalid setting found.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	if c.MaxConcurrentDownloads <= 0 {
		return fmt.Errorf("max concurrent downloads must be positive: %d", c.MaxConcurrentDownloads)
	}

	if c.MaxAssetsPerTask <= 0 {
		return fmt.Errorf("max assets per task must be positive: %d", c.MaxAssetsPerTask)
	}

	if c.ProgressMax <= 0 {
		return fmt.Errorf("progress max must be positive: %d", c.ProgressMax)
	}

	if c.ProgressMinInterval < 0 {
		return fmt.Errorf("progress min interval cannot be negative: %s", c.ProgressMinInterval)
	}

	if c.DownloadDir == "" {
		return fmt.Errorf("download directory cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	return nil
}
