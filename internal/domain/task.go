package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a download Task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// AssetStatus represents the current state of a single model asset download.
type AssetStatus string

const (
	AssetStatusPending    AssetStatus = "pending"
	AssetStatusInProgress AssetStatus = "in_progress"
	AssetStatusCompleted  AssetStatus = "completed"
	AssetStatusFailed     AssetStatus = "failed"
)

// Task is one model-download request: a named model plus the set of assets
// (weight files, tokenizers, auxiliary data) that make it up.
type Task struct {
	ID        uuid.UUID  `json:"id"`
	Model     string     `json:"model"`
	Assets    []Asset    `json:"assets"`
	Status    TaskStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Asset is a single downloadable file belonging to a Task.
type Asset struct {
	Name       string      `json:"name"`
	URL        string      `json:"url"`
	Status     AssetStatus `json:"status"`
	BytesRead  int64       `json:"bytes_read"`
	TotalBytes int64       `json:"total_bytes,omitempty"`
	FilePath   string      `json:"file_path,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Done reports whether every asset has reached a terminal status.
func (t *Task) Done() bool {
	for _, a := range t.Assets {
		if a.Status != AssetStatusCompleted && a.Status != AssetStatusFailed {
			return false
		}
	}
	return true
}

// Failed reports whether any asset ended in failure.
func (t *Task) Failed() bool {
	for _, a := range t.Assets {
		if a.Status == AssetStatusFailed {
			return true
		}
	}
	return false
}
