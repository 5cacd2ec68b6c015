package domain

import (
	"time"

	"github.com/google/uuid"
)

// AssetRequest describes one asset in a task-creation request.
type AssetRequest struct {
	Name string `json:"name" validate:"required"`
	URL  string `json:"url" validate:"required,url"`
}

// CreateTaskRequest represents the request body for creating a new Task.
type CreateTaskRequest struct {
	Model  string         `json:"model" validate:"required"`
	Assets []AssetRequest `json:"assets" validate:"required,min=1,dive"`
}

// TaskResponse represents the response returned for a Task, including the
// per-asset download state.
type TaskResponse struct {
	ID        uuid.UUID  `json:"task_id"`
	Model     string     `json:"model"`
	Status    TaskStatus `json:"status"`
	Assets    []Asset    `json:"assets"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
