package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/veranemoloko/model-downloader/internal/domain"
)

const (
	tasksBucket    = "tasks"
	metadataBucket = "metadata"
	schemaVersion  = 1
)

// BboltTaskRepo persists tasks in a bbolt database, one JSON document per task.
type BboltTaskRepo struct {
	db *bbolt.DB
}

// NewBboltTaskRepo opens (or creates) the database at dbPath and prepares the
// required buckets.
func NewBboltTaskRepo(dbPath string) (*BboltTaskRepo, error) {
	options := &bbolt.Options{
		Timeout: 1 * time.Second,
	}

	db, err := bbolt.Open(dbPath, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &BboltTaskRepo{db: db}

	if err := repo.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("task repository initialized", "db_path", dbPath)
	return repo, nil
}

func (r *BboltTaskRepo) initialize() error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(tasksBucket)); err != nil {
			return fmt.Errorf("failed to create tasks bucket: %w", err)
		}

		meta, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return fmt.Errorf("failed to create metadata bucket: %w", err)
		}

		versionBytes := []byte(fmt.Sprintf("%d", schemaVersion))
		if err := meta.Put([]byte("schema_version"), versionBytes); err != nil {
			return fmt.Errorf("failed to store schema version: %w", err)
		}

		return nil
	})
}

// CreateTask persists a new task.
func (r *BboltTaskRepo) CreateTask(ctx context.Context, task *domain.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.put(task)
}

// UpdateTask overwrites the stored task.
func (r *BboltTaskRepo) UpdateTask(ctx context.Context, task *domain.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.put(task)
}

func (r *BboltTaskRepo) put(task *domain.Task) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(tasksBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", tasksBucket)
		}

		data, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("failed to marshal task: %w", err)
		}

		if err := bucket.Put([]byte(task.ID.String()), data); err != nil {
			return fmt.Errorf("failed to save task: %w", err)
		}

		return nil
	})
}

// GetTask retrieves a task by ID. Returns (nil, nil) when the task is unknown.
func (r *BboltTaskRepo) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var task *domain.Task
	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(tasksBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", tasksBucket)
		}

		data := bucket.Get([]byte(id.String()))
		if data == nil {
			return nil
		}

		var t domain.Task
		if err := json.Unmarshal(data, &t); err != nil {
			return fmt.Errorf("failed to unmarshal task: %w", err)
		}
		task = &t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// GetTasksByStatus returns all tasks currently in the given status.
func (r *BboltTaskRepo) GetTasksByStatus(ctx context.Context, status domain.TaskStatus) ([]*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var tasks []*domain.Task
	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(tasksBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", tasksBucket)
		}

		return bucket.ForEach(func(_, data []byte) error {
			var t domain.Task
			if err := json.Unmarshal(data, &t); err != nil {
				return fmt.Errorf("failed to unmarshal task: %w", err)
			}
			if t.Status == status {
				tasks = append(tasks, &t)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// Close closes the underlying database.
func (r *BboltTaskRepo) Close() error {
	return r.db.Close()
}
