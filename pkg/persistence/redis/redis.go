// Package redis provides redis-backed persistence implementation for tasks.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dukex/sniper/pkg/models"
	"github.com/dukex/sniper/pkg/persistence"
	redis "github.com/redis/go-redis/v9"
)

const (
	taskKeyPrefix = "sniper:task:"
	taskIndexKey  = "sniper:tasks"
)

// Persistence implements the persistence.Persistence interface on a redis
// instance. Each task is stored as a JSON string; a sorted set indexed by
// creation time drives listing.
type Persistence struct {
	client   redis.UniversalClient
	taskRepo *TaskRepository
}

// NewPersistence creates a redis persistence layer from a redis:// URL.
func NewPersistence(url string) (*Persistence, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	return &Persistence{
		client:   client,
		taskRepo: &TaskRepository{client: client},
	}, nil
}

// TaskRepository returns the task repository implementation for redis persistence.
func (rp *Persistence) TaskRepository() persistence.TaskRepository {
	return rp.taskRepo
}

// HealthCheck pings the redis server.
func (rp *Persistence) HealthCheck(ctx context.Context) error {
	return rp.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (rp *Persistence) Close(_ context.Context) error {
	return rp.client.Close()
}

// TaskRepository handles task storage on redis.
type TaskRepository struct {
	client redis.UniversalClient
}

func taskKey(id string) string {
	return taskKeyPrefix + id
}

// Create stores a new task and indexes it by creation time.
func (tr *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return persistence.NewTaskError("Create", task.ID, err)
	}

	created, err := tr.client.SetNX(ctx, taskKey(task.ID), data, 0).Result()
	if err != nil {
		return persistence.NewTaskError("Create", task.ID, fmt.Errorf("%w: %w", persistence.ErrSaveFailed, err))
	}

	if !created {
		return persistence.NewTaskError("Create", task.ID, persistence.ErrTaskAlreadyExists)
	}

	err = tr.client.ZAdd(ctx, taskIndexKey, redis.Z{
		Score:  float64(task.CreatedAt.UnixNano()),
		Member: task.ID,
	}).Err()
	if err != nil {
		return persistence.NewTaskError("Create", task.ID, fmt.Errorf("%w: %w", persistence.ErrSaveFailed, err))
	}

	return nil
}

// GetByID loads a task snapshot by identifier.
func (tr *TaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	data, err := tr.client.Get(ctx, taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, persistence.NewTaskError("GetByID", id, persistence.ErrTaskNotFound)
	}

	if err != nil {
		return nil, persistence.NewTaskError("GetByID", id, err)
	}

	var task models.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, persistence.NewTaskError("GetByID", id, fmt.Errorf("corrupt task record: %w", err))
	}

	return &task, nil
}

// Save overwrites the stored task state.
func (tr *TaskRepository) Save(ctx context.Context, task *models.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return persistence.NewTaskError("Save", task.ID, fmt.Errorf("%w: %w", persistence.ErrSaveFailed, err))
	}

	if err := tr.client.Set(ctx, taskKey(task.ID), data, 0).Err(); err != nil {
		return persistence.NewTaskError("Save", task.ID, fmt.Errorf("%w: %w", persistence.ErrSaveFailed, err))
	}

	return nil
}

// List walks the creation-time index newest first and filters in memory.
func (tr *TaskRepository) List(ctx context.Context, opts persistence.ListTasksOptions) ([]models.TaskSummary, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	ids, err := tr.client.ZRevRange(ctx, taskIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list task index: %w", err)
	}

	summaries := make([]models.TaskSummary, 0, opts.Limit)

	for _, id := range ids {
		if len(summaries) >= opts.Limit {
			break
		}

		task, err := tr.GetByID(ctx, id)
		if err != nil {
			if persistence.IsTaskNotFound(err) {
				continue
			}

			return nil, err
		}

		if opts.SourceID != "" && task.SourceID != opts.SourceID {
			continue
		}

		if opts.TaskType != "" && task.TaskType != opts.TaskType {
			continue
		}

		if opts.Status != nil && task.Status != *opts.Status {
			continue
		}

		summaries = append(summaries, task.Summarize())
	}

	return summaries, nil
}

// Delete removes the task record and its index entry.
func (tr *TaskRepository) Delete(ctx context.Context, id string) error {
	removed, err := tr.client.Del(ctx, taskKey(id)).Result()
	if err != nil {
		return persistence.NewTaskError("Delete", id, err)
	}

	if removed == 0 {
		return persistence.NewTaskError("Delete", id, persistence.ErrTaskNotFound)
	}

	if err := tr.client.ZRem(ctx, taskIndexKey, id).Err(); err != nil {
		return persistence.NewTaskError("Delete", id, err)
	}

	return nil
}
