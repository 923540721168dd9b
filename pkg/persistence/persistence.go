// Package persistence provides the data storage abstraction layer for tasks.
package persistence

import (
	"context"

	"github.com/dukex/sniper/pkg/models"
)

// ListTasksOptions filters and bounds a task listing.
type ListTasksOptions struct {
	SourceID string
	TaskType string
	Status   *models.TaskStatus
	Limit    int
}

// TaskRepository is the durability checkpoint of the engine. Save is called at
// every step boundary; if it fails the executor does not advance the in-memory
// record, leaving the task in its last durably saved state.
type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id string) (*models.Task, error)
	Save(ctx context.Context, task *models.Task) error
	List(ctx context.Context, opts ListTasksOptions) ([]models.TaskSummary, error)
	Delete(ctx context.Context, id string) error
}

// Persistence aggregates the repositories a deployment provides.
type Persistence interface {
	TaskRepository() TaskRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
