package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/dukex/sniper/pkg/models"
	"github.com/dukex/sniper/pkg/persistence"
)

const taskFileMode = 0o644

// TaskRepository handles task-related file operations. Each task is one JSON
// file under <root>/tasks.
type TaskRepository struct {
	root string
}

// NewTaskRepository creates a new task repository rooted at the given directory.
func NewTaskRepository(root string) *TaskRepository {
	return &TaskRepository{root: root}
}

func (tr *TaskRepository) tasksDir() string {
	return filepath.Join(tr.root, "tasks")
}

func (tr *TaskRepository) taskPath(id string) string {
	return filepath.Join(tr.tasksDir(), id+".json")
}

// Create persists a new task. It fails when a task with the same ID already exists.
func (tr *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	if err := os.MkdirAll(tr.tasksDir(), 0o755); err != nil {
		return persistence.NewTaskError("Create", task.ID, err)
	}

	if _, err := os.Stat(tr.taskPath(task.ID)); err == nil {
		return persistence.NewTaskError("Create", task.ID, persistence.ErrTaskAlreadyExists)
	}

	return tr.write("Create", task)
}

// GetByID loads a task snapshot by identifier.
func (tr *TaskRepository) GetByID(_ context.Context, id string) (*models.Task, error) {
	data, err := os.ReadFile(tr.taskPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewTaskError("GetByID", id, persistence.ErrTaskNotFound)
		}

		return nil, persistence.NewTaskError("GetByID", id, err)
	}

	var task models.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, persistence.NewTaskError("GetByID", id, fmt.Errorf("corrupt task file: %w", err))
	}

	return &task, nil
}

// Save writes the current task state as the new durability checkpoint.
func (tr *TaskRepository) Save(_ context.Context, task *models.Task) error {
	return tr.write("Save", task)
}

func (tr *TaskRepository) write(op string, task *models.Task) error {
	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return persistence.NewTaskError(op, task.ID, fmt.Errorf("%w: %w", persistence.ErrSaveFailed, err))
	}

	// Write-then-rename keeps readers from observing a half-written record.
	tmp := tr.taskPath(task.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, taskFileMode); err != nil {
		return persistence.NewTaskError(op, task.ID, fmt.Errorf("%w: %w", persistence.ErrSaveFailed, err))
	}

	if err := os.Rename(tmp, tr.taskPath(task.ID)); err != nil {
		return persistence.NewTaskError(op, task.ID, fmt.Errorf("%w: %w", persistence.ErrSaveFailed, err))
	}

	return nil
}

// List returns filtered task summaries, newest first.
func (tr *TaskRepository) List(ctx context.Context, opts persistence.ListTasksOptions) ([]models.TaskSummary, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	root := os.DirFS(tr.tasksDir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list task files: %w", err)
	}

	summaries := make([]models.TaskSummary, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		taskID := file[:len(file)-5] // Remove .json extension

		task, err := tr.GetByID(ctx, taskID)
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

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})

	if len(summaries) > opts.Limit {
		summaries = summaries[:opts.Limit]
	}

	return summaries, nil
}

// Delete removes a task record. Missing tasks report ErrTaskNotFound.
func (tr *TaskRepository) Delete(_ context.Context, id string) error {
	err := os.Remove(tr.taskPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return persistence.NewTaskError("Delete", id, persistence.ErrTaskNotFound)
	}

	if err != nil {
		return persistence.NewTaskError("Delete", id, err)
	}

	return nil
}
