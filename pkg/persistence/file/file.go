// Package file provides file-based persistence implementation for tasks.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/dukex/sniper/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root     string
	taskRepo *TaskRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:     cleanRoot,
		taskRepo: NewTaskRepository(cleanRoot),
	}
}

// TaskRepository returns the task repository implementation for file persistence.
func (fp *Persistence) TaskRepository() persistence.TaskRepository {
	return fp.taskRepo
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}
