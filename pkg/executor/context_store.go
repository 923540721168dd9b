package executor

import (
	"fmt"

	"github.com/dukex/sniper/pkg/models"
)

// ContextStore merges step outputs into a task's shared context and serves
// reads for later steps. Keys are namespaced per step, so the sequential
// pipeline needs no conflict detection; a later step recomputing the same
// artifact simply overwrites the key (last write wins).
type ContextStore struct {
	task *models.Task
}

// NewContextStore wraps the shared context of one task.
func NewContextStore(task *models.Task) *ContextStore {
	return &ContextStore{task: task}
}

// StepKey is the conventional context key for a step's output.
func StepKey(position int, name string) string {
	return fmt.Sprintf("step_%d_%s", position, name)
}

// Write inserts or overwrites a context key. Writes against a terminal task
// are rejected and never re-open the record.
func (cs *ContextStore) Write(key string, value any) error {
	if cs.task.IsTerminal() {
		return fmt.Errorf("%w: cannot write %q to task %s", ErrTaskFinalized, key, cs.task.ID)
	}

	cs.task.SharedContext[key] = value

	return nil
}

// Read returns the value stored under key.
func (cs *ContextStore) Read(key string) (any, error) {
	value, ok := cs.task.SharedContext[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}

	return value, nil
}

// Subset assembles the declared input of a step. Any absent key aborts with
// ErrMissingContext.
func (cs *ContextStore) Subset(keys []string) (map[string]any, error) {
	subset := make(map[string]any, len(keys))

	for _, key := range keys {
		value, ok := cs.task.SharedContext[key]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingContext, key)
		}

		subset[key] = value
	}

	return subset, nil
}
