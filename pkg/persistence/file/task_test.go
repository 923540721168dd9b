package file

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/sniper/pkg/models"
	"github.com/dukex/sniper/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(t.TempDir())

	task := models.NewTask("task-1", "user-1", "trend_analysis", map[string]any{"keywords": []any{"travel"}})
	require.NoError(t, repo.Create(ctx, task))

	loaded, err := repo.GetByID(ctx, "task-1")
	require.NoError(t, err)

	assert.Equal(t, task.ID, loaded.ID)
	assert.Equal(t, task.SourceID, loaded.SourceID)
	assert.Equal(t, models.TaskStatusPending, loaded.Status)
	assert.Equal(t, []any{"travel"}, loaded.Config["keywords"])
}

func TestTaskRepository_Create_Duplicate(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(t.TempDir())

	task := models.NewTask("task-1", "user-1", "trend_analysis", nil)
	require.NoError(t, repo.Create(ctx, task))

	err := repo.Create(ctx, task)
	assert.ErrorIs(t, err, persistence.ErrTaskAlreadyExists)
}

func TestTaskRepository_GetByID_NotFound(t *testing.T) {
	repo := NewTaskRepository(t.TempDir())

	_, err := repo.GetByID(context.Background(), "missing")
	assert.True(t, persistence.IsTaskNotFound(err))
}

func TestTaskRepository_Save_RoundTripsProgress(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(t.TempDir())

	task := models.NewTask("task-1", "user-1", "trend_analysis", nil)
	require.NoError(t, repo.Create(ctx, task))

	require.NoError(t, task.Start())
	task.SharedContext["step_1_keywords"] = []any{"travel", "budget travel"}
	task.AppendLog(models.StepLogEntry{
		Step:       1,
		Name:       "keywords",
		Status:     models.StepStatusCompleted,
		StartedAt:  time.Now().UTC(),
		FinishedAt: time.Now().UTC(),
	})
	task.SetProgress(25)
	require.NoError(t, repo.Save(ctx, task))

	loaded, err := repo.GetByID(ctx, "task-1")
	require.NoError(t, err)

	assert.Equal(t, models.TaskStatusRunning, loaded.Status)
	assert.Equal(t, 25, loaded.Progress)
	assert.Len(t, loaded.Logs, 1)
	assert.Contains(t, loaded.SharedContext, "step_1_keywords")
}

func TestTaskRepository_List_Filters(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(t.TempDir())

	first := models.NewTask("task-1", "user-1", "trend_analysis", nil)
	require.NoError(t, repo.Create(ctx, first))

	second := models.NewTask("task-2", "user-2", "creator_sniper", nil)
	require.NoError(t, second.Start())
	require.NoError(t, second.Complete(map[string]any{"ok": true}))
	require.NoError(t, repo.Create(ctx, second))

	all, err := repo.List(ctx, persistence.ListTasksOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	bySource, err := repo.List(ctx, persistence.ListTasksOptions{SourceID: "user-1"})
	require.NoError(t, err)
	require.Len(t, bySource, 1)
	assert.Equal(t, "task-1", bySource[0].ID)

	completed := models.TaskStatusCompleted
	byStatus, err := repo.List(ctx, persistence.ListTasksOptions{Status: &completed})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "task-2", byStatus[0].ID)
	assert.True(t, byStatus[0].HasResult)

	byType, err := repo.List(ctx, persistence.ListTasksOptions{TaskType: "creator_sniper"})
	require.NoError(t, err)
	require.Len(t, byType, 1)
}

func TestTaskRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(t.TempDir())

	task := models.NewTask("task-1", "user-1", "trend_analysis", nil)
	require.NoError(t, repo.Create(ctx, task))
	require.NoError(t, repo.Delete(ctx, "task-1"))

	_, err := repo.GetByID(ctx, "task-1")
	assert.True(t, persistence.IsTaskNotFound(err))

	err = repo.Delete(ctx, "task-1")
	assert.True(t, persistence.IsTaskNotFound(err))
}

func TestPersistence_HealthCheck(t *testing.T) {
	dir := t.TempDir()
	p := NewPersistence("file://" + dir)

	require.NoError(t, p.HealthCheck(context.Background()))
	require.NoError(t, p.Close(context.Background()))
	assert.NotNil(t, p.TaskRepository())
}
