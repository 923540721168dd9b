package diagnosis_test

import (
	"context"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/sniper/pkg/channels/gochannel"
	"github.com/dukex/sniper/pkg/diagnosis"
	"github.com/dukex/sniper/pkg/eventbus"
	"github.com/dukex/sniper/pkg/executor"
	"github.com/dukex/sniper/pkg/models"
	"github.com/dukex/sniper/pkg/persistence/file"
	"github.com/dukex/sniper/pkg/protocol"
	"github.com/dukex/sniper/pkg/registry"
	"github.com/dukex/sniper/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnose_FailedTask(t *testing.T) {
	task := models.NewTask("task-1", "user-1", "trend_analysis", nil)
	require.NoError(t, task.Start())
	task.SharedContext["step_1_keywords"] = []string{"travel"}
	task.AppendLog(models.StepLogEntry{Step: 1, Name: "keywords", Status: models.StepStatusCompleted})
	task.AppendLog(models.StepLogEntry{Step: 2, Name: "search", Status: models.StepStatusFailed, Error: "search timeout"})
	require.NoError(t, task.Fail(2, "search timeout"))

	view := diagnosis.Diagnose(task)

	assert.Equal(t, models.TaskStatusFailed, view.Status)
	assert.Equal(t, 1, view.LastCompletedStep)
	assert.Equal(t, 2, view.SuggestedResumePoint)
	assert.Equal(t, []string{"step_1_keywords"}, view.AvailableContextKeys)
	require.NotNil(t, view.Error)
	assert.Contains(t, view.NextStepHint, "search timeout")
}

func TestDiagnose_PendingAndCompleted(t *testing.T) {
	task := models.NewTask("task-1", "user-1", "trend_analysis", nil)

	view := diagnosis.Diagnose(task)
	assert.Equal(t, 1, view.SuggestedResumePoint)
	assert.Equal(t, "task is waiting to start", view.NextStepHint)

	require.NoError(t, task.Start())
	require.NoError(t, task.Complete(map[string]any{"ok": true}))

	view = diagnosis.Diagnose(task)
	assert.Equal(t, "task finished, result is available", view.NextStepHint)
}

// A record seeded from a prior task logs its steps from 1, but the view
// reports pipeline positions: failing the first step of a task resumed from
// position 3 must suggest resuming at 3 again, not at 2.
func TestDiagnose_ResumedTaskUsesPipelinePositions(t *testing.T) {
	prior := models.NewTask("task-1", "user-1", "trend_analysis", nil)
	prior.SharedContext["step_1_keywords"] = []string{"travel"}
	prior.SharedContext["step_2_search"] = []string{"note-a"}

	resumed := diagnosis.SeedResume(prior, "task-2", 3)
	require.NoError(t, resumed.Start())
	resumed.AppendLog(models.StepLogEntry{Step: 1, Name: "details", Status: models.StepStatusFailed, Error: "fetch timeout"})
	require.NoError(t, resumed.Fail(1, "fetch timeout"))

	view := diagnosis.Diagnose(resumed)

	assert.Equal(t, 2, view.LastCompletedStep)
	assert.Equal(t, 3, view.SuggestedResumePoint)
}

func TestDiagnose_ResumedTaskAfterProgress(t *testing.T) {
	prior := models.NewTask("task-1", "user-1", "trend_analysis", nil)
	prior.SharedContext["step_1_keywords"] = []string{"travel"}

	resumed := diagnosis.SeedResume(prior, "task-2", 2)
	require.NoError(t, resumed.Start())
	resumed.AppendLog(models.StepLogEntry{Step: 1, Name: "search", Status: models.StepStatusCompleted})
	resumed.AppendLog(models.StepLogEntry{Step: 2, Name: "details", Status: models.StepStatusFailed, Error: "fetch timeout"})
	require.NoError(t, resumed.Fail(2, "fetch timeout"))

	view := diagnosis.Diagnose(resumed)

	assert.Equal(t, 2, view.LastCompletedStep)
	assert.Equal(t, 3, view.SuggestedResumePoint)
}

func TestSeedRetry(t *testing.T) {
	prior := models.NewTask("task-1", "user-1", "trend_analysis", map[string]any{"keywords": []any{"travel"}})
	prior.SharedContext["step_1_keywords"] = []string{"travel"}

	fresh := diagnosis.SeedRetry(prior, "task-2")

	assert.Equal(t, models.TaskStatusPending, fresh.Status)
	assert.Equal(t, prior.Config, fresh.Config)
	assert.Empty(t, fresh.SharedContext)
	assert.Equal(t, "task-1", fresh.Metadata["retried_from_task"])
}

// Resume seeding property: running only steps k..n on a task seeded from a
// failed record yields a context superset-equal to running all steps from
// scratch, for deterministic step units.
func TestSeedResume_RunsRemainingSteps(t *testing.T) {
	logger := testutil.NewTestLogger()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NewSlogLogger(logger))
	require.NoError(t, err)

	repo := file.NewTaskRepository(t.TempDir())
	reg := registry.NewRegistry(logger)
	bus := eventbus.NewWatermillEventBus(pub, sub)
	exec := executor.NewExecutor(repo, reg, bus, "worker-test", logger)

	flaky := &testutil.FailingStep{
		StepName:     "search",
		RequiredKeys: []string{"step_1_keywords"},
		Message:      "search timeout",
	}

	pipeline := registry.Pipeline{
		TaskType: "trend_analysis",
		Steps: []protocol.StepUnit{
			&testutil.StaticStep{
				StepName: "keywords",
				Output:   map[string]any{"keywords": []string{"travel"}},
			},
			flaky,
			&testutil.StaticStep{
				StepName:     "analyze",
				RequiredKeys: []string{"step_2_search"},
				Output:       map[string]any{"final_result": map[string]any{"verdict": "trending"}},
			},
		},
	}
	require.NoError(t, reg.Register(pipeline))

	ctx := context.Background()

	failed := models.NewTask("task-1", "user-1", "trend_analysis", nil)
	require.NoError(t, repo.Create(ctx, failed))
	require.NoError(t, exec.Execute(ctx, "task-1", nil))

	failed, err = repo.GetByID(ctx, "task-1")
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusFailed, failed.Status)

	view := diagnosis.Diagnose(failed)
	require.Equal(t, 2, view.SuggestedResumePoint)

	// Swap the broken unit for a working one and resume from step 2.
	pipeline.Steps[1] = &testutil.StaticStep{
		StepName:     "search",
		RequiredKeys: []string{"step_1_keywords"},
		Output:       map[string]any{"notes": []string{"note-a"}},
	}
	require.NoError(t, reg.Register(pipeline))

	resumed := diagnosis.SeedResume(failed, "task-2", view.SuggestedResumePoint)
	require.NoError(t, repo.Create(ctx, resumed))
	require.NoError(t, exec.Execute(ctx, "task-2", nil))

	resumed, err = repo.GetByID(ctx, "task-2")
	require.NoError(t, err)

	assert.Equal(t, models.TaskStatusCompleted, resumed.Status)
	assert.Equal(t, 100, resumed.Progress)

	// Only the remaining two steps ran, but the context covers all three
	// pipeline positions thanks to the seed.
	assert.Len(t, resumed.Logs, 2)
	assert.Contains(t, resumed.SharedContext, "step_1_keywords")
	assert.Contains(t, resumed.SharedContext, "step_2_search")
	assert.Contains(t, resumed.SharedContext, "step_3_analyze")
	assert.Equal(t, "trending", resumed.Result["verdict"])
}
