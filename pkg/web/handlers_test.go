package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
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
	"github.com/dukex/sniper/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	app  *fiber.App
	repo *file.TaskRepository
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	repo := file.NewTaskRepository(t.TempDir())
	logger := testutil.NewTestLogger()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	reg := registry.NewRegistry(logger)
	require.NoError(t, reg.Register(registry.Pipeline{
		TaskType:    "trend_analysis",
		DisplayName: "Trend Analysis",
		Description: "Keyword trend analysis",
		Platform:    "xiaohongshu",
		TimeSavings: 85,
		ConfigSchema: `{
			"type": "object",
			"properties": {"keywords": {"type": "array", "items": {"type": "string"}, "minItems": 1}},
			"required": ["keywords"]
		}`,
		Steps: []protocol.StepUnit{
			&testutil.StaticStep{StepName: "keywords", Output: map[string]any{"expanded": []string{"a"}}},
			&testutil.StaticStep{StepName: "analyze", Output: map[string]any{"final_result": "ok"}},
		},
	}))

	exec := executor.NewExecutor(repo, reg, bus, "test-worker", logger)
	service := executor.NewService(repo, reg, bus, exec, logger)

	handlers := web.NewAPIHandlers(service, repo, reg, bus, validator.New(validator.WithRequiredStructEnabled()))
	app := fiber.New()

	tasks := app.Group("/tasks")
	tasks.Post("/", handlers.SubmitTask)
	tasks.Get("/", handlers.GetTasks)
	tasks.Get("/:id", handlers.GetTask)
	tasks.Get("/:id/status", handlers.GetTaskStatus)
	tasks.Get("/:id/logs", handlers.GetTaskLogs)
	tasks.Get("/:id/diagnosis", handlers.GetTaskDiagnosis)
	tasks.Post("/:id/cancel", handlers.CancelTask)
	tasks.Post("/:id/retry", handlers.RetryTask)
	tasks.Post("/:id/resume", handlers.ResumeTask)
	app.Get("/agents", handlers.GetAgents)
	app.Get("/time-savings", handlers.GetTimeSavings)
	app.Get("/health", handlers.HealthCheck)

	return &testEnv{app: app, repo: repo}
}

func TestAPIHandlers_SubmitTask(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
	}{
		{
			name: "successful submission",
			requestBody: web.SubmitTaskRequest{
				SourceID: "user-1",
				TaskType: "trend_analysis",
				Config:   map[string]any{"keywords": []string{"coffee"}},
			},
			expectedStatus: http.StatusAccepted,
		},
		{
			name: "missing source id",
			requestBody: web.SubmitTaskRequest{
				TaskType: "trend_analysis",
				Config:   map[string]any{"keywords": []string{"coffee"}},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "unknown task type",
			requestBody: web.SubmitTaskRequest{
				SourceID: "user-1",
				TaskType: "no_such_type",
				Config:   map[string]any{},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "config fails schema",
			requestBody: web.SubmitTaskRequest{
				SourceID: "user-1",
				TaskType: "trend_analysis",
				Config:   map[string]any{"keywords": []string{}},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid JSON",
			requestBody:    "not-json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := setupTestApp(t)

			var (
				body []byte
				err  error
			)

			if str, ok := tt.requestBody.(string); ok {
				body = []byte(str)
			} else {
				body, err = json.Marshal(tt.requestBody)
				require.NoError(t, err)
			}

			req := httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := env.app.Test(req)
			require.NoError(t, err)

			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus == http.StatusAccepted {
				var submitted web.SubmitTaskResponse

				require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))
				assert.NotEmpty(t, submitted.TaskID)
				assert.Equal(t, models.TaskStatusPending, submitted.Status)

				stored, err := env.repo.GetByID(context.Background(), submitted.TaskID)
				require.NoError(t, err)
				assert.Equal(t, "user-1", stored.SourceID)
			}
		})
	}
}

func TestAPIHandlers_GetTask(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	task := models.NewTask("task-1", "user-1", "trend_analysis", map[string]any{"keywords": []string{"x"}})
	require.NoError(t, env.repo.Create(context.Background(), task))

	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/tasks/task-1", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fetched models.Task

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fetched))
	assert.Equal(t, "task-1", fetched.ID)
	assert.Equal(t, models.TaskStatusPending, fetched.Status)
}

func TestAPIHandlers_GetTask_NotFound(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/tasks/missing", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_SubmitTask_CarriesMetadata(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	body, err := json.Marshal(web.SubmitTaskRequest{
		SourceID: "user-1",
		TaskType: "trend_analysis",
		Config:   map[string]any{"keywords": []string{"coffee"}},
		Metadata: map[string]any{"origin": "scheduler", "priority": "low"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := env.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var submitted web.SubmitTaskResponse

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))

	stored, err := env.repo.GetByID(context.Background(), submitted.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "scheduler", stored.Metadata["origin"])
	assert.Equal(t, "low", stored.Metadata["priority"])
}

func TestAPIHandlers_GetTaskStatus(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	task := models.NewTask("task-status", "user-1", "trend_analysis", nil)
	require.NoError(t, task.Start())
	task.SharedContext["step_1_keywords"] = []string{"coffee"}
	task.AppendLog(models.StepLogEntry{Step: 1, Name: "keywords", Status: models.StepStatusCompleted})
	task.AppendLog(models.StepLogEntry{Step: 2, Name: "search", Status: models.StepStatusFailed, Error: "search timeout"})
	require.NoError(t, task.Fail(2, "search timeout"))
	require.NoError(t, env.repo.Create(context.Background(), task))

	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/tasks/task-status/status", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fields map[string]any

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fields))

	// The polling view carries presence flags and counters, not payloads.
	for _, key := range []string{"status", "progress", "has_result", "has_error", "log_count"} {
		assert.Contains(t, fields, key)
	}

	assert.NotContains(t, fields, "error")
	assert.NotContains(t, fields, "result")

	assert.Equal(t, string(models.TaskStatusFailed), fields["status"])
	assert.Equal(t, false, fields["has_result"])
	assert.Equal(t, true, fields["has_error"])
	assert.Equal(t, float64(2), fields["log_count"])
	assert.Equal(t, "search", fields["current_step"])
}

func TestAPIHandlers_GetTaskLogs_Offset(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	task := models.NewTask("task-logs", "user-1", "trend_analysis", nil)
	require.NoError(t, task.Start())
	task.AppendLog(models.StepLogEntry{Step: 1, Name: "keywords", Status: models.StepStatusCompleted})
	task.AppendLog(models.StepLogEntry{Step: 2, Name: "analyze", Status: models.StepStatusCompleted})
	require.NoError(t, env.repo.Create(context.Background(), task))

	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/tasks/task-logs/logs?offset=1", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var logs web.LogsResponse

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&logs))
	assert.Equal(t, 1, logs.Offset)
	assert.Equal(t, 2, logs.NextOffset)
	require.Len(t, logs.Logs, 1)
	assert.Equal(t, "analyze", logs.Logs[0].Name)
}

func TestAPIHandlers_GetTaskLogs_OffsetPastEnd(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	task := models.NewTask("task-empty", "user-1", "trend_analysis", nil)
	require.NoError(t, env.repo.Create(context.Background(), task))

	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/tasks/task-empty/logs?offset=5", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var logs web.LogsResponse

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&logs))
	assert.Empty(t, logs.Logs)
	assert.Equal(t, 0, logs.NextOffset)
}

func TestAPIHandlers_CancelTask(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	task := models.NewTask("task-cancel", "user-1", "trend_analysis", nil)
	require.NoError(t, env.repo.Create(context.Background(), task))

	resp, err := env.app.Test(httptest.NewRequest(http.MethodPost, "/tasks/task-cancel/cancel", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	stored, err := env.repo.GetByID(context.Background(), "task-cancel")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCancelled, stored.Status)
}

func TestAPIHandlers_CancelTask_AlreadyTerminal(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	task := models.NewTask("task-done", "user-1", "trend_analysis", nil)
	require.NoError(t, task.Start())
	require.NoError(t, task.Complete(map[string]any{"final_result": "ok"}))
	require.NoError(t, env.repo.Create(context.Background(), task))

	resp, err := env.app.Test(httptest.NewRequest(http.MethodPost, "/tasks/task-done/cancel", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPIHandlers_RetryTask(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	task := newFailedTask(t, "task-failed", 2, "search timeout")
	require.NoError(t, env.repo.Create(context.Background(), task))

	resp, err := env.app.Test(httptest.NewRequest(http.MethodPost, "/tasks/task-failed/retry", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var action web.TaskActionResponse

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&action))
	assert.Equal(t, "task-failed", action.SourceTask)
	assert.NotEqual(t, "task-failed", action.TaskID)

	retried, err := env.repo.GetByID(context.Background(), action.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, retried.Status)
	assert.Equal(t, "task-failed", retried.Metadata["retried_from_task"])
	assert.Empty(t, retried.SharedContext)
}

func TestAPIHandlers_RetryTask_RejectsCompleted(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	task := models.NewTask("task-ok", "user-1", "trend_analysis", nil)
	require.NoError(t, task.Start())
	require.NoError(t, task.Complete(map[string]any{"final_result": "ok"}))
	require.NoError(t, env.repo.Create(context.Background(), task))

	resp, err := env.app.Test(httptest.NewRequest(http.MethodPost, "/tasks/task-ok/retry", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPIHandlers_ResumeTask(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	task := newFailedTask(t, "task-resume", 2, "search timeout")
	task.SharedContext["step_1_keywords"] = map[string]any{"expanded": []any{"a"}}
	require.NoError(t, env.repo.Create(context.Background(), task))

	resp, err := env.app.Test(httptest.NewRequest(http.MethodPost, "/tasks/task-resume/resume", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var action web.TaskActionResponse

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&action))

	resumed, err := env.repo.GetByID(context.Background(), action.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "task-resume", resumed.Metadata["resumed_from_task"])
	assert.Contains(t, resumed.SharedContext, "step_1_keywords")
}

func TestAPIHandlers_ResumeTask_RejectsPointPastPipeline(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	task := newFailedTask(t, "task-resume-far", 1, "boom")
	require.NoError(t, env.repo.Create(context.Background(), task))

	resp, err := env.app.Test(httptest.NewRequest(http.MethodPost, "/tasks/task-resume-far/resume?from=9", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_GetAgents(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/agents", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Agents []registry.Info `json:"agents"`
		Count  int             `json:"count"`
	}

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, 1, payload.Count)
	assert.Equal(t, "trend_analysis", payload.Agents[0].TaskType)
	assert.Equal(t, 85, payload.Agents[0].TimeSavings)
	assert.Equal(t, []string{"keywords", "analyze"}, payload.Agents[0].StepNames)
}

func TestAPIHandlers_GetTimeSavings(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	for i := range 3 {
		task := models.NewTask(fmt.Sprintf("task-ts-%d", i), "user-1", "trend_analysis", nil)
		require.NoError(t, task.Start())
		require.NoError(t, task.Complete(map[string]any{"final_result": "ok"}))
		require.NoError(t, env.repo.Create(context.Background(), task))
	}

	// Failed tasks contribute nothing to the aggregate.
	failed := newFailedTask(t, "task-ts-failed", 1, "boom")
	require.NoError(t, env.repo.Create(context.Background(), failed))

	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/time-savings", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var savings web.TimeSavingsResponse

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&savings))
	assert.Equal(t, 3, savings.CompletedTasks)
	assert.Equal(t, 255, savings.TotalMinutes)
	assert.Equal(t, 255, savings.ByTaskType["trend_analysis"])
}

func TestAPIHandlers_GetTaskDiagnosis(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	task := newFailedTask(t, "task-diag", 2, "search timeout")
	task.SharedContext["step_1_keywords"] = map[string]any{"expanded": []any{"a"}}
	task.AppendLog(models.StepLogEntry{Step: 1, Name: "keywords", Status: models.StepStatusCompleted})
	require.NoError(t, env.repo.Create(context.Background(), task))

	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/tasks/task-diag/diagnosis", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view diagnosis.View

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, models.TaskStatusFailed, view.Status)
	assert.Equal(t, 1, view.LastCompletedStep)
	assert.Equal(t, 2, view.SuggestedResumePoint)
	assert.Contains(t, view.AvailableContextKeys, "step_1_keywords")
}

func TestAPIHandlers_GetTasks_Filtered(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	for i, source := range []string{"user-1", "user-1", "user-2"} {
		task := models.NewTask(fmt.Sprintf("task-list-%d", i), source, "trend_analysis", nil)
		require.NoError(t, env.repo.Create(context.Background(), task))
	}

	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/tasks/?source_id=user-1", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Tasks []models.TaskSummary `json:"tasks"`
		Count int                  `json:"count"`
	}

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, 2, payload.Count)

	for _, summary := range payload.Tasks {
		assert.Equal(t, "user-1", summary.SourceID)
	}
}

func newFailedTask(t *testing.T, id string, failedStep int, message string) *models.Task {
	t.Helper()

	task := models.NewTask(id, "user-1", "trend_analysis", map[string]any{"keywords": []string{"x"}})
	require.NoError(t, task.Start())
	require.NoError(t, task.Fail(failedStep, message))

	return task
}
