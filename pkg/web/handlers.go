// Package web provides HTTP handlers and REST API endpoints for task management.
package web

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/sniper/pkg/diagnosis"
	"github.com/dukex/sniper/pkg/eventbus"
	"github.com/dukex/sniper/pkg/executor"
	"github.com/dukex/sniper/pkg/models"
	"github.com/dukex/sniper/pkg/persistence"
	"github.com/dukex/sniper/pkg/registry"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

type APIHandlers struct {
	taskService *executor.Service
	repo        persistence.TaskRepository
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	validator   *validator.Validate
}

func NewAPIHandlers(
	taskService *executor.Service,
	repo persistence.TaskRepository,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		taskService: taskService,
		repo:        repo,
		registry:    registry,
		eventBus:    eventBus,
		validator:   validator,
	}
}

func (h *APIHandlers) SubmitTask(c fiber.Ctx) error {
	var req SubmitTaskRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	// Config validation fails fast at the edge; everything past this point
	// is an engine error, not a caller error.
	if err := h.registry.ValidateConfig(req.TaskType, req.Config); err != nil {
		return badRequest(c, err.Error())
	}

	task, err := h.taskService.Submit(c.Context(), req.TaskType, req.SourceID, req.Config, req.Metadata)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(SubmitTaskResponse{
		TaskID: task.ID,
		Status: task.Status,
	})
}

func (h *APIHandlers) GetTasks(c fiber.Ctx) error {
	opts, err := h.parseListTasksOptions(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	summaries, err := h.repo.List(c.Context(), *opts)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"tasks": summaries,
		"count": len(summaries),
	})
}

func (h *APIHandlers) parseListTasksOptions(c fiber.Ctx) (*persistence.ListTasksOptions, error) {
	opts := &persistence.ListTasksOptions{
		SourceID: c.Query("source_id"),
		TaskType: c.Query("task_type"),
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.TaskStatus(statusStr)
		opts.Status = &status
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		opts.Limit = limit
	}

	return opts, nil
}

func (h *APIHandlers) GetTask(c fiber.Ctx) error {
	task, err := h.loadTask(c)
	if err != nil {
		return err
	}

	if task == nil {
		return nil
	}

	return c.JSON(task)
}

func (h *APIHandlers) GetTaskStatus(c fiber.Ctx) error {
	task, err := h.loadTask(c)
	if err != nil {
		return err
	}

	if task == nil {
		return nil
	}

	return c.JSON(statusOf(task))
}

// GetTaskLogs returns step log entries from a client-supplied offset onward.
// NextOffset equals the total entries recorded so far, so a poller passes it
// back verbatim on the next request.
func (h *APIHandlers) GetTaskLogs(c fiber.Ctx) error {
	task, err := h.loadTask(c)
	if err != nil {
		return err
	}

	if task == nil {
		return nil
	}

	offset := 0

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return badRequest(c, "offset must be a non-negative integer")
		}
	}

	logs := []models.StepLogEntry{}
	if offset < len(task.Logs) {
		logs = task.Logs[offset:]
	}

	return c.JSON(LogsResponse{
		TaskID:     task.ID,
		Offset:     offset,
		NextOffset: len(task.Logs),
		Logs:       logs,
		Status:     task.Status,
	})
}

func (h *APIHandlers) GetTaskDiagnosis(c fiber.Ctx) error {
	task, err := h.loadTask(c)
	if err != nil {
		return err
	}

	if task == nil {
		return nil
	}

	return c.JSON(diagnosis.Diagnose(task))
}

func (h *APIHandlers) CancelTask(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Task ID is required")
	}

	if err := h.taskService.Cancel(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"task_id":   id,
		"cancelled": true,
	})
}

// RetryTask creates a fresh task record from a failed or cancelled one,
// re-running the pipeline from the first step with the original config.
func (h *APIHandlers) RetryTask(c fiber.Ctx) error {
	task, err := h.loadTask(c)
	if err != nil {
		return err
	}

	if task == nil {
		return nil
	}

	if task.Status != models.TaskStatusFailed && task.Status != models.TaskStatusCancelled {
		return conflict(c, fmt.Sprintf("task %s is %s, only failed or cancelled tasks can be retried", task.ID, task.Status))
	}

	retry := diagnosis.SeedRetry(task, uuid.NewString())
	if err := h.taskService.Resubmit(c.Context(), retry); err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(TaskActionResponse{
		TaskID:     retry.ID,
		SourceTask: task.ID,
		Status:     retry.Status,
	})
}

// ResumeTask creates a new task record that inherits the prior record's
// shared context and continues from the requested pipeline position. Without
// an explicit "from" parameter the step after the last completed one is used.
func (h *APIHandlers) ResumeTask(c fiber.Ctx) error {
	task, err := h.loadTask(c)
	if err != nil {
		return err
	}

	if task == nil {
		return nil
	}

	if task.Status != models.TaskStatusFailed && task.Status != models.TaskStatusCancelled {
		return conflict(c, fmt.Sprintf("task %s is %s, only failed or cancelled tasks can be resumed", task.ID, task.Status))
	}

	view := diagnosis.Diagnose(task)
	resumePoint := view.SuggestedResumePoint

	if fromStr := c.Query("from"); fromStr != "" {
		from, err := strconv.Atoi(fromStr)
		if err != nil || from < 1 {
			return badRequest(c, "from must be a positive step position")
		}

		resumePoint = from
	}

	pipeline, err := h.registry.Get(task.TaskType)
	if err != nil {
		return handleServiceError(c, err)
	}

	if resumePoint > pipeline.TotalSteps() {
		return badRequest(c, fmt.Sprintf("resume point %d exceeds pipeline length %d", resumePoint, pipeline.TotalSteps()))
	}

	resume := diagnosis.SeedResume(task, uuid.NewString(), resumePoint)
	if err := h.taskService.Resubmit(c.Context(), resume); err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(TaskActionResponse{
		TaskID:     resume.ID,
		SourceTask: task.ID,
		Status:     resume.Status,
	})
}

// GetAgents lists the registered pipelines as a catalogue of available agents.
func (h *APIHandlers) GetAgents(c fiber.Ctx) error {
	agents := h.registry.List()

	return c.JSON(fiber.Map{
		"agents": agents,
		"count":  len(agents),
	})
}

// GetTimeSavings aggregates the estimated manual minutes saved by completed
// tasks, using the per-pipeline estimate from the catalogue.
func (h *APIHandlers) GetTimeSavings(c fiber.Ctx) error {
	status := models.TaskStatusCompleted

	tasks, err := h.repo.List(c.Context(), persistence.ListTasksOptions{
		Status:   &status,
		SourceID: c.Query("source_id"),
		Limit:    100,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	byType := make(map[string]int)
	total := 0

	for _, task := range tasks {
		pipeline, err := h.registry.Get(task.TaskType)
		if err != nil {
			continue // pipeline no longer registered, nothing to attribute
		}

		byType[task.TaskType] += pipeline.TimeSavings
		total += pipeline.TimeSavings
	}

	return c.JSON(TimeSavingsResponse{
		TotalMinutes:   total,
		CompletedTasks: len(tasks),
		ByTaskType:     byType,
		GeneratedAt:    time.Now().UTC(),
	})
}

// StreamTaskEvents serves the task's event stream over SSE. The stream opens
// with a status frame reflecting the stored record, then relays live events
// until a terminal one arrives. Already-terminal tasks get the status frame
// and an immediate close.
func (h *APIHandlers) StreamTaskEvents(c fiber.Ctx) error {
	task, err := h.loadTask(c)
	if err != nil {
		return err
	}

	if task == nil {
		return nil
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	if task.IsTerminal() {
		c.RequestCtx().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			writeEventFrame(w, "status", statusOf(task))
		}))

		return nil
	}

	// The request context ends when the handler returns, before the stream
	// writer runs, so the subscription gets its own lifetime.
	streamCtx, cancel := context.WithCancel(context.Background())

	stream, err := h.eventBus.SubscribeTask(streamCtx, task.ID)
	if err != nil {
		cancel()

		return internalError(c, err)
	}

	c.RequestCtx().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()

		writeEventFrame(w, "status", statusOf(task))

		for event := range stream {
			writeEventFrame(w, string(event.GetType()), event)

			if err := w.Flush(); err != nil {
				return // client went away
			}
		}
	}))

	return nil
}

func writeEventFrame(w *bufio.Writer, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
	_ = w.Flush()
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	_, err := h.repo.List(c.Context(), persistence.ListTasksOptions{Limit: 1})

	status := "healthy"
	message := "Sniper API is healthy"
	httpStatus := http.StatusOK

	if err != nil {
		status = "unhealthy"
		message = "Sniper API is unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}

// loadTask fetches the task for the :id path parameter. It returns (nil, nil)
// after writing the error response itself, so callers return immediately when
// task is nil.
func (h *APIHandlers) loadTask(c fiber.Ctx) (*models.Task, error) {
	id := c.Params("id")
	if id == "" {
		return nil, badRequest(c, "Task ID is required")
	}

	task, err := h.repo.GetByID(c.Context(), id)
	if err != nil {
		if persistence.IsTaskNotFound(err) {
			return nil, notFound(c, "Task not found")
		}

		return nil, internalError(c, err)
	}

	return task, nil
}
