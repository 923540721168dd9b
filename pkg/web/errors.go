package web

import (
	"errors"

	"github.com/dukex/sniper/pkg/executor"
	"github.com/dukex/sniper/pkg/persistence"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("task_not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError provides typed error handling for engine errors.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case persistence.IsTaskNotFound(err):
		return notFound(c, "task not found")

	case errors.Is(err, executor.ErrAlreadyTerminal):
		return conflict(c, err.Error())

	case errors.Is(err, persistence.ErrTaskAlreadyExists):
		return conflict(c, err.Error())

	default:
		return internalError(c, err)
	}
}
