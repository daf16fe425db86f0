package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ClipFox/app/repository"
	"github.com/ManuelReschke/ClipFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/ClipFox/internal/pkg/generation"
	"github.com/ManuelReschke/ClipFox/internal/pkg/ledger"
	"github.com/ManuelReschke/ClipFox/internal/pkg/usercontext"
)

// HandleCreateGeneration starts a new generation job for the authenticated
// user. Credits are debited up front; every rejection path leaves the
// balance untouched.
// Security: API key required via router middleware
func HandleCreateGeneration(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)
	if !user.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	var req generation.CreateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	plan := entitlements.ParsePlan(user.Plan)
	job, err := generation.GetOrchestrator().CreateJob(c.Context(), user.UserID, plan, req)
	if err != nil {
		var limitErr *generation.ConcurrentLimitError
		var apiErr *generation.APIError
		switch {
		case errors.Is(err, generation.ErrValidation):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_error", "message": err.Error()})
		case errors.Is(err, ledger.ErrInsufficientCredits):
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": "insufficient_credits", "message": "Not enough credits for this generation"})
		case errors.As(err, &limitErr):
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "concurrent_limit_exceeded",
				"message": "Too many jobs running, wait for one to finish",
				"limit":   limitErr.Limit,
				"current": limitErr.Current,
			})
		case errors.As(err, &apiErr):
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "external_api_error", "message": "The generation service rejected the request"})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not create generation job"})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(jobResponse(job))
}

// HandleGetGeneration returns a single generation job owned by the caller.
// Security: API key required via router middleware
func HandleGetGeneration(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)
	if !user.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	uuid := c.Params("uuid")
	if uuid == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "uuid missing"})
	}

	jobRepo := repository.GetGlobalFactory().GetGenerationJobRepository()
	job, err := jobRepo.GetByUUID(uuid)
	if err != nil || job == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "job not found"})
	}
	// Do not leak existence of other users' jobs.
	if job.UserID != user.UserID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "job not found"})
	}

	resp := jobResponse(job)
	// The cache mirror can be ahead of this replica's DB view while the
	// poller is moving the job; prefer the newer in-flight status.
	if !job.IsTerminal() {
		if cached, cacheErr := generation.GetJobStatus(uuid); cacheErr == nil && cached != "" {
			resp["status"] = cached
		}
	}
	return c.JSON(resp)
}

// HandleListGenerations returns the caller's jobs, newest first.
// Security: API key required via router middleware
func HandleListGenerations(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)
	if !user.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	offset, limit := parsePagination(c)
	jobRepo := repository.GetGlobalFactory().GetGenerationJobRepository()
	jobs, err := jobRepo.GetByUserID(user.UserID, offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not list jobs"})
	}

	items := make([]fiber.Map, 0, len(jobs))
	for i := range jobs {
		items = append(items, jobResponse(&jobs[i]))
	}
	return c.JSON(fiber.Map{
		"jobs":   items,
		"offset": offset,
		"limit":  limit,
	})
}
