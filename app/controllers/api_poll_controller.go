package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ClipFox/internal/pkg/generation"
)

// HandleTriggerPoll runs one poll pass over all active generation jobs and
// returns what it did. Invoked by the scheduler; also usable by operators.
// Security: internal token required via router middleware
func HandleTriggerPoll(c *fiber.Ctx) error {
	summary, err := generation.GetPoller().PollOnce(c.Context())
	if err != nil {
		if errors.Is(err, generation.ErrPollRunning) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "poll_in_progress", "message": "Another poll pass is running"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Poll pass failed"})
	}
	return c.JSON(summary)
}
