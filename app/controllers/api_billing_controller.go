package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ClipFox/internal/pkg/billing"
	"github.com/ManuelReschke/ClipFox/internal/pkg/database"
	"github.com/ManuelReschke/ClipFox/internal/pkg/usercontext"
)

type subscriptionRequest struct {
	PlanTier     string `json:"plan_tier"`
	BillingCycle string `json:"billing_cycle"`
}

// HandleActivateSubscription activates a subscription for the caller and
// grants the first monthly credit package.
// Security: API key required via router middleware
func HandleActivateSubscription(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)
	if !user.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	var req subscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	svc := billing.NewServiceFromDB(database.GetDB())
	sub, err := svc.ActivateSubscription(c.Context(), user.UserID, req.PlanTier, req.BillingCycle)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidCycle) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_error", "message": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not activate subscription"})
	}
	return c.Status(fiber.StatusCreated).JSON(sub)
}

// HandleSwitchPlan moves the caller's subscription to another tier. On a
// downgrade the unspent credit packages are frozen until the paid period ends.
// Security: API key required via router middleware
func HandleSwitchPlan(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)
	if !user.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	var req subscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	svc := billing.NewServiceFromDB(database.GetDB())
	sub, err := svc.SwitchPlan(c.Context(), user.UserID, req.PlanTier, req.BillingCycle)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrInvalidCycle):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_error", "message": err.Error()})
		case errors.Is(err, billing.ErrNoActiveSubscription):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no_active_subscription", "message": "No subscription to switch"})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not switch plan"})
		}
	}
	return c.JSON(sub)
}

// HandleApplyRefills releases all due pre-paid monthly credit packages.
// Invoked by the scheduler alongside the poll trigger.
// Security: internal token required via router middleware
func HandleApplyRefills(c *fiber.Ctx) error {
	svc := billing.NewServiceFromDB(database.GetDB())
	applied, err := svc.ApplyDueRefills(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Refill pass failed"})
	}
	return c.JSON(fiber.Map{"applied": applied})
}
