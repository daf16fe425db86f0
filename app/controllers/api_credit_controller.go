package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ClipFox/app/models"
	"github.com/ManuelReschke/ClipFox/internal/pkg/database"
	"github.com/ManuelReschke/ClipFox/internal/pkg/ledger"
	"github.com/ManuelReschke/ClipFox/internal/pkg/usercontext"
)

// HandleGetCreditBalance returns the caller's spendable credit balance.
// Security: API key required via router middleware
func HandleGetCreditBalance(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)
	if !user.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	svc := ledger.NewServiceFromDB(database.GetDB())
	balance, err := svc.GetBalance(c.Context(), user.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not read balance"})
	}

	return c.JSON(fiber.Map{
		"balance": balance,
		"plan":    user.Plan,
	})
}

// HandleGetCreditHistory lists the caller's ledger entries, newest first.
// Security: API key required via router middleware
func HandleGetCreditHistory(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)
	if !user.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	offset, limit := parsePagination(c)
	svc := ledger.NewServiceFromDB(database.GetDB())
	rows, err := svc.History(c.Context(), user.UserID, offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not read history"})
	}

	items := make([]fiber.Map, 0, len(rows))
	for i := range rows {
		items = append(items, transactionResponse(&rows[i]))
	}
	return c.JSON(fiber.Map{
		"transactions": items,
		"offset":       offset,
		"limit":        limit,
	})
}

func transactionResponse(tx *models.CreditTransaction) fiber.Map {
	resp := fiber.Map{
		"id":               tx.ID,
		"amount":           tx.Amount,
		"remaining_amount": tx.RemainingAmount,
		"type":             tx.TransactionType,
		"reason":           tx.Reason,
		"created_at":       tx.CreatedAt.Format(time.RFC3339),
	}
	if tx.RelatedEntityID != "" {
		resp["related_entity_id"] = tx.RelatedEntityID
	}
	if tx.ExpiresAt != nil {
		resp["expires_at"] = formatTimePtr(tx.ExpiresAt)
	}
	if tx.IsFrozen {
		resp["is_frozen"] = true
		resp["frozen_until"] = formatTimePtr(tx.FrozenUntil)
	}
	return resp
}
