package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/ManuelReschke/ClipFox/app/controllers"
)

// Pong is the response of the ping endpoint.
type Pong struct {
	Ping string `json:"ping"`
}

// APIServer implements the v1 server surface
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// PostGeneration starts a new generation job.
// Security is enforced via API key middleware attached in the router.
func (s *APIServer) PostGeneration(c *fiber.Ctx) error {
	return controllers.HandleCreateGeneration(c)
}

// GetGeneration returns a single generation job by UUID (API key protected).
func (s *APIServer) GetGeneration(c *fiber.Ctx) error {
	return controllers.HandleGetGeneration(c)
}

// GetGenerations lists the caller's generation jobs.
func (s *APIServer) GetGenerations(c *fiber.Ctx) error {
	return controllers.HandleListGenerations(c)
}

// GetCreditBalance returns the caller's spendable balance.
func (s *APIServer) GetCreditBalance(c *fiber.Ctx) error {
	return controllers.HandleGetCreditBalance(c)
}

// GetCreditHistory lists the caller's ledger entries.
func (s *APIServer) GetCreditHistory(c *fiber.Ctx) error {
	return controllers.HandleGetCreditHistory(c)
}

// PostSubscription activates a subscription for the caller.
func (s *APIServer) PostSubscription(c *fiber.Ctx) error {
	return controllers.HandleActivateSubscription(c)
}

// PutSubscription switches the caller's plan tier.
func (s *APIServer) PutSubscription(c *fiber.Ctx) error {
	return controllers.HandleSwitchPlan(c)
}

// PostInternalPoll runs one poll pass over active jobs.
// Security is enforced via the internal token middleware in the router.
func (s *APIServer) PostInternalPoll(c *fiber.Ctx) error {
	return controllers.HandleTriggerPoll(c)
}

// PostInternalRefills releases due pre-paid credit packages.
func (s *APIServer) PostInternalRefills(c *fiber.Ctx) error {
	return controllers.HandleApplyRefills(c)
}
