package apiv1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ClipFox/internal/pkg/middleware"
)

// RegisterHandlers wires the v1 routes onto the given router group.
func RegisterHandlers(r fiber.Router, s *APIServer) {
	r.Get("/ping", s.GetPing)

	protected := r.Group("", middleware.APIKeyAuthMiddleware())
	protected.Post("/generations", s.PostGeneration)
	protected.Get("/generations", s.GetGenerations)
	protected.Get("/generations/:uuid", s.GetGeneration)
	protected.Get("/credits/balance", s.GetCreditBalance)
	protected.Get("/credits/history", s.GetCreditHistory)
	protected.Post("/subscriptions", s.PostSubscription)
	protected.Put("/subscriptions", s.PutSubscription)

	internal := r.Group("/internal", middleware.InternalAuthMiddleware())
	internal.Post("/poll", s.PostInternalPoll)
	internal.Post("/refills", s.PostInternalRefills)
}
