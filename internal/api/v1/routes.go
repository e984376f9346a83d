package apiv1

import (
	"github.com/gofiber/fiber/v2"
)

// RegisterHandlers attaches the public v1 routes to a router group.
func RegisterHandlers(router fiber.Router, si *APIServer) {
	router.Get("/ping", si.GetPing)
	router.Get("/public/plans", si.GetPublicPlans)
	router.Post("/public/portal/session", si.PostPortalSession)
}
