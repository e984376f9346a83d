package router

import (
	"github.com/ManuelReschke/Recurro/app/controllers"
	"github.com/ManuelReschke/Recurro/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
}

// InstallRouter registers the provider-facing endpoints. Neither route
// is rate limited: Paystack retries aggressively on non-200s and the
// cron trigger is guarded by its own shared secret.
func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Shared multi-tenant webhook endpoint; tenant identity is
	// established by signature, not by URL.
	app.Post("/api/paystack/webhook", controllers.HandlePaystackWebhook)

	// Periodic sweep trigger, hit by the in-process cron manager and any
	// external scheduler.
	app.Get("/api/dunning/run", middleware.CronAuthMiddleware(), controllers.HandleDunningRun)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
