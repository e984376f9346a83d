package router

import (
	"github.com/ManuelReschke/Recurro/app/controllers"
	apiv1 "github.com/ManuelReschke/Recurro/internal/api/v1"
	"github.com/ManuelReschke/Recurro/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// Public v1 routes (ping, storefront plan listing)
	v1 := api.Group("/v1")
	apiServer := apiv1.NewAPIServer()
	apiv1.RegisterHandlers(v1, apiServer)

	// Admin API: shared bearer token, then tenant scoping per request.
	admin := v1.Group("/", middleware.AdminAuthMiddleware())
	admin.Post("/shops", controllers.HandleCreateShop)

	shopScoped := admin.Group("/", middleware.ShopScopeMiddleware())
	shopScoped.Get("/settings", controllers.HandleGetShopSettings)
	shopScoped.Put("/settings", controllers.HandleUpdateShopSettings)

	shopScoped.Get("/plans", controllers.HandleListPlans)
	shopScoped.Post("/plans", controllers.HandleCreatePlan)
	shopScoped.Get("/plans/:id", controllers.HandleGetPlan)
	shopScoped.Put("/plans/:id", controllers.HandleUpdatePlan)
	shopScoped.Delete("/plans/:id", controllers.HandleDeactivatePlan)
	shopScoped.Post("/plans/:id/checkout", controllers.HandleCreateCheckout)

	shopScoped.Get("/subscribers", controllers.HandleListSubscribers)
	shopScoped.Get("/subscribers/:id", controllers.HandleGetSubscriber)
	shopScoped.Post("/subscribers/:id/pause", controllers.HandlePauseSubscriber)
	shopScoped.Post("/subscribers/:id/resume", controllers.HandleResumeSubscriber)
	shopScoped.Post("/subscribers/:id/portal-token", controllers.HandleIssuePortalToken)
	shopScoped.Post("/subscribers/:id/dunning/retry", controllers.HandleDunningManualRetry)

	shopScoped.Get("/dunning", controllers.HandleDunningOverview)

	shopScoped.Get("/invoices", controllers.HandleListInvoices)
	shopScoped.Get("/invoices/:id", controllers.HandleGetInvoice)
	shopScoped.Get("/reports/revenue", controllers.HandleRevenueReport)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
