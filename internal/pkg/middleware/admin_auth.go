package middleware

import (
	"crypto/subtle"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Recurro/app/models"
	"github.com/ManuelReschke/Recurro/app/repository"
	"github.com/ManuelReschke/Recurro/internal/pkg/env"
)

// shopLocalsKey is where the authenticated tenant is stored for handlers.
const shopLocalsKey = "admin_shop"

// AdminAuthMiddleware authenticates the embedded admin API with the
// shared ADMIN_API_TOKEN bearer token. An unset token disables the API.
func AdminAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		secret := env.GetEnv("ADMIN_API_TOKEN", "")
		if secret == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Admin API disabled"})
		}

		token := extractBearerToken(c)
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid admin token"})
		}

		return c.Next()
	}
}

// ShopScopeMiddleware resolves the X-Shop-Domain header into the tenant
// the request acts on and places it in Locals for the handlers. Runs
// after AdminAuthMiddleware on every shop-scoped route.
func ShopScopeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		domain := c.Get("X-Shop-Domain")
		if domain == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Missing X-Shop-Domain header"})
		}

		shop, err := repository.GetGlobalFactory().GetShopRepository().GetByDomain(domain)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Unknown shop"})
			}
			log.Errorf("admin shop lookup failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Shop lookup failed"})
		}

		c.Locals(shopLocalsKey, shop)
		return c.Next()
	}
}

// ShopFromContext returns the tenant resolved by ShopScopeMiddleware, or
// nil outside a shop-scoped admin request.
func ShopFromContext(c *fiber.Ctx) *models.Shop {
	shop, _ := c.Locals(shopLocalsKey).(*models.Shop)
	return shop
}
