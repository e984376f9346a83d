package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Recurro/app/models"
	"github.com/ManuelReschke/Recurro/internal/pkg/middleware"
	"github.com/ManuelReschke/Recurro/internal/pkg/security"
)

type shopSettingsRequest struct {
	PaystackSecretKey *string `json:"paystack_secret_key"`
	PaystackPublicKey *string `json:"paystack_public_key"`
	WhatsappEnabled   *bool   `json:"whatsapp_enabled"`
	WhatsappAPIKey    *string `json:"whatsapp_api_key"`
	WhatsappPhoneID   *string `json:"whatsapp_phone_id"`
	Currency          *string `json:"currency"`
	PortalEnabled     *bool   `json:"portal_enabled"`
	InvoiceLogo       *string `json:"invoice_logo"`
}

// HandleCreateShop onboards a merchant tenant. Credentials come later
// via the settings endpoint; a fresh shop cannot receive webhooks until
// its Paystack secret is stored.
func HandleCreateShop(c *fiber.Ctx) error {
	var req struct {
		ShopDomain string `json:"shop_domain"`
		Currency   string `json:"currency"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}

	domain := strings.ToLower(strings.TrimSpace(req.ShopDomain))
	if domain == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": "shop_domain is required"})
	}

	if _, err := shopRepo().GetByDomain(domain); err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "Shop already exists"})
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Shop lookup failed"})
	}

	shop := &models.Shop{ShopDomain: domain}
	if req.Currency != "" {
		shop.Currency = strings.ToUpper(req.Currency)
	}
	if err := shopRepo().Create(shop); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to create shop"})
	}

	log.Infof("[Shops] onboarded %s as shop %d", shop.ShopDomain, shop.ID)
	return c.Status(fiber.StatusCreated).JSON(shop)
}

// HandleGetShopSettings returns the shop's settings. Credentials are
// reported as set/unset flags only, never echoed back.
func HandleGetShopSettings(c *fiber.Ctx) error {
	shop := middleware.ShopFromContext(c)
	if shop == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing shop context"})
	}

	return c.JSON(fiber.Map{
		"shop_domain":       shop.ShopDomain,
		"currency":          shop.Currency,
		"portal_enabled":    shop.PortalEnabled,
		"invoice_logo":      shop.InvoiceLogo,
		"whatsapp_enabled":  shop.WhatsappEnabled,
		"whatsapp_phone_id": shop.WhatsappPhoneID,
		"paystack_keys_set": shop.HasPaystackKeys(),
		"whatsapp_key_set":  shop.WhatsappAPIKey != "",
	})
}

// HandleUpdateShopSettings updates settings and credentials. Secrets are
// encrypted at rest; storing a new Paystack secret immediately changes
// which webhooks authenticate as this shop.
func HandleUpdateShopSettings(c *fiber.Ctx) error {
	shop := middleware.ShopFromContext(c)
	if shop == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing shop context"})
	}

	var req shopSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}

	if req.PaystackSecretKey != nil {
		encrypted, err := security.Encrypt(strings.TrimSpace(*req.PaystackSecretKey))
		if err != nil {
			log.Errorf("[Shops] encrypting secret key for shop %d failed: %v", shop.ID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to store credentials"})
		}
		shop.PaystackSecretKey = encrypted
	}
	if req.PaystackPublicKey != nil {
		encrypted, err := security.Encrypt(strings.TrimSpace(*req.PaystackPublicKey))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to store credentials"})
		}
		shop.PaystackPublicKey = encrypted
	}
	if req.WhatsappAPIKey != nil {
		encrypted, err := security.Encrypt(strings.TrimSpace(*req.WhatsappAPIKey))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to store credentials"})
		}
		shop.WhatsappAPIKey = encrypted
	}
	if req.WhatsappEnabled != nil {
		shop.WhatsappEnabled = *req.WhatsappEnabled
	}
	if req.WhatsappPhoneID != nil {
		shop.WhatsappPhoneID = strings.TrimSpace(*req.WhatsappPhoneID)
	}
	if req.Currency != nil && *req.Currency != "" {
		shop.Currency = strings.ToUpper(strings.TrimSpace(*req.Currency))
	}
	if req.PortalEnabled != nil {
		shop.PortalEnabled = *req.PortalEnabled
	}
	if req.InvoiceLogo != nil {
		shop.InvoiceLogo = strings.TrimSpace(*req.InvoiceLogo)
	}

	if err := shopRepo().Update(shop); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to save settings"})
	}
	return c.JSON(fiber.Map{"ok": true})
}
