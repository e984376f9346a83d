package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/Recurro/internal/pkg/billing"
)

// HandlePaystackWebhook receives every Paystack event for every shop on
// one shared endpoint. The tenant is established purely by which shop's
// secret reproduces the x-paystack-signature HMAC over the raw body.
// Once a delivery is authenticated and parsed it always gets a 200, even
// when reconciliation ignores it, so Paystack never retry-storms events
// this app does not care about.
func HandlePaystackWebhook(c *fiber.Ctx) error {
	// c.Body() is the raw bytes; the HMAC is computed over exactly what
	// was sent, never a re-serialized parse.
	body := c.Body()
	signature := c.Get("x-paystack-signature")

	err := getBillingService().HandleWebhook(c.UserContext(), body, signature)
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"ok": true})
	case errors.Is(err, billing.ErrMalformedPayload):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	case errors.Is(err, billing.ErrSignatureMismatch):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Signature verification failed"})
	default:
		// Reconciliation hiccups are ours to retry via our own state, not
		// the provider's.
		log.Errorf("[Webhook] processing failed: %v", err)
		return c.JSON(fiber.Map{"ok": true})
	}
}
