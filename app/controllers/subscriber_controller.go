package controllers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Recurro/app/models"
	"github.com/ManuelReschke/Recurro/internal/pkg/middleware"
	"github.com/ManuelReschke/Recurro/internal/pkg/paystack"
)

// HandleListSubscribers lists a shop's subscribers. Supports ?status=,
// ?q= (email/phone search) and offset/limit pagination.
func HandleListSubscribers(c *fiber.Ctx) error {
	shop := middleware.ShopFromContext(c)
	if shop == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing shop context"})
	}

	if query := c.Query("q"); query != "" {
		subscribers, err := subscriberRepo().Search(shop.ID, query)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Search failed"})
		}
		return c.JSON(fiber.Map{"subscribers": subscribers, "total": len(subscribers)})
	}

	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var (
		subscribers interface{}
		total       int64
		err         error
	)
	if status := c.Query("status"); status != "" {
		subscribers, err = subscriberRepo().GetByStatus(shop.ID, status, offset, limit)
		if err == nil {
			total, err = subscriberRepo().CountByStatus(shop.ID, status)
		}
	} else {
		subscribers, err = subscriberRepo().GetByShopID(shop.ID, offset, limit)
		if err == nil {
			total, err = subscriberRepo().Count(shop.ID)
		}
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load subscribers"})
	}

	return c.JSON(fiber.Map{"subscribers": subscribers, "total": total, "offset": offset, "limit": limit})
}

// HandleGetSubscriber returns one subscriber with the dunning audit
// trail and recent invoices.
func HandleGetSubscriber(c *fiber.Ctx) error {
	shop := middleware.ShopFromContext(c)
	if shop == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing shop context"})
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid subscriber id"})
	}

	subscriber, err := subscriberRepo().GetByID(shop.ID, uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Subscriber not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load subscriber"})
	}

	attempts, err := dunningRepo().AttemptsForSubscriber(subscriber.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load attempts"})
	}
	invoices, err := invoiceRepo().GetBySubscriberID(subscriber.ID, 0, 20)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load invoices"})
	}

	return c.JSON(fiber.Map{
		"subscriber":       subscriber,
		"dunning_attempts": attempts,
		"invoices":         invoices,
	})
}

// HandlePauseSubscriber pauses billing by disabling the remote Paystack
// subscription and marking the subscriber paused.
func HandlePauseSubscriber(c *fiber.Ctx) error {
	return toggleSubscription(c, false)
}

// HandleResumeSubscriber re-enables the remote subscription and marks
// the subscriber active again.
func HandleResumeSubscriber(c *fiber.Ctx) error {
	return toggleSubscription(c, true)
}

func toggleSubscription(c *fiber.Ctx, enable bool) error {
	shop := middleware.ShopFromContext(c)
	if shop == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing shop context"})
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid subscriber id"})
	}

	subscriber, err := subscriberRepo().GetByID(shop.ID, uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Subscriber not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load subscriber"})
	}
	if subscriber.PaystackSubscriptionCode == "" {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "Subscriber has no provider subscription"})
	}

	client, err := paystackClientForShop(shop)
	if err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "Shop has no usable Paystack credentials"})
	}

	remote, err := client.GetSubscription(c.UserContext(), subscriber.PaystackSubscriptionCode)
	if err != nil {
		log.Errorf("[Subscribers] subscription lookup for %d failed: %v", subscriber.ID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "provider_error", "message": "Subscription lookup failed"})
	}

	params := paystack.SubscriptionToggleParams{Code: subscriber.PaystackSubscriptionCode, Token: remote.EmailToken}
	if enable {
		err = client.EnableSubscription(c.UserContext(), params)
	} else {
		err = client.DisableSubscription(c.UserContext(), params)
	}
	if err != nil {
		log.Errorf("[Subscribers] toggling subscription for %d failed: %v", subscriber.ID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "provider_error", "message": "Subscription toggle failed"})
	}

	if enable {
		subscriber.Status = models.SubscriberStatusActive
	} else {
		subscriber.Status = models.SubscriberStatusPaused
	}
	if err := subscriberRepo().Update(subscriber); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to save subscriber"})
	}
	return c.JSON(fiber.Map{"ok": true, "status": subscriber.Status})
}

// HandleIssuePortalToken rotates the subscriber's single-use customer
// portal token and returns it with its expiry. The merchant embeds the
// resulting link in a message to the customer.
func HandleIssuePortalToken(c *fiber.Ctx) error {
	shop := middleware.ShopFromContext(c)
	if shop == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing shop context"})
	}
	if !shop.PortalEnabled {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "Customer portal is disabled for this shop"})
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid subscriber id"})
	}

	subscriber, err := subscriberRepo().GetByID(shop.ID, uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Subscriber not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load subscriber"})
	}

	token := subscriber.IssuePortalToken()
	if err := subscriberRepo().Update(subscriber); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to save token"})
	}

	return c.JSON(fiber.Map{
		"token":      token,
		"expires_at": subscriber.PortalTokenExpiresAt.UTC().Format(time.RFC3339),
	})
}
