package apiv1

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Recurro/app/models"
	"github.com/ManuelReschke/Recurro/app/repository"
)

// Pong is the health check response body.
type Pong struct {
	Ping string `json:"ping"`
}

// PublicPlan is the storefront-facing projection of a subscription plan.
// Provider codes and anything merchant-internal stay out of it.
type PublicPlan struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Interval  string `json:"interval"`
	TrialDays int    `json:"trial_days"`
}

// SubscriberStore is the subscriber lookup surface the public API needs.
type SubscriberStore interface {
	GetByPortalToken(token string) (*models.Subscriber, error)
	Update(subscriber *models.Subscriber) error
}

// InvoiceStore provides the invoice history shown in the portal.
type InvoiceStore interface {
	GetBySubscriberID(subscriberID uint, offset, limit int) ([]models.Invoice, error)
}

// ShopStore resolves tenants for the public endpoints.
type ShopStore interface {
	GetByID(id uint) (*models.Shop, error)
	GetByDomain(domain string) (*models.Shop, error)
}

// APIServer implements the public v1 surface. The zero value resolves
// its stores from the global repository factory on first use.
type APIServer struct {
	subscribers SubscriberStore
	invoices    InvoiceStore
	shops       ShopStore
}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

func (s *APIServer) subscriberStore() SubscriberStore {
	if s.subscribers != nil {
		return s.subscribers
	}
	return repository.GetGlobalFactory().GetSubscriberRepository()
}

func (s *APIServer) invoiceStore() InvoiceStore {
	if s.invoices != nil {
		return s.invoices
	}
	return repository.GetGlobalFactory().GetInvoiceRepository()
}

func (s *APIServer) shopStore() ShopStore {
	if s.shops != nil {
		return s.shops
	}
	return repository.GetGlobalFactory().GetShopRepository()
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// GetPublicPlans lists the active plans a shop currently sells. This is
// the unauthenticated endpoint the storefront widget reads; the shop is
// named by ?shop=<domain> and credentials are never part of the payload.
func (s *APIServer) GetPublicPlans(c *fiber.Ctx) error {
	domain := c.Query("shop")
	if domain == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "shop query parameter missing"})
	}

	shop, err := s.shopStore().GetByDomain(domain)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Unknown shop"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Shop lookup failed"})
	}

	plans, err := repository.GetGlobalFactory().GetPlanRepository().GetActiveByShopID(shop.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load plans"})
	}

	out := make([]PublicPlan, 0, len(plans))
	for _, plan := range plans {
		out = append(out, PublicPlan{
			ID:        plan.ID,
			Name:      plan.Name,
			Amount:    plan.Amount,
			Currency:  plan.Currency,
			Interval:  plan.Interval,
			TrialDays: plan.TrialDays,
		})
	}

	return c.JSON(fiber.Map{"shop": shop.ShopDomain, "currency": shop.Currency, "plans": out})
}

// PostPortalSession exchanges a customer's emailed portal token for their
// subscription snapshot. Tokens are single-use: a successful exchange
// consumes the token, so the portal UI holds the returned data and the
// customer has to request a fresh link for the next visit.
func (s *APIServer) PostPortalSession(c *fiber.Ctx) error {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}
	if req.Token == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": "token is required"})
	}

	subscriber, err := s.subscriberStore().GetByPortalToken(req.Token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid or expired portal token"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Session lookup failed"})
	}

	shop, err := s.shopStore().GetByID(subscriber.Plan.ShopID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Shop lookup failed"})
	}
	if !shop.PortalEnabled {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Customer portal is disabled for this shop"})
	}

	if !subscriber.ConsumePortalToken(req.Token) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid or expired portal token"})
	}
	if err := s.subscriberStore().Update(subscriber); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to consume token"})
	}

	invoices, err := s.invoiceStore().GetBySubscriberID(subscriber.ID, 0, 10)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load invoices"})
	}

	var nextBilling, trialEnd string
	if subscriber.NextBillingDate != nil {
		nextBilling = subscriber.NextBillingDate.UTC().Format(time.RFC3339)
	}
	if subscriber.TrialEndsAt != nil {
		trialEnd = subscriber.TrialEndsAt.UTC().Format(time.RFC3339)
	}

	return c.JSON(fiber.Map{
		"subscriber": fiber.Map{
			"id":                subscriber.ID,
			"email":             subscriber.Email,
			"status":            subscriber.Status,
			"next_billing_date": nextBilling,
			"trial_ends_at":     trialEnd,
		},
		"plan": fiber.Map{
			"name":     subscriber.Plan.Name,
			"amount":   subscriber.Plan.Amount,
			"currency": subscriber.Plan.Currency,
			"interval": subscriber.Plan.Interval,
		},
		"shop":     shop.ShopDomain,
		"invoices": invoices,
	})
}
