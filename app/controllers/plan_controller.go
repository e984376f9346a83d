package controllers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Recurro/app/models"
	"github.com/ManuelReschke/Recurro/internal/pkg/middleware"
	"github.com/ManuelReschke/Recurro/internal/pkg/paystack"
	"github.com/ManuelReschke/Recurro/internal/pkg/security"
)

type planRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Interval    string `json:"interval"`
	TrialDays   int    `json:"trial_days"`
}

// HandleListPlans returns every plan of the shop, deactivated included.
func HandleListPlans(c *fiber.Ctx) error {
	shop := middleware.ShopFromContext(c)
	if shop == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing shop context"})
	}

	plans, err := planRepo().GetByShopID(shop.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load plans"})
	}
	return c.JSON(fiber.Map{"plans": plans})
}

// HandleGetPlan returns a single plan of the shop.
func HandleGetPlan(c *fiber.Ctx) error {
	shop := middleware.ShopFromContext(c)
	if shop == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing shop context"})
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid plan id"})
	}

	plan, err := planRepo().GetByID(shop.ID, uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Plan not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load plan"})
	}
	return c.JSON(plan)
}

// HandleCreatePlan creates a plan. The plan is pushed to Paystack first
// and only persisted with its provider code once the push succeeds, so a
// stored plan code always refers to a real remote plan.
func HandleCreatePlan(c *fiber.Ctx) error {
	shop := middleware.ShopFromContext(c)
	if shop == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing shop context"})
	}

	var req planRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}

	plan := &models.SubscriptionPlan{
		ShopID:      shop.ID,
		Name:        req.Name,
		Description: req.Description,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Interval:    req.Interval,
		TrialDays:   req.TrialDays,
		Active:      true,
	}
	if plan.Currency == "" {
		plan.Currency = shop.Currency
	}
	if plan.Interval == "" {
		plan.Interval = models.PlanIntervalMonthly
	}
	if err := plan.Validate(); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	client, err := paystackClientForShop(shop)
	if err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "Shop has no usable Paystack credentials"})
	}

	remote, err := client.CreatePlan(c.UserContext(), paystack.CreatePlanParams{
		Name:        plan.Name,
		Amount:      plan.Amount,
		Interval:    plan.Interval,
		Currency:    plan.Currency,
		Description: plan.Description,
	})
	if err != nil {
		log.Errorf("[Plans] pushing plan %q to Paystack failed: %v", plan.Name, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "provider_error", "message": "Creating the plan with Paystack failed"})
	}
	plan.PaystackPlanCode = remote.PlanCode

	if err := planRepo().Create(plan); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to save plan"})
	}
	return c.Status(fiber.StatusCreated).JSON(plan)
}

// HandleUpdatePlan updates a plan and mirrors the change to Paystack when
// a remote plan code exists.
func HandleUpdatePlan(c *fiber.Ctx) error {
	shop := middleware.ShopFromContext(c)
	if shop == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing shop context"})
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid plan id"})
	}

	plan, err := planRepo().GetByID(shop.ID, uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Plan not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load plan"})
	}

	var req planRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}

	if req.Name != "" {
		plan.Name = req.Name
	}
	if req.Description != "" {
		plan.Description = req.Description
	}
	if req.Amount > 0 {
		plan.Amount = req.Amount
	}
	if req.Interval != "" {
		plan.Interval = req.Interval
	}
	if req.TrialDays >= 0 {
		plan.TrialDays = req.TrialDays
	}
	if err := plan.Validate(); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	if plan.PaystackPlanCode != "" {
		client, cerr := paystackClientForShop(shop)
		if cerr != nil {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "Shop has no usable Paystack credentials"})
		}
		if err := client.UpdatePlan(c.UserContext(), plan.PaystackPlanCode, paystack.UpdatePlanParams{
			Name:        plan.Name,
			Amount:      plan.Amount,
			Interval:    plan.Interval,
			Description: plan.Description,
		}); err != nil {
			log.Errorf("[Plans] pushing plan %d update to Paystack failed: %v", plan.ID, err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "provider_error", "message": "Updating the plan with Paystack failed"})
		}
	}

	if err := planRepo().Update(plan); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to save plan"})
	}
	return c.JSON(plan)
}

// HandleDeactivatePlan soft-deletes a plan. Existing subscribers keep
// billing; the plan just stops being offered.
func HandleDeactivatePlan(c *fiber.Ctx) error {
	shop := middleware.ShopFromContext(c)
	if shop == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing shop context"})
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid plan id"})
	}

	if _, err := planRepo().GetByID(shop.ID, uint(id)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Plan not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load plan"})
	}

	if err := planRepo().Deactivate(shop.ID, uint(id)); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to deactivate plan"})
	}
	return c.JSON(fiber.Map{"ok": true})
}

// HandleCreateCheckout initializes a Paystack checkout for a plan and
// returns the hosted payment URL. The metadata stamped here is what the
// webhook reconciler later uses to resolve the plan and backfill the
// subscriber's contact details.
func HandleCreateCheckout(c *fiber.Ctx) error {
	shop := middleware.ShopFromContext(c)
	if shop == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing shop context"})
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid plan id"})
	}

	plan, err := planRepo().GetByID(shop.ID, uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Plan not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load plan"})
	}
	if !plan.Active {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "Plan is deactivated"})
	}

	var req struct {
		Email         string `json:"email"`
		Phone         string `json:"phone"`
		WhatsappOptIn bool   `json:"whatsapp_opt_in"`
		CallbackURL   string `json:"callback_url"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}
	if req.Email == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": "email is required"})
	}

	client, err := paystackClientForShop(shop)
	if err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "Shop has no usable Paystack credentials"})
	}

	tx, err := client.InitializeTransaction(c.UserContext(), paystack.InitializeTransactionParams{
		Email:       req.Email,
		Amount:      plan.Amount,
		Currency:    plan.Currency,
		Plan:        plan.PaystackPlanCode,
		CallbackURL: req.CallbackURL,
		Metadata: map[string]any{
			"plan_id":         plan.ID,
			"phone":           req.Phone,
			"whatsapp_opt_in": req.WhatsappOptIn,
			"trial_days":      plan.TrialDays,
		},
	})
	if err != nil {
		log.Errorf("[Plans] initializing checkout for plan %d failed: %v", plan.ID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "provider_error", "message": "Checkout initialization failed"})
	}

	return c.JSON(fiber.Map{"authorization_url": tx.AuthorizationURL, "reference": tx.Reference})
}

// paystackClientForShop decrypts the shop's secret key into a client.
func paystackClientForShop(shop *models.Shop) (*paystack.Client, error) {
	if shop.PaystackSecretKey == "" {
		return nil, errors.New("shop has no paystack secret key")
	}
	secret, err := security.Decrypt(shop.PaystackSecretKey)
	if err != nil {
		return nil, err
	}
	return paystack.NewClient(secret), nil
}
