package controllers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Recurro/internal/pkg/dunning"
	"github.com/ManuelReschke/Recurro/internal/pkg/middleware"
)

// HandleDunningRun is the sweep trigger behind the CRON_SECRET bearer
// guard. The in-process hourly timer and any external cron hit the same
// endpoint; overlapping runs are skipped, not queued.
func HandleDunningRun(c *fiber.Ctx) error {
	results, err := getDunningExecutor().ProcessDueAttempts(c.UserContext())
	if err != nil {
		if errors.Is(err, dunning.ErrSweepInProgress) {
			return c.JSON(fiber.Map{"processed": 0, "results": []dunning.AttemptResult{}, "skipped": true})
		}
		log.Errorf("[Dunning] sweep failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Sweep failed"})
	}

	log.Infof("[Dunning] sweep processed %d attempts", len(results))
	return c.JSON(fiber.Map{"processed": len(results), "results": results})
}

// HandleDunningOverview lists the shop's subscribers currently in
// recovery together with their attempt audit trail.
func HandleDunningOverview(c *fiber.Ctx) error {
	shop := middleware.ShopFromContext(c)
	if shop == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing shop context"})
	}

	repo := dunningRepo()
	subscribers, err := repo.SubscribersInDunning(shop.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load dunning state"})
	}

	entries := make([]fiber.Map, 0, len(subscribers))
	for i := range subscribers {
		subscriber := &subscribers[i]
		attempts, err := repo.AttemptsForSubscriber(subscriber.ID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load attempts"})
		}
		entries = append(entries, fiber.Map{
			"subscriber": subscriber,
			"attempts":   attempts,
		})
	}

	return c.JSON(fiber.Map{"count": len(entries), "in_dunning": entries})
}

// HandleDunningManualRetry restarts the full recovery schedule for one
// subscriber from day zero. Merchant-triggered; not a single retry.
func HandleDunningManualRetry(c *fiber.Ctx) error {
	shop := middleware.ShopFromContext(c)
	if shop == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing shop context"})
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid subscriber id"})
	}

	// Tenant check before touching dunning state.
	if _, err := subscriberRepo().GetByID(shop.ID, uint(id)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Subscriber not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Subscriber lookup failed"})
	}

	if err := getDunningScheduler().ManualRetry(c.UserContext(), uint(id)); err != nil {
		log.Errorf("[Dunning] manual retry for subscriber %d failed: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Manual retry failed"})
	}

	return c.JSON(fiber.Map{"ok": true})
}
