package controllers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Recurro/internal/pkg/middleware"
)

// HandleListInvoices lists a shop's invoices with pagination.
func HandleListInvoices(c *fiber.Ctx) error {
	shop := middleware.ShopFromContext(c)
	if shop == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing shop context"})
	}

	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	invoices, err := invoiceRepo().GetByShopID(shop.ID, offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load invoices"})
	}
	total, err := invoiceRepo().Count(shop.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to count invoices"})
	}

	return c.JSON(fiber.Map{"invoices": invoices, "total": total, "offset": offset, "limit": limit})
}

// HandleGetInvoice returns one invoice of the shop.
func HandleGetInvoice(c *fiber.Ctx) error {
	shop := middleware.ShopFromContext(c)
	if shop == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing shop context"})
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid invoice id"})
	}

	invoice, err := invoiceRepo().GetByID(shop.ID, uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Invoice not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load invoice"})
	}
	return c.JSON(invoice)
}

// HandleRevenueReport sums paid invoice amounts for a date window
// (?from=YYYY-MM-DD&to=YYYY-MM-DD, defaulting to the last 30 days).
func HandleRevenueReport(c *fiber.Ctx) error {
	shop := middleware.ShopFromContext(c)
	if shop == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing shop context"})
	}

	end := time.Now()
	start := end.AddDate(0, 0, -30)
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid from date"})
		}
		start = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid to date"})
		}
		end = parsed.AddDate(0, 0, 1)
	}

	total, err := invoiceRepo().RevenueBetween(shop.ID, start, end)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to compute revenue"})
	}

	return c.JSON(fiber.Map{
		"currency":        shop.Currency,
		"amount_subunits": total,
		"from":            start.Format("2006-01-02"),
		"to":              end.Format("2006-01-02"),
	})
}
