package repository

import (
	"time"

	"github.com/ManuelReschke/Recurro/app/models"
	"gorm.io/gorm"
)

// invoiceRepository implements the InvoiceRepository interface
type invoiceRepository struct {
	db *gorm.DB
}

// NewInvoiceRepository creates a new invoice repository instance
func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

// Create creates a new invoice in the database
func (r *invoiceRepository) Create(invoice *models.Invoice) error {
	return r.db.Create(invoice).Error
}

// GetByID retrieves an invoice by its ID, scoped to the owning shop
func (r *invoiceRepository) GetByID(shopID, id uint) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.shopScope(shopID).Where("invoices.id = ?", id).First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// GetBySubscriberID retrieves a subscriber's invoices with pagination
func (r *invoiceRepository) GetBySubscriberID(subscriberID uint, offset, limit int) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.Where("subscriber_id = ?", subscriberID).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&invoices).Error
	return invoices, err
}

// GetByShopID retrieves a shop's invoices with pagination
func (r *invoiceRepository) GetByShopID(shopID uint, offset, limit int) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.shopScope(shopID).Order("invoices.created_at DESC").
		Offset(offset).Limit(limit).Find(&invoices).Error
	return invoices, err
}

// Update updates an existing invoice in the database
func (r *invoiceRepository) Update(invoice *models.Invoice) error {
	return r.db.Save(invoice).Error
}

// Count returns the total number of invoices for a shop
func (r *invoiceRepository) Count(shopID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Invoice{}).
		Joins("JOIN subscribers ON subscribers.id = invoices.subscriber_id").
		Joins("JOIN subscription_plans ON subscription_plans.id = subscribers.plan_id").
		Where("subscription_plans.shop_id = ?", shopID).Count(&count).Error
	return count, err
}

// RevenueBetween sums paid invoice amounts (in subunits) for a shop in
// the given window
func (r *invoiceRepository) RevenueBetween(shopID uint, start, end time.Time) (int64, error) {
	var total int64
	err := r.db.Model(&models.Invoice{}).
		Joins("JOIN subscribers ON subscribers.id = invoices.subscriber_id").
		Joins("JOIN subscription_plans ON subscription_plans.id = subscribers.plan_id").
		Where("subscription_plans.shop_id = ? AND invoices.status = ? AND invoices.paid_at BETWEEN ? AND ?",
			shopID, models.InvoiceStatusPaid, start, end).
		Select("COALESCE(SUM(invoices.amount), 0)").Scan(&total).Error
	return total, err
}

func (r *invoiceRepository) shopScope(shopID uint) *gorm.DB {
	return r.db.Preload("Subscriber").
		Joins("JOIN subscribers ON subscribers.id = invoices.subscriber_id").
		Joins("JOIN subscription_plans ON subscription_plans.id = subscribers.plan_id").
		Where("subscription_plans.shop_id = ?", shopID)
}
