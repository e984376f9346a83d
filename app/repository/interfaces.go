package repository

import (
	"time"

	"github.com/ManuelReschke/Recurro/app/models"
	"gorm.io/gorm"
)

// ShopRepository defines the interface for merchant tenant database operations
type ShopRepository interface {
	Create(shop *models.Shop) error
	GetByID(id uint) (*models.Shop, error)
	GetByDomain(domain string) (*models.Shop, error)
	Update(shop *models.Shop) error
	List(offset, limit int) ([]models.Shop, error)
	Count() (int64, error)
}

// PlanRepository defines the interface for subscription plan database operations
type PlanRepository interface {
	Create(plan *models.SubscriptionPlan) error
	GetByID(shopID, id uint) (*models.SubscriptionPlan, error)
	GetByShopID(shopID uint) ([]models.SubscriptionPlan, error)
	GetActiveByShopID(shopID uint) ([]models.SubscriptionPlan, error)
	Update(plan *models.SubscriptionPlan) error
	Deactivate(shopID, id uint) error
	Count(shopID uint) (int64, error)
}

// SubscriberRepository defines the interface for subscriber database operations
type SubscriberRepository interface {
	Create(subscriber *models.Subscriber) error
	GetByID(shopID, id uint) (*models.Subscriber, error)
	GetByPortalToken(token string) (*models.Subscriber, error)
	GetByShopID(shopID uint, offset, limit int) ([]models.Subscriber, error)
	GetByStatus(shopID uint, status string, offset, limit int) ([]models.Subscriber, error)
	GetInDunning(shopID uint) ([]models.Subscriber, error)
	Update(subscriber *models.Subscriber) error
	Count(shopID uint) (int64, error)
	CountByStatus(shopID uint, status string) (int64, error)
	Search(shopID uint, query string) ([]models.Subscriber, error)
}

// InvoiceRepository defines the interface for invoice database operations
type InvoiceRepository interface {
	Create(invoice *models.Invoice) error
	GetByID(shopID, id uint) (*models.Invoice, error)
	GetBySubscriberID(subscriberID uint, offset, limit int) ([]models.Invoice, error)
	GetByShopID(shopID uint, offset, limit int) ([]models.Invoice, error)
	Update(invoice *models.Invoice) error
	Count(shopID uint) (int64, error)
	RevenueBetween(shopID uint, start, end time.Time) (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Shop       ShopRepository
	Plan       PlanRepository
	Subscriber SubscriberRepository
	Invoice    InvoiceRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Shop:       NewShopRepository(db),
		Plan:       NewPlanRepository(db),
		Subscriber: NewSubscriberRepository(db),
		Invoice:    NewInvoiceRepository(db),
	}
}
