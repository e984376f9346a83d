package billing

import (
	"time"

	"github.com/ManuelReschke/Recurro/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the webhook reconciler.
type Repository interface {
	FindShopsWithPaystackKeys() ([]models.Shop, error)
	FindPlanByID(shopID, planID uint) (*models.SubscriptionPlan, error)
	FindPlanByPaystackCode(shopID uint, planCode string) (*models.SubscriptionPlan, error)
	FindSubscriberByEmailAndPlan(email string, planID uint) (*models.Subscriber, error)
	FindSubscriberBySubscriptionCode(shopID uint, subscriptionCode string) (*models.Subscriber, error)
	CreateSubscriber(subscriber *models.Subscriber) error
	SaveSubscriber(subscriber *models.Subscriber) error
	CreateInvoiceIfNew(invoice *models.Invoice) (bool, error)
	UpdateInvoiceByRef(paystackRef, status string, paidAt *time.Time) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindShopsWithPaystackKeys() ([]models.Shop, error) {
	var shops []models.Shop
	err := r.db.Where("paystack_secret_key <> ''").Order("id ASC").Find(&shops).Error
	return shops, err
}

func (r *gormRepository) FindPlanByID(shopID, planID uint) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	err := r.db.Where("id = ? AND shop_id = ?", planID, shopID).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *gormRepository) FindPlanByPaystackCode(shopID uint, planCode string) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	err := r.db.Where("shop_id = ? AND paystack_plan_code = ?", shopID, planCode).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *gormRepository) FindSubscriberByEmailAndPlan(email string, planID uint) (*models.Subscriber, error) {
	var subscriber models.Subscriber
	err := r.db.Where("email = ? AND plan_id = ?", email, planID).First(&subscriber).Error
	if err != nil {
		return nil, err
	}
	return &subscriber, nil
}

// FindSubscriberBySubscriptionCode is shop-scoped through the plan join:
// a subscription code in one tenant's event must never resolve into
// another tenant's subscriber.
func (r *gormRepository) FindSubscriberBySubscriptionCode(shopID uint, subscriptionCode string) (*models.Subscriber, error) {
	var subscriber models.Subscriber
	err := r.db.
		Joins("JOIN subscription_plans ON subscription_plans.id = subscribers.plan_id").
		Where("subscription_plans.shop_id = ? AND subscribers.paystack_subscription_code = ?", shopID, subscriptionCode).
		First(&subscriber).Error
	if err != nil {
		return nil, err
	}
	return &subscriber, nil
}

func (r *gormRepository) CreateSubscriber(subscriber *models.Subscriber) error {
	return r.db.Create(subscriber).Error
}

func (r *gormRepository) SaveSubscriber(subscriber *models.Subscriber) error {
	return r.db.Save(subscriber).Error
}

// CreateInvoiceIfNew inserts the invoice unless one with the same
// Paystack reference already exists. The bool reports whether a row was
// actually created, which is how duplicate webhook deliveries collapse
// into a single invoice.
func (r *gormRepository) CreateInvoiceIfNew(invoice *models.Invoice) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "paystack_ref"}},
		DoNothing: true,
	}).Create(invoice)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) UpdateInvoiceByRef(paystackRef, status string, paidAt *time.Time) error {
	updates := map[string]interface{}{
		"status":  status,
		"paid_at": paidAt,
	}
	tx := r.db.Model(&models.Invoice{}).Where("paystack_ref = ?", paystackRef).Updates(updates)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
