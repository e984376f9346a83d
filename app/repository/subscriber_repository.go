package repository

import (
	"github.com/ManuelReschke/Recurro/app/models"
	"gorm.io/gorm"
)

// subscriberRepository implements the SubscriberRepository interface
type subscriberRepository struct {
	db *gorm.DB
}

// NewSubscriberRepository creates a new subscriber repository instance
func NewSubscriberRepository(db *gorm.DB) SubscriberRepository {
	return &subscriberRepository{db: db}
}

// Create creates a new subscriber in the database
func (r *subscriberRepository) Create(subscriber *models.Subscriber) error {
	return r.db.Create(subscriber).Error
}

// GetByID retrieves a subscriber by its ID, scoped to the owning shop
// through the plan relation
func (r *subscriberRepository) GetByID(shopID, id uint) (*models.Subscriber, error) {
	var subscriber models.Subscriber
	err := r.db.Preload("Plan").
		Joins("JOIN subscription_plans ON subscription_plans.id = subscribers.plan_id").
		Where("subscribers.id = ? AND subscription_plans.shop_id = ?", id, shopID).
		First(&subscriber).Error
	if err != nil {
		return nil, err
	}
	return &subscriber, nil
}

// GetByPortalToken retrieves a subscriber by an issued portal token.
// Token validity is checked by the caller via ConsumePortalToken.
func (r *subscriberRepository) GetByPortalToken(token string) (*models.Subscriber, error) {
	var subscriber models.Subscriber
	err := r.db.Preload("Plan").Where("portal_token = ?", token).First(&subscriber).Error
	if err != nil {
		return nil, err
	}
	return &subscriber, nil
}

// GetByShopID retrieves a shop's subscribers with pagination
func (r *subscriberRepository) GetByShopID(shopID uint, offset, limit int) ([]models.Subscriber, error) {
	var subscribers []models.Subscriber
	err := r.shopScope(shopID).Order("subscribers.created_at DESC").
		Offset(offset).Limit(limit).Find(&subscribers).Error
	return subscribers, err
}

// GetByStatus retrieves a shop's subscribers filtered by status
func (r *subscriberRepository) GetByStatus(shopID uint, status string, offset, limit int) ([]models.Subscriber, error) {
	var subscribers []models.Subscriber
	err := r.shopScope(shopID).Where("subscribers.status = ?", status).
		Order("subscribers.created_at DESC").Offset(offset).Limit(limit).
		Find(&subscribers).Error
	return subscribers, err
}

// GetInDunning retrieves all subscribers of a shop with a running
// recovery batch
func (r *subscriberRepository) GetInDunning(shopID uint) ([]models.Subscriber, error) {
	var subscribers []models.Subscriber
	err := r.shopScope(shopID).Where("subscribers.dunning_started_at IS NOT NULL").
		Order("subscribers.dunning_started_at ASC").Find(&subscribers).Error
	return subscribers, err
}

// Update updates an existing subscriber in the database
func (r *subscriberRepository) Update(subscriber *models.Subscriber) error {
	return r.db.Save(subscriber).Error
}

// Count returns the total number of subscribers for a shop
func (r *subscriberRepository) Count(shopID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Subscriber{}).
		Joins("JOIN subscription_plans ON subscription_plans.id = subscribers.plan_id").
		Where("subscription_plans.shop_id = ?", shopID).Count(&count).Error
	return count, err
}

// CountByStatus returns the number of a shop's subscribers in one status
func (r *subscriberRepository) CountByStatus(shopID uint, status string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Subscriber{}).
		Joins("JOIN subscription_plans ON subscription_plans.id = subscribers.plan_id").
		Where("subscription_plans.shop_id = ? AND subscribers.status = ?", shopID, status).
		Count(&count).Error
	return count, err
}

// Search retrieves a shop's subscribers matching an email or phone query
func (r *subscriberRepository) Search(shopID uint, query string) ([]models.Subscriber, error) {
	var subscribers []models.Subscriber
	pattern := "%" + query + "%"
	err := r.shopScope(shopID).
		Where("subscribers.email LIKE ? OR subscribers.phone LIKE ?", pattern, pattern).
		Order("subscribers.created_at DESC").Limit(50).Find(&subscribers).Error
	return subscribers, err
}

func (r *subscriberRepository) shopScope(shopID uint) *gorm.DB {
	return r.db.Preload("Plan").
		Joins("JOIN subscription_plans ON subscription_plans.id = subscribers.plan_id").
		Where("subscription_plans.shop_id = ?", shopID)
}
