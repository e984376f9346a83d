package repository

import (
	"github.com/ManuelReschke/Recurro/app/models"
	"gorm.io/gorm"
)

// planRepository implements the PlanRepository interface
type planRepository struct {
	db *gorm.DB
}

// NewPlanRepository creates a new plan repository instance
func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepository{db: db}
}

// Create creates a new subscription plan in the database
func (r *planRepository) Create(plan *models.SubscriptionPlan) error {
	return r.db.Create(plan).Error
}

// GetByID retrieves a plan by its ID, scoped to the owning shop
func (r *planRepository) GetByID(shopID, id uint) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	err := r.db.Where("id = ? AND shop_id = ?", id, shopID).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// GetByShopID retrieves all plans of a shop, active and deactivated
func (r *planRepository) GetByShopID(shopID uint) ([]models.SubscriptionPlan, error) {
	var plans []models.SubscriptionPlan
	err := r.db.Where("shop_id = ?", shopID).Order("created_at DESC").Find(&plans).Error
	return plans, err
}

// GetActiveByShopID retrieves only the plans a shop currently sells
func (r *planRepository) GetActiveByShopID(shopID uint) ([]models.SubscriptionPlan, error) {
	var plans []models.SubscriptionPlan
	err := r.db.Where("shop_id = ? AND active = ?", shopID, true).
		Order("amount ASC").Find(&plans).Error
	return plans, err
}

// Update updates an existing plan in the database
func (r *planRepository) Update(plan *models.SubscriptionPlan) error {
	return r.db.Save(plan).Error
}

// Deactivate soft-deletes a plan via the active flag. Plans are never
// hard-deleted so subscriber and invoice history stays intact.
func (r *planRepository) Deactivate(shopID, id uint) error {
	return r.db.Model(&models.SubscriptionPlan{}).
		Where("id = ? AND shop_id = ?", id, shopID).
		Update("active", false).Error
}

// Count returns the total number of plans for a shop
func (r *planRepository) Count(shopID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.SubscriptionPlan{}).Where("shop_id = ?", shopID).Count(&count).Error
	return count, err
}
