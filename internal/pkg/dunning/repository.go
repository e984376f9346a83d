package dunning

import (
	"errors"
	"time"

	"github.com/ManuelReschke/Recurro/app/models"
	"gorm.io/gorm"
)

var errAlreadyInDunning = errors.New("subscriber already in dunning")

// Repository provides the DB operations used by the scheduler and the
// executor. The executor only ever updates existing attempts; batches are
// created exclusively through BeginDunning.
type Repository interface {
	GetSubscriber(id uint) (*models.Subscriber, error)
	// BeginDunning marks the subscriber as in dunning and creates the
	// attempt batch in one transaction. Returns false without error when
	// the subscriber is already in dunning (re-entrancy no-op).
	BeginDunning(subscriberID uint, startedAt time.Time, attempts []models.DunningAttempt) (bool, error)
	// ClearDunning clears the dunning marker and marks every pending
	// attempt as skipped. Idempotent.
	ClearDunning(subscriberID uint, clearedAt time.Time) error
	// DueAttempts returns unexecuted attempts due at or before now,
	// oldest first, with Subscriber.Plan.Shop preloaded.
	DueAttempts(now time.Time) ([]models.DunningAttempt, error)
	MarkExecuted(attemptID uint, executedAt time.Time, result string) error
	// CancelSubscriberLocally sets the subscriber cancelled and clears
	// the dunning marker in one update.
	CancelSubscriberLocally(subscriberID uint, at time.Time) error
	SubscribersInDunning(shopID uint) ([]models.Subscriber, error)
	AttemptsForSubscriber(subscriberID uint) ([]models.DunningAttempt, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a dunning repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetSubscriber(id uint) (*models.Subscriber, error) {
	var subscriber models.Subscriber
	if err := r.db.First(&subscriber, id).Error; err != nil {
		return nil, err
	}
	return &subscriber, nil
}

func (r *gormRepository) BeginDunning(subscriberID uint, startedAt time.Time, attempts []models.DunningAttempt) (bool, error) {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		// Conditional update doubles as the re-entrancy guard: two
		// concurrent initiations race on this row and only one wins.
		res := tx.Model(&models.Subscriber{}).
			Where("id = ? AND dunning_started_at IS NULL", subscriberID).
			Update("dunning_started_at", startedAt)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errAlreadyInDunning
		}
		return tx.Create(&attempts).Error
	})
	if errors.Is(err, errAlreadyInDunning) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *gormRepository) ClearDunning(subscriberID uint, clearedAt time.Time) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Subscriber{}).
			Where("id = ?", subscriberID).
			Update("dunning_started_at", nil).Error; err != nil {
			return err
		}
		// Pending attempts become part of the audit trail, not deleted.
		return tx.Model(&models.DunningAttempt{}).
			Where("subscriber_id = ? AND executed_at IS NULL", subscriberID).
			Updates(map[string]interface{}{
				"executed_at": clearedAt,
				"result":      models.DunningResultSkipped,
			}).Error
	})
}

func (r *gormRepository) DueAttempts(now time.Time) ([]models.DunningAttempt, error) {
	var attempts []models.DunningAttempt
	err := r.db.
		Preload("Subscriber").
		Preload("Subscriber.Plan").
		Preload("Subscriber.Plan.Shop").
		Where("executed_at IS NULL AND scheduled_for <= ?", now).
		Order("scheduled_for ASC").
		Find(&attempts).Error
	return attempts, err
}

func (r *gormRepository) MarkExecuted(attemptID uint, executedAt time.Time, result string) error {
	return r.db.Model(&models.DunningAttempt{}).
		Where("id = ?", attemptID).
		Updates(map[string]interface{}{
			"executed_at": executedAt,
			"result":      result,
		}).Error
}

func (r *gormRepository) CancelSubscriberLocally(subscriberID uint, at time.Time) error {
	_ = at
	return r.db.Model(&models.Subscriber{}).
		Where("id = ?", subscriberID).
		Updates(map[string]interface{}{
			"status":             models.SubscriberStatusCancelled,
			"dunning_started_at": nil,
		}).Error
}

func (r *gormRepository) SubscribersInDunning(shopID uint) ([]models.Subscriber, error) {
	var subscribers []models.Subscriber
	err := r.db.
		Preload("Plan").
		Joins("JOIN subscription_plans ON subscription_plans.id = subscribers.plan_id").
		Where("subscription_plans.shop_id = ? AND subscribers.dunning_started_at IS NOT NULL", shopID).
		Order("subscribers.dunning_started_at DESC").
		Find(&subscribers).Error
	return subscribers, err
}

func (r *gormRepository) AttemptsForSubscriber(subscriberID uint) ([]models.DunningAttempt, error) {
	var attempts []models.DunningAttempt
	err := r.db.
		Where("subscriber_id = ?", subscriberID).
		Order("attempt_number ASC").
		Find(&attempts).Error
	return attempts, err
}
