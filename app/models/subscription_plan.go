package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	PlanIntervalDaily     = "daily"
	PlanIntervalWeekly    = "weekly"
	PlanIntervalMonthly   = "monthly"
	PlanIntervalQuarterly = "quarterly"
	PlanIntervalAnnually  = "annually"
)

// SubscriptionPlan belongs to exactly one shop. Amount is in currency
// subunits (kobo/cents). PaystackPlanCode is only set after the plan was
// successfully pushed to Paystack; plans are never hard-deleted so invoice
// and subscriber history stays intact.
type SubscriptionPlan struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	ShopID           uint      `gorm:"not null;index" json:"shop_id"`
	Shop             Shop      `gorm:"foreignKey:ShopID" json:"-"`
	Name             string    `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=2,max=150"`
	Description      string    `gorm:"type:text" json:"description" validate:"max=2000"`
	Amount           int64     `gorm:"not null" json:"amount" validate:"required,gt=0"`
	Currency         string    `gorm:"type:varchar(10);not null;default:'NGN'" json:"currency" validate:"required,len=3"`
	Interval         string    `gorm:"type:varchar(20);not null;default:'monthly'" json:"interval" validate:"oneof=daily weekly monthly quarterly annually"`
	TrialDays        int       `gorm:"not null;default:0" json:"trial_days" validate:"gte=0,lte=365"`
	PaystackPlanCode string    `gorm:"type:varchar(100);default:'';index" json:"paystack_plan_code"`
	Active           bool      `gorm:"default:true;index" json:"active"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *SubscriptionPlan) Validate() error {
	v := validator.New()

	return v.Struct(p)
}
