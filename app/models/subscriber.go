package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	SubscriberStatusTrial     = "trial"
	SubscriberStatusActive    = "active"
	SubscriberStatusPaused    = "paused"
	SubscriberStatusCancelled = "cancelled"
)

// PortalTokenTTL is how long a freshly issued customer portal session
// token stays valid.
const PortalTokenTTL = 24 * time.Hour

// Subscriber belongs to exactly one plan. DunningStartedAt is non-null
// exactly while the subscriber has unexecuted dunning attempts; the
// dunning scheduler is the only writer of that invariant.
type Subscriber struct {
	ID                       uint             `gorm:"primaryKey" json:"id"`
	PlanID                   uint             `gorm:"not null;index" json:"plan_id"`
	Plan                     SubscriptionPlan `gorm:"foreignKey:PlanID" json:"-"`
	ShopifyCustomerID        string           `gorm:"type:varchar(100);default:''" json:"shopify_customer_id"`
	Email                    string           `gorm:"type:varchar(200);not null;index:idx_subscribers_email_plan,priority:1" json:"email"`
	Phone                    string           `gorm:"type:varchar(30);default:''" json:"phone"`
	WhatsappOptIn            bool             `gorm:"default:false" json:"whatsapp_opt_in"`
	Status                   string           `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	PaystackCustomerCode     string           `gorm:"type:varchar(100);default:''" json:"paystack_customer_code"`
	PaystackSubscriptionCode string           `gorm:"type:varchar(100);default:'';index" json:"paystack_subscription_code"`
	NextBillingDate          *time.Time       `gorm:"type:timestamp;default:null" json:"next_billing_date,omitempty"`
	DunningStartedAt         *time.Time       `gorm:"type:timestamp;default:null;index" json:"dunning_started_at,omitempty"`
	TrialEndsAt              *time.Time       `gorm:"type:timestamp;default:null" json:"trial_ends_at,omitempty"`
	PortalToken              string           `gorm:"type:varchar(100);default:'';index" json:"-"`
	PortalTokenExpiresAt     *time.Time       `gorm:"type:timestamp;default:null" json:"-"`
	CreatedAt                time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// InDunning reports whether the subscriber currently has an active
// recovery batch.
func (s *Subscriber) InDunning() bool {
	return s.DunningStartedAt != nil
}

// IssuePortalToken rotates the single-use customer portal token and
// returns the plaintext value to hand to the customer.
func (s *Subscriber) IssuePortalToken() string {
	token := uuid.NewString()
	expires := time.Now().Add(PortalTokenTTL)
	s.PortalToken = token
	s.PortalTokenExpiresAt = &expires
	return token
}

// ConsumePortalToken validates and invalidates the portal token. A token
// is single-use: a successful validation clears it.
func (s *Subscriber) ConsumePortalToken(token string) bool {
	if token == "" || s.PortalToken == "" || s.PortalToken != token {
		return false
	}
	if s.PortalTokenExpiresAt == nil || time.Now().After(*s.PortalTokenExpiresAt) {
		return false
	}
	s.PortalToken = ""
	s.PortalTokenExpiresAt = nil
	return true
}
