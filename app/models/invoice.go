package models

import "time"

const (
	InvoiceStatusPending = "pending"
	InvoiceStatusPaid    = "paid"
	InvoiceStatusFailed  = "failed"
)

// Invoice records one billing cycle outcome for a subscriber. PaystackRef
// is the provider transaction reference and acts as the natural key for
// webhook correlation: the unique index makes duplicate charge.success
// deliveries a no-op.
type Invoice struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	SubscriberID uint       `gorm:"not null;index" json:"subscriber_id"`
	Subscriber   Subscriber `gorm:"foreignKey:SubscriberID" json:"-"`
	Amount       int64      `gorm:"not null" json:"amount"`
	Currency     string     `gorm:"type:varchar(10);not null;default:'NGN'" json:"currency"`
	Status       string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PaystackRef  *string    `gorm:"type:varchar(100);uniqueIndex" json:"paystack_ref,omitempty"`
	PaidAt       *time.Time `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
