package models

import "time"

const (
	WhatsAppMessageStatusSent   = "sent"
	WhatsAppMessageStatusFailed = "failed"
)

// WhatsAppMessage is a delivery log row. One row is written per send
// attempt regardless of outcome.
type WhatsAppMessage struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SubscriberID uint      `gorm:"not null;index" json:"subscriber_id"`
	TemplateName string    `gorm:"type:varchar(100);not null" json:"template_name"`
	Status       string    `gorm:"type:varchar(20);not null;default:'sent'" json:"status"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
