package models

import "time"

const (
	DunningActionNotify       = "notify"
	DunningActionRetry        = "retry"
	DunningActionRemind       = "remind"
	DunningActionFinalWarning = "final_warning"
	DunningActionCancel       = "cancel"
)

const (
	DunningResultSuccess = "success"
	DunningResultFailed  = "failed"
	DunningResultSkipped = "skipped"
	DunningResultError   = "error"
)

// DunningAttempt is one step of a subscriber's recovery batch. The whole
// batch is created atomically when dunning starts; attempts transition
// from pending (ExecutedAt null) to executed exactly once and are never
// deleted, so the batch doubles as the recovery audit trail.
type DunningAttempt struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	SubscriberID  uint       `gorm:"not null;index" json:"subscriber_id"`
	Subscriber    Subscriber `gorm:"foreignKey:SubscriberID" json:"-"`
	AttemptNumber int        `gorm:"not null" json:"attempt_number"`
	ScheduledFor  time.Time  `gorm:"not null;index" json:"scheduled_for"`
	Action        string     `gorm:"type:varchar(20);not null" json:"action"`
	ExecutedAt    *time.Time `gorm:"type:timestamp;default:null;index" json:"executed_at,omitempty"`
	Result        *string    `gorm:"type:varchar(20);default:null" json:"result,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Pending reports whether the attempt has not been processed yet.
func (a *DunningAttempt) Pending() bool {
	return a.ExecutedAt == nil
}
