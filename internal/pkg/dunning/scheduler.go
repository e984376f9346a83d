package dunning

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/Recurro/app/models"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// Scheduler owns the recovery-attempt schedule: it creates the full batch
// when a payment fails and skips pending attempts when payment recovers.
// It is the only writer of the dunning_started_at invariant.
type Scheduler struct {
	repo Repository
	now  func() time.Time
}

// NewScheduler creates a scheduler from an injected repository.
func NewScheduler(repo Repository) *Scheduler {
	return &Scheduler{repo: repo, now: time.Now}
}

// NewSchedulerFromDB creates a scheduler from a GORM DB handle.
func NewSchedulerFromDB(db *gorm.DB) *Scheduler {
	return NewScheduler(NewRepository(db))
}

// Initiate starts the recovery batch for a subscriber. A subscriber
// already in dunning is a silent no-op; an unknown subscriber is logged
// and dropped, since provider events can reference entities outside this
// app's scope.
func (s *Scheduler) Initiate(ctx context.Context, subscriberID uint) error {
	_ = ctx
	subscriber, err := s.repo.GetSubscriber(subscriberID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Infof("[Dunning] initiate for unknown subscriber %d ignored", subscriberID)
			return nil
		}
		return err
	}
	if subscriber.InDunning() {
		return nil
	}

	now := s.now()
	attempts := make([]models.DunningAttempt, 0, len(DefaultSchedule))
	for i, step := range DefaultSchedule {
		attempts = append(attempts, models.DunningAttempt{
			SubscriberID:  subscriberID,
			AttemptNumber: i + 1,
			ScheduledFor:  ScheduledDate(now, step.DayOffset),
			Action:        step.Action,
		})
	}

	created, err := s.repo.BeginDunning(subscriberID, now, attempts)
	if err != nil {
		return err
	}
	if !created {
		// Lost the race against a concurrent initiation.
		return nil
	}
	log.Infof("[Dunning] started recovery for subscriber %d (%d attempts)", subscriberID, len(attempts))
	return nil
}

// Cancel ends recovery: clears the dunning marker and marks all pending
// attempts skipped. Safe to call when the subscriber is not in dunning.
func (s *Scheduler) Cancel(ctx context.Context, subscriberID uint) error {
	_ = ctx
	return s.repo.ClearDunning(subscriberID, s.now())
}

// ManualRetry restarts the full schedule from day 0. Used for
// merchant-triggered recovery.
func (s *Scheduler) ManualRetry(ctx context.Context, subscriberID uint) error {
	if err := s.Cancel(ctx, subscriberID); err != nil {
		return err
	}
	return s.Initiate(ctx, subscriberID)
}
