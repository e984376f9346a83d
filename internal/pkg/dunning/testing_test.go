package dunning

import (
	"context"
	"sort"
	"time"

	"github.com/ManuelReschke/Recurro/app/models"
	"github.com/ManuelReschke/Recurro/internal/pkg/paystack"
	"gorm.io/gorm"
)

// memoryRepo is an in-memory Repository mirroring the GORM semantics the
// scheduler and executor rely on.
type memoryRepo struct {
	subscribers map[uint]*models.Subscriber
	attempts    []*models.DunningAttempt
	nextID      uint
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{subscribers: make(map[uint]*models.Subscriber), nextID: 1}
}

func (m *memoryRepo) addSubscriber(s *models.Subscriber) *models.Subscriber {
	m.subscribers[s.ID] = s
	return s
}

func (m *memoryRepo) GetSubscriber(id uint) (*models.Subscriber, error) {
	s, ok := m.subscribers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *s
	return &copied, nil
}

func (m *memoryRepo) BeginDunning(subscriberID uint, startedAt time.Time, attempts []models.DunningAttempt) (bool, error) {
	s, ok := m.subscribers[subscriberID]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if s.DunningStartedAt != nil {
		return false, nil
	}
	at := startedAt
	s.DunningStartedAt = &at
	for i := range attempts {
		attempt := attempts[i]
		attempt.ID = m.nextID
		m.nextID++
		m.attempts = append(m.attempts, &attempt)
	}
	return true, nil
}

func (m *memoryRepo) ClearDunning(subscriberID uint, clearedAt time.Time) error {
	if s, ok := m.subscribers[subscriberID]; ok {
		s.DunningStartedAt = nil
	}
	for _, attempt := range m.attempts {
		if attempt.SubscriberID == subscriberID && attempt.ExecutedAt == nil {
			at := clearedAt
			result := models.DunningResultSkipped
			attempt.ExecutedAt = &at
			attempt.Result = &result
		}
	}
	return nil
}

func (m *memoryRepo) DueAttempts(now time.Time) ([]models.DunningAttempt, error) {
	var due []models.DunningAttempt
	for _, attempt := range m.attempts {
		if attempt.ExecutedAt != nil || attempt.ScheduledFor.After(now) {
			continue
		}
		copied := *attempt
		if s, ok := m.subscribers[attempt.SubscriberID]; ok {
			copied.Subscriber = *s
		}
		due = append(due, copied)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledFor.Before(due[j].ScheduledFor) })
	return due, nil
}

func (m *memoryRepo) MarkExecuted(attemptID uint, executedAt time.Time, result string) error {
	for _, attempt := range m.attempts {
		if attempt.ID == attemptID {
			at := executedAt
			r := result
			attempt.ExecutedAt = &at
			attempt.Result = &r
		}
	}
	return nil
}

func (m *memoryRepo) CancelSubscriberLocally(subscriberID uint, at time.Time) error {
	if s, ok := m.subscribers[subscriberID]; ok {
		s.Status = models.SubscriberStatusCancelled
		s.DunningStartedAt = nil
	}
	return nil
}

func (m *memoryRepo) SubscribersInDunning(shopID uint) ([]models.Subscriber, error) {
	var out []models.Subscriber
	for _, s := range m.subscribers {
		if s.Plan.ShopID == shopID && s.DunningStartedAt != nil {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memoryRepo) AttemptsForSubscriber(subscriberID uint) ([]models.DunningAttempt, error) {
	var out []models.DunningAttempt
	for _, attempt := range m.attempts {
		if attempt.SubscriberID == subscriberID {
			out = append(out, *attempt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber < out[j].AttemptNumber })
	return out, nil
}

func (m *memoryRepo) pendingFor(subscriberID uint) []*models.DunningAttempt {
	var out []*models.DunningAttempt
	for _, attempt := range m.attempts {
		if attempt.SubscriberID == subscriberID && attempt.ExecutedAt == nil {
			out = append(out, attempt)
		}
	}
	return out
}

// fakeProvider scripts the Paystack surface the executor touches.
type fakeProvider struct {
	customer    *paystack.Customer
	customerErr error
	chargeErr   error
	chargePanic bool
	charges     []paystack.ChargeAuthorizationParams

	subscription    *paystack.Subscription
	subscriptionErr error
	disableErr      error
	disabled        []paystack.SubscriptionToggleParams
}

func (f *fakeProvider) GetCustomer(_ context.Context, _ string) (*paystack.Customer, error) {
	if f.customerErr != nil {
		return nil, f.customerErr
	}
	return f.customer, nil
}

func (f *fakeProvider) GetSubscription(_ context.Context, _ string) (*paystack.Subscription, error) {
	if f.subscriptionErr != nil {
		return nil, f.subscriptionErr
	}
	return f.subscription, nil
}

func (f *fakeProvider) DisableSubscription(_ context.Context, params paystack.SubscriptionToggleParams) error {
	f.disabled = append(f.disabled, params)
	return f.disableErr
}

func (f *fakeProvider) ChargeAuthorization(_ context.Context, params paystack.ChargeAuthorizationParams) (*paystack.ChargeResult, error) {
	if f.chargePanic {
		panic("provider blew up")
	}
	f.charges = append(f.charges, params)
	if f.chargeErr != nil {
		return nil, f.chargeErr
	}
	return &paystack.ChargeResult{Reference: "ref_retry", Status: "success"}, nil
}

type fakeFactory struct {
	provider PaymentProvider
	err      error
}

func (f *fakeFactory) ClientFor(_ *models.Shop) (PaymentProvider, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.provider, nil
}

type recordedNotification struct {
	ShopID       uint
	SubscriberID uint
	Phone        string
	Template     string
	Fallback     string
}

type fakeNotifier struct {
	sent []recordedNotification
	fail bool
}

func (f *fakeNotifier) SendNotification(_ context.Context, shopID, subscriberID uint, phone, templateName, fallbackText string) bool {
	f.sent = append(f.sent, recordedNotification{shopID, subscriberID, phone, templateName, fallbackText})
	return !f.fail
}
