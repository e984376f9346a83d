package dunning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ManuelReschke/Recurro/app/models"
	"github.com/ManuelReschke/Recurro/internal/pkg/paystack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dunningFixture(repo *memoryRepo, subscriberID uint, startedAt time.Time) *models.Subscriber {
	shop := models.Shop{ID: 1, ShopDomain: "demo.myshopify.com", PaystackSecretKey: "enc"}
	plan := models.SubscriptionPlan{ID: 2, ShopID: 1, Shop: shop, Name: "Gold Box", Amount: 250000, Currency: "NGN"}
	subscriber := &models.Subscriber{
		ID:                       subscriberID,
		PlanID:                   2,
		Plan:                     plan,
		Email:                    "ada@example.com",
		Phone:                    "+2348000000",
		WhatsappOptIn:            true,
		Status:                   models.SubscriberStatusActive,
		PaystackCustomerCode:     "CUS_1",
		PaystackSubscriptionCode: "SUB_1",
		DunningStartedAt:         &startedAt,
	}
	return repo.addSubscriber(subscriber)
}

func addAttempt(repo *memoryRepo, subscriberID uint, number int, action string, scheduledFor time.Time) *models.DunningAttempt {
	attempt := &models.DunningAttempt{
		ID:            repo.nextID,
		SubscriberID:  subscriberID,
		AttemptNumber: number,
		ScheduledFor:  scheduledFor,
		Action:        action,
	}
	repo.nextID++
	repo.attempts = append(repo.attempts, attempt)
	return attempt
}

func newTestExecutor(repo Repository, provider PaymentProvider, notifier Notifier, now time.Time) *Executor {
	e := NewExecutor(repo, &fakeFactory{provider: provider}, notifier, nil)
	e.now = func() time.Time { return now }
	return e
}

// Scenario: due retry step, provider charge succeeds. The attempt is
// recorded as success but the subscriber stays in dunning; only the
// charge.success webhook cancels the batch. A delayed or lost webhook
// therefore leaves the schedule running against a paid subscriber, which
// is a known risk carried over deliberately.
func TestRetrySuccessDoesNotCancelDunning(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	repo := newMemoryRepo()
	started := now.AddDate(0, 0, -3)
	dunningFixture(repo, 1, started)
	attempt := addAttempt(repo, 1, 2, models.DunningActionRetry, now.Add(-time.Hour))

	provider := &fakeProvider{customer: &paystack.Customer{
		Authorizations: []paystack.Authorization{{AuthorizationCode: "AUTH_1"}},
	}}
	notifier := &fakeNotifier{}
	executor := newTestExecutor(repo, provider, notifier, now)

	results, err := executor.ProcessDueAttempts(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, AttemptResult{ID: attempt.ID, Action: models.DunningActionRetry, Result: models.DunningResultSuccess}, results[0])

	attempts, _ := repo.AttemptsForSubscriber(1)
	require.NotNil(t, attempts[0].ExecutedAt)
	assert.Equal(t, models.DunningResultSuccess, *attempts[0].Result)

	subscriber, _ := repo.GetSubscriber(1)
	assert.NotNil(t, subscriber.DunningStartedAt, "executor must not cancel dunning on retry success")

	require.Len(t, provider.charges, 1)
	assert.Equal(t, int64(250000), provider.charges[0].Amount)
	assert.Equal(t, "AUTH_1", provider.charges[0].AuthorizationCode)
	assert.Equal(t, true, provider.charges[0].Metadata["dunning_retry"])

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "dunning_retry", notifier.sent[0].Template)
}

func TestRetryWithoutAuthorizationFails(t *testing.T) {
	now := time.Now()
	repo := newMemoryRepo()
	dunningFixture(repo, 1, now.AddDate(0, 0, -3))
	addAttempt(repo, 1, 2, models.DunningActionRetry, now.Add(-time.Minute))

	provider := &fakeProvider{customer: &paystack.Customer{}}
	executor := newTestExecutor(repo, provider, &fakeNotifier{}, now)

	results, err := executor.ProcessDueAttempts(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.DunningResultFailed, results[0].Result)
	assert.Empty(t, provider.charges)
}

func TestCancelStepCancelsLocallyEvenWhenProviderFails(t *testing.T) {
	now := time.Now()
	repo := newMemoryRepo()
	dunningFixture(repo, 1, now.AddDate(0, 0, -21))
	attempt := addAttempt(repo, 1, 5, models.DunningActionCancel, now.Add(-time.Minute))

	provider := &fakeProvider{subscriptionErr: errors.New("provider down")}
	notifier := &fakeNotifier{}
	executor := newTestExecutor(repo, provider, notifier, now)

	results, err := executor.ProcessDueAttempts(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "cancelled", results[0].Result)

	subscriber, _ := repo.GetSubscriber(1)
	assert.Equal(t, models.SubscriberStatusCancelled, subscriber.Status)
	assert.Nil(t, subscriber.DunningStartedAt)

	attempts, _ := repo.AttemptsForSubscriber(1)
	require.Equal(t, attempt.ID, attempts[0].ID)
	assert.Equal(t, models.DunningResultSuccess, *attempts[0].Result)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "dunning_cancel", notifier.sent[0].Template)
}

func TestCancelStepDisablesRemoteSubscription(t *testing.T) {
	now := time.Now()
	repo := newMemoryRepo()
	dunningFixture(repo, 1, now.AddDate(0, 0, -21))
	addAttempt(repo, 1, 5, models.DunningActionCancel, now.Add(-time.Minute))

	provider := &fakeProvider{subscription: &paystack.Subscription{EmailToken: "tok_1"}}
	executor := newTestExecutor(repo, provider, &fakeNotifier{}, now)

	_, err := executor.ProcessDueAttempts(context.Background())
	require.NoError(t, err)

	require.Len(t, provider.disabled, 1)
	assert.Equal(t, paystack.SubscriptionToggleParams{Code: "SUB_1", Token: "tok_1"}, provider.disabled[0])
}

func TestNotifyActionsOnlySendNotifications(t *testing.T) {
	now := time.Now()
	repo := newMemoryRepo()
	dunningFixture(repo, 1, now.AddDate(0, 0, -1))
	addAttempt(repo, 1, 1, models.DunningActionNotify, now.Add(-time.Minute))

	provider := &fakeProvider{}
	notifier := &fakeNotifier{}
	executor := newTestExecutor(repo, provider, notifier, now)

	results, err := executor.ProcessDueAttempts(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "notified", results[0].Result)
	assert.Empty(t, provider.charges)
	assert.Empty(t, provider.disabled)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "dunning_notify", notifier.sent[0].Template)
	assert.Contains(t, notifier.sent[0].Fallback, "Gold Box")
}

func TestSweepIsolatesFailuresPerAttempt(t *testing.T) {
	now := time.Now()
	repo := newMemoryRepo()

	// Subscriber 1's retry panics inside the provider; subscriber 2 has a
	// later-due notify step that must still run.
	dunningFixture(repo, 1, now.AddDate(0, 0, -3))
	dunningFixture(repo, 2, now.AddDate(0, 0, -1))

	retry := addAttempt(repo, 1, 2, models.DunningActionRetry, now.Add(-2*time.Hour))
	notify := addAttempt(repo, 2, 1, models.DunningActionNotify, now.Add(-time.Hour))

	provider := &fakeProvider{
		customer:    &paystack.Customer{Authorizations: []paystack.Authorization{{AuthorizationCode: "AUTH_1"}}},
		chargePanic: true,
	}
	executor := newTestExecutor(repo, provider, &fakeNotifier{}, now)

	results, err := executor.ProcessDueAttempts(context.Background())
	require.NoError(t, err, "one broken attempt must not abort the sweep")
	require.Len(t, results, 2)

	assert.Equal(t, retry.ID, results[0].ID, "oldest-due attempt first")
	assert.Equal(t, models.DunningResultError, results[0].Result)
	assert.Equal(t, notify.ID, results[1].ID)
	assert.Equal(t, "notified", results[1].Result)

	attempts, _ := repo.AttemptsForSubscriber(1)
	assert.Equal(t, models.DunningResultError, *attempts[0].Result)
	attempts, _ = repo.AttemptsForSubscriber(2)
	assert.Equal(t, models.DunningResultSuccess, *attempts[0].Result)
}

func TestProviderErrorMarksAttemptFailed(t *testing.T) {
	now := time.Now()
	repo := newMemoryRepo()
	dunningFixture(repo, 1, now.AddDate(0, 0, -3))
	addAttempt(repo, 1, 2, models.DunningActionRetry, now.Add(-time.Minute))
	// A future-dated later step must stay pending.
	final := addAttempt(repo, 1, 5, models.DunningActionCancel, now.AddDate(0, 0, 18))

	provider := &fakeProvider{customerErr: errors.New("timeout")}
	executor := newTestExecutor(repo, provider, &fakeNotifier{}, now)

	results, err := executor.ProcessDueAttempts(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.DunningResultFailed, results[0].Result)

	attempts, _ := repo.AttemptsForSubscriber(1)
	for _, attempt := range attempts {
		if attempt.ID == final.ID {
			assert.Nil(t, attempt.ExecutedAt, "future step must stay pending")
		}
	}
}

func TestNotificationFailureDoesNotChangeResult(t *testing.T) {
	now := time.Now()
	repo := newMemoryRepo()
	dunningFixture(repo, 1, now.AddDate(0, 0, -1))
	addAttempt(repo, 1, 1, models.DunningActionNotify, now.Add(-time.Minute))

	executor := newTestExecutor(repo, &fakeProvider{}, &fakeNotifier{fail: true}, now)

	results, err := executor.ProcessDueAttempts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "notified", results[0].Result)

	attempts, _ := repo.AttemptsForSubscriber(1)
	assert.Equal(t, models.DunningResultSuccess, *attempts[0].Result)
}

func TestOptedOutSubscriberGetsNoNotification(t *testing.T) {
	now := time.Now()
	repo := newMemoryRepo()
	subscriber := dunningFixture(repo, 1, now.AddDate(0, 0, -1))
	subscriber.WhatsappOptIn = false
	addAttempt(repo, 1, 1, models.DunningActionNotify, now.Add(-time.Minute))

	notifier := &fakeNotifier{}
	executor := newTestExecutor(repo, &fakeProvider{}, notifier, now)

	_, err := executor.ProcessDueAttempts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, notifier.sent)
}

type blockedLease struct{}

func (blockedLease) Acquire(string, time.Duration) (bool, error) { return false, nil }
func (blockedLease) Release(string) error                        { return nil }

func TestSweepSkipsWhenLeaseHeldElsewhere(t *testing.T) {
	now := time.Now()
	repo := newMemoryRepo()
	dunningFixture(repo, 1, now.AddDate(0, 0, -1))
	addAttempt(repo, 1, 1, models.DunningActionNotify, now.Add(-time.Minute))

	executor := NewExecutor(repo, &fakeFactory{provider: &fakeProvider{}}, &fakeNotifier{}, blockedLease{})
	executor.now = func() time.Time { return now }

	_, err := executor.ProcessDueAttempts(context.Background())
	assert.ErrorIs(t, err, ErrSweepInProgress)

	attempts, _ := repo.AttemptsForSubscriber(1)
	assert.Nil(t, attempts[0].ExecutedAt, "skipped sweep must not touch attempts")
}

type erroringLease struct{ released bool }

func (e *erroringLease) Acquire(string, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}
func (e *erroringLease) Release(string) error { e.released = true; return nil }

func TestSweepDegradesToLocalGuardWhenLeaseBackendDown(t *testing.T) {
	now := time.Now()
	repo := newMemoryRepo()
	dunningFixture(repo, 1, now.AddDate(0, 0, -1))
	addAttempt(repo, 1, 1, models.DunningActionNotify, now.Add(-time.Minute))

	lease := &erroringLease{}
	executor := NewExecutor(repo, &fakeFactory{provider: &fakeProvider{}}, &fakeNotifier{}, lease)
	executor.now = func() time.Time { return now }

	results, err := executor.ProcessDueAttempts(context.Background())
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.False(t, lease.released, "a lease that was never held must not be released")
}
