package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Recurro/app/models"
)

type memoryRepo struct {
	shops       []models.Shop
	plans       []*models.SubscriptionPlan
	subscribers []*models.Subscriber
	invoices    map[string]*models.Invoice
	nextID      uint

	writes int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{invoices: map[string]*models.Invoice{}, nextID: 1}
}

func (m *memoryRepo) FindShopsWithPaystackKeys() ([]models.Shop, error) {
	var out []models.Shop
	for _, shop := range m.shops {
		if shop.PaystackSecretKey != "" {
			out = append(out, shop)
		}
	}
	return out, nil
}

func (m *memoryRepo) FindPlanByID(shopID, planID uint) (*models.SubscriptionPlan, error) {
	for _, plan := range m.plans {
		if plan.ID == planID && plan.ShopID == shopID {
			return plan, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryRepo) FindPlanByPaystackCode(shopID uint, planCode string) (*models.SubscriptionPlan, error) {
	for _, plan := range m.plans {
		if plan.ShopID == shopID && plan.PaystackPlanCode == planCode {
			return plan, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryRepo) FindSubscriberByEmailAndPlan(email string, planID uint) (*models.Subscriber, error) {
	for _, s := range m.subscribers {
		if s.Email == email && s.PlanID == planID {
			return s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryRepo) FindSubscriberBySubscriptionCode(shopID uint, code string) (*models.Subscriber, error) {
	if code == "" {
		return nil, gorm.ErrRecordNotFound
	}
	for _, s := range m.subscribers {
		if s.PaystackSubscriptionCode != code {
			continue
		}
		if plan, err := m.FindPlanByID(shopID, s.PlanID); err == nil && plan.ShopID == shopID {
			return s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryRepo) CreateSubscriber(subscriber *models.Subscriber) error {
	subscriber.ID = m.nextID
	m.nextID++
	m.subscribers = append(m.subscribers, subscriber)
	m.writes++
	return nil
}

func (m *memoryRepo) SaveSubscriber(subscriber *models.Subscriber) error {
	m.writes++
	return nil
}

func (m *memoryRepo) CreateInvoiceIfNew(invoice *models.Invoice) (bool, error) {
	if invoice.PaystackRef != nil {
		if _, exists := m.invoices[*invoice.PaystackRef]; exists {
			return false, nil
		}
	}
	invoice.ID = m.nextID
	m.nextID++
	if invoice.PaystackRef != nil {
		m.invoices[*invoice.PaystackRef] = invoice
	}
	m.writes++
	return true, nil
}

func (m *memoryRepo) UpdateInvoiceByRef(ref, status string, paidAt *time.Time) error {
	invoice, ok := m.invoices[ref]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	invoice.Status = status
	invoice.PaidAt = paidAt
	m.writes++
	return nil
}

type fakeDunning struct {
	initiated []uint
	cancelled []uint
}

func (f *fakeDunning) Initiate(_ context.Context, id uint) error {
	f.initiated = append(f.initiated, id)
	return nil
}

func (f *fakeDunning) Cancel(_ context.Context, id uint) error {
	f.cancelled = append(f.cancelled, id)
	return nil
}

type sentMessage struct {
	ShopID       uint
	SubscriberID uint
	Template     string
}

type fakeNotifier struct {
	sent []sentMessage
}

func (f *fakeNotifier) SendNotification(_ context.Context, shopID, subscriberID uint, _, template, _ string) bool {
	f.sent = append(f.sent, sentMessage{shopID, subscriberID, template})
	return true
}

func sign(body []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// newTestService wires a reconciler over the in-memory repo with an
// identity decrypt, so fixture shops can store plain secrets.
func newTestService(repo *memoryRepo) (*Service, *fakeDunning, *fakeNotifier) {
	dunning := &fakeDunning{}
	notifier := &fakeNotifier{}
	svc := NewService(repo, dunning, notifier)
	svc.decrypt = func(s string) (string, error) { return s, nil }
	return svc, dunning, notifier
}

func fixtureRepo() *memoryRepo {
	repo := newMemoryRepo()
	repo.shops = []models.Shop{
		{ID: 1, ShopDomain: "alpha.myshopify.com", PaystackSecretKey: "sk_alpha"},
		{ID: 2, ShopDomain: "beta.myshopify.com", PaystackSecretKey: "sk_beta"},
	}
	repo.plans = []*models.SubscriptionPlan{
		{ID: 10, ShopID: 1, Name: "Gold Box", Amount: 250000, Currency: "NGN", PaystackPlanCode: "PLN_gold"},
	}
	return repo
}

func addSubscriber(repo *memoryRepo, s models.Subscriber) *models.Subscriber {
	s.ID = repo.nextID
	repo.nextID++
	copied := s
	repo.subscribers = append(repo.subscribers, &copied)
	return &copied
}

func TestChargeSuccessCreatesInvoiceAndCancelsDunning(t *testing.T) {
	repo := fixtureRepo()
	started := time.Now().AddDate(0, 0, -3)
	subscriber := addSubscriber(repo, models.Subscriber{
		PlanID:           10,
		Email:            "ada@example.com",
		Phone:            "+2348000000",
		WhatsappOptIn:    true,
		Status:           models.SubscriberStatusActive,
		DunningStartedAt: &started,
	})
	svc, dunning, notifier := newTestService(repo)

	body := []byte(`{"event":"charge.success","data":{"reference":"ref_1","amount":250000,"currency":"NGN","customer":{"email":"ada@example.com","customer_code":"CUS_1"},"plan":{"plan_code":"PLN_gold"}}}`)
	err := svc.HandleWebhook(context.Background(), body, sign(body, "sk_alpha"))
	require.NoError(t, err)

	invoice := repo.invoices["ref_1"]
	require.NotNil(t, invoice)
	assert.Equal(t, subscriber.ID, invoice.SubscriberID)
	assert.Equal(t, models.InvoiceStatusPaid, invoice.Status)
	assert.Equal(t, int64(250000), invoice.Amount)
	require.NotNil(t, invoice.PaidAt)

	assert.Equal(t, []uint{subscriber.ID}, dunning.cancelled)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "payment_received", notifier.sent[0].Template)
}

func TestChargeSuccessIsIdempotentByReference(t *testing.T) {
	repo := fixtureRepo()
	addSubscriber(repo, models.Subscriber{PlanID: 10, Email: "ada@example.com"})
	svc, dunning, notifier := newTestService(repo)

	body := []byte(`{"event":"charge.success","data":{"reference":"ref_dup","amount":250000,"customer":{"email":"ada@example.com"},"plan":{"plan_code":"PLN_gold"}}}`)
	sig := sign(body, "sk_alpha")

	require.NoError(t, svc.HandleWebhook(context.Background(), body, sig))
	require.NoError(t, svc.HandleWebhook(context.Background(), body, sig))

	assert.Len(t, repo.invoices, 1)
	assert.Len(t, dunning.cancelled, 2, "dunning cancel stays idempotent across redeliveries")
	assert.Empty(t, notifier.sent, "no opt-in, no messages")
}

func TestChargeSuccessCreatesMissingSubscriber(t *testing.T) {
	repo := fixtureRepo()
	svc, _, _ := newTestService(repo)

	body := []byte(`{"event":"charge.success","data":{"reference":"ref_new","amount":250000,"customer":{"email":"New@Example.com","customer_code":"CUS_9"},"plan":{"plan_code":"PLN_gold"},"metadata":{"phone":"+2347000000","whatsapp_opt_in":true,"shopify_customer_id":"gid://shopify/Customer/7"}}}`)
	require.NoError(t, svc.HandleWebhook(context.Background(), body, sign(body, "sk_alpha")))

	require.Len(t, repo.subscribers, 1)
	created := repo.subscribers[0]
	assert.Equal(t, "new@example.com", created.Email, "emails are normalized")
	assert.Equal(t, uint(10), created.PlanID)
	assert.Equal(t, "+2347000000", created.Phone)
	assert.True(t, created.WhatsappOptIn)
	assert.Equal(t, "CUS_9", created.PaystackCustomerCode)
	assert.Equal(t, "gid://shopify/Customer/7", created.ShopifyCustomerID)
}

func TestChargeSuccessWithTrialDaysSetsTrialEnd(t *testing.T) {
	repo := fixtureRepo()
	svc, _, _ := newTestService(repo)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	body := []byte(`{"event":"charge.success","data":{"reference":"ref_trial","amount":250000,"customer":{"email":"trial@example.com"},"plan":{"plan_code":"PLN_gold"},"metadata":{"trial_days":14}}}`)
	require.NoError(t, svc.HandleWebhook(context.Background(), body, sign(body, "sk_alpha")))

	require.Len(t, repo.subscribers, 1)
	created := repo.subscribers[0]
	require.NotNil(t, created.TrialEndsAt)
	assert.Equal(t, now.AddDate(0, 0, 14), *created.TrialEndsAt)

	// An existing subscriber never gets a trial window retrofitted.
	body2 := []byte(`{"event":"charge.success","data":{"reference":"ref_trial_2","amount":250000,"customer":{"email":"trial@example.com"},"plan":{"plan_code":"PLN_gold"},"metadata":{"trial_days":30}}}`)
	require.NoError(t, svc.HandleWebhook(context.Background(), body2, sign(body2, "sk_alpha")))
	require.Len(t, repo.subscribers, 1)
	assert.Equal(t, now.AddDate(0, 0, 14), *repo.subscribers[0].TrialEndsAt)
}

func TestChargeSuccessForUnknownPlanIsIgnored(t *testing.T) {
	repo := fixtureRepo()
	svc, dunning, _ := newTestService(repo)

	body := []byte(`{"event":"charge.success","data":{"reference":"ref_x","amount":1000,"customer":{"email":"ada@example.com"},"plan":{"plan_code":"PLN_other_product"}}}`)
	require.NoError(t, svc.HandleWebhook(context.Background(), body, sign(body, "sk_alpha")))

	assert.Empty(t, repo.invoices)
	assert.Empty(t, repo.subscribers)
	assert.Empty(t, dunning.cancelled)
}

func TestChargeSuccessResolvesPlanFromMetadata(t *testing.T) {
	repo := fixtureRepo()
	svc, _, _ := newTestService(repo)

	// No plan code on the event, only the plan_id this app stamps into
	// transaction metadata.
	body := []byte(`{"event":"charge.success","data":{"reference":"ref_meta","amount":250000,"customer":{"email":"ada@example.com"},"metadata":{"plan_id":10}}}`)
	require.NoError(t, svc.HandleWebhook(context.Background(), body, sign(body, "sk_alpha")))

	require.NotNil(t, repo.invoices["ref_meta"])
}

func TestSubscriptionCreateActivatesSubscriber(t *testing.T) {
	repo := fixtureRepo()
	subscriber := addSubscriber(repo, models.Subscriber{PlanID: 10, Email: "ada@example.com", Status: models.SubscriberStatusTrial})
	svc, _, _ := newTestService(repo)

	body := []byte(`{"event":"subscription.create","data":{"subscription_code":"SUB_1","next_payment_date":"2026-10-01T00:00:00Z","customer":{"email":"ada@example.com","customer_code":"CUS_1"},"plan":{"plan_code":"PLN_gold"}}}`)
	require.NoError(t, svc.HandleWebhook(context.Background(), body, sign(body, "sk_alpha")))

	assert.Equal(t, models.SubscriberStatusActive, subscriber.Status)
	assert.Equal(t, "SUB_1", subscriber.PaystackSubscriptionCode)
	assert.Equal(t, "CUS_1", subscriber.PaystackCustomerCode)
	require.NotNil(t, subscriber.NextBillingDate)
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), subscriber.NextBillingDate.UTC())
}

func TestSubscriptionDisableCancelsSubscriber(t *testing.T) {
	repo := fixtureRepo()
	started := time.Now()
	subscriber := addSubscriber(repo, models.Subscriber{
		PlanID:                   10,
		Email:                    "ada@example.com",
		Status:                   models.SubscriberStatusActive,
		PaystackSubscriptionCode: "SUB_1",
		DunningStartedAt:         &started,
	})
	svc, dunning, _ := newTestService(repo)

	body := []byte(`{"event":"subscription.disable","data":{"subscription":{"subscription_code":"SUB_1"}}}`)
	require.NoError(t, svc.HandleWebhook(context.Background(), body, sign(body, "sk_alpha")))

	assert.Equal(t, models.SubscriberStatusCancelled, subscriber.Status)
	assert.Nil(t, subscriber.DunningStartedAt)
	assert.Equal(t, []uint{subscriber.ID}, dunning.cancelled)
}

func TestPaymentFailedInitiatesDunning(t *testing.T) {
	repo := fixtureRepo()
	subscriber := addSubscriber(repo, models.Subscriber{
		PlanID:                   10,
		Email:                    "ada@example.com",
		Phone:                    "+2348000000",
		WhatsappOptIn:            true,
		Status:                   models.SubscriberStatusActive,
		PaystackSubscriptionCode: "SUB_1",
	})
	svc, dunning, notifier := newTestService(repo)

	body := []byte(`{"event":"invoice.payment_failed","data":{"subscription":{"subscription_code":"SUB_1"}}}`)
	require.NoError(t, svc.HandleWebhook(context.Background(), body, sign(body, "sk_alpha")))

	assert.Equal(t, []uint{subscriber.ID}, dunning.initiated)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "payment_failed", notifier.sent[0].Template)
}

func TestPaymentFailedForUnknownSubscriptionIsIgnored(t *testing.T) {
	repo := fixtureRepo()
	svc, dunning, _ := newTestService(repo)

	body := []byte(`{"event":"invoice.payment_failed","data":{"subscription":{"subscription_code":"SUB_ghost"}}}`)
	require.NoError(t, svc.HandleWebhook(context.Background(), body, sign(body, "sk_alpha")))

	assert.Empty(t, dunning.initiated)
}

func TestInvoiceUpdateMarksPaidAndFailed(t *testing.T) {
	repo := fixtureRepo()
	ref := "ref_inv"
	repo.invoices[ref] = &models.Invoice{ID: 99, SubscriberID: 1, Status: models.InvoiceStatusPending, PaystackRef: &ref}
	svc, _, _ := newTestService(repo)

	body := []byte(`{"event":"invoice.update","data":{"reference":"ref_inv","paid":true}}`)
	require.NoError(t, svc.HandleWebhook(context.Background(), body, sign(body, "sk_alpha")))
	assert.Equal(t, models.InvoiceStatusPaid, repo.invoices[ref].Status)
	assert.NotNil(t, repo.invoices[ref].PaidAt)

	body = []byte(`{"event":"invoice.update","data":{"reference":"ref_inv","paid":false}}`)
	require.NoError(t, svc.HandleWebhook(context.Background(), body, sign(body, "sk_alpha")))
	assert.Equal(t, models.InvoiceStatusFailed, repo.invoices[ref].Status)
	assert.Nil(t, repo.invoices[ref].PaidAt)
}

func TestInvoiceUpdateForUnknownReferenceIsBenign(t *testing.T) {
	repo := fixtureRepo()
	svc, _, _ := newTestService(repo)

	body := []byte(`{"event":"invoice.update","data":{"reference":"ref_ghost","paid":true}}`)
	assert.NoError(t, svc.HandleWebhook(context.Background(), body, sign(body, "sk_alpha")))
}

func TestUnknownEventTypeIsIgnored(t *testing.T) {
	repo := fixtureRepo()
	svc, dunning, _ := newTestService(repo)

	body := []byte(`{"event":"transfer.success","data":{"reference":"tr_1"}}`)
	require.NoError(t, svc.HandleWebhook(context.Background(), body, sign(body, "sk_alpha")))

	assert.Empty(t, dunning.initiated)
	assert.Empty(t, dunning.cancelled)
	assert.Zero(t, repo.writes)
}

func TestSignatureMismatchRejectsWithoutWrites(t *testing.T) {
	repo := fixtureRepo()
	repo.shops = append(repo.shops, models.Shop{ID: 3, ShopDomain: "gamma.myshopify.com", PaystackSecretKey: "sk_gamma"})
	svc, dunning, _ := newTestService(repo)

	body := []byte(`{"event":"charge.success","data":{"reference":"ref_1","customer":{"email":"ada@example.com"},"plan":{"plan_code":"PLN_gold"}}}`)
	err := svc.HandleWebhook(context.Background(), body, sign(body, "sk_unregistered"))

	assert.ErrorIs(t, err, ErrSignatureMismatch)
	assert.Zero(t, repo.writes, "an unauthenticated event must not touch the database")
	assert.Empty(t, dunning.cancelled)
}

func TestMalformedBodyRejectedBeforeSignatureScan(t *testing.T) {
	repo := fixtureRepo()
	svc, _, _ := newTestService(repo)

	body := []byte(`{"event": "charge.success", "data": {`)
	err := svc.HandleWebhook(context.Background(), body, sign(body, "sk_alpha"))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestShopWithUndecryptableSecretIsSkipped(t *testing.T) {
	repo := fixtureRepo()
	svc, _, _ := newTestService(repo)
	svc.decrypt = func(s string) (string, error) {
		if s == "sk_alpha" {
			return "", errors.New("cipher: message authentication failed")
		}
		return s, nil
	}

	body := []byte(`{"event":"transfer.success","data":{}}`)
	// Beta still authenticates even though alpha's secret is corrupt.
	assert.NoError(t, svc.HandleWebhook(context.Background(), body, sign(body, "sk_beta")))
	// Alpha's own signature can no longer be verified.
	assert.ErrorIs(t, svc.HandleWebhook(context.Background(), body, sign(body, "sk_alpha")), ErrSignatureMismatch)
}
