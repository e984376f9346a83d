package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Recurro/app/models"
	"github.com/ManuelReschke/Recurro/internal/pkg/paystack"
	"github.com/ManuelReschke/Recurro/internal/pkg/security"
)

// Service reconciles verified Paystack webhook events into local billing
// state. One handler per event type; unknown events are logged and
// dropped, lookup misses are benign no-ops so the provider never
// retry-storms events this app intentionally ignores.
type Service struct {
	repo     Repository
	dunning  DunningControl
	notifier Notifier
	decrypt  func(string) (string, error)
	now      func() time.Time
}

// NewService creates a reconciler from injected collaborators.
func NewService(repo Repository, dunning DunningControl, notifier Notifier) *Service {
	return &Service{
		repo:     repo,
		dunning:  dunning,
		notifier: notifier,
		decrypt:  security.Decrypt,
		now:      time.Now,
	}
}

// NewServiceFromDB wires the production reconciler from a GORM handle.
func NewServiceFromDB(db *gorm.DB, dunning DunningControl, notifier Notifier) *Service {
	return NewService(NewRepository(db), dunning, notifier)
}

// HandleWebhook authenticates and applies one raw webhook delivery.
// Returns ErrMalformedPayload for invalid JSON and ErrSignatureMismatch
// when no shop's secret reproduces the signature; any other outcome is
// success from the provider's point of view.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signatureHeader string) error {
	event, err := paystack.ParseWebhookEvent(body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	shopID, ok := s.identifyShop(body, signatureHeader)
	if !ok {
		return ErrSignatureMismatch
	}

	return s.applyEvent(ctx, shopID, event)
}

// identifyShop builds the candidate list from every shop holding a
// Paystack secret and scans for the one whose decrypted key signs the
// body. Shops whose ciphertext no longer decrypts are skipped rather
// than failing the whole scan.
func (s *Service) identifyShop(body []byte, signatureHeader string) (uint, bool) {
	shops, err := s.repo.FindShopsWithPaystackKeys()
	if err != nil {
		log.Errorf("[Billing] loading webhook candidates failed: %v", err)
		return 0, false
	}

	candidates := make([]paystack.ShopSecret, 0, len(shops))
	for _, shop := range shops {
		secret, err := s.decrypt(shop.PaystackSecretKey)
		if err != nil {
			log.Warnf("[Billing] shop %d secret key did not decrypt, skipping: %v", shop.ID, err)
			continue
		}
		candidates = append(candidates, paystack.ShopSecret{ShopID: shop.ID, SecretKey: secret})
	}

	return paystack.IdentifyShop(body, signatureHeader, candidates)
}

func (s *Service) applyEvent(ctx context.Context, shopID uint, event *paystack.WebhookEvent) error {
	switch event.Event {
	case paystack.EventChargeSuccess:
		return s.handleChargeSuccess(ctx, shopID, &event.Data)
	case paystack.EventSubscriptionCreate:
		return s.handleSubscriptionCreate(ctx, shopID, &event.Data)
	case paystack.EventSubscriptionNotRenew, paystack.EventSubscriptionDisable:
		return s.handleSubscriptionCancelled(ctx, shopID, &event.Data)
	case paystack.EventInvoicePaymentFailed:
		return s.handleInvoicePaymentFailed(ctx, shopID, &event.Data)
	case paystack.EventInvoiceUpdate:
		return s.handleInvoiceUpdate(shopID, &event.Data)
	default:
		log.Infof("[Billing] shop %d: ignoring unhandled event %q", shopID, event.Event)
		return nil
	}
}

// handleChargeSuccess records the payment and, because a successful
// charge means the subscriber is no longer delinquent, cancels any
// running dunning batch. The invoice's Paystack reference is the natural
// key, so a redelivered event creates nothing new.
func (s *Service) handleChargeSuccess(ctx context.Context, shopID uint, data *paystack.EventData) error {
	plan, ok := s.resolvePlan(shopID, data)
	if !ok {
		// One-off charges on the same Paystack account land here too.
		log.Infof("[Billing] shop %d: charge %s references no local plan, ignoring", shopID, data.Reference)
		return nil
	}

	subscriber, err := s.findOrCreateSubscriber(shopID, plan, data)
	if err != nil {
		return err
	}

	currency := data.Currency
	if currency == "" {
		currency = plan.Currency
	}
	ref := data.Reference
	paidAt := s.now()
	invoice := &models.Invoice{
		SubscriberID: subscriber.ID,
		Amount:       data.Amount,
		Currency:     currency,
		Status:       models.InvoiceStatusPaid,
		PaystackRef:  &ref,
		PaidAt:       &paidAt,
	}
	created, err := s.repo.CreateInvoiceIfNew(invoice)
	if err != nil {
		return fmt.Errorf("recording invoice %s: %w", ref, err)
	}
	if !created {
		log.Infof("[Billing] shop %d: duplicate charge.success for %s", shopID, ref)
	}

	// Idempotent either way; a duplicate delivery must still leave the
	// subscriber out of dunning.
	if err := s.dunning.Cancel(ctx, subscriber.ID); err != nil {
		log.Errorf("[Billing] cancelling dunning for subscriber %d failed: %v", subscriber.ID, err)
	}

	if created {
		s.notify(ctx, shopID, subscriber, "payment_received",
			fmt.Sprintf("Your payment for %s was received. Thank you!", plan.Name))
	}
	return nil
}

func (s *Service) handleSubscriptionCreate(ctx context.Context, shopID uint, data *paystack.EventData) error {
	plan, ok := s.resolvePlan(shopID, data)
	if !ok {
		log.Infof("[Billing] shop %d: subscription.create references unknown plan %q, ignoring", shopID, data.Plan.PlanCode)
		return nil
	}

	subscriber, err := s.findOrCreateSubscriber(shopID, plan, data)
	if err != nil {
		return err
	}

	subscriber.Status = models.SubscriberStatusActive
	if code := data.SubscriptionCodeField(); code != "" {
		subscriber.PaystackSubscriptionCode = code
	}
	if data.Customer.CustomerCode != "" {
		subscriber.PaystackCustomerCode = data.Customer.CustomerCode
	}
	if next, ok := data.ParsedNextPaymentDate(); ok {
		subscriber.NextBillingDate = &next
	}
	if err := s.repo.SaveSubscriber(subscriber); err != nil {
		return fmt.Errorf("activating subscriber %d: %w", subscriber.ID, err)
	}

	s.notify(ctx, shopID, subscriber, "subscription_started",
		fmt.Sprintf("Your subscription to %s is now active.", plan.Name))
	return nil
}

func (s *Service) handleSubscriptionCancelled(ctx context.Context, shopID uint, data *paystack.EventData) error {
	code := data.SubscriptionCodeField()
	subscriber, err := s.repo.FindSubscriberBySubscriptionCode(shopID, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Infof("[Billing] shop %d: cancellation for unknown subscription %q, ignoring", shopID, code)
			return nil
		}
		return err
	}

	// Clearing dunning also skips any still-pending attempts so the
	// cancelled subscriber is never swept again.
	if err := s.dunning.Cancel(ctx, subscriber.ID); err != nil {
		log.Errorf("[Billing] cancelling dunning for subscriber %d failed: %v", subscriber.ID, err)
	}

	subscriber.Status = models.SubscriberStatusCancelled
	subscriber.DunningStartedAt = nil
	if err := s.repo.SaveSubscriber(subscriber); err != nil {
		return fmt.Errorf("cancelling subscriber %d: %w", subscriber.ID, err)
	}

	s.notify(ctx, shopID, subscriber, "subscription_cancelled",
		"Your subscription has been cancelled. You can re-subscribe any time.")
	return nil
}

func (s *Service) handleInvoicePaymentFailed(ctx context.Context, shopID uint, data *paystack.EventData) error {
	code := data.SubscriptionCodeField()
	subscriber, err := s.repo.FindSubscriberBySubscriptionCode(shopID, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Infof("[Billing] shop %d: payment failure for unknown subscription %q, ignoring", shopID, code)
			return nil
		}
		return err
	}

	if err := s.dunning.Initiate(ctx, subscriber.ID); err != nil {
		return fmt.Errorf("initiating dunning for subscriber %d: %w", subscriber.ID, err)
	}

	s.notify(ctx, shopID, subscriber, "payment_failed",
		"We could not collect your subscription payment. We will retry automatically.")
	return nil
}

func (s *Service) handleInvoiceUpdate(shopID uint, data *paystack.EventData) error {
	if data.Reference == "" {
		log.Infof("[Billing] shop %d: invoice.update without reference, ignoring", shopID)
		return nil
	}

	status := models.InvoiceStatusFailed
	var paidAt *time.Time
	if data.Paid {
		status = models.InvoiceStatusPaid
		now := s.now()
		paidAt = &now
	}

	err := s.repo.UpdateInvoiceByRef(data.Reference, status, paidAt)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Infof("[Billing] shop %d: invoice.update for unknown reference %q, ignoring", shopID, data.Reference)
		return nil
	}
	return err
}

// resolvePlan maps the event's plan reference to a local plan, trying
// the Paystack plan code first and falling back to the plan_id this app
// stamps into transaction metadata.
func (s *Service) resolvePlan(shopID uint, data *paystack.EventData) (*models.SubscriptionPlan, bool) {
	if code := strings.TrimSpace(data.Plan.PlanCode); code != "" {
		plan, err := s.repo.FindPlanByPaystackCode(shopID, code)
		if err == nil {
			return plan, true
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Errorf("[Billing] shop %d: plan lookup by code %q failed: %v", shopID, code, err)
			return nil, false
		}
	}

	if raw := data.Metadata.PlanID.String(); raw != "" {
		if id, err := data.Metadata.PlanID.Int64(); err == nil && id > 0 {
			plan, err := s.repo.FindPlanByID(shopID, uint(id))
			if err == nil {
				return plan, true
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				log.Errorf("[Billing] shop %d: plan lookup by id %d failed: %v", shopID, id, err)
			}
		}
	}
	return nil, false
}

func (s *Service) findOrCreateSubscriber(shopID uint, plan *models.SubscriptionPlan, data *paystack.EventData) (*models.Subscriber, error) {
	email := strings.ToLower(strings.TrimSpace(data.Customer.Email))
	if email == "" {
		return nil, fmt.Errorf("event for plan %d carries no customer email", plan.ID)
	}

	subscriber, err := s.repo.FindSubscriberByEmailAndPlan(email, plan.ID)
	if err == nil {
		if s.backfillContact(subscriber, data) {
			if err := s.repo.SaveSubscriber(subscriber); err != nil {
				log.Warnf("[Billing] backfilling subscriber %d failed: %v", subscriber.ID, err)
			}
		}
		return subscriber, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	subscriber = &models.Subscriber{
		PlanID:               plan.ID,
		Email:                email,
		Phone:                data.Metadata.Phone,
		WhatsappOptIn:        data.Metadata.WhatsappOptIn,
		ShopifyCustomerID:    data.Metadata.ShopifyCustomerID,
		Status:               models.SubscriberStatusActive,
		PaystackCustomerCode: data.Customer.CustomerCode,
	}
	if days := data.Metadata.TrialDays; days > 0 {
		trialEnd := s.now().AddDate(0, 0, days)
		subscriber.TrialEndsAt = &trialEnd
	}
	if err := s.repo.CreateSubscriber(subscriber); err != nil {
		return nil, fmt.Errorf("creating subscriber for plan %d: %w", plan.ID, err)
	}
	log.Infof("[Billing] shop %d: created subscriber %d for plan %d", shopID, subscriber.ID, plan.ID)
	return subscriber, nil
}

// backfillContact fills contact fields the storefront collected but an
// earlier event did not carry. Returns true when anything changed.
func (s *Service) backfillContact(subscriber *models.Subscriber, data *paystack.EventData) bool {
	changed := false
	if subscriber.Phone == "" && data.Metadata.Phone != "" {
		subscriber.Phone = data.Metadata.Phone
		changed = true
	}
	if !subscriber.WhatsappOptIn && data.Metadata.WhatsappOptIn {
		subscriber.WhatsappOptIn = true
		changed = true
	}
	if subscriber.ShopifyCustomerID == "" && data.Metadata.ShopifyCustomerID != "" {
		subscriber.ShopifyCustomerID = data.Metadata.ShopifyCustomerID
		changed = true
	}
	if subscriber.PaystackCustomerCode == "" && data.Customer.CustomerCode != "" {
		subscriber.PaystackCustomerCode = data.Customer.CustomerCode
		changed = true
	}
	return changed
}

func (s *Service) notify(ctx context.Context, shopID uint, subscriber *models.Subscriber, template, fallback string) {
	if s.notifier == nil || !subscriber.WhatsappOptIn || subscriber.Phone == "" {
		return
	}
	s.notifier.SendNotification(ctx, shopID, subscriber.ID, subscriber.Phone, template, fallback)
}
