package paystack

import (
	"encoding/json"
	"strings"
	"time"
)

// Webhook event types handled by the reconciler. Anything else is logged
// and ignored.
const (
	EventChargeSuccess        = "charge.success"
	EventSubscriptionCreate   = "subscription.create"
	EventSubscriptionNotRenew = "subscription.not_renew"
	EventSubscriptionDisable  = "subscription.disable"
	EventInvoicePaymentFailed = "invoice.payment_failed"
	EventInvoiceUpdate        = "invoice.update"
)

// WebhookEvent is the outer envelope of every Paystack webhook delivery.
type WebhookEvent struct {
	Event string    `json:"event"`
	Data  EventData `json:"data"`
}

// EventData is a union of the fields the handled event families carry.
// Paystack nests differently per event type; absent fields stay zero.
type EventData struct {
	Reference        string            `json:"reference"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	Paid             bool              `json:"paid"`
	SubscriptionCode string            `json:"subscription_code"`
	NextPaymentDate  string            `json:"next_payment_date"`
	Customer         EventCustomer     `json:"customer"`
	Plan             EventPlan         `json:"plan"`
	Subscription     EventSubscription `json:"subscription"`
	Metadata         EventMetadata     `json:"metadata"`
}

type EventCustomer struct {
	Email        string `json:"email"`
	CustomerCode string `json:"customer_code"`
}

type EventPlan struct {
	PlanCode string `json:"plan_code"`
}

type EventSubscription struct {
	SubscriptionCode string `json:"subscription_code"`
}

// EventMetadata carries the fields this app attaches when initializing
// transactions from the storefront widget.
type EventMetadata struct {
	ShopifyCustomerID string      `json:"shopify_customer_id"`
	Phone             string      `json:"phone"`
	WhatsappOptIn     bool        `json:"whatsapp_opt_in"`
	TrialDays         int         `json:"trial_days"`
	DunningRetry      bool        `json:"dunning_retry"`
	PlanID            json.Number `json:"plan_id"`
}

// ParseWebhookEvent decodes a raw webhook body into the envelope.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, err
	}
	event.Event = strings.TrimSpace(event.Event)
	return &event, nil
}

// SubscriptionCodeField returns the subscription code regardless of
// whether the event nests it (invoice.*) or carries it top-level
// (subscription.*).
func (d *EventData) SubscriptionCodeField() string {
	if d.SubscriptionCode != "" {
		return d.SubscriptionCode
	}
	return d.Subscription.SubscriptionCode
}

// ParsedNextPaymentDate parses the provider's ISO-8601 next payment date;
// the bool is false when absent or malformed.
func (d *EventData) ParsedNextPaymentDate() (time.Time, bool) {
	raw := strings.TrimSpace(d.NextPaymentDate)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000Z", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
