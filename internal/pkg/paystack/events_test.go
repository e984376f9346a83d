package paystack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWebhookEventChargeSuccess(t *testing.T) {
	raw := []byte(`{
		"event": "charge.success",
		"data": {
			"reference": "ref_abc",
			"amount": 250000,
			"currency": "NGN",
			"customer": { "email": "ada@example.com", "customer_code": "CUS_1" },
			"plan": { "plan_code": "PLN_gold" },
			"metadata": { "phone": "+2348000000", "whatsapp_opt_in": true }
		}
	}`)

	event, err := ParseWebhookEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, EventChargeSuccess, event.Event)
	assert.Equal(t, "ref_abc", event.Data.Reference)
	assert.Equal(t, int64(250000), event.Data.Amount)
	assert.Equal(t, "ada@example.com", event.Data.Customer.Email)
	assert.Equal(t, "PLN_gold", event.Data.Plan.PlanCode)
	assert.True(t, event.Data.Metadata.WhatsappOptIn)
}

func TestParseWebhookEventRejectsMalformedJSON(t *testing.T) {
	_, err := ParseWebhookEvent([]byte(`{"event": "charge.success",`))
	assert.Error(t, err)
}

func TestSubscriptionCodeField(t *testing.T) {
	topLevel := EventData{SubscriptionCode: "SUB_top"}
	nested := EventData{Subscription: EventSubscription{SubscriptionCode: "SUB_nested"}}

	assert.Equal(t, "SUB_top", topLevel.SubscriptionCodeField())
	assert.Equal(t, "SUB_nested", nested.SubscriptionCodeField())
	assert.Equal(t, "", (&EventData{}).SubscriptionCodeField())
}

func TestParsedNextPaymentDate(t *testing.T) {
	d := EventData{NextPaymentDate: "2026-09-30T00:00:00Z"}
	when, ok := d.ParsedNextPaymentDate()
	require.True(t, ok)
	assert.Equal(t, 2026, when.Year())

	_, ok = (&EventData{NextPaymentDate: "soon"}).ParsedNextPaymentDate()
	assert.False(t, ok)
	_, ok = (&EventData{}).ParsedNextPaymentDate()
	assert.False(t, ok)
}
