package dunning

import (
	"context"

	"github.com/ManuelReschke/Recurro/app/models"
	"github.com/ManuelReschke/Recurro/internal/pkg/paystack"
	"github.com/ManuelReschke/Recurro/internal/pkg/security"
)

// Notifier is the best-effort notification gateway the executor uses.
// Failures are the implementation's problem; the boolean is advisory.
type Notifier interface {
	SendNotification(ctx context.Context, shopID, subscriberID uint, phone, templateName, fallbackText string) bool
}

// PaymentProvider is the subset of the Paystack API the executor needs.
// *paystack.Client satisfies it.
type PaymentProvider interface {
	GetCustomer(ctx context.Context, emailOrCode string) (*paystack.Customer, error)
	GetSubscription(ctx context.Context, idOrCode string) (*paystack.Subscription, error)
	DisableSubscription(ctx context.Context, params paystack.SubscriptionToggleParams) error
	ChargeAuthorization(ctx context.Context, params paystack.ChargeAuthorizationParams) (*paystack.ChargeResult, error)
}

// ProviderFactory resolves a shop to an authenticated payment client.
type ProviderFactory interface {
	ClientFor(shop *models.Shop) (PaymentProvider, error)
}

// paystackFactory decrypts the shop's secret key and builds a real client.
type paystackFactory struct{}

func NewPaystackFactory() ProviderFactory {
	return paystackFactory{}
}

func (paystackFactory) ClientFor(shop *models.Shop) (PaymentProvider, error) {
	secretKey, err := security.Decrypt(shop.PaystackSecretKey)
	if err != nil {
		return nil, err
	}
	return paystack.NewClient(secretKey), nil
}

// AttemptResult is one line of the sweep summary returned for
// observability.
type AttemptResult struct {
	ID     uint   `json:"id"`
	Action string `json:"action"`
	Result string `json:"result"`
}
