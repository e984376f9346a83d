package billing

import (
	"context"
	"errors"
)

// ErrMalformedPayload is returned when the webhook body is not valid
// JSON. The HTTP layer maps it to a 400.
var ErrMalformedPayload = errors.New("malformed webhook payload")

// ErrSignatureMismatch is returned when no registered shop's secret
// reproduces the webhook signature. The HTTP layer maps it to a 401.
var ErrSignatureMismatch = errors.New("webhook signature does not match any shop")

// DunningControl is the slice of the dunning scheduler the reconciler
// drives: start recovery on payment failure, stop it when payment lands.
type DunningControl interface {
	Initiate(ctx context.Context, subscriberID uint) error
	Cancel(ctx context.Context, subscriberID uint) error
}

// Notifier sends a best-effort customer message. Failures never bubble
// into the reconciliation outcome.
type Notifier interface {
	SendNotification(ctx context.Context, shopID, subscriberID uint, phone, templateName, fallbackText string) bool
}
