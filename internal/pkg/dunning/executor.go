package dunning

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ManuelReschke/Recurro/app/models"
	"github.com/ManuelReschke/Recurro/internal/pkg/cache"
	"github.com/ManuelReschke/Recurro/internal/pkg/paystack"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// ErrSweepInProgress is returned when a sweep is skipped because another
// one is still running (locally or on another instance).
var ErrSweepInProgress = errors.New("dunning sweep already in progress")

const (
	sweepLeaseKey = "dunning:sweep:lease"
	sweepLeaseTTL = 10 * time.Minute

	providerCallTimeout = 15 * time.Second
	notifyCallTimeout   = 10 * time.Second
)

// Lease is a best-effort distributed single-flight guard for the sweep.
type Lease interface {
	Acquire(key string, ttl time.Duration) (bool, error)
	Release(key string) error
}

type cacheLease struct{}

func (cacheLease) Acquire(key string, ttl time.Duration) (bool, error) {
	return cache.AcquireLock(key, ttl)
}

func (cacheLease) Release(key string) error {
	return cache.ReleaseLock(key)
}

// Executor is the periodic sweep that processes due attempts. Attempts
// are handled sequentially in scheduled order and each attempt is
// failure-isolated: one bad attempt never aborts the sweep.
type Executor struct {
	repo      Repository
	providers ProviderFactory
	notifier  Notifier
	lease     Lease
	sweeping  atomic.Bool
	now       func() time.Time
}

// NewExecutor creates an executor from injected collaborators. A nil
// lease disables the distributed guard (the process-local one remains).
func NewExecutor(repo Repository, providers ProviderFactory, notifier Notifier, lease Lease) *Executor {
	return &Executor{
		repo:      repo,
		providers: providers,
		notifier:  notifier,
		lease:     lease,
		now:       time.Now,
	}
}

// NewExecutorFromDB wires the production executor: GORM repository,
// Paystack clients per shop, WhatsApp notifier, Redis sweep lease.
func NewExecutorFromDB(db *gorm.DB, notifier Notifier) *Executor {
	return NewExecutor(NewRepository(db), NewPaystackFactory(), notifier, cacheLease{})
}

// ProcessDueAttempts runs one sweep and returns a summary per processed
// attempt. Overlapping invocations are skipped, not queued.
func (e *Executor) ProcessDueAttempts(ctx context.Context) ([]AttemptResult, error) {
	if !e.sweeping.CompareAndSwap(false, true) {
		return nil, ErrSweepInProgress
	}
	defer e.sweeping.Store(false)

	if e.lease != nil {
		acquired, err := e.lease.Acquire(sweepLeaseKey, sweepLeaseTTL)
		if err != nil {
			// Lease backend down: degrade to the process-local guard.
			log.Warnf("[Dunning] sweep lease unavailable, proceeding locally: %v", err)
		} else if !acquired {
			return nil, ErrSweepInProgress
		} else {
			defer func() {
				if err := e.lease.Release(sweepLeaseKey); err != nil {
					log.Warnf("[Dunning] sweep lease release failed: %v", err)
				}
			}()
		}
	}

	attempts, err := e.repo.DueAttempts(e.now())
	if err != nil {
		return nil, fmt.Errorf("load due attempts: %w", err)
	}

	results := make([]AttemptResult, 0, len(attempts))
	for i := range attempts {
		results = append(results, e.processAttempt(ctx, &attempts[i]))
	}
	return results, nil
}

func (e *Executor) processAttempt(ctx context.Context, attempt *models.DunningAttempt) (summary AttemptResult) {
	summary = AttemptResult{ID: attempt.ID, Action: attempt.Action}

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[Dunning] panic processing attempt %d: %v", attempt.ID, r)
			e.markExecuted(attempt.ID, models.DunningResultError)
			summary.Result = models.DunningResultError
		}
	}()

	subscriber := &attempt.Subscriber
	plan := &subscriber.Plan
	shop := &plan.Shop

	switch attempt.Action {
	case models.DunningActionRetry:
		if e.runRetryCharge(ctx, subscriber, plan, shop) {
			e.markExecuted(attempt.ID, models.DunningResultSuccess)
			summary.Result = models.DunningResultSuccess
		} else {
			e.markExecuted(attempt.ID, models.DunningResultFailed)
			summary.Result = models.DunningResultFailed
		}

	case models.DunningActionCancel:
		e.disableRemoteSubscription(ctx, subscriber, shop)
		if err := e.repo.CancelSubscriberLocally(subscriber.ID, e.now()); err != nil {
			log.Errorf("[Dunning] local cancel of subscriber %d failed: %v", subscriber.ID, err)
			e.markExecuted(attempt.ID, models.DunningResultError)
			summary.Result = models.DunningResultError
			return summary
		}
		e.markExecuted(attempt.ID, models.DunningResultSuccess)
		summary.Result = "cancelled"

	default:
		// notify, remind, final_warning: the notification below is the
		// whole action.
		e.markExecuted(attempt.ID, models.DunningResultSuccess)
		summary.Result = "notified"
	}

	e.notifySubscriber(ctx, attempt, subscriber, plan, shop)
	return summary
}

// runRetryCharge attempts an off-session re-charge against the
// subscriber's saved authorization. Any provider failure is this
// attempt's failure, never a sweep failure; later schedule steps stay
// untouched. A successful charge does NOT cancel dunning here: the
// charge.success webhook closes that loop.
func (e *Executor) runRetryCharge(ctx context.Context, subscriber *models.Subscriber, plan *models.SubscriptionPlan, shop *models.Shop) bool {
	if subscriber.PaystackCustomerCode == "" {
		log.Infof("[Dunning] subscriber %d has no customer code, retry failed", subscriber.ID)
		return false
	}

	client, err := e.providers.ClientFor(shop)
	if err != nil {
		log.Warnf("[Dunning] shop %d provider client unavailable: %v", shop.ID, err)
		return false
	}

	callCtx, cancel := context.WithTimeout(ctx, providerCallTimeout)
	defer cancel()

	customer, err := client.GetCustomer(callCtx, subscriber.PaystackCustomerCode)
	if err != nil {
		log.Infof("[Dunning] retry charge lookup failed for subscriber %d: %v", subscriber.ID, err)
		return false
	}
	if len(customer.Authorizations) == 0 {
		log.Infof("[Dunning] subscriber %d has no saved authorization", subscriber.ID)
		return false
	}

	_, err = client.ChargeAuthorization(callCtx, paystack.ChargeAuthorizationParams{
		Email:             subscriber.Email,
		Amount:            plan.Amount,
		AuthorizationCode: customer.Authorizations[0].AuthorizationCode,
		Currency:          plan.Currency,
		Metadata: map[string]any{
			"plan_id":       plan.ID,
			"shop_domain":   shop.ShopDomain,
			"dunning_retry": true,
		},
	})
	if err != nil {
		log.Infof("[Dunning] retry charge failed for subscriber %d: %v", subscriber.ID, err)
		return false
	}
	return true
}

// disableRemoteSubscription turns off the Paystack subscription before
// the local cancel. Best-effort: the provider needs an email token from
// the subscription object, and any failure here must not block the local
// cancellation.
func (e *Executor) disableRemoteSubscription(ctx context.Context, subscriber *models.Subscriber, shop *models.Shop) {
	if subscriber.PaystackSubscriptionCode == "" {
		return
	}

	client, err := e.providers.ClientFor(shop)
	if err != nil {
		log.Warnf("[Dunning] shop %d provider client unavailable: %v", shop.ID, err)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, providerCallTimeout)
	defer cancel()

	remote, err := client.GetSubscription(callCtx, subscriber.PaystackSubscriptionCode)
	if err != nil {
		log.Warnf("[Dunning] remote subscription lookup failed for subscriber %d: %v", subscriber.ID, err)
		return
	}
	if remote.EmailToken == "" {
		return
	}

	err = client.DisableSubscription(callCtx, paystack.SubscriptionToggleParams{
		Code:  subscriber.PaystackSubscriptionCode,
		Token: remote.EmailToken,
	})
	if err != nil {
		log.Warnf("[Dunning] remote disable failed for subscriber %d: %v", subscriber.ID, err)
	}
}

func (e *Executor) notifySubscriber(ctx context.Context, attempt *models.DunningAttempt, subscriber *models.Subscriber, plan *models.SubscriptionPlan, shop *models.Shop) {
	if e.notifier == nil || !subscriber.WhatsappOptIn || subscriber.Phone == "" {
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, notifyCallTimeout)
	defer cancel()

	template := "dunning_" + attempt.Action
	e.notifier.SendNotification(callCtx, shop.ID, subscriber.ID, subscriber.Phone, template, DescribeAction(attempt.Action, plan.Name))
}

func (e *Executor) markExecuted(attemptID uint, result string) {
	if err := e.repo.MarkExecuted(attemptID, e.now(), result); err != nil {
		log.Errorf("[Dunning] marking attempt %d %s failed: %v", attemptID, result, err)
	}
}
