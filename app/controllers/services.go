package controllers

import (
	"sync"

	"github.com/ManuelReschke/Recurro/app/repository"
	"github.com/ManuelReschke/Recurro/internal/pkg/billing"
	"github.com/ManuelReschke/Recurro/internal/pkg/database"
	"github.com/ManuelReschke/Recurro/internal/pkg/dunning"
	"github.com/ManuelReschke/Recurro/internal/pkg/whatsapp"
)

var (
	servicesOnce    sync.Once
	billingService  *billing.Service
	dunningSched    *dunning.Scheduler
	dunningExecutor *dunning.Executor
)

// initServices wires the core service graph once, on first use. The
// scheduler is shared between the webhook reconciler (initiate/cancel)
// and the manual-retry admin endpoint; the executor gets the same
// notifier so every customer message runs through one delivery log.
func initServices() {
	servicesOnce.Do(func() {
		db := database.GetDB()
		notifier := whatsapp.NewNotifierFromDB(db)
		dunningSched = dunning.NewSchedulerFromDB(db)
		dunningExecutor = dunning.NewExecutorFromDB(db, notifier)
		billingService = billing.NewServiceFromDB(db, dunningSched, notifier)
	})
}

func getBillingService() *billing.Service {
	initServices()
	return billingService
}

func getDunningScheduler() *dunning.Scheduler {
	initServices()
	return dunningSched
}

func getDunningExecutor() *dunning.Executor {
	initServices()
	return dunningExecutor
}

func dunningRepo() dunning.Repository {
	return dunning.NewRepository(database.GetDB())
}

func shopRepo() repository.ShopRepository {
	return repository.GetGlobalFactory().GetShopRepository()
}

func planRepo() repository.PlanRepository {
	return repository.GetGlobalFactory().GetPlanRepository()
}

func subscriberRepo() repository.SubscriberRepository {
	return repository.GetGlobalFactory().GetSubscriberRepository()
}

func invoiceRepo() repository.InvoiceRepository {
	return repository.GetGlobalFactory().GetInvoiceRepository()
}
