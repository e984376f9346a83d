package cron

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/Recurro/internal/pkg/dunning"
	"github.com/ManuelReschke/Recurro/internal/pkg/env"
)

const (
	// defaultSweepMinutes is how often the dunning executor runs when
	// DUNNING_SWEEP_MINUTES is not set.
	defaultSweepMinutes = 60
	// initialDelay gives the HTTP stack and DB pool time to settle
	// before the first sweep after process start.
	initialDelay = time.Minute
)

// sweepInterval resolves the sweep cadence from the environment.
// Anything below one minute is clamped to the default.
func sweepInterval() time.Duration {
	minutes := env.GetEnvInt("DUNNING_SWEEP_MINUTES", defaultSweepMinutes)
	if minutes < 1 {
		minutes = defaultSweepMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// Manager owns the in-process background timers. Currently that is one
// job: the periodic dunning sweep.
type Manager struct {
	executor    *dunning.Executor
	sweepTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global cron manager (singleton). The executor
// must be set via Configure before Start.
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = &Manager{
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// Configure injects the dunning executor the sweep worker drives.
func (m *Manager) Configure(executor *dunning.Executor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executor = executor
}

// Start starts the background timers
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	if m.executor == nil {
		log.Error("[Cron Manager] Not starting: no dunning executor configured")
		return
	}

	// Recreate stop channel for each start cycle so the manager can be
	// restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[Cron Manager] Starting background tasks")

	m.sweepTicker = time.NewTicker(sweepInterval())
	m.wg.Add(1)
	go m.sweepWorker()

	log.Info("[Cron Manager] Started successfully")
}

// Stop stops the background timers and waits for workers to finish
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Cron Manager] Stopping background tasks...")

	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}

	close(m.stopCh)
	m.running = false

	m.wg.Wait()

	log.Info("[Cron Manager] Stopped successfully")
}

// sweepWorker runs the dunning sweep on the hourly ticker, plus one
// delayed run shortly after start so freshly due attempts are not stuck
// for a full interval after a deploy.
func (m *Manager) sweepWorker() {
	defer m.wg.Done()
	log.Infof("[Cron Manager] Started dunning sweep worker (interval: %s)", sweepInterval())

	initial := time.NewTimer(initialDelay)
	defer initial.Stop()

	for {
		select {
		case <-m.stopCh:
			log.Info("[Cron Manager] Dunning sweep worker stopping")
			return
		case <-initial.C:
			m.runSweep()
		case <-m.sweepTicker.C:
			m.runSweep()
		}
	}
}

func (m *Manager) runSweep() {
	results, err := m.executor.ProcessDueAttempts(context.Background())
	if err != nil {
		if errors.Is(err, dunning.ErrSweepInProgress) {
			log.Info("[Cron Manager] Skipping sweep: previous run still in progress")
			return
		}
		log.Errorf("[Cron Manager] Dunning sweep failed: %v", err)
		return
	}
	if len(results) > 0 {
		log.Infof("[Cron Manager] Dunning sweep processed %d attempts", len(results))
	}
}
