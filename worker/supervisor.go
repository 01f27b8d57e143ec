package worker

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"mailpulse/config"
	"mailpulse/models"
	"mailpulse/utils"
)

// Unit states as reported over the status surface
const (
	StateIdle     = "idle"
	StateScanning = "scanning"
	StateSleeping = "sleeping"
	StateBackoff  = "backoff"
	StateCooldown = "cooldown"
)

// UnitStatus is the externally visible state of one monitoring goroutine
type UnitStatus struct {
	AccountID   uint       `json:"account_id"`
	Email       string     `json:"email"`
	State       string     `json:"state"`
	Failures    int        `json:"failures"`
	LastScanAt  *time.Time `json:"last_scan_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	NextScanAt  *time.Time `json:"next_scan_at,omitempty"`
	LastNewMail int        `json:"last_new_mail"`
}

type unit struct {
	account *models.MailboxAccount
	cancel  context.CancelFunc
	done    chan struct{}

	mu     sync.Mutex
	status UnitStatus
}

func (u *unit) set(fn func(*UnitStatus)) {
	u.mu.Lock()
	fn(&u.status)
	u.mu.Unlock()
}

func (u *unit) snapshot() UnitStatus {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status
}

// Supervisor owns one goroutine per registered account. Accounts are fully
// isolated: a failing or slow mailbox never delays the others.
type Supervisor struct {
	registry *Registry
	scanner  *Scanner
	cfg      config.MonitorConfig
	logger   *log.Logger

	mu      sync.Mutex
	units   map[uint]*unit
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewSupervisor(registry *Registry, scanner *Scanner, cfg config.MonitorConfig, logger *log.Logger) *Supervisor {
	return &Supervisor{
		registry: registry,
		scanner:  scanner,
		cfg:      cfg,
		logger:   logger,
		units:    make(map[uint]*unit),
	}
}

// StartAll launches a monitoring unit for every registered account plus the
// reconciliation loop. It is a no-op when already running.
func (s *Supervisor) StartAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for _, account := range s.registry.List() {
		s.startUnitLocked(ctx, account)
	}

	s.wg.Add(1)
	go s.reconcileLoop(ctx)

	s.logger.Printf("Monitoring started for %d accounts", len(s.units))
}

// StopAll cancels every unit and waits for them to drain
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	units := make([]*unit, 0, len(s.units))
	for _, u := range s.units {
		units = append(units, u)
	}
	s.units = make(map[uint]*unit)
	s.mu.Unlock()

	for _, u := range units {
		<-u.done
	}
	s.wg.Wait()
	s.logger.Println("Monitoring stopped")
}

func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status returns a snapshot of every unit, keyed by account ID
func (s *Supervisor) Status() []UnitStatus {
	s.mu.Lock()
	units := make([]*unit, 0, len(s.units))
	for _, u := range s.units {
		units = append(units, u)
	}
	s.mu.Unlock()

	out := make([]UnitStatus, 0, len(units))
	for _, u := range units {
		out = append(out, u.snapshot())
	}
	return out
}

// caller must hold s.mu
func (s *Supervisor) startUnitLocked(parent context.Context, account *models.MailboxAccount) {
	if _, exists := s.units[account.ID]; exists {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	u := &unit{
		account: account,
		cancel:  cancel,
		done:    make(chan struct{}),
		status: UnitStatus{
			AccountID: account.ID,
			Email:     account.FromEmail,
			State:     StateIdle,
		},
	}
	s.units[account.ID] = u

	s.wg.Add(1)
	go s.runUnit(ctx, u)
}

// reconcileLoop periodically reloads the registry and diffs the running units
// against it, so accounts added or removed through the API or directly in the
// account store get picked up without a restart
func (s *Supervisor) reconcileLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reconcile(ctx)
		}
	}
}

func (s *Supervisor) reconcile(ctx context.Context) {
	// Re-read the account store first so accounts enabled or disabled
	// outside this process are diffed too, not just API-driven changes. A
	// failed reload keeps the previous registry contents.
	if err := s.registry.Load(); err != nil {
		s.logger.Printf("Account reload failed, reconciling against last known set: %v", err)
	}

	wanted := make(map[uint]*models.MailboxAccount)
	for _, account := range s.registry.List() {
		wanted[account.ID] = account
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}

	for id, u := range s.units {
		if _, ok := wanted[id]; !ok {
			s.logger.Printf("Account %d removed, stopping its monitor", id)
			u.cancel()
			delete(s.units, id)
		}
	}
	for id, account := range wanted {
		if _, ok := s.units[id]; !ok {
			s.logger.Printf("Account %d (%s) added, starting its monitor", id, account.FromEmail)
			s.startUnitLocked(ctx, account)
		}
	}
}

// runUnit is the per-account loop: scan, then sleep, back off or cool down
// depending on the outcome. A panic in one unit is contained and restarts the
// loop after the poll interval.
func (s *Supervisor) runUnit(ctx context.Context, u *unit) {
	defer s.wg.Done()
	defer close(u.done)

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		result, err := s.scanCycle(ctx, u)
		if ctx.Err() != nil {
			return
		}

		var wait time.Duration
		switch {
		case err != nil:
			failures++
			if failures >= s.cfg.FailureThreshold {
				wait = s.cfg.Cooldown
				u.set(func(st *UnitStatus) {
					st.State = StateCooldown
					st.Failures = failures
					st.LastError = err.Error()
				})
				s.logger.Printf("Account %s: %d consecutive failures, cooling down for %s",
					u.account.FromEmail, failures, wait)
				// The cooldown wipes the slate; the next attempt starts fresh
				failures = 0
			} else {
				wait = backoffDelay(s.cfg.BackoffBase, s.cfg.BackoffMax, failures)
				u.set(func(st *UnitStatus) {
					st.State = StateBackoff
					st.Failures = failures
					st.LastError = err.Error()
				})
				s.logger.Printf("Account %s: scan failed (%v), retrying in %s",
					u.account.FromEmail, err, wait)
			}
		default:
			failures = 0
			wait = s.cfg.PollInterval
			if result != nil && result.NewMessages > 0 {
				// New mail often arrives in bursts; look again sooner
				wait = s.cfg.FastRecheck
			}
			u.set(func(st *UnitStatus) {
				st.State = StateSleeping
				st.Failures = 0
				st.LastError = ""
				if result != nil {
					st.LastNewMail = result.NewMessages
				}
			})
		}

		next := time.Now().Add(wait)
		u.set(func(st *UnitStatus) { st.NextScanAt = &next })

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// scanCycle wraps one Scan call with panic containment so a bug in message
// handling for one account cannot take the process down
func (s *Supervisor) scanCycle(ctx context.Context, u *unit) (result *models.ScanResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in scan: %v", r)
			utils.LogError("scan_panic", err, map[string]interface{}{
				"account_id": u.account.ID,
				"stack":      string(debug.Stack()),
			})
		}
	}()

	u.set(func(st *UnitStatus) { st.State = StateScanning })
	result, err = s.scanner.Scan(ctx, u.account)
	now := time.Now()
	u.set(func(st *UnitStatus) { st.LastScanAt = &now })
	return result, err
}

// backoffDelay doubles the base per consecutive failure and never exceeds the
// cap, so successive waits are non-decreasing
func backoffDelay(base, max time.Duration, failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	delay := base
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
