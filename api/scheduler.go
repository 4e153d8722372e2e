/*
scheduler.go - Automated year-end rollover scheduler

PURPOSE:
  Periodically looks for entitlements belonging to a closed year and rolls
  them into the new year: carry-forward up to the policy cap, forfeit the
  rest.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Scans the ledger for keys with entries in the previous year
  - Rollover itself is idempotent; a key already closed is skipped via its
    ledger idempotency key, so repeated checks are harmless

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewRolloverScheduler(store, handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerRollover endpoint (manual rollover)
  - leave/ledger.go: Rollover semantics
*/
package api

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

// RolloverScheduler closes finished entitlement years in the background.
type RolloverScheduler struct {
	Store         *sqlite.Store
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRolloverScheduler creates a new scheduler.
func NewRolloverScheduler(store *sqlite.Store, handler *Handler) *RolloverScheduler {
	return &RolloverScheduler{
		Store:         store,
		Handler:       handler,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (rs *RolloverScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)

	go rs.run()

	log.Printf("[Scheduler] Started with check interval: %v", rs.CheckInterval)
}

// Stop stops the scheduler.
func (rs *RolloverScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (rs *RolloverScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.checkAndProcess()

	for {
		select {
		case <-rs.ticker.C:
			rs.checkAndProcess()
		case <-rs.stop:
			return
		}
	}
}

func (rs *RolloverScheduler) checkAndProcess() {
	ctx := context.Background()
	now := rs.Handler.now()
	closedYear := now.Year() - 1

	keys, err := rs.Store.ListKeys(ctx, closedYear)
	if err != nil {
		log.Printf("[Scheduler] Error listing %d entitlements: %v", closedYear, err)
		return
	}

	processed := 0
	skipped := 0
	for _, key := range keys {
		result, err := rs.Handler.Ledger.Rollover(ctx, key.EmployeeID, key.LeaveTypeID, closedYear, "scheduler", now)
		switch {
		case errors.Is(err, leave.ErrDuplicateIdempotencyKey):
			// Already rolled over on a previous pass.
			skipped++
		case leave.IsNotFound(err):
			// No policy covers this key anymore; leave it for manual review.
			skipped++
		case err != nil:
			log.Printf("[Scheduler] Rollover failed for %s/%s/%d: %v",
				key.EmployeeID, key.LeaveTypeID, closedYear, err)
		default:
			if result.CarriedOver.IsPositive() || result.Forfeited.IsPositive() {
				log.Printf("[Scheduler] Rolled over %s/%s/%d: carried=%s, forfeited=%s",
					key.EmployeeID, key.LeaveTypeID, closedYear, result.CarriedOver, result.Forfeited)
			}
			processed++
		}
	}

	if processed > 0 || skipped > 0 {
		log.Printf("[Scheduler] Completed %d rollover check: %d processed, %d skipped", closedYear, processed, skipped)
	}
}

// RunNow triggers an immediate check (for testing/admin).
func (rs *RolloverScheduler) RunNow() {
	rs.checkAndProcess()
}
