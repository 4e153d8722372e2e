package leave_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/leave"
	leavestore "github.com/warp/leave-engine/leave/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger(t *testing.T, policies ...leave.LeavePolicy) (*leave.Ledger, *leavestore.Memory) {
	t.Helper()
	mem := leavestore.NewMemory()
	if len(policies) == 0 {
		policies = []leave.LeavePolicy{annualPolicy()}
	}
	for _, p := range policies {
		mem.PutPolicy(p)
	}
	return leave.NewLedger(mem, mem), mem
}

// annualPolicy accrues 1.75/month, rounds up, carries up to 5 days.
func annualPolicy() leave.LeavePolicy {
	return leave.LeavePolicy{
		ID:                  "pol-annual",
		LeaveTypeID:         "lt-annual",
		AccrualMethod:       leave.AccrualMonthly,
		MonthlyRate:         leave.MustParseDays("1.75"),
		YearlyRate:          leave.Days(21),
		CarryForwardAllowed: true,
		MaxCarryForward:     leave.Days(5),
		RoundingRule:        leave.RoundUp,
	}
}

func annualKey(year int) leave.Key {
	return leave.Key{EmployeeID: "emp-1", LeaveTypeID: "lt-annual", Year: year}
}

func assertDays(t *testing.T, want string, got interface{ String() string }, msg string) {
	t.Helper()
	assert.Equal(t, leave.MustParseDays(want).String(), got.String(), msg)
}

// =============================================================================
// ACCRUAL SYNC
// =============================================================================

func TestLedger_SyncAccrual_AppendsDelta(t *testing.T) {
	// GIVEN: An empty ledger for an employee hired Jan 1
	// WHEN: Syncing accrual as of Jul 1
	// THEN: Actual is 10.5, rounded up to 11

	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	hire := date(2025, time.January, 1)

	ent, err := ledger.SyncAccrual(ctx, annualKey(2025), hire, date(2025, time.July, 1))
	require.NoError(t, err)

	assertDays(t, "10.5", ent.AccruedActual, "actual accrual")
	assertDays(t, "11", ent.AccruedRounded, "rounded accrual")
	assertDays(t, "11", ent.Remaining, "remaining")
}

func TestLedger_SyncAccrual_Idempotent(t *testing.T) {
	// GIVEN: Accrual already synced as of a date
	// WHEN: Syncing again with the same date
	// THEN: No new entries, balance unchanged

	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	hire := date(2025, time.January, 1)
	asOf := date(2025, time.July, 1)

	_, err := ledger.SyncAccrual(ctx, annualKey(2025), hire, asOf)
	require.NoError(t, err)
	ent, err := ledger.SyncAccrual(ctx, annualKey(2025), hire, asOf)
	require.NoError(t, err)

	assertDays(t, "10.5", ent.AccruedActual, "unchanged after resync")

	entries, err := ledger.Entries(ctx, annualKey(2025))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "resync should not append")
}

func TestLedger_SyncAccrual_OnlyAppendsForwardProgress(t *testing.T) {
	// GIVEN: Accrual synced as of July
	// WHEN: Syncing as of September, then again as of March (stale caller)
	// THEN: September adds the delta; the stale call appends nothing

	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	hire := date(2025, time.January, 1)

	_, err := ledger.SyncAccrual(ctx, annualKey(2025), hire, date(2025, time.July, 1))
	require.NoError(t, err)
	ent, err := ledger.SyncAccrual(ctx, annualKey(2025), hire, date(2025, time.September, 1))
	require.NoError(t, err)
	assertDays(t, "14", ent.AccruedActual, "8 months accrued")

	ent, err = ledger.SyncAccrual(ctx, annualKey(2025), hire, date(2025, time.March, 1))
	require.NoError(t, err)
	assertDays(t, "14", ent.AccruedActual, "stale sync never lowers accrual")
}

// =============================================================================
// BALANCE REPLAY
// =============================================================================

func TestLedger_Balance_EmptyKey_ZeroedRecord(t *testing.T) {
	ledger, _ := newTestLedger(t)

	ent, err := ledger.Balance(context.Background(), annualKey(2025))
	require.NoError(t, err)
	assert.True(t, ent.Remaining.IsZero())
	assertDays(t, "21", ent.YearlyEntitlement, "policy entitlement still reported")
}

func TestLedger_Balance_ReplayDeterministic(t *testing.T) {
	// GIVEN: A ledger with accrual, consumption and an adjustment
	// WHEN: Deriving the balance repeatedly
	// THEN: Every replay produces the same snapshot

	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	key := annualKey(2025)
	now := date(2025, time.July, 1)

	_, err := ledger.SyncAccrual(ctx, key, date(2025, time.January, 1), now)
	require.NoError(t, err)
	require.NoError(t, ledger.Consume(ctx, key, leave.Days(3), "req-1", "vacation", "emp-1", now))
	require.NoError(t, ledger.ApplyAdjustment(ctx, leave.Adjustment{
		ID: "adj-1", EmployeeID: "emp-1", LeaveTypeID: "lt-annual", Year: 2025,
		Type: leave.AdjustmentAdd, Amount: leave.Days(2), Actor: "hr-1", RecordedAt: now,
	}))

	first, err := ledger.Balance(ctx, key)
	require.NoError(t, err)
	second, err := ledger.Balance(ctx, key)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assertDays(t, "10", first.Remaining, "11 rounded - 3 consumed + 2 adjusted")
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

func TestLedger_Adjustments_AddAndDeduct(t *testing.T) {
	// GIVEN: An accrued balance
	// WHEN: Recording an ADD then a DEDUCT of the same size
	// THEN: They net to zero and both remain visible in history

	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	key := annualKey(2025)
	now := date(2025, time.July, 1)

	_, err := ledger.SyncAccrual(ctx, key, date(2025, time.January, 1), now)
	require.NoError(t, err)

	recorder := leave.NewRecorder(ledger)
	_, err = recorder.Record(ctx, "emp-1", "lt-annual", 2025, leave.AdjustmentAdd, leave.Days(2), "bonus", "hr-1", now)
	require.NoError(t, err)
	_, err = recorder.Record(ctx, "emp-1", "lt-annual", 2025, leave.AdjustmentDeduct, leave.Days(2), "correction", "hr-1", now)
	require.NoError(t, err)

	ent, err := ledger.Balance(ctx, key)
	require.NoError(t, err)
	assert.True(t, ent.Adjustments.IsZero(), "adjustments net to zero")
	assertDays(t, "11", ent.Remaining, "back to accrued")

	entries, err := ledger.Entries(ctx, key)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "accrual + two adjustments kept in history")
}

func TestRecorder_RejectsInvalidInput(t *testing.T) {
	ledger, _ := newTestLedger(t)
	recorder := leave.NewRecorder(ledger)
	ctx := context.Background()
	now := date(2025, time.July, 1)

	_, err := recorder.Record(ctx, "emp-1", "lt-annual", 2025, leave.AdjustmentAdd, leave.Days(-1), "", "hr-1", now)
	assert.Error(t, err, "negative amount")

	_, err = recorder.Record(ctx, "emp-1", "lt-annual", 2025, leave.AdjustmentAdd, leave.Days(1), "", "", now)
	assert.Error(t, err, "missing actor")
}

func TestLedger_Adjustment_MayDriveNegative(t *testing.T) {
	// GIVEN: A small balance
	// WHEN: HR deducts more than remains
	// THEN: The adjustment lands; corrections are authoritative

	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	key := annualKey(2025)
	now := date(2025, time.February, 1)

	_, err := ledger.SyncAccrual(ctx, key, date(2025, time.January, 1), now)
	require.NoError(t, err)

	recorder := leave.NewRecorder(ledger)
	_, err = recorder.Record(ctx, "emp-1", "lt-annual", 2025, leave.AdjustmentDeduct, leave.Days(10), "clawback", "hr-1", now)
	require.NoError(t, err)

	ent, err := ledger.Balance(ctx, key)
	require.NoError(t, err)
	assert.True(t, ent.Remaining.IsNegative())
}

// =============================================================================
// RESERVE / RELEASE / CONSUME
// =============================================================================

func TestLedger_Reserve_HoldsWithoutConsuming(t *testing.T) {
	// GIVEN: 11 days remaining
	// WHEN: Reserving 4 days
	// THEN: Remaining stays 11 but only 7 are available

	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	key := annualKey(2025)
	now := date(2025, time.July, 1)

	_, err := ledger.SyncAccrual(ctx, key, date(2025, time.January, 1), now)
	require.NoError(t, err)
	require.NoError(t, ledger.Reserve(ctx, key, leave.Days(4), "req-1", "emp-1", now))

	ent, err := ledger.Balance(ctx, key)
	require.NoError(t, err)
	assertDays(t, "11", ent.Remaining, "remaining untouched by hold")
	assertDays(t, "4", ent.Reserved, "hold recorded")
	assertDays(t, "7", ent.Available(), "available net of hold")
}

func TestLedger_Reserve_InsufficientAvailable(t *testing.T) {
	// GIVEN: 11 remaining with 8 already held
	// WHEN: Reserving 4 more
	// THEN: InsufficientBalanceError with the shortfall detail

	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	key := annualKey(2025)
	now := date(2025, time.July, 1)

	_, err := ledger.SyncAccrual(ctx, key, date(2025, time.January, 1), now)
	require.NoError(t, err)
	require.NoError(t, ledger.Reserve(ctx, key, leave.Days(8), "req-1", "emp-1", now))

	err = ledger.Reserve(ctx, key, leave.Days(4), "req-2", "emp-1", now)
	require.Error(t, err)
	assert.ErrorIs(t, err, leave.ErrInsufficientBalance)

	var insuff *leave.InsufficientBalanceError
	require.ErrorAs(t, err, &insuff)
	assertDays(t, "3", insuff.Available, "available in error detail")
	assertDays(t, "4", insuff.Requested, "requested in error detail")
}

func TestLedger_ReleaseRestoresAvailability(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	key := annualKey(2025)
	now := date(2025, time.July, 1)

	_, err := ledger.SyncAccrual(ctx, key, date(2025, time.January, 1), now)
	require.NoError(t, err)
	require.NoError(t, ledger.Reserve(ctx, key, leave.Days(4), "req-1", "emp-1", now))
	require.NoError(t, ledger.Release(ctx, key, leave.Days(4), "req-1", "rejected", "mgr-1", now))

	ent, err := ledger.Balance(ctx, key)
	require.NoError(t, err)
	assert.True(t, ent.Reserved.IsZero())
	assertDays(t, "11", ent.Available(), "full availability restored")
}

func TestLedger_ConsumeReserved_ConvertsHold(t *testing.T) {
	// GIVEN: A 4-day hold
	// WHEN: Converting it on final approval
	// THEN: Reserved drops to zero and consumed rises, atomically

	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	key := annualKey(2025)
	now := date(2025, time.July, 1)

	_, err := ledger.SyncAccrual(ctx, key, date(2025, time.January, 1), now)
	require.NoError(t, err)
	require.NoError(t, ledger.Reserve(ctx, key, leave.Days(4), "req-1", "emp-1", now))
	require.NoError(t, ledger.ConsumeReserved(ctx, key, leave.Days(4), "req-1", "vacation", "mgr-1", now))

	ent, err := ledger.Balance(ctx, key)
	require.NoError(t, err)
	assert.True(t, ent.Reserved.IsZero())
	assertDays(t, "4", ent.Consumed, "consumption finalized")
	assertDays(t, "7", ent.Remaining, "11 - 4")
}

func TestLedger_Consume_NonNegativeInvariant(t *testing.T) {
	// GIVEN: 11 days remaining
	// WHEN: Consuming 12
	// THEN: Refused; balance unchanged

	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	key := annualKey(2025)
	now := date(2025, time.July, 1)

	_, err := ledger.SyncAccrual(ctx, key, date(2025, time.January, 1), now)
	require.NoError(t, err)

	err = ledger.Consume(ctx, key, leave.Days(12), "req-1", "vacation", "emp-1", now)
	assert.ErrorIs(t, err, leave.ErrInsufficientBalance)

	ent, err := ledger.Balance(ctx, key)
	require.NoError(t, err)
	assertDays(t, "11", ent.Remaining, "failed consume leaves no trace")
}

func TestLedger_Consume_AllowNegativePolicy(t *testing.T) {
	// GIVEN: An emergency policy that allows overdraw
	// WHEN: Consuming past zero
	// THEN: The consume lands and remaining goes negative

	policy := leave.LeavePolicy{
		ID: "pol-em", LeaveTypeID: "lt-em",
		AccrualMethod: leave.AccrualNone,
		YearlyRate:    leave.Days(2),
		AllowNegative: true,
	}
	ledger, _ := newTestLedger(t, policy)
	ctx := context.Background()
	key := leave.Key{EmployeeID: "emp-1", LeaveTypeID: "lt-em", Year: 2025}
	now := date(2025, time.July, 1)

	_, err := ledger.SyncAccrual(ctx, key, date(2024, time.January, 1), now)
	require.NoError(t, err)
	require.NoError(t, ledger.Consume(ctx, key, leave.Days(3), "req-1", "emergency", "emp-1", now))

	ent, err := ledger.Balance(ctx, key)
	require.NoError(t, err)
	assertDays(t, "-1", ent.Remaining, "overdraw permitted")
}

func TestLedger_Consume_DuplicateReference(t *testing.T) {
	// GIVEN: A consumption already recorded for a request
	// WHEN: Retrying the same request reference
	// THEN: The retry is rejected by the idempotency key, not double-counted

	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	key := annualKey(2025)
	now := date(2025, time.July, 1)

	_, err := ledger.SyncAccrual(ctx, key, date(2025, time.January, 1), now)
	require.NoError(t, err)
	require.NoError(t, ledger.Consume(ctx, key, leave.Days(2), "req-1", "vacation", "emp-1", now))

	err = ledger.Consume(ctx, key, leave.Days(2), "req-1", "vacation", "emp-1", now)
	assert.ErrorIs(t, err, leave.ErrDuplicateIdempotencyKey)

	ent, err := ledger.Balance(ctx, key)
	require.NoError(t, err)
	assertDays(t, "2", ent.Consumed, "consumed exactly once")
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestLedger_ConcurrentConsume_ExactlyOneWins(t *testing.T) {
	// GIVEN: 5 days remaining
	// WHEN: Two goroutines each try to consume 4 days concurrently
	// THEN: Exactly one succeeds; remaining never goes negative

	policy := annualPolicy()
	policy.AccrualMethod = leave.AccrualNone
	policy.YearlyRate = leave.Days(5)
	policy.RoundingRule = leave.RoundNone
	ledger, _ := newTestLedger(t, policy)
	ctx := context.Background()
	key := annualKey(2025)
	now := date(2025, time.July, 1)

	_, err := ledger.SyncAccrual(ctx, key, date(2024, time.January, 1), now)
	require.NoError(t, err)

	results := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref := "req-" + string(rune('a'+i))
			results[i] = ledger.Consume(ctx, key, leave.Days(4), ref, "vacation", "emp-1", now)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, leave.ErrInsufficientBalance)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one consume wins the race")

	ent, err := ledger.Balance(ctx, key)
	require.NoError(t, err)
	assertDays(t, "1", ent.Remaining, "5 - 4")
}

// =============================================================================
// YEAR-END ROLLOVER
// =============================================================================

func TestLedger_Rollover_CarryAndForfeit(t *testing.T) {
	// GIVEN: 8 days remaining in 2025 under a 5-day carry cap
	// WHEN: Rolling over into 2026
	// THEN: 5 carried, 3 forfeited, old year closes at zero

	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	now := date(2026, time.January, 1)

	_, err := ledger.SyncAccrual(ctx, annualKey(2025), date(2024, time.January, 1), date(2025, time.December, 31))
	require.NoError(t, err)
	require.NoError(t, ledger.Consume(ctx, annualKey(2025), leave.Days(13), "req-1", "vacation", "emp-1", date(2025, time.December, 1)))

	result, err := ledger.Rollover(ctx, "emp-1", "lt-annual", 2025, "scheduler", now)
	require.NoError(t, err)
	assertDays(t, "5", result.CarriedOver, "capped carry")
	assertDays(t, "3", result.Forfeited, "excess forfeited")

	oldYear, err := ledger.Balance(ctx, annualKey(2025))
	require.NoError(t, err)
	assert.True(t, oldYear.Remaining.IsZero(), "old year closed")

	newYear, err := ledger.Balance(ctx, annualKey(2026))
	require.NoError(t, err)
	assertDays(t, "5", newYear.Remaining, "carry is the opening balance")
}

func TestLedger_Rollover_NoCarryPolicy_ForfeitsAll(t *testing.T) {
	policy := annualPolicy()
	policy.CarryForwardAllowed = false
	ledger, _ := newTestLedger(t, policy)
	ctx := context.Background()

	_, err := ledger.SyncAccrual(ctx, annualKey(2025), date(2024, time.January, 1), date(2025, time.December, 31))
	require.NoError(t, err)

	result, err := ledger.Rollover(ctx, "emp-1", "lt-annual", 2025, "scheduler", date(2026, time.January, 1))
	require.NoError(t, err)
	assert.True(t, result.CarriedOver.IsZero())
	assertDays(t, "21", result.Forfeited, "everything forfeited")
}

func TestLedger_Rollover_Idempotent(t *testing.T) {
	// GIVEN: A year already rolled over
	// WHEN: Rolling over again
	// THEN: Nothing moves; the closed year has zero remaining

	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	now := date(2026, time.January, 1)

	_, err := ledger.SyncAccrual(ctx, annualKey(2025), date(2024, time.January, 1), date(2025, time.December, 31))
	require.NoError(t, err)
	_, err = ledger.Rollover(ctx, "emp-1", "lt-annual", 2025, "scheduler", now)
	require.NoError(t, err)

	second, err := ledger.Rollover(ctx, "emp-1", "lt-annual", 2025, "scheduler", now)
	require.NoError(t, err)
	assert.True(t, second.CarriedOver.IsZero())
	assert.True(t, second.Forfeited.IsZero())

	newYear, err := ledger.Balance(ctx, annualKey(2026))
	require.NoError(t, err)
	assertDays(t, "5", newYear.Remaining, "carry applied exactly once")
}

func TestLedger_Rollover_NothingRemaining_NoOp(t *testing.T) {
	ledger, _ := newTestLedger(t)

	result, err := ledger.Rollover(context.Background(), "emp-1", "lt-annual", 2025, "scheduler", date(2026, time.January, 1))
	require.NoError(t, err)
	assert.True(t, result.CarriedOver.IsZero())
	assert.True(t, result.Forfeited.IsZero())
}
