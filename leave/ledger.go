/*
ledger.go - The entitlement ledger

PURPOSE:
  The Ledger owns every balance mutation. Balances are never stored; they
  are derived by folding the ordered sequence of accrual, adjustment,
  reservation, release, consumption, carry-forward and forfeit entries for
  one (employee, leave type, year) key. This makes every balance
  independently reconstructible: replaying the same entries always
  produces the same remaining.

CRITICAL INVARIANTS:
  1. APPEND-THEN-RECOMPUTE: remaining is never written, only derived
  2. NON-NEGATIVE: consume fails rather than drive remaining below zero,
     unless the policy explicitly allows negative balances
  3. SERIALIZED PER KEY: mutations on the same key take a per-key mutex;
     unrelated keys proceed fully in parallel
  4. ACCRUAL IS MONOTONE: SyncAccrual only appends positive deltas

CARRY-FORWARD:
  At rollover, the prior year's remaining moves into the new year capped
  at the policy's maximum; the excess is forfeited with an explicit
  negative entry in the old year so the loss is auditable.

SEE ALSO:
  - store.go: Entry and EntryStore definitions
  - accrual.go: the pure computation SyncAccrual appends from
  - workflow.go: the only caller of Reserve/Release/ConsumeReserved
*/
package leave

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// KEYED LOCKS - Per-entitlement serialization
// =============================================================================

// keyedLocks hands out one mutex per entitlement key. Mutations against the
// same key serialize; different keys do not contend.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[Key]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[Key]*sync.Mutex)}
}

func (kl *keyedLocks) get(key Key) *sync.Mutex {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	if l, ok := kl.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	kl.locks[key] = l
	return l
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger is the sole mutator of entitlements.
type Ledger struct {
	store    EntryStore
	policies PolicyRepository
	locks    *keyedLocks
}

func NewLedger(store EntryStore, policies PolicyRepository) *Ledger {
	return &Ledger{
		store:    store,
		policies: policies,
		locks:    newKeyedLocks(),
	}
}

// policyFor resolves the policy governing a key's year.
func (l *Ledger) policyFor(ctx context.Context, key Key) (LeavePolicy, error) {
	return l.policies.GetPolicy(ctx, key.LeaveTypeID, StartOfYear(key.Year))
}

// =============================================================================
// BALANCE - Derived by folding entries
// =============================================================================

// Balance returns the entitlement for a key. A key with no entries yields a
// zeroed record; first access never errors on emptiness.
func (l *Ledger) Balance(ctx context.Context, key Key) (Entitlement, error) {
	policy, err := l.policyFor(ctx, key)
	if err != nil {
		return Entitlement{}, err
	}
	return l.fold(ctx, key, policy)
}

// fold replays the entry sequence into an Entitlement snapshot.
func (l *Ledger) fold(ctx context.Context, key Key, policy LeavePolicy) (Entitlement, error) {
	entries, err := l.store.Load(ctx, key)
	if err != nil {
		return Entitlement{}, err
	}

	ent := Entitlement{
		EmployeeID:        key.EmployeeID,
		LeaveTypeID:       key.LeaveTypeID,
		Year:              key.Year,
		YearlyEntitlement: policy.YearlyEntitlement(),
	}

	for _, e := range entries {
		switch e.Type {
		case EntryAccrual:
			ent.AccruedActual = ent.AccruedActual.Add(e.Delta)
		case EntryConsumption:
			ent.Consumed = ent.Consumed.Add(e.Delta.Neg()) // stored negative
		case EntryReservation:
			ent.Reserved = ent.Reserved.Add(e.Delta.Neg()) // stored negative
		case EntryRelease:
			ent.Reserved = ent.Reserved.Sub(e.Delta)
		case EntryAdjustment, EntryCarryForward, EntryForfeit:
			ent.Adjustments = ent.Adjustments.Add(e.Delta)
		}
	}

	ent.AccruedRounded = ApplyRounding(policy, ent.AccruedActual)
	ent.Remaining = ent.AccruedRounded.Sub(ent.Consumed).Add(ent.Adjustments)
	return ent, nil
}

// =============================================================================
// ACCRUAL SYNC
// =============================================================================

// SyncAccrual brings the recorded accrual up to the computed accrual as of
// the given day, appending the positive delta as one entry. Idempotent: a
// second call with the same asOf appends nothing.
func (l *Ledger) SyncAccrual(ctx context.Context, key Key, hireDate, asOf TimePoint) (Entitlement, error) {
	lock := l.locks.get(key)
	lock.Lock()
	defer lock.Unlock()

	policy, err := l.policyFor(ctx, key)
	if err != nil {
		return Entitlement{}, err
	}

	ent, err := l.fold(ctx, key, policy)
	if err != nil {
		return Entitlement{}, err
	}

	target := ComputeAccrual(policy, hireDate, asOf)
	delta := target.Sub(ent.AccruedActual)
	if !delta.IsPositive() {
		return ent, nil
	}

	entry := Entry{
		ID:             EntryID(uuid.NewString()),
		EmployeeID:     key.EmployeeID,
		LeaveTypeID:    key.LeaveTypeID,
		Year:           key.Year,
		EffectiveAt:    asOf,
		Delta:          delta,
		Type:           EntryAccrual,
		Reason:         fmt.Sprintf("accrual sync as of %s", asOf),
		Actor:          "system",
		IdempotencyKey: fmt.Sprintf("accrual-%s-%s-%d-%s", key.EmployeeID, key.LeaveTypeID, key.Year, asOf),
		RecordedAt:     asOf,
	}
	if err := l.store.Append(ctx, entry); err != nil {
		return Entitlement{}, err
	}

	return l.fold(ctx, key, policy)
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

// ApplyAdjustment appends a manual correction. Balance checks do not apply:
// HR corrections are authoritative even when they drive remaining negative.
func (l *Ledger) ApplyAdjustment(ctx context.Context, adj Adjustment) error {
	key := Key{EmployeeID: adj.EmployeeID, LeaveTypeID: adj.LeaveTypeID, Year: adj.Year}
	lock := l.locks.get(key)
	lock.Lock()
	defer lock.Unlock()

	entry := Entry{
		ID:             EntryID(uuid.NewString()),
		EmployeeID:     adj.EmployeeID,
		LeaveTypeID:    adj.LeaveTypeID,
		Year:           adj.Year,
		EffectiveAt:    adj.RecordedAt,
		Delta:          adj.Signed(),
		Type:           EntryAdjustment,
		ReferenceID:    string(adj.ID),
		Reason:         adj.Reason,
		Actor:          adj.Actor,
		IdempotencyKey: fmt.Sprintf("adjustment-%s", adj.ID),
		RecordedAt:     adj.RecordedAt,
	}
	return l.store.Append(ctx, entry)
}

// =============================================================================
// RESERVE / RELEASE / CONSUME
// =============================================================================

// Reserve places a soft hold for a pending request. Fails with
// InsufficientBalanceError when the hold would exceed what is available to
// reserve, unless the policy allows negative balances.
func (l *Ledger) Reserve(ctx context.Context, key Key, amount decimal.Decimal, referenceID, actor string, now TimePoint) error {
	lock := l.locks.get(key)
	lock.Lock()
	defer lock.Unlock()

	policy, err := l.policyFor(ctx, key)
	if err != nil {
		return err
	}
	ent, err := l.fold(ctx, key, policy)
	if err != nil {
		return err
	}

	if !policy.AllowNegative && ent.Available().Sub(amount).IsNegative() {
		return &InsufficientBalanceError{
			EmployeeID:  key.EmployeeID,
			LeaveTypeID: key.LeaveTypeID,
			Year:        key.Year,
			Available:   ent.Available(),
			Requested:   amount,
		}
	}

	return l.store.Append(ctx, Entry{
		ID:             EntryID(uuid.NewString()),
		EmployeeID:     key.EmployeeID,
		LeaveTypeID:    key.LeaveTypeID,
		Year:           key.Year,
		EffectiveAt:    now,
		Delta:          amount.Neg(),
		Type:           EntryReservation,
		ReferenceID:    referenceID,
		Reason:         "reserved for pending request",
		Actor:          actor,
		IdempotencyKey: fmt.Sprintf("reserve-%s", referenceID),
		RecordedAt:     now,
	})
}

// Release returns a held amount to the available pool (reject or cancel).
func (l *Ledger) Release(ctx context.Context, key Key, amount decimal.Decimal, referenceID, reason, actor string, now TimePoint) error {
	lock := l.locks.get(key)
	lock.Lock()
	defer lock.Unlock()

	return l.store.Append(ctx, Entry{
		ID:             EntryID(uuid.NewString()),
		EmployeeID:     key.EmployeeID,
		LeaveTypeID:    key.LeaveTypeID,
		Year:           key.Year,
		EffectiveAt:    now,
		Delta:          amount,
		Type:           EntryRelease,
		ReferenceID:    referenceID,
		Reason:         reason,
		Actor:          actor,
		IdempotencyKey: fmt.Sprintf("release-%s", referenceID),
		RecordedAt:     now,
	})
}

// Consume finalizes consumption without a prior reservation. Fails with
// InsufficientBalanceError when remaining would go negative and the policy
// forbids it.
func (l *Ledger) Consume(ctx context.Context, key Key, amount decimal.Decimal, referenceID, reason, actor string, now TimePoint) error {
	lock := l.locks.get(key)
	lock.Lock()
	defer lock.Unlock()

	return l.consumeLocked(ctx, key, amount, nil, referenceID, reason, actor, now)
}

// ConsumeReserved converts a reservation into finalized consumption: the
// release and the consumption land in one atomic batch.
func (l *Ledger) ConsumeReserved(ctx context.Context, key Key, amount decimal.Decimal, referenceID, reason, actor string, now TimePoint) error {
	lock := l.locks.get(key)
	lock.Lock()
	defer lock.Unlock()

	release := Entry{
		ID:             EntryID(uuid.NewString()),
		EmployeeID:     key.EmployeeID,
		LeaveTypeID:    key.LeaveTypeID,
		Year:           key.Year,
		EffectiveAt:    now,
		Delta:          amount,
		Type:           EntryRelease,
		ReferenceID:    referenceID,
		Reason:         "reservation converted on approval",
		Actor:          actor,
		IdempotencyKey: fmt.Sprintf("release-%s", referenceID),
		RecordedAt:     now,
	}
	return l.consumeLocked(ctx, key, amount, &release, referenceID, reason, actor, now)
}

// consumeLocked appends the consumption (and optional reservation release)
// after the non-negative check. Caller holds the key lock.
func (l *Ledger) consumeLocked(ctx context.Context, key Key, amount decimal.Decimal, release *Entry, referenceID, reason, actor string, now TimePoint) error {
	policy, err := l.policyFor(ctx, key)
	if err != nil {
		return err
	}
	ent, err := l.fold(ctx, key, policy)
	if err != nil {
		return err
	}

	if !policy.AllowNegative && ent.Remaining.Sub(amount).IsNegative() {
		return &InsufficientBalanceError{
			EmployeeID:  key.EmployeeID,
			LeaveTypeID: key.LeaveTypeID,
			Year:        key.Year,
			Available:   ent.Remaining,
			Requested:   amount,
		}
	}

	consumption := Entry{
		ID:             EntryID(uuid.NewString()),
		EmployeeID:     key.EmployeeID,
		LeaveTypeID:    key.LeaveTypeID,
		Year:           key.Year,
		EffectiveAt:    now,
		Delta:          amount.Neg(),
		Type:           EntryConsumption,
		ReferenceID:    referenceID,
		Reason:         reason,
		Actor:          actor,
		IdempotencyKey: fmt.Sprintf("consume-%s", referenceID),
		RecordedAt:     now,
	}

	if release != nil {
		return l.store.AppendBatch(ctx, []Entry{*release, consumption})
	}
	return l.store.Append(ctx, consumption)
}

// =============================================================================
// YEAR-END ROLLOVER
// =============================================================================

// RolloverResult summarizes one carry-forward run.
type RolloverResult struct {
	CarriedOver decimal.Decimal
	Forfeited   decimal.Decimal
}

// Rollover moves the prior year's remaining into the next year, capped at the
// policy's maximum carry-forward. The excess is forfeited in the old year so
// the ledger explains where the balance went.
func (l *Ledger) Rollover(ctx context.Context, employeeID EmployeeID, leaveTypeID LeaveTypeID, fromYear int, actor string, now TimePoint) (RolloverResult, error) {
	oldKey := Key{EmployeeID: employeeID, LeaveTypeID: leaveTypeID, Year: fromYear}
	newKey := Key{EmployeeID: employeeID, LeaveTypeID: leaveTypeID, Year: fromYear + 1}

	// Lock both years in a fixed order to avoid deadlock with concurrent runs.
	oldLock := l.locks.get(oldKey)
	newLock := l.locks.get(newKey)
	oldLock.Lock()
	defer oldLock.Unlock()
	newLock.Lock()
	defer newLock.Unlock()

	policy, err := l.policyFor(ctx, oldKey)
	if err != nil {
		return RolloverResult{}, err
	}
	ent, err := l.fold(ctx, oldKey, policy)
	if err != nil {
		return RolloverResult{}, err
	}

	remaining := ent.Remaining
	if !remaining.IsPositive() {
		return RolloverResult{}, nil
	}

	carry := decimal.Zero
	if policy.CarryForwardAllowed {
		carry = remaining
		if carry.GreaterThan(policy.MaxCarryForward) {
			carry = policy.MaxCarryForward
		}
	}
	forfeited := remaining.Sub(carry)

	refID := fmt.Sprintf("rollover-%s-%s-%d", employeeID, leaveTypeID, fromYear)
	var batch []Entry

	// Close out the old year entirely: what carries moves forward, the rest
	// is forfeited. Either way the old year's remaining drops to zero.
	batch = append(batch, Entry{
		ID:             EntryID(uuid.NewString()),
		EmployeeID:     employeeID,
		LeaveTypeID:    leaveTypeID,
		Year:           fromYear,
		EffectiveAt:    EndOfYear(fromYear),
		Delta:          remaining.Neg(),
		Type:           EntryForfeit,
		ReferenceID:    refID,
		Reason:         fmt.Sprintf("year-end close: %s carried forward, %s forfeited", carry, forfeited),
		Actor:          actor,
		IdempotencyKey: refID + "-close",
		RecordedAt:     now,
	})

	if carry.IsPositive() {
		batch = append(batch, Entry{
			ID:             EntryID(uuid.NewString()),
			EmployeeID:     employeeID,
			LeaveTypeID:    leaveTypeID,
			Year:           fromYear + 1,
			EffectiveAt:    StartOfYear(fromYear + 1),
			Delta:          carry,
			Type:           EntryCarryForward,
			ReferenceID:    refID,
			Reason:         fmt.Sprintf("carry-forward from %d", fromYear),
			Actor:          actor,
			IdempotencyKey: refID + "-carry",
			RecordedAt:     now,
		})
	}

	if err := l.store.AppendBatch(ctx, batch); err != nil {
		return RolloverResult{}, err
	}
	return RolloverResult{CarriedOver: carry, Forfeited: forfeited}, nil
}

// =============================================================================
// HISTORY
// =============================================================================

// Entries exposes the raw ledger for a key, read-only, in append order.
func (l *Ledger) Entries(ctx context.Context, key Key) ([]Entry, error) {
	return l.store.Load(ctx, key)
}
