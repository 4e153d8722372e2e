/*
store.go - Persistence interfaces for ledger entries and requests

PURPOSE:
  Defines the boundary between the engine and storage. The EntryStore holds
  the append-only ledger; the RequestStore holds leave requests. Different
  implementations back these with SQLite or memory.

APPEND-ONLY CONTRACT:
  The EntryStore has no Update and no Delete. Corrections happen by
  appending offsetting entries (releases, opposite-signed adjustments).
  Every write carries an idempotency key; a duplicate key is rejected,
  which makes retries safe.

ATOMIC BATCHES:
  AppendBatch is all-or-nothing. Approving a request appends a reservation
  release and a consumption together; either both land or neither does.

IMPLEMENTATIONS:
  - store/sqlite: production store
  - leave/store: in-memory store for tests and development
*/
package leave

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER ENTRY - Atomic change to an entitlement
// =============================================================================

// EntryType classifies a ledger entry for balance folding.
type EntryType string

const (
	EntryAccrual      EntryType = "accrual"       // earned entitlement (positive)
	EntryConsumption  EntryType = "consumption"   // finalized usage (negative)
	EntryReservation  EntryType = "reservation"   // soft hold for a pending request (negative)
	EntryRelease      EntryType = "release"       // hold released on reject/cancel/approve (positive)
	EntryAdjustment   EntryType = "adjustment"    // manual correction (signed)
	EntryCarryForward EntryType = "carry_forward" // opening balance from prior year (positive)
	EntryForfeit      EntryType = "forfeit"       // excess lost at rollover (negative)
)

// Key identifies one entitlement: serialization and balance folding both
// happen per key.
type Key struct {
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID
	Year        int
}

// Entry is one immutable ledger record. Delta is signed; the fold buckets
// entries by Type.
type Entry struct {
	ID             EntryID
	EmployeeID     EmployeeID
	LeaveTypeID    LeaveTypeID
	Year           int
	EffectiveAt    TimePoint
	Delta          decimal.Decimal
	Type           EntryType
	ReferenceID    string // request or adjustment ID this entry belongs to
	Reason         string
	Actor          string
	IdempotencyKey string
	RecordedAt     TimePoint
}

func (e Entry) Key() Key {
	return Key{EmployeeID: e.EmployeeID, LeaveTypeID: e.LeaveTypeID, Year: e.Year}
}

// =============================================================================
// ENTRY STORE - Append-only persistence
// =============================================================================

// EntryStore persists ledger entries. Append-only: no Update, no Delete.
type EntryStore interface {
	// Append persists one entry. Fails with ErrDuplicateIdempotencyKey if the
	// entry's idempotency key already exists.
	Append(ctx context.Context, entry Entry) error

	// AppendBatch persists entries atomically: all or none.
	AppendBatch(ctx context.Context, entries []Entry) error

	// Load returns all entries for a key in append order.
	Load(ctx context.Context, key Key) ([]Entry, error)

	// Exists reports whether an idempotency key has been used.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// =============================================================================
// REQUEST STORE
// =============================================================================

// RequestStore persists leave requests. The workflow is the only writer.
type RequestStore interface {
	Create(ctx context.Context, req LeaveRequest) error

	// Get returns the request, or ErrRequestNotFound.
	Get(ctx context.Context, id RequestID) (LeaveRequest, error)

	// Update replaces a request's mutable state (status, approval flow).
	Update(ctx context.Context, req LeaveRequest) error

	ListByEmployee(ctx context.Context, employeeID EmployeeID) ([]LeaveRequest, error)
	ListPending(ctx context.Context) ([]LeaveRequest, error)
}
