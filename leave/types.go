/*
Package leave implements the leave entitlement and accrual engine.

PURPOSE:
  This package contains the domain types and algorithms for tracking how much
  leave an employee has earned under a configurable policy, how much has been
  consumed or adjusted against that entitlement, and how leave requests move
  through a multi-step approval workflow.

KEY CONCEPTS IN THIS FILE (types.go):
  - LeaveType: What kind of leave (annual, sick, ...) with attachment rules
  - AccrualMethod / RoundingRule: How entitlement is earned and rounded
  - Adjustment: An immutable, actor-attributed manual correction
  - Typed identifiers: prevent mixing employee/leave-type/request IDs

DESIGN PRINCIPLES:
  1. Precision: all balances are decimal.Decimal days, never floats
  2. Immutability: ledger entries and adjustments are append-only
  3. Determinism: every time-dependent computation takes an explicit asOf
  4. Ownership: only the Ledger mutates balances; the Workflow owns requests

SEE ALSO:
  - policy.go: LeavePolicy and the PolicyRepository contract
  - accrual.go: the pure accrual calculator
  - ledger.go: balance derivation by replaying entries
  - workflow.go: request state machine
*/
package leave

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type LeaveTypeID string
type PolicyID string
type RequestID string
type AdjustmentID string
type EntryID string

// =============================================================================
// LEAVE TYPE - What kind of leave is being tracked
// =============================================================================

// AttachmentRequirement declares what supporting document, if any, a request
// for this leave type must carry.
type AttachmentRequirement string

const (
	AttachmentNone    AttachmentRequirement = "none"
	AttachmentMedical AttachmentRequirement = "medical"
	AttachmentOther   AttachmentRequirement = "other"
)

// LeaveType describes a category of leave. Immutable once a policy
// references it; the engine never updates leave types.
type LeaveType struct {
	ID          LeaveTypeID
	Code        string // e.g. "AL", "SL"
	Name        string
	CategoryID  string
	Description string
	Paid        bool
	Deductible  bool
	Attachment  AttachmentRequirement
}

// RequiresAttachment reports whether requests of this type must carry an
// attachment reference.
func (lt LeaveType) RequiresAttachment() bool {
	return lt.Attachment != "" && lt.Attachment != AttachmentNone
}

// =============================================================================
// ACCRUAL & ROUNDING ENUMS
// =============================================================================

// AccrualMethod determines how entitlement is earned over time.
type AccrualMethod string

const (
	// AccrualMonthly: monthlyRate per completed month of eligible service,
	// capped at the yearly entitlement.
	AccrualMonthly AccrualMethod = "MONTHLY"

	// AccrualYearly: the full yearly rate once eligible, no partial accrual.
	AccrualYearly AccrualMethod = "YEARLY"

	// AccrualNone: a fixed grant of the yearly entitlement, once per year.
	AccrualNone AccrualMethod = "NONE"
)

// RoundingRule determines how accruedRounded is produced from accruedActual.
// Rounding never mutates the actual accrual, which remains the audit trail.
type RoundingRule string

const (
	RoundNone    RoundingRule = "NONE"
	RoundUp      RoundingRule = "ROUND_UP"
	RoundDown    RoundingRule = "ROUND_DOWN"
	RoundNearest RoundingRule = "ROUND_NEAREST"
)

// =============================================================================
// ADJUSTMENT - Manual correction, append-only
// =============================================================================

// AdjustmentType is the direction of a manual correction.
type AdjustmentType string

const (
	AdjustmentAdd    AdjustmentType = "ADD"
	AdjustmentDeduct AdjustmentType = "DEDUCT"
)

// Adjustment is an immutable record of a manual grant or deduction.
// Never updated or deleted; corrections are new opposite-signed records.
type Adjustment struct {
	ID          AdjustmentID
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID
	Year        int
	Type        AdjustmentType
	Amount      decimal.Decimal // always > 0; Type carries the sign
	Reason      string
	Actor       string
	RecordedAt  TimePoint
}

// Signed returns the amount with the sign implied by the adjustment type.
func (a Adjustment) Signed() decimal.Decimal {
	if a.Type == AdjustmentDeduct {
		return a.Amount.Neg()
	}
	return a.Amount
}

// =============================================================================
// ENTITLEMENT - Computed balance snapshot for (employee, leave type, year)
// =============================================================================

// Entitlement is the authoritative balance for an (employee, leaveType, year)
// key. It is always DERIVED by the Ledger folding its entries; nothing in the
// engine writes Remaining directly.
//
// Invariant: Remaining = AccruedRounded - Consumed + Adjustments.
type Entitlement struct {
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID
	Year        int

	// YearlyEntitlement is the full-year grant under the applicable policy.
	YearlyEntitlement decimal.Decimal

	// AccruedActual is the precise, unrounded running accrual.
	AccruedActual decimal.Decimal

	// AccruedRounded is the accrual after the policy rounding rule.
	AccruedRounded decimal.Decimal

	// Consumed is approved, finalized consumption (always >= 0).
	Consumed decimal.Decimal

	// Reserved is balance soft-held by pending requests.
	Reserved decimal.Decimal

	// Adjustments is the net of manual corrections, carry-forward and forfeits.
	Adjustments decimal.Decimal

	// Remaining is the derived balance: AccruedRounded - Consumed + Adjustments.
	Remaining decimal.Decimal
}

// Available is what a new request may reserve: remaining minus holds.
func (e Entitlement) Available() decimal.Decimal {
	return e.Remaining.Sub(e.Reserved)
}

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

// Days builds a decimal day amount from a float literal. Intended for
// configuration and tests; ledger math stays in decimal space.
func Days(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// MustParseDays parses a decimal day amount, returning zero on bad input.
func MustParseDays(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
