/*
policy.go - Leave policy definitions and resolution

PURPOSE:
  A LeavePolicy is the contract governing one leave type: how entitlement
  accrues, how it is rounded, how much rolls into the next year, how much
  notice a request needs, and when an employee becomes eligible.

RESOLUTION:
  PolicyRepository resolves "the policy in effect" for a (leave type,
  effective date) pair. Exactly one policy is active per pair; a miss is
  ErrPolicyNotFound, which the workflow treats as a hard validation failure.

SEE ALSO:
  - accrual.go: consumes the policy in the pure accrual computation
  - ledger.go: consumes rounding, carry-forward and negative-balance rules
  - policies.go: pre-built configurations for common leave types
*/
package leave

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEAVE POLICY
// =============================================================================

// LeavePolicy defines accrual and consumption rules for one leave type.
type LeavePolicy struct {
	ID          PolicyID
	LeaveTypeID LeaveTypeID

	// Accrual configuration. For MONTHLY, MonthlyRate accrues per completed
	// month and YearlyRate is the annual cap. For YEARLY and NONE, YearlyRate
	// is the full-year grant.
	AccrualMethod AccrualMethod
	MonthlyRate   decimal.Decimal
	YearlyRate    decimal.Decimal

	// Carry-forward at year-end rollover.
	CarryForwardAllowed bool
	MaxCarryForward     decimal.Decimal

	// Rounding applied when deriving accruedRounded from accruedActual.
	// RoundingUnit defaults to one whole day when zero.
	RoundingRule RoundingRule
	RoundingUnit decimal.Decimal

	// Request constraints.
	MinNoticeDays   int
	MinTenureMonths int

	// AllowNegative permits consumption to drive remaining below zero
	// (emergency leave types). Default false.
	AllowNegative bool

	// BlockedPeriodExempt lets requests of this type overlap calendar
	// blocked periods (e.g. emergency or medical leave).
	BlockedPeriodExempt bool

	// Effective window. A zero EffectiveTo means open-ended.
	EffectiveFrom TimePoint
	EffectiveTo   TimePoint

	Version int
}

// YearlyEntitlement is the full-year grant under this policy.
func (p LeavePolicy) YearlyEntitlement() decimal.Decimal {
	return p.YearlyRate
}

// EligibilityDate is the first day the employee satisfies the tenure gate.
func (p LeavePolicy) EligibilityDate(hireDate TimePoint) TimePoint {
	if p.MinTenureMonths <= 0 {
		return hireDate
	}
	return hireDate.AddMonths(p.MinTenureMonths)
}

// InEffect reports whether the policy covers the given date.
func (p LeavePolicy) InEffect(at TimePoint) bool {
	if !p.EffectiveFrom.IsZero() && at.Before(p.EffectiveFrom) {
		return false
	}
	if !p.EffectiveTo.IsZero() && at.After(p.EffectiveTo) {
		return false
	}
	return true
}

// =============================================================================
// POLICY REPOSITORY - Read-only resolution
// =============================================================================

// PolicyRepository resolves the applicable policy for a leave type at a date.
type PolicyRepository interface {
	// GetPolicy returns the single policy in effect for the leave type at
	// effectiveDate, or ErrPolicyNotFound.
	GetPolicy(ctx context.Context, leaveTypeID LeaveTypeID, effectiveDate TimePoint) (LeavePolicy, error)

	// GetLeaveType returns the leave type record, or ErrLeaveTypeNotFound.
	GetLeaveType(ctx context.Context, id LeaveTypeID) (LeaveType, error)
}
