/*
accrual.go - Pure accrual computation

PURPOSE:
  Answers "how much leave has this employee earned as of a given day?"
  under a policy. The functions here are pure: identical inputs (including
  asOf) always yield identical outputs, so accrual is replayable and
  testable without a clock.

ACCRUAL METHODS:
  MONTHLY: monthlyRate per completed whole month of eligible service,
           capped at the yearly entitlement of the year containing asOf.
  YEARLY:  the full yearly rate once the eligibility date has passed,
           no partial accrual.
  NONE:    a fixed grant of the yearly entitlement.

ELIGIBILITY:
  If tenure in months at asOf is below the policy's minimum, accrual is
  zero regardless of method. Once eligible, MONTHLY counts months from
  the eligibility date (which is the hire date when no gate is set).

ROUNDING:
  Rounding produces accruedRounded from accruedActual and never feeds
  back into the actual accrual, which remains the precise audit trail.
  The rounding unit defaults to whole days; policies may set a smaller
  unit such as half days.

SEE ALSO:
  - ledger.go: SyncAccrual appends the computed accrual as ledger entries
*/
package leave

import "github.com/shopspring/decimal"

// =============================================================================
// ACCRUAL CALCULATOR
// =============================================================================

// ComputeAccrual returns accruedActual for the policy as of the given day.
func ComputeAccrual(policy LeavePolicy, hireDate, asOf TimePoint) decimal.Decimal {
	if asOf.Before(hireDate) {
		return decimal.Zero
	}
	if policy.MinTenureMonths > 0 && TenureMonths(hireDate, asOf) < policy.MinTenureMonths {
		return decimal.Zero
	}

	switch policy.AccrualMethod {
	case AccrualMonthly:
		return monthlyAccrual(policy, hireDate, asOf)
	case AccrualYearly:
		// Full grant once eligible; no partial accrual within the year.
		return policy.YearlyRate
	case AccrualNone:
		// Fixed grant, applied once per year.
		return policy.YearlyEntitlement()
	default:
		return decimal.Zero
	}
}

func monthlyAccrual(policy LeavePolicy, hireDate, asOf TimePoint) decimal.Decimal {
	start := hireDate
	if elig := policy.EligibilityDate(hireDate); elig.After(start) {
		start = elig
	}

	months := MonthsBetween(start, asOf)
	accrued := policy.MonthlyRate.Mul(decimal.NewFromInt(int64(months)))

	// Cap at the yearly entitlement for the civil year containing asOf.
	if limit := policy.YearlyEntitlement(); accrued.GreaterThan(limit) {
		return limit
	}
	return accrued
}

// =============================================================================
// ROUNDING
// =============================================================================

// ApplyRounding derives accruedRounded from accruedActual under the policy's
// rounding rule, at the policy's rounding unit (whole days by default).
func ApplyRounding(policy LeavePolicy, actual decimal.Decimal) decimal.Decimal {
	if policy.RoundingRule == "" || policy.RoundingRule == RoundNone {
		return actual
	}

	unit := policy.RoundingUnit
	if unit.IsZero() {
		unit = decimal.NewFromInt(1)
	}

	quotient := actual.Div(unit)
	switch policy.RoundingRule {
	case RoundUp:
		quotient = quotient.Ceil()
	case RoundDown:
		quotient = quotient.Floor()
	case RoundNearest:
		quotient = quotient.Round(0)
	default:
		return actual
	}
	return quotient.Mul(unit)
}
