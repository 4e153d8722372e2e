package leave_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func monthlyPolicy() leave.LeavePolicy {
	return leave.LeavePolicy{
		ID:            "pol-test",
		LeaveTypeID:   "lt-annual",
		AccrualMethod: leave.AccrualMonthly,
		MonthlyRate:   leave.MustParseDays("1.75"),
		YearlyRate:    leave.Days(21),
		RoundingRule:  leave.RoundNone,
	}
}

func date(year int, month time.Month, day int) leave.TimePoint {
	return leave.NewTimePoint(year, month, day)
}

// =============================================================================
// MONTHLY ACCRUAL
// =============================================================================

func TestComputeAccrual_Monthly_CompletedMonths(t *testing.T) {
	// GIVEN: 1.75 days/month, hired Jan 1, no tenure gate
	// WHEN: Computing accrual as of Jul 1 (6 completed months)
	// THEN: 6 * 1.75 = 10.5 days

	policy := monthlyPolicy()
	got := leave.ComputeAccrual(policy, date(2020, time.January, 1), date(2020, time.July, 1))
	assert.True(t, leave.MustParseDays("10.5").Equal(got), "expected 10.5, got %s", got)
}

func TestComputeAccrual_Monthly_PartialMonthDoesNotCount(t *testing.T) {
	// GIVEN: Hired on the 15th
	// WHEN: Computing accrual on the 14th of a later month
	// THEN: The in-progress month is excluded

	policy := monthlyPolicy()
	hire := date(2020, time.January, 15)

	beforeAnniversary := leave.ComputeAccrual(policy, hire, date(2020, time.April, 14))
	onAnniversary := leave.ComputeAccrual(policy, hire, date(2020, time.April, 15))

	assert.True(t, leave.MustParseDays("3.5").Equal(beforeAnniversary), "2 completed months, got %s", beforeAnniversary)
	assert.True(t, leave.MustParseDays("5.25").Equal(onAnniversary), "3 completed months, got %s", onAnniversary)
}

func TestComputeAccrual_Monthly_CappedAtYearlyEntitlement(t *testing.T) {
	// GIVEN: An employee with several years of service
	// WHEN: Computing accrual
	// THEN: Accrual never exceeds the yearly entitlement

	policy := monthlyPolicy()
	got := leave.ComputeAccrual(policy, date(2018, time.January, 1), date(2022, time.June, 1))
	assert.True(t, leave.Days(21).Equal(got), "capped at 21, got %s", got)
}

func TestComputeAccrual_Monthly_Monotone(t *testing.T) {
	// GIVEN: A fixed policy and hire date
	// WHEN: Advancing asOf day by day over a year
	// THEN: Accrual never decreases

	policy := monthlyPolicy()
	hire := date(2020, time.January, 1)

	prev := leave.ComputeAccrual(policy, hire, hire)
	for d := hire.AddDays(1); d.Before(date(2021, time.January, 1)); d = d.AddDays(1) {
		cur := leave.ComputeAccrual(policy, hire, d)
		assert.False(t, cur.LessThan(prev), "accrual decreased at %s: %s < %s", d, cur, prev)
		prev = cur
	}
}

func TestComputeAccrual_BeforeHireDate_Zero(t *testing.T) {
	policy := monthlyPolicy()
	got := leave.ComputeAccrual(policy, date(2020, time.June, 1), date(2020, time.January, 1))
	assert.True(t, got.IsZero())
}

// =============================================================================
// ELIGIBILITY GATE
// =============================================================================

func TestComputeAccrual_TenureGate(t *testing.T) {
	// GIVEN: A 6-month tenure gate
	// WHEN: Computing accrual before, at, and after the eligibility date
	// THEN: Zero before the gate; months count from the eligibility date after

	policy := monthlyPolicy()
	policy.MinTenureMonths = 6
	hire := date(2020, time.January, 1)

	assert.True(t, leave.ComputeAccrual(policy, hire, date(2020, time.June, 30)).IsZero(),
		"not yet eligible")

	// Eligible on Jul 1, but zero completed months since eligibility.
	atGate := leave.ComputeAccrual(policy, hire, date(2020, time.July, 1))
	assert.True(t, atGate.IsZero(), "eligibility day has no completed months, got %s", atGate)

	// Six months after eligibility.
	later := leave.ComputeAccrual(policy, hire, date(2021, time.January, 1))
	assert.True(t, leave.MustParseDays("10.5").Equal(later), "6 months since eligibility, got %s", later)
}

func TestComputeAccrual_Yearly_FullGrantOnceEligible(t *testing.T) {
	// GIVEN: A YEARLY policy with a tenure gate
	// WHEN: The gate is satisfied
	// THEN: The full yearly rate is granted with no proration

	policy := leave.LeavePolicy{
		AccrualMethod:   leave.AccrualYearly,
		YearlyRate:      leave.Days(14),
		MinTenureMonths: 3,
	}
	hire := date(2020, time.January, 1)

	assert.True(t, leave.ComputeAccrual(policy, hire, date(2020, time.March, 1)).IsZero())
	assert.True(t, leave.Days(14).Equal(leave.ComputeAccrual(policy, hire, date(2020, time.April, 1))))
}

func TestComputeAccrual_None_FixedGrant(t *testing.T) {
	policy := leave.LeavePolicy{
		AccrualMethod: leave.AccrualNone,
		YearlyRate:    leave.Days(3),
	}
	got := leave.ComputeAccrual(policy, date(2020, time.January, 1), date(2020, time.January, 2))
	assert.True(t, leave.Days(3).Equal(got))
}

// =============================================================================
// ROUNDING
// =============================================================================

func TestApplyRounding(t *testing.T) {
	cases := []struct {
		name   string
		rule   leave.RoundingRule
		unit   string
		actual string
		want   string
	}{
		{"none keeps actual", leave.RoundNone, "", "10.5", "10.5"},
		{"up to whole day", leave.RoundUp, "", "10.5", "11"},
		{"down to whole day", leave.RoundDown, "", "10.5", "10"},
		{"nearest whole day low", leave.RoundNearest, "", "10.4", "10"},
		{"nearest whole day high", leave.RoundNearest, "", "10.5", "11"},
		{"up to half day", leave.RoundUp, "0.5", "10.1", "10.5"},
		{"down to half day", leave.RoundDown, "0.5", "10.9", "10.5"},
		{"exact value unchanged", leave.RoundUp, "", "10", "10"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			policy := leave.LeavePolicy{RoundingRule: tc.rule}
			if tc.unit != "" {
				policy.RoundingUnit = leave.MustParseDays(tc.unit)
			}
			got := leave.ApplyRounding(policy, leave.MustParseDays(tc.actual))
			assert.True(t, leave.MustParseDays(tc.want).Equal(got),
				"want %s, got %s", tc.want, got)
		})
	}
}

func TestApplyRounding_DoesNotAffectActual(t *testing.T) {
	// GIVEN: A rounding-up policy
	// WHEN: Rounding the accrued amount
	// THEN: The input amount is untouched; rounding is derivation only

	policy := monthlyPolicy()
	policy.RoundingRule = leave.RoundUp

	actual := leave.MustParseDays("10.5")
	_ = leave.ApplyRounding(policy, actual)
	assert.True(t, leave.MustParseDays("10.5").Equal(actual))
}
