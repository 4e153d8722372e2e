/*
policies.go - Pre-built leave policy configurations

PURPOSE:
  Ready-to-use policy and leave-type configurations for common HR setups.
  These are starting points: real deployments tune rates, caps and notice
  periods per jurisdiction.

AVAILABLE CONFIGURATIONS:
  AnnualLeaveConfig:    21 days/year accrued monthly (1.75/month), rounded
                        up, 5 days carry-forward, 7 days notice, 6 months
                        tenure gate
  SickLeaveConfig:      14 days granted yearly, no carry-forward, medical
                        attachment required, exempt from blocked periods
  EmergencyLeaveConfig: small fixed grant, negative balance allowed, no
                        notice, exempt from blocked periods
*/
package leave

// =============================================================================
// COMMON CONFIGURATIONS
// =============================================================================

// PolicyConfig bundles a leave type with its governing policy.
type PolicyConfig struct {
	Type   LeaveType
	Policy LeavePolicy
}

// AnnualLeaveConfig is the standard annual leave setup.
func AnnualLeaveConfig(typeID LeaveTypeID, policyID PolicyID) PolicyConfig {
	return PolicyConfig{
		Type: LeaveType{
			ID:         typeID,
			Code:       "AL",
			Name:       "Annual Leave",
			Paid:       true,
			Deductible: true,
			Attachment: AttachmentNone,
		},
		Policy: LeavePolicy{
			ID:                  policyID,
			LeaveTypeID:         typeID,
			AccrualMethod:       AccrualMonthly,
			MonthlyRate:         MustParseDays("1.75"), // 21 days / 12
			YearlyRate:          Days(21),
			CarryForwardAllowed: true,
			MaxCarryForward:     Days(5),
			RoundingRule:        RoundUp,
			MinNoticeDays:       7,
			MinTenureMonths:     6,
			Version:             1,
		},
	}
}

// SickLeaveConfig is the standard sick leave setup.
func SickLeaveConfig(typeID LeaveTypeID, policyID PolicyID) PolicyConfig {
	return PolicyConfig{
		Type: LeaveType{
			ID:         typeID,
			Code:       "SL",
			Name:       "Sick Leave",
			Paid:       true,
			Deductible: true,
			Attachment: AttachmentMedical,
		},
		Policy: LeavePolicy{
			ID:                  policyID,
			LeaveTypeID:         typeID,
			AccrualMethod:       AccrualYearly,
			YearlyRate:          Days(14),
			CarryForwardAllowed: false,
			RoundingRule:        RoundNone,
			MinNoticeDays:       0,
			BlockedPeriodExempt: true, // sickness does not respect freezes
			Version:             1,
		},
	}
}

// EmergencyLeaveConfig covers leave types that may overdraw the balance.
func EmergencyLeaveConfig(typeID LeaveTypeID, policyID PolicyID, yearlyDays float64) PolicyConfig {
	return PolicyConfig{
		Type: LeaveType{
			ID:         typeID,
			Code:       "EM",
			Name:       "Emergency Leave",
			Paid:       true,
			Deductible: true,
			Attachment: AttachmentOther,
		},
		Policy: LeavePolicy{
			ID:                  policyID,
			LeaveTypeID:         typeID,
			AccrualMethod:       AccrualNone,
			YearlyRate:          Days(yearlyDays),
			CarryForwardAllowed: false,
			RoundingRule:        RoundNone,
			AllowNegative:       true,
			BlockedPeriodExempt: true,
			Version:             1,
		},
	}
}

// YearEndFreezeCalendar builds a calendar with the Dec 25-31 freeze and the
// given public holidays. The freeze mirrors the typical end-of-year change
// blackout.
func YearEndFreezeCalendar(year int, holidays []Holiday) Calendar {
	return Calendar{
		Year:     year,
		Holidays: holidays,
		BlockedPeriods: []BlockedPeriod{{
			From:   NewTimePoint(year, 12, 25),
			To:     NewTimePoint(year, 12, 31),
			Reason: "End of Year Freeze",
		}},
	}
}
