/*
calendar.go - Yearly calendars: holidays and blocked periods

PURPOSE:
  One calendar exists per year. It supplies the holidays that do not count
  against a leave request's duration, and the blocked periods during which
  leave cannot be taken at all (regardless of balance), unless the policy
  is exempt.

The workflow reads calendars; nothing in the engine writes them. A missing
calendar for any year a request touches is a hard validation failure.
*/
package leave

import "context"

// =============================================================================
// CALENDAR
// =============================================================================

// Holiday is a single non-working day.
type Holiday struct {
	Date TimePoint
	Name string
	Type string // e.g. "public", "company"
}

// BlockedPeriod is a span during which leave cannot be taken.
type BlockedPeriod struct {
	From   TimePoint
	To     TimePoint
	Reason string
}

func (bp BlockedPeriod) Range() DateRange {
	return DateRange{From: bp.From, To: bp.To}
}

// Calendar holds the holidays and blocked periods for one year.
type Calendar struct {
	Year           int
	Holidays       []Holiday
	BlockedPeriods []BlockedPeriod
}

// IsHoliday reports whether the given day is a holiday.
func (c Calendar) IsHoliday(day TimePoint) bool {
	for _, h := range c.Holidays {
		if h.Date.Equal(day) {
			return true
		}
	}
	return false
}

// BlockedOverlap returns the first blocked period intersecting the range.
func (c Calendar) BlockedOverlap(r DateRange) (BlockedPeriod, bool) {
	for _, bp := range c.BlockedPeriods {
		if bp.Range().Overlaps(r) {
			return bp, true
		}
	}
	return BlockedPeriod{}, false
}

// =============================================================================
// CALENDAR PROVIDER - Read-only lookup
// =============================================================================

// CalendarProvider supplies the calendar configured for a year.
type CalendarProvider interface {
	// GetCalendar returns the calendar for the year, or ErrCalendarNotFound.
	GetCalendar(ctx context.Context, year int) (Calendar, error)
}

// =============================================================================
// WORKING DAY COMPUTATION
// =============================================================================

// WorkingDays counts the days in [from, to] that are neither weekends nor
// holidays. The range may span year boundaries; a calendar must exist for
// every year touched.
func WorkingDays(ctx context.Context, provider CalendarProvider, r DateRange) (int, error) {
	if !r.Valid() {
		return 0, newValidationError(CodeInvalidRange, "range start %s is after end %s", r.From, r.To)
	}

	calendars := make(map[int]Calendar)
	for year := r.From.Year(); year <= r.To.Year(); year++ {
		cal, err := provider.GetCalendar(ctx, year)
		if err != nil {
			return 0, err
		}
		calendars[year] = cal
	}

	count := 0
	for day := r.From; day.BeforeOrEqual(r.To); day = day.AddDays(1) {
		if day.IsWeekend() {
			continue
		}
		if calendars[day.Year()].IsHoliday(day) {
			continue
		}
		count++
	}
	return count, nil
}
