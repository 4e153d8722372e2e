package leave

import (
	"time"
)

// =============================================================================
// TIME POINT - Day-granularity dates (leave is a whole-day domain)
// =============================================================================

// TimePoint is a calendar day in UTC. Every time-dependent operation in this
// package receives TimePoints explicitly; nothing reads the wall clock.
type TimePoint struct {
	Time time.Time
}

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func FromTime(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

// Today is for callers at the process boundary (HTTP handlers, main).
// Engine code must thread TimePoints through instead of calling this.
func Today() TimePoint {
	return FromTime(time.Now().UTC())
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.normalize().Before(other.normalize()) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.normalize().Equal(other.normalize()) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.normalize().After(other.normalize()) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return !tp.After(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return !tp.Before(other) }

func (tp TimePoint) normalize() time.Time {
	return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint   { return TimePoint{Time: tp.normalize().AddDate(0, 0, n)} }
func (tp TimePoint) AddMonths(n int) TimePoint { return TimePoint{Time: tp.normalize().AddDate(0, n, 0)} }
func (tp TimePoint) AddYears(n int) TimePoint  { return TimePoint{Time: tp.normalize().AddDate(n, 0, 0)} }

// Properties
func (tp TimePoint) Year() int             { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month     { return tp.Time.Month() }
func (tp TimePoint) Day() int              { return tp.Time.Day() }
func (tp TimePoint) Weekday() time.Weekday { return tp.Time.Weekday() }
func (tp TimePoint) IsWeekend() bool {
	wd := tp.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
func (tp TimePoint) IsZero() bool { return tp.Time.IsZero() }

func (tp TimePoint) String() string { return tp.normalize().Format("2006-01-02") }

// MarshalJSON encodes the day as "2006-01-02". A zero TimePoint encodes as
// the empty string so optional dates round-trip.
func (tp TimePoint) MarshalJSON() ([]byte, error) {
	if tp.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + tp.String() + `"`), nil
}

func (tp *TimePoint) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == `""` || s == "null" {
		*tp = TimePoint{}
		return nil
	}
	t, err := time.Parse(`"2006-01-02"`, s)
	if err != nil {
		return err
	}
	*tp = FromTime(t)
	return nil
}

// ParseDate parses a "2006-01-02" day string.
func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return TimePoint{}, err
	}
	return FromTime(t), nil
}

// =============================================================================
// DATE RANGE
// =============================================================================

// DateRange is an inclusive [From, To] span of days.
type DateRange struct {
	From TimePoint
	To   TimePoint
}

// Valid reports whether From <= To.
func (r DateRange) Valid() bool { return r.From.BeforeOrEqual(r.To) }

// Contains reports whether the day falls within the range.
func (r DateRange) Contains(t TimePoint) bool {
	return t.AfterOrEqual(r.From) && t.BeforeOrEqual(r.To)
}

// Overlaps reports whether two inclusive ranges intersect.
func (r DateRange) Overlaps(other DateRange) bool {
	return !r.To.Before(other.From) && !other.To.Before(r.From)
}

// Days enumerates every day in the range, inclusive.
func (r DateRange) Days() []TimePoint {
	var days []TimePoint
	for current := r.From; current.BeforeOrEqual(r.To); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

func (r DateRange) String() string {
	return "[" + r.From.String() + ", " + r.To.String() + "]"
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

func DaysBetween(from, to TimePoint) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}

func StartOfYear(year int) TimePoint { return NewTimePoint(year, time.January, 1) }
func EndOfYear(year int) TimePoint   { return NewTimePoint(year, time.December, 31) }

// MonthsBetween returns the number of COMPLETED whole months from 'from' to
// 'to'. A month completes on the same day-of-month as 'from'; months whose
// anniversary has not been reached do not count. Returns 0 when to <= from.
func MonthsBetween(from, to TimePoint) int {
	if to.BeforeOrEqual(from) {
		return 0
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if to.Day() < from.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// TenureMonths reports completed months of service between hire and asOf.
func TenureMonths(hireDate, asOf TimePoint) int {
	return MonthsBetween(hireDate, asOf)
}
