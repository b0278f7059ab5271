package workforce

import "time"

// =============================================================================
// HOLIDAY CALENDAR
// =============================================================================

// Calendar decides which days are non-working.
type Calendar interface {
	IsHoliday(d Date) bool
}

// WorkCalendar is the company calendar: every Sunday, plus the 2nd and 4th
// Saturday of each month, is a holiday. There is no external holiday list.
type WorkCalendar struct{}

var _ Calendar = WorkCalendar{}

// IsHoliday implements Calendar.
func (WorkCalendar) IsHoliday(d Date) bool {
	switch d.Weekday() {
	case time.Sunday:
		return true
	case time.Saturday:
		n := SaturdayOrdinal(d)
		return n == 2 || n == 4
	}
	return false
}

// SaturdayOrdinal returns ceil(day/7): which occurrence of its weekday d is
// within its month.
func SaturdayOrdinal(d Date) int {
	return (d.Day() + 6) / 7
}

// IsWorkingDay is the negation of cal.IsHoliday.
func IsWorkingDay(cal Calendar, d Date) bool {
	return !cal.IsHoliday(d)
}

// NextWorkingDay returns the first working day strictly after d.
func NextWorkingDay(cal Calendar, d Date) Date {
	next := d.AddDays(1)
	for cal.IsHoliday(next) {
		next = next.AddDays(1)
	}
	return next
}

// WorkingDaysBetween counts working days in [from, to].
func WorkingDaysBetween(cal Calendar, from, to Date) int {
	n := 0
	for d := from; !d.After(to); d = d.AddDays(1) {
		if !cal.IsHoliday(d) {
			n++
		}
	}
	return n
}

// DayInfo describes one date for calendar screens.
type DayInfo struct {
	Date           Date   `json:"date"`
	Weekday        string `json:"weekday"`
	Holiday        bool   `json:"holiday"`
	NextWorkingDay Date   `json:"nextWorkingDay"`
}

// DescribeDay reports how cal treats d.
func DescribeDay(cal Calendar, d Date) DayInfo {
	return DayInfo{
		Date:           d,
		Weekday:        d.Weekday().String(),
		Holiday:        cal.IsHoliday(d),
		NextWorkingDay: NextWorkingDay(cal, d),
	}
}
