package workforce

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// WORK-HOUR RECONCILIATION
// =============================================================================
//
// Employees log their hours as free text, one line per day:
//
//	2025-01-10 - 8.5 hours worked
//	1/13/2025: 4 hours worked (half day)
//
// The line for a day is the first one whose embedded date matches it. The
// amount is the number in front of "hours worked".

var (
	FullDayHours = decimal.RequireFromString("8.5")
	HalfDayHours = decimal.RequireFromString("4.5")
)

var (
	isoDatePattern   = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	slashDatePattern = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	hoursPattern     = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:hours?|hrs?)\s+worked`)
)

// RequiredHours is what an employee owes on day: nothing on a holiday,
// half a day when an approved half-day application covers it, otherwise a
// full day.
func RequiredHours(day Date, cal Calendar, approved []Application) decimal.Decimal {
	if cal.IsHoliday(day) {
		return decimal.Zero
	}
	if coveredByHalfDay(day, approved) {
		return HalfDayHours
	}
	return FullDayHours
}

func coveredByHalfDay(day Date, apps []Application) bool {
	for _, a := range apps {
		if a.Status == AppApproved && a.IsHalfDay && a.Covers(day) {
			return true
		}
	}
	return false
}

// lineDate extracts the first date written on a log line.
func lineDate(line string) (Date, bool) {
	type hit struct {
		at int
		d  Date
	}
	var best *hit
	if m := isoDatePattern.FindStringSubmatchIndex(line); m != nil {
		y, _ := strconv.Atoi(line[m[2]:m[3]])
		mo, _ := strconv.Atoi(line[m[4]:m[5]])
		d, _ := strconv.Atoi(line[m[6]:m[7]])
		if valid(y, mo, d) {
			best = &hit{at: m[0], d: NewDate(y, time.Month(mo), d)}
		}
	}
	if m := slashDatePattern.FindStringSubmatchIndex(line); m != nil && (best == nil || m[0] < best.at) {
		mo, _ := strconv.Atoi(line[m[2]:m[3]])
		d, _ := strconv.Atoi(line[m[4]:m[5]])
		y, _ := strconv.Atoi(line[m[6]:m[7]])
		if valid(y, mo, d) {
			best = &hit{at: m[0], d: NewDate(y, time.Month(mo), d)}
		}
	}
	if best == nil {
		return Date{}, false
	}
	return best.d, true
}

func valid(y, m, d int) bool {
	if m < 1 || m > 12 || d < 1 {
		return false
	}
	return NewDate(y, time.Month(m), d).Day() == d
}

// ParseHoursLogged returns the hours recorded for day in log, and whether a
// line for that day was found. A matching line without a readable amount
// counts as found with zero hours.
func ParseHoursLogged(log string, day Date) (decimal.Decimal, bool) {
	for _, line := range strings.Split(log, "\n") {
		d, ok := lineDate(line)
		if !ok || !d.Equal(day) {
			continue
		}
		m := hoursPattern.FindStringSubmatch(line)
		if m == nil {
			return decimal.Zero, true
		}
		hours, err := decimal.NewFromString(m[1])
		if err != nil {
			return decimal.Zero, true
		}
		return hours, true
	}
	return decimal.Zero, false
}

// FormatHoursLine renders the canonical log line for day.
func FormatHoursLine(day Date, hours decimal.Decimal) string {
	return fmt.Sprintf("%s - %s hours worked", day, hours.String())
}

// AppendHoursLog records hours for day, replacing an existing line for the
// same date. Other lines are kept untouched and in order.
func AppendHoursLog(log string, day Date, hours decimal.Decimal) string {
	entry := FormatHoursLine(day, hours)
	var lines []string
	replaced := false
	for _, line := range strings.Split(log, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if d, ok := lineDate(line); ok && d.Equal(day) {
			if !replaced {
				lines = append(lines, entry)
				replaced = true
			}
			continue
		}
		lines = append(lines, line)
	}
	if !replaced {
		lines = append(lines, entry)
	}
	return strings.Join(lines, "\n")
}

// WorkHoursReport compares logged against required hours for one day.
type WorkHoursReport struct {
	EmployeeID string          `json:"employeeId"`
	Day        Date            `json:"day"`
	Holiday    bool            `json:"holiday"`
	HalfDay    bool            `json:"halfDay"`
	Required   decimal.Decimal `json:"required"`
	Actual     decimal.Decimal `json:"actual"`
	Logged     bool            `json:"logged"`
	Deficit    decimal.Decimal `json:"deficit"`
	Compliant  bool            `json:"compliant"`
}

// ReconcileHours builds the report for u on day. approved may contain any
// applications; only approved half-day ones belonging to u matter.
func ReconcileHours(u User, day Date, cal Calendar, approved []Application) WorkHoursReport {
	var mine []Application
	for _, a := range approved {
		if a.EmployeeID == u.EmployeeID {
			mine = append(mine, a)
		}
	}
	required := RequiredHours(day, cal, mine)
	actual, logged := ParseHoursLogged(u.HoursLog, day)

	deficit := required.Sub(actual)
	if deficit.IsNegative() {
		deficit = decimal.Zero
	}
	return WorkHoursReport{
		EmployeeID: u.EmployeeID,
		Day:        day,
		Holiday:    cal.IsHoliday(day),
		HalfDay:    !cal.IsHoliday(day) && coveredByHalfDay(day, mine),
		Required:   required,
		Actual:     actual,
		Logged:     logged,
		Deficit:    deficit,
		Compliant:  actual.GreaterThanOrEqual(required),
	}
}
