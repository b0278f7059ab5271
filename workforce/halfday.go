package workforce

// =============================================================================
// HALF-DAY VALIDATION
// =============================================================================

// ValidateHalfDay checks a half-day leave or WFH request. The checks run in
// a fixed order and the first failure wins:
//
//  1. from and to must be the same date  (multi_day)
//  2. that date must be a working day    (holiday)
//  3. that date must not be before today (past_date)
//
// Today itself is allowed.
func ValidateHalfDay(from, to, today Date, cal Calendar) error {
	if !from.Equal(to) {
		return &HalfDayRejection{Reason: ReasonMultiDay, Date: from}
	}
	if cal.IsHoliday(from) {
		return &HalfDayRejection{Reason: ReasonHoliday, Date: from}
	}
	if from.Before(today) {
		return &HalfDayRejection{Reason: ReasonPastDate, Date: from}
	}
	return nil
}

// validateRange checks the date range of any application.
func validateRange(a Application, today Date, cal Calendar) error {
	if a.EmployeeID == "" {
		return invalid("employeeId", "is required")
	}
	if a.FromDate.IsZero() {
		return invalid("fromDate", "is required")
	}
	if a.ToDate.IsZero() {
		return invalid("toDate", "is required")
	}
	if a.ToDate.Before(a.FromDate) {
		return invalid("toDate", "%s is before fromDate %s", a.ToDate, a.FromDate)
	}
	if a.IsHalfDay {
		return ValidateHalfDay(a.FromDate, a.ToDate, today, cal)
	}
	return nil
}
