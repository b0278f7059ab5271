package workforce

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/workforce-engine/tabular"
)

// =============================================================================
// TABLE SCHEMAS
// =============================================================================
//
// Header names are what operators see in the store, so they are human
// readable and must stay stable: renaming one is a schema migration.

const (
	TableUsers       = "Users"
	TableTasks       = "Tasks"
	TableLeaves      = "Leaves"
	TableWFH         = "WFH"
	TableBugs        = "Bugs"
	TableBugComments = "BugComments"
)

// Columns written by the approve/reject fast path.
const (
	ColStatus          = "Status"
	ColApprovedBy      = "Approved By"
	ColApprovalDate    = "Approval Date"
	ColApprovalRemarks = "Approval Remarks"
	ColUpdatedAt       = "Updated At"
	ColWarningCount    = "Warning Count"
	ColHoursLog        = "Hours Log"
	ColLastWarningDate = "Last Warning Date"
)

var UserSchema = tabular.NewSchema(TableUsers, "Employee ID",
	tabular.String("Employee ID", func(u *User) *string { return &u.EmployeeID }),
	tabular.String("Name", func(u *User) *string { return &u.Name }),
	tabular.String("Email", func(u *User) *string { return &u.Email }),
	tabular.String("Phone", func(u *User) *string { return &u.Phone }),
	tabular.String("Department", func(u *User) *string { return &u.Department }),
	tabular.String("Manager ID", func(u *User) *string { return &u.ManagerID }),
	tabular.StringAs("Role", func(u *User) *Role { return &u.Role }),
	tabular.StringAs(ColStatus, func(u *User) *UserStatus { return &u.Status }),
	tabular.Int(ColWarningCount, func(u *User) *int { return &u.WarningCount }),
	tabular.String(ColHoursLog, func(u *User) *string { return &u.HoursLog }),
	tabular.Time("Created At", func(u *User) *time.Time { return &u.CreatedAt }),
	tabular.Time(ColUpdatedAt, func(u *User) *time.Time { return &u.UpdatedAt }),
	// Appended last so rows written before the column existed stay aligned.
	dateColumn(ColLastWarningDate, func(u *User) *Date { return &u.LastWarningDate }),
)

var TaskSchema = tabular.NewSchema(TableTasks, "Task ID",
	tabular.String("Task ID", func(t *Task) *string { return &t.TaskID }),
	tabular.String("Title", func(t *Task) *string { return &t.Title }),
	tabular.String("Description", func(t *Task) *string { return &t.Description }),
	tabular.String("Assigned To", func(t *Task) *string { return &t.AssignedTo }),
	tabular.String("Assigned By", func(t *Task) *string { return &t.AssignedBy }),
	tabular.List("Support", func(t *Task) *[]string { return &t.Support }),
	dateColumn("Start Date", func(t *Task) *Date { return &t.StartDate }),
	dateColumn("End Date", func(t *Task) *Date { return &t.EndDate }),
	tabular.StringAs(ColStatus, func(t *Task) *TaskStatus { return &t.Status }),
	tabular.String("Priority", func(t *Task) *string { return &t.Priority }),
	tabular.Decimal("Estimated Hours", func(t *Task) *decimal.Decimal { return &t.EstimatedHours }),
	tabular.Decimal("Actual Hours", func(t *Task) *decimal.Decimal { return &t.ActualHours }),
	tabular.DecimalMap("Daily Hours", func(t *Task) *map[string]decimal.Decimal { return &t.DailyHours }),
	tabular.String("Remarks", func(t *Task) *string { return &t.Remarks }),
	tabular.Time("Created At", func(t *Task) *time.Time { return &t.CreatedAt }),
	tabular.Time(ColUpdatedAt, func(t *Task) *time.Time { return &t.UpdatedAt }),
)

var LeaveSchema = tabular.NewSchema(TableLeaves, "Leave ID",
	applicationColumns("Leave ID",
		func(l *LeaveApplication) *Application { return &l.Application },
		tabular.String("Leave Type", func(l *LeaveApplication) *string { return &l.LeaveType }),
	)...,
)

var WFHSchema = tabular.NewSchema(TableWFH, "WFH ID",
	applicationColumns("WFH ID",
		func(w *WFHApplication) *Application { return &w.Application },
	)...,
)

var BugSchema = tabular.NewSchema(TableBugs, "Bug ID",
	tabular.String("Bug ID", func(b *Bug) *string { return &b.BugID }),
	tabular.String("Title", func(b *Bug) *string { return &b.Title }),
	tabular.String("Description", func(b *Bug) *string { return &b.Description }),
	tabular.String("Severity", func(b *Bug) *string { return &b.Severity }),
	tabular.StringAs(ColStatus, func(b *Bug) *BugStatus { return &b.Status }),
	tabular.String("Reported By", func(b *Bug) *string { return &b.ReportedBy }),
	tabular.String("Assigned To", func(b *Bug) *string { return &b.AssignedTo }),
	tabular.Int("Reopened Count", func(b *Bug) *int { return &b.ReopenedCount }),
	tabular.Time("Resolved Date", func(b *Bug) *time.Time { return &b.ResolvedDate }),
	tabular.Time("Closed Date", func(b *Bug) *time.Time { return &b.ClosedDate }),
	tabular.List("Tags", func(b *Bug) *[]string { return &b.Tags }),
	tabular.Time("Created At", func(b *Bug) *time.Time { return &b.CreatedAt }),
	tabular.Time(ColUpdatedAt, func(b *Bug) *time.Time { return &b.UpdatedAt }),
)

var BugCommentSchema = tabular.NewSchema(TableBugComments, "Comment ID",
	tabular.String("Comment ID", func(c *BugComment) *string { return &c.CommentID }),
	tabular.String("Bug ID", func(c *BugComment) *string { return &c.BugID }),
	tabular.String("Author", func(c *BugComment) *string { return &c.Author }),
	tabular.String("Comment", func(c *BugComment) *string { return &c.Body }),
	tabular.Time("Created At", func(c *BugComment) *time.Time { return &c.CreatedAt }),
)

// applicationColumns lays out the shared leave/WFH columns; extra columns
// are placed right after the employee name.
func applicationColumns[T any](idColumn string, app func(*T) *Application, extra ...tabular.Column[T]) []tabular.Column[T] {
	cols := []tabular.Column[T]{
		tabular.String(idColumn, func(v *T) *string { return &app(v).ID }),
		tabular.String("Employee ID", func(v *T) *string { return &app(v).EmployeeID }),
		tabular.String("Employee Name", func(v *T) *string { return &app(v).EmployeeName }),
		dateColumn("From Date", func(v *T) *Date { return &app(v).FromDate }),
		dateColumn("To Date", func(v *T) *Date { return &app(v).ToDate }),
		tabular.Bool("Half Day", func(v *T) *bool { return &app(v).IsHalfDay }),
		tabular.String("Reason", func(v *T) *string { return &app(v).Reason }),
		tabular.StringAs(ColStatus, func(v *T) *ApplicationStatus { return &app(v).Status }),
		tabular.String(ColApprovedBy, func(v *T) *string { return &app(v).ApprovedBy }),
		tabular.Time(ColApprovalDate, func(v *T) *time.Time { return &app(v).ApprovalDate }),
		tabular.String(ColApprovalRemarks, func(v *T) *string { return &app(v).ApprovalRemarks }),
		tabular.List("Remarks History", func(v *T) *[]string { return &app(v).RemarksHistory }),
		tabular.Time("Applied At", func(v *T) *time.Time { return &app(v).AppliedAt }),
		tabular.Time(ColUpdatedAt, func(v *T) *time.Time { return &app(v).UpdatedAt }),
	}
	return slices.Insert(cols, 3, extra...)
}

func dateColumn[T any](name string, field func(*T) *Date) tabular.Column[T] {
	return tabular.Custom(name, tabular.KindDate,
		func(v *T) string { return field(v).String() },
		func(v *T, s string) error {
			d, err := ParseDate(s)
			if err != nil {
				return err
			}
			*field(v) = d
			return nil
		},
	)
}
