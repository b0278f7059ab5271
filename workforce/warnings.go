package workforce

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/warp/workforce-engine/tabular"
)

// =============================================================================
// WARNING ESCALATION
// =============================================================================
//
// On every working day an active employee must have at least one open task
// scheduled for that day, either as assignee or on the support list. Each
// day without one raises their warning count by one. The count only goes
// back down through an explicit reset.
//
// The day of the last warning is stored on the user row in the same write
// as the count, so a day is never warned twice, whatever happens to the
// process between runs.

const (
	SkipHoliday       = "holiday"
	SkipInactive      = "inactive"
	SkipAlreadyWarned = "already_warned"
)

// WarningDecision is the outcome of checking one employee on one day.
type WarningDecision struct {
	EmployeeID   string   `json:"employeeId"`
	Day          Date     `json:"day"`
	Skipped      string   `json:"skipped,omitempty"`
	Warned       bool     `json:"warned"`
	WarningCount int      `json:"warningCount"`
	Message      string   `json:"message,omitempty"`
	ActiveTasks  []string `json:"activeTasks,omitempty"`
}

// ScheduledFor reports whether t counts as active work for employeeID on
// day: involved, not closed, and day within [StartDate, EndDate]. A missing
// date leaves that side of the range open.
func ScheduledFor(t Task, employeeID string, day Date) bool {
	return t.Involves(employeeID) && !t.Status.Closed() && day.Within(t.StartDate, t.EndDate)
}

// WarningMessage is the text shown to the employee for warning n.
func WarningMessage(n int, day Date) string {
	return fmt.Sprintf("Warning #%d: no active task was scheduled for you on %s. Please ask your manager for an assignment.", n, day)
}

// EvaluateWarning decides whether u earns a warning on day. It does no I/O.
func EvaluateWarning(u User, tasks []Task, day Date, cal Calendar) WarningDecision {
	d := WarningDecision{EmployeeID: u.EmployeeID, Day: day, WarningCount: u.WarningCount}
	if cal.IsHoliday(day) {
		d.Skipped = SkipHoliday
		return d
	}
	if !u.Active() {
		d.Skipped = SkipInactive
		return d
	}
	if u.LastWarningDate.Equal(day) {
		d.Skipped = SkipAlreadyWarned
		return d
	}
	for _, t := range tasks {
		if ScheduledFor(t, u.EmployeeID, day) {
			d.ActiveTasks = append(d.ActiveTasks, t.TaskID)
		}
	}
	if len(d.ActiveTasks) > 0 {
		return d
	}
	d.Warned = true
	d.WarningCount = u.WarningCount + 1
	d.Message = WarningMessage(d.WarningCount, day)
	return d
}

// WarningRun summarizes a check across all users.
type WarningRun struct {
	Day       Date              `json:"day"`
	Skipped   string            `json:"skipped,omitempty"`
	Checked   int               `json:"checked"`
	Decisions []WarningDecision `json:"decisions"`
	Failures  []RowFailure      `json:"failures,omitempty"`
}

// Warned returns the decisions that raised a warning.
func (r WarningRun) Warned() []WarningDecision {
	var out []WarningDecision
	for _, d := range r.Decisions {
		if d.Warned {
			out = append(out, d)
		}
	}
	return out
}

// =============================================================================
// WARNING SERVICE
// =============================================================================

type WarningService struct {
	Users    *tabular.Repository[User]
	Tasks    *tabular.Repository[Task]
	Calendar Calendar
	Clock    Clock
	logger   zerolog.Logger
}

func NewWarningService(users *tabular.Repository[User], tasks *tabular.Repository[Task], cal Calendar, clock Clock, logger zerolog.Logger) *WarningService {
	return &WarningService{Users: users, Tasks: tasks, Calendar: cal, Clock: clock, logger: logger}
}

// Check evaluates one employee and persists a raised count. Holidays return
// immediately without touching the store.
func (ws *WarningService) Check(ctx context.Context, employeeID string, day Date) (WarningDecision, error) {
	if ws.Calendar.IsHoliday(day) {
		return WarningDecision{EmployeeID: employeeID, Day: day, Skipped: SkipHoliday}, nil
	}
	user, err := ws.Users.Get(ctx, employeeID, true)
	if err != nil {
		return WarningDecision{}, err
	}
	tasks := ws.Tasks.List(ctx, true)
	if tasks.Degraded {
		return WarningDecision{}, fmt.Errorf("warning check: read tasks: %w", tasks.Cause)
	}
	return ws.apply(ctx, user, tasks.Items, day)
}

// CheckAll evaluates every user against one fresh task listing. A failed
// write for one user does not stop the others.
func (ws *WarningService) CheckAll(ctx context.Context, day Date) (WarningRun, error) {
	run := WarningRun{Day: day, Decisions: []WarningDecision{}}
	if ws.Calendar.IsHoliday(day) {
		run.Skipped = SkipHoliday
		return run, nil
	}

	users := ws.Users.List(ctx, true)
	if users.Degraded {
		return run, fmt.Errorf("warning check: read users: %w", users.Cause)
	}
	tasks := ws.Tasks.List(ctx, true)
	if tasks.Degraded {
		return run, fmt.Errorf("warning check: read tasks: %w", tasks.Cause)
	}

	for _, u := range users.Items {
		if err := ctx.Err(); err != nil {
			return run, err
		}
		if !u.Active() {
			continue
		}
		run.Checked++
		d, err := ws.apply(ctx, u, tasks.Items, day)
		if err != nil {
			run.Failures = append(run.Failures, RowFailure{Key: u.EmployeeID, Error: err.Error(), err: err})
			continue
		}
		run.Decisions = append(run.Decisions, d)
	}

	ws.logger.Info().
		Str("day", day.String()).
		Int("checked", run.Checked).
		Int("warned", len(run.Warned())).
		Int("failed", len(run.Failures)).
		Msg("warning check finished")
	return run, nil
}

func (ws *WarningService) apply(ctx context.Context, u User, tasks []Task, day Date) (WarningDecision, error) {
	d := EvaluateWarning(u, tasks, day, ws.Calendar)
	if !d.Warned {
		return d, nil
	}
	err := ws.Users.UpdateColumns(ctx, u.EmployeeID, map[string]string{
		ColWarningCount:    strconv.Itoa(d.WarningCount),
		ColLastWarningDate: day.String(),
		ColUpdatedAt:       tabular.FormatTime(ws.Clock.Now()),
	})
	if err != nil {
		return WarningDecision{}, err
	}
	ws.logger.Info().
		Str("employee_id", u.EmployeeID).
		Int("warning_count", d.WarningCount).
		Str("day", day.String()).
		Msg("warning issued")
	return d, nil
}

// ResetWarnings sets an employee's warning count back to zero. The last
// warning date is kept, so a reset does not reopen a day already warned.
func (ws *WarningService) ResetWarnings(ctx context.Context, employeeID string) error {
	if _, err := ws.Users.Get(ctx, employeeID, true); err != nil {
		return err
	}
	return ws.Users.UpdateColumns(ctx, employeeID, map[string]string{
		ColWarningCount: "0",
		ColUpdatedAt:    tabular.FormatTime(ws.Clock.Now()),
	})
}
