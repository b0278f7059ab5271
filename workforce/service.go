/*
service.go - Workforce operations over the tabular store

PURPOSE:
  One facade per process that owns a repository per table and exposes the
  operations the HTTP layer needs: CRUD per entity, application decisions,
  bug lifecycle, warning checks, hour logging and the delay sweep.

READS:
  Every read takes force. With force=false a fresh cached listing may be
  returned; force=true always goes to the store (still deduplicated). Reads
  that feed a write (approve, transition, warnings) always force so they
  see the latest row.

WRITES:
  Full-row writes for edits, the fast path for approve/reject and counter
  or log columns. Every write invalidates its table in the cache.

SEE ALSO:
  - tabular/repository.go: Typed access per table
  - scheduler.go: Periodic sweep and warnings
  - api/handlers.go: HTTP surface
*/
package workforce

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/workforce-engine/tabular"
)

// TTLs sets how long each table stays fresh in the cache.
type TTLs struct {
	Users        time.Duration
	Tasks        time.Duration
	Applications time.Duration
	Bugs         time.Duration
}

// DefaultTTLs: user lists change rarely, everything else is more volatile.
func DefaultTTLs() TTLs {
	return TTLs{
		Users:        5 * time.Minute,
		Tasks:        2 * time.Minute,
		Applications: 2 * time.Minute,
		Bugs:         2 * time.Minute,
	}
}

// Options configures NewService. Zero values take defaults.
type Options struct {
	TTLs     TTLs
	Calendar Calendar
	Clock    Clock
	Logger   zerolog.Logger
}

// Service is the workforce facade.
type Service struct {
	Users    *tabular.Repository[User]
	Tasks    *tabular.Repository[Task]
	Leaves   *tabular.Repository[LeaveApplication]
	WFH      *tabular.Repository[WFHApplication]
	Bugs     *tabular.Repository[Bug]
	Comments *tabular.Repository[BugComment]

	Sweeper  *Sweeper
	Warnings *WarningService

	Calendar Calendar
	Clock    Clock

	cache  *tabular.Cache
	logger zerolog.Logger
}

// NewService wires one repository per table onto client and cache.
func NewService(client *tabular.Client, cache *tabular.Cache, opts Options) *Service {
	ttl := opts.TTLs
	def := DefaultTTLs()
	if ttl.Users <= 0 {
		ttl.Users = def.Users
	}
	if ttl.Tasks <= 0 {
		ttl.Tasks = def.Tasks
	}
	if ttl.Applications <= 0 {
		ttl.Applications = def.Applications
	}
	if ttl.Bugs <= 0 {
		ttl.Bugs = def.Bugs
	}
	if opts.Calendar == nil {
		opts.Calendar = WorkCalendar{}
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}

	s := &Service{
		Users:    tabular.NewRepository(client, cache, UserSchema, ttl.Users, "EMP"),
		Tasks:    tabular.NewRepository(client, cache, TaskSchema, ttl.Tasks, "TASK"),
		Leaves:   tabular.NewRepository(client, cache, LeaveSchema, ttl.Applications, "LV"),
		WFH:      tabular.NewRepository(client, cache, WFHSchema, ttl.Applications, "WFH"),
		Bugs:     tabular.NewRepository(client, cache, BugSchema, ttl.Bugs, "BUG"),
		Comments: tabular.NewRepository(client, cache, BugCommentSchema, ttl.Bugs, "CMT"),
		Calendar: opts.Calendar,
		Clock:    opts.Clock,
		cache:    cache,
		logger:   opts.Logger,
	}
	s.Sweeper = NewSweeper(s.Tasks, s.Clock, opts.Logger)
	s.Warnings = NewWarningService(s.Users, s.Tasks, s.Calendar, s.Clock, opts.Logger)
	return s
}

// Bootstrap creates or repairs every table.
func (s *Service) Bootstrap(ctx context.Context) error {
	steps := []struct {
		table string
		fn    func(context.Context) error
	}{
		{TableUsers, s.Users.Bootstrap},
		{TableTasks, s.Tasks.Bootstrap},
		{TableLeaves, s.Leaves.Bootstrap},
		{TableWFH, s.WFH.Bootstrap},
		{TableBugs, s.Bugs.Bootstrap},
		{TableBugComments, s.Comments.Bootstrap},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("bootstrap %s: %w", step.table, err)
		}
	}
	return nil
}

// Today is the current date on the service clock.
func (s *Service) Today() Date { return Today(s.Clock) }

func (s *Service) now() time.Time { return s.Clock.Now() }

// CacheStats exposes cache counters for health checks.
func (s *Service) CacheStats() tabular.CacheStats { return s.cache.Stats() }

// =============================================================================
// USERS
// =============================================================================

func (s *Service) ListUsers(ctx context.Context, force bool) tabular.Listing[User] {
	return s.Users.List(ctx, force)
}

func (s *Service) GetUser(ctx context.Context, id string, force bool) (User, error) {
	return s.Users.Get(ctx, id, force)
}

// CreateUser adds an active employee with no warnings.
func (s *Service) CreateUser(ctx context.Context, u User) (User, error) {
	if err := validateUser(&u); err != nil {
		return User{}, err
	}
	now := s.now()
	u.Status = UserActive
	u.WarningCount = 0
	u.LastWarningDate = Date{}
	u.CreatedAt = now
	u.UpdatedAt = now
	if err := s.Users.Create(ctx, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// UpdateUser edits profile fields. Status, warnings and the hours log have
// their own operations and are carried over from the stored row.
func (s *Service) UpdateUser(ctx context.Context, u User) (User, error) {
	current, err := s.Users.Get(ctx, u.EmployeeID, true)
	if err != nil {
		return User{}, err
	}
	if err := validateUser(&u); err != nil {
		return User{}, err
	}
	u.Status = current.Status
	u.WarningCount = current.WarningCount
	u.HoursLog = current.HoursLog
	u.LastWarningDate = current.LastWarningDate
	u.CreatedAt = current.CreatedAt
	u.UpdatedAt = s.now()
	if err := s.Users.Update(ctx, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

func validateUser(u *User) error {
	u.Name = strings.TrimSpace(u.Name)
	u.Email = strings.TrimSpace(u.Email)
	if u.Name == "" {
		return invalid("name", "is required")
	}
	if u.Email == "" || !strings.Contains(u.Email, "@") {
		return invalid("email", "%q is not an email address", u.Email)
	}
	if u.Role == "" {
		u.Role = RoleEmployee
	}
	if !u.Role.Valid() {
		return invalid("role", "unknown role %q", u.Role)
	}
	return nil
}

// DeactivateUser soft-deletes an employee.
func (s *Service) DeactivateUser(ctx context.Context, id string) (User, error) {
	return s.setUserStatus(ctx, id, UserInactive)
}

// ReactivateUser is the only way back from inactive.
func (s *Service) ReactivateUser(ctx context.Context, id string) (User, error) {
	return s.setUserStatus(ctx, id, UserActive)
}

func (s *Service) setUserStatus(ctx context.Context, id string, status UserStatus) (User, error) {
	u, err := s.Users.Get(ctx, id, true)
	if err != nil {
		return User{}, err
	}
	if u.Status == status {
		return u, nil
	}
	u.Status = status
	u.UpdatedAt = s.now()
	err = s.Users.UpdateColumns(ctx, id, map[string]string{
		ColStatus:    string(status),
		ColUpdatedAt: tabular.FormatTime(u.UpdatedAt),
	})
	if err != nil {
		return User{}, err
	}
	s.logger.Info().Str("employee_id", id).Str("status", string(status)).Msg("user status changed")
	return u, nil
}

// ResetWarnings clears an employee's warning count.
func (s *Service) ResetWarnings(ctx context.Context, id string) error {
	return s.Warnings.ResetWarnings(ctx, id)
}

// CheckWarning runs the warning rule for one employee on day.
func (s *Service) CheckWarning(ctx context.Context, id string, day Date) (WarningDecision, error) {
	return s.Warnings.Check(ctx, id, day)
}

// CheckAllWarnings runs the warning rule for every active employee.
func (s *Service) CheckAllWarnings(ctx context.Context, day Date) (WarningRun, error) {
	return s.Warnings.CheckAll(ctx, day)
}

// =============================================================================
// WORK HOURS
// =============================================================================

// MaxHoursPerDay caps a single log entry.
var MaxHoursPerDay = decimal.NewFromInt(24)

// LogHours records hours worked on day in the employee's hours log.
func (s *Service) LogHours(ctx context.Context, id string, day Date, hours decimal.Decimal) (User, error) {
	if day.IsZero() {
		return User{}, invalid("date", "is required")
	}
	if hours.IsNegative() || hours.GreaterThan(MaxHoursPerDay) {
		return User{}, invalid("hours", "%s is outside 0..24", hours)
	}
	u, err := s.Users.Get(ctx, id, true)
	if err != nil {
		return User{}, err
	}
	if !u.Active() {
		return User{}, fmt.Errorf("log hours for %s: %w", id, ErrInactiveUser)
	}
	u.HoursLog = AppendHoursLog(u.HoursLog, day, hours)
	u.UpdatedAt = s.now()
	err = s.Users.UpdateColumns(ctx, id, map[string]string{
		ColHoursLog:  u.HoursLog,
		ColUpdatedAt: tabular.FormatTime(u.UpdatedAt),
	})
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// WorkHours reconciles logged against required hours for one day.
func (s *Service) WorkHours(ctx context.Context, id string, day Date, force bool) (WorkHoursReport, error) {
	u, err := s.Users.Get(ctx, id, force)
	if err != nil {
		return WorkHoursReport{}, err
	}
	apps, err := s.approvedApplications(ctx, id, force)
	if err != nil {
		return WorkHoursReport{}, err
	}
	return ReconcileHours(u, day, s.Calendar, apps), nil
}

// approvedApplications merges approved leave and WFH of one employee.
func (s *Service) approvedApplications(ctx context.Context, employeeID string, force bool) ([]Application, error) {
	leaves := s.Leaves.List(ctx, force)
	if leaves.Degraded {
		return nil, fmt.Errorf("read leaves: %w", leaves.Cause)
	}
	wfh := s.WFH.List(ctx, force)
	if wfh.Degraded {
		return nil, fmt.Errorf("read wfh: %w", wfh.Cause)
	}
	var out []Application
	for _, l := range leaves.Items {
		if l.EmployeeID == employeeID && l.Status == AppApproved {
			out = append(out, l.Application)
		}
	}
	for _, w := range wfh.Items {
		if w.EmployeeID == employeeID && w.Status == AppApproved {
			out = append(out, w.Application)
		}
	}
	return out, nil
}

// =============================================================================
// TASKS
// =============================================================================

func (s *Service) ListTasks(ctx context.Context, force bool) tabular.Listing[Task] {
	return s.Tasks.List(ctx, force)
}

// TasksFor lists tasks an employee is assigned to or supports.
func (s *Service) TasksFor(ctx context.Context, employeeID string, force bool) tabular.Listing[Task] {
	listing := s.Tasks.List(ctx, force)
	mine := make([]Task, 0)
	for _, t := range listing.Items {
		if t.Involves(employeeID) {
			mine = append(mine, t)
		}
	}
	listing.Items = mine
	return listing
}

func (s *Service) GetTask(ctx context.Context, id string, force bool) (Task, error) {
	return s.Tasks.Get(ctx, id, force)
}

func (s *Service) CreateTask(ctx context.Context, t Task) (Task, error) {
	if t.Status == "" {
		t.Status = TaskYetToStart
	}
	if t.Status == TaskDelayed {
		return Task{}, manualDelay(t.TaskID)
	}
	if err := validateTask(t); err != nil {
		return Task{}, err
	}
	now := s.now()
	t.CreatedAt = now
	t.UpdatedAt = now
	if err := s.Tasks.Create(ctx, &t); err != nil {
		return Task{}, err
	}
	return t, nil
}

// UpdateTask rewrites a task. A person may move a task out of Delayed; only
// the sweep moves tasks into it.
func (s *Service) UpdateTask(ctx context.Context, t Task) (Task, error) {
	current, err := s.Tasks.Get(ctx, t.TaskID, true)
	if err != nil {
		return Task{}, err
	}
	if t.Status == "" {
		t.Status = current.Status
	}
	if t.Status == TaskDelayed && current.Status != TaskDelayed {
		return Task{}, manualDelay(t.TaskID)
	}
	if err := validateTask(t); err != nil {
		return Task{}, err
	}
	t.CreatedAt = current.CreatedAt
	t.UpdatedAt = s.now()
	if err := s.Tasks.Update(ctx, &t); err != nil {
		return Task{}, err
	}
	return t, nil
}

func (s *Service) DeleteTask(ctx context.Context, id string) error {
	return s.Tasks.Delete(ctx, id)
}

func manualDelay(id string) error {
	return fmt.Errorf("task %s: %w: %s is set by the delay sweep only", id, ErrInvalidTransition, TaskDelayed)
}

func validateTask(t Task) error {
	if strings.TrimSpace(t.Title) == "" {
		return invalid("title", "is required")
	}
	if t.AssignedTo == "" {
		return invalid("assignedTo", "is required")
	}
	if !t.Status.Valid() {
		return invalid("status", "unknown task status %q", t.Status)
	}
	if !t.StartDate.IsZero() && !t.EndDate.IsZero() && t.EndDate.Before(t.StartDate) {
		return invalid("endDate", "%s is before startDate %s", t.EndDate, t.StartDate)
	}
	if t.EstimatedHours.IsNegative() || t.ActualHours.IsNegative() {
		return invalid("hours", "must not be negative")
	}
	return nil
}

// SweepDelays marks every overdue task as Delayed.
func (s *Service) SweepDelays(ctx context.Context, day Date) (SweepReport, error) {
	return s.Sweeper.Sweep(ctx, day)
}

// =============================================================================
// LEAVE / WFH
// =============================================================================

func (s *Service) ListLeaves(ctx context.Context, force bool) tabular.Listing[LeaveApplication] {
	return s.Leaves.List(ctx, force)
}

func (s *Service) GetLeave(ctx context.Context, id string, force bool) (LeaveApplication, error) {
	return s.Leaves.Get(ctx, id, force)
}

// ApplyLeave files a pending leave application.
func (s *Service) ApplyLeave(ctx context.Context, l LeaveApplication) (LeaveApplication, error) {
	if err := s.prepareApplication(&l.Application); err != nil {
		return LeaveApplication{}, err
	}
	if strings.TrimSpace(l.LeaveType) == "" {
		return LeaveApplication{}, invalid("leaveType", "is required")
	}
	if err := s.Leaves.Create(ctx, &l); err != nil {
		return LeaveApplication{}, err
	}
	return l, nil
}

func (s *Service) ApproveLeave(ctx context.Context, id string, d Decision) (LeaveApplication, error) {
	return decideApplication(ctx, s, s.Leaves, leaveApp, id, AppApproved, d)
}

func (s *Service) RejectLeave(ctx context.Context, id string, d Decision) (LeaveApplication, error) {
	return decideApplication(ctx, s, s.Leaves, leaveApp, id, AppRejected, d)
}

func (s *Service) AddLeaveRemark(ctx context.Context, id, author, text string) (LeaveApplication, error) {
	return remarkApplication(ctx, s, s.Leaves, leaveApp, id, author, text)
}

func (s *Service) DeleteLeave(ctx context.Context, id string) error {
	return s.Leaves.Delete(ctx, id)
}

func (s *Service) ListWFH(ctx context.Context, force bool) tabular.Listing[WFHApplication] {
	return s.WFH.List(ctx, force)
}

func (s *Service) GetWFH(ctx context.Context, id string, force bool) (WFHApplication, error) {
	return s.WFH.Get(ctx, id, force)
}

// ApplyWFH files a pending work-from-home application.
func (s *Service) ApplyWFH(ctx context.Context, w WFHApplication) (WFHApplication, error) {
	if err := s.prepareApplication(&w.Application); err != nil {
		return WFHApplication{}, err
	}
	if err := s.WFH.Create(ctx, &w); err != nil {
		return WFHApplication{}, err
	}
	return w, nil
}

func (s *Service) ApproveWFH(ctx context.Context, id string, d Decision) (WFHApplication, error) {
	return decideApplication(ctx, s, s.WFH, wfhApp, id, AppApproved, d)
}

func (s *Service) RejectWFH(ctx context.Context, id string, d Decision) (WFHApplication, error) {
	return decideApplication(ctx, s, s.WFH, wfhApp, id, AppRejected, d)
}

func (s *Service) AddWFHRemark(ctx context.Context, id, author, text string) (WFHApplication, error) {
	return remarkApplication(ctx, s, s.WFH, wfhApp, id, author, text)
}

func (s *Service) DeleteWFH(ctx context.Context, id string) error {
	return s.WFH.Delete(ctx, id)
}

func leaveApp(l *LeaveApplication) *Application { return &l.Application }
func wfhApp(w *WFHApplication) *Application     { return &w.Application }

func (s *Service) prepareApplication(a *Application) error {
	if err := validateRange(*a, s.Today(), s.Calendar); err != nil {
		return err
	}
	now := s.now()
	a.ID = ""
	a.Status = AppPending
	a.ApprovedBy = ""
	a.ApprovalDate = time.Time{}
	a.ApprovalRemarks = ""
	a.AppliedAt = now
	a.UpdatedAt = now
	return nil
}

// decideApplication approves or rejects through the fast path so only the
// decision cells are written.
func decideApplication[T any](ctx context.Context, s *Service, repo *tabular.Repository[T], app func(*T) *Application, id string, to ApplicationStatus, d Decision) (T, error) {
	var zero T
	item, err := repo.Get(ctx, id, true)
	if err != nil {
		return zero, err
	}
	if d.At.IsZero() {
		d.At = s.now()
	}
	decided, err := decide(*app(&item), to, d)
	if err != nil {
		return zero, err
	}
	if err := repo.UpdateColumns(ctx, id, decisionColumns(decided)); err != nil {
		return zero, err
	}
	*app(&item) = decided
	s.logger.Info().
		Str("table", repo.Schema.Table).
		Str("id", id).
		Str("status", string(to)).
		Str("approver", d.Approver).
		Msg("application decided")
	return item, nil
}

func remarkApplication[T any](ctx context.Context, s *Service, repo *tabular.Repository[T], app func(*T) *Application, id, author, text string) (T, error) {
	var zero T
	item, err := repo.Get(ctx, id, true)
	if err != nil {
		return zero, err
	}
	updated, err := AddRemark(*app(&item), author, text, s.now())
	if err != nil {
		return zero, err
	}
	*app(&item) = updated
	if err := repo.Update(ctx, &item); err != nil {
		return zero, err
	}
	return item, nil
}

// =============================================================================
// BUGS
// =============================================================================

func (s *Service) ListBugs(ctx context.Context, force bool) tabular.Listing[Bug] {
	return s.Bugs.List(ctx, force)
}

func (s *Service) GetBug(ctx context.Context, id string, force bool) (Bug, error) {
	return s.Bugs.Get(ctx, id, force)
}

// ReportBug files a new Open bug.
func (s *Service) ReportBug(ctx context.Context, b Bug) (Bug, error) {
	if strings.TrimSpace(b.Title) == "" {
		return Bug{}, invalid("title", "is required")
	}
	if b.ReportedBy == "" {
		return Bug{}, invalid("reportedBy", "is required")
	}
	now := s.now()
	b.BugID = ""
	b.Status = BugOpen
	b.ReopenedCount = 0
	b.ResolvedDate = time.Time{}
	b.ClosedDate = time.Time{}
	b.CreatedAt = now
	b.UpdatedAt = now
	if err := s.Bugs.Create(ctx, &b); err != nil {
		return Bug{}, err
	}
	return b, nil
}

// UpdateBug edits descriptive fields. A different Status is applied through
// TransitionBug so lifecycle stamps stay correct.
func (s *Service) UpdateBug(ctx context.Context, b Bug) (Bug, error) {
	current, err := s.Bugs.Get(ctx, b.BugID, true)
	if err != nil {
		return Bug{}, err
	}
	if strings.TrimSpace(b.Title) == "" {
		return Bug{}, invalid("title", "is required")
	}
	next := current
	next.Title = b.Title
	next.Description = b.Description
	next.Severity = b.Severity
	next.AssignedTo = b.AssignedTo
	next.Tags = b.Tags
	now := s.now()
	if b.Status != "" && b.Status != current.Status {
		if next, err = TransitionBug(next, b.Status, now); err != nil {
			return Bug{}, err
		}
	}
	next.UpdatedAt = now
	if err := s.Bugs.Update(ctx, &next); err != nil {
		return Bug{}, err
	}
	return next, nil
}

// TransitionBugStatus moves a bug along its lifecycle.
func (s *Service) TransitionBugStatus(ctx context.Context, id string, to BugStatus) (Bug, error) {
	b, err := s.Bugs.Get(ctx, id, true)
	if err != nil {
		return Bug{}, err
	}
	next, err := TransitionBug(b, to, s.now())
	if err != nil {
		return Bug{}, err
	}
	if next.Status == b.Status {
		return b, nil
	}
	if err := s.Bugs.Update(ctx, &next); err != nil {
		return Bug{}, err
	}
	return next, nil
}

func (s *Service) DeleteBug(ctx context.Context, id string) error {
	return s.Bugs.Delete(ctx, id)
}

// ListComments returns the comments on one bug in insertion order.
func (s *Service) ListComments(ctx context.Context, bugID string, force bool) tabular.Listing[BugComment] {
	listing := s.Comments.List(ctx, force)
	mine := make([]BugComment, 0)
	for _, c := range listing.Items {
		if c.BugID == bugID {
			mine = append(mine, c)
		}
	}
	listing.Items = mine
	return listing
}

// AddComment appends a comment to an existing bug.
func (s *Service) AddComment(ctx context.Context, bugID, author, body string) (BugComment, error) {
	if strings.TrimSpace(body) == "" {
		return BugComment{}, invalid("body", "is required")
	}
	if author == "" {
		return BugComment{}, invalid("author", "is required")
	}
	if _, err := s.Bugs.Get(ctx, bugID, false); err != nil {
		return BugComment{}, err
	}
	c := BugComment{BugID: bugID, Author: author, Body: body, CreatedAt: s.now()}
	if err := s.Comments.Create(ctx, &c); err != nil {
		return BugComment{}, err
	}
	return c, nil
}
