package workforce

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// USERS
// =============================================================================

type Role string

const (
	RoleEmployee      Role = "employee"
	RoleManagement    Role = "management"
	RoleTopManagement Role = "top_management"
	RoleAdmin         Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleEmployee, RoleManagement, RoleTopManagement, RoleAdmin:
		return true
	}
	return false
}

type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserInactive UserStatus = "inactive"
)

// User is an employee record. WarningCount is only raised by the warning
// check and only lowered by an explicit reset.
type User struct {
	EmployeeID   string     `json:"employeeId"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone,omitempty"`
	Department   string     `json:"department,omitempty"`
	ManagerID    string     `json:"managerId,omitempty"`
	Role         Role       `json:"role"`
	Status       UserStatus `json:"status"`
	WarningCount int        `json:"warningCount"`
	HoursLog     string     `json:"hoursLog,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`

	// LastWarningDate is the working day of the most recent warning.
	LastWarningDate Date `json:"lastWarningDate,omitzero"`
}

func (u User) Active() bool { return u.Status != UserInactive }

// =============================================================================
// TASKS
// =============================================================================

type TaskStatus string

const (
	TaskYetToStart TaskStatus = "Yet to Start"
	TaskInProgress TaskStatus = "In Progress"
	TaskDelayed    TaskStatus = "Delayed"
	TaskDone       TaskStatus = "Done"
	TaskCancel     TaskStatus = "Cancel"
	TaskHold       TaskStatus = "Hold"
	TaskReOpened   TaskStatus = "ReOpened"
	TaskStop       TaskStatus = "Stop"
)

var taskStatuses = []TaskStatus{
	TaskYetToStart, TaskInProgress, TaskDelayed, TaskDone,
	TaskCancel, TaskHold, TaskReOpened, TaskStop,
}

func (s TaskStatus) Valid() bool { return slices.Contains(taskStatuses, s) }

// Closed reports whether the task is finished one way or another. Closed
// tasks are never touched by the sweep and never count as active work.
func (s TaskStatus) Closed() bool {
	return s == TaskDone || s == TaskCancel || s == TaskStop
}

type Task struct {
	TaskID         string                     `json:"taskId"`
	Title          string                     `json:"title"`
	Description    string                     `json:"description,omitempty"`
	AssignedTo     string                     `json:"assignedTo"`
	AssignedBy     string                     `json:"assignedBy,omitempty"`
	Support        []string                   `json:"support,omitempty"`
	StartDate      Date                       `json:"startDate"`
	EndDate        Date                       `json:"endDate"`
	Status         TaskStatus                 `json:"status"`
	Priority       string                     `json:"priority,omitempty"`
	EstimatedHours decimal.Decimal            `json:"estimatedHours"`
	ActualHours    decimal.Decimal            `json:"actualHours"`
	DailyHours     map[string]decimal.Decimal `json:"dailyHours,omitempty"`
	Remarks        string                     `json:"remarks,omitempty"`
	CreatedAt      time.Time                  `json:"createdAt"`
	UpdatedAt      time.Time                  `json:"updatedAt"`
}

// Involves reports whether employeeID is the assignee or on the support list.
func (t Task) Involves(employeeID string) bool {
	return t.AssignedTo == employeeID || slices.Contains(t.Support, employeeID)
}

// =============================================================================
// LEAVE / WFH APPLICATIONS
// =============================================================================

type ApplicationStatus string

const (
	AppPending  ApplicationStatus = "Pending"
	AppApproved ApplicationStatus = "Approved"
	AppRejected ApplicationStatus = "Rejected"
)

// Application holds the fields leave and WFH requests share.
type Application struct {
	ID              string            `json:"id"`
	EmployeeID      string            `json:"employeeId"`
	EmployeeName    string            `json:"employeeName,omitempty"`
	FromDate        Date              `json:"fromDate"`
	ToDate          Date              `json:"toDate"`
	IsHalfDay       bool              `json:"isHalfDay"`
	Reason          string            `json:"reason,omitempty"`
	Status          ApplicationStatus `json:"status"`
	ApprovedBy      string            `json:"approvedBy,omitempty"`
	ApprovalDate    time.Time         `json:"approvalDate,omitzero"`
	ApprovalRemarks string            `json:"approvalRemarks,omitempty"`
	RemarksHistory  []string          `json:"remarksHistory,omitempty"`
	AppliedAt       time.Time         `json:"appliedAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// Covers reports whether d falls inside the application's date range.
func (a Application) Covers(d Date) bool {
	return !a.FromDate.IsZero() && d.Within(a.FromDate, a.ToDate)
}

type LeaveApplication struct {
	Application
	LeaveType string `json:"leaveType"`
}

type WFHApplication struct {
	Application
}

// =============================================================================
// BUGS
// =============================================================================

type BugStatus string

const (
	BugOpen       BugStatus = "Open"
	BugInProgress BugStatus = "In Progress"
	BugResolved   BugStatus = "Resolved"
	BugClosed     BugStatus = "Closed"
	BugReopened   BugStatus = "Reopened"
)

type Bug struct {
	BugID         string    `json:"bugId"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Severity      string    `json:"severity,omitempty"`
	Status        BugStatus `json:"status"`
	ReportedBy    string    `json:"reportedBy"`
	AssignedTo    string    `json:"assignedTo,omitempty"`
	ReopenedCount int       `json:"reopenedCount"`
	ResolvedDate  time.Time `json:"resolvedDate,omitzero"`
	ClosedDate    time.Time `json:"closedDate,omitzero"`
	Tags          []string  `json:"tags,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type BugComment struct {
	CommentID string    `json:"commentId"`
	BugID     string    `json:"bugId"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}
