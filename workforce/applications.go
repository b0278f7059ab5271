package workforce

import (
	"fmt"
	"strings"
	"time"

	"github.com/warp/workforce-engine/tabular"
)

// =============================================================================
// APPLICATION DECISIONS
// =============================================================================
//
// A leave or WFH application is decided exactly once. After that only its
// remarks history may grow.

// Decision is an approve or reject action.
type Decision struct {
	Approver string
	Remarks  string
	At       time.Time
}

// Approve returns an approved copy of a.
func Approve(a Application, d Decision) (Application, error) {
	return decide(a, AppApproved, d)
}

// Reject returns a rejected copy of a.
func Reject(a Application, d Decision) (Application, error) {
	return decide(a, AppRejected, d)
}

func decide(a Application, to ApplicationStatus, d Decision) (Application, error) {
	if a.Status != AppPending {
		return a, fmt.Errorf("%s is %s: %w", a.ID, a.Status, ErrNotPending)
	}
	if strings.TrimSpace(d.Approver) == "" {
		return a, ErrApproverRequired
	}
	a.Status = to
	a.ApprovedBy = d.Approver
	a.ApprovalDate = d.At
	a.ApprovalRemarks = d.Remarks
	a.UpdatedAt = d.At
	return a, nil
}

// AddRemark appends an attributed remark to the history. Allowed in any
// status.
func AddRemark(a Application, author, text string, at time.Time) (Application, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return a, invalid("remark", "is empty")
	}
	if author == "" {
		author = "unknown"
	}
	entry := fmt.Sprintf("[%s] %s: %s", at.UTC().Format(time.RFC3339), author, text)
	a.RemarksHistory = append(append([]string(nil), a.RemarksHistory...), entry)
	a.UpdatedAt = at
	return a, nil
}

// decisionColumns is the fast-path write for a decided application.
func decisionColumns(a Application) map[string]string {
	return map[string]string{
		ColStatus:          string(a.Status),
		ColApprovedBy:      a.ApprovedBy,
		ColApprovalDate:    tabular.FormatTime(a.ApprovalDate),
		ColApprovalRemarks: a.ApprovalRemarks,
		ColUpdatedAt:       tabular.FormatTime(a.UpdatedAt),
	}
}
