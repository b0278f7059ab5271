package workforce

import (
	"slices"
	"time"
)

// =============================================================================
// BUG LIFECYCLE
// =============================================================================

var bugTransitions = map[BugStatus][]BugStatus{
	BugOpen:       {BugInProgress, BugResolved, BugClosed},
	BugInProgress: {BugOpen, BugResolved, BugClosed},
	BugResolved:   {BugInProgress, BugClosed, BugReopened},
	BugClosed:     {BugReopened},
	BugReopened:   {BugInProgress, BugResolved, BugClosed},
}

func (s BugStatus) Valid() bool {
	_, ok := bugTransitions[s]
	return ok
}

// CanTransition reports whether a bug may move from one status to another.
// Staying in the same status is always allowed.
func CanTransition(from, to BugStatus) bool {
	if from == to {
		return to.Valid()
	}
	return slices.Contains(bugTransitions[from], to)
}

// TransitionBug moves b to status at now. ResolvedDate and ClosedDate are
// stamped on first entry only; ReopenedCount grows only on Closed->Reopened.
func TransitionBug(b Bug, to BugStatus, now time.Time) (Bug, error) {
	from := b.Status
	if from == "" {
		from = BugOpen
	}
	if !CanTransition(from, to) {
		return b, &TransitionError{From: from, To: to}
	}
	if from == to {
		return b, nil
	}

	switch to {
	case BugResolved:
		if b.ResolvedDate.IsZero() {
			b.ResolvedDate = now
		}
	case BugClosed:
		if b.ClosedDate.IsZero() {
			b.ClosedDate = now
		}
	case BugReopened:
		if from == BugClosed {
			b.ReopenedCount++
		}
	}
	b.Status = to
	b.UpdatedAt = now
	return b, nil
}
