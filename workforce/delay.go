package workforce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/workforce-engine/tabular"
)

// =============================================================================
// DELAY DETECTION
// =============================================================================

// DelayEligible reports whether the sweep may move a task in status s to
// Delayed. Closed tasks are final and Delayed is never re-applied.
func DelayEligible(s TaskStatus) bool {
	return !s.Closed() && s != TaskDelayed
}

// DetectDelay returns the task marked Delayed when today is past its end
// date. The boolean reports whether anything changed. Tasks without an end
// date are left alone. Delayed is never cleared here.
func DetectDelay(t Task, today Date) (Task, bool) {
	if !DelayEligible(t.Status) || t.EndDate.IsZero() {
		return t, false
	}
	if !today.After(t.EndDate) {
		return t, false
	}
	t.Status = TaskDelayed
	return t, true
}

// =============================================================================
// SWEEPER
// =============================================================================

// RowFailure is one row a batch run could not write.
type RowFailure struct {
	Key   string `json:"key"`
	Error string `json:"error"`

	err error
}

func (f RowFailure) Unwrap() error { return f.err }

// SweepReport summarizes one delay sweep.
type SweepReport struct {
	Day      Date          `json:"day"`
	Scanned  int           `json:"scanned"`
	Delayed  []string      `json:"delayed"`
	Deferred []string      `json:"deferred,omitempty"`
	Failures []RowFailure  `json:"failures,omitempty"`
	Elapsed  time.Duration `json:"elapsedNs"`
}

// Err joins the per-task failures, or returns nil.
func (r SweepReport) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = fmt.Errorf("task %s: %w", f.Key, f.err)
	}
	return errors.Join(errs...)
}

// Sweeper marks overdue tasks as Delayed.
type Sweeper struct {
	Tasks  *tabular.Repository[Task]
	Clock  Clock
	logger zerolog.Logger
}

func NewSweeper(tasks *tabular.Repository[Task], clock Clock, logger zerolog.Logger) *Sweeper {
	return &Sweeper{Tasks: tasks, Clock: clock, logger: logger}
}

// Sweep reads every task fresh from the store and rewrites each overdue one.
// Each overdue task is read again just before its write, so an edit made
// while the sweep runs is not overwritten. A failed write is recorded and
// the sweep moves on, except on a quota failure: the sweep stops there and
// lists the overdue tasks it did not reach as Deferred. The returned error
// is non-nil only when the task list itself could not be read.
func (s *Sweeper) Sweep(ctx context.Context, today Date) (SweepReport, error) {
	start := time.Now()
	report := SweepReport{Day: today, Delayed: []string{}}

	listing := s.Tasks.List(ctx, true)
	if listing.Degraded {
		return report, fmt.Errorf("delay sweep: read tasks: %w", listing.Cause)
	}
	report.Scanned = len(listing.Items)

	for i, task := range listing.Items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if _, overdue := DetectDelay(task, today); !overdue {
			continue
		}

		delayed, err := s.markDelayed(ctx, task.TaskID, today)
		if err != nil {
			s.logger.Warn().Err(err).Str("task_id", task.TaskID).Msg("delay sweep: update failed")
			report.Failures = append(report.Failures, RowFailure{Key: task.TaskID, Error: err.Error(), err: err})
			if tabular.IsQuota(err) {
				report.Deferred = overdueIDs(listing.Items[i+1:], today)
				s.logger.Warn().Int("deferred", len(report.Deferred)).Msg("delay sweep: quota exhausted, stopping")
				break
			}
			continue
		}
		if delayed {
			report.Delayed = append(report.Delayed, task.TaskID)
		}
	}

	report.Elapsed = time.Since(start)
	s.logger.Info().
		Str("day", today.String()).
		Int("scanned", report.Scanned).
		Int("delayed", len(report.Delayed)).
		Int("failed", len(report.Failures)).
		Dur("elapsed", report.Elapsed).
		Msg("delay sweep finished")
	return report, nil
}

// markDelayed re-reads one task and writes it as Delayed if it is still
// overdue. A task deleted since the listing is skipped.
func (s *Sweeper) markDelayed(ctx context.Context, id string, today Date) (bool, error) {
	current, err := s.Tasks.Get(ctx, id, true)
	if tabular.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	updated, changed := DetectDelay(current, today)
	if !changed {
		return false, nil
	}
	updated.UpdatedAt = s.Clock.Now()
	if err := s.Tasks.Update(ctx, &updated); err != nil {
		if tabular.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func overdueIDs(tasks []Task, today Date) []string {
	var ids []string
	for _, t := range tasks {
		if _, overdue := DetectDelay(t, today); overdue {
			ids = append(ids, t.TaskID)
		}
	}
	return ids
}
