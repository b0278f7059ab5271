package workforce_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/workforce-engine/store/memory"
	"github.com/warp/workforce-engine/tabular"
	"github.com/warp/workforce-engine/workforce"
)

func quota() error {
	return &tabular.StatusError{Code: 429, Message: "RESOURCE_EXHAUSTED"}
}

func TestScheduler_QuotaBackoff(t *testing.T) {
	// GIVEN: A store that rate-limits every read of the next run
	h := newHarness(t, "2025-01-10")
	ctx := context.Background()
	sched := workforce.NewScheduler(h.svc, zerolog.Nop())
	sched.Interval = time.Hour
	sched.MaxBackoff = 3 * time.Hour
	sched.Warnings = false
	var reported atomic.Int32
	sched.OnError = func(error) { reported.Add(1) }
	h.backend.FailNext(memory.OpGetValues, quota(), quota(), quota(), quota())

	// WHEN: The scheduler ticks
	report, ran := sched.Tick(ctx)

	// THEN: The run fails with a quota error and backs off 2 intervals
	require.True(t, ran)
	assert.ErrorIs(t, report.Err(), tabular.ErrQuotaExceeded)
	assert.Equal(t, int32(1), reported.Load())
	status := sched.Status()
	assert.Equal(t, 1, status.QuotaStrikes)
	assert.Equal(t, h.clock.Now().Add(2*time.Hour), status.BackoffUntil)

	// WHEN: It ticks again inside the backoff window
	_, ran = sched.Tick(ctx)

	// THEN: The run is skipped
	assert.False(t, ran)

	// WHEN: The window has passed
	h.clock.Advance(2*time.Hour + time.Minute)
	report, ran = sched.Tick(ctx)

	// THEN: A clean run resets the backoff
	require.True(t, ran)
	assert.NoError(t, report.Err())
	assert.Equal(t, 0, sched.Status().QuotaStrikes)
	assert.True(t, sched.Status().BackoffUntil.IsZero())
}

func TestScheduler_BackoffIsCapped(t *testing.T) {
	h := newHarness(t, "2025-01-10")
	sched := workforce.NewScheduler(h.svc, zerolog.Nop())
	sched.Interval = time.Hour
	sched.MaxBackoff = 3 * time.Hour
	sched.Warnings = false

	for i := 0; i < 3; i++ {
		h.backend.FailNext(memory.OpGetValues, quota(), quota(), quota(), quota())
		sched.RunNow(context.Background())
	}

	status := sched.Status()
	assert.Equal(t, 3, status.QuotaStrikes)
	assert.Equal(t, h.clock.Now().Add(3*time.Hour), status.BackoffUntil)
}

func TestScheduler_WarningsOncePerDay(t *testing.T) {
	// GIVEN: An idle employee on Friday 2025-01-10
	h := newHarness(t, "2025-01-10")
	ctx := context.Background()
	u := h.user(t, "idle")
	sched := workforce.NewScheduler(h.svc, zerolog.Nop())

	// WHEN: Two runs happen the same day
	first := sched.RunNow(ctx)
	h.clock.Advance(time.Hour)
	second := sched.RunNow(ctx)

	// THEN: Warnings ran only in the first
	require.NotNil(t, first.Warnings)
	assert.Nil(t, second.Warnings)
	stored, err := h.svc.GetUser(ctx, u.EmployeeID, true)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.WarningCount)

	// WHEN: The weekend passes (2nd Saturday and Sunday are skipped as holidays)
	for _, day := range []string{"2025-01-11", "2025-01-12", "2025-01-13"} {
		h.clock.Set(morning(day))
		sched.RunNow(ctx)
	}

	// THEN: Only Monday added a warning
	stored, err = h.svc.GetUser(ctx, u.EmployeeID, true)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.WarningCount)
}

func TestScheduler_CancelledRunDoesNotWarnTwice(t *testing.T) {
	// GIVEN: Two idle employees and a run cancelled right after the first warning
	h := newHarness(t, "2025-01-10")
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")
	sched := workforce.NewScheduler(h.svc, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	h.backend.BeforeCall = func(op memory.Op) {
		if op == memory.OpBatchUpdate {
			cancel()
		}
	}
	first := sched.RunNow(ctx)
	h.backend.BeforeCall = nil
	require.ErrorIs(t, first.Err(), context.Canceled)

	// WHEN: The next run happens the same day
	h.clock.Advance(time.Hour)
	sched.RunNow(context.Background())

	// THEN: Each employee carries exactly one warning
	for _, u := range []workforce.User{alice, bob} {
		stored, err := h.svc.GetUser(context.Background(), u.EmployeeID, true)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.WarningCount, u.Name)
		assert.Equal(t, date("2025-01-10"), stored.LastWarningDate, u.Name)
	}
}

func TestScheduler_RestartSameDayDoesNotWarnAgain(t *testing.T) {
	// GIVEN: A run that already warned an idle employee today
	h := newHarness(t, "2025-01-10")
	ctx := context.Background()
	u := h.user(t, "idle")
	workforce.NewScheduler(h.svc, zerolog.Nop()).RunNow(ctx)

	// WHEN: The process restarts with a fresh scheduler the same day
	h.clock.Advance(time.Hour)
	run := workforce.NewScheduler(h.svc, zerolog.Nop()).RunNow(ctx)

	// THEN: The employee is skipped and the count is unchanged
	require.NotNil(t, run.Warnings)
	require.Len(t, run.Warnings.Decisions, 1)
	assert.Equal(t, workforce.SkipAlreadyWarned, run.Warnings.Decisions[0].Skipped)
	stored, err := h.svc.GetUser(ctx, u.EmployeeID, true)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.WarningCount)
}

func TestScheduler_StartStop(t *testing.T) {
	h := newHarness(t, "2025-01-10")
	task := h.task(t, "EMP-1", workforce.TaskInProgress, "2025-01-01", "2025-01-03")
	sched := workforce.NewScheduler(h.svc, zerolog.Nop())
	sched.Interval = 10 * time.Millisecond

	sched.Start()
	assert.Eventually(t, func() bool {
		return sched.Status().LastRun != nil
	}, time.Second, 5*time.Millisecond)
	sched.Stop()

	require.NotNil(t, sched.Status().LastRun.Sweep)
	got, err := h.svc.GetTask(context.Background(), task.TaskID, true)
	require.NoError(t, err)
	assert.Equal(t, workforce.TaskDelayed, got.Status)
}

func TestScheduler_RestartKeepsTicking(t *testing.T) {
	h := newHarness(t, "2025-01-10")
	sched := workforce.NewScheduler(h.svc, zerolog.Nop())
	sched.Interval = 10 * time.Millisecond
	sched.Warnings = false

	// GIVEN: A scheduler that was started and stopped once
	sched.Start()
	assert.Eventually(t, func() bool {
		return sched.Status().LastRun != nil
	}, time.Second, 5*time.Millisecond)
	sched.Stop()

	// WHEN: It is started again
	before := h.backend.Calls(memory.OpGetValues)
	sched.Start()
	defer sched.Stop()

	// THEN: Ticks keep sweeping past the immediate first run
	assert.Eventually(t, func() bool {
		return h.backend.Calls(memory.OpGetValues)-before >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestScheduler_DisabledDoesNotStart(t *testing.T) {
	h := newHarness(t, "2025-01-10")
	sched := workforce.NewScheduler(h.svc, zerolog.Nop())
	sched.Enabled = false

	sched.Start()
	sched.Stop()

	assert.Nil(t, sched.Status().LastRun)
}
