package workforce_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/warp/workforce-engine/store/memory"
	"github.com/warp/workforce-engine/tabular"
	"github.com/warp/workforce-engine/workforce"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func date(s string) workforce.Date {
	return workforce.MustParseDate(s)
}

// morning returns 09:00 UTC on the given date.
func morning(s string) time.Time {
	d := date(s)
	return time.Date(d.Year(), d.Month(), d.Day(), 9, 0, 0, 0, time.UTC)
}

type harness struct {
	backend *memory.Backend
	clock   *testClock
	svc     *workforce.Service
}

// newHarness builds a service over an empty in-memory store with retries
// that never sleep. The clock starts at 09:00 on today.
func newHarness(t *testing.T, today string) *harness {
	t.Helper()

	backend := memory.New()
	policy := tabular.NewRetryPolicy(zerolog.Nop())
	policy.Sleep = func(context.Context, time.Duration) error { return nil }
	client := tabular.NewClient(backend, tabular.WithRetryPolicy(policy))
	cache := tabular.NewCache(zerolog.Nop())
	clock := &testClock{t: morning(today)}

	svc := workforce.NewService(client, cache, workforce.Options{Clock: clock})
	require.NoError(t, svc.Bootstrap(context.Background()))
	return &harness{backend: backend, clock: clock, svc: svc}
}

func (h *harness) user(t *testing.T, name string) workforce.User {
	t.Helper()
	u, err := h.svc.CreateUser(context.Background(), workforce.User{
		Name:  name,
		Email: name + "@example.com",
		Role:  workforce.RoleEmployee,
	})
	require.NoError(t, err)
	return u
}

// task creates a task. Delayed tasks are written straight to the table, as
// an earlier sweep would have left them.
func (h *harness) task(t *testing.T, assignee string, status workforce.TaskStatus, start, end string) workforce.Task {
	t.Helper()
	initial := status
	if status == workforce.TaskDelayed {
		initial = workforce.TaskInProgress
	}
	created, err := h.svc.CreateTask(context.Background(), workforce.Task{
		Title:      "task for " + assignee,
		AssignedTo: assignee,
		Status:     initial,
		StartDate:  date(start),
		EndDate:    date(end),
	})
	require.NoError(t, err)
	if status != initial {
		created.Status = status
		require.NoError(t, h.svc.Tasks.Update(context.Background(), &created))
	}
	return created
}
