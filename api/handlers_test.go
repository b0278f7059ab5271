package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/workforce-engine/api"
	"github.com/warp/workforce-engine/store/memory"
	"github.com/warp/workforce-engine/tabular"
	"github.com/warp/workforce-engine/workforce"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type testServer struct {
	backend *memory.Backend
	svc     *workforce.Service
	router  http.Handler
}

// newTestServer serves an empty in-memory store. Today is Friday 2025-01-10.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	backend := memory.New()
	policy := tabular.NewRetryPolicy(zerolog.Nop())
	policy.Sleep = func(context.Context, time.Duration) error { return nil }
	client := tabular.NewClient(backend, tabular.WithRetryPolicy(policy))
	cache := tabular.NewCache(zerolog.Nop())
	clock := workforce.FixedClock(time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC))

	svc := workforce.NewService(client, cache, workforce.Options{Clock: clock})
	require.NoError(t, svc.Bootstrap(context.Background()))

	scheduler := workforce.NewScheduler(svc, zerolog.Nop())
	router := api.NewRouter(api.NewHandler(svc, scheduler), api.RouterOptions{Logger: zerolog.Nop()})
	return &testServer{backend: backend, svc: svc, router: router}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (s *testServer) createUser(t *testing.T, name string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/users", map[string]any{
		"name":  name,
		"email": name + "@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody(t, rec)["employeeId"].(string)
}

// =============================================================================
// USERS
// =============================================================================

func TestUserLifecycle(t *testing.T) {
	s := newTestServer(t)

	// GIVEN: A new user
	id := s.createUser(t, "ann")

	// WHEN: Fetching it
	rec := s.do(t, http.MethodGet, "/api/users/"+id, nil)

	// THEN: It is active with no warnings
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "active", body["status"])
	assert.Equal(t, "employee", body["role"])
	assert.Equal(t, float64(0), body["warningCount"])

	// WHEN: Deleting it
	rec = s.do(t, http.MethodDelete, "/api/users/"+id, nil)

	// THEN: The row stays, marked inactive
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/users?status=inactive", nil)
	list := decodeBody(t, rec)
	assert.Equal(t, float64(1), list["count"])
	assert.Equal(t, false, list["degraded"])

	rec = s.do(t, http.MethodPost, "/api/users/"+id+"/reactivate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "active", decodeBody(t, rec)["status"])
}

func TestCreateUserValidation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/users", map[string]any{"name": "ann", "email": "not-an-email"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email", decodeBody(t, rec)["field"])
}

func TestMalformedBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/users", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownUserIs404(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/users/EMP-NOPE", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLogAndReconcileHours(t *testing.T) {
	s := newTestServer(t)
	id := s.createUser(t, "ann")

	rec := s.do(t, http.MethodPost, "/api/users/"+id+"/hours", map[string]any{"date": "2025-01-10", "hours": "6"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/users/"+id+"/hours?date=2025-01-10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeBody(t, rec)
	assert.Equal(t, "8.5", report["required"])
	assert.Equal(t, "6", report["actual"])
	assert.Equal(t, "2.5", report["deficit"])
	assert.Equal(t, false, report["compliant"])
}

// =============================================================================
// DEGRADED READS
// =============================================================================

func TestDegradedListingKeepsServingCachedRows(t *testing.T) {
	s := newTestServer(t)
	s.createUser(t, "ann")

	// GIVEN: A warm cache
	rec := s.do(t, http.MethodGet, "/api/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// WHEN: The store keeps failing on a forced refresh
	boom := &tabular.StatusError{Code: 500, Message: "backend error"}
	s.backend.FailNext(memory.OpGetValues, boom, boom, boom, boom)
	rec = s.do(t, http.MethodGet, "/api/users?refresh=true", nil)

	// THEN: The stale rows come back, flagged
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get(api.DegradedHeader))
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["degraded"])
	assert.Equal(t, float64(1), body["count"])
	assert.NotEmpty(t, body["warning"])
}

func TestQuotaExhaustionIs503WithRetryAfter(t *testing.T) {
	s := newTestServer(t)
	id := s.createUser(t, "ann")

	quota := &tabular.StatusError{Code: 429, Message: "RESOURCE_EXHAUSTED"}
	s.backend.FailNext(memory.OpGetValues, quota, quota, quota, quota)

	rec := s.do(t, http.MethodGet, "/api/users/"+id+"?refresh=true", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "120", rec.Header().Get("Retry-After"))
	assert.Contains(t, decodeBody(t, rec)["error"], "try again in a few minutes")
}

func TestAuthFailureIs502(t *testing.T) {
	s := newTestServer(t)
	id := s.createUser(t, "ann")

	s.backend.FailNext(memory.OpGetValues, &tabular.StatusError{Code: 401})
	before := s.backend.Calls(memory.OpGetValues)

	rec := s.do(t, http.MethodGet, "/api/users/"+id+"?refresh=true", nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, 1, s.backend.Calls(memory.OpGetValues)-before, "auth failures are never retried")
}

// =============================================================================
// APPLICATIONS
// =============================================================================

func TestHalfDayOnHolidayIs422(t *testing.T) {
	s := newTestServer(t)
	id := s.createUser(t, "ann")

	// GIVEN: A half-day WFH request for Sunday 2025-01-12
	rec := s.do(t, http.MethodPost, "/api/wfh", map[string]any{
		"employeeId": id,
		"fromDate":   "2025-01-12",
		"toDate":     "2025-01-12",
		"isHalfDay":  true,
	})

	// THEN: It is refused with the holiday reason
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "holiday", decodeBody(t, rec)["reason"])
}

func TestLeaveApprovalFlow(t *testing.T) {
	s := newTestServer(t)
	id := s.createUser(t, "ann")

	rec := s.do(t, http.MethodPost, "/api/leaves", map[string]any{
		"employeeId": id,
		"leaveType":  "Casual",
		"fromDate":   "2025-01-13",
		"toDate":     "2025-01-14",
		"status":     "Approved",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	leave := decodeBody(t, rec)
	assert.Equal(t, "Pending", leave["status"])
	leaveID := leave["id"].(string)

	// WHEN: Approving without an approver
	rec = s.do(t, http.MethodPost, "/api/leaves/"+leaveID+"/approve", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// WHEN: Approving properly
	rec = s.do(t, http.MethodPost, "/api/leaves/"+leaveID+"/approve", map[string]any{"approver": "mgr", "remarks": "enjoy"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Approved", decodeBody(t, rec)["status"])

	// THEN: A second decision conflicts
	rec = s.do(t, http.MethodPost, "/api/leaves/"+leaveID+"/reject", map[string]any{"approver": "mgr"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// AND: Remarks can still be appended
	rec = s.do(t, http.MethodPost, "/api/leaves/"+leaveID+"/remarks", map[string]any{"author": "hr", "text": "recorded"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["remarksHistory"], 1)

	rec = s.do(t, http.MethodGet, "/api/leaves?status=Approved&employee="+id, nil)
	assert.Equal(t, float64(1), decodeBody(t, rec)["count"])
}

// =============================================================================
// TASKS / BUGS / ADMIN
// =============================================================================

func TestSweepMarksOverdueTask(t *testing.T) {
	s := newTestServer(t)
	id := s.createUser(t, "ann")

	rec := s.do(t, http.MethodPost, "/api/tasks", map[string]any{
		"title":      "ship it",
		"assignedTo": id,
		"startDate":  "2025-01-06",
		"endDate":    "2025-01-10",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	taskID := decodeBody(t, rec)["taskId"].(string)

	rec = s.do(t, http.MethodPost, "/api/admin/sweep?date=2025-01-11", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{taskID}, decodeBody(t, rec)["delayed"])

	rec = s.do(t, http.MethodGet, "/api/tasks/"+taskID, nil)
	assert.Equal(t, "Delayed", decodeBody(t, rec)["status"])

	rec = s.do(t, http.MethodGet, "/api/users/"+id+"/tasks", nil)
	assert.Equal(t, float64(1), decodeBody(t, rec)["count"])
}

func TestManualDelayIsConflict(t *testing.T) {
	s := newTestServer(t)
	id := s.createUser(t, "ann")
	rec := s.do(t, http.MethodPost, "/api/tasks", map[string]any{
		"title":      "ship it",
		"assignedTo": id,
		"startDate":  "2025-01-06",
		"endDate":    "2025-01-20",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	task := decodeBody(t, rec)
	taskID := task["taskId"].(string)

	task["status"] = "Delayed"
	rec = s.do(t, http.MethodPut, "/api/tasks/"+taskID, task)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/tasks/"+taskID, nil)
	assert.Equal(t, "Yet to Start", decodeBody(t, rec)["status"])
}

func TestBugTransitions(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/bugs", map[string]any{"title": "login broken", "reportedBy": "EMP-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bugID := decodeBody(t, rec)["bugId"].(string)

	rec = s.do(t, http.MethodPost, "/api/bugs/"+bugID+"/status", map[string]any{"status": "Reopened"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/bugs/"+bugID+"/status", map[string]any{"status": "Closed"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/bugs/"+bugID+"/status", map[string]any{"status": "Reopened"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["reopenedCount"])

	rec = s.do(t, http.MethodPost, "/api/bugs/"+bugID+"/comments", map[string]any{"author": "EMP-2", "body": "still broken"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/bugs/"+bugID+"/comments", nil)
	assert.Equal(t, float64(1), decodeBody(t, rec)["count"])
}

func TestCalendar(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/calendar/2025-01-11", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	day := decodeBody(t, rec)
	assert.Equal(t, true, day["holiday"])
	assert.Equal(t, "2025-01-13", day["nextWorkingDay"])

	rec = s.do(t, http.MethodGet, "/api/calendar/someday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/api/users", nil)

	rec := s.do(t, http.MethodGet, "/api/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "2025-01-10", body["today"])
	assert.NotNil(t, body["scheduler"])
}
