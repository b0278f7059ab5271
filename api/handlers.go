/*
handlers.go - HTTP API handlers for the workforce engine

PURPOSE:
  Exposes the workforce service over REST. Handles HTTP request/response
  and JSON, and delegates every rule to the workforce package.

ENDPOINTS:
  Users:
    GET    /api/users                        List users (?status=active|inactive)
    POST   /api/users                        Create user
    GET    /api/users/{id}                   Get user
    PUT    /api/users/{id}                   Update profile fields
    DELETE /api/users/{id}                   Deactivate (soft delete)
    POST   /api/users/{id}/reactivate        Reactivate
    GET    /api/users/{id}/tasks             Tasks assigned to or supported by the user
    POST   /api/users/{id}/warnings/check    Run the warning rule (?date=)
    POST   /api/users/{id}/warnings/reset    Reset the warning count
    POST   /api/users/{id}/hours             Log hours worked
    GET    /api/users/{id}/hours             Work-hour reconciliation (?date=)

  Tasks:
    GET    /api/tasks                        List tasks (?employee=)
    POST   /api/tasks                        Create task
    GET    /api/tasks/{id}                   Get task
    PUT    /api/tasks/{id}                   Update task
    DELETE /api/tasks/{id}                   Delete task

  Leave, WFH, bugs and admin routes live in applications.go, bugs.go and
  admin.go.

READS:
  Every GET accepts ?refresh=true to bypass the cache. Listings served from
  a stale cache (or empty because the store is unreachable) carry the
  X-Data-Degraded: true header and degraded=true in the body.

ERROR HANDLING:
  See errors.go for the status mapping.

SEE ALSO:
  - dto.go: Request/response envelopes
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/warp/workforce-engine/tabular"
	"github.com/warp/workforce-engine/workforce"
)

// DegradedHeader marks responses built from stale or missing data.
const DegradedHeader = "X-Data-Degraded"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *workforce.Service

	// Scheduler is optional; admin runs and health use it when set.
	Scheduler *workforce.Scheduler
}

// NewHandler creates a handler over svc.
func NewHandler(svc *workforce.Service, scheduler *workforce.Scheduler) *Handler {
	return &Handler{Service: svc, Scheduler: scheduler}
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// ListUsers returns all users, optionally filtered by status.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	listing := h.Service.ListUsers(r.Context(), refresh(r))
	if status := r.URL.Query().Get("status"); status != "" {
		listing.Items = filter(listing.Items, func(u workforce.User) bool {
			return string(u.Status) == status
		})
	}
	writeListing(w, listing)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.Service.GetUser(r.Context(), chi.URLParam(r, "id"), refresh(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req workforce.User
	if !decode(w, r, &req) {
		return
	}
	u, err := h.Service.CreateUser(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req workforce.User
	if !decode(w, r, &req) {
		return
	}
	req.EmployeeID = chi.URLParam(r, "id")
	u, err := h.Service.UpdateUser(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// DeactivateUser is the DELETE for users: the row stays, marked inactive.
func (h *Handler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.Service.DeactivateUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) ReactivateUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.Service.ReactivateUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) UserTasks(w http.ResponseWriter, r *http.Request) {
	writeListing(w, h.Service.TasksFor(r.Context(), chi.URLParam(r, "id"), refresh(r)))
}

// CheckWarning runs the warning rule for one user.
// POST /api/users/{id}/warnings/check?date=YYYY-MM-DD
func (h *Handler) CheckWarning(w http.ResponseWriter, r *http.Request) {
	day, ok := h.dateParam(w, r)
	if !ok {
		return
	}
	decision, err := h.Service.CheckWarning(r.Context(), chi.URLParam(r, "id"), day)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (h *Handler) ResetWarnings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Service.ResetWarnings(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"employeeId": id, "warningCount": 0})
}

// LogHours records hours worked for one day.
// POST /api/users/{id}/hours {"date": "2025-01-10", "hours": "8.5"}
func (h *Handler) LogHours(w http.ResponseWriter, r *http.Request) {
	var req HoursRequest
	if !decode(w, r, &req) {
		return
	}
	u, err := h.Service.LogHours(r.Context(), chi.URLParam(r, "id"), req.Date, req.Hours)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// WorkHours reconciles logged against required hours.
// GET /api/users/{id}/hours?date=YYYY-MM-DD
func (h *Handler) WorkHours(w http.ResponseWriter, r *http.Request) {
	day, ok := h.dateParam(w, r)
	if !ok {
		return
	}
	report, err := h.Service.WorkHours(r.Context(), chi.URLParam(r, "id"), day, refresh(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// =============================================================================
// TASK HANDLERS
// =============================================================================

func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	if employee := r.URL.Query().Get("employee"); employee != "" {
		writeListing(w, h.Service.TasksFor(r.Context(), employee, refresh(r)))
		return
	}
	writeListing(w, h.Service.ListTasks(r.Context(), refresh(r)))
}

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Service.GetTask(r.Context(), chi.URLParam(r, "id"), refresh(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req workforce.Task
	if !decode(w, r, &req) {
		return
	}
	t, err := h.Service.CreateTask(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	var req workforce.Task
	if !decode(w, r, &req) {
		return
	}
	req.TaskID = chi.URLParam(r, "id")
	t, err := h.Service.UpdateTask(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteTask(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

func refresh(r *http.Request) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	return b
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// dateParam reads ?date=, defaulting to today.
func (h *Handler) dateParam(w http.ResponseWriter, r *http.Request) (workforce.Date, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return h.Service.Today(), true
	}
	d, err := workforce.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return workforce.Date{}, false
	}
	return d, true
}

func writeListing[T any](w http.ResponseWriter, listing tabular.Listing[T]) {
	items := listing.Items
	if items == nil {
		items = []T{}
	}
	resp := ListResponse[T]{
		Items:     items,
		Count:     len(items),
		FetchedAt: listing.FetchedAt,
		Degraded:  listing.Degraded,
	}
	if listing.Degraded {
		w.Header().Set(DegradedHeader, "true")
		resp.Warning = "The data store could not be reached, showing the last known data"
		if errors.Is(listing.Cause, tabular.ErrQuotaExceeded) {
			resp.Warning = quotaMessage
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func filter[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}
