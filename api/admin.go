package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/workforce-engine/workforce"
)

// =============================================================================
// CALENDAR / ADMIN / HEALTH
// =============================================================================

// Calendar describes one date: holiday or not, and the next working day.
// GET /api/calendar/{date}
func (h *Handler) Calendar(w http.ResponseWriter, r *http.Request) {
	d, err := workforce.ParseDate(chi.URLParam(r, "date"))
	if err != nil || d.IsZero() {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}
	writeJSON(w, http.StatusOK, workforce.DescribeDay(h.Service.Calendar, d))
}

// Sweep marks overdue tasks as Delayed.
// POST /api/admin/sweep?date=YYYY-MM-DD
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	day, ok := h.dateParam(w, r)
	if !ok {
		return
	}
	report, err := h.Service.SweepDelays(r.Context(), day)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Warnings runs the warning rule for every active user.
// POST /api/admin/warnings?date=YYYY-MM-DD
func (h *Handler) Warnings(w http.ResponseWriter, r *http.Request) {
	day, ok := h.dateParam(w, r)
	if !ok {
		return
	}
	run, err := h.Service.CheckAllWarnings(r.Context(), day)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// RunScheduler triggers one scheduler run now, ignoring any quota backoff.
// POST /api/admin/run
func (h *Handler) RunScheduler(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusNotFound, "Scheduler is not configured", nil)
		return
	}
	report := h.Scheduler.RunNow(r.Context())
	if err := report.Err(); err != nil {
		reportError(r, err)
	}
	writeJSON(w, http.StatusOK, report)
}

// Health reports cache counters and scheduler state.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		Today:  h.Service.Today(),
		Cache:  h.Service.CacheStats(),
	}
	if h.Scheduler != nil {
		st := h.Scheduler.Status()
		resp.Scheduler = &st
		if st.QuotaStrikes > 0 {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
