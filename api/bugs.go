package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/workforce-engine/workforce"
)

// =============================================================================
// BUG HANDLERS
// =============================================================================
//
//   GET    /api/bugs                  List (?status=, ?assignee=)
//   POST   /api/bugs                  Report (always starts Open)
//   GET    /api/bugs/{id}             Get
//   PUT    /api/bugs/{id}             Edit fields; a new status goes through the lifecycle
//   DELETE /api/bugs/{id}             Delete (comments are kept)
//   POST   /api/bugs/{id}/status      Transition {"status"}
//   GET    /api/bugs/{id}/comments    List comments
//   POST   /api/bugs/{id}/comments    Add comment {"author","body"}

func (h *Handler) ListBugs(w http.ResponseWriter, r *http.Request) {
	listing := h.Service.ListBugs(r.Context(), refresh(r))
	status := r.URL.Query().Get("status")
	assignee := r.URL.Query().Get("assignee")
	if status != "" || assignee != "" {
		listing.Items = filter(listing.Items, func(b workforce.Bug) bool {
			return (status == "" || string(b.Status) == status) &&
				(assignee == "" || b.AssignedTo == assignee)
		})
	}
	writeListing(w, listing)
}

func (h *Handler) GetBug(w http.ResponseWriter, r *http.Request) {
	b, err := h.Service.GetBug(r.Context(), chi.URLParam(r, "id"), refresh(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) ReportBug(w http.ResponseWriter, r *http.Request) {
	var req workforce.Bug
	if !decode(w, r, &req) {
		return
	}
	b, err := h.Service.ReportBug(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *Handler) UpdateBug(w http.ResponseWriter, r *http.Request) {
	var req workforce.Bug
	if !decode(w, r, &req) {
		return
	}
	req.BugID = chi.URLParam(r, "id")
	b, err := h.Service.UpdateBug(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) TransitionBug(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if !decode(w, r, &req) {
		return
	}
	b, err := h.Service.TransitionBugStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) DeleteBug(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteBug(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	writeListing(w, h.Service.ListComments(r.Context(), chi.URLParam(r, "id"), refresh(r)))
}

func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req CommentRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.Service.AddComment(r.Context(), chi.URLParam(r, "id"), req.Author, req.Body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}
