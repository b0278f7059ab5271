package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/workforce-engine/tabular"
	"github.com/warp/workforce-engine/workforce"
)

// =============================================================================
// LEAVE / WFH HANDLERS
// =============================================================================
//
//   GET    /api/{leaves|wfh}                 List (?employee=, ?status=)
//   POST   /api/{leaves|wfh}                 Apply (always starts Pending)
//   GET    /api/{leaves|wfh}/{id}            Get
//   DELETE /api/{leaves|wfh}/{id}            Delete
//   POST   /api/{leaves|wfh}/{id}/approve    Approve {"approver","remarks"}
//   POST   /api/{leaves|wfh}/{id}/reject     Reject  {"approver","remarks"}
//   POST   /api/{leaves|wfh}/{id}/remarks    Append  {"author","text"}

// applicationOps binds the generic handlers below to one application table.
type applicationOps[T any] struct {
	list    func(ctx context.Context, force bool) tabular.Listing[T]
	get     func(ctx context.Context, id string, force bool) (T, error)
	apply   func(ctx context.Context, item T) (T, error)
	approve func(ctx context.Context, id string, d workforce.Decision) (T, error)
	reject  func(ctx context.Context, id string, d workforce.Decision) (T, error)
	remark  func(ctx context.Context, id, author, text string) (T, error)
	delete  func(ctx context.Context, id string) error
	common  func(T) workforce.Application
}

func (h *Handler) leaveOps() applicationOps[workforce.LeaveApplication] {
	s := h.Service
	return applicationOps[workforce.LeaveApplication]{
		list: s.ListLeaves, get: s.GetLeave, apply: s.ApplyLeave,
		approve: s.ApproveLeave, reject: s.RejectLeave, remark: s.AddLeaveRemark,
		delete: s.DeleteLeave,
		common: func(l workforce.LeaveApplication) workforce.Application { return l.Application },
	}
}

func (h *Handler) wfhOps() applicationOps[workforce.WFHApplication] {
	s := h.Service
	return applicationOps[workforce.WFHApplication]{
		list: s.ListWFH, get: s.GetWFH, apply: s.ApplyWFH,
		approve: s.ApproveWFH, reject: s.RejectWFH, remark: s.AddWFHRemark,
		delete: s.DeleteWFH,
		common: func(w workforce.WFHApplication) workforce.Application { return w.Application },
	}
}

func (ops applicationOps[T]) routes(r chi.Router) {
	r.Get("/", ops.handleList)
	r.Post("/", ops.handleApply)
	r.Get("/{id}", ops.handleGet)
	r.Delete("/{id}", ops.handleDelete)
	r.Post("/{id}/approve", ops.handleDecision(ops.approve))
	r.Post("/{id}/reject", ops.handleDecision(ops.reject))
	r.Post("/{id}/remarks", ops.handleRemark)
}

func (ops applicationOps[T]) handleList(w http.ResponseWriter, r *http.Request) {
	listing := ops.list(r.Context(), refresh(r))
	employee := r.URL.Query().Get("employee")
	status := r.URL.Query().Get("status")
	if employee != "" || status != "" {
		listing.Items = filter(listing.Items, func(item T) bool {
			a := ops.common(item)
			return (employee == "" || a.EmployeeID == employee) &&
				(status == "" || string(a.Status) == status)
		})
	}
	writeListing(w, listing)
}

func (ops applicationOps[T]) handleGet(w http.ResponseWriter, r *http.Request) {
	item, err := ops.get(r.Context(), chi.URLParam(r, "id"), refresh(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (ops applicationOps[T]) handleApply(w http.ResponseWriter, r *http.Request) {
	var req T
	if !decode(w, r, &req) {
		return
	}
	item, err := ops.apply(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (ops applicationOps[T]) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := ops.delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (ops applicationOps[T]) handleDecision(decide func(context.Context, string, workforce.Decision) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DecisionRequest
		if !decode(w, r, &req) {
			return
		}
		item, err := decide(r.Context(), chi.URLParam(r, "id"), workforce.Decision{
			Approver: req.Approver,
			Remarks:  req.Remarks,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

func (ops applicationOps[T]) handleRemark(w http.ResponseWriter, r *http.Request) {
	var req RemarkRequest
	if !decode(w, r, &req) {
		return
	}
	item, err := ops.remark(r.Context(), chi.URLParam(r, "id"), req.Author, req.Text)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}
