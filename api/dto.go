/*
dto.go - Request and response shapes for the HTTP API

PURPOSE:
  Entities are returned as their workforce types (they carry JSON tags).
  This file holds the envelopes and the small action bodies that have no
  domain type of their own.

NAMING CONVENTION:
  - *Request:  Request body types from clients
  - *Response: Response wrappers

SEE ALSO:
  - handlers.go: Uses these types
  - workforce/types.go: Entity JSON shapes
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/workforce-engine/tabular"
	"github.com/warp/workforce-engine/workforce"
)

// ListResponse wraps a table listing. Degraded means the store could not
// be read and Items may be stale or empty.
type ListResponse[T any] struct {
	Items     []T       `json:"items"`
	Count     int       `json:"count"`
	FetchedAt time.Time `json:"fetchedAt,omitzero"`
	Degraded  bool      `json:"degraded"`
	Warning   string    `json:"warning,omitempty"`
}

// DecisionRequest approves or rejects an application.
type DecisionRequest struct {
	Approver string `json:"approver"`
	Remarks  string `json:"remarks"`
}

// RemarkRequest appends to an application's remarks history.
type RemarkRequest struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

// StatusRequest moves a bug along its lifecycle.
type StatusRequest struct {
	Status workforce.BugStatus `json:"status"`
}

// CommentRequest adds a comment to a bug.
type CommentRequest struct {
	Author string `json:"author"`
	Body   string `json:"body"`
}

// HoursRequest logs hours worked on one day.
type HoursRequest struct {
	Date  workforce.Date  `json:"date"`
	Hours decimal.Decimal `json:"hours"`
}

// HealthResponse reports process and store state.
type HealthResponse struct {
	Status    string                     `json:"status"`
	Today     workforce.Date             `json:"today"`
	Cache     tabular.CacheStats         `json:"cache"`
	Scheduler *workforce.SchedulerStatus `json:"scheduler,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
	Reason  string `json:"reason,omitempty"`
}
