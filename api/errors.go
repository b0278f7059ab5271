package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"

	"github.com/warp/workforce-engine/tabular"
	"github.com/warp/workforce-engine/workforce"
)

// QuotaRetryAfter is sent as Retry-After when the store is rate limiting.
const QuotaRetryAfter = 120

const quotaMessage = "The data store is busy right now, please try again in a few minutes"

// =============================================================================
// ERROR MAPPING
// =============================================================================

// writeServiceError maps workforce and tabular errors to HTTP statuses:
//
//	validation, missing approver        400
//	not found                           404
//	duplicate, not pending, transition  409
//	inactive user                       409
//	half-day rejection                  422 (reason set)
//	auth failure                        502
//	quota exceeded                      503 + Retry-After
//	timeout                             504
//	anything else                       500
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		halfDay    *workforce.HalfDayRejection
		validation *workforce.ValidationError
	)

	switch {
	case errors.As(err, &halfDay):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:  halfDay.Error(),
			Reason: string(halfDay.Reason),
		})
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Field:   validation.Field,
			Details: validation.Message,
		})
	case errors.Is(err, workforce.ErrApproverRequired):
		writeError(w, http.StatusBadRequest, "An approver is required", err)
	case errors.Is(err, tabular.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, tabular.ErrDuplicateKey):
		writeError(w, http.StatusConflict, "Already exists", err)
	case errors.Is(err, workforce.ErrNotPending):
		writeError(w, http.StatusConflict, "Application has already been decided", err)
	case errors.Is(err, workforce.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "Status change not allowed", err)
	case errors.Is(err, workforce.ErrInactiveUser):
		writeError(w, http.StatusConflict, "User is inactive", err)
	case errors.Is(err, tabular.ErrQuotaExceeded):
		w.Header().Set("Retry-After", strconv.Itoa(QuotaRetryAfter))
		writeError(w, http.StatusServiceUnavailable, quotaMessage, err)
	case errors.Is(err, tabular.ErrAuthFailure):
		reportError(r, err)
		writeError(w, http.StatusBadGateway, "The data store rejected our credentials", err)
	case errors.Is(err, tabular.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, "The data store did not answer in time", err)
	default:
		reportError(r, err)
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

// reportError logs err on the request logger and sends it to Sentry when a
// hub is attached to the request.
func reportError(r *http.Request, err error) {
	zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
		hub.CaptureException(err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
