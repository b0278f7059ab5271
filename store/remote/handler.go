package remote

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/warp/workforce-engine/tabular"
)

// =============================================================================
// SERVER SIDE - Expose any tabular.Backend over the wire format above
// =============================================================================

// NewHandler serves backend with the same routes Backend calls, so one
// process holding the SQLite store can be the remote store for others.
// When token is non-empty every request must carry it as a bearer token.
func NewHandler(backend tabular.Backend, token string, logger zerolog.Logger) http.Handler {
	h := &handler{backend: backend, logger: logger}
	r := chi.NewRouter()
	if token != "" {
		r.Use(requireToken(token))
	}

	r.Get("/tables", h.tables)
	r.Post("/tables", h.createTable)
	r.Route("/tables/{table}", func(r chi.Router) {
		r.Get("/values", h.values)
		r.Get("/columns/{column}", h.column)
		r.Post("/rows", h.appendRow)
		r.Put("/rows/{row}", h.updateRow)
		r.Delete("/rows/{row}", h.deleteRow)
		r.Post("/cells:batchUpdate", h.batchUpdate)
	})
	return r
}

type handler struct {
	backend tabular.Backend
	logger  zerolog.Logger
}

func requireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+token {
				writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing or invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *handler) tables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.backend.Tables(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	if tables == nil {
		tables = []string{}
	}
	writeJSON(w, http.StatusOK, tablesBody{Tables: tables})
}

func (h *handler) createTable(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "table name is required")
		return
	}
	if err := h.backend.CreateTable(r.Context(), body.Name); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) values(w http.ResponseWriter, r *http.Request) {
	values, err := h.backend.GetValues(r.Context(), chi.URLParam(r, "table"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if values == nil {
		values = [][]string{}
	}
	writeJSON(w, http.StatusOK, valuesBody{Values: values})
}

func (h *handler) column(w http.ResponseWriter, r *http.Request) {
	column, ok := intParam(w, r, "column")
	if !ok {
		return
	}
	values, err := h.backend.GetColumn(r.Context(), chi.URLParam(r, "table"), column)
	if err != nil {
		h.fail(w, err)
		return
	}
	if values == nil {
		values = []string{}
	}
	writeJSON(w, http.StatusOK, rowBody{Values: values})
}

func (h *handler) appendRow(w http.ResponseWriter, r *http.Request) {
	var body rowBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	if err := h.backend.AppendRow(r.Context(), chi.URLParam(r, "table"), body.Values); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) updateRow(w http.ResponseWriter, r *http.Request) {
	row, ok := intParam(w, r, "row")
	if !ok {
		return
	}
	var body rowBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	if err := h.backend.UpdateRow(r.Context(), chi.URLParam(r, "table"), row, body.Values); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) deleteRow(w http.ResponseWriter, r *http.Request) {
	row, ok := intParam(w, r, "row")
	if !ok {
		return
	}
	if err := h.backend.DeleteRow(r.Context(), chi.URLParam(r, "table"), row); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) batchUpdate(w http.ResponseWriter, r *http.Request) {
	var body batchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	if err := h.backend.BatchUpdateCells(r.Context(), chi.URLParam(r, "table"), body.Data); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) fail(w http.ResponseWriter, err error) {
	var status *tabular.StatusError
	if errors.As(err, &status) {
		writeError(w, status.Code, http.StatusText(status.Code), status.Message)
		return
	}
	h.logger.Error().Err(err).Msg("tabular backend failed")
	writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
}

func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, status, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Status = status
	body.Error.Message = message
	writeJSON(w, code, body)
}
