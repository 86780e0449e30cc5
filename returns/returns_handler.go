package returns

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"returnsdesk/infrastructure/sqlite"
)

// GetReturnQueryHandler serves the read surface for one record.
func GetReturnQueryHandler(db *sqlite.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoice, err := parseInvoiceNumber(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid invoice number")
			return
		}

		view, err := Lookup(r.Context(), db, invoice)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				writeError(w, http.StatusNotFound, "return record not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to load return record")
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

type updateRequest struct {
	WarehouseNotes    *string `json:"warehouseNotes"`
	SalesNotes        *string `json:"salesNotes"`
	Team              *string `json:"team"`
	Action            *string `json:"action"`
	Status            *string `json:"status"`
	RequireAllocation bool    `json:"requireAllocation"`
}

// UpdateReturnCommandHandler edits notes, team, action and status on
// an existing record. Only fields present in the body are written.
func UpdateReturnCommandHandler(db *sqlite.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoice, err := parseInvoiceNumber(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid invoice number")
			return
		}

		var req updateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		in := UpdateInput{
			InvoiceNumber:     invoice,
			WarehouseNotes:    sanitizeNotesField(req.WarehouseNotes),
			SalesNotes:        sanitizeNotesField(req.SalesNotes),
			Team:              req.Team,
			Action:            req.Action,
			Status:            req.Status,
			RequireAllocation: req.RequireAllocation,
		}

		if err := Update(r.Context(), db, in); err != nil {
			switch {
			case errors.Is(err, ErrRecordNotFound):
				writeError(w, http.StatusNotFound, "return record not found")
			case errors.Is(err, ErrInvalidStatus):
				writeError(w, http.StatusBadRequest, "invalid status value")
			case errors.Is(err, ErrAllocationRequired):
				writeError(w, http.StatusConflict, "set team and action before completing")
			case errors.Is(err, ErrPermissionDenied):
				writeError(w, http.StatusForbidden, "record store refused the update; contact an administrator")
			default:
				writeError(w, http.StatusInternalServerError, "failed to update return record")
			}
			return
		}

		view, err := Lookup(r.Context(), db, invoice)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "updated but failed to reload record")
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func parseInvoiceNumber(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "invoice")
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid invoice number")
	}
	return n, nil
}

// sanitizeNotesField applies the free-text policy to an optional
// field: angle brackets stripped, nil left alone.
func sanitizeNotesField(s *string) *string {
	if s == nil {
		return nil
	}
	clean := strings.NewReplacer("<", "", ">", "").Replace(*s)
	return &clean
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
