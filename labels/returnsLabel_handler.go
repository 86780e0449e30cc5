package labels

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"returnsdesk/infrastructure/sqlite"
	"returnsdesk/returns"
)

// ReturnLabelQueryHandler streams a printable label PDF for one
// return record.
func ReturnLabelQueryHandler(db *sqlite.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoice, err := strconv.ParseInt(chi.URLParam(r, "invoice"), 10, 64)
		if err != nil || invoice <= 0 {
			http.Error(w, "invalid invoice number", http.StatusBadRequest)
			return
		}

		view, err := returns.Lookup(r.Context(), db, invoice)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				http.Error(w, "return record not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to load return record", http.StatusInternalServerError)
			return
		}

		createdAt, _ := time.Parse(time.RFC3339, view.CreatedAt)
		pdf, err := renderReturnLabelPDF(ReturnLabelData{
			InvoiceNumber: view.InvoiceNumber,
			AccountNumber: view.AccountNumber,
			ReturnsNumber: view.ReturnsNumber,
			Status:        view.Status,
			ImageCount:    len(view.Images),
			CreatedAt:     createdAt,
		}, time.Now())
		if err != nil {
			http.Error(w, "failed to render label", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=\"return-%08d.pdf\"", invoice))
		_, _ = w.Write(pdf)
	}
}
