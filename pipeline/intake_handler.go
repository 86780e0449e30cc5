package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"returnsdesk/capture"
	"returnsdesk/identifier"
	"returnsdesk/infrastructure/sqlite"
	"returnsdesk/infrastructure/storage"
	"returnsdesk/returns"
	"returnsdesk/upload"
)

// multipart forms can carry several photos; the per-photo ceiling is
// enforced by the orchestrator afterwards.
const maxSubmissionBytes = 50 << 20

type scanRequest struct {
	Text string `json:"text"`
}

type scanResponse struct {
	Found      bool   `json:"found"`
	Identifier string `json:"identifier,omitempty"`
}

// ScanCommandHandler extracts a product code from one decoded barcode
// payload. No match is a normal outcome, not an error.
func ScanCommandHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		code, ok := identifier.Extract(req.Text)
		writeJSON(w, http.StatusOK, scanResponse{Found: ok, Identifier: code})
	}
}

type itemResult struct {
	ItemID    string `json:"itemId"`
	PublicRef string `json:"publicRef,omitempty"`
	Error     string `json:"error,omitempty"`
}

type submitResponse struct {
	Results []itemResult       `json:"results"`
	Record  returns.RecordView `json:"record"`
}

// SubmitReturnCommandHandler runs a whole submission in one request:
// each posted photo is normalized and queued (tags parallel the
// photos; a missing or unreadable tag queues the placeholder), then
// the batch is uploaded and reconciled. Partial upload failure still
// reconciles the surviving references; only validation or
// reconciliation failures fail the request.
func SubmitReturnCommandHandler(db *sqlite.DB, store storage.Store, cfg upload.Config) http.HandlerFunc {
	uploader := upload.NewOrchestrator(store, cfg)
	reconcile := func(ctx context.Context, in returns.MergeInput) error {
		return returns.CreateOrMerge(ctx, db, in)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxSubmissionBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}

		coord := NewCoordinator(uploader, reconcile)
		coord.StartCapture()

		files := r.MultipartForm.File["photos"]
		tags := r.MultipartForm.Value["tags"]
		for i, fh := range files {
			f, err := fh.Open()
			if err != nil {
				writeError(w, http.StatusBadRequest, "unreadable photo: "+fh.Filename)
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				writeError(w, http.StatusBadRequest, "unreadable photo: "+fh.Filename)
				return
			}

			tag := ""
			if i < len(tags) {
				tag = strings.TrimSpace(tags[i])
			}
			if code, ok := identifier.Extract(tag); ok {
				tag = code
			} else {
				tag = capture.PlaceholderTag
			}

			if _, err := coord.AddCapture(tag, data); err != nil {
				writeError(w, http.StatusBadRequest, "photo could not be processed: "+fh.Filename)
				return
			}
		}

		if n, err := strconv.Atoi(strings.TrimSpace(r.FormValue("placeholders"))); err == nil {
			for i := 0; i < n && i < 20; i++ {
				coord.AddPlaceholder()
			}
		}

		form := SubmissionForm{
			InvoiceNumber: r.FormValue("invoice_number"),
			AccountNumber: r.FormValue("account_number"),
			ReturnsNumber: r.FormValue("returns_number"),
			Reason:        r.FormValue("reason"),
		}

		report, err := coord.Submit(r.Context(), form)
		if err != nil {
			var verr *ValidationError
			switch {
			case errors.As(err, &verr):
				writeJSON(w, http.StatusBadRequest, map[string]any{
					"error":  "validation failed",
					"fields": verr.Fields,
				})
			case errors.Is(err, ErrEmptyQueue):
				writeError(w, http.StatusBadRequest, "at least one photo is required")
			case errors.Is(err, ErrNoUploads):
				writeJSON(w, http.StatusBadGateway, map[string]any{
					"error":   "no photo could be uploaded",
					"results": resultViews(report.Results),
				})
			case errors.Is(err, returns.ErrPermissionDenied):
				writeError(w, http.StatusForbidden, "record store refused the submission; contact an administrator")
			default:
				writeError(w, http.StatusInternalServerError, "failed to save the return; uploaded photos are kept for retry")
			}
			return
		}

		view, err := returns.Lookup(r.Context(), db, report.InvoiceNumber)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "saved but failed to reload record")
			return
		}
		writeJSON(w, http.StatusCreated, submitResponse{
			Results: resultViews(report.Results),
			Record:  view,
		})
	}
}

func resultViews(results []upload.Result) []itemResult {
	out := make([]itemResult, 0, len(results))
	for _, res := range results {
		v := itemResult{ItemID: res.ItemID, PublicRef: res.PublicRef}
		if res.Err != nil {
			v.Error = uploadErrorKind(res.Err)
		}
		out = append(out, v)
	}
	return out
}

func uploadErrorKind(err error) string {
	switch {
	case errors.Is(err, upload.ErrSizeExceeded):
		return "sizeExceeded"
	case errors.Is(err, upload.ErrTypeNotAllowed):
		return "typeNotAllowed"
	case errors.Is(err, upload.ErrContentMismatch):
		return "contentMismatch"
	default:
		return "transportFailure"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
