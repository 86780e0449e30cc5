package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"returnsdesk/infrastructure/sqlite"
	"returnsdesk/infrastructure/storage"
	"returnsdesk/models"
	"returnsdesk/upload"
)

func openTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.OpenDB(filepath.Join(t.TempDir(), "intake-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := sqlite.ApplyMigrations(context.Background(), db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db
}

func newSubmitHandler(t *testing.T, db *sqlite.DB) http.HandlerFunc {
	t.Helper()
	store, err := storage.NewDiskStore(t.TempDir(), "http://localhost:8080")
	if err != nil {
		t.Fatalf("new disk store: %v", err)
	}
	return SubmitReturnCommandHandler(db, store, upload.DefaultConfig())
}

type submitPhoto struct {
	name string
	tag  string
	data []byte
}

func newSubmitRequest(t *testing.T, fields map[string]string, photos []submitPhoto) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			t.Fatalf("write field %s: %v", name, err)
		}
	}
	for _, photo := range photos {
		part, err := mw.CreateFormFile("photos", photo.name)
		if err != nil {
			t.Fatalf("create photo part: %v", err)
		}
		if _, err := part.Write(photo.data); err != nil {
			t.Fatalf("write photo part: %v", err)
		}
		if err := mw.WriteField("tags", photo.tag); err != nil {
			t.Fatalf("write tag field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/returns", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeSubmitResponse(t *testing.T, body string) submitResponse {
	t.Helper()
	var resp submitResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("decode submit response: %v (%s)", err, body)
	}
	return resp
}

func validFields() map[string]string {
	return map[string]string{
		"invoice_number": "12345678",
		"account_number": "ABC123",
		"returns_number": "87654321",
		"reason":         "box crushed in transit",
	}
}

func TestScanCommandHandler_ExtractsIdentifier(t *testing.T) {
	t.Parallel()

	handler := ScanCommandHandler()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/returns/scan",
		strings.NewReader(`{"text":"scan: 978-0-306-40615-7 ok"}`))
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp scanResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Found || resp.Identifier != "9780306406157" {
		t.Fatalf("unexpected scan response %+v", resp)
	}
}

func TestScanCommandHandler_NoMatchIsNotAnError(t *testing.T) {
	t.Parallel()

	handler := ScanCommandHandler()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/returns/scan",
		strings.NewReader(`{"text":"plain shipping label"}`))
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp scanResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Found || resp.Identifier != "" {
		t.Fatalf("expected a clean miss, got %+v", resp)
	}
}

func TestSubmitReturnCommandHandler_FullSubmissionCreatesRecord(t *testing.T) {
	db := openTestDB(t)
	handler := newSubmitHandler(t, db)

	frame := testFrame(t)
	req := newSubmitRequest(t, validFields(), []submitPhoto{
		{name: "front.png", tag: "9780306406157", data: frame},
		{name: "back.png", tag: "no readable code", data: frame},
	})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeSubmitResponse(t, rr.Body.String())
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 upload results, got %d", len(resp.Results))
	}
	for _, res := range resp.Results {
		if res.Error != "" || res.PublicRef == "" {
			t.Fatalf("expected clean uploads, got %+v", res)
		}
	}
	if resp.Record.InvoiceNumber != 12345678 || resp.Record.Status != models.StatusLogged {
		t.Fatalf("unexpected record %+v", resp.Record)
	}
	if len(resp.Record.Images) != 2 {
		t.Fatalf("expected 2 stored references, got %v", resp.Record.Images)
	}
	if resp.Record.WarehouseNotes != "box crushed in transit" {
		t.Fatalf("unexpected notes %q", resp.Record.WarehouseNotes)
	}
}

func TestSubmitReturnCommandHandler_DuplicateInvoiceMerges(t *testing.T) {
	db := openTestDB(t)
	handler := newSubmitHandler(t, db)
	frame := testFrame(t)

	first := newSubmitRequest(t, validFields(), []submitPhoto{
		{name: "a.png", tag: "9780306406157", data: frame},
	})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, first)
	if rr.Code != http.StatusCreated {
		t.Fatalf("first submission: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	fields := validFields()
	fields["reason"] = "second box, same invoice"
	second := newSubmitRequest(t, fields, []submitPhoto{
		{name: "b.png", tag: "0306406152", data: frame},
	})
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, second)
	if rr.Code != http.StatusCreated {
		t.Fatalf("second submission: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	resp := decodeSubmitResponse(t, rr.Body.String())
	if len(resp.Record.Images) != 2 {
		t.Fatalf("expected merged references, got %v", resp.Record.Images)
	}
	if resp.Record.WarehouseNotes != "box crushed in transit\nsecond box, same invoice" {
		t.Fatalf("expected appended notes, got %q", resp.Record.WarehouseNotes)
	}
}

func TestSubmitReturnCommandHandler_PlaceholderOnlySubmission(t *testing.T) {
	db := openTestDB(t)
	handler := newSubmitHandler(t, db)

	fields := validFields()
	fields["placeholders"] = "1"
	req := newSubmitRequest(t, fields, nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeSubmitResponse(t, rr.Body.String())
	if len(resp.Record.Images) != 1 {
		t.Fatalf("expected the placeholder reference, got %v", resp.Record.Images)
	}
	if !strings.Contains(resp.Record.Images[0], "not-authorized") {
		t.Fatalf("expected a placeholder path, got %q", resp.Record.Images[0])
	}
}

func TestSubmitReturnCommandHandler_ValidationFailureNamesFields(t *testing.T) {
	db := openTestDB(t)
	handler := newSubmitHandler(t, db)

	fields := validFields()
	fields["invoice_number"] = "12"
	fields["account_number"] = "nope"
	req := newSubmitRequest(t, fields, []submitPhoto{
		{name: "a.png", tag: "9780306406157", data: testFrame(t)},
	})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Fields map[string]string `json:"fields"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, ok := resp.Fields["invoiceNumber"]; !ok {
		t.Fatalf("expected invoiceNumber field error, got %v", resp.Fields)
	}
	if _, ok := resp.Fields["accountNumber"]; !ok {
		t.Fatalf("expected accountNumber field error, got %v", resp.Fields)
	}
}

func TestSubmitReturnCommandHandler_NoPhotosReturnsBadRequest(t *testing.T) {
	db := openTestDB(t)
	handler := newSubmitHandler(t, db)

	req := newSubmitRequest(t, validFields(), nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "at least one photo") {
		t.Fatalf("expected empty-queue message, got %q", rr.Body.String())
	}
}

func TestSubmitReturnCommandHandler_UndecodablePhotoReturnsBadRequest(t *testing.T) {
	db := openTestDB(t)
	handler := newSubmitHandler(t, db)

	req := newSubmitRequest(t, validFields(), []submitPhoto{
		{name: "bad.bin", tag: "9780306406157", data: []byte("not an image")},
	})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "bad.bin") {
		t.Fatalf("expected the file named in the error, got %q", rr.Body.String())
	}
}
