package returns

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"returnsdesk/infrastructure/sqlite"
	"returnsdesk/models"
)

func openTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "returns-test.db")
	db, err := sqlite.OpenDB(dbPath)
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

func mustMerge(t *testing.T, db *sqlite.DB, in MergeInput) {
	t.Helper()
	if err := CreateOrMerge(context.Background(), db, in); err != nil {
		t.Fatalf("create or merge: %v", err)
	}
}

func mustLookup(t *testing.T, db *sqlite.DB, invoice int64) RecordView {
	t.Helper()
	view, err := Lookup(context.Background(), db, invoice)
	if err != nil {
		t.Fatalf("lookup %d: %v", invoice, err)
	}
	return view
}

func strPtr(s string) *string { return &s }

func TestCreateOrMerge_FirstSubmissionCreatesLoggedRecord(t *testing.T) {
	db := openTestDB(t)

	rn := int64(87654321)
	mustMerge(t, db, MergeInput{
		InvoiceNumber: 12345678,
		AccountNumber: "ABC123",
		ReturnsNumber: &rn,
		ImageRefs:     []string{"https://cdn.example/a.jpg"},
		Reason:        "box crushed in transit",
	})

	view := mustLookup(t, db, 12345678)
	if view.Status != models.StatusLogged {
		t.Fatalf("expected logged status, got %q", view.Status)
	}
	if view.AccountNumber != "ABC123" {
		t.Fatalf("expected account ABC123, got %q", view.AccountNumber)
	}
	if view.ReturnsNumber == nil || *view.ReturnsNumber != 87654321 {
		t.Fatalf("expected returns number 87654321, got %v", view.ReturnsNumber)
	}
	if view.WarehouseNotes != "box crushed in transit" {
		t.Fatalf("unexpected notes %q", view.WarehouseNotes)
	}
	if view.Team != nil || view.Action != nil {
		t.Fatalf("team and action must start unset")
	}
	if len(view.Images) != 1 || view.Images[0] != "https://cdn.example/a.jpg" {
		t.Fatalf("unexpected images %v", view.Images)
	}
}

func TestCreateOrMerge_DamagesVariantHasNoReturnsNumber(t *testing.T) {
	db := openTestDB(t)

	mustMerge(t, db, MergeInput{
		InvoiceNumber: 11112222,
		AccountNumber: "DMG001",
		ImageRefs:     []string{"https://cdn.example/d.jpg"},
	})

	view := mustLookup(t, db, 11112222)
	if view.ReturnsNumber != nil {
		t.Fatalf("damages record must have a null returns number, got %v", *view.ReturnsNumber)
	}
	if view.WarehouseNotes != "" {
		t.Fatalf("expected empty notes, got %q", view.WarehouseNotes)
	}
}

func TestCreateOrMerge_IsIdempotentOverImageRefs(t *testing.T) {
	db := openTestDB(t)

	in := MergeInput{
		InvoiceNumber: 20000001,
		AccountNumber: "ABC123",
		ImageRefs:     []string{"ref-1", "ref-2"},
	}
	mustMerge(t, db, in)
	mustMerge(t, db, in)

	view := mustLookup(t, db, 20000001)
	if !reflect.DeepEqual(view.Images, []string{"ref-1", "ref-2"}) {
		t.Fatalf("expected deduplicated [ref-1 ref-2], got %v", view.Images)
	}
}

func TestCreateOrMerge_UnionPreservesOrderAndAppendsNew(t *testing.T) {
	db := openTestDB(t)

	mustMerge(t, db, MergeInput{InvoiceNumber: 20000002, AccountNumber: "ABC123", ImageRefs: []string{"a", "b"}})
	mustMerge(t, db, MergeInput{InvoiceNumber: 20000002, AccountNumber: "ABC123", ImageRefs: []string{"b", "c"}})

	view := mustLookup(t, db, 20000002)
	if !reflect.DeepEqual(view.Images, []string{"a", "b", "c"}) {
		t.Fatalf("expected [a b c], got %v", view.Images)
	}
}

func TestCreateOrMerge_AppendsNotesAndLeavesAssignmentAlone(t *testing.T) {
	db := openTestDB(t)

	mustMerge(t, db, MergeInput{
		InvoiceNumber: 20000003,
		AccountNumber: "ABC123",
		ImageRefs:     []string{"a"},
		Reason:        "first note",
	})

	// Assign the record, then merge again: the merge path must not
	// touch status, team or action.
	err := Update(context.Background(), db, UpdateInput{
		InvoiceNumber: 20000003,
		Team:          strPtr("warehouse"),
		Action:        strPtr("credit"),
		Status:        strPtr(models.StatusAssessed),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	mustMerge(t, db, MergeInput{
		InvoiceNumber: 20000003,
		AccountNumber: "ABC123",
		ImageRefs:     []string{"b"},
		Reason:        "second note",
	})

	view := mustLookup(t, db, 20000003)
	if view.WarehouseNotes != "first note\nsecond note" {
		t.Fatalf("expected newline-joined notes, got %q", view.WarehouseNotes)
	}
	if view.Status != models.StatusAssessed {
		t.Fatalf("merge must not change status, got %q", view.Status)
	}
	if view.Team == nil || *view.Team != "warehouse" || view.Action == nil || *view.Action != "credit" {
		t.Fatalf("merge must not change team/action: %v %v", view.Team, view.Action)
	}
}

func TestCreateOrMerge_EmptyReasonDoesNotGrowNotes(t *testing.T) {
	db := openTestDB(t)

	mustMerge(t, db, MergeInput{InvoiceNumber: 20000004, AccountNumber: "ABC123", ImageRefs: []string{"a"}, Reason: "only note"})
	mustMerge(t, db, MergeInput{InvoiceNumber: 20000004, AccountNumber: "ABC123", ImageRefs: []string{"b"}})

	view := mustLookup(t, db, 20000004)
	if view.WarehouseNotes != "only note" {
		t.Fatalf("empty reason must leave notes untouched, got %q", view.WarehouseNotes)
	}
}

func TestUpdate_WritesOnlySuppliedFields(t *testing.T) {
	db := openTestDB(t)

	mustMerge(t, db, MergeInput{InvoiceNumber: 30000001, AccountNumber: "ABC123", ImageRefs: []string{"a"}, Reason: "keep me"})

	err := Update(context.Background(), db, UpdateInput{
		InvoiceNumber: 30000001,
		SalesNotes:    strPtr("credit agreed"),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	view := mustLookup(t, db, 30000001)
	if view.SalesNotes != "credit agreed" {
		t.Fatalf("expected sales notes written, got %q", view.SalesNotes)
	}
	if view.WarehouseNotes != "keep me" {
		t.Fatalf("warehouse notes must survive an unrelated update, got %q", view.WarehouseNotes)
	}
	if view.Status != models.StatusLogged {
		t.Fatalf("status must survive an unrelated update, got %q", view.Status)
	}
}

func TestUpdate_CompletionPolicy(t *testing.T) {
	db := openTestDB(t)

	mustMerge(t, db, MergeInput{InvoiceNumber: 30000002, AccountNumber: "ABC123", ImageRefs: []string{"a"}})

	err := Update(context.Background(), db, UpdateInput{
		InvoiceNumber:     30000002,
		Status:            strPtr(models.StatusCompleted),
		RequireAllocation: true,
	})
	if !errors.Is(err, ErrAllocationRequired) {
		t.Fatalf("expected allocation rejection, got %v", err)
	}

	// Supplying team and action alongside the status satisfies the
	// policy in one call.
	err = Update(context.Background(), db, UpdateInput{
		InvoiceNumber:     30000002,
		Team:              strPtr("warehouse"),
		Action:            strPtr("restock"),
		Status:            strPtr(models.StatusCompleted),
		RequireAllocation: true,
	})
	if err != nil {
		t.Fatalf("completion with allocation: %v", err)
	}
	if view := mustLookup(t, db, 30000002); view.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %q", view.Status)
	}
}

func TestUpdate_PolicyFlagOffAllowsBareCompletion(t *testing.T) {
	db := openTestDB(t)

	mustMerge(t, db, MergeInput{InvoiceNumber: 30000003, AccountNumber: "ABC123", ImageRefs: []string{"a"}})
	err := Update(context.Background(), db, UpdateInput{
		InvoiceNumber: 30000003,
		Status:        strPtr(models.StatusCompleted),
	})
	if err != nil {
		t.Fatalf("bare completion with policy off: %v", err)
	}
}

func TestUpdate_RejectsUnknownStatusAndMissingRecord(t *testing.T) {
	db := openTestDB(t)

	mustMerge(t, db, MergeInput{InvoiceNumber: 30000004, AccountNumber: "ABC123", ImageRefs: []string{"a"}})
	err := Update(context.Background(), db, UpdateInput{InvoiceNumber: 30000004, Status: strPtr("archived")})
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected invalid status, got %v", err)
	}

	err = Update(context.Background(), db, UpdateInput{InvoiceNumber: 99999999, SalesNotes: strPtr("x")})
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected record not found, got %v", err)
	}
}

func TestLookup_MissIsDistinguishable(t *testing.T) {
	db := openTestDB(t)

	_, err := Lookup(context.Background(), db, 44444444)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for a miss, got %v", err)
	}
}

func TestLookup_RoundTripsImageOrder(t *testing.T) {
	db := openTestDB(t)

	refs := []string{"z", "a", "m", "b"}
	mustMerge(t, db, MergeInput{InvoiceNumber: 50000001, AccountNumber: "ABC123", ImageRefs: refs})

	view := mustLookup(t, db, 50000001)
	if !reflect.DeepEqual(view.Images, refs) {
		t.Fatalf("expected insertion order %v, got %v", refs, view.Images)
	}
}
