package returns

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"returnsdesk/infrastructure/sqlite"
	"returnsdesk/models"
)

// CreateOrMerge reconciles a submission against the record keyed by
// its invoice number. A lookup miss inserts a fresh record; an
// existing record is merged: image references are set-unioned with
// prior order preserved and new ones appended, and a non-empty reason
// is newline-appended to the warehouse notes. Status, team and action
// are never touched on this path. The whole step runs in one
// immediate write transaction, so two submissions for the same
// invoice arriving together serialize at the store.
func CreateOrMerge(ctx context.Context, db *sqlite.DB, in MergeInput) error {
	if in.InvoiceNumber <= 0 {
		return fmt.Errorf("invalid invoice number")
	}

	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var rec models.ReturnRecord
		err := tx.NewSelect().Model(&rec).
			Where("invoice_number = ?", in.InvoiceNumber).
			Limit(1).
			Scan(ctx)
		switch {
		case err == nil:
			// Merge path: only notes move, and only when a new reason
			// arrived.
			if in.Reason != "" {
				notes := in.Reason
				if rec.WarehouseNotes != "" {
					notes = rec.WarehouseNotes + "\n" + in.Reason
				}
				if _, err := tx.NewUpdate().Model(&rec).
					Set("warehouse_notes = ?", notes).
					WherePK().
					Exec(ctx); err != nil {
					return fmt.Errorf("append notes: %w", err)
				}
			}
		case errors.Is(err, sql.ErrNoRows):
			rec = models.ReturnRecord{
				InvoiceNumber:  in.InvoiceNumber,
				AccountNumber:  in.AccountNumber,
				ReturnsNumber:  in.ReturnsNumber,
				WarehouseNotes: in.Reason,
				Status:         models.StatusLogged,
				CreatedAt:      time.Now().UTC(),
			}
			if _, err := tx.NewInsert().Model(&rec).Exec(ctx); err != nil {
				return fmt.Errorf("insert record: %w", err)
			}
		default:
			// A lookup failure is not a miss; abort before any write.
			return fmt.Errorf("lookup record: %w", err)
		}

		for _, ref := range in.ImageRefs {
			if strings.TrimSpace(ref) == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
INSERT INTO return_images (invoice_number, reference)
VALUES (?, ?)
ON CONFLICT (invoice_number, reference) DO NOTHING`, in.InvoiceNumber, ref); err != nil {
				return fmt.Errorf("attach image: %w", err)
			}
		}
		return nil
	})
	return classifyStoreErr(err)
}

// Update writes only the supplied fields of an existing record. A
// move to completed is rejected while team or action would remain
// unset and in.RequireAllocation is true.
func Update(ctx context.Context, db *sqlite.DB, in UpdateInput) error {
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var rec models.ReturnRecord
		err := tx.NewSelect().Model(&rec).
			Where("invoice_number = ?", in.InvoiceNumber).
			Limit(1).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRecordNotFound
		}
		if err != nil {
			return fmt.Errorf("lookup record: %w", err)
		}

		q := tx.NewUpdate().Model(&rec).WherePK()
		touched := false
		if in.WarehouseNotes != nil {
			q = q.Set("warehouse_notes = ?", *in.WarehouseNotes)
			touched = true
		}
		if in.SalesNotes != nil {
			q = q.Set("sales_notes = ?", *in.SalesNotes)
			touched = true
		}
		if in.Team != nil {
			q = q.Set("team = ?", nullIfEmpty(*in.Team))
			touched = true
		}
		if in.Action != nil {
			q = q.Set("action = ?", nullIfEmpty(*in.Action))
			touched = true
		}
		if in.Status != nil {
			status := strings.ToLower(strings.TrimSpace(*in.Status))
			if !models.ValidStatus(status) {
				return fmt.Errorf("%q: %w", *in.Status, ErrInvalidStatus)
			}
			if status == models.StatusCompleted && in.RequireAllocation {
				team := effective(in.Team, rec.Team)
				action := effective(in.Action, rec.Action)
				if team == "" || action == "" {
					return ErrAllocationRequired
				}
			}
			q = q.Set("status = ?", status)
			touched = true
		}
		if !touched {
			return nil
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("update record: %w", err)
		}
		return nil
	})
	return classifyStoreErr(err)
}

// Lookup loads the read surface for one invoice number. A miss is
// reported as sql.ErrNoRows so handlers can distinguish it from a
// store failure.
func Lookup(ctx context.Context, db *sqlite.DB, invoiceNumber int64) (RecordView, error) {
	var rec models.ReturnRecord
	var refs []string
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if err := tx.NewSelect().Model(&rec).
			Where("invoice_number = ?", invoiceNumber).
			Limit(1).
			Scan(ctx); err != nil {
			return err
		}
		return tx.NewSelect().Model((*models.ReturnImage)(nil)).
			Column("reference").
			Where("invoice_number = ?", invoiceNumber).
			OrderExpr("id ASC").
			Scan(ctx, &refs)
	})
	if err != nil {
		return RecordView{}, err
	}
	return viewOf(rec, refs), nil
}

func nullIfEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func effective(supplied *string, existing *string) string {
	if supplied != nil {
		return strings.TrimSpace(*supplied)
	}
	if existing != nil {
		return strings.TrimSpace(*existing)
	}
	return ""
}

// classifyStoreErr maps store-level write refusals onto
// ErrPermissionDenied so the surface can tell "contact an admin"
// apart from "try again".
func classifyStoreErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "readonly database") || strings.Contains(msg, "access denied") {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, msg)
	}
	return err
}
