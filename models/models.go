package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Return record statuses, monotonic in the normal flow.
const (
	StatusLogged    = "logged"
	StatusAssessed  = "assessed"
	StatusCompleted = "completed"
)

// ValidStatus reports whether s is a known return record status.
func ValidStatus(s string) bool {
	return s == StatusLogged || s == StatusAssessed || s == StatusCompleted
}

// ReturnRecord is the persisted unit for a return/damage/overstock
// submission, keyed by invoice number. Submissions for an invoice that
// already has a record merge into it rather than replacing it.
type ReturnRecord struct {
	bun.BaseModel `bun:"table:return_records,alias:rr"`

	InvoiceNumber  int64     `bun:"invoice_number,pk"`
	AccountNumber  string    `bun:"account_number,notnull"`
	ReturnsNumber  *int64    `bun:"returns_number"`
	WarehouseNotes string    `bun:"warehouse_notes,notnull,default:''"`
	SalesNotes     string    `bun:"sales_notes,notnull,default:''"`
	Status         string    `bun:"status,notnull,default:'logged'"`
	Team           *string   `bun:"team"`
	Action         *string   `bun:"action"`
	CreatedAt      time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// ReturnImage is one stored image reference attached to a return
// record. Insertion order (id) is the display order; the unique index
// on (invoice_number, reference) keeps merges duplicate-free.
type ReturnImage struct {
	bun.BaseModel `bun:"table:return_images,alias:ri"`

	ID            int64     `bun:"id,pk,autoincrement"`
	InvoiceNumber int64     `bun:"invoice_number,notnull"`
	Reference     string    `bun:"reference,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
