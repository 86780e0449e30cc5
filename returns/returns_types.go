package returns

import (
	"errors"
	"time"

	"returnsdesk/models"
)

// Reconciliation failures callers branch on.
var (
	// ErrRecordNotFound is returned by Update when no record exists
	// for the invoice number. CreateOrMerge never returns it; a
	// lookup miss there creates the record.
	ErrRecordNotFound = errors.New("returns: record not found")
	// ErrAllocationRequired rejects a move to completed while team or
	// action is unset and the caller's policy demands both.
	ErrAllocationRequired = errors.New("returns: team and action must be set before completion")
	// ErrInvalidStatus rejects an unknown status value.
	ErrInvalidStatus = errors.New("returns: invalid status")
	// ErrPermissionDenied marks store-level write refusals so the
	// user is told to contact an administrator instead of retrying.
	ErrPermissionDenied = errors.New("returns: permission denied by record store")
)

// MergeInput is one submission against an invoice number: the new
// image references plus an optional free-text reason. Reason is
// expected pre-sanitized by the form policy.
type MergeInput struct {
	InvoiceNumber int64
	AccountNumber string
	ReturnsNumber *int64
	ImageRefs     []string
	Reason        string
}

// UpdateInput edits an existing record. Only non-nil fields are
// written. RequireAllocation is the caller-supplied policy gating the
// move to completed.
type UpdateInput struct {
	InvoiceNumber     int64
	WarehouseNotes    *string
	SalesNotes        *string
	Team              *string
	Action            *string
	Status            *string
	RequireAllocation bool
}

// RecordView is the read surface exposed to downstream consumers.
type RecordView struct {
	InvoiceNumber  int64    `json:"invoiceNumber"`
	AccountNumber  string   `json:"accountNumber"`
	ReturnsNumber  *int64   `json:"returnsNumber"`
	Images         []string `json:"images"`
	WarehouseNotes string   `json:"warehouseNotes"`
	SalesNotes     string   `json:"salesNotes"`
	Status         string   `json:"status"`
	Team           *string  `json:"team"`
	Action         *string  `json:"action"`
	CreatedAt      string   `json:"createdAt"`
}

func viewOf(rec models.ReturnRecord, images []string) RecordView {
	if images == nil {
		images = []string{}
	}
	return RecordView{
		InvoiceNumber:  rec.InvoiceNumber,
		AccountNumber:  rec.AccountNumber,
		ReturnsNumber:  rec.ReturnsNumber,
		Images:         images,
		WarehouseNotes: rec.WarehouseNotes,
		SalesNotes:     rec.SalesNotes,
		Status:         rec.Status,
		Team:           rec.Team,
		Action:         rec.Action,
		CreatedAt:      rec.CreatedAt.UTC().Format(time.RFC3339),
	}
}
