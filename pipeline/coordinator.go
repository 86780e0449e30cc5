// Package pipeline wires the intake flow together: a decoded barcode
// becomes a tagged capture, queued captures are uploaded in one
// sequential batch, and the surviving references are reconciled into
// the keyed record store. Reconciliation failure rolls the queue's
// upload marks back so the operator can resubmit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"returnsdesk/capture"
	"returnsdesk/identifier"
	"returnsdesk/returns"
	"returnsdesk/upload"
)

// State names one position in the intake flow for a single open form.
type State string

const (
	StateIdle       State = "idle"
	StateCapturing  State = "capturing"
	StateQueued     State = "queued"
	StateSubmitting State = "submitting"
	StateReconciled State = "reconciled"
	StateFailed     State = "failed"
)

var (
	// ErrNoIdentifier means the decoded text held no structurally
	// valid code; the payload is opaque, not broken.
	ErrNoIdentifier = errors.New("pipeline: no identifier in decoded text")
	// ErrEmptyQueue rejects a submission with nothing captured.
	ErrEmptyQueue = errors.New("pipeline: no captures queued")
	// ErrNoUploads means every item in the batch failed its upload,
	// leaving nothing to reconcile.
	ErrNoUploads = errors.New("pipeline: no capture survived upload")
)

// Form field policy.
var (
	invoicePattern = regexp.MustCompile(`^[0-9]{8}$`)
	accountPattern = regexp.MustCompile(`^[A-Z]{3}[0-9]{3}$`)
)

const maxReasonLen = 1000

// ValidationError reports field-format failures; it never reaches the
// record store.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	return "invalid fields: " + strings.Join(names, ", ")
}

// SubmissionForm carries the operator's raw form input.
type SubmissionForm struct {
	InvoiceNumber string
	AccountNumber string
	ReturnsNumber string
	Reason        string
}

type parsedForm struct {
	invoiceNumber int64
	accountNumber string
	returnsNumber *int64
	reason        string
}

// parseForm enforces the field policy: account is three uppercase
// letters plus three digits, invoice and returns numbers are exactly
// eight digits (returns number optional), and the reason loses angle
// brackets and must fit 1000 characters.
func parseForm(form SubmissionForm) (parsedForm, error) {
	fields := make(map[string]string)
	var out parsedForm

	invoice := strings.TrimSpace(form.InvoiceNumber)
	if !invoicePattern.MatchString(invoice) {
		fields["invoiceNumber"] = "must be exactly 8 digits"
	} else {
		out.invoiceNumber, _ = strconv.ParseInt(invoice, 10, 64)
	}

	account := strings.TrimSpace(form.AccountNumber)
	if !accountPattern.MatchString(account) {
		fields["accountNumber"] = "must be 3 uppercase letters followed by 3 digits"
	} else {
		out.accountNumber = account
	}

	if rn := strings.TrimSpace(form.ReturnsNumber); rn != "" {
		if !invoicePattern.MatchString(rn) {
			fields["returnsNumber"] = "must be exactly 8 digits"
		} else {
			n, _ := strconv.ParseInt(rn, 10, 64)
			out.returnsNumber = &n
		}
	}

	reason := strings.NewReplacer("<", "", ">", "").Replace(form.Reason)
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLen {
		fields["reason"] = "must be 1000 characters or fewer"
	} else {
		out.reason = reason
	}

	if len(fields) > 0 {
		return parsedForm{}, &ValidationError{Fields: fields}
	}
	return out, nil
}

// ReconcileFunc persists one submission's references and reason
// against the invoice's record. returns.CreateOrMerge closed over a
// DB is the production value.
type ReconcileFunc func(ctx context.Context, in returns.MergeInput) error

// Coordinator owns the capture queue for one open form and drives it
// through the intake states.
type Coordinator struct {
	mu        sync.Mutex
	state     State
	queue     *capture.Queue
	uploader  *upload.Orchestrator
	reconcile ReconcileFunc
	now       func() time.Time
}

// NewCoordinator builds an idle coordinator over the given uploader
// and reconcile step.
func NewCoordinator(uploader *upload.Orchestrator, reconcile ReconcileFunc) *Coordinator {
	return &Coordinator{
		state:     StateIdle,
		queue:     capture.NewQueue(),
		uploader:  uploader,
		reconcile: reconcile,
		now:       time.Now,
	}
}

// State returns the coordinator's current position in the flow.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StartCapture marks the capture device active.
func (c *Coordinator) StartCapture() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle || c.state == StateReconciled || c.state == StateFailed {
		c.state = StateCapturing
	}
}

// CaptureDecoded handles one decoder callback: the decoded text must
// yield a valid identifier, and the frame must normalize cleanly, or
// nothing is queued.
func (c *Coordinator) CaptureDecoded(decodedText string, frame []byte) (capture.Item, error) {
	code, ok := identifier.Extract(decodedText)
	if !ok {
		return capture.Item{}, ErrNoIdentifier
	}
	return c.AddCapture(code, frame)
}

// AddCapture normalizes frame under tag and queues it. A decode or
// encode failure is reported synchronously and queues nothing.
func (c *Coordinator) AddCapture(tag string, frame []byte) (capture.Item, error) {
	photo, err := capture.Normalize(frame, tag, c.now())
	if err != nil {
		return capture.Item{}, err
	}
	return c.enqueue(tag, photo), nil
}

// AddPlaceholder queues the stand-in image for an item with no
// readable code.
func (c *Coordinator) AddPlaceholder() capture.Item {
	return c.enqueue(capture.PlaceholderTag, capture.Placeholder(c.now()))
}

func (c *Coordinator) enqueue(tag string, photo capture.Photo) capture.Item {
	item := c.queue.Add(tag, photo)
	c.mu.Lock()
	c.state = StateQueued
	c.mu.Unlock()
	return item
}

// RemoveItem drops a not-yet-uploaded item from the queue.
func (c *Coordinator) RemoveItem(id string) error {
	return c.queue.Remove(id)
}

// Items returns the queued captures in insertion order.
func (c *Coordinator) Items() []capture.Item {
	return c.queue.Items()
}

// Report is the outcome of one submission attempt.
type Report struct {
	InvoiceNumber int64
	Results       []upload.Result
	References    []string
}

// Submit validates the form, uploads every not-yet-uploaded capture
// sequentially, and reconciles the stored references into the record
// keyed by the invoice number. On success the queue is cleared. On a
// reconciliation failure every item marked Uploaded during this
// attempt reverts to Pending — the stored bytes and their references
// are kept, so a retry re-runs reconciliation without re-uploading.
func (c *Coordinator) Submit(ctx context.Context, form SubmissionForm) (Report, error) {
	parsed, err := parseForm(form)
	if err != nil {
		return Report{}, err
	}

	items := c.queue.Items()
	if len(items) == 0 {
		return Report{}, ErrEmptyQueue
	}

	c.setState(StateSubmitting)
	report := Report{InvoiceNumber: parsed.invoiceNumber}
	folderKey := strconv.FormatInt(parsed.invoiceNumber, 10)

	var batch []upload.Item
	for _, item := range items {
		if item.PublicRef != "" {
			continue // stored during an earlier attempt
		}
		c.queue.MarkUploading(item.ID)
		batch = append(batch, upload.Item{
			ID:          item.ID,
			Tag:         item.Tag,
			FolderKey:   folderKey,
			ContentType: item.Photo.ContentType,
			Data:        item.Photo.Data,
		})
	}

	report.Results = c.uploader.UploadAll(ctx, batch)
	var markedThisAttempt []string
	for _, res := range report.Results {
		if res.Err != nil {
			c.queue.MarkPending(res.ItemID)
			continue
		}
		c.queue.MarkUploaded(res.ItemID, res.PublicRef)
		markedThisAttempt = append(markedThisAttempt, res.ItemID)
	}

	// Re-read the queue so references line up in insertion order,
	// prior attempts included.
	for _, item := range c.queue.Items() {
		if item.PublicRef != "" {
			report.References = append(report.References, item.PublicRef)
		}
	}
	if len(report.References) == 0 {
		c.setState(StateFailed)
		return report, ErrNoUploads
	}

	err = c.reconcile(ctx, returns.MergeInput{
		InvoiceNumber: parsed.invoiceNumber,
		AccountNumber: parsed.accountNumber,
		ReturnsNumber: parsed.returnsNumber,
		ImageRefs:     report.References,
		Reason:        parsed.reason,
	})
	if err != nil {
		for _, id := range markedThisAttempt {
			c.queue.MarkPending(id)
		}
		c.setState(StateFailed)
		return report, fmt.Errorf("reconcile submission: %w", err)
	}

	c.queue.Clear()
	c.setState(StateReconciled)
	return report, nil
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
