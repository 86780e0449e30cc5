// Package upload validates queued captures and moves them into object
// storage, one at a time, capturing a per-item outcome so a failed
// item never takes the rest of the batch down with it.
package upload

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"returnsdesk/infrastructure/storage"
)

// Per-item rejection reasons, checked before any network effect.
var (
	ErrSizeExceeded   = errors.New("upload: size ceiling exceeded")
	ErrTypeNotAllowed = errors.New("upload: declared type not allowed")
	// ErrContentMismatch means the leading bytes match none of the
	// known image signatures, regardless of the declared type.
	ErrContentMismatch = errors.New("upload: content signature mismatch")
)

// DefaultMaxBytes is the per-photo size ceiling (5 MiB).
const DefaultMaxBytes = 5 << 20

// Config carries the orchestrator's validation limits. Limits are
// constructor input rather than package globals so tests can tighten
// them.
type Config struct {
	MaxBytes     int64
	AllowedTypes []string
}

// DefaultConfig returns the production limits.
func DefaultConfig() Config {
	return Config{
		MaxBytes:     DefaultMaxBytes,
		AllowedTypes: []string{"image/jpeg", "image/png", "image/webp", "image/gif"},
	}
}

// Item is one capture handed to the orchestrator.
type Item struct {
	ID          string
	Tag         string
	FolderKey   string
	ContentType string
	Data        []byte
}

// Result is the immutable outcome of one upload attempt. Exactly one
// of (StoragePath, PublicRef) or Err is populated; a retry produces a
// new Result.
type Result struct {
	ItemID      string
	StoragePath string
	PublicRef   string
	Err         error
}

// Orchestrator uploads validated captures through a storage.Store.
type Orchestrator struct {
	store storage.Store
	cfg   Config
	now   func() time.Time
}

// NewOrchestrator wires an orchestrator to a store with the given
// limits.
func NewOrchestrator(store storage.Store, cfg Config) *Orchestrator {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if len(cfg.AllowedTypes) == 0 {
		cfg.AllowedTypes = DefaultConfig().AllowedTypes
	}
	return &Orchestrator{store: store, cfg: cfg, now: time.Now}
}

// UploadAll processes items strictly sequentially and returns one
// Result per item, in order. One item's failure does not stop the
// rest, and no aggregate error is produced; callers inspect the
// results to decide whether the batch is usable.
func (o *Orchestrator) UploadAll(ctx context.Context, items []Item) []Result {
	results := make([]Result, 0, len(items))
	for _, item := range items {
		results = append(results, o.UploadOne(ctx, item))
	}
	return results
}

// UploadOne validates a single item and, if it passes, stores it at a
// deterministic time-partitioned path.
func (o *Orchestrator) UploadOne(ctx context.Context, item Item) Result {
	if err := o.validate(item); err != nil {
		return Result{ItemID: item.ID, Err: err}
	}

	path := ObjectPath(o.now(), item.FolderKey, item.Tag, item.ContentType)
	ref, err := o.store.Put(ctx, path, item.Data, item.ContentType)
	if err != nil {
		return Result{ItemID: item.ID, Err: fmt.Errorf("upload %s: %w", item.ID, err)}
	}
	return Result{ItemID: item.ID, StoragePath: path, PublicRef: ref}
}

func (o *Orchestrator) validate(item Item) error {
	if int64(len(item.Data)) > o.cfg.MaxBytes {
		return fmt.Errorf("%d bytes over %d: %w", len(item.Data), o.cfg.MaxBytes, ErrSizeExceeded)
	}

	allowed := false
	for _, t := range o.cfg.AllowedTypes {
		if strings.EqualFold(item.ContentType, t) {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%s: %w", item.ContentType, ErrTypeNotAllowed)
	}

	if !matchesImageSignature(item.Data) {
		return ErrContentMismatch
	}
	return nil
}

// matchesImageSignature sniffs the leading bytes against the known
// magic numbers: JPEG FF D8, PNG 89 50 4E 47, GIF 47 49 46,
// WebP (RIFF) 52 49 46 46.
func matchesImageSignature(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	switch {
	case data[0] == 0xFF && data[1] == 0xD8:
		return true
	case data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47:
		return true
	case data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46:
		return true
	case data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46:
		return true
	}
	return false
}

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// ObjectPath builds the deterministic destination for an upload:
//
//	{MM}_{YYYY}/{DD}/{h.mmpm}_{folderKey}/{tag}_{millis}.{ext}
//
// so stored objects group by submission time and invoice without a
// lookup index. folderKey is usually the invoice number, or the tag
// when no invoice context exists yet.
func ObjectPath(now time.Time, folderKey, tag, contentType string) string {
	clock := strings.ToLower(now.Format("3.04PM"))
	return fmt.Sprintf("%s/%s/%s_%s/%s_%d.%s",
		now.Format("01_2006"),
		now.Format("02"),
		clock,
		sanitizePathPart(folderKey),
		sanitizePathPart(tag),
		now.UnixMilli(),
		extensionFor(contentType),
	)
}

func sanitizePathPart(s string) string {
	return unsafePathChars.ReplaceAllString(s, "_")
}

func extensionFor(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/jpeg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	}
	return "bin"
}
