package capture

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// UploadState tracks where a queued item is in the upload flow.
type UploadState string

const (
	StatePending   UploadState = "pending"
	StateUploading UploadState = "uploading"
	StateUploaded  UploadState = "uploaded"
)

// Item is one queued capture: a normalized photo plus the tag it was
// scanned under. PublicRef is set once the photo has been stored, so
// a retried submission reuses the stored object instead of uploading
// the bytes again.
type Item struct {
	ID        string
	Tag       string
	Photo     Photo
	State     UploadState
	PublicRef string
}

// Queue owns the capture items for one open form. Items are keyed by
// an opaque id, so removal never shifts another item's identity.
type Queue struct {
	mu    sync.Mutex
	order []string
	items map[string]*Item
}

// NewQueue returns an empty capture queue.
func NewQueue() *Queue {
	return &Queue{items: make(map[string]*Item)}
}

// Add queues a normalized photo under tag and returns the new item.
func (q *Queue) Add(tag string, photo Photo) Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := &Item{
		ID:    uuid.NewString(),
		Tag:   tag,
		Photo: photo,
		State: StatePending,
	}
	q.order = append(q.order, item.ID)
	q.items[item.ID] = item
	return *item
}

// Remove deletes a not-yet-uploaded item. Items that already reached
// Uploaded stay queued so their stored objects are not orphaned from
// the next reconciliation.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[id]
	if !ok {
		return fmt.Errorf("no queued item %s", id)
	}
	if item.State == StateUploaded {
		return fmt.Errorf("item %s is already uploaded", id)
	}
	delete(q.items, id)
	for i, oid := range q.order {
		if oid == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return nil
}

// Items returns a snapshot of the queue in insertion order.
func (q *Queue) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Item, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, *q.items[id])
	}
	return out
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// MarkUploading moves an item to Uploading.
func (q *Queue) MarkUploading(id string) {
	q.setState(id, StateUploading)
}

// MarkUploaded records a successful upload and the stored object's
// public reference.
func (q *Queue) MarkUploaded(id, publicRef string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if item, ok := q.items[id]; ok {
		item.State = StateUploaded
		item.PublicRef = publicRef
	}
}

// MarkPending reverts an item to Pending. The public reference is
// kept: the bytes are stored, only the submission around them failed.
func (q *Queue) MarkPending(id string) {
	q.setState(id, StatePending)
}

// Clear empties the queue after a successful submission.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.order = nil
	q.items = make(map[string]*Item)
}

func (q *Queue) setState(id string, state UploadState) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if item, ok := q.items[id]; ok {
		item.State = state
	}
}
