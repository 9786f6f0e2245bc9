// Package window implements the per-chat in-memory message cache: a
// bounded, deduplicated slice of the most recent messages, newest
// first, with pagination metadata for backfilling older history.
package window

import (
	"sync"

	"chatsync/internal/model"
)

// Window holds the recent messages of one chat. The id set mirrors the
// slice at all times so duplicate ingestion from overlapping fetches is
// absorbed in O(1).
type Window struct {
	mu               sync.Mutex
	messages         []model.Message
	ids              map[int64]struct{}
	oldestID         int64
	newestID         int64
	hasMore          bool
	isPreloading     bool
	maxSize          int
	preloadThreshold int
}

// New creates an empty window. An empty window is not an error state:
// it is what triggers the initial fetch.
func New(maxSize, preloadThreshold int) *Window {
	if maxSize <= 0 {
		maxSize = 50
	}
	return &Window{
		ids:              make(map[int64]struct{}),
		maxSize:          maxSize,
		preloadThreshold: preloadThreshold,
	}
}

// InsertNewest prepends a message, reporting whether it was actually
// inserted. Inserting an id already present is a no-op. When the bound
// is exceeded the oldest message is evicted and hasMore flips true,
// since the evicted history still exists server-side.
func (w *Window) InsertNewest(m model.Message) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, dup := w.ids[m.ID]; dup {
		return false
	}
	w.messages = append([]model.Message{m}, w.messages...)
	w.ids[m.ID] = struct{}{}
	w.newestID = m.ID

	for len(w.messages) > w.maxSize {
		evicted := w.messages[len(w.messages)-1]
		w.messages = w.messages[:len(w.messages)-1]
		delete(w.ids, evicted.ID)
		w.hasMore = true
	}
	w.refreshBounds()
	return true
}

// AppendOlder backfills a page of older messages at the tail, in
// server-returned order, skipping ids already present. hasMore comes
// from the page's pagination metadata. The bound is re-applied by
// trimming from the head, keeping total memory bounded after any
// operation.
func (w *Window) AppendOlder(batch []model.Message, hasMore bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, m := range batch {
		if _, dup := w.ids[m.ID]; dup {
			continue
		}
		w.messages = append(w.messages, m)
		w.ids[m.ID] = struct{}{}
	}
	w.hasMore = hasMore

	for len(w.messages) > w.maxSize {
		evicted := w.messages[0]
		w.messages = w.messages[1:]
		delete(w.ids, evicted.ID)
	}
	w.refreshBounds()
}

// Remove deletes a message by id. Linear scan is fine at the window's
// bounded size. Returns false if the id is not present.
func (w *Window) Remove(id int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx := w.indexOf(id)
	if idx < 0 {
		return false
	}
	w.messages = append(w.messages[:idx], w.messages[idx+1:]...)
	delete(w.ids, id)
	w.refreshBounds()
	return true
}

// Replace swaps a temporary optimistic message for its server-confirmed
// form, in place, preserving the visual position. Returns false if the
// temp id is not present.
func (w *Window) Replace(tempID int64, real model.Message) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx := w.indexOf(tempID)
	if idx < 0 {
		return false
	}
	w.messages[idx] = real
	delete(w.ids, tempID)
	w.ids[real.ID] = struct{}{}
	w.refreshBounds()
	return true
}

// Update overwrites a message in place by id (edits, status changes).
// Returns false if the id is not present.
func (w *Window) Update(m model.Message) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx := w.indexOf(m.ID)
	if idx < 0 {
		return false
	}
	w.messages[idx] = m
	return true
}

// MarkAllRead flips is_read on every message in the window.
func (w *Window) MarkAllRead() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.messages {
		w.messages[i].IsRead = true
	}
}

// ShouldPreload reports whether the scroll position is close enough to
// the window's tail to warrant backfilling the next page.
func (w *Window) ShouldPreload(currentScrollIndex int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hasMore && !w.isPreloading && len(w.messages)-currentScrollIndex <= w.preloadThreshold
}

// SetPreloading flags an in-flight backfill so ShouldPreload cannot
// trigger a second one.
func (w *Window) SetPreloading(v bool) {
	w.mu.Lock()
	w.isPreloading = v
	w.mu.Unlock()
}

// Messages returns a copy of the window, newest first.
func (w *Window) Messages() []model.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]model.Message, len(w.messages))
	copy(out, w.messages)
	return out
}

// Get returns the message with the given id, if present.
func (w *Window) Get(id int64) (model.Message, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := w.indexOf(id)
	if idx < 0 {
		return model.Message{}, false
	}
	return w.messages[idx], true
}

// Len returns the current window size.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.messages)
}

// HasMore reports whether older messages exist server-side.
func (w *Window) HasMore() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hasMore
}

// OldestID returns the cached oldest bound (0 when empty).
func (w *Window) OldestID() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.oldestID
}

// NewestID returns the cached newest bound (0 when empty).
func (w *Window) NewestID() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.newestID
}

func (w *Window) indexOf(id int64) int {
	if _, ok := w.ids[id]; !ok {
		return -1
	}
	for i := range w.messages {
		if w.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (w *Window) refreshBounds() {
	if len(w.messages) == 0 {
		w.oldestID, w.newestID = 0, 0
		return
	}
	w.newestID = w.messages[0].ID
	w.oldestID = w.messages[len(w.messages)-1].ID
}
