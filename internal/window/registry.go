package window

import "sync"

// Registry owns the per-chat windows. Both the facade's read paths and
// the sync engine mutate windows through it, so live push and polled
// sync land in the same structures.
type Registry struct {
	mu               sync.Mutex
	windows          map[int64]*Window
	maxSize          int
	preloadThreshold int
}

// NewRegistry creates an empty registry with the given window bounds.
func NewRegistry(maxSize, preloadThreshold int) *Registry {
	return &Registry{
		windows:          make(map[int64]*Window),
		maxSize:          maxSize,
		preloadThreshold: preloadThreshold,
	}
}

// Get returns the window for a chat, or nil if none was created yet.
func (r *Registry) Get(chatID int64) *Window {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.windows[chatID]
}

// GetOrCreate returns the window for a chat, creating it on first use.
func (r *Registry) GetOrCreate(chatID int64) *Window {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[chatID]
	if !ok {
		w = New(r.maxSize, r.preloadThreshold)
		r.windows[chatID] = w
	}
	return w
}

// ChatIDs returns the ids of every chat with an active window.
func (r *Registry) ChatIDs() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.windows))
	for id := range r.windows {
		ids = append(ids, id)
	}
	return ids
}
