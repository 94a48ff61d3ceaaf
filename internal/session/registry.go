package session

import "sync"

// Registry maps chat ids to their live [Handle]. There is at most one Handle
// per chat; every replacement or removal tears the old Handle down.
type Registry struct {
	mu      sync.Mutex
	handles map[int64]*Handle
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[int64]*Handle)}
}

// Upsert makes h the chat's handle and tears down the one it replaces.
func (r *Registry) Upsert(chatID int64, h *Handle) {
	r.mu.Lock()
	old := r.handles[chatID]
	r.handles[chatID] = h
	r.mu.Unlock()

	if old != nil && old != h {
		old.Teardown()
	}
}

// Get returns the chat's handle, or nil.
func (r *Registry) Get(chatID int64) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handles[chatID]
}

// Remove deletes and tears down the chat's handle. It reports whether one
// was present.
func (r *Registry) Remove(chatID int64) bool {
	r.mu.Lock()
	h := r.handles[chatID]
	delete(r.handles, chatID)
	r.mu.Unlock()

	if h == nil {
		return false
	}
	h.Teardown()
	return true
}

// RemoveIf removes the chat's handle only while h is still the current one.
// h is torn down either way.
func (r *Registry) RemoveIf(chatID int64, h *Handle) bool {
	r.mu.Lock()
	current := r.handles[chatID] == h
	if current {
		delete(r.handles, chatID)
	}
	r.mu.Unlock()

	h.Teardown()
	return current
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Close tears down every handle.
func (r *Registry) Close() {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[int64]*Handle)
	r.mu.Unlock()

	for _, h := range handles {
		h.Teardown()
	}
}
