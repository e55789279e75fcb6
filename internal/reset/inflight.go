package reset

import "sync"

// InFlight tracks password updates waiting on the provider, shared by every
// page instance of a process. Keys are user IDs.
type InFlight struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewInFlight returns an empty registry
func NewInFlight() *InFlight {
	return &InFlight{active: make(map[string]struct{})}
}

// Busy reports whether key has an update in progress
func (f *InFlight) Busy(key string) bool {
	if f == nil || key == "" {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.active[key]
	return ok
}

// acquire marks key as busy. It returns false when it already was.
func (f *InFlight) acquire(key string) bool {
	if f == nil || key == "" {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.active[key]; ok {
		return false
	}
	f.active[key] = struct{}{}
	return true
}

func (f *InFlight) release(key string) {
	if f == nil || key == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.active, key)
}
