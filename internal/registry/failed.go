package registry

import (
	"sort"
	"strings"
	"sync"
)

// Failed is the per-session set of serials that failed validation. Only the
// workflow machine writes to it; readers (status API, TUI) take snapshots.
type Failed struct {
	mu      sync.RWMutex
	serials map[string]struct{}
}

func NewFailed() *Failed {
	return &Failed{serials: make(map[string]struct{})}
}

// Add records serial and reports whether it was new.
func (f *Failed) Add(serial string) bool {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.serials[serial]; exists {
		return false
	}
	f.serials[serial] = struct{}{}
	return true
}

func (f *Failed) Has(serial string) bool {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return false
	}
	f.mu.RLock()
	_, ok := f.serials[serial]
	f.mu.RUnlock()
	return ok
}

func (f *Failed) Remove(serial string) {
	f.mu.Lock()
	delete(f.serials, strings.TrimSpace(serial))
	f.mu.Unlock()
}

// Clear empties the set and returns how many serials were dropped.
func (f *Failed) Clear() int {
	f.mu.Lock()
	n := len(f.serials)
	if n > 0 {
		f.serials = make(map[string]struct{})
	}
	f.mu.Unlock()
	return n
}

func (f *Failed) Size() int {
	f.mu.RLock()
	n := len(f.serials)
	f.mu.RUnlock()
	return n
}

func (f *Failed) Serials() []string {
	f.mu.RLock()
	out := make([]string, 0, len(f.serials))
	for s := range f.serials {
		out = append(out, s)
	}
	f.mu.RUnlock()
	sort.Strings(out)
	return out
}
