package models

import (
	"strings"
	"sync"
)

// Selector holds the operator's device-model filter.
type Selector struct {
	mu       sync.RWMutex
	selected string
}

func NewSelector(initial string) *Selector {
	return &Selector{selected: strings.TrimSpace(initial)}
}

// Select sets the filter; an empty name clears it.
func (s *Selector) Select(name string) {
	s.mu.Lock()
	s.selected = strings.TrimSpace(name)
	s.mu.Unlock()
}

func (s *Selector) Selected() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected, s.selected != ""
}

// Matches reports whether serial belongs to the selected model. With no
// selection every serial matches.
func (s *Selector) Matches(serial string) bool {
	selected, ok := s.Selected()
	if !ok {
		return true
	}
	prefix, ok := Prefix(serial)
	if !ok {
		return false
	}
	return prefix == selected
}

// Prefix returns the part of serial before its last hyphen-delimited
// segment, e.g. "RC-102" for "RC-102-000123".
func Prefix(serial string) (string, bool) {
	serial = strings.TrimSpace(serial)
	idx := strings.LastIndex(serial, "-")
	if idx <= 0 {
		return "", false
	}
	return serial[:idx], true
}
