package spylog

import (
	"strings"
	"sync"
	"time"

	"github.com/dmrschmidt/RestSpy/internal/id"
)

// DefaultCapacity bounds a store when no capacity is given.
const DefaultCapacity = 1000

// Log is what the engine records through. Implementations must be safe
// for concurrent use; handlers run in parallel.
type Log interface {
	// Record stores an entry.
	Record(e *Entry)

	// List returns entries matching the filter in arrival order.
	List(f *Filter) []*Entry

	// Clear drops every entry.
	Clear()

	// Size reports how many entries are held.
	Size() int
}

// Filter selects entries. Zero values mean "any".
type Filter struct {
	// Method filters by HTTP method, case-insensitively.
	Method string

	// Path keeps entries whose endpoint contains this substring.
	Path string

	// Since keeps entries recorded at or after this time.
	Since time.Time

	// Limit caps the result to the most recent n matches (0 = all).
	Limit int
}

func (f *Filter) matches(e *Entry) bool {
	if f == nil {
		return true
	}
	if f.Method != "" && !strings.EqualFold(f.Method, e.Method) {
		return false
	}
	if f.Path != "" && !strings.Contains(e.Endpoint, f.Path) {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// Store is the bounded in-memory Log. Once capacity is reached the
// oldest entries fall off.
type Store struct {
	mu      sync.RWMutex
	entries []*Entry
	cap     int
}

var _ Log = (*Store)(nil)

// NewStore builds a store holding at most capacity entries; anything
// non-positive uses DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{cap: capacity}
}

// Record appends e, assigning an id and timestamp when unset.
func (s *Store) Record(e *Entry) {
	if e == nil {
		return
	}
	if e.ID == "" {
		e.ID = id.Short()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	if len(s.entries) > s.cap {
		trimmed := make([]*Entry, s.cap)
		copy(trimmed, s.entries[len(s.entries)-s.cap:])
		s.entries = trimmed
	}
}

// List returns matching entries in arrival order; with a limit, the
// most recent matches.
func (s *Store) List(f *Filter) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if f.matches(e) {
			matched = append(matched, e)
		}
	}
	if f != nil && f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[len(matched)-f.Limit:]
	}
	return matched
}

// Clear drops every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

// Size reports how many entries are held.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
