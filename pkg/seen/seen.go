// Package seen implements the deduplication set used by the message router.
//
// Every processed notice or chat line is recorded under a key (a message id,
// or "join:<name>" for join notices). A key that is already present means the
// line was handled before and must not be displayed or relayed again.
//
// Keys remember the origin that produced them so that an exit notice can drop
// everything a departed node left behind; a later rejoin is then shown again.
package seen

import "sync"

// Set is a concurrent-safe set of processed message keys.
type Set struct {
	mu      sync.Mutex
	entries map[string]string // key -> origin
}

// New creates an empty Set.
func New() *Set {
	return &Set{entries: make(map[string]string)}
}

// JoinKey is the key under which the join notice of name is recorded
func JoinKey(name string) string {
	return "join:" + name
}

// Add records key for origin.
// Returns true if key was not previously seen (i.e. this is new traffic).
func (s *Set) Add(key, origin string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; ok {
		return false
	}
	s.entries[key] = origin
	return true
}

// Has returns true if key was previously added and not forgotten.
func (s *Set) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

// Forget removes every key recorded for origin and returns how many were removed.
func (s *Set) Forget(origin string) int {
	if origin == "" {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, o := range s.entries {
		if o == origin {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the current number of keys.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
