// Package safeset provides a set guarded by a read-write mutex. Elements are
// ordered so snapshots come back sorted, which keeps fan-out order stable.
package safeset

import (
	"cmp"
	"slices"
	"sync"
)

// SafeSet is a thread-safe set of unique ordered elements. It is safe for
// concurrent use by multiple goroutines.
type SafeSet[T cmp.Ordered] struct {
	mu sync.RWMutex
	m  map[T]struct{}
}

// NewSafeSet creates a SafeSet holding the given initial elements.
//
// Parameters:
//   - values: Elements to start with; duplicates are stored once
//
// Returns:
//   - A new SafeSet
func NewSafeSet[T cmp.Ordered](values ...T) *SafeSet[T] {
	s := &SafeSet[T]{m: make(map[T]struct{}, len(values))}
	for _, v := range values {
		s.m[v] = struct{}{}
	}
	return s
}

// Add inserts value.
//
// Returns:
//   - true if value was not already present
func (s *SafeSet[T]) Add(value T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[value]; ok {
		return false
	}
	s.m[value] = struct{}{}
	return true
}

// Remove deletes value. Removing a missing value is a no-op.
//
// Returns:
//   - true if value was present
func (s *SafeSet[T]) Remove(value T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[value]; !ok {
		return false
	}
	delete(s.m, value)
	return true
}

// Contains reports whether value is in the set.
func (s *SafeSet[T]) Contains(value T) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.m[value]
	return ok
}

// Size returns the number of elements.
func (s *SafeSet[T]) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Sorted returns a snapshot of the elements in ascending order. Changes to
// the set after the call do not affect the returned slice.
func (s *SafeSet[T]) Sorted() []T {
	s.mu.RLock()
	out := make([]T, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}
	s.mu.RUnlock()

	slices.Sort(out)
	return out
}

// Range calls f for each element in ascending order until f returns false.
// f runs on a snapshot, so it may modify the set.
func (s *SafeSet[T]) Range(f func(value T) bool) {
	for _, v := range s.Sorted() {
		if !f(v) {
			return
		}
	}
}
