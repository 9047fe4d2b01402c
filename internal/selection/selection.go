// Package selection holds the set of landmark indices a user has marked.
package selection

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrOutOfRange is returned when an index falls outside the loaded face mesh.
var ErrOutOfRange = errors.New("landmark index out of range")

// Set is a bounded set of landmark indices. The bound is the length of the
// currently loaded face mesh; a limit of zero means no mesh is loaded and
// every toggle is rejected.
//
// Every mutation calls the change callback after the lock is released.
type Set struct {
	mu       sync.RWMutex
	indices  map[int]struct{}
	limit    int
	onChange func()
}

// New creates an empty Set bounded by limit.
func New(limit int) *Set {
	if limit < 0 {
		limit = 0
	}
	return &Set{
		indices: make(map[int]struct{}),
		limit:   limit,
	}
}

// OnChange sets the callback invoked after every mutation.
func (s *Set) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

func (s *Set) notify() {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()

	if fn != nil {
		fn()
	}
}

func (s *Set) inRange(index int) bool {
	return index >= 0 && index < s.limit
}

// Toggle flips membership of index and reports whether it is now selected.
func (s *Set) Toggle(index int) (bool, error) {
	s.mu.Lock()
	if !s.inRange(index) {
		limit := s.limit
		s.mu.Unlock()
		return false, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, index, limit)
	}

	_, selected := s.indices[index]
	if selected {
		delete(s.indices, index)
	} else {
		s.indices[index] = struct{}{}
	}
	s.mu.Unlock()

	s.notify()
	return !selected, nil
}

// Clear empties the set.
func (s *Set) Clear() {
	s.mu.Lock()
	s.indices = make(map[int]struct{})
	s.mu.Unlock()

	s.notify()
}

// Reset empties the set and rebinds it to a new mesh length.
func (s *Set) Reset(limit int) {
	if limit < 0 {
		limit = 0
	}

	s.mu.Lock()
	s.indices = make(map[int]struct{})
	s.limit = limit
	s.mu.Unlock()

	s.notify()
}

// SelectAll selects every index of the loaded mesh and returns the count.
func (s *Set) SelectAll() int {
	s.mu.Lock()
	for i := 0; i < s.limit; i++ {
		s.indices[i] = struct{}{}
	}
	n := len(s.indices)
	s.mu.Unlock()

	s.notify()
	return n
}

// Replace swaps the whole set for indices. Nothing changes if any index is
// out of range. Duplicates collapse.
func (s *Set) Replace(indices []int) error {
	s.mu.Lock()
	for _, i := range indices {
		if !s.inRange(i) {
			limit := s.limit
			s.mu.Unlock()
			return fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, i, limit)
		}
	}

	next := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		next[i] = struct{}{}
	}
	s.indices = next
	s.mu.Unlock()

	s.notify()
	return nil
}

// Has reports whether index is selected.
func (s *Set) Has(index int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.indices[index]
	return ok
}

// Len returns the number of selected indices.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.indices)
}

// Limit returns the current bound.
func (s *Set) Limit() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.limit
}

// Sorted returns the selected indices in ascending order. The result is never nil.
func (s *Set) Sorted() []int {
	s.mu.RLock()
	out := make([]int, 0, len(s.indices))
	for i := range s.indices {
		out = append(out, i)
	}
	s.mu.RUnlock()

	sort.Ints(out)
	return out
}

// MarshalJSON encodes the set as a sorted JSON array of integers.
func (s *Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// Export encodes indices as the sorted JSON array written to the clipboard
// and to facemesh_indices.json.
func Export(indices []int) ([]byte, error) {
	out := make([]int, len(indices))
	copy(out, indices)
	sort.Ints(out)
	return json.Marshal(out)
}

// ParseExport reads a JSON array of indices as written by Export. Duplicates
// are dropped and the result is sorted; negative indices are rejected.
func ParseExport(data []byte) ([]int, error) {
	var raw []int
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("expected a JSON array of integers: %w", err)
	}

	seen := make(map[int]struct{}, len(raw))
	out := make([]int, 0, len(raw))
	for _, i := range raw {
		if i < 0 {
			return nil, fmt.Errorf("%w: %d", ErrOutOfRange, i)
		}
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, i)
	}
	sort.Ints(out)
	return out, nil
}
