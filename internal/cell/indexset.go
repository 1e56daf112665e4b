package cell

import (
	"slices"

	"github.com/heatbox/extension/pkg/core"
)

// IndexSet is an insertion-ordered set of grid indices.
type IndexSet struct {
	items []core.Index
	pos   map[core.Index]int
}

// NewIndexSet returns an empty set.
func NewIndexSet() *IndexSet {
	return &IndexSet{pos: make(map[core.Index]int)}
}

// Add inserts idx and reports whether it was absent.
func (s *IndexSet) Add(idx core.Index) bool {
	if _, ok := s.pos[idx]; ok {
		return false
	}
	s.pos[idx] = len(s.items)
	s.items = append(s.items, idx)
	return true
}

// Remove deletes idx, preserving the order of the rest.
func (s *IndexSet) Remove(idx core.Index) bool {
	i, ok := s.pos[idx]
	if !ok {
		return false
	}
	delete(s.pos, idx)
	s.items = slices.Delete(s.items, i, i+1)
	for j := i; j < len(s.items); j++ {
		s.pos[s.items[j]] = j
	}
	return true
}

// Contains reports membership.
func (s *IndexSet) Contains(idx core.Index) bool {
	_, ok := s.pos[idx]
	return ok
}

// Len returns the number of members.
func (s *IndexSet) Len() int {
	return len(s.items)
}

// Items returns a copy of the members in insertion order. Callers may mutate
// the set while ranging over the copy.
func (s *IndexSet) Items() []core.Index {
	return slices.Clone(s.items)
}

// Clear removes all members.
func (s *IndexSet) Clear() {
	s.items = s.items[:0]
	clear(s.pos)
}
