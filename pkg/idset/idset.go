// Package idset provides an insertion-ordered set of integer identifiers.
//
// A Set is not safe for concurrent use; callers guard it with the lock of the
// collection that owns it.
package idset

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Set is an insertion-ordered set of ints. The zero value is not usable, use New.
type Set struct {
	items *orderedmap.OrderedMap[int, struct{}]
}

// New creates a set holding the given ids, in order, with duplicates collapsed.
func New(ids ...int) *Set {
	s := &Set{items: orderedmap.New[int, struct{}]()}
	s.Add(ids...)
	return s
}

// Add inserts ids and reports whether at least one of them was not present yet.
func (s *Set) Add(ids ...int) bool {
	var added bool
	for _, id := range ids {
		if _, present := s.items.Set(id, struct{}{}); !present {
			added = true
		}
	}
	return added
}

// Union adds every member of other to s.
func (s *Set) Union(other *Set) bool {
	if other == nil {
		return false
	}
	return s.Add(other.Slice()...)
}

// Remove deletes id and reports whether it was present.
func (s *Set) Remove(id int) bool {
	_, present := s.items.Delete(id)
	return present
}

// Contains reports whether id is in the set.
func (s *Set) Contains(id int) bool {
	_, ok := s.items.Get(id)
	return ok
}

// Len returns the number of members.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return s.items.Len()
}

// Slice returns the members in insertion order.
func (s *Set) Slice() []int {
	if s == nil {
		return nil
	}
	out := make([]int, 0, s.items.Len())
	for pair := s.items.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// Clone returns an independent copy.
func (s *Set) Clone() *Set {
	return New(s.Slice()...)
}

// Drain visits members in insertion order and removes every member for which
// fn returns true. It is safe for fn to be slow; the set must not be touched
// by anything else while Drain runs. It returns the number of members left.
func (s *Set) Drain(fn func(id int) bool) int {
	for pair := s.items.Oldest(); pair != nil; {
		next := pair.Next()
		if fn(pair.Key) {
			s.items.Delete(pair.Key)
		}
		pair = next
	}
	return s.items.Len()
}
