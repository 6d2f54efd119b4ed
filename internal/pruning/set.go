// Package pruning implements the candidate shard selection at the heart
// of Tessera: evaluating a restriction tree against a table's shard
// snapshot to decide which shards could hold matching rows. The result
// may include shards that cannot match, but never omits one that could.
package pruning

import "sort"

// ShardSet is a set of candidate shard ids produced and consumed within
// a single pruning call. Operations return new sets; existing sets are
// never mutated by Union or Intersect, so intermediate results can be
// reused across predicate branches.
type ShardSet struct {
	ids map[int64]struct{}
}

// NewShardSet creates a set holding the given ids.
func NewShardSet(ids ...int64) *ShardSet {
	s := &ShardSet{ids: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

// Add inserts an id into the set.
func (s *ShardSet) Add(id int64) {
	s.ids[id] = struct{}{}
}

// Contains reports whether the id is in the set.
func (s *ShardSet) Contains(id int64) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of ids in the set.
func (s *ShardSet) Len() int {
	return len(s.ids)
}

// IsEmpty reports whether the set has no ids.
func (s *ShardSet) IsEmpty() bool {
	return len(s.ids) == 0
}

// Union returns a new set holding every id in either set.
func (s *ShardSet) Union(other *ShardSet) *ShardSet {
	out := &ShardSet{ids: make(map[int64]struct{}, len(s.ids)+len(other.ids))}
	for id := range s.ids {
		out.ids[id] = struct{}{}
	}
	for id := range other.ids {
		out.ids[id] = struct{}{}
	}
	return out
}

// Intersect returns a new set holding the ids present in both sets.
func (s *ShardSet) Intersect(other *ShardSet) *ShardSet {
	small, large := s, other
	if len(large.ids) < len(small.ids) {
		small, large = large, small
	}
	out := &ShardSet{ids: make(map[int64]struct{}, len(small.ids))}
	for id := range small.ids {
		if _, ok := large.ids[id]; ok {
			out.ids[id] = struct{}{}
		}
	}
	return out
}

// SortedIDs returns the ids ascending with no duplicates. This is the
// only order candidate sets are ever rendered in.
func (s *ShardSet) SortedIDs() []int64 {
	out := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
