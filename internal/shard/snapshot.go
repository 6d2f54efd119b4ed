package shard

import (
	"fmt"
	"math"
	"sort"

	terrors "github.com/tesseradb/tessera/internal/errors"
	"github.com/tesseradb/tessera/pkg/types"
)

// Meta carries the per-table properties a snapshot is built from. All of
// it is immutable once the table exists.
type Meta struct {
	// TableID identifies the distributed table
	TableID int64

	// TableName is the declared table name
	TableName string

	// Column is the table's single partition column
	Column types.PartitionColumn

	// Method is the partition method (hash or range)
	Method types.PartitionMethod

	// Convention declares whether interval max bounds are inclusive.
	// Hash tables are always inclusive.
	Convention types.BoundConvention

	// NullPolicy declares where null partition column rows live
	NullPolicy types.NullPolicy
}

// Snapshot is the immutable, validated view of one table's shard
// intervals, constructed fresh per pruning call (or cached by the catalog
// layer). The pruning engine never mutates it, so a single snapshot is
// safe for any number of concurrent callers.
type Snapshot struct {
	meta      Meta
	intervals []Interval // sorted ascending by min, pairwise non-overlapping
	catchAll  *Interval
	cmp       types.Comparator // bound-type comparator
	boundType types.ValueTypeID
}

// NewSnapshot validates the intervals against the table metadata and
// builds the snapshot. Any violation of the catalog invariant (duplicate
// ids, overlapping or inverted ranges, mistyped bounds, more than one
// catch-all) fails fast with a MALFORMED_CATALOG error: continuing with a
// guessed ordering could silently corrupt query results.
func NewSnapshot(meta Meta, intervals []Interval) (*Snapshot, error) {
	if meta.Column.TypeID == types.TypeInvalid {
		return nil, terrors.NewMalformedCatalog(
			fmt.Sprintf("table %d has no partition column type", meta.TableID), nil)
	}

	switch meta.Method {
	case types.MethodHash:
		if meta.Convention != types.MaxInclusive {
			return nil, terrors.NewMalformedCatalog(
				fmt.Sprintf("table %d: hash tables use inclusive max bounds, got %q", meta.TableID, meta.Convention), nil)
		}
	case types.MethodRange:
		if meta.Convention != types.MaxInclusive && meta.Convention != types.MaxExclusive {
			return nil, terrors.NewMalformedCatalog(
				fmt.Sprintf("table %d: unknown bound convention %q", meta.TableID, meta.Convention), nil)
		}
	default:
		return nil, terrors.NewMalformedCatalog(
			fmt.Sprintf("table %d: unknown partition method %q", meta.TableID, meta.Method), nil)
	}

	boundType := boundTypeFor(meta)
	cmp, err := types.ComparatorFor(boundType)
	if err != nil {
		return nil, terrors.NewMalformedCatalog(
			fmt.Sprintf("table %d: no comparator for bound type", meta.TableID), err)
	}

	s := &Snapshot{
		meta:      meta,
		cmp:       cmp,
		boundType: boundType,
	}

	seen := make(map[int64]struct{}, len(intervals))
	for _, iv := range intervals {
		if _, dup := seen[iv.ShardID]; dup {
			return nil, terrors.NewMalformedCatalog(
				fmt.Sprintf("table %d: duplicate shard id %d", meta.TableID, iv.ShardID), nil)
		}
		seen[iv.ShardID] = struct{}{}

		if iv.IsCatchAll() {
			if s.catchAll != nil {
				return nil, terrors.NewMalformedCatalog(
					fmt.Sprintf("table %d: more than one catch-all shard (%d and %d)",
						meta.TableID, s.catchAll.ShardID, iv.ShardID), nil)
			}
			ca := iv
			s.catchAll = &ca
			continue
		}

		if err := s.checkInterval(iv); err != nil {
			return nil, err
		}
		s.intervals = append(s.intervals, iv)
	}

	if meta.NullPolicy == types.NullsInCatchAll && s.catchAll == nil {
		return nil, terrors.NewMalformedCatalog(
			fmt.Sprintf("table %d: null policy routes to a catch-all shard but none exists", meta.TableID), nil)
	}

	// The interval set is totally ordered by min; establish that order
	// deterministically, then verify non-overlap. Overlap is the invariant
	// the engine must never repair by guessing.
	var sortErr error
	sort.Slice(s.intervals, func(i, j int) bool {
		a, b := s.intervals[i], s.intervals[j]
		if a.Min == nil {
			return b.Min != nil
		}
		if b.Min == nil {
			return false
		}
		c, err := s.cmp(*a.Min, *b.Min)
		if err != nil && sortErr == nil {
			sortErr = err
		}
		return c < 0
	})
	if sortErr != nil {
		return nil, terrors.NewMalformedCatalog(
			fmt.Sprintf("table %d: bounds are not mutually comparable", meta.TableID), sortErr)
	}

	if err := s.checkNonOverlapping(); err != nil {
		return nil, err
	}

	return s, nil
}

// checkInterval validates one bounded interval in isolation.
func (s *Snapshot) checkInterval(iv Interval) error {
	for _, bound := range []*types.Value{iv.Min, iv.Max} {
		if bound == nil {
			continue
		}
		if bound.TypeID() != s.boundType {
			return terrors.NewMalformedCatalog(
				fmt.Sprintf("table %d: shard %d bound type %s, expected %s",
					s.meta.TableID, iv.ShardID, bound.TypeID(), s.boundType), nil)
		}
	}

	if s.meta.Method == types.MethodHash {
		if iv.Min == nil || iv.Max == nil {
			return terrors.NewMalformedCatalog(
				fmt.Sprintf("table %d: hash shard %d is missing a token bound", s.meta.TableID, iv.ShardID), nil)
		}
		for _, bound := range []*types.Value{iv.Min, iv.Max} {
			if t := bound.Int64(); t < math.MinInt32 || t > math.MaxInt32 {
				return terrors.NewMalformedCatalog(
					fmt.Sprintf("table %d: hash shard %d token %d outside the 32-bit token space",
						s.meta.TableID, iv.ShardID, t), nil)
			}
		}
	}

	if iv.Min != nil && iv.Max != nil {
		c, err := s.cmp(*iv.Min, *iv.Max)
		if err != nil {
			return terrors.NewMalformedCatalog(
				fmt.Sprintf("table %d: shard %d bounds are not comparable", s.meta.TableID, iv.ShardID), err)
		}
		if c > 0 {
			return terrors.NewMalformedCatalog(
				fmt.Sprintf("table %d: shard %d has min above max", s.meta.TableID, iv.ShardID), nil)
		}
		if c == 0 && s.meta.Convention == types.MaxExclusive {
			return terrors.NewMalformedCatalog(
				fmt.Sprintf("table %d: shard %d covers an empty exclusive range", s.meta.TableID, iv.ShardID), nil)
		}
	}

	return nil
}

// checkNonOverlapping verifies adjacent intervals after sorting. An open
// lower bound is only legal on the first interval, an open upper bound
// only on the last.
func (s *Snapshot) checkNonOverlapping() error {
	for i := 1; i < len(s.intervals); i++ {
		prev, cur := s.intervals[i-1], s.intervals[i]

		if cur.Min == nil {
			return terrors.NewMalformedCatalog(
				fmt.Sprintf("table %d: shard %d has an open lower bound but is not first",
					s.meta.TableID, cur.ShardID), nil)
		}
		if prev.Max == nil {
			return terrors.NewMalformedCatalog(
				fmt.Sprintf("table %d: shard %d has an open upper bound but is not last",
					s.meta.TableID, prev.ShardID), nil)
		}

		c, err := s.cmp(*prev.Max, *cur.Min)
		if err != nil {
			return terrors.NewMalformedCatalog(
				fmt.Sprintf("table %d: bounds are not mutually comparable", s.meta.TableID), err)
		}
		overlaps := c > 0
		if s.meta.Convention == types.MaxInclusive && c == 0 {
			// [a,m] followed by [m,b] shares the point m.
			overlaps = true
		}
		if overlaps {
			return terrors.NewMalformedCatalog(
				fmt.Sprintf("table %d: shards %d and %d overlap",
					s.meta.TableID, prev.ShardID, cur.ShardID), nil)
		}
	}
	return nil
}

// boundTypeFor returns the scalar type interval bounds carry: hash table
// bounds are int64 tokens regardless of the column type.
func boundTypeFor(meta Meta) types.ValueTypeID {
	if meta.Method == types.MethodHash {
		return types.TypeInt64
	}
	return meta.Column.TypeID
}

// Meta returns the table metadata the snapshot was built from.
func (s *Snapshot) Meta() Meta {
	return s.meta
}

// TableID returns the owning table's id.
func (s *Snapshot) TableID() int64 {
	return s.meta.TableID
}

// BoundType returns the scalar type of interval bounds.
func (s *Snapshot) BoundType() types.ValueTypeID {
	return s.boundType
}

// NumShards returns the total shard count, catch-all included.
func (s *Snapshot) NumShards() int {
	n := len(s.intervals)
	if s.catchAll != nil {
		n++
	}
	return n
}

// ShardIDs returns every shard id in the table, ascending. This is the
// full candidate set: the result of an unrestricted prune.
func (s *Snapshot) ShardIDs() []int64 {
	ids := make([]int64, 0, s.NumShards())
	for _, iv := range s.intervals {
		ids = append(ids, iv.ShardID)
	}
	if s.catchAll != nil {
		ids = append(ids, s.catchAll.ShardID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CatchAll returns the catch-all shard id, if the table has one.
func (s *Snapshot) CatchAll() (int64, bool) {
	if s.catchAll == nil {
		return 0, false
	}
	return s.catchAll.ShardID, true
}

// Intervals returns a copy of the sorted bounded intervals.
func (s *Snapshot) Intervals() []Interval {
	out := make([]Interval, len(s.intervals))
	copy(out, s.intervals)
	return out
}

// FindContaining locates the shard whose interval contains the given
// distribution column value: hash tables search for the value's token,
// range tables for the value itself. Min bounds are inclusive; max bounds
// follow the stored convention. A miss is a legal outcome (the value lies
// outside the table's declared domain), reported as ok=false.
//
// A literal of the wrong type is a caller error, reported as
// TYPE_MISMATCH rather than silently coerced.
func (s *Snapshot) FindContaining(v types.Value) (int64, bool, error) {
	if v.TypeID() != s.meta.Column.TypeID {
		return 0, false, terrors.NewTypeMismatch(
			fmt.Sprintf("table %d: literal type %s, partition column %q is %s",
				s.meta.TableID, v.TypeID(), s.meta.Column.Name, s.meta.Column.TypeID), nil)
	}

	probe := v
	if s.meta.Method == types.MethodHash {
		token, err := HashToken(v)
		if err != nil {
			return 0, false, terrors.NewInternalError("failed to hash partition value", err)
		}
		probe = types.Int64Value(int64(token))
	}

	if len(s.intervals) == 0 {
		return 0, false, nil
	}

	// Binary search for the first interval that does not end below the
	// probe, then test containment. Sorted non-overlapping intervals make
	// endsBelow monotone, so sort.Search applies.
	var searchErr error
	idx := sort.Search(len(s.intervals), func(i int) bool {
		below, err := s.endsBelow(s.intervals[i], probe)
		if err != nil && searchErr == nil {
			searchErr = err
		}
		return !below
	})
	if searchErr != nil {
		return 0, false, terrors.NewInternalError("bound comparison failed during search", searchErr)
	}
	if idx == len(s.intervals) {
		return 0, false, nil
	}

	contained, err := s.contains(s.intervals[idx], probe)
	if err != nil {
		return 0, false, terrors.NewInternalError("bound comparison failed during containment check", err)
	}
	if !contained {
		return 0, false, nil
	}
	return s.intervals[idx].ShardID, true, nil
}

// endsBelow reports whether every value of the interval is below the probe.
func (s *Snapshot) endsBelow(iv Interval, probe types.Value) (bool, error) {
	if iv.Max == nil {
		return false, nil
	}
	c, err := s.cmp(*iv.Max, probe)
	if err != nil {
		return false, err
	}
	if s.meta.Convention == types.MaxExclusive {
		return c <= 0, nil
	}
	return c < 0, nil
}

// contains reports whether the interval covers the probe.
func (s *Snapshot) contains(iv Interval, probe types.Value) (bool, error) {
	if iv.Min != nil {
		c, err := s.cmp(probe, *iv.Min)
		if err != nil {
			return false, err
		}
		if c < 0 {
			return false, nil
		}
	}
	below, err := s.endsBelow(iv, probe)
	if err != nil {
		return false, err
	}
	return !below, nil
}
