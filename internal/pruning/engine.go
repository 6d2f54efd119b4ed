package pruning

import (
	"github.com/tesseradb/tessera/internal/predicate"
	"github.com/tesseradb/tessera/internal/shard"
	"github.com/tesseradb/tessera/pkg/types"
)

// Prune evaluates a restriction tree against one table's shard snapshot
// and returns the candidate shard set. It is a pure function over its
// immutable inputs: no I/O, no shared state, safe for any number of
// concurrent callers without synchronization.
//
// The result never omits a shard that could contain a matching row. It
// may include shards that provably cannot, because a branch the engine
// cannot interpret falls back to the full shard set rather than to a
// guess. A nil predicate places no restriction.
func Prune(snap *shard.Snapshot, node predicate.Node) (*ShardSet, error) {
	switch n := node.(type) {
	case nil:
		return fullSet(snap), nil

	case *predicate.Equals:
		return pruneEquals(snap, n)

	case *predicate.IsNull:
		return pruneIsNull(snap), nil

	case *predicate.Opaque:
		return fullSet(snap), nil

	case *predicate.And:
		// An empty conjunction is the distinguished no-restriction value:
		// every shard qualifies without touching individual clauses.
		if len(n.Children) == 0 {
			return fullSet(snap), nil
		}
		var result *ShardSet
		for _, child := range n.Children {
			childSet, err := Prune(snap, child)
			if err != nil {
				return nil, err
			}
			if result == nil {
				result = childSet
			} else {
				result = result.Intersect(childSet)
			}
			// Intersecting with the empty set stays empty, so the remaining
			// children cannot change the outcome.
			if result.IsEmpty() {
				return result, nil
			}
		}
		return result, nil

	case *predicate.Or:
		result := NewShardSet()
		for _, child := range n.Children {
			childSet, err := Prune(snap, child)
			if err != nil {
				return nil, err
			}
			result = result.Union(childSet)
		}
		return result, nil

	default:
		// A node kind the engine does not recognize prunes nothing, same
		// as an opaque clause.
		return fullSet(snap), nil
	}
}

// pruneEquals locates the single shard whose interval contains the
// literal. A miss means the value lies outside every declared range;
// rows carrying it could only live in the catch-all shard, so that
// shard is the candidate when the table has one, and the set is empty
// otherwise.
func pruneEquals(snap *shard.Snapshot, eq *predicate.Equals) (*ShardSet, error) {
	id, ok, err := snap.FindContaining(eq.Value)
	if err != nil {
		return nil, err
	}
	if ok {
		return NewShardSet(id), nil
	}
	if catchAll, has := snap.CatchAll(); has {
		return NewShardSet(catchAll), nil
	}
	return NewShardSet(), nil
}

// pruneIsNull selects candidates for rows with a null partition column,
// driven by the table's declared null policy. An undeclared or unknown
// policy keeps every shard: excluding one would risk a false negative.
func pruneIsNull(snap *shard.Snapshot) *ShardSet {
	switch snap.Meta().NullPolicy {
	case types.NoNulls:
		return NewShardSet()
	case types.NullsInCatchAll:
		if id, ok := snap.CatchAll(); ok {
			return NewShardSet(id)
		}
		return fullSet(snap)
	default:
		return fullSet(snap)
	}
}

// fullSet returns every shard id in the snapshot, the result of any
// branch that cannot be pruned.
func fullSet(snap *shard.Snapshot) *ShardSet {
	return NewShardSet(snap.ShardIDs()...)
}
