package types

import "fmt"

// PartitionMethod defines how a distributed table maps rows to shards.
type PartitionMethod string

const (
	// MethodHash distributes rows by hashing the partition column into the
	// signed 32-bit token space; shard bounds are token ranges
	MethodHash PartitionMethod = "hash"

	// MethodRange distributes rows by comparing the partition column
	// directly against declared per-shard value ranges
	MethodRange PartitionMethod = "range"
)

// ParsePartitionMethod resolves a stored method name.
func ParsePartitionMethod(name string) (PartitionMethod, error) {
	switch PartitionMethod(name) {
	case MethodHash:
		return MethodHash, nil
	case MethodRange:
		return MethodRange, nil
	default:
		return "", fmt.Errorf("types: unknown partition method %q", name)
	}
}

// BoundConvention declares whether a shard interval's max bound is part of
// the interval. The convention is stored per table and preserved exactly;
// hash tables are always inclusive.
type BoundConvention string

const (
	// MaxInclusive means a shard covers [min, max]
	MaxInclusive BoundConvention = "inclusive"

	// MaxExclusive means a shard covers [min, max)
	MaxExclusive BoundConvention = "exclusive"
)

// ParseBoundConvention resolves a stored convention name.
func ParseBoundConvention(name string) (BoundConvention, error) {
	switch BoundConvention(name) {
	case MaxInclusive:
		return MaxInclusive, nil
	case MaxExclusive:
		return MaxExclusive, nil
	default:
		return "", fmt.Errorf("types: unknown bound convention %q", name)
	}
}

// NullPolicy declares where rows with a null partition column live. It is
// explicit per-table configuration: when a table's policy is unknown the
// engine must fall back to the full shard set rather than guess.
type NullPolicy string

const (
	// NullsInCatchAll routes null rows to the table's catch-all shard
	NullsInCatchAll NullPolicy = "catch_all"

	// NoNulls declares the partition column NOT NULL; a null test prunes
	// to the empty set
	NoNulls NullPolicy = "none"

	// NullsUnknown means null placement is undetermined; a null test
	// yields the full shard set
	NullsUnknown NullPolicy = "unknown"
)

// ParseNullPolicy resolves a stored null policy name.
func ParseNullPolicy(name string) (NullPolicy, error) {
	switch NullPolicy(name) {
	case NullsInCatchAll:
		return NullsInCatchAll, nil
	case NoNulls:
		return NoNulls, nil
	case NullsUnknown:
		return NullsUnknown, nil
	default:
		return "", fmt.Errorf("types: unknown null policy %q", name)
	}
}

// PartitionColumn describes the single column a distributed table is
// sharded by. Exactly one exists per table and it never changes after the
// table is created.
type PartitionColumn struct {
	// TableID is the owning distributed table
	TableID int64 `json:"table_id"`

	// Ordinal is the zero-based position of the column in the table
	Ordinal int `json:"ordinal"`

	// Name is the column name as declared
	Name string `json:"name"`

	// TypeID is the declared scalar type, used to decode bounds and to
	// reject mistyped literals
	TypeID ValueTypeID `json:"type"`
}
