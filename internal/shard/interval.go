// Package shard provides the shard interval catalog snapshot: the
// immutable, validated view of one distributed table's shards that the
// pruning engine evaluates predicates against.
package shard

import (
	"fmt"

	"github.com/tesseradb/tessera/pkg/types"
)

// Interval describes one physical shard of a distributed table: a stable
// 64-bit id and the sub-range of the distribution domain it covers. A nil
// bound means the interval is open on that side. An interval with both
// bounds absent is the table's catch-all shard, holding rows that fit no
// other shard's declared range.
type Interval struct {
	// ShardID is unique within the table and immutable once assigned
	ShardID int64

	// Min is the lower bound, always inclusive when present
	Min *types.Value

	// Max is the upper bound; inclusive or exclusive per the table's
	// stored bound convention
	Max *types.Value
}

// IsCatchAll reports whether the interval is the table's catch-all shard.
func (iv Interval) IsCatchAll() bool {
	return iv.Min == nil && iv.Max == nil
}

// String renders the interval for logs and diagnostics.
func (iv Interval) String() string {
	min, max := "-inf", "+inf"
	if iv.Min != nil {
		min = iv.Min.String()
	}
	if iv.Max != nil {
		max = iv.Max.String()
	}
	return fmt.Sprintf("shard %d [%s, %s]", iv.ShardID, min, max)
}

// ParseInterval decodes an interval from its catalog storage form: text
// bounds typed by the table's bound type, nil text meaning an open side.
func ParseInterval(shardID int64, minText, maxText *string, boundType types.ValueTypeID) (Interval, error) {
	iv := Interval{ShardID: shardID}

	if minText != nil {
		v, err := types.ParseValue(boundType, *minText)
		if err != nil {
			return Interval{}, fmt.Errorf("shard: failed to decode min bound of shard %d: %w", shardID, err)
		}
		iv.Min = &v
	}

	if maxText != nil {
		v, err := types.ParseValue(boundType, *maxText)
		if err != nil {
			return Interval{}, fmt.Errorf("shard: failed to decode max bound of shard %d: %w", shardID, err)
		}
		iv.Max = &v
	}

	return iv, nil
}

// EncodeBounds renders the interval's bounds back into catalog storage
// form. Open sides come back nil.
func (iv Interval) EncodeBounds() (minText, maxText *string) {
	if iv.Min != nil {
		s := iv.Min.EncodeText()
		minText = &s
	}
	if iv.Max != nil {
		s := iv.Max.EncodeText()
		maxText = &s
	}
	return minText, maxText
}
