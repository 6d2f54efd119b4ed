package shard

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/spaolacci/murmur3"
	"github.com/tesseradb/tessera/pkg/types"
)

// HashToken computes the hash token for a distribution column value of a
// hash-partitioned table. Tokens cover the signed 32-bit space; shard
// bounds of hash tables are token ranges within it.
func HashToken(v types.Value) (int32, error) {
	b, err := hashBytes(v)
	if err != nil {
		return 0, err
	}
	return int32(murmur3.Sum32(b)), nil
}

// hashBytes produces the canonical byte encoding hashed for each column
// type. The encoding is fixed: changing it reshuffles every hash table.
func hashBytes(v types.Value) ([]byte, error) {
	switch v.TypeID() {
	case types.TypeInt64:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v.Int64()))
		return b[:], nil
	case types.TypeFloat64:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], floatBits(v.Float64()))
		return b[:], nil
	case types.TypeText:
		return []byte(v.Text()), nil
	case types.TypeBool:
		if v.Bool() {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case types.TypeTimestamp:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v.Timestamp().UnixNano()))
		return b[:], nil
	default:
		return nil, fmt.Errorf("shard: cannot hash value of type %s", v.TypeID())
	}
}

// floatBits normalizes -0 to +0 so equal floats hash identically.
func floatBits(f float64) uint64 {
	if f == 0 {
		return math.Float64bits(0)
	}
	return math.Float64bits(f)
}
