package pruning

import (
	"encoding/binary"
	"fmt"
)

// Encode renders a candidate set in the only caller-facing shape:
// ascending 64-bit shard ids with no duplicates. A pure format
// transform; zero candidates encode to an empty sequence.
func Encode(set *ShardSet) []int64 {
	if set == nil {
		return []int64{}
	}
	return set.SortedIDs()
}

// AppendBinary appends the set's fixed-width wire form to dst and
// returns the extended slice: a big-endian uint32 count followed by
// each id as a big-endian uint64, ascending.
func AppendBinary(dst []byte, set *ShardSet) []byte {
	ids := Encode(set)
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(ids)))
	for _, id := range ids {
		dst = binary.BigEndian.AppendUint64(dst, uint64(id))
	}
	return dst
}

// DecodeBinary parses the wire form produced by AppendBinary.
func DecodeBinary(data []byte) ([]int64, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("pruning: binary shard set truncated: %d bytes", len(data))
	}
	count := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	if uint64(len(data)) != uint64(count)*8 {
		return nil, fmt.Errorf("pruning: binary shard set declares %d ids but carries %d bytes", count, len(data))
	}
	ids := make([]int64, count)
	for i := range ids {
		ids[i] = int64(binary.BigEndian.Uint64(data[i*8 : i*8+8]))
	}
	return ids, nil
}
