package snapshot

import (
	"encoding/json"
	"math"
	"testing"

	terrors "github.com/tesseradb/tessera/internal/errors"
	"github.com/tesseradb/tessera/internal/shard"
	"github.com/tesseradb/tessera/pkg/types"
)

func vp(v types.Value) *types.Value {
	return &v
}

// rangeSnapshot builds an int64 range table with a catch-all shard.
func rangeSnapshot(t *testing.T) *shard.Snapshot {
	t.Helper()

	meta := shard.Meta{
		TableID:   12,
		TableName: "events",
		Column: types.PartitionColumn{
			TableID: 12,
			Ordinal: 1,
			Name:    "region_id",
			TypeID:  types.TypeInt64,
		},
		Method:     types.MethodRange,
		Convention: types.MaxInclusive,
		NullPolicy: types.NullsInCatchAll,
	}

	snap, err := shard.NewSnapshot(meta, []shard.Interval{
		{ShardID: 101, Min: vp(types.Int64Value(0)), Max: vp(types.Int64Value(9))},
		{ShardID: 102, Min: vp(types.Int64Value(10)), Max: vp(types.Int64Value(19))},
		{ShardID: 103, Min: vp(types.Int64Value(20)), Max: vp(types.Int64Value(29))},
		{ShardID: 104},
	})
	if err != nil {
		t.Fatalf("failed to build range snapshot: %v", err)
	}
	return snap
}

// textSnapshot builds a text range table with exclusive max bounds.
func textSnapshot(t *testing.T) *shard.Snapshot {
	t.Helper()

	meta := shard.Meta{
		TableID:   30,
		TableName: "users",
		Column: types.PartitionColumn{
			TableID: 30,
			Ordinal: 0,
			Name:    "name",
			TypeID:  types.TypeText,
		},
		Method:     types.MethodRange,
		Convention: types.MaxExclusive,
		NullPolicy: types.NoNulls,
	}

	snap, err := shard.NewSnapshot(meta, []shard.Interval{
		{ShardID: 301, Min: vp(types.TextValue("a")), Max: vp(types.TextValue("f"))},
		{ShardID: 302, Min: vp(types.TextValue("f")), Max: vp(types.TextValue("z"))},
	})
	if err != nil {
		t.Fatalf("failed to build text snapshot: %v", err)
	}
	return snap
}

// hashSnapshot builds a hash table with count token-range shards.
func hashSnapshot(t *testing.T, count int) *shard.Snapshot {
	t.Helper()

	meta := shard.Meta{
		TableID:   7,
		TableName: "orders",
		Column: types.PartitionColumn{
			TableID: 7,
			Ordinal: 0,
			Name:    "customer_id",
			TypeID:  types.TypeInt64,
		},
		Method:     types.MethodHash,
		Convention: types.MaxInclusive,
		NullPolicy: types.NoNulls,
	}

	increment := int64(1) << 32 / int64(count)
	intervals := make([]shard.Interval, count)
	for i := 0; i < count; i++ {
		min := int64(math.MinInt32) + int64(i)*increment
		max := min + increment - 1
		if i == count-1 {
			max = math.MaxInt32
		}
		intervals[i] = shard.Interval{
			ShardID: 700 + int64(i),
			Min:     vp(types.Int64Value(min)),
			Max:     vp(types.Int64Value(max)),
		}
	}

	snap, err := shard.NewSnapshot(meta, intervals)
	if err != nil {
		t.Fatalf("failed to build hash snapshot: %v", err)
	}
	return snap
}

func assertSameLayout(t *testing.T, got, want *shard.Snapshot) {
	t.Helper()

	if got.Meta() != want.Meta() {
		t.Errorf("meta mismatch: got %+v, want %+v", got.Meta(), want.Meta())
	}
	if got.NumShards() != want.NumShards() {
		t.Fatalf("NumShards = %d, want %d", got.NumShards(), want.NumShards())
	}

	gotCatchAll, gotOK := got.CatchAll()
	wantCatchAll, wantOK := want.CatchAll()
	if gotOK != wantOK || gotCatchAll != wantCatchAll {
		t.Errorf("catch-all = (%d, %v), want (%d, %v)",
			gotCatchAll, gotOK, wantCatchAll, wantOK)
	}

	gotIntervals := got.Intervals()
	wantIntervals := want.Intervals()
	for i := range wantIntervals {
		if gotIntervals[i].ShardID != wantIntervals[i].ShardID {
			t.Errorf("interval %d shard id = %d, want %d",
				i, gotIntervals[i].ShardID, wantIntervals[i].ShardID)
		}
		gotMin, gotMax := gotIntervals[i].EncodeBounds()
		wantMin, wantMax := wantIntervals[i].EncodeBounds()
		if !equalBound(gotMin, wantMin) || !equalBound(gotMax, wantMax) {
			t.Errorf("interval %d bounds mismatch", i)
		}
	}
}

func equalBound(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func TestEnvelopeRoundTrip(t *testing.T) {
	for _, snap := range []*shard.Snapshot{
		rangeSnapshot(t),
		textSnapshot(t),
		hashSnapshot(t, 8),
	} {
		data, err := Marshal(snap)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}

		restored, err := Unmarshal(data)
		if err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		assertSameLayout(t, restored, snap)
	}
}

func TestEnvelopeRoundTripPreservesLookups(t *testing.T) {
	data, err := Marshal(rangeSnapshot(t))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	restored, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	probes := map[int64]int64{5: 101, 15: 102, 25: 103}
	for value, wantShard := range probes {
		shardID, ok, err := restored.FindContaining(types.Int64Value(value))
		if err != nil {
			t.Fatalf("FindContaining(%d) failed: %v", value, err)
		}
		if !ok || shardID != wantShard {
			t.Errorf("FindContaining(%d) = (%d, %v), want (%d, true)",
				value, shardID, ok, wantShard)
		}
	}

	// A value outside every bounded interval is a miss; routing misses
	// to the catch-all is the engine's decision, not the snapshot's
	if _, ok, err := restored.FindContaining(types.Int64Value(99)); err != nil || ok {
		t.Errorf("FindContaining(99) = (ok=%v, err=%v), want a miss", ok, err)
	}

	catchAllID, ok := restored.CatchAll()
	if !ok || catchAllID != 104 {
		t.Errorf("CatchAll() = (%d, %v), want (104, true)", catchAllID, ok)
	}
}

func TestUnmarshalRejectsBadEnvelopes(t *testing.T) {
	valid, err := Marshal(rangeSnapshot(t))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	mutate := func(t *testing.T, fn func(env *Envelope)) []byte {
		t.Helper()
		var env Envelope
		if err := json.Unmarshal(valid, &env); err != nil {
			t.Fatalf("failed to decode valid envelope: %v", err)
		}
		fn(&env)
		data, err := json.Marshal(env)
		if err != nil {
			t.Fatalf("failed to re-encode envelope: %v", err)
		}
		return data
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"garbage", []byte("not json at all")},
		{"future version", mutate(t, func(env *Envelope) { env.Version = EnvelopeVersion + 1 })},
		{"zero version", mutate(t, func(env *Envelope) { env.Version = 0 })},
		{"unknown method", mutate(t, func(env *Envelope) { env.Method = "roundrobin" })},
		{"unknown convention", mutate(t, func(env *Envelope) { env.Convention = "half-open" })},
		{"unknown null policy", mutate(t, func(env *Envelope) { env.NullPolicy = "sometimes" })},
		{"unknown column type", mutate(t, func(env *Envelope) { env.Column.Type = "uuid" })},
		{"undecodable bound", mutate(t, func(env *Envelope) {
			bad := "abc"
			env.Shards[0].Min = &bad
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal(tt.data)
			if err == nil {
				t.Fatal("expected Unmarshal to fail")
			}
			if terrors.GetCode(err) != terrors.CodeCorruptSnapshot {
				t.Errorf("code = %s, want %s", terrors.GetCode(err), terrors.CodeCorruptSnapshot)
			}
		})
	}
}

func TestUnmarshalRevalidatesLayout(t *testing.T) {
	valid, err := Marshal(rangeSnapshot(t))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(valid, &env); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}

	// Pull shard 102's min into shard 101's range
	overlap := "5"
	env.Shards[1].Min = &overlap
	tampered, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("failed to re-encode envelope: %v", err)
	}

	_, err = Unmarshal(tampered)
	if !terrors.IsMalformedCatalog(err) {
		t.Errorf("expected MALFORMED_CATALOG for overlapping layout, got %v", err)
	}
}
