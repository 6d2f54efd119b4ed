// Package benchmark provides performance benchmarks for Tessera
package benchmark

import (
	"context"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/tesseradb/tessera/internal/predicate"
	"github.com/tesseradb/tessera/internal/pruning"
	"github.com/tesseradb/tessera/internal/snapshot"
	"github.com/tesseradb/tessera/pkg/types"
)

// BenchmarkPruneEquality measures the full service path for a single
// equality: catalog load, clause translation, candidate selection.
func BenchmarkPruneEquality(b *testing.B) {
	for _, shardCount := range []int{8, 64, 512, 4096} {
		b.Run(fmt.Sprintf("%dshards", shardCount), func(b *testing.B) {
			cat, rec := newBenchCatalog(b, shardCount)
			svc := newBenchService(cat)
			ctx := context.Background()

			clause := eqClause(rec.Column.Name, 42)
			req := pruning.PruneRequest{Table: "events", Predicate: &clause}

			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				res, err := svc.PruneTable(ctx, req)
				if err != nil {
					b.Fatal(err)
				}
				if len(res.ShardIDs) != 1 {
					b.Fatalf("expected 1 candidate shard, got %d", len(res.ShardIDs))
				}
			}
		})
	}
}

// BenchmarkPruneOr measures a 16-way or of equalities on a 1024-shard
// table.
func BenchmarkPruneOr(b *testing.B) {
	cat, rec := newBenchCatalog(b, 1024)
	svc := newBenchService(cat)
	ctx := context.Background()

	values := make([]int64, 16)
	for i := range values {
		values[i] = int64(i * 17)
	}
	req := pruning.PruneRequest{Table: "events", Predicate: orClause(rec.Column.Name, values...)}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		res, err := svc.PruneTable(ctx, req)
		if err != nil {
			b.Fatal(err)
		}
		if len(res.ShardIDs) == 0 || len(res.ShardIDs) > 16 {
			b.Fatalf("expected between 1 and 16 candidate shards, got %d", len(res.ShardIDs))
		}
	}
}

// BenchmarkPruneNoPredicate measures the unrestricted path, which has to
// hand back the full candidate list.
func BenchmarkPruneNoPredicate(b *testing.B) {
	cat, _ := newBenchCatalog(b, 4096)
	svc := newBenchService(cat)
	ctx := context.Background()
	req := pruning.PruneRequest{Table: "events"}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		res, err := svc.PruneTable(ctx, req)
		if err != nil {
			b.Fatal(err)
		}
		if len(res.ShardIDs) != 4096 {
			b.Fatalf("expected all 4096 shards, got %d", len(res.ShardIDs))
		}
	}
}

// BenchmarkPruneRangeEquality measures the bound search on a range
// table, both inside a defined range and falling through to the
// catch-all shard.
func BenchmarkPruneRangeEquality(b *testing.B) {
	cat, rec := newBenchRangeCatalog(b, 1024)
	svc := newBenchService(cat)
	ctx := context.Background()

	hit := eqClause(rec.Column.Name, 51250)
	miss := eqClause(rec.Column.Name, 999999)

	run := func(b *testing.B, clause predicate.Clause) {
		req := pruning.PruneRequest{Table: "events_by_region", Predicate: &clause}
		b.ResetTimer()
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			res, err := svc.PruneTable(ctx, req)
			if err != nil {
				b.Fatal(err)
			}
			if len(res.ShardIDs) != 1 {
				b.Fatalf("expected 1 candidate shard, got %d", len(res.ShardIDs))
			}
		}
	}

	b.Run("Hit", func(b *testing.B) { run(b, hit) })
	b.Run("CatchAll", func(b *testing.B) { run(b, miss) })
}

// BenchmarkPruneParallel drives concurrent equality prunes through one
// service, the serve-mode hot path.
func BenchmarkPruneParallel(b *testing.B) {
	cat, rec := newBenchCatalog(b, 1024)
	svc := newBenchService(cat)

	clause := eqClause(rec.Column.Name, 42)
	req := pruning.PruneRequest{Table: "events", Predicate: &clause}

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			if _, err := svc.PruneTable(ctx, req); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

// BenchmarkPruneEngineEquality measures the in-memory engine alone on a
// prebuilt layout.
// Target: sub-microsecond candidate selection at 4096 shards
func BenchmarkPruneEngineEquality(b *testing.B) {
	for _, shardCount := range []int{64, 1024, 4096} {
		b.Run(fmt.Sprintf("%dshards", shardCount), func(b *testing.B) {
			snap := newHashSnapshot(b, shardCount)
			node := &predicate.Equals{Column: snap.Meta().Column, Value: types.Int64Value(42)}

			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				set, err := pruning.Prune(snap, node)
				if err != nil {
					b.Fatal(err)
				}
				if set.Len() != 1 {
					b.Fatalf("expected 1 candidate shard, got %d", set.Len())
				}
			}
		})
	}
}

// BenchmarkCatalogLoad measures snapshot assembly from SQLite.
func BenchmarkCatalogLoad(b *testing.B) {
	for _, shardCount := range []int{64, 1024, 4096} {
		b.Run(fmt.Sprintf("%dshards", shardCount), func(b *testing.B) {
			cat, rec := newBenchCatalog(b, shardCount)
			ctx := context.Background()

			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				snap, err := cat.LoadShardCatalog(ctx, rec.TableID)
				if err != nil {
					b.Fatal(err)
				}
				if snap.NumShards() != shardCount {
					b.Fatalf("expected %d shards, got %d", shardCount, snap.NumShards())
				}
			}

			b.ReportMetric(float64(shardCount)*float64(b.N)/b.Elapsed().Seconds(), "shards/sec")
		})
	}
}

// BenchmarkArchiveCodecs measures one archive upload of a 1024-shard
// layout per iteration under each compression codec.
func BenchmarkArchiveCodecs(b *testing.B) {
	for _, name := range []string{"none", "snappy", "lz4"} {
		b.Run(name, func(b *testing.B) {
			cat, rec := newBenchCatalog(b, 1024)
			ctx := context.Background()

			snap, err := cat.LoadShardCatalog(ctx, rec.TableID)
			if err != nil {
				b.Fatal(err)
			}

			store, prefix := getBenchmarkStorage(b, "archive-"+name)
			codec, err := snapshot.CodecByName(name)
			if err != nil {
				b.Fatal(err)
			}
			archiver := snapshot.NewArchiver(store, codec, zap.NewNop(), snapshot.ArchiverConfig{
				Prefix:      prefix,
				Concurrency: 1,
			})

			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				if _, err := archiver.Archive(ctx, snap); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkShardListCodec measures the binary wire encoding of a pruned
// shard list.
func BenchmarkShardListCodec(b *testing.B) {
	ids := make([]int64, 4096)
	for i := range ids {
		ids[i] = int64(1000000 + i)
	}
	set := pruning.NewShardSet(ids...)

	b.ResetTimer()
	b.ReportAllocs()

	buf := make([]byte, 0, 64*1024)
	for i := 0; i < b.N; i++ {
		buf = pruning.AppendBinary(buf[:0], set)
		decoded, err := pruning.DecodeBinary(buf)
		if err != nil {
			b.Fatal(err)
		}
		if len(decoded) != len(ids) {
			b.Fatalf("decoded %d ids, want %d", len(decoded), len(ids))
		}
	}
}
