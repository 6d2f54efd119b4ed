package benchmark

import (
	"context"
	"fmt"
	"math"
	"os"
	"path"
	"strconv"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tesseradb/tessera/internal/catalog"
	"github.com/tesseradb/tessera/internal/observability"
	"github.com/tesseradb/tessera/internal/predicate"
	"github.com/tesseradb/tessera/internal/pruning"
	"github.com/tesseradb/tessera/internal/shard"
	"github.com/tesseradb/tessera/internal/storage"
	"github.com/tesseradb/tessera/pkg/types"
)

// setupBenchDir creates a scratch directory removed when the benchmark ends.
func setupBenchDir(b *testing.B, prefix string) string {
	dir, err := os.MkdirTemp("", "tessera-bench-"+prefix+"-*")
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// newBenchCatalog opens a catalog in a scratch directory and seeds one
// hash-distributed table named events with the requested shard count.
func newBenchCatalog(b *testing.B, shardCount int) (*catalog.SQLiteCatalog, *catalog.TableRecord) {
	b.Helper()
	ctx := context.Background()

	cat, err := catalog.NewCatalog(path.Join(setupBenchDir(b, "catalog"), "catalog.db"), 4)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { cat.Close() })

	rec, err := cat.CreateDistributedTable(ctx, catalog.TableSpec{
		Name:       "events",
		ColumnName: "tenant_id",
		ColumnType: types.TypeInt64,
		Method:     types.MethodHash,
		NullPolicy: types.NoNulls,
	})
	if err != nil {
		b.Fatal(err)
	}
	if _, err := cat.CreateHashShards(ctx, rec.TableID, shardCount, rec.TableID*100000+1); err != nil {
		b.Fatal(err)
	}
	return cat, rec
}

// newBenchRangeCatalog seeds a range-distributed table with shardCount
// contiguous ranges of width 100 plus a catch-all shard.
func newBenchRangeCatalog(b *testing.B, shardCount int) (*catalog.SQLiteCatalog, *catalog.TableRecord) {
	b.Helper()
	ctx := context.Background()

	cat, err := catalog.NewCatalog(path.Join(setupBenchDir(b, "range-catalog"), "catalog.db"), 4)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { cat.Close() })

	rec, err := cat.CreateDistributedTable(ctx, catalog.TableSpec{
		Name:       "events_by_region",
		ColumnName: "region_id",
		ColumnType: types.TypeInt64,
		Method:     types.MethodRange,
		NullPolicy: types.NullsInCatchAll,
	})
	if err != nil {
		b.Fatal(err)
	}

	startID := rec.TableID*100000 + 1
	for i := 0; i < shardCount; i++ {
		min := strconv.Itoa(i * 100)
		max := strconv.Itoa(i*100 + 99)
		if err := cat.CreateRangeShard(ctx, rec.TableID, startID+int64(i), &min, &max); err != nil {
			b.Fatal(err)
		}
	}
	if err := cat.CreateRangeShard(ctx, rec.TableID, startID+int64(shardCount), nil, nil); err != nil {
		b.Fatal(err)
	}
	return cat, rec
}

// newBenchService wires a pruning service whose metrics and stats sinks
// stay in-process.
func newBenchService(cat *catalog.SQLiteCatalog) *pruning.Service {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	stats := observability.NewPruneStats(time.Hour)
	return pruning.NewService(cat, zap.NewNop(), metrics, stats)
}

func strp(s string) *string { return &s }

// eqClause builds the wire form of column = value.
func eqClause(column string, value int64) predicate.Clause {
	return predicate.Clause{
		Op:     predicate.OpEquals,
		Column: column,
		Value:  strp(strconv.FormatInt(value, 10)),
	}
}

// orClause builds an or of equalities over the given values.
func orClause(column string, values ...int64) *predicate.Clause {
	children := make([]predicate.Clause, len(values))
	for i, v := range values {
		children[i] = eqClause(column, v)
	}
	return &predicate.Clause{Op: predicate.OpOr, Children: children}
}

func vp(v types.Value) *types.Value {
	return &v
}

// hashIntervals splits the 32-bit token space into count equal ranges,
// shard ids firstID..firstID+count-1.
func hashIntervals(count int, firstID int64) []shard.Interval {
	increment := (int64(1) << 32) / int64(count)
	intervals := make([]shard.Interval, count)
	for i := 0; i < count; i++ {
		min := int64(math.MinInt32) + int64(i)*increment
		max := min + increment - 1
		if i == count-1 {
			max = math.MaxInt32
		}
		intervals[i] = shard.Interval{
			ShardID: firstID + int64(i),
			Min:     vp(types.Int64Value(min)),
			Max:     vp(types.Int64Value(max)),
		}
	}
	return intervals
}

// newHashSnapshot builds an in-memory hash table layout without touching
// SQLite.
func newHashSnapshot(b *testing.B, count int) *shard.Snapshot {
	b.Helper()

	snap, err := shard.NewSnapshot(shard.Meta{
		TableID:    7,
		TableName:  "events",
		Column:     types.PartitionColumn{TableID: 7, Name: "tenant_id", TypeID: types.TypeInt64},
		Method:     types.MethodHash,
		Convention: types.MaxInclusive,
		NullPolicy: types.NoNulls,
	}, hashIntervals(count, 1))
	if err != nil {
		b.Fatal(err)
	}
	return snap
}

// getBenchmarkStorage returns an object store and a key prefix for one
// benchmark run. TESSERA_STORAGE_TYPE=s3 from .env or the environment
// targets a live bucket; the default is a local store in a scratch
// directory.
func getBenchmarkStorage(b *testing.B, benchName string) (storage.ObjectStorage, string) {
	// Try loading .env from the project root
	_ = godotenv.Load("../../.env")

	if os.Getenv("TESSERA_STORAGE_TYPE") == "s3" {
		bucket := os.Getenv("TESSERA_S3_BUCKET")
		if bucket == "" {
			b.Fatal("TESSERA_S3_BUCKET is required for an s3 benchmark")
		}

		cfg := storage.DefaultS3Config()
		if region := os.Getenv("TESSERA_S3_REGION"); region != "" {
			cfg.Region = region
		}
		if endpoint := os.Getenv("TESSERA_S3_ENDPOINT"); endpoint != "" {
			cfg.Endpoint = endpoint
			cfg.UsePathStyle = true
		}

		st, err := storage.NewS3Storage(context.Background(), bucket, cfg)
		if err != nil {
			b.Fatalf("failed to initialize s3 storage: %v", err)
		}

		// Unique prefix for this run
		prefix := fmt.Sprintf("bench/%s/%d", benchName, time.Now().UnixNano())
		b.Logf("running against s3 bucket %s prefix %s", bucket, prefix)
		return st, prefix
	}

	st, err := storage.NewLocalStorage(setupBenchDir(b, benchName))
	if err != nil {
		b.Fatal(err)
	}
	return st, "bench"
}
