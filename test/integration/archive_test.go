package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/tesseradb/tessera/internal/catalog"
	"github.com/tesseradb/tessera/internal/config"
	"github.com/tesseradb/tessera/internal/snapshot"
	"github.com/tesseradb/tessera/internal/storage"
	"github.com/tesseradb/tessera/pkg/types"
)

// seedTable creates a hash table with a 16 shard layout and returns its id.
func seedTable(t *testing.T, ctx context.Context, cat *catalog.SQLiteCatalog, name string) int64 {
	t.Helper()
	rec, err := cat.CreateDistributedTable(ctx, catalog.TableSpec{
		Name:       name,
		ColumnName: "tenant_id",
		ColumnType: types.TypeInt64,
		Method:     types.MethodHash,
		NullPolicy: types.NoNulls,
	})
	if err != nil {
		t.Fatalf("failed to create table %s: %v", name, err)
	}
	if _, err := cat.CreateHashShards(ctx, rec.TableID, 16, rec.TableID*100000+1); err != nil {
		t.Fatalf("failed to create shards for %s: %v", name, err)
	}
	return rec.TableID
}

// TestArchiveRestoreFlow tests the full snapshot archive flow: catalog →
// archiver → object storage → restore, plus mirroring the archive to a
// local cache with the batch downloader.
func TestArchiveRestoreFlow(t *testing.T) {
	ctx := context.Background()
	tempDir := t.TempDir()

	cat, err := catalog.NewCatalog(filepath.Join(tempDir, "catalog.db"), 2)
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	defer cat.Close()

	eventsID := seedTable(t, ctx, cat, "events")
	ordersID := seedTable(t, ctx, cat, "orders")

	store, err := storage.NewLocalStorage(filepath.Join(tempDir, "objects"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	codec, err := snapshot.CodecByName("lz4")
	if err != nil {
		t.Fatalf("failed to resolve codec: %v", err)
	}

	archiver := snapshot.NewArchiver(store, codec, zap.NewNop(), snapshot.ArchiverConfig{
		Prefix:      "snapshots",
		Concurrency: 2,
	})

	// Archive every table
	uploaded, err := archiver.ArchiveAll(ctx, cat)
	if err != nil {
		t.Fatalf("archive sweep failed: %v", err)
	}
	if len(uploaded) != 2 {
		t.Fatalf("expected 2 archived tables, got %d", len(uploaded))
	}
	for _, id := range []int64{eventsID, ordersID} {
		if uploaded[id] == "" {
			t.Errorf("table %d missing from the sweep result", id)
		}
	}

	// Restore the latest archive and compare it to the live snapshot
	live, err := cat.LoadShardCatalog(ctx, eventsID)
	if err != nil {
		t.Fatalf("failed to load live snapshot: %v", err)
	}
	restored, err := archiver.RestoreLatest(ctx, eventsID)
	if err != nil {
		t.Fatalf("failed to restore snapshot: %v", err)
	}

	if restored.TableID() != live.TableID() {
		t.Errorf("restored table id %d, want %d", restored.TableID(), live.TableID())
	}
	if restored.NumShards() != live.NumShards() {
		t.Errorf("restored %d shards, want %d", restored.NumShards(), live.NumShards())
	}
	if restored.Meta().TableName != "events" {
		t.Errorf("restored table name %q, want events", restored.Meta().TableName)
	}
	liveIntervals, restoredIntervals := live.Intervals(), restored.Intervals()
	for i := range liveIntervals {
		if restoredIntervals[i].ShardID != liveIntervals[i].ShardID {
			t.Fatalf("interval %d: shard id %d, want %d",
				i, restoredIntervals[i].ShardID, liveIntervals[i].ShardID)
		}
	}

	// Mirror the archive into a local cache directory
	keys, err := store.ListObjects(ctx, "snapshots")
	if err != nil {
		t.Fatalf("failed to list archive objects: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 archive objects, got %d", len(keys))
	}

	cacheDir := filepath.Join(tempDir, "cache")
	downloader := storage.NewBatchDownloader(store, 2, cacheDir)

	result, err := downloader.Download(ctx, keys)
	if err != nil {
		t.Fatalf("batch download failed: %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("batch download errors: %v", result.Errors)
	}
	if result.Downloads != 2 {
		t.Errorf("expected 2 downloads, got %d", result.Downloads)
	}
	for _, localPath := range result.LocalPaths {
		if _, err := os.Stat(localPath); err != nil {
			t.Errorf("mirrored file missing: %v", err)
		}
	}

	// A second pull is served from the cache
	again, err := downloader.Download(ctx, keys)
	if err != nil {
		t.Fatalf("second batch download failed: %v", err)
	}
	if again.CacheHits != 2 || again.Downloads != 0 {
		t.Errorf("expected 2 cache hits and no downloads, got %d hits, %d downloads",
			again.CacheHits, again.Downloads)
	}
}

// TestArchiveCompressionCodecs archives the same layout under each codec
// and verifies each restores to the same shard set.
func TestArchiveCompressionCodecs(t *testing.T) {
	ctx := context.Background()
	tempDir := t.TempDir()

	cat, err := catalog.NewCatalog(filepath.Join(tempDir, "catalog.db"), 2)
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	defer cat.Close()

	tableID := seedTable(t, ctx, cat, "events")
	snap, err := cat.LoadShardCatalog(ctx, tableID)
	if err != nil {
		t.Fatalf("failed to load snapshot: %v", err)
	}

	for _, name := range []string{"none", "snappy", "lz4"} {
		t.Run(name, func(t *testing.T) {
			store, err := storage.NewLocalStorage(filepath.Join(tempDir, "objects-"+name))
			if err != nil {
				t.Fatalf("failed to create storage: %v", err)
			}
			codec, err := snapshot.CodecByName(name)
			if err != nil {
				t.Fatalf("failed to resolve codec: %v", err)
			}
			archiver := snapshot.NewArchiver(store, codec, zap.NewNop(), snapshot.ArchiverConfig{})

			key, err := archiver.Archive(ctx, snap)
			if err != nil {
				t.Fatalf("archive failed: %v", err)
			}
			restored, err := archiver.Restore(ctx, key)
			if err != nil {
				t.Fatalf("restore failed: %v", err)
			}
			if restored.NumShards() != snap.NumShards() {
				t.Errorf("restored %d shards, want %d", restored.NumShards(), snap.NumShards())
			}
		})
	}
}

// TestS3ArchiveFlow runs the archive flow against a real S3-compatible
// endpoint. It is skipped unless the environment provides a bucket,
// typically via a local .env pointing at MinIO.
func TestS3ArchiveFlow(t *testing.T) {
	_ = godotenv.Load("../../.env")

	bucket := os.Getenv("TESSERA_TEST_S3_BUCKET")
	if bucket == "" {
		t.Skip("TESSERA_TEST_S3_BUCKET not set; skipping S3 integration test")
	}

	ctx := context.Background()
	tempDir := t.TempDir()

	cat, err := catalog.NewCatalog(filepath.Join(tempDir, "catalog.db"), 2)
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	defer cat.Close()

	tableID := seedTable(t, ctx, cat, "events")

	store, err := storage.New(ctx, config.StorageConfig{
		Type: "s3",
		S3: config.S3Config{
			Bucket:   bucket,
			Region:   os.Getenv("TESSERA_TEST_S3_REGION"),
			Endpoint: os.Getenv("TESSERA_TEST_S3_ENDPOINT"),
		},
	})
	if err != nil {
		t.Fatalf("failed to create s3 storage: %v", err)
	}

	codec, _ := snapshot.CodecByName("snappy")
	archiver := snapshot.NewArchiver(store, codec, zap.NewNop(), snapshot.ArchiverConfig{
		Prefix: "integration-test/snapshots",
	})

	uploaded, err := archiver.ArchiveAll(ctx, cat)
	if err != nil {
		t.Fatalf("archive sweep failed: %v", err)
	}
	defer func() {
		for _, key := range uploaded {
			store.Delete(ctx, key)
		}
	}()

	restored, err := archiver.RestoreLatest(ctx, tableID)
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if restored.NumShards() != 16 {
		t.Errorf("restored %d shards, want 16", restored.NumShards())
	}
}
