// Package snapshot archives shard catalog snapshots to object storage
// and restores them. An archive is a framed, optionally compressed JSON
// envelope; restored snapshots pass through the same validation the
// catalog applies at load.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tesseradb/tessera/internal/catalog"
	terrors "github.com/tesseradb/tessera/internal/errors"
	"github.com/tesseradb/tessera/internal/shard"
	"github.com/tesseradb/tessera/internal/storage"
)

// ArchiveSuffix is the object name extension for archived snapshots.
const ArchiveSuffix = ".tsnap"

// Catalog is the slice of the shard catalog the archiver needs.
type Catalog interface {
	ListTables(ctx context.Context) ([]*catalog.TableRecord, error)
	LoadShardCatalog(ctx context.Context, tableID int64) (*shard.Snapshot, error)
}

// ArchiverConfig holds archiver tuning.
type ArchiverConfig struct {
	// Prefix is the object key namespace for archives
	Prefix string

	// Concurrency bounds parallel table archives in ArchiveAll
	Concurrency int
}

// DefaultArchiverConfig returns the default archiver configuration.
func DefaultArchiverConfig() ArchiverConfig {
	return ArchiverConfig{
		Prefix:      "snapshots",
		Concurrency: 4,
	}
}

// Archiver writes catalog snapshots to object storage and restores
// them. One Archiver serves all tables concurrently.
type Archiver struct {
	storage     storage.ObjectStorage
	codec       Codec
	logger      *zap.Logger
	prefix      string
	concurrency int
}

// NewArchiver creates an archiver over the given object store.
func NewArchiver(store storage.ObjectStorage, codec Codec, logger *zap.Logger, cfg ArchiverConfig) *Archiver {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultArchiverConfig().Prefix
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultArchiverConfig().Concurrency
	}
	if cfg.Concurrency > 64 {
		cfg.Concurrency = 64
	}
	if codec == nil {
		codec = &NoneCodec{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Archiver{
		storage:     store,
		codec:       codec,
		logger:      logger,
		prefix:      cfg.Prefix,
		concurrency: cfg.Concurrency,
	}
}

// Archive writes the snapshot to object storage and returns its key.
// Keys are ordered by archive time within a table's prefix.
func (a *Archiver) Archive(ctx context.Context, snap *shard.Snapshot) (string, error) {
	payload, err := Marshal(snap)
	if err != nil {
		return "", err
	}

	block, err := EncodeBlock(a.codec, payload)
	if err != nil {
		return "", terrors.NewSnapshotError("failed to encode snapshot block", err)
	}

	key := a.objectKey(snap.TableID())
	if err := storage.PutBytes(ctx, a.storage, key, block); err != nil {
		return "", terrors.NewStorageError(terrors.CodeUploadFailed,
			fmt.Sprintf("failed to archive snapshot for table %d", snap.TableID()), err)
	}

	a.logger.Info("archived snapshot",
		zap.Int64("table_id", snap.TableID()),
		zap.String("key", key),
		zap.Int("shards", snap.NumShards()),
		zap.Int("raw_bytes", len(payload)),
		zap.Int("stored_bytes", len(block)))

	return key, nil
}

// Restore fetches an archived snapshot and rebuilds it, re-running full
// layout validation.
func (a *Archiver) Restore(ctx context.Context, key string) (*shard.Snapshot, error) {
	block, err := storage.GetBytes(ctx, a.storage, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, terrors.NewStorageError(terrors.CodeObjectNotFound,
				fmt.Sprintf("snapshot archive %s does not exist", key), err)
		}
		return nil, terrors.NewStorageError(terrors.CodeDownloadFailed,
			fmt.Sprintf("failed to fetch snapshot archive %s", key), err)
	}

	payload, err := DecodeBlock(block)
	if err != nil {
		return nil, terrors.NewSnapshotError(
			fmt.Sprintf("snapshot archive %s is corrupt", key), err)
	}

	snap, err := Unmarshal(payload)
	if err != nil {
		return nil, err
	}

	a.logger.Info("restored snapshot",
		zap.Int64("table_id", snap.TableID()),
		zap.String("key", key),
		zap.Int("shards", snap.NumShards()))

	return snap, nil
}

// Latest returns the most recent archive key for a table. Keys embed a
// fixed-width nanosecond timestamp, so the lexicographic maximum is the
// newest archive.
func (a *Archiver) Latest(ctx context.Context, tableID int64) (string, error) {
	prefix := fmt.Sprintf("%s/%d/", a.prefix, tableID)
	keys, err := a.storage.ListObjects(ctx, prefix)
	if err != nil {
		return "", terrors.NewStorageError(terrors.CodeDownloadFailed,
			fmt.Sprintf("failed to list snapshot archives for table %d", tableID), err)
	}

	var latest string
	for _, key := range keys {
		if !strings.HasSuffix(key, ArchiveSuffix) {
			continue
		}
		if key > latest {
			latest = key
		}
	}
	if latest == "" {
		return "", terrors.NewStorageError(terrors.CodeObjectNotFound,
			fmt.Sprintf("no snapshot archives for table %d", tableID), nil)
	}
	return latest, nil
}

// RestoreLatest restores the most recent archive for a table.
func (a *Archiver) RestoreLatest(ctx context.Context, tableID int64) (*shard.Snapshot, error) {
	key, err := a.Latest(ctx, tableID)
	if err != nil {
		return nil, err
	}
	return a.Restore(ctx, key)
}

// ArchiveAll archives the current snapshot of every distributed table,
// bounded by the configured concurrency. Returns the archive key per
// table id; on error the returned map holds the keys written before the
// failure.
func (a *Archiver) ArchiveAll(ctx context.Context, cat Catalog) (map[int64]string, error) {
	tables, err := cat.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	keys := make(map[int64]string, len(tables))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for _, table := range tables {
		g.Go(func() error {
			snap, err := cat.LoadShardCatalog(ctx, table.TableID)
			if err != nil {
				return err
			}
			key, err := a.Archive(ctx, snap)
			if err != nil {
				return err
			}
			mu.Lock()
			keys[table.TableID] = key
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return keys, err
	}
	return keys, nil
}

func (a *Archiver) objectKey(tableID int64) string {
	return fmt.Sprintf("%s/%d/%d-%s%s",
		a.prefix, tableID, time.Now().UnixNano(), uuid.NewString(), ArchiveSuffix)
}
