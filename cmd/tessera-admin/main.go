// Package main implements tessera-admin, the operator CLI for the shard
// catalog and the snapshot archive. It creates distributed tables and
// shard layouts, inspects them, and moves snapshot archives between
// object storage and the local filesystem.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/tesseradb/tessera/internal/catalog"
	"github.com/tesseradb/tessera/internal/config"
	"github.com/tesseradb/tessera/internal/shard"
	"github.com/tesseradb/tessera/internal/snapshot"
	"github.com/tesseradb/tessera/internal/storage"
	"github.com/tesseradb/tessera/pkg/types"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx := context.Background()

	switch os.Args[1] {
	case "create-table":
		runCreateTable(ctx, os.Args[2:])
	case "create-shards":
		runCreateShards(ctx, os.Args[2:])
	case "list":
		runList(ctx, os.Args[2:])
	case "describe":
		runDescribe(ctx, os.Args[2:])
	case "archive":
		runArchive(ctx, os.Args[2:])
	case "archive-all":
		runArchiveAll(ctx, os.Args[2:])
	case "restore":
		runRestore(ctx, os.Args[2:])
	case "pull":
		runPull(ctx, os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: tessera-admin <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  create-table   Register a distributed table\n")
	fmt.Fprintf(os.Stderr, "  create-shards  Register hash or range shards for a table\n")
	fmt.Fprintf(os.Stderr, "  list           List distributed tables\n")
	fmt.Fprintf(os.Stderr, "  describe       Print a table's shard intervals\n")
	fmt.Fprintf(os.Stderr, "  archive        Archive one table's shard snapshot to object storage\n")
	fmt.Fprintf(os.Stderr, "  archive-all    Archive every table's shard snapshot\n")
	fmt.Fprintf(os.Stderr, "  restore        Print a snapshot restored from object storage\n")
	fmt.Fprintf(os.Stderr, "  pull           Mirror the snapshot archive to a local directory\n")
	fmt.Fprintf(os.Stderr, "\nRun 'tessera-admin <command> -h' for command options.\n")
}

// commonFlags registers the flags every subcommand shares.
func commonFlags(fs *flag.FlagSet) (configFile, dataDir *string) {
	configFile = fs.String("config", "", "Path to configuration file (YAML or JSON)")
	dataDir = fs.String("data-dir", "", "Base directory for all data files")
	return configFile, dataDir
}

// resolveConfig loads configuration the same way tesserad does: file or
// defaults, then environment, then the data-dir flag.
func resolveConfig(configFile, dataDir string) *config.Config {
	var cfg *config.Config
	if configFile != "" {
		loaded, err := config.LoadFromFile(configFile)
		if err != nil {
			errExit("failed to load config file: %v", err)
		}
		cfg = loaded
	} else {
		cfg = config.DefaultConfig()
	}
	config.LoadFromEnv(cfg)
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	cfg.Resolve()
	return cfg
}

func openCatalog(cfg *config.Config) *catalog.SQLiteCatalog {
	cat, err := catalog.NewCatalog(cfg.CatalogPath(), cfg.Catalog.ReadPoolSize)
	if err != nil {
		errExit("failed to open catalog %s: %v", cfg.CatalogPath(), err)
	}
	return cat
}

func openStorage(ctx context.Context, cfg *config.Config) storage.ObjectStorage {
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		errExit("failed to initialize storage: %v", err)
	}
	return store
}

func openArchiver(ctx context.Context, cfg *config.Config) *snapshot.Archiver {
	codec, err := snapshot.CodecByName(cfg.Archive.Compression)
	if err != nil {
		errExit("%v", err)
	}
	return snapshot.NewArchiver(openStorage(ctx, cfg), codec, zap.NewNop(), snapshot.ArchiverConfig{
		Prefix:      cfg.Archive.Prefix,
		Concurrency: cfg.Archive.Concurrency,
	})
}

func runCreateTable(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("create-table", flag.ExitOnError)
	configFile, dataDir := commonFlags(fs)
	name := fs.String("name", "", "Table name (required)")
	column := fs.String("column", "", "Partition column name (required)")
	ordinal := fs.Int("ordinal", 0, "Zero-based position of the partition column")
	colType := fs.String("type", "int64", "Partition column type: int64, float64, text, bool, timestamp")
	method := fs.String("method", "hash", "Partition method: hash, range")
	convention := fs.String("convention", "", "Max bound convention for range tables: inclusive, exclusive")
	nullPolicy := fs.String("null-policy", "", "Null placement: catch_all, none, unknown")
	shardCount := fs.Int("shards", 0, "Hash shard count to lay out immediately (hash tables only)")
	startShardID := fs.Int64("start-shard-id", 0, "First shard id (defaults to table_id*100000+1)")
	fs.Parse(args)

	if *name == "" || *column == "" {
		fs.Usage()
		errExit("missing required flags: -name and -column")
	}

	spec := catalog.TableSpec{
		Name:          *name,
		ColumnName:    *column,
		ColumnOrdinal: *ordinal,
	}

	var err error
	if spec.ColumnType, err = types.ParseValueTypeID(*colType); err != nil {
		errExit("%v", err)
	}
	if spec.Method, err = types.ParsePartitionMethod(*method); err != nil {
		errExit("%v", err)
	}
	if *convention != "" {
		if spec.Convention, err = types.ParseBoundConvention(*convention); err != nil {
			errExit("%v", err)
		}
	}
	if *nullPolicy != "" {
		if spec.NullPolicy, err = types.ParseNullPolicy(*nullPolicy); err != nil {
			errExit("%v", err)
		}
	}

	cfg := resolveConfig(*configFile, *dataDir)
	cat := openCatalog(cfg)
	defer cat.Close()

	rec, err := cat.CreateDistributedTable(ctx, spec)
	if err != nil {
		errExit("failed to create table: %v", err)
	}
	fmt.Printf("created table %s (id %d), %s on %s %s\n",
		rec.Name, rec.TableID, rec.Method, rec.Column.Name, rec.Column.TypeID)

	if *shardCount > 0 {
		startID := *startShardID
		if startID == 0 {
			startID = rec.TableID*100000 + 1
		}
		ids, err := cat.CreateHashShards(ctx, rec.TableID, *shardCount, startID)
		if err != nil {
			errExit("failed to create hash shards: %v", err)
		}
		fmt.Printf("created %d hash shards: %d..%d\n", len(ids), ids[0], ids[len(ids)-1])
	}
}

func runCreateShards(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("create-shards", flag.ExitOnError)
	configFile, dataDir := commonFlags(fs)
	table := fs.String("table", "", "Table name (required)")
	count := fs.Int("count", 0, "Hash shard count (hash tables)")
	startShardID := fs.Int64("start-shard-id", 0, "First shard id (defaults to table_id*100000+1)")
	shardID := fs.Int64("shard-id", 0, "Shard id to register (range tables)")
	minBound := fs.String("min", "", "Range lower bound; empty leaves it open")
	maxBound := fs.String("max", "", "Range upper bound; empty leaves it open (both empty = catch-all)")
	fs.Parse(args)

	if *table == "" {
		fs.Usage()
		errExit("missing required flag: -table")
	}

	cfg := resolveConfig(*configFile, *dataDir)
	cat := openCatalog(cfg)
	defer cat.Close()

	rec, err := cat.GetTableByName(ctx, *table)
	if err != nil {
		errExit("unknown table %q: %v", *table, err)
	}

	switch rec.Method {
	case types.MethodHash:
		if *count < 1 {
			errExit("hash table %q requires -count", *table)
		}
		startID := *startShardID
		if startID == 0 {
			startID = rec.TableID*100000 + 1
		}
		ids, err := cat.CreateHashShards(ctx, rec.TableID, *count, startID)
		if err != nil {
			errExit("failed to create hash shards: %v", err)
		}
		fmt.Printf("created %d hash shards for %s: %d..%d\n", len(ids), rec.Name, ids[0], ids[len(ids)-1])
	case types.MethodRange:
		if *shardID == 0 {
			errExit("range table %q requires -shard-id", *table)
		}
		var minPtr, maxPtr *string
		if *minBound != "" {
			minPtr = minBound
		}
		if *maxBound != "" {
			maxPtr = maxBound
		}
		if err := cat.CreateRangeShard(ctx, rec.TableID, *shardID, minPtr, maxPtr); err != nil {
			errExit("failed to create range shard: %v", err)
		}
		fmt.Printf("created range shard %d for %s\n", *shardID, rec.Name)
	default:
		errExit("table %q has unknown partition method %q", *table, rec.Method)
	}
}

func runList(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configFile, dataDir := commonFlags(fs)
	fs.Parse(args)

	cfg := resolveConfig(*configFile, *dataDir)
	cat := openCatalog(cfg)
	defer cat.Close()

	records, err := cat.ListTables(ctx)
	if err != nil {
		errExit("failed to list tables: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCOLUMN\tTYPE\tMETHOD\tNULLS\tSHARDS")
	for _, rec := range records {
		snap, err := cat.LoadShardCatalog(ctx, rec.TableID)
		if err != nil {
			errExit("failed to load shards for %s: %v", rec.Name, err)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%d\n",
			rec.TableID, rec.Name, rec.Column.Name, rec.Column.TypeID,
			rec.Method, rec.NullPolicy, snap.NumShards())
	}
	w.Flush()
}

func runDescribe(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("describe", flag.ExitOnError)
	configFile, dataDir := commonFlags(fs)
	table := fs.String("table", "", "Table name (required)")
	fs.Parse(args)

	if *table == "" {
		fs.Usage()
		errExit("missing required flag: -table")
	}

	cfg := resolveConfig(*configFile, *dataDir)
	cat := openCatalog(cfg)
	defer cat.Close()

	snap, err := cat.SnapshotByName(ctx, *table)
	if err != nil {
		errExit("failed to load %q: %v", *table, err)
	}
	printSnapshot(snap)
}

func runArchive(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("archive", flag.ExitOnError)
	configFile, dataDir := commonFlags(fs)
	table := fs.String("table", "", "Table name (required)")
	fs.Parse(args)

	if *table == "" {
		fs.Usage()
		errExit("missing required flag: -table")
	}

	cfg := resolveConfig(*configFile, *dataDir)
	cat := openCatalog(cfg)
	defer cat.Close()

	snap, err := cat.SnapshotByName(ctx, *table)
	if err != nil {
		errExit("failed to load %q: %v", *table, err)
	}

	key, err := openArchiver(ctx, cfg).Archive(ctx, snap)
	if err != nil {
		errExit("failed to archive %q: %v", *table, err)
	}
	fmt.Printf("archived %s to %s\n", *table, key)
}

func runArchiveAll(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("archive-all", flag.ExitOnError)
	configFile, dataDir := commonFlags(fs)
	fs.Parse(args)

	cfg := resolveConfig(*configFile, *dataDir)
	cat := openCatalog(cfg)
	defer cat.Close()

	uploaded, err := openArchiver(ctx, cfg).ArchiveAll(ctx, cat)
	if err != nil {
		errExit("archive sweep failed: %v", err)
	}

	tableIDs := make([]int64, 0, len(uploaded))
	for id := range uploaded {
		tableIDs = append(tableIDs, id)
	}
	sort.Slice(tableIDs, func(i, j int) bool { return tableIDs[i] < tableIDs[j] })
	for _, id := range tableIDs {
		fmt.Printf("table %d -> %s\n", id, uploaded[id])
	}
	fmt.Printf("archived %d tables\n", len(uploaded))
}

func runRestore(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	configFile, dataDir := commonFlags(fs)
	table := fs.String("table", "", "Table name; restores the latest archive")
	key := fs.String("key", "", "Exact archive object key (overrides -table)")
	fs.Parse(args)

	if *table == "" && *key == "" {
		fs.Usage()
		errExit("missing required flag: -table or -key")
	}

	cfg := resolveConfig(*configFile, *dataDir)
	ar := openArchiver(ctx, cfg)

	var snap *shard.Snapshot
	var err error
	if *key != "" {
		snap, err = ar.Restore(ctx, *key)
	} else {
		cat := openCatalog(cfg)
		defer cat.Close()
		rec, lookupErr := cat.GetTableByName(ctx, *table)
		if lookupErr != nil {
			errExit("unknown table %q: %v", *table, lookupErr)
		}
		snap, err = ar.RestoreLatest(ctx, rec.TableID)
	}
	if err != nil {
		errExit("restore failed: %v", err)
	}
	printSnapshot(snap)
}

func runPull(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("pull", flag.ExitOnError)
	configFile, dataDir := commonFlags(fs)
	dest := fs.String("dest", "", "Local directory to mirror into (defaults to the archive work dir)")
	concurrency := fs.Int("concurrency", 0, "Parallel downloads (defaults to archive.concurrency)")
	fs.Parse(args)

	cfg := resolveConfig(*configFile, *dataDir)
	store := openStorage(ctx, cfg)

	keys, err := store.ListObjects(ctx, cfg.Archive.Prefix)
	if err != nil {
		errExit("failed to list archive objects: %v", err)
	}
	if len(keys) == 0 {
		fmt.Printf("no archive objects under %s\n", cfg.Archive.Prefix)
		return
	}

	target := *dest
	if target == "" {
		target = cfg.Archive.WorkDir
	}
	workers := *concurrency
	if workers == 0 {
		workers = cfg.Archive.Concurrency
	}

	result, err := storage.NewBatchDownloader(store, workers, target).Download(ctx, keys)
	if err != nil {
		errExit("pull failed: %v", err)
	}

	fmt.Printf("pulled %d objects to %s (%d downloaded, %d cached)\n",
		len(result.LocalPaths), target, result.Downloads, result.CacheHits)
	if len(result.Errors) > 0 {
		for key, err := range result.Errors {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", key, err)
		}
		errExit("%d objects failed", len(result.Errors))
	}
}

func printSnapshot(snap *shard.Snapshot) {
	meta := snap.Meta()
	fmt.Printf("table %s (id %d): %s on %s %s, %d shards\n",
		meta.TableName, meta.TableID, meta.Method, meta.Column.Name,
		meta.Column.TypeID, snap.NumShards())

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SHARD\tMIN\tMAX")
	for _, iv := range snap.Intervals() {
		minText, maxText := iv.EncodeBounds()
		fmt.Fprintf(w, "%d\t%s\t%s\n", iv.ShardID, orOpen(minText), orOpen(maxText))
	}
	if catchAllID, ok := snap.CatchAll(); ok {
		fmt.Fprintf(w, "%d\t*\t*\n", catchAllID)
	}
	w.Flush()
}

func orOpen(bound *string) string {
	if bound == nil {
		return "-"
	}
	return *bound
}

func errExit(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
