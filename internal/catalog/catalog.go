package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	terrors "github.com/tesseradb/tessera/internal/errors"
	"github.com/tesseradb/tessera/internal/shard"
	"github.com/tesseradb/tessera/pkg/types"
)

// Catalog manages distributed table and shard interval metadata in
// catalog.db.
type Catalog interface {
	// CreateDistributedTable registers a new distributed table.
	CreateDistributedTable(ctx context.Context, spec TableSpec) (*TableRecord, error)

	// CreateHashShards lays out shardCount hash shards covering the signed
	// 32-bit token space. The table must be hash distributed and have no
	// shards yet; duplicate layout creation is an error, not a no-op.
	CreateHashShards(ctx context.Context, tableID int64, shardCount int, startShardID int64) ([]int64, error)

	// CreateRangeShard registers one range shard. A nil bound leaves that
	// side open; both nil registers the table's catch-all shard.
	CreateRangeShard(ctx context.Context, tableID, shardID int64, minValue, maxValue *string) error

	// LoadShardCatalog reads the table's shard intervals and constructs
	// the validated snapshot the pruning engine consumes.
	LoadShardCatalog(ctx context.Context, tableID int64) (*shard.Snapshot, error)

	// SnapshotByName is LoadShardCatalog keyed by table name.
	SnapshotByName(ctx context.Context, table string) (*shard.Snapshot, error)

	// ResolvePartitionColumn returns the table's partition column.
	ResolvePartitionColumn(ctx context.Context, tableID int64) (types.PartitionColumn, error)

	// GetTable retrieves a table record by id.
	GetTable(ctx context.Context, tableID int64) (*TableRecord, error)

	// GetTableByName retrieves a table record by name.
	GetTableByName(ctx context.Context, name string) (*TableRecord, error)

	// ListTables returns all distributed tables ordered by id.
	ListTables(ctx context.Context) ([]*TableRecord, error)

	// DropDistributedTable removes a table and its shard intervals.
	DropDistributedTable(ctx context.Context, tableID int64) error

	// Close closes the catalog database connections.
	Close() error
}

// TableSpec declares a distributed table to be created.
type TableSpec struct {
	Name          string
	ColumnName    string
	ColumnOrdinal int
	ColumnType    types.ValueTypeID
	Method        types.PartitionMethod
	Convention    types.BoundConvention
	NullPolicy    types.NullPolicy
}

// normalize applies defaults and validates the combination. Hash tables
// always use inclusive max bounds and cannot route nulls to a catch-all
// shard; an unset null policy defaults to unknown, which makes null tests
// fall back to the full shard set.
func (s *TableSpec) normalize() error {
	if s.Name == "" {
		return terrors.New(terrors.ErrCategoryCatalog, terrors.CodeInvalidArgument,
			"table name is required")
	}
	if s.ColumnName == "" {
		return terrors.New(terrors.ErrCategoryCatalog, terrors.CodeInvalidArgument,
			fmt.Sprintf("table %q has no partition column name", s.Name))
	}
	if s.ColumnType == types.TypeInvalid {
		return terrors.New(terrors.ErrCategoryCatalog, terrors.CodeInvalidArgument,
			fmt.Sprintf("partition column %q of table %q has no type", s.ColumnName, s.Name))
	}

	switch s.Method {
	case types.MethodHash:
		if s.Convention == "" {
			s.Convention = types.MaxInclusive
		}
		if s.Convention != types.MaxInclusive {
			return terrors.New(terrors.ErrCategoryCatalog, terrors.CodeInvalidArgument,
				fmt.Sprintf("hash table %q requires inclusive max bounds, got %q", s.Name, s.Convention))
		}
		if s.NullPolicy == types.NullsInCatchAll {
			return terrors.New(terrors.ErrCategoryCatalog, terrors.CodeInvalidArgument,
				fmt.Sprintf("hash table %q cannot route nulls to a catch-all shard", s.Name))
		}
	case types.MethodRange:
		if s.Convention == "" {
			s.Convention = types.MaxInclusive
		}
		if s.Convention != types.MaxInclusive && s.Convention != types.MaxExclusive {
			return terrors.New(terrors.ErrCategoryCatalog, terrors.CodeInvalidArgument,
				fmt.Sprintf("table %q has unknown bound convention %q", s.Name, s.Convention))
		}
	default:
		return terrors.New(terrors.ErrCategoryCatalog, terrors.CodeInvalidArgument,
			fmt.Sprintf("table %q has unknown partition method %q", s.Name, s.Method))
	}

	switch s.NullPolicy {
	case "":
		s.NullPolicy = types.NullsUnknown
	case types.NullsInCatchAll, types.NoNulls, types.NullsUnknown:
	default:
		return terrors.New(terrors.ErrCategoryCatalog, terrors.CodeInvalidArgument,
			fmt.Sprintf("table %q has unknown null policy %q", s.Name, s.NullPolicy))
	}

	return nil
}

// TableRecord is a distributed table as stored in the catalog.
type TableRecord struct {
	TableID    int64
	Name       string
	Column     types.PartitionColumn
	Method     types.PartitionMethod
	Convention types.BoundConvention
	NullPolicy types.NullPolicy
	CreatedAt  time.Time
}

// Read-path queries, prepared once on the read pool and cached.
const (
	selectTableByIDSQL = `
		SELECT table_id, table_name, column_name, column_ordinal, column_type,
			partition_method, bound_convention, null_policy, created_at
		FROM distributed_tables
		WHERE table_id = ?`

	selectTableByNameSQL = `
		SELECT table_id, table_name, column_name, column_ordinal, column_type,
			partition_method, bound_convention, null_policy, created_at
		FROM distributed_tables
		WHERE table_name = ?`

	selectAllTablesSQL = `
		SELECT table_id, table_name, column_name, column_ordinal, column_type,
			partition_method, bound_convention, null_policy, created_at
		FROM distributed_tables
		ORDER BY table_id`

	selectIntervalsSQL = `
		SELECT shard_id, min_value, max_value
		FROM shard_intervals
		WHERE table_id = ?
		ORDER BY min_value`
)

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool (concurrent readers)
	dbPath string
	mu     sync.Mutex // Write-only lock (reads don't need this)

	// Prepared statement cache (for read connection)
	stmtCache map[string]*sql.Stmt
	stmtMu    sync.RWMutex
}

// NewCatalog opens the shard catalog at dbPath, creating the file and
// schema on first use. readPoolSize bounds the read-only connection pool;
// values below one fall back to four readers.
func NewCatalog(dbPath string, readPoolSize int) (*SQLiteCatalog, error) {
	if readPoolSize < 1 {
		readPoolSize = 4
	}

	// Write connection: single writer with WAL mode
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // Single writer
	db.SetMaxIdleConns(1)

	c := &SQLiteCatalog{
		db:        db,
		dbPath:    dbPath,
		stmtCache: make(map[string]*sql.Stmt),
	}

	// Initialize the schema before the read pool connects: a read-only
	// handle cannot create the database file on first boot.
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: failed to initialize schema: %w", err)
	}
	if err := c.ensureSchemaVersion(); err != nil {
		db.Close()
		return nil, err
	}

	// Read connection pool: concurrent readers via read-only mode
	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(readPoolSize)
	readDB.SetMaxIdleConns(readPoolSize)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	// Enable read_uncommitted on read connections so snapshot loads never
	// block behind the writer
	if _, err := readDB.Exec("PRAGMA read_uncommitted = true"); err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("catalog: failed to set read_uncommitted pragma: %w", err)
	}
	c.readDB = readDB

	return c, nil
}

// NewCatalogWithDB wraps an existing database handle, using it for both
// reads and writes. Schema initialization is skipped. Intended for tests
// that mock the database layer.
func NewCatalogWithDB(db *sql.DB) *SQLiteCatalog {
	return &SQLiteCatalog{
		db:        db,
		readDB:    db,
		stmtCache: make(map[string]*sql.Stmt),
	}
}

// initSchema creates all required tables and indexes.
func (c *SQLiteCatalog) initSchema() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// ensureSchemaVersion records the schema version on first boot and
// refuses catalogs written by a newer release.
func (c *SQLiteCatalog) ensureSchemaVersion() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var current sql.NullInt64
	if err := c.db.QueryRow("SELECT MAX(version) FROM schema_versions").Scan(&current); err != nil {
		return fmt.Errorf("catalog: failed to read schema version: %w", err)
	}

	switch {
	case !current.Valid:
		if _, err := c.db.Exec(
			"INSERT INTO schema_versions (version, applied_at) VALUES (?, ?)",
			SchemaVersion, time.Now().Unix(),
		); err != nil {
			return fmt.Errorf("catalog: failed to record schema version: %w", err)
		}
	case current.Int64 > SchemaVersion:
		return terrors.NewCatalogError(terrors.CodeMalformedCatalog,
			fmt.Sprintf("catalog schema version %d is newer than supported version %d",
				current.Int64, SchemaVersion), nil)
	}
	return nil
}

// CreateDistributedTable registers a new distributed table.
func (c *SQLiteCatalog) CreateDistributedTable(ctx context.Context, spec TableSpec) (*TableRecord, error) {
	if err := spec.normalize(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, terrors.NewCatalogError(terrors.CodeCatalogIO, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRowContext(ctx,
		"SELECT table_id FROM distributed_tables WHERE table_name = ?", spec.Name,
	).Scan(&existing)
	if err == nil {
		return nil, terrors.NewCatalogError(terrors.CodeTableExists,
			fmt.Sprintf("table %q already exists with id %d", spec.Name, existing), nil)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, terrors.NewCatalogError(terrors.CodeCatalogIO, "failed to check table name", err)
	}

	now := time.Now().Unix()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO distributed_tables (
			table_name, column_name, column_ordinal, column_type,
			partition_method, bound_convention, null_policy, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		spec.Name, spec.ColumnName, spec.ColumnOrdinal, spec.ColumnType.String(),
		string(spec.Method), string(spec.Convention), string(spec.NullPolicy), now,
	)
	if err != nil {
		return nil, terrors.NewCatalogError(terrors.CodeCatalogIO,
			fmt.Sprintf("failed to insert table %q", spec.Name), err)
	}
	tableID, err := res.LastInsertId()
	if err != nil {
		return nil, terrors.NewCatalogError(terrors.CodeCatalogIO, "failed to read new table id", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, terrors.NewCatalogError(terrors.CodeCatalogIO,
			fmt.Sprintf("failed to commit table %q", spec.Name), err)
	}

	return &TableRecord{
		TableID: tableID,
		Name:    spec.Name,
		Column: types.PartitionColumn{
			TableID: tableID,
			Ordinal: spec.ColumnOrdinal,
			Name:    spec.ColumnName,
			TypeID:  spec.ColumnType,
		},
		Method:     spec.Method,
		Convention: spec.Convention,
		NullPolicy: spec.NullPolicy,
		CreatedAt:  time.Unix(now, 0),
	}, nil
}

// CreateHashShards lays out shardCount hash shards covering the signed
// 32-bit token space.
func (c *SQLiteCatalog) CreateHashShards(ctx context.Context, tableID int64, shardCount int, startShardID int64) ([]int64, error) {
	if shardCount < 1 {
		return nil, terrors.New(terrors.ErrCategoryCatalog, terrors.CodeInvalidArgument,
			fmt.Sprintf("shard count %d must be positive", shardCount))
	}
	if shardCount > math.MaxInt32 {
		return nil, terrors.New(terrors.ErrCategoryCatalog, terrors.CodeInvalidArgument,
			fmt.Sprintf("shard count %d exceeds the token space", shardCount))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, terrors.NewCatalogError(terrors.CodeCatalogIO, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	rec, err := c.getTableTx(ctx, tx, tableID)
	if err != nil {
		return nil, err
	}
	if rec.Method != types.MethodHash {
		return nil, terrors.New(terrors.ErrCategoryCatalog, terrors.CodeInvalidArgument,
			fmt.Sprintf("table %q is %s distributed, not hash", rec.Name, rec.Method))
	}

	var existing int64
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM shard_intervals WHERE table_id = ?", tableID,
	).Scan(&existing); err != nil {
		return nil, terrors.NewCatalogError(terrors.CodeCatalogIO, "failed to count existing shards", err)
	}
	if existing > 0 {
		return nil, terrors.NewCatalogError(terrors.CodeShardExists,
			fmt.Sprintf("table %q already has %d shards", rec.Name, existing), nil)
	}

	// Split the token space evenly. The last shard absorbs the rounding
	// remainder so the layout always ends at MaxInt32.
	increment := (int64(1) << 32) / int64(shardCount)
	now := time.Now().Unix()
	ids := make([]int64, 0, shardCount)
	for i := 0; i < shardCount; i++ {
		shardID := startShardID + int64(i)
		minToken := math.MinInt32 + int64(i)*increment
		maxToken := minToken + increment - 1
		if i == shardCount-1 {
			maxToken = math.MaxInt32
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO shard_intervals (shard_id, table_id, min_value, max_value, created_at) VALUES (?, ?, ?, ?, ?)",
			shardID, tableID, strconv.FormatInt(minToken, 10), strconv.FormatInt(maxToken, 10), now,
		); err != nil {
			return nil, terrors.NewCatalogError(terrors.CodeCatalogIO,
				fmt.Sprintf("failed to insert hash shard %d", shardID), err)
		}
		ids = append(ids, shardID)
	}

	if err := tx.Commit(); err != nil {
		return nil, terrors.NewCatalogError(terrors.CodeCatalogIO, "failed to commit hash shard layout", err)
	}
	return ids, nil
}

// CreateRangeShard registers one range shard. Bounds are validated for
// decodability and ordering only; layout-level invariants (overlap, open
// sides, catch-all uniqueness) are enforced by the snapshot constructor
// at load time.
func (c *SQLiteCatalog) CreateRangeShard(ctx context.Context, tableID, shardID int64, minValue, maxValue *string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return terrors.NewCatalogError(terrors.CodeCatalogIO, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	rec, err := c.getTableTx(ctx, tx, tableID)
	if err != nil {
		return err
	}
	if rec.Method != types.MethodRange {
		return terrors.New(terrors.ErrCategoryCatalog, terrors.CodeInvalidArgument,
			fmt.Sprintf("table %q is %s distributed; hash layouts are created as a whole", rec.Name, rec.Method))
	}

	iv, err := shard.ParseInterval(shardID, minValue, maxValue, rec.Column.TypeID)
	if err != nil {
		return terrors.Wrap(terrors.ErrCategoryCatalog, terrors.CodeInvalidArgument,
			fmt.Sprintf("shard %d bounds do not decode as %s", shardID, rec.Column.TypeID), err)
	}
	if iv.Min != nil && iv.Max != nil {
		if cmp, err := iv.Min.Compare(*iv.Max); err == nil && cmp > 0 {
			return terrors.New(terrors.ErrCategoryCatalog, terrors.CodeInvalidArgument,
				fmt.Sprintf("shard %d has min above max", shardID))
		}
	}

	var owner int64
	err = tx.QueryRowContext(ctx,
		"SELECT table_id FROM shard_intervals WHERE shard_id = ?", shardID,
	).Scan(&owner)
	if err == nil {
		return terrors.NewCatalogError(terrors.CodeShardExists,
			fmt.Sprintf("shard id %d is already assigned to table %d", shardID, owner), nil)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return terrors.NewCatalogError(terrors.CodeCatalogIO, "failed to check shard id", err)
	}

	// Store the re-encoded canonical text so a load round-trips exactly.
	minText, maxText := iv.EncodeBounds()
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO shard_intervals (shard_id, table_id, min_value, max_value, created_at) VALUES (?, ?, ?, ?, ?)",
		shardID, tableID, minText, maxText, time.Now().Unix(),
	); err != nil {
		return terrors.NewCatalogError(terrors.CodeCatalogIO,
			fmt.Sprintf("failed to insert range shard %d", shardID), err)
	}

	if err := tx.Commit(); err != nil {
		return terrors.NewCatalogError(terrors.CodeCatalogIO, "failed to commit range shard", err)
	}
	return nil
}

// LoadShardCatalog reads the table's shard intervals and constructs the
// validated snapshot.
func (c *SQLiteCatalog) LoadShardCatalog(ctx context.Context, tableID int64) (*shard.Snapshot, error) {
	rec, err := c.GetTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	return c.loadSnapshot(ctx, rec)
}

// SnapshotByName is LoadShardCatalog keyed by table name.
func (c *SQLiteCatalog) SnapshotByName(ctx context.Context, table string) (*shard.Snapshot, error) {
	rec, err := c.GetTableByName(ctx, table)
	if err != nil {
		return nil, err
	}
	return c.loadSnapshot(ctx, rec)
}

// loadSnapshot reads the table's intervals and builds the snapshot. The
// SQL ORDER BY is advisory only: bounds are TEXT and text order is not
// value order, so the snapshot constructor re-sorts by decoded value.
func (c *SQLiteCatalog) loadSnapshot(ctx context.Context, rec *TableRecord) (*shard.Snapshot, error) {
	stmt, err := c.getOrPrepareStmt(selectIntervalsSQL)
	if err != nil {
		return nil, terrors.NewCatalogError(terrors.CodeCatalogIO, "failed to prepare interval query", err)
	}

	rows, err := stmt.QueryContext(ctx, rec.TableID)
	if err != nil {
		return nil, terrors.NewCatalogError(terrors.CodeCatalogIO,
			fmt.Sprintf("failed to query shard intervals of table %d", rec.TableID), err)
	}
	defer rows.Close()

	// Hash tables store int32 tokens; range tables store column values.
	boundType := rec.Column.TypeID
	if rec.Method == types.MethodHash {
		boundType = types.TypeInt64
	}

	var intervals []shard.Interval
	for rows.Next() {
		var (
			shardID          int64
			minText, maxText *string
		)
		if err := rows.Scan(&shardID, &minText, &maxText); err != nil {
			return nil, terrors.NewCatalogError(terrors.CodeCatalogIO, "failed to scan shard interval", err)
		}
		iv, err := shard.ParseInterval(shardID, minText, maxText, boundType)
		if err != nil {
			return nil, terrors.NewMalformedCatalog(
				fmt.Sprintf("table %d stores an undecodable bound on shard %d", rec.TableID, shardID), err)
		}
		intervals = append(intervals, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, terrors.NewCatalogError(terrors.CodeCatalogIO,
			fmt.Sprintf("error iterating shard intervals of table %d", rec.TableID), err)
	}

	return shard.NewSnapshot(shard.Meta{
		TableID:    rec.TableID,
		TableName:  rec.Name,
		Column:     rec.Column,
		Method:     rec.Method,
		Convention: rec.Convention,
		NullPolicy: rec.NullPolicy,
	}, intervals)
}

// ResolvePartitionColumn returns the table's partition column.
func (c *SQLiteCatalog) ResolvePartitionColumn(ctx context.Context, tableID int64) (types.PartitionColumn, error) {
	rec, err := c.GetTable(ctx, tableID)
	if err != nil {
		return types.PartitionColumn{}, err
	}
	return rec.Column, nil
}

// GetTable retrieves a table record by id.
func (c *SQLiteCatalog) GetTable(ctx context.Context, tableID int64) (*TableRecord, error) {
	stmt, err := c.getOrPrepareStmt(selectTableByIDSQL)
	if err != nil {
		return nil, terrors.NewCatalogError(terrors.CodeCatalogIO, "failed to prepare table lookup", err)
	}

	rec, err := scanTableRecord(stmt.QueryRowContext(ctx, tableID))
	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, sql.ErrNoRows):
		return nil, terrors.NewNotFound(fmt.Sprintf("table %d is not a distributed table", tableID))
	case terrors.GetCode(err) == terrors.CodeMalformedCatalog:
		return nil, err
	default:
		return nil, terrors.NewCatalogError(terrors.CodeCatalogIO, "failed to read table record", err)
	}
}

// GetTableByName retrieves a table record by name.
func (c *SQLiteCatalog) GetTableByName(ctx context.Context, name string) (*TableRecord, error) {
	stmt, err := c.getOrPrepareStmt(selectTableByNameSQL)
	if err != nil {
		return nil, terrors.NewCatalogError(terrors.CodeCatalogIO, "failed to prepare table lookup", err)
	}

	rec, err := scanTableRecord(stmt.QueryRowContext(ctx, name))
	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, sql.ErrNoRows):
		return nil, terrors.NewNotFound(fmt.Sprintf("table %q is not a distributed table", name))
	case terrors.GetCode(err) == terrors.CodeMalformedCatalog:
		return nil, err
	default:
		return nil, terrors.NewCatalogError(terrors.CodeCatalogIO, "failed to read table record", err)
	}
}

// ListTables returns all distributed tables ordered by id.
func (c *SQLiteCatalog) ListTables(ctx context.Context) ([]*TableRecord, error) {
	stmt, err := c.getOrPrepareStmt(selectAllTablesSQL)
	if err != nil {
		return nil, terrors.NewCatalogError(terrors.CodeCatalogIO, "failed to prepare table listing", err)
	}

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, terrors.NewCatalogError(terrors.CodeCatalogIO, "failed to query tables", err)
	}
	defer rows.Close()

	var records []*TableRecord
	for rows.Next() {
		rec, err := scanTableRecord(rows)
		if err != nil {
			if terrors.GetCode(err) == terrors.CodeMalformedCatalog {
				return nil, err
			}
			return nil, terrors.NewCatalogError(terrors.CodeCatalogIO, "failed to scan table record", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, terrors.NewCatalogError(terrors.CodeCatalogIO, "error iterating tables", err)
	}
	return records, nil
}

// DropDistributedTable removes a table and its shard intervals.
func (c *SQLiteCatalog) DropDistributedTable(ctx context.Context, tableID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return terrors.NewCatalogError(terrors.CodeCatalogIO, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM shard_intervals WHERE table_id = ?", tableID,
	); err != nil {
		return terrors.NewCatalogError(terrors.CodeCatalogIO,
			fmt.Sprintf("failed to delete shard intervals of table %d", tableID), err)
	}

	res, err := tx.ExecContext(ctx,
		"DELETE FROM distributed_tables WHERE table_id = ?", tableID,
	)
	if err != nil {
		return terrors.NewCatalogError(terrors.CodeCatalogIO,
			fmt.Sprintf("failed to delete table %d", tableID), err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return terrors.NewNotFound(fmt.Sprintf("table %d is not a distributed table", tableID))
	}

	if err := tx.Commit(); err != nil {
		return terrors.NewCatalogError(terrors.CodeCatalogIO, "failed to commit drop", err)
	}
	return nil
}

// getTableTx reads a table record through the write transaction so DDL
// sequences observe their own uncommitted writes.
func (c *SQLiteCatalog) getTableTx(ctx context.Context, tx *sql.Tx, tableID int64) (*TableRecord, error) {
	rec, err := scanTableRecord(tx.QueryRowContext(ctx, selectTableByIDSQL, tableID))
	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, sql.ErrNoRows):
		return nil, terrors.NewNotFound(fmt.Sprintf("table %d is not a distributed table", tableID))
	case terrors.GetCode(err) == terrors.CodeMalformedCatalog:
		return nil, err
	default:
		return nil, terrors.NewCatalogError(terrors.CodeCatalogIO, "failed to read table record", err)
	}
}

// getOrPrepareStmt returns a cached prepared statement or creates one.
func (c *SQLiteCatalog) getOrPrepareStmt(query string) (*sql.Stmt, error) {
	c.stmtMu.RLock()
	if stmt, ok := c.stmtCache[query]; ok {
		c.stmtMu.RUnlock()
		return stmt, nil
	}
	c.stmtMu.RUnlock()

	c.stmtMu.Lock()
	defer c.stmtMu.Unlock()

	// Double-check after acquiring write lock
	if stmt, ok := c.stmtCache[query]; ok {
		return stmt, nil
	}

	stmt, err := c.readDB.Prepare(query)
	if err != nil {
		return nil, err
	}
	c.stmtCache[query] = stmt
	return stmt, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanTableRecord scans one distributed_tables row and decodes the stored
// enum names. Undecodable stored values are MALFORMED_CATALOG.
func scanTableRecord(row rowScanner) (*TableRecord, error) {
	var (
		rec           TableRecord
		columnName    string
		columnOrdinal int
		columnType    string
		method        string
		convention    string
		nullPolicy    string
		createdAtUnix int64
	)
	if err := row.Scan(&rec.TableID, &rec.Name, &columnName, &columnOrdinal, &columnType,
		&method, &convention, &nullPolicy, &createdAtUnix); err != nil {
		return nil, err
	}

	typeID, err := types.ParseValueTypeID(columnType)
	if err != nil {
		return nil, terrors.NewMalformedCatalog(
			fmt.Sprintf("table %d stores unknown column type %q", rec.TableID, columnType), err)
	}
	m, err := types.ParsePartitionMethod(method)
	if err != nil {
		return nil, terrors.NewMalformedCatalog(
			fmt.Sprintf("table %d stores unknown partition method %q", rec.TableID, method), err)
	}
	conv, err := types.ParseBoundConvention(convention)
	if err != nil {
		return nil, terrors.NewMalformedCatalog(
			fmt.Sprintf("table %d stores unknown bound convention %q", rec.TableID, convention), err)
	}
	np, err := types.ParseNullPolicy(nullPolicy)
	if err != nil {
		return nil, terrors.NewMalformedCatalog(
			fmt.Sprintf("table %d stores unknown null policy %q", rec.TableID, nullPolicy), err)
	}

	rec.Column = types.PartitionColumn{
		TableID: rec.TableID,
		Ordinal: columnOrdinal,
		Name:    columnName,
		TypeID:  typeID,
	}
	rec.Method = m
	rec.Convention = conv
	rec.NullPolicy = np
	rec.CreatedAt = time.Unix(createdAtUnix, 0)
	return &rec, nil
}

// Close closes the catalog database connections.
func (c *SQLiteCatalog) Close() error {
	// Close cached prepared statements (on read connection)
	c.stmtMu.Lock()
	for _, stmt := range c.stmtCache {
		stmt.Close()
	}
	c.stmtCache = nil
	c.stmtMu.Unlock()

	// Close read connection first, then write connection
	if c.readDB != nil && c.readDB != c.db {
		if err := c.readDB.Close(); err != nil {
			c.db.Close()
			return err
		}
	}
	return c.db.Close()
}
