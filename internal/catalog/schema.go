// Package catalog provides the SQLite-backed shard catalog: the source
// of truth for distributed tables and their shard intervals.
package catalog

// Schema contains the SQL schema definitions for the shard catalog
// (catalog.db). Interval bounds are stored as TEXT in the canonical
// encoding of the table's bound type. TEXT ordering is not value
// ordering, so readers must never rely on SQL sort order for bounds.

// SchemaVersion is the catalog schema version this build reads and writes.
const SchemaVersion = 1

// CreateDistributedTablesSQL creates the distributed tables registry.
// One row per distributed table, carrying the partition column and the
// table-level pruning properties (method, bound convention, null policy).
const CreateDistributedTablesSQL = `
CREATE TABLE IF NOT EXISTS distributed_tables (
    table_id INTEGER PRIMARY KEY AUTOINCREMENT,
    table_name TEXT NOT NULL UNIQUE,
    column_name TEXT NOT NULL,
    column_ordinal INTEGER NOT NULL DEFAULT 0,
    column_type TEXT NOT NULL,
    partition_method TEXT NOT NULL,
    bound_convention TEXT NOT NULL,
    null_policy TEXT NOT NULL,
    created_at INTEGER NOT NULL
)`

// CreateShardIntervalsSQL creates the shard intervals table. A NULL bound
// leaves that side of the interval open; a row with both bounds NULL is
// the table's catch-all shard. Hash tables store int32 tokens as decimal
// text.
const CreateShardIntervalsSQL = `
CREATE TABLE IF NOT EXISTS shard_intervals (
    shard_id INTEGER PRIMARY KEY,
    table_id INTEGER NOT NULL,
    min_value TEXT,
    max_value TEXT,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (table_id) REFERENCES distributed_tables(table_id)
)`

// CreateShardIntervalsIndexSQL creates the per-table interval lookup index.
const CreateShardIntervalsIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_shard_intervals_table ON shard_intervals(table_id, min_value)`

// CreateSchemaVersionsTableSQL creates the schema versions table, used to
// refuse catalogs written by an incompatible release.
const CreateSchemaVersionsTableSQL = `
CREATE TABLE IF NOT EXISTS schema_versions (
    version INTEGER PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`

// AllSchemaSQL returns all SQL statements needed to initialize the shard
// catalog.
func AllSchemaSQL() []string {
	return []string{
		CreateDistributedTablesSQL,
		CreateShardIntervalsSQL,
		CreateShardIntervalsIndexSQL,
		CreateSchemaVersionsTableSQL,
	}
}
