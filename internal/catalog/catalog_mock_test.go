package catalog

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	terrors "github.com/tesseradb/tessera/internal/errors"
	"github.com/tesseradb/tessera/pkg/types"
)

var tableCols = []string{
	"table_id", "table_name", "column_name", "column_ordinal", "column_type",
	"partition_method", "bound_convention", "null_policy", "created_at",
}

func newMockCatalog(t *testing.T) (*SQLiteCatalog, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	return NewCatalogWithDB(db), mock
}

func TestLoadShardCatalogTableQueryError(t *testing.T) {
	c, mock := newMockCatalog(t)

	prep := mock.ExpectPrepare(selectTableByIDSQL)
	prep.ExpectQuery().WithArgs(int64(7)).WillReturnError(errors.New("disk I/O error"))

	_, err := c.LoadShardCatalog(context.Background(), 7)
	require.Error(t, err)
	require.Equal(t, terrors.CodeCatalogIO, terrors.GetCode(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadShardCatalogUnknownStoredMethod(t *testing.T) {
	c, mock := newMockCatalog(t)

	rows := sqlmock.NewRows(tableCols).
		AddRow(7, "orders", "customer_id", 0, "int64", "roundrobin", "inclusive", "none", 1700000000)
	prep := mock.ExpectPrepare(selectTableByIDSQL)
	prep.ExpectQuery().WithArgs(int64(7)).WillReturnRows(rows)

	_, err := c.LoadShardCatalog(context.Background(), 7)
	require.True(t, terrors.IsMalformedCatalog(err), "got %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadShardCatalogUndecodableBound(t *testing.T) {
	c, mock := newMockCatalog(t)

	tableRows := sqlmock.NewRows(tableCols).
		AddRow(7, "orders", "customer_id", 0, "int64", "hash", "inclusive", "none", 1700000000)
	prepTable := mock.ExpectPrepare(selectTableByIDSQL)
	prepTable.ExpectQuery().WithArgs(int64(7)).WillReturnRows(tableRows)

	intervalRows := sqlmock.NewRows([]string{"shard_id", "min_value", "max_value"}).
		AddRow(1, "abc", "10")
	prepIntervals := mock.ExpectPrepare(selectIntervalsSQL)
	prepIntervals.ExpectQuery().WithArgs(int64(7)).WillReturnRows(intervalRows)

	_, err := c.LoadShardCatalog(context.Background(), 7)
	require.True(t, terrors.IsMalformedCatalog(err), "got %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotByNameMissingTable(t *testing.T) {
	c, mock := newMockCatalog(t)

	prep := mock.ExpectPrepare(selectTableByNameSQL)
	prep.ExpectQuery().WithArgs("ghost").WillReturnRows(sqlmock.NewRows(tableCols))

	_, err := c.SnapshotByName(context.Background(), "ghost")
	require.True(t, terrors.IsNotFound(err), "got %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDistributedTableBeginError(t *testing.T) {
	c, mock := newMockCatalog(t)

	mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

	_, err := c.CreateDistributedTable(context.Background(), TableSpec{
		Name:       "events",
		ColumnName: "region_id",
		ColumnType: types.TypeInt64,
		Method:     types.MethodRange,
	})
	require.Error(t, err)
	require.Equal(t, terrors.CodeCatalogIO, terrors.GetCode(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDropDistributedTableMissing(t *testing.T) {
	c, mock := newMockCatalog(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM shard_intervals WHERE table_id = ?").
		WithArgs(int64(9)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM distributed_tables WHERE table_id = ?").
		WithArgs(int64(9)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := c.DropDistributedTable(context.Background(), 9)
	require.True(t, terrors.IsNotFound(err), "got %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListTablesIterationError(t *testing.T) {
	c, mock := newMockCatalog(t)

	rows := sqlmock.NewRows(tableCols).
		AddRow(1, "events", "region_id", 0, "int64", "range", "inclusive", "none", 1700000000).
		RowError(0, errors.New("disk I/O error"))
	prep := mock.ExpectPrepare(selectAllTablesSQL)
	prep.ExpectQuery().WillReturnRows(rows)

	_, err := c.ListTables(context.Background())
	require.Error(t, err)
	require.Equal(t, terrors.CodeCatalogIO, terrors.GetCode(err))
	require.NoError(t, mock.ExpectationsWereMet())
}
