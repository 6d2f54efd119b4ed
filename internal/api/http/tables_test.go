package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tesseradb/tessera/internal/catalog"
	terrors "github.com/tesseradb/tessera/internal/errors"
	"github.com/tesseradb/tessera/internal/shard"
	"github.com/tesseradb/tessera/pkg/types"
)

type hashLayout struct {
	tableID int64
	count   int
	startID int64
}

// fakeCatalog stubs the catalog methods the table handlers reach for.
// The embedded interface panics on anything a handler should not call.
type fakeCatalog struct {
	catalog.Catalog

	records    map[string]*catalog.TableRecord
	snaps      map[int64]*shard.Snapshot
	nextID     int64
	hashCalls  []hashLayout
	rangeCalls []int64
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		records: make(map[string]*catalog.TableRecord),
		snaps:   make(map[int64]*shard.Snapshot),
		nextID:  1,
	}
}

func (f *fakeCatalog) ListTables(ctx context.Context) ([]*catalog.TableRecord, error) {
	records := make([]*catalog.TableRecord, 0, len(f.records))
	for _, rec := range f.records {
		records = append(records, rec)
	}
	return records, nil
}

func (f *fakeCatalog) GetTableByName(ctx context.Context, name string) (*catalog.TableRecord, error) {
	rec, ok := f.records[name]
	if !ok {
		return nil, terrors.NewNotFound(fmt.Sprintf("table %q is not distributed", name))
	}
	return rec, nil
}

func (f *fakeCatalog) CreateDistributedTable(ctx context.Context, spec catalog.TableSpec) (*catalog.TableRecord, error) {
	if _, exists := f.records[spec.Name]; exists {
		return nil, terrors.NewCatalogError(terrors.CodeTableExists,
			fmt.Sprintf("table %q already exists", spec.Name), nil)
	}
	rec := &catalog.TableRecord{
		TableID: f.nextID,
		Name:    spec.Name,
		Column: types.PartitionColumn{
			TableID: f.nextID,
			Ordinal: spec.ColumnOrdinal,
			Name:    spec.ColumnName,
			TypeID:  spec.ColumnType,
		},
		Method:     spec.Method,
		Convention: spec.Convention,
		NullPolicy: spec.NullPolicy,
		CreatedAt:  time.Now(),
	}
	if rec.Convention == "" {
		rec.Convention = types.MaxInclusive
	}
	f.nextID++
	f.records[spec.Name] = rec
	f.snaps[rec.TableID] = emptySnapshot(rec)
	return rec, nil
}

func (f *fakeCatalog) CreateHashShards(ctx context.Context, tableID int64, shardCount int, startShardID int64) ([]int64, error) {
	f.hashCalls = append(f.hashCalls, hashLayout{tableID: tableID, count: shardCount, startID: startShardID})
	ids := make([]int64, shardCount)
	for i := range ids {
		ids[i] = startShardID + int64(i)
	}
	return ids, nil
}

func (f *fakeCatalog) CreateRangeShard(ctx context.Context, tableID, shardID int64, minValue, maxValue *string) error {
	f.rangeCalls = append(f.rangeCalls, shardID)
	return nil
}

func (f *fakeCatalog) LoadShardCatalog(ctx context.Context, tableID int64) (*shard.Snapshot, error) {
	snap, ok := f.snaps[tableID]
	if !ok {
		return nil, terrors.NewNotFound(fmt.Sprintf("table %d is not distributed", tableID))
	}
	return snap, nil
}

func emptySnapshot(rec *catalog.TableRecord) *shard.Snapshot {
	snap, err := shard.NewSnapshot(shard.Meta{
		TableID:    rec.TableID,
		TableName:  rec.Name,
		Column:     rec.Column,
		Method:     rec.Method,
		Convention: rec.Convention,
		NullPolicy: rec.NullPolicy,
	}, nil)
	if err != nil {
		panic(err)
	}
	return snap
}

func eventsRecord() *catalog.TableRecord {
	return &catalog.TableRecord{
		TableID: 12,
		Name:    "events",
		Column: types.PartitionColumn{
			TableID: 12,
			Ordinal: 0,
			Name:    "tenant_id",
			TypeID:  types.TypeInt64,
		},
		Method:     types.MethodRange,
		Convention: types.MaxInclusive,
		NullPolicy: types.NoNulls,
		CreatedAt:  time.Now(),
	}
}

func TestTablesHandlerList(t *testing.T) {
	cat := newFakeCatalog()
	cat.records["events"] = eventsRecord()
	handler := NewTablesHandler(cat, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/tables", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp ListTablesResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Tables) != 1 {
		t.Fatalf("tables = %d, want 1", len(resp.Tables))
	}
	got := resp.Tables[0]
	if got.Name != "events" || got.Column.Name != "tenant_id" || got.Column.Type != "int64" {
		t.Fatalf("unexpected table info: %+v", got)
	}
}

func TestTablesHandlerCreateHashTable(t *testing.T) {
	cat := newFakeCatalog()
	handler := NewTablesHandler(cat, zap.NewNop())

	body := `{"name":"orders","column_name":"customer_id","column_type":"int64","method":"hash","shard_count":4}`
	req := httptest.NewRequest(http.MethodPost, "/v1/tables", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(cat.hashCalls) != 1 {
		t.Fatalf("hash layouts created = %d, want 1", len(cat.hashCalls))
	}
	layout := cat.hashCalls[0]
	if layout.count != 4 {
		t.Errorf("shard count = %d, want 4", layout.count)
	}
	if layout.startID != layout.tableID*100000+1 {
		t.Errorf("start shard id = %d, want %d", layout.startID, layout.tableID*100000+1)
	}
}

func TestTablesHandlerCreateRejectsBadEnum(t *testing.T) {
	handler := NewTablesHandler(newFakeCatalog(), zap.NewNop())

	body := `{"name":"orders","column_name":"customer_id","column_type":"uuid","method":"hash"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/tables", strings.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if resp.Code != terrors.CodeInvalidArgument {
		t.Fatalf("error code = %q, want %q", resp.Code, terrors.CodeInvalidArgument)
	}
}

func TestTablesHandlerCreateDuplicate(t *testing.T) {
	cat := newFakeCatalog()
	handler := NewTablesHandler(cat, zap.NewNop())

	body := `{"name":"orders","column_name":"customer_id","column_type":"int64","method":"hash"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/tables", strings.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("first create: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/tables", strings.NewReader(body)))
	if rec.Code != http.StatusConflict {
		t.Fatalf("second create: status = %d, want 409", rec.Code)
	}
}

func TestTableDetailHandler(t *testing.T) {
	cat := newFakeCatalog()
	cat.records["events"] = eventsRecord()
	cat.snaps[12] = eventsSnapshot(t)

	mux := http.NewServeMux()
	mux.Handle("/v1/tables/{name}", NewTableDetailHandler(cat))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/tables/events", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var detail TableDetail
	if err := json.NewDecoder(rec.Body).Decode(&detail); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if detail.Equality != "(tenant_id = $1::int64)" {
		t.Errorf("equality = %q", detail.Equality)
	}
	if detail.TotalShards != 3 || len(detail.Shards) != 3 {
		t.Fatalf("shards = %d/%d, want 3/3", detail.TotalShards, len(detail.Shards))
	}
	first := detail.Shards[0]
	if first.ShardID != 101 || first.Min == nil || *first.Min != "0" || first.Max == nil || *first.Max != "9" {
		t.Errorf("unexpected first shard: %+v", first)
	}
	if detail.CatchAllShard != nil {
		t.Errorf("catch_all_shard = %v, want absent", *detail.CatchAllShard)
	}
}

func TestTableDetailHandlerNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/v1/tables/{name}", NewTableDetailHandler(newFakeCatalog()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/tables/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestShardsHandlerRangeShard(t *testing.T) {
	cat := newFakeCatalog()
	cat.records["events"] = eventsRecord()

	mux := http.NewServeMux()
	mux.Handle("/v1/tables/{name}/shards", NewShardsHandler(cat, zap.NewNop()))

	body := `{"shard_id":201,"min":"30","max":"39"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/tables/events/shards", strings.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp CreateShardsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.ShardIDs) != 1 || resp.ShardIDs[0] != 201 {
		t.Fatalf("shard_ids = %v, want [201]", resp.ShardIDs)
	}
	if len(cat.rangeCalls) != 1 || cat.rangeCalls[0] != 201 {
		t.Fatalf("range shards registered = %v", cat.rangeCalls)
	}
}

func TestShardsHandlerHashRequiresCount(t *testing.T) {
	cat := newFakeCatalog()
	rec := eventsRecord()
	rec.Method = types.MethodHash
	cat.records["events"] = rec

	mux := http.NewServeMux()
	mux.Handle("/v1/tables/{name}/shards", NewShardsHandler(cat, zap.NewNop()))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/tables/events/shards", strings.NewReader(`{}`)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
