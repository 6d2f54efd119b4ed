package http

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	terrors "github.com/tesseradb/tessera/internal/errors"
	"github.com/tesseradb/tessera/internal/observability"
	"github.com/tesseradb/tessera/internal/pruning"
	"github.com/tesseradb/tessera/internal/shard"
	"github.com/tesseradb/tessera/pkg/types"
)

type fakeSnapshotSource struct {
	snaps map[string]*shard.Snapshot
}

func (f *fakeSnapshotSource) SnapshotByName(ctx context.Context, table string) (*shard.Snapshot, error) {
	snap, ok := f.snaps[table]
	if !ok {
		return nil, terrors.NewNotFound(fmt.Sprintf("table %q is not distributed", table))
	}
	return snap, nil
}

func vp(v types.Value) *types.Value {
	return &v
}

// eventsSnapshot lays out three range shards over tenant_id: [0,9],
// [10,19], [20,29].
func eventsSnapshot(t *testing.T) *shard.Snapshot {
	t.Helper()
	meta := shard.Meta{
		TableID:   12,
		TableName: "events",
		Column: types.PartitionColumn{
			TableID: 12,
			Ordinal: 0,
			Name:    "tenant_id",
			TypeID:  types.TypeInt64,
		},
		Method:     types.MethodRange,
		Convention: types.MaxInclusive,
		NullPolicy: types.NoNulls,
	}
	snap, err := shard.NewSnapshot(meta, []shard.Interval{
		{ShardID: 101, Min: vp(types.Int64Value(0)), Max: vp(types.Int64Value(9))},
		{ShardID: 102, Min: vp(types.Int64Value(10)), Max: vp(types.Int64Value(19))},
		{ShardID: 103, Min: vp(types.Int64Value(20)), Max: vp(types.Int64Value(29))},
	})
	if err != nil {
		t.Fatalf("building snapshot: %v", err)
	}
	return snap
}

func newPruneTestHandler(t *testing.T) *PruneHandler {
	t.Helper()
	source := &fakeSnapshotSource{snaps: map[string]*shard.Snapshot{
		"events": eventsSnapshot(t),
	}}
	service := pruning.NewService(source, zap.NewNop(),
		observability.NewMetrics(prometheus.NewRegistry()),
		observability.NewPruneStats(time.Hour))
	return NewPruneHandler(service, zap.NewNop())
}

func postPrune(t *testing.T, handler *PruneHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/prune", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestPruneHandlerEquality(t *testing.T) {
	handler := newPruneTestHandler(t)

	rec := postPrune(t, handler,
		`{"table":"events","predicate":{"op":"eq","column":"tenant_id","value":"15"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp PruneResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.TableID != 12 {
		t.Errorf("table_id = %d, want 12", resp.TableID)
	}
	if len(resp.ShardIDs) != 1 || resp.ShardIDs[0] != 102 {
		t.Fatalf("shard_ids = %v, want [102]", resp.ShardIDs)
	}
	if resp.TotalShards != 3 {
		t.Errorf("total_shards = %d, want 3", resp.TotalShards)
	}
	if math.Abs(resp.PruningRatio-2.0/3.0) > 1e-9 {
		t.Errorf("pruning_ratio = %f, want 2/3", resp.PruningRatio)
	}
}

func TestPruneHandlerNoPredicate(t *testing.T) {
	handler := newPruneTestHandler(t)

	rec := postPrune(t, handler, `{"table":"events"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp PruneResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.ShardIDs) != 3 {
		t.Fatalf("shard_ids = %v, want all three shards", resp.ShardIDs)
	}
}

func TestPruneHandlerMissSerializesEmptyList(t *testing.T) {
	handler := newPruneTestHandler(t)

	rec := postPrune(t, handler,
		`{"table":"events","predicate":{"op":"eq","column":"tenant_id","value":"99"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"shard_ids":[]`) {
		t.Fatalf("body %s should carry an empty list, not null", rec.Body.String())
	}
}

func TestPruneHandlerUnknownTable(t *testing.T) {
	handler := newPruneTestHandler(t)

	rec := postPrune(t, handler, `{"table":"nope"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if resp.Code != terrors.CodeTableNotFound {
		t.Fatalf("error code = %q, want %q", resp.Code, terrors.CodeTableNotFound)
	}
}

func TestPruneHandlerTypeMismatch(t *testing.T) {
	handler := newPruneTestHandler(t)

	rec := postPrune(t, handler,
		`{"table":"events","predicate":{"op":"eq","column":"tenant_id","value":"abc"}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if resp.Code != terrors.CodeTypeMismatch {
		t.Fatalf("error code = %q, want %q", resp.Code, terrors.CodeTypeMismatch)
	}
}

func TestPruneHandlerRejectsBadRequests(t *testing.T) {
	handler := newPruneTestHandler(t)

	t.Run("wrong method", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/prune", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("status = %d, want 405", rec.Code)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := postPrune(t, handler, `{"table":`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("missing table", func(t *testing.T) {
		rec := postPrune(t, handler, `{"predicate":{"op":"eq","column":"tenant_id","value":"5"}}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})
}
