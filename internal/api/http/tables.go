package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tesseradb/tessera/internal/catalog"
	terrors "github.com/tesseradb/tessera/internal/errors"
	"github.com/tesseradb/tessera/internal/predicate"
	"github.com/tesseradb/tessera/internal/shard"
	"github.com/tesseradb/tessera/pkg/types"
)

// CreateTableRequest declares a distributed table.
type CreateTableRequest struct {
	Name          string `json:"name"`
	ColumnName    string `json:"column_name"`
	ColumnOrdinal int    `json:"column_ordinal"`
	ColumnType    string `json:"column_type"`
	Method        string `json:"method"`
	Convention    string `json:"convention,omitempty"`
	NullPolicy    string `json:"null_policy,omitempty"`

	// ShardCount lays out the hash shards in the same call when > 0.
	ShardCount int `json:"shard_count,omitempty"`

	// StartShardID is the first shard id of the layout. Defaults to
	// table_id*100000+1, which keeps ids unique across tables.
	StartShardID int64 `json:"start_shard_id,omitempty"`
}

// CreateShardsRequest adds shards to an existing table. Hash tables take
// a shard count; range tables take one shard with its bounds.
type CreateShardsRequest struct {
	ShardCount   int   `json:"shard_count,omitempty"`
	StartShardID int64 `json:"start_shard_id,omitempty"`

	ShardID int64   `json:"shard_id,omitempty"`
	Min     *string `json:"min,omitempty"`
	Max     *string `json:"max,omitempty"`
}

// TableColumn describes a table's partition column.
type TableColumn struct {
	Name    string `json:"name"`
	Ordinal int    `json:"ordinal"`
	Type    string `json:"type"`
}

// TableInfo is the list-level view of a distributed table.
type TableInfo struct {
	TableID    int64       `json:"table_id"`
	Name       string      `json:"name"`
	Column     TableColumn `json:"column"`
	Method     string      `json:"method"`
	Convention string      `json:"convention"`
	NullPolicy string      `json:"null_policy"`
	CreatedAt  time.Time   `json:"created_at"`
}

// ShardInfo is one shard interval with its bounds in canonical text. A
// nil bound is an open side; both nil marks the catch-all shard.
type ShardInfo struct {
	ShardID int64   `json:"shard_id"`
	Min     *string `json:"min"`
	Max     *string `json:"max"`
}

// TableDetail is the detail view: the table plus its shard layout and
// the rendering of its partition equality expression.
type TableDetail struct {
	TableInfo
	Equality      string      `json:"equality"`
	TotalShards   int         `json:"total_shards"`
	Shards        []ShardInfo `json:"shards"`
	CatchAllShard *int64      `json:"catch_all_shard,omitempty"`
}

// ListTablesResponse wraps the table list.
type ListTablesResponse struct {
	Tables    []TableInfo `json:"tables"`
	RequestID string      `json:"request_id"`
}

// CreateShardsResponse reports the shard ids registered by one call.
type CreateShardsResponse struct {
	TableID   int64   `json:"table_id"`
	ShardIDs  []int64 `json:"shard_ids"`
	RequestID string  `json:"request_id"`
}

func tableInfoFromRecord(rec *catalog.TableRecord) TableInfo {
	return TableInfo{
		TableID: rec.TableID,
		Name:    rec.Name,
		Column: TableColumn{
			Name:    rec.Column.Name,
			Ordinal: rec.Column.Ordinal,
			Type:    rec.Column.TypeID.String(),
		},
		Method:     string(rec.Method),
		Convention: string(rec.Convention),
		NullPolicy: string(rec.NullPolicy),
		CreatedAt:  rec.CreatedAt,
	}
}

func tableDetailFromSnapshot(rec *catalog.TableRecord, snap *shard.Snapshot) TableDetail {
	detail := TableDetail{
		TableInfo:   tableInfoFromRecord(rec),
		Equality:    predicate.NewFactory(rec.Column).DescribeEquality(),
		TotalShards: snap.NumShards(),
		Shards:      make([]ShardInfo, 0, snap.NumShards()),
	}
	for _, iv := range snap.Intervals() {
		minText, maxText := iv.EncodeBounds()
		detail.Shards = append(detail.Shards, ShardInfo{ShardID: iv.ShardID, Min: minText, Max: maxText})
	}
	if catchAllID, ok := snap.CatchAll(); ok {
		detail.Shards = append(detail.Shards, ShardInfo{ShardID: catchAllID})
		detail.CatchAllShard = &catchAllID
	}
	return detail
}

// TablesHandler handles the /v1/tables collection: GET lists the
// distributed tables, POST creates one.
type TablesHandler struct {
	catalog catalog.Catalog
	logger  *zap.Logger
}

// NewTablesHandler creates a new tables handler.
func NewTablesHandler(cat catalog.Catalog, logger *zap.Logger) *TablesHandler {
	return &TablesHandler{
		catalog: cat,
		logger:  logger,
	}
}

// ServeHTTP handles table collection requests.
func (h *TablesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, terrors.CodeInvalidArgument,
			"method not allowed", GetRequestID(r.Context()))
	}
}

func (h *TablesHandler) list(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	records, err := h.catalog.ListTables(r.Context())
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}

	resp := ListTablesResponse{
		Tables:    make([]TableInfo, 0, len(records)),
		RequestID: requestID,
	}
	for _, rec := range records {
		resp.Tables = append(resp.Tables, tableInfoFromRecord(rec))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *TablesHandler) create(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	var req CreateTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, terrors.CodeInvalidArgument,
			fmt.Sprintf("invalid request body: %v", err), requestID)
		return
	}

	spec, err := specFromRequest(req)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}

	rec, err := h.catalog.CreateDistributedTable(r.Context(), spec)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}

	if req.ShardCount > 0 {
		startID := req.StartShardID
		if startID == 0 {
			startID = rec.TableID*100000 + 1
		}
		if _, err := h.catalog.CreateHashShards(r.Context(), rec.TableID, req.ShardCount, startID); err != nil {
			writeDomainError(w, err, requestID)
			return
		}
	}

	h.logger.Info("created distributed table",
		zap.String("table", rec.Name),
		zap.Int64("table_id", rec.TableID),
		zap.String("method", string(rec.Method)),
		zap.Int("shard_count", req.ShardCount))

	snap, err := h.catalog.LoadShardCatalog(r.Context(), rec.TableID)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}

	writeJSON(w, http.StatusCreated, tableDetailFromSnapshot(rec, snap))
}

// specFromRequest validates the wire form of a table declaration. The
// enum fields fail fast here so the caller sees which one is bad; the
// catalog re-validates the combination.
func specFromRequest(req CreateTableRequest) (catalog.TableSpec, error) {
	var spec catalog.TableSpec

	if req.Name == "" {
		return spec, terrors.NewInvalidArgument("name is required")
	}
	if req.ColumnName == "" {
		return spec, terrors.NewInvalidArgument("column_name is required")
	}

	columnType, err := types.ParseValueTypeID(req.ColumnType)
	if err != nil {
		return spec, terrors.NewInvalidArgument(fmt.Sprintf("invalid column_type: %v", err))
	}
	method, err := types.ParsePartitionMethod(req.Method)
	if err != nil {
		return spec, terrors.NewInvalidArgument(fmt.Sprintf("invalid method: %v", err))
	}

	spec = catalog.TableSpec{
		Name:          req.Name,
		ColumnName:    req.ColumnName,
		ColumnOrdinal: req.ColumnOrdinal,
		ColumnType:    columnType,
		Method:        method,
	}

	if req.Convention != "" {
		convention, err := types.ParseBoundConvention(req.Convention)
		if err != nil {
			return spec, terrors.NewInvalidArgument(fmt.Sprintf("invalid convention: %v", err))
		}
		spec.Convention = convention
	}
	if req.NullPolicy != "" {
		nullPolicy, err := types.ParseNullPolicy(req.NullPolicy)
		if err != nil {
			return spec, terrors.NewInvalidArgument(fmt.Sprintf("invalid null_policy: %v", err))
		}
		spec.NullPolicy = nullPolicy
	}

	return spec, nil
}

// TableDetailHandler handles GET /v1/tables/{name} requests.
type TableDetailHandler struct {
	catalog catalog.Catalog
}

// NewTableDetailHandler creates a new table detail handler.
func NewTableDetailHandler(cat catalog.Catalog) *TableDetailHandler {
	return &TableDetailHandler{catalog: cat}
}

// ServeHTTP handles the table detail request.
func (h *TableDetailHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, terrors.CodeInvalidArgument,
			"method not allowed", requestID)
		return
	}

	name := r.PathValue("name")
	rec, err := h.catalog.GetTableByName(r.Context(), name)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}

	snap, err := h.catalog.LoadShardCatalog(r.Context(), rec.TableID)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}

	writeJSON(w, http.StatusOK, tableDetailFromSnapshot(rec, snap))
}

// ShardsHandler handles POST /v1/tables/{name}/shards requests.
type ShardsHandler struct {
	catalog catalog.Catalog
	logger  *zap.Logger
}

// NewShardsHandler creates a new shards handler.
func NewShardsHandler(cat catalog.Catalog, logger *zap.Logger) *ShardsHandler {
	return &ShardsHandler{
		catalog: cat,
		logger:  logger,
	}
}

// ServeHTTP handles the shard creation request.
func (h *ShardsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, terrors.CodeInvalidArgument,
			"method not allowed", requestID)
		return
	}

	var req CreateShardsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, terrors.CodeInvalidArgument,
			fmt.Sprintf("invalid request body: %v", err), requestID)
		return
	}

	name := r.PathValue("name")
	rec, err := h.catalog.GetTableByName(r.Context(), name)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}

	var shardIDs []int64
	switch rec.Method {
	case types.MethodHash:
		if req.ShardCount < 1 {
			writeError(w, http.StatusBadRequest, terrors.CodeInvalidArgument,
				"shard_count is required for hash tables", requestID)
			return
		}
		startID := req.StartShardID
		if startID == 0 {
			startID = rec.TableID*100000 + 1
		}
		shardIDs, err = h.catalog.CreateHashShards(r.Context(), rec.TableID, req.ShardCount, startID)
		if err != nil {
			writeDomainError(w, err, requestID)
			return
		}
	case types.MethodRange:
		if req.ShardID == 0 {
			writeError(w, http.StatusBadRequest, terrors.CodeInvalidArgument,
				"shard_id is required for range tables", requestID)
			return
		}
		if err := h.catalog.CreateRangeShard(r.Context(), rec.TableID, req.ShardID, req.Min, req.Max); err != nil {
			writeDomainError(w, err, requestID)
			return
		}
		shardIDs = []int64{req.ShardID}
	default:
		writeError(w, http.StatusInternalServerError, terrors.CodeMalformedCatalog,
			fmt.Sprintf("table %q has unknown partition method %q", rec.Name, rec.Method), requestID)
		return
	}

	h.logger.Info("created shards",
		zap.String("table", rec.Name),
		zap.Int64("table_id", rec.TableID),
		zap.Int("count", len(shardIDs)))

	writeJSON(w, http.StatusCreated, CreateShardsResponse{
		TableID:   rec.TableID,
		ShardIDs:  shardIDs,
		RequestID: requestID,
	})
}
