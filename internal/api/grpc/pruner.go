// Package grpc provides gRPC API handlers for the Tessera pruning
// service. The service is registered through a hand-written descriptor
// over structpb payloads, so no generated stubs are involved.
package grpc

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tesseradb/tessera/internal/catalog"
	terrors "github.com/tesseradb/tessera/internal/errors"
	"github.com/tesseradb/tessera/internal/predicate"
	"github.com/tesseradb/tessera/internal/pruning"
	"github.com/tesseradb/tessera/internal/shard"
)

// PrunerService is the contract of tessera.v1.PrunerService.
type PrunerService interface {
	Prune(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListTables(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	DescribeTable(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// PrunerServer implements the PrunerService gRPC server.
type PrunerServer struct {
	service *pruning.Service
	catalog catalog.Catalog
	logger  *zap.Logger
}

// NewPrunerServer creates a new gRPC pruner server.
func NewPrunerServer(service *pruning.Service, cat catalog.Catalog, logger *zap.Logger) *PrunerServer {
	return &PrunerServer{
		service: service,
		catalog: cat,
		logger:  logger,
	}
}

// Prune handles one pruning call. The request carries the table name
// and the optional predicate clause tree.
func (s *PrunerServer) Prune(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	requestID := extractRequestID(ctx)

	table := req.GetFields()["table"].GetStringValue()
	if table == "" {
		return nil, status.Error(codes.InvalidArgument, "table is required")
	}

	clause, err := clauseFromRequest(req)
	if err != nil {
		return nil, err
	}

	result, err := s.service.PruneTable(ctx, pruning.PruneRequest{
		Table:     table,
		Predicate: clause,
	})
	if err != nil {
		s.logger.Warn("grpc prune failed",
			zap.String("table", table),
			zap.String("request_id", requestID),
			zap.Error(err))
		return nil, statusFromError(err)
	}

	shardIDs := make([]interface{}, len(result.ShardIDs))
	for i, id := range result.ShardIDs {
		shardIDs[i] = id
	}

	resp, err := structpb.NewStruct(map[string]interface{}{
		"table":         result.Table,
		"table_id":      result.TableID,
		"shard_ids":     shardIDs,
		"total_shards":  result.ShardsEvaluated,
		"pruning_ratio": result.PruningRatio,
		"elapsed_us":    result.Elapsed.Microseconds(),
		"request_id":    requestID,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to build response: %v", err)
	}
	return resp, nil
}

// ListTables returns all distributed tables.
func (s *PrunerServer) ListTables(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	requestID := extractRequestID(ctx)

	records, err := s.catalog.ListTables(ctx)
	if err != nil {
		return nil, statusFromError(err)
	}

	tables := make([]interface{}, 0, len(records))
	for _, rec := range records {
		tables = append(tables, map[string]interface{}{
			"table_id":    rec.TableID,
			"name":        rec.Name,
			"column":      rec.Column.Name,
			"column_type": rec.Column.TypeID.String(),
			"method":      string(rec.Method),
			"null_policy": string(rec.NullPolicy),
		})
	}

	resp, err := structpb.NewStruct(map[string]interface{}{
		"tables":     tables,
		"request_id": requestID,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to build response: %v", err)
	}
	return resp, nil
}

// DescribeTable returns one table's shard layout and the rendering of
// its partition equality expression.
func (s *PrunerServer) DescribeTable(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	requestID := extractRequestID(ctx)

	name := req.GetFields()["table"].GetStringValue()
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "table is required")
	}

	rec, err := s.catalog.GetTableByName(ctx, name)
	if err != nil {
		return nil, statusFromError(err)
	}
	snap, err := s.catalog.LoadShardCatalog(ctx, rec.TableID)
	if err != nil {
		return nil, statusFromError(err)
	}

	resp, err := structpb.NewStruct(describeTableFields(rec, snap, requestID))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to build response: %v", err)
	}
	return resp, nil
}

func describeTableFields(rec *catalog.TableRecord, snap *shard.Snapshot, requestID string) map[string]interface{} {
	shards := make([]interface{}, 0, snap.NumShards())
	for _, iv := range snap.Intervals() {
		minText, maxText := iv.EncodeBounds()
		entry := map[string]interface{}{"shard_id": iv.ShardID}
		if minText != nil {
			entry["min"] = *minText
		}
		if maxText != nil {
			entry["max"] = *maxText
		}
		shards = append(shards, entry)
	}

	fields := map[string]interface{}{
		"table_id":     rec.TableID,
		"name":         rec.Name,
		"column":       rec.Column.Name,
		"column_type":  rec.Column.TypeID.String(),
		"method":       string(rec.Method),
		"convention":   string(rec.Convention),
		"null_policy":  string(rec.NullPolicy),
		"equality":     predicate.NewFactory(rec.Column).DescribeEquality(),
		"total_shards": snap.NumShards(),
		"request_id":   requestID,
	}
	if catchAllID, ok := snap.CatchAll(); ok {
		fields["catch_all_shard"] = catchAllID
		shards = append(shards, map[string]interface{}{"shard_id": catchAllID})
	}
	fields["shards"] = shards
	return fields
}

// clauseFromRequest decodes the optional predicate field. The clause
// tree rides as a nested struct with the same shape as the HTTP wire
// form.
func clauseFromRequest(req *structpb.Struct) (*predicate.Clause, error) {
	field, ok := req.GetFields()["predicate"]
	if !ok {
		return nil, nil
	}
	if _, isNull := field.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, nil
	}

	obj := field.GetStructValue()
	if obj == nil {
		return nil, status.Error(codes.InvalidArgument, "predicate must be an object")
	}

	raw, err := obj.MarshalJSON()
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid predicate: %v", err)
	}
	clause := new(predicate.Clause)
	if err := json.Unmarshal(raw, clause); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid predicate: %v", err)
	}
	return clause, nil
}

// statusFromError maps domain error codes onto gRPC status codes.
func statusFromError(err error) error {
	switch terrors.GetCode(err) {
	case terrors.CodeTableNotFound, terrors.CodeObjectNotFound:
		return status.Error(codes.NotFound, err.Error())
	case terrors.CodeTypeMismatch, terrors.CodeInvalidArgument:
		return status.Error(codes.InvalidArgument, err.Error())
	case terrors.CodeTableExists, terrors.CodeShardExists:
		return status.Error(codes.AlreadyExists, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// extractRequestID extracts or generates a request ID from the gRPC context.
func extractRequestID(ctx context.Context) string {
	// Try to extract from gRPC metadata
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get("x-request-id"); len(ids) > 0 {
			return ids[0]
		}
	}
	// Generate a new request ID if not provided
	return uuid.New().String()
}

// PrunerServiceDesc mirrors what protoc would emit for the service, with
// structpb.Struct standing in for the request and response messages.
var PrunerServiceDesc = grpc.ServiceDesc{
	ServiceName: "tessera.v1.PrunerService",
	HandlerType: (*PrunerService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Prune", Handler: prunerPruneHandler},
		{MethodName: "ListTables", Handler: prunerListTablesHandler},
		{MethodName: "DescribeTable", Handler: prunerDescribeTableHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tessera/v1/pruner.proto",
}

// RegisterPrunerServer registers the pruner service implementation.
func RegisterPrunerServer(s grpc.ServiceRegistrar, srv PrunerService) {
	s.RegisterService(&PrunerServiceDesc, srv)
}

func prunerPruneHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PrunerService).Prune(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/tessera.v1.PrunerService/Prune",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PrunerService).Prune(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func prunerListTablesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PrunerService).ListTables(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/tessera.v1.PrunerService/ListTables",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PrunerService).ListTables(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func prunerDescribeTableHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PrunerService).DescribeTable(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/tessera.v1.PrunerService/DescribeTable",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PrunerService).DescribeTable(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
