package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	terrors "github.com/tesseradb/tessera/internal/errors"
	"github.com/tesseradb/tessera/internal/predicate"
	"github.com/tesseradb/tessera/internal/pruning"
)

// PruneRequest represents a pruning request.
type PruneRequest struct {
	Table     string            `json:"table"`
	Predicate *predicate.Clause `json:"predicate,omitempty"`
}

// PruneResponse represents the pruning response.
type PruneResponse struct {
	Table        string  `json:"table"`
	TableID      int64   `json:"table_id"`
	ShardIDs     []int64 `json:"shard_ids"`
	TotalShards  int     `json:"total_shards"`
	PruningRatio float64 `json:"pruning_ratio"`
	ElapsedUs    int64   `json:"elapsed_us"`
	RequestID    string  `json:"request_id"`
}

// PruneHandler handles POST /v1/prune requests.
type PruneHandler struct {
	service *pruning.Service
	logger  *zap.Logger
}

// NewPruneHandler creates a new prune handler.
func NewPruneHandler(service *pruning.Service, logger *zap.Logger) *PruneHandler {
	return &PruneHandler{
		service: service,
		logger:  logger,
	}
}

// ServeHTTP handles the pruning HTTP request.
func (h *PruneHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, terrors.CodeInvalidArgument,
			"method not allowed", requestID)
		return
	}

	// Parse request body
	var req PruneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, terrors.CodeInvalidArgument,
			fmt.Sprintf("invalid request body: %v", err), requestID)
		return
	}

	if req.Table == "" {
		writeError(w, http.StatusBadRequest, terrors.CodeInvalidArgument,
			"table is required", requestID)
		return
	}

	result, err := h.service.PruneTable(r.Context(), pruning.PruneRequest{
		Table:     req.Table,
		Predicate: req.Predicate,
	})
	if err != nil {
		h.logger.Warn("prune request failed",
			zap.String("table", req.Table),
			zap.String("request_id", requestID),
			zap.Error(err))
		writeDomainError(w, err, requestID)
		return
	}

	resp := PruneResponse{
		Table:        result.Table,
		TableID:      result.TableID,
		ShardIDs:     result.ShardIDs,
		TotalShards:  result.ShardsEvaluated,
		PruningRatio: result.PruningRatio,
		ElapsedUs:    result.Elapsed.Microseconds(),
		RequestID:    requestID,
	}

	// Ensure shard_ids is not nil for JSON serialization
	if resp.ShardIDs == nil {
		resp.ShardIDs = []int64{}
	}

	writeJSON(w, http.StatusOK, resp)
}
