package http

import (
	"net/http"
	"strconv"
	"time"

	terrors "github.com/tesseradb/tessera/internal/errors"
	"github.com/tesseradb/tessera/internal/pruning"
)

const (
	defaultStatsLimit = 20
	maxStatsLimit     = 500
)

// TableStatsInfo is the per-table pruning activity view.
type TableStatsInfo struct {
	Table           string         `json:"table"`
	Calls           int64          `json:"calls"`
	LastSeen        time.Time      `json:"last_seen"`
	ShardsEvaluated int64          `json:"shards_evaluated"`
	ShardsSelected  int64          `json:"shards_selected"`
	PruningRatio    float64        `json:"pruning_ratio"`
	Leaves          map[string]int `json:"leaves,omitempty"`
}

// StatsResponse wraps the busiest tables by pruning call count.
type StatsResponse struct {
	Tables    []TableStatsInfo `json:"tables"`
	RequestID string           `json:"request_id"`
}

// StatsHandler handles GET /v1/stats requests.
type StatsHandler struct {
	service *pruning.Service
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(service *pruning.Service) *StatsHandler {
	return &StatsHandler{service: service}
}

// ServeHTTP handles the stats request.
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, terrors.CodeInvalidArgument,
			"method not allowed", requestID)
		return
	}

	limit := defaultStatsLimit
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, terrors.CodeInvalidArgument,
				"top must be a positive integer", requestID)
			return
		}
		limit = n
	}
	if limit > maxStatsLimit {
		limit = maxStatsLimit
	}

	resp := StatsResponse{
		Tables:    make([]TableStatsInfo, 0, limit),
		RequestID: requestID,
	}
	for _, stats := range h.service.TopTables(limit) {
		resp.Tables = append(resp.Tables, TableStatsInfo{
			Table:           stats.Table,
			Calls:           stats.Calls,
			LastSeen:        stats.LastSeen,
			ShardsEvaluated: stats.ShardsEvaluated,
			ShardsSelected:  stats.ShardsSelected,
			PruningRatio:    stats.PruningRatio(),
			Leaves:          stats.Leaves,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}
