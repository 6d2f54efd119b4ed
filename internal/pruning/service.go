package pruning

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tesseradb/tessera/internal/observability"
	"github.com/tesseradb/tessera/internal/predicate"
	"github.com/tesseradb/tessera/internal/shard"
)

// SnapshotSource loads one table's validated shard snapshot. The
// returned snapshot must reflect a consistent view of the table; the
// catalog layer owns that consistency.
type SnapshotSource interface {
	SnapshotByName(ctx context.Context, table string) (*shard.Snapshot, error)
}

// PruneRequest is one caller-facing pruning invocation.
type PruneRequest struct {
	// Table is the distributed table's declared name
	Table string

	// Predicate is the wire-form restriction tree, nil for none
	Predicate *predicate.Clause
}

// PruneResult contains the result of one pruning call.
type PruneResult struct {
	// Table is the resolved table name
	Table string

	// TableID is the resolved table id
	TableID int64

	// ShardIDs is the candidate set, ascending with no duplicates
	ShardIDs []int64

	// ShardsEvaluated is the table's total shard count before pruning
	ShardsEvaluated int

	// PruningRatio is the fraction of shards eliminated (0.0 to 1.0)
	PruningRatio float64

	// Elapsed is the wall time of the call, catalog load included
	Elapsed time.Duration
}

// Service wires the pure pruning engine to the catalog, logging,
// metrics, and statistics. It holds no per-call state, so one Service
// serves all callers concurrently.
type Service struct {
	source  SnapshotSource
	logger  *zap.Logger
	metrics *observability.Metrics
	stats   *observability.PruneStats
}

// NewService creates a pruning service over the given snapshot source.
func NewService(source SnapshotSource, logger *zap.Logger, metrics *observability.Metrics, stats *observability.PruneStats) *Service {
	return &Service{
		source:  source,
		logger:  logger,
		metrics: metrics,
		stats:   stats,
	}
}

// PruneTable resolves the table, translates the wire predicate, and
// evaluates it against the table's shard snapshot.
func (s *Service) PruneTable(ctx context.Context, req PruneRequest) (*PruneResult, error) {
	start := time.Now()

	loadStart := time.Now()
	snap, err := s.source.SnapshotByName(ctx, req.Table)
	if err != nil {
		s.metrics.PruneCalls.WithLabelValues(req.Table, "error").Inc()
		return nil, fmt.Errorf("pruning: failed to load shard catalog for %q: %w", req.Table, err)
	}
	s.metrics.CatalogLoadDuration.Observe(time.Since(loadStart).Seconds())

	tree, err := predicate.Translate(req.Predicate, snap.Meta().Column)
	if err != nil {
		s.metrics.PruneCalls.WithLabelValues(req.Table, "error").Inc()
		return nil, fmt.Errorf("pruning: failed to translate predicate for %q: %w", req.Table, err)
	}

	set, err := Prune(snap, tree)
	if err != nil {
		s.metrics.PruneCalls.WithLabelValues(req.Table, "error").Inc()
		return nil, fmt.Errorf("pruning: failed to evaluate predicate for %q: %w", req.Table, err)
	}

	ids := Encode(set)
	evaluated := snap.NumShards()
	var ratio float64
	if evaluated > 0 {
		ratio = float64(evaluated-len(ids)) / float64(evaluated)
	}
	elapsed := time.Since(start)

	s.metrics.PruneCalls.WithLabelValues(req.Table, "ok").Inc()
	s.metrics.PruneDuration.Observe(elapsed.Seconds())
	s.metrics.PruningRatio.Observe(ratio)
	s.stats.RecordPrune(req.Table, evaluated, len(ids), predicate.CountLeaves(tree))

	s.logger.Debug("pruned table",
		zap.String("table", req.Table),
		zap.Int64("table_id", snap.TableID()),
		zap.Int("shards_evaluated", evaluated),
		zap.Int("shards_selected", len(ids)),
		zap.Float64("pruning_ratio", ratio),
		zap.Duration("took", elapsed))

	return &PruneResult{
		Table:           req.Table,
		TableID:         snap.TableID(),
		ShardIDs:        ids,
		ShardsEvaluated: evaluated,
		PruningRatio:    ratio,
		Elapsed:         elapsed,
	}, nil
}

// TopTables returns the busiest tables by pruning call count.
func (s *Service) TopTables(n int) []observability.TableStats {
	return s.stats.GetTopTables(n)
}
