// Package observability provides pruning statistics tracking and
// Prometheus metrics for performance monitoring.
package observability

import (
	"sort"
	"sync"
	"time"
)

// PruneStats tracks per-table pruning activity over a sliding window,
// used to spot tables whose predicates rarely prune anything.
type PruneStats struct {
	mu        sync.RWMutex
	tableFreq map[string]*TableStats
	window    time.Duration
}

// TableStats holds cumulative pruning statistics for one table.
type TableStats struct {
	Table           string
	Calls           int64
	LastSeen        time.Time
	ShardsEvaluated int64
	ShardsSelected  int64
	Leaves          map[string]int // leaf kind → count (e.g., "eq" → 5, "is_null" → 2)
}

// PruningRatio returns the cumulative fraction of shards eliminated
// across all recorded calls, 0 when nothing has been evaluated yet.
func (t *TableStats) PruningRatio() float64 {
	if t.ShardsEvaluated == 0 {
		return 0
	}
	return float64(t.ShardsEvaluated-t.ShardsSelected) / float64(t.ShardsEvaluated)
}

// NewPruneStats creates a new pruning statistics tracker.
// window: time duration for expiring idle entries (e.g., 1 hour)
func NewPruneStats(window time.Duration) *PruneStats {
	return &PruneStats{
		tableFreq: make(map[string]*TableStats),
		window:    window,
	}
}

// RecordPrune records one pruning call against a table.
// evaluated: number of shards in the table's catalog
// selected: number of shards kept as candidates
// leaves: predicate leaf kinds seen in the call's restriction tree
// This method is O(leaves) and thread-safe.
func (p *PruneStats) RecordPrune(table string, evaluated, selected int, leaves map[string]int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats, exists := p.tableFreq[table]
	if !exists {
		stats = &TableStats{
			Table:  table,
			Leaves: make(map[string]int),
		}
		p.tableFreq[table] = stats
	}

	stats.Calls++
	stats.LastSeen = time.Now()
	stats.ShardsEvaluated += int64(evaluated)
	stats.ShardsSelected += int64(selected)
	for kind, count := range leaves {
		stats.Leaves[kind] += count
	}
}

// GetTopTables returns the top N tables by call count.
// Returns a copy of the stats sorted by frequency (descending).
func (p *PruneStats) GetTopTables(n int) []TableStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if n <= 0 || len(p.tableFreq) == 0 {
		return []TableStats{}
	}

	stats := make([]TableStats, 0, len(p.tableFreq))
	for _, s := range p.tableFreq {
		// Deep copy to prevent external modification
		statsCopy := TableStats{
			Table:           s.Table,
			Calls:           s.Calls,
			LastSeen:        s.LastSeen,
			ShardsEvaluated: s.ShardsEvaluated,
			ShardsSelected:  s.ShardsSelected,
			Leaves:          make(map[string]int),
		}
		for kind, count := range s.Leaves {
			statsCopy.Leaves[kind] = count
		}
		stats = append(stats, statsCopy)
	}

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Calls > stats[j].Calls
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Expire removes entries where time.Since(LastSeen) > window.
// This should be called periodically (e.g., every 5 minutes).
func (p *PruneStats) Expire() {
	p.mu.Lock()
	defer p.mu.Unlock()

	threshold := time.Now().Add(-p.window)
	for table, stats := range p.tableFreq {
		if stats.LastSeen.Before(threshold) {
			delete(p.tableFreq, table)
		}
	}
}
