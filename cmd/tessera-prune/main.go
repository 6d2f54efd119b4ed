// Package main implements tessera-prune, a one-shot pruning CLI.
// It loads a table's shard catalog, evaluates a predicate against it,
// and prints the surviving shard ids. Useful for checking shard layouts
// and for profiling the pruning path without running the server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/profile"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tesseradb/tessera/internal/catalog"
	"github.com/tesseradb/tessera/internal/observability"
	"github.com/tesseradb/tessera/internal/predicate"
	"github.com/tesseradb/tessera/internal/pruning"
)

func main() {
	var (
		catalogPath string
		table       string
		value       string
		orValues    string
		isNull      bool
		rawClause   string
		format      string
		profileMode string
		count       int
	)

	flag.StringVar(&catalogPath, "catalog", "./data/tessera/catalog.db", "Path to the shard catalog database")
	flag.StringVar(&table, "table", "", "Distributed table to prune (required)")
	flag.StringVar(&value, "value", "", "Equality literal for the partition column")
	flag.StringVar(&orValues, "or-values", "", "Comma-separated literals, pruned as an OR of equalities")
	flag.BoolVar(&isNull, "null", false, "Prune with an IS NULL restriction")
	flag.StringVar(&rawClause, "predicate", "", "Raw predicate clause as JSON (overrides -value, -or-values, -null)")
	flag.StringVar(&format, "format", "text", "Output format: text, json")
	flag.StringVar(&profileMode, "profile", "", "Write a profile: cpu, mem")
	flag.IntVar(&count, "count", 1, "Repeat the prune N times and report timing")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tessera-prune [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  tessera-prune -table events -value 42\n")
		fmt.Fprintf(os.Stderr, "  tessera-prune -table events -or-values 7,8,9 -format json\n")
		fmt.Fprintf(os.Stderr, "  tessera-prune -table events -predicate '{\"op\":\"is_null\"}'\n")
		fmt.Fprintf(os.Stderr, "  tessera-prune -table events -value 42 -count 10000 -profile cpu\n")
	}

	flag.Parse()

	if table == "" {
		flag.Usage()
		errExit("missing required flag: -table")
	}
	if count < 1 {
		errExit("-count must be at least 1, got %d", count)
	}

	switch profileMode {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(".")).Stop()
	default:
		errExit("unknown profile mode: %s (must be cpu or mem)", profileMode)
	}

	ctx := context.Background()

	cat, err := catalog.NewCatalog(catalogPath, 1)
	if err != nil {
		errExit("failed to open catalog %s: %v", catalogPath, err)
	}
	defer cat.Close()

	rec, err := cat.GetTableByName(ctx, table)
	if err != nil {
		errExit("unknown table %q: %v", table, err)
	}

	clause, err := buildClause(rec.Column.Name, rawClause, value, orValues, isNull)
	if err != nil {
		errExit("%v", err)
	}

	svc := pruning.NewService(cat,
		zap.NewNop(),
		observability.NewMetrics(prometheus.NewRegistry()),
		observability.NewPruneStats(time.Hour))

	var (
		result  *pruning.PruneResult
		total   time.Duration
		minimum time.Duration
		maximum time.Duration
	)
	for i := 0; i < count; i++ {
		result, err = svc.PruneTable(ctx, pruning.PruneRequest{Table: table, Predicate: clause})
		if err != nil {
			errExit("prune failed: %v", err)
		}
		total += result.Elapsed
		if minimum == 0 || result.Elapsed < minimum {
			minimum = result.Elapsed
		}
		if result.Elapsed > maximum {
			maximum = result.Elapsed
		}
	}

	switch format {
	case "json":
		printJSON(result)
	case "text":
		printText(result)
	default:
		errExit("unknown output format: %s (must be text or json)", format)
	}

	if count > 1 {
		fmt.Printf("\nTiming over %d runs: min=%v avg=%v max=%v\n",
			count, minimum, total/time.Duration(count), maximum)
	}
}

// buildClause assembles the predicate tree from the CLI flags. The
// sugar flags all restrict the table's partition column; arbitrary
// trees go through -predicate as JSON.
func buildClause(column, rawClause, value, orValues string, isNull bool) (*predicate.Clause, error) {
	if rawClause != "" {
		var c predicate.Clause
		if err := json.Unmarshal([]byte(rawClause), &c); err != nil {
			return nil, fmt.Errorf("invalid predicate JSON: %w", err)
		}
		if c.Column == "" && c.Op != predicate.OpAnd && c.Op != predicate.OpOr {
			c.Column = column
		}
		return &c, nil
	}

	var clauses []predicate.Clause
	if value != "" {
		v := value
		clauses = append(clauses, predicate.Clause{Op: predicate.OpEquals, Column: column, Value: &v})
	}
	for _, raw := range strings.Split(orValues, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		v := raw
		clauses = append(clauses, predicate.Clause{Op: predicate.OpEquals, Column: column, Value: &v})
	}
	if isNull {
		clauses = append(clauses, predicate.Clause{Op: predicate.OpIsNull, Column: column})
	}

	switch len(clauses) {
	case 0:
		return nil, nil
	case 1:
		return &clauses[0], nil
	default:
		return &predicate.Clause{Op: predicate.OpOr, Children: clauses}, nil
	}
}

func printText(res *pruning.PruneResult) {
	pruned := res.ShardsEvaluated - len(res.ShardIDs)
	fmt.Printf("Table:   %s (id %d)\n", res.Table, res.TableID)
	fmt.Printf("Shards:  %d of %d selected (%d pruned, ratio %.3f)\n",
		len(res.ShardIDs), res.ShardsEvaluated, pruned, res.PruningRatio)
	if len(res.ShardIDs) > 0 {
		ids := make([]string, len(res.ShardIDs))
		for i, id := range res.ShardIDs {
			ids[i] = fmt.Sprintf("%d", id)
		}
		fmt.Printf("Ids:     %s\n", strings.Join(ids, ", "))
	}
	fmt.Printf("Elapsed: %v\n", res.Elapsed)
}

func printJSON(res *pruning.PruneResult) {
	shardIDs := res.ShardIDs
	if shardIDs == nil {
		shardIDs = []int64{}
	}
	out := struct {
		Table           string  `json:"table"`
		TableID         int64   `json:"table_id"`
		ShardIDs        []int64 `json:"shard_ids"`
		ShardsEvaluated int     `json:"shards_evaluated"`
		PruningRatio    float64 `json:"pruning_ratio"`
		ElapsedUs       int64   `json:"elapsed_us"`
	}{
		Table:           res.Table,
		TableID:         res.TableID,
		ShardIDs:        shardIDs,
		ShardsEvaluated: res.ShardsEvaluated,
		PruningRatio:    res.PruningRatio,
		ElapsedUs:       res.Elapsed.Microseconds(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		errExit("failed to encode result: %v", err)
	}
}

func errExit(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
