package planner

import (
	"context"
	"sort"
	"time"

	"github.com/knesgoda/opql-toolkit/internal/opql"
	"github.com/knesgoda/opql-toolkit/internal/runtime"
	"github.com/knesgoda/opql-toolkit/internal/value"
)

// SortNode composes the statement's ORDER BY with the planner's stableOrder
// for deterministic output; when neither is present it falls back to
// score DESC, entityId ASC.
type SortNode struct {
	RootAlias   string
	OrderBy     []opql.OrderTerm
	StableOrder []opql.OrderTerm
}

func (n *SortNode) Describe() string { return "Sort" }

func (n *SortNode) Execute(ctx context.Context, ec *ExecContext, in *PlanResult) (*PlanResult, error) {
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}
	start := time.Now()

	terms := append(append([]opql.OrderTerm{}, n.OrderBy...), n.StableOrder...)
	ev := runtime.NewEvaluator()

	out := make([]ExecRow, len(in.Rows))
	copy(out, in.Rows)

	if len(terms) == 0 {
		sort.SliceStable(out, func(i, j int) bool {
			ri, rj := out[i].Rows[n.RootAlias], out[j].Rows[n.RootAlias]
			if ri == nil || rj == nil {
				return false
			}
			if ri.Score != rj.Score {
				return ri.Score > rj.Score
			}
			return ri.EntityID < rj.EntityID
		})
		ec.Metrics.record(n.Describe(), len(in.Rows), len(out), time.Since(start))
		return &PlanResult{Rows: out, Total: len(out)}, nil
	}

	keys := make([][]value.Value, len(out))
	for i, execRow := range out {
		rc := toRowContext(n.RootAlias, execRow, ec)
		row := make([]value.Value, len(terms))
		for t, term := range terms {
			v, err := ev.Eval(ctx, term.Expr, rc)
			if err != nil {
				return nil, err
			}
			row[t] = v
		}
		keys[i] = row
	}

	indices := make([]int, len(out))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		ia, ib := indices[a], indices[b]
		for t, term := range terms {
			c := value.CompareValues(keys[ia][t], keys[ib][t])
			if c == 0 {
				continue
			}
			if term.Direction == opql.SortDesc {
				return c > 0
			}
			return c < 0
		}
		return false
	})

	sorted := make([]ExecRow, len(out))
	for i, idx := range indices {
		sorted[i] = out[idx]
	}

	ec.Metrics.record(n.Describe(), len(in.Rows), len(sorted), time.Since(start))
	return &PlanResult{Rows: sorted, Total: len(sorted)}, nil
}
