package planner

import (
	"context"
	"time"

	"github.com/knesgoda/opql-toolkit/internal/repository"
	"github.com/knesgoda/opql-toolkit/internal/value"
)

// ProjectNode narrows each row's Values to the requested projections (or
// passes every field through when none were requested) and flattens the
// per-alias ExecRow down to the root alias's MaterializedRow.
type ProjectNode struct {
	RootAlias   string
	Projections []string
}

func (n *ProjectNode) Describe() string { return "Project" }

func (n *ProjectNode) Execute(ctx context.Context, ec *ExecContext, in *PlanResult) (*PlanResult, error) {
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	passthrough := len(n.Projections) == 0 || (len(n.Projections) == 1 && n.Projections[0] == "*")
	out := make([]ExecRow, len(in.Rows))
	for i, execRow := range in.Rows {
		row := execRow.Rows[n.RootAlias]
		if row == nil || passthrough {
			out[i] = execRow
			continue
		}
		projected := *row
		values := make(map[string]value.Value, len(n.Projections))
		for _, field := range n.Projections {
			if v, ok := row.Values[field]; ok {
				values[field] = v
			}
		}
		projected.Values = values
		clone := execRow.clone()
		clone.Rows[n.RootAlias] = &projected
		out[i] = clone
	}
	ec.Metrics.record(n.Describe(), len(in.Rows), len(out), time.Since(start))
	return &PlanResult{Rows: out, Total: in.Total, NextCursor: in.NextCursor}, nil
}

// MaterializedRows extracts the root-alias MaterializedRow from each
// ExecRow, the shape QueryResult.Rows ultimately carries.
func MaterializedRows(rootAlias string, rows []ExecRow) []repository.MaterializedRow {
	out := make([]repository.MaterializedRow, 0, len(rows))
	for _, execRow := range rows {
		if row := execRow.Rows[rootAlias]; row != nil {
			out = append(out, *row)
		}
	}
	return out
}
