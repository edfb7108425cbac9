package planner

import (
	"context"
	"time"

	"github.com/knesgoda/opql-toolkit/internal/runtime"
)

// ScanNode delegates to Repository.List for the statement's root source.
type ScanNode struct {
	Alias       string
	EntityTypes []string
}

func (n *ScanNode) Describe() string { return "Scan(" + n.Alias + ")" }

func (n *ScanNode) Execute(ctx context.Context, ec *ExecContext, _ *PlanResult) (*PlanResult, error) {
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := ec.Repository.List(ctx, ec.Principal.WorkspaceID, n.EntityTypes)
	if err != nil {
		return nil, runtime.RepositoryFailure(err)
	}
	out := make([]ExecRow, len(rows))
	for i := range rows {
		out[i] = newExecRow(n.Alias, freshMaterialized(rows[i]))
	}
	ec.Metrics.record(n.Describe(), 0, len(out), time.Since(start))
	return &PlanResult{Rows: out, Total: len(out)}, nil
}
