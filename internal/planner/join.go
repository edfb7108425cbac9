package planner

import (
	"context"
	"time"

	"github.com/knesgoda/opql-toolkit/internal/opql"
	"github.com/knesgoda/opql-toolkit/internal/repository"
	"github.com/knesgoda/opql-toolkit/internal/runtime"
	"github.com/knesgoda/opql-toolkit/internal/value"
)

// JoinNode evaluates a JOIN condition for each (base row, alias row) pair.
// INNER keeps only matches; LEFT/RIGHT/FULL additionally emit unmatched
// rows from one or both sides with the other side left absent.
type JoinNode struct {
	Join     opql.Join
	Evaluate func(ctx context.Context, ec *ExecContext, row ExecRow) (bool, error)
	AllRows  func(ctx context.Context) ([]*repository.MaterializedRow, error)
}

func (n *JoinNode) Describe() string { return "Join(" + n.Join.Alias + ")" }

func (n *JoinNode) Execute(ctx context.Context, ec *ExecContext, in *PlanResult) (*PlanResult, error) {
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}
	start := time.Now()

	aliasRows, err := n.AllRows(ctx)
	if err != nil {
		return nil, runtime.RepositoryFailure(err)
	}

	var out []ExecRow
	for _, base := range in.Rows {
		matched := false
		for _, aliasRow := range aliasRows {
			candidate := base.clone()
			candidate.Rows[n.Join.Alias] = aliasRow
			ok, err := n.Evaluate(ctx, ec, candidate)
			if err != nil {
				return nil, err
			}
			if ok {
				matched = true
				out = append(out, candidate)
			}
		}
		if !matched && (n.Join.Kind == opql.JoinLeft || n.Join.Kind == opql.JoinFull) {
			unmatched := base.clone()
			unmatched.Rows[n.Join.Alias] = nil
			out = append(out, unmatched)
		}
	}

	if n.Join.Kind == opql.JoinRight || n.Join.Kind == opql.JoinFull {
		matchedAlias := map[string]bool{}
		for _, r := range out {
			if row := r.Rows[n.Join.Alias]; row != nil {
				matchedAlias[row.EntityID] = true
			}
		}
		for _, aliasRow := range aliasRows {
			if matchedAlias[aliasRow.EntityID] {
				continue
			}
			empty := ExecRow{Rows: map[string]*repository.MaterializedRow{n.Join.Alias: aliasRow}, Computed: map[string]value.Value{}}
			out = append(out, empty)
		}
	}

	ec.Metrics.record(n.Describe(), len(in.Rows), len(out), time.Since(start))
	return &PlanResult{Rows: out, Total: len(out)}, nil
}
