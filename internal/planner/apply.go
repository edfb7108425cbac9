package planner

import (
	"context"
	"time"

	"github.com/knesgoda/opql-toolkit/internal/opql"
	"github.com/knesgoda/opql-toolkit/internal/runtime"
	"github.com/knesgoda/opql-toolkit/internal/value"
)

// ApplyNode filters rows by evaluating an expression (WHERE or HAVING) to a
// boolean; nil expressions pass every row through unchanged.
type ApplyNode struct {
	Name      string
	Expr      *opql.Expression
	RootAlias string
}

func (n *ApplyNode) Describe() string { return "Apply(" + n.Name + ")" }

func (n *ApplyNode) Execute(ctx context.Context, ec *ExecContext, in *PlanResult) (*PlanResult, error) {
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}
	if n.Expr == nil {
		return in, nil
	}
	start := time.Now()
	ev := runtime.NewEvaluator()
	out := make([]ExecRow, 0, len(in.Rows))
	for _, execRow := range in.Rows {
		rc := toRowContext(n.RootAlias, execRow, ec)
		v, err := ev.Eval(ctx, n.Expr, rc)
		if err != nil {
			return nil, err
		}
		if truthyValue(v) {
			out = append(out, execRow)
		}
	}
	ec.Metrics.record(n.Describe(), len(in.Rows), len(out), time.Since(start))
	return &PlanResult{Rows: out, Total: len(out)}, nil
}

func toRowContext(rootAlias string, execRow ExecRow, ec *ExecContext) *runtime.RowContext {
	return &runtime.RowContext{
		RootAlias: rootAlias,
		Rows:      execRow.Rows,
		Computed:  execRow.Computed,
		Principal: ec.Principal,
		Now:       ec.Now,
	}
}

// truthyValue mirrors the evaluator's own boolean coercion for the one
// place the planner needs to interpret a Value outside the evaluator.
func truthyValue(v value.Value) bool {
	switch v.Kind {
	case value.KindBool:
		return v.Bool
	case value.KindNull:
		return false
	default:
		return !v.IsNull()
	}
}
