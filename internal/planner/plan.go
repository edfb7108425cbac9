package planner

import (
	"context"
	"time"

	"github.com/knesgoda/opql-toolkit/internal/opql"
	"github.com/knesgoda/opql-toolkit/internal/repository"
	"github.com/knesgoda/opql-toolkit/internal/runtime"
)

// QueryResult is the final shape Execute returns: rows, pagination, and a
// metrics/explain trail.
type QueryResult struct {
	Rows           []repository.MaterializedRow
	Total          int
	NextCursor     *string
	Metrics        Metrics
	AppliedFilters []string
	Projections    []string
}

// Plan is an ordered pipeline of nodes built from one Statement.
type Plan struct {
	RootAlias   string
	EntityTypes []string
	Nodes       []Node
	Projections []string
	Describe    []string
}

// Build constructs the plan tree for stmt per PlannerOptions. Entity type
// resolution is a single-source simplification: the root scan always
// targets stmt.Source; GetDefinition is used only to validate the source
// exists.
func Build(ctx context.Context, repo repository.Repository, stmt *opql.Statement, opts PlannerOptions) (*Plan, error) {
	rootAlias := opts.RootAlias
	if rootAlias == "" {
		rootAlias = stmt.Alias
	}
	if rootAlias == "" {
		rootAlias = stmt.Source
	}

	if _, err := repo.GetDefinition(ctx, stmt.Source); err != nil {
		return nil, unknownEntity(stmt.Source)
	}

	plan := &Plan{RootAlias: rootAlias, EntityTypes: []string{stmt.Source}}
	plan.Nodes = append(plan.Nodes, &ScanNode{Alias: rootAlias, EntityTypes: []string{stmt.Source}})
	plan.Nodes = append(plan.Nodes, &PermissionsNode{Alias: rootAlias})

	if len(stmt.Relations) > 0 {
		plan.Nodes = append(plan.Nodes, &RelateNode{
			Alias:         rootAlias,
			Relations:     stmt.Relations,
			GraphDepthCap: opts.GraphDepthCap,
			AllRows: func(ctx context.Context) ([]ExecRow, error) {
				rows, err := repo.List(ctx, "", nil)
				if err != nil {
					return nil, err
				}
				out := make([]ExecRow, len(rows))
				for i := range rows {
					out[i] = newExecRow(rootAlias, freshMaterialized(rows[i]))
				}
				return out, nil
			},
		})
	}

	joinEvaluator := runtime.NewEvaluator()
	for _, join := range stmt.Joins {
		j := join
		source := opts.AliasSources[j.Alias]
		if source == "" {
			source = j.Alias
		}
		plan.Nodes = append(plan.Nodes, &JoinNode{
			Join: j,
			Evaluate: func(ctx context.Context, ec *ExecContext, row ExecRow) (bool, error) {
				if j.Condition == nil {
					return true, nil
				}
				rc := toRowContext(rootAlias, row, ec)
				v, err := joinEvaluator.Eval(ctx, j.Condition, rc)
				if err != nil {
					return false, err
				}
				return truthyValue(v), nil
			},
			AllRows: func(ctx context.Context) ([]*repository.MaterializedRow, error) {
				rows, err := repo.List(ctx, "", []string{source})
				if err != nil {
					return nil, err
				}
				out := make([]*repository.MaterializedRow, len(rows))
				for i := range rows {
					out[i] = freshMaterialized(rows[i])
				}
				return out, nil
			},
		})
	}

	plan.Nodes = append(plan.Nodes, &ApplyNode{Name: "WHERE", Expr: stmt.Where, RootAlias: rootAlias})

	if stmt.Kind == opql.StmtAggregate {
		plan.Nodes = append(plan.Nodes, &AggregateNode{
			RootAlias:  rootAlias,
			GroupBy:    stmt.GroupBy,
			Aggregates: stmt.Aggregates,
			Having:     stmt.Having,
		})
	}

	plan.Nodes = append(plan.Nodes, &SortNode{RootAlias: rootAlias, OrderBy: stmt.OrderBy, StableOrder: opts.StableOrder})

	cursor := opts.Cursor
	if cursor == nil {
		cursor = stmt.Cursor
	}
	plan.Nodes = append(plan.Nodes, &LimitNode{
		RootAlias:   rootAlias,
		OrderBy:     stmt.OrderBy,
		StableOrder: opts.StableOrder,
		Limit:       stmt.Limit,
		Offset:      stmt.Offset,
		Cursor:      cursor,
	})

	plan.Projections = stmt.Projections
	plan.Nodes = append(plan.Nodes, &ProjectNode{RootAlias: rootAlias, Projections: stmt.Projections})

	for _, node := range plan.Nodes {
		plan.Describe = append(plan.Describe, node.Describe())
	}
	return plan, nil
}

// Execute runs the plan's nodes in sequence against repo, acting as
// principal, with now supplying the evaluator's now() resolution.
func (p *Plan) Execute(ctx context.Context, repo repository.Repository, principal repository.Principal, now time.Time) (*QueryResult, error) {
	ec := &ExecContext{
		Repository: repo,
		Principal:  principal,
		Now:        now,
		Metrics:    &Metrics{},
	}

	var result *PlanResult
	for _, node := range p.Nodes {
		if err := checkCancel(ctx); err != nil {
			return nil, err
		}
		next, err := node.Execute(ctx, ec, result)
		if err != nil {
			return nil, err
		}
		result = next
	}

	return &QueryResult{
		Rows:           MaterializedRows(p.RootAlias, result.Rows),
		Total:          result.Total,
		NextCursor:     result.NextCursor,
		Metrics:        *ec.Metrics,
		AppliedFilters: p.Describe,
		Projections:    p.Projections,
	}, nil
}
