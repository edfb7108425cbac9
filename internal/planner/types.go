// Package planner builds and executes the logical plan tree: scan →
// permissions → relate → join → apply(where) → [aggregate] → sort → limit →
// project, per statement.
package planner

import (
	"context"
	"time"

	"github.com/knesgoda/opql-toolkit/internal/opql"
	"github.com/knesgoda/opql-toolkit/internal/repository"
	"github.com/knesgoda/opql-toolkit/internal/runtime"
	"github.com/knesgoda/opql-toolkit/internal/value"
)

// ExecRow is the working unit threaded through the plan pipeline: one row
// per alias (the root alias plus any JOIN/RELATE aliases), alongside a
// computed-value cache carried for function predicates like row.computed.
type ExecRow struct {
	Rows     map[string]*repository.MaterializedRow
	Computed map[string]value.Value
}

func newExecRow(alias string, row *repository.MaterializedRow) ExecRow {
	return ExecRow{
		Rows:     map[string]*repository.MaterializedRow{alias: row},
		Computed: map[string]value.Value{},
	}
}

func (r ExecRow) clone() ExecRow {
	rows := make(map[string]*repository.MaterializedRow, len(r.Rows))
	for k, v := range r.Rows {
		rows[k] = v
	}
	computed := make(map[string]value.Value, len(r.Computed))
	for k, v := range r.Computed {
		computed[k] = v
	}
	return ExecRow{Rows: rows, Computed: computed}
}

// StageMetric records one pipeline stage's contribution to plan execution.
type StageMetric struct {
	Name     string
	RowsIn   int
	RowsOut  int
	Duration time.Duration
}

// Metrics accumulates StageMetric entries across a single execution, owned
// exclusively by that execution's ExecContext.
type Metrics struct {
	Stages []StageMetric
}

func (m *Metrics) record(name string, in, out int, dur time.Duration) {
	m.Stages = append(m.Stages, StageMetric{Name: name, RowsIn: in, RowsOut: out, Duration: dur})
}

// PlannerOptions parameterizes plan construction.
type PlannerOptions struct {
	RootAlias     string
	AliasSources  map[string]string // alias -> entity type, for JOIN/RELATE
	GraphDepthCap int
	StableOrder   []opql.OrderTerm
	Cursor        *string
}

// ExecContext is the per-execution environment threaded through every
// node's Execute call.
type ExecContext struct {
	Repository repository.Repository
	Principal  repository.Principal
	Options    PlannerOptions
	Now        time.Time
	Metrics    *Metrics
}

// checkCancel reports the shared RuntimeError::Cancelled when ctx has been
// cancelled; plan nodes call this between stages and before repository
// calls per the cooperative-cancellation contract.
func checkCancel(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	return runtime.Cancelled()
}

// PlanResult is the output of one node's Execute.
type PlanResult struct {
	Rows       []ExecRow
	Total      int
	NextCursor *string
}

// Node is one stage of the logical plan tree.
type Node interface {
	Describe() string
	Execute(ctx context.Context, ec *ExecContext, in *PlanResult) (*PlanResult, error)
}
