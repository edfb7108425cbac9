package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knesgoda/opql-toolkit/internal/opql"
	"github.com/knesgoda/opql-toolkit/internal/repository"
	"github.com/knesgoda/opql-toolkit/internal/value"
)

func relateRow(id, projectID string) *repository.MaterializedRow {
	return &repository.MaterializedRow{
		RepositoryRow: repository.RepositoryRow{
			EntityID: id,
			Values:   map[string]value.Value{"project_id": value.Text(projectID)},
		},
	}
}

func relateUniverse(rows ...*repository.MaterializedRow) func(ctx context.Context) ([]ExecRow, error) {
	return func(ctx context.Context) ([]ExecRow, error) {
		var out []ExecRow
		for _, r := range rows {
			out = append(out, ExecRow{Rows: map[string]*repository.MaterializedRow{"tasks": r}, Computed: map[string]value.Value{}})
		}
		return out, nil
	}
}

func newExecContext() *ExecContext {
	return &ExecContext{Metrics: &Metrics{}}
}

func TestRelateNode_DepthOneReturnsProjectNeighbors(t *testing.T) {
	root := relateRow("t-1", "p-1")
	sibling := relateRow("t-2", "p-1")
	other := relateRow("t-3", "p-2")
	node := &RelateNode{
		Alias:     "tasks",
		Relations: []opql.Relate{{Name: "related", Depth: 1}},
		AllRows:   relateUniverse(root, sibling, other),
	}
	in := &PlanResult{Rows: []ExecRow{{Rows: map[string]*repository.MaterializedRow{"tasks": root}, Computed: map[string]value.Value{}}}}

	out, err := node.Execute(context.Background(), newExecContext(), in)
	require.NoError(t, err)
	require.Len(t, out.Rows, 2)
	assert.Equal(t, sibling, out.Rows[1].Rows["related"])
}

// Sharing project_id is a reflexive, one-hop-complete relation: every row in
// a project is already a direct neighbor of every other, so a second hop
// starting from a first-hop neighbor never surfaces a row depth 1 didn't.
// This asserts the BFS converges there instead of re-emitting the same
// neighbor twice (the bug a naive re-iterate-N-times fix would introduce).
func TestRelateNode_DepthTwoConvergesWithoutDuplicatingNeighbors(t *testing.T) {
	root := relateRow("t-1", "p-1")
	sibling := relateRow("t-2", "p-1")
	node := &RelateNode{
		Alias:     "tasks",
		Relations: []opql.Relate{{Name: "related", Depth: 2}},
		AllRows:   relateUniverse(root, sibling),
	}
	in := &PlanResult{Rows: []ExecRow{{Rows: map[string]*repository.MaterializedRow{"tasks": root}, Computed: map[string]value.Value{}}}}

	out, err := node.Execute(context.Background(), newExecContext(), in)
	require.NoError(t, err)

	var relatedIDs []string
	for _, r := range out.Rows[1:] {
		relatedIDs = append(relatedIDs, r.Rows["related"].EntityID)
	}
	assert.Equal(t, []string{"t-2"}, relatedIDs)
}

func TestRelateNode_CapLimitsTotalRelatedRows(t *testing.T) {
	root := relateRow("t-1", "p-1")
	a := relateRow("t-2", "p-1")
	b := relateRow("t-3", "p-1")
	node := &RelateNode{
		Alias:     "tasks",
		Relations: []opql.Relate{{Name: "related", Depth: 1, Cap: 1}},
		AllRows:   relateUniverse(root, a, b),
	}
	in := &PlanResult{Rows: []ExecRow{{Rows: map[string]*repository.MaterializedRow{"tasks": root}, Computed: map[string]value.Value{}}}}

	out, err := node.Execute(context.Background(), newExecContext(), in)
	require.NoError(t, err)
	require.Len(t, out.Rows, 2)
}

func TestRelateNode_DepthAboveCapFailsWithGraphDepthExceeded(t *testing.T) {
	root := relateRow("t-1", "p-1")
	node := &RelateNode{
		Alias:         "tasks",
		Relations:     []opql.Relate{{Name: "related", Depth: 3}},
		GraphDepthCap: 2,
		AllRows:       relateUniverse(root),
	}
	in := &PlanResult{Rows: []ExecRow{{Rows: map[string]*repository.MaterializedRow{"tasks": root}, Computed: map[string]value.Value{}}}}

	_, err := node.Execute(context.Background(), newExecContext(), in)
	require.Error(t, err)
	var perr *PlanError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrGraphDepthExceeded, perr.Kind)
}

func TestRelateNode_NoRelationsPassesThrough(t *testing.T) {
	root := relateRow("t-1", "p-1")
	node := &RelateNode{Alias: "tasks", AllRows: relateUniverse(root)}
	in := &PlanResult{Rows: []ExecRow{{Rows: map[string]*repository.MaterializedRow{"tasks": root}, Computed: map[string]value.Value{}}}}

	out, err := node.Execute(context.Background(), newExecContext(), in)
	require.NoError(t, err)
	assert.Same(t, in, out)
}
