package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knesgoda/opql-toolkit/internal/opql"
)

func canonicalize(t *testing.T, text string) string {
	t.Helper()
	stmt, err := opql.Parse(text)
	require.NoError(t, err)
	return opql.Format(opql.NormalizeStatement(stmt))
}

func TestOpqlToQuery_SimpleFind(t *testing.T) {
	q, err := OpqlToQuery("FIND * FROM tasks WHERE status = 'open' AND priority = 'High'")
	require.NoError(t, err)
	assert.Equal(t, "FIND", q.Statement)
	assert.Equal(t, "tasks", q.Source)
	require.NotNil(t, q.Where)
	assert.Equal(t, GroupAnd, q.Where.Operator)
	require.Len(t, q.Where.Children, 2)

	first, ok := q.Where.Children[0].(*Clause)
	require.True(t, ok)
	assert.Equal(t, "status", first.Field)
	assert.Equal(t, "=", first.Comparator)
	assert.Equal(t, "open", first.Value)
	assert.True(t, first.ValueWasQuoted)
}

func TestRoundTrip_AggregateScenario(t *testing.T) {
	text := "AGGREGATE COUNT(*) AS total, SUM(duration) AS total_duration FROM ITEMS WHERE status = 'open' AND project = :project GROUP BY assignee HAVING COUNT(*) > 3 ORDER BY total DESC NULLS LAST LIMIT 25 OFFSET 5"

	canonical := canonicalize(t, text)

	q, err := OpqlToQuery(canonical)
	require.NoError(t, err)
	reserialized := QueryToOpql(q)

	assert.Equal(t, canonical, canonicalize(t, reserialized))
}

func TestRoundTrip_SimpleFind(t *testing.T) {
	text := "FIND title, status FROM tasks WHERE status = 'open' OR priority IN ('High', 'Urgent') ORDER BY created_at DESC LIMIT 10"
	canonical := canonicalize(t, text)

	q, err := OpqlToQuery(canonical)
	require.NoError(t, err)
	reserialized := QueryToOpql(q)

	assert.Equal(t, canonical, canonicalize(t, reserialized))
}

func TestOpqlToQuery_ParameterExtraction(t *testing.T) {
	names, err := CollectQueryParameters("FIND * FROM ITEMS WHERE description = 'literal :value' AND priority = :priority")
	require.NoError(t, err)
	assert.Equal(t, []string{":priority"}, names)
}

func TestOpqlToQuery_ParameterPreservedInClause(t *testing.T) {
	q, err := OpqlToQuery("FIND * FROM tasks WHERE priority = :priority")
	require.NoError(t, err)
	require.Len(t, q.Where.Children, 1)
	clause := q.Where.Children[0].(*Clause)
	assert.Equal(t, ":priority", clause.Value)
	assert.False(t, clause.ValueWasQuoted)
}

func TestOpqlToQuery_ParameterPreservedInLimit(t *testing.T) {
	q, err := OpqlToQuery("FIND * FROM tasks LIMIT :pageSize")
	require.NoError(t, err)
	require.NotNil(t, q.Limit)
	assert.Equal(t, ":pageSize", *q.Limit)
}

func TestOpqlToQuery_FallsBackOnUnbalancedQuotes(t *testing.T) {
	q, err := OpqlToQuery("FIND * FROM tasks WHERE title = 'unterminated")
	require.Error(t, err)
	require.NotNil(t, q)
	var berr *BuilderError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, ErrUnbalancedQuotes, berr.Kind)
}

func TestQueryToOpql_ParenthesizesMultiChildGroups(t *testing.T) {
	q := &BuilderQuery{
		Statement: "FIND",
		Source:    "tasks",
		Where: &Group{
			Operator: GroupAnd,
			Children: []Node{
				&Clause{Field: "status", Comparator: "=", Value: "open", ValueWasQuoted: true},
				&Group{
					Operator: GroupOr,
					Children: []Node{
						&Clause{Field: "priority", Comparator: "=", Value: "High", ValueWasQuoted: true},
						&Clause{Field: "priority", Comparator: "=", Value: "Urgent", ValueWasQuoted: true},
					},
				},
			},
		},
	}
	text := QueryToOpql(q)
	assert.Contains(t, text, "(priority = 'High' OR priority = 'Urgent')")
}
