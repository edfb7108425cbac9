package jql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_SimpleFieldValue(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
		op    FilterOp
		value string
	}{
		{"status equals", "status = Open", "status", OpEquals, "Open"},
		{"priority not equals", "priority != Low", "priority", OpNotEquals, "Low"},
		{"summary match", "summary ~ bug", "summary", OpMatch, "bug"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q, err := Parse(tc.input)
			require.NoError(t, err)
			require.NotNil(t, q.Where)
			assert.True(t, q.Where.IsLeaf())
			assert.Equal(t, tc.field, q.Where.Field)
			assert.Equal(t, tc.op, q.Where.Op)
			assert.Equal(t, tc.value, q.Where.Value.Literal)
		})
	}
}

func TestParse_ExplicitAndOr(t *testing.T) {
	q, err := Parse("status = Open AND assignee = jdoe OR priority = High")
	require.NoError(t, err)
	require.NotNil(t, q.Where)
	// OR binds loosest: (status=Open AND assignee=jdoe) OR priority=High
	assert.Equal(t, BoolOr, q.Where.BoolOp)
	require.Len(t, q.Where.Children, 2)
	assert.Equal(t, BoolAnd, q.Where.Children[0].BoolOp)
}

func TestParse_Not(t *testing.T) {
	q, err := Parse("NOT status = Closed")
	require.NoError(t, err)
	assert.True(t, q.Where.Negated)
	assert.Equal(t, "status", q.Where.Field)
}

func TestParse_InAndNotIn(t *testing.T) {
	q, err := Parse("status IN (Open, \"In Progress\") AND priority NOT IN (Low)")
	require.NoError(t, err)
	and := q.Where
	require.Len(t, and.Children, 2)
	assert.Equal(t, OpIn, and.Children[0].Op)
	require.Len(t, and.Children[0].Values, 2)
	assert.Equal(t, OpNotIn, and.Children[1].Op)
}

func TestParse_IsEmpty(t *testing.T) {
	q, err := Parse("labels IS EMPTY AND duedate IS NOT EMPTY")
	require.NoError(t, err)
	and := q.Where
	assert.Equal(t, OpIsEmpty, and.Children[0].Op)
	assert.Equal(t, OpIsNotEmpty, and.Children[1].Op)
}

func TestParse_CustomField(t *testing.T) {
	q, err := Parse("cf[12345] = 5")
	require.NoError(t, err)
	assert.Equal(t, "cf[12345]", q.Where.Field)
	assert.Equal(t, "5", q.Where.Value.Literal)
}

func TestParse_WasWithQualifiers(t *testing.T) {
	q, err := Parse("status WAS \"In Progress\" BY jdoe AFTER 2026-01-01")
	require.NoError(t, err)
	w := q.Where
	assert.Equal(t, OpWas, w.Op)
	require.NotNil(t, w.Qualifiers.By)
	assert.Equal(t, "jdoe", w.Qualifiers.By.Literal)
	require.NotNil(t, w.Qualifiers.After)
}

func TestParse_WasNot(t *testing.T) {
	q, err := Parse("status WAS NOT Closed")
	require.NoError(t, err)
	assert.Equal(t, OpWasNot, q.Where.Op)
}

func TestParse_ChangedDuring(t *testing.T) {
	q, err := Parse("status CHANGED DURING (2026-01-01 AND 2026-02-01)")
	require.NoError(t, err)
	w := q.Where
	assert.Equal(t, OpChanged, w.Op)
	require.NotNil(t, w.Qualifiers.DuringStart)
	require.NotNil(t, w.Qualifiers.DuringEnd)
}

func TestParse_FunctionValue(t *testing.T) {
	q, err := Parse("assignee = currentUser()")
	require.NoError(t, err)
	assert.True(t, q.Where.Value.IsFunc)
	assert.Equal(t, "currentUser", q.Where.Value.Func)
}

func TestParse_OrderBy(t *testing.T) {
	q, err := Parse("status = Open ORDER BY priority DESC, created ASC")
	require.NoError(t, err)
	require.Len(t, q.OrderBy, 2)
	assert.Equal(t, "priority", q.OrderBy[0].Field)
	assert.Equal(t, OrderDesc, q.OrderBy[0].Direction)
	assert.Equal(t, OrderAsc, q.OrderBy[1].Direction)
}

func TestParse_Parentheses(t *testing.T) {
	q, err := Parse("status = Open AND (priority = High OR priority = Medium)")
	require.NoError(t, err)
	and := q.Where
	assert.Equal(t, BoolAnd, and.BoolOp)
	or := and.Children[1]
	assert.Equal(t, BoolOr, or.BoolOp)
}

func TestParse_OrderByOnly(t *testing.T) {
	q, err := Parse("ORDER BY priority DESC")
	require.NoError(t, err)
	assert.Nil(t, q.Where)
	require.Len(t, q.OrderBy, 1)
}
