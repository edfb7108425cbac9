package opql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_FieldAlias(t *testing.T) {
	stmt, err := Parse("FIND * FROM tasks WHERE resolved = TRUE")
	require.NoError(t, err)
	norm := NormalizeStatement(stmt)
	assert.Equal(t, "completed", norm.Where.Left.Name)
}

func TestNormalize_FunctionAlias(t *testing.T) {
	expr, err := ParseExpr("currentUser()")
	require.NoError(t, err)
	norm := Normalize(expr)
	assert.Equal(t, "ME", norm.FuncName)
}

func TestNormalize_IsIdempotent(t *testing.T) {
	stmt, err := Parse("FIND * FROM tasks WHERE resolved = TRUE AND summary = 'x'")
	require.NoError(t, err)
	once := NormalizeStatement(stmt)
	twice := NormalizeStatement(once)
	assert.Equal(t, once.Where.Left.Left.Name, twice.Where.Left.Left.Name)
	assert.Equal(t, once.Where.Right.Left.Name, twice.Where.Right.Left.Name)
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	stmt, err := Parse("FIND * FROM tasks WHERE resolved = TRUE")
	require.NoError(t, err)
	_ = NormalizeStatement(stmt)
	assert.Equal(t, "resolved", stmt.Where.Left.Name)
}

func TestNormalize_RecursesNestedExpressions(t *testing.T) {
	expr, err := ParseExpr("resolved BETWEEN 1 AND summary")
	require.NoError(t, err)
	norm := Normalize(expr)
	assert.Equal(t, "completed", norm.BetweenValue.Name)
	assert.Equal(t, "title", norm.Upper.Name)
}
