package opql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatExpr_Literals(t *testing.T) {
	assert.Equal(t, "'open'", FormatExpr(Lit("open", ValueString)))
	assert.Equal(t, "42", FormatExpr(Lit(float64(42), ValueNumber)))
	assert.Equal(t, "TRUE", FormatExpr(Lit(true, ValueBoolean)))
	assert.Equal(t, "NULL", FormatExpr(Lit(nil, ValueNull)))
}

func TestFormat_RoundTrip(t *testing.T) {
	inputs := []string{
		"FIND title, status FROM tasks WHERE status = 'open' AND priority != 'low' ORDER BY title ASC LIMIT 10",
		"FIND * FROM tasks WHERE estimate BETWEEN 1 AND 5",
		"FIND * FROM tasks WHERE status NOT IN ('closed', 'archived')",
		"COUNT FROM tasks WHERE assignee = ME()",
		"AGGREGATE COUNT(*) AS total FROM tasks GROUP BY status HAVING COUNT(*) > 1",
		"UPDATE tasks SET status = 'closed' WHERE id = 1 RETURNING id",
	}

	for _, in := range inputs {
		stmt, err := Parse(in)
		require.NoError(t, err, in)
		norm := NormalizeStatement(stmt)

		text := Format(norm)
		reparsed, err := Parse(text)
		require.NoError(t, err, text)
		renorm := NormalizeStatement(reparsed)

		assert.Equal(t, Format(renorm), Format(norm), "round-trip mismatch for %q -> %q", in, text)
	}
}

func TestFormat_HistoryPredicate(t *testing.T) {
	stmt, err := Parse("FIND * FROM tasks WHERE status WAS 'in_progress' BY 'alice'")
	require.NoError(t, err)
	text := FormatExpr(stmt.Where)
	assert.Equal(t, "status WAS 'in_progress' BY 'alice'", text)
}

func TestFormat_NegatedBetweenAndIn(t *testing.T) {
	stmt, err := Parse("FIND * FROM tasks WHERE estimate NOT BETWEEN 1 AND 5 AND status NOT IN ('a', 'b')")
	require.NoError(t, err)
	text := FormatExpr(stmt.Where)
	assert.Contains(t, text, "NOT BETWEEN")
	assert.Contains(t, text, "NOT IN")
}
