package opql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize_SimpleComparison(t *testing.T) {
	tokens, err := Tokenize("status = 'open'")
	require.NoError(t, err)
	require.Len(t, tokens, 4) // identifier, operator, string, EOF

	assert.Equal(t, TokIdentifier, tokens[0].Kind)
	assert.Equal(t, "status", tokens[0].Value)
	assert.Equal(t, TokOperator, tokens[1].Kind)
	assert.Equal(t, "=", tokens[1].Value)
	assert.Equal(t, TokString, tokens[2].Kind)
	assert.Equal(t, "open", tokens[2].Value)
	assert.Equal(t, TokEOF, tokens[3].Kind)
}

func TestTokenize_Keywords(t *testing.T) {
	tokens, err := Tokenize("FIND title FROM tasks WHERE status = 'open' AND assignee IS NOT NULL")
	require.NoError(t, err)

	var kw []string
	for _, tok := range tokens {
		if tok.Kind == TokKeyword {
			kw = append(kw, tok.Value)
		}
	}
	assert.Equal(t, []string{"FIND", "FROM", "WHERE", "AND", "IS", "NOT", "NULL"}, kw)
}

func TestTokenize_MultiCharOperators(t *testing.T) {
	tests := []struct {
		input string
		value string
	}{
		{"a != b", "!="},
		{"a !~ b", "!~"},
		{"a <= b", "<="},
		{"a <> b", "<>"},
		{"a >= b", ">="},
		{"a::number", "::"},
	}
	for _, tc := range tests {
		tokens, err := Tokenize(tc.input)
		require.NoError(t, err)
		found := false
		for _, tok := range tokens {
			if tok.Kind == TokOperator && tok.Value == tc.value {
				found = true
			}
		}
		assert.True(t, found, "expected operator %q in %q", tc.value, tc.input)
	}
}

func TestTokenize_Duration(t *testing.T) {
	tokens, err := Tokenize("created_at > now() - 7d")
	require.NoError(t, err)

	var durations []string
	for _, tok := range tokens {
		if tok.Kind == TokDuration {
			durations = append(durations, tok.Value)
		}
	}
	require.Len(t, durations, 1)
	assert.Equal(t, "7d", durations[0])
}

func TestTokenize_DurationMonthsNotConfusedWithMinutes(t *testing.T) {
	tokens, err := Tokenize("30mo")
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, TokDuration, tokens[0].Kind)
	assert.Equal(t, "30mo", tokens[0].Value)
}

func TestTokenize_DottedPath(t *testing.T) {
	tokens, err := Tokenize("assignee.team.name")
	require.NoError(t, err)
	require.Len(t, tokens, 6) // ident dot ident dot ident EOF
	assert.Equal(t, TokIdentifier, tokens[0].Kind)
	assert.Equal(t, TokDot, tokens[1].Kind)
	assert.Equal(t, TokIdentifier, tokens[2].Kind)
	assert.Equal(t, TokDot, tokens[3].Kind)
	assert.Equal(t, TokIdentifier, tokens[4].Kind)
}

func TestTokenize_QuotedStringWithEscape(t *testing.T) {
	tokens, err := Tokenize(`'it\'s done'`)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "it's done", tokens[0].Value)
}

func TestTokenize_UnterminatedStringErrors(t *testing.T) {
	_, err := Tokenize("'unterminated")
	require.Error(t, err)
	var lexErr *LexError
	require.ErrorAs(t, err, &lexErr)
	assert.Equal(t, LexUnterminatedString, lexErr.Kind)
}

func TestTokenize_UnexpectedCharErrors(t *testing.T) {
	_, err := Tokenize("status = #bad")
	require.Error(t, err)
	var lexErr *LexError
	require.ErrorAs(t, err, &lexErr)
	assert.Equal(t, LexUnexpected, lexErr.Kind)
	assert.Equal(t, '#', lexErr.Char)
}

func TestTokenize_Asterisk(t *testing.T) {
	tokens, err := Tokenize("COUNT(*)")
	require.NoError(t, err)
	var sawAsterisk bool
	for _, tok := range tokens {
		if tok.Kind == TokAsterisk {
			sawAsterisk = true
		}
	}
	assert.True(t, sawAsterisk)
}
