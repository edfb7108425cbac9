package opql

// keywords is the fixed, read-only, process-wide set of reserved words
// recognized by the lexer. Identifiers matching one of these (case
// insensitively) are reclassified as TokKeyword with the canonical
// uppercase spelling, per spec.md §4.1.
var keywords = map[string]bool{
	// statement verbs
	"FIND": true, "COUNT": true, "AGGREGATE": true, "UPDATE": true, "EXPLAIN": true,

	// clause introducers
	"FROM": true, "WHERE": true, "ORDER": true, "BY": true, "GROUP": true,
	"HAVING": true, "LIMIT": true, "OFFSET": true, "CURSOR": true,
	"RETURNING": true, "JOIN": true, "RELATE": true, "SECURE": true,
	"PAGINATE": true, "PAGE": true, "GRAPH": true, "AS": true, "SET": true,

	// join kinds
	"INNER": true, "LEFT": true, "RIGHT": true, "FULL": true,

	// predicate words
	"AND": true, "OR": true, "NOT": true, "IN": true, "IS": true,
	"EMPTY": true, "NULL": true, "BETWEEN": true, "WAS": true, "CHANGED": true,
	"TO": true, "BEFORE": true, "AFTER": true, "ON": true, "DURING": true,
	"NULLS": true, "FIRST": true, "LAST": true, "DISTINCT": true,
	"ASC": true, "DESC": true, "INBOUND": true, "OUTBOUND": true,
	"BIDIRECTIONAL": true, "DEPTH": true, "CAP": true, "VERBOSE": true,

	// text-match operator words
	"MATCH": true, "LIKE": true, "ILIKE": true, "CONTAINS": true,

	// literal words
	"TRUE": true, "FALSE": true,
}

// isKeyword reports whether upper is a reserved word (already uppercased).
func isKeyword(upper string) bool {
	return keywords[upper]
}
