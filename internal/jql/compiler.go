package jql

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/knesgoda/opql-toolkit/internal/opql"
)

// fieldAliases maps lowercase JQL field spellings to their OPQL canonical
// name. Anything not listed falls back to snake_case(field).
var fieldAliases = map[string]string{
	"summary":     "title",
	"assignee":    "assignee",
	"reporter":    "reporter",
	"created":     "created_at",
	"updated":     "updated_at",
	"duedate":     "due_at",
	"resolutiondate": "completed_at",
	"status":      "status",
	"priority":    "priority",
	"project":     "project_key",
	"labels":      "labels",
	"fixversion":  "fix_version",
	"component":   "component",
	"issuetype":   "type",
}

// functionAliases maps a lowercased, whitespace-stripped JQL function name
// to its OPQL canonical spelling.
var functionAliases = map[string]string{
	"currentuser": "current_user",
	"now":         "now",
	"startofday":  "start_of_day",
	"endofday":    "end_of_day",
}

func compileFieldName(field string) string {
	if strings.HasPrefix(field, "cf[") && strings.HasSuffix(field, "]") {
		digits := field[len("cf[") : len(field)-1]
		return "custom.cf_" + digits
	}
	lower := strings.ToLower(field)
	if canon, ok := fieldAliases[lower]; ok {
		return canon
	}
	return toSnakeCase(field)
}

func compileFunctionName(name string) string {
	lower := strings.ToLower(strings.ReplaceAll(name, " ", ""))
	if canon, ok := functionAliases[lower]; ok {
		return canon
	}
	return toSnakeCase(name)
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		case r == ' ' || r == '-':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func emitValue(v Value) string {
	if v.IsFunc {
		args := make([]string, len(v.Args))
		for i, a := range v.Args {
			args[i] = emitValue(a)
		}
		return compileFunctionName(v.Func) + "(" + strings.Join(args, ", ") + ")"
	}
	if looksNumeric(v.Literal) {
		return v.Literal
	}
	escaped := strings.ReplaceAll(v.Literal, "'", "\\'")
	return "'" + escaped + "'"
}

func emitValueList(vals []Value) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = emitValue(v)
	}
	return strings.Join(parts, ", ")
}

// compileHistoryFuncs lowers WAS/CHANGED qualifiers to the conjunct
// changed_by/changed_after/changed_before/changed_during function
// predicates the runtime recognizes alongside native history predicates.
func compileHistoryFuncs(field string, q HistoryQualifiers) []string {
	var funcs []string
	name := compileFieldName(field)
	if q.By != nil {
		funcs = append(funcs, fmt.Sprintf("changed_by(%s, %s)", name, emitValue(*q.By)))
	}
	if q.After != nil {
		funcs = append(funcs, fmt.Sprintf("changed_after(%s, %s)", name, emitValue(*q.After)))
	}
	if q.Before != nil {
		funcs = append(funcs, fmt.Sprintf("changed_before(%s, %s)", name, emitValue(*q.Before)))
	}
	if q.DuringStart != nil && q.DuringEnd != nil {
		funcs = append(funcs, fmt.Sprintf("changed_during(%s, %s, %s)", name, emitValue(*q.DuringStart), emitValue(*q.DuringEnd)))
	}
	return funcs
}

func emitLeaf(n *QueryNode) string {
	field := compileFieldName(n.Field)

	switch n.Op {
	case OpEquals, OpNotEquals, OpLess, OpLessEqual, OpGreater, OpGreaterEq:
		return fmt.Sprintf("%s %s %s", field, string(n.Op), emitValue(n.Value))

	case OpMatch:
		return fmt.Sprintf("contains(%s, %s)", field, emitValue(n.Value))
	case OpNotMatch:
		return fmt.Sprintf("NOT contains(%s, %s)", field, emitValue(n.Value))

	case OpIn:
		return fmt.Sprintf("%s IN (%s)", field, emitValueList(n.Values))
	case OpNotIn:
		return fmt.Sprintf("%s NOT IN (%s)", field, emitValueList(n.Values))

	case OpIsEmpty:
		return field + " IS EMPTY"
	case OpIsNotEmpty:
		return field + " IS NOT EMPTY"

	case OpWas, OpWasNot:
		prefix := "WAS"
		if n.Op == OpWasNot {
			prefix = "WAS NOT"
		}
		conjuncts := append([]string{fmt.Sprintf("%s %s %s", field, prefix, emitValue(n.Value))}, compileHistoryFuncs(n.Field, n.Qualifiers)...)
		return joinConjuncts(conjuncts)

	case OpWasIn, OpWasNotIn:
		prefix := "WAS IN"
		if n.Op == OpWasNotIn {
			prefix = "WAS NOT IN"
		}
		conjuncts := append([]string{fmt.Sprintf("%s %s (%s)", field, prefix, emitValueList(n.Values))}, compileHistoryFuncs(n.Field, n.Qualifiers)...)
		return joinConjuncts(conjuncts)

	case OpChanged:
		conjuncts := compileHistoryFuncs(n.Field, n.Qualifiers)
		if len(conjuncts) == 0 {
			return field + " CHANGED"
		}
		return joinConjuncts(conjuncts)
	}

	return field
}

func joinConjuncts(parts []string) string {
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

func emitChild(n *QueryNode) string {
	text := emitNode(n)
	if !n.IsLeaf() && !n.Negated {
		return "(" + text + ")"
	}
	return text
}

func emitNode(n *QueryNode) string {
	if !n.IsLeaf() {
		parts := make([]string, len(n.Children))
		for i, c := range n.Children {
			parts[i] = emitChild(c)
		}
		text := strings.Join(parts, " "+string(n.BoolOp)+" ")
		if n.Negated {
			return "NOT (" + text + ")"
		}
		return text
	}
	leaf := emitLeaf(n)
	if n.Negated {
		return "NOT (" + leaf + ")"
	}
	return leaf
}

// Compile parses JQL text, then assembles and re-parses the equivalent
// OPQL FIND statement text against source (defaulting to "tasks"). It
// returns the assembled text alongside the parsed Statement so callers can
// log or echo the translation.
func Compile(jqlText string, source string) (string, *opql.Statement, error) {
	q, err := Parse(jqlText)
	if err != nil {
		return "", nil, fmt.Errorf("jql: %w", err)
	}
	if source == "" {
		source = "tasks"
	}

	var b strings.Builder
	b.WriteString("FIND * FROM ")
	b.WriteString(source)
	if q.Where != nil {
		b.WriteString(" WHERE ")
		b.WriteString(emitNode(q.Where))
	}
	if len(q.OrderBy) > 0 {
		parts := make([]string, len(q.OrderBy))
		for i, t := range q.OrderBy {
			parts[i] = compileFieldName(t.Field) + " " + string(t.Direction)
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(parts, ", "))
	}

	text := b.String()
	stmt, err := opql.Parse(text)
	if err != nil {
		return text, nil, fmt.Errorf("jql: compiled text failed to reparse: %w", err)
	}
	return text, stmt, nil
}

// jqlSignals are substrings whose presence in input text characteristic of
// JQL rather than OPQL.
var jqlSignals = []string{"ORDER BY", "CF[", " WAS ", " CHANGED ", "DUEDATE", "RESOLUTIONDATE"}

var opqlVerbs = []string{"FIND", "COUNT", "AGGREGATE", "UPDATE", "EXPLAIN"}

// IsLikelyJql is a heuristic used by a query-execution front door to decide
// which compiler to try: it answers true when text does not begin with an
// OPQL statement verb and contains at least one JQL-characteristic token.
func IsLikelyJql(text string) bool {
	trimmed := strings.TrimSpace(strings.ToUpper(text))
	for _, verb := range opqlVerbs {
		if strings.HasPrefix(trimmed, verb) {
			return false
		}
	}
	for _, sig := range jqlSignals {
		if strings.Contains(trimmed, sig) {
			return true
		}
	}
	return false
}
