package builder

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/knesgoda/opql-toolkit/internal/opql"
)

// toTree flattens a WHERE/HAVING expression into a Group/Clause Node,
// merging adjacent same-operator Binary{AND|OR} nodes into a single flat
// Group rather than nesting them.
func toTree(e *opql.Expression) Node {
	if e == nil {
		return nil
	}
	if e.Kind == opql.KindBinary && (e.Op == "AND" || e.Op == "OR") {
		op := GroupAnd
		if e.Op == "OR" {
			op = GroupOr
		}
		g := &Group{ID: uuid.NewString(), Operator: op}
		g.Children = append(g.Children, flattenSide(e.Left, e.Op)...)
		g.Children = append(g.Children, flattenSide(e.Right, e.Op)...)
		return g
	}
	return clauseFromExpr(e)
}

func flattenSide(e *opql.Expression, op string) []Node {
	if e != nil && e.Kind == opql.KindBinary && e.Op == op {
		var out []Node
		out = append(out, flattenSide(e.Left, op)...)
		out = append(out, flattenSide(e.Right, op)...)
		return out
	}
	return []Node{toTree(e)}
}

// clauseText reconstructs a clause's OPQL text from its structured fields
// when the comparator is one this package knows how to re-emit, falling
// back to the clause's authoritative Source otherwise (BETWEEN/IN/history/
// function/negated clauses, or anything edited into an unrecognized shape).
func clauseText(c *Clause) string {
	switch c.Comparator {
	case "=", "!=", "<>", "<", "<=", ">", ">=", "~", "!~", "::",
		"MATCH", "LIKE", "ILIKE", "CONTAINS", "BEFORE", "AFTER", "ON":
		return c.Field + " " + c.Comparator + " " + quoteIfNeeded(c.Value, c.ValueWasQuoted)
	default:
		return c.Source
	}
}

func quoteIfNeeded(value string, wasQuoted bool) string {
	if !wasQuoted {
		return value
	}
	return "'" + strings.ReplaceAll(value, "'", "\\'") + "'"
}

// clauseFromExpr decomposes e into a Clause. Field/Comparator/Value are a
// best-effort structural breakdown for display and editing; Source always
// holds the exact formatted text so the clause reconstructs losslessly
// regardless of how well the decomposition succeeded.
func clauseFromExpr(e *opql.Expression) *Clause {
	src := opql.FormatExpr(e)
	c := &Clause{ID: uuid.NewString(), Source: src, Confidence: 1.0}

	switch e.Kind {
	case opql.KindBinary:
		if field, ok := identPath(e.Left); ok {
			c.Field = field
			c.Comparator = e.Op
			c.Value, c.ValueWasQuoted = literalText(e.Right)
			return c
		}

	case opql.KindUnary:
		if e.UnaryOp == opql.UnaryNot {
			inner := clauseFromExpr(e.Operand)
			c.Field = inner.Field
			c.Comparator = "NOT " + inner.Comparator
			c.Value = inner.Value
			c.ValueWasQuoted = inner.ValueWasQuoted
			return c
		}

	case opql.KindBetween:
		if field, ok := identPath(e.BetweenValue); ok {
			c.Field = field
			c.Comparator = "BETWEEN"
			if e.Negated {
				c.Comparator = "NOT BETWEEN"
			}
			c.Value = opql.FormatExpr(e.Lower) + " AND " + opql.FormatExpr(e.Upper)
			return c
		}

	case opql.KindIn:
		if field, ok := identPath(e.InValue); ok {
			c.Field = field
			c.Comparator = "IN"
			if e.Negated {
				c.Comparator = "NOT IN"
			}
			parts := make([]string, len(e.Options))
			for i, o := range e.Options {
				parts[i] = opql.FormatExpr(o)
			}
			c.Value = strings.Join(parts, ", ")
			return c
		}

	case opql.KindHistory:
		c.Field = e.Field
		c.Comparator = e.Verb
		if e.Negated {
			c.Comparator = e.Verb + " NOT"
		}
		if e.CompValue != nil {
			c.Value, c.ValueWasQuoted = literalText(e.CompValue)
		}
		return c

	case opql.KindFunction:
		c.Field = ""
		c.Comparator = "FUNCTION"
		c.Value = src
		return c

	case opql.KindTemporal:
		if field, ok := identPath(e.TemporalBase); ok {
			c.Field = field
			c.Comparator = "DURING"
			c.Value = opql.FormatExpr(e.RangeStart) + " AND " + opql.FormatExpr(e.RangeEnd)
			return c
		}
	}

	c.Comparator = "EXPR"
	c.Value = src
	return c
}

func identPath(e *opql.Expression) (string, bool) {
	if e == nil || e.Kind != opql.KindIdentifier {
		return "", false
	}
	if len(e.Path) == 0 {
		return e.Name, true
	}
	return e.Name + "." + strings.Join(e.Path, "."), true
}

// literalText renders e's value text and reports whether it was a quoted
// string literal, used to populate Clause.Value/ValueWasQuoted.
func literalText(e *opql.Expression) (string, bool) {
	if e == nil {
		return "", false
	}
	if e.Kind == opql.KindLiteral && e.ValueType == opql.ValueString {
		if s, ok := e.Value.(string); ok {
			return s, true
		}
	}
	if e.Kind == opql.KindLiteral && e.ValueType == opql.ValueNumber {
		switch v := e.Value.(type) {
		case float64:
			return strconv.FormatFloat(v, 'g', -1, 64), false
		case int:
			return strconv.Itoa(v), false
		}
	}
	return opql.FormatExpr(e), false
}
