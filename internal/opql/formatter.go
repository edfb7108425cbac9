package opql

import (
	"fmt"
	"strconv"
	"strings"
)

// Format serializes a normalized statement back to canonical OPQL text.
// Format(Parse(text)) need not equal text, but Parse(Format(Normalize(ast)))
// reproduces the same (normalized) tree — the round-trip law spec.md §8
// requires of the builder's reserialization path.
func Format(stmt *Statement) string {
	var b strings.Builder
	switch stmt.Kind {
	case StmtFind:
		b.WriteString("FIND ")
		if stmt.Distinct {
			b.WriteString("DISTINCT ")
		}
		b.WriteString(formatProjections(stmt.Projections))
	case StmtCount:
		b.WriteString("COUNT")
		if stmt.Distinct {
			b.WriteString(" DISTINCT")
		}
		if len(stmt.Projections) > 0 {
			b.WriteString(" ")
			b.WriteString(formatProjections(stmt.Projections))
		}
	case StmtAggregate:
		b.WriteString("AGGREGATE ")
		b.WriteString(formatAggregates(stmt.Aggregates))
	case StmtUpdate:
		b.WriteString("UPDATE ")
		b.WriteString(stmt.Source)
		if stmt.Alias != "" {
			b.WriteString(" AS ")
			b.WriteString(stmt.Alias)
		}
		b.WriteString(" SET ")
		b.WriteString(formatAssignments(stmt.Assignments))
		if stmt.Where != nil {
			b.WriteString(" WHERE ")
			b.WriteString(FormatExpr(stmt.Where))
		}
		if len(stmt.Returning) > 0 {
			b.WriteString(" RETURNING ")
			b.WriteString(formatProjections(stmt.Returning))
		}
		return b.String()
	case StmtExplain:
		b.WriteString("EXPLAIN ")
		if stmt.Verbose {
			b.WriteString("VERBOSE ")
		}
		b.WriteString(Format(stmt.ExplainTarget))
		return b.String()
	}

	b.WriteString(" FROM ")
	b.WriteString(stmt.Source)
	if stmt.Alias != "" {
		b.WriteString(" AS ")
		b.WriteString(stmt.Alias)
	}

	for _, j := range stmt.Joins {
		b.WriteString(" ")
		b.WriteString(formatJoinKind(j.Kind))
		b.WriteString(" JOIN ")
		b.WriteString(j.Source)
		if j.Alias != "" {
			b.WriteString(" AS ")
			b.WriteString(j.Alias)
		}
		b.WriteString(" ON ")
		b.WriteString(FormatExpr(j.Condition))
	}

	if len(stmt.Relations) > 0 {
		b.WriteString(" RELATE ")
		parts := make([]string, len(stmt.Relations))
		for i, r := range stmt.Relations {
			parts[i] = formatRelate(r)
		}
		b.WriteString(strings.Join(parts, ", "))
	}

	if stmt.Where != nil {
		b.WriteString(" WHERE ")
		b.WriteString(FormatExpr(stmt.Where))
	}

	if stmt.Kind == StmtAggregate {
		if len(stmt.GroupBy) > 0 {
			b.WriteString(" GROUP BY ")
			parts := make([]string, len(stmt.GroupBy))
			for i, e := range stmt.GroupBy {
				parts[i] = FormatExpr(e)
			}
			b.WriteString(strings.Join(parts, ", "))
		}
		if stmt.Having != nil {
			b.WriteString(" HAVING ")
			b.WriteString(FormatExpr(stmt.Having))
		}
	}

	if len(stmt.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(formatOrderTerms(stmt.OrderBy))
	}

	if stmt.Cursor != nil {
		b.WriteString(" CURSOR '")
		b.WriteString(*stmt.Cursor)
		b.WriteString("'")
	}
	if stmt.Limit != nil {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(*stmt.Limit))
	}
	if stmt.Offset != nil {
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(*stmt.Offset))
	}
	if stmt.Security != nil {
		b.WriteString(" SECURE")
	}

	return b.String()
}

func formatJoinKind(k JoinKind) string {
	switch k {
	case JoinLeft:
		return "LEFT"
	case JoinRight:
		return "RIGHT"
	case JoinFull:
		return "FULL"
	default:
		return "INNER"
	}
}

func formatRelate(r Relate) string {
	var b strings.Builder
	switch r.Direction {
	case RelateInbound:
		b.WriteString("INBOUND ")
	case RelateBidirectional:
		b.WriteString("BIDIRECTIONAL ")
	}
	b.WriteString(r.Name)
	if r.Depth != 0 {
		b.WriteString(" DEPTH ")
		b.WriteString(strconv.Itoa(r.Depth))
	}
	if r.Cap != 0 {
		b.WriteString(" CAP ")
		b.WriteString(strconv.Itoa(r.Cap))
	}
	return b.String()
}

func formatOrderTerms(terms []OrderTerm) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		var b strings.Builder
		b.WriteString(FormatExpr(t.Expr))
		if t.Direction == SortDesc {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
		switch t.Nulls {
		case NullsFirst:
			b.WriteString(" NULLS FIRST")
		case NullsLast:
			b.WriteString(" NULLS LAST")
		}
		parts[i] = b.String()
	}
	return strings.Join(parts, ", ")
}

func formatProjections(names []string) string {
	if len(names) == 1 && names[0] == "*" {
		return "*"
	}
	return strings.Join(names, ", ")
}

func formatAggregates(aggs []Aggregate) string {
	parts := make([]string, len(aggs))
	for i, a := range aggs {
		var b strings.Builder
		b.WriteString(a.Func)
		b.WriteString("(")
		b.WriteString(FormatExpr(a.Arg))
		b.WriteString(")")
		if a.Alias != "" {
			b.WriteString(" AS ")
			b.WriteString(a.Alias)
		}
		parts[i] = b.String()
	}
	return strings.Join(parts, ", ")
}

func formatAssignments(assigns []Assignment) string {
	parts := make([]string, len(assigns))
	for i, a := range assigns {
		parts[i] = fmt.Sprintf("%s = %s", a.Field, FormatExpr(a.Value))
	}
	return strings.Join(parts, ", ")
}

// FormatExpr serializes a single expression to canonical OPQL text.
func FormatExpr(e *Expression) string {
	if e == nil {
		return ""
	}
	switch e.Kind {
	case KindIdentifier:
		if e.Name == "*" {
			return "*"
		}
		if len(e.Path) == 0 {
			return e.Name
		}
		return e.Name + "." + strings.Join(e.Path, ".")

	case KindLiteral:
		return formatLiteral(e.Value, e.ValueType)

	case KindDuration:
		return formatDuration(e.DurationValue, e.DurationUnit)

	case KindDateMath:
		return fmt.Sprintf("%s %s %s", FormatExpr(e.Base), e.MathOp, FormatExpr(e.Offset))

	case KindUnary:
		if e.UnaryOp == UnaryNeg {
			return "-" + FormatExpr(e.Operand)
		}
		return "NOT " + FormatExpr(e.Operand)

	case KindBinary:
		if e.Right == nil {
			return fmt.Sprintf("%s %s", FormatExpr(e.Left), e.Op)
		}
		return fmt.Sprintf("%s %s %s", FormatExpr(e.Left), e.Op, FormatExpr(e.Right))

	case KindBetween:
		prefix := ""
		if e.Negated {
			prefix = "NOT "
		}
		return fmt.Sprintf("%s %sBETWEEN %s AND %s", FormatExpr(e.BetweenValue), prefix, FormatExpr(e.Lower), FormatExpr(e.Upper))

	case KindIn:
		prefix := ""
		if e.Negated {
			prefix = "NOT "
		}
		return fmt.Sprintf("%s %sIN (%s)", FormatExpr(e.InValue), prefix, formatExprList(e.Options))

	case KindFunction:
		return fmt.Sprintf("%s(%s)", e.FuncName, formatExprList(e.Args))

	case KindHistory:
		return formatHistory(e)

	case KindTemporal:
		return fmt.Sprintf("%s DURING (%s AND %s)", FormatExpr(e.TemporalBase), FormatExpr(e.RangeStart), FormatExpr(e.RangeEnd))
	}
	return ""
}

func formatExprList(list []*Expression) string {
	parts := make([]string, len(list))
	for i, e := range list {
		parts[i] = FormatExpr(e)
	}
	return strings.Join(parts, ", ")
}

func formatLiteral(v interface{}, vt ValueType) string {
	switch vt {
	case ValueString:
		s, _ := v.(string)
		return "'" + strings.ReplaceAll(s, "'", "\\'") + "'"
	case ValueNumber:
		f, _ := v.(float64)
		if f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10)
		}
		return strconv.FormatFloat(f, 'g', -1, 64)
	case ValueBoolean:
		b, _ := v.(bool)
		if b {
			return "TRUE"
		}
		return "FALSE"
	default:
		return "NULL"
	}
}

func formatDuration(value float64, unit DurationUnit) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10) + string(unit)
	}
	return strconv.FormatFloat(value, 'g', -1, 64) + string(unit)
}

func formatHistory(e *Expression) string {
	var b strings.Builder
	b.WriteString(e.Field)
	b.WriteString(" ")
	b.WriteString(e.Verb)
	if e.Verb == "WAS" {
		if e.Negated {
			b.WriteString(" NOT")
		}
		switch e.CompOp {
		case "EMPTY":
			b.WriteString(" EMPTY")
		case "NULL":
			b.WriteString(" NULL")
		case "IN":
			b.WriteString(" IN (")
			b.WriteString(formatExprList(e.CompOpts))
			b.WriteString(")")
		default:
			b.WriteString(" ")
			b.WriteString(FormatExpr(e.CompValue))
		}
	}
	for _, q := range e.Qualifiers {
		b.WriteString(" ")
		b.WriteString(formatQualifier(q))
	}
	return b.String()
}

func formatQualifier(q Qualifier) string {
	switch q.Kind {
	case "DURING":
		return fmt.Sprintf("DURING (%s AND %s)", FormatExpr(q.Value), FormatExpr(q.End))
	case "TO", "FROM":
		var b strings.Builder
		b.WriteString(q.Kind)
		switch q.Op {
		case "EMPTY":
			b.WriteString(" EMPTY")
		case "NULL":
			b.WriteString(" NULL")
		case "IN":
			b.WriteString(" IN (")
			b.WriteString(formatExprList(q.Options))
			b.WriteString(")")
		case "NOT IN":
			b.WriteString(" NOT IN (")
			b.WriteString(formatExprList(q.Options))
			b.WriteString(")")
		case "!=":
			b.WriteString(" != ")
			b.WriteString(FormatExpr(q.Value))
		default:
			b.WriteString(" ")
			b.WriteString(FormatExpr(q.Value))
		}
		return b.String()
	default:
		return fmt.Sprintf("%s %s", q.Kind, FormatExpr(q.Value))
	}
}
