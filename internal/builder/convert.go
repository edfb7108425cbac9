package builder

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/knesgoda/opql-toolkit/internal/opql"
)

var statementKindNames = map[opql.StatementKind]string{
	opql.StmtFind:      "FIND",
	opql.StmtCount:     "COUNT",
	opql.StmtAggregate: "AGGREGATE",
	opql.StmtUpdate:    "UPDATE",
	opql.StmtExplain:   "EXPLAIN",
}

var joinKindNames = map[opql.JoinKind]string{
	opql.JoinInner: "INNER",
	opql.JoinLeft:  "LEFT",
	opql.JoinRight: "RIGHT",
	opql.JoinFull:  "FULL",
}

var relateDirectionNames = map[opql.RelateDirection]string{
	opql.RelateOutbound:      "OUTBOUND",
	opql.RelateInbound:       "INBOUND",
	opql.RelateBidirectional: "BIDIRECTIONAL",
}

// OpqlToQuery parses text, extracting and isolating any ":name" parameters
// before parsing and restoring them afterward, and maps the resulting
// Statement onto a BuilderQuery. A BuilderError on parse failure is
// recoverable: the returned BuilderQuery comes from the fallback clause
// extractor instead, and the error is still returned so callers can log it.
func OpqlToQuery(text string) (*BuilderQuery, error) {
	substituted, params, err := extractParameters(text)
	if err != nil {
		return fallbackQuery(text), err
	}

	stmt, err := opql.Parse(substituted)
	if err != nil {
		return fallbackQuery(text), &BuilderError{Kind: ErrUnknownComparator, Text: text}
	}

	return statementToQuery(stmt, params), nil
}

func statementToQuery(stmt *opql.Statement, params []paramRef) *BuilderQuery {
	q := &BuilderQuery{
		Statement:   statementKindNames[stmt.Kind],
		Source:      stmt.Source,
		Alias:       stmt.Alias,
		Distinct:    stmt.Distinct,
		Projections: append([]string(nil), stmt.Projections...),
		Returning:   append([]string(nil), stmt.Returning...),
	}

	for _, j := range stmt.Joins {
		q.Joins = append(q.Joins, JoinSpec{
			Kind:      joinKindNames[j.Kind],
			Source:    j.Source,
			Alias:     j.Alias,
			Condition: restoreExprText(j.Condition, params),
		})
	}

	for _, r := range stmt.Relations {
		spec := RelateSpec{Name: r.Name, Direction: relateDirectionNames[r.Direction]}
		if r.Depth != 0 {
			spec.Depth = restoreIntParam(r.Depth, params)
		}
		if r.Cap != 0 {
			spec.Cap = restoreIntParam(r.Cap, params)
		}
		q.Relations = append(q.Relations, spec)
	}

	q.Where = restoreTree(toTree(stmt.Where), params)
	q.Having = restoreTree(toTree(stmt.Having), params)

	for _, g := range stmt.GroupBy {
		q.GroupBy = append(q.GroupBy, restoreExprText(g, params))
	}

	for _, a := range stmt.Aggregates {
		q.Aggregates = append(q.Aggregates, AggregateSpec{
			Func:  a.Func,
			Arg:   restoreExprText(a.Arg, params),
			Alias: a.Alias,
		})
	}

	for _, o := range stmt.OrderBy {
		dir := "ASC"
		if o.Direction == opql.SortDesc {
			dir = "DESC"
		}
		nulls := ""
		switch o.Nulls {
		case opql.NullsFirst:
			nulls = "FIRST"
		case opql.NullsLast:
			nulls = "LAST"
		}
		q.OrderBy = append(q.OrderBy, OrderSpec{
			Field:     restoreExprText(o.Expr, params),
			Direction: dir,
			Nulls:     nulls,
		})
	}

	if stmt.Limit != nil {
		v := restoreIntParam(*stmt.Limit, params)
		q.Limit = &v
	}
	if stmt.Offset != nil {
		v := restoreIntParam(*stmt.Offset, params)
		q.Offset = &v
	}
	q.Cursor = stmt.Cursor

	return q
}

// restoreExprText formats e and restores any parameter sentinel it
// contains back to its ":name" spelling.
func restoreExprText(e *opql.Expression, params []paramRef) string {
	if e == nil {
		return ""
	}
	text := opql.FormatExpr(e)
	return restoreParamsInText(text, params)
}

func restoreIntParam(n int, params []paramRef) string {
	if name, ok := restoreNumericValue(int64(n), params); ok {
		return name
	}
	return strconv.Itoa(n)
}

// restoreParamsInText substitutes every occurrence of a parameter sentinel
// appearing in formatted OPQL text back to ":name".
func restoreParamsInText(text string, params []paramRef) string {
	for i, p := range params {
		if p.Numeric {
			text = strings.ReplaceAll(text, strconv.FormatInt(numericSentinelValue(i), 10), ":"+p.Name)
			continue
		}
		text = strings.ReplaceAll(text, "'"+stringSentinel(i)+"'", ":"+p.Name)
		text = strings.ReplaceAll(text, stringSentinel(i), ":"+p.Name)
	}
	return text
}

func restoreTree(n Node, params []paramRef) *Group {
	if n == nil {
		return nil
	}
	restoreNode(n, params)
	if g, ok := n.(*Group); ok {
		return g
	}
	return &Group{ID: uuid.NewString(), Operator: GroupAnd, Children: []Node{n}}
}

func restoreNode(n Node, params []paramRef) {
	switch v := n.(type) {
	case *Group:
		for _, c := range v.Children {
			restoreNode(c, params)
		}
	case *Clause:
		v.Source = restoreParamsInText(v.Source, params)
		if restored, ok := restoreStringValue(v.Value, params); ok {
			v.Value = restored
			v.ValueWasQuoted = false
		} else if num, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
			if restored, ok := restoreNumericValue(num, params); ok {
				v.Value = restored
			}
		}
	}
}

// QueryToOpql reserializes a BuilderQuery as normalized OPQL text: the
// Statement verb, projections/aggregates, FROM/JOIN/RELATE, WHERE/HAVING
// groups (parenthesized whenever a group holds two or more children),
// GROUP BY, ORDER BY, LIMIT/OFFSET/CURSOR, RETURNING.
func QueryToOpql(q *BuilderQuery) string {
	var b strings.Builder

	switch q.Statement {
	case "COUNT":
		b.WriteString("COUNT")
		if q.Distinct {
			b.WriteString(" DISTINCT")
		}
		if len(q.Projections) > 0 {
			b.WriteString(" " + strings.Join(q.Projections, ", "))
		}
	case "AGGREGATE":
		b.WriteString("AGGREGATE ")
		b.WriteString(formatAggregateSpecs(q.Aggregates))
	case "UPDATE":
		b.WriteString("UPDATE")
	case "EXPLAIN":
		b.WriteString("EXPLAIN ")
	default:
		b.WriteString("FIND ")
		if q.Distinct {
			b.WriteString("DISTINCT ")
		}
		if len(q.Projections) == 0 {
			b.WriteString("*")
		} else {
			b.WriteString(strings.Join(q.Projections, ", "))
		}
	}

	if q.Source != "" {
		b.WriteString(" FROM ")
		b.WriteString(q.Source)
		if q.Alias != "" {
			b.WriteString(" AS " + q.Alias)
		}
	}

	for _, j := range q.Joins {
		b.WriteString(" ")
		if j.Kind != "" && j.Kind != "INNER" {
			b.WriteString(j.Kind + " ")
		}
		b.WriteString("JOIN " + j.Source)
		if j.Alias != "" {
			b.WriteString(" " + j.Alias)
		}
		if j.Condition != "" {
			b.WriteString(" ON " + j.Condition)
		}
	}

	for _, r := range q.Relations {
		b.WriteString(" RELATE " + r.Name)
		if r.Direction != "" && r.Direction != "OUTBOUND" {
			b.WriteString(" " + r.Direction)
		}
		if r.Depth != "" {
			b.WriteString(" DEPTH " + r.Depth)
		}
		if r.Cap != "" {
			b.WriteString(" CAP " + r.Cap)
		}
	}

	if q.Where != nil && len(q.Where.Children) > 0 {
		b.WriteString(" WHERE " + groupText(q.Where, true))
	}

	if len(q.GroupBy) > 0 {
		b.WriteString(" GROUP BY " + strings.Join(q.GroupBy, ", "))
	}
	if q.Having != nil && len(q.Having.Children) > 0 {
		b.WriteString(" HAVING " + groupText(q.Having, true))
	}

	if len(q.OrderBy) > 0 {
		parts := make([]string, len(q.OrderBy))
		for i, o := range q.OrderBy {
			term := o.Field + " " + o.Direction
			if o.Nulls != "" {
				term += " NULLS " + o.Nulls
			}
			parts[i] = term
		}
		b.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}

	if q.Limit != nil {
		b.WriteString(" LIMIT " + *q.Limit)
	}
	if q.Offset != nil {
		b.WriteString(" OFFSET " + *q.Offset)
	}
	if q.Cursor != nil {
		b.WriteString(" CURSOR '" + strings.ReplaceAll(*q.Cursor, "'", "\\'") + "'")
	}
	if len(q.Returning) > 0 {
		b.WriteString(" RETURNING " + strings.Join(q.Returning, ", "))
	}

	return strings.TrimSpace(b.String())
}

func formatAggregateSpecs(aggs []AggregateSpec) string {
	parts := make([]string, len(aggs))
	for i, a := range aggs {
		text := a.Func + "(" + a.Arg + ")"
		if a.Alias != "" {
			text += " AS " + a.Alias
		}
		parts[i] = text
	}
	return strings.Join(parts, ", ")
}

// groupText renders a Group as OPQL text, parenthesizing any group (top
// level included, per topLevel being false only for nested recursion) with
// two or more children.
func groupText(g *Group, topLevel bool) string {
	if g == nil || len(g.Children) == 0 {
		return ""
	}
	parts := make([]string, len(g.Children))
	for i, c := range g.Children {
		parts[i] = nodeText(c)
	}
	text := strings.Join(parts, " "+string(g.Operator)+" ")
	if len(g.Children) >= 2 {
		return "(" + text + ")"
	}
	return text
}

func nodeText(n Node) string {
	switch v := n.(type) {
	case *Group:
		return groupText(v, false)
	case *Clause:
		return clauseText(v)
	}
	return ""
}
