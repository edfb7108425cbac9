package opql

import "strings"

// fieldAliases maps a deprecated or alternate field spelling to its
// canonical name. Lookups are case-insensitive; the map key is lowercase.
var fieldAliases = map[string]string{
	"resolved":    "completed",
	"resolved_at": "completed_at",
	"due":         "due_at",
	"summary":     "title",
}

// functionAliases maps a deprecated or alternate function spelling to its
// canonical name. Lookups are case-insensitive; the map key is lowercase.
var functionAliases = map[string]string{
	"currentuser": "ME",
	"me":          "ME",
}

func canonicalField(name string) string {
	if canon, ok := fieldAliases[strings.ToLower(name)]; ok {
		return canon
	}
	return name
}

func canonicalFunction(name string) string {
	if canon, ok := functionAliases[strings.ToLower(name)]; ok {
		return canon
	}
	return name
}

// Normalize rewrites an expression tree, applying the fixed field/function
// alias tables. It produces a new tree rather than mutating the input, and
// is idempotent: Normalize(Normalize(e)) has the same shape as Normalize(e).
func Normalize(e *Expression) *Expression {
	if e == nil {
		return nil
	}
	out := *e
	switch e.Kind {
	case KindIdentifier:
		out.Name = canonicalField(e.Name)
		if len(e.Path) > 0 {
			path := make([]string, len(e.Path))
			copy(path, e.Path)
			out.Path = path
		}
	case KindLiteral, KindDuration:
		// leaves, nothing to rewrite beyond copying
	case KindDateMath:
		out.Base = Normalize(e.Base)
		out.Offset = Normalize(e.Offset)
	case KindUnary:
		out.Operand = Normalize(e.Operand)
	case KindBinary:
		out.Left = Normalize(e.Left)
		out.Right = Normalize(e.Right)
	case KindBetween:
		out.BetweenValue = Normalize(e.BetweenValue)
		out.Lower = Normalize(e.Lower)
		out.Upper = Normalize(e.Upper)
	case KindIn:
		out.InValue = Normalize(e.InValue)
		out.Options = normalizeList(e.Options)
	case KindFunction:
		out.FuncName = canonicalFunction(e.FuncName)
		out.Args = normalizeList(e.Args)
	case KindHistory:
		out.Field = canonicalField(e.Field)
		out.CompValue = Normalize(e.CompValue)
		out.CompOpts = normalizeList(e.CompOpts)
		out.Qualifiers = normalizeQualifiers(e.Qualifiers)
	case KindTemporal:
		out.TemporalBase = Normalize(e.TemporalBase)
		out.RangeStart = Normalize(e.RangeStart)
		out.RangeEnd = Normalize(e.RangeEnd)
	}
	return &out
}

func normalizeList(list []*Expression) []*Expression {
	if list == nil {
		return nil
	}
	out := make([]*Expression, len(list))
	for i, e := range list {
		out[i] = Normalize(e)
	}
	return out
}

func normalizeQualifiers(quals []Qualifier) []Qualifier {
	if quals == nil {
		return nil
	}
	out := make([]Qualifier, len(quals))
	for i, q := range quals {
		nq := q
		nq.Value = Normalize(q.Value)
		nq.End = Normalize(q.End)
		nq.Options = normalizeList(q.Options)
		out[i] = nq
	}
	return out
}

// NormalizeStatement applies Normalize to every expression held by a
// statement, including nested EXPLAIN targets.
func NormalizeStatement(stmt *Statement) *Statement {
	if stmt == nil {
		return nil
	}
	out := *stmt
	out.Source = canonicalField(stmt.Source)

	if stmt.Joins != nil {
		joins := make([]Join, len(stmt.Joins))
		for i, j := range stmt.Joins {
			nj := j
			nj.Condition = Normalize(j.Condition)
			joins[i] = nj
		}
		out.Joins = joins
	}

	out.Where = Normalize(stmt.Where)
	out.Having = Normalize(stmt.Having)
	out.GroupBy = normalizeList(stmt.GroupBy)

	if stmt.OrderBy != nil {
		terms := make([]OrderTerm, len(stmt.OrderBy))
		for i, t := range stmt.OrderBy {
			nt := t
			nt.Expr = Normalize(t.Expr)
			terms[i] = nt
		}
		out.OrderBy = terms
	}
	if stmt.StableBy != nil {
		terms := make([]OrderTerm, len(stmt.StableBy))
		for i, t := range stmt.StableBy {
			nt := t
			nt.Expr = Normalize(t.Expr)
			terms[i] = nt
		}
		out.StableBy = terms
	}

	if stmt.Aggregates != nil {
		aggs := make([]Aggregate, len(stmt.Aggregates))
		for i, a := range stmt.Aggregates {
			na := a
			na.Arg = Normalize(a.Arg)
			aggs[i] = na
		}
		out.Aggregates = aggs
	}

	if stmt.Assignments != nil {
		assigns := make([]Assignment, len(stmt.Assignments))
		for i, a := range stmt.Assignments {
			na := a
			na.Field = canonicalField(a.Field)
			na.Value = Normalize(a.Value)
			assigns[i] = na
		}
		out.Assignments = assigns
	}

	if stmt.ExplainTarget != nil {
		out.ExplainTarget = NormalizeStatement(stmt.ExplainTarget)
	}

	return &out
}
