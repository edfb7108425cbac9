// Package datemath resolves OPQL DateMath expressions and bare now() calls
// into literal ISO-8601 timestamps under a declared policy, recording an
// audit trail of the policies it applied.
package datemath

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/knesgoda/opql-toolkit/internal/opql"
)

const isoMillisLayout = "2006-01-02T15:04:05.000Z"

// DatePolicy controls how now() and DateMath offsets are resolved.
// Now, when set, pins "now" to a fixed instant (for deterministic tests);
// a nil Now falls back to time.Now(). Timezone is an IANA name used only
// for FloorToDay; an empty Timezone means UTC.
type DatePolicy struct {
	Now        *time.Time
	Timezone   string
	FloorToDay bool
}

func (p DatePolicy) resolveNow() time.Time {
	if p.Now != nil {
		return p.Now.UTC()
	}
	return time.Now().UTC()
}

func (p DatePolicy) location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (p DatePolicy) tzLabel() string {
	if p.Timezone == "" {
		return "tz=UTC"
	}
	return "tz=" + p.Timezone
}

func (p DatePolicy) floorTag() string {
	if p.FloorToDay {
		return "floor,"
	}
	return ""
}

func floorToDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// Rewriter rewrites an AST under a fixed DatePolicy, accumulating an audit
// trail of every now()/date-math resolution it performs. A Rewriter is
// single-use: construct one per rewrite pass.
type Rewriter struct {
	Policy  DatePolicy
	Applied []string
}

// New constructs a Rewriter for policy.
func New(policy DatePolicy) *Rewriter {
	return &Rewriter{Policy: policy}
}

// RewriteStatement rewrites every expression a statement holds, mirroring
// opql.NormalizeStatement's traversal.
func (r *Rewriter) RewriteStatement(stmt *opql.Statement) *opql.Statement {
	if stmt == nil {
		return nil
	}
	out := *stmt

	if stmt.Joins != nil {
		joins := make([]opql.Join, len(stmt.Joins))
		for i, j := range stmt.Joins {
			nj := j
			nj.Condition = r.Rewrite(j.Condition)
			joins[i] = nj
		}
		out.Joins = joins
	}

	out.Where = r.Rewrite(stmt.Where)
	out.Having = r.Rewrite(stmt.Having)
	out.GroupBy = r.rewriteList(stmt.GroupBy)
	out.OrderBy = r.rewriteOrderTerms(stmt.OrderBy)
	out.StableBy = r.rewriteOrderTerms(stmt.StableBy)

	if stmt.Aggregates != nil {
		aggs := make([]opql.Aggregate, len(stmt.Aggregates))
		for i, a := range stmt.Aggregates {
			na := a
			na.Arg = r.Rewrite(a.Arg)
			aggs[i] = na
		}
		out.Aggregates = aggs
	}

	if stmt.Assignments != nil {
		assigns := make([]opql.Assignment, len(stmt.Assignments))
		for i, a := range stmt.Assignments {
			na := a
			na.Value = r.Rewrite(a.Value)
			assigns[i] = na
		}
		out.Assignments = assigns
	}

	if stmt.ExplainTarget != nil {
		out.ExplainTarget = r.RewriteStatement(stmt.ExplainTarget)
	}

	return &out
}

// Rewrite rewrites a single expression tree, replacing every DateMath node
// and every bare now() call with a literal ISO-8601 string. Other node
// kinds recurse structurally; the input tree is never mutated.
func (r *Rewriter) Rewrite(e *opql.Expression) *opql.Expression {
	if e == nil {
		return nil
	}

	switch e.Kind {
	case opql.KindDateMath:
		base, err := r.resolveBase(e.Base)
		if err != nil {
			out := *e
			out.Base = r.Rewrite(e.Base)
			out.Offset = r.Rewrite(e.Offset)
			return &out
		}
		millis := int64(e.Offset.DurationValue * float64(opql.UnitMillis[e.Offset.DurationUnit]))
		var result time.Time
		if e.MathOp == "-" {
			result = base.Add(-time.Duration(millis) * time.Millisecond)
		} else {
			result = base.Add(time.Duration(millis) * time.Millisecond)
		}
		r.Applied = append(r.Applied, fmt.Sprintf("date_math[%s%s]:%s%s",
			r.Policy.floorTag(), r.Policy.tzLabel(), e.MathOp, formatOffsetLabel(e.Offset.DurationValue, e.Offset.DurationUnit)))
		return opql.Lit(result.UTC().Format(isoMillisLayout), opql.ValueString)

	case opql.KindFunction:
		if strings.EqualFold(e.FuncName, "NOW") && len(e.Args) == 0 {
			t := r.resolveNowFloored()
			return opql.Lit(t.UTC().Format(isoMillisLayout), opql.ValueString)
		}
		out := *e
		out.Args = r.rewriteList(e.Args)
		return &out

	case opql.KindIdentifier, opql.KindLiteral, opql.KindDuration:
		out := *e
		return &out

	case opql.KindUnary:
		out := *e
		out.Operand = r.Rewrite(e.Operand)
		return &out

	case opql.KindBinary:
		out := *e
		out.Left = r.Rewrite(e.Left)
		out.Right = r.Rewrite(e.Right)
		return &out

	case opql.KindBetween:
		out := *e
		out.BetweenValue = r.Rewrite(e.BetweenValue)
		out.Lower = r.Rewrite(e.Lower)
		out.Upper = r.Rewrite(e.Upper)
		return &out

	case opql.KindIn:
		out := *e
		out.InValue = r.Rewrite(e.InValue)
		out.Options = r.rewriteList(e.Options)
		return &out

	case opql.KindHistory:
		out := *e
		out.CompValue = r.Rewrite(e.CompValue)
		out.CompOpts = r.rewriteList(e.CompOpts)
		out.Qualifiers = r.rewriteQualifiers(e.Qualifiers)
		return &out

	case opql.KindTemporal:
		out := *e
		out.TemporalBase = r.Rewrite(e.TemporalBase)
		out.RangeStart = r.Rewrite(e.RangeStart)
		out.RangeEnd = r.Rewrite(e.RangeEnd)
		return &out
	}

	out := *e
	return &out
}

func (r *Rewriter) rewriteList(list []*opql.Expression) []*opql.Expression {
	if list == nil {
		return nil
	}
	out := make([]*opql.Expression, len(list))
	for i, e := range list {
		out[i] = r.Rewrite(e)
	}
	return out
}

func (r *Rewriter) rewriteOrderTerms(terms []opql.OrderTerm) []opql.OrderTerm {
	if terms == nil {
		return nil
	}
	out := make([]opql.OrderTerm, len(terms))
	for i, t := range terms {
		nt := t
		nt.Expr = r.Rewrite(t.Expr)
		out[i] = nt
	}
	return out
}

func (r *Rewriter) rewriteQualifiers(quals []opql.Qualifier) []opql.Qualifier {
	if quals == nil {
		return nil
	}
	out := make([]opql.Qualifier, len(quals))
	for i, q := range quals {
		nq := q
		nq.Value = r.Rewrite(q.Value)
		nq.End = r.Rewrite(q.End)
		nq.Options = r.rewriteList(q.Options)
		out[i] = nq
	}
	return out
}

// resolveNowFloored resolves "now" under the policy, applying FloorToDay
// and recording the "now[...]" audit label exactly once.
func (r *Rewriter) resolveNowFloored() time.Time {
	t := r.Policy.resolveNow()
	if r.Policy.FloorToDay {
		t = floorToDay(t, r.Policy.location())
	}
	r.Applied = append(r.Applied, fmt.Sprintf("now[%s%s]", r.Policy.floorTag(), r.Policy.tzLabel()))
	return t
}

// resolveBase resolves a DateMath base expression to an absolute instant:
// a bare now() call, a nested DateMath expression, or a literal ISO-8601 or
// date-only string.
func (r *Rewriter) resolveBase(base *opql.Expression) (time.Time, error) {
	if base == nil {
		return time.Time{}, fmt.Errorf("datemath: nil base")
	}
	switch base.Kind {
	case opql.KindFunction:
		if strings.EqualFold(base.FuncName, "NOW") && len(base.Args) == 0 {
			return r.resolveNowFloored(), nil
		}
		return time.Time{}, fmt.Errorf("datemath: unsupported base function %q", base.FuncName)

	case opql.KindDateMath:
		rewritten := r.Rewrite(base)
		return parseLiteralTime(rewritten)

	case opql.KindLiteral:
		return parseLiteralTime(base)
	}
	return time.Time{}, fmt.Errorf("datemath: unsupported base kind")
}

func parseLiteralTime(e *opql.Expression) (time.Time, error) {
	if e == nil || e.Kind != opql.KindLiteral {
		return time.Time{}, fmt.Errorf("datemath: expected literal, got non-literal base")
	}
	s, ok := e.Value.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("datemath: literal base is not a string")
	}
	for _, layout := range []string{isoMillisLayout, time.RFC3339, "2006-01-02T15:04:05Z", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("datemath: cannot parse %q as a timestamp", s)
}

func formatOffsetLabel(value float64, unit opql.DurationUnit) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10) + string(unit)
	}
	return strconv.FormatFloat(value, 'g', -1, 64) + string(unit)
}
