// Package runtime evaluates a parsed Statement's expressions against
// materialized rows, following the single-threaded, synchronous-except-
// for-Repository.List evaluation model.
package runtime

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/knesgoda/opql-toolkit/internal/opql"
	"github.com/knesgoda/opql-toolkit/internal/repository"
	"github.com/knesgoda/opql-toolkit/internal/value"
)

// RowContext is the environment an expression is evaluated against: the
// rows reachable by alias (the root row is keyed by its alias, additional
// aliases come from JOIN/RELATE), a computed-value cache, and the acting
// principal (for current_user()/me() resolution).
type RowContext struct {
	RootAlias string
	Rows      map[string]*repository.MaterializedRow
	Computed  map[string]value.Value
	Principal repository.Principal
	Now       time.Time
}

// Row returns the root row, the common case for unqualified field access.
func (c *RowContext) Row() *repository.MaterializedRow {
	return c.Rows[c.RootAlias]
}

// Evaluator walks Expression trees to produce typed values.
type Evaluator struct{}

// NewEvaluator returns a stateless Evaluator.
func NewEvaluator() *Evaluator { return &Evaluator{} }

// Eval evaluates e against ctx, checking ctx.Done() cooperatively so long
// evaluations (history scans) can be cancelled between steps.
func (ev *Evaluator) Eval(ctx context.Context, e *opql.Expression, rc *RowContext) (value.Value, error) {
	if err := ctx.Err(); err != nil {
		return value.Null(), cancelled()
	}
	switch e.Kind {
	case opql.KindLiteral:
		return literalValue(e), nil
	case opql.KindIdentifier:
		return ev.resolveIdentifier(e, rc), nil
	case opql.KindDuration:
		return value.Float(e.DurationValue * float64(opql.UnitMillis[e.DurationUnit])), nil
	case opql.KindUnary:
		return ev.evalUnary(ctx, e, rc)
	case opql.KindBinary:
		return ev.evalBinary(ctx, e, rc)
	case opql.KindBetween:
		return ev.evalBetween(ctx, e, rc)
	case opql.KindIn:
		return ev.evalIn(ctx, e, rc)
	case opql.KindFunction:
		return ev.evalFunction(ctx, e, rc)
	case opql.KindHistory:
		return ev.evalHistory(e, rc)
	case opql.KindTemporal:
		return ev.Eval(ctx, e.TemporalBase, rc)
	case opql.KindDateMath:
		// Expressions reaching the evaluator should already be rewritten by
		// internal/datemath; treat an unresolved one as its literal base.
		return ev.Eval(ctx, e.Base, rc)
	}
	return value.Null(), nil
}

func literalValue(e *opql.Expression) value.Value {
	switch e.ValueType {
	case opql.ValueNull:
		return value.Null()
	case opql.ValueBoolean:
		b, _ := e.Value.(bool)
		return value.Bool(b)
	case opql.ValueNumber:
		f, _ := e.Value.(float64)
		return value.Float(f)
	case opql.ValueString:
		s, _ := e.Value.(string)
		return value.Text(s)
	default:
		return value.Null()
	}
}

func (ev *Evaluator) resolveIdentifier(e *opql.Expression, rc *RowContext) value.Value {
	name := e.Name
	path := e.Path

	if row, ok := rc.Rows[name]; ok && len(path) > 0 {
		return fieldValue(row, strings.Join(path, "."))
	}

	fullPath := append([]string{name}, path...)
	field := strings.Join(fullPath, ".")
	if row := rc.Row(); row != nil {
		if v, ok := lookupDotted(row.Values, field); ok {
			return v
		}
	}
	if v, ok := rc.Computed[field]; ok {
		return v
	}
	return value.Null()
}

func fieldValue(row *repository.MaterializedRow, field string) value.Value {
	if row == nil {
		return value.Null()
	}
	if v, ok := lookupDotted(row.Values, field); ok {
		return v
	}
	return value.Null()
}

func lookupDotted(values map[string]value.Value, field string) (value.Value, bool) {
	if v, ok := values[field]; ok {
		return v, true
	}
	segments := strings.Split(field, ".")
	if len(segments) == 1 {
		return value.Null(), false
	}
	cur, ok := values[segments[0]]
	if !ok {
		return value.Null(), false
	}
	for _, seg := range segments[1:] {
		if cur.Kind != value.KindObject {
			return value.Null(), false
		}
		next, ok := cur.Object[seg]
		if !ok {
			return value.Null(), false
		}
		cur = next
	}
	return cur, true
}

func (ev *Evaluator) evalUnary(ctx context.Context, e *opql.Expression, rc *RowContext) (value.Value, error) {
	operand, err := ev.Eval(ctx, e.Operand, rc)
	if err != nil {
		return value.Null(), err
	}
	switch e.UnaryOp {
	case opql.UnaryNot:
		return value.Bool(!truthy(operand)), nil
	case opql.UnaryNeg:
		f, _ := operand.AsNumber()
		return value.Float(-f), nil
	default:
		return value.Null(), nil
	}
}

func (ev *Evaluator) evalBinary(ctx context.Context, e *opql.Expression, rc *RowContext) (value.Value, error) {
	switch e.Op {
	case "AND":
		left, err := ev.Eval(ctx, e.Left, rc)
		if err != nil {
			return value.Null(), err
		}
		if !truthy(left) {
			return value.Bool(false), nil
		}
		right, err := ev.Eval(ctx, e.Right, rc)
		if err != nil {
			return value.Null(), err
		}
		return value.Bool(truthy(right)), nil
	case "OR":
		left, err := ev.Eval(ctx, e.Left, rc)
		if err != nil {
			return value.Null(), err
		}
		if truthy(left) {
			return value.Bool(true), nil
		}
		right, err := ev.Eval(ctx, e.Right, rc)
		if err != nil {
			return value.Null(), err
		}
		return value.Bool(truthy(right)), nil
	}

	left, err := ev.Eval(ctx, e.Left, rc)
	if err != nil {
		return value.Null(), err
	}
	right, err := ev.Eval(ctx, e.Right, rc)
	if err != nil {
		return value.Null(), err
	}
	return compareOp(e.Op, left, right), nil
}

func compareOp(op string, left, right value.Value) value.Value {
	switch op {
	case "=", "::":
		return value.Bool(value.CompareValues(left, right) == 0)
	case "!=", "<>":
		return value.Bool(value.CompareValues(left, right) != 0)
	case "<":
		return value.Bool(value.CompareValues(left, right) < 0)
	case "<=":
		return value.Bool(value.CompareValues(left, right) <= 0)
	case ">":
		return value.Bool(value.CompareValues(left, right) > 0)
	case ">=":
		return value.Bool(value.CompareValues(left, right) >= 0)
	case "~", "MATCH":
		return value.Bool(containsFold(asString(left), asString(right)))
	case "!~":
		return value.Bool(!containsFold(asString(left), asString(right)))
	case "LIKE":
		return value.Bool(likeMatch(asString(left), asString(right), true))
	case "ILIKE":
		return value.Bool(likeMatch(asString(left), asString(right), false))
	case "CONTAINS":
		return value.Bool(containsValue(left, right))
	default:
		return value.Bool(false)
	}
}

func asString(v value.Value) string {
	if s, ok := v.AsText(); ok {
		return s
	}
	return v.String()
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// likeMatch implements SQL-style LIKE/ILIKE where % is a wildcard matching
// any run of characters; caseSensitive controls LIKE vs ILIKE semantics.
func likeMatch(text, pattern string, caseSensitive bool) bool {
	if !caseSensitive {
		text = strings.ToLower(text)
		pattern = strings.ToLower(pattern)
	}
	parts := strings.Split(pattern, "%")
	if len(parts) == 1 {
		return text == pattern
	}
	pos := 0
	for i, part := range parts {
		if part == "" {
			continue
		}
		idx := strings.Index(text[pos:], part)
		if idx == -1 {
			return false
		}
		if i == 0 && idx != 0 {
			return false
		}
		pos += idx + len(part)
	}
	if last := parts[len(parts)-1]; last != "" && !strings.HasSuffix(text, last) {
		return false
	}
	return true
}

func containsValue(container, target value.Value) bool {
	switch container.Kind {
	case value.KindArray:
		for _, el := range container.Array {
			if el.Equal(target) {
				return true
			}
		}
		return false
	case value.KindText:
		return containsFold(container.Text, asString(target))
	default:
		return false
	}
}

func truthy(v value.Value) bool {
	switch v.Kind {
	case value.KindNull:
		return false
	case value.KindBool:
		return v.Bool
	case value.KindInt:
		return v.Int != 0
	case value.KindFloat:
		return v.Float != 0
	case value.KindText:
		return v.Text != ""
	case value.KindArray:
		return len(v.Array) > 0
	default:
		return true
	}
}

func (ev *Evaluator) evalBetween(ctx context.Context, e *opql.Expression, rc *RowContext) (value.Value, error) {
	target, err := ev.Eval(ctx, e.BetweenValue, rc)
	if err != nil {
		return value.Null(), err
	}
	lower, err := ev.Eval(ctx, e.Lower, rc)
	if err != nil {
		return value.Null(), err
	}
	upper, err := ev.Eval(ctx, e.Upper, rc)
	if err != nil {
		return value.Null(), err
	}
	match := value.CompareValues(target, lower) >= 0 && value.CompareValues(target, upper) <= 0
	if e.Negated {
		match = !match
	}
	return value.Bool(match), nil
}

func (ev *Evaluator) evalIn(ctx context.Context, e *opql.Expression, rc *RowContext) (value.Value, error) {
	target, err := ev.Eval(ctx, e.InValue, rc)
	if err != nil {
		return value.Null(), err
	}
	found := false
	for _, opt := range e.Options {
		optVal, err := ev.Eval(ctx, opt, rc)
		if err != nil {
			return value.Null(), err
		}
		if value.CompareValues(target, optVal) == 0 {
			found = true
			break
		}
	}
	if e.Negated {
		found = !found
	}
	return value.Bool(found), nil
}

func (ev *Evaluator) evalFunction(ctx context.Context, e *opql.Expression, rc *RowContext) (value.Value, error) {
	name := strings.ToLower(e.FuncName)
	args := make([]value.Value, len(e.Args))
	for i, a := range e.Args {
		v, err := ev.Eval(ctx, a, rc)
		if err != nil {
			return value.Null(), err
		}
		args[i] = v
	}

	switch name {
	case "current_user", "me":
		return value.Text(rc.Principal.UserID), nil
	case "now":
		return value.Date(rc.Now), nil
	case "contains":
		if len(args) < 2 {
			return value.Bool(false), nil
		}
		matched := false
		for _, needle := range args[1:] {
			if containsValue(args[0], needle) {
				matched = true
				break
			}
		}
		return value.Bool(matched), nil
	case "match":
		if len(args) < 2 {
			return value.Bool(false), nil
		}
		return value.Bool(containsFold(asString(args[0]), asString(args[1]))), nil
	case "array":
		return value.Array(args...), nil
	case "changed_by", "changed_after", "changed_before", "changed_during":
		// The first argument names the field; pass its name rather than the
		// row's current value for it.
		if len(e.Args) > 0 && e.Args[0].Kind == opql.KindIdentifier {
			args[0] = value.Text(strings.Join(append([]string{e.Args[0].Name}, e.Args[0].Path...), "."))
		}
		return ev.evalChangedFunction(name, args, rc)
	}

	key := formatFunctionKey(e.FuncName, e.Args)
	if v, ok := rc.Computed[key]; ok {
		return v, nil
	}
	return value.Null(), nil
}

func formatFunctionKey(name string, args []*opql.Expression) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = exprKeyText(a)
	}
	return name + "(" + strings.Join(parts, ",") + ")"
}

func exprKeyText(e *opql.Expression) string {
	switch e.Kind {
	case opql.KindIdentifier:
		return strings.Join(append([]string{e.Name}, e.Path...), ".")
	case opql.KindLiteral:
		if s, ok := e.Value.(string); ok {
			return s
		}
		return strconv.FormatFloat(e.DurationValue, 'f', -1, 64)
	default:
		return ""
	}
}

// evalChangedFunction implements the JQL-compiler lowering of WAS/CHANGED
// qualifiers to plain conjunct function predicates: changed_by(field,
// value), changed_after(field, value), changed_before(field, value),
// changed_during(field, start, end).
func (ev *Evaluator) evalChangedFunction(name string, args []value.Value, rc *RowContext) (value.Value, error) {
	if len(args) == 0 {
		return value.Bool(false), nil
	}
	field, _ := args[0].AsText()
	row := rc.Row()
	if row == nil || row.History == nil {
		return value.Bool(false), nil
	}
	for _, event := range row.History.Events {
		touches := false
		for _, change := range event.Changes {
			if change.Field == field {
				touches = true
				break
			}
		}
		if !touches {
			continue
		}
		switch name {
		case "changed_by":
			if len(args) > 1 && strings.EqualFold(event.Actor, asString(args[1])) {
				return value.Bool(true), nil
			}
		case "changed_after":
			if len(args) > 1 {
				if t, ok := args[1].AsText(); ok {
					if ts, ok := parseHistoryTime(t); ok && event.At.After(ts) {
						return value.Bool(true), nil
					}
				}
			}
		case "changed_before":
			if len(args) > 1 {
				if t, ok := args[1].AsText(); ok {
					if ts, ok := parseHistoryTime(t); ok && event.At.Before(ts) {
						return value.Bool(true), nil
					}
				}
			}
		case "changed_during":
			if len(args) > 2 {
				start, sok := args[1].AsText()
				end, eok := args[2].AsText()
				if sok && eok {
					ts, ok1 := parseHistoryTime(start)
					te, ok2 := parseHistoryTime(end)
					if ok1 && ok2 && !event.At.Before(ts) && !event.At.After(te) {
						return value.Bool(true), nil
					}
				}
			}
		}
	}
	return value.Bool(false), nil
}
