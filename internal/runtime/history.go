package runtime

import (
	"strings"
	"time"

	"github.com/knesgoda/opql-toolkit/internal/opql"
	"github.com/knesgoda/opql-toolkit/internal/repository"
	"github.com/knesgoda/opql-toolkit/internal/value"
)

// segment is one interval during which a field held a fixed value.
type segment struct {
	value     value.Value
	changedAt time.Time
	start     time.Time
	end       time.Time // zero value means unbounded (+inf)
	actor     string    // who set value on this segment; "" if it's the initial, untracked state
}

// buildSegments reconstructs the timeline of a field's value from its
// initial state and its ordered change events.
func buildSegments(row *repository.MaterializedRow, field string) []segment {
	if row == nil || row.History == nil {
		return nil
	}
	cur := row.History.Initial[field]
	curActor := ""
	segStart := time.Time{}
	var segs []segment
	for _, ev := range row.History.Events {
		for _, ch := range ev.Changes {
			if ch.Field != field {
				continue
			}
			segs = append(segs, segment{value: cur, changedAt: ev.At, start: segStart, end: ev.At, actor: curActor})
			if ch.To != nil {
				cur = *ch.To
			} else {
				cur = value.Null()
			}
			curActor = ev.Actor
			segStart = ev.At
		}
	}
	segs = append(segs, segment{value: cur, changedAt: segStart, start: segStart, end: time.Time{}, actor: curActor})
	return segs
}

func (ev *Evaluator) evalHistory(e *opql.Expression, rc *RowContext) (value.Value, error) {
	row := rc.Row()
	if row == nil {
		return value.Bool(false), nil
	}
	switch e.Verb {
	case "WAS":
		return value.Bool(ev.evalWas(e, row)), nil
	case "CHANGED":
		return value.Bool(ev.evalChanged(e, row)), nil
	default:
		return value.Bool(false), nil
	}
}

func (ev *Evaluator) evalWas(e *opql.Expression, row *repository.MaterializedRow) bool {
	segs := buildSegments(row, e.Field)
	segs = filterSegmentsByQualifiers(segs, e.Qualifiers)
	if temporal := qualifierTemporal(e.Qualifiers); temporal != nil {
		segs = filterSegmentsByRange(segs, temporal.start, temporal.end)
	}

	matched := false
	for _, seg := range segs {
		if compValueMatches(e.CompOp, e.CompValue, e.CompOpts, seg.value) {
			matched = true
			break
		}
	}
	if e.Negated {
		matched = !matched
	}
	return matched
}

func (ev *Evaluator) evalChanged(e *opql.Expression, row *repository.MaterializedRow) bool {
	if row.History == nil {
		return false
	}
	for _, event := range row.History.Events {
		if !qualifierTimeMatches(e.Qualifiers, event.At) {
			continue
		}
		if !qualifierActorMatches(e.Qualifiers, event.Actor) {
			continue
		}
		for _, change := range event.Changes {
			if change.Field != e.Field {
				continue
			}
			if matchesToFrom(e.Qualifiers, change) {
				return true
			}
		}
	}
	return false
}

// matchesToFrom reports whether change satisfies every TO/FROM qualifier
// present; a History predicate with no TO/FROM qualifier matches any
// change that touches the field.
func matchesToFrom(qualifiers []opql.Qualifier, change repository.HistoryChange) bool {
	for _, q := range qualifiers {
		if q.Kind != "TO" && q.Kind != "FROM" {
			continue
		}
		var side *value.Value
		if q.Kind == "TO" {
			side = change.To
		} else {
			side = change.From
		}
		if !qualifierSideMatches(q, side) {
			return false
		}
	}
	return true
}

func qualifierSideMatches(q opql.Qualifier, side *value.Value) bool {
	switch q.Op {
	case "EMPTY", "NULL":
		match := side == nil || side.IsNull()
		if q.Negated {
			return !match
		}
		return match
	case "IN", "NOT IN":
		found := false
		if side != nil {
			for _, opt := range q.Options {
				optVal := literalValue(opt)
				if value.CompareValues(*side, optVal) == 0 {
					found = true
					break
				}
			}
		}
		if q.Op == "NOT IN" {
			return !found
		}
		return found
	case "=", "!=":
		if side == nil {
			return q.Op == "!="
		}
		target := literalValue(q.Value)
		eq := value.CompareValues(*side, target) == 0
		if q.Op == "!=" {
			return !eq
		}
		return eq
	default:
		return true
	}
}

func compValueMatches(op string, compValue *opql.Expression, compOpts []*opql.Expression, actual value.Value) bool {
	switch op {
	case "EMPTY", "NULL":
		return actual.IsNull()
	case "IN":
		for _, opt := range compOpts {
			if value.CompareValues(actual, literalValue(opt)) == 0 {
				return true
			}
		}
		return false
	default:
		if compValue == nil {
			return false
		}
		return value.CompareValues(actual, literalValue(compValue)) == 0
	}
}

type temporalRange struct {
	start time.Time
	end   time.Time
}

func qualifierTemporal(qualifiers []opql.Qualifier) *temporalRange {
	for _, q := range qualifiers {
		if q.Kind != "DURING" {
			continue
		}
		r := &temporalRange{}
		if t, ok := literalTime(q.Value); ok {
			r.start = t
		}
		if t, ok := literalTime(q.End); ok {
			r.end = t
		}
		return r
	}
	return nil
}

func filterSegmentsByRange(segs []segment, start, end time.Time) []segment {
	var out []segment
	for _, s := range segs {
		if intersects(s.start, s.end, start, end) {
			out = append(out, s)
		}
	}
	return out
}

// intersects reports whether [aStart,aEnd) overlaps [bStart,bEnd); a zero
// time.Time on either end of either interval means unbounded.
func intersects(aStart, aEnd, bStart, bEnd time.Time) bool {
	if !aEnd.IsZero() && !bStart.IsZero() && aEnd.Before(bStart) {
		return false
	}
	if !bEnd.IsZero() && !aStart.IsZero() && bEnd.Before(aStart) {
		return false
	}
	return true
}

func filterSegmentsByQualifiers(segs []segment, qualifiers []opql.Qualifier) []segment {
	out := segs
	for _, q := range qualifiers {
		switch q.Kind {
		case "BY":
			out = filterByActorValue(out, q.Value)
		case "AFTER":
			out = filterSegments(out, func(s segment) bool {
				t, ok := literalTime(q.Value)
				return ok && s.changedAt.After(t)
			})
		case "BEFORE":
			out = filterSegments(out, func(s segment) bool {
				t, ok := literalTime(q.Value)
				return ok && s.changedAt.Before(t)
			})
		case "ON":
			out = filterSegments(out, func(s segment) bool {
				t, ok := literalTime(q.Value)
				return ok && sameDay(s.changedAt, t)
			})
		}
	}
	return out
}

// filterByActorValue keeps only segments set by the qualifier's actor,
// mirroring qualifierActorMatches' case-insensitive comparison for the
// sibling CHANGED path.
func filterByActorValue(segs []segment, qualifierValue *opql.Expression) []segment {
	actor, ok := literalText(qualifierValue)
	if !ok {
		return segs
	}
	return filterSegments(segs, func(s segment) bool {
		return strings.EqualFold(s.actor, actor)
	})
}

func filterSegments(segs []segment, keep func(segment) bool) []segment {
	var out []segment
	for _, s := range segs {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

func qualifierTimeMatches(qualifiers []opql.Qualifier, at time.Time) bool {
	for _, q := range qualifiers {
		switch q.Kind {
		case "AFTER":
			if t, ok := literalTime(q.Value); ok && !at.After(t) {
				return false
			}
		case "BEFORE":
			if t, ok := literalTime(q.Value); ok && !at.Before(t) {
				return false
			}
		case "ON":
			if t, ok := literalTime(q.Value); ok && !sameDay(at, t) {
				return false
			}
		case "DURING":
			start, sok := literalTime(q.Value)
			end, eok := literalTime(q.End)
			if sok && at.Before(start) {
				return false
			}
			if eok && at.After(end) {
				return false
			}
		}
	}
	return true
}

func qualifierActorMatches(qualifiers []opql.Qualifier, actor string) bool {
	for _, q := range qualifiers {
		if q.Kind != "BY" {
			continue
		}
		if s, ok := literalText(q.Value); ok && !strings.EqualFold(actor, s) {
			return false
		}
	}
	return true
}

func literalTime(e *opql.Expression) (time.Time, bool) {
	if e == nil {
		return time.Time{}, false
	}
	s, ok := literalText(e)
	if !ok {
		return time.Time{}, false
	}
	return parseHistoryTime(s)
}

// parseHistoryTime tries every timestamp layout a history qualifier or
// changed_* function argument may carry, including a bare date with no time
// component, since the JQL compiler lowers CHANGED ... AFTER <date> into
// changed_after(field, '<date>') with whatever literal the user wrote.
func parseHistoryTime(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000Z", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func literalText(e *opql.Expression) (string, bool) {
	if e == nil || e.Kind != opql.KindLiteral {
		return "", false
	}
	s, ok := e.Value.(string)
	return s, ok
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
