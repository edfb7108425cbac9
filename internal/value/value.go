// Package value defines the tagged value union the runtime and repository
// layers exchange, along with its total-ordering comparison.
package value

import (
	"fmt"
	"strings"
	"time"
)

// Kind discriminates the variant a Value carries.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindText
	KindDate
	KindArray
	KindObject
)

// Value is a tagged union: exactly one field beyond Kind is meaningful.
type Value struct {
	Kind   Kind
	Bool   bool
	Int    int64
	Float  float64
	Text   string
	Date   time.Time
	Array  []Value
	Object map[string]Value
}

func Null() Value                       { return Value{Kind: KindNull} }
func Bool(b bool) Value                 { return Value{Kind: KindBool, Bool: b} }
func Int(i int64) Value                 { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value             { return Value{Kind: KindFloat, Float: f} }
func Text(s string) Value               { return Value{Kind: KindText, Text: s} }
func Date(t time.Time) Value            { return Value{Kind: KindDate, Date: t} }
func Array(vs ...Value) Value           { return Value{Kind: KindArray, Array: vs} }
func Object(m map[string]Value) Value   { return Value{Kind: KindObject, Object: m} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

// AsNumber returns v's numeric value and whether v is numeric (Int or
// Float).
func (v Value) AsNumber() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindFloat:
		return v.Float, true
	}
	return 0, false
}

// AsText returns a textual rendering of v and whether v carries text at
// all (KindText; everything else returns ok=false so callers can choose
// their own fallback rendering).
func (v Value) AsText() (string, bool) {
	if v.Kind == KindText {
		return v.Text, true
	}
	return "", false
}

// String renders v for display/logging/comparison fallback.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindText:
		return v.Text
	case KindDate:
		return v.Date.UTC().Format(time.RFC3339Nano)
	case KindArray:
		parts := make([]string, len(v.Array))
		for i, e := range v.Array {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ",") + "]"
	case KindObject:
		return fmt.Sprintf("%v", v.Object)
	default:
		return ""
	}
}

// Equal reports strict structural equality, the first tier of
// CompareValues' total order.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindBool:
		return v.Bool == other.Bool
	case KindInt:
		return v.Int == other.Int
	case KindFloat:
		return v.Float == other.Float
	case KindText:
		return v.Text == other.Text
	case KindDate:
		return v.Date.Equal(other.Date)
	case KindArray:
		if len(v.Array) != len(other.Array) {
			return false
		}
		for i := range v.Array {
			if !v.Array[i].Equal(other.Array[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.Object) != len(other.Object) {
			return false
		}
		for k, a := range v.Object {
			b, ok := other.Object[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	}
	return false
}

func (v Value) asTime() (time.Time, bool) {
	if v.Kind == KindDate {
		return v.Date, true
	}
	if v.Kind != KindText {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000Z", "2006-01-02"} {
		if t, err := time.Parse(layout, v.Text); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// CompareValues implements the total ordering spec.md §4.9 requires:
// (a) strict equality wins; (b) null sorts before non-null; (c) numbers
// compare numerically; (d) ISO-8601-looking strings compare as timestamps
// when both sides parse; (e) otherwise a lowercase string compare.
func CompareValues(a, b Value) int {
	if a.Equal(b) {
		return 0
	}
	if a.IsNull() || b.IsNull() {
		if a.IsNull() && !b.IsNull() {
			return -1
		}
		if !a.IsNull() && b.IsNull() {
			return 1
		}
		return 0
	}
	if an, aok := a.AsNumber(); aok {
		if bn, bok := b.AsNumber(); bok {
			switch {
			case an < bn:
				return -1
			case an > bn:
				return 1
			default:
				return 0
			}
		}
	}
	if at, aok := a.asTime(); aok {
		if bt, bok := b.asTime(); bok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			default:
				return 0
			}
		}
	}
	as := strings.ToLower(a.String())
	bs := strings.ToLower(b.String())
	return strings.Compare(as, bs)
}
