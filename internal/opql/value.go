package opql

// ValueType tags the dynamic type carried by a Literal expression or a
// runtime Value.
type ValueType int

const (
	ValueString ValueType = iota
	ValueNumber
	ValueBoolean
	ValueNull
)

func (t ValueType) String() string {
	switch t {
	case ValueString:
		return "string"
	case ValueNumber:
		return "number"
	case ValueBoolean:
		return "boolean"
	case ValueNull:
		return "null"
	default:
		return "unknown"
	}
}

// DurationUnit enumerates the fixed set of duration suffixes the lexer and
// date-math rewriter understand.
type DurationUnit string

const (
	UnitSeconds DurationUnit = "s"
	UnitMinutes DurationUnit = "m"
	UnitHours   DurationUnit = "h"
	UnitDays    DurationUnit = "d"
	UnitWeeks   DurationUnit = "w"
	UnitMonths  DurationUnit = "mo"
	UnitYears   DurationUnit = "y"
)

// UnitMillis maps a DurationUnit to its millisecond multiplier under the
// fixed calendar approximation spec.md §4.7 specifies (30-day months,
// 365-day years).
var UnitMillis = map[DurationUnit]int64{
	UnitSeconds: 1000,
	UnitMinutes: 60 * 1000,
	UnitHours:   3600 * 1000,
	UnitDays:    86400 * 1000,
	UnitWeeks:   7 * 86400 * 1000,
	UnitMonths:  30 * 86400 * 1000,
	UnitYears:   365 * 86400 * 1000,
}
