package value

import "encoding/json"

// MarshalJSON renders v as the bare JSON value its Kind carries, not the Go
// struct shape, so a MaterializedRow serializes the way an API client
// expects (a string, a number, a boolean, null, an array, or an object)
// instead of exposing the Kind/Bool/Int/Float/Text/... union directly.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.Bool)
	case KindInt:
		return json.Marshal(v.Int)
	case KindFloat:
		return json.Marshal(v.Float)
	case KindText:
		return json.Marshal(v.Text)
	case KindDate:
		return json.Marshal(v.Date)
	case KindArray:
		return json.Marshal(v.Array)
	case KindObject:
		return json.Marshal(v.Object)
	default:
		return []byte("null"), nil
	}
}
