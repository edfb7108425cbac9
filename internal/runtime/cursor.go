package runtime

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/knesgoda/opql-toolkit/internal/value"
)

// cursorPayload is the JSON shape encoded/decoded at the page boundary:
// {"id": "<entityId>", "order": [sortKey0, sortKey1, ...]}. order's length
// equals |orderBy| + |stableOrder| + 1, the trailing 1 being id itself.
type cursorPayload struct {
	ID    string        `json:"id"`
	Order []interface{} `json:"order"`
}

// EncodeCursor renders a row's sort key vector (already including the
// trailing identifier) into the base64-url-safe cursor format.
func EncodeCursor(id string, order []value.Value) (string, error) {
	rendered := make([]interface{}, len(order))
	for i, v := range order {
		rendered[i] = renderJSON(v)
	}
	payload := cursorPayload{ID: id, Order: rendered}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("runtime: encode cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

// DecodeCursor reverses EncodeCursor, returning the row id and raw JSON
// order vector elements (still untyped, since the caller's sort resolvers
// know how to re-coerce each position).
func DecodeCursor(cursor string) (string, []interface{}, error) {
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return "", nil, fmt.Errorf("runtime: decode cursor: %w", err)
	}
	var payload cursorPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", nil, fmt.Errorf("runtime: decode cursor: %w", err)
	}
	return payload.ID, payload.Order, nil
}

func renderJSON(v value.Value) interface{} {
	switch v.Kind {
	case value.KindNull:
		return nil
	case value.KindBool:
		return v.Bool
	case value.KindInt:
		return v.Int
	case value.KindFloat:
		return v.Float
	case value.KindText:
		return v.Text
	case value.KindDate:
		return v.Date.UTC().Format("2006-01-02T15:04:05.000Z")
	default:
		return v.String()
	}
}

// ValueFromJSON coerces a decoded JSON cursor element back into a Value,
// used when comparing a candidate row's order vector against a decoded
// cursor's order vector.
func ValueFromJSON(raw interface{}) value.Value {
	switch v := raw.(type) {
	case nil:
		return value.Null()
	case bool:
		return value.Bool(v)
	case float64:
		return value.Float(v)
	case string:
		return value.Text(v)
	default:
		return value.Null()
	}
}

// CompareOrderVectors compares two order vectors element-by-element,
// returning the first non-zero CompareValues result (or 0 if every element
// ties, meaning the rows are indistinguishable by sort key).
func CompareOrderVectors(a, b []value.Value) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := value.CompareValues(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}
