package event

import (
	"strconv"
	"strings"
)

// Resolve walks a dotted path through the object fields and returns the value
// at the end of it. Array indices are not supported. A missing field, a null
// value, or a path that descends through a non-mapping all yield ok=false;
// resolution never fails with an error.
func (e *Event) Resolve(path string) (any, bool) {
	var cur any = e.fields
	for _, name := range strings.Split(path, ".") {
		m, isMap := cur.(map[string]any)
		if !isMap {
			return nil, false
		}
		next, present := m[name]
		if !present || next == nil {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// ResolveString resolves a path and renders the value as a string. JSON
// numbers keep their shortest decimal form so an id of 143 reads "143", not
// "143.000000".
func (e *Event) ResolveString(path string) (string, bool) {
	v, ok := e.Resolve(path)
	if !ok {
		return "", false
	}
	return Stringify(v), true
}

// Stringify renders a resolved scalar the way rule authors expect to compare
// against it. Non-scalar values render as empty strings; property rules over
// mappings are a configuration mistake and fail closed downstream.
func Stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
