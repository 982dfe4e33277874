package contracts

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// AsNumber converts any Go numeric value (including json.Number) to float64.
// Booleans and numeric strings are not numbers.
func AsNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// AsList returns the elements of a slice or array value.
func AsList(value any) ([]any, bool) {
	if items, ok := value.([]any); ok {
		return items, true
	}
	if value == nil {
		return nil, false
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Kind() == reflect.Slice && rv.IsNil() {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

// AsObject returns value as a string-keyed map. Maps with non-string keys are
// rejected.
func AsObject(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		if v == nil {
			return nil, false
		}
		return v, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map || rv.IsNil() || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// TypeName names the JSON shape of a value for error messages.
func TypeName(value any) string {
	if value == nil {
		return "null"
	}
	if _, ok := value.(string); ok {
		return "string"
	}
	if _, ok := value.(bool); ok {
		return "boolean"
	}
	if _, ok := AsNumber(value); ok {
		return "number"
	}
	if _, ok := AsList(value); ok {
		return "array"
	}
	if _, ok := AsObject(value); ok {
		return "object"
	}
	return fmt.Sprintf("%T", value)
}

// Clone deep-copies a JSON-like document. Nested maps and slices are copied;
// scalars are shared.
func Clone(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return Clone(v)
	case []any:
		if v == nil {
			return v
		}
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	}
	return value
}

func isAbsent(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
