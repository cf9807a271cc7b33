package utils

import (
	"fmt"
	"math"
)

// GetMapField gets a field from a map[string]any and asserts its type.
func GetMapField[T any](m map[string]any, key string) (T, error) {
	var zero T
	value, exists := m[key]
	if !exists {
		return zero, fmt.Errorf("field '%s' not found in map", key)
	}
	if typedValue, ok := value.(T); ok {
		return typedValue, nil
	}
	return zero, fmt.Errorf("field '%s' expected type %T, got %T", key, zero, value)
}

// GetMapFieldOr gets a field from a map[string]any with a default value.
func GetMapFieldOr[T any](m map[string]any, key string, defaultValue T) T {
	if value, err := GetMapField[T](m, key); err == nil {
		return value
	}
	return defaultValue
}

// GetIntField reads an integer argument. JSON decoding yields float64, so
// integral floats and ints are both accepted. ok is false when the key is absent.
func GetIntField(m map[string]any, key string) (n int, ok bool, err error) {
	value, exists := m[key]
	if !exists || value == nil {
		return 0, false, nil
	}
	switch v := value.(type) {
	case int:
		return v, true, nil
	case int64:
		return int(v), true, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, true, fmt.Errorf("field '%s' must be an integer, got %v", key, v)
		}
		return int(v), true, nil
	default:
		return 0, true, fmt.Errorf("field '%s' expected integer, got %T", key, value)
	}
}
