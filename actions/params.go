package actions

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// String returns the trimmed string under key, or "" when absent.
func String(params map[string]any, key string) string {
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return typed.String()
	default:
		return strings.TrimSpace(fmt.Sprint(typed))
	}
}

func RequireString(params map[string]any, key string) (string, error) {
	value := String(params, key)
	if value == "" {
		return "", actionValidationError(key, key+" is required")
	}
	return value, nil
}

// Int accepts numbers and numeric strings. Values outside [1, max] fall back
// to fallback; max <= 0 disables the upper bound.
func Int(params map[string]any, key string, fallback int, max int) int {
	value, ok := params[key]
	if !ok || value == nil {
		return fallback
	}
	var parsed int
	switch typed := value.(type) {
	case int:
		parsed = typed
	case int64:
		parsed = int(typed)
	case float64:
		parsed = int(typed)
	case json.Number:
		n, err := typed.Int64()
		if err != nil {
			return fallback
		}
		parsed = int(n)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return fallback
		}
		parsed = n
	default:
		return fallback
	}
	if parsed < 1 {
		return fallback
	}
	if max > 0 && parsed > max {
		return max
	}
	return parsed
}

func Bool(params map[string]any, key string, fallback bool) bool {
	value, ok := params[key]
	if !ok || value == nil {
		return fallback
	}
	switch typed := value.(type) {
	case bool:
		return typed
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(typed))
		if err != nil {
			return fallback
		}
		return parsed
	default:
		return fallback
	}
}
