package handler

import (
	"fmt"
	"strings"

	"github.com/afpipeline/runtime/internal/errhandling"
)

func configError(handlerType, format string, args ...interface{}) error {
	return errhandling.NewInvalidConfiguration(handlerType, fmt.Sprintf(format, args...), nil)
}

func getString(m map[string]interface{}, key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}

func getBool(m map[string]interface{}, key string) (bool, bool) {
	v, ok := m[key].(bool)
	return v, ok
}

// getInt extracts an int, accepting JSON float64 and TOML int64.
func getInt(m map[string]interface{}, key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func getStringSlice(m map[string]interface{}, key string) ([]string, bool) {
	switch v := m[key].(type) {
	case []string:
		return v, true
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	case string:
		return []string{v}, true
	}
	return nil, false
}

func equalFoldAny(s string, options ...string) bool {
	for _, o := range options {
		if strings.EqualFold(s, o) {
			return true
		}
	}
	return false
}
