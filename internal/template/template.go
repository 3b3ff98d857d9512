// Package template provides template evaluation for dynamic value construction.
// It supports variable substitution using {{attr.value}} syntax with optional default values.
package template

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/afpipeline/runtime/internal/logger"
)

// Template syntax constants
const (
	// TemplatePrefix is the opening delimiter for template variables
	TemplatePrefix = "{{"
	// TemplateSuffix is the closing delimiter for template variables
	TemplateSuffix = "}}"
)

// Error messages for template evaluation
const (
	ErrMsgInvalidTemplateSyntax = "invalid template syntax"
	ErrMsgEmptyVariablePath     = "empty variable path"
)

// templateVarRegex matches {{path}} or {{path | default: "value"}}
// Group 1: variable path
// Group 2: optional default clause
// Group 3: the default value itself
var templateVarRegex = regexp.MustCompile(`\{\{\s*([^|}]+?)(\s*\|\s*default:\s*"([^"]*)")?\s*\}\}`)

var emptyBracesRegex = regexp.MustCompile(`\{\{\s*\}\}`)

// Variable represents a parsed template variable
type Variable struct {
	FullMatch    string // The full matched string including {{ }}
	Path         string // The variable path (e.g., "child.First")
	DefaultValue string // Default value if specified
	HasDefault   bool   // Whether a default value was specified
}

// Evaluator evaluates template strings against nested map data.
// It supports:
//   - Variable substitution: {{attr.value}}
//   - Nested field access: {{doc.tags.vendor}}
//   - Array indexing: {{children[0].value}}
//   - Default values: {{child.Middle | default: "-"}}
//
// Parsed variables are cached per template string. Evaluator is safe for
// concurrent use.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string][]Variable
}

// NewEvaluator creates a new template evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		cache: make(map[string][]Variable),
	}
}

// HasVariables checks if a string contains template variables.
func HasVariables(s string) bool {
	return strings.Contains(s, TemplatePrefix) && strings.Contains(s, TemplateSuffix)
}

// ParseVariables extracts all template variables from a template string.
func (e *Evaluator) ParseVariables(template string) []Variable {
	e.mu.RLock()
	cached, ok := e.cache[template]
	e.mu.RUnlock()
	if ok {
		return cached
	}

	matches := templateVarRegex.FindAllStringSubmatch(template, -1)
	variables := make([]Variable, 0, len(matches))
	for _, match := range matches {
		v := Variable{
			FullMatch: match[0],
			Path:      strings.TrimSpace(match[1]),
		}
		if match[2] != "" {
			v.DefaultValue = match[3]
			v.HasDefault = true
		}
		variables = append(variables, v)
	}

	e.mu.Lock()
	e.cache[template] = variables
	e.mu.Unlock()
	return variables
}

// Evaluate replaces every template variable with its value in data.
// Missing fields become the empty string unless a default is specified.
func (e *Evaluator) Evaluate(template string, data map[string]interface{}) string {
	if !HasVariables(template) {
		return template
	}
	variables := e.ParseVariables(template)
	if len(variables) == 0 {
		return template
	}

	result := template
	for _, v := range variables {
		result = strings.Replace(result, v.FullMatch, e.resolveVariable(v, data), 1)
	}
	return result
}

func (e *Evaluator) resolveVariable(v Variable, data map[string]interface{}) string {
	value, found := GetNestedValue(data, v.Path)
	if !found || value == nil {
		if v.HasDefault {
			return v.DefaultValue
		}
		logger.Debug("template variable missing, using empty string",
			slog.String("path", v.Path),
		)
		return ""
	}
	return ValueToString(value)
}

// GetNestedValue extracts a value from a nested object using dot notation.
// Supports array indexing with [n] syntax. Map keys are matched exactly
// first, then case-insensitively.
func GetNestedValue(obj map[string]interface{}, path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}

	current := interface{}(obj)
	for _, part := range strings.Split(path, ".") {
		key, index, hasIndex := parseArrayNotation(part)

		m, ok := current.(map[string]interface{})
		if !ok || m == nil {
			return nil, false
		}
		val, ok := lookupKey(m, key)
		if !ok {
			return nil, false
		}
		current = val

		if hasIndex {
			arr, ok := current.([]interface{})
			if !ok || index >= len(arr) {
				return nil, false
			}
			current = arr[index]
		}
	}
	return current, true
}

func lookupKey(m map[string]interface{}, key string) (interface{}, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// parseArrayNotation parses a path part for array indexing.
// E.g., "items[0]" returns ("items", 0, true)
func parseArrayNotation(part string) (string, int, bool) {
	idx := strings.Index(part, "[")
	if idx == -1 {
		return part, -1, false
	}
	endIdx := strings.Index(part, "]")
	if endIdx == -1 || endIdx < idx+1 || endIdx != len(part)-1 {
		return part, -1, false
	}
	var index int
	if _, err := fmt.Sscanf(part[idx+1:endIdx], "%d", &index); err != nil || index < 0 {
		return part, -1, false
	}
	return part[:idx], index, true
}

// ValueToString converts any value to its string representation.
func ValueToString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case bool:
		return fmt.Sprintf("%t", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ValidateSyntax validates that a template string has valid syntax.
// Returns an error if the syntax is invalid (e.g., unmatched braces).
func ValidateSyntax(template string) error {
	if template == "" {
		return nil
	}

	openCount := strings.Count(template, TemplatePrefix)
	closeCount := strings.Count(template, TemplateSuffix)
	if openCount != closeCount {
		return fmt.Errorf("%s: unmatched template delimiters (found %d '{{' and %d '}}')",
			ErrMsgInvalidTemplateSyntax, openCount, closeCount)
	}
	if openCount == 0 {
		return nil
	}

	if emptyBracesRegex.MatchString(template) {
		return fmt.Errorf("%s: %s", ErrMsgInvalidTemplateSyntax, ErrMsgEmptyVariablePath)
	}

	// "}}{{" has balanced counts but no valid pairing
	remainder := templateVarRegex.ReplaceAllString(template, "")
	if strings.Contains(remainder, TemplatePrefix) || strings.Contains(remainder, TemplateSuffix) {
		return fmt.Errorf("%s: template delimiters must form valid {{...}} expressions (stray '{{' or '}}' found)",
			ErrMsgInvalidTemplateSyntax)
	}
	return nil
}
