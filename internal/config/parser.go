package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// stringParser parses configuration content of one format.
type stringParser func(content string) *ParseResult

// parseFile reads filepath and parses it with parse.
func parseFile(filepath, format string, parse stringParser) *ParseResult {
	result := &ParseResult{FilePath: filepath, Format: format}

	content, err := os.ReadFile(filepath)
	if err != nil {
		result.Errors = append(result.Errors, ParseError{
			Path:    filepath,
			Message: fmt.Sprintf("failed to read file: %v", err),
			Type:    ErrorTypeIO,
		})
		return result
	}

	parsed := parse(string(content))
	result.Data = parsed.Data
	result.Errors = parsed.Errors
	for i := range result.Errors {
		if result.Errors[i].Path == "" {
			result.Errors[i].Path = filepath
		}
	}
	return result
}

// ParseJSONFile parses a JSON configuration file from the given path.
func ParseJSONFile(filepath string) *ParseResult {
	return parseFile(filepath, FormatJSON, ParseJSONString)
}

// ParseYAMLFile parses a YAML configuration file from the given path.
func ParseYAMLFile(filepath string) *ParseResult {
	return parseFile(filepath, FormatYAML, ParseYAMLString)
}

// ParseTOMLFile parses a TOML configuration file from the given path.
func ParseTOMLFile(filepath string) *ParseResult {
	return parseFile(filepath, FormatTOML, ParseTOMLString)
}

// ParseJSONString parses JSON content from a string.
func ParseJSONString(content string) *ParseResult {
	result := &ParseResult{Format: FormatJSON}

	content = strings.TrimSpace(content)
	if content == "" {
		result.Errors = append(result.Errors, ParseError{
			Message: "empty content: expected JSON object",
			Type:    ErrorTypeSyntax,
		})
		return result
	}

	var data interface{}
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		result.Errors = append(result.Errors, parseJSONError(err, content))
		return result
	}
	return toObject(result, data, "JSON object")
}

// ParseYAMLString parses YAML content from a string.
func ParseYAMLString(content string) *ParseResult {
	result := &ParseResult{Format: FormatYAML}

	if strings.TrimSpace(content) == "" {
		result.Errors = append(result.Errors, ParseError{
			Message: "empty content: expected YAML document",
			Type:    ErrorTypeSyntax,
		})
		return result
	}

	var data interface{}
	if err := yaml.Unmarshal([]byte(content), &data); err != nil {
		result.Errors = append(result.Errors, parseYAMLError(err))
		return result
	}
	return toObject(result, data, "YAML mapping")
}

// ParseTOMLString parses TOML content from a string.
func ParseTOMLString(content string) *ParseResult {
	result := &ParseResult{Format: FormatTOML}

	if strings.TrimSpace(content) == "" {
		result.Errors = append(result.Errors, ParseError{
			Message: "empty content: expected TOML document",
			Type:    ErrorTypeSyntax,
		})
		return result
	}

	var data map[string]interface{}
	if err := toml.Unmarshal([]byte(content), &data); err != nil {
		result.Errors = append(result.Errors, parseTOMLError(err))
		return result
	}
	return toObject(result, data, "TOML table")
}

// toObject stores data in result when it is an object. Values are
// normalized to the types encoding/json produces so that schema validation
// and conversion see the same shapes whatever the source format.
func toObject(result *ParseResult, data interface{}, expected string) *ParseResult {
	if data == nil {
		return result
	}
	m, ok := normalize(data).(map[string]interface{})
	if !ok {
		result.Errors = append(result.Errors, ParseError{
			Message: fmt.Sprintf("invalid configuration: expected %s, got %T", expected, data),
			Type:    ErrorTypeFormat,
		})
		return result
	}
	result.Data = m
	return result
}

func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, child := range t {
			t[k] = normalize(child)
		}
		return t
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, child := range t {
			m[fmt.Sprint(k)] = normalize(child)
		}
		return m
	case []interface{}:
		for i, child := range t {
			t[i] = normalize(child)
		}
		return t
	case []map[string]interface{}:
		out := make([]interface{}, len(t))
		for i, child := range t {
			out[i] = normalize(child)
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case time.Time:
		return t.Format(time.RFC3339)
	case toml.LocalDate, toml.LocalTime, toml.LocalDateTime:
		return fmt.Sprint(t)
	default:
		return v
	}
}

// parseJSONError extracts detailed error information from a JSON unmarshaling error.
func parseJSONError(err error, content string) ParseError {
	parseErr := ParseError{Message: err.Error(), Type: ErrorTypeSyntax}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		parseErr.Offset = syntaxErr.Offset
		parseErr.Line, parseErr.Column = offsetToLineColumn(content, syntaxErr.Offset)
		parseErr.Message = fmt.Sprintf("JSON syntax error at offset %d: %s", syntaxErr.Offset, syntaxErr.Error())
	}
	return parseErr
}

// parseYAMLError extracts detailed error information from a YAML unmarshaling error.
func parseYAMLError(err error) ParseError {
	parseErr := ParseError{Message: err.Error(), Type: ErrorTypeSyntax}

	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) {
		parseErr.Message = fmt.Sprintf("YAML type error: %s", strings.Join(typeErr.Errors, "; "))
	}

	// yaml.v3 reports "yaml: line X: ..."
	var line int
	if _, scanErr := fmt.Sscanf(err.Error(), "yaml: line %d:", &line); scanErr == nil {
		parseErr.Line = line
	}
	return parseErr
}

// parseTOMLError extracts the position of a TOML decode error.
func parseTOMLError(err error) ParseError {
	parseErr := ParseError{Message: err.Error(), Type: ErrorTypeSyntax}

	var decodeErr *toml.DecodeError
	if errors.As(err, &decodeErr) {
		parseErr.Line, parseErr.Column = decodeErr.Position()
		parseErr.Message = fmt.Sprintf("TOML syntax error: %s", decodeErr.Error())
	}
	return parseErr
}

// offsetToLineColumn converts a byte offset to line and column numbers (1-based).
func offsetToLineColumn(content string, offset int64) (line, column int) {
	if offset <= 0 {
		return 1, 1
	}

	line = 1
	column = 1
	for i := int64(0); i < offset && i < int64(len(content)); i++ {
		if content[i] == '\n' {
			line++
			column = 1
		} else {
			column++
		}
	}
	return line, column
}

// ParseConfig parses and validates a configuration file.
// The format is detected from the file extension, then from content.
func ParseConfig(filepath string) *Result {
	result := &Result{FilePath: filepath}

	var parsed *ParseResult
	switch DetectFormat(filepath) {
	case FormatJSON:
		parsed = ParseJSONFile(filepath)
	case FormatYAML:
		parsed = ParseYAMLFile(filepath)
	case FormatTOML:
		parsed = ParseTOMLFile(filepath)
	default:
		content, err := os.ReadFile(filepath)
		if err != nil {
			result.ParseErrors = append(result.ParseErrors, ParseError{
				Path:    filepath,
				Message: fmt.Sprintf("failed to read file: %v", err),
				Type:    ErrorTypeIO,
			})
			return result
		}
		format := DetectContentFormat(string(content))
		if format == "" {
			result.ParseErrors = append(result.ParseErrors, ParseError{
				Path:    filepath,
				Message: "unable to detect configuration format: not valid JSON, YAML or TOML",
				Type:    ErrorTypeFormat,
			})
			return result
		}
		parsed = parserFor(format)(string(content))
		parsed.FilePath = filepath
	}

	return finish(result, parsed)
}

// ParseConfigString parses and validates configuration content from a string.
// If format is empty, it is detected from content.
func ParseConfigString(content string, format string) *Result {
	result := &Result{Format: format}

	if format == "" {
		format = DetectContentFormat(content)
		if format == "" {
			result.ParseErrors = append(result.ParseErrors, ParseError{
				Message: "unable to detect configuration format: not valid JSON, YAML or TOML",
				Type:    ErrorTypeFormat,
			})
			return result
		}
		result.Format = format
	}

	parse := parserFor(format)
	if parse == nil {
		result.ParseErrors = append(result.ParseErrors, ParseError{
			Message: fmt.Sprintf("unsupported format: %s", format),
			Type:    ErrorTypeFormat,
		})
		return result
	}
	return finish(result, parse(content))
}

// finish transfers parse results and validates the parsed data.
func finish(result *Result, parsed *ParseResult) *Result {
	result.Data = parsed.Data
	result.ParseErrors = parsed.Errors
	result.Format = parsed.Format
	if !parsed.IsValid() {
		return result
	}
	result.ValidationErrors = ValidateConfig(parsed.Data).Errors
	return result
}

func parserFor(format string) stringParser {
	switch format {
	case FormatJSON:
		return ParseJSONString
	case FormatYAML:
		return ParseYAMLString
	case FormatTOML:
		return ParseTOMLString
	default:
		return nil
	}
}

// DetectFormat detects the configuration format from file extension.
// Returns "json", "yaml", "toml", or empty string if format cannot be detected.
func DetectFormat(filepath string) string {
	switch strings.ToLower(path.Ext(filepath)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return ""
	}
}

// DetectContentFormat detects the configuration format from content.
// TOML is tried first since a table header also looks like a JSON array.
func DetectContentFormat(content string) string {
	switch {
	case IsTOML(content):
		return FormatTOML
	case IsJSON(content):
		return FormatJSON
	case IsYAML(content):
		return FormatYAML
	default:
		return ""
	}
}

// IsJSON checks if the content appears to be JSON format.
func IsJSON(content string) bool {
	content = strings.TrimSpace(content)
	if content == "" {
		return false
	}
	return strings.HasPrefix(content, "{") || strings.HasPrefix(content, "[")
}

// IsYAML checks if the content appears to be valid YAML.
// JSON is also valid YAML, so this may return true for JSON content.
func IsYAML(content string) bool {
	if strings.TrimSpace(content) == "" {
		return false
	}
	var data interface{}
	err := yaml.Unmarshal([]byte(content), &data)
	return err == nil && data != nil
}

// IsTOML checks if the content is a TOML document with at least one table
// header. Flat key = value documents are left to the YAML check.
func IsTOML(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || !strings.Contains(trimmed, "[") {
		return false
	}
	var data map[string]interface{}
	if err := toml.Unmarshal([]byte(content), &data); err != nil {
		return false
	}
	return len(data) > 0
}
