package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/afpipeline/runtime/internal/modules/handler"
	"github.com/afpipeline/runtime/internal/registry"
)

//go:embed schema/pipeline-schema.json
var embeddedSchema []byte

const schemaURL = "https://afpipeline.dev/schemas/pipeline/v1.0.0/pipeline-schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaInitErr  error
)

// GetEmbeddedSchema returns the embedded pipeline schema.
func GetEmbeddedSchema() []byte {
	return embeddedSchema
}

// getCompiledSchema returns the compiled JSON schema, compiling it once.
func getCompiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schemaDoc, err := jsonschema.UnmarshalJSON(bytes.NewReader(embeddedSchema))
		if err != nil {
			schemaInitErr = fmt.Errorf("failed to parse embedded schema: %w", err)
			return
		}

		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, schemaDoc); err != nil {
			schemaInitErr = fmt.Errorf("failed to add schema resource: %w", err)
			return
		}

		compiledSchema, err = compiler.Compile(schemaURL)
		if err != nil {
			schemaInitErr = fmt.Errorf("failed to compile schema: %w", err)
		}
	})

	if schemaInitErr != nil {
		return nil, schemaInitErr
	}
	return compiledSchema, nil
}

// ValidateConfig validates a parsed configuration against the pipeline
// schema, then checks handler and component types against the registry.
func ValidateConfig(data map[string]interface{}) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if len(data) == 0 {
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{
			Path:    "/",
			Type:    "required",
			Message: "configuration data is empty",
		})
		return result
	}

	schema, err := getCompiledSchema()
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{
			Path:    "/",
			Type:    "schema",
			Message: fmt.Sprintf("failed to load schema: %v", err),
		})
		return result
	}

	if err := schema.Validate(data); err != nil {
		result.Valid = false
		if detailed, ok := err.(*jsonschema.ValidationError); ok {
			result.Errors = convertValidationErrors(detailed)
		} else {
			result.Errors = append(result.Errors, ValidationError{
				Path:    "/",
				Type:    "validation",
				Message: err.Error(),
			})
		}
		return result
	}

	p, _ := data["pipeline"].(map[string]interface{})
	result.Errors = append(result.Errors, checkValidators(p)...)
	if h, ok := p["handler"].(map[string]interface{}); ok {
		result.Errors = append(result.Errors, checkHandler(h, "/pipeline/handler")...)
	}
	result.Valid = len(result.Errors) == 0
	return result
}

// convertValidationErrors flattens jsonschema validation errors.
func convertValidationErrors(err *jsonschema.ValidationError) []ValidationError {
	var errs []ValidationError

	if err.ErrorKind != nil && len(err.Causes) == 0 {
		errs = append(errs, ValidationError{
			Path:    formatInstanceLocation(err.InstanceLocation),
			Type:    extractErrorType(err),
			Message: err.Error(),
		})
	}
	for _, cause := range err.Causes {
		errs = append(errs, convertValidationErrors(cause)...)
	}
	return errs
}

// formatInstanceLocation formats the instance location as a JSON pointer.
func formatInstanceLocation(loc []string) string {
	if len(loc) == 0 {
		return "/"
	}
	return "/" + strings.Join(loc, "/")
}

// extractErrorType extracts a simplified error type from the validation error.
func extractErrorType(err *jsonschema.ValidationError) string {
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "required"):
		return "required"
	case strings.Contains(msg, "additional"):
		return "additionalProperties"
	case strings.Contains(msg, "enum") || strings.Contains(msg, "must be one of"):
		return "enum"
	case strings.Contains(msg, "pattern"):
		return "pattern"
	case strings.Contains(msg, "minimum") || strings.Contains(msg, "maximum") || strings.Contains(msg, "minlength"):
		return "range"
	case strings.Contains(msg, "type"):
		return "type"
	default:
		return "validation"
	}
}

// checkValidators reports validator entries whose type is not registered.
func checkValidators(p map[string]interface{}) []ValidationError {
	validators, _ := p["validators"].(map[string]interface{})
	names := make([]string, 0, len(validators))
	for name := range validators {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []ValidationError
	for _, name := range names {
		v, _ := validators[name].(map[string]interface{})
		typ, _ := v["type"].(string)
		if registry.GetValidatorConstructor(typ) == nil {
			errs = append(errs, unknownType("/pipeline/validators/"+name+"/type", "validator", typ))
		}
	}
	return errs
}

// checkHandler reports unknown handler and component types and missing
// collaborators in the handler tree rooted at h.
func checkHandler(h map[string]interface{}, path string) []ValidationError {
	var errs []ValidationError

	typ, _ := h["type"].(string)
	if registry.GetHandlerConstructor(typ) == nil {
		errs = append(errs, unknownType(path+"/type", "handler", typ))
	}

	children, _ := h["children"].([]interface{})
	for i, c := range children {
		if child, ok := c.(map[string]interface{}); ok {
			errs = append(errs, checkHandler(child, fmt.Sprintf("%s/children/%d", path, i))...)
		}
	}
	if nested, ok := h["handler"].(map[string]interface{}); ok {
		errs = append(errs, checkHandler(nested, path+"/handler")...)
	}

	switch typ {
	case handler.TypeSequence:
		if len(children) == 0 {
			errs = append(errs, missing(path+"/children", "sequence requires at least one child"))
		}
	case handler.TypeConditional:
		if _, ok := h["handler"]; !ok {
			errs = append(errs, missing(path+"/handler", "conditional requires a handler"))
		}
		errs = append(errs, checkComponent(h, path, "condition", true, func(t string) bool {
			return registry.GetPredicateConstructor(t) != nil
		})...)
	case handler.TypeRemoveSubAttributes:
		errs = append(errs, checkComponent(h, path, "selector", true, func(t string) bool {
			return registry.GetSelectorConstructor(t) != nil
		})...)
		errs = append(errs, checkComponent(h, path, "scorer", false, func(t string) bool {
			return registry.GetScorerConstructor(t) != nil
		})...)
	case handler.TypeRunObjectOnQuery:
		errs = append(errs, checkTarget(h, path)...)
	}
	return errs
}

func checkComponent(h map[string]interface{}, path, key string, required bool, known func(string) bool) []ValidationError {
	cfg, _ := h["config"].(map[string]interface{})
	raw, ok := cfg[key]
	if !ok {
		if required {
			return []ValidationError{missing(path+"/config/"+key, fmt.Sprintf("'%s' is required", key))}
		}
		return nil
	}
	comp, _ := raw.(map[string]interface{})
	typ, _ := comp["type"].(string)
	if typ == "" {
		return []ValidationError{missing(path+"/config/"+key+"/type", fmt.Sprintf("'%s.type' is required", key))}
	}
	if !known(typ) {
		return []ValidationError{unknownType(path+"/config/"+key+"/type", key, typ)}
	}
	return nil
}

func checkTarget(h map[string]interface{}, path string) []ValidationError {
	target, ok := h["target"].(map[string]interface{})
	if !ok {
		return []ValidationError{missing(path+"/target", "runObjectOnQuery requires a target")}
	}
	path += "/target"
	kind, _ := target["kind"].(string)
	if kind == "handler" {
		nested, ok := target["handler"].(map[string]interface{})
		if !ok {
			return []ValidationError{missing(path+"/handler", "handler target requires a handler")}
		}
		return checkHandler(nested, path+"/handler")
	}

	comp, ok := target["component"].(map[string]interface{})
	if !ok {
		return []ValidationError{missing(path+"/component", kind+" target requires a component")}
	}
	typ, _ := comp["type"].(string)
	known := registry.GetModifierConstructor(typ) != nil
	if kind == "splitter" {
		known = registry.GetSplitterConstructor(typ) != nil
	}
	if !known {
		return []ValidationError{unknownType(path+"/component/type", kind, typ)}
	}
	return nil
}

func unknownType(path, kind, typ string) ValidationError {
	return ValidationError{
		Path:    path,
		Type:    "enum",
		Actual:  typ,
		Message: fmt.Sprintf("unknown %s type %q", kind, typ),
	}
}

func missing(path, message string) ValidationError {
	return ValidationError{Path: path, Type: "required", Message: message}
}
