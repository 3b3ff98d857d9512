package modifier

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/afpipeline/runtime/internal/document"
	"github.com/afpipeline/runtime/internal/errhandling"
	"github.com/afpipeline/runtime/internal/logger"
	"github.com/afpipeline/runtime/pkg/attribute"
)

// Error codes for script modifiers.
const (
	ErrCodeScriptEmpty          = "SCRIPT_EMPTY"
	ErrCodeScriptTooLong        = "SCRIPT_TOO_LONG"
	ErrCodeCompilationFailed    = "COMPILATION_FAILED"
	ErrCodeMissingFunction      = "MISSING_FUNCTION"
	ErrCodeExecutionFailed      = "EXECUTION_FAILED"
	ErrCodeInvalidResult        = "INVALID_RESULT"
	ErrCodeInvalidScriptFile    = "INVALID_SCRIPT_FILE"
	ErrCodeScriptFileReadFailed = "SCRIPT_FILE_READ_FAILED"
)

// MaxScriptLength is the maximum allowed script length in bytes (100KB).
const MaxScriptLength = 100 * 1024

// Entry points looked up in scripts.
const (
	ModifyFunction = "modify"
	SplitFunction  = "split"
)

// ScriptConfig represents the configuration of a script modifier or splitter.
// Either Script or ScriptFile must be provided, not both.
type ScriptConfig struct {
	Script     string `json:"script,omitempty"`
	ScriptFile string `json:"scriptFile,omitempty"`
}

// ScriptError carries structured context for script failures.
type ScriptError struct {
	Code       string
	Message    string
	StackTrace string
	Err        error
}

func (e *ScriptError) Error() string {
	return e.Message
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}

// scriptFunc is one compiled entry point. Goja runtimes are not
// goroutine-safe: calls on the same scriptFunc must not overlap.
type scriptFunc struct {
	name        string
	runtime     *goja.Runtime
	fn          goja.Callable
	interruptMu sync.Mutex
}

func compileScript(config ScriptConfig, fnName string) (*scriptFunc, error) {
	source, err := resolveScriptSource(config)
	if err != nil {
		return nil, errhandling.NewInvalidConfiguration(TypeScript, "cannot load script", err)
	}
	if strings.TrimSpace(source) == "" {
		return nil, errhandling.NewInvalidConfiguration(TypeScript, "script cannot be empty",
			&ScriptError{Code: ErrCodeScriptEmpty, Message: "script cannot be empty"})
	}
	if len(source) > MaxScriptLength {
		return nil, errhandling.NewInvalidConfiguration(TypeScript,
			fmt.Sprintf("script exceeds maximum length: %d bytes exceeds maximum %d bytes", len(source), MaxScriptLength),
			&ScriptError{Code: ErrCodeScriptTooLong, Message: "script too long"})
	}

	vm := goja.New()
	if _, err := vm.RunString(source); err != nil {
		return nil, errhandling.NewInvalidConfiguration(TypeScript, "script compilation failed",
			&ScriptError{Code: ErrCodeCompilationFailed, Message: err.Error(), Err: err})
	}
	val := vm.Get(fnName)
	if val == nil || goja.IsUndefined(val) {
		return nil, errhandling.NewInvalidConfiguration(TypeScript, fmt.Sprintf("function %q not found in script", fnName),
			&ScriptError{Code: ErrCodeMissingFunction, Message: fnName + " not defined"})
	}
	fn, ok := goja.AssertFunction(val)
	if !ok {
		return nil, errhandling.NewInvalidConfiguration(TypeScript, fmt.Sprintf("%q is not a function", fnName),
			&ScriptError{Code: ErrCodeMissingFunction, Message: fnName + " is not a function"})
	}

	logger.Debug("script compiled",
		slog.String("function", fnName),
		slog.Int("script_length", len(source)),
		slog.Bool("from_file", config.ScriptFile != ""),
	)
	return &scriptFunc{name: fnName, runtime: vm, fn: fn}, nil
}

// call invokes the entry point with attr and doc. Canceling ctx interrupts
// the script.
func (s *scriptFunc) call(ctx context.Context, attr *attribute.Attribute, doc *document.Document) (goja.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.interruptMu.Lock()
			s.runtime.Interrupt(ctx.Err().Error())
			s.interruptMu.Unlock()
		case <-done:
		}
	}()

	result, err := s.fn(goja.Undefined(), s.runtime.ToValue(attrData(attr)), s.runtime.ToValue(doc.Env()))

	s.interruptMu.Lock()
	s.runtime.ClearInterrupt()
	s.interruptMu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, s.scriptError(err)
	}
	return result, nil
}

func (s *scriptFunc) scriptError(err error) error {
	stack := ""
	var value interface{} = err
	if jsErr, ok := err.(*goja.Exception); ok {
		value = jsErr.Value()
		if obj, ok := jsErr.Value().(*goja.Object); ok {
			if st := obj.Get("stack"); st != nil && !goja.IsUndefined(st) {
				stack = st.String()
			}
		}
	}
	return &ScriptError{
		Code:       ErrCodeExecutionFailed,
		Message:    fmt.Sprintf("%s() failed: %v", s.name, value),
		StackTrace: stack,
		Err:        err,
	}
}

// resolveScriptSource returns the inline script or the content of ScriptFile.
func resolveScriptSource(config ScriptConfig) (string, error) {
	if config.Script != "" && config.ScriptFile != "" {
		return "", &ScriptError{Code: ErrCodeInvalidScriptFile, Message: "cannot specify both 'script' and 'scriptFile'"}
	}
	if config.Script != "" {
		return config.Script, nil
	}
	if config.ScriptFile == "" {
		return "", &ScriptError{Code: ErrCodeScriptEmpty, Message: "either 'script' or 'scriptFile' must be provided"}
	}
	if err := validateScriptFilePath(config.ScriptFile); err != nil {
		return "", err
	}

	file, err := os.Open(config.ScriptFile)
	if err != nil {
		return "", &ScriptError{Code: ErrCodeScriptFileReadFailed,
			Message: fmt.Sprintf("failed to open script file %q: %v", config.ScriptFile, err), Err: err}
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			logger.Warn("failed to close script file",
				slog.String("file", config.ScriptFile),
				slog.String("error", closeErr.Error()),
			)
		}
	}()

	content, err := io.ReadAll(io.LimitReader(file, MaxScriptLength+1))
	if err != nil {
		return "", &ScriptError{Code: ErrCodeScriptFileReadFailed,
			Message: fmt.Sprintf("failed to read script file %q: %v", config.ScriptFile, err), Err: err}
	}
	if len(content) > MaxScriptLength {
		return "", &ScriptError{Code: ErrCodeScriptTooLong,
			Message: fmt.Sprintf("script file %q is larger than %d bytes", config.ScriptFile, MaxScriptLength)}
	}
	return string(content), nil
}

// validateScriptFilePath rejects paths with NUL bytes or ".." segments.
func validateScriptFilePath(path string) error {
	if strings.Contains(path, "\x00") {
		return &ScriptError{Code: ErrCodeInvalidScriptFile, Message: "scriptFile path contains invalid characters"}
	}
	cleaned := filepath.Clean(path)
	for _, segment := range strings.Split(filepath.ToSlash(cleaned), "/") {
		if segment == ".." {
			return &ScriptError{Code: ErrCodeInvalidScriptFile,
				Message: fmt.Sprintf("scriptFile path contains path traversal: %q", path)}
		}
	}
	return nil
}

// ParseScriptConfig parses a raw configuration map.
func ParseScriptConfig(cfg map[string]interface{}) (ScriptConfig, error) {
	var config ScriptConfig
	script, hasScript := cfg["script"].(string)
	scriptFile, hasScriptFile := cfg["scriptFile"].(string)

	if hasScript && hasScriptFile {
		return config, errhandling.NewInvalidConfiguration(TypeScript, "cannot specify both 'script' and 'scriptFile'", nil)
	}
	if !hasScript && !hasScriptFile {
		return config, errhandling.NewInvalidConfiguration(TypeScript, "either 'script' or 'scriptFile' is required", nil)
	}
	config.Script = script
	config.ScriptFile = scriptFile
	return config, nil
}

// ScriptModifier runs a JavaScript modify(attr, doc) function. It may
// return a string (the new value), an object with any of value, type and
// name, or nothing to leave the attribute unchanged.
type ScriptModifier struct {
	script *scriptFunc
}

// NewScriptModifierFromConfig compiles the script and checks that it
// defines modify.
func NewScriptModifierFromConfig(config ScriptConfig) (*ScriptModifier, error) {
	s, err := compileScript(config, ModifyFunction)
	if err != nil {
		return nil, err
	}
	return &ScriptModifier{script: s}, nil
}

// Modify implements handler.ValueModifier.
func (m *ScriptModifier) Modify(ctx context.Context, attr *attribute.Attribute, doc *document.Document) error {
	result, err := m.script.call(ctx, attr, doc)
	if err != nil {
		return err
	}
	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return nil
	}

	switch v := result.Export().(type) {
	case string:
		attr.SetText(v)
	case map[string]interface{}:
		return applyChanges(attr, v)
	default:
		return &ScriptError{Code: ErrCodeInvalidResult,
			Message: fmt.Sprintf("modify() returned %T, expected a string or an object", v)}
	}
	return nil
}

func applyChanges(attr *attribute.Attribute, changes map[string]interface{}) error {
	if raw, ok := changes["name"]; ok {
		name, _ := raw.(string)
		if !attribute.IsValidName(name) {
			return &ScriptError{Code: ErrCodeInvalidResult,
				Message: fmt.Sprintf("modify() returned invalid attribute name %q", name)}
		}
		attr.Name = name
	}
	if raw, ok := changes["type"]; ok {
		attr.Type = fmt.Sprint(raw)
	}
	if raw, ok := changes["value"]; ok {
		attr.SetText(fmt.Sprint(raw))
	}
	return nil
}

// ScriptSplitter runs a JavaScript split(attr, doc) function returning an
// array of strings. Each string becomes an attribute with the original name
// and type.
type ScriptSplitter struct {
	script *scriptFunc
}

// NewScriptSplitterFromConfig compiles the script and checks that it
// defines split.
func NewScriptSplitterFromConfig(config ScriptConfig) (*ScriptSplitter, error) {
	s, err := compileScript(config, SplitFunction)
	if err != nil {
		return nil, err
	}
	return &ScriptSplitter{script: s}, nil
}

// Split implements handler.Splitter.
func (s *ScriptSplitter) Split(ctx context.Context, attr *attribute.Attribute, doc *document.Document) ([]*attribute.Attribute, error) {
	result, err := s.script.call(ctx, attr, doc)
	if err != nil {
		return nil, err
	}
	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return nil, nil
	}

	var parts []string
	if err := s.script.runtime.ExportTo(result, &parts); err != nil {
		return nil, &ScriptError{Code: ErrCodeInvalidResult,
			Message: fmt.Sprintf("split() must return an array of strings: %v", err), Err: err}
	}
	return newParts(attr, parts), nil
}

// newParts builds leaf attributes sharing the name, type and validator of attr.
func newParts(attr *attribute.Attribute, parts []string) []*attribute.Attribute {
	if len(parts) == 0 {
		return nil
	}
	out := make([]*attribute.Attribute, 0, len(parts))
	for _, p := range parts {
		part := attribute.NewTyped(attr.Name, attr.Type, p)
		part.Validator = attr.Validator
		out = append(out, part)
	}
	return out
}
