// Package logger provides structured logging functionality.
// It wraps the standard log/slog package for consistent logging across the runtime.
//
// Logs are written to stderr so that a forest written to stdout ("-") is never
// interleaved with log lines. Helpers use snake_case field names.
//
// The package supports two output formats:
//   - JSON (default): Machine-readable structured logging
//   - Human: Human-readable console output with colors and prefixes
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger is the default logger instance.
var Logger *slog.Logger

// output is where console logs go.
var output io.Writer = os.Stderr

func init() {
	Logger = slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// SetLevel configures the logging level.
func SetLevel(level slog.Level) {
	SetLevelAndFormat(level, FormatJSON)
}

// SetOutput redirects console logs to w, keeping JSON format at the given level.
// Used by tests to capture output.
func SetOutput(w io.Writer, level slog.Level) {
	output = w
	Logger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}

// WithHandler returns a logger with output handler context.
func WithHandler(handlerType, handlerName string) *slog.Logger {
	if handlerName == "" {
		return Logger.With("handler_type", handlerType)
	}
	return Logger.With("handler_type", handlerType, "handler_name", handlerName)
}

// =============================================================================
// Execution Context Types
// =============================================================================

// ExecutionContext contains context information for pipeline run logging.
type ExecutionContext struct {
	// PipelineName is the name of the pipeline definition
	PipelineName string
	// DocumentID identifies the document being processed
	DocumentID string
	// SourceName is the document's source name
	SourceName string
	// HandlerType is the type of handler being run (sequence, moveAndModify, ...)
	HandlerType string
	// StepIndex is the index of the current sequence step (-1 when not in a sequence)
	StepIndex int
}

// ErrorContext contains structured context for error logging.
type ErrorContext struct {
	PipelineName string
	DocumentID   string
	HandlerType  string

	ErrorCode    string
	ErrorMessage string
	Err          error

	StepIndex int
	Duration  time.Duration

	// Additional context as key-value pairs
	Extra map[string]interface{}
}

// RunMetrics contains the size of the forest around a run.
type RunMetrics struct {
	Duration    time.Duration
	RootsBefore int
	RootsAfter  int
	NodesBefore int
	NodesAfter  int
}

// =============================================================================
// Execution Context Helpers
// =============================================================================

// WithExecution returns a logger with execution context attached.
// Only non-empty fields are included.
func WithExecution(ctx ExecutionContext) *slog.Logger {
	return Logger.With(buildContextAttrs(ctx)...)
}

// LogExecutionStart logs the start of a pipeline run.
func LogExecutionStart(ctx ExecutionContext) {
	Logger.Info("execution started", buildContextAttrs(ctx)...)
}

// LogExecutionEnd logs the completion of a pipeline run.
func LogExecutionEnd(ctx ExecutionContext, status string, metrics RunMetrics) {
	attrs := buildContextAttrs(ctx)
	attrs = append(attrs,
		slog.String("status", status),
		slog.Int("roots_before", metrics.RootsBefore),
		slog.Int("roots_after", metrics.RootsAfter),
		slog.Int("nodes_before", metrics.NodesBefore),
		slog.Int("nodes_after", metrics.NodesAfter),
		slog.Duration("duration", metrics.Duration),
	)
	Logger.Info("execution completed", attrs...)
}

// LogStepStart logs the start of a sequence step.
func LogStepStart(ctx ExecutionContext) {
	Logger.Debug("step started", buildContextAttrs(ctx)...)
}

// LogStepEnd logs the completion of a sequence step.
// If err is non-nil, logs as an error.
func LogStepEnd(ctx ExecutionContext, duration time.Duration, err error) {
	attrs := buildContextAttrs(ctx)
	attrs = append(attrs, slog.Duration("duration", duration))
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		Logger.Error("step failed", attrs...)
		return
	}
	Logger.Debug("step completed", attrs...)
}

// LogError logs an error with full execution context.
func LogError(message string, errCtx ErrorContext) {
	attrs := make([]any, 0, 12)

	if errCtx.PipelineName != "" {
		attrs = append(attrs, slog.String("pipeline_name", errCtx.PipelineName))
	}
	if errCtx.DocumentID != "" {
		attrs = append(attrs, slog.String("document_id", errCtx.DocumentID))
	}
	if errCtx.HandlerType != "" {
		attrs = append(attrs, slog.String("handler_type", errCtx.HandlerType))
	}
	if errCtx.ErrorCode != "" {
		attrs = append(attrs, slog.String("error_code", errCtx.ErrorCode))
	}
	if errCtx.ErrorMessage != "" {
		attrs = append(attrs, slog.String("error", errCtx.ErrorMessage))
	}
	if errCtx.Err != nil {
		attrs = append(attrs, slog.String("error_type", fmt.Sprintf("%T", errCtx.Err)))

		errorChain := []string{errCtx.Err.Error()}
		for current := errors.Unwrap(errCtx.Err); current != nil; current = errors.Unwrap(current) {
			errorChain = append(errorChain, current.Error())
		}
		if len(errorChain) > 1 {
			attrs = append(attrs, slog.String("error_chain", strings.Join(errorChain, " -> ")))
		}
	}
	if errCtx.StepIndex >= 0 {
		attrs = append(attrs, slog.Int("step_index", errCtx.StepIndex))
	}
	if errCtx.Duration > 0 {
		attrs = append(attrs, slog.Duration("duration", errCtx.Duration))
	}
	for k, v := range errCtx.Extra {
		attrs = append(attrs, slog.Any(k, v))
	}

	Logger.Error(message, attrs...)
}

func buildContextAttrs(ctx ExecutionContext) []any {
	attrs := make([]any, 0, 6)
	if ctx.PipelineName != "" {
		attrs = append(attrs, slog.String("pipeline_name", ctx.PipelineName))
	}
	if ctx.DocumentID != "" {
		attrs = append(attrs, slog.String("document_id", ctx.DocumentID))
	}
	if ctx.SourceName != "" {
		attrs = append(attrs, slog.String("source_name", ctx.SourceName))
	}
	if ctx.HandlerType != "" {
		attrs = append(attrs, slog.String("handler_type", ctx.HandlerType))
	}
	if ctx.StepIndex >= 0 {
		attrs = append(attrs, slog.Int("step_index", ctx.StepIndex))
	}
	return attrs
}

// =============================================================================
// Human-Readable Log Format Support
// =============================================================================

// OutputFormat represents the log output format
type OutputFormat int

const (
	// FormatJSON is the default machine-readable JSON format
	FormatJSON OutputFormat = iota
	// FormatHuman is a human-readable console format with colors and prefixes
	FormatHuman
)

// ParseFormat maps "human" or "json" to an OutputFormat. Anything else is JSON.
func ParseFormat(s string) OutputFormat {
	if strings.EqualFold(strings.TrimSpace(s), "human") {
		return FormatHuman
	}
	return FormatJSON
}

// SetFormat sets the log output format at info level.
func SetFormat(format OutputFormat) {
	SetLevelAndFormat(slog.LevelInfo, format)
}

// SetLevelAndFormat sets both the log level and format.
func SetLevelAndFormat(level slog.Level, format OutputFormat) {
	Logger = slog.New(consoleHandler(level, format))
}

func consoleHandler(level slog.Level, format OutputFormat) slog.Handler {
	if format == FormatHuman {
		return NewHumanHandler(output, &HumanHandlerOptions{
			Level:     level,
			UseColors: isTerminal(output),
		})
	}
	return slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level})
}

// isTerminal returns true if the writer is a terminal (supports colors)
func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		fi, err := f.Stat()
		if err != nil {
			return false
		}
		return (fi.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// HumanHandlerOptions configures the human-readable log handler.
type HumanHandlerOptions struct {
	// Level is the minimum log level to output
	Level slog.Level
	// UseColors enables ANSI color codes
	UseColors bool
}

// HumanHandler is a slog handler that outputs human-readable log messages.
type HumanHandler struct {
	opts   HumanHandlerOptions
	writer io.Writer
	attrs  []slog.Attr
	groups []string
}

// NewHumanHandler creates a new human-readable log handler.
func NewHumanHandler(w io.Writer, opts *HumanHandlerOptions) *HumanHandler {
	if opts == nil {
		opts = &HumanHandlerOptions{Level: slog.LevelInfo}
	}
	return &HumanHandler{
		opts:   *opts,
		writer: w,
	}
}

// Enabled returns true if the handler is enabled for the given level.
func (h *HumanHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level
}

// Handle outputs a log record in human-readable format.
func (h *HumanHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder

	sb.WriteString(r.Time.Format("15:04:05"))
	sb.WriteString(" ")
	sb.WriteString(h.levelPrefixWithMessage(r.Level, r.Message))
	sb.WriteString(" ")
	sb.WriteString(r.Message)

	var keyAttrs []string
	r.Attrs(func(a slog.Attr) bool {
		keyAttrs = append(keyAttrs, h.formatAttr(a))
		return true
	})
	for _, a := range h.attrs {
		keyAttrs = append(keyAttrs, h.formatAttr(a))
	}

	// Up to 5 attributes inline
	if len(keyAttrs) > 0 {
		sb.WriteString(" ")
		maxInline := min(5, len(keyAttrs))
		sb.WriteString(strings.Join(keyAttrs[:maxInline], " "))
		if len(keyAttrs) > 5 {
			sb.WriteString(fmt.Sprintf(" (+%d more)", len(keyAttrs)-5))
		}
	}

	sb.WriteString("\n")
	_, err := io.WriteString(h.writer, sb.String())
	return err
}

// WithAttrs returns a new handler with the given attributes added.
func (h *HumanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newHandler := &HumanHandler{
		opts:   h.opts,
		writer: h.writer,
		attrs:  make([]slog.Attr, len(h.attrs)+len(attrs)),
		groups: h.groups,
	}
	copy(newHandler.attrs, h.attrs)
	copy(newHandler.attrs[len(h.attrs):], attrs)
	return newHandler
}

// WithGroup returns a new handler with the given group name.
func (h *HumanHandler) WithGroup(name string) slog.Handler {
	return &HumanHandler{
		opts:   h.opts,
		writer: h.writer,
		attrs:  h.attrs,
		groups: append(append([]string(nil), h.groups...), name),
	}
}

func (h *HumanHandler) levelPrefixWithMessage(level slog.Level, message string) string {
	lower := strings.ToLower(message)
	isSuccess := strings.Contains(lower, "completed") || strings.Contains(lower, "succeeded")

	const (
		colorReset  = "\033[0m"
		colorRed    = "\033[31m"
		colorYellow = "\033[33m"
		colorGreen  = "\033[32m"
		colorCyan   = "\033[36m"
	)

	var prefix, color string
	switch {
	case level >= slog.LevelError:
		prefix, color = "✗", colorRed
	case level >= slog.LevelWarn:
		prefix, color = "⚠", colorYellow
	case level >= slog.LevelInfo && isSuccess:
		prefix, color = "✓", colorGreen
	case level >= slog.LevelInfo:
		prefix, color = "ℹ", colorCyan
	default:
		prefix, color = "·", colorReset
	}

	if h.opts.UseColors {
		return color + prefix + colorReset
	}
	return prefix
}

func (h *HumanHandler) formatAttr(a slog.Attr) string {
	value := a.Value.Any()
	if d, ok := value.(time.Duration); ok {
		return fmt.Sprintf("%s=%s", a.Key, formatDuration(d))
	}
	if f, ok := value.(float64); ok {
		return fmt.Sprintf("%s=%.2f", a.Key, f)
	}
	return fmt.Sprintf("%s=%v", a.Key, value)
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
}

// =============================================================================
// Log File Output Support
// =============================================================================

var logFile *os.File

// SetLogFile configures logging to write to both the console and the specified file.
// File logs are always JSON.
func SetLogFile(path string, level slog.Level, consoleFormat OutputFormat) error {
	CloseLogFile()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	logFile = f

	Logger = slog.New(&dualHandler{
		console: consoleHandler(level, consoleFormat),
		file:    slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}),
	})
	Debug("log file opened", slog.String("path", path))
	return nil
}

// CloseLogFile closes the current log file if one is open.
func CloseLogFile() {
	if logFile == nil {
		return
	}
	if err := logFile.Close(); err != nil {
		Warn("failed to close log file", slog.String("error", err.Error()))
	}
	logFile = nil
}

// dualHandler is a slog.Handler that writes to both console and file handlers.
type dualHandler struct {
	console slog.Handler
	file    slog.Handler
}

func (d *dualHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return d.console.Enabled(ctx, level) || d.file.Enabled(ctx, level)
}

func (d *dualHandler) Handle(ctx context.Context, r slog.Record) error {
	if d.console.Enabled(ctx, r.Level) {
		if err := d.console.Handle(ctx, r); err != nil {
			return err
		}
	}
	if d.file.Enabled(ctx, r.Level) {
		return d.file.Handle(ctx, r)
	}
	return nil
}

func (d *dualHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &dualHandler{
		console: d.console.WithAttrs(attrs),
		file:    d.file.WithAttrs(attrs),
	}
}

func (d *dualHandler) WithGroup(name string) slog.Handler {
	return &dualHandler{
		console: d.console.WithGroup(name),
		file:    d.file.WithGroup(name),
	}
}
