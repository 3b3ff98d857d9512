// Package cli provides CLI output formatting and display functions.
package cli

import (
	"fmt"
	"io"

	"github.com/afpipeline/runtime/internal/config"
)

// Exit codes
const (
	ExitSuccess         = 0
	ExitValidationError = 1
	ExitParseError      = 2
	ExitRuntimeError    = 3
)

// ExitCodeFor returns the exit code for a configuration result.
func ExitCodeFor(result *config.Result) int {
	switch {
	case len(result.ParseErrors) > 0:
		return ExitParseError
	case len(result.ValidationErrors) > 0:
		return ExitValidationError
	default:
		return ExitSuccess
	}
}

// PrintConfigErrors prints the parse or validation errors of result.
func PrintConfigErrors(w io.Writer, result *config.Result, opts OutputOptions) {
	if len(result.ParseErrors) > 0 {
		PrintParseErrors(w, result.ParseErrors, opts.Verbose)
		return
	}
	if len(result.ValidationErrors) > 0 {
		PrintValidationErrors(w, result.ValidationErrors, opts.Verbose, opts.Quiet)
	}
}

// PrintParseErrors prints parse errors.
func PrintParseErrors(w io.Writer, errors []config.ParseError, verbose bool) {
	fmt.Fprintln(w, "✗ Parse errors:")
	for _, err := range errors {
		printSingleParseError(w, err, verbose)
	}
}

// printSingleParseError prints a single parse error with location information.
func printSingleParseError(w io.Writer, err config.ParseError, verbose bool) {
	location := formatErrorLocation(err.Path, err.Line, err.Column)

	if location != "" {
		fmt.Fprintf(w, "  %s: %s\n", location, err.Message)
	} else {
		fmt.Fprintf(w, "  %s\n", err.Message)
	}

	if verbose && err.Type != "" {
		fmt.Fprintf(w, "    Type: %s\n", err.Type)
	}
}

// formatErrorLocation formats the error location string (path:line:column).
func formatErrorLocation(path string, line, column int) string {
	if path == "" {
		return ""
	}

	location := path
	if line > 0 {
		location += fmt.Sprintf(":%d", line)
		if column > 0 {
			location += fmt.Sprintf(":%d", column)
		}
	}
	return location
}

// PrintValidationErrors prints validation errors.
func PrintValidationErrors(w io.Writer, errors []config.ValidationError, verbose, quiet bool) {
	fmt.Fprintln(w, "✗ Validation errors:")
	for _, err := range errors {
		path := err.Path
		if path == "" {
			path = "/"
		}
		if verbose {
			fmt.Fprintf(w, "  %s:\n", path)
			fmt.Fprintf(w, "    Message: %s\n", err.Message)
			if err.Type != "" {
				fmt.Fprintf(w, "    Type: %s\n", err.Type)
			}
			if err.Actual != "" {
				fmt.Fprintf(w, "    Found: %s\n", err.Actual)
			}
			continue
		}
		msg := err.Message
		if len(msg) > 80 {
			msg = msg[:77] + "..."
		}
		fmt.Fprintf(w, "  %s: %s\n", path, msg)
	}

	if !quiet && !verbose {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Hint: Use --verbose for detailed error information")
	}
}
