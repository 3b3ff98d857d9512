// Package main provides the CLI entry point for the attribute-finder pipeline runtime.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/afpipeline/runtime/internal/cli"
	"github.com/afpipeline/runtime/internal/config"
	"github.com/afpipeline/runtime/internal/errhandling"
	"github.com/afpipeline/runtime/internal/logger"
	"github.com/afpipeline/runtime/internal/modules/input"
	"github.com/afpipeline/runtime/internal/modules/output"
	"github.com/afpipeline/runtime/internal/persistence"
	"github.com/afpipeline/runtime/internal/progress"
	"github.com/afpipeline/runtime/internal/runtime"
)

// Build information (set via ldflags during build)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// app holds the global flags and streams shared by every command.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	verbose   bool
	quiet     bool
	logFormat string
	logFile   string

	// code is the process exit code set by the command that ran
	code int
}

type runFlags struct {
	input      string
	output     string
	format     string
	docID      string
	sourceName string
	tags       []string
	progress   bool
	stateDir   string
	timeout    time.Duration
}

// execute runs the CLI with args and returns the exit code.
func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	root := a.newRootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	defer logger.CloseLogFile()
	if err := root.Execute(); err != nil {
		if a.code == cli.ExitSuccess {
			return cli.ExitRuntimeError
		}
	}
	return a.code
}

func (a *app) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "afpipeline",
		Short: "afpipeline - Attribute-finder output handler pipelines",
		Long: `afpipeline runs declarative output handler pipelines over attribute forests.

A pipeline configuration (JSON, YAML or TOML) describes a tree of handlers
(sequences, conditionals, deduplication, selection, restructuring...) that
rewrite the attributes extracted from a document.

Examples:
  # Validate a configuration file
  afpipeline validate pipeline.yaml

  # Run a pipeline over a forest file and write the result to stdout
  afpipeline run pipeline.yaml --input forest.json

  # Inspect and upgrade a persisted handler settings file
  afpipeline settings --write move.settings.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return a.configureLogging()
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose output")
	root.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "Suppress non-error output")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "human", "Console log format (human or json)")
	root.PersistentFlags().StringVar(&a.logFile, "log-file", "", "Also write JSON logs to this file")

	root.AddCommand(a.newValidateCmd(), a.newRunCmd(), a.newSettingsCmd(), a.newVersionCmd())
	return root
}

func (a *app) configureLogging() error {
	level := slog.LevelWarn
	switch {
	case a.verbose:
		level = slog.LevelDebug
	case a.quiet:
		level = slog.LevelError
	}
	format := logger.ParseFormat(a.logFormat)

	logger.SetOutput(a.stderr, level)
	if a.logFile != "" {
		if err := logger.SetLogFile(a.logFile, level, format); err != nil {
			fmt.Fprintf(a.stderr, "✗ %v\n", err)
			a.code = cli.ExitRuntimeError
			return err
		}
		return nil
	}
	logger.SetLevelAndFormat(level, format)
	return nil
}

func (a *app) options() cli.OutputOptions {
	return cli.OutputOptions{Verbose: a.verbose, Quiet: a.quiet}
}

func (a *app) newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a pipeline configuration file",
		Long: `Validate a pipeline configuration file against the schema, then check
that every handler and component type is known and has its collaborators.

Exit codes:
  0 - Configuration is valid
  1 - Validation errors
  2 - Parse errors`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			a.code = a.runValidate(args[0])
			return nil
		},
	}
}

func (a *app) runValidate(configPath string) int {
	if !a.quiet {
		fmt.Fprintf(a.stdout, "Validating configuration: %s\n", configPath)
	}

	def, result, err := config.NewLoader("").Load(configPath)
	if err != nil {
		return a.configFailure(result, err)
	}

	if !a.quiet {
		fmt.Fprintf(a.stdout, "✓ Configuration is valid (format: %s)\n", result.Format)
		if a.verbose {
			cli.PrintDefinitionSummary(a.stdout, def)
		}
	}
	return cli.ExitSuccess
}

// configFailure reports a Load error and returns its exit code.
func (a *app) configFailure(result *config.Result, err error) int {
	if result != nil && !result.IsValid() {
		cli.PrintConfigErrors(a.stderr, result, a.options())
		return cli.ExitCodeFor(result)
	}
	fmt.Fprintf(a.stderr, "✗ Failed to convert configuration: %v\n", err)
	return cli.ExitValidationError
}

func (a *app) newRunCmd() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run <config-file>",
		Short: "Run a pipeline over an attribute forest",
		Long: `Run the pipeline defined in the configuration file over a forest read
from --input (standard input by default) and write the resulting forest to
--output (standard output by default).

Exit codes:
  0 - Pipeline ran successfully
  1 - Validation errors
  2 - Parse errors
  3 - Runtime errors`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.code = a.runPipeline(cmd.Context(), args[0], flags)
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.input, "input", "i", input.StdioPath, "Forest file to read (- for stdin)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", input.StdioPath, "Forest file to write (- for stdout)")
	cmd.Flags().StringVar(&flags.format, "format", "", "Output forest format (json or yaml)")
	cmd.Flags().StringVar(&flags.docID, "doc-id", "", "Document identifier (random when empty)")
	cmd.Flags().StringVar(&flags.sourceName, "source-name", "", "Source document name")
	cmd.Flags().StringArrayVar(&flags.tags, "tag", nil, "Document tag as key=value (repeatable)")
	cmd.Flags().BoolVar(&flags.progress, "progress", false, "Log progress of sequence steps")
	cmd.Flags().StringVar(&flags.stateDir, "state-dir", "", "Directory where run state is recorded")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "Abort the run after this duration")
	return cmd
}

func (a *app) runPipeline(ctx context.Context, configPath string, flags runFlags) int {
	if ctx == nil {
		ctx = context.Background()
	}

	tags, err := parseTags(flags.tags)
	if err != nil {
		fmt.Fprintf(a.stderr, "✗ %v\n", err)
		return cli.ExitValidationError
	}

	def, result, err := config.NewLoader("").Load(configPath)
	if err != nil {
		return a.configFailure(result, err)
	}

	var opts []runtime.Option
	if flags.stateDir != "" {
		opts = append(opts, runtime.WithStateStore(persistence.NewStateStore(flags.stateDir)))
	}
	if flags.progress {
		opts = append(opts, runtime.WithProgress(progress.NewLogSink()))
	}
	executor, err := runtime.NewExecutor(def, opts...)
	if err != nil {
		fmt.Fprintf(a.stderr, "✗ Failed to build pipeline: %v\n", err)
		if errhandling.IsInvalidConfiguration(err) || errhandling.IsContractViolation(err) ||
			errhandling.IsUnsupportedVersion(err) {
			return cli.ExitValidationError
		}
		return cli.ExitRuntimeError
	}

	src, err := input.NewFileSource(input.FileConfig{Path: flags.input})
	if err != nil {
		fmt.Fprintf(a.stderr, "✗ %v\n", err)
		return cli.ExitValidationError
	}
	dest, err := output.NewFileDestination(output.FileConfig{Path: flags.output, Format: flags.format})
	if err != nil {
		fmt.Fprintf(a.stderr, "✗ %v\n", err)
		return cli.ExitValidationError
	}

	if flags.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flags.timeout)
		defer cancel()
	}

	forest, err := src.WithStdin(a.stdin).Read(ctx)
	if err != nil {
		fmt.Fprintf(a.stderr, "✗ Failed to read forest: %v\n", err)
		return cli.ExitRuntimeError
	}

	runResult, runErr := executor.Run(ctx, forest, runtime.RunOptions{
		DocumentID: flags.docID,
		SourceName: flags.sourceName,
		Tags:       tags,
	})

	// The forest owns stdout when written there.
	summary := a.stdout
	if flags.output == input.StdioPath {
		summary = a.stderr
	}
	cli.PrintRunResult(summary, a.stderr, runResult, runErr, a.options())
	if runErr != nil {
		return cli.ExitRuntimeError
	}

	if err := dest.WithStdout(a.stdout).Write(ctx, forest); err != nil {
		fmt.Fprintf(a.stderr, "✗ Failed to write forest: %v\n", err)
		return cli.ExitRuntimeError
	}
	return cli.ExitSuccess
}

// parseTags turns key=value pairs into a map.
func parseTags(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	tags := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid tag %q: expected key=value", pair)
		}
		tags[strings.TrimSpace(key)] = value
	}
	return tags, nil
}

func (a *app) newSettingsCmd() *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:   "settings <settings-file>",
		Short: "Inspect and upgrade a persisted handler settings file",
		Long: `Load a persisted handler settings file, upgrade it to the current
settings version and print the result. With --write the upgraded record is
saved back to the same file.

Exit codes:
  0 - Settings loaded
  1 - Settings are invalid or were saved by a newer version
  3 - The file could not be read or written`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			a.code = a.runSettings(args[0], write)
			return nil
		},
	}
	cmd.Flags().BoolVar(&write, "write", false, "Save the upgraded settings back to the file")
	return cmd
}

func (a *app) runSettings(path string, write bool) int {
	stored, err := persistence.ReadRecord(path)
	if err != nil {
		return a.settingsFailure(err)
	}
	upgraded, err := persistence.Upgrade(stored)
	if err != nil {
		return a.settingsFailure(err)
	}

	if !a.quiet {
		cli.PrintSettingsRecord(a.stdout, stored, upgraded, a.options())
	}

	if write && upgraded.Version != stored.Version {
		if err := persistence.SaveSettings(path, upgraded); err != nil {
			return a.settingsFailure(err)
		}
		if !a.quiet {
			fmt.Fprintf(a.stdout, "✓ Settings saved at version %d\n", upgraded.Version)
		}
	}
	return cli.ExitSuccess
}

func (a *app) settingsFailure(err error) int {
	fmt.Fprintf(a.stderr, "✗ %v\n", err)
	if errhandling.IsInvalidConfiguration(err) || errhandling.IsUnsupportedVersion(err) {
		return cli.ExitValidationError
	}
	return cli.ExitRuntimeError
}

func (a *app) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print version, commit hash, and build date information.",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(a.stdout, "Version: %s\n", version)
			fmt.Fprintf(a.stdout, "Commit: %s\n", commit)
			fmt.Fprintf(a.stdout, "Build Date: %s\n", buildDate)
		},
	}
}
