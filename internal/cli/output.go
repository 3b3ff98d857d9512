package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/afpipeline/runtime/internal/persistence"
	"github.com/afpipeline/runtime/pkg/pipeline"
)

// OutputOptions configures CLI output behavior.
type OutputOptions struct {
	Verbose bool
	Quiet   bool
}

// PrintRunResult displays the result of a pipeline run.
func PrintRunResult(w, errw io.Writer, result *pipeline.RunResult, err error, opts OutputOptions) {
	if result == nil {
		fmt.Fprintln(errw, "✗ No run result available")
		return
	}

	if err != nil {
		fmt.Fprintln(errw, "✗ Pipeline run failed")
		if result.Error != nil {
			if result.Error.Handler != "" {
				fmt.Fprintf(errw, "  Handler: %s\n", result.Error.Handler)
			}
			fmt.Fprintf(errw, "  Code: %s\n", result.Error.Code)
			fmt.Fprintf(errw, "  Error: %s\n", result.Error.Message)
		}
		return
	}

	if opts.Quiet {
		return
	}
	fmt.Fprintln(w, "✓ Pipeline run completed")
	fmt.Fprintf(w, "  Document: %s\n", result.DocumentID)
	fmt.Fprintf(w, "  Roots: %d → %d\n", result.RootsBefore, result.RootsAfter)
	fmt.Fprintf(w, "  Attributes: %d → %d\n", result.NodesBefore, result.NodesAfter)
	if opts.Verbose {
		fmt.Fprintf(w, "  Duration: %v\n", result.CompletedAt.Sub(result.StartedAt))
	}
}

// PrintDefinitionSummary prints the pipeline name, version and handler tree.
func PrintDefinitionSummary(w io.Writer, def *pipeline.Definition) {
	if def == nil {
		return
	}
	fmt.Fprintf(w, "  Pipeline: %s (v%s)\n", def.Name, def.Version)
	if def.Description != "" {
		fmt.Fprintf(w, "  Description: %s\n", def.Description)
	}
	if len(def.Validators) > 0 {
		names := make([]string, 0, len(def.Validators))
		for name := range def.Validators {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(w, "  Validators: %v\n", names)
	}
	if def.Handler != nil {
		fmt.Fprintln(w, "  Handlers:")
		printHandlerTree(w, def.Handler, "    ")
	}
}

func printHandlerTree(w io.Writer, h *pipeline.HandlerConfig, indent string) {
	label := h.Type
	if h.Description != "" {
		label += " (" + h.Description + ")"
	} else if h.Name != "" {
		label += " (" + h.Name + ")"
	}
	if !h.IsEnabled() {
		label += " [disabled]"
	}
	fmt.Fprintf(w, "%s- %s\n", indent, label)

	for i := range h.Children {
		printHandlerTree(w, &h.Children[i], indent+"  ")
	}
	if h.Handler != nil {
		printHandlerTree(w, h.Handler, indent+"  ")
	}
	if h.Target != nil && h.Target.Handler != nil {
		printHandlerTree(w, h.Target.Handler, indent+"  ")
	}
}

// PrintSettingsRecord prints a persisted settings record and how it was upgraded.
func PrintSettingsRecord(w io.Writer, stored, upgraded *persistence.Record, opts OutputOptions) {
	fmt.Fprintf(w, "  Handler: %s\n", stored.Type)
	if stored.Version == upgraded.Version {
		fmt.Fprintf(w, "  Version: %d (current)\n", stored.Version)
	} else {
		fmt.Fprintf(w, "  Version: %d (upgraded to %d)\n", stored.Version, upgraded.Version)
	}
	if !stored.SavedAt.IsZero() {
		fmt.Fprintf(w, "  Saved: %s\n", stored.SavedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	if !opts.Verbose {
		return
	}

	keys := make([]string, 0, len(upgraded.Settings))
	for k := range upgraded.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(w, "  Settings:")
	for _, k := range keys {
		marker := ""
		if _, ok := stored.Settings[k]; !ok {
			marker = " (default)"
		}
		fmt.Fprintf(w, "    %s: %v%s\n", k, upgraded.Settings[k], marker)
	}
}
