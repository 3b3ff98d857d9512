// Package pipeline provides public types describing output handler pipelines.
// This package is intended to be importable by external projects that need
// to build or inspect pipeline definitions for the runtime.
package pipeline

import "time"

// Target kinds for RunObjectOnQuery.
const (
	TargetKindModifier = "modifier"
	TargetKindSplitter = "splitter"
	TargetKindHandler  = "handler"
)

// Definition represents a complete pipeline configuration.
type Definition struct {
	// ID is the unique identifier for this pipeline
	ID string `json:"id"`

	// Name is the human-readable name of the pipeline
	Name string `json:"name"`

	// Description provides additional context about the pipeline
	Description string `json:"description,omitempty"`

	// Version is the pipeline configuration version
	Version string `json:"version"`

	// Validators are the format validators registered on every document,
	// keyed by the name attributes reference in their Validator field.
	Validators map[string]ComponentConfig `json:"validators,omitempty"`

	// Handler is the root output handler
	Handler *HandlerConfig `json:"handler"`
}

// HandlerConfig represents the configuration of one output handler.
// Composite handlers nest further HandlerConfig values.
type HandlerConfig struct {
	// Type identifies the handler type (e.g., "sequence", "moveAndModify")
	Type string `json:"type"`

	// Name is an optional label used in logs and progress
	Name string `json:"name,omitempty"`

	// Description is shown for sequence steps
	Description string `json:"description,omitempty"`

	// Enabled defaults to true; only meaningful for sequence steps
	Enabled *bool `json:"enabled,omitempty"`

	// Config contains the handler-specific configuration
	Config map[string]interface{} `json:"config,omitempty"`

	// Children are the steps of a sequence
	Children []HandlerConfig `json:"children,omitempty"`

	// Handler is the child of a conditional handler
	Handler *HandlerConfig `json:"handler,omitempty"`

	// Target is the object run by runObjectOnQuery
	Target *TargetConfig `json:"target,omitempty"`

	// SettingsFile references a persisted settings record whose settings
	// are used as the base of Config
	SettingsFile string `json:"settingsFile,omitempty"`
}

// IsEnabled reports whether the handler is enabled (default true).
func (h HandlerConfig) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

// ComponentConfig configures a pluggable component: a selector, scorer,
// predicate, value modifier, splitter or format validator.
type ComponentConfig struct {
	// Type identifies the component implementation (e.g., "expr", "query")
	Type string `json:"type"`

	// Config contains the component-specific configuration
	Config map[string]interface{} `json:"config,omitempty"`
}

// TargetConfig is the tagged union run by runObjectOnQuery.
type TargetConfig struct {
	// Kind is one of "modifier", "splitter", "handler"
	Kind string `json:"kind"`

	// Component configures the modifier or splitter
	Component *ComponentConfig `json:"component,omitempty"`

	// Handler configures the nested handler
	Handler *HandlerConfig `json:"handler,omitempty"`
}

// RunResult represents the result of running a pipeline over one forest.
type RunResult struct {
	// PipelineID is the ID of the executed pipeline
	PipelineID string `json:"pipelineId"`

	// DocumentID identifies the processed document
	DocumentID string `json:"documentId,omitempty"`

	// Status is "success" or "error"
	Status string `json:"status"`

	// StartedAt is when execution started
	StartedAt time.Time `json:"startedAt"`

	// CompletedAt is when execution completed
	CompletedAt time.Time `json:"completedAt"`

	// RootsBefore and RootsAfter count root attributes around the run
	RootsBefore int `json:"rootsBefore"`
	RootsAfter  int `json:"rootsAfter"`

	// NodesBefore and NodesAfter count attributes at every depth
	NodesBefore int `json:"nodesBefore"`
	NodesAfter  int `json:"nodesAfter"`

	// Error contains error details if execution failed
	Error *RunError `json:"error,omitempty"`
}

// RunError contains details about a run failure.
type RunError struct {
	// Code is the error code
	Code string `json:"code"`

	// Category is the error category
	Category string `json:"category,omitempty"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// Handler is the handler type where the error occurred
	Handler string `json:"handler,omitempty"`
}
