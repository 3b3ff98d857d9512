// Package runtime provides the pipeline execution engine.
// It runs the handler tree of a pipeline definition over one forest.
package runtime

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/afpipeline/runtime/internal/document"
	"github.com/afpipeline/runtime/internal/factory"
	"github.com/afpipeline/runtime/internal/logger"
	"github.com/afpipeline/runtime/internal/modules/handler"
	"github.com/afpipeline/runtime/internal/persistence"
	"github.com/afpipeline/runtime/internal/progress"
	"github.com/afpipeline/runtime/pkg/attribute"
	"github.com/afpipeline/runtime/pkg/pipeline"
)

// Execution status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Common errors
var (
	// ErrNilDefinition is returned when the pipeline definition is nil
	ErrNilDefinition = errors.New("pipeline definition is nil")

	// ErrNilHandler is returned when the executor has no handler
	ErrNilHandler = errors.New("pipeline handler is nil")

	// ErrNilForest is returned when Run is called without a forest
	ErrNilForest = errors.New("forest is nil")
)

// RunOptions describe the document a forest was extracted from.
type RunOptions struct {
	// DocumentID identifies the document; a random ID is generated when empty
	DocumentID string
	SourceName string
	Tags       map[string]string
}

// Option configures an Executor.
type Option func(*Executor)

// WithStateStore records every run in store.
func WithStateStore(store *persistence.StateStore) Option {
	return func(e *Executor) { e.state = store }
}

// WithProgress reports sequence steps to sink.
func WithProgress(sink progress.Sink) Option {
	return func(e *Executor) { e.sink = sink }
}

// Executor runs a pipeline's handler tree over forests.
//
// The Executor only interacts with handlers through the handler.Handler
// interface; composites and components are assembled by the factory.
type Executor struct {
	def        *pipeline.Definition
	handler    handler.Handler
	validators map[string]document.FormatValidator
	state      *persistence.StateStore
	sink       progress.Sink
}

// NewExecutor builds the handler tree and validators of def.
func NewExecutor(def *pipeline.Definition, opts ...Option) (*Executor, error) {
	if def == nil {
		return nil, ErrNilDefinition
	}
	h, err := factory.CreateHandler(def.Handler)
	if err != nil {
		return nil, err
	}
	validators, err := factory.CreateValidators(def.Validators)
	if err != nil {
		return nil, err
	}
	return NewExecutorWithHandler(def, h, validators, opts...), nil
}

// NewExecutorWithHandler creates an executor around an already built handler.
func NewExecutorWithHandler(def *pipeline.Definition, h handler.Handler, validators map[string]document.FormatValidator, opts ...Option) *Executor {
	e := &Executor{def: def, handler: h, validators: validators}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Handler returns the root handler.
func (e *Executor) Handler() handler.Handler {
	return e.handler
}

// NewDocument creates the document a run processes: ID, source name, tags
// and the pipeline's format validators.
func (e *Executor) NewDocument(opts RunOptions) *document.Document {
	id := opts.DocumentID
	if id == "" {
		id = uuid.NewString()
	}
	doc := document.New(id, opts.SourceName)
	for k, v := range opts.Tags {
		doc.SetTag(k, v)
	}
	for name, v := range e.validators {
		doc.RegisterValidator(name, v)
	}
	return doc
}

// Run processes forest in place and returns the run result. The returned
// error is the handler error, also described in RunResult.Error.
func (e *Executor) Run(ctx context.Context, forest *attribute.Forest, opts RunOptions) (*pipeline.RunResult, error) {
	startedAt := time.Now()
	result := &pipeline.RunResult{Status: StatusError, StartedAt: startedAt}
	if e.def != nil {
		result.PipelineID = e.def.ID
	}

	if e.handler == nil {
		return e.fail(result, ErrNilHandler)
	}
	if forest == nil {
		return e.fail(result, ErrNilForest)
	}

	doc := e.NewDocument(opts)
	result.DocumentID = doc.ID
	result.RootsBefore = forest.Len()
	result.NodesBefore = forest.Count()

	execCtx := logger.ExecutionContext{
		DocumentID: doc.ID,
		SourceName: doc.SourceName,
		StepIndex:  -1,
	}
	if e.def != nil {
		execCtx.PipelineName = e.def.Name
		if e.def.Handler != nil {
			execCtx.HandlerType = e.def.Handler.Type
		}
	}

	if e.sink != nil {
		e.sink.InitProgress(e.stepCount())
		ctx = progress.WithSink(ctx, e.sink)
	}

	logger.LogExecutionStart(execCtx)
	_, isSequence := e.handler.(*handler.OutputHandlerSequence)
	if e.sink != nil && !isSequence {
		e.sink.StartNextGroup(execCtx.HandlerType, 1)
		ctx = progress.Detach(ctx)
	}
	err := e.handler.Process(ctx, forest, doc)
	if e.sink != nil && !isSequence && err == nil {
		e.sink.CompleteCurrentGroup()
	}

	result.CompletedAt = time.Now()
	result.RootsAfter = forest.Len()
	result.NodesAfter = forest.Count()
	if err == nil {
		result.Status = StatusSuccess
	} else {
		result.Error = toRunError(err)
		logger.LogError("pipeline run failed", logger.ErrorContext{
			PipelineName: execCtx.PipelineName,
			DocumentID:   doc.ID,
			HandlerType:  result.Error.Handler,
			ErrorCode:    result.Error.Code,
			ErrorMessage: result.Error.Message,
			Err:          err,
			StepIndex:    -1,
			Duration:     result.CompletedAt.Sub(startedAt),
		})
	}

	logger.LogExecutionEnd(execCtx, result.Status, logger.RunMetrics{
		Duration:    result.CompletedAt.Sub(startedAt),
		RootsBefore: result.RootsBefore,
		RootsAfter:  result.RootsAfter,
		NodesBefore: result.NodesBefore,
		NodesAfter:  result.NodesAfter,
	})

	e.recordState(result)
	return result, err
}

// fail completes result for a run that could not start.
func (e *Executor) fail(result *pipeline.RunResult, err error) (*pipeline.RunResult, error) {
	result.CompletedAt = time.Now()
	result.Error = toRunError(err)
	logger.Error("pipeline run not started",
		slog.String("pipeline_id", result.PipelineID),
		slog.String("error", err.Error()),
	)
	return result, err
}

// stepCount is the number of progress groups a run reports.
func (e *Executor) stepCount() int {
	seq, ok := e.handler.(*handler.OutputHandlerSequence)
	if !ok {
		return 1
	}
	n := 0
	for _, s := range seq.Steps() {
		if s.Enabled {
			n++
		}
	}
	return n
}

// recordState persists the run outcome. Failures are logged only.
func (e *Executor) recordState(result *pipeline.RunResult) {
	if e.state == nil || result.PipelineID == "" {
		return
	}
	if _, err := e.state.Record(result.PipelineID, result.DocumentID, result.Status, result.StartedAt); err != nil {
		logger.Warn("failed to record run state",
			slog.String("pipeline_id", result.PipelineID),
			slog.String("error", err.Error()),
		)
	}
}
