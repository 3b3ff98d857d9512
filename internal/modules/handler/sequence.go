package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/afpipeline/runtime/internal/document"
	"github.com/afpipeline/runtime/internal/errhandling"
	"github.com/afpipeline/runtime/internal/logger"
	"github.com/afpipeline/runtime/internal/progress"
	"github.com/afpipeline/runtime/pkg/attribute"
)

// Step is one child of a sequence.
type Step struct {
	Handler     Handler
	Enabled     bool
	Description string
	// Type is the handler type, used in logs when Description is empty
	Type string
}

// SequenceConfig represents the configuration for OutputHandlerSequence.
type SequenceConfig struct {
	Steps []Step
}

// OutputHandlerSequence runs its enabled steps in order over the same forest.
type OutputHandlerSequence struct {
	steps []Step
}

// NewSequenceFromConfig creates the handler. An empty sequence is reported
// when it runs.
func NewSequenceFromConfig(config SequenceConfig) (*OutputHandlerSequence, error) {
	return &OutputHandlerSequence{steps: append([]Step(nil), config.Steps...)}, nil
}

// Steps returns the configured steps.
func (h *OutputHandlerSequence) Steps() []Step {
	return h.steps
}

// Process implements Handler. The first failing step aborts the sequence.
// Each enabled step is one progress group; nested handlers do not report.
func (h *OutputHandlerSequence) Process(ctx context.Context, forest *attribute.Forest, doc *document.Document) error {
	if len(h.steps) == 0 {
		return errhandling.NewNotConfigured(TypeSequence, "no steps configured")
	}

	sink := progress.FromContext(ctx)
	stepCtx := progress.Detach(ctx)
	for i, step := range h.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !step.Enabled {
			logger.Debug("sequence step disabled", "step_index", i, "handler_type", step.Type)
			continue
		}
		if step.Handler == nil {
			return errhandling.NewNotConfigured(TypeSequence, fmt.Sprintf("step %d has no handler", i))
		}

		name := step.label(i)
		execCtx := logger.ExecutionContext{HandlerType: step.Type, StepIndex: i}
		if doc != nil {
			execCtx.DocumentID = doc.ID
		}

		sink.StartNextGroup(name, 1)
		logger.LogStepStart(execCtx)
		start := time.Now()
		err := step.Handler.Process(stepCtx, forest, doc)
		logger.LogStepEnd(execCtx, time.Since(start), err)
		if err != nil {
			return fmt.Errorf("step %d (%s): %w", i, name, err)
		}
		sink.CompleteCurrentGroup()
	}
	return nil
}

func (s Step) label(i int) string {
	switch {
	case s.Description != "":
		return s.Description
	case s.Type != "":
		return s.Type
	default:
		return fmt.Sprintf("step %d", i)
	}
}

var _ Handler = (*OutputHandlerSequence)(nil)
