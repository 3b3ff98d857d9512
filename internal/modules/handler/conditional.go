package handler

import (
	"context"

	"github.com/afpipeline/runtime/internal/document"
	"github.com/afpipeline/runtime/internal/errhandling"
	"github.com/afpipeline/runtime/internal/logger"
	"github.com/afpipeline/runtime/pkg/attribute"
)

// ConditionalConfig represents the configuration for ConditionalOutputHandler.
type ConditionalConfig struct {
	Condition Predicate
	// Invert runs the handler when the condition is false
	Invert  bool
	Handler Handler
}

// ConditionalOutputHandler runs its child when its condition (xor Invert) holds.
type ConditionalOutputHandler struct {
	condition Predicate
	invert    bool
	handler   Handler
}

// NewConditionalFromConfig creates the handler. Missing collaborators are
// reported when it runs.
func NewConditionalFromConfig(config ConditionalConfig) (*ConditionalOutputHandler, error) {
	return &ConditionalOutputHandler{
		condition: config.Condition,
		invert:    config.Invert,
		handler:   config.Handler,
	}, nil
}

// Process implements Handler.
func (h *ConditionalOutputHandler) Process(ctx context.Context, forest *attribute.Forest, doc *document.Document) error {
	if h.condition == nil {
		return errhandling.NewNotConfigured(TypeConditional, "no condition configured")
	}
	if h.handler == nil {
		return errhandling.NewNotConfigured(TypeConditional, "no handler configured")
	}

	met, err := h.condition.Evaluate(ctx, forest, doc)
	if err != nil {
		return err
	}
	if met == h.invert {
		logger.Debug("condition not met, handler skipped", "invert", h.invert)
		return nil
	}
	return h.handler.Process(ctx, forest, doc)
}

// ParseConditionalInvert reads the "invert" flag of a raw configuration map.
func ParseConditionalInvert(config map[string]interface{}) bool {
	v, _ := getBool(config, "invert")
	return v
}

var _ Handler = (*ConditionalOutputHandler)(nil)
