package runtime

import (
	"context"
	"errors"

	"github.com/afpipeline/runtime/internal/errhandling"
	"github.com/afpipeline/runtime/pkg/pipeline"
)

// Error codes for failures that carry no classified code.
const (
	ErrCodeCanceled      = "CANCELED"
	ErrCodeHandlerFailed = "HANDLER_FAILED"
)

// toRunError converts a handler error into its RunResult representation.
func toRunError(err error) *pipeline.RunError {
	if err == nil {
		return nil
	}

	runErr := &pipeline.RunError{Code: ErrCodeHandlerFailed, Message: err.Error()}

	var classified *errhandling.ClassifiedError
	switch {
	case errors.As(err, &classified):
		if classified.Code != "" {
			runErr.Code = classified.Code
		}
		runErr.Category = string(classified.Category)
		runErr.Handler = classified.Handler
	default:
		c := errhandling.ClassifyError(err)
		runErr.Category = string(c.Category)
		if errors.Is(err, context.Canceled) {
			runErr.Code = ErrCodeCanceled
		}
	}
	return runErr
}
