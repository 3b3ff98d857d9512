package handler

import (
	"context"
	"log/slog"

	"github.com/afpipeline/runtime/internal/document"
	"github.com/afpipeline/runtime/internal/logger"
	"github.com/afpipeline/runtime/pkg/attribute"
)

// RemoveInvalidEntries removes, at any depth, attributes whose associated
// format validator rejects their text. Attributes without a resolvable
// validator are kept.
type RemoveInvalidEntries struct{}

// NewRemoveInvalidEntries creates the handler.
func NewRemoveInvalidEntries() *RemoveInvalidEntries {
	return &RemoveInvalidEntries{}
}

// Process implements Handler.
func (h *RemoveInvalidEntries) Process(_ context.Context, forest *attribute.Forest, doc *document.Document) error {
	removed := forest.RemoveWhere(func(a *attribute.Attribute) bool {
		v, ok := doc.Validator(a.Validator)
		return ok && !v.Accepts(a.Text())
	})
	if removed > 0 {
		logger.Debug("invalid entries removed", slog.Int("removed", removed))
	}
	return nil
}

var _ Handler = (*RemoveInvalidEntries)(nil)
