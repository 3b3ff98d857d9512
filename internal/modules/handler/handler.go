// Package handler provides the output handlers that post-process an
// extracted attribute forest.
//
// Every handler mutates the shared forest in place. Configuration is
// validated once by the NewXxxFromConfig constructors; Process only fails
// for missing collaborators or contract violations. Data that a handler
// cannot use is left untouched.
package handler

import (
	"context"

	"github.com/afpipeline/runtime/internal/document"
	"github.com/afpipeline/runtime/pkg/attribute"
)

// Handler type strings used in pipeline configurations.
const (
	TypeEliminateDuplicates    = "eliminateDuplicates"
	TypeRemoveInvalidEntries   = "removeInvalidEntries"
	TypeSelectOnlyUniqueValues = "selectOnlyUniqueValues"
	TypeSelectUsingMajority    = "selectUsingMajority"
	TypeKeepAttributesInMemory = "keepAttributesInMemory"
	TypeRemoveEntriesFromList  = "removeEntriesFromList"
	TypeMoveAndModify          = "moveAndModify"
	TypeRemoveSubAttributes    = "removeSubAttributes"
	TypeReformatPersonNames    = "reformatPersonNames"
	TypeSequence               = "sequence"
	TypeConditional            = "conditional"
	TypeRunObjectOnQuery       = "runObjectOnQuery"
)

// Handler is an output handler.
type Handler interface {
	// Process transforms forest in place.
	Process(ctx context.Context, forest *attribute.Forest, doc *document.Document) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, forest *attribute.Forest, doc *document.Document) error

// Process implements Handler.
func (f HandlerFunc) Process(ctx context.Context, forest *attribute.Forest, doc *document.Document) error {
	return f(ctx, forest, doc)
}

// ValueModifier changes a single attribute in place.
type ValueModifier interface {
	Modify(ctx context.Context, attr *attribute.Attribute, doc *document.Document) error
}

// Splitter splits one attribute into several. An empty result means no change.
type Splitter interface {
	Split(ctx context.Context, attr *attribute.Attribute, doc *document.Document) ([]*attribute.Attribute, error)
}

// AttributeSelector picks attributes of the forest.
type AttributeSelector interface {
	Select(ctx context.Context, forest *attribute.Forest, doc *document.Document) ([]*attribute.Attribute, error)
}

// DataScorer rates an attribute from 0 to 100. ok is false when the
// attribute cannot be scored.
type DataScorer interface {
	Score(ctx context.Context, attr *attribute.Attribute, doc *document.Document) (score int, ok bool)
}

// Predicate decides whether a conditional handler runs its child.
type Predicate interface {
	Evaluate(ctx context.Context, forest *attribute.Forest, doc *document.Document) (bool, error)
}

// MatchFunc decides whether two attributes are duplicates.
type MatchFunc func(a, b *attribute.Attribute) bool
