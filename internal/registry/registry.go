// Package registry provides the constructor registries for output handlers
// and the pluggable components they use.
//
// # Overview
//
// Handlers and components register their constructors by type string.
// The factory looks constructors up here instead of switching on types, so
// a new handler type needs no factory change.
//
// # Adding a New Handler
//
//	package mine
//
//	func init() {
//	    registry.RegisterHandler("dropEmpty", func(cfg *pipeline.HandlerConfig, _ registry.Nested) (handler.Handler, error) {
//	        return NewDropEmpty(cfg.Config)
//	    })
//	}
//
// Composite handlers receive their already built children, child handler
// or target through Nested. Components (selectors, scorers, predicates,
// modifiers, splitters, validators) have their own registries, keyed by
// the "type" of their configuration block.
//
// # Built-in Types
//
// Built-in handlers and components are registered by init() in builtins.go.
// Unknown types are configuration errors.
package registry

import (
	"sort"
	"sync"

	"github.com/afpipeline/runtime/internal/document"
	"github.com/afpipeline/runtime/internal/modules/handler"
	"github.com/afpipeline/runtime/pkg/pipeline"
)

// Nested holds the collaborators the factory built for a handler.
// Only the fields relevant to the handler type are set.
type Nested struct {
	Children  []handler.Step
	Handler   handler.Handler
	Target    *handler.Target
	Selector  handler.AttributeSelector
	Scorer    handler.DataScorer
	Condition handler.Predicate
}

// HandlerConstructor creates a handler from its configuration and nested collaborators.
type HandlerConstructor func(cfg *pipeline.HandlerConfig, nested Nested) (handler.Handler, error)

// Component constructors receive the component's configuration map.
type (
	ModifierConstructor  func(cfg map[string]interface{}) (handler.ValueModifier, error)
	SplitterConstructor  func(cfg map[string]interface{}) (handler.Splitter, error)
	SelectorConstructor  func(cfg map[string]interface{}) (handler.AttributeSelector, error)
	ScorerConstructor    func(cfg map[string]interface{}) (handler.DataScorer, error)
	PredicateConstructor func(cfg map[string]interface{}) (handler.Predicate, error)
	ValidatorConstructor func(cfg map[string]interface{}) (document.FormatValidator, error)
)

// table is a type-keyed constructor map guarded by a RWMutex.
type table[C any] struct {
	mu sync.RWMutex
	m  map[string]C
}

func (t *table[C]) set(typ string, c C) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.m == nil {
		t.m = make(map[string]C)
	}
	t.m[typ] = c
}

func (t *table[C]) get(typ string) (C, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.m[typ]
	return c, ok
}

func (t *table[C]) list() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	types := make([]string, 0, len(t.m))
	for typ := range t.m {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}

func (t *table[C]) clear() {
	t.mu.Lock()
	t.m = make(map[string]C)
	t.mu.Unlock()
}

var (
	handlers   table[HandlerConstructor]
	modifiers  table[ModifierConstructor]
	splitters  table[SplitterConstructor]
	selectors  table[SelectorConstructor]
	scorers    table[ScorerConstructor]
	predicates table[PredicateConstructor]
	validators table[ValidatorConstructor]
)

// RegisterHandler registers a handler constructor by type string.
// Registering an existing type overwrites the previous constructor.
//
// This function is safe for concurrent use and is typically called from
// init() functions.
func RegisterHandler(handlerType string, constructor HandlerConstructor) {
	handlers.set(handlerType, constructor)
}

// RegisterModifier registers a value modifier constructor.
func RegisterModifier(typ string, constructor ModifierConstructor) {
	modifiers.set(typ, constructor)
}

// RegisterSplitter registers a splitter constructor.
func RegisterSplitter(typ string, constructor SplitterConstructor) {
	splitters.set(typ, constructor)
}

// RegisterSelector registers an attribute selector constructor.
func RegisterSelector(typ string, constructor SelectorConstructor) {
	selectors.set(typ, constructor)
}

// RegisterScorer registers a data scorer constructor.
func RegisterScorer(typ string, constructor ScorerConstructor) {
	scorers.set(typ, constructor)
}

// RegisterPredicate registers a predicate constructor.
func RegisterPredicate(typ string, constructor PredicateConstructor) {
	predicates.set(typ, constructor)
}

// RegisterValidator registers a format validator constructor.
func RegisterValidator(typ string, constructor ValidatorConstructor) {
	validators.set(typ, constructor)
}

// GetHandlerConstructor returns the constructor for a handler type, or nil.
func GetHandlerConstructor(handlerType string) HandlerConstructor {
	c, _ := handlers.get(handlerType)
	return c
}

// GetModifierConstructor returns the constructor for a modifier type, or nil.
func GetModifierConstructor(typ string) ModifierConstructor {
	c, _ := modifiers.get(typ)
	return c
}

// GetSplitterConstructor returns the constructor for a splitter type, or nil.
func GetSplitterConstructor(typ string) SplitterConstructor {
	c, _ := splitters.get(typ)
	return c
}

// GetSelectorConstructor returns the constructor for a selector type, or nil.
func GetSelectorConstructor(typ string) SelectorConstructor {
	c, _ := selectors.get(typ)
	return c
}

// GetScorerConstructor returns the constructor for a scorer type, or nil.
func GetScorerConstructor(typ string) ScorerConstructor {
	c, _ := scorers.get(typ)
	return c
}

// GetPredicateConstructor returns the constructor for a predicate type, or nil.
func GetPredicateConstructor(typ string) PredicateConstructor {
	c, _ := predicates.get(typ)
	return c
}

// GetValidatorConstructor returns the constructor for a validator type, or nil.
func GetValidatorConstructor(typ string) ValidatorConstructor {
	c, _ := validators.get(typ)
	return c
}

// ListHandlerTypes returns the registered handler types, sorted.
func ListHandlerTypes() []string {
	return handlers.list()
}

// ListComponentTypes returns the registered types per component kind, sorted.
func ListComponentTypes() map[string][]string {
	return map[string][]string{
		"modifier":  modifiers.list(),
		"splitter":  splitters.list(),
		"selector":  selectors.list(),
		"scorer":    scorers.list(),
		"predicate": predicates.list(),
		"validator": validators.list(),
	}
}

// ClearRegistries removes all registered constructors.
// This is intended for testing purposes only.
func ClearRegistries() {
	handlers.clear()
	modifiers.clear()
	splitters.clear()
	selectors.clear()
	scorers.clear()
	predicates.clear()
	validators.clear()
}

// RegisterBuiltins registers every built-in handler and component. It runs
// from init and may be called again after ClearRegistries.
func RegisterBuiltins() {
	registerBuiltinHandlers()
	registerBuiltinComponents()
}
