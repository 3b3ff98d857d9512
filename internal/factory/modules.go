// Package factory builds output handlers from their configuration.
// It resolves handler and component constructors through the registry and
// assembles composite handlers recursively.
//
// # Adding New Handler Types
//
// To add a new handler or component type, see the documentation in
// internal/registry. You do NOT need to modify this factory; just register
// your constructor.
package factory

import (
	"fmt"
	"log/slog"

	"github.com/afpipeline/runtime/internal/document"
	"github.com/afpipeline/runtime/internal/errhandling"
	"github.com/afpipeline/runtime/internal/logger"
	"github.com/afpipeline/runtime/internal/modules/handler"
	"github.com/afpipeline/runtime/internal/persistence"
	"github.com/afpipeline/runtime/internal/registry"
	"github.com/afpipeline/runtime/pkg/pipeline"
)

// maxNestingDepth is the maximum allowed depth for nested handler configurations.
const maxNestingDepth = 50

// Config keys holding nested component configurations.
const (
	keySelector  = "selector"
	keyScorer    = "scorer"
	keyCondition = "condition"
)

// CreateHandler creates the handler tree described by cfg.
func CreateHandler(cfg *pipeline.HandlerConfig) (handler.Handler, error) {
	if cfg == nil {
		return nil, errhandling.NewInvalidConfiguration("", "handler configuration is required", nil)
	}
	return createHandler(cfg, 0)
}

func createHandler(cfg *pipeline.HandlerConfig, depth int) (handler.Handler, error) {
	if depth > maxNestingDepth {
		return nil, errhandling.NewInvalidConfiguration(cfg.Type,
			fmt.Sprintf("handler nesting exceeds maximum depth of %d", maxNestingDepth), nil)
	}
	if cfg.Type == "" {
		return nil, errhandling.NewInvalidConfiguration("", "handler type is required", nil)
	}

	constructor := registry.GetHandlerConstructor(cfg.Type)
	if constructor == nil {
		return nil, errhandling.NewInvalidConfiguration(cfg.Type, fmt.Sprintf("unknown handler type %q", cfg.Type), nil)
	}

	resolved, err := resolveSettings(cfg)
	if err != nil {
		return nil, err
	}

	nested, err := buildNested(resolved, depth)
	if err != nil {
		return nil, err
	}

	h, err := constructor(resolved, nested)
	if err != nil {
		return nil, wrapConfigError(cfg.Type, err)
	}

	logger.Debug("handler created",
		slog.String("handler_type", cfg.Type),
		slog.String("handler_name", cfg.Name),
		slog.Int("depth", depth),
	)
	return h, nil
}

// resolveSettings returns cfg with the persisted settings it references merged
// under its inline Config. cfg itself is not modified.
func resolveSettings(cfg *pipeline.HandlerConfig) (*pipeline.HandlerConfig, error) {
	if cfg.SettingsFile == "" {
		return cfg, nil
	}

	rec, err := persistence.LoadSettings(cfg.SettingsFile)
	if err != nil {
		return nil, fmt.Errorf("loading settings for %s: %w", cfg.Type, err)
	}
	if rec.Type != cfg.Type {
		return nil, errhandling.NewInvalidConfiguration(cfg.Type,
			fmt.Sprintf("settings file %q holds %q settings", cfg.SettingsFile, rec.Type), nil)
	}

	merged := make(map[string]interface{}, len(rec.Settings)+len(cfg.Config))
	for k, v := range rec.Settings {
		merged[k] = v
	}
	for k, v := range cfg.Config {
		merged[k] = v
	}

	out := *cfg
	out.Config = merged
	return &out, nil
}

// buildNested builds the collaborators configured on cfg.
func buildNested(cfg *pipeline.HandlerConfig, depth int) (registry.Nested, error) {
	var nested registry.Nested

	for i := range cfg.Children {
		child := &cfg.Children[i]
		h, err := createHandler(child, depth+1)
		if err != nil {
			return nested, fmt.Errorf("step %d: %w", i, err)
		}
		description := child.Description
		if description == "" {
			description = child.Name
		}
		nested.Children = append(nested.Children, handler.Step{
			Handler:     h,
			Enabled:     child.IsEnabled(),
			Description: description,
			Type:        child.Type,
		})
	}

	if cfg.Handler != nil {
		h, err := createHandler(cfg.Handler, depth+1)
		if err != nil {
			return nested, fmt.Errorf("nested handler: %w", err)
		}
		nested.Handler = h
	}

	if cfg.Target != nil {
		target, err := createTarget(cfg.Type, cfg.Target, depth)
		if err != nil {
			return nested, err
		}
		nested.Target = target
	}

	if c, ok, err := componentAt(cfg, keySelector); err != nil {
		return nested, err
	} else if ok {
		if nested.Selector, err = CreateSelector(c); err != nil {
			return nested, err
		}
	}
	if c, ok, err := componentAt(cfg, keyScorer); err != nil {
		return nested, err
	} else if ok {
		if nested.Scorer, err = CreateScorer(c); err != nil {
			return nested, err
		}
	}
	if c, ok, err := componentAt(cfg, keyCondition); err != nil {
		return nested, err
	} else if ok {
		if nested.Condition, err = CreatePredicate(c); err != nil {
			return nested, err
		}
	}

	return nested, nil
}

// createTarget builds the object run by runObjectOnQuery.
func createTarget(handlerType string, cfg *pipeline.TargetConfig, depth int) (*handler.Target, error) {
	switch cfg.Kind {
	case pipeline.TargetKindModifier:
		if cfg.Component == nil {
			return nil, errhandling.NewInvalidConfiguration(handlerType, "modifier target requires a component", nil)
		}
		if registry.GetModifierConstructor(cfg.Component.Type) == nil && registry.GetSplitterConstructor(cfg.Component.Type) != nil {
			return nil, errhandling.NewContractViolation(handlerType,
				fmt.Sprintf("component %q is not a value modifier", cfg.Component.Type))
		}
		m, err := CreateModifier(*cfg.Component)
		if err != nil {
			return nil, err
		}
		return &handler.Target{Kind: handler.TargetModifier, Modifier: m}, nil

	case pipeline.TargetKindSplitter:
		if cfg.Component == nil {
			return nil, errhandling.NewInvalidConfiguration(handlerType, "splitter target requires a component", nil)
		}
		if registry.GetSplitterConstructor(cfg.Component.Type) == nil && registry.GetModifierConstructor(cfg.Component.Type) != nil {
			return nil, errhandling.NewContractViolation(handlerType,
				fmt.Sprintf("component %q is not a splitter", cfg.Component.Type))
		}
		s, err := CreateSplitter(*cfg.Component)
		if err != nil {
			return nil, err
		}
		return &handler.Target{Kind: handler.TargetSplitter, Splitter: s}, nil

	case pipeline.TargetKindHandler:
		if cfg.Handler == nil {
			return nil, errhandling.NewInvalidConfiguration(handlerType, "handler target requires a handler", nil)
		}
		h, err := createHandler(cfg.Handler, depth+1)
		if err != nil {
			return nil, fmt.Errorf("target handler: %w", err)
		}
		return &handler.Target{Kind: handler.TargetHandler, Handler: h}, nil

	default:
		return nil, errhandling.NewInvalidConfiguration(handlerType, fmt.Sprintf("unknown target kind %q", cfg.Kind), nil)
	}
}

// componentAt reads the component configured under key. Both the nested
// {"type": ..., "config": {...}} form and the flat {"type": ..., ...} form
// are accepted.
func componentAt(cfg *pipeline.HandlerConfig, key string) (pipeline.ComponentConfig, bool, error) {
	raw, ok := cfg.Config[key]
	if !ok || raw == nil {
		return pipeline.ComponentConfig{}, false, nil
	}
	return ParseComponentConfig(cfg.Type, key, raw)
}

// ParseComponentConfig converts a raw component value into a ComponentConfig.
func ParseComponentConfig(handlerType, key string, raw interface{}) (pipeline.ComponentConfig, bool, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return pipeline.ComponentConfig{}, false, errhandling.NewInvalidConfiguration(handlerType,
			fmt.Sprintf("'%s' must be an object", key), nil)
	}
	typ, _ := m["type"].(string)
	if typ == "" {
		return pipeline.ComponentConfig{}, false, errhandling.NewInvalidConfiguration(handlerType,
			fmt.Sprintf("'%s.type' is required", key), nil)
	}

	if inner, ok := m["config"].(map[string]interface{}); ok {
		return pipeline.ComponentConfig{Type: typ, Config: inner}, true, nil
	}
	flat := make(map[string]interface{}, len(m))
	for k, v := range m {
		if k != "type" {
			flat[k] = v
		}
	}
	return pipeline.ComponentConfig{Type: typ, Config: flat}, true, nil
}

// CreateModifier creates a value modifier component.
func CreateModifier(cfg pipeline.ComponentConfig) (handler.ValueModifier, error) {
	constructor := registry.GetModifierConstructor(cfg.Type)
	if constructor == nil {
		return nil, unknownComponent("modifier", cfg.Type)
	}
	m, err := constructor(componentConfig(cfg))
	if err != nil {
		return nil, wrapConfigError(cfg.Type, err)
	}
	return m, nil
}

// CreateSplitter creates a splitter component.
func CreateSplitter(cfg pipeline.ComponentConfig) (handler.Splitter, error) {
	constructor := registry.GetSplitterConstructor(cfg.Type)
	if constructor == nil {
		return nil, unknownComponent("splitter", cfg.Type)
	}
	s, err := constructor(componentConfig(cfg))
	if err != nil {
		return nil, wrapConfigError(cfg.Type, err)
	}
	return s, nil
}

// CreateSelector creates an attribute selector component.
func CreateSelector(cfg pipeline.ComponentConfig) (handler.AttributeSelector, error) {
	constructor := registry.GetSelectorConstructor(cfg.Type)
	if constructor == nil {
		return nil, unknownComponent("selector", cfg.Type)
	}
	s, err := constructor(componentConfig(cfg))
	if err != nil {
		return nil, wrapConfigError(cfg.Type, err)
	}
	return s, nil
}

// CreateScorer creates a data scorer component.
func CreateScorer(cfg pipeline.ComponentConfig) (handler.DataScorer, error) {
	constructor := registry.GetScorerConstructor(cfg.Type)
	if constructor == nil {
		return nil, unknownComponent("scorer", cfg.Type)
	}
	s, err := constructor(componentConfig(cfg))
	if err != nil {
		return nil, wrapConfigError(cfg.Type, err)
	}
	return s, nil
}

// CreatePredicate creates a predicate component.
func CreatePredicate(cfg pipeline.ComponentConfig) (handler.Predicate, error) {
	constructor := registry.GetPredicateConstructor(cfg.Type)
	if constructor == nil {
		return nil, unknownComponent("condition", cfg.Type)
	}
	p, err := constructor(componentConfig(cfg))
	if err != nil {
		return nil, wrapConfigError(cfg.Type, err)
	}
	return p, nil
}

// CreateValidators creates the named format validators of a pipeline.
func CreateValidators(cfgs map[string]pipeline.ComponentConfig) (map[string]document.FormatValidator, error) {
	if len(cfgs) == 0 {
		return nil, nil
	}
	out := make(map[string]document.FormatValidator, len(cfgs))
	for name, cfg := range cfgs {
		constructor := registry.GetValidatorConstructor(cfg.Type)
		if constructor == nil {
			return nil, fmt.Errorf("validator %q: %w", name, unknownComponent("validator", cfg.Type))
		}
		v, err := constructor(componentConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("validator %q: %w", name, wrapConfigError(cfg.Type, err))
		}
		out[name] = v
	}
	return out, nil
}

func componentConfig(cfg pipeline.ComponentConfig) map[string]interface{} {
	if cfg.Config == nil {
		return map[string]interface{}{}
	}
	return cfg.Config
}

func unknownComponent(kind, typ string) error {
	return errhandling.NewInvalidConfiguration(typ, fmt.Sprintf("unknown %s type %q", kind, typ), nil)
}

// wrapConfigError keeps classified errors and classifies plain constructor
// errors as configuration errors.
func wrapConfigError(typ string, err error) error {
	if errhandling.GetErrorCategory(err) != errhandling.CategoryUnknown {
		return err
	}
	return errhandling.NewInvalidConfiguration(typ, "invalid configuration", err)
}
