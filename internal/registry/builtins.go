// This file registers all built-in handlers and components during initialization.
package registry

import (
	"github.com/afpipeline/runtime/internal/document"
	"github.com/afpipeline/runtime/internal/modules/condition"
	"github.com/afpipeline/runtime/internal/modules/handler"
	"github.com/afpipeline/runtime/internal/modules/modifier"
	"github.com/afpipeline/runtime/internal/modules/scorer"
	"github.com/afpipeline/runtime/internal/modules/selector"
	"github.com/afpipeline/runtime/internal/modules/validation"
	"github.com/afpipeline/runtime/pkg/pipeline"
)

func init() {
	RegisterBuiltins()
}

// registerBuiltinHandlers registers all built-in handler types.
func registerBuiltinHandlers() {
	// Leaf filters
	RegisterHandler(handler.TypeEliminateDuplicates, func(cfg *pipeline.HandlerConfig, _ Nested) (handler.Handler, error) {
		c, err := handler.ParseEliminateDuplicatesConfig(cfg.Config)
		if err != nil {
			return nil, err
		}
		return handler.NewEliminateDuplicatesFromConfig(c)
	})
	RegisterHandler(handler.TypeRemoveInvalidEntries, func(*pipeline.HandlerConfig, Nested) (handler.Handler, error) {
		return handler.NewRemoveInvalidEntries(), nil
	})
	RegisterHandler(handler.TypeSelectOnlyUniqueValues, func(*pipeline.HandlerConfig, Nested) (handler.Handler, error) {
		return handler.NewSelectOnlyUniqueValues(), nil
	})
	RegisterHandler(handler.TypeSelectUsingMajority, func(*pipeline.HandlerConfig, Nested) (handler.Handler, error) {
		return handler.NewSelectUsingMajority(), nil
	})
	RegisterHandler(handler.TypeKeepAttributesInMemory, func(cfg *pipeline.HandlerConfig, _ Nested) (handler.Handler, error) {
		c, err := handler.ParseKeepAttributesInMemoryConfig(cfg.Config)
		if err != nil {
			return nil, err
		}
		return handler.NewKeepAttributesInMemoryFromConfig(c)
	})
	RegisterHandler(handler.TypeRemoveEntriesFromList, func(cfg *pipeline.HandlerConfig, _ Nested) (handler.Handler, error) {
		c, err := handler.ParseRemoveEntriesFromListConfig(cfg.Config)
		if err != nil {
			return nil, err
		}
		return handler.NewRemoveEntriesFromListFromConfig(c)
	})

	// Structural and text handlers
	RegisterHandler(handler.TypeMoveAndModify, func(cfg *pipeline.HandlerConfig, _ Nested) (handler.Handler, error) {
		c, err := handler.ParseMoveAndModifyConfig(cfg.Config)
		if err != nil {
			return nil, err
		}
		return handler.NewMoveAndModifyFromConfig(c)
	})
	RegisterHandler(handler.TypeRemoveSubAttributes, func(cfg *pipeline.HandlerConfig, nested Nested) (handler.Handler, error) {
		c, err := handler.ParseRemoveSubAttributesConfig(cfg.Config)
		if err != nil {
			return nil, err
		}
		c.Selector = nested.Selector
		c.Scorer = nested.Scorer
		return handler.NewRemoveSubAttributesFromConfig(c)
	})
	RegisterHandler(handler.TypeReformatPersonNames, func(cfg *pipeline.HandlerConfig, _ Nested) (handler.Handler, error) {
		c, err := handler.ParseReformatPersonNamesConfig(cfg.Config)
		if err != nil {
			return nil, err
		}
		return handler.NewReformatPersonNamesFromConfig(c)
	})

	// Composites
	RegisterHandler(handler.TypeSequence, func(_ *pipeline.HandlerConfig, nested Nested) (handler.Handler, error) {
		return handler.NewSequenceFromConfig(handler.SequenceConfig{Steps: nested.Children})
	})
	RegisterHandler(handler.TypeConditional, func(cfg *pipeline.HandlerConfig, nested Nested) (handler.Handler, error) {
		return handler.NewConditionalFromConfig(handler.ConditionalConfig{
			Condition: nested.Condition,
			Invert:    handler.ParseConditionalInvert(cfg.Config),
			Handler:   nested.Handler,
		})
	})
	RegisterHandler(handler.TypeRunObjectOnQuery, func(cfg *pipeline.HandlerConfig, nested Nested) (handler.Handler, error) {
		q, _ := cfg.Config["query"].(string)
		return handler.NewRunObjectOnQueryFromConfig(handler.RunObjectOnQueryConfig{Query: q, Target: nested.Target})
	})
}

// registerBuiltinComponents registers all built-in component types.
func registerBuiltinComponents() {
	RegisterModifier(modifier.TypeScript, func(cfg map[string]interface{}) (handler.ValueModifier, error) {
		c, err := modifier.ParseScriptConfig(cfg)
		if err != nil {
			return nil, err
		}
		return modifier.NewScriptModifierFromConfig(c)
	})
	RegisterModifier(modifier.TypeSet, func(cfg map[string]interface{}) (handler.ValueModifier, error) {
		c, err := modifier.ParseSetConfig(cfg)
		if err != nil {
			return nil, err
		}
		return modifier.NewSetFromConfig(c)
	})
	RegisterModifier(modifier.TypeCase, func(cfg map[string]interface{}) (handler.ValueModifier, error) {
		c, err := modifier.ParseCaseConfig(cfg)
		if err != nil {
			return nil, err
		}
		return modifier.NewCaseFromConfig(c)
	})

	RegisterSplitter(modifier.TypeDelimiter, func(cfg map[string]interface{}) (handler.Splitter, error) {
		c, err := modifier.ParseDelimiterConfig(cfg)
		if err != nil {
			return nil, err
		}
		return modifier.NewDelimiterFromConfig(c)
	})
	RegisterSplitter(modifier.TypeScript, func(cfg map[string]interface{}) (handler.Splitter, error) {
		c, err := modifier.ParseScriptConfig(cfg)
		if err != nil {
			return nil, err
		}
		return modifier.NewScriptSplitterFromConfig(c)
	})

	RegisterSelector(selector.TypeQuery, func(cfg map[string]interface{}) (handler.AttributeSelector, error) {
		c, err := selector.ParseQueryConfig(cfg)
		if err != nil {
			return nil, err
		}
		return selector.NewQueryFromConfig(c)
	})
	RegisterSelector(selector.TypeFilter, func(cfg map[string]interface{}) (handler.AttributeSelector, error) {
		c, err := selector.ParseFilterConfig(cfg)
		if err != nil {
			return nil, err
		}
		return selector.NewFilterFromConfig(c)
	})

	RegisterScorer(scorer.TypeExpr, func(cfg map[string]interface{}) (handler.DataScorer, error) {
		c, err := scorer.ParseExprConfig(cfg)
		if err != nil {
			return nil, err
		}
		return scorer.NewExprFromConfig(c)
	})
	RegisterScorer(scorer.TypeChildCount, func(cfg map[string]interface{}) (handler.DataScorer, error) {
		c, err := scorer.ParseChildCountConfig(cfg)
		if err != nil {
			return nil, err
		}
		return scorer.NewChildCountFromConfig(c)
	})

	RegisterPredicate(condition.TypeExpr, func(cfg map[string]interface{}) (handler.Predicate, error) {
		c, err := condition.ParseExprConfig(cfg)
		if err != nil {
			return nil, err
		}
		return condition.NewExprFromConfig(c)
	})
	RegisterPredicate(condition.TypeQuery, func(cfg map[string]interface{}) (handler.Predicate, error) {
		c, err := condition.ParseQueryConfig(cfg)
		if err != nil {
			return nil, err
		}
		return condition.NewQueryFromConfig(c)
	})

	RegisterValidator(validation.TypeTag, func(cfg map[string]interface{}) (document.FormatValidator, error) {
		c, err := validation.ParseTagConfig(cfg)
		if err != nil {
			return nil, err
		}
		return validation.NewTagFromConfig(c)
	})
	RegisterValidator(validation.TypePattern, func(cfg map[string]interface{}) (document.FormatValidator, error) {
		c, err := validation.ParsePatternConfig(cfg)
		if err != nil {
			return nil, err
		}
		return validation.NewPatternFromConfig(c)
	})
}
