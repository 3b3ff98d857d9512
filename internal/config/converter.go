package config

import (
	"fmt"

	"github.com/afpipeline/runtime/pkg/pipeline"
)

// ConvertToDefinition converts parsed configuration data to a pipeline
// Definition. The data should have been validated against the schema first.
//
// The configuration is expected to have this structure:
//
//	{
//	  "schemaVersion": "1.0.0",
//	  "pipeline": {
//	    "id": "...",
//	    "name": "...",
//	    "version": "...",
//	    "validators": {"zip": {"type": "pattern", "pattern": "[0-9]{5}"}},
//	    "handler": {"type": "sequence", "children": [...]}
//	  }
//	}
func ConvertToDefinition(data map[string]interface{}) (*pipeline.Definition, error) {
	if data == nil {
		return nil, fmt.Errorf("configuration data is nil")
	}

	p, ok := data["pipeline"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'pipeline' section")
	}

	def := &pipeline.Definition{}
	if def.Name, ok = p["name"].(string); !ok {
		return nil, fmt.Errorf("missing required field 'pipeline.name'")
	}
	if def.Version, ok = p["version"].(string); !ok {
		return nil, fmt.Errorf("missing required field 'pipeline.version'")
	}
	def.ID = def.Name
	if id, okID := p["id"].(string); okID && id != "" {
		def.ID = id
	}
	def.Description, _ = p["description"].(string)

	if validators, okV := p["validators"].(map[string]interface{}); okV {
		def.Validators = make(map[string]pipeline.ComponentConfig, len(validators))
		for name, raw := range validators {
			m, isMap := raw.(map[string]interface{})
			if !isMap {
				return nil, fmt.Errorf("invalid validator %q", name)
			}
			comp, err := convertComponent(m)
			if err != nil {
				return nil, fmt.Errorf("invalid validator %q: %w", name, err)
			}
			def.Validators[name] = *comp
		}
	}

	h, ok := p["handler"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'pipeline.handler' section")
	}
	handlerCfg, err := convertHandler(h)
	if err != nil {
		return nil, fmt.Errorf("invalid handler: %w", err)
	}
	def.Handler = handlerCfg

	return def, nil
}

// convertHandler converts a raw handler map, recursing into nested handlers.
func convertHandler(data map[string]interface{}) (*pipeline.HandlerConfig, error) {
	cfg := &pipeline.HandlerConfig{}

	typ, ok := data["type"].(string)
	if !ok {
		return nil, fmt.Errorf("missing required field 'type'")
	}
	cfg.Type = typ
	cfg.Name, _ = data["name"].(string)
	cfg.Description, _ = data["description"].(string)
	cfg.SettingsFile, _ = data["settingsFile"].(string)
	if enabled, okEnabled := data["enabled"].(bool); okEnabled {
		cfg.Enabled = &enabled
	}
	if c, okConfig := data["config"].(map[string]interface{}); okConfig {
		cfg.Config = c
	}

	if children, okChildren := data["children"].([]interface{}); okChildren {
		for i, raw := range children {
			m, isMap := raw.(map[string]interface{})
			if !isMap {
				return nil, fmt.Errorf("invalid child at index %d", i)
			}
			child, err := convertHandler(m)
			if err != nil {
				return nil, fmt.Errorf("invalid child at index %d: %w", i, err)
			}
			cfg.Children = append(cfg.Children, *child)
		}
	}

	if nested, okNested := data["handler"].(map[string]interface{}); okNested {
		h, err := convertHandler(nested)
		if err != nil {
			return nil, fmt.Errorf("invalid nested handler: %w", err)
		}
		cfg.Handler = h
	}

	if target, okTarget := data["target"].(map[string]interface{}); okTarget {
		t, err := convertTarget(target)
		if err != nil {
			return nil, fmt.Errorf("invalid target: %w", err)
		}
		cfg.Target = t
	}

	return cfg, nil
}

func convertTarget(data map[string]interface{}) (*pipeline.TargetConfig, error) {
	kind, ok := data["kind"].(string)
	if !ok {
		return nil, fmt.Errorf("missing required field 'kind'")
	}
	target := &pipeline.TargetConfig{Kind: kind}

	if comp, okComp := data["component"].(map[string]interface{}); okComp {
		c, err := convertComponent(comp)
		if err != nil {
			return nil, fmt.Errorf("invalid component: %w", err)
		}
		target.Component = c
	}
	if h, okHandler := data["handler"].(map[string]interface{}); okHandler {
		nested, err := convertHandler(h)
		if err != nil {
			return nil, err
		}
		target.Handler = nested
	}
	return target, nil
}

// convertComponent accepts {"type": t, "config": {...}} and the flat
// {"type": t, key: value, ...} form.
func convertComponent(data map[string]interface{}) (*pipeline.ComponentConfig, error) {
	typ, ok := data["type"].(string)
	if !ok {
		return nil, fmt.Errorf("missing required field 'type'")
	}
	comp := &pipeline.ComponentConfig{Type: typ, Config: make(map[string]interface{})}
	if inner, okInner := data["config"].(map[string]interface{}); okInner {
		comp.Config = inner
		return comp, nil
	}
	for key, value := range data {
		if key != "type" {
			comp.Config[key] = value
		}
	}
	return comp, nil
}
