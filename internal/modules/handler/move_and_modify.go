package handler

import (
	"context"
	"log/slog"

	"github.com/afpipeline/runtime/internal/document"
	"github.com/afpipeline/runtime/internal/logger"
	"github.com/afpipeline/runtime/internal/query"
	"github.com/afpipeline/runtime/pkg/attribute"
)

// Destinations for MoveAndModifyAttributes.
const (
	MoveToRoot   = "root"
	MoveToParent = "parent"
)

// Naming modes for MoveAndModifyAttributes.
const (
	NameUnchanged    = "unchanged"
	NameRootOrParent = "rootOrParent"
	NameSpecified    = "specified"
)

// MoveAndModifyConfig represents the configuration for MoveAndModifyAttributes.
type MoveAndModifyConfig struct {
	// Query selects the attributes to move; every match must be at depth 2 or more
	Query string `json:"query"`
	// MoveTo is "root" (default) or "parent"
	MoveTo string `json:"moveTo,omitempty"`
	// NameMode is "unchanged" (default), "rootOrParent" or "specified"
	NameMode string `json:"nameMode,omitempty"`
	// SpecifiedName is used with NameMode "specified"
	SpecifiedName string `json:"specifiedName,omitempty"`
	// RetainType keeps the current type as first type part
	RetainType bool `json:"retainType,omitempty"`
	// AddRootOrParentType appends the type of the root (or parent) attribute
	AddRootOrParentType bool `json:"addRootOrParentType,omitempty"`
	// AddNameToType appends the original attribute name
	AddNameToType bool `json:"addNameToType,omitempty"`
	// AddSpecifiedType appends SpecifiedType
	AddSpecifiedType bool   `json:"addSpecifiedType,omitempty"`
	SpecifiedType    string `json:"specifiedType,omitempty"`
	// DeleteEmptyAncestors removes ancestors left without children
	DeleteEmptyAncestors bool `json:"deleteEmptyAncestors,omitempty"`
	// Engine defaults to query.Default()
	Engine query.Engine `json:"-"`
}

// MoveAndModifyAttributes promotes matched attributes to the roots or to
// their grandparent, renaming and retyping them on the way.
type MoveAndModifyAttributes struct {
	config MoveAndModifyConfig
	engine query.Engine
}

// NewMoveAndModifyFromConfig creates the handler.
func NewMoveAndModifyFromConfig(config MoveAndModifyConfig) (*MoveAndModifyAttributes, error) {
	engine := config.Engine
	if engine == nil {
		engine = query.Default()
	}
	if config.Query == "" {
		return nil, configError(TypeMoveAndModify, "'query' is required")
	}
	depth, err := engine.MinQueryDepth(config.Query)
	if err != nil {
		return nil, err
	}
	if depth < 2 {
		return nil, configError(TypeMoveAndModify,
			"query %q can match root attributes; every match must be at depth 2 or more", config.Query)
	}

	if config.MoveTo == "" {
		config.MoveTo = MoveToRoot
	}
	if !equalFoldAny(config.MoveTo, MoveToRoot, MoveToParent) {
		return nil, configError(TypeMoveAndModify, "invalid moveTo %q (expected root or parent)", config.MoveTo)
	}

	if config.NameMode == "" {
		config.NameMode = NameUnchanged
	}
	switch {
	case equalFoldAny(config.NameMode, NameUnchanged, NameRootOrParent):
	case equalFoldAny(config.NameMode, NameSpecified):
		if !attribute.IsValidName(config.SpecifiedName) {
			return nil, configError(TypeMoveAndModify, "specifiedName %q is not a valid attribute name", config.SpecifiedName)
		}
	default:
		return nil, configError(TypeMoveAndModify, "invalid nameMode %q", config.NameMode)
	}

	if config.AddSpecifiedType && config.SpecifiedType == "" {
		return nil, configError(TypeMoveAndModify, "'specifiedType' is required when addSpecifiedType is set")
	}

	logger.Debug("moveAndModify handler initialized",
		slog.String("query", config.Query),
		slog.String("move_to", config.MoveTo),
		slog.String("name_mode", config.NameMode),
	)
	return &MoveAndModifyAttributes{config: config, engine: engine}, nil
}

// Process implements Handler.
func (h *MoveAndModifyAttributes) Process(_ context.Context, forest *attribute.Forest, _ *document.Document) error {
	matches, err := h.engine.Query(forest, h.config.Query)
	if err != nil {
		return err
	}
	toRoot := equalFoldAny(h.config.MoveTo, MoveToRoot)
	relocated := make(map[*attribute.Attribute]bool, len(matches))

	for _, attr := range matches {
		parent, found := forest.ParentOf(attr)
		if !found || parent == nil {
			continue
		}

		ancestor := parent
		var container *attribute.Attribute
		if toRoot {
			ancestor = forest.RootAncestorOf(attr)
		} else {
			container, _ = forest.ParentOf(parent)
		}

		newType := h.newType(attr, ancestor)
		newName := h.newName(attr, ancestor)

		forest.Remove(attr)
		attr.Type = newType
		attr.Name = newName
		if container == nil {
			forest.Append(attr)
		} else {
			container.AddChild(attr)
		}
		relocated[attr] = true

		if h.config.DeleteEmptyAncestors {
			deleteEmptyAncestors(forest, parent, container, relocated)
		}
	}
	return nil
}

func (h *MoveAndModifyAttributes) newType(attr, ancestor *attribute.Attribute) string {
	var parts []string
	if h.config.RetainType {
		parts = append(parts, attr.Type)
	}
	if h.config.AddRootOrParentType {
		parts = append(parts, ancestor.Type)
	}
	if h.config.AddNameToType {
		parts = append(parts, attr.Name)
	}
	if h.config.AddSpecifiedType {
		parts = append(parts, h.config.SpecifiedType)
	}
	return attribute.JoinType(parts...)
}

func (h *MoveAndModifyAttributes) newName(attr, ancestor *attribute.Attribute) string {
	switch {
	case equalFoldAny(h.config.NameMode, NameRootOrParent):
		return ancestor.Name
	case equalFoldAny(h.config.NameMode, NameSpecified):
		return h.config.SpecifiedName
	default:
		return attr.Name
	}
}

// deleteEmptyAncestors removes childless attributes walking up from start
// until stop (nil stops at the roots). Relocated attributes are kept.
func deleteEmptyAncestors(forest *attribute.Forest, start, stop *attribute.Attribute, relocated map[*attribute.Attribute]bool) {
	for cur := start; cur != nil && cur != stop; {
		if len(cur.Children) > 0 || relocated[cur] {
			return
		}
		next, found := forest.ParentOf(cur)
		if !found {
			return
		}
		forest.Remove(cur)
		cur = next
	}
}

// ParseMoveAndModifyConfig parses a raw configuration map.
func ParseMoveAndModifyConfig(config map[string]interface{}) (MoveAndModifyConfig, error) {
	var cfg MoveAndModifyConfig
	q, ok := getString(config, "query")
	if !ok || q == "" {
		return cfg, configError(TypeMoveAndModify, "'query' is required and must be a non-empty string")
	}
	cfg.Query = q
	cfg.MoveTo, _ = getString(config, "moveTo")
	cfg.NameMode, _ = getString(config, "nameMode")
	cfg.SpecifiedName, _ = getString(config, "specifiedName")
	cfg.SpecifiedType, _ = getString(config, "specifiedType")
	cfg.RetainType, _ = getBool(config, "retainType")
	cfg.AddRootOrParentType, _ = getBool(config, "addRootOrParentType")
	cfg.AddNameToType, _ = getBool(config, "addNameToType")
	cfg.AddSpecifiedType, _ = getBool(config, "addSpecifiedType")
	cfg.DeleteEmptyAncestors, _ = getBool(config, "deleteEmptyAncestors")
	return cfg, nil
}

var _ Handler = (*MoveAndModifyAttributes)(nil)
