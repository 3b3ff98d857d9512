package handler

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"

	"github.com/afpipeline/runtime/internal/document"
	"github.com/afpipeline/runtime/internal/httpconfig"
	"github.com/afpipeline/runtime/internal/listsource"
	"github.com/afpipeline/runtime/internal/logger"
	"github.com/afpipeline/runtime/pkg/attribute"
)

// RemoveEntriesFromListConfig represents the configuration for RemoveEntriesFromList.
type RemoveEntriesFromListConfig struct {
	// Entries are literal values or file:// / http(s):// list references
	Entries []string `json:"entries"`
	// CaseSensitive selects exact matching; default is Unicode case folding
	CaseSensitive bool `json:"caseSensitive,omitempty"`
	// Lists defaults to listsource.Default
	Lists *listsource.Cache `json:"-"`
}

// RemoveEntriesFromList removes, at any depth, attributes whose text is in the list.
type RemoveEntriesFromList struct {
	entries       []string
	caseSensitive bool
	lists         *listsource.Cache
	hasExternal   bool
	static        map[string]bool
}

// NewRemoveEntriesFromListFromConfig creates the handler.
func NewRemoveEntriesFromListFromConfig(config RemoveEntriesFromListConfig) (*RemoveEntriesFromList, error) {
	if len(config.Entries) == 0 {
		return nil, configError(TypeRemoveEntriesFromList, "'entries' must contain at least one entry")
	}
	lists := config.Lists
	if lists == nil {
		lists = listsource.Default
	}
	h := &RemoveEntriesFromList{
		entries:       append([]string(nil), config.Entries...),
		caseSensitive: config.CaseSensitive,
		lists:         lists,
	}
	for _, e := range h.entries {
		if listsource.IsExternal(e) || strings.Contains(e, "<") {
			h.hasExternal = true
		}
	}
	if !h.hasExternal {
		h.static = h.buildSet(h.entries)
	}
	return h, nil
}

// Process implements Handler.
func (h *RemoveEntriesFromList) Process(ctx context.Context, forest *attribute.Forest, doc *document.Document) error {
	set := h.static
	if set == nil {
		entries, err := h.lists.Expand(ctx, doc, h.entries)
		if err != nil {
			return err
		}
		set = h.buildSet(entries)
	}

	fold := cases.Fold()
	removed := forest.RemoveWhere(func(a *attribute.Attribute) bool {
		text := a.Text()
		if !h.caseSensitive {
			text = fold.String(text)
		}
		return set[text]
	})
	if removed > 0 {
		logger.Debug("listed entries removed", slog.Int("removed", removed))
	}
	return nil
}

func (h *RemoveEntriesFromList) buildSet(entries []string) map[string]bool {
	fold := cases.Fold()
	set := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !h.caseSensitive {
			e = fold.String(e)
		}
		set[e] = true
	}
	return set
}

// ParseRemoveEntriesFromListConfig parses a raw configuration map.
func ParseRemoveEntriesFromListConfig(config map[string]interface{}) (RemoveEntriesFromListConfig, error) {
	var cfg RemoveEntriesFromListConfig
	entries, ok := getStringSlice(config, "entries")
	if !ok || len(entries) == 0 {
		return cfg, configError(TypeRemoveEntriesFromList, "'entries' is required")
	}
	cfg.Entries = entries
	if v, ok := getBool(config, "caseSensitive"); ok {
		cfg.CaseSensitive = v
	}

	// Lists fetched with custom HTTP settings or from a base directory get a
	// cache of their own.
	rawHTTP, hasHTTP := config["http"].(map[string]interface{})
	baseDir, _ := getString(config, "listDir")
	if hasHTTP || baseDir != "" {
		httpCfg := httpconfig.Extract(rawHTTP)
		if err := httpconfig.Validate(httpCfg); err != nil {
			return cfg, configError(TypeRemoveEntriesFromList, "%s", err.Error())
		}
		cfg.Lists = listsource.NewWithHTTPConfig(httpCfg)
		cfg.Lists.BaseDir = baseDir
	}
	return cfg, nil
}

var _ Handler = (*RemoveEntriesFromList)(nil)
