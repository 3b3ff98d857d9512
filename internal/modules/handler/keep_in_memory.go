package handler

import (
	"context"
	"log/slog"

	"github.com/afpipeline/runtime/internal/document"
	"github.com/afpipeline/runtime/internal/logger"
	"github.com/afpipeline/runtime/internal/memstore"
	"github.com/afpipeline/runtime/pkg/attribute"
)

// KeepAttributesInMemoryConfig represents the configuration for KeepAttributesInMemory.
type KeepAttributesInMemoryConfig struct {
	// Name is the key the forest is stored under (required)
	Name string `json:"name"`
	// Store defaults to memstore.Default
	Store *memstore.Store `json:"-"`
}

// KeepAttributesInMemory stores a shared reference to the current forest.
type KeepAttributesInMemory struct {
	name  string
	store *memstore.Store
}

// NewKeepAttributesInMemoryFromConfig creates the handler.
func NewKeepAttributesInMemoryFromConfig(config KeepAttributesInMemoryConfig) (*KeepAttributesInMemory, error) {
	if config.Name == "" {
		return nil, configError(TypeKeepAttributesInMemory, "'name' is required")
	}
	store := config.Store
	if store == nil {
		store = memstore.Default
	}
	return &KeepAttributesInMemory{name: config.Name, store: store}, nil
}

// Process implements Handler.
func (h *KeepAttributesInMemory) Process(_ context.Context, forest *attribute.Forest, _ *document.Document) error {
	h.store.Put(h.name, forest)
	logger.Debug("forest kept in memory", slog.String("name", h.name), slog.Int("roots", forest.Len()))
	return nil
}

// ParseKeepAttributesInMemoryConfig parses a raw configuration map.
func ParseKeepAttributesInMemoryConfig(config map[string]interface{}) (KeepAttributesInMemoryConfig, error) {
	var cfg KeepAttributesInMemoryConfig
	name, ok := getString(config, "name")
	if !ok || name == "" {
		return cfg, configError(TypeKeepAttributesInMemory, "'name' is required and must be a non-empty string")
	}
	cfg.Name = name
	return cfg, nil
}

var _ Handler = (*KeepAttributesInMemory)(nil)
