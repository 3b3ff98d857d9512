package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/afpipeline/runtime/internal/errhandling"
	"github.com/afpipeline/runtime/internal/logger"
)

// Record is a persisted handler settings record.
type Record struct {
	// Type is the handler type the settings belong to.
	Type string `json:"type"`

	// Version is the settings version the record was saved with.
	Version int `json:"version"`

	// Settings is the flat handler configuration.
	Settings map[string]interface{} `json:"settings"`

	SavedAt time.Time `json:"savedAt,omitempty"`
}

// Field is a setting introduced in a given version. Records saved before
// Since get Default when the field is absent.
type Field struct {
	Name    string
	Since   int
	Default interface{}
}

// Codec describes the settings history of one handler type.
type Codec struct {
	// Version is the current settings version.
	Version int
	Fields  []Field
}

var (
	codecsMu sync.RWMutex
	codecs   = make(map[string]Codec)
)

// RegisterCodec registers the settings history of a handler type.
func RegisterCodec(handlerType string, codec Codec) {
	codecsMu.Lock()
	defer codecsMu.Unlock()
	codecs[handlerType] = codec
}

// CodecFor returns the codec of a handler type. Types without a registered
// codec are at version 1 with no defaults.
func CodecFor(handlerType string) Codec {
	codecsMu.RLock()
	defer codecsMu.RUnlock()
	if c, ok := codecs[handlerType]; ok {
		return c
	}
	return Codec{Version: 1}
}

// CodecTypes returns the handler types with a registered codec, sorted.
func CodecTypes() []string {
	codecsMu.RLock()
	defer codecsMu.RUnlock()
	types := make([]string, 0, len(codecs))
	for t := range codecs {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// NewRecord creates a record of the current version for handlerType.
func NewRecord(handlerType string, settings map[string]interface{}) *Record {
	copied := make(map[string]interface{}, len(settings))
	for k, v := range settings {
		copied[k] = v
	}
	return &Record{Type: handlerType, Version: CodecFor(handlerType).Version, Settings: copied}
}

// Upgrade returns a copy of rec at the current version of its type, with
// defaults filled for fields introduced after rec was saved. Records newer
// than the runtime supports fail with an unsupported version error.
func Upgrade(rec *Record) (*Record, error) {
	if rec == nil || rec.Type == "" {
		return nil, errhandling.NewInvalidConfiguration("", "settings record has no type", nil)
	}
	codec := CodecFor(rec.Type)
	if rec.Version > codec.Version {
		return nil, errhandling.NewUnsupportedVersion(rec.Type, codec.Version, rec.Version)
	}
	if rec.Version < 1 {
		return nil, errhandling.NewInvalidConfiguration(rec.Type, fmt.Sprintf("invalid settings version %d", rec.Version), nil)
	}

	out := NewRecord(rec.Type, rec.Settings)
	out.SavedAt = rec.SavedAt
	filled := 0
	for _, f := range codec.Fields {
		if f.Since <= rec.Version {
			continue
		}
		if _, ok := out.Settings[f.Name]; !ok {
			out.Settings[f.Name] = f.Default
			filled++
		}
	}
	if rec.Version < codec.Version {
		logger.Debug("settings upgraded",
			slog.String("handler_type", rec.Type),
			slog.Int("from_version", rec.Version),
			slog.Int("to_version", codec.Version),
			slog.Int("defaults_filled", filled),
		)
	}
	return out, nil
}

// ReadRecord reads a record file without upgrading it.
func ReadRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errhandling.ClassifyError(err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errhandling.NewInvalidConfiguration("", fmt.Sprintf("cannot parse settings file %q", path), err)
	}
	if rec.Settings == nil {
		rec.Settings = map[string]interface{}{}
	}
	return &rec, nil
}

// LoadSettings reads a record file and upgrades it to the current version.
func LoadSettings(path string) (*Record, error) {
	rec, err := ReadRecord(path)
	if err != nil {
		return nil, err
	}
	return Upgrade(rec)
}

// SaveSettings writes rec atomically to path, stamping SavedAt.
func SaveSettings(path string, rec *Record) error {
	if rec == nil || rec.Type == "" {
		return errhandling.NewInvalidConfiguration("", "settings record has no type", nil)
	}
	if rec.Version == 0 {
		rec.Version = CodecFor(rec.Type).Version
	}
	rec.SavedAt = time.Now().UTC()
	if err := writeJSONAtomic(path, rec); err != nil {
		return err
	}
	logger.Debug("settings saved",
		slog.String("handler_type", rec.Type),
		slog.Int("version", rec.Version),
		slog.String("path", path),
	)
	return nil
}
