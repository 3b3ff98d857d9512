package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/afpipeline/runtime/internal/logger"
)

// writeJSONAtomic writes v as indented JSON to path through a temp file and
// a rename, creating the parent directory when needed.
func writeJSONAtomic(path string, v interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		if _, statErr := os.Stat(dir); statErr != nil {
			logger.Warn("failed to create directory",
				"path", dir,
				"error", err.Error(),
			)
			return fmt.Errorf("creating directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o600); err != nil {
		logger.Warn("failed to write temp file",
			"path", tempPath,
			"error", err.Error(),
		)
		return fmt.Errorf("writing temp file: %w", err)
	}

	// Rename is atomic on POSIX
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		logger.Warn("failed to rename temp file",
			"temp_path", tempPath,
			"final_path", path,
			"error", err.Error(),
		)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
