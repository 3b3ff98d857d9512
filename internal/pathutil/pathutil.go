// Package pathutil resolves file references found in pipeline configurations
// (file:// lists, settings files) against a base directory.
package pathutil

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFilePath rejects empty paths, null bytes and ".." segments.
// Segments are checked before cleaning, so "lists/../etc/passwd" is rejected.
func ValidateFilePath(filePath string) error {
	if filePath == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if strings.Contains(filePath, "\x00") {
		return fmt.Errorf("file path contains invalid characters")
	}

	for _, segment := range strings.Split(filepath.ToSlash(filePath), "/") {
		if segment == ".." {
			return fmt.Errorf("file path contains path traversal: %q", filePath)
		}
	}
	return nil
}

// Resolve returns path joined to baseDir.
// Absolute paths, and any path when baseDir is empty, are returned cleaned
// after the null-byte check. Relative paths under a baseDir must stay inside it.
func Resolve(baseDir, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("file path cannot be empty")
	}
	if strings.Contains(path, "\x00") {
		return "", fmt.Errorf("file path contains invalid characters")
	}
	if baseDir == "" || filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	if err := ValidateFilePath(path); err != nil {
		return "", err
	}
	return filepath.Join(baseDir, path), nil
}
