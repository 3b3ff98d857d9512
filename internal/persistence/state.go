// Package persistence stores versioned handler settings records and the
// last run state of each pipeline. Files are JSON written atomically.
package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/afpipeline/runtime/internal/logger"
)

// DefaultStatePath is the default directory for state files.
const DefaultStatePath = "./afpipeline-data/state"

// Common errors
var (
	// ErrInvalidPipelineID is returned when pipeline ID is empty.
	ErrInvalidPipelineID = errors.New("pipeline ID is required")

	// ErrNilState is returned when state is nil.
	ErrNilState = errors.New("state is nil")
)

// State is the persisted outcome of the last run of a pipeline.
type State struct {
	PipelineID string `json:"pipelineId"`

	// LastDocumentID is the document processed by the last run.
	LastDocumentID string `json:"lastDocumentId,omitempty"`

	// LastStatus is "success" or "error".
	LastStatus string `json:"lastStatus"`

	// LastRunAt is when the last run started.
	LastRunAt *time.Time `json:"lastRunAt,omitempty"`

	// LastSuccessAt is when the last successful run started.
	LastSuccessAt *time.Time `json:"lastSuccessAt,omitempty"`

	// Runs counts the runs recorded for the pipeline.
	Runs int `json:"runs"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// FormatLastRun returns LastRunAt as RFC3339, or "" if unset.
func (s *State) FormatLastRun() string {
	if s.LastRunAt == nil {
		return ""
	}
	return s.LastRunAt.Format(time.RFC3339)
}

// StateStore provides thread-safe persistence of pipeline state.
type StateStore struct {
	basePath string
	mu       sync.RWMutex
}

// NewStateStore creates a StateStore. An empty basePath uses DefaultStatePath.
func NewStateStore(basePath string) *StateStore {
	if basePath == "" {
		basePath = DefaultStatePath
	}
	return &StateStore{basePath: basePath}
}

// filePath returns the state file of a pipeline. The ID is reduced to its
// base name so it cannot escape basePath.
func (s *StateStore) filePath(pipelineID string) string {
	return filepath.Join(s.basePath, filepath.Base(pipelineID)+".json")
}

// Save persists the state for a pipeline.
func (s *StateStore) Save(pipelineID string, state *State) error {
	if pipelineID == "" {
		return ErrInvalidPipelineID
	}
	if state == nil {
		return ErrNilState
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state.PipelineID = pipelineID
	state.UpdatedAt = time.Now()
	if err := writeJSONAtomic(s.filePath(pipelineID), state); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}

	logger.Debug("state saved",
		"pipeline_id", pipelineID,
		"path", s.filePath(pipelineID),
		"runs", state.Runs,
	)
	return nil
}

// Load retrieves the state for a pipeline. It returns nil, nil when the
// pipeline never ran.
func (s *StateStore) Load(pipelineID string) (*State, error) {
	if pipelineID == "" {
		return nil, ErrInvalidPipelineID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.filePath(pipelineID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("no state file found (first run)",
				"pipeline_id", pipelineID,
				"path", path,
			)
			return nil, nil
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		logger.Warn("failed to unmarshal state",
			"pipeline_id", pipelineID,
			"path", path,
			"error", err.Error(),
		)
		return nil, fmt.Errorf("unmarshaling state: %w", err)
	}
	return &state, nil
}

// Record loads the state of a pipeline, applies one run to it and saves it.
func (s *StateStore) Record(pipelineID, documentID, status string, startedAt time.Time) (*State, error) {
	state, err := s.Load(pipelineID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = &State{}
	}
	state.LastDocumentID = documentID
	state.LastStatus = status
	state.LastRunAt = &startedAt
	if status == "success" {
		state.LastSuccessAt = &startedAt
	}
	state.Runs++
	if err := s.Save(pipelineID, state); err != nil {
		return nil, err
	}
	return state, nil
}

// Delete removes the state file for a pipeline. A missing file is not an error.
func (s *StateStore) Delete(pipelineID string) error {
	if pipelineID == "" {
		return ErrInvalidPipelineID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.filePath(pipelineID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting state file: %w", err)
	}
	return nil
}

// Exists checks if a state file exists for a pipeline.
func (s *StateStore) Exists(pipelineID string) (bool, error) {
	if pipelineID == "" {
		return false, ErrInvalidPipelineID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := os.Stat(s.filePath(pipelineID)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking state file: %w", err)
	}
	return true, nil
}
