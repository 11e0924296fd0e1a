package source

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// ScrapeState is the lightweight cross-process sidecar an adapter keeps
// outside the primary store: recently processed ids, the last query, and the
// last run time. It is read at adapter construction and rewritten after each
// unit of work.
type ScrapeState struct {
	LastProcessedIDs []string  `json:"last_processed_ids"`
	LastQuery        string    `json:"last_query"`
	LastRun          time.Time `json:"last_run"`
}

// StateStore persists a ScrapeState.
type StateStore interface {
	Load() (*ScrapeState, error)
	Save(state *ScrapeState) error
}

// FileStateStore persists scrape state as a JSON document.
type FileStateStore struct {
	Path string
}

// Load reads the persisted state; a missing file yields an empty state.
func (s *FileStateStore) Load() (*ScrapeState, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ScrapeState{}, nil
		}
		return nil, fmt.Errorf("failed to read scrape state: %w", err)
	}
	var state ScrapeState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse scrape state: %w", err)
	}
	return &state, nil
}

// Save rewrites the state document.
func (s *FileStateStore) Save(state *ScrapeState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return os.WriteFile(s.Path, data, 0o644)
}

// MemoryStateStore keeps scrape state in memory, for tests.
type MemoryStateStore struct {
	mu    sync.Mutex
	state ScrapeState
}

// Load returns a copy of the stored state.
func (s *MemoryStateStore) Load() (*ScrapeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.state
	return &state, nil
}

// Save replaces the stored state.
func (s *MemoryStateStore) Save(state *ScrapeState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = *state
	return nil
}
