package backlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"telemetry/pkg/report"
)

// FileStore keeps process state in a single JSON document on disk, with
// the backlog stored under StateKey. Writes go through a temp file and
// rename so a crash mid-write cannot corrupt the previous state.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// backlogState is the document stored under StateKey.
type backlogState struct {
	Backup []report.Record `json:"backup"`
}

// NewFileStore creates a file-backed store at the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context) ([]report.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDoc()
	if err != nil {
		return nil, err
	}

	raw, ok := doc[StateKey]
	if !ok {
		return nil, nil
	}

	var state backlogState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to decode backlog state: %w", err)
	}
	return state.Backup, nil
}

// Save implements Store.
func (s *FileStore) Save(_ context.Context, records []report.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeState(backlogState{Backup: records})
}

// Clear implements Store.
func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeState(backlogState{})
}

func (s *FileStore) writeState(state backlogState) error {
	doc, err := s.readDoc()
	if err != nil {
		return err
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode backlog state: %w", err)
	}
	doc[StateKey] = raw

	return s.writeDoc(doc)
}

// readDoc reads the whole state document. A missing file yields an empty
// document.
func (s *FileStore) readDoc() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	doc := map[string]json.RawMessage{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode state file: %w", err)
		}
	}
	return doc, nil
}

// writeDoc atomically replaces the state document.
func (s *FileStore) writeDoc(doc map[string]json.RawMessage) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode state file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close state file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// Verify FileStore implements Store
var _ Store = (*FileStore)(nil)
