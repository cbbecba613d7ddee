package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// StateFile keeps a progress watermark in a JSON file. When name is set, a
// file written under another name is rejected.
type StateFile struct {
	path string
	name string
}

func NewStateFile(path, name string) *StateFile {
	return &StateFile{path: path, name: name}
}

type stateRecord struct {
	Name          string `json:"name,omitempty"`
	LastProcessed uint64 `json:"last_processed"`
	UpdatedAt     string `json:"updated_at"`
}

func (s *StateFile) Load(context.Context) (uint64, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("read state: %w", err)
	}

	var rec stateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return 0, false, fmt.Errorf("parse state: %w", err)
	}
	if s.name != "" && rec.Name != "" && rec.Name != s.name {
		return 0, false, fmt.Errorf("state file %s belongs to %s, not %s", s.path, rec.Name, s.name)
	}
	return rec.LastProcessed, true, nil
}

func (s *StateFile) Save(_ context.Context, last uint64) error {
	data, err := json.Marshal(stateRecord{
		Name:          s.name,
		LastProcessed: last,
		UpdatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return writeFileAtomic(s.path, data)
}

// NamedState is a table of named watermarks, such as postgres.Store.
type NamedState interface {
	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, last uint64) error
}

// StateRow binds one name of a NamedState.
type StateRow struct {
	Store NamedState
	Name  string
}

func (s StateRow) Load(ctx context.Context) (uint64, bool, error) {
	return s.Store.LoadState(ctx, s.Name)
}

func (s StateRow) Save(ctx context.Context, last uint64) error {
	return s.Store.SaveState(ctx, s.Name, last)
}

// writeFileAtomic replaces path with data through a temporary file.
func writeFileAtomic(path string, data []byte) error {
	if err := ensureDir(path); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmpPath, err)
	}
	return nil
}
