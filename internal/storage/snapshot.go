package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"liquidityEngine/internal/model"
)

// SnapshotFile persists a pool snapshot as a JSON document.
type SnapshotFile struct {
	path string
}

func NewSnapshotFile(path string) *SnapshotFile {
	return &SnapshotFile{path: path}
}

func (f *SnapshotFile) Path() string { return f.path }

// Load reads the snapshot. The boolean is false when the file does not exist.
func (f *SnapshotFile) Load() (model.PoolSnapshot, bool, error) {
	stat, err := os.Stat(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.PoolSnapshot{}, false, nil
		}
		return model.PoolSnapshot{}, false, fmt.Errorf("stat snapshot: %w", err)
	}
	if stat.IsDir() {
		return model.PoolSnapshot{}, false, fmt.Errorf("snapshot path is a directory")
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return model.PoolSnapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}
	var snap model.PoolSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.PoolSnapshot{}, false, fmt.Errorf("parse snapshot: %w", err)
	}
	return snap, true, nil
}

// Save replaces the snapshot atomically.
func (f *SnapshotFile) Save(snap model.PoolSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := writeFileAtomic(f.path, data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// SaveSnapshot is Save with the signature shared by database stores.
func (f *SnapshotFile) SaveSnapshot(_ context.Context, snap model.PoolSnapshot) error {
	return f.Save(snap)
}
