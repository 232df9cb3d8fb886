package searchmap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

type snapshot[T any] struct {
	Entries []Entry[T] `json:"entries"`
}

// WriteSnapshot writes every entry to path as JSON. The file is replaced
// atomically, so a reader never sees a partial snapshot.
func (m *Map[T]) WriteSnapshot(path string) error {
	snap := snapshot[T]{Entries: make([]Entry[T], 0, m.Size())}
	for k, v := range m.Entries() {
		snap.Entries = append(snap.Entries, Entry[T]{Key: k, Value: v})
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshotFailed, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshotFailed, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshotFailed, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrSnapshotFailed, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrSnapshotFailed, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrSnapshotFailed, err)
	}

	return nil
}

// LoadSnapshot stores every entry of the snapshot at path and returns how
// many were read. A missing file is an empty snapshot.
func (m *Map[T]) LoadSnapshot(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSnapshotFailed, err)
	}

	var snap snapshot[T]
	if err := json.Unmarshal(data, &snap); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSnapshotFailed, err)
	}

	if err := m.SetMultiple(ctx, snap.Entries); err != nil {
		return 0, err
	}
	return len(snap.Entries), nil
}
