package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// File stores one JSON snapshot file per thread key under a base directory.
// Saves write to a temp file and rename into place, so a reader never sees a
// half-written snapshot. Intended for development and tests; production uses
// Postgres.
type File struct {
	basePath string
}

// NewFile creates a file-backed checkpoint store rooted at basePath.
func NewFile(basePath string) (*File, error) {
	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, fmt.Errorf("%w: creating checkpoint directory: %v", ErrIO, err)
	}
	return &File{basePath: basePath}, nil
}

var _ Store = (*File)(nil)

func (f *File) path(threadKey string) string {
	return filepath.Join(f.basePath, threadKey+".json")
}

// Load returns the snapshot for threadKey, or an empty state when absent.
func (f *File) Load(_ context.Context, threadKey string) (*State, error) {
	raw, err := os.ReadFile(f.path(threadKey))
	if os.IsNotExist(err) {
		return &State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading thread %s: %v", ErrIO, threadKey, err)
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("%w: decoding thread %s: %v", ErrIO, threadKey, err)
	}
	return &state, nil
}

// Save atomically replaces the snapshot for threadKey via temp-file rename.
func (f *File) Save(_ context.Context, threadKey string, state *State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("%w: encoding thread %s: %v", ErrIO, threadKey, err)
	}

	tmp, err := os.CreateTemp(f.basePath, threadKey+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp snapshot: %v", ErrIO, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: writing snapshot: %v", ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: closing snapshot: %v", ErrIO, err)
	}

	if err := os.Rename(tmpName, f.path(threadKey)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: replacing snapshot for %s: %v", ErrIO, threadKey, err)
	}
	return nil
}

// Delete removes the snapshot for threadKey; absent threads are not errors.
func (f *File) Delete(_ context.Context, threadKey string) error {
	if err := os.Remove(f.path(threadKey)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: deleting thread %s: %v", ErrIO, threadKey, err)
	}
	return nil
}
