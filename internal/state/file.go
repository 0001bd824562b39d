package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"pattern-alerts/internal/alert"
)

// FileStore keeps the alert state in a single JSON document on disk.
// Saves go through a temp file and rename so a kill mid-write can never
// leave a partially written record behind.
type FileStore struct {
	path   string
	logger zerolog.Logger
}

// NewFileStore builds a file-backed store at path.
func NewFileStore(path string, logger zerolog.Logger) *FileStore {
	return &FileStore{
		path:   path,
		logger: logger.With().Str("component", "state_file").Logger(),
	}
}

// Load reads the stored state, degrading to the first-run state when the
// file is missing or unreadable as JSON.
func (f *FileStore) Load(ctx context.Context, instrument string) (alert.State, error) {
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return alert.NewState(instrument), nil
	}
	if err != nil {
		return alert.NewState(instrument), fmt.Errorf("%w: read %s: %v", ErrUnavailable, f.path, err)
	}

	st, ok := decode(raw, instrument)
	if !ok {
		f.logger.Warn().Str("path", f.path).Msg("state file corrupt; resetting to first-run state")
	}
	return st, nil
}

// Save writes the state atomically via temp-file-then-rename.
func (f *FileStore) Save(ctx context.Context, st alert.State) error {
	raw, err := encode(st)
	if err != nil {
		return fmt.Errorf("encode alert state: %w", err)
	}

	dir := filepath.Dir(f.path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: mkdir %s: %v", ErrUnavailable, dir, err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".alertstate-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", ErrUnavailable, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write temp file: %v", ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close temp file: %v", ErrUnavailable, err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: rename into place: %v", ErrUnavailable, err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
