// ABOUTME: File-backed session store holding {"sessionId": ...} as a small JSON document
// ABOUTME: Writes atomically via temp file + rename; corrupt files are removed on load

package session

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Mundir-Doom/loop-support/internal/supportapi"
)

// FileStore keeps the session in a JSON file.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore returns a store writing to path. The parent directory is
// created on first save.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		path:   path,
		logger: logger.With("component", "session_store", "backend", "file"),
	}
}

// Path returns the file location.
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the stored session. Missing files are silently absent; unreadable
// or malformed ones are logged, removed, and reported absent.
func (f *FileStore) Load() (supportapi.Session, bool) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.logger.Warn("failed to load stored session", "path", f.path, "error", err)
		}
		return supportapi.Session{}, false
	}

	s, err := decodeSession(data)
	if err != nil {
		f.logger.Warn("discarding stored session", "path", f.path, "error", err)
		f.Clear()
		return supportapi.Session{}, false
	}
	return s, true
}

// Save writes the session.
func (f *FileStore) Save(s supportapi.Session) {
	data, err := encodeSession(s)
	if err != nil {
		f.logger.Warn("failed to encode support session", "error", err)
		return
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		f.logger.Warn("failed to persist support session", "path", f.path, "error", err)
		return
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*")
	if err != nil {
		f.logger.Warn("failed to persist support session", "path", f.path, "error", err)
		return
	}
	tmpName := tmp.Name()

	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmpName)
		f.logger.Warn("failed to persist support session", "path", f.path, "error", errors.Join(werr, cerr))
		return
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		f.logger.Warn("failed to persist support session", "path", f.path, "error", err)
	}
}

// Clear removes the file. Removing a missing file is not an error.
func (f *FileStore) Clear() {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		f.logger.Warn("failed to clear support session", "path", f.path, "error", err)
	}
}
