// ABOUTME: SQLite session store using modernc.org/sqlite as a tiny key-value table
// ABOUTME: Schema is created automatically; the session lives under StorageKey

package session

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Mundir-Doom/loop-support/internal/supportapi"
)

// SQLiteStore keeps the session in a key-value table so several client
// settings can share one local database file.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the database at path.
// Parent directories are created if needed.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "session_store", "backend", "sqlite")

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Debug("session database ready", "path", path)
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Load reads the stored session; malformed rows are deleted.
func (s *SQLiteStore) Load() (supportapi.Session, bool) {
	var value string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", StorageKey).Scan(&value)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to load stored session", "error", err)
		}
		return supportapi.Session{}, false
	}

	sess, err := decodeSession([]byte(value))
	if err != nil {
		s.logger.Warn("discarding stored session", "error", err)
		s.Clear()
		return supportapi.Session{}, false
	}
	return sess, true
}

// Save upserts the session row.
func (s *SQLiteStore) Save(sess supportapi.Session) {
	data, err := encodeSession(sess)
	if err != nil {
		s.logger.Warn("failed to encode support session", "error", err)
		return
	}
	_, err = s.db.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, StorageKey, string(data), time.Now().UTC())
	if err != nil {
		s.logger.Warn("failed to persist support session", "error", err)
	}
}

// Clear deletes the session row.
func (s *SQLiteStore) Clear() {
	if _, err := s.db.Exec("DELETE FROM kv WHERE key = ?", StorageKey); err != nil {
		s.logger.Warn("failed to clear support session", "error", err)
	}
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
