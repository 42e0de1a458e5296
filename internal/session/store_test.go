// ABOUTME: Tests for the file, SQLite and memory session stores
// ABOUTME: Covers round trips, malformed data cleanup, and idempotent clears

package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mundir-Doom/loop-support/internal/supportapi"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store := NewFileStore(path, nil)

	_, ok := store.Load()
	assert.False(t, ok, "missing file should be absent")

	store.Save(supportapi.Session{ID: "abc"})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sessionId":"abc"}`, string(data))

	got, ok := store.Load()
	require.True(t, ok)
	assert.Equal(t, "abc", got.ID)

	store.Clear()
	_, ok = store.Load()
	assert.False(t, ok)

	// second clear of a missing file is harmless
	store.Clear()
}

func TestFileStoreMalformedIsCleared(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "{{{"},
		{"missing id", `{"other":"x"}`},
		{"empty id", `{"sessionId":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "session.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			store := NewFileStore(path, nil)
			_, ok := store.Load()
			assert.False(t, ok)

			_, err := os.Stat(path)
			assert.True(t, os.IsNotExist(err), "malformed file should be removed")
		})
	}
}

func TestFileStoreSaveFailureIsSwallowed(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	// parent "directory" is a regular file, so MkdirAll fails
	store := NewFileStore(filepath.Join(blocker, "session.json"), nil)
	store.Save(supportapi.Session{ID: "abc"})

	_, ok := store.Load()
	assert.False(t, ok)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "support.db")

	store, err := NewSQLiteStore(path, nil)
	require.NoError(t, err)

	_, ok := store.Load()
	assert.False(t, ok)

	store.Save(supportapi.Session{ID: "first"})
	store.Save(supportapi.Session{ID: "second"})

	got, ok := store.Load()
	require.True(t, ok)
	assert.Equal(t, "second", got.ID)
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok = reopened.Load()
	require.True(t, ok, "session should survive reopen")
	assert.Equal(t, "second", got.ID)

	reopened.Clear()
	_, ok = reopened.Load()
	assert.False(t, ok)
}

func TestSQLiteStoreMalformedRowIsCleared(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "support.db"), nil)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.db.Exec(
		"INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)",
		StorageKey, `{"nope":true}`,
	)
	require.NoError(t, err)

	_, ok := store.Load()
	assert.False(t, ok)

	var count int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM kv").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	_, ok := store.Load()
	assert.False(t, ok)

	store.Save(supportapi.Session{ID: "m"})
	got, ok := store.Load()
	require.True(t, ok)
	assert.Equal(t, "m", got.ID)

	store.Clear()
	_, ok = store.Load()
	assert.False(t, ok)

	saves, clears := store.Counts()
	assert.Equal(t, 1, saves)
	assert.Equal(t, 1, clears)

	seeded := NewMemoryStoreWith(supportapi.Session{})
	_, ok = seeded.Load()
	assert.False(t, ok, "empty id is treated as absent")
}
