package store

import (
	"context"
	"path/filepath"
	"testing"
)

const phonesDDL = `CREATE TABLE phones (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	contact_id INTEGER,
	number TEXT NOT NULL DEFAULT '',
	position INTEGER
)`

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createPhones creates the phones table used by most tests.
func createPhones(t *testing.T, s *Store) {
	t.Helper()
	if _, err := s.DB().Exec(phonesDDL); err != nil {
		t.Fatalf("create phones: %v", err)
	}
}
