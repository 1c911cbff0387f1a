package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/roach88/ranklist/internal/store"
)

// PhonesSchema is the table most tests list: phones belonging to contacts.
const PhonesSchema = `
CREATE TABLE phones (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	contact_id INTEGER,
	number TEXT NOT NULL DEFAULT '',
	position INTEGER
);
`

// OpenSQLite opens a file-backed SQLite store in dir and applies ddl.
func OpenSQLite(ctx context.Context, dir, ddl string) (*store.Store, error) {
	s, err := store.OpenSQLite(ctx, filepath.Join(dir, "ranklist.db"))
	if err != nil {
		return nil, err
	}
	if ddl != "" {
		if _, err := s.DB().ExecContext(ctx, ddl); err != nil {
			s.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return s, nil
}

// NewStore returns a SQLite store under t.TempDir with ddl applied. It is
// closed when the test ends.
func NewStore(t testing.TB, ddl string) *store.Store {
	t.Helper()
	s, err := OpenSQLite(context.Background(), t.TempDir(), ddl)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
