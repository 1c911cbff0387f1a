package store

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/ranklist/internal/ir"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	// Verify file was created
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if s.Driver() != DriverSQLite {
		t.Errorf("Driver() = %q, want %q", s.Driver(), DriverSQLite)
	}
}

func TestOpen_InMemory(t *testing.T) {
	s, err := OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	createPhones(t, s)
	if _, err := s.DB().Exec("INSERT INTO phones (contact_id, position) VALUES (1, 1)"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// The single pooled connection keeps the in-memory database alive.
	var count int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM phones").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	// Try to open in non-existent directory
	_, err := OpenSQLite(context.Background(), "/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "oracle", DSN: "x"})
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestOpen_RequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: DriverSQLite, DSN: "  "})
	if err == nil {
		t.Fatal("expected error for blank dsn")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

// Pragma tests

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL = 1
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"}, // ON = 1
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.verifyPragma(tt.name, tt.expected); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestColumns(t *testing.T) {
	s := createTestStore(t)
	createPhones(t, s)

	cols, err := s.Columns(context.Background(), "phones")
	if err != nil {
		t.Fatalf("Columns() failed: %v", err)
	}
	want := []string{"id", "contact_id", "number", "position"}
	if len(cols) != len(want) {
		t.Fatalf("Columns() = %v, want %v", cols, want)
	}
	for i := range want {
		if cols[i] != want[i] {
			t.Errorf("Columns()[%d] = %q, want %q", i, cols[i], want[i])
		}
	}

	missing, err := s.Columns(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Columns(missing) failed: %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("Columns(missing) = %v, want empty", missing)
	}
}

func TestWithTx_Commits(t *testing.T) {
	s := createTestStore(t)
	createPhones(t, s)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := Exec(ctx, tx, s.Builder().Insert("phones").Columns("contact_id", "position").Values(1, 1))
		return err
	})
	if err != nil {
		t.Fatalf("WithTx() failed: %v", err)
	}

	rows, err := Query(ctx, s.DB(), s.Builder().Select("*").From("phones"))
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := createTestStore(t)
	createPhones(t, s)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := Exec(ctx, tx, s.Builder().Insert("phones").Columns("contact_id", "position").Values(1, 1)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx() error = %v, want %v", err, boom)
	}

	var count int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM phones").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d after rollback, want 0", count)
	}
}

func TestLockScope_SQLiteIsNoop(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.LockScope(ctx, tx, 42)
	})
	if err != nil {
		t.Fatalf("LockScope() failed: %v", err)
	}
}

func TestExec_ReturnsAffectedRows(t *testing.T) {
	s := createTestStore(t)
	createPhones(t, s)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if _, err := Exec(ctx, s.DB(), s.Builder().Insert("phones").Columns("contact_id", "position").Values(1, i)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	n, err := Exec(ctx, s.DB(), s.Builder().Update("phones").
		Set("position", sq.Expr("position + 1")).
		Where(sq.Gt{"position": 1}))
	if err != nil {
		t.Fatalf("Exec() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("affected = %d, want 2", n)
	}
}

func TestQuery_ConvertsColumnValues(t *testing.T) {
	s := createTestStore(t)
	createPhones(t, s)
	ctx := context.Background()

	if _, err := s.DB().Exec("INSERT INTO phones (contact_id, number, position) VALUES (NULL, '555-0100', 2)"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	row, err := QueryOne(ctx, s.DB(), s.Builder().Select("id", "contact_id", "number", "position").From("phones"))
	if err != nil {
		t.Fatalf("QueryOne() failed: %v", err)
	}
	if row == nil {
		t.Fatal("QueryOne() returned nil row")
	}
	if _, ok := row["contact_id"].(ir.IRNull); !ok {
		t.Errorf("contact_id = %#v, want IRNull", row["contact_id"])
	}
	if row["number"] != ir.IRString("555-0100") {
		t.Errorf("number = %#v", row["number"])
	}
	if row["position"] != ir.IRInt(2) {
		t.Errorf("position = %#v", row["position"])
	}

	none, err := QueryOne(ctx, s.DB(), s.Builder().Select("id").From("phones").Where(sq.Eq{"id": 999}))
	if err != nil {
		t.Fatalf("QueryOne(none) failed: %v", err)
	}
	if none != nil {
		t.Errorf("QueryOne(none) = %v, want nil", none)
	}
}

func TestInsertReturning(t *testing.T) {
	s := createTestStore(t)
	createPhones(t, s)
	ctx := context.Background()

	first, err := InsertReturning(ctx, s.DB(), s.Builder().Insert("phones").Columns("contact_id").Values(1), "id")
	if err != nil {
		t.Fatalf("InsertReturning() failed: %v", err)
	}
	second, err := InsertReturning(ctx, s.DB(), s.Builder().Insert("phones").Columns("contact_id").Values(1), "id")
	if err != nil {
		t.Fatalf("InsertReturning() failed: %v", err)
	}
	if first != 1 || second != 2 {
		t.Errorf("ids = %d, %d; want 1, 2", first, second)
	}
}

func TestBuilder_Placeholders(t *testing.T) {
	tests := []struct {
		driver Driver
		want   string
	}{
		{DriverSQLite, "UPDATE phones SET position = position + 1 WHERE contact_id = ?"},
		{DriverPostgres, "UPDATE phones SET position = position + 1 WHERE contact_id = $1"},
	}
	for _, tt := range tests {
		t.Run(string(tt.driver), func(t *testing.T) {
			d, err := dialectFor(tt.driver)
			if err != nil {
				t.Fatalf("dialectFor() failed: %v", err)
			}
			s := &Store{dialect: d}
			got, _, err := s.Builder().Update("phones").
				Set("position", sq.Expr("position + 1")).
				Where(sq.Eq{"contact_id": 1}).
				ToSql()
			if err != nil {
				t.Fatalf("ToSql() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuilder_EscapedQuestionMark(t *testing.T) {
	tests := []struct {
		driver Driver
		want   string
	}{
		{DriverSQLite, "SELECT id FROM phones WHERE (number <> 'why?') AND contact_id = ?"},
		{DriverPostgres, "SELECT id FROM phones WHERE (number <> 'why?') AND contact_id = $1"},
	}
	for _, tt := range tests {
		t.Run(string(tt.driver), func(t *testing.T) {
			d, err := dialectFor(tt.driver)
			if err != nil {
				t.Fatalf("dialectFor() failed: %v", err)
			}
			s := &Store{dialect: d}
			got, args, err := s.Builder().Select("id").From("phones").
				Where(sq.Expr("(number <> 'why??')")).
				Where(sq.Eq{"contact_id": 1}).
				ToSql()
			if err != nil {
				t.Fatalf("ToSql() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			if len(args) != 1 {
				t.Errorf("args = %v, want one", args)
			}
		})
	}
}

func TestColumnValue_NonIntegralFloat(t *testing.T) {
	v, err := columnValue(2.5)
	if err != nil {
		t.Fatalf("columnValue() failed: %v", err)
	}
	if v != ir.IRString("2.5") {
		t.Errorf("columnValue(2.5) = %#v", v)
	}

	v, err = columnValue(float64(3))
	if err != nil {
		t.Fatalf("columnValue() failed: %v", err)
	}
	if v != ir.IRInt(3) {
		t.Errorf("columnValue(3.0) = %#v", v)
	}
}

func TestColumnValue_FloatOutsideInt64(t *testing.T) {
	tests := []struct {
		in   float64
		want ir.IRValue
	}{
		{1e20, ir.IRString("1e+20")},
		{-1e20, ir.IRString("-1e+20")},
		{0x1p63, ir.IRString("9.223372036854776e+18")},
		{math.Inf(1), ir.IRString("+Inf")},
		{math.Inf(-1), ir.IRString("-Inf")},
		{-0x1p63, ir.IRInt(math.MinInt64)},
	}
	for _, tt := range tests {
		v, err := columnValue(tt.in)
		if err != nil {
			t.Errorf("columnValue(%v) failed: %v", tt.in, err)
			continue
		}
		if v != tt.want {
			t.Errorf("columnValue(%v) = %#v, want %#v", tt.in, v, tt.want)
		}
	}
}

func TestQuery_HugeRealColumn(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.DB().Exec("CREATE TABLE items (id INTEGER PRIMARY KEY, weight REAL)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := s.DB().Exec("INSERT INTO items (id, weight) VALUES (1, 1e20), (2, 9e999)"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rows, err := Query(ctx, s.DB(), s.Builder().Select("*").From("items").OrderBy("id"))
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Query() returned %d rows, want 2", len(rows))
	}
	if rows[0]["weight"] != ir.IRString("1e+20") {
		t.Errorf("weight = %#v", rows[0]["weight"])
	}
	if rows[1]["weight"] != ir.IRString("+Inf") {
		t.Errorf("weight = %#v", rows[1]["weight"])
	}
}
