package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/ranklist/internal/testutil"
)

const listsCUE = `package lists

list: phones: {
	table: "phones"
	scope: field: "contact"
}

list: all_phones: table: "phones"
`

// fixture is a config directory and a SQLite database holding
//
//	contact 1: ids 1..4 at positions 1..4, id 6 outside the list
//	contact 2: id 5 at position 1
type fixture struct {
	config string
	dsn    string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()

	configDir := filepath.Join(dir, "lists")
	require.NoError(t, os.Mkdir(configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "lists.cue"), []byte(listsCUE), 0o644))

	ctx := context.Background()
	st, err := testutil.OpenSQLite(ctx, dir, testutil.PhonesSchema)
	require.NoError(t, err)
	_, err = st.DB().ExecContext(ctx, `
		INSERT INTO phones (id, contact_id, number, position) VALUES
			(1, 1, 'a', 1), (2, 1, 'b', 2), (3, 1, 'c', 3), (4, 1, 'd', 4),
			(5, 2, 'e', 1), (6, 1, 'f', NULL)`)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	return fixture{config: configDir, dsn: filepath.Join(dir, "ranklist.db")}
}

// exec runs the root command with the fixture's --config and --dsn.
func (f fixture) exec(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return execute(t, append([]string{"--config", f.config, "--dsn", f.dsn}, args...)...)
}

// sql runs a statement directly against the fixture database.
func (f fixture) sql(t *testing.T, query string, args ...any) {
	t.Helper()
	ctx := context.Background()
	st, err := testutil.OpenSQLite(ctx, filepath.Dir(f.dsn), "")
	require.NoError(t, err)
	defer st.Close()
	_, err = st.DB().ExecContext(ctx, query, args...)
	require.NoError(t, err)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// writeCUE writes content as lists.cue in a new directory.
func writeCUE(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lists.cue"), []byte(content), 0o644))
	return dir
}
