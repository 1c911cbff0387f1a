package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Valid(t *testing.T) {
	dir := writeCUE(t, `package lists

list: phones: {
	table: "phones"
	scope: field: "contact"
}

list: tax_frequencies: {
	table:  "labels"
	column: "pos"
	kind: {column: "type", value: "TaxFrequency"}
}
`)
	out, err := execute(t, "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ phones: phones.position scope contact")
	assert.Contains(t, out, "✓ tax_frequencies: labels.pos kind type=TaxFrequency")
	assert.Contains(t, out, "2 list(s) valid")
}

func TestValidate_DefaultsToConfigFlag(t *testing.T) {
	dir := writeCUE(t, "package lists\nlist: all: table: \"phones\"\n")

	out, err := execute(t, "--config", dir, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "1 list(s) valid")
}

func TestValidate_JSON(t *testing.T) {
	dir := writeCUE(t, "package lists\nlist: all: {table: \"phones\", primary_key: \"phone_id\"}\n")

	out, err := execute(t, "--format", "json", "validate", dir)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	require.Len(t, resp.Data.Lists, 1)
	assert.Equal(t, ListSummary{Name: "all", Table: "phones", Column: "position", PrimaryKey: "phone_id"}, resp.Data.Lists[0])
}

func TestValidate_InvalidDefinitions(t *testing.T) {
	dir := writeCUE(t, `package lists

list: good: table: "phones"
list: no_table: column: "position"
list: bad_key: {table: "phones", colour: "red"}
`)
	out, err := execute(t, "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "2 invalid definition(s)")
	assert.Contains(t, out, "✗ ")
}

func TestValidate_CommandErrors(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		out, err := execute(t, "validate", "/nonexistent/lists")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "Error [E005]")
	})

	t.Run("no cue files", func(t *testing.T) {
		out, err := execute(t, "validate", t.TempDir())
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "Error [E003]")
	})

	t.Run("too many args", func(t *testing.T) {
		_, err := execute(t, "validate", "a", "b")
		require.Error(t, err)
	})
}

func TestValidate_AgainstDatabase(t *testing.T) {
	f := newFixture(t)
	dir := writeCUE(t, `package lists

list: phones: {table: "phones", scope: field: "contact"}
list: emails: table: "emails"
list: ranked: {table: "phones", column: "rank"}
`)

	out, err := execute(t, "--format", "json", "--dsn", f.dsn, "validate", "--db", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Error *struct {
			Code    string           `json:"code"`
			Details ValidationResult `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_CONFIG", resp.Error.Code)

	issues := resp.Error.Details.Errors
	require.Len(t, issues, 2)
	assert.Equal(t, "emails", issues[0].List)
	assert.Equal(t, "ranked", issues[1].List)
	assert.Contains(t, issues[1].Message, `position column "rank" not found`)

	_, err = execute(t, "--dsn", f.dsn, "validate", "--db", f.config)
	assert.NoError(t, err, "the fixture's own lists match its table")
}
