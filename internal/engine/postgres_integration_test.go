//go:build integration

package engine

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ranklist/internal/ir"
	"github.com/roach88/ranklist/internal/scope"
	"github.com/roach88/ranklist/internal/store"
)

// Run with:
//
//	RANKLIST_PG_DSN=postgres://localhost/ranklist_test go test -tags integration ./internal/engine
const pgDSNEnv = "RANKLIST_PG_DSN"

// newPostgresPhones creates a phones table with a unique name and returns a
// manager over it. The table is dropped when the test ends.
func newPostgresPhones(t *testing.T) (*store.Store, *Manager) {
	t.Helper()
	dsn := os.Getenv(pgDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", pgDSNEnv)
	}
	ctx := context.Background()

	s, err := store.Open(ctx, store.Options{Driver: store.DriverPostgres, DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	table := "phones_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err = s.DB().ExecContext(ctx, fmt.Sprintf(`CREATE TABLE %s (
		id BIGSERIAL PRIMARY KEY,
		contact_id BIGINT,
		number TEXT NOT NULL DEFAULT '',
		position BIGINT
	)`, table))
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.DB().ExecContext(context.Background(), "DROP TABLE "+table)
	})

	m, err := New(ctx, s, Config{Table: table, Scope: scope.Field("contact")}, WithLogger(quietLogger()))
	require.NoError(t, err)
	return s, m
}

func TestPostgres_Operations(t *testing.T) {
	_, m := newPostgresPhones(t)
	ctx := context.Background()

	recs := createPhones(t, m, ir.IRInt(1), "a", "b", "c", "d")
	createPhones(t, m, ir.IRInt(2), "x")
	assert.Equal(t, []string{"a@1", "b@2", "c@3", "d@4"}, listOf(t, m, recs[0]))

	require.NoError(t, m.MoveToTop(ctx, recs[2]))
	assert.Equal(t, []string{"c@1", "a@2", "b@3", "d@4"}, listOf(t, m, recs[0]))
	require.NoError(t, m.InsertAt(ctx, recs[0], 4))
	assert.Equal(t, []string{"c@1", "b@2", "d@3", "a@4"}, listOf(t, m, recs[0]))
	require.NoError(t, m.Remove(ctx, recs[1]))
	require.NoError(t, m.Destroy(ctx, recs[3]))
	assert.Equal(t, []string{"c@1", "a@2"}, listOf(t, m, recs[0]))
	assert.Nil(t, storedPosition(t, m, recs[1]))

	require.NoError(t, m.Check(ctx, recs[0]))
}

func TestPostgres_ConcurrentWriters(t *testing.T) {
	_, m := newPostgresPhones(t)
	ctx := context.Background()

	const writers = 8
	const perWriter = 5

	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter*2)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				rec := ir.NewRecord(ir.IRObject{
					"contact_id": ir.IRInt(1),
					"number":     ir.IRString(fmt.Sprintf("w%d-%d", w, i)),
				})
				if err := m.Create(ctx, rec); err != nil {
					errs <- err
					continue
				}
				if i%2 == 0 {
					errs <- m.InsertAtTop(ctx, rec)
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	probe := ir.NewRecord(ir.IRObject{"contact_id": ir.IRInt(1)})
	require.NoError(t, m.Check(ctx, probe), "advisory locks serialise writers of one list")
}
