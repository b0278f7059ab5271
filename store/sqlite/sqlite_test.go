package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/workforce-engine/store/sqlite"
	"github.com/warp/workforce-engine/store/storetest"
	"github.com/warp/workforce-engine/tabular"
)

func newTestBackend(t *testing.T) *sqlite.Backend {
	backend, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return backend
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) tabular.Backend { return newTestBackend(t) })
}

func TestDataSurvivesReopen(t *testing.T) {
	// GIVEN: A file-backed database with one row
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "workforce.db")
	first, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, first.CreateTable(ctx, "People"))
	require.NoError(t, first.AppendRow(ctx, "People", []string{"ID", "Name"}))
	require.NoError(t, first.AppendRow(ctx, "People", []string{"P-1", "Ann, \"the\" first"}))
	require.NoError(t, first.Close())

	// WHEN: It is reopened
	second, err := sqlite.New(path)
	require.NoError(t, err)
	defer second.Close()

	// THEN: Rows come back verbatim
	values, err := second.GetValues(ctx, "People")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"ID", "Name"}, {"P-1", "Ann, \"the\" first"}}, values)
}

func TestClientOverSQLite(t *testing.T) {
	ctx := context.Background()
	client := tabular.NewClient(newTestBackend(t))
	headers := []string{"ID", "Status"}

	require.NoError(t, client.Append(ctx, "Tasks", headers, tabular.Row{"ID": "T-1", "Status": "Yet to Start"}))
	require.NoError(t, client.Append(ctx, "Tasks", headers, tabular.Row{"ID": "T-2", "Status": "Done"}))
	require.NoError(t, tabular.NewStatusUpdater(client).UpdateColumns(ctx, "Tasks", headers, "ID", "T-1",
		map[string]string{"Status": "Delayed"}))
	require.NoError(t, client.DeleteByKey(ctx, "Tasks", headers, "ID", "T-2"))

	rows, err := client.ListAll(ctx, "Tasks", headers)
	require.NoError(t, err)
	assert.Equal(t, []tabular.Row{{"ID": "T-1", "Status": "Delayed"}}, rows)
}
