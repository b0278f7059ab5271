// Package storetest is a conformance suite every tabular.Backend must pass.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/workforce-engine/tabular"
)

// Run exercises newBackend against the positional row contract. Each
// subtest gets a fresh backend.
func Run(t *testing.T, newBackend func(t *testing.T) tabular.Backend) {
	ctx := context.Background()
	headers := []string{"ID", "Name", "Status"}

	setup := func(t *testing.T) tabular.Backend {
		b := newBackend(t)
		require.NoError(t, b.CreateTable(ctx, "People"))
		require.NoError(t, b.AppendRow(ctx, "People", headers))
		require.NoError(t, b.AppendRow(ctx, "People", []string{"P-1", "Ann", "active"}))
		require.NoError(t, b.AppendRow(ctx, "People", []string{"P-2", "Bob", "active"}))
		require.NoError(t, b.AppendRow(ctx, "People", []string{"P-3", "Cat", "inactive"}))
		return b
	}

	t.Run("CreateTableIsIdempotent", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.CreateTable(ctx, "Tasks"))
		require.NoError(t, b.CreateTable(ctx, "Tasks"))

		tables, err := b.Tables(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Tasks"}, tables)

		values, err := b.GetValues(ctx, "Tasks")
		require.NoError(t, err)
		assert.Empty(t, values)
	})

	t.Run("AppendAndRead", func(t *testing.T) {
		b := setup(t)
		values, err := b.GetValues(ctx, "People")
		require.NoError(t, err)
		assert.Equal(t, [][]string{
			headers,
			{"P-1", "Ann", "active"},
			{"P-2", "Bob", "active"},
			{"P-3", "Cat", "inactive"},
		}, values)

		col, err := b.GetColumn(ctx, "People", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"ID", "P-1", "P-2", "P-3"}, col)
	})

	t.Run("UpdateRow", func(t *testing.T) {
		b := setup(t)
		require.NoError(t, b.UpdateRow(ctx, "People", 2, []string{"P-2", "Bobby", "inactive"}))

		values, err := b.GetValues(ctx, "People")
		require.NoError(t, err)
		assert.Equal(t, []string{"P-2", "Bobby", "inactive"}, values[2])
		assert.Equal(t, []string{"P-1", "Ann", "active"}, values[1])
	})

	t.Run("BatchUpdateCells", func(t *testing.T) {
		b := setup(t)
		require.NoError(t, b.BatchUpdateCells(ctx, "People", []tabular.CellUpdate{
			{Row: 1, Column: 2, Value: "inactive"},
			{Row: 3, Column: 1, Value: "Cathy"},
			{Row: 3, Column: 4, Value: "extra"},
		}))

		values, err := b.GetValues(ctx, "People")
		require.NoError(t, err)
		assert.Equal(t, []string{"P-1", "Ann", "inactive"}, values[1])
		assert.Equal(t, []string{"P-2", "Bob", "active"}, values[2])
		assert.Equal(t, []string{"P-3", "Cathy", "inactive", "", "extra"}, values[3])
	})

	t.Run("DeleteRowShiftsLaterRows", func(t *testing.T) {
		b := setup(t)
		require.NoError(t, b.DeleteRow(ctx, "People", 1))

		values, err := b.GetValues(ctx, "People")
		require.NoError(t, err)
		assert.Equal(t, [][]string{
			headers,
			{"P-2", "Bob", "active"},
			{"P-3", "Cat", "inactive"},
		}, values)

		require.NoError(t, b.AppendRow(ctx, "People", []string{"P-4", "Dan", "active"}))
		values, err = b.GetValues(ctx, "People")
		require.NoError(t, err)
		assert.Equal(t, []string{"P-4", "Dan", "active"}, values[3])
	})

	t.Run("OutOfRange", func(t *testing.T) {
		b := setup(t)
		assertStatus(t, b.UpdateRow(ctx, "People", 9, headers), 400)
		assertStatus(t, b.DeleteRow(ctx, "People", 9), 400)
		assertStatus(t, b.BatchUpdateCells(ctx, "People", []tabular.CellUpdate{{Row: 9, Column: 0, Value: "x"}}), 400)
	})

	t.Run("MissingTable", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.GetValues(ctx, "Nope")
		assertStatus(t, err, 400)
		assertStatus(t, b.AppendRow(ctx, "Nope", headers), 400)
	})
}

func assertStatus(t *testing.T, err error, code int) {
	t.Helper()
	var status *tabular.StatusError
	if assert.True(t, errors.As(err, &status), "want StatusError, got %v", err) {
		assert.Equal(t, code, status.Code)
	}
}
