/*
fastpath.go - Partial-column writes for status changes

PURPOSE:
  Approving or rejecting an application touches a handful of columns. The
  general UpdateByKey path reads the whole table and rewrites the whole
  row; this path reads only the key column, then sends one batched write
  covering just the changed cells.

CONSISTENCY GAP:
  The batched cell write is NOT atomic. If the backend applies part of the
  batch and then fails, the row can be left with, for example, a new status
  but the old approver. Nothing here locks or compensates for that, and a
  concurrent full-row UpdateByKey on the same row can interleave with the
  cell writes. Callers that need the row afterwards should force a fresh
  read rather than trust the values they sent.

SEE ALSO:
  - client.go: UpdateByKey (full-row path)
  - workforce/applications.go: Approve/Reject use this path
*/
package tabular

import (
	"context"
	"fmt"
	"sort"
)

// StatusUpdater writes a few columns of one row without a full-row rewrite.
type StatusUpdater struct {
	client *Client
}

// NewStatusUpdater creates a fast-path updater sharing client's backend,
// retry policy and bootstrap state.
func NewStatusUpdater(client *Client) *StatusUpdater {
	return &StatusUpdater{client: client}
}

// UpdateColumns sets the given columns on the row whose keyColumn equals key.
// Unknown columns are rejected before anything is written.
func (u *StatusUpdater) UpdateColumns(ctx context.Context, table string, headers []string, keyColumn, key string, values map[string]string) error {
	c := u.client

	keyIdx := indexOf(headers, keyColumn)
	if keyIdx < 0 {
		return fmt.Errorf("%s: %w: %s", table, ErrUnknownColumn, keyColumn)
	}

	// Stable cell order keeps the batch deterministic.
	columns := make([]string, 0, len(values))
	for col := range values {
		if indexOf(headers, col) < 0 {
			return fmt.Errorf("%s: %w: %s", table, ErrUnknownColumn, col)
		}
		columns = append(columns, col)
	}
	sort.Slice(columns, func(i, j int) bool {
		return indexOf(headers, columns[i]) < indexOf(headers, columns[j])
	})

	if err := c.ensure(ctx, table, headers); err != nil {
		return err
	}

	var keys []string
	err := c.call(ctx, "scan keys "+table, func(ctx context.Context) error {
		var err error
		keys, err = c.backend.GetColumn(ctx, table, keyIdx)
		return err
	})
	if err != nil {
		return err
	}

	row := -1
	for i := 1; i < len(keys); i++ {
		if keys[i] == key {
			row = i
			break
		}
	}
	if row < 0 {
		return &NotFoundError{Table: table, KeyColumn: keyColumn, Key: key}
	}

	cells := make([]CellUpdate, len(columns))
	for i, col := range columns {
		cells[i] = CellUpdate{Row: row, Column: indexOf(headers, col), Value: values[col]}
	}

	c.logger.Debug().Str("table", table).Str("key", key).Int("row", row).Int("cells", len(cells)).Msg("fast-path update")
	return c.call(ctx, "batch update "+table, func(ctx context.Context) error {
		return c.backend.BatchUpdateCells(ctx, table, cells)
	})
}
