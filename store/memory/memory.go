// Package memory provides an in-memory tabular.Backend for tests and local
// development. Faults can be scripted per operation to exercise retry and
// degraded-read paths.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/workforce-engine/tabular"
)

// =============================================================================
// MEMORY BACKEND
// =============================================================================

// Op names a backend operation for fault injection and call counting.
type Op string

const (
	OpTables      Op = "tables"
	OpCreateTable Op = "create_table"
	OpGetValues   Op = "get_values"
	OpGetColumn   Op = "get_column"
	OpAppendRow   Op = "append_row"
	OpUpdateRow   Op = "update_row"
	OpBatchUpdate Op = "batch_update"
	OpDeleteRow   Op = "delete_row"
)

type Backend struct {
	mu     sync.RWMutex
	tables map[string][][]string
	faults map[Op][]error
	calls  map[Op]int

	// BeforeCall, when set, runs before every operation (outside the lock).
	BeforeCall func(op Op)
}

var _ tabular.Backend = (*Backend)(nil)

func New() *Backend {
	return &Backend{
		tables: make(map[string][][]string),
		faults: make(map[Op][]error),
		calls:  make(map[Op]int),
	}
}

// Seed replaces a table with a copy of rows (headers first).
func (b *Backend) Seed(table string, rows ...[]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tables[table] = copyRows(rows)
}

// Snapshot returns a copy of a table's rows.
func (b *Backend) Snapshot(table string) [][]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return copyRows(b.tables[table])
}

// FailNext queues errors returned by the next calls to op, in order.
func (b *Backend) FailNext(op Op, errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults[op] = append(b.faults[op], errs...)
}

// Calls returns how many times op was invoked.
func (b *Backend) Calls(op Op) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.calls[op]
}

func (b *Backend) enter(op Op) error {
	if b.BeforeCall != nil {
		b.BeforeCall(op)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[op]++
	if queued := b.faults[op]; len(queued) > 0 {
		b.faults[op] = queued[1:]
		return queued[0]
	}
	return nil
}

func (b *Backend) Tables(_ context.Context) ([]string, error) {
	if err := b.enter(OpTables); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.tables))
	for name := range b.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (b *Backend) CreateTable(_ context.Context, table string) error {
	if err := b.enter(OpCreateTable); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.tables[table]; !ok {
		b.tables[table] = nil
	}
	return nil
}

func (b *Backend) GetValues(_ context.Context, table string) ([][]string, error) {
	if err := b.enter(OpGetValues); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	rows, ok := b.tables[table]
	if !ok {
		return nil, missing(table)
	}
	return copyRows(rows), nil
}

func (b *Backend) GetColumn(_ context.Context, table string, column int) ([]string, error) {
	if err := b.enter(OpGetColumn); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	rows, ok := b.tables[table]
	if !ok {
		return nil, missing(table)
	}
	col := make([]string, len(rows))
	for i, row := range rows {
		if column < len(row) {
			col[i] = row[column]
		}
	}
	return col, nil
}

func (b *Backend) AppendRow(_ context.Context, table string, values []string) error {
	if err := b.enter(OpAppendRow); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.tables[table]; !ok {
		return missing(table)
	}
	b.tables[table] = append(b.tables[table], append([]string(nil), values...))
	return nil
}

func (b *Backend) UpdateRow(_ context.Context, table string, index int, values []string) error {
	if err := b.enter(OpUpdateRow); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	rows, ok := b.tables[table]
	if !ok {
		return missing(table)
	}
	if index < 0 || index >= len(rows) {
		return outOfRange(table, index)
	}
	rows[index] = append([]string(nil), values...)
	return nil
}

func (b *Backend) BatchUpdateCells(_ context.Context, table string, cells []tabular.CellUpdate) error {
	if err := b.enter(OpBatchUpdate); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	rows, ok := b.tables[table]
	if !ok {
		return missing(table)
	}
	for _, cell := range cells {
		if cell.Row < 0 || cell.Row >= len(rows) {
			return outOfRange(table, cell.Row)
		}
		row := rows[cell.Row]
		for len(row) <= cell.Column {
			row = append(row, "")
		}
		row[cell.Column] = cell.Value
		rows[cell.Row] = row
	}
	return nil
}

func (b *Backend) DeleteRow(_ context.Context, table string, index int) error {
	if err := b.enter(OpDeleteRow); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	rows, ok := b.tables[table]
	if !ok {
		return missing(table)
	}
	if index < 0 || index >= len(rows) {
		return outOfRange(table, index)
	}
	b.tables[table] = append(rows[:index], rows[index+1:]...)
	return nil
}

func missing(table string) error {
	return &tabular.StatusError{Code: 400, Message: fmt.Sprintf("unable to parse range: %s", table)}
}

func outOfRange(table string, index int) error {
	return &tabular.StatusError{Code: 400, Message: fmt.Sprintf("row %d out of range in %s", index, table)}
}

func copyRows(rows [][]string) [][]string {
	if rows == nil {
		return nil
	}
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = append([]string(nil), row...)
	}
	return out
}
