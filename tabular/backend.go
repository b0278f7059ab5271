package tabular

import "context"

// =============================================================================
// BACKEND - Raw row store (remote spreadsheet service, SQLite, memory)
// =============================================================================

// Backend is the raw, positional row store. Row index 0 is the header row;
// data rows start at 1. Implementations report remote failures as
// *StatusError so the retry policy can classify them.
type Backend interface {
	// Tables lists the named tables that exist.
	Tables(ctx context.Context) ([]string, error)

	// CreateTable adds an empty table. Creating an existing table is a no-op.
	CreateTable(ctx context.Context, table string) error

	// GetValues returns every row of the table, headers first.
	GetValues(ctx context.Context, table string) ([][]string, error)

	// GetColumn returns a single column (headers included) by position.
	GetColumn(ctx context.Context, table string, column int) ([]string, error)

	// AppendRow adds a row after the last one.
	AppendRow(ctx context.Context, table string, values []string) error

	// UpdateRow overwrites the row at index.
	UpdateRow(ctx context.Context, table string, index int, values []string) error

	// BatchUpdateCells writes individual cells in one request. Backends are
	// not required to apply the batch atomically.
	BatchUpdateCells(ctx context.Context, table string, cells []CellUpdate) error

	// DeleteRow removes the row at index; following rows shift up.
	DeleteRow(ctx context.Context, table string, index int) error
}

// CellUpdate addresses one cell by row index and column position.
type CellUpdate struct {
	Row    int    `json:"row"`
	Column int    `json:"column"`
	Value  string `json:"value"`
}
