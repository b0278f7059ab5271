/*
Package sqlite provides a SQLite-backed implementation of tabular.Backend.

PURPOSE:
  The secondary relational backend. It stores the same positional tables
  the remote service holds, so the whole stack (client, retry, cache,
  business rules) runs unchanged against a local database file for
  development, demos, or as a fallback when the remote store is not
  configured.

KEY TABLES:
  sheets:      Named logical tables
  sheet_rows:  One row per table row; position 0 is the header row,
               cells stored as a JSON array of strings

POSITIONAL ADDRESSING:
  Rows are addressed by position exactly like the remote service. Deleting
  a row shifts every later row up by one inside a single transaction.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, on top of SQLite's own locking.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  backend, err := sqlite.New("./data/workforce.db")
  if err != nil {
      log.Fatal(err)
  }
  defer backend.Close()

  client := tabular.NewClient(backend)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - tabular/backend.go: Interface definition
  - store/remote: HTTP implementation
  - store/memory: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/workforce-engine/tabular"
)

// Backend implements tabular.Backend using SQLite.
type Backend struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ tabular.Backend = (*Backend)(nil)

// New opens (and migrates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Backend, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// An in-memory database lives and dies with its connection.
	db.SetMaxOpenConns(1)

	b := &Backend{db: db}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return b, nil
}

// Close closes the database connection.
func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sheets (
		name TEXT PRIMARY KEY,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sheet_rows (
		sheet TEXT NOT NULL REFERENCES sheets(name) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		cells_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Not UNIQUE: deletes shift positions with a single UPDATE.
	CREATE INDEX IF NOT EXISTS idx_sheet_rows_position
		ON sheet_rows(sheet, position);
	`
	_, err := b.db.Exec(schema)
	return err
}

// =============================================================================
// TABLES
// =============================================================================

func (b *Backend) Tables(ctx context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rows, err := b.db.QueryContext(ctx, "SELECT name FROM sheets ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (b *Backend) CreateTable(ctx context.Context, table string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, err := b.db.ExecContext(ctx,
		"INSERT INTO sheets (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING",
		table, now())
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return nil
}

func (b *Backend) exists(ctx context.Context, q queryer, table string) error {
	var count int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM sheets WHERE name = ?", table).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return &tabular.StatusError{Code: 400, Message: fmt.Sprintf("unable to parse range: %s", table)}
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// READS
// =============================================================================

func (b *Backend) GetValues(ctx context.Context, table string) ([][]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.values(ctx, b.db, table)
}

func (b *Backend) values(ctx context.Context, q queryer, table string) ([][]string, error) {
	if err := b.exists(ctx, q, table); err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx,
		"SELECT cells_json FROM sheet_rows WHERE sheet = ? ORDER BY position ASC", table)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}
	defer rows.Close()

	var values [][]string
	for rows.Next() {
		var cellsJSON string
		if err := rows.Scan(&cellsJSON); err != nil {
			return nil, err
		}
		var cells []string
		if err := json.Unmarshal([]byte(cellsJSON), &cells); err != nil {
			return nil, fmt.Errorf("corrupt row in %s: %w", table, err)
		}
		values = append(values, cells)
	}
	return values, rows.Err()
}

func (b *Backend) GetColumn(ctx context.Context, table string, column int) ([]string, error) {
	values, err := b.GetValues(ctx, table)
	if err != nil {
		return nil, err
	}
	col := make([]string, len(values))
	for i, row := range values {
		if column < len(row) {
			col[i] = row[column]
		}
	}
	return col, nil
}

// =============================================================================
// WRITES
// =============================================================================

func (b *Backend) AppendRow(ctx context.Context, table string, values []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.exists(ctx, b.db, table); err != nil {
		return err
	}
	cells, _ := json.Marshal(values)
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO sheet_rows (sheet, position, cells_json, updated_at)
		VALUES (?, (SELECT COALESCE(MAX(position) + 1, 0) FROM sheet_rows WHERE sheet = ?), ?, ?)
	`, table, table, string(cells), now())
	if err != nil {
		return fmt.Errorf("failed to append to %s: %w", table, err)
	}
	return nil
}

func (b *Backend) UpdateRow(ctx context.Context, table string, index int, values []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cells, _ := json.Marshal(values)
	return b.updateCells(ctx, b.db, table, index, string(cells))
}

func (b *Backend) updateCells(ctx context.Context, q queryer, table string, index int, cellsJSON string) error {
	res, err := q.ExecContext(ctx,
		"UPDATE sheet_rows SET cells_json = ?, updated_at = ? WHERE sheet = ? AND position = ?",
		cellsJSON, now(), table, index)
	if err != nil {
		return fmt.Errorf("failed to update %s row %d: %w", table, index, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &tabular.StatusError{Code: 400, Message: fmt.Sprintf("row %d out of range in %s", index, table)}
	}
	return nil
}

func (b *Backend) BatchUpdateCells(ctx context.Context, table string, cells []tabular.CellUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	values, err := b.values(ctx, tx, table)
	if err != nil {
		return err
	}

	touched := make(map[int]bool)
	for _, cell := range cells {
		if cell.Row < 0 || cell.Row >= len(values) {
			return &tabular.StatusError{Code: 400, Message: fmt.Sprintf("row %d out of range in %s", cell.Row, table)}
		}
		row := values[cell.Row]
		for len(row) <= cell.Column {
			row = append(row, "")
		}
		row[cell.Column] = cell.Value
		values[cell.Row] = row
		touched[cell.Row] = true
	}

	for idx := range touched {
		buf, _ := json.Marshal(values[idx])
		if err := b.updateCells(ctx, tx, table, idx, string(buf)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (b *Backend) DeleteRow(ctx context.Context, table string, index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM sheet_rows WHERE sheet = ? AND position = ?", table, index)
	if err != nil {
		return fmt.Errorf("failed to delete %s row %d: %w", table, index, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &tabular.StatusError{Code: 400, Message: fmt.Sprintf("row %d out of range in %s", index, table)}
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE sheet_rows SET position = position - 1 WHERE sheet = ? AND position > ?",
		table, index); err != nil {
		return fmt.Errorf("failed to shift rows in %s: %w", table, err)
	}
	return tx.Commit()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
