/*
client.go - Generic CRUD client over a remote row store

PURPOSE:
  Turns the positional Backend into keyed row operations: full-table scan,
  append, update-by-key, delete-by-key, plus header bootstrap and repair.
  Every backend call runs through the RetryPolicy with its own deadline.

SCHEMA BOOTSTRAP:
  On first access to a table the client compares the stored header row to
  the expected headers. With AutoBootstrap (the default) a missing table or
  header row is created and drifted headers are overwritten in place. Cell
  data is not reflowed; columns are addressed positionally everywhere.
  Without AutoBootstrap drift is reported as *SchemaMismatchError.

CONSISTENCY:
  The store has no transactions. UpdateByKey is a read-scan followed by a
  full-row write; two concurrent writers to the same row race and the last
  write wins. Appends do not check key uniqueness.

PER-CALL DEADLINES:
  Each attempt gets CallTimeout on a context detached from the caller's
  cancellation, so an abandoned request does not cut off a write that is
  already on the wire.

SEE ALSO:
  - retry.go: Error classification and backoff
  - fastpath.go: Partial-column writes that skip the full-row scan
  - repository.go: Typed records on top of the client
*/
package tabular

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultCallTimeout bounds a single backend call.
const DefaultCallTimeout = 30 * time.Second

// Client performs keyed row operations against a Backend.
type Client struct {
	backend       Backend
	retry         *RetryPolicy
	logger        zerolog.Logger
	callTimeout   time.Duration
	autoBootstrap bool

	mu       sync.Mutex
	verified map[string]bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p *RetryPolicy) ClientOption {
	return func(c *Client) { c.retry = p }
}

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithCallTimeout sets the per-attempt deadline.
func WithCallTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.callTimeout = d }
}

// WithAutoBootstrap toggles header repair on first access.
func WithAutoBootstrap(enabled bool) ClientOption {
	return func(c *Client) { c.autoBootstrap = enabled }
}

// NewClient creates a client for backend.
func NewClient(backend Backend, opts ...ClientOption) *Client {
	c := &Client{
		backend:       backend,
		logger:        zerolog.Nop(),
		callTimeout:   DefaultCallTimeout,
		autoBootstrap: true,
		verified:      make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry == nil {
		c.retry = NewRetryPolicy(c.logger)
	}
	return c
}

// call runs one backend operation under the retry policy.
func (c *Client) call(ctx context.Context, op string, fn func(context.Context) error) error {
	return c.retry.Do(ctx, op, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.callTimeout)
		defer cancel()
		return fn(callCtx)
	})
}

func (c *Client) getValues(ctx context.Context, table string) ([][]string, error) {
	var values [][]string
	err := c.call(ctx, "get "+table, func(ctx context.Context) error {
		var err error
		values, err = c.backend.GetValues(ctx, table)
		return err
	})
	return values, err
}

// =============================================================================
// SCHEMA BOOTSTRAP
// =============================================================================

// BootstrapSchema makes sure table exists and carries exactly headers.
// Safe to call repeatedly.
func (c *Client) BootstrapSchema(ctx context.Context, table string, headers []string) error {
	var tables []string
	err := c.call(ctx, "list tables", func(ctx context.Context) error {
		var err error
		tables, err = c.backend.Tables(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("bootstrap %s: %w", table, err)
	}

	if !contains(tables, table) {
		c.logger.Info().Str("table", table).Msg("creating table")
		if err := c.call(ctx, "create "+table, func(ctx context.Context) error {
			return c.backend.CreateTable(ctx, table)
		}); err != nil {
			return fmt.Errorf("bootstrap %s: %w", table, err)
		}
	}

	values, err := c.getValues(ctx, table)
	if err != nil {
		return fmt.Errorf("bootstrap %s: %w", table, err)
	}

	switch {
	case len(values) == 0:
		err = c.call(ctx, "write headers "+table, func(ctx context.Context) error {
			return c.backend.AppendRow(ctx, table, headers)
		})
	case !sameHeaders(values[0], headers):
		c.logger.Warn().
			Str("table", table).
			Strs("found", values[0]).
			Strs("expected", headers).
			Msg("header drift detected, rewriting headers")
		err = c.call(ctx, "rewrite headers "+table, func(ctx context.Context) error {
			return c.backend.UpdateRow(ctx, table, 0, headers)
		})
	}
	if err != nil {
		return fmt.Errorf("bootstrap %s: %w", table, err)
	}

	c.markVerified(table)
	return nil
}

func (c *Client) markVerified(table string) {
	c.mu.Lock()
	c.verified[table] = true
	c.mu.Unlock()
}

// ensure runs the first-access header check once per table.
func (c *Client) ensure(ctx context.Context, table string, headers []string) error {
	c.mu.Lock()
	done := c.verified[table]
	c.mu.Unlock()
	if done {
		return nil
	}

	if c.autoBootstrap {
		return c.BootstrapSchema(ctx, table, headers)
	}

	values, err := c.getValues(ctx, table)
	if err != nil {
		return err
	}
	if len(values) == 0 || !sameHeaders(values[0], headers) {
		var actual []string
		if len(values) > 0 {
			actual = values[0]
		}
		return &SchemaMismatchError{Table: table, Expected: headers, Actual: actual}
	}
	c.markVerified(table)
	return nil
}

// =============================================================================
// ROW OPERATIONS
// =============================================================================

// ListAll returns every data row. A table holding only headers yields an
// empty slice.
func (c *Client) ListAll(ctx context.Context, table string, headers []string) ([]Row, error) {
	if err := c.ensure(ctx, table, headers); err != nil {
		return nil, err
	}
	values, err := c.getValues(ctx, table)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(values))
	for i := 1; i < len(values); i++ {
		if blank(values[i]) {
			continue
		}
		rows = append(rows, RowFromValues(headers, values[i]))
	}
	return rows, nil
}

// Append writes row after the last row. Callers must check key collisions.
func (c *Client) Append(ctx context.Context, table string, headers []string, row Row) error {
	if err := c.ensure(ctx, table, headers); err != nil {
		return err
	}
	return c.call(ctx, "append "+table, func(ctx context.Context) error {
		return c.backend.AppendRow(ctx, table, Values(headers, row))
	})
}

// UpdateByKey rewrites the whole row whose keyColumn equals key.
func (c *Client) UpdateByKey(ctx context.Context, table string, headers []string, keyColumn, key string, row Row) error {
	index, err := c.locate(ctx, table, headers, keyColumn, key)
	if err != nil {
		return err
	}
	return c.call(ctx, "update "+table, func(ctx context.Context) error {
		return c.backend.UpdateRow(ctx, table, index, Values(headers, row))
	})
}

// DeleteByKey removes the row whose keyColumn equals key.
func (c *Client) DeleteByKey(ctx context.Context, table string, headers []string, keyColumn, key string) error {
	index, err := c.locate(ctx, table, headers, keyColumn, key)
	if err != nil {
		return err
	}
	return c.call(ctx, "delete "+table, func(ctx context.Context) error {
		return c.backend.DeleteRow(ctx, table, index)
	})
}

// locate scans the full table for key and returns its row index.
func (c *Client) locate(ctx context.Context, table string, headers []string, keyColumn, key string) (int, error) {
	keyIdx := indexOf(headers, keyColumn)
	if keyIdx < 0 {
		return 0, fmt.Errorf("%s: %w: %s", table, ErrUnknownColumn, keyColumn)
	}
	if err := c.ensure(ctx, table, headers); err != nil {
		return 0, err
	}
	values, err := c.getValues(ctx, table)
	if err != nil {
		return 0, err
	}
	for i := 1; i < len(values); i++ {
		if keyIdx < len(values[i]) && values[i][keyIdx] == key {
			return i, nil
		}
	}
	return 0, &NotFoundError{Table: table, KeyColumn: keyColumn, Key: key}
}

// =============================================================================
// HELPERS
// =============================================================================

func sameHeaders(found, expected []string) bool {
	// Sheets often pad the header row with empty trailing cells.
	n := len(found)
	for n > 0 && strings.TrimSpace(found[n-1]) == "" {
		n--
	}
	if n != len(expected) {
		return false
	}
	for i := 0; i < n; i++ {
		if strings.TrimSpace(found[i]) != expected[i] {
			return false
		}
	}
	return true
}

func blank(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func indexOf(items []string, item string) int {
	for i, v := range items {
		if v == item {
			return i
		}
	}
	return -1
}

func contains(items []string, item string) bool {
	return indexOf(items, item) >= 0
}
