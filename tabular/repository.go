package tabular

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// =============================================================================
// REPOSITORY - Typed records over Client + Cache
// =============================================================================

// Listing is a full-table read. Degraded means Items may be stale or empty
// because the store could not be read; Cause says why.
type Listing[T any] struct {
	Items     []T
	FetchedAt time.Time
	Degraded  bool
	Cause     error
}

// Repository reads and writes one entity type. The whole table is cached
// under its table name.
type Repository[T any] struct {
	Schema *Schema[T]
	TTL    time.Duration

	// NewKey generates keys for records created without one.
	NewKey func() string

	client  *Client
	updater *StatusUpdater
	cache   *Cache
	logger  zerolog.Logger
}

// NewRepository binds schema to a client and cache. Generated keys look
// like "<prefix>-1A2B3C4D".
func NewRepository[T any](client *Client, cache *Cache, schema *Schema[T], ttl time.Duration, keyPrefix string) *Repository[T] {
	return &Repository[T]{
		Schema:  schema,
		TTL:     ttl,
		NewKey:  KeyGenerator(keyPrefix),
		client:  client,
		updater: NewStatusUpdater(client),
		cache:   cache,
		logger:  client.logger.With().Str("table", schema.Table).Logger(),
	}
}

// KeyGenerator returns a function producing short random keys with prefix.
func KeyGenerator(prefix string) func() string {
	return func() string {
		id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
		if prefix == "" {
			return id
		}
		return prefix + "-" + id
	}
}

func (r *Repository[T]) cacheKey() string { return r.Schema.Table }

// Bootstrap ensures the table and its headers exist.
func (r *Repository[T]) Bootstrap(ctx context.Context) error {
	return r.client.BootstrapSchema(ctx, r.Schema.Table, r.Schema.Headers())
}

// List returns every record, from cache when fresh. Store failures never
// surface as an error here: the listing comes back Degraded instead.
func (r *Repository[T]) List(ctx context.Context, force bool) Listing[T] {
	res := Fetch(ctx, r.cache, r.cacheKey(), r.TTL, force, r.fetchAll)
	return Listing[T]{Items: res.Value, FetchedAt: res.FetchedAt, Degraded: res.Degraded, Cause: res.Cause}
}

func (r *Repository[T]) fetchAll(ctx context.Context) ([]T, error) {
	rows, err := r.client.ListAll(ctx, r.Schema.Table, r.Schema.Headers())
	if err != nil {
		return nil, err
	}
	items := make([]T, 0, len(rows))
	for _, row := range rows {
		item, issues := r.Schema.Decode(row)
		for _, issue := range issues {
			r.logger.Warn().
				Str("key", row[r.Schema.KeyColumn]).
				Str("column", issue.Column).
				Str("value", issue.Value).
				AnErr("parse_error", issue.Err).
				Msg("malformed cell, using default")
		}
		items = append(items, item)
	}
	return items, nil
}

// Get returns the record with key. A miss in a cached listing triggers one
// forced refetch before reporting ErrNotFound.
func (r *Repository[T]) Get(ctx context.Context, key string, force bool) (T, error) {
	listing := r.List(ctx, force)
	if item, ok := r.find(listing.Items, key); ok {
		return item, nil
	}
	if !force && !listing.Degraded {
		listing = r.List(ctx, true)
		if item, ok := r.find(listing.Items, key); ok {
			return item, nil
		}
	}

	var zero T
	if listing.Degraded {
		return zero, fmt.Errorf("get %s %s: %w", r.Schema.Table, key, listing.Cause)
	}
	return zero, &NotFoundError{Table: r.Schema.Table, KeyColumn: r.Schema.KeyColumn, Key: key}
}

func (r *Repository[T]) find(items []T, key string) (T, bool) {
	for i := range items {
		if r.Schema.KeyOf(&items[i]) == key {
			return items[i], true
		}
	}
	var zero T
	return zero, false
}

// Create appends item. An empty key is filled from NewKey; a key that is
// already present yields ErrDuplicateKey.
func (r *Repository[T]) Create(ctx context.Context, item *T) error {
	if r.Schema.KeyOf(item) == "" {
		r.Schema.SetKey(item, r.NewKey())
	}
	key := r.Schema.KeyOf(item)

	_, err := r.Get(ctx, key, true)
	switch {
	case err == nil:
		return fmt.Errorf("create %s %s: %w", r.Schema.Table, key, ErrDuplicateKey)
	case !errors.Is(err, ErrNotFound):
		return fmt.Errorf("create %s %s: %w", r.Schema.Table, key, err)
	}

	defer r.Invalidate()
	if err := r.client.Append(ctx, r.Schema.Table, r.Schema.Headers(), r.Schema.Encode(item)); err != nil {
		return fmt.Errorf("create %s %s: %w", r.Schema.Table, key, err)
	}
	r.logger.Info().Str("key", key).Msg("row created")
	return nil
}

// Update rewrites the full row of item.
func (r *Repository[T]) Update(ctx context.Context, item *T) error {
	key := r.Schema.KeyOf(item)
	defer r.Invalidate()
	if err := r.client.UpdateByKey(ctx, r.Schema.Table, r.Schema.Headers(), r.Schema.KeyColumn, key, r.Schema.Encode(item)); err != nil {
		return fmt.Errorf("update %s %s: %w", r.Schema.Table, key, err)
	}
	return nil
}

// UpdateColumns writes only the named columns of one row (fast path).
func (r *Repository[T]) UpdateColumns(ctx context.Context, key string, values map[string]string) error {
	defer r.Invalidate()
	if err := r.updater.UpdateColumns(ctx, r.Schema.Table, r.Schema.Headers(), r.Schema.KeyColumn, key, values); err != nil {
		return fmt.Errorf("update %s %s: %w", r.Schema.Table, key, err)
	}
	return nil
}

// Delete removes the row with key.
func (r *Repository[T]) Delete(ctx context.Context, key string) error {
	defer r.Invalidate()
	if err := r.client.DeleteByKey(ctx, r.Schema.Table, r.Schema.Headers(), r.Schema.KeyColumn, key); err != nil {
		return fmt.Errorf("delete %s %s: %w", r.Schema.Table, key, err)
	}
	r.logger.Info().Str("key", key).Msg("row deleted")
	return nil
}

// Invalidate drops the cached table.
func (r *Repository[T]) Invalidate() {
	r.cache.Invalidate(r.cacheKey())
}
