package tabular_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/workforce-engine/store/memory"
	"github.com/warp/workforce-engine/tabular"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// noSleep records requested delays instead of waiting.
type noSleep struct {
	delays []time.Duration
}

func (n *noSleep) Sleep(_ context.Context, d time.Duration) error {
	n.delays = append(n.delays, d)
	return nil
}

func newTestPolicy() (*tabular.RetryPolicy, *noSleep) {
	rec := &noSleep{}
	p := tabular.NewRetryPolicy(zerolog.Nop())
	p.Sleep = rec.Sleep
	return p, rec
}

func newTestClient(backend tabular.Backend, opts ...tabular.ClientOption) *tabular.Client {
	policy, _ := newTestPolicy()
	return tabular.NewClient(backend, append([]tabular.ClientOption{tabular.WithRetryPolicy(policy)}, opts...)...)
}

var headers = []string{"ID", "Name", "Status"}

func seeded() *memory.Backend {
	b := memory.New()
	b.Seed("People", headers,
		[]string{"P-1", "Ann", "active"},
		[]string{"P-2", "Bob", "active"},
		[]string{"P-3", "Cat", "inactive"},
	)
	return b
}

// =============================================================================
// BOOTSTRAP
// =============================================================================

func TestBootstrap_CreatesTableAndHeaders(t *testing.T) {
	backend := memory.New()
	client := newTestClient(backend)

	require.NoError(t, client.BootstrapSchema(context.Background(), "People", headers))

	assert.Equal(t, [][]string{headers}, backend.Snapshot("People"))
	assert.Equal(t, 1, backend.Calls(memory.OpCreateTable))

	// Idempotent
	require.NoError(t, client.BootstrapSchema(context.Background(), "People", headers))
	assert.Equal(t, [][]string{headers}, backend.Snapshot("People"))
	assert.Equal(t, 1, backend.Calls(memory.OpCreateTable))
}

func TestBootstrap_RewritesDriftedHeaders(t *testing.T) {
	// GIVEN: A table whose header row lost a column
	backend := memory.New()
	backend.Seed("People", []string{"ID", "Name"}, []string{"P-1", "Ann"})
	client := newTestClient(backend)

	// WHEN: The first read happens
	rows, err := client.ListAll(context.Background(), "People", headers)

	// THEN: Headers are rewritten, data rows are left in place
	require.NoError(t, err)
	assert.Equal(t, headers, backend.Snapshot("People")[0])
	require.Len(t, rows, 1)
	assert.Equal(t, "Ann", rows[0]["Name"])
	assert.Equal(t, "", rows[0]["Status"])
}

func TestBootstrap_TrailingBlankHeadersAreNotDrift(t *testing.T) {
	backend := memory.New()
	backend.Seed("People", []string{"ID", "Name", "Status", "", " "})
	client := newTestClient(backend)

	_, err := client.ListAll(context.Background(), "People", headers)
	require.NoError(t, err)
	assert.Equal(t, 0, backend.Calls(memory.OpUpdateRow))
}

func TestSchemaMismatch_WithoutAutoBootstrap(t *testing.T) {
	backend := memory.New()
	backend.Seed("People", []string{"ID", "Nom"})
	client := newTestClient(backend, tabular.WithAutoBootstrap(false))

	_, err := client.ListAll(context.Background(), "People", headers)

	var mismatch *tabular.SchemaMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.ErrorIs(t, err, tabular.ErrSchemaMismatch)
	assert.Equal(t, []string{"ID", "Nom"}, mismatch.Actual)
	assert.Equal(t, 0, backend.Calls(memory.OpUpdateRow))
}

// =============================================================================
// ROW OPERATIONS
// =============================================================================

func TestListAll_OnlyHeadersIsEmpty(t *testing.T) {
	backend := memory.New()
	backend.Seed("People", headers)
	rows, err := newTestClient(backend).ListAll(context.Background(), "People", headers)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestListAll_SkipsBlankRows(t *testing.T) {
	backend := seeded()
	backend.Seed("People", headers, []string{"P-1", "Ann", "active"}, []string{"", "", ""}, []string{"P-2", "Bob"})

	rows, err := newTestClient(backend).ListAll(context.Background(), "People", headers)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "", rows[1]["Status"])
}

func TestAppendUpdateDelete(t *testing.T) {
	ctx := context.Background()
	backend := seeded()
	client := newTestClient(backend)

	require.NoError(t, client.Append(ctx, "People", headers, tabular.Row{"ID": "P-4", "Name": "Dan", "Status": "active"}))
	require.NoError(t, client.UpdateByKey(ctx, "People", headers, "ID", "P-2", tabular.Row{"ID": "P-2", "Name": "Bobby", "Status": "inactive"}))
	require.NoError(t, client.DeleteByKey(ctx, "People", headers, "ID", "P-1"))

	assert.Equal(t, [][]string{
		headers,
		{"P-2", "Bobby", "inactive"},
		{"P-3", "Cat", "inactive"},
		{"P-4", "Dan", "active"},
	}, backend.Snapshot("People"))
}

func TestUpdateDelete_NotFound(t *testing.T) {
	ctx := context.Background()
	backend := seeded()
	client := newTestClient(backend)

	err := client.UpdateByKey(ctx, "People", headers, "ID", "P-9", tabular.Row{"ID": "P-9"})
	var nf *tabular.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "P-9", nf.Key)

	err = client.DeleteByKey(ctx, "People", headers, "ID", "P-9")
	assert.True(t, tabular.IsNotFound(err))
	assert.Equal(t, 0, backend.Calls(memory.OpDeleteRow))
	assert.Len(t, backend.Snapshot("People"), 4)
}

func TestCall_TimeoutIsIndependentOfCaller(t *testing.T) {
	// GIVEN: A caller whose context is already cancelled
	backend := seeded()
	var sawCancelled bool
	client := newTestClient(&ctxRecorder{Backend: backend, cancelled: &sawCancelled})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// WHEN: A read is issued
	rows, err := client.ListAll(ctx, "People", headers)

	// THEN: The backend still receives a live context
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.False(t, sawCancelled)
}

// ctxRecorder records whether the backend ever saw a cancelled context.
type ctxRecorder struct {
	*memory.Backend
	cancelled *bool
}

func (p *ctxRecorder) GetValues(ctx context.Context, table string) ([][]string, error) {
	if ctx.Err() != nil {
		*p.cancelled = true
	}
	if _, ok := ctx.Deadline(); !ok {
		*p.cancelled = true
	}
	return p.Backend.GetValues(ctx, table)
}
