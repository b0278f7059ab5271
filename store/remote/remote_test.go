package remote_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/workforce-engine/store/memory"
	"github.com/warp/workforce-engine/store/remote"
	"github.com/warp/workforce-engine/store/storetest"
	"github.com/warp/workforce-engine/tabular"
)

func serve(t *testing.T, backend tabular.Backend, token string) *httptest.Server {
	srv := httptest.NewServer(remote.NewHandler(backend, token, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return srv
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) tabular.Backend {
		srv := serve(t, memory.New(), "secret")
		return remote.New(srv.URL, "secret", zerolog.Nop())
	})
}

func TestBadTokenIsAuthFailure(t *testing.T) {
	// GIVEN: A service expecting a different token
	srv := serve(t, memory.New(), "secret")
	backend := remote.New(srv.URL, "wrong", zerolog.Nop())

	// WHEN: The client calls it through the retry policy
	calls := 0
	policy := tabular.NewRetryPolicy(zerolog.Nop())
	err := policy.Do(context.Background(), "list tables", func(ctx context.Context) error {
		calls++
		_, err := backend.Tables(ctx)
		return err
	})

	// THEN: 401 is surfaced once, never retried
	assert.ErrorIs(t, err, tabular.ErrAuthFailure)
	assert.Equal(t, 1, calls)
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		code  int
		body  string
		class tabular.ErrorClass
		msg   string
	}{
		{429, `{"error":{"code":429,"message":"Quota exceeded for quota metric","status":"RESOURCE_EXHAUSTED"}}`, tabular.ClassQuota, "RESOURCE_EXHAUSTED: Quota exceeded for quota metric"},
		{403, `{"error":{"code":403,"message":"The caller does not have permission","status":"PERMISSION_DENIED"}}`, tabular.ClassAuth, "PERMISSION_DENIED: The caller does not have permission"},
		{503, `upstream unavailable`, tabular.ClassTransient, "upstream unavailable"},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.code), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.code)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := remote.New(srv.URL, "", zerolog.Nop()).GetValues(context.Background(), "Tasks")

			var status *tabular.StatusError
			require.True(t, errors.As(err, &status))
			assert.Equal(t, tc.code, status.Code)
			assert.Equal(t, tc.msg, status.Message)
			assert.Equal(t, tc.class, tabular.Classify(err))
		})
	}
}

func TestSlowServerIsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	policy := tabular.NewRetryPolicy(zerolog.Nop())
	client := tabular.NewClient(remote.New(srv.URL, "", zerolog.Nop()),
		tabular.WithRetryPolicy(policy),
		tabular.WithCallTimeout(50*time.Millisecond))

	_, err := client.ListAll(context.Background(), "Tasks", []string{"ID"})
	assert.ErrorIs(t, err, tabular.ErrTimeout)
}

func TestTableNamesAreEscaped(t *testing.T) {
	backend := memory.New()
	backend.Seed("Bug Comments", []string{"ID"}, []string{"C-1"})
	srv := serve(t, backend, "")

	values, err := remote.New(srv.URL+"/", "", zerolog.Nop()).GetValues(context.Background(), "Bug Comments")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"ID"}, {"C-1"}}, values)
}
