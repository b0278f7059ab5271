package tabular_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/workforce-engine/tabular"
)

// script returns fn that yields errs in order, then nil, counting calls.
func script(calls *int, errs ...error) func(context.Context) error {
	return func(context.Context) error {
		*calls++
		if *calls <= len(errs) {
			return errs[*calls-1]
		}
		return nil
	}
}

func repeat(err error, n int) []error {
	out := make([]error, n)
	for i := range out {
		out[i] = err
	}
	return out
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want tabular.ErrorClass
	}{
		{"429", &tabular.StatusError{Code: 429}, tabular.ClassQuota},
		{"quota message", errors.New("Quota exceeded for quota metric 'Read requests'"), tabular.ClassQuota},
		{"rate limit message", fmt.Errorf("wrapped: %w", errors.New("rate limit hit")), tabular.ClassQuota},
		{"401", &tabular.StatusError{Code: 401}, tabular.ClassAuth},
		{"403", &tabular.StatusError{Code: 403}, tabular.ClassAuth},
		{"504", &tabular.StatusError{Code: 504}, tabular.ClassTimeout},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), tabular.ClassTimeout},
		{"500", &tabular.StatusError{Code: 500}, tabular.ClassTransient},
		{"400", &tabular.StatusError{Code: 400}, tabular.ClassTransient},
		{"reset", errors.New("connection reset by peer"), tabular.ClassTransient},
		{"not found", &tabular.NotFoundError{Table: "T", KeyColumn: "ID", Key: "x"}, tabular.ClassPermanent},
		{"cancelled", context.Canceled, tabular.ClassPermanent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tabular.Classify(tc.err))
		})
	}
}

func TestRetry_QuotaExhaustion(t *testing.T) {
	// GIVEN: A store that always answers 429
	policy, rec := newTestPolicy()
	calls := 0
	fn := script(&calls, repeat(&tabular.StatusError{Code: 429, Message: "RESOURCE_EXHAUSTED"}, 10)...)

	// WHEN: The call is made
	err := policy.Do(context.Background(), "get Tasks", fn)

	// THEN: Three strictly increasing waits, then QuotaExceeded
	assert.Equal(t, []time.Duration{20 * time.Second, 40 * time.Second, 80 * time.Second}, rec.delays)
	assert.Equal(t, 4, calls)
	assert.ErrorIs(t, err, tabular.ErrQuotaExceeded)
	assert.True(t, tabular.IsQuota(err))

	var qe *tabular.QuotaExceededError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, 4, qe.Attempts)
	assert.Contains(t, err.Error(), "try again")
}

func TestRetry_QuotaRecovers(t *testing.T) {
	policy, rec := newTestPolicy()
	calls := 0
	err := policy.Do(context.Background(), "op", script(&calls, repeat(&tabular.StatusError{Code: 429}, 2)...))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{20 * time.Second, 40 * time.Second}, rec.delays)
}

func TestRetry_AuthNeverRetried(t *testing.T) {
	policy, rec := newTestPolicy()
	calls := 0
	err := policy.Do(context.Background(), "op", script(&calls, &tabular.StatusError{Code: 401}))

	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.delays)
	assert.ErrorIs(t, err, tabular.ErrAuthFailure)
	assert.False(t, tabular.IsRetryable(err))

	var status *tabular.StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, 401, status.Code)
}

func TestRetry_TimeoutNeverRetried(t *testing.T) {
	policy, rec := newTestPolicy()
	calls := 0
	err := policy.Do(context.Background(), "op", script(&calls, fmt.Errorf("read: %w", context.DeadlineExceeded)))

	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.delays)
	assert.ErrorIs(t, err, tabular.ErrTimeout)
}

func TestRetry_TransientExhaustion(t *testing.T) {
	policy, rec := newTestPolicy()
	calls := 0
	err := policy.Do(context.Background(), "op", script(&calls, repeat(errors.New("connection reset"), 10)...))

	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}, rec.delays)
	assert.ErrorIs(t, err, tabular.ErrTransient)
	assert.True(t, tabular.IsRetryable(err))
}

func TestRetry_BudgetsAreSeparate(t *testing.T) {
	policy, rec := newTestPolicy()
	calls := 0
	err := policy.Do(context.Background(), "op", script(&calls,
		errors.New("eof"),
		&tabular.StatusError{Code: 429},
		errors.New("eof"),
	))

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 20 * time.Second, time.Second}, rec.delays)
}

func TestRetry_PermanentPassesThrough(t *testing.T) {
	policy, rec := newTestPolicy()
	nf := &tabular.NotFoundError{Table: "T", KeyColumn: "ID", Key: "x"}
	calls := 0
	err := policy.Do(context.Background(), "op", script(&calls, nf))

	assert.Same(t, nf, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.delays)
}

func TestRetry_SleepHonorsCancellation(t *testing.T) {
	policy := tabular.NewRetryPolicy(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	start := time.Now()
	err := policy.Do(ctx, "op", script(&calls, repeat(&tabular.StatusError{Code: 429}, 10)...))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExponentialBackoff_Capped(t *testing.T) {
	b := &tabular.ExponentialBackoff{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 2, MaxRetries: 5}
	var got []time.Duration
	for i := 0; ; i++ {
		d, ok := b.NextDelay(i, nil)
		if !ok {
			break
		}
		got = append(got, d)
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second, 3 * time.Second}, got)
}
