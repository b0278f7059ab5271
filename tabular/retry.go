/*
retry.go - Differentiated retry/backoff for remote store calls

PURPOSE:
  The remote store enforces per-minute quotas. Fast retries on a rate-limit
  error burn the quota further, and retrying auth or timeout failures only
  adds latency. Every backend call is therefore classified and retried
  according to its class.

POLICY:
  Class       Retries  Delays               On exhaustion
  quota       3        20s, 40s, 80s        *QuotaExceededError
  transient   3        500ms, 1s, 2s        ErrTransient
  auth        0        -                    ErrAuthFailure
  timeout     0        -                    ErrTimeout
  permanent   0        -                    error returned unchanged

CANCELLATION:
  A canceled context stops the retry loop between attempts. Attempts already
  dispatched run to their own per-call deadline (see client.go).

SEE ALSO:
  - errors.go: Error taxonomy
  - client.go: Wraps every backend call with RetryPolicy.Do
*/
package tabular

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// =============================================================================
// CLASSIFICATION
// =============================================================================

// ErrorClass decides how a failure is retried.
type ErrorClass int

const (
	ClassPermanent ErrorClass = iota
	ClassAuth
	ClassTimeout
	ClassQuota
	ClassTransient
)

func (c ErrorClass) String() string {
	switch c {
	case ClassPermanent:
		return "permanent"
	case ClassAuth:
		return "auth failure"
	case ClassTimeout:
		return "timeout"
	case ClassQuota:
		return "quota exceeded"
	case ClassTransient:
		return "transient failure"
	default:
		return "unknown"
	}
}

var quotaMarkers = []string{"quota", "rate limit", "ratelimit", "rate_limit", "resource_exhausted", "too many requests"}

// Classify maps an error to its retry class.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassPermanent
	}

	var (
		classified *ClassifiedError
		quota      *QuotaExceededError
	)
	switch {
	case errors.As(err, &classified), errors.As(err, &quota):
		// Already went through a retry loop.
		return ClassPermanent
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrSchemaMismatch), errors.Is(err, ErrUnknownColumn):
		return ClassPermanent
	case errors.Is(err, context.Canceled):
		return ClassPermanent
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTimeout
	}

	var status *StatusError
	if errors.As(err, &status) {
		switch status.Code {
		case http.StatusTooManyRequests:
			return ClassQuota
		case http.StatusUnauthorized, http.StatusForbidden:
			return ClassAuth
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return ClassTimeout
		}
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range quotaMarkers {
		if strings.Contains(msg, marker) {
			return ClassQuota
		}
	}
	return ClassTransient
}

// =============================================================================
// RETRY STRATEGIES
// =============================================================================

// Retryer decides the delay before the next attempt.
type Retryer interface {
	// NextDelay returns the delay before retry number attempt (0-based) and
	// whether to retry at all.
	NextDelay(attempt int, lastErr error) (time.Duration, bool)
}

// ExponentialBackoff waits InitialDelay * Multiplier^attempt, capped at MaxDelay.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxRetries   int
}

// NextDelay implements Retryer
func (b *ExponentialBackoff) NextDelay(attempt int, _ error) (time.Duration, bool) {
	if attempt >= b.MaxRetries {
		return 0, false
	}
	delay := float64(b.InitialDelay) * math.Pow(b.Multiplier, float64(attempt))
	if b.MaxDelay > 0 && delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}
	return time.Duration(delay), true
}

// QuotaBackoff is the long backoff used for rate-limit errors.
func QuotaBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialDelay: 20 * time.Second,
		MaxDelay:     2 * time.Minute,
		Multiplier:   2,
		MaxRetries:   3,
	}
}

// TransientBackoff is the short backoff used for generic failures.
func TransientBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
		MaxRetries:   3,
	}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =============================================================================
// RETRY POLICY
// =============================================================================

// RetryPolicy runs an operation and retries it according to its error class.
type RetryPolicy struct {
	Quota     Retryer
	Transient Retryer
	Sleep     Sleeper
	Logger    zerolog.Logger
}

// NewRetryPolicy returns the production policy.
func NewRetryPolicy(logger zerolog.Logger) *RetryPolicy {
	return &RetryPolicy{
		Quota:     QuotaBackoff(),
		Transient: TransientBackoff(),
		Sleep:     SleepContext,
		Logger:    logger,
	}
}

// Do runs fn until it succeeds or the error class says stop.
func (p *RetryPolicy) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var quotaRetries, transientRetries int
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		class := Classify(err)
		var (
			delay time.Duration
			retry bool
		)
		switch class {
		case ClassPermanent:
			return err
		case ClassAuth, ClassTimeout:
			p.Logger.Error().Err(err).Str("op", op).Str("class", class.String()).Msg("remote call failed, not retrying")
			return &ClassifiedError{Op: op, Class: class, Attempts: attempt, Cause: err}
		case ClassQuota:
			delay, retry = p.Quota.NextDelay(quotaRetries, err)
			if !retry {
				p.Logger.Error().Err(err).Str("op", op).Int("attempts", attempt).Msg("quota retries exhausted")
				return &QuotaExceededError{Op: op, Attempts: attempt, Cause: err}
			}
			quotaRetries++
		default:
			delay, retry = p.Transient.NextDelay(transientRetries, err)
			if !retry {
				p.Logger.Error().Err(err).Str("op", op).Int("attempts", attempt).Msg("transient retries exhausted")
				return &ClassifiedError{Op: op, Class: ClassTransient, Attempts: attempt, Cause: err}
			}
			transientRetries++
		}

		p.Logger.Warn().Err(err).
			Str("op", op).
			Str("class", class.String()).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("remote call failed, retrying")

		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}
