/*
scheduler.go - Periodic delay sweep and daily warning check

PURPOSE:
  Runs the delay sweep on a fixed interval and the warning check once per
  working day, from a single background worker. Screens never trigger
  sweeps; this is the only automatic writer.

DESIGN:
  - One goroutine driven by a time.Ticker
  - Runs immediately on Start, then every Interval
  - Warning check runs on the first tick of each new day
  - A run that ends in a quota error makes the worker skip ticks for
    Interval * 2^n (n = consecutive quota-hit runs), capped at MaxBackoff
  - A clean run resets the backoff
  - Failures go to OnError (wired to error reporting in cmd/server)

CONFIGURATION:
  - Interval:   How often to sweep (default: 1 hour)
  - MaxBackoff: Upper bound for quota backoff (default: 6 hours)
  - Enabled:    Whether Start launches the worker (default: true)
  - Warnings:   Whether the daily warning check runs (default: true)

USAGE:
  scheduler := NewScheduler(service, logger)
  scheduler.OnError = func(err error) { sentry.CaptureException(err) }
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - delay.go: Sweeper
  - warnings.go: WarningService
  - api/handlers.go: Manual trigger endpoints
*/
package workforce

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/workforce-engine/tabular"
)

// RunReport is the outcome of one scheduler run.
type RunReport struct {
	StartedAt time.Time    `json:"startedAt"`
	Sweep     *SweepReport `json:"sweep,omitempty"`
	Warnings  *WarningRun  `json:"warnings,omitempty"`
	Error     string       `json:"error,omitempty"`

	err error
}

// Err is the joined failure of the run, if any.
func (r RunReport) Err() error { return r.err }

// SchedulerStatus is a snapshot for health reporting.
type SchedulerStatus struct {
	Enabled      bool          `json:"enabled"`
	Interval     time.Duration `json:"intervalNs"`
	QuotaStrikes int           `json:"quotaStrikes"`
	BackoffUntil time.Time     `json:"backoffUntil,omitzero"`
	LastRun      *RunReport    `json:"lastRun,omitempty"`
}

// Scheduler owns the background sweep worker.
type Scheduler struct {
	Service    *Service
	Interval   time.Duration
	MaxBackoff time.Duration
	Enabled    bool
	Warnings   bool

	// OnError receives the error of every failed run.
	OnError func(error)

	logger zerolog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex

	state          sync.Mutex
	strikes        int
	backoffUntil   time.Time
	lastWarningDay Date
	lastRun        *RunReport
}

// NewScheduler creates a scheduler with default settings.
func NewScheduler(svc *Service, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		Service:    svc,
		Interval:   1 * time.Hour,
		MaxBackoff: 6 * time.Hour,
		Enabled:    true,
		Warnings:   true,
		logger:     logger.With().Str("component", "scheduler").Logger(),
		stop:       make(chan struct{}),
	}
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.logger.Info().Msg("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.stop = make(chan struct{})
	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)

	go s.run(ctx)

	s.logger.Info().Dur("interval", s.Interval).Msg("started")
}

// Stop stops the scheduler and waits for a run in progress to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		s.cancel()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.logger.Info().Msg("stopped")
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	s.Tick(ctx)

	for {
		select {
		case <-s.ticker.C:
			s.Tick(ctx)
		case <-s.stop:
			return
		}
	}
}

// Tick runs once unless a quota backoff is in effect. It reports whether a
// run happened.
func (s *Scheduler) Tick(ctx context.Context) (RunReport, bool) {
	now := s.Service.Clock.Now()
	s.state.Lock()
	until := s.backoffUntil
	s.state.Unlock()

	if now.Before(until) {
		s.logger.Info().Time("until", until).Msg("quota backoff in effect, skipping run")
		return RunReport{}, false
	}
	return s.RunNow(ctx), true
}

// RunNow sweeps immediately, ignoring backoff, and runs the warning check
// if it has not yet run today.
func (s *Scheduler) RunNow(ctx context.Context) RunReport {
	now := s.Service.Clock.Now()
	today := DateOf(now)
	report := RunReport{StartedAt: now}
	var errs []error

	sweep, err := s.Service.SweepDelays(ctx, today)
	report.Sweep = &sweep
	if err != nil {
		errs = append(errs, err)
	} else if err := sweep.Err(); err != nil {
		errs = append(errs, err)
	}

	if s.Warnings && s.warningsDue(today) {
		run, err := s.Service.CheckAllWarnings(ctx, today)
		report.Warnings = &run
		if err != nil {
			errs = append(errs, err)
		} else {
			s.state.Lock()
			s.lastWarningDay = today
			s.state.Unlock()
			for _, f := range run.Failures {
				errs = append(errs, f.err)
			}
		}
	}

	report.err = errors.Join(errs...)
	if report.err != nil {
		report.Error = report.err.Error()
	}
	s.record(now, &report)
	return report
}

func (s *Scheduler) warningsDue(today Date) bool {
	s.state.Lock()
	defer s.state.Unlock()
	return !s.lastWarningDay.Equal(today)
}

func (s *Scheduler) record(now time.Time, report *RunReport) {
	s.state.Lock()
	s.lastRun = report
	if errors.Is(report.err, tabular.ErrQuotaExceeded) {
		s.strikes++
		delay := s.backoff(s.strikes)
		s.backoffUntil = now.Add(delay)
		s.logger.Warn().Int("strikes", s.strikes).Dur("backoff", delay).Msg("run hit quota limit")
	} else {
		s.strikes = 0
		s.backoffUntil = time.Time{}
	}
	s.state.Unlock()

	if report.err != nil {
		s.logger.Error().Err(report.err).Msg("run finished with errors")
		if s.OnError != nil {
			s.OnError(report.err)
		}
	}
}

// backoff is Interval * 2^strikes, capped at MaxBackoff.
func (s *Scheduler) backoff(strikes int) time.Duration {
	d := s.Interval
	for i := 0; i < strikes; i++ {
		d *= 2
		if s.MaxBackoff > 0 && d >= s.MaxBackoff {
			return s.MaxBackoff
		}
	}
	return d
}

// Status returns a snapshot for health reporting.
func (s *Scheduler) Status() SchedulerStatus {
	s.state.Lock()
	defer s.state.Unlock()
	st := SchedulerStatus{
		Enabled:      s.Enabled,
		Interval:     s.Interval,
		QuotaStrikes: s.strikes,
		BackoffUntil: s.backoffUntil,
	}
	if s.lastRun != nil {
		last := *s.lastRun
		st.LastRun = &last
	}
	return st
}
