// Package loadgen drives concurrent simulated users against the relay endpoints
// and summarizes the observed statuses and latencies.
package loadgen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"useapi-go/internal/redact"
)

// Config controls a load run. At least one of Duration or Requests must be set.
type Config struct {
	BaseURL  string
	Users    int
	Duration time.Duration
	Requests int
	MinWait  time.Duration
	MaxWait  time.Duration
	// RPS caps the request rate across all users; 0 means unlimited.
	RPS     float64
	Timeout time.Duration
}

// Validate checks that the configuration describes a run that terminates.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("base URL must not be empty")
	case c.Users < 1:
		return fmt.Errorf("users must be >= 1; got %d", c.Users)
	case c.Duration <= 0 && c.Requests <= 0:
		return fmt.Errorf("duration or requests must be set")
	case c.Duration < 0:
		return fmt.Errorf("duration must not be negative; got %s", c.Duration)
	case c.Requests < 0:
		return fmt.Errorf("requests must not be negative; got %d", c.Requests)
	case c.MinWait < 0:
		return fmt.Errorf("min wait must not be negative; got %s", c.MinWait)
	case c.MaxWait < c.MinWait:
		return fmt.Errorf("max wait (%s) must be >= min wait (%s)", c.MaxWait, c.MinWait)
	case c.RPS < 0:
		return fmt.Errorf("rps must not be negative; got %g", c.RPS)
	case c.Timeout < 0:
		return fmt.Errorf("timeout must not be negative; got %s", c.Timeout)
	}
	return nil
}

// Runner executes a scenario with the configured number of users.
type Runner struct {
	cfg      Config
	scenario Scenario
	client   *http.Client
	logger   *slog.Logger
}

// NewRunner validates cfg and creates a Runner.
func NewRunner(cfg Config, scenario Scenario, logger *slog.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if scenario == nil {
		return nil, errors.New("scenario must not be nil")
	}
	return &Runner{
		cfg:      cfg,
		scenario: scenario,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   logger.With("component", "loadgen", "scenario", scenario.Name()),
	}, nil
}

// Run starts the users and blocks until the request budget is spent, the
// duration elapses, or ctx is canceled. A canceled ctx is not an error.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	runID := uuid.NewString()
	logger := r.logger.With("run_id", runID)

	if r.cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Duration)
		defer cancel()
	}

	var budget *atomic.Int64
	if r.cfg.Requests > 0 {
		budget = new(atomic.Int64)
		budget.Store(int64(r.cfg.Requests))
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if r.cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(r.cfg.RPS), 1)
	}

	logger.Info("load run starting",
		"target", r.cfg.BaseURL,
		"users", r.cfg.Users,
		"duration", r.cfg.Duration,
		"requests", r.cfg.Requests,
		"rps", r.cfg.RPS,
	)

	rec := newRecorder()
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i := range r.cfg.Users {
		g.Go(func() error {
			return r.user(gctx, i, limiter, budget, rec)
		})
	}
	err := g.Wait()

	sum := rec.summary(time.Since(start))
	sum.RunID = runID
	sum.Scenario = r.scenario.Name()

	logger.Info("load run finished",
		"requests", sum.Requests,
		"errors", sum.Errors,
		"elapsed", sum.Elapsed,
	)
	return sum, err
}

func (r *Runner) user(ctx context.Context, id int, limiter *rate.Limiter, budget *atomic.Int64, rec *recorder) error {
	logger := r.logger.With("user", id)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if budget != nil && budget.Add(-1) < 0 {
			return nil
		}
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}
		if err := r.fire(ctx, logger, rec); err != nil {
			return err
		}
		if !sleep(ctx, r.wait()) {
			return nil
		}
	}
}

func (r *Runner) fire(ctx context.Context, logger *slog.Logger, rec *recorder) error {
	req, err := r.scenario.NewRequest(ctx, r.cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("build %s request: %w", r.scenario.Name(), err)
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-Id", reqID)

	begin := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			rec.failure(err)
			logger.Debug("request failed", "request_id", reqID, "err", redact.Error(err))
		}
		return nil
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	elapsed := time.Since(begin)
	if err != nil {
		if ctx.Err() == nil {
			rec.failure(err)
			logger.Debug("reading response failed", "request_id", reqID, "err", redact.Error(err))
		}
		return nil
	}

	status := r.scenario.Status(resp, body)
	rec.success(status, elapsed)
	logger.Debug("request done", "request_id", reqID, "status", status, "latency_ms", elapsed.Milliseconds())
	return nil
}

func (r *Runner) wait() time.Duration {
	span := r.cfg.MaxWait - r.cfg.MinWait
	if span <= 0 {
		return r.cfg.MinWait
	}
	return r.cfg.MinWait + rand.N(span+1)
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
