// Package retry wraps remote calls in bounded exponential backoff with
// jitter. Retryability is classified by the sync domain's platform errors,
// keeping the policy a pure function separate from call sites.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/bridgesync/backend/internal/domain/sync"
)

// Config controls the backoff schedule.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int
	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration
	// MinDelay floors every computed delay
	MinDelay time.Duration
	// JitterFraction is the symmetric jitter applied to each delay (0..1)
	JitterFraction float64
	// RetryAfterMargin is added on top of an upstream retry-after hint
	RetryAfterMargin time.Duration
}

// DefaultConfig returns the backoff schedule used for interactive API calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      4,
		InitialDelay:     500 * time.Millisecond,
		MinDelay:         100 * time.Millisecond,
		JitterFraction:   0.2,
		RetryAfterMargin: 500 * time.Millisecond,
	}
}

// Retrier executes operations under a Config. The sleep and jitter
// functions are injectable for tests.
type Retrier struct {
	cfg    Config
	logger *zap.Logger

	// sleep waits for the given duration or until ctx is cancelled
	sleep func(ctx context.Context, d time.Duration) error
	// unit returns a random value in [0, 1)
	unit func() float64
}

// RetrierOption is a functional option for Retrier construction.
type RetrierOption func(*Retrier)

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(logger *zap.Logger) RetrierOption {
	return func(r *Retrier) {
		r.logger = logger
	}
}

// WithSleep replaces the sleep function (tests).
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) RetrierOption {
	return func(r *Retrier) {
		r.sleep = sleep
	}
}

// WithRandom replaces the jitter source (tests).
func WithRandom(unit func() float64) RetrierOption {
	return func(r *Retrier) {
		r.unit = unit
	}
}

// New creates a Retrier. Zero-valued Config fields fall back to defaults.
func New(cfg Config, opts ...RetrierOption) *Retrier {
	def := DefaultConfig()
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = def.MinDelay
	}
	if cfg.JitterFraction < 0 || cfg.JitterFraction > 1 {
		cfg.JitterFraction = def.JitterFraction
	}
	if cfg.RetryAfterMargin <= 0 {
		cfg.RetryAfterMargin = def.RetryAfterMargin
	}

	r := &Retrier{
		cfg:    cfg,
		logger: zap.NewNop(),
		sleep:  sleepContext,
		unit:   rand.Float64,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do executes op under the retrier's backoff schedule. Retryable failures
// (rate limiting, transient unavailability) are retried up to MaxAttempts;
// anything else propagates immediately without consuming an attempt budget.
// Exhaustion wraps the last cause in sync.ErrUpstreamUnavailable.
func Do[T any](ctx context.Context, r *Retrier, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := r.delayFor(attempt-1, lastErr)
			r.logger.Debug("Retrying operation",
				zap.String("operation", name),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := r.sleep(ctx, delay); err != nil {
				return zero, err
			}
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !sync.IsRetryable(err) {
			return zero, err
		}
		lastErr = err
	}

	return zero, fmt.Errorf("%w: %s after %d attempts: %v",
		sync.ErrUpstreamUnavailable, name, r.cfg.MaxAttempts, lastErr)
}

// delayFor computes the wait before retry number n (0-indexed), honoring an
// upstream retry-after hint carried by the previous failure.
func (r *Retrier) delayFor(n int, lastErr error) time.Duration {
	delay := r.cfg.InitialDelay << uint(n)

	if r.cfg.JitterFraction > 0 {
		// Symmetric jitter in [-fraction, +fraction] of the base delay.
		spread := (r.unit()*2 - 1) * r.cfg.JitterFraction
		delay += time.Duration(float64(delay) * spread)
	}
	if delay < r.cfg.MinDelay {
		delay = r.cfg.MinDelay
	}
	if hint := sync.RetryAfterHint(lastErr); hint > 0 {
		if min := hint + r.cfg.RetryAfterMargin; delay < min {
			delay = min
		}
	}
	return delay
}

// sleepContext waits for d or until ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
