// Package retry runs operations with exponential backoff and jitter on top of
// github.com/cenkalti/backoff/v5. Only errors accepted by RetryIf are
// retried; everything else returns on the first attempt.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryableError marks an error as transient.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Retryable wraps an error to indicate it should be retried.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable checks if an error carries the Retryable marker.
func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}

// Config holds retry configuration.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including first attempt).
	// Default: 3
	MaxAttempts int

	// InitialDelay is the initial delay before first retry.
	// Default: 100ms
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries.
	// Default: 30s
	MaxDelay time.Duration

	// Multiplier is the factor by which delay increases after each attempt.
	// Default: 2.0
	Multiplier float64

	// JitterFactor adds randomness to delays (0.0 = no jitter, 1.0 = full jitter).
	// Default: 0.1
	JitterFactor float64

	// RetryIf decides whether an error is transient.
	// If nil, only RetryableError errors are retried.
	RetryIf func(error) bool

	// OnRetry is called before each retry attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// Option is a functional option for configuring retries.
type Option func(*Config)

// WithMaxAttempts sets the maximum number of attempts.
func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

// WithInitialDelay sets the initial delay before first retry.
func WithInitialDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.InitialDelay = d
		}
	}
}

// WithMaxDelay sets the maximum delay between retries.
func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.MaxDelay = d
		}
	}
}

// WithMultiplier sets the backoff multiplier.
func WithMultiplier(m float64) Option {
	return func(c *Config) {
		if m >= 1.0 {
			c.Multiplier = m
		}
	}
}

// WithJitter sets the jitter factor (0.0 to 1.0).
func WithJitter(j float64) Option {
	return func(c *Config) {
		if j >= 0 && j <= 1.0 {
			c.JitterFactor = j
		}
	}
}

// WithRetryIf sets a custom function to determine if an error should be retried.
func WithRetryIf(fn func(error) bool) Option {
	return func(c *Config) {
		c.RetryIf = fn
	}
}

// WithOnRetry sets a callback function called before each retry.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(c *Config) {
		c.OnRetry = fn
	}
}

// Retrier manages retry operations.
type Retrier struct {
	config Config
}

// New creates a new Retrier with the given options.
func New(opts ...Option) *Retrier {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return &Retrier{config: config}
}

// Config returns the effective configuration.
func (r *Retrier) Config() Config {
	return r.config
}

// Do executes the operation until it succeeds, returns a non-retryable error,
// runs out of attempts or ctx ends. The last operation error is returned
// unwrapped from the Retryable marker.
func (r *Retrier) Do(ctx context.Context, operation func(ctx context.Context) error) error {
	_, err := DoWithData(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, operation(ctx)
	}, r.Options()...)
	return err
}

// Options returns the configuration as options, for DoWithData.
func (r *Retrier) Options() []Option {
	c := r.config
	return []Option{
		WithMaxAttempts(c.MaxAttempts),
		WithInitialDelay(c.InitialDelay),
		WithMaxDelay(c.MaxDelay),
		WithMultiplier(c.Multiplier),
		WithJitter(c.JitterFactor),
		WithRetryIf(c.RetryIf),
		WithOnRetry(c.OnRetry),
	}
}

func (c Config) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialDelay
	b.MaxInterval = c.MaxDelay
	b.Multiplier = c.Multiplier
	b.RandomizationFactor = c.JitterFactor
	return b
}

// Do is a convenience function that creates a Retrier and executes the operation.
func Do(ctx context.Context, operation func(ctx context.Context) error, opts ...Option) error {
	return New(opts...).Do(ctx, operation)
}

// DoWithData is a helper for operations that return data.
func DoWithData[T any](ctx context.Context, operation func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	retryIf := config.RetryIf
	if retryIf == nil {
		retryIf = IsRetryable
	}

	attempt := 0
	var lastErr error
	result, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		res, err := operation(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !retryIf(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	},
		backoff.WithBackOff(config.backOff()),
		backoff.WithMaxTries(uint(config.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, delay time.Duration) {
			if config.OnRetry != nil {
				config.OnRetry(attempt, err, delay)
			}
		}),
	)
	if err == nil {
		return result, nil
	}
	// Context ended between attempts: report what the operation last said.
	if lastErr != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		err = lastErr
	}
	var retryable *RetryableError
	if errors.As(err, &retryable) && err == error(retryable) {
		return result, retryable.Err
	}
	return result, err
}

// FactSourceRetrier returns a Retrier for fact source outages during sweeps.
func FactSourceRetrier(retryIf func(error) bool, onRetry func(attempt int, err error, delay time.Duration)) *Retrier {
	return New(
		WithMaxAttempts(4),
		WithInitialDelay(2*time.Second),
		WithMaxDelay(30*time.Second),
		WithMultiplier(2.0),
		WithJitter(0.2),
		WithRetryIf(retryIf),
		WithOnRetry(onRetry),
	)
}

// DatabaseRetrier returns a Retrier configured for database operations.
func DatabaseRetrier(retryIf func(error) bool) *Retrier {
	return New(
		WithMaxAttempts(3),
		WithInitialDelay(50*time.Millisecond),
		WithMaxDelay(time.Second),
		WithMultiplier(2.0),
		WithJitter(0.05),
		WithRetryIf(retryIf),
	)
}
