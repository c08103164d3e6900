// ABOUTME: Exponential retry delays with jitter and a context-aware retry loop
// ABOUTME: Used for transient feed download failures within a single refresh

package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Defaults applied to zero BackoffConfig fields.
const (
	DefaultMaxRetries     = 3
	DefaultInitialDelay   = time.Second
	DefaultMaxDelay       = 30 * time.Second
	DefaultMultiplier     = 2.0
	DefaultJitterFraction = 0.2
)

// BackoffConfig describes a retry schedule. Zero fields take the
// defaults, except JitterFraction where zero means no jitter and
// MaxRetries where a negative value disables retrying.
type BackoffConfig struct {
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries"`

	// InitialDelay is the wait after the first failure.
	InitialDelay time.Duration `yaml:"initial_delay" mapstructure:"initial_delay"`

	// MaxDelay caps each wait before jitter.
	MaxDelay time.Duration `yaml:"max_delay" mapstructure:"max_delay"`

	Multiplier float64 `yaml:"multiplier" mapstructure:"multiplier"`

	// JitterFraction spreads each wait by +/- that share of itself.
	JitterFraction float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// DefaultBackoffConfig returns the default schedule with jitter.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		MaxRetries:     DefaultMaxRetries,
		InitialDelay:   DefaultInitialDelay,
		MaxDelay:       DefaultMaxDelay,
		Multiplier:     DefaultMultiplier,
		JitterFraction: DefaultJitterFraction,
	}
}

// Validate rejects out-of-range jitter and shrinking multipliers.
func (c BackoffConfig) Validate() error {
	var errs []error
	if c.JitterFraction < 0 || c.JitterFraction > 1 {
		errs = append(errs, fmt.Errorf("jitter_fraction %v not in [0, 1]", c.JitterFraction))
	}
	if c.Multiplier != 0 && c.Multiplier < 1 {
		errs = append(errs, fmt.Errorf("multiplier %v is below 1", c.Multiplier))
	}
	if c.InitialDelay < 0 || c.MaxDelay < 0 {
		errs = append(errs, errors.New("delays must not be negative"))
	}
	return errors.Join(errs...)
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = DefaultMaxRetries
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = DefaultInitialDelay
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.Multiplier == 0 {
		c.Multiplier = DefaultMultiplier
	}
	return c
}

// Retries returns the effective number of retries.
func (c BackoffConfig) Retries() int {
	return c.withDefaults().MaxRetries
}

// Delay returns the wait before retry number attempt (1-based), or
// false once the retries are used up.
func (c BackoffConfig) Delay(attempt int) (time.Duration, bool) {
	c = c.withDefaults()
	if attempt < 1 || attempt > c.MaxRetries {
		return 0, false
	}

	base := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt-1))
	base = math.Min(base, float64(c.MaxDelay))
	if c.JitterFraction > 0 {
		base += (rand.Float64()*2 - 1) * base * c.JitterFraction
	}
	return time.Duration(base), true
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Retry returns it at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Retry calls fn until it succeeds, returns a permanent error, the
// schedule runs out or ctx is done. onRetry, if set, runs before each
// wait. A permanent error is returned unwrapped.
func Retry(ctx context.Context, config BackoffConfig, fn func(ctx context.Context) error, onRetry func(attempt int, delay time.Duration, err error)) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		var pe *permanentError
		if errors.As(err, &pe) {
			return pe.err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry aborted: %w (last error: %v)", ctx.Err(), err)
		}

		delay, ok := config.Delay(attempt)
		if !ok {
			return fmt.Errorf("giving up after %d retries: %w", attempt-1, err)
		}
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-timer.C:
		}
	}
}
