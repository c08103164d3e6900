// ABOUTME: Tests for the retry schedule and retry loop
// ABOUTME: Covers delay growth and capping, jitter bounds, permanent errors and cancellation

package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestBackoffConfig_Delay(t *testing.T) {
	t.Parallel()

	cfg := BackoffConfig{
		MaxRetries:   6,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
	}

	tests := []struct {
		attempt int
		want    time.Duration
		ok      bool
	}{
		{attempt: 0, ok: false},
		{attempt: 1, want: time.Second, ok: true},
		{attempt: 2, want: 2 * time.Second, ok: true},
		{attempt: 3, want: 4 * time.Second, ok: true},
		{attempt: 4, want: 8 * time.Second, ok: true},
		{attempt: 5, want: 10 * time.Second, ok: true},
		{attempt: 6, want: 10 * time.Second, ok: true},
		{attempt: 7, ok: false},
	}

	for _, tt := range tests {
		got, ok := cfg.Delay(tt.attempt)
		if ok != tt.ok || got != tt.want {
			t.Errorf("Delay(%d) = (%v, %v), want (%v, %v)", tt.attempt, got, ok, tt.want, tt.ok)
		}
	}
}

func TestBackoffConfig_Defaults(t *testing.T) {
	t.Parallel()

	var zero BackoffConfig
	if zero.Retries() != DefaultMaxRetries {
		t.Errorf("Retries() = %d, want %d", zero.Retries(), DefaultMaxRetries)
	}
	if d, _ := zero.Delay(1); d != DefaultInitialDelay {
		t.Errorf("Delay(1) = %v, want %v", d, DefaultInitialDelay)
	}

	disabled := BackoffConfig{MaxRetries: -1}
	if _, ok := disabled.Delay(1); ok {
		t.Error("negative MaxRetries still allows a retry")
	}

	if got := DefaultBackoffConfig(); got.JitterFraction != DefaultJitterFraction || got.Validate() != nil {
		t.Errorf("DefaultBackoffConfig() = %+v", got)
	}
}

func TestBackoffConfig_DelayJitter(t *testing.T) {
	t.Parallel()

	cfg := BackoffConfig{MaxRetries: 1, InitialDelay: 10 * time.Second, JitterFraction: 0.2}
	for range 50 {
		d, _ := cfg.Delay(1)
		if d < 8*time.Second || d > 12*time.Second {
			t.Fatalf("Delay(1) = %v, want within 8s..12s", d)
		}
	}
}

func TestBackoffConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  BackoffConfig
		wantErr bool
	}{
		{name: "zero", config: BackoffConfig{}},
		{name: "full", config: BackoffConfig{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: time.Minute, Multiplier: 1.5, JitterFraction: 0.1}},
		{name: "negative jitter", config: BackoffConfig{JitterFraction: -0.1}, wantErr: true},
		{name: "jitter over one", config: BackoffConfig{JitterFraction: 1.5}, wantErr: true},
		{name: "shrinking multiplier", config: BackoffConfig{Multiplier: 0.5}, wantErr: true},
		{name: "negative delay", config: BackoffConfig{InitialDelay: -time.Second}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func fastRetry(retries int) BackoffConfig {
	return BackoffConfig{
		MaxRetries:   retries,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	var calls, retries atomic.Int32
	err := Retry(context.Background(), fastRetry(5), func(ctx context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("connection reset")
		}
		return nil
	}, func(attempt int, delay time.Duration, err error) {
		retries.Add(1)
	})

	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if calls.Load() != 3 || retries.Load() != 2 {
		t.Errorf("calls = %d, retries = %d, want 3 and 2", calls.Load(), retries.Load())
	}
}

func TestRetry_GivesUp(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("503")
	var calls atomic.Int32
	err := Retry(context.Background(), fastRetry(2), func(ctx context.Context) error {
		calls.Add(1)
		return sentinel
	}, nil)

	if !errors.Is(err, sentinel) {
		t.Errorf("Retry() error = %v, want wrapping %v", err, sentinel)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestRetry_PermanentStopsImmediately(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("404")
	var calls atomic.Int32
	err := Retry(context.Background(), fastRetry(5), func(ctx context.Context) error {
		calls.Add(1)
		return Permanent(sentinel)
	}, nil)

	if err != sentinel {
		t.Errorf("Retry() error = %v, want %v unwrapped", err, sentinel)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if !IsPermanent(Permanent(sentinel)) || IsPermanent(sentinel) {
		t.Error("IsPermanent misclassifies")
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) != nil")
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cfg := BackoffConfig{MaxRetries: 5, InitialDelay: time.Hour}

	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, cfg, func(ctx context.Context) error {
			return errors.New("timeout")
		}, nil)
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Retry() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Retry() did not return after cancel")
	}
}
