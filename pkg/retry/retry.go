// Package retry provides backoff policies and context-aware waiting for
// ducomon: short in-cycle retries for exporters and the fixed recovery wait
// of the polling loop.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/bardlex/ducomon/pkg/errors"
)

// Config is a backoff policy
type Config struct {
	Attempts int           // calls made by Do; 0 when the caller drives attempts
	Initial  time.Duration // delay after the first failure
	Max      time.Duration // upper bound before jitter
	Factor   float64       // growth per attempt
	Jitter   float64       // extra random fraction of the delay, 0 for none
}

// ExportConfig returns the policy for best-effort snapshot exports. Exports
// share the poll interval with the dashboard, so attempts stay few and short.
func ExportConfig() *Config {
	return &Config{
		Attempts: 2,
		Initial:  100 * time.Millisecond,
		Max:      500 * time.Millisecond,
		Factor:   2,
		Jitter:   0.1,
	}
}

// FixedConfig returns a policy that always waits delay. Attempts is zero: the
// caller drives the attempts and stops on its own.
func FixedConfig(delay time.Duration) *Config {
	return &Config{
		Initial: delay,
		Max:     delay,
		Factor:  1,
	}
}

// Delay returns the wait after the given zero-based failed attempt
func (c *Config) Delay(attempt int) time.Duration {
	d := min(float64(c.Initial)*math.Pow(c.Factor, float64(attempt)), float64(c.Max))
	if c.Jitter > 0 {
		d += d * c.Jitter * rand.Float64()
	}
	return time.Duration(d)
}

// Do calls fn up to config.Attempts times (at least once), waiting
// config.Delay between calls. An error errors.IsRetryable rejects ends the
// loop and is returned as is; exhausting the attempts wraps the last error.
func Do(ctx context.Context, config *Config, fn func() error) error {
	if config == nil {
		config = ExportConfig()
	}

	attempts := max(config.Attempts, 1)

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if sleepErr := Sleep(ctx, config.Delay(attempt-1)); sleepErr != nil {
				return sleepErr
			}
		}

		if err = fn(); err == nil || !errors.IsRetryable(err) {
			return err
		}
	}

	return errors.Wrap(err, errors.ErrorTypeInternal, "retry", "operation failed after maximum retry attempts").
		WithContext("attempts", attempts)
}

// Sleep blocks for d or until ctx is done, whichever comes first.
// It returns ctx.Err() when the wait was cut short.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
