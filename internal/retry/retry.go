// Package retry wraps external-service calls in a data-driven
// exponential-backoff policy. Only failures marked transient are retried;
// everything else fails the call on first sight.
package retry

import (
	"context"
	"fmt"
	"time"

	"budgetflow/internal/core"
	"budgetflow/internal/log"
)

// Policy describes one backoff schedule.
type Policy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64
}

// Default matches the worker's configuration defaults.
func Default() Policy {
	return Policy{MaxAttempts: 5, InitialDelay: 500 * time.Millisecond, BackoffFactor: 2.0}
}

// Do runs fn under the policy. Transient failures are retried with
// exponential backoff until the attempt budget is exhausted, at which
// point the last error is returned (still marked transient, so callers
// can record it as a terminal per-document error). Context cancellation
// stops the loop between attempts.
func (p Policy) Do(ctx context.Context, logger *log.Logger, label string, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !core.IsTransient(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		if logger != nil {
			logger.Warn("retrying after transient failure",
				"op", label,
				log.FieldAttempt, attempt,
				"max_attempts", attempts,
				"delay", delay,
				log.FieldError, lastErr)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", label, ctx.Err())
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * p.BackoffFactor)
	}

	return fmt.Errorf("%s: attempts exhausted: %w", label, lastErr)
}
