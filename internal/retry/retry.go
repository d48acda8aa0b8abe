// Package retry implements exponential backoff for provider calls.
// Only errors marked transient are retried; everything else surfaces
// immediately. Context cancellation is treated the same way as an
// exhausted retry ceiling.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Policy holds backoff parameters.
type Policy struct {
	MaxAttempts  int           // total attempts, including the first
	InitialDelay time.Duration // delay before the second attempt
	Multiplier   float64       // exponential growth factor
	MaxDelay     time.Duration // growth cap
	Jitter       bool          // ±25% randomization to avoid thundering herds
}

// DefaultPolicy matches the embedding provider contract: three attempts,
// backoff starting at four seconds with capped exponential growth.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 4 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
		Jitter:       true,
	}
}

// Retryer runs operations under a Policy.
type Retryer struct {
	policy Policy
	logger *zap.Logger
}

// New creates a retryer, normalizing degenerate policy values.
func New(policy Policy, logger *zap.Logger) *Retryer {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = 4 * time.Second
	}
	if policy.Multiplier < 1.0 {
		policy.Multiplier = 2.0
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retryer{policy: policy, logger: logger}
}

// Do runs fn up to MaxAttempts times. op names the operation for logs.
func (r *Retryer) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := r.delay(attempt)
			r.logger.Debug("retrying",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: canceled after %d attempts: %w", op, attempt-1, ctx.Err())
			case <-time.After(delay):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
	}

	r.logger.Warn("retries exhausted",
		zap.String("op", op),
		zap.Int("attempts", r.policy.MaxAttempts),
		zap.Error(lastErr),
	)
	return fmt.Errorf("%s: %d attempts exhausted: %w", op, r.policy.MaxAttempts, lastErr)
}

// delay computes the backoff before the given attempt (attempt >= 2).
func (r *Retryer) delay(attempt int) time.Duration {
	d := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-2))
	if d > float64(r.policy.MaxDelay) {
		d = float64(r.policy.MaxDelay)
	}
	if r.policy.Jitter {
		d += (rand.Float64()*2 - 1) * d * 0.25
	}
	if d < float64(r.policy.InitialDelay) {
		d = float64(r.policy.InitialDelay)
	}
	return time.Duration(d)
}

// transientError marks an error as worth retrying.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so the retryer will retry it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was wrapped by Transient.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
