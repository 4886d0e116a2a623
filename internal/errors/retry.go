package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig defines retry behavior for image acquisition
type RetryConfig struct {
	MaxRetries      int           `json:"max_retries" yaml:"max_retries"`
	InitialInterval time.Duration `json:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `json:"max_interval" yaml:"max_interval"`
	Multiplier      float64       `json:"multiplier" yaml:"multiplier"`
	Jitter          bool          `json:"jitter" yaml:"jitter"`
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:      3,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		Jitter:          true,
	}
}

// RetryableFunc represents a function that can be retried
type RetryableFunc func() error

// RetryWithContext executes fn until it succeeds, returns a non-retryable error,
// runs out of attempts or ctx is done.
func RetryWithContext(ctx context.Context, config *RetryConfig, operation string, fn RetryableFunc) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	interval := config.InitialInterval

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			waitTime := interval
			if config.Jitter {
				waitTime = addJitter(interval)
			}

			select {
			case <-ctx.Done():
				return NewErrorBuilder().
					Kind(KindAcquire).
					Operation(operation).
					Message("operation cancelled during retry wait").
					Cause(ctx.Err()).
					Build()
			case <-time.After(waitTime):
			}

			interval = ExponentialBackoff(attempt, config.InitialInterval, config.Multiplier, config.MaxInterval)
		}

		if err := ctx.Err(); err != nil {
			return NewErrorBuilder().
				Kind(KindAcquire).
				Operation(operation).
				Message("operation cancelled").
				Cause(err).
				Build()
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryableError(err) {
			return err
		}
	}

	return NewErrorBuilder().
		Kind(KindAcquire).
		Operation(operation).
		Message(fmt.Sprintf("operation failed after %d retries", config.MaxRetries)).
		Cause(lastErr).
		Suggestion("Check the underlying issue and try again later").
		Build()
}

func isRetryableError(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Retryable
	}
	return false
}

func addJitter(interval time.Duration) time.Duration {
	if interval <= 0 {
		return interval
	}
	// +/- 10%
	jitter := time.Duration(rand.Int63n(int64(interval)/5+1)) - interval/10
	return interval + jitter
}

// ExponentialBackoff returns the wait before the next attempt
func ExponentialBackoff(attempt int, initialInterval time.Duration, multiplier float64, maxInterval time.Duration) time.Duration {
	interval := float64(initialInterval)
	for i := 0; i < attempt; i++ {
		interval *= multiplier
		if maxInterval > 0 && time.Duration(interval) > maxInterval {
			return maxInterval
		}
	}
	return time.Duration(interval)
}
