package errors

import (
	"context"
	stderrors "errors"
	"testing"
	"time"
)

func testRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:      3,
		InitialInterval: 1 * time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 3 {
		t.Errorf("Expected MaxRetries 3, got %d", config.MaxRetries)
	}
	if config.InitialInterval != 1*time.Second {
		t.Errorf("Expected InitialInterval 1s, got %v", config.InitialInterval)
	}
	if config.Multiplier != 2.0 {
		t.Errorf("Expected Multiplier 2.0, got %f", config.Multiplier)
	}
}

func TestRetryWithContext_Success(t *testing.T) {
	attempts := 0
	err := RetryWithContext(context.Background(), testRetryConfig(), "test", func() error {
		attempts++
		if attempts < 3 {
			return NewAcquireError("test", "transient", nil)
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetryWithContext_NonRetryable(t *testing.T) {
	attempts := 0
	want := NewParseError("test", "bad input", nil)
	err := RetryWithContext(context.Background(), testRetryConfig(), "test", func() error {
		attempts++
		return want
	})

	if err != error(want) {
		t.Fatalf("Expected the original error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetryWithContext_Exhausted(t *testing.T) {
	attempts := 0
	err := RetryWithContext(context.Background(), testRetryConfig(), "test", func() error {
		attempts++
		return NewAcquireError("test", "still failing", nil)
	})

	if !stderrors.Is(err, ErrAcquire) {
		t.Fatalf("Expected acquire error, got %v", err)
	}
	if attempts != 4 {
		t.Errorf("Expected 4 attempts, got %d", attempts)
	}
}

func TestRetryWithContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := RetryWithContext(ctx, testRetryConfig(), "test", func() error {
		attempts++
		return nil
	})

	if !stderrors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled in chain, got %v", err)
	}
	if attempts != 0 {
		t.Errorf("Expected no attempts, got %d", attempts)
	}
}

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{5, 1 * time.Second},
	}

	for _, tt := range tests {
		got := ExponentialBackoff(tt.attempt, 100*time.Millisecond, 2.0, 1*time.Second)
		if got != tt.want {
			t.Errorf("ExponentialBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
