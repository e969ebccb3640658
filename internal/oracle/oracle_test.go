package oracle

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLimitedRetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	inner := OracleFunc(func(ctx context.Context, prompt string) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient network blip")
		}
		return "ok", nil
	})

	l := NewLimited(inner, Config{
		RPM:            6000,
		MaxInFlight:    5,
		MaxAttempts:    5,
		PerCallTimeout: time.Second,
		BaseBackoff:    time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	})

	out, err := l.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "ok" {
		t.Fatalf("got %q, want %q", out, "ok")
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestLimitedGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	inner := OracleFunc(func(ctx context.Context, prompt string) (string, error) {
		calls++
		return "", errors.New("permanent-looking transient failure")
	})

	l := NewLimited(inner, Config{
		RPM:            6000,
		MaxInFlight:    5,
		MaxAttempts:    3,
		PerCallTimeout: time.Second,
		BaseBackoff:    time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	})

	_, err := l.Complete(context.Background(), "prompt")
	if !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("got %v, want ErrOracleUnavailable", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestLimitedDoesNotRetryPermanentErrors(t *testing.T) {
	calls := 0
	inner := OracleFunc(func(ctx context.Context, prompt string) (string, error) {
		calls++
		return "", Permanent(errors.New("bad request"))
	})

	l := NewLimited(inner, Config{
		RPM:            6000,
		MaxInFlight:    5,
		MaxAttempts:    5,
		PerCallTimeout: time.Second,
		BaseBackoff:    time.Millisecond,
		MaxBackoff:     time.Millisecond,
	})

	_, err := l.Complete(context.Background(), "prompt")
	if err == nil {
		t.Fatalf("expected an error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on permanent failure)", calls)
	}
}

func TestLimitedRespectsCancellation(t *testing.T) {
	inner := OracleFunc(func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("always fails")
	})

	l := NewLimited(inner, Config{
		RPM:            6000,
		MaxInFlight:    5,
		MaxAttempts:    5,
		PerCallTimeout: time.Second,
		BaseBackoff:    50 * time.Millisecond,
		MaxBackoff:     time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Complete(ctx, "prompt")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}
