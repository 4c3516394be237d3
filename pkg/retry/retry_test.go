package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(maxRetries int) Config {
	return Config{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}, fastConfig(5))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	attempts := 0
	wantErr := errors.New("always fails")

	err := Do(context.Background(), func() error {
		attempts++
		return wantErr
	}, fastConfig(3))

	if !errors.Is(err, wantErr) {
		t.Fatalf("expected last error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoPermanentStopsImmediately(t *testing.T) {
	attempts := 0
	cfg := fastConfig(5)
	cfg.RetryIf = RetryIfNotPermanent

	err := Do(context.Background(), func() error {
		attempts++
		return Permanent(errors.New("bad config"))
	}, cfg)

	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("permanent error must not be retried, got %d attempts", attempts)
	}
	if !IsPermanent(err) {
		t.Error("error should remain permanent after Do")
	}
}

func TestDoContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, func() error {
		t.Fatal("operation must not run with cancelled context")
		return nil
	}, fastConfig(3))

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	got, err := DoWithResult(context.Background(), func() (int, error) {
		attempts++
		if attempts < 2 {
			return 0, errors.New("transient")
		}
		return 42, nil
	}, fastConfig(3))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
}

func TestDelayGrowsAndCaps(t *testing.T) {
	cfg := Config{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     400 * time.Millisecond,
		Multiplier:   2.0,
		JitterFactor: 0,
	}

	if d := cfg.Delay(0); d != 100*time.Millisecond {
		t.Errorf("attempt 0: got %v, want 100ms", d)
	}
	if d := cfg.Delay(1); d != 200*time.Millisecond {
		t.Errorf("attempt 1: got %v, want 200ms", d)
	}
	// Потолок
	if d := cfg.Delay(10); d != 400*time.Millisecond {
		t.Errorf("attempt 10: got %v, want capped 400ms", d)
	}
}

func TestOnRetryCallback(t *testing.T) {
	var calls int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		calls++
	}

	_ = Do(context.Background(), func() error {
		return errors.New("fail")
	}, cfg)

	// 3 попытки = 2 повторных
	if calls != 2 {
		t.Errorf("expected 2 OnRetry calls, got %d", calls)
	}
}
