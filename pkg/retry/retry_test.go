package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fastConfig - конфигурация с минимальными задержками для тестов
func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		BaseDelay:    time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Factor:       2.0,
		JitterFactor: 0,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return nil
	}, fastConfig(3))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("temporary failure")
		}
		return nil
	}, fastConfig(5))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	sentinel := errors.New("always fails")
	err := Do(context.Background(), func() error {
		calls++
		return sentinel
	}, fastConfig(3))

	if !errors.Is(err, sentinel) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoPermanentErrorStopsImmediately(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return Permanent(errors.New("bad request"))
	}, fastConfig(5))

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (permanent errors must not retry)", calls)
	}
}

func TestDoContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, func() error {
		calls++
		return errors.New("fail")
	}, fastConfig(0)) // бесконечные попытки

	if err == nil {
		t.Fatal("expected error on cancelled context")
	}
	if calls > 1 {
		t.Errorf("calls = %d, want at most 1", calls)
	}
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	result, err := DoWithResult(context.Background(), func() (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("not yet")
		}
		return 42, nil
	}, fastConfig(3))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 42 {
		t.Errorf("result = %d, want 42", result)
	}
}

func TestDoRetryIfPredicate(t *testing.T) {
	sentinel := errors.New("do not retry me")
	cfg := fastConfig(5)
	cfg.RetryIf = func(err error) bool {
		return !errors.Is(err, sentinel)
	}

	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return sentinel
	}, cfg)

	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoOnRetryCallback(t *testing.T) {
	var attempts []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	}

	_ = Do(context.Background(), func() error {
		return errors.New("fail")
	}, cfg)

	// 3 попытки => 2 retry (перед последней retry не вызывается)
	if len(attempts) != 2 {
		t.Fatalf("OnRetry called %d times, want 2", len(attempts))
	}
	if attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("attempts = %v, want [1 2]", attempts)
	}
}

func TestDoRateLimitedHint(t *testing.T) {
	hint := 2 * time.Millisecond
	cfg := fastConfig(2)
	var gotDelay time.Duration
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		gotDelay = delay
	}

	_ = Do(context.Background(), func() error {
		return RateLimited(errors.New("429"), hint)
	}, cfg)

	if gotDelay != hint {
		t.Errorf("delay = %v, want retry-after hint %v", gotDelay, hint)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), true},
		{"permanent", Permanent(errors.New("boom")), false},
		{"temporary", Temporary(errors.New("boom")), true},
		{"rate limited", RateLimited(errors.New("429"), time.Second), true},
		{"wrapped permanent", errorsJoin(Permanent(errors.New("boom"))), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := IsRetryable(tt.err); result != tt.expected {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, result, tt.expected)
			}
		})
	}
}

// errorsJoin оборачивает ошибку для проверки errors.As по цепочке
func errorsJoin(err error) error {
	return &wrappedError{inner: err}
}

type wrappedError struct {
	inner error
}

func (w *wrappedError) Error() string { return "wrapped: " + w.inner.Error() }
func (w *wrappedError) Unwrap() error { return w.inner }

func TestRetryIfNotContext(t *testing.T) {
	if RetryIfNotContext(context.Canceled) {
		t.Error("context.Canceled must not be retried")
	}
	if RetryIfNotContext(context.DeadlineExceeded) {
		t.Error("context.DeadlineExceeded must not be retried")
	}
	if !RetryIfNotContext(errors.New("network error")) {
		t.Error("ordinary errors must be retried")
	}
}

func TestRetryAfterHint(t *testing.T) {
	hint, ok := RetryAfterHint(RateLimited(errors.New("429"), 3*time.Second))
	if !ok || hint != 3*time.Second {
		t.Errorf("RetryAfterHint = (%v, %v), want (3s, true)", hint, ok)
	}

	if _, ok := RetryAfterHint(errors.New("plain")); ok {
		t.Error("plain error must not carry a retry-after hint")
	}
}

func TestCalculateDelayCapsAtMax(t *testing.T) {
	cfg := Config{
		BaseDelay:    time.Second,
		MaxDelay:     4 * time.Second,
		Factor:       2.0,
		JitterFactor: 0,
	}
	cfg.validate()

	// 1s, 2s, 4s, 4s (cap)
	expected := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}
	for attempt, want := range expected {
		if got := cfg.calculateDelay(attempt); got != want {
			t.Errorf("calculateDelay(%d) = %v, want %v", attempt, got, want)
		}
	}
}
