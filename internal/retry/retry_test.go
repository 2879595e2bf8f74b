package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type fakeProviderError struct {
	retryable  bool
	retryAfter time.Duration
}

func (e *fakeProviderError) Error() string { return "provider error" }

func (e *fakeProviderError) Retryable() bool { return e.retryable }

func (e *fakeProviderError) RetryAfter() (time.Duration, bool) {
	if e.retryAfter > 0 {
		return e.retryAfter, true
	}
	return 0, false
}

func TestDelayUnjitteredCenters(t *testing.T) {
	p := Policy{
		BaseDelay:      100 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0, // disable jitter to check the centers exactly
		MaxAttempts:    3,
	}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
	}
	for i, w := range want {
		if got := p.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestDelayClampedToMax(t *testing.T) {
	p := Policy{
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    250 * time.Millisecond,
		Multiplier:  2.0,
		MaxAttempts: 5,
	}
	if got := p.Delay(4); got != 250*time.Millisecond {
		t.Errorf("Delay(4) = %v, want clamp at %v", got, 250*time.Millisecond)
	}
}

func TestDelayJitterWithinBounds(t *testing.T) {
	p := Policy{
		BaseDelay:      100 * time.Millisecond,
		MaxDelay:       time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.2,
	}
	for i := 0; i < 200; i++ {
		d := p.Delay(1)
		if d < 80*time.Millisecond || d > 120*time.Millisecond {
			t.Fatalf("jittered delay %v outside ±20%% of 100ms", d)
		}
	}
}

func TestRetryAfterOverridesComputedDelay(t *testing.T) {
	p := Policy{
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
		Multiplier:  2.0,
		MaxAttempts: 3,
	}
	err := &fakeProviderError{retryable: true, retryAfter: 5 * time.Second}
	if got := p.delayFor(err, 1); got != 5*time.Second {
		t.Errorf("delayFor = %v, want retry-after 5s", got)
	}
}

func TestRetryAfterCappedByMaxDelay(t *testing.T) {
	p := Policy{
		BaseDelay:   time.Second,
		MaxDelay:    2 * time.Second,
		Multiplier:  2.0,
		MaxAttempts: 3,
	}
	err := &fakeProviderError{retryable: true, retryAfter: time.Hour}
	if got := p.delayFor(err, 1); got != 2*time.Second {
		t.Errorf("delayFor = %v, want cap at MaxDelay %v", got, 2*time.Second)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	p := Policy{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1, MaxAttempts: 5}

	calls := 0
	err := p.Do(context.Background(), "test", func() error {
		calls++
		return &fakeProviderError{retryable: false}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("non-retryable error should stop after 1 call, got %d", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	p := Policy{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1, MaxAttempts: 3}

	calls := 0
	err := p.Do(context.Background(), "test", func() error {
		calls++
		return fmt.Errorf("connection reset")
	})
	if err == nil {
		t.Fatal("expected error after exhaustion")
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestDoSucceedsAfterTransientFailure(t *testing.T) {
	p := Policy{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1, MaxAttempts: 3}

	calls := 0
	err := p.Do(context.Background(), "test", func() error {
		calls++
		if calls < 2 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	p := Policy{BaseDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1, MaxAttempts: 3}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := p.Do(ctx, "test", func() error {
		return errors.New("timeout")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"rate limit text", errors.New("429 too many requests"), true},
		{"sqlite busy", errors.New("database is locked"), true},
		{"auth", errors.New("invalid api key"), false},
		{"not found", errors.New("model not found"), false},
		{"explicit retryable", &fakeProviderError{retryable: true}, true},
		{"explicit non-retryable", &fakeProviderError{retryable: false}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Retryable(tc.err); got != tc.want {
				t.Errorf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

// Classification must be stable: the same error yields the same verdict on
// repeated checks.
func TestRetryableIdempotent(t *testing.T) {
	err := errors.New("connection refused")
	first := Retryable(err)
	for i := 0; i < 10; i++ {
		if Retryable(err) != first {
			t.Fatal("classification changed between calls")
		}
	}
}
