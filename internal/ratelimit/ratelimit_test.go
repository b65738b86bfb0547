package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestNew_rejects_invalid_values(t *testing.T) {
	if _, err := New(0, 5); err == nil {
		t.Error("expected error for zero rate, got nil")
	}
	if _, err := New(-1, 5); err == nil {
		t.Error("expected error for negative rate, got nil")
	}
	if _, err := New(10, 0); err == nil {
		t.Error("expected error for zero burst, got nil")
	}
}

func TestWait_burst_is_free_then_throttled(t *testing.T) {
	const tokensPerSecond = 20.0
	const burst = 5

	l, err := New(tokensPerSecond, burst)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < burst; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("Wait %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Errorf("burst of %d took %v, want near-zero wait", burst, elapsed)
	}

	// The (burst+1)-th acquisition should wait roughly one refill interval.
	start = time.Now()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("Wait after burst: %v", err)
	}
	elapsed := time.Since(start)
	want := time.Second / time.Duration(tokensPerSecond)
	if elapsed < want/2 {
		t.Errorf("post-burst wait was %v, want at least ~%v", elapsed, want)
	}
}

func TestWait_respects_context_cancellation(t *testing.T) {
	l, err := New(0.1, 1) // one token per 10s after the burst
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.Allow() // drain the burst

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx); err == nil {
		t.Error("expected context error while waiting for refill, got nil")
	}
}
