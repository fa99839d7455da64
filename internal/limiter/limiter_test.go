package limiter

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTokenBucket_Rate(t *testing.T) {
	tb := NewTokenBucket(100, 10)

	start := time.Now()
	// 10 come from the burst, the other 100 take about a second.
	for range 11 {
		if err := tb.Wait(context.Background(), 10); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start).Seconds(); elapsed < 0.9 || elapsed > 1.2 {
		t.Errorf("110 tokens at 100/s took %.2fs, want ~1s", elapsed)
	}
}

func TestTokenBucket_Refill(t *testing.T) {
	clock := time.Unix(1700000000, 0)
	tb := NewTokenBucket(10, 5)
	tb.now = func() time.Time { return clock }
	tb.stamp = clock.UnixNano()

	tests := []struct {
		advance time.Duration
		want    int64
	}{
		{0, 5},
		{250 * time.Millisecond, 5}, // capped at burst
		{0, 5},
	}
	for i, tt := range tests {
		clock = clock.Add(tt.advance)
		tb.refill()
		if tb.tokens != tt.want {
			t.Errorf("step %d: tokens = %d, want %d", i, tb.tokens, tt.want)
		}
	}

	tb.tokens = 0
	clock = clock.Add(150 * time.Millisecond)
	tb.refill()
	if tb.tokens != 1 {
		t.Fatalf("after 150ms: tokens = %d, want 1", tb.tokens)
	}
	clock = clock.Add(50 * time.Millisecond)
	tb.refill()
	if tb.tokens != 2 {
		t.Errorf("partial token lost: tokens = %d, want 2", tb.tokens)
	}
}

func TestTokenBucket_Cancel(t *testing.T) {
	tb := NewTokenBucket(1, 1)
	tb.Wait(context.Background(), 1) // drain the burst

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := tb.Wait(ctx, 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("Wait ignored cancellation")
	}
}
