package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestWaitConsumesBurstWithoutBlocking(t *testing.T) {
	tb := New(3, 10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		start := time.Now()
		if err := tb.Wait(ctx); err != nil {
			t.Fatalf("Wait: %v", err)
		}
		if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
			t.Fatalf("Wait %d blocked for %v, expected burst tokens to be free", i, elapsed)
		}
	}
}

func TestWaitBlocksOnceBucketIsEmpty(t *testing.T) {
	tb := New(1, 10)
	ctx := context.Background()

	if err := tb.Wait(ctx); err != nil {
		t.Fatalf("first Wait: %v", err)
	}

	start := time.Now()
	if err := tb.Wait(ctx); err != nil {
		t.Fatalf("second Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("second Wait returned after %v, expected it to wait for a refill", elapsed)
	}
}

func TestWaitReturnsOnContextCancel(t *testing.T) {
	tb := New(1, 1)
	ctx := context.Background()
	if err := tb.Wait(ctx); err != nil {
		t.Fatalf("first Wait: %v", err)
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := tb.Wait(cancelCtx); err == nil {
		t.Fatal("expected context.Canceled error")
	}
}
