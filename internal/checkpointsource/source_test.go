package checkpointsource

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"polymarket-mm/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeFetcher serves checkpoints from an in-memory map, optionally failing
// or reporting not-found a fixed number of times before succeeding — used
// to exercise the backoff loop without a real HTTP endpoint.
type fakeFetcher struct {
	mu           sync.Mutex
	checkpoints  map[uint64]*domain.Checkpoint
	failUntil    map[uint64]int
	notFoundOnce map[uint64]bool
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		checkpoints:  make(map[uint64]*domain.Checkpoint),
		failUntil:    make(map[uint64]int),
		notFoundOnce: make(map[uint64]bool),
	}
}

func (f *fakeFetcher) FetchCheckpoint(ctx context.Context, sequence uint64) (*domain.Checkpoint, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if n := f.failUntil[sequence]; n > 0 {
		f.failUntil[sequence] = n - 1
		return nil, false, errors.New("transient fetch error")
	}
	if f.notFoundOnce[sequence] {
		f.notFoundOnce[sequence] = false
		return nil, false, nil
	}
	cp, ok := f.checkpoints[sequence]
	if !ok {
		return nil, false, nil
	}
	return cp, true, nil
}

func TestRunDeliversCheckpointsInOrder(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.checkpoints[1] = &domain.Checkpoint{Sequence: 1}
	fetcher.checkpoints[2] = &domain.Checkpoint{Sequence: 2}

	src := New(fetcher, 1, 0, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go src.Run(ctx)

	var got []uint64
	for i := 0; i < 2; i++ {
		select {
		case cp := <-src.Checkpoints():
			got = append(got, cp.Sequence)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for checkpoint")
		}
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("got %v, want [1 2]", got)
	}
}

func TestRunRetriesAfterFetchError(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.failUntil[1] = 2
	fetcher.checkpoints[1] = &domain.Checkpoint{Sequence: 1}

	src := New(fetcher, 1, 0, testLogger())
	// shrink backoff bounds implicitly by giving the test a generous deadline;
	// the source starts at backoff=1s which the loop doubles only after a
	// second failure, so two failures complete within the test timeout.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go src.Run(ctx)

	select {
	case cp := <-src.Checkpoints():
		if cp.Sequence != 1 {
			t.Fatalf("sequence = %d, want 1", cp.Sequence)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for checkpoint after retries")
	}

	select {
	case err := <-src.Errors():
		if err == nil {
			t.Fatal("expected non-nil error on Errors channel")
		}
	default:
		t.Fatal("expected a dispatched error from the failed fetch attempts")
	}
}

func TestRunBacksOffOnNotFoundWithoutError(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.notFoundOnce[1] = true
	fetcher.checkpoints[1] = &domain.Checkpoint{Sequence: 1}

	src := New(fetcher, 1, 0, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go src.Run(ctx)

	select {
	case cp := <-src.Checkpoints():
		if cp.Sequence != 1 {
			t.Fatalf("sequence = %d, want 1", cp.Sequence)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for checkpoint after not-found backoff")
	}

	select {
	case err := <-src.Errors():
		t.Fatalf("unexpected error dispatched for a not-found result: %v", err)
	default:
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	fetcher := newFakeFetcher()
	src := New(fetcher, 1, 0, testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
