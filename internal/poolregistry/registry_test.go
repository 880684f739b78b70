package poolregistry

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

type fakeSource struct {
	mu    sync.Mutex
	pools []domain.Pool
	err   error
}

func (f *fakeSource) Pools(ctx context.Context) ([]domain.Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.pools, nil
}

type fakeStore struct {
	mu      sync.Mutex
	upserts []domain.Pool
}

func (f *fakeStore) UpsertPool(ctx context.Context, p domain.Pool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, p)
	return nil
}

func TestRunPublishesSnapshotAndPersists(t *testing.T) {
	source := &fakeSource{pools: []domain.Pool{{PoolID: "0x1", PoolName: "A"}}}
	store := &fakeStore{}
	reg := New(source, store, time.Hour, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reg.Run(ctx)

	select {
	case snap := <-reg.Results():
		if len(snap.Pools) != 1 || snap.Pools[0].PoolID != "0x1" {
			t.Fatalf("unexpected snapshot: %+v", snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial snapshot")
	}

	if p, ok := reg.Lookup("0x1"); !ok || p.PoolName != "A" {
		t.Fatalf("Lookup failed: %+v %v", p, ok)
	}
}

func TestRefreshLeavesStateOnError(t *testing.T) {
	source := &fakeSource{err: errors.New("rpc down")}
	store := &fakeStore{}
	reg := New(source, store, time.Hour, testLogger())
	reg.byID["0x1"] = domain.Pool{PoolID: "0x1"}

	reg.refresh(context.Background())

	if _, ok := reg.Lookup("0x1"); !ok {
		t.Fatal("expected prior pool state to survive a failed refresh")
	}
	select {
	case <-reg.Results():
		t.Fatal("expected no snapshot published after a failed refresh")
	default:
	}
}
