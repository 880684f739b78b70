package ingest

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"polymarket-mm/internal/bookengine"
	"polymarket-mm/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type noopObserver struct{}

func (noopObserver) SetPoolInvalid(string, bool) {}

type noopPublisher struct{}

func (noopPublisher) PublishBook(ctx context.Context, pool domain.Pool, book *bookengine.Book) {}
func (noopPublisher) PublishTrade(ctx context.Context, pool domain.Pool, fill domain.OrderFill) {}

func newTestCommitter(initial map[string]int64) (*Committer, *bookengine.Engine) {
	engine := bookengine.New(noopPublisher{}, noopObserver{}, testLogger())
	return NewCommitter(engine, initial, testLogger()), engine
}

func TestApplyBatchSkipsCheckpointsAtOrBeforeLastApplied(t *testing.T) {
	committer, engine := newTestCommitter(map[string]int64{"pool-1": 100})
	engine.EnsurePool(domain.Pool{PoolID: "pool-1"}, 100)

	committer.ApplyBatch(context.Background(), []PoolBatch{
		{Checkpoint: 100, PoolID: "pool-1", Updates: []domain.OrderUpdate{
			{Status: domain.StatusPlaced, PoolID: "pool-1", Price: 1, Quantity: 1, IsBid: true},
		}},
	})

	if committer.LastApplied("pool-1") != 100 {
		t.Fatalf("LastApplied = %d, want 100 unchanged", committer.LastApplied("pool-1"))
	}
	book := engine.Book("pool-1")
	if len(book.Bids) != 0 {
		t.Fatalf("expected the at-or-before-initial checkpoint to be dropped, got bids %v", book.Bids)
	}
}

func TestApplyBatchAdvancesLastAppliedPerPoolIndependently(t *testing.T) {
	committer, engine := newTestCommitter(nil)
	engine.EnsurePool(domain.Pool{PoolID: "pool-1"}, 0)
	engine.EnsurePool(domain.Pool{PoolID: "pool-2"}, 0)

	committer.ApplyBatch(context.Background(), []PoolBatch{
		{Checkpoint: 1, PoolID: "pool-1", Updates: []domain.OrderUpdate{
			{Status: domain.StatusPlaced, PoolID: "pool-1", Price: 1, Quantity: 1, IsBid: true},
		}},
		{Checkpoint: 5, PoolID: "pool-2", Updates: []domain.OrderUpdate{
			{Status: domain.StatusPlaced, PoolID: "pool-2", Price: 1, Quantity: 1, IsBid: true},
		}},
	})

	if committer.LastApplied("pool-1") != 1 {
		t.Fatalf("pool-1 LastApplied = %d, want 1", committer.LastApplied("pool-1"))
	}
	if committer.LastApplied("pool-2") != 5 {
		t.Fatalf("pool-2 LastApplied = %d, want 5", committer.LastApplied("pool-2"))
	}
}

func TestApplyBatchIsIdempotentOnRetriedBatch(t *testing.T) {
	committer, engine := newTestCommitter(nil)
	engine.EnsurePool(domain.Pool{PoolID: "pool-1"}, 0)

	batch := []PoolBatch{
		{Checkpoint: 1, PoolID: "pool-1", Updates: []domain.OrderUpdate{
			{Status: domain.StatusPlaced, PoolID: "pool-1", Price: 100, Quantity: 10, IsBid: true},
		}},
	}

	committer.ApplyBatch(context.Background(), batch)
	committer.ApplyBatch(context.Background(), batch)

	book := engine.Book("pool-1")
	if got := book.Bids[100]; got != 10 {
		t.Fatalf("bid size at 100 = %d, want 10 (retried batch must not double-apply)", got)
	}
}
