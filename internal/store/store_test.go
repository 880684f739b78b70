package store

import (
	"context"
	"os"
	"testing"

	"polymarket-mm/internal/domain"
	"polymarket-mm/internal/persist"
)

// These tests exercise the store against a real Postgres instance and are
// skipped unless STORE_TEST_DATABASE_URL is set, following the same
// opt-in-via-env-var pattern the flowindex ingest example uses for its
// bulk-copy path (DB_BULK_COPY).
func testStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("STORE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("STORE_TEST_DATABASE_URL not set, skipping store integration test")
	}
	s, err := Open(context.Background(), dsn, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertAndFetchPool(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	pool := domain.Pool{
		PoolID: "0xtestpool", PoolName: "TEST_USDC",
		BaseAssetDecimals: 6, QuoteAssetDecimals: 9,
		TickSize: 1, LotSize: 1, MinSize: 1,
	}
	if err := s.UpsertPool(ctx, pool); err != nil {
		t.Fatalf("UpsertPool: %v", err)
	}

	pools, err := s.Pools(ctx)
	if err != nil {
		t.Fatalf("Pools: %v", err)
	}
	var found bool
	for _, p := range pools {
		if p.PoolID == pool.PoolID {
			found = true
			if p.PoolName != pool.PoolName {
				t.Errorf("pool name = %q, want %q", p.PoolName, pool.PoolName)
			}
		}
	}
	if !found {
		t.Fatal("upserted pool not found in Pools()")
	}
}

func TestCommitCheckpointIsIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	update := domain.OrderUpdate{
		EventMeta: domain.EventMeta{EventDigest: "tx-idem0", Digest: "tx-idem", Checkpoint: 1},
		Status:    domain.StatusPlaced, PoolID: "0xtestpool", Price: 100, Quantity: 1,
	}

	apply := func() error {
		return s.WithTx(ctx, func(txn persist.Tx) error {
			if err := txn.InsertOrderUpdates(ctx, []domain.OrderUpdate{update}); err != nil {
				return err
			}
			return txn.UpsertWatermark(ctx, domain.Watermark{Pipeline: domain.OrderUpdatePipeline, CheckpointHiInclusive: 1})
		})
	}

	if err := apply(); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if err := apply(); err != nil {
		t.Fatalf("second (duplicate) apply should also succeed: %v", err)
	}

	rows, err := s.OrderUpdatesInRange(ctx, []string{"0xtestpool"}, 1, 1)
	if err != nil {
		t.Fatalf("OrderUpdatesInRange: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly one row after duplicate commits, got %d", len(rows))
	}
}
