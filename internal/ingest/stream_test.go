package ingest

import (
	"context"
	"testing"
	"time"

	"polymarket-mm/internal/decode"
	"polymarket-mm/internal/domain"
	"polymarket-mm/internal/persist"
)

type fakePersistTx struct {
	orderUpdates []domain.OrderUpdate
	orderFills   []domain.OrderFill
	watermark    domain.Watermark
}

func (f *fakePersistTx) InsertOrderUpdates(ctx context.Context, rows []domain.OrderUpdate) error {
	f.orderUpdates = append(f.orderUpdates, rows...)
	return nil
}
func (f *fakePersistTx) InsertOrderFills(ctx context.Context, rows []domain.OrderFill) error {
	f.orderFills = append(f.orderFills, rows...)
	return nil
}
func (f *fakePersistTx) InsertBalances(ctx context.Context, rows []domain.BalanceEvent) error { return nil }
func (f *fakePersistTx) InsertFlashLoans(ctx context.Context, rows []domain.FlashLoanEvent) error {
	return nil
}
func (f *fakePersistTx) InsertStakes(ctx context.Context, rows []domain.StakeEvent) error { return nil }
func (f *fakePersistTx) InsertVotes(ctx context.Context, rows []domain.VoteEvent) error   { return nil }
func (f *fakePersistTx) InsertProposals(ctx context.Context, rows []domain.ProposalEvent) error {
	return nil
}
func (f *fakePersistTx) InsertRebates(ctx context.Context, rows []domain.RebateEvent) error { return nil }
func (f *fakePersistTx) InsertTradeParams(ctx context.Context, rows []domain.TradeParamsUpdateEvent) error {
	return nil
}
func (f *fakePersistTx) InsertPoolPrices(ctx context.Context, rows []domain.PoolPriceEvent) error {
	return nil
}
func (f *fakePersistTx) UpsertWatermark(ctx context.Context, w domain.Watermark) error {
	f.watermark = w
	return nil
}
func (f *fakePersistTx) Watermark(ctx context.Context, pipeline string) (domain.Watermark, bool, error) {
	if f.watermark.Pipeline == "" {
		return domain.Watermark{}, false, nil
	}
	return f.watermark, true, nil
}

type fakePersistStore struct {
	tx *fakePersistTx
}

func (s *fakePersistStore) WithTx(ctx context.Context, fn func(tx persist.Tx) error) error {
	return fn(s.tx)
}

type fakeCheckpointStream struct {
	checkpoints chan *domain.Checkpoint
	errs        chan error
}

func newFakeCheckpointStream() *fakeCheckpointStream {
	return &fakeCheckpointStream{
		checkpoints: make(chan *domain.Checkpoint, 8),
		errs:        make(chan error, 1),
	}
}

func (f *fakeCheckpointStream) Checkpoints() <-chan *domain.Checkpoint { return f.checkpoints }
func (f *fakeCheckpointStream) Errors() <-chan error                  { return f.errs }

func TestStreamPersistsAndAppliesCheckpointInOrder(t *testing.T) {
	codec := &decode.BCSCodec{}
	decoder := decode.New(decode.EnvMainnet, codec, testLogger())

	committer, engine := newTestCommitter(nil)
	engine.EnsurePool(domain.Pool{PoolID: "pool-1"}, 0)

	updateTx := &fakePersistTx{}
	fillTx := &fakePersistTx{}
	orderUpdates := persist.New(domain.OrderUpdatePipeline, &fakePersistStore{tx: updateTx}, testLogger())
	orderFills := persist.New(domain.OrderFillPipeline, &fakePersistStore{tx: fillTx}, testLogger())
	watermarks := persist.NewWatermarkCache()

	stream := NewStream(decoder, committer, orderUpdates, orderFills, watermarks, testLogger())

	src := newFakeCheckpointStream()
	src.checkpoints <- &domain.Checkpoint{Sequence: 1, TimestampMs: 1000}
	close(src.checkpoints)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := stream.Run(ctx, src); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if updateTx.watermark.Pipeline != domain.OrderUpdatePipeline || updateTx.watermark.CheckpointHiInclusive != 1 {
		t.Fatalf("unexpected order update watermark: %+v", updateTx.watermark)
	}
	if fillTx.watermark.Pipeline != domain.OrderFillPipeline || fillTx.watermark.CheckpointHiInclusive != 1 {
		t.Fatalf("unexpected order fill watermark: %+v", fillTx.watermark)
	}
	min, ok := watermarks.Min()
	if !ok || min != 1 {
		t.Fatalf("watermark cache min = %d, %v, want 1, true", min, ok)
	}
}

func TestStreamStopsOnContextCancel(t *testing.T) {
	codec := &decode.BCSCodec{}
	decoder := decode.New(decode.EnvMainnet, codec, testLogger())
	committer, _ := newTestCommitter(nil)
	tx := &fakePersistTx{}
	orderUpdates := persist.New(domain.OrderUpdatePipeline, &fakePersistStore{tx: tx}, testLogger())
	orderFills := persist.New(domain.OrderFillPipeline, &fakePersistStore{tx: tx}, testLogger())
	stream := NewStream(decoder, committer, orderUpdates, orderFills, persist.NewWatermarkCache(), testLogger())

	src := newFakeCheckpointStream()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := stream.Run(ctx, src); err == nil {
		t.Fatal("expected context.Canceled error")
	}
}
