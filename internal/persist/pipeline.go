// Package persist writes decoded events to the relational store and tracks
// per-pipeline watermarks, mirroring the upsert-then-watermark discipline
// every handler in the original indexer follows.
package persist

import (
	"context"
	"fmt"
	"log/slog"

	"polymarket-mm/internal/domain"
)

// Store is the subset of internal/store.Store a Pipeline needs: batched,
// idempotent inserts per event kind and a watermark upsert, all within a
// single transaction so a crash between the two never desynchronizes them.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is a single persist transaction. Every Insert* call is an
// idempotent upsert keyed on the event fingerprint (tx_digest,
// event_index) — `INSERT ... ON CONFLICT (fingerprint) DO NOTHING` —
// so replaying the same checkpoint twice is always safe.
type Tx interface {
	InsertOrderUpdates(ctx context.Context, rows []domain.OrderUpdate) error
	InsertOrderFills(ctx context.Context, rows []domain.OrderFill) error
	InsertBalances(ctx context.Context, rows []domain.BalanceEvent) error
	InsertFlashLoans(ctx context.Context, rows []domain.FlashLoanEvent) error
	InsertStakes(ctx context.Context, rows []domain.StakeEvent) error
	InsertVotes(ctx context.Context, rows []domain.VoteEvent) error
	InsertProposals(ctx context.Context, rows []domain.ProposalEvent) error
	InsertRebates(ctx context.Context, rows []domain.RebateEvent) error
	InsertTradeParams(ctx context.Context, rows []domain.TradeParamsUpdateEvent) error
	InsertPoolPrices(ctx context.Context, rows []domain.PoolPriceEvent) error
	UpsertWatermark(ctx context.Context, w domain.Watermark) error
	Watermark(ctx context.Context, pipeline string) (domain.Watermark, bool, error)
}

// Pipeline owns one logical commit stream — a set of tables plus a single
// watermark row — and applies DecodedBatch values to it transactionally.
type Pipeline struct {
	name   string
	store  Store
	logger *slog.Logger
}

// New creates a persist pipeline named for its watermark row
// (domain.OrderUpdatePipeline or domain.OrderFillPipeline, typically).
func New(name string, store Store, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		name:   name,
		store:  store,
		logger: logger.With("component", "persist.pipeline", "pipeline", name),
	}
}

// Watermark returns this pipeline's last durably-committed checkpoint.
func (p *Pipeline) Watermark(ctx context.Context) (domain.Watermark, bool, error) {
	var w domain.Watermark
	var ok bool
	err := p.store.WithTx(ctx, func(tx Tx) error {
		var err error
		w, ok, err = tx.Watermark(ctx, p.name)
		return err
	})
	return w, ok, err
}

// CommitCheckpoint writes every row in batch and advances this pipeline's
// watermark to checkpoint, all inside one transaction: either everything in
// the checkpoint lands, or none of it does, and the watermark never
// advances past durably-written rows.
func (p *Pipeline) CommitCheckpoint(ctx context.Context, checkpoint int64, checkpointTimestampMs int64, batch PersistBatch) error {
	err := p.store.WithTx(ctx, func(tx Tx) error {
		if err := tx.InsertOrderUpdates(ctx, batch.OrderUpdates); err != nil {
			return fmt.Errorf("insert order updates: %w", err)
		}
		if err := tx.InsertOrderFills(ctx, batch.OrderFills); err != nil {
			return fmt.Errorf("insert order fills: %w", err)
		}
		if err := tx.InsertBalances(ctx, batch.Balances); err != nil {
			return fmt.Errorf("insert balances: %w", err)
		}
		if err := tx.InsertFlashLoans(ctx, batch.FlashLoans); err != nil {
			return fmt.Errorf("insert flash loans: %w", err)
		}
		if err := tx.InsertStakes(ctx, batch.Stakes); err != nil {
			return fmt.Errorf("insert stakes: %w", err)
		}
		if err := tx.InsertVotes(ctx, batch.Votes); err != nil {
			return fmt.Errorf("insert votes: %w", err)
		}
		if err := tx.InsertProposals(ctx, batch.Proposals); err != nil {
			return fmt.Errorf("insert proposals: %w", err)
		}
		if err := tx.InsertRebates(ctx, batch.Rebates); err != nil {
			return fmt.Errorf("insert rebates: %w", err)
		}
		if err := tx.InsertTradeParams(ctx, batch.TradeParams); err != nil {
			return fmt.Errorf("insert trade params: %w", err)
		}
		if err := tx.InsertPoolPrices(ctx, batch.PoolPrices); err != nil {
			return fmt.Errorf("insert pool prices: %w", err)
		}
		return tx.UpsertWatermark(ctx, domain.Watermark{
			Pipeline:              p.name,
			CheckpointHiInclusive: checkpoint,
			TimestampMsHi:         checkpointTimestampMs,
		})
	})
	if err != nil {
		p.logger.Error("commit checkpoint failed", "checkpoint", checkpoint, "error", err)
		return err
	}
	return nil
}

// PersistBatch is the union of everything a single checkpoint's decode may
// produce, the input to CommitCheckpoint.
type PersistBatch struct {
	OrderUpdates []domain.OrderUpdate
	OrderFills   []domain.OrderFill
	Balances     []domain.BalanceEvent
	FlashLoans   []domain.FlashLoanEvent
	Stakes       []domain.StakeEvent
	Votes        []domain.VoteEvent
	Proposals    []domain.ProposalEvent
	Rebates      []domain.RebateEvent
	TradeParams  []domain.TradeParamsUpdateEvent
	PoolPrices   []domain.PoolPriceEvent
}
