package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"polymarket-mm/internal/domain"
)

// InsertOrderUpdates upserts every row, keyed on event_digest — the
// (tx_digest, event_index) fingerprint — so replaying an already-committed
// checkpoint is a no-op. Mirrors the flowindex ingest example's
// `ON CONFLICT (...) DO NOTHING` batch-insert shape.
func (t *tx) InsertOrderUpdates(ctx context.Context, rows []domain.OrderUpdate) error {
	for _, u := range rows {
		_, err := t.Exec(ctx, `
			INSERT INTO order_updates (
				event_digest, event_index, digest, sender, checkpoint, checkpoint_timestamp_ms, package,
				status, pool_id, order_id, client_order_id, price, is_bid,
				original_quantity, quantity, filled_quantity, onchain_timestamp,
				trader, balance_manager_id
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
			ON CONFLICT (event_digest) DO NOTHING`,
			u.EventDigest, u.EventIndex, u.Digest, u.Sender, u.Checkpoint, u.CheckpointTimestampMs, u.Package,
			string(u.Status), u.PoolID, u.OrderID, u.ClientOrderID, u.Price, u.IsBid,
			u.OriginalQuantity, u.Quantity, u.FilledQuantity, u.OnchainTimestamp,
			u.Trader, u.BalanceManagerID)
		if err != nil {
			return fmt.Errorf("insert order update %s: %w", u.EventDigest, err)
		}
	}
	return nil
}

func (t *tx) InsertOrderFills(ctx context.Context, rows []domain.OrderFill) error {
	for _, f := range rows {
		_, err := t.Exec(ctx, `
			INSERT INTO order_fills (
				event_digest, event_index, digest, sender, checkpoint, checkpoint_timestamp_ms, package,
				pool_id, maker_order_id, taker_order_id, maker_client_order_id, taker_client_order_id,
				price, taker_fee, taker_fee_is_deep, maker_fee, maker_fee_is_deep, taker_is_bid,
				base_quantity, quote_quantity, maker_balance_manager_id, taker_balance_manager_id,
				onchain_timestamp
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
			ON CONFLICT (event_digest) DO NOTHING`,
			f.EventDigest, f.EventIndex, f.Digest, f.Sender, f.Checkpoint, f.CheckpointTimestampMs, f.Package,
			f.PoolID, f.MakerOrderID, f.TakerOrderID, f.MakerClientOrderID, f.TakerClientOrderID,
			f.Price, f.TakerFee, f.TakerFeeIsDeep, f.MakerFee, f.MakerFeeIsDeep, f.TakerIsBid,
			f.BaseQuantity, f.QuoteQuantity, f.MakerBalanceManagerID, f.TakerBalanceManagerID,
			f.OnchainTimestamp)
		if err != nil {
			return fmt.Errorf("insert order fill %s: %w", f.EventDigest, err)
		}
	}
	return nil
}

func (t *tx) InsertBalances(ctx context.Context, rows []domain.BalanceEvent) error {
	for _, b := range rows {
		_, err := t.Exec(ctx, `
			INSERT INTO balances (event_digest, digest, sender, checkpoint, checkpoint_timestamp_ms, package,
				balance_manager_id, asset, amount, deposit)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (event_digest) DO NOTHING`,
			b.EventDigest, b.Digest, b.Sender, b.Checkpoint, b.CheckpointTimestampMs, b.Package,
			b.BalanceManagerID, b.Asset, b.Amount, b.Deposit)
		if err != nil {
			return fmt.Errorf("insert balance %s: %w", b.EventDigest, err)
		}
	}
	return nil
}

func (t *tx) InsertFlashLoans(ctx context.Context, rows []domain.FlashLoanEvent) error {
	for _, fl := range rows {
		_, err := t.Exec(ctx, `
			INSERT INTO flash_loans (event_digest, digest, sender, checkpoint, checkpoint_timestamp_ms, package,
				pool_id, borrow_quantity, asset, borrow)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (event_digest) DO NOTHING`,
			fl.EventDigest, fl.Digest, fl.Sender, fl.Checkpoint, fl.CheckpointTimestampMs, fl.Package,
			fl.PoolID, fl.BorrowQuantity, fl.Asset, fl.Borrow)
		if err != nil {
			return fmt.Errorf("insert flash loan %s: %w", fl.EventDigest, err)
		}
	}
	return nil
}

func (t *tx) InsertStakes(ctx context.Context, rows []domain.StakeEvent) error {
	for _, s := range rows {
		_, err := t.Exec(ctx, `
			INSERT INTO stakes (event_digest, digest, sender, checkpoint, checkpoint_timestamp_ms, package,
				pool_id, balance_manager_id, amount, stake)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (event_digest) DO NOTHING`,
			s.EventDigest, s.Digest, s.Sender, s.Checkpoint, s.CheckpointTimestampMs, s.Package,
			s.PoolID, s.BalanceManagerID, s.Amount, s.Stake)
		if err != nil {
			return fmt.Errorf("insert stake %s: %w", s.EventDigest, err)
		}
	}
	return nil
}

func (t *tx) InsertVotes(ctx context.Context, rows []domain.VoteEvent) error {
	for _, v := range rows {
		_, err := t.Exec(ctx, `
			INSERT INTO votes (event_digest, digest, sender, checkpoint, checkpoint_timestamp_ms, package,
				pool_id, balance_manager_id, vote_from, vote_to, stake)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (event_digest) DO NOTHING`,
			v.EventDigest, v.Digest, v.Sender, v.Checkpoint, v.CheckpointTimestampMs, v.Package,
			v.PoolID, v.BalanceManagerID, v.From, v.To, v.Stake)
		if err != nil {
			return fmt.Errorf("insert vote %s: %w", v.EventDigest, err)
		}
	}
	return nil
}

func (t *tx) InsertProposals(ctx context.Context, rows []domain.ProposalEvent) error {
	for _, p := range rows {
		_, err := t.Exec(ctx, `
			INSERT INTO proposals (event_digest, digest, sender, checkpoint, checkpoint_timestamp_ms, package,
				pool_id, balance_manager_id, taker_fee, maker_fee, stake_required)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (event_digest) DO NOTHING`,
			p.EventDigest, p.Digest, p.Sender, p.Checkpoint, p.CheckpointTimestampMs, p.Package,
			p.PoolID, p.BalanceManagerID, p.TakerFee, p.MakerFee, p.StakeRequired)
		if err != nil {
			return fmt.Errorf("insert proposal %s: %w", p.EventDigest, err)
		}
	}
	return nil
}

func (t *tx) InsertRebates(ctx context.Context, rows []domain.RebateEvent) error {
	for _, r := range rows {
		_, err := t.Exec(ctx, `
			INSERT INTO rebates (event_digest, digest, sender, checkpoint, checkpoint_timestamp_ms, package,
				pool_id, balance_manager_id, claim_amount)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (event_digest) DO NOTHING`,
			r.EventDigest, r.Digest, r.Sender, r.Checkpoint, r.CheckpointTimestampMs, r.Package,
			r.PoolID, r.BalanceManagerID, r.ClaimAmount)
		if err != nil {
			return fmt.Errorf("insert rebate %s: %w", r.EventDigest, err)
		}
	}
	return nil
}

func (t *tx) InsertTradeParams(ctx context.Context, rows []domain.TradeParamsUpdateEvent) error {
	for _, tp := range rows {
		_, err := t.Exec(ctx, `
			INSERT INTO trade_params_updates (event_digest, digest, sender, checkpoint, checkpoint_timestamp_ms, package,
				pool_id, taker_fee_rate, maker_fee_rate, stake_required)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (event_digest) DO NOTHING`,
			tp.EventDigest, tp.Digest, tp.Sender, tp.Checkpoint, tp.CheckpointTimestampMs, tp.Package,
			tp.PoolID, tp.TakerFeeRate, tp.MakerFeeRate, tp.StakeRequired)
		if err != nil {
			return fmt.Errorf("insert trade params update %s: %w", tp.EventDigest, err)
		}
	}
	return nil
}

func (t *tx) InsertPoolPrices(ctx context.Context, rows []domain.PoolPriceEvent) error {
	for _, pp := range rows {
		_, err := t.Exec(ctx, `
			INSERT INTO pool_prices (event_digest, digest, sender, checkpoint, checkpoint_timestamp_ms, package,
				target_pool, reference_pool, conversion_rate)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (event_digest) DO NOTHING`,
			pp.EventDigest, pp.Digest, pp.Sender, pp.Checkpoint, pp.CheckpointTimestampMs, pp.Package,
			pp.TargetPool, pp.ReferencePool, pp.ConversionRate)
		if err != nil {
			return fmt.Errorf("insert pool price %s: %w", pp.EventDigest, err)
		}
	}
	return nil
}

// UpsertWatermark advances a pipeline's watermark row, following the
// flowindex example's `ON CONFLICT (service_name) DO UPDATE SET
// last_height = EXCLUDED.last_height` shape.
func (t *tx) UpsertWatermark(ctx context.Context, w domain.Watermark) error {
	_, err := t.Exec(ctx, `
		INSERT INTO watermarks (pipeline, checkpoint_hi_inclusive, reader_lo, pruner_hi, epoch_hi, tx_hi, timestamp_ms_hi)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (pipeline) DO UPDATE SET
			checkpoint_hi_inclusive = EXCLUDED.checkpoint_hi_inclusive,
			reader_lo = EXCLUDED.reader_lo,
			pruner_hi = EXCLUDED.pruner_hi,
			epoch_hi = EXCLUDED.epoch_hi,
			tx_hi = EXCLUDED.tx_hi,
			timestamp_ms_hi = EXCLUDED.timestamp_ms_hi`,
		w.Pipeline, w.CheckpointHiInclusive, w.ReaderLo, w.PrunerHi, w.EpochHi, w.TxHi, w.TimestampMsHi)
	if err != nil {
		return fmt.Errorf("upsert watermark %s: %w", w.Pipeline, err)
	}
	return nil
}

// Watermark reads a pipeline's watermark within the current transaction,
// used by persist.Pipeline.Watermark for a consistent read.
func (t *tx) Watermark(ctx context.Context, pipeline string) (domain.Watermark, bool, error) {
	var w domain.Watermark
	row := t.QueryRow(ctx, `
		SELECT pipeline, checkpoint_hi_inclusive, reader_lo, pruner_hi, epoch_hi, tx_hi, timestamp_ms_hi
		FROM watermarks WHERE pipeline = $1`, pipeline)
	if err := row.Scan(&w.Pipeline, &w.CheckpointHiInclusive, &w.ReaderLo, &w.PrunerHi, &w.EpochHi, &w.TxHi, &w.TimestampMsHi); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Watermark{}, false, nil
		}
		return domain.Watermark{}, false, fmt.Errorf("query watermark %s: %w", pipeline, err)
	}
	return w, true, nil
}
