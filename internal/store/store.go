// Package store is the relational persistence layer (C9): a pgxpool-backed
// connection plus repository methods for every table the indexer writes —
// pools, watermarks, and one table per decoded event kind. Adapted from the
// teacher's JSON-file position store: the same Open/Close shape and
// fmt.Errorf("...: %w", err) wrapping style, with file I/O replaced by SQL.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"polymarket-mm/internal/domain"
	"polymarket-mm/internal/persist"
)

// Store owns the connection pool. All operations are issued against it;
// there is no in-process mutex because pgxpool already serializes access to
// physical connections safely across goroutines.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres using connString (a libpq-style DSN or
// postgres:// URL). maxConns caps the pool size; 0 leaves pgxpool's default.
func Open(ctx context.Context, connString string, maxConns int32) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse store config: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// WithTx runs fn inside a single Postgres transaction, committing on a nil
// return and rolling back otherwise. Satisfies persist.Store.
func (s *Store) WithTx(ctx context.Context, fn func(tx persist.Tx) error) error {
	pgxTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer pgxTx.Rollback(ctx)

	if err := fn(&tx{pgxTx}); err != nil {
		return err
	}
	if err := pgxTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// tx adapts a pgx.Tx to persist.Tx and replay.Store's read methods.
type tx struct {
	pgx.Tx
}

// Pools returns every row in the pools table, the indexer's static trading
// pair metadata.
func (s *Store) Pools(ctx context.Context) ([]domain.Pool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pool_id, pool_name, base_asset_decimals, quote_asset_decimals,
		       tick_size, lot_size, min_size
		FROM pools`)
	if err != nil {
		return nil, fmt.Errorf("query pools: %w", err)
	}
	defer rows.Close()

	var pools []domain.Pool
	for rows.Next() {
		var p domain.Pool
		if err := rows.Scan(&p.PoolID, &p.PoolName, &p.BaseAssetDecimals, &p.QuoteAssetDecimals,
			&p.TickSize, &p.LotSize, &p.MinSize); err != nil {
			return nil, fmt.Errorf("scan pool: %w", err)
		}
		pools = append(pools, p)
	}
	return pools, rows.Err()
}

// UpsertPool inserts or refreshes a pool's metadata row, used by
// poolregistry on every refresh cycle.
func (s *Store) UpsertPool(ctx context.Context, p domain.Pool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pools (pool_id, pool_name, base_asset_decimals, quote_asset_decimals, tick_size, lot_size, min_size)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (pool_id) DO UPDATE SET
			pool_name = EXCLUDED.pool_name,
			base_asset_decimals = EXCLUDED.base_asset_decimals,
			quote_asset_decimals = EXCLUDED.quote_asset_decimals,
			tick_size = EXCLUDED.tick_size,
			lot_size = EXCLUDED.lot_size,
			min_size = EXCLUDED.min_size`,
		p.PoolID, p.PoolName, p.BaseAssetDecimals, p.QuoteAssetDecimals, p.TickSize, p.LotSize, p.MinSize)
	if err != nil {
		return fmt.Errorf("upsert pool %s: %w", p.PoolID, err)
	}
	return nil
}

// Watermark reads one pipeline's watermark row outside of a transaction,
// used at startup before any commit has happened yet.
func (s *Store) Watermark(ctx context.Context, pipeline string) (domain.Watermark, bool, error) {
	var w domain.Watermark
	err := s.pool.QueryRow(ctx, `
		SELECT pipeline, checkpoint_hi_inclusive, reader_lo, pruner_hi, epoch_hi, tx_hi, timestamp_ms_hi
		FROM watermarks WHERE pipeline = $1`, pipeline,
	).Scan(&w.Pipeline, &w.CheckpointHiInclusive, &w.ReaderLo, &w.PrunerHi, &w.EpochHi, &w.TxHi, &w.TimestampMsHi)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Watermark{}, false, nil
		}
		return domain.Watermark{}, false, fmt.Errorf("query watermark %s: %w", pipeline, err)
	}
	return w, true, nil
}

// OrderUpdatesInRange and OrderFillsInRange back the Historical Replayer's
// windowed reads (replay.Store).
func (s *Store) OrderUpdatesInRange(ctx context.Context, poolIDs []string, start, end int64) ([]domain.OrderUpdate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_digest, event_index, digest, sender, checkpoint, checkpoint_timestamp_ms, package,
		       status, pool_id, order_id, client_order_id, price, is_bid,
		       original_quantity, quantity, filled_quantity, onchain_timestamp,
		       trader, balance_manager_id
		FROM order_updates
		WHERE pool_id = ANY($1) AND checkpoint >= $2 AND checkpoint <= $3`,
		poolIDs, start, end)
	if err != nil {
		return nil, fmt.Errorf("query order updates: %w", err)
	}
	defer rows.Close()

	var out []domain.OrderUpdate
	for rows.Next() {
		var u domain.OrderUpdate
		var status string
		if err := rows.Scan(&u.EventDigest, &u.EventIndex, &u.Digest, &u.Sender, &u.Checkpoint, &u.CheckpointTimestampMs, &u.Package,
			&status, &u.PoolID, &u.OrderID, &u.ClientOrderID, &u.Price, &u.IsBid,
			&u.OriginalQuantity, &u.Quantity, &u.FilledQuantity, &u.OnchainTimestamp,
			&u.Trader, &u.BalanceManagerID); err != nil {
			return nil, fmt.Errorf("scan order update: %w", err)
		}
		u.Status = domain.OrderUpdateStatus(status)
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) OrderFillsInRange(ctx context.Context, poolIDs []string, start, end int64) ([]domain.OrderFill, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_digest, event_index, digest, sender, checkpoint, checkpoint_timestamp_ms, package,
		       pool_id, maker_order_id, taker_order_id, maker_client_order_id, taker_client_order_id,
		       price, taker_fee, taker_fee_is_deep, maker_fee, maker_fee_is_deep, taker_is_bid,
		       base_quantity, quote_quantity, maker_balance_manager_id, taker_balance_manager_id,
		       onchain_timestamp
		FROM order_fills
		WHERE pool_id = ANY($1) AND checkpoint >= $2 AND checkpoint <= $3`,
		poolIDs, start, end)
	if err != nil {
		return nil, fmt.Errorf("query order fills: %w", err)
	}
	defer rows.Close()

	var out []domain.OrderFill
	for rows.Next() {
		var f domain.OrderFill
		if err := rows.Scan(&f.EventDigest, &f.EventIndex, &f.Digest, &f.Sender, &f.Checkpoint, &f.CheckpointTimestampMs, &f.Package,
			&f.PoolID, &f.MakerOrderID, &f.TakerOrderID, &f.MakerClientOrderID, &f.TakerClientOrderID,
			&f.Price, &f.TakerFee, &f.TakerFeeIsDeep, &f.MakerFee, &f.MakerFeeIsDeep, &f.TakerIsBid,
			&f.BaseQuantity, &f.QuoteQuantity, &f.MakerBalanceManagerID, &f.TakerBalanceManagerID,
			&f.OnchainTimestamp); err != nil {
			return nil, fmt.Errorf("scan order fill: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
