// Package replay implements the Historical Replayer (C2): on startup, it
// catches every pool's order book up to the lowest durably-committed
// watermark before the Live Ingester starts applying new checkpoints, so no
// window of missed or duplicated events can reach the book.
package replay

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"polymarket-mm/internal/domain"
	"polymarket-mm/internal/ingest"
)

// Store is the read surface the replayer needs from the relational store.
type Store interface {
	Watermark(ctx context.Context, pipeline string) (domain.Watermark, bool, error)
	OrderUpdatesInRange(ctx context.Context, poolIDs []string, startCheckpoint, endCheckpoint int64) ([]domain.OrderUpdate, error)
	OrderFillsInRange(ctx context.Context, poolIDs []string, startCheckpoint, endCheckpoint int64) ([]domain.OrderFill, error)
}

// Replayer drives Historical catch-up against a Committer whose Engine has
// already been seeded with every pool's initial_checkpoint via EnsurePool.
type Replayer struct {
	store     Store
	committer *ingest.Committer
	logger    *slog.Logger
	batchSize int64
}

// New creates a replayer. batchSize is typically domain.ReplayBatchSize.
func New(store Store, committer *ingest.Committer, logger *slog.Logger) *Replayer {
	return &Replayer{
		store:     store,
		committer: committer,
		logger:    logger.With("component", "replay"),
		batchSize: domain.ReplayBatchSize,
	}
}

// CatchUp replays every checkpoint in (start, target] across poolIDs, in
// windows of r.batchSize checkpoints, applying each window's rows to the
// engine grouped by (checkpoint, pool_id) in ascending order.
//
// target is computed by the caller as min(order_update watermark,
// order_fill watermark): replaying up to a pipeline's own watermark can
// never reapply anything the live ingester hasn't already committed for
// that pipeline, and stopping at the lower of the two keeps both tables
// consistent with each other.
//
// start is computed by the caller as min(pool.initial_checkpoint) across
// poolIDs — there is nothing to replay before any pool's bootstrap
// snapshot.
func (r *Replayer) CatchUp(ctx context.Context, poolIDs []string, start, target int64) error {
	if len(poolIDs) == 0 || start >= target {
		return nil
	}

	sortedPoolIDs := append([]string(nil), poolIDs...)
	sort.Strings(sortedPoolIDs)

	for windowStart := start + 1; windowStart <= target; windowStart += r.batchSize {
		windowEnd := windowStart + r.batchSize - 1
		if windowEnd > target {
			windowEnd = target
		}

		if err := r.applyRange(ctx, sortedPoolIDs, windowStart, windowEnd); err != nil {
			return fmt.Errorf("replay range [%d, %d]: %w", windowStart, windowEnd, err)
		}

		r.logger.Info("replayed checkpoint window", "start", windowStart, "end", windowEnd)
	}

	return nil
}

// applyRange loads one window's rows, sorts them deterministically, groups
// by (checkpoint, pool_id), and applies each group to the engine in
// ascending checkpoint order — mirroring original's apply_range exactly.
func (r *Replayer) applyRange(ctx context.Context, poolIDs []string, start, end int64) error {
	updates, err := r.store.OrderUpdatesInRange(ctx, poolIDs, start, end)
	if err != nil {
		return fmt.Errorf("load order updates: %w", err)
	}
	fills, err := r.store.OrderFillsInRange(ctx, poolIDs, start, end)
	if err != nil {
		return fmt.Errorf("load order fills: %w", err)
	}

	sortEvents(updates, fills)

	checkpoints := collectCheckpoints(updates, fills)

	values := make([]ingest.PoolBatch, 0, len(checkpoints))
	for _, checkpoint := range checkpoints {
		updatesByPool, fillsByPool := bucketByPool(checkpoint, updates, fills)

		pools := make([]string, 0, len(updatesByPool)+len(fillsByPool))
		seen := make(map[string]struct{})
		for poolID := range updatesByPool {
			if _, ok := seen[poolID]; !ok {
				seen[poolID] = struct{}{}
				pools = append(pools, poolID)
			}
		}
		for poolID := range fillsByPool {
			if _, ok := seen[poolID]; !ok {
				seen[poolID] = struct{}{}
				pools = append(pools, poolID)
			}
		}
		sort.Strings(pools)

		for _, poolID := range pools {
			values = append(values, ingest.PoolBatch{
				Checkpoint: checkpoint,
				PoolID:     poolID,
				Updates:    updatesByPool[poolID],
				Fills:      fillsByPool[poolID],
			})
		}
	}

	r.committer.ApplyBatch(ctx, values)
	return nil
}

// sortEvents orders each slice by (checkpoint, pool_id, tx_digest,
// event_index), exactly the key spec.md §4.3 names. event_index must be the
// numeric position of the event within its transaction, not the fingerprint
// string (EventDigest) — a transaction with ten or more same-kind events
// (one aggressive order filling against many resting orders) sorts those
// events lexically by digest+index under the opaque fingerprint, putting
// "...10" before "...9" and silently diverging from Live Ingestion's
// in-order walk of tx.Events.
func sortEvents(updates []domain.OrderUpdate, fills []domain.OrderFill) {
	sort.SliceStable(updates, func(i, j int) bool {
		a, b := updates[i], updates[j]
		if a.Checkpoint != b.Checkpoint {
			return a.Checkpoint < b.Checkpoint
		}
		if a.PoolID != b.PoolID {
			return a.PoolID < b.PoolID
		}
		if a.Digest != b.Digest {
			return a.Digest < b.Digest
		}
		return a.EventIndex < b.EventIndex
	})
	sort.SliceStable(fills, func(i, j int) bool {
		a, b := fills[i], fills[j]
		if a.Checkpoint != b.Checkpoint {
			return a.Checkpoint < b.Checkpoint
		}
		if a.PoolID != b.PoolID {
			return a.PoolID < b.PoolID
		}
		if a.Digest != b.Digest {
			return a.Digest < b.Digest
		}
		return a.EventIndex < b.EventIndex
	})
}

func collectCheckpoints(updates []domain.OrderUpdate, fills []domain.OrderFill) []int64 {
	set := make(map[int64]struct{}, len(updates)+len(fills))
	for _, u := range updates {
		set[u.Checkpoint] = struct{}{}
	}
	for _, f := range fills {
		set[f.Checkpoint] = struct{}{}
	}
	out := make([]int64, 0, len(set))
	for cp := range set {
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func bucketByPool(checkpoint int64, updates []domain.OrderUpdate, fills []domain.OrderFill) (map[string][]domain.OrderUpdate, map[string][]domain.OrderFill) {
	updatesByPool := make(map[string][]domain.OrderUpdate)
	fillsByPool := make(map[string][]domain.OrderFill)
	for _, u := range updates {
		if u.Checkpoint != checkpoint {
			continue
		}
		updatesByPool[u.PoolID] = append(updatesByPool[u.PoolID], u)
	}
	for _, f := range fills {
		if f.Checkpoint != checkpoint {
			continue
		}
		fillsByPool[f.PoolID] = append(fillsByPool[f.PoolID], f)
	}
	return updatesByPool, fillsByPool
}
