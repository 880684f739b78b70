// Package ingest implements the Live Ingester (C4): a fan-out of
// per-checkpoint decode tasks feeding a single sequential, batched
// committer that applies pool batches to the Order-Book Engine in strict
// ascending checkpoint order, regardless of the order batches were
// assembled in.
package ingest

import (
	"context"
	"log/slog"
	"sync"

	"polymarket-mm/internal/bookengine"
	"polymarket-mm/internal/domain"
)

// PoolBatch is one pool's share of the events observed in a single
// checkpoint. Multiple pools observed in the same checkpoint produce
// multiple PoolBatch values sharing a Checkpoint.
type PoolBatch struct {
	Checkpoint int64
	PoolID     string
	Updates    []domain.OrderUpdate
	Fills      []domain.OrderFill
}

// Committer enforces the commit-order guarantee from spec.md §4.4: batches
// may arrive out of order (e.g. on a retried framework batch), but they are
// always applied to the engine in ascending checkpoint order per pool.
//
// last_applied_checkpoint is tracked per pool because pools are independent
// state machines — there is no cross-pool ordering requirement (spec.md §5).
type Committer struct {
	mu          sync.Mutex
	lastApplied map[string]int64
	engine      *bookengine.Engine
	logger      *slog.Logger
}

// NewCommitter creates a committer that applies batches to engine.
// initialLastApplied seeds the per-pool last-applied-checkpoint state,
// typically from the Historical Replayer's catch-up result.
func NewCommitter(engine *bookengine.Engine, initialLastApplied map[string]int64, logger *slog.Logger) *Committer {
	lastApplied := make(map[string]int64, len(initialLastApplied))
	for pool, cp := range initialLastApplied {
		lastApplied[pool] = cp
	}
	return &Committer{
		lastApplied: lastApplied,
		engine:      engine,
		logger:      logger.With("component", "ingest.committer"),
	}
}

// LastApplied returns the highest checkpoint applied so far for a pool.
func (c *Committer) LastApplied(poolID string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastApplied[poolID]
}

// ApplyBatch applies a slice of PoolBatch values in commit order. Values for
// the same pool must already be ordered by ascending checkpoint within the
// slice (the framework delivers them that way); the discipline below is what
// makes retried/duplicated batches idempotent.
//
// For each value v:
//   - if v.Checkpoint <= lastApplied[pool], discard (idempotent replay of a
//     retried batch)
//   - if a new checkpoint starts for this pool, the prior in-progress
//     checkpoint is marked complete (advances lastApplied) before starting
//     the new one
//   - the batch is applied to the engine
//
// After the whole slice is processed, any still in-progress checkpoint per
// pool is finalized into lastApplied.
func (c *Committer) ApplyBatch(ctx context.Context, values []PoolBatch) {
	c.mu.Lock()
	defer c.mu.Unlock()

	inProgress := make(map[string]int64)

	for _, v := range values {
		if last, ok := c.lastApplied[v.PoolID]; ok && v.Checkpoint <= last {
			continue
		}

		if ip, started := inProgress[v.PoolID]; !started || ip != v.Checkpoint {
			if started {
				c.lastApplied[v.PoolID] = ip
			}
			inProgress[v.PoolID] = v.Checkpoint
		}

		c.engine.Apply(ctx, v.PoolID, v.Checkpoint, v.Updates, v.Fills)
	}

	for poolID, checkpoint := range inProgress {
		c.lastApplied[poolID] = checkpoint
	}
}
