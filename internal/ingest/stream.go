package ingest

import (
	"context"
	"log/slog"
	"sort"

	"polymarket-mm/internal/decode"
	"polymarket-mm/internal/domain"
	"polymarket-mm/internal/persist"
)

// CheckpointStream is satisfied by internal/checkpointsource.Source. Kept as
// a narrow interface here so ingest doesn't import the transport package
// directly.
type CheckpointStream interface {
	Checkpoints() <-chan *domain.Checkpoint
	Errors() <-chan error
}

// Stream runs the order-book pipeline: for every checkpoint delivered by
// src, decode order life-cycle + fill events, bucket them per pool into
// PoolBatch values, and hand the batch to the committer. Ingest concurrency
// for this pipeline is always 1 — a single goroutine processes checkpoints
// in the order the stream delivers them, which is how the commit-order
// guarantee is upheld without the committer itself needing to reorder
// anything (spec.md §5: "the order-book pipeline must be single-ingest to
// preserve ordering").
// Stream runs two independent persist pipelines per checkpoint — order
// updates (plus the auxiliary event kinds that never mutate the book) and
// order fills — each with its own watermark row, per spec.md §4.2's "one
// pipeline per event kind, concurrent, independent". The Historical
// Replayer's target checkpoint is the min across both (persist.WatermarkCache.Min),
// so catch-up never assumes the two stay in lockstep.
type Stream struct {
	decoder      *decode.Decoder
	committer    *Committer
	orderUpdates *persist.Pipeline
	orderFills   *persist.Pipeline
	watermarks   *persist.WatermarkCache
	logger       *slog.Logger
}

// NewStream creates a live-ingestion stream. Every checkpoint's decoded rows
// are durably persisted (and both pipelines' watermarks advanced) before the
// committer applies them to the in-memory engine, so a restart always
// resumes from a checkpoint whose rows are already on disk.
func NewStream(decoder *decode.Decoder, committer *Committer, orderUpdates, orderFills *persist.Pipeline, watermarks *persist.WatermarkCache, logger *slog.Logger) *Stream {
	return &Stream{
		decoder:      decoder,
		committer:    committer,
		orderUpdates: orderUpdates,
		orderFills:   orderFills,
		watermarks:   watermarks,
		logger:       logger.With("component", "ingest.stream"),
	}
}

// Run blocks, consuming checkpoints from src until ctx is cancelled or src
// closes its channel. Cancellation completes the current checkpoint's batch
// before returning — there is no mid-batch cancellation point that could
// leave a book inconsistent (spec.md §5).
func (s *Stream) Run(ctx context.Context, src CheckpointStream) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-src.Errors():
			if !ok {
				continue
			}
			s.logger.Error("checkpoint source error", "error", err)
		case cp, ok := <-src.Checkpoints():
			if !ok {
				return nil
			}
			s.processCheckpoint(ctx, cp)
		}
	}
}

func (s *Stream) processCheckpoint(ctx context.Context, cp *domain.Checkpoint) {
	batch, err := s.decoder.Decode(cp)
	if err != nil {
		s.logger.Error("decode checkpoint failed", "checkpoint", cp.Sequence, "error", err)
		return
	}

	checkpoint := int64(cp.Sequence)

	if err := s.orderUpdates.CommitCheckpoint(ctx, checkpoint, cp.TimestampMs, persist.PersistBatch{
		OrderUpdates: batch.OrderUpdates,
		Balances:     batch.Balances,
		FlashLoans:   batch.FlashLoans,
		Stakes:       batch.Stakes,
		Votes:        batch.Votes,
		Proposals:    batch.Proposals,
		Rebates:      batch.Rebates,
		TradeParams:  batch.TradeParams,
		PoolPrices:   batch.PoolPrices,
	}); err != nil {
		s.logger.Error("persist order updates failed, skipping in-memory apply", "checkpoint", cp.Sequence, "error", err)
		return
	}
	s.watermarks.Set(domain.Watermark{Pipeline: domain.OrderUpdatePipeline, CheckpointHiInclusive: checkpoint, TimestampMsHi: cp.TimestampMs})

	if err := s.orderFills.CommitCheckpoint(ctx, checkpoint, cp.TimestampMs, persist.PersistBatch{
		OrderFills: batch.OrderFills,
	}); err != nil {
		s.logger.Error("persist order fills failed, skipping in-memory apply", "checkpoint", cp.Sequence, "error", err)
		return
	}
	s.watermarks.Set(domain.Watermark{Pipeline: domain.OrderFillPipeline, CheckpointHiInclusive: checkpoint, TimestampMsHi: cp.TimestampMs})

	values := bucketByPool(checkpoint, batch.OrderUpdates, batch.OrderFills)
	if len(values) == 0 {
		return
	}
	s.committer.ApplyBatch(ctx, values)
}

// bucketByPool groups a checkpoint's order-update and fill events into one
// PoolBatch per pool, with pool IDs visited in sorted order for determinism.
func bucketByPool(checkpoint int64, updates []domain.OrderUpdate, fills []domain.OrderFill) []PoolBatch {
	updatesByPool := make(map[string][]domain.OrderUpdate)
	fillsByPool := make(map[string][]domain.OrderFill)

	for _, u := range updates {
		updatesByPool[u.PoolID] = append(updatesByPool[u.PoolID], u)
	}
	for _, f := range fills {
		fillsByPool[f.PoolID] = append(fillsByPool[f.PoolID], f)
	}

	poolSet := make(map[string]struct{}, len(updatesByPool)+len(fillsByPool))
	for poolID := range updatesByPool {
		poolSet[poolID] = struct{}{}
	}
	for poolID := range fillsByPool {
		poolSet[poolID] = struct{}{}
	}

	poolIDs := make([]string, 0, len(poolSet))
	for poolID := range poolSet {
		poolIDs = append(poolIDs, poolID)
	}
	sort.Strings(poolIDs)

	values := make([]PoolBatch, 0, len(poolIDs))
	for _, poolID := range poolIDs {
		values = append(values, PoolBatch{
			Checkpoint: checkpoint,
			PoolID:     poolID,
			Updates:    updatesByPool[poolID],
			Fills:      fillsByPool[poolID],
		})
	}
	return values
}
