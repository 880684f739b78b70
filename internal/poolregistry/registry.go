// Package poolregistry periodically refreshes the set of pools being
// indexed: fetches the current pool list from chain, persists any new or
// changed pool into the store, and republishes an in-memory snapshot the
// rest of the indexer reads. Adapted from the teacher's market.Scanner
// polling loop.
package poolregistry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"polymarket-mm/internal/bootstrap"
	"polymarket-mm/internal/domain"
)

// Store is the subset of the persistence layer the registry needs.
type Store interface {
	UpsertPool(ctx context.Context, p domain.Pool) error
}

// Snapshot is a point-in-time view of the pool registry.
type Snapshot struct {
	Pools       []domain.Pool
	RefreshedAt time.Time
}

// Registry polls a bootstrap.Source on an interval, persists discovered
// pools, and republishes the latest snapshot over Results(), matching the
// Scanner's "replace the stale result if the engine hasn't read it yet"
// non-blocking channel discipline.
type Registry struct {
	source       bootstrap.Source
	store        Store
	pollInterval time.Duration
	logger       *slog.Logger

	resultCh chan Snapshot

	mu   sync.RWMutex
	byID map[string]domain.Pool
}

// New creates a pool registry polling source every pollInterval.
func New(source bootstrap.Source, store Store, pollInterval time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		source:       source,
		store:        store,
		pollInterval: pollInterval,
		logger:       logger.With("component", "poolregistry"),
		resultCh:     make(chan Snapshot, 1),
		byID:         make(map[string]domain.Pool),
	}
}

// Results returns the channel the engine reads refreshed snapshots from.
func (r *Registry) Results() <-chan Snapshot { return r.resultCh }

// Current returns the most recently fetched pool list, safe to call
// concurrently with Run.
func (r *Registry) Current() []domain.Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pools := make([]domain.Pool, 0, len(r.byID))
	for _, p := range r.byID {
		pools = append(pools, p)
	}
	return pools
}

// Lookup returns a single pool by ID, if known.
func (r *Registry) Lookup(poolID string) (domain.Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[poolID]
	return p, ok
}

// Run polls immediately on startup, then every pollInterval, until ctx is
// cancelled. Blocks.
func (r *Registry) Run(ctx context.Context) {
	r.refresh(ctx)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

// RunOnce performs a single synchronous fetch-persist-publish cycle and
// returns any fetch error, rather than swallowing it like refresh does. The
// engine calls this once at startup so a broken remote store fails Start
// immediately instead of silently leaving the pool set empty.
func (r *Registry) RunOnce(ctx context.Context) error {
	return r.fetchAndApply(ctx)
}

func (r *Registry) refresh(ctx context.Context) {
	if err := r.fetchAndApply(ctx); err != nil {
		r.logger.Error("pool registry refresh failed", "error", err)
	}
}

func (r *Registry) fetchAndApply(ctx context.Context) error {
	pools, err := r.source.Pools(ctx)
	if err != nil {
		return err
	}

	for _, p := range pools {
		if err := r.store.UpsertPool(ctx, p); err != nil {
			r.logger.Error("persist pool failed", "pool_id", p.PoolID, "error", err)
		}
	}

	r.mu.Lock()
	r.byID = make(map[string]domain.Pool, len(pools))
	for _, p := range pools {
		r.byID[p.PoolID] = p
	}
	r.mu.Unlock()

	snapshot := Snapshot{Pools: pools, RefreshedAt: time.Now()}
	r.logger.Info("pool registry refreshed", "count", len(pools))

	select {
	case r.resultCh <- snapshot:
	default:
		select {
		case <-r.resultCh:
		default:
		}
		r.resultCh <- snapshot
	}
	return nil
}
