package bookengine

import (
	"context"
	"log/slog"
	"sync"

	"polymarket-mm/internal/domain"
)

// Publisher is invoked by Engine after every applied batch, while the
// per-pool lock is still held, so remote cache readers always see an atomic
// snapshot and never a book mid-mutation.
type Publisher interface {
	PublishBook(ctx context.Context, pool domain.Pool, book *Book)
	PublishTrade(ctx context.Context, pool domain.Pool, fill domain.OrderFill)
}

// InvariantObserver is notified on every BECAME_INVALID / BECAME_VALID
// transition, so the metrics layer can track "pools currently invalid"
// without the engine importing a metrics package directly.
type InvariantObserver interface {
	SetPoolInvalid(poolID string, invalid bool)
}

// Engine owns the set of live per-pool books, indexed by pool ID. It is the
// sole mutator of Book state: only Apply ever writes to a Book, and it does
// so under that pool's mutex for the duration of the call.
//
// Cyclic ownership between pools and the engine is avoided by keeping pools
// in a plain map keyed by pool ID; Book never holds a reference back to
// Engine.
type Engine struct {
	mu        sync.Mutex // guards the books map itself (not its contents)
	books     map[string]*Book
	bookLocks map[string]*sync.Mutex

	publisher Publisher
	observer  InvariantObserver
	logger    *slog.Logger
}

// New creates an order-book engine with no pools registered yet. Pools are
// added lazily via EnsurePool on first observation.
func New(publisher Publisher, observer InvariantObserver, logger *slog.Logger) *Engine {
	return &Engine{
		books:     make(map[string]*Book),
		bookLocks: make(map[string]*sync.Mutex),
		publisher: publisher,
		observer:  observer,
		logger:    logger.With("component", "bookengine"),
	}
}

// EnsurePool registers a pool's book if it doesn't exist yet, seeded at
// initialCheckpoint. Re-registering an already-known pool is a no-op.
func (e *Engine) EnsurePool(meta domain.Pool, initialCheckpoint int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.books[meta.PoolID]; ok {
		return
	}
	e.books[meta.PoolID] = NewBook(meta, initialCheckpoint)
	e.bookLocks[meta.PoolID] = &sync.Mutex{}
}

// Book returns the current book for a pool, or nil if unknown. The returned
// pointer must not be mutated by the caller; it is a read-only view used for
// dashboards/tests. Safe to call concurrently with Apply (Go maps aren't
// safe for concurrent read+write, so this still takes the registry lock).
func (e *Engine) Book(poolID string) *Book {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.books[poolID]
}

// InitialCheckpoint returns the lowest InitialCheckpoint across all
// registered pools — the starting point for historical replay.
func (e *Engine) InitialCheckpoint() (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	first := true
	var min int64
	for _, book := range e.books {
		if first || book.InitialCheckpoint < min {
			min = book.InitialCheckpoint
			first = false
		}
	}
	return min, !first
}

func (e *Engine) lockFor(poolID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bookLocks[poolID]
}

// Apply is the batch protocol from spec.md §4.5:
//
//  1. record valid_before
//  2. apply every update (in order), then every fill (in order)
//  3. prune zero-size entries
//  4. record valid_after
//  5. on a valid<->invalid transition, log a structured record and notify
//     the invariant observer
//  6. invoke the publisher for this pool, still holding the per-pool lock
//
// Events whose checkpoint does not exceed the book's InitialCheckpoint are
// dropped (they predate this book's bootstrap snapshot).
func (e *Engine) Apply(ctx context.Context, poolID string, checkpoint int64, updates []domain.OrderUpdate, fills []domain.OrderFill) {
	lock := e.lockFor(poolID)
	if lock == nil {
		e.logger.Warn("apply called for unknown pool", "pool", poolID)
		return
	}

	lock.Lock()
	defer lock.Unlock()

	book := e.Book(poolID)
	if book == nil {
		return
	}

	validBefore := book.Valid()

	for _, u := range updates {
		e.applyUpdate(book, u)
	}
	for _, f := range fills {
		e.applyFill(book, f)
	}

	book.prune()

	validAfter := book.Valid()

	if validBefore != validAfter {
		transition := "BECAME_INVALID"
		if validAfter {
			transition = "BECAME_VALID"
		}
		e.logger.Warn("order book invariant transition",
			"pool", poolID,
			"checkpoint", checkpoint,
			"updates_count", len(updates),
			"fills_count", len(fills),
			"transition", transition,
		)
		if e.observer != nil {
			e.observer.SetPoolInvalid(poolID, !validAfter)
		}
	}

	if e.publisher != nil {
		e.publisher.PublishBook(ctx, book.Meta, book)
		for _, f := range fills {
			if f.Checkpoint > book.InitialCheckpoint {
				e.publisher.PublishTrade(ctx, book.Meta, f)
			}
		}
	}
}

func (e *Engine) applyUpdate(book *Book, u domain.OrderUpdate) {
	if u.Checkpoint <= book.InitialCheckpoint {
		return
	}

	switch u.Status {
	case domain.StatusPlaced:
		add(book.side(u.IsBid), u.Price, u.Quantity)
	case domain.StatusCanceled:
		if u.Quantity == 0 {
			return
		}
		sub(book.side(u.IsBid), u.Price, u.Quantity)
	case domain.StatusExpired:
		// Quantity carries base_asset_quantity_canceled — the strict
		// interpretation: decrement only the canceled portion, not
		// OriginalQuantity.
		sub(book.side(u.IsBid), u.Price, u.Quantity)
	case domain.StatusModified:
		delta := u.PreviousQuantity - u.Quantity
		if delta == 0 {
			return
		}
		sub(book.side(u.IsBid), u.Price, delta)
	default:
		e.logger.Warn("unknown order update status", "status", u.Status, "pool", u.PoolID)
	}
}

func (e *Engine) applyFill(book *Book, f domain.OrderFill) {
	if f.Checkpoint <= book.InitialCheckpoint {
		return
	}
	// The maker side is debited: a bid-side taker fill removes liquidity
	// from the ask side (the resting maker order was an ask), and vice versa.
	sub(book.side(!f.TakerIsBid), f.Price, f.BaseQuantity)
}
