// Package bookengine reconstructs per-pool L2 order books from the decoded
// event stream.
//
// Book mirrors the on-chain order book for a single DeepBook pool as two
// price→size maps. It is updated exclusively by Engine.Apply, which is
// called by both the Historical Replayer and the Live Ingester's sequential
// committer — never directly by decoders. The book is concurrency-safe
// (mutex protected) and publishes a readable snapshot every time it mutates.
package bookengine

import (
	"polymarket-mm/internal/domain"
)

// Book is the in-memory state for one pool: two price→signed-size maps.
// Only entries with non-zero size are retained (pruned lazily at the end of
// each batch).
type Book struct {
	Bids              map[int64]int64
	Asks              map[int64]int64
	InitialCheckpoint int64
	Meta              domain.Pool
}

// NewBook creates an empty book for a pool, first observed at
// initialCheckpoint. Events at or before initialCheckpoint are rejected.
func NewBook(meta domain.Pool, initialCheckpoint int64) *Book {
	return &Book{
		Bids:              make(map[int64]int64),
		Asks:              make(map[int64]int64),
		InitialCheckpoint: initialCheckpoint,
		Meta:              meta,
	}
}

func (b *Book) side(isBid bool) map[int64]int64 {
	if isBid {
		return b.Bids
	}
	return b.Asks
}

// add increments the size at a price level, creating it if absent.
func add(side map[int64]int64, price, qty int64) {
	side[price] = side[price] + qty
}

// sub decrements the size at a price level, creating a (possibly negative)
// entry if absent. Negative entries are tolerated — see Apply.
func sub(side map[int64]int64, price, qty int64) {
	side[price] = side[price] - qty
}

// prune removes zero-valued entries from both sides. Negative entries are
// NOT pruned — they represent a transient invalid state awaiting a
// corrective event.
func (b *Book) prune() {
	for price, size := range b.Bids {
		if size == 0 {
			delete(b.Bids, price)
		}
	}
	for price, size := range b.Asks {
		if size == 0 {
			delete(b.Asks, price)
		}
	}
}

// Valid reports whether the book currently satisfies I1 (no zero entries —
// guaranteed by prune, not re-checked here) and I2 (max bid price < min ask
// price, when both sides are non-empty). Negative sizes make I1 fail in
// spirit even though no entry is literally zero; Valid reports false for any
// negative entry too, since spec.md's I1 requires non-negative sizes.
func (b *Book) Valid() bool {
	for _, size := range b.Bids {
		if size < 0 {
			return false
		}
	}
	for _, size := range b.Asks {
		if size < 0 {
			return false
		}
	}

	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return true
	}

	maxBid := int64(0)
	first := true
	for price := range b.Bids {
		if first || price > maxBid {
			maxBid = price
			first = false
		}
	}

	minAsk := int64(0)
	first = true
	for price := range b.Asks {
		if first || price < minAsk {
			minAsk = price
			first = false
		}
	}

	return maxBid < minAsk
}

// BestBidAsk returns the highest bid and lowest ask currently on the book.
// ok is false if either side is empty.
func (b *Book) BestBidAsk() (bid, ask int64, ok bool) {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return 0, 0, false
	}
	first := true
	for price := range b.Bids {
		if first || price > bid {
			bid = price
			first = false
		}
	}
	first = true
	for price := range b.Asks {
		if first || price < ask {
			ask = price
			first = false
		}
	}
	return bid, ask, true
}
