// Package publish writes decimal-scaled, human-readable order book and
// trade views to Redis, mirroring the original indexer's cache layer so a
// downstream dashboard or API can read current state without touching
// Postgres.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"polymarket-mm/internal/bookengine"
	"polymarket-mm/internal/domain"
)

// OrderReadable is one decimal-scaled price level.
type OrderReadable struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderbookReadable is the full decimal-scaled book, sorted best-first on
// both sides (bids descending, asks ascending).
type OrderbookReadable struct {
	Bids []OrderReadable `json:"bids"`
	Asks []OrderReadable `json:"asks"`
}

// bookKey and tradesKey follow the original cache's "orderbook::{pool}" /
// "latest_trades::{pool}" naming, keyed off the pool's human-readable name.
func bookKey(poolName string) string   { return fmt.Sprintf("orderbook::%s", poolName) }
func tradesKey(poolName string) string { return fmt.Sprintf("latest_trades::%s", poolName) }

// Redis is the subset of *redis.Client Publisher needs, narrowed for
// testability.
type Redis interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	LPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Publisher implements bookengine.Publisher against a Redis cache.
type Publisher struct {
	client Redis
	logger *slog.Logger
}

// New creates a cache publisher.
func New(client Redis, logger *slog.Logger) *Publisher {
	return &Publisher{client: client, logger: logger.With("component", "publish")}
}

// ClearAll removes every orderbook::* and latest_trades::* key, used once at
// startup so a stale key from a previous deployment's pool set never lingers
// (the original cache is fully rebuilt from the engine's live state, so an
// orphaned key is pure noise, not data loss).
func (p *Publisher) ClearAll(ctx context.Context) error {
	if err := p.clearPrefix(ctx, "orderbook::*"); err != nil {
		return err
	}
	return p.clearPrefix(ctx, "latest_trades::*")
}

func (p *Publisher) clearPrefix(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := p.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := p.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("del %s: %w", pattern, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// PublishBook writes the current decimal-scaled book to
// orderbook::{pool_name}. Called by the engine while the pool's lock is
// still held, so every read sees an atomic snapshot.
func (p *Publisher) PublishBook(ctx context.Context, pool domain.Pool, book *bookengine.Book) {
	readable := toReadable(pool, book)
	payload, err := json.Marshal(readable)
	if err != nil {
		p.logger.Error("marshal orderbook failed", "pool", pool.PoolID, "error", err)
		return
	}
	if err := p.client.Set(ctx, bookKey(pool.PoolName), payload, 0).Err(); err != nil {
		p.logger.Error("publish orderbook failed", "pool", pool.PoolID, "error", err)
	}
}

func toReadable(pool domain.Pool, book *bookengine.Book) OrderbookReadable {
	priceFactor := pool.PriceFactor()
	sizeFactor := pool.SizeFactor()

	bids := levelsOf(book.Bids, priceFactor, sizeFactor, true)
	asks := levelsOf(book.Asks, priceFactor, sizeFactor, false)

	return OrderbookReadable{Bids: bids, Asks: asks}
}

func levelsOf(side map[int64]int64, priceFactor, sizeFactor float64, descending bool) []OrderReadable {
	prices := make([]int64, 0, len(side))
	for price, size := range side {
		if size <= 0 {
			continue
		}
		prices = append(prices, price)
	}
	sort.Slice(prices, func(i, j int) bool {
		if descending {
			return prices[i] > prices[j]
		}
		return prices[i] < prices[j]
	})

	out := make([]OrderReadable, 0, len(prices))
	for _, price := range prices {
		out = append(out, OrderReadable{
			Price: float64(price) / priceFactor,
			Size:  float64(side[price]) / sizeFactor,
		})
	}
	return out
}
