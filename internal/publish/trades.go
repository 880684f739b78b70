package publish

import (
	"context"
	"encoding/json"
	"log/slog"

	"polymarket-mm/internal/domain"
)

// TradeReadable is one decimal-scaled fill, the trade-feed analogue of
// OrderReadable.
type TradeReadable struct {
	Price            float64 `json:"price"`
	Size             float64 `json:"size"`
	QuoteSize        float64 `json:"quote_size"`
	TakerIsBid       bool    `json:"taker_is_bid"`
	OnchainTimestamp int64   `json:"onchain_timestamp"`
}

// PublishTrade pushes a fill onto pool's bounded recent-trades list:
// LPUSH to keep newest-first, then LTRIM to domain.LatestTradesLimit so the
// list never grows unbounded — the same cap+evict discipline the teacher's
// FlowTracker applies to its in-process rolling window, here enforced
// server-side by Redis instead of by a Go slice.
func (p *Publisher) PublishTrade(ctx context.Context, pool domain.Pool, fill domain.OrderFill) {
	readable := TradeReadable{
		Price:            float64(fill.Price) / pool.PriceFactor(),
		Size:             float64(fill.BaseQuantity) / pool.SizeFactor(),
		QuoteSize:        float64(fill.QuoteQuantity) / pool.QuoteSizeFactor(),
		TakerIsBid:       fill.TakerIsBid,
		OnchainTimestamp: fill.OnchainTimestamp,
	}

	payload, err := json.Marshal(readable)
	if err != nil {
		p.logger.Error("marshal trade failed", "pool", pool.PoolID, "error", err)
		return
	}

	key := tradesKey(pool.PoolName)
	if err := p.client.LPush(ctx, key, payload).Err(); err != nil {
		p.logger.Error("publish trade failed", "pool", pool.PoolID, "error", err)
		return
	}
	if err := p.client.LTrim(ctx, key, 0, domain.LatestTradesLimit-1).Err(); err != nil {
		p.logger.Error("trim trades list failed", "pool", pool.PoolID, "error", err)
	}
}
