package publish

import (
	"context"
	"encoding/json"
	"testing"

	"polymarket-mm/internal/domain"
)

func TestPublishTradePushesAndTrims(t *testing.T) {
	client := newFakeRedis()
	p := New(client, testLogger())

	pool := domain.Pool{PoolID: "pool-1", PoolName: "SUI_USDC", BaseAssetDecimals: 6, QuoteAssetDecimals: 9}
	fill := domain.OrderFill{Price: 1_500_000_000_000, BaseQuantity: 2_000_000, TakerIsBid: true, OnchainTimestamp: 1700000000000}

	p.PublishTrade(context.Background(), pool, fill)

	key := tradesKey("SUI_USDC")
	if len(client.lists[key]) != 1 {
		t.Fatalf("expected one trade pushed, got %d", len(client.lists[key]))
	}
	trim, ok := client.trimmed[key]
	if !ok || trim[1] != domain.LatestTradesLimit-1 {
		t.Fatalf("expected LTRIM to cap at %d, got %+v (ok=%v)", domain.LatestTradesLimit-1, trim, ok)
	}
}

func TestPublishTradeIncludesQuoteSize(t *testing.T) {
	client := newFakeRedis()
	p := New(client, testLogger())

	pool := domain.Pool{PoolID: "pool-1", PoolName: "SUI_USDC", BaseAssetDecimals: 6, QuoteAssetDecimals: 9}
	fill := domain.OrderFill{Price: 1_500_000_000_000, BaseQuantity: 2_000_000, QuoteQuantity: 3_000_000_000, TakerIsBid: true}

	p.PublishTrade(context.Background(), pool, fill)

	key := tradesKey("SUI_USDC")
	if len(client.lists[key]) != 1 {
		t.Fatalf("expected one trade pushed, got %d", len(client.lists[key]))
	}

	var readable TradeReadable
	if err := json.Unmarshal(client.lists[key][0], &readable); err != nil {
		t.Fatalf("unmarshal trade: %v", err)
	}
	if want := 3.0; readable.QuoteSize != want {
		t.Errorf("quote_size = %v, want %v", readable.QuoteSize, want)
	}
}

func TestPublishTradeEvictsBeyondLimit(t *testing.T) {
	client := newFakeRedis()
	p := New(client, testLogger())
	pool := domain.Pool{PoolID: "pool-1", PoolName: "SUI_USDC", BaseAssetDecimals: 1, QuoteAssetDecimals: 1}

	for i := 0; i < domain.LatestTradesLimit+10; i++ {
		p.PublishTrade(context.Background(), pool, domain.OrderFill{Price: int64(i), BaseQuantity: 1})
	}

	key := tradesKey("SUI_USDC")
	if len(client.lists[key]) != domain.LatestTradesLimit {
		t.Fatalf("expected list capped at %d, got %d", domain.LatestTradesLimit, len(client.lists[key]))
	}
}
