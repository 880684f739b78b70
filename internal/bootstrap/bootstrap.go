// Package bootstrap fetches the cold-start pool registry: the set of pools
// to index and their tick/lot/min-size decimals, so the order-book engine
// and the historical replayer know which pools exist and how to scale
// their raw integer quantities before the live checkpoint stream or the
// backfill replayer has reconstructed anything from events.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"polymarket-mm/internal/domain"
	"polymarket-mm/internal/ratelimit"
)

const (
	poolsFetchBurst         = 5
	poolsFetchRatePerSecond = 1
)

// Source fetches the current pool registry from the chain. It deliberately
// stops at reading pool metadata: building or submitting transactions is
// out of scope for a read-only indexer.
type Source interface {
	Pools(ctx context.Context) ([]domain.Pool, error)
}

type poolRecord struct {
	PoolID             string `json:"pool_id"`
	PoolName           string `json:"pool_name"`
	BaseAssetDecimals  uint8  `json:"base_asset_decimals"`
	QuoteAssetDecimals uint8  `json:"quote_asset_decimals"`
	TickSize           string `json:"tick_size"`
	LotSize            string `json:"lot_size"`
	MinSize            string `json:"min_size"`
}

// RESTSource fetches the pool registry from a JSON-RPC-style HTTP endpoint,
// using resty the same way the teacher's exchange.Client does: a base URL,
// bounded timeout, and retry on 5xx.
type RESTSource struct {
	http    *resty.Client
	limiter *ratelimit.TokenBucket
}

// NewRESTSource builds a pool-registry client against baseURL.
func NewRESTSource(baseURL string) *RESTSource {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})
	return &RESTSource{
		http:    client,
		limiter: ratelimit.New(poolsFetchBurst, poolsFetchRatePerSecond),
	}
}

// Pools fetches every known pool's static metadata. Tick/lot/min-size
// arrive as decimal strings on the wire (the chain's integer units can
// exceed a float64's safe precision) and are parsed with shopspring/decimal
// before being narrowed to the engine's int64 representation.
func (s *RESTSource) Pools(ctx context.Context) ([]domain.Pool, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var records []poolRecord
	resp, err := s.http.R().
		SetContext(ctx).
		SetResult(&records).
		Get("/pools")
	if err != nil {
		return nil, fmt.Errorf("fetch pool registry: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("fetch pool registry: status %d: %s", resp.StatusCode(), resp.String())
	}

	pools := make([]domain.Pool, 0, len(records))
	for _, r := range records {
		tickSize, err := parseDecimalInt(r.TickSize)
		if err != nil {
			return nil, fmt.Errorf("pool %s: tick_size: %w", r.PoolID, err)
		}
		lotSize, err := parseDecimalInt(r.LotSize)
		if err != nil {
			return nil, fmt.Errorf("pool %s: lot_size: %w", r.PoolID, err)
		}
		minSize, err := parseDecimalInt(r.MinSize)
		if err != nil {
			return nil, fmt.Errorf("pool %s: min_size: %w", r.PoolID, err)
		}
		pools = append(pools, domain.Pool{
			PoolID:             r.PoolID,
			PoolName:           r.PoolName,
			BaseAssetDecimals:  r.BaseAssetDecimals,
			QuoteAssetDecimals: r.QuoteAssetDecimals,
			TickSize:           tickSize,
			LotSize:            lotSize,
			MinSize:            minSize,
		})
	}
	return pools, nil
}

func parseDecimalInt(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.IntPart(), nil
}
