package bootstrap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRESTSourcePoolsParsesDecimalFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pools" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode([]poolRecord{
			{
				PoolID: "0xabc", PoolName: "SUI_USDC",
				BaseAssetDecimals: 9, QuoteAssetDecimals: 6,
				TickSize: "1000", LotSize: "100000", MinSize: "1000000",
			},
		})
	}))
	defer srv.Close()

	src := NewRESTSource(srv.URL)
	pools, err := src.Pools(context.Background())
	if err != nil {
		t.Fatalf("Pools: %v", err)
	}
	if len(pools) != 1 {
		t.Fatalf("got %d pools, want 1", len(pools))
	}
	p := pools[0]
	if p.PoolID != "0xabc" || p.PoolName != "SUI_USDC" {
		t.Fatalf("unexpected pool identity: %+v", p)
	}
	if p.TickSize != 1000 || p.LotSize != 100000 || p.MinSize != 1000000 {
		t.Fatalf("unexpected parsed sizes: %+v", p)
	}
	if p.BaseAssetDecimals != 9 || p.QuoteAssetDecimals != 6 {
		t.Fatalf("unexpected decimals: %+v", p)
	}
}

func TestRESTSourcePoolsRejectsMalformedDecimal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]poolRecord{
			{PoolID: "0xabc", TickSize: "not-a-number", LotSize: "1", MinSize: "1"},
		})
	}))
	defer srv.Close()

	src := NewRESTSource(srv.URL)
	if _, err := src.Pools(context.Background()); err == nil {
		t.Fatal("expected error for malformed tick_size")
	}
}

func TestRESTSourcePoolsPropagatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := NewRESTSource(srv.URL)
	src.http.SetRetryCount(0)
	if _, err := src.Pools(context.Background()); err == nil {
		t.Fatal("expected error for 500 response")
	}
}
