package publish

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"polymarket-mm/internal/bookengine"
	"polymarket-mm/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

type fakeRedis struct {
	sets     map[string][]byte
	lists    map[string][][]byte
	trimmed  map[string][2]int64
	scanKeys []string
	deleted  []string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{sets: map[string][]byte{}, lists: map[string][][]byte{}, trimmed: map[string][2]int64{}}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	b, ok := value.([]byte)
	if !ok {
		b, _ = json.Marshal(value)
	}
	f.sets[key] = b
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) LPush(ctx context.Context, key string, values ...any) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	for _, v := range values {
		b, ok := v.([]byte)
		if !ok {
			b, _ = json.Marshal(v)
		}
		f.lists[key] = append([][]byte{b}, f.lists[key]...)
	}
	cmd.SetVal(int64(len(f.lists[key])))
	return cmd
}

func (f *fakeRedis) LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	f.trimmed[key] = [2]int64{start, stop}
	if int64(len(f.lists[key])) > stop+1 {
		f.lists[key] = f.lists[key][:stop+1]
	}
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	cmd := redis.NewScanCmd(ctx, nil)
	cmd.SetVal(f.scanKeys, 0)
	return cmd
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	f.deleted = append(f.deleted, keys...)
	cmd.SetVal(int64(len(keys)))
	return cmd
}

func TestPublishBookWritesDecimalScaledBestFirst(t *testing.T) {
	client := newFakeRedis()
	p := New(client, testLogger())

	pool := domain.Pool{PoolID: "pool-1", PoolName: "SUI_USDC", BaseAssetDecimals: 6, QuoteAssetDecimals: 9}
	book := bookengine.NewBook(pool, 0)
	book.Bids[1_000_000_000_000] = 2_000_000
	book.Bids[999_000_000_000] = 1_000_000
	book.Asks[1_001_000_000_000] = 500_000

	p.PublishBook(context.Background(), pool, book)

	raw, ok := client.sets[bookKey("SUI_USDC")]
	if !ok {
		t.Fatal("expected orderbook key to be set")
	}
	var got OrderbookReadable
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Bids) != 2 || got.Bids[0].Price != 1.0 {
		t.Fatalf("bids not best-first: %+v", got.Bids)
	}
	if len(got.Asks) != 1 || got.Asks[0].Size != 0.5 {
		t.Fatalf("unexpected asks: %+v", got.Asks)
	}
}

func TestPublishBookOmitsZeroAndNegativeLevels(t *testing.T) {
	client := newFakeRedis()
	p := New(client, testLogger())
	pool := domain.Pool{PoolID: "pool-1", PoolName: "SUI_USDC", BaseAssetDecimals: 6, QuoteAssetDecimals: 9}
	book := bookengine.NewBook(pool, 0)
	book.Bids[1000] = 0
	book.Asks[1010] = -5

	p.PublishBook(context.Background(), pool, book)

	raw := client.sets[bookKey("SUI_USDC")]
	var got OrderbookReadable
	_ = json.Unmarshal(raw, &got)
	if len(got.Bids) != 0 || len(got.Asks) != 0 {
		t.Fatalf("zero/negative levels should be omitted from the readable view: %+v", got)
	}
}

func TestClearAllDeletesScannedKeys(t *testing.T) {
	client := newFakeRedis()
	client.scanKeys = []string{"orderbook::SUI_USDC"}
	p := New(client, testLogger())

	if err := p.ClearAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.deleted) == 0 {
		t.Fatal("expected keys to be deleted")
	}
}
