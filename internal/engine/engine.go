// Package engine is the central orchestrator of the DeepBook indexer.
//
// It wires together every subsystem:
//
//  1. bootstrap + poolregistry discover and keep refreshing the tracked
//     pool set from the remote store.
//  2. store + persist durably commit decoded events and track watermarks.
//  3. replay catches every pool's book up to the lowest durable watermark
//     before the live stream starts applying anything.
//  4. checkpointsource streams new checkpoints; decode + ingest decode and
//     apply them to bookengine in commit order.
//  5. publish mirrors book/trade state to Redis; metrics + httpserver
//     expose operational state.
//
// Lifecycle: New() -> Start() -> [runs until SIGINT] -> Stop()
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"polymarket-mm/internal/bookengine"
	"polymarket-mm/internal/bootstrap"
	"polymarket-mm/internal/checkpointsource"
	"polymarket-mm/internal/config"
	"polymarket-mm/internal/decode"
	"polymarket-mm/internal/domain"
	"polymarket-mm/internal/httpserver"
	"polymarket-mm/internal/ingest"
	"polymarket-mm/internal/metrics"
	"polymarket-mm/internal/persist"
	"polymarket-mm/internal/poolregistry"
	"polymarket-mm/internal/publish"
	"polymarket-mm/internal/replay"
	"polymarket-mm/internal/store"
)

// Engine owns every long-running subsystem and their lifecycle.
type Engine struct {
	cfg    config.Config
	logger *slog.Logger

	store       *store.Store
	redisClient *redis.Client
	publisher   *publish.Publisher
	metrics     *metrics.Registry
	bookEngine  *bookengine.Engine

	orderUpdatePipeline *persist.Pipeline
	orderFillPipeline   *persist.Pipeline
	watermarks          *persist.WatermarkCache

	fetcher  *checkpointsource.RESTFetcher
	source   *checkpointsource.Source
	notifier *checkpointsource.WSNotifier

	decoder   *decode.Decoder
	committer *ingest.Committer
	stream    *ingest.Stream

	replayer *replay.Replayer

	bootstrapSrc *bootstrap.RESTSource
	registry     *poolregistry.Registry

	http *httpserver.Server

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires every subsystem but starts nothing. Opens the database
// connection eagerly so a misconfigured DSN fails fast at startup instead
// of on the first commit.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Engine, error) {
	db, err := store.Open(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr(cfg.Redis.URL)})
	publisher := publish.New(redisClient, logger)
	metricsRegistry := metrics.New(logger)
	bookEngine := bookengine.New(publisher, metricsRegistry, logger)

	orderUpdatePipeline := persist.New(domain.OrderUpdatePipeline, db, logger)
	orderFillPipeline := persist.New(domain.OrderFillPipeline, db, logger)
	watermarks := persist.NewWatermarkCache()

	fetcher := checkpointsource.NewRESTFetcher(cfg.RPC.URL)
	source := checkpointsource.New(fetcher, cfg.FirstCheckpoint, cfg.RPC.CheckpointBufferSize, logger)
	var notifier *checkpointsource.WSNotifier
	if cfg.RPC.WSURL != "" {
		notifier = checkpointsource.NewWSNotifier(cfg.RPC.WSURL, logger)
		source = source.WithNotifier(notifier)
	}

	decoder := decode.New(decode.EnvMainnet, &decode.BCSCodec{}, logger)
	committer := ingest.NewCommitter(bookEngine, nil, logger)
	stream := ingest.NewStream(decoder, committer, orderUpdatePipeline, orderFillPipeline, watermarks, logger)

	replayer := replay.New(db, committer, logger)

	bootstrapSrc := bootstrap.NewRESTSource(cfg.RemoteStore.URL)
	registry := poolregistry.New(bootstrapSrc, db, cfg.RemoteStore.RefreshInterval, logger)

	e := &Engine{
		cfg:                 cfg,
		logger:              logger.With("component", "engine"),
		store:               db,
		redisClient:         redisClient,
		publisher:           publisher,
		metrics:             metricsRegistry,
		bookEngine:          bookEngine,
		orderUpdatePipeline: orderUpdatePipeline,
		orderFillPipeline:   orderFillPipeline,
		watermarks:          watermarks,
		fetcher:             fetcher,
		source:              source,
		notifier:            notifier,
		decoder:             decoder,
		committer:           committer,
		stream:              stream,
		replayer:            replayer,
		bootstrapSrc:        bootstrapSrc,
		registry:            registry,
	}
	e.http = httpserver.New(cfg.Metrics.Address, metricsRegistry.Gatherer(), e, logger)
	return e, nil
}

func redisAddr(url string) string {
	// go-redis's Options.Addr wants host:port, not a redis:// URL; the
	// teacher's config always carries a bare URL for its dependencies, so
	// this trims the scheme the same way its viper config expects a raw
	// endpoint for everything else.
	const scheme = "redis://"
	if len(url) > len(scheme) && url[:len(scheme)] == scheme {
		return url[len(scheme):]
	}
	return url
}

// Start runs bootstrap, catch-up replay, and then every long-running
// subsystem in its own goroutine. Returns once catch-up has completed and
// all subsystems are running; does not block.
func (e *Engine) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.runCtx = runCtx
	e.cancel = cancel

	if err := e.registry.RunOnce(runCtx); err != nil {
		cancel()
		return fmt.Errorf("initial pool bootstrap: %w", err)
	}

	pools := e.registry.Current()
	for _, p := range pools {
		e.bookEngine.EnsurePool(p, int64(e.cfg.FirstCheckpoint))
	}

	if err := e.loadWatermarks(runCtx); err != nil {
		cancel()
		return fmt.Errorf("load watermarks: %w", err)
	}

	if err := e.catchUp(runCtx, pools); err != nil {
		cancel()
		return fmt.Errorf("historical catch-up: %w", err)
	}

	if err := e.publisher.ClearAll(runCtx); err != nil {
		e.logger.Warn("clear stale cache keys failed", "error", err)
	}

	e.goRun("metrics", func(ctx context.Context) error { e.metrics.Run(ctx); return nil })
	e.goRun("pool-registry", func(ctx context.Context) error { e.registry.Run(ctx); return nil })
	e.goRun("checkpoint-source", e.source.Run)
	if e.notifier != nil {
		e.goRun("checkpoint-notifier", e.notifier.Run)
	}
	e.goRun("ingest-stream", func(ctx context.Context) error { return e.stream.Run(ctx, e.source) })
	e.goRun("http-server", func(ctx context.Context) error { return e.http.Start() })

	e.logger.Info("engine started", "pools", len(pools), "first_checkpoint", e.cfg.FirstCheckpoint)
	return nil
}

// CatchUpOnly runs bootstrap and historical replay and returns, without
// starting the live checkpoint stream or any other long-running subsystem.
// Used by the catch-up CLI command to warm a fresh deployment's book state.
func (e *Engine) CatchUpOnly(ctx context.Context) error {
	if err := e.registry.RunOnce(ctx); err != nil {
		return fmt.Errorf("initial pool bootstrap: %w", err)
	}

	pools := e.registry.Current()
	for _, p := range pools {
		e.bookEngine.EnsurePool(p, int64(e.cfg.FirstCheckpoint))
	}

	if err := e.loadWatermarks(ctx); err != nil {
		return fmt.Errorf("load watermarks: %w", err)
	}

	return e.catchUp(ctx, pools)
}

// loadWatermarks seeds the in-memory watermark cache from both pipelines'
// durable rows, so catchUp and Watermarks have something to read before the
// live stream has committed anything this run.
func (e *Engine) loadWatermarks(ctx context.Context) error {
	for _, p := range []*persist.Pipeline{e.orderUpdatePipeline, e.orderFillPipeline} {
		w, found, err := p.Watermark(ctx)
		if err != nil {
			return err
		}
		if found {
			e.watermarks.Set(w)
		}
	}
	return nil
}

// catchUp computes (start, target] across every known pool and replays it.
// start is the lowest InitialCheckpoint across pools; target is the lowest
// watermark across both persist pipelines (spec.md §4.3: "target =
// min(watermarks)"), since replaying past either one would just reapply
// what the live stream is about to deliver anyway.
func (e *Engine) catchUp(ctx context.Context, pools []domain.Pool) error {
	start, ok := e.bookEngine.InitialCheckpoint()
	if !ok {
		return nil
	}

	target, found := e.watermarks.Min()
	if !found {
		return nil
	}

	poolIDs := make([]string, 0, len(pools))
	for _, p := range pools {
		poolIDs = append(poolIDs, p.PoolID)
	}

	return e.replayer.CatchUp(ctx, poolIDs, start, target)
}

// goRun starts fn in its own tracked goroutine, logging its exit.
func (e *Engine) goRun(name string, fn func(ctx context.Context) error) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := fn(e.runCtx); err != nil && err != context.Canceled {
			e.logger.Error("subsystem exited", "subsystem", name, "error", err)
		}
	}()
}

// Stop cancels every subsystem and waits for them to return.
func (e *Engine) Stop(ctx context.Context) {
	if e.cancel != nil {
		e.cancel()
	}
	if err := e.http.Stop(ctx); err != nil {
		e.logger.Error("http server shutdown failed", "error", err)
	}
	e.wg.Wait()

	if err := e.store.Close(); err != nil {
		e.logger.Error("store close failed", "error", err)
	}
	if err := e.redisClient.Close(); err != nil {
		e.logger.Error("redis close failed", "error", err)
	}
}

// Watermarks implements httpserver.HealthChecker: one entry per persist
// pipeline reporting how far it has durably committed.
func (e *Engine) Watermarks() map[string]int64 {
	out := make(map[string]int64, len(e.watermarks.All()))
	for pipeline, w := range e.watermarks.All() {
		out[pipeline] = w.CheckpointHiInclusive
	}
	return out
}
