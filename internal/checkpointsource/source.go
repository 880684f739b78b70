// Package checkpointsource streams checkpoints to the Live Ingester.
// Adapted from the teacher's WSFeed: the same exponential-backoff
// reconnect loop (1s -> 30s) and non-blocking buffered-channel dispatch,
// generalized from a persistent WebSocket subscription to a sequential
// poll-the-next-checkpoint loop against an HTTP endpoint.
package checkpointsource

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"polymarket-mm/internal/domain"
	"polymarket-mm/internal/ratelimit"
)

const (
	maxReconnectWait = 30 * time.Second

	// defaultCheckpointBuffer is used when New is called with a non-positive
	// buffer size; callers should otherwise pass config.RPCConfig.CheckpointBufferSize.
	defaultCheckpointBuffer = 5000
	pollTimeout             = 10 * time.Second

	// fetchBurst/fetchRatePerSecond bound how fast RESTFetcher polls the
	// full node, independent of the source's own not-found backoff — a
	// fast historical catch-up window must not be able to hammer the RPC
	// endpoint past what it allows per client.
	fetchBurst         = 20
	fetchRatePerSecond = 10
)

// Fetcher retrieves one checkpoint by sequence number, returning
// (nil, false, nil) if it isn't available yet (the indexer is at the chain
// tip and should back off before retrying).
type Fetcher interface {
	FetchCheckpoint(ctx context.Context, sequence uint64) (*domain.Checkpoint, bool, error)
}

// RESTFetcher fetches checkpoints from a JSON-RPC-style HTTP endpoint using
// resty, the teacher's HTTP client of choice, throttled by a token bucket
// so a tight catch-up loop can't outrun the node's own rate limit.
type RESTFetcher struct {
	client  *resty.Client
	baseURL string
	limiter *ratelimit.TokenBucket
}

// NewRESTFetcher creates a fetcher against baseURL, matching the retry
// policy the teacher's exchange.Client configures on its resty client.
func NewRESTFetcher(baseURL string) *RESTFetcher {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(pollTimeout).
		SetRetryCount(3).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second)
	return &RESTFetcher{
		client:  client,
		baseURL: baseURL,
		limiter: ratelimit.New(fetchBurst, fetchRatePerSecond),
	}
}

type checkpointEnvelope struct {
	Sequence     uint64 `json:"sequence_number"`
	TimestampMs  int64  `json:"timestamp_ms"`
	Transactions []struct {
		Digest           string   `json:"digest"`
		Sender           string   `json:"sender"`
		MoveCallPackage  string   `json:"move_call_package"`
		InputObjectTypes []string `json:"input_object_types"`
		Events           []struct {
			TypeAddress string `json:"type_address"`
			TypeModule  string `json:"type_module"`
			TypeName    string `json:"type_name"`
			Contents    []byte `json:"contents"`
		} `json:"events"`
	} `json:"transactions"`
}

// FetchCheckpoint issues GET /checkpoints/{sequence}. A 404 means the
// checkpoint hasn't been produced yet.
func (f *RESTFetcher) FetchCheckpoint(ctx context.Context, sequence uint64) (*domain.Checkpoint, bool, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, false, err
	}

	var env checkpointEnvelope
	resp, err := f.client.R().
		SetContext(ctx).
		SetResult(&env).
		Get(fmt.Sprintf("/checkpoints/%d", sequence))
	if err != nil {
		return nil, false, fmt.Errorf("fetch checkpoint %d: %w", sequence, err)
	}
	if resp.StatusCode() == 404 {
		return nil, false, nil
	}
	if resp.IsError() {
		return nil, false, fmt.Errorf("fetch checkpoint %d: status %d", sequence, resp.StatusCode())
	}

	cp := &domain.Checkpoint{Sequence: env.Sequence, TimestampMs: env.TimestampMs}
	for _, tx := range env.Transactions {
		t := domain.Transaction{
			Digest:           tx.Digest,
			Sender:           tx.Sender,
			MoveCallPackage:  tx.MoveCallPackage,
			InputObjectTypes: tx.InputObjectTypes,
		}
		for i, ev := range tx.Events {
			t.Events = append(t.Events, domain.RawEvent{
				Index:       i,
				TypeAddress: ev.TypeAddress,
				TypeModule:  ev.TypeModule,
				TypeName:    ev.TypeName,
				Contents:    ev.Contents,
			})
		}
		cp.Transactions = append(cp.Transactions, t)
	}
	return cp, true, nil
}

// Source polls Fetcher for successive checkpoints starting at NextSequence
// and delivers them over Checkpoints(). Run auto-reconnects on fetch errors
// with the teacher's exponential backoff (1s doubling to a 30s cap); a
// checkpoint-not-yet-produced result is not an error and backs off on its
// own short interval instead.
type Source struct {
	fetcher      Fetcher
	notifier     Notifier
	nextSequence uint64
	checkpointCh chan *domain.Checkpoint
	errCh        chan error
	logger       *slog.Logger
}

// New creates a checkpoint source starting at startSequence (inclusive).
// bufferSize bounds the Checkpoints() channel; a non-positive value falls
// back to defaultCheckpointBuffer.
func New(fetcher Fetcher, startSequence uint64, bufferSize int, logger *slog.Logger) *Source {
	if bufferSize <= 0 {
		bufferSize = defaultCheckpointBuffer
	}
	return &Source{
		fetcher:      fetcher,
		nextSequence: startSequence,
		checkpointCh: make(chan *domain.Checkpoint, bufferSize),
		errCh:        make(chan error, 16),
		logger:       logger.With("component", "checkpointsource"),
	}
}

// WithNotifier attaches a Notifier so Run can wake immediately on a
// produced-checkpoint notice instead of waiting out its poll backoff.
func (s *Source) WithNotifier(n Notifier) *Source {
	s.notifier = n
	return s
}

// Checkpoints returns the channel of successfully fetched checkpoints, in
// ascending sequence order.
func (s *Source) Checkpoints() <-chan *domain.Checkpoint { return s.checkpointCh }

// Errors returns the channel of non-fatal fetch errors, logged by the
// caller but never terminating the stream.
func (s *Source) Errors() <-chan error { return s.errCh }

// Run polls for checkpoints starting at NextSequence until ctx is
// cancelled. Blocks.
func (s *Source) Run(ctx context.Context) error {
	backoff := time.Second
	notFoundBackoff := 500 * time.Millisecond

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		cp, ok, err := s.fetcher.FetchCheckpoint(ctx, s.nextSequence)
		if err != nil {
			s.dispatchError(err)
			s.logger.Warn("checkpoint fetch failed, backing off", "sequence", s.nextSequence, "error", err, "backoff", backoff)
			if !s.sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff *= 2
			if backoff > maxReconnectWait {
				backoff = maxReconnectWait
			}
			continue
		}

		backoff = time.Second

		if !ok {
			if !s.waitForNextCheckpoint(ctx, notFoundBackoff) {
				return ctx.Err()
			}
			continue
		}

		select {
		case s.checkpointCh <- cp:
			s.nextSequence++
		default:
			s.logger.Warn("checkpoint channel full, dropping checkpoint", "sequence", cp.Sequence)
		}
	}
}

func (s *Source) dispatchError(err error) {
	select {
	case s.errCh <- err:
	default:
	}
}

func (s *Source) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// waitForNextCheckpoint blocks until d elapses or, if a Notifier is
// attached, until it reports a produced checkpoint at or beyond the one
// we're waiting on.
func (s *Source) waitForNextCheckpoint(ctx context.Context, d time.Duration) bool {
	if s.notifier == nil {
		return s.sleep(ctx, d)
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	case <-s.notifier.Notify():
		return true
	}
}
