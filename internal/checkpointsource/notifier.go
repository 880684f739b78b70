package checkpointsource

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	notifierReadTimeout  = 60 * time.Second
	notifierPingInterval = 20 * time.Second
)

// Notifier delivers "a new checkpoint is available" hints out-of-band, so
// Source.Run can wake up immediately instead of waiting out its
// not-yet-produced backoff. It is an optional accelerant: Run always keeps
// polling Fetcher directly and works correctly with a nil Notifier.
type Notifier interface {
	Notify() <-chan uint64
}

type checkpointNotice struct {
	Sequence uint64 `json:"sequence_number"`
}

// WSNotifier subscribes to a live checkpoint-stream endpoint over a
// WebSocket, adapted from the teacher's WSFeed.Run: the same 1s->30s
// exponential-backoff reconnect loop and read-deadline-triggered teardown,
// generalized from order-book deltas to bare checkpoint-produced notices.
type WSNotifier struct {
	url      string
	logger   *slog.Logger
	noticeCh chan uint64
}

// NewWSNotifier dials url lazily; call Run to start the reconnect loop.
func NewWSNotifier(url string, logger *slog.Logger) *WSNotifier {
	return &WSNotifier{
		url:      url,
		logger:   logger.With("component", "checkpointsource.notifier"),
		noticeCh: make(chan uint64, 64),
	}
}

// Notify returns the channel of newly produced checkpoint sequence numbers.
func (n *WSNotifier) Notify() <-chan uint64 { return n.noticeCh }

// Run maintains the subscription until ctx is cancelled, reconnecting with
// exponential backoff on any read or dial failure.
func (n *WSNotifier) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := n.connectAndRead(ctx); err != nil {
			n.logger.Warn("checkpoint notifier disconnected, reconnecting", "error", err, "backoff", backoff)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

func (n *WSNotifier) connectAndRead(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, n.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
		return err
	}

	stopPing := make(chan struct{})
	defer close(stopPing)
	go n.pingLoop(conn, stopPing)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(notifierReadTimeout))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var notice checkpointNotice
		if err := json.Unmarshal(payload, &notice); err != nil {
			n.logger.Warn("dropping malformed checkpoint notice", "error", err)
			continue
		}

		select {
		case n.noticeCh <- notice.Sequence:
		default:
			n.logger.Warn("notifier channel full, dropping notice", "sequence", notice.Sequence)
		}
	}
}

func (n *WSNotifier) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(notifierPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
