// Package metrics exposes the indexer's operational state as Prometheus
// gauges and counters: how many pools are currently invariant-invalid, how
// far the live checkpoint stream lags the chain tip, how many events
// failed to decode, and how many invariant transitions have fired.
//
// Adapted from the teacher's risk.Manager: a single goroutine owns all
// mutable state and is fed over a buffered, non-blocking channel from
// other goroutines, rather than guarding a shared map with a mutex
// directly from caller goroutines.
package metrics

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry wraps the Prometheus collectors the indexer reports, grounded
// on the original's server/src/metrics/mod.rs registry wrapper.
type Registry struct {
	registry *prometheus.Registry

	poolsInvalid         *prometheus.GaugeVec
	checkpointLag        prometheus.Gauge
	decodeFailuresTotal  *prometheus.CounterVec
	invariantTransitions *prometheus.CounterVec

	invalidCh    chan invalidEvent
	lagCh        chan int64
	decodeFailCh chan string
	transitionCh chan transitionEvent

	logger *slog.Logger
}

type invalidEvent struct {
	poolID  string
	invalid bool
}

type transitionEvent struct {
	poolID string
	kind   string
}

// New builds and registers all collectors against a fresh registry.
func New(logger *slog.Logger) *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		poolsInvalid: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pools_invalid",
			Help: "1 if the pool's order book currently violates an invariant, 0 otherwise.",
		}, []string{"pool_id"}),
		checkpointLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "checkpoint_lag",
			Help: "Difference between the chain's latest checkpoint and the live ingester's watermark.",
		}),
		decodeFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "decode_failures_total",
			Help: "Count of events that failed to decode, by event kind.",
		}, []string{"kind"}),
		invariantTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invariant_transitions_total",
			Help: "Count of BECAME_INVALID/BECAME_VALID transitions, by pool and transition kind.",
		}, []string{"pool_id", "kind"}),
		invalidCh:    make(chan invalidEvent, 256),
		lagCh:        make(chan int64, 16),
		decodeFailCh: make(chan string, 256),
		transitionCh: make(chan transitionEvent, 256),
		logger:       logger.With("component", "metrics"),
	}
	r.registry.MustRegister(r.poolsInvalid, r.checkpointLag, r.decodeFailuresTotal, r.invariantTransitions)
	return r
}

// Gatherer exposes the underlying registry for the HTTP handler.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.registry }

// Run drains every reporting channel until ctx is cancelled. Blocks.
func (r *Registry) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-r.invalidCh:
			v := 0.0
			if e.invalid {
				v = 1.0
			}
			r.poolsInvalid.WithLabelValues(e.poolID).Set(v)
		case lag := <-r.lagCh:
			r.checkpointLag.Set(float64(lag))
		case kind := <-r.decodeFailCh:
			r.decodeFailuresTotal.WithLabelValues(kind).Inc()
		case e := <-r.transitionCh:
			r.invariantTransitions.WithLabelValues(e.poolID, e.kind).Inc()
		}
	}
}

// SetPoolInvalid implements bookengine.InvariantObserver.
func (r *Registry) SetPoolInvalid(poolID string, invalid bool) {
	select {
	case r.invalidCh <- invalidEvent{poolID: poolID, invalid: invalid}:
	default:
		r.logger.Warn("metrics invalid-pool channel full, dropping update", "pool_id", poolID)
	}
}

// RecordTransition records a BECAME_INVALID/BECAME_VALID transition for a pool.
func (r *Registry) RecordTransition(poolID, kind string) {
	select {
	case r.transitionCh <- transitionEvent{poolID: poolID, kind: kind}:
	default:
		r.logger.Warn("metrics transition channel full, dropping update", "pool_id", poolID)
	}
}

// SetCheckpointLag reports how many checkpoints behind the chain tip the
// live ingester currently is.
func (r *Registry) SetCheckpointLag(lag int64) {
	select {
	case r.lagCh <- lag:
	default:
		r.logger.Warn("metrics checkpoint-lag channel full, dropping update")
	}
}

// RecordDecodeFailure increments the decode-failure counter for kind.
func (r *Registry) RecordDecodeFailure(kind string) {
	select {
	case r.decodeFailCh <- kind:
	default:
		r.logger.Warn("metrics decode-failure channel full, dropping update", "kind", kind)
	}
}
