package persist

import (
	"sync"

	"polymarket-mm/internal/domain"
)

// WatermarkCache holds the last-known watermark per pipeline in memory, so
// hot-path readers (the replayer's target-checkpoint computation, metrics)
// never need a database round trip. The store row is always the source of
// truth; this cache is refreshed after every durable commit via Set, the
// same snapshot/set-position discipline the teacher's inventory tracker
// uses to keep an in-memory position in sync with its persisted form.
type WatermarkCache struct {
	mu    sync.RWMutex
	marks map[string]domain.Watermark
}

// NewWatermarkCache creates an empty cache.
func NewWatermarkCache() *WatermarkCache {
	return &WatermarkCache{marks: make(map[string]domain.Watermark)}
}

// Snapshot returns a copy of the current watermark for a pipeline.
func (c *WatermarkCache) Snapshot(pipeline string) (domain.Watermark, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	w, ok := c.marks[pipeline]
	return w, ok
}

// Set records a pipeline's watermark, overwriting any prior value.
func (c *WatermarkCache) Set(w domain.Watermark) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.marks[w.Pipeline] = w
}

// All returns a copy of every tracked watermark.
func (c *WatermarkCache) All() map[string]domain.Watermark {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]domain.Watermark, len(c.marks))
	for k, v := range c.marks {
		out[k] = v
	}
	return out
}

// Min returns the lowest CheckpointHiInclusive across all tracked
// pipelines — the replayer's target checkpoint (spec.md §4.3: "target =
// min(watermarks)").
func (c *WatermarkCache) Min() (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	first := true
	var min int64
	for _, w := range c.marks {
		if first || w.CheckpointHiInclusive < min {
			min = w.CheckpointHiInclusive
			first = false
		}
	}
	return min, !first
}
