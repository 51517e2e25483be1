package pagecache

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// poolMetrics holds the four counters the buffer pool manager exports:
// cache hits, cache misses, evictions of an occupied frame, and dirty
// write-backs triggered by either eviction or an explicit flush.
type poolMetrics struct {
	hits, misses, evictions, dirtyWritebacks metric.Int64Counter
}

func newPoolMetrics(meter metric.Meter) (*poolMetrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}
	hits, err := meter.Int64Counter("pagecache.hits", metric.WithDescription("Page table lookups satisfied without disk I/O."))
	if err != nil {
		return nil, err
	}
	misses, err := meter.Int64Counter("pagecache.misses", metric.WithDescription("Page table lookups that required a frame and a disk read."))
	if err != nil {
		return nil, err
	}
	evictions, err := meter.Int64Counter("pagecache.evictions", metric.WithDescription("Occupied frames chosen as victims by the replacer."))
	if err != nil {
		return nil, err
	}
	dirtyWritebacks, err := meter.Int64Counter("pagecache.dirty_writebacks", metric.WithDescription("WritePage calls issued on eviction or explicit flush of a dirty frame."))
	if err != nil {
		return nil, err
	}
	return &poolMetrics{hits: hits, misses: misses, evictions: evictions, dirtyWritebacks: dirtyWritebacks}, nil
}

func (m *poolMetrics) recordHit()      { m.hits.Add(context.Background(), 1) }
func (m *poolMetrics) recordMiss()     { m.misses.Add(context.Background(), 1) }
func (m *poolMetrics) recordEviction() { m.evictions.Add(context.Background(), 1) }
func (m *poolMetrics) recordWriteback() {
	m.dirtyWritebacks.Add(context.Background(), 1)
}
