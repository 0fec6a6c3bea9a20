package propstore

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the
// metrics/prometheus package provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordInsert is called after each InsertProperty.
	RecordInsert(duration time.Duration, err error)

	// RecordRead is called after each ReadPropertyAt, History and ValueAt.
	RecordRead(duration time.Duration, err error)

	// RecordLoad is called when a partition becomes resident. fromFile is
	// false for partitions initialized empty.
	RecordLoad(fromFile bool, duration time.Duration, err error)

	// RecordFlush is called after each partition save.
	RecordFlush(duration time.Duration, err error)

	// RecordEviction is called when a partition is evicted from the cache.
	RecordEviction()
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordInsert(time.Duration, error)     {}
func (NoopMetricsCollector) RecordRead(time.Duration, error)       {}
func (NoopMetricsCollector) RecordLoad(bool, time.Duration, error) {}
func (NoopMetricsCollector) RecordFlush(time.Duration, error)      {}
func (NoopMetricsCollector) RecordEviction()                       {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	InsertCount      atomic.Int64
	InsertErrors     atomic.Int64
	InsertTotalNanos atomic.Int64
	ReadCount        atomic.Int64
	ReadErrors       atomic.Int64
	ReadTotalNanos   atomic.Int64
	LoadCount        atomic.Int64
	LoadFromFile     atomic.Int64
	LoadErrors       atomic.Int64
	FlushCount       atomic.Int64
	FlushErrors      atomic.Int64
	EvictionCount    atomic.Int64
}

// RecordInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInsert(duration time.Duration, err error) {
	b.InsertCount.Add(1)
	b.InsertTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.InsertErrors.Add(1)
	}
}

// RecordRead implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRead(duration time.Duration, err error) {
	b.ReadCount.Add(1)
	b.ReadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ReadErrors.Add(1)
	}
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(fromFile bool, _ time.Duration, err error) {
	if err != nil {
		b.LoadErrors.Add(1)
		return
	}
	b.LoadCount.Add(1)
	if fromFile {
		b.LoadFromFile.Add(1)
	}
}

// RecordFlush implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFlush(_ time.Duration, err error) {
	b.FlushCount.Add(1)
	if err != nil {
		b.FlushErrors.Add(1)
	}
}

// RecordEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEviction() {
	b.EvictionCount.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		InsertCount:    b.InsertCount.Load(),
		InsertErrors:   b.InsertErrors.Load(),
		InsertAvgNanos: avg(b.InsertTotalNanos.Load(), b.InsertCount.Load()),
		ReadCount:      b.ReadCount.Load(),
		ReadErrors:     b.ReadErrors.Load(),
		ReadAvgNanos:   avg(b.ReadTotalNanos.Load(), b.ReadCount.Load()),
		LoadCount:      b.LoadCount.Load(),
		LoadFromFile:   b.LoadFromFile.Load(),
		LoadErrors:     b.LoadErrors.Load(),
		FlushCount:     b.FlushCount.Load(),
		FlushErrors:    b.FlushErrors.Load(),
		EvictionCount:  b.EvictionCount.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	InsertCount    int64
	InsertErrors   int64
	InsertAvgNanos int64
	ReadCount      int64
	ReadErrors     int64
	ReadAvgNanos   int64
	LoadCount      int64
	LoadFromFile   int64
	LoadErrors     int64
	FlushCount     int64
	FlushErrors    int64
	EvictionCount  int64
}

// cacheObserver forwards cache events to a MetricsCollector.
type cacheObserver struct {
	m MetricsCollector
}

func (o cacheObserver) PartitionLoaded(_ Key, fromFile bool, d time.Duration, err error) {
	o.m.RecordLoad(fromFile, d, err)
}

func (o cacheObserver) PartitionEvicted(Key) {
	o.m.RecordEviction()
}

func (o cacheObserver) PartitionFlushed(_ Key, d time.Duration, err error) {
	o.m.RecordFlush(d, err)
}
