package propstore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/propstore/blobstore"
	"github.com/hupe1980/propstore/internal/cache"
	"github.com/hupe1980/propstore/internal/column"
	"github.com/hupe1980/propstore/internal/partition"
	"github.com/hupe1980/propstore/resource"
	"github.com/hupe1980/propstore/schema"
)

// NoRow marks an empty history: pass it as the head of an entity without rows.
const NoRow = column.NoRow

// Key identifies one property of one graph partition.
type Key = cache.Key

// Property is one stored row.
type Property struct {
	Row          int32
	LocalID      int64
	Value        schema.Value
	CreationTime int64
	// PrevRow is the next older row of the same entity, or NoRow.
	PrevRow int32
}

func propertyOf(row int32, e column.Entry) Property {
	return Property{
		Row:          row,
		LocalID:      e.LocalID,
		Value:        e.Value,
		CreationTime: e.CreationTime,
		PrevRow:      e.PrevRow,
	}
}

// Stats is a snapshot of store counters.
type Stats struct {
	CacheHits       int64
	CacheMisses     int64
	PartitionLoads  int64
	Evictions       int64
	Resident        int
	MemoryUsedBytes int64
}

// Store is the property store of one graph.
type Store struct {
	blobs   blobstore.BlobStore
	topo    Topology
	opts    options
	logger  *Logger
	metrics MetricsCollector
	io      *resource.Controller
	cache   *cache.Cache
	closed  atomic.Bool
}

// Open creates a store over blobs. Nothing is read until a partition is first used.
func Open(blobs blobstore.BlobStore, topo Topology, optFns ...Option) (*Store, error) {
	if blobs == nil {
		return nil, errors.New("propstore: blob store is required")
	}
	if topo == nil {
		return nil, errors.New("propstore: topology is required")
	}

	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Store{
		blobs:   blobs,
		topo:    topo,
		opts:    opts,
		logger:  opts.logger,
		metrics: opts.metricsCollector,
	}
	if opts.ioLimit > 0 {
		s.io = resource.NewController(resource.Config{IOLimitBytesPerSec: opts.ioLimit})
	}

	c, err := cache.New(s.newPartition, cache.Options{
		Capacity:         opts.cacheCapacity,
		WaitForRelease:   opts.waitForRelease,
		FlushConcurrency: opts.flushConcurrency,
		Logger:           opts.logger.Logger,
		Observer:         cacheObserver{m: opts.metricsCollector},
	})
	if err != nil {
		return nil, err
	}
	s.cache = c

	s.logger.Info("property store opened",
		"partition_size", opts.partitionSize,
		"cache_capacity", opts.cacheCapacity,
		"compression", opts.compression.String(),
	)
	return s, nil
}

func (s *Store) newPartition(key Key) (*partition.Partition, error) {
	desc, err := s.topo.Schema(key.PropertyID)
	if err != nil {
		return nil, err
	}
	cfg := partition.Config{
		PartitionID: key.PartitionID,
		PropertyID:  key.PropertyID,
		Descriptor:  desc,
		Capacity:    s.opts.partitionSize,
		Name:        s.topo.PropertyFile(key.PartitionID, key.PropertyID),
		Store:       s.blobs,
		Allocator:   s.topo.Allocator(),
		Compression: s.opts.compression,
		Logger:      s.logger.Logger,
	}
	if s.io != nil {
		cfg.IOLimiter = s.io
	}
	return partition.New(cfg)
}

// with pins the partition for key while fn runs.
func (s *Store) with(ctx context.Context, key Key, fn func(p *partition.Partition) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	h, err := s.cache.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer h.Release()
	return fn(h.Partition())
}

// InsertProperty records value for the entity localID at creationTime and
// returns the new row. headRow is the entity's current head, or NoRow.
//
// The returned row is the entity's new head unless a row newer than
// creationTime already exists; in that case the head is unchanged.
func (s *Store) InsertProperty(ctx context.Context, key Key, localID int64, headRow int32, creationTime int64, v schema.Value) (int32, error) {
	start := time.Now()
	row := NoRow
	err := s.with(ctx, key, func(p *partition.Partition) error {
		var err error
		row, err = p.InsertProperty(headRow, creationTime, localID, v)
		return err
	})
	s.metrics.RecordInsert(time.Since(start), err)
	s.logger.LogInsert(ctx, key, localID, row, err)
	return row, err
}

// ReadPropertyAt returns the content of row.
func (s *Store) ReadPropertyAt(ctx context.Context, key Key, row int32) (Property, error) {
	start := time.Now()
	var prop Property
	err := s.with(ctx, key, func(p *partition.Partition) error {
		e, err := p.Entry(row)
		if err != nil {
			return err
		}
		prop = propertyOf(row, e)
		return nil
	})
	s.metrics.RecordRead(time.Since(start), err)
	return prop, err
}

// History returns the entity history starting at head, newest first.
func (s *Store) History(ctx context.Context, key Key, head int32) ([]Property, error) {
	start := time.Now()
	var out []Property
	err := s.with(ctx, key, func(p *partition.Partition) error {
		versions, err := p.Chain(head)
		if err != nil {
			return err
		}
		out = make([]Property, len(versions))
		for i, v := range versions {
			out[i] = propertyOf(v.Row, v.Entry)
		}
		return nil
	})
	s.metrics.RecordRead(time.Since(start), err)
	return out, err
}

// ValueAt returns the version of the entity that was current at time t.
// It reports false when the entity had no value at t.
func (s *Store) ValueAt(ctx context.Context, key Key, head int32, t int64) (Property, bool, error) {
	start := time.Now()
	var (
		prop  Property
		found bool
	)
	err := s.with(ctx, key, func(p *partition.Partition) error {
		v, ok, err := p.ValueAt(head, t)
		if err != nil {
			return err
		}
		prop, found = propertyOf(v.Row, v.Entry), ok
		return nil
	})
	s.metrics.RecordRead(time.Since(start), err)
	return prop, found, err
}

// Entities returns the local ids that have at least one row in the partition.
func (s *Store) Entities(ctx context.Context, key Key) (*roaring64.Bitmap, error) {
	var bm *roaring64.Bitmap
	err := s.with(ctx, key, func(p *partition.Partition) error {
		bm = p.Entities()
		return nil
	})
	return bm, err
}

// FlushAll saves every dirty resident partition. Failures do not stop the
// flush of other partitions; the returned error joins them.
func (s *Store) FlushAll(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	err := s.cache.FlushAll(ctx)
	s.logger.LogFlush(ctx, s.cache.Stats().Resident, err)
	return err
}

// ClosePartition saves and releases one partition. It fails with
// ErrPartitionPinned while another operation is using it.
func (s *Store) ClosePartition(ctx context.Context, key Key) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.cache.Close(ctx, key)
}

// Close flushes and releases every partition. Operations after Close fail
// with ErrClosed. If some partitions could not be saved, the error reports
// them and Close may be called again to retry.
func (s *Store) Close(ctx context.Context) error {
	s.closed.Store(true)
	if err := s.cache.CloseAll(ctx); err != nil {
		s.logger.ErrorContext(ctx, "property store close incomplete", "error", err)
		return fmt.Errorf("propstore: close: %w", err)
	}
	s.logger.InfoContext(ctx, "property store closed")
	return nil
}

// Stats returns a snapshot of cache and memory counters.
func (s *Store) Stats() Stats {
	cs := s.cache.Stats()
	st := Stats{
		CacheHits:      cs.Hits,
		CacheMisses:    cs.Misses,
		PartitionLoads: cs.Loads,
		Evictions:      cs.Evictions,
		Resident:       cs.Resident,
	}
	if ctrl, ok := s.topo.Allocator().(*resource.Controller); ok {
		st.MemoryUsedBytes = ctrl.MemoryUsage()
	}
	return st
}
