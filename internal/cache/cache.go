package cache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/propstore/internal/partition"
)

var (
	// ErrPartitionPinned is returned when closing a partition that has live handles.
	ErrPartitionPinned = errors.New("partition is pinned")

	// ErrClosed is returned after CloseAll.
	ErrClosed = errors.New("partition cache is closed")
)

// Key identifies one property of one partition.
type Key struct {
	PartitionID uint32
	PropertyID  uint32
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d", k.PartitionID, k.PropertyID)
}

// Factory builds an unloaded partition for key.
type Factory func(key Key) (*partition.Partition, error)

// Observer receives cache events. Implementations must be fast and must not
// call back into the cache.
type Observer interface {
	PartitionLoaded(key Key, fromFile bool, d time.Duration, err error)
	PartitionEvicted(key Key)
	PartitionFlushed(key Key, d time.Duration, err error)
}

// Options configures a Cache.
type Options struct {
	// Capacity is the maximum number of resident partitions.
	Capacity int
	// WaitForRelease makes Acquire block instead of failing when every
	// resident partition is pinned.
	WaitForRelease bool
	// FlushConcurrency bounds parallel saves in FlushAll. Default: 4.
	FlushConcurrency int
	Logger           *slog.Logger
	Observer         Observer
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Loads     int64
	Evictions int64
	Resident  int
}

type entry struct {
	key   Key
	part  *partition.Partition
	pins  int
	elem  *list.Element
	ready chan struct{}
	err   error

	// evicting is set while the victim is saved outside the cache lock.
	evicting bool
}

// Cache is an LRU set of resident partitions.
type Cache struct {
	opts    Options
	factory Factory
	logger  *slog.Logger

	mu       sync.Mutex
	entries  map[Key]*entry
	lru      *list.List // front = most recently used
	released chan struct{}
	closed   bool
	evicting int

	hits      atomic.Int64
	misses    atomic.Int64
	loads     atomic.Int64
	evictions atomic.Int64
}

// New creates a cache that builds partitions with factory.
func New(factory Factory, opts Options) (*Cache, error) {
	if factory == nil {
		return nil, errors.New("cache: factory is required")
	}
	if opts.Capacity <= 0 {
		return nil, fmt.Errorf("cache: invalid capacity %d", opts.Capacity)
	}
	if opts.FlushConcurrency <= 0 {
		opts.FlushConcurrency = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		opts:     opts,
		factory:  factory,
		logger:   logger,
		entries:  make(map[Key]*entry),
		lru:      list.New(),
		released: make(chan struct{}),
	}, nil
}

// Handle pins a resident partition until Release.
type Handle struct {
	c        *Cache
	e        *entry
	released atomic.Bool
}

// Partition returns the pinned partition.
func (h *Handle) Partition() *partition.Partition { return h.e.part }

// Key returns the key of the pinned partition.
func (h *Handle) Key() Key { return h.e.key }

// Release unpins the partition. It never evicts and is safe to call twice.
func (h *Handle) Release() {
	if h.released.Swap(true) {
		return
	}
	h.c.mu.Lock()
	h.c.unpinLocked(h.e)
	h.c.mu.Unlock()
}

func (c *Cache) unpinLocked(e *entry) {
	e.pins--
	if e.pins == 0 {
		c.notifyLocked()
	}
}

// notifyLocked wakes every Acquire waiting for an evictable slot.
func (c *Cache) notifyLocked() {
	close(c.released)
	c.released = make(chan struct{})
}

// Acquire returns a pinned handle to the partition for key, loading it from
// its file or initializing it empty on a miss. The partition becomes the most
// recently used one.
func (c *Cache) Acquire(ctx context.Context, key Key) (*Handle, error) {
	c.mu.Lock()
	for {
		if c.closed {
			c.mu.Unlock()
			return nil, ErrClosed
		}

		if e, ok := c.entries[key]; ok {
			e.pins++
			c.lru.MoveToFront(e.elem)
			c.mu.Unlock()
			return c.awaitReady(ctx, e)
		}

		if len(c.entries) < c.opts.Capacity {
			break
		}
		if err := c.makeRoomLocked(ctx, key); err != nil {
			c.mu.Unlock()
			return nil, err
		}
	}

	e := &entry{key: key, pins: 1, ready: make(chan struct{})}
	e.elem = c.lru.PushFront(e)
	c.entries[key] = e
	c.mu.Unlock()

	c.misses.Add(1)
	part, err := c.loadWithinBudget(ctx, key)

	c.mu.Lock()
	if err != nil {
		e.err = err
		c.removeLocked(e)
	} else {
		e.part = part
	}
	close(e.ready)
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &Handle{c: c, e: e}, nil
}

func (c *Cache) awaitReady(ctx context.Context, e *entry) (*Handle, error) {
	select {
	case <-e.ready:
	case <-ctx.Done():
		c.mu.Lock()
		c.unpinLocked(e)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
	if e.err != nil {
		c.mu.Lock()
		c.unpinLocked(e)
		c.mu.Unlock()
		return nil, e.err
	}
	c.hits.Add(1)
	return &Handle{c: c, e: e}, nil
}

func (c *Cache) load(ctx context.Context, key Key) (*partition.Partition, error) {
	start := time.Now()
	part, err := c.factory(key)
	if err != nil {
		return nil, err
	}

	fromFile, err := part.LoadFromFile(ctx)
	if err == nil && !fromFile {
		err = part.Initialize(ctx)
	}
	if c.opts.Observer != nil {
		c.opts.Observer.PartitionLoaded(key, fromFile, time.Since(start), err)
	}
	if err != nil {
		if !errors.Is(err, partition.ErrResourceExhausted) {
			c.logger.Warn("partition load failed", "key", key.String(), "error", err)
		}
		return nil, err
	}

	c.loads.Add(1)
	c.logger.Debug("partition resident",
		"key", key.String(),
		"from_file", fromFile,
		"rows", part.MaxRow(),
		"duration", time.Since(start),
	)
	return part, nil
}

// makeRoomLocked frees one slot for key by evicting the least recently used
// unpinned partition, or waits for a release. It is called and returns with
// mu held; a nil error means the caller should re-check the cache.
func (c *Cache) makeRoomLocked(ctx context.Context, key Key) error {
	victim := c.victimLocked()
	if victim == nil {
		if c.evicting == 0 && !c.opts.WaitForRelease {
			return fmt.Errorf("acquire %s: %w: all %d resident partitions are pinned", key, partition.ErrResourceExhausted, len(c.entries))
		}
		return c.waitLocked(ctx)
	}
	if err := c.evictLocked(ctx, victim); err != nil {
		return fmt.Errorf("acquire %s: %w", key, err)
	}
	return nil
}

// waitLocked blocks until a partition is released or removed.
func (c *Cache) waitLocked(ctx context.Context) error {
	wait := c.released
	c.mu.Unlock()
	defer c.mu.Lock()
	select {
	case <-wait:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// loadWithinBudget loads key. When the memory budget refuses the load,
// unpinned partitions are evicted one at a time until it fits or no victim
// is left.
func (c *Cache) loadWithinBudget(ctx context.Context, key Key) (*partition.Partition, error) {
	for {
		part, err := c.load(ctx, key)
		if err == nil || !errors.Is(err, partition.ErrResourceExhausted) {
			return part, err
		}

		c.mu.Lock()
		victim := c.victimLocked()
		if victim == nil {
			if c.evicting == 0 {
				c.mu.Unlock()
				return nil, err
			}
			werr := c.waitLocked(ctx)
			c.mu.Unlock()
			if werr != nil {
				return nil, werr
			}
			continue
		}
		c.logger.Debug("memory budget exhausted, evicting", "key", key.String(), "victim", victim.key.String())
		eerr := c.evictLocked(ctx, victim)
		c.mu.Unlock()
		if eerr != nil {
			return nil, fmt.Errorf("load %s: %w", key, eerr)
		}
	}
}

// victimLocked returns the least recently used unpinned resident entry.
func (c *Cache) victimLocked() *entry {
	for el := c.lru.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*entry)
		if e.pins == 0 && e.part != nil && !e.evicting {
			return e
		}
	}
	return nil
}

// evictLocked saves a dirty victim, closes it and drops it. The save runs
// without mu so hits and releases proceed meanwhile. If the save fails the
// victim stays resident. A victim pinned or modified during the save stays
// resident too and evictLocked returns nil so the caller re-checks.
func (c *Cache) evictLocked(ctx context.Context, e *entry) error {
	e.evicting = true
	c.evicting++
	c.mu.Unlock()
	err := c.flushEntry(ctx, e)
	c.mu.Lock()
	e.evicting = false
	c.evicting--

	if err != nil {
		c.notifyLocked()
		c.logger.Error("eviction aborted", "key", e.key.String(), "error", err)
		return fmt.Errorf("evict %s: %w", e.key, err)
	}
	if cur, ok := c.entries[e.key]; !ok || cur != e {
		// closed while saving
		c.notifyLocked()
		return nil
	}
	if e.pins > 0 || e.part.Dirty() {
		c.notifyLocked()
		return nil
	}

	_ = e.part.Close()
	c.removeLocked(e)
	c.evictions.Add(1)
	if c.opts.Observer != nil {
		c.opts.Observer.PartitionEvicted(e.key)
	}
	c.logger.Debug("partition evicted", "key", e.key.String())
	return nil
}

func (c *Cache) removeLocked(e *entry) {
	if cur, ok := c.entries[e.key]; ok && cur == e {
		delete(c.entries, e.key)
		c.lru.Remove(e.elem)
		c.notifyLocked()
	}
}

func (c *Cache) flushEntry(ctx context.Context, e *entry) error {
	if !e.part.Dirty() {
		return nil
	}
	start := time.Now()
	err := e.part.SaveToFile(ctx)
	if c.opts.Observer != nil {
		c.opts.Observer.PartitionFlushed(e.key, time.Since(start), err)
	}
	return err
}

// residentLocked returns the loaded entries in MRU order.
func (c *Cache) residentLocked() []*entry {
	out := make([]*entry, 0, c.lru.Len())
	for el := c.lru.Front(); el != nil; el = el.Next() {
		if e := el.Value.(*entry); e.part != nil {
			out = append(out, e)
		}
	}
	return out
}

// FlushAll saves every dirty resident partition. Saves run in parallel; a
// failing partition does not stop the others. The returned error joins all
// failures.
func (c *Cache) FlushAll(ctx context.Context) error {
	c.mu.Lock()
	entries := c.residentLocked()
	c.mu.Unlock()

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(c.opts.FlushConcurrency)
	for _, e := range entries {
		g.Go(func() error {
			if err := c.flushEntry(ctx, e); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("flush %s: %w", e.key, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 {
		c.logger.Error("flush incomplete", "failed", len(errs), "partitions", len(entries))
	}
	return errors.Join(errs...)
}

// Close saves and closes one partition. It returns ErrPartitionPinned while
// handles are outstanding. Closing a non-resident partition is a no-op.
func (c *Cache) Close(ctx context.Context, key Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	if e.pins > 0 {
		return fmt.Errorf("close %s: %w (%d handles)", key, ErrPartitionPinned, e.pins)
	}
	if err := c.flushEntry(ctx, e); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}
	_ = e.part.Close()
	c.removeLocked(e)
	return nil
}

// CloseAll saves and closes every unpinned partition and rejects further
// acquisitions. Pinned or unsaveable partitions stay resident and are
// reported in the returned error.
func (c *Cache) CloseAll(ctx context.Context) error {
	flushErr := c.FlushAll(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true

	var errs []error
	if flushErr != nil {
		errs = append(errs, flushErr)
	}
	for _, e := range c.residentLocked() {
		if e.pins > 0 {
			errs = append(errs, fmt.Errorf("close %s: %w (%d handles)", e.key, ErrPartitionPinned, e.pins))
			continue
		}
		if e.part.Dirty() {
			continue
		}
		_ = e.part.Close()
		c.removeLocked(e)
	}
	return errors.Join(errs...)
}

// Keys returns the resident keys, most recently used first.
func (c *Cache) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.residentLocked()
	keys := make([]Key, len(entries))
	for i, e := range entries {
		keys[i] = e.key
	}
	return keys
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	resident := len(c.entries)
	c.mu.Unlock()
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Loads:     c.loads.Load(),
		Evictions: c.evictions.Load(),
		Resident:  resident,
	}
}
