// Package partition implements one property column of one graph partition:
// its lifecycle (initialize, load, save, close), the versioned-history insert
// algorithm and the persisted file format.
package partition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/propstore/blobstore"
	"github.com/hupe1980/propstore/internal/column"
	"github.com/hupe1980/propstore/internal/compress"
	"github.com/hupe1980/propstore/resource"
	"github.com/hupe1980/propstore/schema"
)

// State is the residency state of a partition.
type State int

const (
	// StateUnloaded holds no buffers.
	StateUnloaded State = iota
	// StateResidentEmpty was freshly initialized; no file backed it.
	StateResidentEmpty
	// StateResidentLoaded was populated from its file.
	StateResidentLoaded
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateResidentEmpty:
		return "resident-empty"
	case StateResidentLoaded:
		return "resident-loaded"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// IOLimiter throttles storage bandwidth. *resource.Controller implements it.
type IOLimiter interface {
	AcquireIO(ctx context.Context, bytes int) error
}

// Config describes one partition.
type Config struct {
	PartitionID uint32
	PropertyID  uint32
	Descriptor  schema.Descriptor
	// Capacity is the number of rows allocated for a fresh partition.
	Capacity int
	// Name is the blob name of the partition file.
	Name  string
	Store blobstore.BlobStore

	Allocator   resource.Allocator
	IOLimiter   IOLimiter
	Compression compress.Type
	Logger      *slog.Logger
}

// Partition owns the column of one property within one partition.
//
// Inserts take the write lock; reads and history walks take the read lock.
// Saves encode under the read lock and serialize among themselves on saveMu.
type Partition struct {
	cfg    Config
	logger *slog.Logger

	saveMu sync.Mutex

	mu       sync.RWMutex
	state    State
	store    *column.Store
	entities *roaring64.Bitmap
	reserved int64
	modCount uint64

	savedCount atomic.Uint64
}

// New returns an unloaded partition.
func New(cfg Config) (*Partition, error) {
	if err := cfg.Descriptor.Validate(); err != nil {
		return nil, err
	}
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("partition %d: invalid capacity %d", cfg.PartitionID, cfg.Capacity)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("partition %d: blob store is required", cfg.PartitionID)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Partition{
		cfg:    cfg,
		logger: logger.With("partition", cfg.PartitionID, "property", cfg.PropertyID),
		store:  column.NewStore(),
	}, nil
}

func (p *Partition) String() string {
	return fmt.Sprintf("partition %d property %d", p.cfg.PartitionID, p.cfg.PropertyID)
}

// PartitionID returns the partition id.
func (p *Partition) PartitionID() uint32 { return p.cfg.PartitionID }

// PropertyID returns the property id.
func (p *Partition) PropertyID() uint32 { return p.cfg.PropertyID }

// Name returns the blob name of the partition file.
func (p *Partition) Name() string { return p.cfg.Name }

// Kind returns the value kind of the property.
func (p *Partition) Kind() schema.Kind { return p.cfg.Descriptor.Kind }

// State returns the residency state.
func (p *Partition) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// MaxRow returns the number of written rows.
func (p *Partition) MaxRow() int32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.store.MaxRow()
}

// Capacity returns the row capacity of the resident column, or the
// configured capacity when unloaded.
func (p *Partition) Capacity() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if c := p.store.Capacity(); c > 0 {
		return c
	}
	return p.cfg.Capacity
}

// Reserved returns the bytes currently charged to the allocator.
func (p *Partition) Reserved() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reserved
}

// SizeBytes returns the resident footprint, or zero when unloaded.
func (p *Partition) SizeBytes() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if col := p.store.Column(); col != nil {
		return col.SizeBytes()
	}
	return 0
}

// Dirty reports whether the partition holds modifications not yet saved.
func (p *Partition) Dirty() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.modCount != p.savedCount.Load()
}

func (p *Partition) reserve(capacity int) (int64, error) {
	size := column.EstimateSize(p.cfg.Descriptor.Kind, capacity)
	if p.cfg.Allocator != nil && !p.cfg.Allocator.TryAcquireMemory(size) {
		return 0, fmt.Errorf("%s: %w: %d bytes", p, ErrResourceExhausted, size)
	}
	return size, nil
}

func (p *Partition) unreserve(size int64) {
	if p.cfg.Allocator != nil && size > 0 {
		p.cfg.Allocator.ReleaseMemory(size)
	}
}

// bind installs a resident column. Caller holds mu.
func (p *Partition) bind(col *column.Column, rows int32, entities *roaring64.Bitmap, reserved int64, state State) error {
	p.store.Init(p.cfg.PartitionID, col)
	if err := p.store.SetMaxRow(rows); err != nil {
		p.store.Init(p.cfg.PartitionID, nil)
		return err
	}
	p.entities = entities
	p.reserved = reserved
	p.state = state
	p.modCount = 0
	p.savedCount.Store(0)
	return nil
}

// Initialize allocates an empty column for a partition without a file.
func (p *Partition) Initialize(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateUnloaded {
		return fmt.Errorf("%s: %w", p, ErrAlreadyResident)
	}

	reserved, err := p.reserve(p.cfg.Capacity)
	if err != nil {
		return err
	}
	col, err := column.Allocate(p.cfg.Descriptor.Kind, p.cfg.Capacity)
	if err != nil {
		p.unreserve(reserved)
		return err
	}
	if err := p.bind(col, 0, roaring64.New(), reserved, StateResidentEmpty); err != nil {
		p.unreserve(reserved)
		return err
	}

	p.logger.Debug("partition initialized", "capacity", p.cfg.Capacity)
	return nil
}

// LoadFromFile populates the partition from its file. It returns false
// without error when no file exists.
//
// The resident capacity is the larger of the file capacity and the
// configured capacity.
func (p *Partition) LoadFromFile(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateUnloaded {
		return false, fmt.Errorf("%s: %w", p, ErrAlreadyResident)
	}

	start := time.Now()
	img, size, err := p.readImage(ctx)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return false, nil
		}
		p.logger.Warn("partition load failed", "file", p.cfg.Name, "error", err)
		return false, err
	}

	h := img.Header
	if h.Kind != p.cfg.Descriptor.Kind {
		return false, fmt.Errorf("%s: %w: file kind %s, schema kind %s", p, ErrLoadFailure, h.Kind, p.cfg.Descriptor.Kind)
	}
	if h.PartitionID != p.cfg.PartitionID || h.PropertyID != p.cfg.PropertyID {
		return false, fmt.Errorf("%s: %w: file belongs to partition %d property %d", p, ErrLoadFailure, h.PartitionID, h.PropertyID)
	}

	capacity := max(int(h.Capacity), p.cfg.Capacity)
	reserved, err := p.reserve(capacity)
	if err != nil {
		return false, err
	}
	col, err := column.FromImage(img.Column, capacity)
	if err != nil {
		p.unreserve(reserved)
		return false, fmt.Errorf("%s: %w: %w", p, ErrLoadFailure, err)
	}
	if payload := col.SizeBytes() - reserved; payload > 0 {
		if p.cfg.Allocator != nil && !p.cfg.Allocator.TryAcquireMemory(payload) {
			p.unreserve(reserved)
			return false, fmt.Errorf("%s: %w: %d payload bytes", p, ErrResourceExhausted, payload)
		}
		reserved += payload
	}

	entities := img.Entities
	if entities == nil {
		entities = roaring64.New()
		for row := int32(0); row < int32(h.RowCount); row++ {
			id, _ := col.LocalID(row)
			entities.Add(uint64(id))
		}
	}

	if err := p.bind(col, int32(h.RowCount), entities, reserved, StateResidentLoaded); err != nil {
		p.unreserve(reserved)
		return false, fmt.Errorf("%s: %w: %w", p, ErrLoadFailure, err)
	}

	p.logger.Debug("partition loaded",
		"file", p.cfg.Name,
		"rows", h.RowCount,
		"bytes", size,
		"duration", time.Since(start),
	)
	return true, nil
}

func (p *Partition) readImage(ctx context.Context) (*Image, int64, error) {
	b, err := p.cfg.Store.Open(ctx, p.cfg.Name)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("%s: %w: open %s: %w", p, ErrIOFailure, p.cfg.Name, err)
	}
	defer func() { _ = b.Close() }()

	data, err := blobstore.ReadAll(ctx, b)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w: read %s: %w", p, ErrIOFailure, p.cfg.Name, err)
	}
	img, err := Decode(data)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %s: %w", p, p.cfg.Name, err)
	}
	return img, int64(len(data)), nil
}

// SaveToFile writes rows [0, MaxRow) to the partition file. A clean or
// unloaded partition is not written. On failure the partition stays dirty
// and the previous file is untouched.
func (p *Partition) SaveToFile(ctx context.Context) error {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	p.mu.RLock()
	if p.state == StateUnloaded || p.modCount == p.savedCount.Load() {
		p.mu.RUnlock()
		return nil
	}
	snapshot := p.modCount
	rows := p.store.MaxRow()
	data, err := p.encodeLocked()
	p.mu.RUnlock()
	if err != nil {
		return err
	}

	start := time.Now()
	if p.cfg.IOLimiter != nil {
		if err := p.cfg.IOLimiter.AcquireIO(ctx, len(data)); err != nil {
			return fmt.Errorf("%s: %w: %w", p, ErrIOFailure, err)
		}
	}
	if err := p.cfg.Store.Put(ctx, p.cfg.Name, data); err != nil {
		p.logger.Error("partition save failed", "file", p.cfg.Name, "error", err)
		return fmt.Errorf("%s: %w: write %s: %w", p, ErrIOFailure, p.cfg.Name, err)
	}
	p.savedCount.Store(snapshot)

	p.logger.Debug("partition saved",
		"file", p.cfg.Name,
		"rows", rows,
		"bytes", len(data),
		"duration", time.Since(start),
	)
	return nil
}

// encodeLocked serializes the resident column. Caller holds mu for reading.
func (p *Partition) encodeLocked() ([]byte, error) {
	col := p.store.Column()
	img, err := col.Image(int(p.store.MaxRow()))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	h := Header{
		Kind:        p.cfg.Descriptor.Kind,
		Compression: p.cfg.Compression,
		PartitionID: p.cfg.PartitionID,
		PropertyID:  p.cfg.PropertyID,
		Capacity:    uint32(col.Capacity()),
	}
	data, err := Encode(h, img, p.entities)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return data, nil
}

// Close releases the column and its memory reservation without saving.
// Unsaved modifications are lost. Close is idempotent.
func (p *Partition) Close() error {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateUnloaded {
		return nil
	}
	if p.modCount != p.savedCount.Load() {
		p.logger.Warn("closing partition with unsaved rows", "rows", p.store.MaxRow())
	}
	p.store.Init(p.cfg.PartitionID, nil)
	p.entities = nil
	p.unreserve(p.reserved)
	p.reserved = 0
	p.state = StateUnloaded
	p.modCount = 0
	p.savedCount.Store(0)
	return nil
}

// RetrieveProperty copies row into dst. It returns false when the partition
// is not resident.
func (p *Partition) RetrieveProperty(row int32, dst *column.Accessor) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.store.LoadProperty(row, dst)
}

// Entry returns the content of row.
func (p *Partition) Entry(row int32) (column.Entry, error) {
	var acc column.Accessor
	ok, err := p.RetrieveProperty(row, &acc)
	if err != nil {
		return column.Entry{}, fmt.Errorf("%s: %w", p, err)
	}
	if !ok {
		return column.Entry{}, fmt.Errorf("%s: %w", p, ErrNotResident)
	}
	return acc.Entry(), nil
}

// Entities returns a snapshot of the local ids with at least one row.
func (p *Partition) Entities() *roaring64.Bitmap {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.entities == nil {
		return roaring64.New()
	}
	return p.entities.Clone()
}
