package partition

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/propstore/blobstore"
	"github.com/hupe1980/propstore/internal/column"
	"github.com/hupe1980/propstore/internal/compress"
	pfs "github.com/hupe1980/propstore/internal/fs"
	"github.com/hupe1980/propstore/resource"
	"github.com/hupe1980/propstore/schema"
)

func testConfig(store blobstore.BlobStore, kind schema.Kind, capacity int) Config {
	return Config{
		PartitionID: 3,
		PropertyID:  7,
		Descriptor:  schema.Descriptor{Name: "age", Kind: kind},
		Capacity:    capacity,
		Name:        "p000003/prop-000007.tpp",
		Store:       store,
		Compression: compress.LZ4,
	}
}

func newResident(t *testing.T, cfg Config) *Partition {
	t.Helper()
	p, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, p.Initialize(context.Background()))
	return p
}

func TestNew_Validation(t *testing.T) {
	store := blobstore.NewMemoryStore()

	_, err := New(testConfig(store, schema.KindInvalid, 8))
	assert.Error(t, err)

	_, err = New(testConfig(store, schema.KindInt, 0))
	assert.Error(t, err)

	_, err = New(testConfig(nil, schema.KindInt, 8))
	assert.Error(t, err)
}

func TestPartition_Lifecycle(t *testing.T) {
	ctx := context.Background()
	p, err := New(testConfig(blobstore.NewMemoryStore(), schema.KindInt, 8))
	require.NoError(t, err)
	assert.Equal(t, StateUnloaded, p.State())
	assert.Equal(t, int64(0), p.SizeBytes())

	require.NoError(t, p.Initialize(ctx))
	assert.Equal(t, StateResidentEmpty, p.State())
	assert.Equal(t, 8, p.Capacity())
	assert.Positive(t, p.SizeBytes())
	assert.False(t, p.Dirty())

	assert.ErrorIs(t, p.Initialize(ctx), ErrAlreadyResident)
	_, err = p.LoadFromFile(ctx)
	assert.ErrorIs(t, err, ErrAlreadyResident)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, StateUnloaded, p.State())

	var acc column.Accessor
	ok, err := p.RetrieveProperty(0, &acc)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = p.InsertProperty(column.NoRow, 1, 1, schema.Int(1))
	assert.ErrorIs(t, err, ErrNotResident)
	_, err = p.Entry(0)
	assert.ErrorIs(t, err, ErrNotResident)
}

func TestLoadFromFile_Missing(t *testing.T) {
	p, err := New(testConfig(blobstore.NewMemoryStore(), schema.KindInt, 8))
	require.NoError(t, err)

	ok, err := p.LoadFromFile(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, StateUnloaded, p.State())
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	values := map[schema.Kind][]schema.Value{
		schema.KindInt:    {schema.Int(-5), schema.Int(0), schema.Int(1 << 40)},
		schema.KindFloat:  {schema.Float(1.5), schema.Float(-0.25), schema.Float(3)},
		schema.KindBool:   {schema.Bool(true), schema.Bool(false), schema.Bool(true)},
		schema.KindString: {schema.String("alice"), schema.String(""), schema.String("bob")},
		schema.KindBytes:  {schema.Bytes([]byte{1, 2, 3}), schema.Bytes(nil), schema.Bytes([]byte{9})},
	}

	for kind, vals := range values {
		for _, codec := range []compress.Type{compress.None, compress.LZ4, compress.ZSTD} {
			t.Run(fmt.Sprintf("%s/%s", kind, codec), func(t *testing.T) {
				ctx := context.Background()
				store := blobstore.NewLocalStore(t.TempDir())
				cfg := testConfig(store, kind, 16)
				cfg.Compression = codec

				p := newResident(t, cfg)
				var head int32 = column.NoRow
				for i, v := range vals {
					row, err := p.InsertProperty(head, int64(100+i), 42, v)
					require.NoError(t, err)
					head = row
				}
				_, err := p.InsertProperty(column.NoRow, 7, 43, vals[0])
				require.NoError(t, err)

				want, err := p.Chain(head)
				require.NoError(t, err)

				require.True(t, p.Dirty())
				require.NoError(t, p.SaveToFile(ctx))
				assert.False(t, p.Dirty())
				require.NoError(t, p.Close())

				loaded, err := New(cfg)
				require.NoError(t, err)
				ok, err := loaded.LoadFromFile(ctx)
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, StateResidentLoaded, loaded.State())
				assert.Equal(t, int32(len(vals)+1), loaded.MaxRow())
				assert.False(t, loaded.Dirty())

				got, err := loaded.Chain(head)
				require.NoError(t, err)
				require.Len(t, got, len(want))
				for i := range want {
					assert.Equal(t, want[i].Row, got[i].Row)
					assert.Equal(t, want[i].CreationTime, got[i].CreationTime)
					assert.Equal(t, want[i].PrevRow, got[i].PrevRow)
					assert.Equal(t, want[i].LocalID, got[i].LocalID)
					assert.True(t, want[i].Value.Equal(got[i].Value), "row %d: %s != %s", want[i].Row, want[i].Value, got[i].Value)
				}

				entities := loaded.Entities()
				assert.Equal(t, uint64(2), entities.GetCardinality())
				assert.True(t, entities.Contains(42))
				assert.True(t, entities.Contains(43))
			})
		}
	}
}

func TestLoadFromFile_KeepsAppending(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	cfg := testConfig(store, schema.KindInt, 4)

	p := newResident(t, cfg)
	r0, err := p.InsertProperty(column.NoRow, 100, 1, schema.Int(1))
	require.NoError(t, err)
	require.NoError(t, p.SaveToFile(ctx))
	require.NoError(t, p.Close())

	ok, err := p.LoadFromFile(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	r1, err := p.InsertProperty(r0, 200, 1, schema.Int(2))
	require.NoError(t, err)
	assert.Equal(t, int32(1), r1)
	assert.True(t, p.Dirty())

	e, err := p.Entry(r1)
	require.NoError(t, err)
	assert.Equal(t, r0, e.PrevRow)
}

func TestLoadFromFile_GrowsToConfiguredCapacity(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	p := newResident(t, testConfig(store, schema.KindInt, 2))
	_, err := p.InsertProperty(column.NoRow, 1, 1, schema.Int(1))
	require.NoError(t, err)
	require.NoError(t, p.SaveToFile(ctx))

	bigger, err := New(testConfig(store, schema.KindInt, 8))
	require.NoError(t, err)
	ok, err := bigger.LoadFromFile(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 8, bigger.Capacity())

	smaller, err := New(testConfig(store, schema.KindInt, 1))
	require.NoError(t, err)
	ok, err = smaller.LoadFromFile(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, smaller.Capacity())
}

func TestSaveToFile_CleanIsNoop(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	cfg := testConfig(store, schema.KindInt, 8)

	p := newResident(t, cfg)
	require.NoError(t, p.SaveToFile(ctx))
	assert.Equal(t, 0, store.PutCount(cfg.Name), "fresh partition must not be written")

	_, err := p.InsertProperty(column.NoRow, 1, 1, schema.Int(1))
	require.NoError(t, err)
	require.NoError(t, p.SaveToFile(ctx))
	require.NoError(t, p.SaveToFile(ctx))
	assert.Equal(t, 1, store.PutCount(cfg.Name))

	require.NoError(t, p.Close())
	ok, err := p.LoadFromFile(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, p.SaveToFile(ctx))
	assert.Equal(t, 1, store.PutCount(cfg.Name), "loaded, unmodified partition must not be rewritten")

	unloaded, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, unloaded.SaveToFile(ctx))
	assert.Equal(t, 1, store.PutCount(cfg.Name))
}

func TestSaveToFile_FailureKeepsDirty(t *testing.T) {
	ctx := context.Background()
	ffs := pfs.NewFaultyFS(nil)
	store := blobstore.NewLocalStore(t.TempDir(), blobstore.WithFileSystem(ffs))
	cfg := testConfig(store, schema.KindString, 8)

	p := newResident(t, cfg)
	head, err := p.InsertProperty(column.NoRow, 1, 1, schema.String("v1"))
	require.NoError(t, err)
	require.NoError(t, p.SaveToFile(ctx))

	_, err = p.InsertProperty(head, 2, 1, schema.String("v2"))
	require.NoError(t, err)

	ffs.AddRule("prop-000007.tpp", pfs.Fault{FailAfterBytes: -1, FailOnSync: true})
	err = p.SaveToFile(ctx)
	require.ErrorIs(t, err, ErrIOFailure)
	require.ErrorIs(t, err, pfs.ErrInjected)
	assert.True(t, p.Dirty())

	// the previous image is still intact
	old, err := New(cfg)
	require.NoError(t, err)
	ok, err := old.LoadFromFile(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int32(1), old.MaxRow())

	ffs.Clear()
	require.NoError(t, p.SaveToFile(ctx))
	assert.False(t, p.Dirty())
}

func TestLoadFromFile_Corrupt(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	cfg := testConfig(store, schema.KindInt, 8)

	p := newResident(t, cfg)
	_, err := p.InsertProperty(column.NoRow, 1, 1, schema.Int(1))
	require.NoError(t, err)
	require.NoError(t, p.SaveToFile(ctx))

	b, err := store.Open(ctx, cfg.Name)
	require.NoError(t, err)
	good, err := blobstore.ReadAll(ctx, b)
	require.NoError(t, err)
	good = append([]byte(nil), good...)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"empty", func([]byte) []byte { return nil }},
		{"bad magic", func(d []byte) []byte { d[0] = 'X'; return d }},
		{"header checksum", func(d []byte) []byte { d[20] ^= 0xff; return d }},
		{"truncated", func(d []byte) []byte { return d[:len(d)-3] }},
		{"trailing bytes", func(d []byte) []byte { return append(d, 0) }},
		{"payload flip", func(d []byte) []byte { d[HeaderSize+sectionSize] ^= 0x01; return d }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(append([]byte(nil), good...))
			require.NoError(t, store.Put(ctx, cfg.Name, data))

			fresh, err := New(cfg)
			require.NoError(t, err)
			ok, err := fresh.LoadFromFile(ctx)
			assert.False(t, ok)
			assert.ErrorIs(t, err, ErrLoadFailure)
			assert.Equal(t, StateUnloaded, fresh.State())
		})
	}

	t.Run("kind mismatch", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, cfg.Name, good))
		other := cfg
		other.Descriptor.Kind = schema.KindFloat
		fresh, err := New(other)
		require.NoError(t, err)
		_, err = fresh.LoadFromFile(ctx)
		assert.ErrorIs(t, err, ErrLoadFailure)
	})

	t.Run("foreign partition", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, cfg.Name, good))
		other := cfg
		other.PartitionID = 4
		fresh, err := New(other)
		require.NoError(t, err)
		_, err = fresh.LoadFromFile(ctx)
		assert.ErrorIs(t, err, ErrLoadFailure)
	})
}

func TestMemoryBudget(t *testing.T) {
	ctx := context.Background()
	size := column.EstimateSize(schema.KindInt, 8)
	ctrl := resource.NewController(resource.Config{MemoryLimitBytes: size})

	cfg := testConfig(blobstore.NewMemoryStore(), schema.KindInt, 8)
	cfg.Allocator = ctrl

	a := newResident(t, cfg)
	assert.Equal(t, size, ctrl.MemoryUsage())

	cfg.PartitionID = 4
	b, err := New(cfg)
	require.NoError(t, err)
	assert.ErrorIs(t, b.Initialize(ctx), ErrResourceExhausted)
	assert.Equal(t, StateUnloaded, b.State())

	require.NoError(t, a.Close())
	assert.Equal(t, int64(0), ctrl.MemoryUsage())
	require.NoError(t, b.Initialize(ctx))
}

func TestMemoryBudget_VarWidthPayload(t *testing.T) {
	ctx := context.Background()
	base := column.EstimateSize(schema.KindString, 8)
	ctrl := resource.NewController(resource.Config{MemoryLimitBytes: base + 100})

	store := blobstore.NewMemoryStore()
	cfg := testConfig(store, schema.KindString, 8)
	cfg.Allocator = ctrl

	p := newResident(t, cfg)
	_, err := p.InsertProperty(column.NoRow, 1, 1, schema.String(strings.Repeat("a", 60)))
	require.NoError(t, err)
	assert.Equal(t, base+60, ctrl.MemoryUsage())
	assert.Equal(t, base+60, p.Reserved())

	_, err = p.InsertProperty(column.NoRow, 2, 2, schema.String(strings.Repeat("b", 50)))
	require.ErrorIs(t, err, ErrResourceExhausted)
	assert.Equal(t, int32(1), p.MaxRow())
	assert.Equal(t, base+60, ctrl.MemoryUsage())

	_, err = p.InsertProperty(column.NoRow, 3, 3, schema.String(strings.Repeat("c", 40)))
	require.NoError(t, err)
	assert.Equal(t, base+100, ctrl.MemoryUsage())
	assert.Equal(t, p.SizeBytes(), p.Reserved())

	require.NoError(t, p.SaveToFile(ctx))
	require.NoError(t, p.Close())
	assert.Equal(t, int64(0), ctrl.MemoryUsage())

	t.Run("load charges payload", func(t *testing.T) {
		loaded, err := New(cfg)
		require.NoError(t, err)
		ok, err := loaded.LoadFromFile(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, base+100, ctrl.MemoryUsage())
		require.NoError(t, loaded.Close())
		assert.Equal(t, int64(0), ctrl.MemoryUsage())
	})

	t.Run("load refused", func(t *testing.T) {
		small := cfg
		tight := resource.NewController(resource.Config{MemoryLimitBytes: base + 50})
		small.Allocator = tight
		loaded, err := New(small)
		require.NoError(t, err)
		_, err = loaded.LoadFromFile(ctx)
		require.ErrorIs(t, err, ErrResourceExhausted)
		assert.Equal(t, StateUnloaded, loaded.State())
		assert.Equal(t, int64(0), tight.MemoryUsage())
	})
}

func TestReadHeader_UnsupportedVersion(t *testing.T) {
	p := newResident(t, testConfig(blobstore.NewMemoryStore(), schema.KindInt, 4))
	_, err := p.InsertProperty(column.NoRow, 1, 1, schema.Int(1))
	require.NoError(t, err)

	p.mu.RLock()
	data, err := p.encodeLocked()
	p.mu.RUnlock()
	require.NoError(t, err)

	h, err := ReadHeader(data)
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, h.Version)

	h.Version = FormatVersion + 1
	copy(data, h.marshal())
	_, err = ReadHeader(data)
	assert.ErrorIs(t, err, ErrLoadFailure)
}

func TestConcurrentReadersAndWriter(t *testing.T) {
	p := newResident(t, testConfig(blobstore.NewMemoryStore(), schema.KindInt, 1024))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		head int32 = column.NoRow
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			mu.Lock()
			h := head
			mu.Unlock()
			row, err := p.InsertProperty(h, int64(i), 1, schema.Int(int64(i)))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			head = row
			mu.Unlock()
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var acc column.Accessor
			for i := 0; i < 500; i++ {
				mu.Lock()
				h := head
				mu.Unlock()
				if h == column.NoRow {
					continue
				}
				ok, err := p.RetrieveProperty(h, &acc)
				if !assert.NoError(t, err) || !assert.True(t, ok) {
					return
				}
				versions, err := p.Chain(h)
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, int(h)+1, len(versions))
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, int32(500), p.MaxRow())
}
