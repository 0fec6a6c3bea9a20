package prometheus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/propstore"
	"github.com/hupe1980/propstore/blobstore"
	"github.com/hupe1980/propstore/schema"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	c.RecordLoad(true, time.Millisecond, nil)
	c.RecordLoad(false, time.Millisecond, nil)
	c.RecordLoad(false, time.Millisecond, errors.New("boom"))
	c.RecordFlush(time.Millisecond, nil)
	c.RecordEviction()
	c.RecordEviction()

	assert.Equal(t, 1.0, testutil.ToFloat64(c.loads.WithLabelValues("file", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.loads.WithLabelValues("init", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.loads.WithLabelValues("init", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.flushes.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.evictions))

	_, err = New(reg)
	assert.Error(t, err, "duplicate registration must fail")
}

func TestCollector_WithStore(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	topo := propstore.NewStaticTopology(map[uint32]schema.Descriptor{
		1: {Name: "age", Kind: schema.KindInt},
	}, nil)
	db, err := propstore.Open(blobstore.NewMemoryStore(), topo,
		propstore.WithCacheCapacity(1),
		propstore.WithMetricsCollector(c),
	)
	require.NoError(t, err)

	for pid := uint32(0); pid < 3; pid++ {
		_, err := db.InsertProperty(ctx, propstore.Key{PartitionID: pid, PropertyID: 1}, 1, propstore.NoRow, 1, schema.Int(1))
		require.NoError(t, err)
	}
	require.NoError(t, db.Close(ctx))

	assert.Equal(t, 3.0, testutil.ToFloat64(c.loads.WithLabelValues("init", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.evictions))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.flushes.WithLabelValues("ok")))
}
