package column

import (
	"testing"

	"github.com/hupe1980/propstore/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBoundStore(t *testing.T, kind schema.Kind, capacity int) *Store {
	t.Helper()
	col, err := Allocate(kind, capacity)
	require.NoError(t, err)
	s := NewStore()
	s.Init(1, col)
	return s
}

func TestStore_AddProperty(t *testing.T) {
	s := newBoundStore(t, schema.KindString, 4)

	row, err := s.AddProperty(7, schema.String("a"), 100, NoRow)
	require.NoError(t, err)
	assert.Equal(t, int32(0), row)

	row, err = s.AddProperty(7, schema.String("b"), 200, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(1), row)
	assert.Equal(t, int32(2), s.MaxRow())

	var acc Accessor
	ok, err := s.LoadProperty(1, &acc)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int32(1), acc.Row)
	assert.Equal(t, int64(7), acc.LocalID)
	assert.Equal(t, "b", acc.Value.S)
	assert.Equal(t, int64(200), acc.CreationTime)
	assert.Equal(t, int32(0), acc.PrevRow)
}

func TestStore_CapacityExceeded(t *testing.T) {
	const capacity = 3
	s := newBoundStore(t, schema.KindInt, capacity)

	for i := 0; i < capacity; i++ {
		_, err := s.AddProperty(1, schema.Int(int64(i)), int64(i), NoRow)
		require.NoError(t, err)
	}

	_, err := s.AddProperty(1, schema.Int(99), 99, NoRow)
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	// earlier rows stay readable
	var acc Accessor
	for i := 0; i < capacity; i++ {
		ok, err := s.LoadProperty(int32(i), &acc)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(i), acc.Value.I64)
	}
}

func TestStore_UnwrittenRowIsOutOfBounds(t *testing.T) {
	s := newBoundStore(t, schema.KindInt, 4)

	var acc Accessor
	_, err := s.LoadProperty(0, &acc)
	assert.ErrorIs(t, err, ErrIndexOutOfBounds)

	_, err = s.AddProperty(1, schema.Int(1), 1, 5)
	assert.ErrorIs(t, err, ErrIndexOutOfBounds)
}

func TestStore_Released(t *testing.T) {
	s := newBoundStore(t, schema.KindInt, 4)
	_, err := s.AddProperty(1, schema.Int(1), 1, NoRow)
	require.NoError(t, err)

	s.Init(1, nil)
	assert.False(t, s.Bound())

	var acc Accessor
	ok, err := s.LoadProperty(0, &acc)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, NoRow, acc.Row)

	_, err = s.AddProperty(1, schema.Int(1), 1, NoRow)
	assert.Error(t, err)
}

func TestStore_SetPrevRow(t *testing.T) {
	s := newBoundStore(t, schema.KindInt, 4)
	_, err := s.AddProperty(1, schema.Int(1), 1, NoRow)
	require.NoError(t, err)
	_, err = s.AddProperty(1, schema.Int(2), 2, NoRow)
	require.NoError(t, err)

	require.NoError(t, s.SetPrevRow(0, 1))
	prev, err := s.PrevRow(0)
	require.NoError(t, err)
	assert.Equal(t, int32(1), prev)

	assert.ErrorIs(t, s.SetPrevRow(0, 2), ErrIndexOutOfBounds)
}

func TestStore_SetMaxRow(t *testing.T) {
	col, err := Allocate(schema.KindInt, 4)
	require.NoError(t, err)
	require.NoError(t, col.SetRowCount(2))

	s := NewStore()
	s.Init(3, col)
	require.NoError(t, s.SetMaxRow(2))
	assert.ErrorIs(t, s.SetMaxRow(3), ErrIndexOutOfBounds)

	row, err := s.AddProperty(1, schema.Int(5), 5, NoRow)
	require.NoError(t, err)
	assert.Equal(t, int32(2), row)
}
