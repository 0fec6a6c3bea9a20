package blobstore

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pfs "github.com/hupe1980/propstore/internal/fs"
	"github.com/hupe1980/propstore/internal/mmap"
)

func testStores(t *testing.T) map[string]BlobStore {
	return map[string]BlobStore{
		"local":  NewLocalStore(t.TempDir()),
		"memory": NewMemoryStore(),
	}
}

func TestBlobStore_Contract(t *testing.T) {
	ctx := context.Background()

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Open(ctx, "p000001/prop-000001.tpp")
			assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

			require.NoError(t, store.Put(ctx, "p000001/prop-000001.tpp", []byte("first")))
			require.NoError(t, store.Put(ctx, "p000001/prop-000001.tpp", []byte("second image")))
			require.NoError(t, store.Put(ctx, "p000002/prop-000001.tpp", []byte("other")))

			b, err := store.Open(ctx, "p000001/prop-000001.tpp")
			require.NoError(t, err)
			assert.Equal(t, int64(12), b.Size())

			data, err := ReadAll(ctx, b)
			require.NoError(t, err)
			assert.Equal(t, "second image", string(data))

			buf := make([]byte, 5)
			n, err := b.ReadAt(ctx, buf, 7)
			require.NoError(t, err)
			assert.Equal(t, 5, n)
			assert.Equal(t, "image", string(buf))
			require.NoError(t, b.Close())

			names, err := store.List(ctx, "p000001/")
			require.NoError(t, err)
			assert.Equal(t, []string{"p000001/prop-000001.tpp"}, names)

			names, err = store.List(ctx, "")
			require.NoError(t, err)
			assert.Len(t, names, 2)

			require.NoError(t, store.Delete(ctx, "p000001/prop-000001.tpp"))
			require.NoError(t, store.Delete(ctx, "p000001/prop-000001.tpp"))
			_, err = store.Open(ctx, "p000001/prop-000001.tpp")
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestMemoryStore_PutCopiesAndCounts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	data := []byte("abc")
	require.NoError(t, s.Put(ctx, "x", data))
	data[0] = 'z'

	b, err := s.Open(ctx, "x")
	require.NoError(t, err)
	got, err := ReadAll(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
	assert.Equal(t, 1, s.PutCount("x"))
	assert.Equal(t, 0, s.PutCount("y"))
}

func TestLocalStore_FailedPutKeepsPreviousImage(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	ffs := pfs.NewFaultyFS(nil)
	s := NewLocalStore(root, WithFileSystem(ffs))
	require.NoError(t, s.Put(ctx, "p1/prop.tpp", []byte("good")))

	ffs.AddRule("prop.tpp", pfs.Fault{FailAfterBytes: -1, FailOnRename: true})
	err := s.Put(ctx, "p1/prop.tpp", []byte("replacement"))
	require.ErrorIs(t, err, pfs.ErrInjected)

	got, err := os.ReadFile(filepath.Join(root, "p1", "prop.tpp"))
	require.NoError(t, err)
	assert.Equal(t, "good", string(got))

	names, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1/prop.tpp"}, names)
}

func TestLocalStore_ListMissingRoot(t *testing.T) {
	s := NewLocalStore(filepath.Join(t.TempDir(), "absent"))
	names, err := s.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLocalStore_EmptyBlob(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(t.TempDir())
	require.NoError(t, s.Put(ctx, "empty", nil))

	b, err := s.Open(ctx, "empty")
	require.NoError(t, err)
	defer b.Close()

	data, err := ReadAll(ctx, b)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestLocalStore_MappedBlob(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(t.TempDir(), WithLocalLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, s.Put(ctx, "p000001/prop-000002.tpp", []byte("TPP1 image")))

	b, err := s.Open(ctx, "p000001/prop-000002.tpp")
	require.NoError(t, err)

	m, ok := b.(Mappable)
	require.True(t, ok)
	data, err := m.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "TPP1 image", string(data))

	require.NoError(t, b.Close())
	_, err = m.Bytes()
	assert.ErrorIs(t, err, mmap.ErrClosed)
}
