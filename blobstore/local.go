package blobstore

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	pfs "github.com/hupe1980/propstore/internal/fs"
	"github.com/hupe1980/propstore/internal/mmap"
)

// LocalStore implements BlobStore using the local file system.
type LocalStore struct {
	root   string
	fs     pfs.FileSystem
	logger *slog.Logger
}

// LocalOption configures a LocalStore.
type LocalOption func(*LocalStore)

// WithFileSystem replaces the file system used for writes (fault injection in tests).
func WithFileSystem(fsys pfs.FileSystem) LocalOption {
	return func(s *LocalStore) {
		if fsys != nil {
			s.fs = fsys
		}
	}
}

// WithLocalLogger sets the logger for read-path diagnostics.
func WithLocalLogger(logger *slog.Logger) LocalOption {
	return func(s *LocalStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewLocalStore creates a new LocalStore rooted at the given directory.
func NewLocalStore(root string, optFns ...LocalOption) *LocalStore {
	s := &LocalStore{root: root, fs: pfs.Default, logger: slog.New(slog.DiscardHandler)}
	for _, fn := range optFns {
		fn(s)
	}
	return s
}

// Root returns the root directory.
func (s *LocalStore) Root() string { return s.root }

func (s *LocalStore) path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// Open maps the whole blob read-only and asks the kernel to read it ahead,
// since a partition load decodes every byte once.
func (s *LocalStore) Open(ctx context.Context, name string) (Blob, error) {
	f, err := mmap.Open(s.path(name))
	if err != nil {
		return nil, err
	}
	if err := f.Advise(mmap.AdviceSequential, mmap.AdviceWillNeed); err != nil {
		s.logger.DebugContext(ctx, "read-ahead hint rejected", "blob", name, "error", err)
	}
	return &localBlob{f: f}, nil
}

// Put writes the blob through a temp file and renames it into place.
func (s *LocalStore) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return pfs.WriteFileAtomic(s.fs, s.path(name), data)
}

// Delete removes a blob.
func (s *LocalStore) Delete(_ context.Context, name string) error {
	err := s.fs.Remove(s.path(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// List returns slash-separated names below root that start with prefix.
// Leftover temp files from interrupted saves are skipped.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == s.root {
				return filepath.SkipDir
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if strings.Contains(filepath.Base(name), ".tmp-") {
			return nil
		}
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

type localBlob struct {
	f *mmap.File
}

func (b *localBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return b.f.ReadAt(p, off)
}

func (b *localBlob) Close() error {
	return b.f.Close()
}

func (b *localBlob) Size() int64 {
	return int64(b.f.Len())
}

func (b *localBlob) Bytes() ([]byte, error) {
	return b.f.Bytes()
}
