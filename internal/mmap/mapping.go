package mmap

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync/atomic"
)

// File is a partition file mapped read-only in one piece.
type File struct {
	path   string
	data   []byte
	unmap  func([]byte) error
	closed atomic.Bool
}

// Open maps the whole file at path. An empty file yields an empty File that
// holds no mapping.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	// the mapping stays valid after the descriptor is closed
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := fi.Size()
	if size == 0 {
		return &File{path: path}, nil
	}
	if int64(int(size)) != size {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, path, size)
	}

	data, unmap, err := osMap(f, int(size))
	if err != nil {
		return nil, &fs.PathError{Op: "mmap", Path: path, Err: err}
	}
	return &File{path: path, data: data, unmap: unmap}, nil
}

// Path returns the mapped file path.
func (f *File) Path() string { return f.path }

// Len returns the file size in bytes.
func (f *File) Len() int { return len(f.data) }

// Bytes returns the file contents. The slice must not be used after Close.
func (f *File) Bytes() ([]byte, error) {
	if f.closed.Load() {
		return nil, ErrClosed
	}
	return f.data, nil
}

// Advise applies each hint in order. Every hint is attempted; the failures
// are joined. The hints only affect performance.
func (f *File) Advise(hints ...Advice) error {
	if f.closed.Load() {
		return ErrClosed
	}
	if len(f.data) == 0 {
		return nil
	}
	var errs []error
	for _, h := range hints {
		if err := osAdvise(f.data, h); err != nil {
			errs = append(errs, fmt.Errorf("madvise %s %s: %w", h, f.path, err))
		}
	}
	return errors.Join(errs...)
}

// ReadAt copies file bytes starting at off into p.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if f.closed.Load() {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, &fs.PathError{Op: "readat", Path: f.path, Err: fs.ErrInvalid}
	}
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Close releases the mapping. Calling it again is a no-op.
func (f *File) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	data := f.data
	f.data = nil
	if f.unmap == nil || data == nil {
		return nil
	}
	return f.unmap(data)
}
