// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package shm exposes a file-backed shared memory region.
package shm // import "github.com/go-lpc/spipwm/internal/shm"

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

var (
	errClosed = errors.New("shm: closed")
)

// Region is a memory-mapped view of a file, shared with other processes
// mapping the same file.
type Region struct {
	f    *os.File
	data []byte
}

// Create creates (or truncates) the named file to size bytes and maps it
// read-write.
func Create(fname string, size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("shm: invalid region size %d", size)
	}

	f, err := os.OpenFile(fname, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("shm: could not open %q: %w", fname, err)
	}

	err = f.Truncate(int64(size))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("shm: could not resize %q to %d bytes: %w", fname, size, err)
	}

	return mmap(f, size, unix.PROT_READ|unix.PROT_WRITE)
}

// Open maps an existing file read-only.
func Open(fname string) (*Region, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("shm: could not open %q: %w", fname, err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("shm: could not stat %q: %w", fname, err)
	}
	if fi.Size() <= 0 {
		_ = f.Close()
		return nil, fmt.Errorf("shm: empty region %q", fname)
	}

	return mmap(f, int(fi.Size()), unix.PROT_READ)
}

func mmap(f *os.File, size, prot int) (*Region, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, prot, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("shm: could not mmap %q: %w", f.Name(), err)
	}
	return &Region{f: f, data: data}, nil
}

// Close unmaps the region and closes the underlying file.
func (r *Region) Close() error {
	if r == nil {
		return os.ErrInvalid
	}
	if r.data == nil {
		return nil
	}

	data := r.data
	r.data = nil

	err := unix.Munmap(data)
	if err != nil {
		_ = r.f.Close()
		return fmt.Errorf("shm: could not munmap %q: %w", r.f.Name(), err)
	}

	err = r.f.Close()
	if err != nil {
		return fmt.Errorf("shm: could not close %q: %w", r.f.Name(), err)
	}
	return nil
}

// Len returns the size of the region.
func (r *Region) Len() int {
	return len(r.data)
}

// ReadAt implements the io.ReaderAt interface.
func (r *Region) ReadAt(p []byte, off int64) (int, error) {
	if r == nil {
		return 0, os.ErrInvalid
	}
	if r.data == nil {
		return 0, errClosed
	}
	if off < 0 || int64(len(r.data)) < off {
		return 0, fmt.Errorf("shm: invalid ReadAt offset %d", off)
	}
	n := copy(p, r.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements the io.WriterAt interface.
func (r *Region) WriteAt(p []byte, off int64) (int, error) {
	if r == nil {
		return 0, os.ErrInvalid
	}
	if r.data == nil {
		return 0, errClosed
	}
	if off < 0 || int64(len(r.data)) < off {
		return 0, fmt.Errorf("shm: invalid WriteAt offset %d", off)
	}
	n := copy(r.data[off:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

var (
	_ io.ReaderAt = (*Region)(nil)
	_ io.WriterAt = (*Region)(nil)
	_ io.Closer   = (*Region)(nil)
)
