// Package mmap maps files into memory and flushes written files to disk.
package mmap

import (
	"errors"
	"fmt"
	"os"
)

var ErrTooLarge = errors.New("file too large to map")

type Options uint

const (
	// Writable maps the file for writing (otherwise, it's mapped read-only).
	Writable Options = 1 << 0

	// SequentialAccess is a hint requesting aggressive read-ahead. Maps to
	// MADV_SEQUENTIAL on Unix.
	SequentialAccess Options = 1 << 1

	// Prefault asks for the entire file to be loaded in memory upfront.
	// Maps to MAP_POPULATE on Linux.
	Prefault Options = 1 << 2
)

func (o Options) Has(v Options) bool {
	return o&v != 0
}

// Mmap maps the first size bytes of f.
func Mmap(f *os.File, size int, opt Options) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid mapping size %d", size)
	}
	if uint64(size) > MaxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}
	return mmap(f, size, opt)
}

// Munmap unmaps the given slice from memory. The slice must have been returned
// by Mmap.
func Munmap(b []byte) error {
	return munmap(b)
}

// Mapping is a read-only view of a whole file.
type Mapping struct {
	data []byte
}

// Open maps the file at path read-only. An empty file yields an empty
// mapping. The file itself is closed before Open returns; the mapping stays
// valid until Close.
func Open(path string, opt Options) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := fi.Size()
	if size == 0 {
		return &Mapping{}, nil
	}
	if uint64(size) > MaxSize || int64(int(size)) != size {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, path, size)
	}

	data, err := Mmap(f, int(size), opt&^Writable)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &Mapping{data: data}, nil
}

// Bytes returns the mapped contents. The slice must not be written to or
// used after Close.
func (m *Mapping) Bytes() []byte {
	return m.data
}

func (m *Mapping) Len() int {
	return len(m.data)
}

func (m *Mapping) Close() error {
	if m.data == nil {
		return nil
	}
	data := m.data
	m.data = nil
	return munmap(data)
}
