// Package mmap maps whole files into memory read-only.
package mmap

import (
	"fmt"
	"os"
)

type Options uint

const (
	// SequentialAccess is a hint requesting aggressive read-ahead.
	// Incompatible with RandomAccess. Maps to MADV_SEQUENTIAL on Unix.
	SequentialAccess Options = 1 << 1

	// RandomAccess is a hint that read ahead is less useful than normally.
	// Incompatible with SequentialAccess. Maps to MADV_RANDOM on Unix.
	RandomAccess Options = 1 << 2

	// Prefault is a hint requesting the entire file to be loaded in memory
	// for fastest access. Maps to MAP_POPULATE on Linux.
	Prefault Options = 1 << 3
)

func (o Options) Has(v Options) bool {
	return o&v != 0
}

// Mapping is a read-only view of a file. Empty files map to an empty slice.
type Mapping struct {
	f    *os.File
	data []byte
}

func Open(path string, opt Options) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := stat.Size()
	if size > MaxSize {
		f.Close()
		return nil, fmt.Errorf("mmap: %s is %d bytes, larger than %d", path, size, int64(MaxSize))
	}
	m := &Mapping{f: f}
	if size > 0 {
		m.data, err = mmap(f, int(size), opt)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("mmap: %s: %w", path, err)
		}
	}
	return m, nil
}

// Bytes returns the mapped contents, valid until Close.
func (m *Mapping) Bytes() []byte {
	return m.data
}

func (m *Mapping) Len() int {
	return len(m.data)
}

func (m *Mapping) Close() error {
	var err error
	if m.data != nil {
		err = munmap(m.data)
		m.data = nil
	}
	if cerr := m.f.Close(); err == nil {
		err = cerr
	}
	return err
}
