// Package mmap maps dataset files into memory read-only.
package mmap

import (
	"fmt"
	"os"
)

// Mapping is a read-only view of a whole file.
// Data must not be used after Close.
type Mapping struct {
	Data []byte

	file   *os.File
	mapped bool
}

// Open maps path into memory. Empty files and platforms without mmap support
// fall back to reading the file into the heap.
func Open(path string) (*Mapping, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	size := info.Size()
	if size == 0 {
		file.Close()
		return &Mapping{Data: []byte{}}, nil
	}
	if int64(int(size)) != size {
		file.Close()
		return nil, fmt.Errorf("file %s too large to map (%d bytes)", path, size)
	}

	data, err := mmapFile(file.Fd(), int(size))
	if err != nil {
		file.Close()
		raw, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil, fmt.Errorf("mmap %s: %w", path, err)
		}
		return &Mapping{Data: raw}, nil
	}
	return &Mapping{Data: data, file: file, mapped: true}, nil
}

// Size returns the mapped length in bytes.
func (m *Mapping) Size() int { return len(m.Data) }

// Close unmaps the data and closes the file. Calling Close twice is safe.
func (m *Mapping) Close() error {
	if m == nil {
		return nil
	}
	var err error
	if m.mapped {
		err = munmapFile(m.Data)
		m.mapped = false
	}
	m.Data = nil
	if m.file != nil {
		if cerr := m.file.Close(); err == nil {
			err = cerr
		}
		m.file = nil
	}
	return err
}
