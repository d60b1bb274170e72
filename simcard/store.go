package simcard

import (
	"fmt"
	"io"
	"os"
)

// Store backs the simulated card's memory array.
type Store interface {
	io.ReaderAt
	io.WriterAt

	// Size returns the capacity in bytes
	Size() int64
}

// MemStore is an in-memory Store.
type MemStore struct {
	data []byte
}

// NewMemStore returns a store of size bytes filled with 0xFF, like a freshly
// erased card.
func NewMemStore(size int64) *MemStore {
	data := make([]byte, size)
	for i := range data {
		data[i] = 0xFF
	}
	return &MemStore{data: data}
}

func (m *MemStore) Size() int64 { return int64(len(m.data)) }

func (m *MemStore) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *MemStore) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return 0, fmt.Errorf("write of %d bytes at %d exceeds %d byte store", len(p), off, len(m.data))
	}
	return copy(m.data[off:], p), nil
}

// FileStore is a Store backed by a disk image.
type FileStore struct {
	f    *os.File
	size int64
}

// OpenImage opens an existing image file read-write. Its size becomes the
// card capacity.
func OpenImage(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat image: %w", err)
	}
	return &FileStore{f: f, size: info.Size()}, nil
}

// CreateImage creates (or truncates) an image file of size bytes.
func CreateImage(path string, size int64) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create image: %w", err)
	}
	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("size image: %w", err)
	}
	return &FileStore{f: f, size: size}, nil
}

func (s *FileStore) Size() int64 { return s.size }

func (s *FileStore) ReadAt(p []byte, off int64) (int, error) {
	n, err := s.f.ReadAt(p, off)
	if err == io.EOF && off+int64(len(p)) <= s.size {
		// sparse tail of a truncated image reads as zeros
		for i := n; i < len(p); i++ {
			p[i] = 0
		}
		return len(p), nil
	}
	return n, err
}

func (s *FileStore) WriteAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > s.size {
		return 0, fmt.Errorf("write of %d bytes at %d exceeds %d byte image", len(p), off, s.size)
	}
	return s.f.WriteAt(p, off)
}

// Close closes the image file.
func (s *FileStore) Close() error {
	return s.f.Close()
}
