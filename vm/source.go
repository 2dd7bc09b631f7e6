package vm

import (
	"fmt"
	"io"
	"os"
)

// ByteSource is the only way the VM reads class content. Offsets are
// relative to the first byte of one class.
type ByteSource interface {
	ByteAt(off uint32) byte
}

// ByteSourceFunc adapts a plain function.
type ByteSourceFunc func(off uint32) byte

func (f ByteSourceFunc) ByteAt(off uint32) byte { return f(off) }

// MemorySource serves a class held in memory.
type MemorySource []byte

func (m MemorySource) ByteAt(off uint32) byte { return m[off] }

// SliceSource views a class embedded at Base inside another source, such as
// one record of a packed container.
type SliceSource struct {
	Src  ByteSource
	Base uint32
}

func (s SliceSource) ByteAt(off uint32) byte { return s.Src.ByteAt(s.Base + off) }

// ---------------------------------------------------------------------------
// FileSource
// ---------------------------------------------------------------------------

const fileWindow = 64

// FileSource reads a class directly from an open file through a small
// read-ahead window. Read errors yield zero bytes and are kept for Err.
type FileSource struct {
	f     *os.File
	buf   [fileWindow]byte
	start int64
	n     int
	err   error
}

// OpenFileSource opens path for lazy class reading.
func OpenFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening class file: %w", err)
	}
	return &FileSource{f: f, start: -1}, nil
}

func (s *FileSource) ByteAt(off uint32) byte {
	pos := int64(off)
	if s.start < 0 || pos < s.start || pos >= s.start+int64(s.n) {
		n, err := s.f.ReadAt(s.buf[:], pos)
		if err != nil && err != io.EOF {
			s.err = err
		}
		if n == 0 {
			if s.err == nil {
				s.err = fmt.Errorf("read past end of %s at %d", s.f.Name(), off)
			}
			return 0
		}
		s.start, s.n = pos, n
	}
	return s.buf[pos-s.start]
}

// Err returns the first read error seen, if any.
func (s *FileSource) Err() error { return s.err }

func (s *FileSource) Close() error { return s.f.Close() }

// ---------------------------------------------------------------------------
// Big-endian helpers
// ---------------------------------------------------------------------------

func be16(s ByteSource, off uint32) uint16 {
	return uint16(s.ByteAt(off))<<8 | uint16(s.ByteAt(off+1))
}

func be24(s ByteSource, off uint32) uint32 {
	return uint32(s.ByteAt(off))<<16 | uint32(s.ByteAt(off+1))<<8 | uint32(s.ByteAt(off+2))
}

func be32(s ByteSource, off uint32) uint32 {
	return uint32(be16(s, off))<<16 | uint32(be16(s, off+2))
}

func be64(s ByteSource, off uint32) uint64 {
	return uint64(be32(s, off))<<32 | uint64(be32(s, off+4))
}
