package classfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// Containers concatenate classes as records of a 3-byte big-endian length
// followed by the class bytes. A zero-length record ends the container.

const maxRecord = 0xFFFFFF

var ErrRecordTooLarge = errors.New("classfile: class too large for container record")

// WriteContainer writes classes as a terminated container.
func WriteContainer(w io.Writer, classes [][]byte) error {
	bw := bufio.NewWriter(w)
	for i, c := range classes {
		if len(c) == 0 {
			return fmt.Errorf("classfile: container record %d is empty", i)
		}
		if len(c) > maxRecord {
			return fmt.Errorf("%w: record %d is %d bytes", ErrRecordTooLarge, i, len(c))
		}
		n := len(c)
		bw.Write([]byte{byte(n >> 16), byte(n >> 8), byte(n)})
		bw.Write(c)
	}
	bw.Write([]byte{0, 0, 0})
	return bw.Flush()
}

// Pack returns the container bytes for classes.
func Pack(classes [][]byte) ([]byte, error) {
	var w writer
	if err := WriteContainer(&w, classes); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Record locates one class inside a container.
type Record struct {
	Offset int // first byte of the class
	Length int
}

// Records lists the records of a container. A missing terminator is
// tolerated at end of input.
func Records(b []byte) ([]Record, error) {
	var out []Record
	off := 0
	for off+3 <= len(b) {
		n := int(be24(b, off))
		off += 3
		if n == 0 {
			return out, nil
		}
		if off+n > len(b) {
			return nil, fmt.Errorf("%w: record at %d claims %d bytes", ErrTruncated, off-3, n)
		}
		out = append(out, Record{Offset: off, Length: n})
		off += n
	}
	if off != len(b) {
		return nil, fmt.Errorf("%w: trailing %d bytes", ErrTruncated, len(b)-off)
	}
	return out, nil
}

// Unpack splits a container into its class images.
func Unpack(b []byte) ([][]byte, error) {
	recs, err := Records(b)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(recs))
	for i, r := range recs {
		out[i] = b[r.Offset : r.Offset+r.Length]
	}
	return out, nil
}
