package vm

import (
	"encoding/binary"

	"github.com/chazu/ujvm/heap"
	"github.com/chazu/ujvm/pkg/classfile"
)

// Handle names a heap object. Zero is null.
type Handle = heap.Handle

// Heap is the allocator contract the VM consumes. It is exactly the eight
// operations below; heap.Arena is the reference implementation.
type Heap interface {
	Alloc(size int) (Handle, error)
	AllocFixed(size int) (Handle, error)
	Lock(h Handle) []byte
	Release(h Handle)
	Locked(h Handle) ([]byte, bool)
	Mark(h Handle, m uint8)
	FirstMarked(m uint8) Handle
	Free(h Handle)
}

// Object header layout (little-endian):
//
//	0  class ID (0 for arrays)
//	4  monitor holder thread ID
//	8  monitor count
//	10 element type for arrays
//	12 instance data, or array length followed by elements at 16
const (
	hdrClass    = 0
	hdrMonOwner = 4
	hdrMonCount = 8
	hdrElemType = 10
	hdrSize     = 12
	arrLength   = 12
	arrData     = 16
)

var le = binary.LittleEndian

// withObject runs fn with h locked and always releases it.
func (v *VM) withObject(h Handle, fn func(b []byte) error) error {
	b := v.heap.Lock(h)
	defer v.heap.Release(h)
	return fn(b)
}

func (v *VM) alloc(size int, fixed bool) (Handle, error) {
	var h Handle
	var err error
	if fixed {
		h, err = v.heap.AllocFixed(size)
	} else {
		h, err = v.heap.Alloc(size)
	}
	if err != nil {
		v.log.Debugf("allocation of %d bytes failed: %v", size, err)
		return 0, ErrOutOfMemory
	}
	return h, nil
}

// NewInstance allocates a zeroed instance of cls.
func (v *VM) NewInstance(cls *Class) (Handle, error) {
	return v.newInstance(cls, false)
}

func (v *VM) newInstance(cls *Class, fixed bool) (Handle, error) {
	h, err := v.alloc(hdrSize+int(cls.InstDataOfst+cls.InstDataSize), fixed)
	if err != nil {
		return 0, err
	}
	v.withObject(h, func(b []byte) error {
		le.PutUint32(b[hdrClass:], cls.ID)
		return nil
	})
	return h, nil
}

// elemSize is the storage size of one array element of type t.
func elemSize(t byte) int {
	if t == classfile.TypeObject || t == classfile.TypeArray {
		return 4
	}
	return classfile.TypeSize(t)
}

func isRefType(t byte) bool {
	return t == classfile.TypeObject || t == classfile.TypeArray
}

// NewArray allocates a zeroed array of n elements of type t.
func (v *VM) NewArray(t byte, n int32) (Handle, error) {
	return v.newArray(t, n, false)
}

func (v *VM) newArray(t byte, n int32, fixed bool) (Handle, error) {
	if n < 0 {
		return 0, ErrNegArrSize
	}
	h, err := v.alloc(arrData+int(n)*elemSize(t), fixed)
	if err != nil {
		return 0, err
	}
	v.withObject(h, func(b []byte) error {
		b[hdrElemType] = t
		le.PutUint32(b[arrLength:], uint32(n))
		return nil
	})
	return h, nil
}

// ClassOf returns the class of an instance, or nil for an array.
func (v *VM) ClassOf(h Handle) *Class {
	var id uint32
	v.withObject(h, func(b []byte) error {
		id = le.Uint32(b[hdrClass:])
		return nil
	})
	return v.classByID(id)
}

// dispatchClass is the class used for method binding. Arrays bind to
// java/lang/Object.
func (v *VM) dispatchClass(h Handle) *Class {
	if c := v.ClassOf(h); c != nil {
		return c
	}
	return v.objectClass
}

// ArrayLen returns the length of an array.
func (v *VM) ArrayLen(h Handle) int32 {
	var n int32
	v.withObject(h, func(b []byte) error {
		n = int32(le.Uint32(b[arrLength:]))
		return nil
	})
	return n
}

// ArrayBytes copies the raw element bytes of an array.
func (v *VM) ArrayBytes(h Handle) []byte {
	var out []byte
	v.withObject(h, func(b []byte) error {
		n := le.Uint32(b[arrLength:]) * uint32(elemSize(b[hdrElemType]))
		out = append([]byte(nil), b[arrData:arrData+n]...)
		return nil
	})
	return out
}

// NewByteArray allocates a byte[] holding data.
func (v *VM) NewByteArray(data []byte) (Handle, error) {
	return v.newByteArray(data, false)
}

func (v *VM) newByteArray(data []byte, fixed bool) (Handle, error) {
	h, err := v.newArray(classfile.TypeByte, int32(len(data)), fixed)
	if err != nil {
		return 0, err
	}
	v.withObject(h, func(b []byte) error {
		copy(b[arrData:], data)
		return nil
	})
	return h, nil
}

// ---------------------------------------------------------------------------
// Typed field storage
// ---------------------------------------------------------------------------

// loadField reads a value of type t at b[off:] as stack words.
func loadField(b []byte, off uint32, t byte) (hi, lo uint32, wide, ref bool) {
	switch t {
	case classfile.TypeByte:
		return 0, uint32(int32(int8(b[off]))), false, false
	case classfile.TypeBool:
		return 0, uint32(b[off]), false, false
	case classfile.TypeChar:
		return 0, uint32(le.Uint16(b[off:])), false, false
	case classfile.TypeShort:
		return 0, uint32(int32(int16(le.Uint16(b[off:])))), false, false
	case classfile.TypeLong, classfile.TypeDouble:
		v := le.Uint64(b[off:])
		return uint32(v >> 32), uint32(v), true, false
	}
	return 0, le.Uint32(b[off:]), false, isRefType(t)
}

// storeField writes a stack value of type t at b[off:].
func storeField(b []byte, off uint32, t byte, hi, lo uint32) {
	switch t {
	case classfile.TypeByte, classfile.TypeBool:
		b[off] = byte(lo)
	case classfile.TypeChar, classfile.TypeShort:
		le.PutUint16(b[off:], uint16(lo))
	case classfile.TypeLong, classfile.TypeDouble:
		le.PutUint64(b[off:], uint64(hi)<<32|uint64(lo))
	default:
		le.PutUint32(b[off:], lo)
	}
}

// InstanceField reads a 32-bit field at data offset off of an instance.
// Intended for native classes, whose fields have no names.
func (v *VM) InstanceField(h Handle, off uint32) uint32 {
	var x uint32
	v.withObject(h, func(b []byte) error {
		x = le.Uint32(b[hdrSize+off:])
		return nil
	})
	return x
}

// SetInstanceField writes a 32-bit field at data offset off.
func (v *VM) SetInstanceField(h Handle, off uint32, x uint32) {
	v.withObject(h, func(b []byte) error {
		le.PutUint32(b[hdrSize+off:], x)
		return nil
	})
}
