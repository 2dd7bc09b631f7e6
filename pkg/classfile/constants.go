package classfile

import "encoding/binary"

// Magic numbers identifying the two on-disk formats.
const (
	MagicStandard uint32 = 0xCAFEBABE
	MagicCompact  uint16 = 0x4AEC
)

// Access flags.
const (
	AccPublic       uint16 = 0x0001
	AccPrivate      uint16 = 0x0002
	AccProtected    uint16 = 0x0004
	AccStatic       uint16 = 0x0008
	AccFinal        uint16 = 0x0010
	AccSynchronized uint16 = 0x0020
	AccSuper        uint16 = 0x0020
	AccNative       uint16 = 0x0100
	AccInterface    uint16 = 0x0200
	AccAbstract     uint16 = 0x0400
)

// Constant pool tags.
const (
	TagUtf8        uint8 = 1
	TagInt         uint8 = 3
	TagFloat       uint8 = 4
	TagLong        uint8 = 5
	TagDouble      uint8 = 6
	TagClass       uint8 = 7
	TagString      uint8 = 8
	TagField       uint8 = 9
	TagMethod      uint8 = 10
	TagIfaceMethod uint8 = 11
	TagNameType    uint8 = 12
)

// Field descriptor type characters.
const (
	TypeByte   = 'B'
	TypeChar   = 'C'
	TypeDouble = 'D'
	TypeFloat  = 'F'
	TypeInt    = 'I'
	TypeLong   = 'J'
	TypeShort  = 'S'
	TypeBool   = 'Z'
	TypeVoid   = 'V'
	TypeObject = 'L'
	TypeArray  = '['
	TypeObjEnd = ';'
)

// newarray element type codes.
const (
	ATypeBool   uint8 = 4
	ATypeChar   uint8 = 5
	ATypeFloat  uint8 = 6
	ATypeDouble uint8 = 7
	ATypeByte   uint8 = 8
	ATypeShort  uint8 = 9
	ATypeInt    uint8 = 10
	ATypeLong   uint8 = 11
)

// ATypeChars maps newarray type codes 4..11 to descriptor characters.
var ATypeChars = [...]byte{'Z', 'C', 'F', 'D', 'B', 'S', 'I', 'J'}

// TypeSize is the storage size of a field of the given descriptor type.
func TypeSize(t byte) int {
	switch t {
	case TypeByte, TypeBool:
		return 1
	case TypeChar, TypeShort:
		return 2
	case TypeDouble, TypeLong:
		return 8
	}
	return 4
}

// NameHash is the one-byte rolling hash stored for compact-format members
// and class names. Characters are folded from last to first.
func NameHash(s string) uint8 {
	c := uint8(0xCC)
	for i := len(s) - 1; i >= 0; i-- {
		c = c<<1 ^ hashCarry(c) ^ s[i]
	}
	return c
}

func hashCarry(c uint8) uint8 {
	if c&0x80 != 0 {
		return 0x41
	}
	return 0
}

func be16(b []byte, off int) uint16 { return binary.BigEndian.Uint16(b[off:]) }
func be32(b []byte, off int) uint32 { return binary.BigEndian.Uint32(b[off:]) }

func be24(b []byte, off int) uint32 {
	return uint32(b[off])<<16 | uint32(b[off+1])<<8 | uint32(b[off+2])
}
