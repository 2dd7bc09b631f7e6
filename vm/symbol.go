package vm

import "strings"

type symKind uint8

const (
	symPTR  symKind = iota // Go string
	symREF2                // constant of the thread's current class
	symREF                 // constant of a given class
	symIDX                 // UTF8 constant index
	symADR                 // u16 length + bytes at addr
	symUJC                 // u24 pointer at addr to a UTF8 record
)

// Sym is a string-like value that may still point into class content. It is
// compared and hashed in place; nothing is copied out of the byte source.
type Sym struct {
	kind symKind
	str  string
	cls  *Class
	t    *Thread
	src  ByteSource
	idx  uint16 // constant index
	off  uint16 // byte offset inside that constant naming a UTF8 index
	addr uint32
}

// Lit is a literal symbol.
func Lit(s string) Sym { return Sym{kind: symPTR, str: s} }

func refSym(cls *Class, idx, off uint16) Sym {
	return Sym{kind: symREF, cls: cls, idx: idx, off: off}
}

func ref2Sym(t *Thread, idx, off uint16) Sym {
	return Sym{kind: symREF2, t: t, idx: idx, off: off}
}

func idxSym(cls *Class, idx uint16) Sym {
	return Sym{kind: symIDX, cls: cls, idx: idx}
}

func adrSym(src ByteSource, addr uint32) Sym {
	return Sym{kind: symADR, src: src, addr: addr}
}

func ujcSym(src ByteSource, addr uint32) Sym {
	return Sym{kind: symUJC, src: src, addr: addr}
}

// step performs one reduction.
func (s Sym) step() Sym {
	switch s.kind {
	case symREF2:
		return refSym(s.t.cls, s.idx, s.off)
	case symREF:
		c := s.cls.findConst(s.idx)
		return idxSym(s.cls, be16(s.cls.src, c+uint32(s.off)))
	case symIDX:
		return adrSym(s.cls.src, s.cls.findConst(s.idx)+1)
	case symUJC:
		return adrSym(s.src, be24(s.src, s.addr)+1)
	}
	return s
}

// resolve reduces any variant to a literal or a resolved address. It is a
// no-op on an already resolved symbol.
func (s Sym) resolve() Sym {
	for s.kind != symPTR && s.kind != symADR {
		s = s.step()
	}
	return s
}

// Len returns the length in bytes.
func (s Sym) Len() int {
	s = s.resolve()
	if s.kind == symPTR {
		return len(s.str)
	}
	return int(be16(s.src, s.addr))
}

// At returns byte i.
func (s Sym) At(i int) byte {
	s = s.resolve()
	if s.kind == symPTR {
		return s.str[i]
	}
	return s.src.ByteAt(s.addr + 2 + uint32(i))
}

// Equal compares two symbols by content. Lengths are compared first and
// characters are then compared from the end backward.
func (s Sym) Equal(o Sym) bool {
	a, b := s.resolve(), o.resolve()
	n := a.Len()
	if n != b.Len() {
		return false
	}
	for i := n - 1; i >= 0; i-- {
		if a.At(i) != b.At(i) {
			return false
		}
	}
	return true
}

// EqualString compares against a Go string.
func (s Sym) EqualString(str string) bool { return s.Equal(Lit(str)) }

// Hash is the one-byte rolling hash used for fast candidate rejection.
func (s Sym) Hash() uint8 {
	s = s.resolve()
	c := uint8(0xCC)
	for i := s.Len() - 1; i >= 0; i-- {
		carry := uint8(0)
		if c&0x80 != 0 {
			carry = 0x41
		}
		c = c<<1 ^ carry ^ s.At(i)
	}
	return c
}

// HasPrefix reports whether the symbol starts with p.
func (s Sym) HasPrefix(p string) bool {
	s = s.resolve()
	if s.Len() < len(p) {
		return false
	}
	for i := 0; i < len(p); i++ {
		if s.At(i) != p[i] {
			return false
		}
	}
	return true
}

// String materializes the symbol. Used for logging and errors only.
func (s Sym) String() string {
	s = s.resolve()
	if s.kind == symPTR {
		return s.str
	}
	var sb strings.Builder
	n := s.Len()
	sb.Grow(n)
	for i := 0; i < n; i++ {
		sb.WriteByte(s.At(i))
	}
	return sb.String()
}
