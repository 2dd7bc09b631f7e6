package classfile

import (
	"errors"
	"fmt"
	"math"
)

// Format identifies an on-disk class representation.
type Format uint8

const (
	FormatStandard Format = iota + 1
	FormatCompact
)

func (f Format) String() string {
	switch f {
	case FormatStandard:
		return "standard"
	case FormatCompact:
		return "compact"
	}
	return "unknown"
}

var (
	ErrBadMagic  = errors.New("classfile: unrecognized magic")
	ErrTruncated = errors.New("classfile: truncated class")
)

// MemberInfo describes one field or method.
type MemberInfo struct {
	Flags     uint16
	Name      string
	Desc      string
	MaxStack  uint16
	MaxLocals uint16
	Code      []byte
	Handlers  []Handler
}

// HasCode reports whether the member carries a bytecode body.
func (m *MemberInfo) HasCode() bool { return m.Code != nil }

// Info is a decoded, read-only view of a class in either format. It is used
// by tooling; the VM itself reads classes lazily through a byte source.
type Info struct {
	Format     Format
	Name       string
	Super      string
	Flags      uint16
	Interfaces []string
	Fields     []MemberInfo
	Methods    []MemberInfo
	NumConsts  int

	consts []string // rendered constants by index
}

// Const renders the constant at idx for listings.
func (in *Info) Const(idx uint16) string {
	if int(idx) < len(in.consts) && in.consts[idx] != "" {
		return in.consts[idx]
	}
	return fmt.Sprintf("#%d?", idx)
}

// Probe reports the format of a class image without decoding it.
func Probe(b []byte) (Format, error) {
	if len(b) >= 4 && be32(b, 0) == MagicStandard {
		return FormatStandard, nil
	}
	if len(b) >= 2 && be16(b, 0) == MagicCompact {
		return FormatCompact, nil
	}
	return 0, ErrBadMagic
}

// Inspect decodes a class image in either format.
func Inspect(b []byte) (info *Info, err error) {
	f, err := Probe(b)
	if err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			info, err = nil, fmt.Errorf("%w: %v", ErrTruncated, r)
		}
	}()
	if f == FormatStandard {
		return inspectStandard(b)
	}
	return inspectCompact(b)
}

// ---------------------------------------------------------------------------
// Standard
// ---------------------------------------------------------------------------

func inspectStandard(b []byte) (*Info, error) {
	n := int(be16(b, 8))
	p := &Pool{entries: make([]PoolEntry, 0, n)}
	off := 10
	for i := 1; i < n; i++ {
		tag := b[off]
		e := PoolEntry{Tag: tag}
		switch tag {
		case TagUtf8:
			l := int(be16(b, off+1))
			e.Str = string(b[off+3 : off+3+l])
			off += 3 + l
		case TagInt, TagFloat:
			e.Bits = uint64(be32(b, off+1))
			off += 5
		case TagLong, TagDouble:
			e.Bits = uint64(be32(b, off+1))<<32 | uint64(be32(b, off+5))
			off += 9
		case TagClass, TagString:
			e.A = be16(b, off+1)
			off += 3
		case TagField, TagMethod, TagIfaceMethod, TagNameType:
			e.A, e.B = be16(b, off+1), be16(b, off+3)
			off += 5
		default:
			return nil, fmt.Errorf("classfile: unknown constant tag %d at %d", tag, off)
		}
		p.entries = append(p.entries, e)
		if tag == TagLong || tag == TagDouble {
			p.entries = append(p.entries, PoolEntry{})
			i++
		}
	}

	in := &Info{Format: FormatStandard, NumConsts: n, consts: make([]string, n)}
	for i := 1; i < n; i++ {
		if p.entries[i-1].Tag != 0 {
			in.consts[i] = p.Describe(uint16(i))
		}
	}
	className := func(idx uint16) string {
		if idx == 0 {
			return ""
		}
		return p.entries[p.entries[idx-1].A-1].Str
	}
	utf := func(idx uint16) string { return p.entries[idx-1].Str }

	in.Flags = be16(b, off)
	in.Name = className(be16(b, off+2))
	in.Super = className(be16(b, off+4))
	ni := int(be16(b, off+6))
	off += 8
	for i := 0; i < ni; i++ {
		in.Interfaces = append(in.Interfaces, className(be16(b, off)))
		off += 2
	}

	members := func(withCode bool) []MemberInfo {
		cnt := int(be16(b, off))
		off += 2
		out := make([]MemberInfo, 0, cnt)
		for i := 0; i < cnt; i++ {
			m := MemberInfo{Flags: be16(b, off), Name: utf(be16(b, off+2)), Desc: utf(be16(b, off+4))}
			na := int(be16(b, off+6))
			off += 8
			for j := 0; j < na; j++ {
				aname := utf(be16(b, off))
				alen := int(be32(b, off+2))
				if withCode && aname == "Code" {
					a := off + 6
					m.MaxStack = be16(b, a)
					m.MaxLocals = be16(b, a+2)
					cl := int(be32(b, a+4))
					m.Code = b[a+8 : a+8+cl]
					x := a + 8 + cl
					ne := int(be16(b, x))
					for k := 0; k < ne; k++ {
						e := x + 2 + 8*k
						m.Handlers = append(m.Handlers, Handler{be16(b, e), be16(b, e+2), be16(b, e+4), be16(b, e+6)})
					}
				}
				off += 6 + alen
			}
			out = append(out, m)
		}
		return out
	}
	in.Fields = members(false)
	in.Methods = members(true)
	return in, nil
}

// ---------------------------------------------------------------------------
// Compact
// ---------------------------------------------------------------------------

func inspectCompact(b []byte) (*Info, error) {
	n := int(be16(b, CompactNumConstsOff))
	in := &Info{Format: FormatCompact, NumConsts: n, consts: make([]string, n)}

	str := func(addr uint32) string {
		if b[addr] != TagUtf8 {
			panic(fmt.Sprintf("no UTF8 record at %d", addr))
		}
		l := uint32(be16(b, int(addr)+1))
		return string(b[addr+3 : addr+3+l])
	}
	constAddr := func(idx int) uint32 { return be24(b, CompactConstTableOff+3*(idx-1)) }
	utfIdx := func(idx uint16) string {
		if idx == 0 {
			return ""
		}
		return str(constAddr(int(idx)))
	}

	for i := 1; i < n; i++ {
		a := constAddr(i)
		if a == 0 {
			continue
		}
		at := int(a)
		switch b[at] {
		case TagUtf8:
			in.consts[i] = fmt.Sprintf("%q", str(a))
		case TagInt:
			in.consts[i] = fmt.Sprintf("int %d", int32(be32(b, at+1)))
		case TagFloat:
			in.consts[i] = fmt.Sprintf("float %g", math.Float32frombits(be32(b, at+1)))
		case TagLong:
			in.consts[i] = fmt.Sprintf("long %d", int64(uint64(be32(b, at+1))<<32|uint64(be32(b, at+5))))
		case TagDouble:
			in.consts[i] = fmt.Sprintf("double %g", math.Float64frombits(uint64(be32(b, at+1))<<32|uint64(be32(b, at+5))))
		case TagClass:
			in.consts[i] = "class " + str(be24(b, at+1))
		case TagString:
			in.consts[i] = fmt.Sprintf("string %q", str(be24(b, at+1)))
		case TagNameType:
			in.consts[i] = str(be24(b, at+1)) + ":" + str(be24(b, at+4))
		case TagField, TagMethod, TagIfaceMethod:
			in.consts[i] = fmt.Sprintf("%s.%s:%s", str(be24(b, at+1)), str(be24(b, at+4)), str(be24(b, at+7)))
		default:
			return nil, fmt.Errorf("classfile: unknown constant tag %d at %d", b[at], at)
		}
	}

	in.Name = utfIdx(be16(b, CompactNameOff))
	in.Super = utfIdx(be16(b, CompactSuperOff))
	in.Flags = be16(b, CompactFlagsOff)

	ifaces := int(be24(b, CompactIfacesOff))
	for i, cnt := 0, int(be16(b, ifaces-2)); i < cnt; i++ {
		in.Interfaces = append(in.Interfaces, str(be24(b, ifaces+3*i)))
	}
	fields := int(be24(b, CompactFieldsOff))
	for i, cnt := 0, int(be16(b, fields-2)); i < cnt; i++ {
		e := fields + CompactFieldSize*i
		in.Fields = append(in.Fields, MemberInfo{Flags: be16(b, e), Name: str(be24(b, e+4)), Desc: str(be24(b, e+7))})
	}
	methods := int(be24(b, CompactMethodsOff))
	for i, cnt := 0, int(be16(b, methods-2)); i < cnt; i++ {
		e := methods + CompactMethodSize*i
		m := MemberInfo{Flags: be16(b, e), Name: str(be24(b, e+4)), Desc: str(be24(b, e+7))}
		if code := int(be24(b, e+10)); code != 0 {
			ne := int(be16(b, code-6))
			m.MaxLocals = be16(b, code-4)
			m.MaxStack = be16(b, code-2)
			base := code - 6 - 8*ne
			for k := 0; k < ne; k++ {
				x := base + 8*k
				m.Handlers = append(m.Handlers, Handler{be16(b, x), be16(b, x+2), be16(b, x+4), be16(b, x+6)})
			}
			end := len(b)
			// The body runs up to the next body's exception table, or EOF.
			for j := 0; j < cnt; j++ {
				o := int(be24(b, methods+CompactMethodSize*j+10))
				if o > code {
					ne2 := int(be16(b, o-6))
					if s := o - 6 - 8*ne2; s < end {
						end = s
					}
				}
			}
			m.Code = b[code:end]
		}
		in.Methods = append(in.Methods, m)
	}
	return in, nil
}
