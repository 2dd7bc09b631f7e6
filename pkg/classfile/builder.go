package classfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

type member struct {
	flags uint16
	name  string
	desc  string
	code  *Code
}

// ClassBuilder assembles a class and encodes it in either on-disk format.
// Both encodings share one constant pool, so code bytes are identical.
type ClassBuilder struct {
	Name  string
	Super string // empty only for java/lang/Object
	Flags uint16
	Pool  *Pool

	interfaces []string
	fields     []member
	methods    []member
}

// NewClass starts a class definition.
func NewClass(name, super string, flags uint16) *ClassBuilder {
	return &ClassBuilder{Name: name, Super: super, Flags: flags, Pool: NewPool()}
}

// Implements declares interfaces.
func (b *ClassBuilder) Implements(names ...string) *ClassBuilder {
	b.interfaces = append(b.interfaces, names...)
	return b
}

// Field declares a field.
func (b *ClassBuilder) Field(flags uint16, name, desc string) *ClassBuilder {
	b.fields = append(b.fields, member{flags: flags, name: name, desc: desc})
	return b
}

// Code returns a new method body bound to this class's pool.
func (b *ClassBuilder) Code(maxStack, maxLocals int) *Code {
	return NewCode(b.Pool, maxStack, maxLocals)
}

// Method declares a method. code is nil for native or abstract methods.
func (b *ClassBuilder) Method(flags uint16, name, desc string, code *Code) *ClassBuilder {
	b.methods = append(b.methods, member{flags: flags, name: name, desc: desc, code: code})
	return b
}

// MethodIndex returns the method's position in the method table, as used by
// the pre-specialized invoke form.
func (b *ClassBuilder) MethodIndex(name, desc string) (uint16, bool) {
	for i, m := range b.methods {
		if m.name == name && m.desc == desc {
			return uint16(i), true
		}
	}
	return 0, false
}

// ---------------------------------------------------------------------------
// Standard encoding
// ---------------------------------------------------------------------------

type writer struct{ bytes.Buffer }

func (w *writer) u8(v uint8)   { w.WriteByte(v) }
func (w *writer) u16(v uint16) { w.Write(binary.BigEndian.AppendUint16(nil, v)) }
func (w *writer) u32(v uint32) { w.Write(binary.BigEndian.AppendUint32(nil, v)) }
func (w *writer) u64(v uint64) { w.Write(binary.BigEndian.AppendUint64(nil, v)) }

func (w *writer) u24(v uint32) {
	w.WriteByte(byte(v >> 16))
	w.WriteByte(byte(v >> 8))
	w.WriteByte(byte(v))
}

// Standard encodes the class in the 0xCAFEBABE format.
func (b *ClassBuilder) Standard() ([]byte, error) {
	p := b.Pool
	this := p.Class(b.Name)
	var super uint16
	if b.Super != "" {
		super = p.Class(b.Super)
	}
	ifaces := make([]uint16, len(b.interfaces))
	for i, n := range b.interfaces {
		ifaces[i] = p.Class(n)
	}
	codeName := p.Utf8("Code")

	type body struct {
		code     []byte
		handlers []Handler
	}
	bodies := make([]body, len(b.methods))
	for i, m := range b.methods {
		p.Utf8(m.name)
		p.Utf8(m.desc)
		if m.code == nil {
			continue
		}
		code, hs, err := m.code.Assemble()
		if err != nil {
			return nil, fmt.Errorf("%s.%s%s: %w", b.Name, m.name, m.desc, err)
		}
		bodies[i] = body{code, hs}
	}
	for _, f := range b.fields {
		p.Utf8(f.name)
		p.Utf8(f.desc)
	}
	if p.Count() > 0xFFFF {
		return nil, fmt.Errorf("classfile: constant pool too large (%d)", p.Count())
	}

	var w writer
	w.u32(MagicStandard)
	w.u16(0)  // minor
	w.u16(50) // major
	w.u16(uint16(p.Count()))
	for _, e := range p.entries {
		switch e.Tag {
		case 0:
			// second half of a long/double
		case TagUtf8:
			w.u8(e.Tag)
			w.u16(uint16(len(e.Str)))
			w.WriteString(e.Str)
		case TagInt, TagFloat:
			w.u8(e.Tag)
			w.u32(uint32(e.Bits))
		case TagLong, TagDouble:
			w.u8(e.Tag)
			w.u64(e.Bits)
		case TagClass, TagString:
			w.u8(e.Tag)
			w.u16(e.A)
		default:
			w.u8(e.Tag)
			w.u16(e.A)
			w.u16(e.B)
		}
	}

	w.u16(b.Flags)
	w.u16(this)
	w.u16(super)
	w.u16(uint16(len(ifaces)))
	for _, i := range ifaces {
		w.u16(i)
	}

	w.u16(uint16(len(b.fields)))
	for _, f := range b.fields {
		w.u16(f.flags)
		w.u16(p.Utf8(f.name))
		w.u16(p.Utf8(f.desc))
		w.u16(0)
	}

	w.u16(uint16(len(b.methods)))
	for i, m := range b.methods {
		w.u16(m.flags)
		w.u16(p.Utf8(m.name))
		w.u16(p.Utf8(m.desc))
		if m.code == nil {
			w.u16(0)
			continue
		}
		bd := bodies[i]
		w.u16(1)
		w.u16(codeName)
		w.u32(uint32(12 + len(bd.code) + 8*len(bd.handlers)))
		w.u16(m.code.MaxStack)
		w.u16(m.code.MaxLocals)
		w.u32(uint32(len(bd.code)))
		w.Write(bd.code)
		w.u16(uint16(len(bd.handlers)))
		for _, h := range bd.handlers {
			w.u16(h.Start)
			w.u16(h.End)
			w.u16(h.Target)
			w.u16(h.CatchType)
		}
		w.u16(0)
	}
	w.u16(0) // class attributes
	return w.Bytes(), nil
}

// ---------------------------------------------------------------------------
// Compact encoding
// ---------------------------------------------------------------------------

// Compact header offsets.
const (
	CompactNameOff       = 2
	CompactSuperOff      = 4
	CompactFlagsOff      = 6
	CompactIfacesOff     = 8
	CompactMethodsOff    = 11
	CompactFieldsOff     = 14
	CompactHashOff       = 17
	CompactNumConstsOff  = 18
	CompactConstTableOff = 20

	CompactFieldSize  = 10
	CompactMethodSize = 13
)

func compactRecordSize(e PoolEntry) int {
	switch e.Tag {
	case 0:
		return 0
	case TagUtf8:
		return 3 + len(e.Str)
	case TagInt, TagFloat:
		return 5
	case TagLong, TagDouble:
		return 9
	case TagClass, TagString:
		return 4
	case TagNameType:
		return 7
	}
	return 10
}

// Compact encodes the class in the 0x4AEC format. Every string pointer in
// the output addresses a UTF8 constant record.
func (b *ClassBuilder) Compact() ([]byte, error) {
	p := b.Pool
	nameIdx := p.Utf8(b.Name)
	var superIdx uint16
	if b.Super != "" {
		superIdx = p.Utf8(b.Super)
	}
	for _, n := range b.interfaces {
		p.Utf8(n)
	}
	for _, f := range b.fields {
		p.Utf8(f.name)
		p.Utf8(f.desc)
	}
	type body struct {
		code     []byte
		handlers []Handler
	}
	bodies := make([]body, len(b.methods))
	for i, m := range b.methods {
		p.Utf8(m.name)
		p.Utf8(m.desc)
		if m.code == nil {
			continue
		}
		code, hs, err := m.code.Assemble()
		if err != nil {
			return nil, fmt.Errorf("%s.%s%s: %w", b.Name, m.name, m.desc, err)
		}
		bodies[i] = body{code, hs}
	}

	n := len(p.entries)
	addr := make([]uint32, n+1)
	cur := uint32(CompactConstTableOff + 3*n)
	for i, e := range p.entries {
		if e.Tag != 0 {
			addr[i+1] = cur
		}
		cur += uint32(compactRecordSize(e))
	}
	utf := func(s string) uint32 { return addr[p.Utf8(s)] }

	ifacesAt := cur + 2
	cur = ifacesAt + 3*uint32(len(b.interfaces))
	fieldsAt := cur + 2
	cur = fieldsAt + CompactFieldSize*uint32(len(b.fields))
	methodsAt := cur + 2
	cur = methodsAt + CompactMethodSize*uint32(len(b.methods))

	codeAt := make([]uint32, len(b.methods))
	for i, m := range b.methods {
		if m.code == nil {
			continue
		}
		cur += 8*uint32(len(bodies[i].handlers)) + 6
		codeAt[i] = cur
		cur += uint32(len(bodies[i].code))
	}
	if cur > 0xFFFFFF {
		return nil, fmt.Errorf("classfile: compact class too large (%d bytes)", cur)
	}

	var w writer
	w.u16(MagicCompact)
	w.u16(nameIdx)
	w.u16(superIdx)
	w.u16(b.Flags)
	w.u24(ifacesAt)
	w.u24(methodsAt)
	w.u24(fieldsAt)
	w.u8(NameHash(b.Name))
	w.u16(uint16(n + 1))
	for i := 1; i <= n; i++ {
		w.u24(addr[i])
	}

	for _, e := range p.entries {
		switch e.Tag {
		case 0:
		case TagUtf8:
			w.u8(e.Tag)
			w.u16(uint16(len(e.Str)))
			w.WriteString(e.Str)
		case TagInt, TagFloat:
			w.u8(e.Tag)
			w.u32(uint32(e.Bits))
		case TagLong, TagDouble:
			w.u8(e.Tag)
			w.u64(e.Bits)
		case TagClass, TagString:
			w.u8(e.Tag)
			w.u24(addr[e.A])
		case TagNameType:
			w.u8(e.Tag)
			w.u24(addr[e.A])
			w.u24(addr[e.B])
		default:
			cls := p.entries[e.A-1]
			nt := p.entries[e.B-1]
			w.u8(e.Tag)
			w.u24(addr[cls.A])
			w.u24(addr[nt.A])
			w.u24(addr[nt.B])
		}
	}

	w.u16(uint16(len(b.interfaces)))
	for _, name := range b.interfaces {
		w.u24(utf(name))
	}
	w.u16(uint16(len(b.fields)))
	for _, f := range b.fields {
		w.u16(f.flags)
		w.u8(NameHash(f.name))
		w.u8(NameHash(f.desc))
		w.u24(utf(f.name))
		w.u24(utf(f.desc))
	}
	w.u16(uint16(len(b.methods)))
	for i, m := range b.methods {
		w.u16(m.flags)
		w.u8(NameHash(m.name))
		w.u8(NameHash(m.desc))
		w.u24(utf(m.name))
		w.u24(utf(m.desc))
		w.u24(codeAt[i])
	}
	for i, m := range b.methods {
		if m.code == nil {
			continue
		}
		bd := bodies[i]
		for _, h := range bd.handlers {
			w.u16(h.Start)
			w.u16(h.End)
			w.u16(h.Target)
			w.u16(h.CatchType)
		}
		w.u16(uint16(len(bd.handlers)))
		w.u16(m.code.MaxLocals)
		w.u16(m.code.MaxStack)
		w.Write(bd.code)
	}
	return w.Bytes(), nil
}
