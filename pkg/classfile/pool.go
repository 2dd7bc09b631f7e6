package classfile

import (
	"fmt"
	"math"
)

// PoolEntry is one constant. Long and double constants are followed by an
// unusable placeholder entry with Tag 0.
type PoolEntry struct {
	Tag  uint8
	Str  string // UTF8
	A, B uint16 // referenced indices
	Bits uint64 // numeric payload
}

// Pool is an interning constant pool shared by both encodings. Index 0 is
// never used.
type Pool struct {
	entries []PoolEntry
	index   map[string]uint16
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{index: make(map[string]uint16)}
}

// Count is the constant_pool_count value: one more than the last index.
func (p *Pool) Count() int {
	return len(p.entries) + 1
}

// Entry returns the constant at a 1-based index.
func (p *Pool) Entry(idx uint16) PoolEntry {
	return p.entries[idx-1]
}

func (p *Pool) intern(key string, e PoolEntry) uint16 {
	if idx, ok := p.index[key]; ok {
		return idx
	}
	p.entries = append(p.entries, e)
	idx := uint16(len(p.entries))
	if e.Tag == TagLong || e.Tag == TagDouble {
		p.entries = append(p.entries, PoolEntry{})
	}
	p.index[key] = idx
	return idx
}

func (p *Pool) Utf8(s string) uint16 {
	return p.intern("u:"+s, PoolEntry{Tag: TagUtf8, Str: s})
}

func (p *Pool) Class(name string) uint16 {
	n := p.Utf8(name)
	return p.intern("c:"+name, PoolEntry{Tag: TagClass, A: n})
}

func (p *Pool) StringConst(s string) uint16 {
	n := p.Utf8(s)
	return p.intern("s:"+s, PoolEntry{Tag: TagString, A: n})
}

func (p *Pool) Int(v int32) uint16 {
	return p.intern(fmt.Sprintf("i:%d", v), PoolEntry{Tag: TagInt, Bits: uint64(uint32(v))})
}

func (p *Pool) Float(v float32) uint16 {
	bits := math.Float32bits(v)
	return p.intern(fmt.Sprintf("f:%08x", bits), PoolEntry{Tag: TagFloat, Bits: uint64(bits)})
}

func (p *Pool) Long(v int64) uint16 {
	return p.intern(fmt.Sprintf("l:%d", v), PoolEntry{Tag: TagLong, Bits: uint64(v)})
}

func (p *Pool) Double(v float64) uint16 {
	bits := math.Float64bits(v)
	return p.intern(fmt.Sprintf("d:%016x", bits), PoolEntry{Tag: TagDouble, Bits: bits})
}

func (p *Pool) NameType(name, desc string) uint16 {
	n, d := p.Utf8(name), p.Utf8(desc)
	return p.intern("n:"+name+":"+desc, PoolEntry{Tag: TagNameType, A: n, B: d})
}

func (p *Pool) Field(class, name, desc string) uint16 {
	return p.ref(TagField, class, name, desc)
}

func (p *Pool) Method(class, name, desc string) uint16 {
	return p.ref(TagMethod, class, name, desc)
}

func (p *Pool) IfaceMethod(class, name, desc string) uint16 {
	return p.ref(TagIfaceMethod, class, name, desc)
}

func (p *Pool) ref(tag uint8, class, name, desc string) uint16 {
	c, nt := p.Class(class), p.NameType(name, desc)
	key := fmt.Sprintf("r%d:%s.%s:%s", tag, class, name, desc)
	return p.intern(key, PoolEntry{Tag: tag, A: c, B: nt})
}

// Describe renders a constant for disassembly comments.
func (p *Pool) Describe(idx uint16) string {
	if idx == 0 || int(idx) > len(p.entries) {
		return fmt.Sprintf("#%d?", idx)
	}
	e := p.entries[idx-1]
	switch e.Tag {
	case TagUtf8:
		return fmt.Sprintf("%q", e.Str)
	case TagInt:
		return fmt.Sprintf("int %d", int32(e.Bits))
	case TagFloat:
		return fmt.Sprintf("float %g", math.Float32frombits(uint32(e.Bits)))
	case TagLong:
		return fmt.Sprintf("long %d", int64(e.Bits))
	case TagDouble:
		return fmt.Sprintf("double %g", math.Float64frombits(e.Bits))
	case TagClass:
		return "class " + p.entries[e.A-1].Str
	case TagString:
		return fmt.Sprintf("string %q", p.entries[e.A-1].Str)
	case TagNameType:
		return p.entries[e.A-1].Str + ":" + p.entries[e.B-1].Str
	case TagField, TagMethod, TagIfaceMethod:
		cls := p.entries[p.entries[e.A-1].A-1].Str
		nt := p.entries[e.B-1]
		return fmt.Sprintf("%s.%s:%s", cls, p.entries[nt.A-1].Str, p.entries[nt.B-1].Str)
	}
	return fmt.Sprintf("#%d", idx)
}
