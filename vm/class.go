package vm

import "github.com/chazu/ujvm/pkg/classfile"

// Format is a class's backing representation.
type Format uint8

const (
	FormatNative Format = iota
	FormatCompact
	FormatStandard
)

func (f Format) String() string {
	switch f {
	case FormatNative:
		return "native"
	case FormatCompact:
		return "compact"
	}
	return "standard"
}

// Class is a loaded class descriptor. Bytecode classes keep no decoded
// members: everything is re-read from the byte source on use, addressed by
// offsets cached at load time.
type Class struct {
	next  *Class
	Super *Class
	ID    uint32

	// Data layout, cumulative over the ancestor chain.
	InstDataOfst uint32
	InstDataSize uint32
	ClsDataOfst  uint32
	ClsDataSize  uint32

	Format   Format
	nameHash uint8
	mark     uint8 // instanceof scratch

	monHolder uint32
	monCount  uint16

	statics []byte

	native *NativeClass

	src        ByteSource
	interfaces uint32 // each region offset points just past its u16 count
	fields     uint32
	methods    uint32
}

// NativeFunc implements a native method. It pops its own arguments from t
// and pushes its result.
type NativeFunc func(t *Thread, cls *Class) error

// NativeMethod is one entry of a native class's method table.
type NativeMethod struct {
	Name  string
	Desc  string
	Flags uint16
	Func  NativeFunc
}

// NativeClass describes a class implemented in Go.
type NativeClass struct {
	Name       string
	Flags      uint16
	StaticSize uint32
	InstSize   uint32
	Methods    []NativeMethod

	// GCStatics marks references held in the class's static data.
	GCStatics func(v *VM, cls *Class)
	// GCInstance marks references held in one instance's native fields.
	GCInstance func(v *VM, cls *Class, h Handle)
}

// NameSym returns the class name without materializing it.
func (c *Class) NameSym() Sym {
	switch c.Format {
	case FormatNative:
		return Lit(c.native.Name)
	case FormatCompact:
		return idxSym(c, be16(c.src, classfile.CompactNameOff))
	}
	return refSym(c, be16(c.src, c.interfaces-6), 1)
}

// Name returns the class name.
func (c *Class) Name() string { return c.NameSym().String() }

// Flags returns the class access flags.
func (c *Class) Flags() uint16 {
	switch c.Format {
	case FormatNative:
		return c.native.Flags
	case FormatCompact:
		return be16(c.src, classfile.CompactFlagsOff)
	}
	return be16(c.src, c.interfaces-8)
}

func (c *Class) IsInterface() bool { return c.Flags()&classfile.AccInterface != 0 }

func (c *Class) IsNative() bool { return c.Format == FormatNative }

// Statics exposes the class's static data area. Fields of this class start
// at ClsDataOfst.
func (c *Class) Statics() []byte { return c.statics }

// findConst returns the offset of constant idx's tag byte.
func (c *Class) findConst(idx uint16) uint32 {
	if c.Format == FormatCompact {
		return be24(c.src, classfile.CompactConstTableOff+3*uint32(idx-1))
	}
	off := uint32(10)
	for i := uint16(1); i < idx; i++ {
		switch c.src.ByteAt(off) {
		case classfile.TagUtf8:
			off += 3 + uint32(be16(c.src, off+1))
		case classfile.TagInt, classfile.TagFloat:
			off += 5
		case classfile.TagLong, classfile.TagDouble:
			off += 9
			i++
		case classfile.TagClass, classfile.TagString:
			off += 3
		default:
			off += 5
		}
	}
	return off
}

// ---------------------------------------------------------------------------
// Members
// ---------------------------------------------------------------------------

type member struct {
	flags    uint16
	name     Sym
	desc     Sym
	nameHash uint8
	descHash uint8
	hashed   bool
	code     uint32 // first instruction, 0 if none
	index    int
	native   *NativeMethod
}

var codeAttr = Lit("Code")

// eachMember visits the fields or methods of c in declaration order until
// fn returns false.
func (c *Class) eachMember(methods bool, fn func(m *member) bool) {
	switch c.Format {
	case FormatNative:
		if !methods {
			return
		}
		for i := range c.native.Methods {
			nm := &c.native.Methods[i]
			m := member{flags: nm.Flags, name: Lit(nm.Name), desc: Lit(nm.Desc), index: i, native: nm}
			if !fn(&m) {
				return
			}
		}

	case FormatCompact:
		region, size := c.fields, uint32(classfile.CompactFieldSize)
		if methods {
			region, size = c.methods, classfile.CompactMethodSize
		}
		n := int(be16(c.src, region-2))
		for i := 0; i < n; i++ {
			e := region + size*uint32(i)
			m := member{
				flags:    be16(c.src, e),
				nameHash: c.src.ByteAt(e + 2),
				descHash: c.src.ByteAt(e + 3),
				hashed:   true,
				name:     ujcSym(c.src, e+4),
				desc:     ujcSym(c.src, e+7),
				index:    i,
			}
			if methods {
				m.code = be24(c.src, e+10)
			}
			if !fn(&m) {
				return
			}
		}

	default:
		off := c.fields
		if methods {
			off = c.methods
		}
		n := int(be16(c.src, off-2))
		for i := 0; i < n; i++ {
			m := member{
				flags: be16(c.src, off),
				name:  idxSym(c, be16(c.src, off+2)),
				desc:  idxSym(c, be16(c.src, off+4)),
				index: i,
			}
			attrs := int(be16(c.src, off+6))
			off += 8
			for j := 0; j < attrs; j++ {
				if methods && idxSym(c, be16(c.src, off)).Equal(codeAttr) {
					m.code = off + 14
				}
				off += 6 + be32(c.src, off+2)
			}
			if !fn(&m) {
				return
			}
		}
	}
}

// skipMembers returns the offset just past a standard-format member table
// whose entries start at off.
func skipMembers(src ByteSource, off uint32) uint32 {
	n := int(be16(src, off-2))
	for i := 0; i < n; i++ {
		attrs := int(be16(src, off+6))
		off += 8
		for j := 0; j < attrs; j++ {
			off += 6 + be32(src, off+2)
		}
	}
	return off
}

// eachInterface visits the names of the interfaces c declares.
func (c *Class) eachInterface(fn func(name Sym) bool) {
	switch c.Format {
	case FormatNative:
		return
	case FormatCompact:
		n := int(be16(c.src, c.interfaces-2))
		for i := 0; i < n; i++ {
			if !fn(adrSym(c.src, be24(c.src, c.interfaces+3*uint32(i))+1)) {
				return
			}
		}
	default:
		n := int(be16(c.src, c.interfaces-2))
		for i := 0; i < n; i++ {
			if !fn(refSym(c, be16(c.src, c.interfaces+2*uint32(i)), 1)) {
				return
			}
		}
	}
}

// frameSize reads max_locals and max_stack for the method whose code
// starts at start.
func (c *Class) frameSize(start uint32) (maxLocals, maxStack uint16) {
	if c.Format == FormatCompact {
		return be16(c.src, start-4), be16(c.src, start-2)
	}
	return be16(c.src, start-6), be16(c.src, start-8)
}

// handlerTable locates a method's exception table.
func (c *Class) handlerTable(start uint32) (base uint32, n int) {
	if c.Format == FormatCompact {
		n = int(be16(c.src, start-6))
		return start - 6 - 8*uint32(n), n
	}
	end := start + be32(c.src, start-4)
	return end + 2, int(be16(c.src, end))
}

// ---------------------------------------------------------------------------
// Lookup
// ---------------------------------------------------------------------------

// Method is a resolved method: the declaring class plus the offset of its
// code in that class's byte source, or its native entry.
type Method struct {
	Class  *Class
	Flags  uint16
	Name   Sym
	Desc   Sym
	Index  int
	Start  uint32
	Native *NativeMethod
}

func (m *Method) IsStatic() bool { return m.Flags&classfile.AccStatic != 0 }

func (m *Method) IsSynchronized() bool { return m.Flags&classfile.AccSynchronized != 0 }

func (m *Method) IsNative() bool { return m.Native != nil }

func methodFrom(c *Class, m *member) Method {
	return Method{Class: c, Flags: m.flags, Name: m.name, Desc: m.desc, Index: m.index, Start: m.code, Native: m.native}
}

// findMethod searches cls, and its ancestors if searchSuper, for a method
// whose flags satisfy flags&flagsAnd == flagsEq.
func (v *VM) findMethod(cls *Class, name, desc Sym, flagsAnd, flagsEq uint16, searchSuper bool) (Method, bool) {
	var nh, dh uint8
	if v.fastSearch {
		nh, dh = name.Hash(), desc.Hash()
	}
	for c := cls; c != nil; c = c.Super {
		var found Method
		ok := false
		c.eachMember(true, func(m *member) bool {
			if m.flags&flagsAnd != flagsEq {
				return true
			}
			if v.fastSearch && m.hashed && (m.nameHash != nh || m.descHash != dh) {
				return true
			}
			if m.name.Equal(name) && m.desc.Equal(desc) {
				found, ok = methodFrom(c, m), true
				return false
			}
			return true
		})
		if ok {
			return found, true
		}
		if !searchSuper {
			break
		}
	}
	return Method{}, false
}

// methodAt returns the method at position index of cls's own table.
func (c *Class) methodAt(index int) (Method, bool) {
	var found Method
	ok := false
	c.eachMember(true, func(m *member) bool {
		if m.index == index {
			found, ok = methodFrom(c, m), true
			return false
		}
		return true
	})
	return found, ok
}

// fieldRef locates a field's storage.
type fieldRef struct {
	owner  *Class
	offset uint32 // into the instance data area or the owner's statics
	typ    byte
}

// findField walks cls and its ancestors for a field, accumulating the
// offset of same-kind fields declared before it.
func (v *VM) findField(cls *Class, name, desc Sym, static bool) (fieldRef, bool) {
	var nh, dh uint8
	if v.fastSearch {
		nh, dh = name.Hash(), desc.Hash()
	}
	for c := cls; c != nil; c = c.Super {
		var ref fieldRef
		ok := false
		acc := uint32(0)
		c.eachMember(false, func(m *member) bool {
			if (m.flags&classfile.AccStatic != 0) != static {
				return true
			}
			t := m.desc.At(0)
			match := !(v.fastSearch && m.hashed && (m.nameHash != nh || m.descHash != dh)) &&
				m.name.Equal(name) && m.desc.Equal(desc)
			if match {
				base := c.InstDataOfst
				if static {
					base = c.ClsDataOfst
				}
				ref, ok = fieldRef{owner: c, offset: base + acc, typ: t}, true
				return false
			}
			acc += uint32(classfile.TypeSize(t))
			return true
		})
		if ok {
			return ref, true
		}
	}
	return fieldRef{}, false
}

// FindClass looks a class up by name.
func (v *VM) FindClass(name Sym) *Class {
	var h uint8
	if v.fastSearch {
		h = name.Hash()
	}
	for c := v.classes; c != nil; c = c.next {
		if v.fastSearch && c.nameHash != h {
			continue
		}
		if c.NameSym().Equal(name) {
			return c
		}
	}
	return nil
}

// FindClassByName looks a class up by a Go string.
func (v *VM) FindClassByName(name string) *Class { return v.FindClass(Lit(name)) }

// Classes returns the registry in registry order (most recently loaded
// first).
func (v *VM) Classes() []*Class {
	var out []*Class
	for c := v.classes; c != nil; c = c.next {
		out = append(out, c)
	}
	return out
}

func (v *VM) classByID(id uint32) *Class {
	if id == 0 || int(id) >= len(v.byID) {
		return nil
	}
	return v.byID[id]
}
