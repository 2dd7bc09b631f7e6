package classfile

import (
	"encoding/binary"
	"fmt"
)

// Label names a code position that may be bound after it is referenced.
type Label int

type fixup struct {
	at    int // where the offset is written
	from  int // opcode address the offset is relative to
	label Label
	wide  bool // 4-byte offset
}

// Handler is one exception table entry.
type Handler struct {
	Start, End, Target uint16
	CatchType          uint16 // class constant index, 0 catches everything
}

type handlerSpec struct {
	start, end, target Label
	class              string
}

// Code assembles one method body against a class's constant pool.
type Code struct {
	MaxStack  uint16
	MaxLocals uint16

	pool     *Pool
	buf      []byte
	labels   []int
	fixups   []fixup
	handlers []handlerSpec
}

// NewCode returns an empty method body using pool for constant references.
func NewCode(pool *Pool, maxStack, maxLocals int) *Code {
	return &Code{pool: pool, MaxStack: uint16(maxStack), MaxLocals: uint16(maxLocals)}
}

// Len is the current code length in bytes.
func (c *Code) Len() int { return len(c.buf) }

// Raw appends bytes verbatim.
func (c *Code) Raw(b ...byte) *Code {
	c.buf = append(c.buf, b...)
	return c
}

// Op appends an opcode followed by raw operand bytes.
func (c *Code) Op(op Opcode, operands ...byte) *Code {
	c.buf = append(c.buf, byte(op))
	c.buf = append(c.buf, operands...)
	return c
}

func (c *Code) u16(v uint16) *Code {
	c.buf = binary.BigEndian.AppendUint16(c.buf, v)
	return c
}

func (c *Code) u32(v uint32) *Code {
	c.buf = binary.BigEndian.AppendUint32(c.buf, v)
	return c
}

// OpU16 appends an opcode with a 16-bit operand.
func (c *Code) OpU16(op Opcode, v uint16) *Code {
	return c.Op(op).u16(v)
}

// ---------------------------------------------------------------------------
// Labels and branches
// ---------------------------------------------------------------------------

// NewLabel allocates an unbound label.
func (c *Code) NewLabel() Label {
	c.labels = append(c.labels, -1)
	return Label(len(c.labels) - 1)
}

// Bind sets the label to the current position.
func (c *Code) Bind(l Label) *Code {
	c.labels[l] = len(c.buf)
	return c
}

// Branch appends a conditional or unconditional jump to l.
func (c *Code) Branch(op Opcode, l Label) *Code {
	from := len(c.buf)
	c.buf = append(c.buf, byte(op))
	wide := op == OpGotoW
	c.fixups = append(c.fixups, fixup{at: len(c.buf), from: from, label: l, wide: wide})
	if wide {
		return c.u32(0)
	}
	return c.u16(0)
}

func (c *Code) pad() {
	for len(c.buf)%4 != 0 {
		c.buf = append(c.buf, 0)
	}
}

func (c *Code) target(from int, l Label) {
	c.fixups = append(c.fixups, fixup{at: len(c.buf), from: from, label: l, wide: true})
	c.u32(0)
}

// TableSwitch appends a tableswitch covering low..low+len(targets)-1.
func (c *Code) TableSwitch(low int32, def Label, targets ...Label) *Code {
	from := len(c.buf)
	c.buf = append(c.buf, byte(OpTableswitch))
	c.pad()
	c.target(from, def)
	c.u32(uint32(low))
	c.u32(uint32(low + int32(len(targets)) - 1))
	for _, t := range targets {
		c.target(from, t)
	}
	return c
}

// LookupSwitch appends a lookupswitch; keys must be sorted ascending.
func (c *Code) LookupSwitch(def Label, keys []int32, targets []Label) *Code {
	from := len(c.buf)
	c.buf = append(c.buf, byte(OpLookupswitch))
	c.pad()
	c.target(from, def)
	c.u32(uint32(len(keys)))
	for i, k := range keys {
		c.u32(uint32(k))
		c.target(from, targets[i])
	}
	return c
}

// Catch records an exception handler for [start, end). An empty class
// catches everything.
func (c *Code) Catch(start, end, target Label, class string) *Code {
	c.handlers = append(c.handlers, handlerSpec{start, end, target, class})
	if class != "" {
		c.pool.Class(class)
	}
	return c
}

// ---------------------------------------------------------------------------
// Typed helpers
// ---------------------------------------------------------------------------

// Iconst pushes an int using the shortest encoding.
func (c *Code) Iconst(v int32) *Code {
	switch {
	case v >= -1 && v <= 5:
		return c.Op(OpIconst0 + Opcode(v))
	case v >= -128 && v <= 127:
		return c.Op(OpBipush, byte(int8(v)))
	case v >= -32768 && v <= 32767:
		return c.OpU16(OpSipush, uint16(int16(v)))
	}
	return c.ldc(c.pool.Int(v))
}

func (c *Code) ldc(idx uint16) *Code {
	if idx <= 0xFF {
		return c.Op(OpLdc, byte(idx))
	}
	return c.OpU16(OpLdcW, idx)
}

// LdcString pushes a java/lang/String constant.
func (c *Code) LdcString(s string) *Code { return c.ldc(c.pool.StringConst(s)) }

// LdcFloat pushes a float constant.
func (c *Code) LdcFloat(v float32) *Code { return c.ldc(c.pool.Float(v)) }

// LdcLong pushes a long constant.
func (c *Code) LdcLong(v int64) *Code { return c.OpU16(OpLdc2W, c.pool.Long(v)) }

// LdcDouble pushes a double constant.
func (c *Code) LdcDouble(v float64) *Code { return c.OpU16(OpLdc2W, c.pool.Double(v)) }

// Local emits a load or store, switching to the wide form above slot 255.
func (c *Code) Local(op Opcode, slot int) *Code {
	if slot > 0xFF {
		return c.Op(OpWide, byte(op)).u16(uint16(slot))
	}
	return c.Op(op, byte(slot))
}

// Iinc increments an int local.
func (c *Code) Iinc(slot int, delta int) *Code {
	if slot > 0xFF || delta < -128 || delta > 127 {
		return c.Op(OpWide, byte(OpIinc)).u16(uint16(slot)).u16(uint16(int16(delta)))
	}
	return c.Op(OpIinc, byte(slot), byte(int8(delta)))
}

// Field emits getstatic/putstatic/getfield/putfield.
func (c *Code) Field(op Opcode, class, name, desc string) *Code {
	return c.OpU16(op, c.pool.Field(class, name, desc))
}

// Invoke emits one of the invoke instructions by name.
func (c *Code) Invoke(op Opcode, class, name, desc string) *Code {
	if op == OpInvokeinterface {
		c.OpU16(op, c.pool.IfaceMethod(class, name, desc))
		return c.Raw(byte(ParamSlots(desc, false)), 0)
	}
	return c.OpU16(op, c.pool.Method(class, name, desc))
}

// ClassOp emits new, anewarray, checkcast or instanceof.
func (c *Code) ClassOp(op Opcode, class string) *Code {
	return c.OpU16(op, c.pool.Class(class))
}

// NewArray emits newarray for a primitive element type code.
func (c *Code) NewArray(atype uint8) *Code {
	return c.Op(OpNewarray, atype)
}

// MultiANewArray emits multianewarray for an array class descriptor.
func (c *Code) MultiANewArray(desc string, dims int) *Code {
	return c.OpU16(OpMultianewarray, c.pool.Class(desc)).Raw(byte(dims))
}

// WideInvoke emits the pre-specialized call form addressing a method of the
// current class by its position in the method table.
func (c *Code) WideInvoke(op Opcode, paramSlots int, methodIndex uint16) *Code {
	return c.Op(OpWide, byte(op), byte(paramSlots)).u16(methodIndex)
}

// WideField emits the pre-specialized field form with a direct byte offset
// into the current class's own data area.
func (c *Code) WideField(op Opcode, typ byte, offset uint16) *Code {
	return c.Op(OpWide, byte(op), typ).u16(offset)
}

// PushRaw pushes a raw 32-bit word taken from the code stream.
func (c *Code) PushRaw(v uint32) *Code {
	return c.Op(OpPushRaw).u32(v)
}

// ---------------------------------------------------------------------------
// Assembly
// ---------------------------------------------------------------------------

// Assemble resolves labels and returns the code bytes and exception table.
func (c *Code) Assemble() ([]byte, []Handler, error) {
	out := make([]byte, len(c.buf))
	copy(out, c.buf)
	for _, f := range c.fixups {
		pos := c.labels[f.label]
		if pos < 0 {
			return nil, nil, fmt.Errorf("classfile: unbound label %d", f.label)
		}
		delta := pos - f.from
		if f.wide {
			binary.BigEndian.PutUint32(out[f.at:], uint32(int32(delta)))
			continue
		}
		if delta < -32768 || delta > 32767 {
			return nil, nil, fmt.Errorf("classfile: branch at %d out of range (%d)", f.from, delta)
		}
		binary.BigEndian.PutUint16(out[f.at:], uint16(int16(delta)))
	}

	hs := make([]Handler, 0, len(c.handlers))
	for _, h := range c.handlers {
		s, e, t := c.labels[h.start], c.labels[h.end], c.labels[h.target]
		if s < 0 || e < 0 || t < 0 {
			return nil, nil, fmt.Errorf("classfile: unbound handler label")
		}
		var ct uint16
		if h.class != "" {
			ct = c.pool.Class(h.class)
		}
		hs = append(hs, Handler{Start: uint16(s), End: uint16(e), Target: uint16(t), CatchType: ct})
	}
	return out, hs, nil
}

// ParamSlots counts the stack slots a method descriptor's parameters use,
// plus one for the receiver unless static.
func ParamSlots(desc string, static bool) int {
	n := 0
	if !static {
		n = 1
	}
	inArray := false
	for i := 1; i < len(desc) && desc[i] != ')'; i++ {
		switch desc[i] {
		case TypeArray:
			if !inArray {
				n++
			}
			inArray = true
			continue
		case TypeObject:
			if !inArray {
				n++
			}
			for i < len(desc) && desc[i] != TypeObjEnd {
				i++
			}
		case TypeLong, TypeDouble:
			if !inArray {
				n += 2
			}
		default:
			if !inArray {
				n++
			}
		}
		inArray = false
	}
	return n
}
