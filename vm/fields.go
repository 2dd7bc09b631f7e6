package vm

import (
	"fmt"

	"github.com/chazu/ujvm/pkg/classfile"
)

// fieldAccess resolves a field constant and performs get/put static/field.
func (v *VM) fieldAccess(t *Thread, op classfile.Opcode, idx uint16) error {
	clsName, name, desc := t.memberRef(idx)
	static := op == classfile.OpGetstatic || op == classfile.OpPutstatic
	cls := v.FindClass(clsName)
	if cls == nil {
		return fmt.Errorf("%w: class %s", ErrFieldNotFound, clsName)
	}
	f, ok := v.findField(cls, name, desc, static)
	if !ok {
		return fmt.Errorf("%w: %s.%s %s", ErrFieldNotFound, clsName, name, desc)
	}
	return v.accessField(t, op, f.owner, f.offset, f.typ)
}

// accessField moves a value between the operand stack and a located field.
// off is into owner's statics for static access, otherwise into the
// instance data area.
func (v *VM) accessField(t *Thread, op classfile.Opcode, owner *Class, off uint32, typ byte) error {
	width := slotWidth(typ)
	switch op {
	case classfile.OpGetstatic:
		hi, lo, wide, ref := loadField(owner.statics, off, typ)
		pushValue(t, hi, lo, wide, ref)

	case classfile.OpPutstatic:
		hi, lo := popValue(t, width)
		storeField(owner.statics, off, typ, hi, lo)

	case classfile.OpGetfield:
		x, _ := t.peek(0)
		if x == 0 {
			return ErrNullPointer
		}
		t.pop()
		var hi, lo uint32
		var wide, ref bool
		v.withObject(Handle(x), func(b []byte) error {
			hi, lo, wide, ref = loadField(b, hdrSize+off, typ)
			return nil
		})
		pushValue(t, hi, lo, wide, ref)

	case classfile.OpPutfield:
		x, _ := t.peek(width)
		if x == 0 {
			return ErrNullPointer
		}
		hi, lo := popValue(t, width)
		t.pop()
		v.withObject(Handle(x), func(b []byte) error {
			storeField(b, hdrSize+off, typ, hi, lo)
			return nil
		})
	}
	return nil
}

// StaticField reads a 32-bit static of cls by name and descriptor.
func (v *VM) StaticField(cls *Class, name, desc string) (uint32, error) {
	f, ok := v.findField(cls, Lit(name), Lit(desc), true)
	if !ok {
		return 0, fmt.Errorf("%w: %s.%s %s", ErrFieldNotFound, cls.Name(), name, desc)
	}
	_, lo, _, _ := loadField(f.owner.statics, f.offset, f.typ)
	return lo, nil
}
