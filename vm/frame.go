package vm

import (
	"fmt"

	"github.com/chazu/ujvm/pkg/classfile"
)

// RetInfoSlots is the number of stack words saved per call:
//
//	w0 caller class ID
//	w1 caller this handle, ref-tagged when present
//	w2 caller localsBase<<16 | resume offset from method start
//	w3 caller flags<<24 | caller method start
const RetInfoSlots = 4

// paramSlots counts the stack slots a method descriptor's parameters take,
// plus the receiver unless static.
func paramSlots(desc Sym, static bool) uint32 {
	desc = desc.resolve()
	n := uint32(0)
	if !static {
		n = 1
	}
	inArray := false
	for i, l := 1, desc.Len(); i < l; i++ {
		ch := desc.At(i)
		if ch == ')' {
			break
		}
		switch ch {
		case classfile.TypeArray:
			if !inArray {
				n++
			}
			inArray = true
			continue
		case classfile.TypeObject:
			if !inArray {
				n++
			}
			for i < l && desc.At(i) != classfile.TypeObjEnd {
				i++
			}
		case classfile.TypeLong, classfile.TypeDouble:
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

// paramRefs reports which parameter slots of desc hold references,
// receiver first unless static.
func paramRefs(desc Sym, static bool) []bool {
	desc = desc.resolve()
	var out []bool
	if !static {
		out = append(out, true)
	}
	for i, l := 1, desc.Len(); i < l && desc.At(i) != ')'; i++ {
		switch desc.At(i) {
		case classfile.TypeArray:
			out = append(out, true)
			for i+1 < l && desc.At(i+1) == classfile.TypeArray {
				i++
			}
			if i+1 < l && desc.At(i+1) == classfile.TypeObject {
				for i < l && desc.At(i) != classfile.TypeObjEnd {
					i++
				}
			} else {
				i++
			}
		case classfile.TypeObject:
			out = append(out, true)
			for i < l && desc.At(i) != classfile.TypeObjEnd {
				i++
			}
		case classfile.TypeLong, classfile.TypeDouble:
			out = append(out, false, false)
		default:
			out = append(out, false)
		}
	}
	return out
}

// returnWidth is the slot count of a descriptor's return value.
func returnWidth(desc Sym) int {
	desc = desc.resolve()
	l := desc.Len()
	i := 0
	for i < l && desc.At(i) != ')' {
		i++
	}
	if i+1 >= l {
		return 0
	}
	switch desc.At(i + 1) {
	case classfile.TypeVoid:
		return 0
	case classfile.TypeLong, classfile.TypeDouble:
		return 2
	}
	return 1
}

func returnsRef(desc Sym) bool {
	desc = desc.resolve()
	l := desc.Len()
	for i := 0; i+1 < l; i++ {
		if desc.At(i) == ')' {
			return isRefType(desc.At(i + 1))
		}
	}
	return false
}

// call pushes a frame for m. The top nParams slots are its arguments and
// t.pc must already point at the caller's resume address.
func (v *VM) call(t *Thread, m Method, nParams uint32) error {
	maxLocals, maxStack := m.Class.frameSize(m.Start)
	locals := max(uint32(maxLocals), nParams)

	argBase := t.sp - nParams
	newBase := argBase + RetInfoSlots
	newSP := newBase + locals
	if newSP+uint32(maxStack) > uint32(len(t.stack)) {
		return ErrStackSpace
	}

	for i := int(nParams) - 1; i >= 0; i-- {
		x, ref := t.get(argBase + uint32(i))
		t.set(newBase+uint32(i), x, ref)
	}
	for i := newBase + nParams; i < newSP; i++ {
		t.set(i, 0, false)
	}

	t.set(argBase, t.cls.ID, false)
	t.set(argBase+1, uint32(t.inst), t.flags&flagHasInst != 0)
	t.set(argBase+2, t.base<<16|(t.pc-t.methodStart), false)
	t.set(argBase+3, uint32(t.flags)<<24|t.methodStart, false)

	t.base = newBase
	t.sp = newSP
	t.enterMethod(m)
	return nil
}

// enterMethod switches the thread's method registers to m. The frame must
// already be in place.
func (t *Thread) enterMethod(m Method) {
	t.cls = m.Class
	t.methodStart = m.Start
	t.pc = m.Start
	t.flags = 0
	t.inst = 0
	if !m.IsStatic() {
		t.flags |= flagHasInst
		x, _ := t.local(0)
		t.inst = Handle(x)
	}
	if m.IsSynchronized() {
		t.flags |= flagSync
	}
}

// enter starts m as the outermost frame of an idle thread. args are the
// parameter slots, including the receiver for instance methods.
func (v *VM) enter(t *Thread, m Method, args ...uint32) error {
	if t.sp != 0 {
		return fmt.Errorf("%w: thread %d is busy", ErrInternal, t.ID)
	}
	if m.Start == 0 {
		return fmt.Errorf("%w: %s.%s has no code", ErrMethodFlagsMismatch, m.Class.Name(), m.Name)
	}
	maxLocals, maxStack := m.Class.frameSize(m.Start)
	n := paramSlots(m.Desc, m.IsStatic())
	locals := max(uint32(maxLocals), n)
	if locals+uint32(maxStack) > uint32(len(t.stack)) {
		return ErrStackSpace
	}
	if m.IsSynchronized() {
		var err error
		if m.IsStatic() {
			err = v.classMonitorEnter(t, m.Class)
		} else if len(args) > 0 {
			err = v.monitorEnter(t, Handle(args[0]))
		}
		if err != nil {
			return err
		}
	}
	for i := uint32(0); i < locals; i++ {
		t.set(i, 0, false)
	}
	refs := paramRefs(m.Desc, m.IsStatic())
	for i, a := range args {
		t.set(uint32(i), a, i < len(refs) && refs[i])
	}
	t.base = 0
	t.sp = locals
	t.enterMethod(m)
	return nil
}

// ret pops the current frame, carrying width result slots to the caller.
// Returning from the outermost frame stores the result on the thread and
// leaves it terminal with an empty stack.
func (v *VM) ret(t *Thread, width int, ref bool) error {
	var val [2]uint32
	switch width {
	case 1:
		val[0], _ = t.pop()
	case 2:
		val[1], _ = t.pop()
		val[0], _ = t.pop()
	}

	if t.flags&flagSync != 0 {
		var err error
		if t.flags&flagHasInst != 0 {
			err = v.monitorExit(t, t.inst)
		} else {
			err = v.classMonitorExit(t, t.cls)
		}
		if err != nil {
			return err
		}
	}

	t.truncate(t.base)
	if t.sp == 0 {
		t.Result, t.ResultWidth, t.ResultRef = val, width, ref && width == 1
		t.pc = PCDone
		t.inst = 0
		t.flags = 0
		return nil
	}
	if t.sp < RetInfoSlots {
		return fmt.Errorf("%w: corrupt frame at sp %d", ErrInternal, t.sp)
	}

	w0 := t.stack[t.sp-4]
	w1 := t.stack[t.sp-3]
	w2 := t.stack[t.sp-2]
	w3 := t.stack[t.sp-1]
	t.truncate(t.sp - RetInfoSlots)

	cls := v.classByID(w0)
	if cls == nil {
		return fmt.Errorf("%w: return to unknown class %d", ErrInternal, w0)
	}
	t.cls = cls
	t.inst = Handle(w1)
	t.flags = uint8(w3 >> 24)
	t.methodStart = w3 & 0xFFFFFF
	t.base = w2 >> 16
	t.pc = t.methodStart + w2&0xFFFF

	switch width {
	case 1:
		t.push(val[0], ref)
	case 2:
		t.push(val[0], false)
		t.push(val[1], false)
	}
	return nil
}

// ThreadGoto starts a static method as the outermost frame of t. The method
// must be public unless its name begins with '<', in which case superclasses
// are not searched either.
func (v *VM) ThreadGoto(t *Thread, cls *Class, name, desc string) error {
	flags := classfile.AccStatic | classfile.AccPublic
	searchSuper := true
	if len(name) > 0 && name[0] == '<' {
		flags = classfile.AccStatic
		searchSuper = false
	}
	m, ok := v.findMethod(cls, Lit(name), Lit(desc), flags, flags, searchSuper)
	if !ok {
		return fmt.Errorf("%w: %s.%s%s", ErrMethodNonexistent, cls.Name(), name, desc)
	}
	if m.IsNative() {
		return fmt.Errorf("%w: %s.%s%s is native", ErrMethodFlagsMismatch, cls.Name(), name, desc)
	}
	return v.enter(t, m)
}
