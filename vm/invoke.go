package vm

import (
	"fmt"

	"github.com/chazu/ujvm/pkg/classfile"
)

// classConst names the CLASS constant idx of c.
func classConst(c *Class, idx uint16) Sym {
	if c.Format == FormatCompact {
		return ujcSym(c.src, c.findConst(idx)+1)
	}
	return refSym(c, idx, 1)
}

// classRef names a CLASS constant of the running method's class. In the
// standard format the symbol is relative to the thread: it reads whatever
// class the thread is running when it is reduced, so it must be consumed
// before the instruction changes frames.
func (t *Thread) classRef(idx uint16) Sym {
	if t.cls.Format == FormatCompact {
		return classConst(t.cls, idx)
	}
	return ref2Sym(t, idx, 1)
}

// memberRef decodes a FIELD, METHOD or IFACE_METHOD constant of the running
// method's class. The class part is thread-relative like classRef's.
func (t *Thread) memberRef(idx uint16) (cls, name, desc Sym) {
	c := t.cls
	off := c.findConst(idx)
	if c.Format == FormatCompact {
		return ujcSym(c.src, off+1), ujcSym(c.src, off+4), ujcSym(c.src, off+7)
	}
	nt := be16(c.src, off+3)
	return ref2Sym(t, be16(c.src, off+1), 1), refSym(c, nt, 1), refSym(c, nt, 3)
}

// invoke executes the four by-name invoke forms.
func (v *VM) invoke(t *Thread, op classfile.Opcode) error {
	clsName, name, desc := t.memberRef(t.u16())
	if op == classfile.OpInvokeinterface {
		t.pc += 2 // count, zero
	}
	static := op == classfile.OpInvokestatic
	n := paramSlots(desc, static)
	if n > t.sp-t.base {
		return fmt.Errorf("%w: %s needs %d argument slots", ErrInternal, desc, n)
	}

	var recv Handle
	if !static {
		x, _ := t.peek(n - 1)
		if x == 0 {
			return ErrNullPointer
		}
		recv = Handle(x)
	}

	var target *Class
	switch op {
	case classfile.OpInvokevirtual, classfile.OpInvokeinterface:
		target = v.dispatchClass(recv)
	default:
		target = v.FindClass(clsName)
		if target == nil {
			return fmt.Errorf("%w: class %s", ErrMethodNonexistent, clsName)
		}
	}

	flagsEq := uint16(0)
	if static {
		flagsEq = classfile.AccStatic
	}
	m, ok := v.findMethod(target, name, desc, classfile.AccStatic, flagsEq, true)
	if !ok {
		return fmt.Errorf("%w: %s.%s%s", ErrMethodNonexistent, target.Name(), name, desc)
	}
	return v.invokeMethod(t, m, n, recv)
}

// invokeWide executes the pre-specialized invokespecial and invokestatic
// forms, which address a method of the current class by table position.
func (v *VM) invokeWide(t *Thread, op classfile.Opcode) error {
	n := uint32(t.u8())
	idx := int(t.u16())
	m, ok := t.cls.methodAt(idx)
	if !ok {
		return fmt.Errorf("%w: %s method #%d", ErrMethodNonexistent, t.cls.Name(), idx)
	}
	if n > t.sp-t.base {
		return fmt.Errorf("%w: %s.%s needs %d argument slots", ErrInternal, t.cls.Name(), m.Name, n)
	}
	var recv Handle
	if op == classfile.OpInvokespecial {
		if n == 0 {
			return fmt.Errorf("%w: invokespecial without receiver", ErrInvalidOpcode)
		}
		x, _ := t.peek(n - 1)
		if x == 0 {
			return ErrNullPointer
		}
		recv = Handle(x)
	}
	return v.invokeMethod(t, m, n, recv)
}

// invokeMethod transfers control to a bound method. Nothing on the stack
// changes before the monitor of a synchronized method is held, so a
// contended call can simply be retried.
func (v *VM) invokeMethod(t *Thread, m Method, n uint32, recv Handle) error {
	if m.Flags&classfile.AccAbstract != 0 {
		return fmt.Errorf("%w: %s.%s is abstract", ErrMethodFlagsMismatch, m.Class.Name(), m.Name)
	}
	if !m.IsNative() && m.Start == 0 {
		return fmt.Errorf("%w: %s.%s has no code", ErrMethodFlagsMismatch, m.Class.Name(), m.Name)
	}

	if m.IsSynchronized() {
		if err := v.lockMethod(t, m, recv); err != nil {
			return err
		}
	}

	if m.IsNative() {
		err := m.Native.Func(t, m.Class)
		if m.IsSynchronized() {
			if uerr := v.unlockMethod(t, m, recv); err == nil {
				err = uerr
			}
		}
		return err
	}

	if err := v.call(t, m, n); err != nil {
		if m.IsSynchronized() {
			v.unlockMethod(t, m, recv)
		}
		return err
	}
	return nil
}

func (v *VM) lockMethod(t *Thread, m Method, recv Handle) error {
	if m.IsStatic() {
		return v.classMonitorEnter(t, m.Class)
	}
	return v.monitorEnter(t, recv)
}

func (v *VM) unlockMethod(t *Thread, m Method, recv Handle) error {
	if m.IsStatic() {
		return v.classMonitorExit(t, m.Class)
	}
	return v.monitorExit(t, recv)
}
