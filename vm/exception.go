package vm

import (
	"github.com/chazu/ujvm/pkg/classfile"
)

// faultClasses maps interpreter faults to the exception classes thrown for
// them when those classes are loaded.
var faultClasses = map[Code]string{
	CodeDivByZero:     "java/lang/ArithmeticException",
	CodeArrayIndexOOB: "java/lang/ArrayIndexOutOfBoundsException",
	CodeNullPointer:   "java/lang/NullPointerException",
	CodeInvalidCast:   "java/lang/ClassCastException",
	CodeNegArrSize:    "java/lang/NegativeArraySizeException",
	CodeMonitorState:  "java/lang/IllegalMonitorStateException",
	CodeOutOfMemory:   "java/lang/OutOfMemoryError",
}

// raise offers a fault to the running code as an exception. The original
// error is returned unchanged when the fault has no exception class, or the
// class cannot be instantiated.
func (v *VM) raise(t *Thread, err error) error {
	name, ok := faultClasses[CodeOf(err)]
	if !ok || t.Done() {
		return err
	}
	cls := v.FindClassByName(name)
	if cls == nil {
		return err
	}
	ctor, ok := v.findMethod(cls, Lit("<init>"), Lit("()V"), classfile.AccStatic, 0, true)
	if !ok {
		return err
	}

	t.pc = t.instrStart + 1
	maxLocals, _ := t.cls.frameSize(t.methodStart)
	t.truncate(t.base + uint32(maxLocals))

	h, aerr := v.NewInstance(cls)
	if aerr != nil {
		return err
	}
	if ctor.IsNative() {
		t.PushRef(h)
		if cerr := ctor.Native.Func(t, ctor.Class); cerr != nil {
			return err
		}
	}
	v.log.Debugf("thread %d: %v raised as %s", t.ID, err, name)
	return v.throw(t, h)
}

// throw unwinds t until a handler accepts exc. Each frame is first cut back
// to its locals; a handler covers the frame's current offset when
// start < off <= end, which for the faulting frame means the instruction
// whose start is off-1, and for callers the invoke they resume after.
func (v *VM) throw(t *Thread, exc Handle) error {
	for {
		off := t.pc - t.methodStart
		maxLocals, _ := t.cls.frameSize(t.methodStart)
		t.truncate(t.base + uint32(maxLocals))

		if pc, ok := v.findHandler(t.cls, t.methodStart, off, exc); ok {
			t.PushRef(exc)
			t.pc = t.methodStart + pc
			return nil
		}

		if err := v.ret(t, 0, false); err != nil {
			return err
		}
		if t.Done() {
			v.log.Warningf("thread %d: uncaught %s", t.ID, v.typeName(exc))
			return ErrUserException
		}
	}
}

// findHandler scans the exception table of the method at start.
func (v *VM) findHandler(c *Class, start, off uint32, exc Handle) (uint32, bool) {
	base, n := c.handlerTable(start)
	for i := 0; i < n; i++ {
		e := base + 8*uint32(i)
		from := uint32(be16(c.src, e))
		to := uint32(be16(c.src, e+2))
		if !(from < off && to >= off) {
			continue
		}
		ct := be16(c.src, e+6)
		if ct == 0 || v.objectInstanceOf(exc, classConst(c, ct)) {
			return uint32(be16(c.src, e+4)), true
		}
	}
	return 0, false
}
