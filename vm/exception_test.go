package vm

import (
	"testing"

	cf "github.com/chazu/ujvm/pkg/classfile"
)

const (
	throwable  = "java/lang/Throwable"
	arithmetic = "java/lang/ArithmeticException"
)

func exceptionClasses() []*cf.ClassBuilder {
	return []*cf.ClassBuilder{
		emptyClass(throwable, object),
		emptyClass(arithmetic, throwable),
		emptyClass("demo/Boom", throwable),
	}
}

func TestFaultCaughtAsException(t *testing.T) {
	eachConfig(t, func(t *testing.T, enc encoding, fast bool) {
		v := newTestVM(t, func(o *Options) { o.FastClassSearch = fast })
		load(t, v, enc, exceptionClasses()...)
		cls := load(t, v, enc, staticClass("demo/Catch", "f", "()I", 2, 0, func(c *cf.Code) {
			start, end, handler := c.NewLabel(), c.NewLabel(), c.NewLabel()
			c.Bind(start)
			c.Iconst(1).Iconst(0).Op(cf.OpIdiv).Op(cf.OpIreturn)
			c.Bind(end)
			c.Bind(handler).Op(cf.OpPop).Iconst(7).Op(cf.OpIreturn)
			c.Catch(start, end, handler, arithmetic)
		}))

		th := invoke(t, v, cls, "f", "()I")
		if th.ResultInt() != 7 {
			t.Errorf("result = %d, want 7", th.ResultInt())
		}
	})
}

func TestHandlerTypeMustMatch(t *testing.T) {
	v := newTestVM(t)
	load(t, v, encodings[0], exceptionClasses()...)
	cls := load(t, v, encodings[0], staticClass("demo/Mismatch", "f", "()I", 2, 0, func(c *cf.Code) {
		start, end, handler := c.NewLabel(), c.NewLabel(), c.NewLabel()
		c.Bind(start)
		c.Iconst(1).Iconst(0).Op(cf.OpIdiv).Op(cf.OpIreturn)
		c.Bind(end)
		c.Bind(handler).Op(cf.OpPop).Iconst(7).Op(cf.OpIreturn)
		c.Catch(start, end, handler, "demo/Boom")
	}))
	if code := invokeErr(t, v, cls, "f", "()I"); code != CodeUserException {
		t.Errorf("code = %s, want %s", code, CodeUserException)
	}
}

func TestCatchAllAcrossFrames(t *testing.T) {
	eachConfig(t, func(t *testing.T, enc encoding, fast bool) {
		v := newTestVM(t, func(o *Options) { o.FastClassSearch = fast })
		load(t, v, enc, exceptionClasses()...)

		b := cf.NewClass("demo/Unwind", object, cf.AccPublic)
		inner := b.Code(2, 1)
		inner.Iconst(5).Local(cf.OpIstore, 0)
		inner.ClassOp(cf.OpNew, "demo/Boom").Op(cf.OpAthrow)
		b.Method(cf.AccPublic|cf.AccStatic, "inner", "()I", inner)

		outer := b.Code(3, 0)
		start, end, handler := outer.NewLabel(), outer.NewLabel(), outer.NewLabel()
		outer.Iconst(100)
		outer.Bind(start)
		outer.Invoke(cf.OpInvokestatic, "demo/Unwind", "inner", "()I")
		outer.Bind(end)
		outer.Op(cf.OpIreturn)
		outer.Bind(handler).Op(cf.OpPop).Iconst(9).Op(cf.OpIreturn)
		outer.Catch(start, end, handler, "")
		b.Method(cf.AccPublic|cf.AccStatic, "outer", "()I", outer)
		cls := load(t, v, enc, b)

		th := invoke(t, v, cls, "outer", "()I")
		if th.ResultInt() != 9 {
			t.Errorf("result = %d, want 9", th.ResultInt())
		}
	})
}

func TestUncaughtUserException(t *testing.T) {
	v := newTestVM(t)
	load(t, v, encodings[1], exceptionClasses()...)
	cls := load(t, v, encodings[1], staticClass("demo/Throw", "f", "()V", 1, 0, func(c *cf.Code) {
		c.ClassOp(cf.OpNew, "demo/Boom").Op(cf.OpAthrow)
	}))
	if code := invokeErr(t, v, cls, "f", "()V"); code != CodeUserException {
		t.Errorf("code = %s, want %s", code, CodeUserException)
	}
	if code := CodeUserException; code.Disposition() == HostFatal {
		t.Error("an uncaught exception must not stop the host")
	}
}

func TestAthrowNull(t *testing.T) {
	v := newTestVM(t)
	cls := load(t, v, encodings[0], staticClass("demo/ThrowNull", "f", "()V", 1, 0, func(c *cf.Code) {
		c.Op(cf.OpAconstNull).Op(cf.OpAthrow)
	}))
	if code := invokeErr(t, v, cls, "f", "()V"); code != CodeNullPointer {
		t.Errorf("code = %s, want %s", code, CodeNullPointer)
	}
}
