package vm

import (
	"errors"
	"testing"

	cf "github.com/chazu/ujvm/pkg/classfile"
)

func TestMonitorReentryAndContention(t *testing.T) {
	v := newTestVM(t)
	h, err := v.NewInstance(v.ObjectClass())
	if err != nil {
		t.Fatal(err)
	}
	a, _ := v.NewThread(16)
	b, _ := v.NewThread(16)

	for i := 0; i < 3; i++ {
		if err := v.monitorEnter(a, h); err != nil {
			t.Fatalf("enter %d: %v", i, err)
		}
	}
	if holder, count := v.MonitorState(h); holder != a.ID || count != 3 {
		t.Fatalf("state = (%d, %d), want (%d, 3)", holder, count, a.ID)
	}

	if err := v.monitorEnter(b, h); !errors.Is(err, ErrRetryLater) {
		t.Errorf("contended enter = %v, want ErrRetryLater", err)
	}
	if err := v.monitorExit(b, h); !errors.Is(err, ErrMonitorState) {
		t.Errorf("non-holder exit = %v, want ErrMonitorState", err)
	}
	if holder, count := v.MonitorState(h); holder != a.ID || count != 3 {
		t.Errorf("failed calls changed state to (%d, %d)", holder, count)
	}

	for i := 0; i < 3; i++ {
		if err := v.monitorExit(a, h); err != nil {
			t.Fatalf("exit %d: %v", i, err)
		}
	}
	if holder, count := v.MonitorState(h); holder != 0 || count != 0 {
		t.Errorf("released state = (%d, %d)", holder, count)
	}
	if err := v.monitorEnter(b, h); err != nil {
		t.Errorf("enter after release: %v", err)
	}
}

func TestMonitorNull(t *testing.T) {
	v := newTestVM(t)
	a, _ := v.NewThread(16)
	if err := v.monitorEnter(a, 0); !errors.Is(err, ErrNullPointer) {
		t.Errorf("err = %v, want ErrNullPointer", err)
	}
}

func TestMonitorBytecode(t *testing.T) {
	v := newTestVM(t)
	cls := load(t, v, encodings[0], staticClass("demo/Mon", "f", "(Ljava/lang/Object;)I", 1, 1, func(c *cf.Code) {
		c.Op(cf.OpAload0).Op(cf.OpMonitorenter)
		c.Op(cf.OpAload0).Op(cf.OpMonitorenter)
		c.Op(cf.OpAload0).Op(cf.OpMonitorexit)
		c.Iconst(1).Op(cf.OpIreturn)
	}))
	h, _ := v.NewInstance(v.ObjectClass())
	th := invoke(t, v, cls, "f", "(Ljava/lang/Object;)I", uint32(h))
	if holder, count := v.MonitorState(h); holder != th.ID || count != 1 {
		t.Errorf("state = (%d, %d), want (%d, 1)", holder, count, th.ID)
	}
}

func TestSynchronizedStaticReleasesClassMonitor(t *testing.T) {
	v := newTestVM(t)
	b := cf.NewClass("demo/Sync", object, cf.AccPublic)
	ok := b.Code(1, 0)
	ok.Iconst(3).Op(cf.OpIreturn)
	b.Method(cf.AccPublic|cf.AccStatic|cf.AccSynchronized, "ok", "()I", ok)
	fail := b.Code(2, 0)
	fail.Iconst(1).Iconst(0).Op(cf.OpIdiv).Op(cf.OpIreturn)
	b.Method(cf.AccPublic|cf.AccStatic|cf.AccSynchronized, "fail", "()I", fail)
	outer := b.Code(1, 0)
	outer.Invoke(cf.OpInvokestatic, "demo/Sync", "ok", "()I").Op(cf.OpIreturn)
	b.Method(cf.AccPublic|cf.AccStatic, "outer", "()I", outer)
	cls := load(t, v, encodings[1], b)

	if got := invoke(t, v, cls, "outer", "()I").ResultInt(); got != 3 {
		t.Errorf("outer = %d", got)
	}
	if got := invoke(t, v, cls, "ok", "()I").ResultInt(); got != 3 {
		t.Errorf("ok = %d", got)
	}
	if cls.monCount != 0 || cls.monHolder != 0 {
		t.Errorf("class monitor held after return: (%d, %d)", cls.monHolder, cls.monCount)
	}
	invokeErr(t, v, cls, "fail", "()I")
	if got := invoke(t, v, cls, "ok", "()I").ResultInt(); got != 3 {
		t.Errorf("ok after failure = %d", got)
	}
}
