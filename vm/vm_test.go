package vm

import (
	"context"
	"errors"
	"testing"

	"github.com/chazu/ujvm/heap"
	cf "github.com/chazu/ujvm/pkg/classfile"
)

func TestNewRequiresHeap(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, ErrNoHeap) {
		t.Errorf("err = %v, want ErrNoHeap", err)
	}
}

func TestBuiltinsRegistered(t *testing.T) {
	v := newTestVM(t)
	for _, name := range []string{ObjectClassName, StringClassName, RunnableClassName, RTClassName} {
		c := v.FindClassByName(name)
		if c == nil || !c.IsNative() {
			t.Errorf("%s missing or not native", name)
		}
	}
	if !v.FindClassByName(RunnableClassName).IsInterface() {
		t.Error("Runnable is not an interface")
	}
	if v.classByID(0) != nil {
		t.Error("class ID 0 must not name a class")
	}
}

func TestInitAllClasses(t *testing.T) {
	eachConfig(t, func(t *testing.T, enc encoding, fast bool) {
		v := newTestVM(t, func(o *Options) { o.FastClassSearch = fast })
		b := cf.NewClass("demo/Init", object, cf.AccPublic)
		b.Field(cf.AccStatic, "a", "I").Field(cf.AccStatic, "b", "I")
		clinit := b.Code(1, 0)
		clinit.Iconst(42).Field(cf.OpPutstatic, "demo/Init", "b", "I").Op(cf.OpReturn)
		b.Method(cf.AccStatic, "<clinit>", "()V", clinit)
		cls := load(t, v, enc, b, emptyClass("demo/Plain", object))

		if err := v.InitAllClasses(); err != nil {
			t.Fatalf("InitAllClasses: %v", err)
		}
		if x, err := v.StaticField(cls, "b", "I"); err != nil || x != 42 {
			t.Errorf("b = %d, %v", x, err)
		}
		if x, _ := v.StaticField(cls, "a", "I"); x != 0 {
			t.Errorf("a = %d, want 0", x)
		}
		if v.CanRun() {
			t.Error("initializer threads left in the ring")
		}
	})
}

func TestThreadGotoRules(t *testing.T) {
	v := newTestVM(t)
	b := cf.NewClass("demo/Goto", object, cf.AccPublic)
	c := b.Code(0, 0)
	c.Op(cf.OpReturn)
	b.Method(cf.AccStatic, "hidden", "()V", c)
	cls := load(t, v, encodings[0], b)

	th, _ := v.NewThread(0)
	if err := v.ThreadGoto(th, cls, "hidden", "()V"); !errors.Is(err, ErrMethodNonexistent) {
		t.Errorf("non-public entry: %v", err)
	}
	if err := v.ThreadGoto(th, v.FindClassByName(RTClassName), "consolePut", "(C)V"); !errors.Is(err, ErrMethodFlagsMismatch) {
		t.Errorf("native entry: %v", err)
	}
}

// Each update below is six instructions, so with a quantum of six the two
// threads alternate whole updates.
func TestRoundRobinInterleaves(t *testing.T) {
	v := newTestVM(t, func(o *Options) { o.Quantum = 6 })
	b := cf.NewClass("demo/Spin", object, cf.AccPublic)
	b.Field(cf.AccStatic, "log", "I")
	for i, name := range []string{"one", "two"} {
		c := b.Code(2, 0)
		// log = log*10 + id, twice
		for j := 0; j < 2; j++ {
			c.Field(cf.OpGetstatic, "demo/Spin", "log", "I").Iconst(10).Op(cf.OpImul)
			c.Iconst(int32(i + 1)).Op(cf.OpIadd)
			c.Field(cf.OpPutstatic, "demo/Spin", "log", "I")
		}
		c.Op(cf.OpReturn)
		b.Method(cf.AccPublic|cf.AccStatic, name, "()V", c)
	}
	cls := load(t, v, encodings[0], b)

	for _, name := range []string{"one", "two"} {
		th, _ := v.NewThread(0)
		if err := v.ThreadGoto(th, cls, name, "()V"); err != nil {
			t.Fatal(err)
		}
	}
	if err := v.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if x, _ := v.StaticField(cls, "log", "I"); x != 1212 {
		t.Errorf("log = %d, want 1212", x)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	v := newTestVM(t)
	cls := load(t, v, encodings[0], staticClass("demo/Forever", "spin", "()V", 0, 0, func(c *cf.Code) {
		top := c.NewLabel()
		c.Bind(top).Branch(cf.OpGoto, top)
	}))
	th, _ := v.NewThread(0)
	if err := v.ThreadGoto(th, cls, "spin", "()V"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if err := v.Step(); err != nil {
			t.Fatal(err)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := v.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
	if v.Instructions() != 5*DefaultQuantum {
		t.Errorf("Instructions = %d", v.Instructions())
	}
}

func TestFailedThreadDoesNotStopOthers(t *testing.T) {
	v := newTestVM(t)
	b := cf.NewClass("demo/Mixed", object, cf.AccPublic)
	b.Field(cf.AccStatic, "done", "I")
	bad := b.Code(2, 0)
	bad.Iconst(1).Iconst(0).Op(cf.OpIdiv).Op(cf.OpPop).Op(cf.OpReturn)
	b.Method(cf.AccPublic|cf.AccStatic, "bad", "()V", bad)
	good := b.Code(1, 0)
	good.Iconst(1).Field(cf.OpPutstatic, "demo/Mixed", "done", "I").Op(cf.OpReturn)
	b.Method(cf.AccPublic|cf.AccStatic, "good", "()V", good)
	cls := load(t, v, encodings[1], b)

	for _, name := range []string{"bad", "good"} {
		th, _ := v.NewThread(0)
		if err := v.ThreadGoto(th, cls, name, "()V"); err != nil {
			t.Fatal(err)
		}
	}
	if err := v.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if x, _ := v.StaticField(cls, "done", "I"); x != 1 {
		t.Error("good thread did not finish")
	}
}

func TestCloseReleasesFiles(t *testing.T) {
	v, err := New(Options{Heap: heap.NewArena(16 << 10)})
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
