package vm

import (
	"context"
	"errors"
	"testing"

	"github.com/chazu/ujvm/heap"
	"github.com/chazu/ujvm/numeric"
	cf "github.com/chazu/ujvm/pkg/classfile"
)

const object = "java/lang/Object"

func newTestVM(t *testing.T, tweak ...func(*Options)) *VM {
	t.Helper()
	opts := Options{
		Heap:   heap.NewArena(64 << 10),
		Long:   numeric.NativeLong{},
		Double: numeric.NativeDouble{},
	}
	for _, f := range tweak {
		f(&opts)
	}
	v, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v
}

// encoding renders a class builder in one on-disk format.
type encoding struct {
	name string
	enc  func(*cf.ClassBuilder) ([]byte, error)
}

var encodings = []encoding{
	{"standard", (*cf.ClassBuilder).Standard},
	{"compact", (*cf.ClassBuilder).Compact},
}

// eachConfig runs fn for both class formats, with and without hashed
// lookups. Results must not depend on either.
func eachConfig(t *testing.T, fn func(t *testing.T, enc encoding, fast bool)) {
	for _, e := range encodings {
		for _, fast := range []bool{false, true} {
			name := e.name
			if fast {
				name += "/fast"
			}
			t.Run(name, func(t *testing.T) { fn(t, e, fast) })
		}
	}
}

func encode(t *testing.T, enc encoding, b *cf.ClassBuilder) []byte {
	t.Helper()
	img, err := enc.enc(b)
	if err != nil {
		t.Fatalf("encoding %s: %v", b.Name, err)
	}
	return img
}

// load encodes and loads classes in order and returns the last one.
func load(t *testing.T, v *VM, enc encoding, bs ...*cf.ClassBuilder) *Class {
	t.Helper()
	var last *Class
	for _, b := range bs {
		c, err := v.LoadClass(MemorySource(encode(t, enc, b)))
		if err != nil {
			t.Fatalf("LoadClass %s: %v", b.Name, err)
		}
		last = c
	}
	return last
}

// invoke runs a static method to completion and fails the test on error.
func invoke(t *testing.T, v *VM, cls *Class, name, desc string, args ...uint32) *Thread {
	t.Helper()
	th, err := v.Invoke(context.Background(), cls, name, desc, args...)
	if err != nil {
		t.Fatalf("%s.%s%s: %v", cls.Name(), name, desc, err)
	}
	return th
}

// invokeErr runs a static method that is expected to fail and returns the
// code it failed with.
func invokeErr(t *testing.T, v *VM, cls *Class, name, desc string, args ...uint32) Code {
	t.Helper()
	_, err := v.Invoke(context.Background(), cls, name, desc, args...)
	if err == nil {
		t.Fatalf("%s.%s%s succeeded, want failure", cls.Name(), name, desc)
	}
	var te *ThreadError
	if !errors.As(err, &te) {
		t.Fatalf("error %v is not a *ThreadError", err)
	}
	return te.Code
}

// staticClass is a one-method class: static name(desc) with the given body.
func staticClass(name, method, desc string, maxStack, maxLocals int, body func(c *cf.Code)) *cf.ClassBuilder {
	b := cf.NewClass(name, object, cf.AccPublic|cf.AccSuper)
	c := b.Code(maxStack, maxLocals)
	body(c)
	b.Method(cf.AccPublic|cf.AccStatic, method, desc, c)
	return b
}

// ctor adds a no-argument constructor that chains to super.
func ctor(b *cf.ClassBuilder) *cf.ClassBuilder {
	c := b.Code(1, 1)
	c.Op(cf.OpAload0).Invoke(cf.OpInvokespecial, b.Super, "<init>", "()V").Op(cf.OpReturn)
	return b.Method(cf.AccPublic, "<init>", "()V", c)
}
