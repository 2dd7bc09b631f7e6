package vm

import (
	"testing"

	cf "github.com/chazu/ujvm/pkg/classfile"
)

func iface(name string, supers ...string) *cf.ClassBuilder {
	return cf.NewClass(name, object, cf.AccPublic|cf.AccInterface|cf.AccAbstract).Implements(supers...)
}

// loadDiamond loads IA, IB and IC extending IA, ID extending both, Impl
// implementing ID and Sub extending Impl.
func loadDiamond(t *testing.T, v *VM, enc encoding) {
	t.Helper()
	load(t, v, enc,
		iface("demo/IA"),
		iface("demo/IB", "demo/IA"),
		iface("demo/IC", "demo/IA"),
		iface("demo/ID", "demo/IB", "demo/IC"),
		emptyClass("demo/Impl", object).Implements("demo/ID"),
		emptyClass("demo/Sub", "demo/Impl"),
		emptyClass("demo/Other", object),
	)
}

func TestInstanceOfDiamond(t *testing.T) {
	eachConfig(t, func(t *testing.T, enc encoding, fast bool) {
		v := newTestVM(t, func(o *Options) { o.FastClassSearch = fast })
		loadDiamond(t, v, enc)
		c := func(name string) *Class { return v.FindClassByName(name) }

		tests := []struct {
			from, to string
			want     bool
		}{
			{"demo/Sub", "demo/IA", true},
			{"demo/Sub", "demo/IC", true},
			{"demo/Impl", "demo/ID", true},
			{"demo/Sub", "demo/Impl", true},
			{"demo/Sub", object, true},
			{"demo/Impl", "demo/Sub", false},
			{"demo/Other", "demo/IA", false},
			{"demo/ID", "demo/IA", true},
			{"demo/IA", "demo/ID", false},
		}
		for _, tt := range tests {
			if got := v.InstanceOf(c(tt.from), c(tt.to)); got != tt.want {
				t.Errorf("InstanceOf(%s, %s) = %t, want %t", tt.from, tt.to, got, tt.want)
			}
		}
		// repeated walks must not be affected by marks left behind
		if !v.Implements(c("demo/Sub"), c("demo/IB")) || !v.Implements(c("demo/Sub"), c("demo/IB")) {
			t.Error("second walk differs")
		}
	})
}

func TestInstanceofAndCheckcastOpcodes(t *testing.T) {
	v := newTestVM(t)
	loadDiamond(t, v, encodings[0])
	b := staticClass("demo/Cast", "isA", "()I", 2, 0, func(c *cf.Code) {
		c.ClassOp(cf.OpNew, "demo/Sub").ClassOp(cf.OpInstanceof, "demo/IA")
		c.ClassOp(cf.OpNew, "demo/Other").ClassOp(cf.OpInstanceof, "demo/IA")
		c.Op(cf.OpIadd)
		c.Op(cf.OpAconstNull).ClassOp(cf.OpInstanceof, object)
		c.Op(cf.OpIadd)
		c.Iconst(1).NewArray(cf.ATypeInt).ClassOp(cf.OpInstanceof, object)
		c.Op(cf.OpIadd).Op(cf.OpIreturn)
	})
	bad := b.Code(1, 0)
	bad.ClassOp(cf.OpNew, "demo/Impl").ClassOp(cf.OpCheckcast, "demo/Sub").Op(cf.OpPop).Op(cf.OpReturn)
	b.Method(cf.AccPublic|cf.AccStatic, "bad", "()V", bad)
	cls := load(t, v, encodings[0], b)

	if got := invoke(t, v, cls, "isA", "()I").ResultInt(); got != 2 {
		t.Errorf("isA = %d, want 2", got)
	}
	if code := invokeErr(t, v, cls, "bad", "()V"); code != CodeInvalidCast {
		t.Errorf("checkcast code = %s, want %s", code, CodeInvalidCast)
	}
}

func TestArrayInstanceOfChecksElementType(t *testing.T) {
	v := newTestVM(t)
	newArr := func(elem byte) Handle {
		h, err := v.NewArray(elem, 2)
		if err != nil {
			t.Fatal(err)
		}
		return h
	}
	ints, bytes := newArr(cf.TypeInt), newArr(cf.TypeByte)
	objs, nested := newArr(cf.TypeObject), newArr(cf.TypeArray)

	tests := []struct {
		name   string
		h      Handle
		target string
		want   bool
	}{
		{"int[] as Object", ints, object, true},
		{"int[] as int[]", ints, "[I", true},
		{"int[] as byte[]", ints, "[B", false},
		{"int[] as Object[]", ints, "[Ljava/lang/Object;", false},
		{"byte[] as byte[]", bytes, "[B", true},
		{"byte[] as int[][]", bytes, "[[I", false},
		{"Object[] as Object[]", objs, "[Ljava/lang/Object;", true},
		{"Object[] as String[]", objs, "[Ljava/lang/String;", true},
		{"Object[] as int[]", objs, "[I", false},
		{"int[][] as int[][]", nested, "[[I", true},
		{"int[][] as Object[]", nested, "[Ljava/lang/Object;", true},
		{"int[][] as String[]", nested, "[Ljava/lang/String;", false},
		{"int[][] as int[]", nested, "[I", false},
	}
	for _, tt := range tests {
		if got := v.objectInstanceOf(tt.h, Lit(tt.target)); got != tt.want {
			t.Errorf("%s = %t, want %t", tt.name, got, tt.want)
		}
	}
}

func TestCheckcastRejectsWrongPrimitiveArray(t *testing.T) {
	v := newTestVM(t)
	b := staticClass("demo/ArrCast", "ok", "()I", 1, 0, func(c *cf.Code) {
		c.Iconst(3).NewArray(cf.ATypeInt).ClassOp(cf.OpCheckcast, "[I").Op(cf.OpArraylength).Op(cf.OpIreturn)
	})
	bad := b.Code(1, 0)
	bad.Iconst(3).NewArray(cf.ATypeInt).ClassOp(cf.OpCheckcast, "[Ljava/lang/Object;").Op(cf.OpPop).Op(cf.OpReturn)
	b.Method(cf.AccPublic|cf.AccStatic, "bad", "()V", bad)
	cls := load(t, v, encodings[1], b)

	if got := invoke(t, v, cls, "ok", "()I").ResultInt(); got != 3 {
		t.Errorf("ok = %d, want 3", got)
	}
	if code := invokeErr(t, v, cls, "bad", "()V"); code != CodeInvalidCast {
		t.Errorf("checkcast code = %s, want %s", code, CodeInvalidCast)
	}
}
