package classfile

import (
	"strings"
	"testing"
)

func TestDisassembleClass(t *testing.T) {
	img, err := sampleClass(t).Standard()
	if err != nil {
		t.Fatal(err)
	}
	in, err := Inspect(img)
	if err != nil {
		t.Fatal(err)
	}
	out := in.Disassemble()

	for _, want := range []string{
		"; === demo/Counter ===",
		"; Implements: java/lang/Runnable",
		"; Method run()V [public]",
		"0000  aload_0",
		"getfield #",
		"demo/Counter.count:I",
		"; Catch 0000..000A -> 000B class java/lang/Throwable",
		"string \"hi\"",
		"long 1099511627776",
		"; Method poke(I)V [public native]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("listing missing %q\n%s", want, out)
		}
	}
}

func TestDisassembleSwitchAndWide(t *testing.T) {
	c := NewCode(NewPool(), 1, 1)
	def, one := c.NewLabel(), c.NewLabel()
	c.Op(OpIload0)
	c.LookupSwitch(def, []int32{7}, []Label{one})
	c.Bind(one)
	c.WideInvoke(OpInvokestatic, 2, 3)
	c.Bind(def)
	c.PushRaw(0xDEADBEEF)
	c.Op(OpIreturn)
	code, _, err := c.Assemble()
	if err != nil {
		t.Fatal(err)
	}

	out := (&Info{}).DisassembleCode(code)
	for _, want := range []string{
		"0001  lookupswitch default",
		" 7:",
		"wide invokestatic params=2 method=3",
		"ujpushraw 0xDEADBEEF",
		"ireturn",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("listing missing %q\n%s", want, out)
		}
	}
}
