package dist

import (
	"context"
	"strings"
	"testing"

	"github.com/chazu/ujvm/heap"
	"github.com/chazu/ujvm/numeric"
	"github.com/chazu/ujvm/pkg/classfile"
	"github.com/chazu/ujvm/vm"
)

func newVM(t *testing.T) *vm.VM {
	t.Helper()
	v, err := vm.New(vm.Options{
		Heap:   heap.NewArena(64 << 10),
		Long:   numeric.NativeLong{},
		Double: numeric.NativeDouble{},
	})
	if err != nil {
		t.Fatalf("vm.New: %v", err)
	}
	return v
}

// sumClass returns a class whose static sum()I computes 40+2.
func sumClass(t *testing.T, name, super string) []byte {
	t.Helper()
	b := classfile.NewClass(name, super, classfile.AccPublic)
	c := b.Code(2, 0)
	c.Iconst(40).Iconst(2).Op(classfile.OpIadd).Op(classfile.OpIreturn)
	b.Method(classfile.AccPublic|classfile.AccStatic, "sum", "()I", c)
	img, err := b.Standard()
	if err != nil {
		t.Fatalf("Standard: %v", err)
	}
	return img
}

func TestChunk_CBORRoundTrip(t *testing.T) {
	c, err := ClassToChunk(sumClass(t, "demo/Sum", "java/lang/Object"))
	if err != nil {
		t.Fatalf("ClassToChunk: %v", err)
	}
	if c.Name != "demo/Sum" || c.Type != ChunkClass {
		t.Fatalf("chunk = %s type %d", c.Name, c.Type)
	}
	if len(c.Dependencies) != 1 || c.Dependencies[0] != "java/lang/Object" {
		t.Errorf("Dependencies = %v", c.Dependencies)
	}

	data, err := MarshalChunk(c)
	if err != nil {
		t.Fatalf("MarshalChunk: %v", err)
	}
	again, err := MarshalChunk(c)
	if err != nil {
		t.Fatalf("MarshalChunk: %v", err)
	}
	if string(data) != string(again) {
		t.Error("canonical encoding is not deterministic")
	}

	got, err := UnmarshalChunk(data)
	if err != nil {
		t.Fatalf("UnmarshalChunk: %v", err)
	}
	if got.Hash != c.Hash || got.Name != c.Name || string(got.Content) != string(c.Content) {
		t.Error("chunk changed across the wire")
	}
	if err := got.Verify(); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestChunk_VerifyDetectsTampering(t *testing.T) {
	c, err := ClassToChunk(sumClass(t, "demo/Sum", "java/lang/Object"))
	if err != nil {
		t.Fatalf("ClassToChunk: %v", err)
	}
	c.Content[len(c.Content)-1] ^= 0xFF
	if err := c.Verify(); err == nil || !strings.Contains(err.Error(), "hash mismatch") {
		t.Errorf("Verify = %v, want hash mismatch", err)
	}
}

func TestUnmarshalChunk_InvalidData(t *testing.T) {
	if _, err := UnmarshalChunk([]byte{0xFF, 0x00}); err == nil {
		t.Error("expected error for invalid CBOR")
	}
}

func TestTransitiveClosure_DependenciesFirst(t *testing.T) {
	base, err := ClassToChunk(sumClass(t, "demo/Base", "java/lang/Object"))
	if err != nil {
		t.Fatal(err)
	}
	derived, err := ClassToChunk(sumClass(t, "demo/Derived", "demo/Base"))
	if err != nil {
		t.Fatal(err)
	}
	chunks := map[string]*Chunk{base.Name: base, derived.Name: derived}

	got := TransitiveClosure("demo/Derived", chunks)
	if len(got) != 2 || got[0] != "demo/Base" || got[1] != "demo/Derived" {
		t.Errorf("closure = %v", got)
	}
}

func TestLoadChunks_AnyOrder(t *testing.T) {
	base, _ := ClassToChunk(sumClass(t, "demo/Base", "java/lang/Object"))
	derived, _ := ClassToChunk(sumClass(t, "demo/Derived", "demo/Base"))

	v := newVM(t)
	classes, err := LoadChunks(v, []*Chunk{derived, base})
	if err != nil {
		t.Fatalf("LoadChunks: %v", err)
	}
	if len(classes) != 2 {
		t.Fatalf("loaded %d classes", len(classes))
	}
	if v.FindClassByName("demo/Derived").Super != v.FindClassByName("demo/Base") {
		t.Error("Derived not linked to Base")
	}
}

func TestContainerChunk(t *testing.T) {
	pack, err := classfile.Pack([][]byte{
		sumClass(t, "demo/Derived", "demo/Base"),
		sumClass(t, "demo/Base", "java/lang/Object"),
	})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	c, err := ContainerToChunk("demo", pack)
	if err != nil {
		t.Fatalf("ContainerToChunk: %v", err)
	}
	if len(c.Dependencies) != 1 || c.Dependencies[0] != "java/lang/Object" {
		t.Errorf("Dependencies = %v", c.Dependencies)
	}
	v := newVM(t)
	if _, err := LoadChunks(v, []*Chunk{c}); err != nil {
		t.Fatalf("LoadChunks: %v", err)
	}
}

func TestThreadSuspendResume(t *testing.T) {
	v := newVM(t)
	cls, err := v.LoadClass(vm.MemorySource(sumClass(t, "demo/Sum", "java/lang/Object")))
	if err != nil {
		t.Fatalf("LoadClass: %v", err)
	}
	th, err := v.NewThread(0)
	if err != nil {
		t.Fatal(err)
	}
	if err := v.ThreadGoto(th, cls, "sum", "()I"); err != nil {
		t.Fatalf("ThreadGoto: %v", err)
	}

	data, err := SuspendThread(v, th)
	if err != nil {
		t.Fatalf("SuspendThread: %v", err)
	}
	if v.CanRun() {
		t.Fatal("suspended thread still scheduled")
	}

	resumed, err := ResumeThread(v, data)
	if err != nil {
		t.Fatalf("ResumeThread: %v", err)
	}
	if err := v.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !resumed.Done() || resumed.ResultInt() != 42 {
		t.Errorf("done=%t result=%d, want 42", resumed.Done(), resumed.ResultInt())
	}
}

func TestVMSnapshot_CBORRoundTrip(t *testing.T) {
	v := newVM(t)
	if _, err := v.LoadClass(vm.MemorySource(sumClass(t, "demo/Sum", "java/lang/Object"))); err != nil {
		t.Fatal(err)
	}
	snap := v.Snapshot()
	data, err := MarshalVM(&snap)
	if err != nil {
		t.Fatalf("MarshalVM: %v", err)
	}
	got, err := UnmarshalVM(data)
	if err != nil {
		t.Fatalf("UnmarshalVM: %v", err)
	}
	if got.ID != v.ID.String() {
		t.Errorf("ID = %s", got.ID)
	}
	if len(got.Classes) != len(snap.Classes) {
		t.Fatalf("%d classes, want %d", len(got.Classes), len(snap.Classes))
	}
	last := got.Classes[len(got.Classes)-1]
	if last.Name != "demo/Sum" || last.Format != "standard" {
		t.Errorf("last class = %+v", last)
	}
}

func TestResumeThread_UnknownClass(t *testing.T) {
	v := newVM(t)
	data, err := MarshalThread(&vm.ThreadSnapshot{ClassID: 99, ClassName: "gone/Class", Capacity: 64})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ResumeThread(v, data); err == nil {
		t.Error("expected error restoring into a VM without the class")
	}
}
