package vm

import (
	"testing"

	"github.com/chazu/ujvm/heap"
	"github.com/chazu/ujvm/numeric"
	cf "github.com/chazu/ujvm/pkg/classfile"
)

func TestCollectionKeepsReachableObjects(t *testing.T) {
	for _, enc := range encodings {
		t.Run(enc.name, func(t *testing.T) {
			arena := heap.NewArena(8 << 10)
			v, err := New(Options{Heap: arena, Long: numeric.NativeLong{}, Double: numeric.NativeDouble{}})
			if err != nil {
				t.Fatal(err)
			}

			b := cf.NewClass("demo/Churn", object, cf.AccPublic)
			b.Field(cf.AccStatic, "keep", "[I")
			c := b.Code(4, 2)
			top, done := c.NewLabel(), c.NewLabel()
			c.Iconst(1).NewArray(cf.ATypeInt).Op(cf.OpDup)
			c.Iconst(0).Op(cf.OpSipush, 0x04, 0xD2).Op(cf.OpIastore) // 1234
			c.Field(cf.OpPutstatic, "demo/Churn", "keep", "[I")
			c.Iconst(2).NewArray(cf.ATypeInt).Local(cf.OpAstore, 1)
			c.Iconst(0).Local(cf.OpIstore, 0)
			c.Bind(top)
			c.Op(cf.OpIload0).Op(cf.OpSipush, 0x01, 0xF4).Branch(cf.OpIfIcmpge, done) // 500
			c.Op(cf.OpBipush, 100).NewArray(cf.ATypeInt).Op(cf.OpPop)
			c.Iinc(0, 1)
			c.Branch(cf.OpGoto, top)
			c.Bind(done)
			c.Field(cf.OpGetstatic, "demo/Churn", "keep", "[I").Iconst(0).Op(cf.OpIaload)
			c.Op(cf.OpAload1).Op(cf.OpArraylength).Op(cf.OpIadd)
			c.Op(cf.OpIreturn)
			b.Method(cf.AccPublic|cf.AccStatic, "churn", "()I", c)
			cls := load(t, v, enc, b)

			th := invoke(t, v, cls, "churn", "()I")
			if th.ResultInt() != 1236 {
				t.Errorf("result = %d, want 1236", th.ResultInt())
			}
			st := arena.Stats()
			if st.Collections == 0 || st.Freed == 0 {
				t.Errorf("stats = %+v, want collections to have run", st)
			}
			if st.Used > 8<<10 {
				t.Errorf("used %d exceeds capacity", st.Used)
			}
		})
	}
}

func TestStringSurvivesCollection(t *testing.T) {
	arena := heap.NewArena(8 << 10)
	v, err := New(Options{Heap: arena})
	if err != nil {
		t.Fatal(err)
	}
	s, err := v.NewString("still here")
	if err != nil {
		t.Fatal(err)
	}
	v.pin(s)
	defer v.unpin(s)

	for i := 0; i < 100; i++ {
		if _, err := v.NewArray(cf.TypeByte, 200); err != nil {
			t.Fatalf("alloc %d: %v", i, err)
		}
	}
	if arena.Stats().Collections == 0 {
		t.Fatal("no collection ran")
	}
	got, err := v.StringValue(s)
	if err != nil || got != "still here" {
		t.Errorf("StringValue = %q, %v", got, err)
	}
}

func TestOutOfMemoryWhenEverythingIsLive(t *testing.T) {
	arena := heap.NewArena(4 << 10)
	v, err := New(Options{Heap: arena})
	if err != nil {
		t.Fatal(err)
	}
	var failed error
	for i := 0; i < 100 && failed == nil; i++ {
		h, err := v.NewArray(cf.TypeByte, 256)
		if err != nil {
			failed = err
			break
		}
		v.pin(h)
	}
	if CodeOf(failed) != CodeOutOfMemory {
		t.Errorf("err = %v, want out of memory", failed)
	}
}

// lockTracker wraps an arena, recording lock depths and frees and failing
// allocations on request.
type lockTracker struct {
	*heap.Arena
	depth, peak map[Handle]int
	freed       []Handle
	allocs      int // allocations left before failing; negative never fails
}

func newLockTracker(size int) *lockTracker {
	return &lockTracker{
		Arena:  heap.NewArena(size),
		depth:  map[Handle]int{},
		peak:   map[Handle]int{},
		allocs: -1,
	}
}

func (l *lockTracker) Lock(h Handle) []byte {
	l.depth[h]++
	l.peak[h] = max(l.peak[h], l.depth[h])
	return l.Arena.Lock(h)
}

func (l *lockTracker) Release(h Handle) {
	l.depth[h]--
	l.Arena.Release(h)
}

func (l *lockTracker) take() error {
	if l.allocs == 0 {
		return heap.ErrOutOfMemory
	}
	if l.allocs > 0 {
		l.allocs--
	}
	return nil
}

func (l *lockTracker) Alloc(size int) (Handle, error) {
	if err := l.take(); err != nil {
		return 0, err
	}
	return l.Arena.Alloc(size)
}

func (l *lockTracker) AllocFixed(size int) (Handle, error) {
	if err := l.take(); err != nil {
		return 0, err
	}
	return l.Arena.AllocFixed(size)
}

func (l *lockTracker) Free(h Handle) {
	l.freed = append(l.freed, h)
	l.Arena.Free(h)
}

func TestMarkReadsLockedObjectsWithoutRelocking(t *testing.T) {
	hp := newLockTracker(8 << 10)
	v, err := New(Options{Heap: hp})
	if err != nil {
		t.Fatal(err)
	}
	arr, err := v.NewArray(cf.TypeObject, 1)
	if err != nil {
		t.Fatal(err)
	}
	child, err := v.NewArray(cf.TypeInt, 4)
	if err != nil {
		t.Fatal(err)
	}
	b := hp.Lock(arr)
	le.PutUint32(b[arrData:], uint32(child))
	v.pin(arr)
	defer v.unpin(arr)

	clear(hp.peak)
	hp.Collect()
	if !hp.Valid(child) {
		t.Fatal("child of a locked array was freed")
	}
	if hp.peak[arr] != 0 {
		t.Errorf("marking locked the already locked array again (depth %d)", hp.peak[arr]+1)
	}
	if hp.peak[child] != 1 || hp.depth[child] != 0 {
		t.Errorf("child lock depth: peak %d, now %d, want 1 and 0", hp.peak[child], hp.depth[child])
	}
	hp.Release(arr)
	if hp.IsLocked(arr) {
		t.Error("array still locked after release")
	}
}

func TestStringAllocationFailureFreesBytes(t *testing.T) {
	hp := newLockTracker(16 << 10)
	v, err := New(Options{Heap: hp})
	if err != nil {
		t.Fatal(err)
	}

	hp.allocs = 1
	if _, err := v.NewString("lost"); err == nil {
		t.Fatal("NewString succeeded with one allocation left")
	}
	if len(hp.freed) != 1 || hp.Valid(hp.freed[0]) {
		t.Fatalf("freed %v, want the byte array released", hp.freed)
	}
	if len(v.pins) != 0 {
		t.Errorf("%d handles still pinned", len(v.pins))
	}

	hp.allocs = -1
	cls := load(t, v, encodings[0], staticClass("demo/Lit", "s", "()Ljava/lang/String;", 1, 0, func(c *cf.Code) {
		c.LdcString("kept").Op(cf.OpAreturn)
	}))
	hp.freed = nil
	hp.allocs = 1
	invokeErr(t, v, cls, "s", "()Ljava/lang/String;")
	if len(hp.freed) != 1 || hp.Valid(hp.freed[0]) {
		t.Fatalf("freed %v, want the fixed literal bytes released", hp.freed)
	}
	if len(v.literals) != 0 {
		t.Error("failed literal was interned")
	}

	hp.allocs = -1
	th := invoke(t, v, cls, "s", "()Ljava/lang/String;")
	if got, err := v.StringValue(Handle(th.Result[0])); err != nil || got != "kept" {
		t.Errorf("literal = %q, %v", got, err)
	}
}
