package vm

import (
	"testing"
)

func stackOf(th *Thread) (vals []uint32, refs []bool) {
	for i := uint32(0); i < th.sp; i++ {
		x, r := th.get(i)
		vals = append(vals, x)
		refs = append(refs, r)
	}
	return vals, refs
}

func checkStack(t *testing.T, th *Thread, vals []uint32, refs []bool) {
	t.Helper()
	gotV, gotR := stackOf(th)
	if len(gotV) != len(vals) {
		t.Fatalf("stack = %v, want %v", gotV, vals)
	}
	for i := range vals {
		if gotV[i] != vals[i] || gotR[i] != refs[i] {
			t.Errorf("slot %d = (%d, ref %t), want (%d, ref %t)", i, gotV[i], gotR[i], vals[i], refs[i])
		}
	}
}

func TestDupFamilyKeepsRefBits(t *testing.T) {
	tests := []struct {
		name     string
		n, k     uint32
		wantV    []uint32
		wantRefs []bool
	}{
		{"dup", 1, 0, []uint32{1, 2, 2}, []bool{true, false, false}},
		{"dup_x1", 1, 1, []uint32{2, 1, 2}, []bool{false, true, false}},
		{"dup2", 2, 0, []uint32{1, 2, 1, 2}, []bool{true, false, true, false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestVM(t)
			th, err := v.NewThread(16)
			if err != nil {
				t.Fatal(err)
			}
			th.push(1, true)
			th.push(2, false)
			th.dup(tt.n, tt.k)
			checkStack(t, th, tt.wantV, tt.wantRefs)
		})
	}
}

func TestDup2X2(t *testing.T) {
	v := newTestVM(t)
	th, _ := v.NewThread(16)
	th.push(1, false)
	th.push(2, true)
	th.push(3, false)
	th.push(4, true)
	th.dup(2, 2)
	checkStack(t, th,
		[]uint32{3, 4, 1, 2, 3, 4},
		[]bool{false, true, false, true, false, true})
}

func TestSwapKeepsRefBits(t *testing.T) {
	v := newTestVM(t)
	th, _ := v.NewThread(16)
	th.push(5, true)
	th.push(6, false)
	th.swap()
	checkStack(t, th, []uint32{6, 5}, []bool{false, true})
}

func TestTruncateClearsRefBits(t *testing.T) {
	v := newTestVM(t)
	th, _ := v.NewThread(16)
	th.push(1, true)
	th.push(2, true)
	th.truncate(0)
	if th.isRef(0) || th.isRef(1) {
		t.Error("ref bits left above the truncated height")
	}
}

func TestLongSlotsAreBigWordFirst(t *testing.T) {
	v := newTestVM(t)
	th, _ := v.NewThread(16)
	th.PushLong(-2)
	hi, _ := th.get(0)
	lo, _ := th.get(1)
	if hi != 0xFFFFFFFF || lo != 0xFFFFFFFE {
		t.Errorf("slots = %#x %#x", hi, lo)
	}
	if got := th.PopLong(); got != -2 {
		t.Errorf("PopLong = %d", got)
	}
}

func TestPushOverflowPanicsAsStackFault(t *testing.T) {
	v := newTestVM(t)
	th, _ := v.NewThread(RetInfoSlots)
	defer func() {
		if _, ok := recover().(stackFault); !ok {
			t.Error("expected a stackFault panic")
		}
	}()
	for i := 0; i <= RetInfoSlots; i++ {
		th.PushInt(int32(i))
	}
}

func TestNewThreadRejectsBadStackSize(t *testing.T) {
	v := newTestVM(t)
	if _, err := v.NewThread(2); err == nil {
		t.Error("expected error for a stack smaller than one frame record")
	}
	if _, err := v.NewThread(1 << 17); err == nil {
		t.Error("expected error for a stack beyond 16-bit addressing")
	}
}
