package vm

import "math"

// PCDone is the program counter of a thread that has returned from its
// outermost method.
const PCDone = math.MaxUint32

// Thread flag bits, saved in the high byte of return info word 3.
const (
	flagHasInst uint8 = 1 << iota
	flagSync
)

// Thread is one VM thread. Locals, operands and return info for every
// active call share a single word stack, so a thread is suspended or
// snapshotted by copying that stack.
type Thread struct {
	ID   uint32
	vm   *VM
	next *Thread

	stack []uint32
	refs  []uint64 // one bit per stack slot
	sp    uint32
	base  uint32 // localsBase

	cls         *Class
	inst        Handle
	methodStart uint32
	pc          uint32
	instrStart  uint32
	flags       uint8

	// Result holds the value returned by the outermost method.
	Result      [2]uint32
	ResultWidth int
	ResultRef   bool
}

// stackFault is raised by a push past the end of the stack. The step loop
// turns it into ErrStackSpace.
type stackFault struct{}

// VM returns the owning VM.
func (t *Thread) VM() *VM { return t.vm }

// Done reports whether the thread has left its outermost method.
func (t *Thread) Done() bool { return t.pc == PCDone }

// SP returns the stack height.
func (t *Thread) SP() int { return int(t.sp) }

// Class returns the class of the running method.
func (t *Thread) Class() *Class { return t.cls }

// ResultInt returns a 32-bit result.
func (t *Thread) ResultInt() int32 { return int32(t.Result[0]) }

// ResultLong returns a 64-bit result.
func (t *Thread) ResultLong() int64 { return int64(uint64(t.Result[0])<<32 | uint64(t.Result[1])) }

// ResultHandle returns a reference result, or 0 if the result is not a
// reference.
func (t *Thread) ResultHandle() Handle {
	if !t.ResultRef {
		return 0
	}
	return Handle(t.Result[0])
}

// ---------------------------------------------------------------------------
// Slot access
// ---------------------------------------------------------------------------

func (t *Thread) isRef(i uint32) bool { return t.refs[i>>6]&(1<<(i&63)) != 0 }

func (t *Thread) setRef(i uint32, ref bool) {
	if ref {
		t.refs[i>>6] |= 1 << (i & 63)
	} else {
		t.refs[i>>6] &^= 1 << (i & 63)
	}
}

func (t *Thread) get(i uint32) (uint32, bool) { return t.stack[i], t.isRef(i) }

func (t *Thread) set(i uint32, x uint32, ref bool) {
	t.stack[i] = x
	t.setRef(i, ref)
}

func (t *Thread) push(x uint32, ref bool) {
	if t.sp >= uint32(len(t.stack)) {
		panic(stackFault{})
	}
	t.set(t.sp, x, ref)
	t.sp++
}

func (t *Thread) pop() (uint32, bool) {
	t.sp--
	x, ref := t.get(t.sp)
	t.setRef(t.sp, false)
	return x, ref
}

// peek returns the slot depth entries below the top (0 is the top).
func (t *Thread) peek(depth uint32) (uint32, bool) { return t.get(t.sp - 1 - depth) }

// PushInt pushes a 32-bit value.
func (t *Thread) PushInt(x int32) { t.push(uint32(x), false) }

// PopInt pops a 32-bit value.
func (t *Thread) PopInt() int32 {
	x, _ := t.pop()
	return int32(x)
}

// PushRef pushes a reference.
func (t *Thread) PushRef(h Handle) { t.push(uint32(h), true) }

// PopRef pops a reference.
func (t *Thread) PopRef() Handle {
	x, _ := t.pop()
	return Handle(x)
}

// PushLong pushes a 64-bit value as two slots, high word first.
func (t *Thread) PushLong(x int64) {
	t.push(uint32(uint64(x)>>32), false)
	t.push(uint32(x), false)
}

// PopLong pops a 64-bit value.
func (t *Thread) PopLong() int64 {
	lo, _ := t.pop()
	hi, _ := t.pop()
	return int64(uint64(hi)<<32 | uint64(lo))
}

func (t *Thread) pushFloat(f float32) { t.push(math.Float32bits(f), false) }

func (t *Thread) popFloat() float32 {
	x, _ := t.pop()
	return math.Float32frombits(x)
}

func (t *Thread) pushDouble(d float64) { t.PushLong(int64(math.Float64bits(d))) }

func (t *Thread) popDouble() float64 { return math.Float64frombits(uint64(t.PopLong())) }

// dup copies the top n slots and inserts the copies k slots further down.
func (t *Thread) dup(n, k uint32) {
	old := t.sp
	if old+n > uint32(len(t.stack)) {
		panic(stackFault{})
	}
	for i := uint32(0); i < n+k; i++ {
		x, ref := t.get(old - 1 - i)
		t.set(old+n-1-i, x, ref)
	}
	for i := uint32(0); i < n; i++ {
		x, ref := t.get(old + i)
		t.set(old-n-k+i, x, ref)
	}
	t.sp = old + n
}

func (t *Thread) swap() {
	a, ar := t.get(t.sp - 1)
	b, br := t.get(t.sp - 2)
	t.set(t.sp-1, b, br)
	t.set(t.sp-2, a, ar)
}

// truncate pops down to height h, clearing reference bits.
func (t *Thread) truncate(h uint32) {
	for t.sp > h {
		t.sp--
		t.setRef(t.sp, false)
	}
}

// local returns local variable i of the current frame.
func (t *Thread) local(i uint32) (uint32, bool) { return t.get(t.base + i) }

func (t *Thread) setLocal(i uint32, x uint32, ref bool) { t.set(t.base+i, x, ref) }

// ---------------------------------------------------------------------------
// Code stream
// ---------------------------------------------------------------------------

func (t *Thread) u8() uint8 {
	b := t.cls.src.ByteAt(t.pc)
	t.pc++
	return b
}

func (t *Thread) s8() int8 { return int8(t.u8()) }

func (t *Thread) u16() uint16 {
	x := be16(t.cls.src, t.pc)
	t.pc += 2
	return x
}

func (t *Thread) s16() int16 { return int16(t.u16()) }

func (t *Thread) u32() uint32 {
	x := be32(t.cls.src, t.pc)
	t.pc += 4
	return x
}
