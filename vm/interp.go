package vm

import (
	"fmt"
	"math"

	"github.com/chazu/ujvm/numeric"
	"github.com/chazu/ujvm/pkg/classfile"
	"github.com/tliron/commonlog"
)

// instr executes one instruction of t. Faults are offered to the exception
// subsystem; ErrRetryLater leaves the thread positioned to re-execute.
func (v *VM) instr(t *Thread) error {
	t.instrStart = t.pc
	op := classfile.Opcode(t.u8())
	v.instructions++
	if v.log.AllowLevel(commonlog.Debug) {
		v.log.Debugf("t%d %s+%04X %-14s sp=%d base=%d",
			t.ID, t.cls.Name(), t.instrStart-t.methodStart, op, t.sp, t.base)
	}

	err := v.execute(t, op)
	switch {
	case err == nil:
		return nil
	case err == ErrRetryLater:
		t.pc = t.instrStart
		return err
	}
	return v.raise(t, err)
}

// execute is the opcode switch.
func (v *VM) execute(t *Thread, op classfile.Opcode) error {
	if v.unsupported[op] {
		return fmt.Errorf("%w: %s", ErrUnsupportedOpcode, op)
	}

	switch op {
	case classfile.OpNop:

	// Constants

	case classfile.OpAconstNull:
		t.PushRef(0)
	case classfile.OpIconstM1, classfile.OpIconst0, classfile.OpIconst1, classfile.OpIconst2,
		classfile.OpIconst3, classfile.OpIconst4, classfile.OpIconst5:
		t.PushInt(int32(op) - int32(classfile.OpIconst0))
	case classfile.OpLconst0, classfile.OpLconst1:
		t.PushLong(int64(op - classfile.OpLconst0))
	case classfile.OpFconst0, classfile.OpFconst1, classfile.OpFconst2:
		t.pushFloat(float32(op - classfile.OpFconst0))
	case classfile.OpDconst0, classfile.OpDconst1:
		t.pushDouble(float64(op - classfile.OpDconst0))
	case classfile.OpBipush:
		t.PushInt(int32(t.s8()))
	case classfile.OpSipush:
		t.PushInt(int32(t.s16()))
	case classfile.OpLdc:
		return v.ldc(t, uint16(t.u8()))
	case classfile.OpLdcW, classfile.OpLdc2W:
		return v.ldc(t, t.u16())
	case classfile.OpPushRaw:
		t.PushInt(int32(t.u32()))

	// Locals

	case classfile.OpIload, classfile.OpFload, classfile.OpAload:
		t.load(uint32(t.u8()), 1)
	case classfile.OpLload, classfile.OpDload:
		t.load(uint32(t.u8()), 2)
	case classfile.OpIload0, classfile.OpIload1, classfile.OpIload2, classfile.OpIload3:
		t.load(uint32(op-classfile.OpIload0), 1)
	case classfile.OpLload0, classfile.OpLload1, classfile.OpLload2, classfile.OpLload3:
		t.load(uint32(op-classfile.OpLload0), 2)
	case classfile.OpFload0, classfile.OpFload1, classfile.OpFload2, classfile.OpFload3:
		t.load(uint32(op-classfile.OpFload0), 1)
	case classfile.OpDload0, classfile.OpDload1, classfile.OpDload2, classfile.OpDload3:
		t.load(uint32(op-classfile.OpDload0), 2)
	case classfile.OpAload0, classfile.OpAload1, classfile.OpAload2, classfile.OpAload3:
		t.load(uint32(op-classfile.OpAload0), 1)

	case classfile.OpIstore, classfile.OpFstore, classfile.OpAstore:
		t.store(uint32(t.u8()), 1)
	case classfile.OpLstore, classfile.OpDstore:
		t.store(uint32(t.u8()), 2)
	case classfile.OpIstore0, classfile.OpIstore1, classfile.OpIstore2, classfile.OpIstore3:
		t.store(uint32(op-classfile.OpIstore0), 1)
	case classfile.OpLstore0, classfile.OpLstore1, classfile.OpLstore2, classfile.OpLstore3:
		t.store(uint32(op-classfile.OpLstore0), 2)
	case classfile.OpFstore0, classfile.OpFstore1, classfile.OpFstore2, classfile.OpFstore3:
		t.store(uint32(op-classfile.OpFstore0), 1)
	case classfile.OpDstore0, classfile.OpDstore1, classfile.OpDstore2, classfile.OpDstore3:
		t.store(uint32(op-classfile.OpDstore0), 2)
	case classfile.OpAstore0, classfile.OpAstore1, classfile.OpAstore2, classfile.OpAstore3:
		t.store(uint32(op-classfile.OpAstore0), 1)

	case classfile.OpIinc:
		idx := uint32(t.u8())
		t.iinc(idx, int32(t.s8()))

	case classfile.OpWide:
		return v.wide(t)

	// Arrays

	case classfile.OpIaload:
		return v.arrayLoad(t, classfile.TypeInt)
	case classfile.OpLaload:
		return v.arrayLoad(t, classfile.TypeLong)
	case classfile.OpFaload:
		return v.arrayLoad(t, classfile.TypeFloat)
	case classfile.OpDaload:
		return v.arrayLoad(t, classfile.TypeDouble)
	case classfile.OpAaload:
		return v.arrayLoad(t, classfile.TypeObject)
	case classfile.OpBaload:
		return v.arrayLoad(t, classfile.TypeByte)
	case classfile.OpCaload:
		return v.arrayLoad(t, classfile.TypeChar)
	case classfile.OpSaload:
		return v.arrayLoad(t, classfile.TypeShort)

	case classfile.OpIastore:
		return v.arrayStore(t, classfile.TypeInt)
	case classfile.OpLastore:
		return v.arrayStore(t, classfile.TypeLong)
	case classfile.OpFastore:
		return v.arrayStore(t, classfile.TypeFloat)
	case classfile.OpDastore:
		return v.arrayStore(t, classfile.TypeDouble)
	case classfile.OpAastore:
		return v.arrayStore(t, classfile.TypeObject)
	case classfile.OpBastore:
		return v.arrayStore(t, classfile.TypeByte)
	case classfile.OpCastore:
		return v.arrayStore(t, classfile.TypeChar)
	case classfile.OpSastore:
		return v.arrayStore(t, classfile.TypeShort)

	case classfile.OpArraylength:
		x, _ := t.peek(0)
		if x == 0 {
			return ErrNullPointer
		}
		t.pop()
		t.PushInt(v.ArrayLen(Handle(x)))

	// Stack

	case classfile.OpPop:
		t.pop()
	case classfile.OpPop2:
		t.pop()
		t.pop()
	case classfile.OpDup:
		t.dup(1, 0)
	case classfile.OpDupX1:
		t.dup(1, 1)
	case classfile.OpDupX2:
		t.dup(1, 2)
	case classfile.OpDup2:
		t.dup(2, 0)
	case classfile.OpDup2X1:
		t.dup(2, 1)
	case classfile.OpDup2X2:
		t.dup(2, 2)
	case classfile.OpSwap:
		t.swap()

	// Integer arithmetic

	case classfile.OpIadd, classfile.OpIsub, classfile.OpImul, classfile.OpIdiv, classfile.OpIrem,
		classfile.OpIshl, classfile.OpIshr, classfile.OpIushr, classfile.OpIand, classfile.OpIor, classfile.OpIxor:
		return intOp(t, op)
	case classfile.OpIneg:
		t.PushInt(-t.PopInt())

	case classfile.OpLadd, classfile.OpLsub, classfile.OpLmul, classfile.OpLdiv, classfile.OpLrem,
		classfile.OpLand, classfile.OpLor, classfile.OpLxor:
		return v.longOp(t, op)
	case classfile.OpLshl, classfile.OpLshr, classfile.OpLushr:
		n := uint(t.PopInt() & 63)
		a := t.PopLong()
		switch op {
		case classfile.OpLshl:
			t.PushLong(v.long.Shl(a, n))
		case classfile.OpLshr:
			t.PushLong(v.long.Shr(a, n))
		default:
			t.PushLong(v.long.Ushr(a, n))
		}
	case classfile.OpLneg:
		t.PushLong(v.long.Neg(t.PopLong()))

	case classfile.OpFadd, classfile.OpFsub, classfile.OpFmul, classfile.OpFdiv, classfile.OpFrem:
		b, a := t.popFloat(), t.popFloat()
		t.pushFloat(floatOp(op, a, b))
	case classfile.OpFneg:
		t.pushFloat(-t.popFloat())

	case classfile.OpDadd, classfile.OpDsub, classfile.OpDmul, classfile.OpDdiv, classfile.OpDrem:
		b, a := t.popDouble(), t.popDouble()
		t.pushDouble(v.doubleOp(op, a, b))
	case classfile.OpDneg:
		t.pushDouble(v.double.Neg(t.popDouble()))

	// Conversions

	case classfile.OpI2l:
		t.PushLong(int64(t.PopInt()))
	case classfile.OpI2f:
		t.pushFloat(float32(t.PopInt()))
	case classfile.OpI2d:
		t.pushDouble(float64(t.PopInt()))
	case classfile.OpL2i:
		t.PushInt(int32(t.PopLong()))
	case classfile.OpL2f:
		t.pushFloat(float32(t.PopLong()))
	case classfile.OpL2d:
		t.pushDouble(float64(t.PopLong()))
	case classfile.OpF2i:
		t.PushInt(numeric.FloatToInt(t.popFloat()))
	case classfile.OpF2l:
		t.PushLong(numeric.FloatToLong(t.popFloat()))
	case classfile.OpF2d:
		t.pushDouble(float64(t.popFloat()))
	case classfile.OpD2i:
		t.PushInt(v.double.ToInt(t.popDouble()))
	case classfile.OpD2l:
		t.PushLong(v.double.ToLong(t.popDouble()))
	case classfile.OpD2f:
		t.pushFloat(float32(t.popDouble()))
	case classfile.OpI2b:
		t.PushInt(int32(int8(t.PopInt())))
	case classfile.OpI2c:
		t.PushInt(int32(uint16(t.PopInt())))
	case classfile.OpI2s:
		t.PushInt(int32(int16(t.PopInt())))

	// Comparisons

	case classfile.OpLcmp:
		b, a := t.PopLong(), t.PopLong()
		t.PushInt(v.long.Cmp(a, b))
	case classfile.OpFcmpl, classfile.OpFcmpg:
		b, a := t.popFloat(), t.popFloat()
		nan := int32(-1)
		if op == classfile.OpFcmpg {
			nan = 1
		}
		t.PushInt(numeric.FloatCmp(a, b, nan))
	case classfile.OpDcmpl, classfile.OpDcmpg:
		b, a := t.popDouble(), t.popDouble()
		nan := int32(-1)
		if op == classfile.OpDcmpg {
			nan = 1
		}
		t.PushInt(v.double.Cmp(a, b, nan))

	// Control

	case classfile.OpIfeq, classfile.OpIfne, classfile.OpIflt, classfile.OpIfge, classfile.OpIfgt, classfile.OpIfle:
		off := t.s16()
		t.branch(off, compare(op-classfile.OpIfeq, t.PopInt(), 0))
	case classfile.OpIfIcmpeq, classfile.OpIfIcmpne, classfile.OpIfIcmplt,
		classfile.OpIfIcmpge, classfile.OpIfIcmpgt, classfile.OpIfIcmple:
		off := t.s16()
		b, a := t.PopInt(), t.PopInt()
		t.branch(off, compare(op-classfile.OpIfIcmpeq, a, b))
	case classfile.OpIfAcmpeq, classfile.OpIfAcmpne:
		off := t.s16()
		b, a := t.PopRef(), t.PopRef()
		t.branch(off, (a == b) == (op == classfile.OpIfAcmpeq))
	case classfile.OpIfnull, classfile.OpIfnonnull:
		off := t.s16()
		h := t.PopRef()
		t.branch(off, (h == 0) == (op == classfile.OpIfnull))
	case classfile.OpGoto:
		t.branch(t.s16(), true)
	case classfile.OpGotoW:
		t.pc = t.instrStart + t.u32()

	case classfile.OpTableswitch:
		t.align()
		def := int32(t.u32())
		low := int32(t.u32())
		high := int32(t.u32())
		key := t.PopInt()
		off := def
		if key >= low && key <= high {
			off = int32(be32(t.cls.src, t.pc+4*uint32(key-low)))
		}
		t.pc = t.instrStart + uint32(off)
	case classfile.OpLookupswitch:
		t.align()
		def := int32(t.u32())
		n := t.u32()
		key := t.PopInt()
		off := def
		for i := uint32(0); i < n; i++ {
			if int32(be32(t.cls.src, t.pc+8*i)) == key {
				off = int32(be32(t.cls.src, t.pc+8*i+4))
				break
			}
		}
		t.pc = t.instrStart + uint32(off)

	// Returns

	case classfile.OpIreturn, classfile.OpFreturn:
		return v.ret(t, 1, false)
	case classfile.OpAreturn:
		return v.ret(t, 1, true)
	case classfile.OpLreturn, classfile.OpDreturn:
		return v.ret(t, 2, false)
	case classfile.OpReturn:
		return v.ret(t, 0, false)

	// Fields and invocation

	case classfile.OpGetstatic, classfile.OpPutstatic, classfile.OpGetfield, classfile.OpPutfield:
		return v.fieldAccess(t, op, t.u16())
	case classfile.OpInvokevirtual, classfile.OpInvokespecial, classfile.OpInvokestatic, classfile.OpInvokeinterface:
		return v.invoke(t, op)

	// Objects

	case classfile.OpNew:
		name := t.classRef(t.u16())
		cls := v.FindClass(name)
		if cls == nil {
			return fmt.Errorf("%w: class %s", ErrMethodNonexistent, name)
		}
		h, err := v.NewInstance(cls)
		if err != nil {
			return err
		}
		t.PushRef(h)
	case classfile.OpNewarray:
		at := t.u8()
		if at < classfile.ATypeBool || at > classfile.ATypeLong {
			return fmt.Errorf("%w: newarray type %d", ErrInvalidOpcode, at)
		}
		return v.newArrayOp(t, classfile.ATypeChars[at-classfile.ATypeBool])
	case classfile.OpAnewarray:
		elem := byte(classfile.TypeObject)
		if t.classRef(t.u16()).HasPrefix("[") {
			elem = classfile.TypeArray
		}
		return v.newArrayOp(t, elem)
	case classfile.OpMultianewarray:
		idx := t.u16()
		return v.multiNewArray(t, t.classRef(idx), int(t.u8()))

	case classfile.OpAthrow:
		h := t.PopRef()
		if h == 0 {
			return ErrNullPointer
		}
		return v.throw(t, h)
	case classfile.OpCheckcast:
		target := t.classRef(t.u16())
		x, _ := t.peek(0)
		if x != 0 && !v.objectInstanceOf(Handle(x), target) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidCast, v.typeName(Handle(x)), target)
		}
	case classfile.OpInstanceof:
		target := t.classRef(t.u16())
		h := t.PopRef()
		if h != 0 && v.objectInstanceOf(h, target) {
			t.PushInt(1)
		} else {
			t.PushInt(0)
		}
	case classfile.OpMonitorenter, classfile.OpMonitorexit:
		x, _ := t.peek(0)
		var err error
		if op == classfile.OpMonitorenter {
			err = v.monitorEnter(t, Handle(x))
		} else {
			err = v.monitorExit(t, Handle(x))
		}
		if err != nil {
			return err
		}
		t.pop()

	default:
		return fmt.Errorf("%w: 0x%02X", ErrInvalidOpcode, byte(op))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Locals
// ---------------------------------------------------------------------------

func (t *Thread) load(idx, width uint32) {
	for i := uint32(0); i < width; i++ {
		x, ref := t.local(idx + i)
		t.push(x, ref)
	}
}

func (t *Thread) store(idx, width uint32) {
	for i := width; i > 0; i-- {
		x, ref := t.pop()
		t.setLocal(idx+i-1, x, ref)
	}
}

func (t *Thread) iinc(idx uint32, by int32) {
	x, _ := t.local(idx)
	t.setLocal(idx, uint32(int32(x)+by), false)
}

// wide handles the 0xC4 prefix: 16-bit local indices, and the
// pre-specialized invoke and field forms.
func (v *VM) wide(t *Thread) error {
	op := classfile.Opcode(t.u8())
	if v.unsupported[op] {
		return fmt.Errorf("%w: wide %s", ErrUnsupportedOpcode, op)
	}
	switch op {
	case classfile.OpIload, classfile.OpFload, classfile.OpAload:
		t.load(uint32(t.u16()), 1)
	case classfile.OpLload, classfile.OpDload:
		t.load(uint32(t.u16()), 2)
	case classfile.OpIstore, classfile.OpFstore, classfile.OpAstore:
		t.store(uint32(t.u16()), 1)
	case classfile.OpLstore, classfile.OpDstore:
		t.store(uint32(t.u16()), 2)
	case classfile.OpIinc:
		idx := uint32(t.u16())
		t.iinc(idx, int32(t.s16()))
	case classfile.OpInvokespecial, classfile.OpInvokestatic:
		return v.invokeWide(t, op)
	case classfile.OpGetstatic, classfile.OpPutstatic, classfile.OpGetfield, classfile.OpPutfield:
		typ := t.u8()
		off := uint32(t.u16())
		base := t.cls.InstDataOfst
		if op == classfile.OpGetstatic || op == classfile.OpPutstatic {
			base = t.cls.ClsDataOfst
		}
		return v.accessField(t, op, t.cls, base+off, typ)
	default:
		return fmt.Errorf("%w: wide 0x%02X", ErrInvalidOpcode, byte(op))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

func intOp(t *Thread, op classfile.Opcode) error {
	if op == classfile.OpIdiv || op == classfile.OpIrem {
		if x, _ := t.peek(0); x == 0 {
			return ErrDivByZero
		}
	}
	b, a := t.PopInt(), t.PopInt()
	var r int32
	switch op {
	case classfile.OpIadd:
		r = a + b
	case classfile.OpIsub:
		r = a - b
	case classfile.OpImul:
		r = a * b
	case classfile.OpIdiv:
		r = a / b
	case classfile.OpIrem:
		r = a % b
	case classfile.OpIshl:
		r = a << (b & 31)
	case classfile.OpIshr:
		r = a >> (b & 31)
	case classfile.OpIushr:
		r = int32(uint32(a) >> (b & 31))
	case classfile.OpIand:
		r = a & b
	case classfile.OpIor:
		r = a | b
	case classfile.OpIxor:
		r = a ^ b
	}
	t.PushInt(r)
	return nil
}

func (v *VM) longOp(t *Thread, op classfile.Opcode) error {
	if op == classfile.OpLdiv || op == classfile.OpLrem {
		hi, _ := t.peek(1)
		lo, _ := t.peek(0)
		if hi == 0 && lo == 0 {
			return ErrDivByZero
		}
	}
	b, a := t.PopLong(), t.PopLong()
	var r int64
	switch op {
	case classfile.OpLadd:
		r = v.long.Add(a, b)
	case classfile.OpLsub:
		r = v.long.Sub(a, b)
	case classfile.OpLmul:
		r = v.long.Mul(a, b)
	case classfile.OpLdiv:
		r = v.long.Div(a, b)
	case classfile.OpLrem:
		r = v.long.Rem(a, b)
	case classfile.OpLand:
		r = a & b
	case classfile.OpLor:
		r = a | b
	case classfile.OpLxor:
		r = a ^ b
	}
	t.PushLong(r)
	return nil
}

func floatOp(op classfile.Opcode, a, b float32) float32 {
	switch op {
	case classfile.OpFadd:
		return a + b
	case classfile.OpFsub:
		return a - b
	case classfile.OpFmul:
		return a * b
	case classfile.OpFdiv:
		return a / b
	}
	return float32(math.Mod(float64(a), float64(b)))
}

func (v *VM) doubleOp(op classfile.Opcode, a, b float64) float64 {
	switch op {
	case classfile.OpDadd:
		return v.double.Add(a, b)
	case classfile.OpDsub:
		return v.double.Sub(a, b)
	case classfile.OpDmul:
		return v.double.Mul(a, b)
	case classfile.OpDdiv:
		return v.double.Div(a, b)
	}
	return v.double.Rem(a, b)
}

// compare evaluates condition k (eq, ne, lt, ge, gt, le) on a and b.
func compare(k classfile.Opcode, a, b int32) bool {
	switch k {
	case 0:
		return a == b
	case 1:
		return a != b
	case 2:
		return a < b
	case 3:
		return a >= b
	case 4:
		return a > b
	}
	return a <= b
}

// ---------------------------------------------------------------------------
// Control
// ---------------------------------------------------------------------------

// branch jumps relative to the start of the current instruction.
func (t *Thread) branch(off int16, taken bool) {
	if taken {
		t.pc = t.instrStart + uint32(int32(off))
	}
}

// align skips switch padding. Operands start on a 4-byte boundary measured
// from the method start.
func (t *Thread) align() {
	t.pc += (4 - (t.pc-t.methodStart)&3) & 3
}

// ---------------------------------------------------------------------------
// Arrays
// ---------------------------------------------------------------------------

// arrayCheck validates the array and index found depth slots below the top
// of the stack, without popping anything.
func (v *VM) arrayCheck(t *Thread, depth uint32) (Handle, uint32, error) {
	a, _ := t.peek(depth + 1)
	i, _ := t.peek(depth)
	h := Handle(a)
	if h == 0 {
		return 0, 0, ErrNullPointer
	}
	idx := int32(i)
	if idx < 0 || idx >= v.ArrayLen(h) {
		return 0, 0, fmt.Errorf("%w: index %d of %d", ErrArrayIndexOOB, idx, v.ArrayLen(h))
	}
	return h, uint32(idx), nil
}

func (v *VM) arrayLoad(t *Thread, typ byte) error {
	h, idx, err := v.arrayCheck(t, 0)
	if err != nil {
		return err
	}
	t.truncate(t.sp - 2)
	var hi, lo uint32
	var wide, ref bool
	v.withObject(h, func(b []byte) error {
		hi, lo, wide, ref = loadField(b, arrData+idx*uint32(elemSize(typ)), typ)
		return nil
	})
	pushValue(t, hi, lo, wide, ref)
	return nil
}

func (v *VM) arrayStore(t *Thread, typ byte) error {
	width := slotWidth(typ)
	h, idx, err := v.arrayCheck(t, width)
	if err != nil {
		return err
	}
	hi, lo := popValue(t, width)
	t.truncate(t.sp - 2)
	v.withObject(h, func(b []byte) error {
		storeField(b, arrData+idx*uint32(elemSize(typ)), typ, hi, lo)
		return nil
	})
	return nil
}

func slotWidth(typ byte) uint32 {
	if typ == classfile.TypeLong || typ == classfile.TypeDouble {
		return 2
	}
	return 1
}

func pushValue(t *Thread, hi, lo uint32, wide, ref bool) {
	if wide {
		t.push(hi, false)
		t.push(lo, false)
		return
	}
	t.push(lo, ref)
}

func popValue(t *Thread, width uint32) (hi, lo uint32) {
	lo, _ = t.pop()
	if width == 2 {
		hi, _ = t.pop()
	}
	return hi, lo
}

// newArrayOp allocates an array sized by the count on top of the stack. The
// count is popped only once the allocation succeeded.
func (v *VM) newArrayOp(t *Thread, elem byte) error {
	x, _ := t.peek(0)
	h, err := v.NewArray(elem, int32(x))
	if err != nil {
		return err
	}
	t.pop()
	t.PushRef(h)
	return nil
}

// multiNewArray allocates a dims-deep array, outermost first. The counts are
// peeked while allocating and popped only after success; arrays under
// construction are pinned against collection.
func (v *VM) multiNewArray(t *Thread, desc Sym, dims int) error {
	if dims < 1 || dims > desc.Len() {
		return fmt.Errorf("%w: multianewarray of %d dimensions for %s", ErrInvalidOpcode, dims, desc)
	}
	counts := make([]int32, dims)
	for d := 0; d < dims; d++ {
		x, _ := t.peek(uint32(dims - 1 - d))
		counts[d] = int32(x)
		if counts[d] < 0 {
			return ErrNegArrSize
		}
	}

	npins := len(v.pins)
	defer func() { v.pins = v.pins[:npins] }()

	var build func(d int) (Handle, error)
	build = func(d int) (Handle, error) {
		h, err := v.NewArray(desc.At(d+1), counts[d])
		if err != nil {
			return 0, err
		}
		if d+1 == dims {
			return h, nil
		}
		v.pin(h)
		for i := int32(0); i < counts[d]; i++ {
			sub, err := build(d + 1)
			if err != nil {
				return 0, err
			}
			v.withObject(h, func(b []byte) error {
				le.PutUint32(b[arrData+4*uint32(i):], uint32(sub))
				return nil
			})
		}
		return h, nil
	}
	h, err := build(0)
	if err != nil {
		return err
	}
	t.truncate(t.sp - uint32(dims))
	t.PushRef(h)
	return nil
}

// typeName names an object's type for error messages.
func (v *VM) typeName(h Handle) string {
	if c := v.ClassOf(h); c != nil {
		return c.Name()
	}
	return "array"
}
