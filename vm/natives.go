package vm

import (
	"bytes"
	"fmt"
	"unicode/utf16"

	"github.com/chazu/ujvm/pkg/classfile"
)

// Names of the built-in classes.
const (
	ObjectClassName   = "java/lang/Object"
	StringClassName   = "java/lang/String"
	RunnableClassName = "java/lang/Runnable"
	RTClassName       = "uj/lang/RT"
)

// stringValueOff is the data offset of a String's byte[] handle.
const stringValueOff = 0

// registerBuiltins links the native classes every VM starts with.
func (v *VM) registerBuiltins() error {
	obj, err := v.RegisterNativeClass(&NativeClass{
		Name:  ObjectClassName,
		Flags: classfile.AccPublic,
		Methods: []NativeMethod{
			{Name: "<init>", Desc: "()V", Flags: classfile.AccPublic, Func: objectInit},
			{Name: "hashCode", Desc: "()I", Flags: classfile.AccPublic, Func: objectHashCode},
		},
	}, nil)
	if err != nil {
		return err
	}
	v.objectClass = obj

	v.stringClass, err = v.RegisterNativeClass(&NativeClass{
		Name:     StringClassName,
		Flags:    classfile.AccPublic | classfile.AccFinal,
		InstSize: 4,
		Methods: []NativeMethod{
			{Name: "<init>", Desc: "([B)V", Flags: classfile.AccPublic, Func: stringInit},
			{Name: "length", Desc: "()I", Flags: classfile.AccPublic, Func: stringLength},
			{Name: "charAt", Desc: "(I)C", Flags: classfile.AccPublic, Func: stringCharAt},
			{Name: "XbyteAt_", Desc: "(I)B", Flags: classfile.AccPublic, Func: stringByteAt},
			{Name: "Xlen_", Desc: "()I", Flags: classfile.AccPublic, Func: stringLen},
			{Name: "equals", Desc: "(Ljava/lang/Object;)Z", Flags: classfile.AccPublic, Func: stringEquals},
		},
		GCInstance: func(v *VM, cls *Class, h Handle) {
			v.MarkRef(Handle(v.InstanceField(h, cls.InstDataOfst+stringValueOff)))
		},
	}, obj)
	if err != nil {
		return err
	}

	if _, err := v.RegisterNativeClass(&NativeClass{
		Name:  RunnableClassName,
		Flags: classfile.AccPublic | classfile.AccInterface | classfile.AccAbstract,
	}, obj); err != nil {
		return err
	}

	_, err = v.RegisterNativeClass(&NativeClass{
		Name:  RTClassName,
		Flags: classfile.AccPublic | classfile.AccFinal,
		Methods: []NativeMethod{
			{Name: "consolePut", Desc: "(C)V", Flags: classfile.AccPublic | classfile.AccStatic, Func: rtConsolePut},
			{Name: "threadCreate", Desc: "(Ljava/lang/Runnable;)V", Flags: classfile.AccPublic | classfile.AccStatic, Func: rtThreadCreate},
		},
	}, obj)
	return err
}

// ---------------------------------------------------------------------------
// java/lang/Object
// ---------------------------------------------------------------------------

func objectInit(t *Thread, _ *Class) error {
	t.PopRef()
	return nil
}

func objectHashCode(t *Thread, _ *Class) error {
	t.PushInt(int32(t.PopRef()))
	return nil
}

// ---------------------------------------------------------------------------
// java/lang/String
// ---------------------------------------------------------------------------

// A String keeps its characters as modified UTF-8 in a byte[].

func stringInit(t *Thread, cls *Class) error {
	arr := t.PopRef()
	this := t.PopRef()
	if arr == 0 {
		return ErrNullPointer
	}
	t.vm.SetInstanceField(this, cls.InstDataOfst+stringValueOff, uint32(arr))
	return nil
}

func (v *VM) stringBytes(h Handle) []byte {
	arr := Handle(v.InstanceField(h, v.stringClass.InstDataOfst+stringValueOff))
	if arr == 0 {
		return nil
	}
	return v.ArrayBytes(arr)
}

func stringLength(t *Thread, _ *Class) error {
	this := t.PopRef()
	t.PushInt(int32(len(decodeMUTF8(t.vm.stringBytes(this)))))
	return nil
}

func stringCharAt(t *Thread, _ *Class) error {
	i := t.PopInt()
	this := t.PopRef()
	chars := decodeMUTF8(t.vm.stringBytes(this))
	if i < 0 || int(i) >= len(chars) {
		return fmt.Errorf("%w: charAt(%d) of %d", ErrArrayIndexOOB, i, len(chars))
	}
	t.PushInt(int32(chars[i]))
	return nil
}

func stringByteAt(t *Thread, _ *Class) error {
	i := t.PopInt()
	this := t.PopRef()
	b := t.vm.stringBytes(this)
	if i < 0 || int(i) >= len(b) {
		return fmt.Errorf("%w: byte %d of %d", ErrArrayIndexOOB, i, len(b))
	}
	t.PushInt(int32(int8(b[i])))
	return nil
}

func stringLen(t *Thread, _ *Class) error {
	this := t.PopRef()
	t.PushInt(int32(len(t.vm.stringBytes(this))))
	return nil
}

func stringEquals(t *Thread, _ *Class) error {
	other := t.PopRef()
	this := t.PopRef()
	eq := this == other
	if !eq && other != 0 && t.vm.ClassOf(other) == t.vm.stringClass {
		eq = bytes.Equal(t.vm.stringBytes(this), t.vm.stringBytes(other))
	}
	if eq {
		t.PushInt(1)
	} else {
		t.PushInt(0)
	}
	return nil
}

// decodeMUTF8 decodes modified UTF-8 into UTF-16 code units. Bytes that do
// not start a valid sequence decode as themselves.
func decodeMUTF8(b []byte) []uint16 {
	out := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c&0xE0 == 0xC0 && i+1 < len(b) && b[i+1]&0xC0 == 0x80:
			out = append(out, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0 && i+2 < len(b) && b[i+1]&0xC0 == 0x80 && b[i+2]&0xC0 == 0x80:
			out = append(out, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			out = append(out, uint16(c))
			i++
		}
	}
	return out
}

// encodeMUTF8 encodes s as modified UTF-8: NUL takes two bytes and
// supplementary characters are written as surrogate pairs.
func encodeMUTF8(s string) []byte {
	var out []byte
	for _, u := range utf16.Encode([]rune(s)) {
		switch {
		case u != 0 && u < 0x80:
			out = append(out, byte(u))
		case u < 0x800:
			out = append(out, 0xC0|byte(u>>6), 0x80|byte(u&0x3F))
		default:
			out = append(out, 0xE0|byte(u>>12), 0x80|byte(u>>6&0x3F), 0x80|byte(u&0x3F))
		}
	}
	return out
}

// NewString allocates a String holding s.
func (v *VM) NewString(s string) (Handle, error) {
	arr, err := v.NewByteArray(encodeMUTF8(s))
	if err != nil {
		return 0, err
	}
	v.pin(arr)
	defer v.unpin(arr)
	h, err := v.NewInstance(v.stringClass)
	if err != nil {
		v.heap.Free(arr)
		return 0, err
	}
	v.SetInstanceField(h, v.stringClass.InstDataOfst+stringValueOff, uint32(arr))
	return h, nil
}

// StringValue returns the contents of a String instance.
func (v *VM) StringValue(h Handle) (string, error) {
	if h == 0 {
		return "", ErrNullPointer
	}
	if v.ClassOf(h) != v.stringClass {
		return "", fmt.Errorf("%w: %s is not a string", ErrInvalidCast, v.typeName(h))
	}
	return string(utf16.Decode(decodeMUTF8(v.stringBytes(h)))), nil
}

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

// ldc pushes constant idx of the running class.
func (v *VM) ldc(t *Thread, idx uint16) error {
	c := t.cls
	off := c.findConst(idx)
	switch tag := c.src.ByteAt(off); tag {
	case classfile.TagInt:
		t.PushInt(int32(be32(c.src, off+1)))
	case classfile.TagFloat:
		if !v.featureEnabled(featureFloat) {
			return fmt.Errorf("%w: float constant", ErrUnsupportedOpcode)
		}
		t.PushInt(int32(be32(c.src, off+1)))
	case classfile.TagLong, classfile.TagDouble:
		f := featureLong
		if tag == classfile.TagDouble {
			f = featureDouble
		}
		if !v.featureEnabled(f) {
			return fmt.Errorf("%w: 64-bit constant", ErrUnsupportedOpcode)
		}
		t.PushLong(int64(be64(c.src, off+1)))
	case classfile.TagString:
		h, err := v.literal(c, idx, off)
		if err != nil {
			return err
		}
		t.PushRef(h)
	default:
		return fmt.Errorf("%w: ldc of constant tag %d", ErrUnsupportedOpcode, tag)
	}
	return nil
}

// literal returns the interned String for a STRING constant. Literals live
// in fixed chunks and are never collected.
func (v *VM) literal(c *Class, idx uint16, off uint32) (Handle, error) {
	key := literalKey{class: c.ID, index: idx}
	if h, ok := v.literals[key]; ok {
		return h, nil
	}
	var s Sym
	if c.Format == FormatCompact {
		s = ujcSym(c.src, off+1)
	} else {
		s = refSym(c, idx, 1)
	}
	arr, err := v.newByteArray([]byte(s.String()), true)
	if err != nil {
		return 0, err
	}
	h, err := v.newInstance(v.stringClass, true)
	if err != nil {
		// fixed chunks are never collected
		v.heap.Free(arr)
		return 0, err
	}
	v.SetInstanceField(h, v.stringClass.InstDataOfst+stringValueOff, uint32(arr))
	v.literals[key] = h
	return h, nil
}

// ---------------------------------------------------------------------------
// uj/lang/RT
// ---------------------------------------------------------------------------

func rtConsolePut(t *Thread, _ *Class) error {
	ch := uint16(t.PopInt())
	if _, err := fmt.Fprint(t.vm.console, string(rune(ch))); err != nil {
		t.vm.log.Warningf("console: %v", err)
	}
	return nil
}

// rtThreadCreate starts run()V of its argument on a new thread. The
// argument stays on the stack until the thread exists, so a contended
// synchronized run() can be retried.
func rtThreadCreate(t *Thread, _ *Class) error {
	v := t.vm
	x, _ := t.peek(0)
	r := Handle(x)
	if r == 0 {
		return ErrNullPointer
	}
	cls := v.dispatchClass(r)
	m, ok := v.findMethod(cls, Lit("run"), Lit("()V"), classfile.AccStatic, 0, true)
	if !ok {
		return fmt.Errorf("%w: %s.run()V", ErrMethodNonexistent, cls.Name())
	}
	nt, err := v.NewThread(0)
	if err != nil {
		return err
	}
	if err := v.enter(nt, m, uint32(r)); err != nil {
		v.destroyThread(nt)
		return err
	}
	t.pop()
	schedLog.Debugf("thread %d started thread %d on %s.run", t.ID, nt.ID, cls.Name())
	return nil
}
