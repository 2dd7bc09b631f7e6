package vm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chazu/ujvm/heap"
	"github.com/chazu/ujvm/numeric"
	"github.com/chazu/ujvm/pkg/classfile"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

var schedLog = commonlog.GetLogger("ujvm.sched")

// Defaults applied by New for zero Options fields.
const (
	DefaultStackSlots = 256
	DefaultQuantum    = 10
)

// Options configures a VM.
type Options struct {
	Heap Heap

	// Long and Double supply 64-bit arithmetic. A nil library disables the
	// opcodes that need it.
	Long   numeric.Long
	Double numeric.Double

	DisableLong   bool
	DisableFloat  bool
	DisableDouble bool

	StackSlots      int
	Quantum         int
	FastClassSearch bool

	// Console receives uj/lang/RT.consolePut output. Defaults to stdout.
	Console io.Writer

	// LoggerName names the commonlog logger. Defaults to "ujvm.vm".
	LoggerName string
}

// VM is one virtual machine instance: a class registry, a thread ring and
// the heap they share. A VM is not safe for concurrent use.
type VM struct {
	ID uuid.UUID

	heap   Heap
	long   numeric.Long
	double numeric.Double
	// unsupported flags opcodes whose feature is disabled.
	unsupported [256]bool

	stackSlots int
	quantum    int
	fastSearch bool
	console    io.Writer
	log        commonlog.Logger

	classes     *Class
	byID        []*Class
	objectClass *Class
	stringClass *Class

	threads      *Thread
	cur          *Thread
	nextThreadID uint32
	// suspended holds parked threads by ID. They stay GC roots and keep
	// their ID, and with it any monitors they hold.
	suspended    map[uint32]ThreadSnapshot

	pins     []Handle
	literals map[literalKey]Handle
	files    []*FileSource

	instructions uint64
}

type literalKey struct {
	class uint32
	index uint16
}

// New creates a VM and registers the built-in native classes.
func New(opts Options) (*VM, error) {
	if opts.Heap == nil {
		return nil, ErrNoHeap
	}
	v := &VM{
		ID:           uuid.New(),
		heap:         opts.Heap,
		long:         opts.Long,
		double:       opts.Double,
		stackSlots:   opts.StackSlots,
		quantum:      opts.Quantum,
		fastSearch:   opts.FastClassSearch,
		console:      opts.Console,
		byID:         []*Class{nil},
		literals:     make(map[literalKey]Handle),
		suspended:    make(map[uint32]ThreadSnapshot),
		nextThreadID: 1,
	}
	if v.stackSlots <= 0 {
		v.stackSlots = DefaultStackSlots
	}
	if v.quantum <= 0 {
		v.quantum = DefaultQuantum
	}
	if v.console == nil {
		v.console = os.Stdout
	}
	name := opts.LoggerName
	if name == "" {
		name = "ujvm.vm"
	}
	v.log = commonlog.GetLogger(name)

	v.disable(featureLong, opts.DisableLong || opts.Long == nil)
	v.disable(featureFloat, opts.DisableFloat)
	v.disable(featureDouble, opts.DisableDouble || opts.Double == nil)

	if c, ok := opts.Heap.(interface{ SetCollector(heap.Collector) }); ok {
		c.SetCollector(v)
	}
	if err := v.registerBuiltins(); err != nil {
		return nil, fmt.Errorf("registering built-in classes: %w", err)
	}
	v.log.Infof("vm %s ready: stack=%d quantum=%d fast_class_search=%t", v.ID, v.stackSlots, v.quantum, v.fastSearch)
	return v, nil
}

// Heap returns the heap the VM allocates from.
func (v *VM) Heap() Heap { return v.heap }

// ObjectClass returns java/lang/Object.
func (v *VM) ObjectClass() *Class { return v.objectClass }

// Instructions returns the number of instructions executed so far.
func (v *VM) Instructions() uint64 { return v.instructions }

// Close releases the files opened by LoadFiles.
func (v *VM) Close() error {
	var errs []error
	for _, f := range v.files {
		errs = append(errs, f.Close())
	}
	v.files = nil
	return errors.Join(errs...)
}

// ---------------------------------------------------------------------------
// Feature toggles
// ---------------------------------------------------------------------------

const (
	featureLong uint8 = 1 << iota
	featureFloat
	featureDouble
)

// opcodeFeatures lists the optional features each opcode depends on.
var opcodeFeatures = func() (t [256]uint8) {
	set := func(f uint8, ops ...classfile.Opcode) {
		for _, op := range ops {
			t[op] |= f
		}
	}
	set(featureLong,
		classfile.OpLconst0, classfile.OpLconst1,
		classfile.OpLload, classfile.OpLload0, classfile.OpLload1, classfile.OpLload2, classfile.OpLload3,
		classfile.OpLstore, classfile.OpLstore0, classfile.OpLstore1, classfile.OpLstore2, classfile.OpLstore3,
		classfile.OpLaload, classfile.OpLastore,
		classfile.OpLadd, classfile.OpLsub, classfile.OpLmul, classfile.OpLdiv, classfile.OpLrem, classfile.OpLneg,
		classfile.OpLshl, classfile.OpLshr, classfile.OpLushr, classfile.OpLand, classfile.OpLor, classfile.OpLxor,
		classfile.OpI2l, classfile.OpL2i, classfile.OpL2f, classfile.OpL2d, classfile.OpF2l, classfile.OpD2l,
		classfile.OpLcmp, classfile.OpLreturn)
	set(featureFloat,
		classfile.OpFconst0, classfile.OpFconst1, classfile.OpFconst2,
		classfile.OpFload, classfile.OpFload0, classfile.OpFload1, classfile.OpFload2, classfile.OpFload3,
		classfile.OpFstore, classfile.OpFstore0, classfile.OpFstore1, classfile.OpFstore2, classfile.OpFstore3,
		classfile.OpFaload, classfile.OpFastore,
		classfile.OpFadd, classfile.OpFsub, classfile.OpFmul, classfile.OpFdiv, classfile.OpFrem, classfile.OpFneg,
		classfile.OpI2f, classfile.OpL2f, classfile.OpF2i, classfile.OpF2l, classfile.OpF2d, classfile.OpD2f,
		classfile.OpFcmpl, classfile.OpFcmpg, classfile.OpFreturn)
	set(featureDouble,
		classfile.OpDconst0, classfile.OpDconst1,
		classfile.OpDload, classfile.OpDload0, classfile.OpDload1, classfile.OpDload2, classfile.OpDload3,
		classfile.OpDstore, classfile.OpDstore0, classfile.OpDstore1, classfile.OpDstore2, classfile.OpDstore3,
		classfile.OpDaload, classfile.OpDastore,
		classfile.OpDadd, classfile.OpDsub, classfile.OpDmul, classfile.OpDdiv, classfile.OpDrem, classfile.OpDneg,
		classfile.OpI2d, classfile.OpL2d, classfile.OpF2d, classfile.OpD2i, classfile.OpD2l, classfile.OpD2f,
		classfile.OpDcmpl, classfile.OpDcmpg, classfile.OpDreturn)
	return t
}()

func (v *VM) disable(f uint8, off bool) {
	if !off {
		return
	}
	for op, need := range opcodeFeatures {
		if need&f != 0 {
			v.unsupported[op] = true
		}
	}
}

func (v *VM) featureEnabled(f uint8) bool {
	switch f {
	case featureLong:
		return !v.unsupported[classfile.OpLadd]
	case featureFloat:
		return !v.unsupported[classfile.OpFadd]
	}
	return !v.unsupported[classfile.OpDadd]
}

// ---------------------------------------------------------------------------
// Threads
// ---------------------------------------------------------------------------

// NewThread creates an idle thread and links it at the head of the ring.
// stackSlots of 0 selects the configured default.
func (v *VM) NewThread(stackSlots int) (*Thread, error) {
	t, err := v.linkThread(v.nextThreadID, stackSlots)
	if err != nil {
		return nil, err
	}
	v.nextThreadID++
	return t, nil
}

func (v *VM) linkThread(id uint32, stackSlots int) (*Thread, error) {
	if stackSlots <= 0 {
		stackSlots = v.stackSlots
	}
	if stackSlots < RetInfoSlots || stackSlots > 0xFFFF {
		return nil, fmt.Errorf("%w: stack of %d slots", ErrStackSpace, stackSlots)
	}
	t := &Thread{
		ID:    id,
		vm:    v,
		stack: make([]uint32, stackSlots),
		refs:  make([]uint64, (stackSlots+63)/64),
	}
	t.next = v.threads
	v.threads = t
	if v.cur == nil {
		v.cur = t
	}
	schedLog.Debugf("thread %d created (%d slots)", t.ID, stackSlots)
	return t, nil
}

// Threads returns the ring in order from its head.
func (v *VM) Threads() []*Thread {
	var out []*Thread
	for t := v.threads; t != nil; t = t.next {
		out = append(out, t)
	}
	return out
}

func (v *VM) destroyThread(t *Thread) {
	for p := &v.threads; *p != nil; p = &(*p).next {
		if *p == t {
			*p = t.next
			break
		}
	}
	if v.cur == t {
		v.cur = t.next
		if v.cur == nil {
			v.cur = v.threads
		}
	}
	t.next = nil
	schedLog.Debugf("thread %d destroyed", t.ID)
}

// CanRun reports whether any thread remains.
func (v *VM) CanRun() bool { return v.threads != nil }

// ---------------------------------------------------------------------------
// Scheduling
// ---------------------------------------------------------------------------

// Step runs one quantum of the current thread and advances the ring. A
// thread that fails is destroyed and reported as a *ThreadError.
func (v *VM) Step() error {
	t := v.cur
	if t == nil {
		return nil
	}
	var err error
	if t.cls == nil {
		// never given a method to run
		err = fmt.Errorf("%w: thread %d has no method", ErrMethodNonexistent, t.ID)
	}
	for i := 0; err == nil && i < v.quantum; i++ {
		err = v.exec(t)
		if errors.Is(err, ErrRetryLater) {
			err = nil
			break
		}
		if err != nil || t.Done() {
			break
		}
	}

	v.cur = t.next
	if v.cur == nil {
		v.cur = v.threads
	}

	switch {
	case err != nil:
		code := CodeOf(err)
		schedLog.Warningf("thread %d failed (%s): %v", t.ID, code.Disposition(), err)
		v.unwind(t)
		v.destroyThread(t)
		return &ThreadError{ThreadID: t.ID, Code: code}
	case t.Done():
		v.destroyThread(t)
	}
	return nil
}

// Run steps until no threads remain or ctx is done. Thread failures are
// logged; the first host-fatal failure stops the run and is returned.
func (v *VM) Run(ctx context.Context) error {
	for v.CanRun() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := v.Step(); err != nil {
			var te *ThreadError
			if errors.As(err, &te) && te.Code.Disposition() != HostFatal {
				v.log.Errorf("%v", err)
				continue
			}
			return err
		}
	}
	return nil
}

// runUntilDone drives the VM until t has finished.
func (v *VM) runUntilDone(t *Thread) error {
	for v.alive(t) {
		if err := v.Step(); err != nil {
			var te *ThreadError
			if errors.As(err, &te) && te.ThreadID != t.ID && te.Code.Disposition() != HostFatal {
				v.log.Errorf("%v", err)
				continue
			}
			return err
		}
	}
	return nil
}

// unwind pops every frame of a failed thread so the monitors of its
// synchronized methods are released.
func (v *VM) unwind(t *Thread) {
	defer func() {
		if r := recover(); r != nil {
			schedLog.Warningf("thread %d: stack unreadable while unwinding: %v", t.ID, r)
		}
	}()
	for t.cls != nil && !t.Done() {
		if err := v.ret(t, 0, false); err != nil {
			return
		}
	}
}

func (v *VM) alive(t *Thread) bool {
	for x := v.threads; x != nil; x = x.next {
		if x == t {
			return true
		}
	}
	return false
}

// exec runs one instruction. Panics from the interpreter are converted at
// this boundary.
func (v *VM) exec(t *Thread) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(stackFault); ok {
				err = ErrStackSpace
				return
			}
			err = fmt.Errorf("%w: %v", ErrInternal, r)
		}
	}()
	return v.instr(t)
}

// ---------------------------------------------------------------------------
// Host helpers
// ---------------------------------------------------------------------------

// pin keeps h alive across allocations made by the VM itself.
func (v *VM) pin(h Handle) { v.pins = append(v.pins, h) }

func (v *VM) unpin(h Handle) {
	for i := len(v.pins) - 1; i >= 0; i-- {
		if v.pins[i] == h {
			v.pins = append(v.pins[:i], v.pins[i+1:]...)
			return
		}
	}
}

// Invoke starts cls.name(desc) on a new thread with the given argument
// slots and runs the VM until that thread finishes. It returns the thread so
// the caller can read its result.
func (v *VM) Invoke(ctx context.Context, cls *Class, name, desc string, args ...uint32) (*Thread, error) {
	t, err := v.NewThread(0)
	if err != nil {
		return nil, err
	}
	m, ok := v.findMethod(cls, Lit(name), Lit(desc), classfile.AccStatic, classfile.AccStatic, true)
	if !ok {
		v.destroyThread(t)
		return nil, fmt.Errorf("%w: %s.%s%s", ErrMethodNonexistent, cls.Name(), name, desc)
	}
	if err := v.enter(t, m, args...); err != nil {
		v.destroyThread(t)
		return nil, err
	}
	for v.alive(t) {
		if err := ctx.Err(); err != nil {
			return t, err
		}
		if err := v.Step(); err != nil {
			var te *ThreadError
			if errors.As(err, &te) && te.ThreadID != t.ID {
				v.log.Errorf("%v", err)
				continue
			}
			return t, err
		}
	}
	return t, nil
}
