package vm

import (
	"cmp"
	"fmt"
	"slices"
)

// ThreadSnapshot is a copy of one thread's registers and word stack. Handles
// in it refer to the heap of the VM it was taken from.
type ThreadSnapshot struct {
	ID          uint32    `cbor:"1,keyasint"`
	Stack       []uint32  `cbor:"2,keyasint"` // slots below SP only
	Refs        []uint64  `cbor:"3,keyasint"`
	Base        uint32    `cbor:"4,keyasint"`
	ClassID     uint32    `cbor:"5,keyasint"`
	ClassName   string    `cbor:"6,keyasint"`
	This        uint32    `cbor:"7,keyasint"`
	MethodStart uint32    `cbor:"8,keyasint"`
	PC          uint32    `cbor:"9,keyasint"`
	Flags       uint8     `cbor:"10,keyasint"`
	Capacity    int       `cbor:"11,keyasint"`
	Result      [2]uint32 `cbor:"12,keyasint"`
	ResultWidth int       `cbor:"13,keyasint"`
	ResultRef   bool      `cbor:"14,keyasint"`
}

// ClassSummary describes one registered class in a VM snapshot.
type ClassSummary struct {
	ID           uint32 `cbor:"1,keyasint"`
	Name         string `cbor:"2,keyasint"`
	Format       string `cbor:"3,keyasint"`
	InstDataOfst uint32 `cbor:"4,keyasint"`
	InstDataSize uint32 `cbor:"5,keyasint"`
	ClsDataOfst  uint32 `cbor:"6,keyasint"`
	ClsDataSize  uint32 `cbor:"7,keyasint"`
	Statics      []byte `cbor:"8,keyasint,omitempty"`
}

// VMSnapshot is the scheduler-visible state of a VM: its classes and
// threads, without heap contents.
type VMSnapshot struct {
	ID           string           `cbor:"1,keyasint"`
	Instructions uint64           `cbor:"2,keyasint"`
	Classes      []ClassSummary   `cbor:"3,keyasint"`
	Threads      []ThreadSnapshot `cbor:"4,keyasint"`
	Suspended    []ThreadSnapshot `cbor:"5,keyasint,omitempty"`
}

// Snapshot copies the thread's state.
func (t *Thread) Snapshot() ThreadSnapshot {
	s := ThreadSnapshot{
		ID:          t.ID,
		Stack:       append([]uint32(nil), t.stack[:t.sp]...),
		Refs:        make([]uint64, (t.sp+63)/64),
		Base:        t.base,
		This:        uint32(t.inst),
		MethodStart: t.methodStart,
		PC:          t.pc,
		Flags:       t.flags,
		Capacity:    len(t.stack),
		Result:      t.Result,
		ResultWidth: t.ResultWidth,
		ResultRef:   t.ResultRef,
	}
	copy(s.Refs, t.refs)
	if t.sp%64 != 0 && len(s.Refs) > 0 {
		s.Refs[len(s.Refs)-1] &= 1<<(t.sp%64) - 1
	}
	if t.cls != nil {
		s.ClassID = t.cls.ID
		s.ClassName = t.cls.Name()
	}
	return s
}

// Snapshot captures every class and thread of the VM.
func (v *VM) Snapshot() VMSnapshot {
	s := VMSnapshot{ID: v.ID.String(), Instructions: v.instructions}
	for _, c := range v.byID[1:] {
		s.Classes = append(s.Classes, ClassSummary{
			ID:           c.ID,
			Name:         c.Name(),
			Format:       c.Format.String(),
			InstDataOfst: c.InstDataOfst,
			InstDataSize: c.InstDataSize,
			ClsDataOfst:  c.ClsDataOfst,
			ClsDataSize:  c.ClsDataSize,
			Statics:      append([]byte(nil), c.statics...),
		})
	}
	for t := v.threads; t != nil; t = t.next {
		s.Threads = append(s.Threads, t.Snapshot())
	}
	s.Suspended = v.Suspended()
	return s
}

// RestoreThread relinks a thread parked by Suspend. The snapshot must be
// the one Suspend returned, possibly after an encoding round trip, and the
// running class must still be registered under the same ID and name. The
// thread keeps its ID, so monitors it held while parked remain its own.
func (v *VM) RestoreThread(s ThreadSnapshot) (*Thread, error) {
	if uint32(len(s.Stack)) > uint32(s.Capacity) || len(s.Refs) < (len(s.Stack)+63)/64 {
		return nil, fmt.Errorf("%w: inconsistent thread snapshot", ErrMalformed)
	}
	parked, ok := v.suspended[s.ID]
	if !ok {
		return nil, fmt.Errorf("%w: thread %d is not suspended", ErrMalformed, s.ID)
	}
	if !parked.sameState(&s) {
		return nil, fmt.Errorf("%w: snapshot of thread %d was altered", ErrMalformed, s.ID)
	}
	var cls *Class
	if s.ClassID != 0 {
		cls = v.classByID(s.ClassID)
		if cls == nil || cls.Name() != s.ClassName {
			return nil, fmt.Errorf("%w: class %s (id %d)", ErrDependencyMissing, s.ClassName, s.ClassID)
		}
	}
	t, err := v.linkThread(s.ID, s.Capacity)
	if err != nil {
		return nil, err
	}
	delete(v.suspended, s.ID)
	copy(t.stack, s.Stack)
	copy(t.refs, s.Refs)
	t.sp = uint32(len(s.Stack))
	t.base = s.Base
	t.cls = cls
	t.inst = Handle(s.This)
	t.methodStart = s.MethodStart
	t.pc = s.PC
	t.flags = s.Flags
	t.Result, t.ResultWidth, t.ResultRef = s.Result, s.ResultWidth, s.ResultRef
	return t, nil
}

// Suspend removes t from the ring and returns its snapshot. The VM keeps a
// copy until RestoreThread: its references stay roots and its monitors stay
// held.
func (v *VM) Suspend(t *Thread) ThreadSnapshot {
	s := t.Snapshot()
	v.destroyThread(t)
	v.suspended[s.ID] = s
	return s
}

// Suspended returns the parked thread snapshots ordered by ID.
func (v *VM) Suspended() []ThreadSnapshot {
	out := make([]ThreadSnapshot, 0, len(v.suspended))
	for _, s := range v.suspended {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b ThreadSnapshot) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// sameState reports whether o carries the same stack and registers as s.
func (s *ThreadSnapshot) sameState(o *ThreadSnapshot) bool {
	return slices.Equal(s.Stack, o.Stack) &&
		slices.Equal(s.Refs, o.Refs) &&
		s.Base == o.Base && s.ClassID == o.ClassID && s.This == o.This &&
		s.MethodStart == o.MethodStart && s.PC == o.PC && s.Flags == o.Flags &&
		s.Capacity == o.Capacity && s.Result == o.Result &&
		s.ResultWidth == o.ResultWidth && s.ResultRef == o.ResultRef
}

// markRoots marks the references a parked thread holds.
func (s *ThreadSnapshot) markRoots(v *VM) {
	for i, x := range s.Stack {
		if s.Refs[i/64]&(1<<(i%64)) != 0 {
			v.MarkRef(Handle(x))
		}
	}
	v.MarkRef(Handle(s.This))
	if s.ResultRef {
		v.MarkRef(Handle(s.Result[0]))
	}
}
