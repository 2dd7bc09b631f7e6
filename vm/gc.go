package vm

import (
	"github.com/chazu/ujvm/heap"
	"github.com/chazu/ujvm/pkg/classfile"
)

// MarkRoots marks everything reachable from the VM, threads parked by
// Suspend included. It is the heap's collector: roots are marked Seen, then
// the Seen set is drained one chunk at a time, raising each to Expanded and
// marking its children Seen. The heap's marks are the only worklist.
func (v *VM) MarkRoots() {
	for _, c := range v.byID[1:] {
		v.markStatics(c)
	}
	for t := v.threads; t != nil; t = t.next {
		for i := uint32(0); i < t.sp; i++ {
			if x, ref := t.get(i); ref {
				v.MarkRef(Handle(x))
			}
		}
		v.MarkRef(t.inst)
		if t.ResultRef {
			v.MarkRef(Handle(t.Result[0]))
		}
	}
	for _, s := range v.suspended {
		s.markRoots(v)
	}
	for _, h := range v.pins {
		v.MarkRef(h)
	}
	for _, h := range v.literals {
		v.MarkRef(h)
	}

	n := 0
	for {
		h := v.heap.FirstMarked(heap.Seen)
		if h == 0 {
			break
		}
		v.heap.Mark(h, heap.Expanded)
		v.expand(h)
		n++
	}
	v.log.Debugf("gc: %d objects reachable", n)
}

// MarkRef marks h as reachable. Native GC hooks call it for the handles
// they hold.
func (v *VM) MarkRef(h Handle) {
	if h != 0 {
		v.heap.Mark(h, heap.Seen)
	}
}

func (v *VM) markStatics(c *Class) {
	if c.IsNative() {
		if c.native.GCStatics != nil {
			c.native.GCStatics(v, c)
		}
		return
	}
	acc := c.ClsDataOfst
	c.eachMember(false, func(m *member) bool {
		if m.flags&classfile.AccStatic == 0 {
			return true
		}
		typ := m.desc.At(0)
		if isRefType(typ) {
			v.MarkRef(Handle(le.Uint32(c.statics[acc:])))
		}
		acc += uint32(classfile.TypeSize(typ))
		return true
	})
}

// gcLock returns h's bytes for scanning, locking h only if no one else
// holds it locked. release reports whether a lock was taken here.
func (v *VM) gcLock(h Handle) (b []byte, release bool) {
	if b, ok := v.heap.Locked(h); ok {
		return b, false
	}
	return v.heap.Lock(h), true
}

// expand marks the direct children of one object.
func (v *VM) expand(h Handle) {
	var children []Handle
	var cls *Class
	b, release := v.gcLock(h)
	if id := le.Uint32(b[hdrClass:]); id != 0 {
		cls = v.classByID(id)
		for c := cls; c != nil; c = c.Super {
			if !c.IsNative() {
				children = appendRefFields(children, c, b)
			}
		}
	} else if isRefType(b[hdrElemType]) {
		n := le.Uint32(b[arrLength:])
		for i := uint32(0); i < n; i++ {
			if x := le.Uint32(b[arrData+4*i:]); x != 0 {
				children = append(children, Handle(x))
			}
		}
	}
	if release {
		v.heap.Release(h)
	}
	for _, c := range children {
		v.MarkRef(c)
	}
	for c := cls; c != nil; c = c.Super {
		if c.IsNative() && c.native.GCInstance != nil {
			c.native.GCInstance(v, c, h)
		}
	}
}

// appendRefFields collects the non-null reference instance fields that c
// itself declares.
func appendRefFields(out []Handle, c *Class, b []byte) []Handle {
	acc := hdrSize + c.InstDataOfst
	c.eachMember(false, func(m *member) bool {
		if m.flags&classfile.AccStatic != 0 {
			return true
		}
		typ := m.desc.At(0)
		if isRefType(typ) {
			if x := le.Uint32(b[acc:]); x != 0 {
				out = append(out, Handle(x))
			}
		}
		acc += uint32(classfile.TypeSize(typ))
		return true
	})
	return out
}
