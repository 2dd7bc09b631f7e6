package vm

import "github.com/chazu/ujvm/pkg/classfile"

// Class marks used by the interface walk.
const (
	markNone    = 0
	markPending = 1
	markDone    = 2
)

// IsSubclass reports whether target appears in c's ancestor chain,
// including c itself.
func IsSubclass(c, target *Class) bool {
	for ; c != nil; c = c.Super {
		if c == target {
			return true
		}
	}
	return false
}

// Implements reports whether c or an ancestor implements the interface
// target, directly or through other interfaces.
//
// The walk keeps its state in the per-class mark instead of a worklist:
// ancestors are marked pending, then the registry is rescanned from the
// head, each time expanding the first pending bytecode class, until the
// target is reached or nothing is pending.
func (v *VM) Implements(c, target *Class) bool {
	for x := v.classes; x != nil; x = x.next {
		x.mark = markNone
	}
	for x := c; x != nil; x = x.Super {
		if x == target {
			return true
		}
		x.mark = markPending
	}

	for {
		var x *Class
		for y := v.classes; y != nil; y = y.next {
			if y.mark == markPending && !y.IsNative() {
				x = y
				break
			}
		}
		if x == nil {
			return false
		}
		x.mark = markDone

		found := false
		x.eachInterface(func(name Sym) bool {
			i := v.FindClass(name)
			if i == nil {
				return true
			}
			if i == target {
				found = true
				return false
			}
			if i.mark == markNone {
				i.mark = markPending
			}
			return true
		})
		if found {
			return true
		}
	}
}

// InstanceOf reports whether a class is assignable to target.
func (v *VM) InstanceOf(c, target *Class) bool {
	if target.IsInterface() {
		return v.Implements(c, target)
	}
	return IsSubclass(c, target)
}

// objectInstanceOf tests a non-null object against a target class name.
// Arrays are instances of java/lang/Object and of array types whose element
// type matches the one recorded in their header. Reference arrays do not
// record an element class, so any reference array matches [L...;.
func (v *VM) objectInstanceOf(h Handle, target Sym) bool {
	cls := v.ClassOf(h)
	if cls == nil {
		if !target.HasPrefix("[") {
			return target.Equal(v.objectClass.NameSym())
		}
		return arrayAssignable(v.elemType(h), target)
	}
	if target.HasPrefix("[") {
		return false
	}
	tc := v.FindClass(target)
	if tc == nil {
		return false
	}
	return v.InstanceOf(cls, tc)
}

// arrayAssignable reports whether an array with element type elem fits the
// array descriptor target.
func arrayAssignable(elem byte, target Sym) bool {
	if target.Len() < 2 {
		return false
	}
	switch want := target.At(1); want {
	case classfile.TypeObject:
		if elem == classfile.TypeArray {
			return target.EqualString("[Ljava/lang/Object;")
		}
		return elem == classfile.TypeObject
	default:
		return elem == want
	}
}

func (v *VM) elemType(h Handle) byte {
	var t byte
	v.withObject(h, func(b []byte) error {
		t = b[hdrElemType]
		return nil
	})
	return t
}
