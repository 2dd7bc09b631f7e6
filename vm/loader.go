package vm

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/chazu/ujvm/pkg/classfile"
	"github.com/tliron/commonlog"
)

var loaderLog = commonlog.GetLogger("ujvm.loader")

// LoadClass parses one class from src and links it into the registry.
//
// If the superclass or an interface is not loaded yet the result wraps
// ErrDependencyMissing and the registry is left untouched, so the caller can
// retry once other classes are in.
func (v *VM) LoadClass(src ByteSource) (cls *Class, err error) {
	defer func() {
		if r := recover(); r != nil {
			cls, err = nil, fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()

	c := &Class{src: src}
	var super Sym
	hasSuper := false

	switch {
	case be32(src, 0) == classfile.MagicStandard:
		c.Format = FormatStandard
		n := be16(src, 8)
		poolEnd := c.findConst(n)
		c.interfaces = poolEnd + 8
		if idx := be16(src, poolEnd+4); idx != 0 {
			super, hasSuper = refSym(c, idx, 1), true
		}
		c.fields = c.interfaces + 2*uint32(be16(src, c.interfaces-2)) + 2
		c.methods = skipMembers(src, c.fields) + 2
		c.nameHash = c.NameSym().Hash()

	case be16(src, 0) == classfile.MagicCompact:
		c.Format = FormatCompact
		c.interfaces = be24(src, classfile.CompactIfacesOff)
		c.methods = be24(src, classfile.CompactMethodsOff)
		c.fields = be24(src, classfile.CompactFieldsOff)
		if idx := be16(src, classfile.CompactSuperOff); idx != 0 {
			super, hasSuper = idxSym(c, idx), true
		}
		c.nameHash = src.ByteAt(classfile.CompactHashOff)

	default:
		return nil, fmt.Errorf("%w: bad magic", ErrMalformed)
	}

	name := c.NameSym()
	if v.FindClass(name) != nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateClass, name)
	}

	if !hasSuper {
		return nil, fmt.Errorf("%w: %s has no superclass", ErrMalformed, name)
	}
	c.Super = v.FindClass(super)
	if c.Super == nil {
		return nil, fmt.Errorf("%w: %s needs superclass %s", ErrDependencyMissing, name, super)
	}
	var missing error
	c.eachInterface(func(iname Sym) bool {
		if v.FindClass(iname) == nil {
			missing = fmt.Errorf("%w: %s needs interface %s", ErrDependencyMissing, name, iname)
			return false
		}
		return true
	})
	if missing != nil {
		return nil, missing
	}

	c.InstDataOfst = c.Super.InstDataOfst + c.Super.InstDataSize
	c.ClsDataOfst = c.Super.ClsDataOfst + c.Super.ClsDataSize
	c.eachMember(false, func(m *member) bool {
		size := uint32(classfile.TypeSize(m.desc.At(0)))
		if m.flags&classfile.AccStatic != 0 {
			c.ClsDataSize += size
		} else {
			c.InstDataSize += size
		}
		return true
	})
	if fs, ok := src.(interface{ Err() error }); ok && fs.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, fs.Err())
	}

	c.statics = make([]byte, c.ClsDataOfst+c.ClsDataSize)
	v.link(c)
	loaderLog.Debugf("loaded %s (%s) id=%d inst=%d+%d static=%d+%d",
		name, c.Format, c.ID, c.InstDataOfst, c.InstDataSize, c.ClsDataOfst, c.ClsDataSize)
	return c, nil
}

func (v *VM) link(c *Class) {
	c.ID = uint32(len(v.byID))
	v.byID = append(v.byID, c)
	c.next = v.classes
	v.classes = c
}

// RegisterNativeClass links a class implemented in Go. super may be nil only
// for java/lang/Object.
func (v *VM) RegisterNativeClass(nc *NativeClass, super *Class) (*Class, error) {
	if v.FindClassByName(nc.Name) != nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateClass, nc.Name)
	}
	c := &Class{Format: FormatNative, native: nc, Super: super}
	if super != nil {
		c.InstDataOfst = super.InstDataOfst + super.InstDataSize
		c.ClsDataOfst = super.ClsDataOfst + super.ClsDataSize
	}
	c.InstDataSize = nc.InstSize
	c.ClsDataSize = nc.StaticSize
	c.nameHash = Lit(nc.Name).Hash()
	c.statics = make([]byte, c.ClsDataOfst+c.ClsDataSize)
	v.link(c)
	loaderLog.Debugf("registered native %s id=%d", nc.Name, c.ID)
	return c, nil
}

// ---------------------------------------------------------------------------
// Multi-pass loading
// ---------------------------------------------------------------------------

// LoadClasses loads every source, retrying those with missing dependencies
// until all are in or a full pass makes no progress.
func (v *VM) LoadClasses(srcs []ByteSource) ([]*Class, error) {
	pending := srcs
	var loaded []*Class
	for pass := 1; len(pending) > 0; pass++ {
		var retry []ByteSource
		var last error
		for _, src := range pending {
			c, err := v.LoadClass(src)
			switch {
			case err == nil:
				loaded = append(loaded, c)
			case errors.Is(err, ErrDependencyMissing):
				retry = append(retry, src)
				last = err
			default:
				return loaded, err
			}
		}
		loaderLog.Debugf("pass %d: %d loaded, %d deferred", pass, len(pending)-len(retry), len(retry))
		if len(retry) == len(pending) {
			return loaded, fmt.Errorf("%d classes could not be loaded: %w", len(retry), last)
		}
		pending = retry
	}
	return loaded, nil
}

// LoadContainer loads every class of a packed container read through src.
func (v *VM) LoadContainer(src ByteSource) ([]*Class, error) {
	var srcs []ByteSource
	off := uint32(0)
	for {
		n := be24(src, off)
		off += 3
		if n == 0 {
			break
		}
		srcs = append(srcs, SliceSource{Src: src, Base: off})
		off += n
	}
	if fs, ok := src.(interface{ Err() error }); ok && fs.Err() != nil {
		return nil, fmt.Errorf("reading container: %w", fs.Err())
	}
	return v.LoadClasses(srcs)
}

// LoadFiles loads class files (.class or .ujc) and containers (.ujcc). The
// files stay open until Close because classes are read lazily.
func (v *VM) LoadFiles(paths []string) ([]*Class, error) {
	var srcs []ByteSource
	var containers []ByteSource
	for _, p := range paths {
		fs, err := OpenFileSource(p)
		if err != nil {
			return nil, err
		}
		v.files = append(v.files, fs)
		if strings.EqualFold(filepath.Ext(p), ".ujcc") {
			containers = append(containers, fs)
			continue
		}
		srcs = append(srcs, fs)
	}
	for _, c := range containers {
		off := uint32(0)
		for {
			n := be24(c, off)
			off += 3
			if n == 0 {
				break
			}
			srcs = append(srcs, SliceSource{Src: c, Base: off})
			off += n
		}
	}
	return v.LoadClasses(srcs)
}

// ---------------------------------------------------------------------------
// Initialization
// ---------------------------------------------------------------------------

// InitAllClasses runs each class's <clinit>()V to completion, in registry
// order, each on a fresh thread. Classes without one are skipped.
func (v *VM) InitAllClasses() error {
	for _, c := range v.Classes() {
		if c.IsNative() {
			continue
		}
		m, ok := v.findMethod(c, Lit("<clinit>"), Lit("()V"), classfile.AccStatic, classfile.AccStatic, false)
		if !ok || m.Start == 0 {
			continue
		}
		t, err := v.NewThread(0)
		if err != nil {
			return err
		}
		if err := v.enter(t, m); err != nil {
			v.destroyThread(t)
			return fmt.Errorf("init %s: %w", c.Name(), err)
		}
		if err := v.runUntilDone(t); err != nil {
			return fmt.Errorf("init %s: %w", c.Name(), err)
		}
	}
	return nil
}
