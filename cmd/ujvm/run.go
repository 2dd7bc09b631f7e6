package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/chazu/ujvm/heap"
	"github.com/chazu/ujvm/manifest"
	"github.com/chazu/ujvm/pkg/classfile"
	"github.com/chazu/ujvm/vm"
)

// runCommand processes `ujvm run [class [method [desc]]]`. Arguments
// override the config's entry.
func runCommand(m *manifest.Manifest, args []string) error {
	entry := m.Entry
	if len(args) > 0 {
		entry.Class = manifest.InternalName(args[0])
	}
	if len(args) > 1 {
		entry.Method = args[1]
	}
	if len(args) > 2 {
		entry.Desc = args[2]
	}
	if entry.Class == "" {
		return fmt.Errorf("no entry class: set [entry] class in %s or pass one", manifest.FileName)
	}
	if manifest.IsReservedClass(entry.Class) {
		return fmt.Errorf("%s is a built-in class", entry.Class)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	v, err := newVM(m)
	if err != nil {
		return err
	}
	defer v.Close()
	return runEntry(ctx, v, entry, os.Stdout)
}

// runEntry initializes every class, then invokes the entry method with
// null/zero arguments and prints its result.
func runEntry(ctx context.Context, v *vm.VM, entry manifest.Entry, out io.Writer) error {
	cls := v.FindClassByName(entry.Class)
	if cls == nil {
		return fmt.Errorf("class %s is not loaded", entry.Class)
	}
	if err := v.InitAllClasses(); err != nil {
		return err
	}
	args := make([]uint32, classfile.ParamSlots(entry.Desc, true))
	t, err := v.Invoke(ctx, cls, entry.Method, entry.Desc, args...)
	if err != nil {
		return err
	}
	// let threads started by the entry finish
	if err := v.Run(ctx); err != nil {
		return err
	}

	switch {
	case t.ResultWidth == 2:
		fmt.Fprintf(out, "=> %d\n", t.ResultLong())
	case t.ResultRef:
		h := t.ResultHandle()
		if s, err := v.StringValue(h); err == nil {
			fmt.Fprintf(out, "=> %q\n", s)
		} else {
			fmt.Fprintf(out, "=> ref %d\n", h)
		}
	case t.ResultWidth == 1:
		fmt.Fprintf(out, "=> %d\n", t.ResultInt())
	}
	if a, ok := v.Heap().(*heap.Arena); ok {
		st := a.Stats()
		log.Infof("%d instructions, heap %d/%d bytes, %d handles, %d collections",
			v.Instructions(), st.Used, st.Capacity, st.Handles, st.Collections)
	}
	return nil
}
